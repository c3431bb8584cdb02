// Package blog はお知らせ一覧のモックデータを提供する
package blog

// Post はお知らせの記事
type Post struct {
	ID      int
	Title   string
	Content string
	Author  string
	Date    string // YYYY-MM-DD
}

// MockPosts は固定の記事一覧を返す
func MockPosts() []Post {
	return []Post{
		{
			ID:      1,
			Title:   "First Blog Post",
			Content: "This is the content of the first blog post.",
			Author:  "John Doe",
			Date:    "2024-06-01",
		},
		{
			ID:      2,
			Title:   "Second Blog Post",
			Content: "This is the content of the second blog post.",
			Author:  "Jane Smith",
			Date:    "2024-06-02",
		},
	}
}
