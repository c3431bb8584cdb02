package server

import (
	"embed"
	"io/fs"
	"net/http"

	"github.com/sirupsen/logrus"
)

//go:embed all:dist
var embedFS embed.FS

// GetAssetsFS は埋め込みアセットのファイルシステムを返す
func GetAssetsFS() http.FileSystem {
	// dist/assets のサブディレクトリを取得
	assetsFS, err := fs.Sub(embedFS, "dist/assets")
	if err != nil {
		logrus.Fatalf("埋め込みアセットファイルシステムの作成に失敗: %v", err)
	}
	return http.FS(assetsFS)
}

// getIndexHTML は index.html の内容を返す
func getIndexHTML() []byte {
	data, err := embedFS.ReadFile("dist/index.html")
	if err != nil {
		logrus.Fatalf("埋め込みindex.htmlの読み込みに失敗: %v", err)
	}
	return data
}
