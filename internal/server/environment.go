package server

import (
	"net/http"
	"sync"

	"shashin/internal/session"
)

// VendorHeader はブラウザの navigator.vendor を送るヘッダー
const VendorHeader = "X-Navigator-Vendor"

// ClientEnvironment はカメラを操作しているブラウザの環境
// Open を要求したリクエストのヘッダーで更新される
type ClientEnvironment struct {
	mu        sync.RWMutex
	userAgent string
	vendor    string
}

// NewClientEnvironment は新しいClientEnvironmentを作成する
func NewClientEnvironment() *ClientEnvironment {
	return &ClientEnvironment{}
}

// UserAgent はUser-Agent文字列を返す
func (e *ClientEnvironment) UserAgent() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.userAgent
}

// Vendor はベンダー文字列を返す
func (e *ClientEnvironment) Vendor() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.vendor
}

// Update はリクエストのヘッダーで環境を更新する
func (e *ClientEnvironment) Update(r *http.Request) {
	env := requestEnvironment(r)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.userAgent = env.UA
	e.vendor = env.VendorName
}

// requestEnvironment はリクエストのヘッダーから環境を取り出す
func requestEnvironment(r *http.Request) session.StaticEnvironment {
	return session.StaticEnvironment{
		UA:         r.UserAgent(),
		VendorName: r.Header.Get(VendorHeader),
	}
}
