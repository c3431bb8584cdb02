// Package generated は openapi.yaml に対応する型とginのルーティングを提供する
//
// oapi-codegen の gin サーバー出力と同じ構成で手で保守している。
// openapi.yaml を変更したときはこのファイルも合わせて更新すること（spec_test.go で照合する）。
package generated

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oapi-codegen/runtime"
)

// Defines values for CameraStateState.
const (
	BoundWaitingMetadata CameraStateState = "bound_waiting_metadata"
	Capturing            CameraStateState = "capturing"
	Closed               CameraStateState = "closed"
	Ready                CameraStateState = "ready"
	Unbound              CameraStateState = "unbound"
)

// Defines values for HealthResponseStatus.
const (
	Healthy HealthResponseStatus = "healthy"
)

// Defines values for StatusResponseStatus.
const (
	Running StatusResponseStatus = "running"
)

// Defines values for GetCameraPhotoParamsFormat.
const (
	Dataurl GetCameraPhotoParamsFormat = "dataurl"
	Png     GetCameraPhotoParamsFormat = "png"
)

// AuthRequest defines model for AuthRequest.
type AuthRequest struct {
	UserId *string `json:"userId,omitempty"`
}

// AuthResponse defines model for AuthResponse.
type AuthResponse struct {
	Success bool `json:"success"`
}

// BlogPost defines model for BlogPost.
type BlogPost struct {
	Author  string `json:"author"`
	Content string `json:"content"`
	Date    string `json:"date"`
	Id      int    `json:"id"`
	Title   string `json:"title"`
}

// CameraState defines model for CameraState.
type CameraState struct {
	DeviceId  *string          `json:"deviceId,omitempty"`
	Error     *SessionError    `json:"error,omitempty"`
	Id        string           `json:"id"`
	Image     *CapturedImage   `json:"image,omitempty"`
	State     CameraStateState `json:"state"`
	Supported bool             `json:"supported"`
}

// CameraStateState defines model for CameraState.State.
type CameraStateState string

// CapturedImage defines model for CapturedImage.
type CapturedImage struct {
	CapturedAt time.Time `json:"capturedAt"`
	DataUrl    string    `json:"dataUrl"`
	Height     int       `json:"height"`
	Id         string    `json:"id"`
	MimeType   string    `json:"mimeType"`
	Width      int       `json:"width"`
}

// ErrorResponse defines model for ErrorResponse.
type ErrorResponse struct {
	Details   *string   `json:"details,omitempty"`
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthResponse defines model for HealthResponse.
type HealthResponse struct {
	Status    HealthResponseStatus `json:"status"`
	Timestamp time.Time            `json:"timestamp"`
}

// HealthResponseStatus defines model for HealthResponse.Status.
type HealthResponseStatus string

// ServerInfo defines model for ServerInfo.
type ServerInfo struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// SessionError defines model for SessionError.
type SessionError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// StatusResponse defines model for StatusResponse.
type StatusResponse struct {
	Driver    string               `json:"driver"`
	Server    ServerInfo           `json:"server"`
	Session   CameraState          `json:"session"`
	Status    StatusResponseStatus `json:"status"`
	Timestamp time.Time            `json:"timestamp"`
}

// StatusResponseStatus defines model for StatusResponse.Status.
type StatusResponseStatus string

// SupportResponse defines model for SupportResponse.
type SupportResponse struct {
	Supported bool `json:"supported"`
}

// NavigatorVendor defines model for NavigatorVendor.
type NavigatorVendor = string

// Error defines model for Error.
type Error = ErrorResponse

// PostAuthJSONRequestBody defines body for PostAuth for application/json ContentType.
type PostAuthJSONRequestBody = AuthRequest

// GetCameraPhotoParams defines parameters for GetCameraPhoto.
type GetCameraPhotoParams struct {
	Format *GetCameraPhotoParamsFormat `form:"format,omitempty" json:"format,omitempty"`
}

// GetCameraPhotoParamsFormat defines parameters for GetCameraPhoto.
type GetCameraPhotoParamsFormat string

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// お知らせ一覧
	// (GET /api/blog)
	GetBlogPosts(c *gin.Context)
	// ユーザー識別用トークンをCookieに設定
	// (POST /api/auth)
	PostAuth(c *gin.Context)
	// カメラセッションの観測値を取得
	// (GET /api/camera)
	GetCamera(c *gin.Context)
	// 現在のフレームを撮影してセッションを終了
	// (POST /api/camera/capture)
	CaptureCamera(c *gin.Context)
	// デバイスを解放してセッションを終了
	// (POST /api/camera/close)
	CloseCamera(c *gin.Context)
	// エラーのクリア
	// (DELETE /api/camera/error)
	ClearCameraError(c *gin.Context)
	// カメラデバイスを取得してセッションを開始
	// (POST /api/camera/open)
	OpenCamera(c *gin.Context)
	// 最新の撮影画像を取得
	// (GET /api/camera/photo)
	GetCameraPhoto(c *gin.Context, params GetCameraPhotoParams)
	// プレビュー映像のMJPEGストリーム
	// (GET /api/camera/stream)
	GetCameraStream(c *gin.Context)
	// リクエスト元の環境でカメラを要求できるか
	// (GET /api/camera/support)
	GetCameraSupport(c *gin.Context)
	// 観測値の変化をWebSocketで配信
	// (GET /api/camera/ws)
	GetCameraWebSocket(c *gin.Context)
	// システム状態の取得
	// (GET /api/status)
	GetStatus(c *gin.Context)
	// ヘルスチェック
	// (GET /health)
	HealthCheck(c *gin.Context)
}

// ServerInterfaceWrapper converts contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler            ServerInterface
	HandlerMiddlewares []MiddlewareFunc
	ErrorHandler       func(*gin.Context, error, int)
}

type MiddlewareFunc func(c *gin.Context)

// runMiddlewares runs the handler middlewares and reports whether the request was aborted.
func (siw *ServerInterfaceWrapper) runMiddlewares(c *gin.Context) bool {
	for _, middleware := range siw.HandlerMiddlewares {
		middleware(c)
		if c.IsAborted() {
			return true
		}
	}
	return false
}

// GetBlogPosts operation middleware
func (siw *ServerInterfaceWrapper) GetBlogPosts(c *gin.Context) {
	if siw.runMiddlewares(c) {
		return
	}
	siw.Handler.GetBlogPosts(c)
}

// PostAuth operation middleware
func (siw *ServerInterfaceWrapper) PostAuth(c *gin.Context) {
	if siw.runMiddlewares(c) {
		return
	}
	siw.Handler.PostAuth(c)
}

// GetCamera operation middleware
func (siw *ServerInterfaceWrapper) GetCamera(c *gin.Context) {
	if siw.runMiddlewares(c) {
		return
	}
	siw.Handler.GetCamera(c)
}

// CaptureCamera operation middleware
func (siw *ServerInterfaceWrapper) CaptureCamera(c *gin.Context) {
	if siw.runMiddlewares(c) {
		return
	}
	siw.Handler.CaptureCamera(c)
}

// CloseCamera operation middleware
func (siw *ServerInterfaceWrapper) CloseCamera(c *gin.Context) {
	if siw.runMiddlewares(c) {
		return
	}
	siw.Handler.CloseCamera(c)
}

// ClearCameraError operation middleware
func (siw *ServerInterfaceWrapper) ClearCameraError(c *gin.Context) {
	if siw.runMiddlewares(c) {
		return
	}
	siw.Handler.ClearCameraError(c)
}

// OpenCamera operation middleware
func (siw *ServerInterfaceWrapper) OpenCamera(c *gin.Context) {
	if siw.runMiddlewares(c) {
		return
	}
	siw.Handler.OpenCamera(c)
}

// GetCameraPhoto operation middleware
func (siw *ServerInterfaceWrapper) GetCameraPhoto(c *gin.Context) {

	var err error

	// Parameter object where we will unmarshal all parameters from the context
	var params GetCameraPhotoParams

	// ------------- Optional query parameter "format" -------------

	err = runtime.BindQueryParameter("form", true, false, "format", c.Request.URL.Query(), &params.Format)
	if err != nil {
		siw.ErrorHandler(c, fmt.Errorf("Invalid format for parameter format: %w", err), http.StatusBadRequest)
		return
	}

	if siw.runMiddlewares(c) {
		return
	}
	siw.Handler.GetCameraPhoto(c, params)
}

// GetCameraStream operation middleware
func (siw *ServerInterfaceWrapper) GetCameraStream(c *gin.Context) {
	if siw.runMiddlewares(c) {
		return
	}
	siw.Handler.GetCameraStream(c)
}

// GetCameraSupport operation middleware
func (siw *ServerInterfaceWrapper) GetCameraSupport(c *gin.Context) {
	if siw.runMiddlewares(c) {
		return
	}
	siw.Handler.GetCameraSupport(c)
}

// GetCameraWebSocket operation middleware
func (siw *ServerInterfaceWrapper) GetCameraWebSocket(c *gin.Context) {
	if siw.runMiddlewares(c) {
		return
	}
	siw.Handler.GetCameraWebSocket(c)
}

// GetStatus operation middleware
func (siw *ServerInterfaceWrapper) GetStatus(c *gin.Context) {
	if siw.runMiddlewares(c) {
		return
	}
	siw.Handler.GetStatus(c)
}

// HealthCheck operation middleware
func (siw *ServerInterfaceWrapper) HealthCheck(c *gin.Context) {
	if siw.runMiddlewares(c) {
		return
	}
	siw.Handler.HealthCheck(c)
}

// GinServerOptions provides options for the Gin server.
type GinServerOptions struct {
	BaseURL      string
	Middlewares  []MiddlewareFunc
	ErrorHandler func(*gin.Context, error, int)
}

// RegisterHandlers creates http.Handler with routing matching OpenAPI spec.
func RegisterHandlers(router gin.IRouter, si ServerInterface) {
	RegisterHandlersWithOptions(router, si, GinServerOptions{})
}

// RegisterHandlersWithOptions creates http.Handler with additional options
func RegisterHandlersWithOptions(router gin.IRouter, si ServerInterface, options GinServerOptions) {
	errorHandler := options.ErrorHandler
	if errorHandler == nil {
		errorHandler = func(c *gin.Context, err error, statusCode int) {
			c.JSON(statusCode, gin.H{"msg": err.Error()})
		}
	}

	wrapper := ServerInterfaceWrapper{
		Handler:            si,
		HandlerMiddlewares: options.Middlewares,
		ErrorHandler:       errorHandler,
	}

	router.GET(options.BaseURL+"/api/blog", wrapper.GetBlogPosts)
	router.POST(options.BaseURL+"/api/auth", wrapper.PostAuth)
	router.GET(options.BaseURL+"/api/camera", wrapper.GetCamera)
	router.POST(options.BaseURL+"/api/camera/capture", wrapper.CaptureCamera)
	router.POST(options.BaseURL+"/api/camera/close", wrapper.CloseCamera)
	router.DELETE(options.BaseURL+"/api/camera/error", wrapper.ClearCameraError)
	router.POST(options.BaseURL+"/api/camera/open", wrapper.OpenCamera)
	router.GET(options.BaseURL+"/api/camera/photo", wrapper.GetCameraPhoto)
	router.GET(options.BaseURL+"/api/camera/stream", wrapper.GetCameraStream)
	router.GET(options.BaseURL+"/api/camera/support", wrapper.GetCameraSupport)
	router.GET(options.BaseURL+"/api/camera/ws", wrapper.GetCameraWebSocket)
	router.GET(options.BaseURL+"/api/status", wrapper.GetStatus)
	router.GET(options.BaseURL+"/health", wrapper.HealthCheck)
}
