package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"shashin/internal/auth"
	"shashin/internal/blog"
	"shashin/internal/config"
	"shashin/internal/generated"
	"shashin/internal/metrics"
	"shashin/internal/renderer"
	"shashin/internal/session"
)

// WebSocket の書き込み待ち時間
const writeWait = 10 * time.Second

// ShashinHandler は生成されたServerInterfaceを実装する
type ShashinHandler struct {
	config   *config.Config
	session  *session.Session
	renderer *renderer.FrameRenderer
	env      *ClientEnvironment
	metrics  *metrics.Metrics
	issuer   *auth.Issuer
	logger   *logrus.Entry
	upgrader websocket.Upgrader
}

// HealthCheck はヘルスチェックエンドポイントの実装
func (h *ShashinHandler) HealthCheck(c *gin.Context) {
	response := generated.HealthResponse{
		Status:    generated.Healthy,
		Timestamp: time.Now(),
	}

	c.JSON(http.StatusOK, response)
}

// GetStatus はシステム状態取得エンドポイントの実装
func (h *ShashinHandler) GetStatus(c *gin.Context) {
	response := generated.StatusResponse{
		Status: generated.Running,
		Server: generated.ServerInfo{
			Host: h.config.Server.Host,
			Port: h.config.Server.Port,
		},
		Driver:    h.config.Camera.Driver,
		Session:   toCameraState(h.session.Observe()),
		Timestamp: time.Now(),
	}

	c.JSON(http.StatusOK, response)
}

// GetCamera はセッションの観測値取得エンドポイントの実装
func (h *ShashinHandler) GetCamera(c *gin.Context) {
	c.JSON(http.StatusOK, toCameraState(h.session.Observe()))
}

// GetCameraSupport はリクエスト元の環境を判定する
func (h *ShashinHandler) GetCameraSupport(c *gin.Context) {
	response := generated.SupportResponse{
		Supported: session.IsSupportedEnvironment(requestEnvironment(c.Request)),
	}

	c.JSON(http.StatusOK, response)
}

// OpenCamera はカメラデバイスを取得する
func (h *ShashinHandler) OpenCamera(c *gin.Context) {
	h.env.Update(c.Request)
	if userID, ok := c.Get(userIDKey); ok {
		h.logger.WithField("user_id", userID).Info("カメラの取得が要求されました")
	}

	// クライアントが切断した場合は取得を中断する
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.config.Camera.AcquireTimeout)
	defer cancel()

	// 他のクライアントの更新に左右されないよう、このリクエストの環境で判定する
	err := h.session.OpenFor(ctx, requestEnvironment(c.Request))
	h.metrics.ObserveOpen(err)

	switch {
	case err == nil:
		c.JSON(http.StatusOK, toCameraState(h.session.Observe()))
	case errors.Is(err, session.ErrSuperseded):
		abortWithError(c, http.StatusConflict, "superseded", "後続の操作によって取得は取り消されました", nil)
	default:
		respondSessionError(c, err)
	}
}

// CaptureCamera は現在のフレームを撮影する
func (h *ShashinHandler) CaptureCamera(c *gin.Context) {
	img, err := h.session.Capture()
	h.metrics.ObserveCapture(err)
	if err != nil {
		respondSessionError(c, err)
		return
	}

	c.JSON(http.StatusOK, toCapturedImage(img))
}

// CloseCamera はデバイスを解放する
func (h *ShashinHandler) CloseCamera(c *gin.Context) {
	h.session.Close()
	c.JSON(http.StatusOK, toCameraState(h.session.Observe()))
}

// ClearCameraError はエラーをクリアする
func (h *ShashinHandler) ClearCameraError(c *gin.Context) {
	h.session.ClearError()
	c.JSON(http.StatusOK, toCameraState(h.session.Observe()))
}

// GetCameraPhoto は最新の撮影画像を返す
func (h *ShashinHandler) GetCameraPhoto(c *gin.Context, params generated.GetCameraPhotoParams) {
	img := h.session.Image()
	if img == nil {
		abortWithError(c, http.StatusNotFound, "photo_not_found", "撮影画像がありません", nil)
		return
	}

	format := generated.Png
	if params.Format != nil {
		format = *params.Format
	}

	switch format {
	case generated.Dataurl:
		c.JSON(http.StatusOK, toCapturedImage(img))
	default:
		mimeType, data, err := session.DecodeDataURL(img.DataURL)
		if err != nil {
			abortWithError(c, http.StatusInternalServerError, "invalid_photo", "撮影画像を読み取れません", err)
			return
		}
		c.Header("Cache-Control", "no-store")
		c.Data(http.StatusOK, mimeType, data)
	}
}

// GetCameraStream はMJPEGストリーミングエンドポイントの実装
func (h *ShashinHandler) GetCameraStream(c *gin.Context) {
	// デバイスを保持しているか確認
	if h.session.Observe().DeviceID == "" {
		abortWithError(c, http.StatusServiceUnavailable, "camera_not_active", "カメラが開かれていません", nil)
		return
	}

	// MJPEGストリーミングを配信
	h.streamMJPEG(c)
}

// GetCameraWebSocket は観測値の変化をWebSocketで配信する
func (h *ShashinHandler) GetCameraWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade がエラーレスポンスを書き込み済み
		h.logger.WithError(err).Warn("WebSocketへの切り替えに失敗しました")
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	snapshots, unsubscribe := h.session.Subscribe()
	defer unsubscribe()

	// 受信はクライアントの切断検知にだけ使う
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(toCameraState(snap)); err != nil {
				return
			}
		}
	}
}

// GetBlogPosts はお知らせ一覧を返す
func (h *ShashinHandler) GetBlogPosts(c *gin.Context) {
	posts := blog.MockPosts()
	response := make([]generated.BlogPost, 0, len(posts))
	for _, p := range posts {
		response = append(response, generated.BlogPost{
			Id:      p.ID,
			Title:   p.Title,
			Content: p.Content,
			Author:  p.Author,
			Date:    p.Date,
		})
	}

	c.JSON(http.StatusOK, response)
}

// PostAuth はトークンを発行してCookieに設定する
func (h *ShashinHandler) PostAuth(c *gin.Context) {
	var body generated.PostAuthJSONRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_request", "リクエストが不正です", err)
		return
	}

	var userID string
	if body.UserId != nil {
		userID = *body.UserId
	}

	token, err := h.issuer.Issue(userID)
	if errors.Is(err, auth.ErrMissingUserID) {
		abortWithError(c, http.StatusBadRequest, "missing_user_id", "Missing userId", nil)
		return
	}
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "token_error", "トークンの発行に失敗しました", err)
		return
	}

	http.SetCookie(c.Writer, h.issuer.Cookie(token))
	c.JSON(http.StatusOK, generated.AuthResponse{Success: true})
}

// handleParamError はパラメーターの解析エラーを返す
func (h *ShashinHandler) handleParamError(c *gin.Context, err error, statusCode int) {
	abortWithError(c, statusCode, "invalid_parameter", "パラメーターが不正です", err)
}

// serveIndex は埋め込みのページを返す
func (h *ShashinHandler) serveIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", getIndexHTML())
}

// ヘルパー関数

// toCameraState はセッションの観測値をレスポンスに変換する
func toCameraState(snap session.Snapshot) generated.CameraState {
	state := generated.CameraState{
		Id:        snap.ID,
		State:     generated.CameraStateState(snap.State),
		Supported: snap.Supported,
		Image:     toCapturedImage(snap.Image),
	}
	if snap.DeviceID != "" {
		state.DeviceId = stringPtr(snap.DeviceID)
	}
	if snap.Error != nil {
		state.Error = &generated.SessionError{
			Kind:    string(snap.Error.Kind),
			Message: snap.Error.Message,
		}
	}
	return state
}

// toCapturedImage は撮影画像をレスポンスに変換する
func toCapturedImage(img *session.CapturedImage) *generated.CapturedImage {
	if img == nil {
		return nil
	}
	return &generated.CapturedImage{
		Id:         img.ID,
		MimeType:   img.MIMEType,
		DataUrl:    img.DataURL,
		Width:      img.Dimensions.Width,
		Height:     img.Dimensions.Height,
		CapturedAt: img.CapturedAt,
	}
}

// statusForKind はエラーの種類をHTTPステータスに対応付ける
func statusForKind(kind session.ErrorKind) int {
	switch kind {
	case session.KindUnsupportedEnvironment:
		return http.StatusBadRequest
	case session.KindPermissionDenied:
		return http.StatusForbidden
	case session.KindDeviceNotFound:
		return http.StatusNotFound
	case session.KindAcquisitionAborted:
		return http.StatusRequestTimeout
	case session.KindHardwareUnavailable:
		return http.StatusServiceUnavailable
	case session.KindConstraintUnsatisfiable:
		return http.StatusUnprocessableEntity
	case session.KindNotReady:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondSessionError はセッションのエラーを返す
func respondSessionError(c *gin.Context, err error) {
	var serr *session.SessionError
	if !errors.As(err, &serr) {
		abortWithError(c, http.StatusInternalServerError, "internal_error", "予期しないエラーが発生しました", err)
		return
	}

	abortWithError(c, statusForKind(serr.Kind), string(serr.Kind), serr.Message, serr.Cause)
}

// abortWithError はエラーレスポンスを返して処理を中断する
func abortWithError(c *gin.Context, statusCode int, code, message string, cause error) {
	response := generated.ErrorResponse{
		Error:     code,
		Message:   message,
		Timestamp: time.Now(),
	}
	if cause != nil {
		response.Details = stringPtr(cause.Error())
	}

	c.AbortWithStatusJSON(statusCode, response)
}

// stringPtr は文字列のポインタを返すヘルパー関数
func stringPtr(s string) *string {
	return &s
}

// streamMJPEG はMJPEGストリームを配信する
func (h *ShashinHandler) streamMJPEG(c *gin.Context) {
	// レスポンスヘッダーを設定
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	// レスポンスライターを取得
	writer := c.Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	frameChan, unsubscribe := h.renderer.Subscribe()
	defer unsubscribe()

	h.metrics.StreamStarted()
	defer h.metrics.StreamEnded()

	// クライアント切断を検知するためのコンテキスト
	clientGone := c.Request.Context().Done()

	// 接続直後は保持している最新フレームから送る
	if frame, ok := h.renderer.LatestFrame(); ok {
		if writeMJPEGFrame(writer, frame) != nil {
			return
		}
		flusher.Flush()
	}

	// ストリーミングループ
	for {
		select {
		case <-clientGone:
			// クライアントが切断された
			return

		case frame, ok := <-frameChan:
			if !ok {
				return
			}
			if err := writeMJPEGFrame(writer, frame); err != nil {
				return
			}

			// バッファをフラッシュ
			flusher.Flush()
		}
	}
}

// writeMJPEGFrame はMJPEGの1パートを書き込む
func writeMJPEGFrame(w http.ResponseWriter, frame []byte) error {
	if _, err := w.Write([]byte("--frame\r\nContent-Type: image/jpeg\r\n\r\n")); err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	_, err := w.Write([]byte("\r\n"))
	return err
}
