package session

import (
	"context"
	"image"
	"time"
)

// State はセッションの準備状態を表す
type State string

const (
	StateUnbound              State = "unbound"                // デバイス要求中、またはレンダラー未結合
	StateBoundWaitingMetadata State = "bound_waiting_metadata" // メタデータ待ち
	StateReady                State = "ready"                  // キャプチャ可能
	StateCapturing            State = "capturing"              // キャプチャ中
	StateClosed               State = "closed"                 // 停止中
)

// FacingMode はカメラの向きの希望を表す
type FacingMode string

const (
	FacingUser        FacingMode = "user"        // 前面カメラ
	FacingEnvironment FacingMode = "environment" // 背面カメラ
)

// Constraints はデバイス取得時の希望条件
// すべて ideal 扱いで、満たせない場合でも取得は継続される
type Constraints struct {
	FacingMode FacingMode // 向きの希望
	Width      int        // 幅の希望（0 は指定なし）
	Height     int        // 高さの希望（0 は指定なし）
}

// Dimensions は画像の大きさ
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Valid は幅・高さがともに正かどうかを返す
func (d Dimensions) Valid() bool {
	return d.Width > 0 && d.Height > 0
}

// CapturedImage はキャプチャ結果。生成後は変更しない
type CapturedImage struct {
	ID         string     `json:"id"`
	MIMEType   string     `json:"mime_type"`
	DataURL    string     `json:"data_url"`
	Dimensions Dimensions `json:"dimensions"`
	CapturedAt time.Time  `json:"captured_at"`
}

// Snapshot はある時点のセッションの観測値
type Snapshot struct {
	ID        string         `json:"id"`
	State     State          `json:"state"`
	Supported bool           `json:"supported"`
	Error     *SessionError  `json:"error,omitempty"`
	Image     *CapturedImage `json:"image,omitempty"`
	DeviceID  string         `json:"device_id,omitempty"`
}

// Track はデバイスハンドルが保持するメディアトラック
type Track interface {
	// ID はトラックの識別子を返す
	ID() string

	// Live はトラックがまだ停止されていないかを返す
	Live() bool

	// Stop はトラックを停止する。複数回呼んでもよい
	Stop()
}

// DeviceHandle は取得したカメラデバイスのハンドル
type DeviceHandle interface {
	// ID はハンドルの識別子を返す
	ID() string

	// Tracks は保持しているトラック一覧を返す
	Tracks() []Track
}

// Acquirer はデバイス取得APIを表す
type Acquirer interface {
	// Acquire はデバイスを取得する。ユーザーの許可待ちなどで長時間ブロックしうる
	Acquire(ctx context.Context, constraints Constraints) (DeviceHandle, error)
}

// Renderer はライブ映像を表示する面
type Renderer interface {
	// Attach はハンドルの映像を表示する
	Attach(handle DeviceHandle)

	// Detach は表示中の映像を外す。ハンドルは停止しない
	Detach()

	// Snapshot は現在表示中のフレームを返す
	Snapshot() (image.Image, error)
}

// RendererEvents はレンダラーからの通知を受け取る
type RendererEvents interface {
	OnRendererMetadataReady(width, height int)
	OnRendererPlaybackError(message string)
}

// StopHandle はハンドルの全トラックを停止する
func StopHandle(handle DeviceHandle) {
	if handle == nil {
		return
	}
	for _, track := range handle.Tracks() {
		track.Stop()
	}
}

// HasLiveTracks はハンドルに停止されていないトラックがあるかを返す
func HasLiveTracks(handle DeviceHandle) bool {
	if handle == nil {
		return false
	}
	for _, track := range handle.Tracks() {
		if track.Live() {
			return true
		}
	}
	return false
}
