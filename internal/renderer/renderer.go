// Package renderer はデバイスハンドルの映像を表示面として保持する
//
// フレームを受け取り続けて最新の1枚を保持し、MJPEG配信用に購読者へ配る。
// 映像の大きさが確定したときと再生に失敗したときに session.RendererEvents へ通知する。
// 通知は常に別ゴルーチンから行い、Attach / Detach の呼び出し中には行わない。
package renderer

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"sync"

	"github.com/sirupsen/logrus"

	"shashin/internal/session"
)

// ErrNoFrame はまだフレームを受信していないことを表す
var ErrNoFrame = errors.New("フレームがまだ取得されていません")

// FrameSource はJPEGフレームを供給するデバイスハンドルが実装する
type FrameSource interface {
	// Frames はJPEGフレームを返すチャンネル。デバイス停止時にクローズされる
	Frames() <-chan []byte

	// Errors はストリーミング中のエラーを返すチャンネル
	Errors() <-chan error
}

// FrameRenderer は session.Renderer の実装
type FrameRenderer struct {
	events session.RendererEvents
	logger *logrus.Entry

	mu     sync.RWMutex
	token  uint64
	stopCh chan struct{}

	// 最新フレーム
	latest []byte
	width  int
	height int

	subscribers map[chan []byte]struct{}
}

// New は新しいFrameRendererを作成する
func New(events session.RendererEvents, logger *logrus.Entry) *FrameRenderer {
	if logger == nil {
		logger = logrus.WithField("component", "renderer")
	}
	return &FrameRenderer{
		events:      events,
		logger:      logger,
		subscribers: make(map[chan []byte]struct{}),
	}
}

// Attach はハンドルの映像の受信を開始する。以前の映像は破棄される
func (r *FrameRenderer) Attach(handle session.DeviceHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.resetLocked()
	if handle == nil {
		return
	}

	token := r.token
	src, ok := handle.(FrameSource)
	if !ok {
		go r.emitError(token, "このデバイスの映像は表示できません")
		return
	}

	stopCh := make(chan struct{})
	r.stopCh = stopCh
	go r.pump(token, src, stopCh)

	r.logger.WithField("device_id", handle.ID()).Debug("映像の受信を開始しました")
}

// Detach は映像の受信をやめる。受信ゴルーチンの終了は待たない
func (r *FrameRenderer) Detach() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.resetLocked()
}

// Snapshot は最新フレームをデコードして返す
func (r *FrameRenderer) Snapshot() (image.Image, error) {
	r.mu.RLock()
	frame := r.latest
	r.mu.RUnlock()

	if frame == nil {
		return nil, ErrNoFrame
	}
	return jpeg.Decode(bytes.NewReader(frame))
}

// LatestFrame は最新フレームのコピーを返す
func (r *FrameRenderer) LatestFrame() ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.latest == nil {
		return nil, false
	}
	frame := make([]byte, len(r.latest))
	copy(frame, r.latest)
	return frame, true
}

// Dimensions は最新フレームの大きさを返す
func (r *FrameRenderer) Dimensions() session.Dimensions {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return session.Dimensions{Width: r.width, Height: r.height}
}

// Subscribe はフレームを受け取るチャンネルと購読解除関数を返す
// 受信が遅い場合は古いフレームから破棄される
func (r *FrameRenderer) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 10)

	r.mu.Lock()
	r.subscribers[ch] = struct{}{}
	r.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subscribers, ch)
			r.mu.Unlock()
		})
	}
	return ch, unsubscribe
}

// resetLocked は受信中の映像を破棄する（ロック済み前提）
func (r *FrameRenderer) resetLocked() {
	r.token++
	if r.stopCh != nil {
		close(r.stopCh)
		r.stopCh = nil
	}
	r.latest = nil
	r.width = 0
	r.height = 0
}

// pump はハンドルからフレームを受信する
func (r *FrameRenderer) pump(token uint64, src FrameSource, stopCh <-chan struct{}) {
	frames := src.Frames()
	errs := src.Errors()

	for {
		select {
		case <-stopCh:
			return

		case frame, ok := <-frames:
			if !ok {
				// デバイスが停止された
				r.emitError(token, "映像ストリームが終了しました")
				return
			}
			if !r.accept(token, frame) {
				return
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			r.emitError(token, err.Error())
		}
	}
}

// accept はフレームを最新として保持する。映像が切り替わっていれば false を返す
func (r *FrameRenderer) accept(token uint64, frame []byte) bool {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(frame))
	if err != nil {
		// 壊れたフレームは読み飛ばす
		r.logger.WithError(err).Debug("フレームのデコードに失敗しました")
		return true
	}

	r.mu.Lock()
	if token != r.token {
		r.mu.Unlock()
		return false
	}

	r.latest = frame
	changed := cfg.Width != r.width || cfg.Height != r.height
	r.width = cfg.Width
	r.height = cfg.Height

	for ch := range r.subscribers {
		select {
		case ch <- frame:
		default:
			// チャンネルがフルの場合は古いフレームを破棄
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- frame:
			default:
			}
		}
	}
	r.mu.Unlock()

	if changed && r.events != nil {
		r.events.OnRendererMetadataReady(cfg.Width, cfg.Height)
	}
	return true
}

// emitError は現在の映像に対する再生エラーを通知する
func (r *FrameRenderer) emitError(token uint64, message string) {
	r.mu.Lock()
	if token != r.token {
		r.mu.Unlock()
		return
	}
	// 次のフレームで大きさを再通知する
	r.width = 0
	r.height = 0
	r.mu.Unlock()

	r.logger.WithField("reason", message).Warn("映像の再生に失敗しました")
	if r.events != nil {
		r.events.OnRendererPlaybackError(message)
	}
}
