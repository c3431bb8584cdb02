package device

import (
	"context"
	"sync"

	"shashin/internal/session"
)

// streamTrack は StreamHandle の映像トラック
type streamTrack struct {
	id   string
	stop func()

	mu   sync.Mutex
	live bool
}

// ID はトラックIDを返す
func (t *streamTrack) ID() string { return t.id }

// Live はトラックが停止されていないかを返す
func (t *streamTrack) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

// Stop はトラックを停止する。何度呼んでもよい
func (t *streamTrack) Stop() {
	t.mu.Lock()
	if !t.live {
		t.mu.Unlock()
		return
	}
	t.live = false
	t.mu.Unlock()

	t.stop()
}

// StreamHandle はJPEGフレームを配信するデバイスハンドル
type StreamHandle struct {
	id    string
	label string
	track *streamTrack

	frames chan []byte
	errs   chan error

	ctx    context.Context
	cancel context.CancelFunc
	onStop func()

	finishOnce sync.Once
}

// newStreamHandle は新しい StreamHandle を作成する
// onStop はトラック停止時に一度だけ呼ばれる
func newStreamHandle(id, label string, onStop func()) *StreamHandle {
	// 取得要求が終わってもデバイスは生き続ける
	ctx, cancel := context.WithCancel(context.Background())

	h := &StreamHandle{
		id:     id,
		label:  label,
		frames: make(chan []byte, 10),
		errs:   make(chan error, 5),
		ctx:    ctx,
		cancel: cancel,
		onStop: onStop,
	}
	h.track = &streamTrack{
		id:   id + "/video",
		live: true,
		stop: h.stop,
	}
	return h
}

// ID はハンドルIDを返す
func (h *StreamHandle) ID() string { return h.id }

// Label はデバイスの表示名を返す
func (h *StreamHandle) Label() string { return h.label }

// Tracks はトラック一覧を返す
func (h *StreamHandle) Tracks() []session.Track {
	return []session.Track{h.track}
}

// Frames はJPEGフレームのチャンネルを返す。停止後にクローズされる
func (h *StreamHandle) Frames() <-chan []byte { return h.frames }

// Errors はストリーミング中のエラーを返す
func (h *StreamHandle) Errors() <-chan error { return h.errs }

// Done はハンドルの停止時にクローズされる
func (h *StreamHandle) Done() <-chan struct{} { return h.ctx.Done() }

// sendFrame はフレームを送信する。チャンネルがフルの場合は古いフレームを破棄する
// 停止済みなら false を返す
func (h *StreamHandle) sendFrame(frame []byte) bool {
	if h.ctx.Err() != nil {
		return false
	}

	select {
	case h.frames <- frame:
	default:
		select {
		case <-h.frames:
		default:
		}
		select {
		case h.frames <- frame:
		default:
		}
	}
	return true
}

// sendError はエラーを送信する。チャンネルがフルの場合は破棄する
func (h *StreamHandle) sendError(err error) {
	select {
	case h.errs <- err:
	default:
	}
}

// finish はフレームチャンネルをクローズする。送信側が終了時に一度だけ呼ぶ
func (h *StreamHandle) finish() {
	h.finishOnce.Do(func() {
		close(h.frames)
	})
}

func (h *StreamHandle) stop() {
	h.cancel()
	if h.onStop != nil {
		h.onStop()
	}
}
