package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Session はカメラセッションの状態機械
type Session struct {
	id       string
	env      Environment
	acquirer Acquirer
	encoder  Encoder
	logger   *logrus.Entry
	now      func() time.Time

	// 取得時の希望解像度
	preferredWidth  int
	preferredHeight int

	mu         sync.Mutex
	state      State
	handle     DeviceHandle
	renderer   Renderer
	dims       Dimensions
	image      *CapturedImage
	err        *SessionError
	generation uint64

	subscribers map[chan Snapshot]struct{}
}

// dimensionsReporter は現在表示している映像の大きさを返せるレンダラー
type dimensionsReporter interface {
	Dimensions() Dimensions
}

// Option は Session の設定を変更する
type Option func(*Session)

// WithLogger はログ出力先を設定する
func WithLogger(logger *logrus.Entry) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEncoder はキャプチャ画像のエンコーダーを設定する
func WithEncoder(encoder Encoder) Option {
	return func(s *Session) {
		if encoder != nil {
			s.encoder = encoder
		}
	}
}

// WithPreferredSize は取得時に希望する解像度を設定する
func WithPreferredSize(width, height int) Option {
	return func(s *Session) {
		s.preferredWidth = width
		s.preferredHeight = height
	}
}

// WithClock はキャプチャ時刻の取得元を設定する
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// New は新しい Session を作成する
func New(env Environment, acquirer Acquirer, opts ...Option) *Session {
	s := &Session{
		id:          uuid.New().String(),
		env:         env,
		acquirer:    acquirer,
		encoder:     EncodePNGDataURL,
		now:         time.Now,
		state:       StateClosed,
		subscribers: make(map[chan Snapshot]struct{}),
	}
	s.logger = logrus.WithField("session_id", s.id)

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// ID はセッションIDを返す
func (s *Session) ID() string {
	return s.id
}

// IsSupported は現在の環境でカメラを要求できるかを返す
func (s *Session) IsSupported() bool {
	return IsSupportedEnvironment(s.env)
}

// Open はデバイスを取得してセッションを開始する
// 取得を待つ間はロックを保持しない。待機中に Open / Close が呼ばれた場合、
// この呼び出しの結果は破棄され ErrSuperseded を返す
func (s *Session) Open(ctx context.Context) error {
	return s.OpenFor(ctx, s.env)
}

// OpenFor は env を要求元の環境として Open する
// 対応可否と希望する向きは呼び出し時点の env だけで決まる
func (s *Session) OpenFor(ctx context.Context, env Environment) error {
	s.mu.Lock()
	s.err = nil

	if !IsSupportedEnvironment(env) {
		serr := NewError(KindUnsupportedEnvironment, nil)
		s.err = serr
		s.publishLocked()
		s.mu.Unlock()

		s.logger.WithField("user_agent", userAgentOf(env)).Warn("未対応の環境からカメラが要求されました")
		return serr
	}

	// 新しいデバイスを要求する前に古いデバイスを必ず停止する
	s.releaseLocked()
	s.image = nil
	s.state = StateUnbound
	s.generation++
	generation := s.generation
	constraints := PreferredConstraints(env, s.preferredWidth, s.preferredHeight)
	s.publishLocked()
	s.mu.Unlock()

	s.logger.WithField("facing_mode", constraints.FacingMode).Info("カメラデバイスを要求しています")
	handle, err := s.acquirer.Acquire(ctx, constraints)

	s.mu.Lock()
	defer s.mu.Unlock()

	if generation != s.generation {
		// 後続の操作が優先される
		StopHandle(handle)
		s.logger.Info("後続の操作があったため取得したデバイスを停止しました")
		return ErrSuperseded
	}

	if err == nil && handle == nil {
		err = errors.New("デバイスハンドルが返されませんでした")
	}

	if err != nil {
		StopHandle(handle)
		serr := NewError(ClassifyAcquisitionError(err), err)
		s.err = serr
		s.state = StateClosed
		s.publishLocked()

		s.logger.WithError(err).WithField("kind", serr.Kind).Error("カメラデバイスの取得に失敗しました")
		return serr
	}

	s.handle = handle
	if s.renderer != nil {
		s.renderer.Attach(handle)
		s.state = StateBoundWaitingMetadata
	}
	s.publishLocked()

	s.logger.WithField("device_id", handle.ID()).Info("カメラデバイスを取得しました")
	return nil
}

// BindRenderer はレンダラーを結合する。nil を渡すと結合を解除する
func (s *Session) BindRenderer(renderer Renderer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.renderer != nil && s.renderer != renderer {
		s.renderer.Detach()
	}
	s.renderer = renderer
	s.dims = Dimensions{}

	switch {
	case renderer == nil:
		if s.handle != nil {
			s.state = StateUnbound
		}
	case s.handle != nil:
		renderer.Attach(s.handle)
		s.state = StateBoundWaitingMetadata
	default:
		renderer.Detach()
	}

	s.publishLocked()
}

// OnRendererMetadataReady はレンダラーが映像の大きさを確定したときに呼ばれる
func (s *Session) OnRendererMetadataReady(width, height int) {
	dims := Dimensions{Width: width, Height: height}
	if !dims.Valid() {
		// メタデータは再送されるので失敗扱いにしない
		s.logger.WithFields(logrus.Fields{"width": width, "height": height}).Debug("無効な映像サイズを無視しました")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle == nil || s.renderer == nil {
		return
	}
	// 切り替え前の映像から遅れて届いた通知は、現在の映像の大きさと一致しない
	if r, ok := s.renderer.(dimensionsReporter); ok && r.Dimensions() != dims {
		s.logger.WithFields(logrus.Fields{"width": width, "height": height}).Debug("古い映像のメタデータを無視しました")
		return
	}

	switch s.state {
	case StateBoundWaitingMetadata:
		s.dims = dims
		s.state = StateReady
		s.logger.WithFields(logrus.Fields{"width": width, "height": height}).Info("カメラ映像の準備ができました")
	case StateReady:
		s.dims = dims
	default:
		return
	}

	s.publishLocked()
}

// OnRendererPlaybackError はレンダラーが再生に失敗したときに呼ばれる
// キャプチャ可能な状態は取り消され、メタデータの再確認が必要になる
func (s *Session) OnRendererPlaybackError(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle == nil {
		// 停止済みストリームから遅れて届いた通知。デバイスが無いのでエラーにはしない
		s.logger.WithField("reason", message).Debug("デバイスの無い状態で描画エラーを受信しました")
		return
	}

	s.err = &SessionError{
		Kind:    KindRenderError,
		Message: messageFor(KindRenderError),
		Cause:   errors.New(message),
	}

	if s.renderer != nil {
		s.state = StateBoundWaitingMetadata
		s.dims = Dimensions{}
	}

	s.publishLocked()
	s.logger.WithField("reason", message).Warn("カメラ映像の再生に失敗しました")
}

// Capture は現在のフレームを静止画として取得し、セッションを終了する
func (s *Session) Capture() (*CapturedImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.err = nil

	if s.state != StateReady || s.handle == nil || s.renderer == nil || !s.dims.Valid() {
		serr := NewError(KindNotReady, nil)
		s.err = serr
		s.publishLocked()

		s.logger.WithField("state", s.state).Warn("準備ができていない状態で撮影が要求されました")
		return nil, serr
	}

	s.state = StateCapturing
	s.publishLocked()

	// デバイス停止前にエンコードを完了させる
	frame, err := s.renderer.Snapshot()
	if err == nil {
		var dataURL string
		dataURL, err = s.encoder(frame)
		if err == nil {
			img := &CapturedImage{
				ID:         uuid.New().String(),
				MIMEType:   PNGMIMEType,
				DataURL:    dataURL,
				Dimensions: s.dims,
				CapturedAt: s.now(),
			}

			s.image = img
			s.releaseLocked()
			s.state = StateClosed
			s.publishLocked()

			s.logger.WithFields(logrus.Fields{
				"image_id": img.ID,
				"width":    img.Dimensions.Width,
				"height":   img.Dimensions.Height,
			}).Info("撮影しました")
			return img, nil
		}
	}

	serr := NewError(KindEncodeFailure, err)
	s.err = serr
	s.state = StateReady
	s.publishLocked()

	s.logger.WithError(err).Error("撮影画像の生成に失敗しました")
	return nil, serr
}

// Close はデバイスを解放してセッションを終了する。何度呼んでもよい
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 取得待ちの Open があればその結果を無効にする
	s.generation++
	s.err = nil
	s.releaseLocked()
	s.image = nil
	s.state = StateClosed
	s.publishLocked()

	s.logger.Debug("セッションを閉じました")
}

// ClearError はエラーだけをクリアする
func (s *Session) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err == nil {
		return
	}
	s.err = nil
	s.publishLocked()
}

// State は現在の状態を返す
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError は最新のエラーを返す。エラーが無ければ nil
func (s *Session) LastError() *SessionError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Image は最新のキャプチャ画像を返す。無ければ nil
func (s *Session) Image() *CapturedImage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.image
}

// Observe は現在の観測値を返す
func (s *Session) Observe() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe は状態変化の通知を受け取るチャンネルと購読解除関数を返す
// 受信が遅い場合は古い通知から破棄される
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 16)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, ch)
			s.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsubscribe
}

// releaseLocked はレンダラーの映像を外し、デバイスを停止する（ロック済み前提）
func (s *Session) releaseLocked() {
	// 映像を外してからトラックを停止する
	if s.renderer != nil {
		s.renderer.Detach()
	}
	if s.handle != nil {
		StopHandle(s.handle)
		s.logger.WithField("device_id", s.handle.ID()).Debug("カメラデバイスを停止しました")
		s.handle = nil
	}
	s.dims = Dimensions{}
}

// snapshotLocked は観測値を作成する（ロック済み前提）
func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:        s.id,
		State:     s.state,
		Supported: IsSupportedEnvironment(s.env),
		Error:     s.err,
		Image:     s.image,
	}
	if s.handle != nil {
		snap.DeviceID = s.handle.ID()
	}
	return snap
}

// publishLocked は購読者へ現在の観測値を通知する（ロック済み前提）
func (s *Session) publishLocked() {
	if len(s.subscribers) == 0 {
		return
	}

	snap := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			// チャンネルがフルの場合は古い通知を破棄する
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func userAgentOf(env Environment) string {
	if env == nil {
		return ""
	}
	return env.UserAgent()
}
