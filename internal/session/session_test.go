package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"io/fs"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	desktopChromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	androidChromeUA = "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Mobile Safari/537.36"
	firefoxUA       = "Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0"
)

// switchableEnv はテスト中に切り替え可能な Environment
type switchableEnv struct {
	mu     sync.Mutex
	ua     string
	vendor string
}

func (e *switchableEnv) UserAgent() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ua
}

func (e *switchableEnv) Vendor() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vendor
}

func (e *switchableEnv) set(ua, vendor string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ua = ua
	e.vendor = vendor
}

func chromeEnv() *switchableEnv {
	return &switchableEnv{ua: desktopChromeUA, vendor: "Google Inc."}
}

func quietLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func newTestSession(env Environment) (*Session, *MockAcquirer, *MockRenderer) {
	acquirer := NewMockAcquirer()
	renderer := NewMockRenderer(640, 480)
	s := New(env, acquirer, WithLogger(quietLogger()))
	return s, acquirer, renderer
}

// openReady はセッションを Ready 状態にする
func openReady(t *testing.T, s *Session, r *MockRenderer, width, height int) {
	t.Helper()

	s.BindRenderer(r)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	s.OnRendererMetadataReady(width, height)
	if got := s.State(); got != StateReady {
		t.Fatalf("Expected state %s, got %s", StateReady, got)
	}
}

func waitStarted(t *testing.T, a *MockAcquirer) {
	t.Helper()
	select {
	case <-a.Started():
	case <-time.After(2 * time.Second):
		t.Fatal("Acquire was not called")
	}
}

func TestSession_InitialState(t *testing.T) {
	s, _, _ := newTestSession(chromeEnv())

	snap := s.Observe()
	if snap.State != StateClosed {
		t.Errorf("Expected initial state %s, got %s", StateClosed, snap.State)
	}
	if snap.Error != nil || snap.Image != nil {
		t.Errorf("Expected no error and no image, got %+v", snap)
	}
	if snap.ID == "" {
		t.Error("Expected session ID to be set")
	}
}

func TestSession_UnsupportedEnvironment(t *testing.T) {
	env := &switchableEnv{ua: firefoxUA}
	s, acquirer, _ := newTestSession(env)

	if s.IsSupported() {
		t.Fatal("Expected Firefox to be unsupported")
	}

	err := s.Open(context.Background())
	if kind, _ := KindOf(err); kind != KindUnsupportedEnvironment {
		t.Fatalf("Expected %s, got %v", KindUnsupportedEnvironment, err)
	}
	if len(acquirer.Calls()) != 0 {
		t.Errorf("Expected no acquisition, got %d calls", len(acquirer.Calls()))
	}
	if s.State() != StateClosed {
		t.Errorf("Expected state %s, got %s", StateClosed, s.State())
	}
	if lastErr := s.LastError(); lastErr == nil || lastErr.Kind != KindUnsupportedEnvironment {
		t.Errorf("Expected last error %s, got %v", KindUnsupportedEnvironment, lastErr)
	}
}

func TestSession_UnsupportedOpenKeepsExistingDevice(t *testing.T) {
	env := chromeEnv()
	s, acquirer, r := newTestSession(env)
	s.BindRenderer(r)

	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	handle := acquirer.Issued()[0]

	env.set(firefoxUA, "")
	err := s.Open(context.Background())
	if kind, _ := KindOf(err); kind != KindUnsupportedEnvironment {
		t.Fatalf("Expected %s, got %v", KindUnsupportedEnvironment, err)
	}

	if !handle.Live() {
		t.Error("Existing device must not be touched by an unsupported open")
	}
	if s.State() != StateBoundWaitingMetadata {
		t.Errorf("Expected state to stay %s, got %s", StateBoundWaitingMetadata, s.State())
	}
}

func TestSession_OpenMetadataCapture(t *testing.T) {
	s, acquirer, r := newTestSession(chromeEnv())

	openReady(t, s, r, 640, 480)
	handle := acquirer.Issued()[0]

	img, err := s.Capture()
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	if img.Dimensions != (Dimensions{Width: 640, Height: 480}) {
		t.Errorf("Expected 640x480, got %+v", img.Dimensions)
	}
	if handle.Live() {
		t.Error("Expected device to be released after capture")
	}
	if s.State() != StateClosed {
		t.Errorf("Expected state %s, got %s", StateClosed, s.State())
	}
	if r.Attached() != nil {
		t.Error("Expected renderer feed to be detached after capture")
	}
	if !r.LiveAtSnapshot() {
		t.Error("Frame must be taken before the device is stopped")
	}
	if s.Image() != img {
		t.Error("Expected captured image to be stored")
	}

	mimeType, data, err := DecodeDataURL(img.DataURL)
	if err != nil {
		t.Fatalf("DecodeDataURL failed: %v", err)
	}
	if mimeType != PNGMIMEType {
		t.Errorf("Expected %s, got %s", PNGMIMEType, mimeType)
	}
	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("png.Decode failed: %v", err)
	}
	if decoded.Bounds().Dx() != 640 || decoded.Bounds().Dy() != 480 {
		t.Errorf("Unexpected decoded bounds %v", decoded.Bounds())
	}
}

func TestSession_EncodeHappensBeforeStop(t *testing.T) {
	var liveDuringEncode bool
	var handle *MockHandle

	acquirer := NewMockAcquirer()
	r := NewMockRenderer(320, 240)
	s := New(chromeEnv(), acquirer,
		WithLogger(quietLogger()),
		WithEncoder(func(img image.Image) (string, error) {
			liveDuringEncode = handle.Live()
			return EncodePNGDataURL(img)
		}),
	)

	s.BindRenderer(r)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	handle = acquirer.Issued()[0]
	s.OnRendererMetadataReady(320, 240)

	if _, err := s.Capture(); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if !liveDuringEncode {
		t.Error("Expected device to be live while encoding")
	}
	if handle.Live() {
		t.Error("Expected device to be stopped after encoding")
	}
}

func TestSession_CaptureNotReady(t *testing.T) {
	testCases := []struct {
		name  string
		setup func(s *Session, r *MockRenderer)
		state State
	}{
		{
			name:  "初期状態",
			setup: func(s *Session, r *MockRenderer) {},
			state: StateClosed,
		},
		{
			name: "レンダラー未結合",
			setup: func(s *Session, r *MockRenderer) {
				_ = s.Open(context.Background())
			},
			state: StateUnbound,
		},
		{
			name: "メタデータ待ち",
			setup: func(s *Session, r *MockRenderer) {
				s.BindRenderer(r)
				_ = s.Open(context.Background())
			},
			state: StateBoundWaitingMetadata,
		},
		{
			name: "Ready後にレンダラーを外した",
			setup: func(s *Session, r *MockRenderer) {
				s.BindRenderer(r)
				_ = s.Open(context.Background())
				s.OnRendererMetadataReady(640, 480)
				s.BindRenderer(nil)
			},
			state: StateUnbound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, acquirer, r := newTestSession(chromeEnv())
			tc.setup(s, r)

			liveBefore := acquirer.LiveHandles()
			imageBefore := s.Image()

			img, err := s.Capture()
			if img != nil {
				t.Error("Expected no image")
			}
			if kind, _ := KindOf(err); kind != KindNotReady {
				t.Fatalf("Expected %s, got %v", KindNotReady, err)
			}
			if s.State() != tc.state {
				t.Errorf("Expected state %s, got %s", tc.state, s.State())
			}
			if s.Image() != imageBefore {
				t.Error("Captured image must not change on NotReady")
			}
			if acquirer.LiveHandles() != liveBefore {
				t.Error("Device state must not change on NotReady")
			}
		})
	}
}

func TestSession_CaptureNotReadyKeepsPreviousImage(t *testing.T) {
	s, _, r := newTestSession(chromeEnv())
	openReady(t, s, r, 640, 480)

	first, err := s.Capture()
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	if _, err := s.Capture(); err == nil {
		t.Fatal("Expected second capture to fail")
	}
	if s.Image() != first {
		t.Error("Expected previous image to be kept")
	}
}

func TestSession_InvalidMetadataNeverReady(t *testing.T) {
	testCases := []struct {
		width, height int
	}{
		{0, 480},
		{640, 0},
		{0, 0},
		{-1, 480},
		{640, -1},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%dx%d", tc.width, tc.height), func(t *testing.T) {
			s, _, r := newTestSession(chromeEnv())
			s.BindRenderer(r)
			if err := s.Open(context.Background()); err != nil {
				t.Fatalf("Open failed: %v", err)
			}

			s.OnRendererMetadataReady(tc.width, tc.height)

			if s.State() != StateBoundWaitingMetadata {
				t.Errorf("Expected state %s, got %s", StateBoundWaitingMetadata, s.State())
			}
			if s.LastError() != nil {
				t.Errorf("Expected no error, got %v", s.LastError())
			}
		})
	}
}

func TestSession_CloseIdempotent(t *testing.T) {
	setups := map[string]func(s *Session, r *MockRenderer){
		"closed": func(s *Session, r *MockRenderer) {},
		"unbound": func(s *Session, r *MockRenderer) {
			_ = s.Open(context.Background())
		},
		"waiting": func(s *Session, r *MockRenderer) {
			s.BindRenderer(r)
			_ = s.Open(context.Background())
		},
		"ready": func(s *Session, r *MockRenderer) {
			s.BindRenderer(r)
			_ = s.Open(context.Background())
			s.OnRendererMetadataReady(640, 480)
		},
		"captured": func(s *Session, r *MockRenderer) {
			s.BindRenderer(r)
			_ = s.Open(context.Background())
			s.OnRendererMetadataReady(640, 480)
			_, _ = s.Capture()
		},
		"error": func(s *Session, r *MockRenderer) {
			s.BindRenderer(r)
			_ = s.Open(context.Background())
			s.OnRendererPlaybackError("decode failed")
		},
	}

	for name, setup := range setups {
		t.Run(name, func(t *testing.T) {
			s, acquirer, r := newTestSession(chromeEnv())
			setup(s, r)

			s.Close()
			once := s.Observe()
			s.Close()
			twice := s.Observe()

			if once.State != StateClosed || twice.State != StateClosed {
				t.Errorf("Expected closed state, got %s / %s", once.State, twice.State)
			}
			if once.Error != nil || twice.Error != nil {
				t.Error("Expected error to be cleared")
			}
			if once.Image != nil || twice.Image != nil {
				t.Error("Expected image to be cleared")
			}
			if once.DeviceID != twice.DeviceID || twice.DeviceID != "" {
				t.Errorf("Expected no device, got %q / %q", once.DeviceID, twice.DeviceID)
			}
			if acquirer.LiveHandles() != 0 {
				t.Errorf("Expected no live handles, got %d", acquirer.LiveHandles())
			}
			if r.Attached() != nil {
				t.Error("Expected renderer feed to be detached")
			}
		})
	}
}

func TestSession_AtMostOneLiveHandle(t *testing.T) {
	s, acquirer, r := newTestSession(chromeEnv())
	s.BindRenderer(r)

	ops := []string{"open", "open", "close", "open", "open", "open", "close", "close", "open"}
	for i, op := range ops {
		switch op {
		case "open":
			if err := s.Open(context.Background()); err != nil {
				t.Fatalf("step %d: Open failed: %v", i, err)
			}
		case "close":
			s.Close()
		}

		if live := acquirer.LiveHandles(); live > 1 {
			t.Fatalf("step %d (%s): %d live handles", i, op, live)
		}
	}

	if len(acquirer.Issued()) != 6 {
		t.Errorf("Expected 6 acquisitions, got %d", len(acquirer.Issued()))
	}
	if acquirer.LiveHandles() != 1 {
		t.Errorf("Expected last handle to stay live, got %d", acquirer.LiveHandles())
	}
}

func TestSession_ClosePendingOpen(t *testing.T) {
	s, acquirer, r := newTestSession(chromeEnv())
	acquirer.SetGated(true)
	s.BindRenderer(r)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Open(context.Background())
	}()
	waitStarted(t, acquirer)

	if s.State() != StateUnbound {
		t.Errorf("Expected pending state %s, got %s", StateUnbound, s.State())
	}

	s.Close()

	handle, ok := acquirer.Resolve(nil, nil)
	if !ok {
		t.Fatal("No pending acquisition")
	}

	if err := <-errCh; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("Expected ErrSuperseded, got %v", err)
	}
	if HasLiveTracks(handle) {
		t.Error("Late handle must be stopped immediately")
	}
	if s.State() != StateClosed {
		t.Errorf("Expected state %s, got %s", StateClosed, s.State())
	}
	if r.Attached() != nil {
		t.Error("Late handle must not be attached to the renderer")
	}
	if acquirer.LiveHandles() != 0 {
		t.Errorf("Expected no live handles, got %d", acquirer.LiveHandles())
	}
}

func TestSession_LaterOpenWins(t *testing.T) {
	s, acquirer, r := newTestSession(chromeEnv())
	acquirer.SetGated(true)
	s.BindRenderer(r)

	firstErr := make(chan error, 1)
	go func() { firstErr <- s.Open(context.Background()) }()
	waitStarted(t, acquirer)

	secondErr := make(chan error, 1)
	go func() { secondErr <- s.Open(context.Background()) }()
	waitStarted(t, acquirer)

	stale, _ := acquirer.Resolve(nil, nil)
	if err := <-firstErr; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("Expected first open to be superseded, got %v", err)
	}
	if HasLiveTracks(stale) {
		t.Error("Stale handle must be stopped")
	}

	fresh, _ := acquirer.Resolve(nil, nil)
	if err := <-secondErr; err != nil {
		t.Fatalf("Second open failed: %v", err)
	}
	if r.Attached() != fresh {
		t.Error("Expected the newest handle to be attached")
	}
	if s.State() != StateBoundWaitingMetadata {
		t.Errorf("Expected state %s, got %s", StateBoundWaitingMetadata, s.State())
	}
}

func TestSession_LaterOpenFailureWins(t *testing.T) {
	s, acquirer, r := newTestSession(chromeEnv())
	acquirer.SetGated(true)
	s.BindRenderer(r)

	firstErr := make(chan error, 1)
	go func() { firstErr <- s.Open(context.Background()) }()
	waitStarted(t, acquirer)

	secondErr := make(chan error, 1)
	go func() { secondErr <- s.Open(context.Background()) }()
	waitStarted(t, acquirer)

	// 古い方が後から成功しても、新しい方の失敗が残る
	if _, ok := acquirer.Resolve(nil, nil); !ok {
		t.Fatal("No pending acquisition")
	}
	<-firstErr

	if _, ok := acquirer.Resolve(nil, ErrNotAllowed); !ok {
		t.Fatal("No pending acquisition")
	}
	err := <-secondErr
	if kind, _ := KindOf(err); kind != KindPermissionDenied {
		t.Fatalf("Expected %s, got %v", KindPermissionDenied, err)
	}
	if s.State() != StateClosed {
		t.Errorf("Expected state %s, got %s", StateClosed, s.State())
	}
	if acquirer.LiveHandles() != 0 {
		t.Errorf("Expected no live handles, got %d", acquirer.LiveHandles())
	}
}

func TestSession_RenderErrorWhileWaiting(t *testing.T) {
	s, _, r := newTestSession(chromeEnv())
	s.BindRenderer(r)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	s.OnRendererPlaybackError("play() rejected")

	if s.State() != StateBoundWaitingMetadata {
		t.Errorf("Expected state %s, got %s", StateBoundWaitingMetadata, s.State())
	}
	lastErr := s.LastError()
	if lastErr == nil || lastErr.Kind != KindRenderError {
		t.Fatalf("Expected %s, got %v", KindRenderError, lastErr)
	}
	if !strings.Contains(lastErr.Error(), "play() rejected") {
		t.Errorf("Expected cause in error message, got %q", lastErr.Error())
	}
}

func TestSession_RenderErrorRevokesReady(t *testing.T) {
	s, _, r := newTestSession(chromeEnv())
	openReady(t, s, r, 640, 480)

	s.OnRendererPlaybackError("stalled")
	if s.State() != StateBoundWaitingMetadata {
		t.Fatalf("Expected state %s, got %s", StateBoundWaitingMetadata, s.State())
	}

	if _, err := s.Capture(); err == nil {
		t.Fatal("Expected capture to fail after a render error")
	}

	s.OnRendererMetadataReady(640, 480)
	if s.State() != StateReady {
		t.Errorf("Expected metadata to restore %s, got %s", StateReady, s.State())
	}
}

func TestSession_AcquisitionErrorMapping(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		kind ErrorKind
	}{
		{"許可なし", fmt.Errorf("getUserMedia: %w", ErrNotAllowed), KindPermissionDenied},
		{"EACCES", &fs.PathError{Op: "open", Path: "/dev/video0", Err: syscall.EACCES}, KindPermissionDenied},
		{"デバイスなし", ErrNotFound, KindDeviceNotFound},
		{"ENOENT", &fs.PathError{Op: "open", Path: "/dev/video9", Err: syscall.ENOENT}, KindDeviceNotFound},
		{"中断", ErrAborted, KindAcquisitionAborted},
		{"キャンセル", context.Canceled, KindAcquisitionAborted},
		{"使用中", fmt.Errorf("open: %w", syscall.EBUSY), KindHardwareUnavailable},
		{"読み取り不可", ErrNotReadable, KindHardwareUnavailable},
		{"条件", ErrOverconstrained, KindConstraintUnsatisfiable},
		{"不明", errors.New("boom"), KindUnknownAcquisitionFailure},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, acquirer, r := newTestSession(chromeEnv())
			s.BindRenderer(r)
			acquirer.SetFailWith(tc.err)

			err := s.Open(context.Background())
			if kind, _ := KindOf(err); kind != tc.kind {
				t.Fatalf("Expected %s, got %v", tc.kind, err)
			}
			if !errors.Is(err, tc.err) {
				t.Error("Expected platform error to be kept as cause")
			}
			if s.State() != StateClosed {
				t.Errorf("Expected state %s, got %s", StateClosed, s.State())
			}
			if s.Observe().DeviceID != "" {
				t.Error("Expected no device to be retained")
			}
		})
	}
}

func TestSession_OpenFailureReleasesPreviousDevice(t *testing.T) {
	s, acquirer, r := newTestSession(chromeEnv())
	s.BindRenderer(r)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	first := acquirer.Issued()[0]

	acquirer.SetFailWith(ErrNotReadable)
	if err := s.Open(context.Background()); err == nil {
		t.Fatal("Expected second open to fail")
	}

	if first.Live() {
		t.Error("Expected previous device to be stopped")
	}
	if acquirer.LiveHandles() != 0 {
		t.Errorf("Expected no live handles, got %d", acquirer.LiveHandles())
	}
}

func TestSession_EncodeFailure(t *testing.T) {
	s, acquirer, r := newTestSession(chromeEnv())
	openReady(t, s, r, 640, 480)
	r.SetSnapshotError(errors.New("canvas unavailable"))

	img, err := s.Capture()
	if img != nil {
		t.Error("Expected no image")
	}
	if kind, _ := KindOf(err); kind != KindEncodeFailure {
		t.Fatalf("Expected %s, got %v", KindEncodeFailure, err)
	}
	if s.State() != StateReady {
		t.Errorf("Expected state %s, got %s", StateReady, s.State())
	}
	if acquirer.LiveHandles() != 1 {
		t.Error("Expected device to be kept for a retry")
	}

	r.SetSnapshotError(nil)
	if _, err := s.Capture(); err != nil {
		t.Fatalf("Retry capture failed: %v", err)
	}
}

func TestSession_BindRendererMidOpen(t *testing.T) {
	s, acquirer, r := newTestSession(chromeEnv())
	acquirer.SetGated(true)
	s.BindRenderer(r)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Open(context.Background()) }()
	waitStarted(t, acquirer)

	s.BindRenderer(nil)
	handle, _ := acquirer.Resolve(nil, nil)
	if err := <-errCh; err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if s.State() != StateUnbound {
		t.Errorf("Expected state %s, got %s", StateUnbound, s.State())
	}
	if r.Attached() != nil {
		t.Error("Detached renderer must not receive the device")
	}

	s.BindRenderer(r)
	if r.Attached() != handle {
		t.Error("Expected handle to be attached on bind")
	}
	if s.State() != StateBoundWaitingMetadata {
		t.Errorf("Expected state %s, got %s", StateBoundWaitingMetadata, s.State())
	}
}

func TestSession_BindRendererWithoutDevice(t *testing.T) {
	s, _, r := newTestSession(chromeEnv())

	s.BindRenderer(r)

	if r.DetachCount() != 1 {
		t.Errorf("Expected surface feed to be cleared, got %d detaches", r.DetachCount())
	}
	if s.State() != StateClosed {
		t.Errorf("Expected state %s, got %s", StateClosed, s.State())
	}
}

func TestSession_ReplaceRenderer(t *testing.T) {
	s, _, first := newTestSession(chromeEnv())
	openReady(t, s, first, 640, 480)

	second := NewMockRenderer(640, 480)
	s.BindRenderer(second)

	if first.Attached() != nil {
		t.Error("Expected previous renderer to be detached")
	}
	if second.Attached() == nil {
		t.Error("Expected new renderer to receive the device")
	}
	if s.State() != StateBoundWaitingMetadata {
		t.Errorf("Expected readiness to be reconfirmed, got %s", s.State())
	}
}

func TestSession_FacingModePreference(t *testing.T) {
	testCases := []struct {
		name   string
		ua     string
		facing FacingMode
	}{
		{"デスクトップ", desktopChromeUA, FacingUser},
		{"Android", androidChromeUA, FacingEnvironment},
		{"iOS Chrome", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) CriOS/124.0.6367.88 Mobile/15E148 Safari/604.1", FacingEnvironment},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			acquirer := NewMockAcquirer()
			s := New(&switchableEnv{ua: tc.ua, vendor: "Google Inc."}, acquirer,
				WithLogger(quietLogger()), WithPreferredSize(1280, 720))

			if err := s.Open(context.Background()); err != nil {
				t.Fatalf("Open failed: %v", err)
			}

			calls := acquirer.Calls()
			if len(calls) != 1 {
				t.Fatalf("Expected 1 call, got %d", len(calls))
			}
			if calls[0].FacingMode != tc.facing {
				t.Errorf("Expected facing %s, got %s", tc.facing, calls[0].FacingMode)
			}
			if calls[0].Width != 1280 || calls[0].Height != 720 {
				t.Errorf("Expected preferred size 1280x720, got %dx%d", calls[0].Width, calls[0].Height)
			}
		})
	}
}

func TestSession_OpenClearsStaleImage(t *testing.T) {
	s, _, r := newTestSession(chromeEnv())
	openReady(t, s, r, 640, 480)
	if _, err := s.Capture(); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if s.Image() != nil {
		t.Error("Expected stale image to be cleared by open")
	}
}

func TestSession_ClearError(t *testing.T) {
	s, _, r := newTestSession(chromeEnv())
	s.BindRenderer(r)
	_ = s.Open(context.Background())
	s.OnRendererPlaybackError("boom")

	s.ClearError()

	if s.LastError() != nil {
		t.Error("Expected error to be cleared")
	}
	if s.State() != StateBoundWaitingMetadata {
		t.Errorf("ClearError must not change state, got %s", s.State())
	}
}

func TestSession_Subscribe(t *testing.T) {
	s, _, r := newTestSession(chromeEnv())
	ch, unsubscribe := s.Subscribe()
	defer unsubscribe()

	initial := <-ch
	if initial.State != StateClosed {
		t.Fatalf("Expected initial snapshot %s, got %s", StateClosed, initial.State)
	}

	openReady(t, s, r, 640, 480)

	var last Snapshot
	timeout := time.After(2 * time.Second)
	for last.State != StateReady {
		select {
		case last = <-ch:
		case <-timeout:
			t.Fatalf("Did not observe %s, last %s", StateReady, last.State)
		}
	}
}

func TestSession_RenderErrorWithoutDeviceIgnored(t *testing.T) {
	s, _, r := newTestSession(chromeEnv())
	openReady(t, s, r, 640, 480)
	if _, err := s.Capture(); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	// 停止済みの映像から遅れて届いた通知
	s.OnRendererPlaybackError("stream ended")

	if s.LastError() != nil {
		t.Errorf("Expected late render error to be ignored, got %v", s.LastError())
	}
	if s.State() != StateClosed {
		t.Errorf("Expected state %s, got %s", StateClosed, s.State())
	}
}

func TestSession_OpenForUsesCallerEnvironment(t *testing.T) {
	// セッション既定の環境は未対応
	s, acquirer, r := newTestSession(&switchableEnv{ua: firefoxUA})
	s.BindRenderer(r)

	mobile := StaticEnvironment{UA: androidChromeUA, VendorName: "Google Inc."}
	if err := s.OpenFor(context.Background(), mobile); err != nil {
		t.Fatalf("OpenFor failed: %v", err)
	}
	calls := acquirer.Calls()
	if len(calls) != 1 || calls[0].FacingMode != FacingEnvironment {
		t.Fatalf("Expected one acquisition facing %s, got %+v", FacingEnvironment, calls)
	}

	// 既定の環境が対応していても呼び出し元の環境で判定する
	s2, acquirer2, _ := newTestSession(chromeEnv())
	err := s2.OpenFor(context.Background(), StaticEnvironment{UA: firefoxUA})
	if kind, _ := KindOf(err); kind != KindUnsupportedEnvironment {
		t.Fatalf("Expected %s, got %v", KindUnsupportedEnvironment, err)
	}
	if len(acquirer2.Calls()) != 0 {
		t.Errorf("Expected no acquisition, got %d calls", len(acquirer2.Calls()))
	}
}
