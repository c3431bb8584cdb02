package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
)

// MockTrack はテスト用のトラック実装
type MockTrack struct {
	id string
	mu sync.Mutex

	live      bool
	stopCount int
}

// NewMockTrack は新しいMockTrackを作成する
func NewMockTrack(id string) *MockTrack {
	return &MockTrack{id: id, live: true}
}

// ID はトラックIDを返す
func (t *MockTrack) ID() string { return t.id }

// Live はトラックが停止されていないかを返す
func (t *MockTrack) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

// Stop はトラックを停止する
func (t *MockTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.live = false
	t.stopCount++
}

// StopCount はStopが呼ばれた回数を返す
func (t *MockTrack) StopCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopCount
}

// MockHandle はテスト用のデバイスハンドル実装
type MockHandle struct {
	id     string
	tracks []*MockTrack
}

// NewMockHandle は指定数のトラックを持つMockHandleを作成する
func NewMockHandle(id string, trackCount int) *MockHandle {
	h := &MockHandle{id: id}
	for i := 0; i < trackCount; i++ {
		h.tracks = append(h.tracks, NewMockTrack(fmt.Sprintf("%s-track%d", id, i)))
	}
	return h
}

// ID はハンドルIDを返す
func (h *MockHandle) ID() string { return h.id }

// Tracks はトラック一覧を返す
func (h *MockHandle) Tracks() []Track {
	tracks := make([]Track, 0, len(h.tracks))
	for _, t := range h.tracks {
		tracks = append(tracks, t)
	}
	return tracks
}

// Live は停止されていないトラックがあるかを返す
func (h *MockHandle) Live() bool {
	return HasLiveTracks(h)
}

type mockResult struct {
	handle DeviceHandle
	err    error
}

// MockAcquirer はテスト用のデバイス取得実装
// ゲートを有効にすると Resolve が呼ばれるまで Acquire がブロックする
type MockAcquirer struct {
	mu sync.Mutex

	gated    bool
	failWith error
	waiting  []chan mockResult
	started  chan struct{}
	calls    []Constraints
	issued   []*MockHandle
}

// NewMockAcquirer は新しいMockAcquirerを作成する
func NewMockAcquirer() *MockAcquirer {
	return &MockAcquirer{
		started: make(chan struct{}, 64),
	}
}

// Acquire はモックハンドルを返す
func (m *MockAcquirer) Acquire(ctx context.Context, constraints Constraints) (DeviceHandle, error) {
	m.mu.Lock()
	m.calls = append(m.calls, constraints)

	if !m.gated {
		defer m.mu.Unlock()
		m.signalStarted()

		if m.failWith != nil {
			return nil, m.failWith
		}
		return m.issueLocked(), nil
	}

	ch := make(chan mockResult, 1)
	m.waiting = append(m.waiting, ch)
	m.signalStarted()
	m.mu.Unlock()

	select {
	case res := <-ch:
		return res.handle, res.err
	case <-ctx.Done():
		m.mu.Lock()
		for i, w := range m.waiting {
			if w == ch {
				m.waiting = append(m.waiting[:i], m.waiting[i+1:]...)
				break
			}
		}
		m.mu.Unlock()
		return nil, ctx.Err()
	}
}

// SetGated はAcquireをResolveまでブロックさせるかを設定する
func (m *MockAcquirer) SetGated(gated bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gated = gated
}

// SetFailWith はテスト用にAcquireの失敗を設定する
func (m *MockAcquirer) SetFailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// Started はAcquireが呼ばれるたびに通知されるチャンネルを返す
func (m *MockAcquirer) Started() <-chan struct{} {
	return m.started
}

// Resolve は最も古い待機中のAcquireを完了させる
// handle が nil で err も nil の場合は新しいモックハンドルを発行する
func (m *MockAcquirer) Resolve(handle DeviceHandle, err error) (DeviceHandle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.waiting) == 0 {
		return nil, false
	}
	if handle == nil && err == nil {
		handle = m.issueLocked()
	}

	ch := m.waiting[0]
	m.waiting = m.waiting[1:]
	ch <- mockResult{handle: handle, err: err}
	return handle, true
}

// Calls はAcquireに渡された条件の履歴を返す
func (m *MockAcquirer) Calls() []Constraints {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Constraints(nil), m.calls...)
}

// Issued は発行したモックハンドルの一覧を返す
func (m *MockAcquirer) Issued() []*MockHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockHandle(nil), m.issued...)
}

// LiveHandles は停止されていないハンドル数を返す
func (m *MockAcquirer) LiveHandles() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, h := range m.issued {
		if h.Live() {
			count++
		}
	}
	return count
}

func (m *MockAcquirer) issueLocked() *MockHandle {
	h := NewMockHandle(fmt.Sprintf("mock%d", len(m.issued)), 1)
	m.issued = append(m.issued, h)
	return h
}

func (m *MockAcquirer) signalStarted() {
	select {
	case m.started <- struct{}{}:
	default:
	}
}

// MockRenderer はテスト用のレンダラー実装
type MockRenderer struct {
	mu sync.Mutex

	attached    DeviceHandle
	attachCount int
	detachCount int
	frame       image.Image
	snapshotErr error

	// Snapshot 時点でハンドルのトラックが生きていたか
	liveAtSnapshot bool
}

// NewMockRenderer は指定サイズの単色フレームを返すMockRendererを作成する
func NewMockRenderer(width, height int) *MockRenderer {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 0x20, G: 0x80, B: 0xC0, A: 0xFF})
		}
	}
	return &MockRenderer{frame: img}
}

// Attach はハンドルを記録する
func (r *MockRenderer) Attach(handle DeviceHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attached = handle
	r.attachCount++
}

// Detach はハンドルの記録を消す
func (r *MockRenderer) Detach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attached = nil
	r.detachCount++
}

// Snapshot は設定されたフレームを返す
func (r *MockRenderer) Snapshot() (image.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.snapshotErr != nil {
		return nil, r.snapshotErr
	}
	if r.attached == nil {
		return nil, errors.New("モック: 映像が結合されていません")
	}
	r.liveAtSnapshot = HasLiveTracks(r.attached)
	return r.frame, nil
}

// Attached は現在結合されているハンドルを返す
func (r *MockRenderer) Attached() DeviceHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attached
}

// AttachCount はAttachが呼ばれた回数を返す
func (r *MockRenderer) AttachCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attachCount
}

// DetachCount はDetachが呼ばれた回数を返す
func (r *MockRenderer) DetachCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.detachCount
}

// LiveAtSnapshot は直近のSnapshot時点でトラックが生きていたかを返す
func (r *MockRenderer) LiveAtSnapshot() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.liveAtSnapshot
}

// SetSnapshotError はテスト用にSnapshotの失敗を設定する
func (r *MockRenderer) SetSnapshotError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshotErr = err
}
