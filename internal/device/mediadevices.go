package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"strings"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/sirupsen/logrus"

	"shashin/internal/session"
)

// MediaDevicesAcquirer は pion/mediadevices でデバイスを取得する
type MediaDevicesAcquirer struct {
	fallback Resolution
	quality  int
	logger   *logrus.Entry

	// テスト用に差し替える
	enumerate    func() []mediadevices.MediaDeviceInfo
	getUserMedia func(mediadevices.MediaStreamConstraints) (mediadevices.MediaStream, error)
}

// NewMediaDevicesAcquirer は新しいMediaDevicesAcquirerを作成する
func NewMediaDevicesAcquirer(settings Settings) *MediaDevicesAcquirer {
	return &MediaDevicesAcquirer{
		fallback:     Resolution{Width: settings.width(), Height: settings.height()},
		quality:      settings.jpegQuality(),
		logger:       settings.logger().WithField("driver", "mediadevices"),
		enumerate:    mediadevices.EnumerateDevices,
		getUserMedia: mediadevices.GetUserMedia,
	}
}

type userMediaResult struct {
	stream mediadevices.MediaStream
	err    error
}

// Acquire は希望する向きに合うカメラを選び、映像トラックを取得する
func (a *MediaDevicesAcquirer) Acquire(ctx context.Context, constraints session.Constraints) (session.DeviceHandle, error) {
	info, ok := selectMediaDevice(a.enumerate(), constraints.FacingMode)
	if !ok {
		return nil, fmt.Errorf("%w: ビデオ入力デバイスが見つかりません", session.ErrNotFound)
	}

	width, height := a.fallback.Width, a.fallback.Height
	if constraints.Width > 0 && constraints.Height > 0 {
		width, height = constraints.Width, constraints.Height
	}

	// GetUserMedia はキャンセルできないため別ゴルーチンで待つ
	resultCh := make(chan userMediaResult, 1)
	go func() {
		stream, err := a.getUserMedia(mediadevices.MediaStreamConstraints{
			Video: func(c *mediadevices.MediaTrackConstraints) {
				c.DeviceID = prop.String(info.DeviceID)
				c.Width = prop.Int(width)
				c.Height = prop.Int(height)
			},
		})
		resultCh <- userMediaResult{stream: stream, err: err}
	}()

	var res userMediaResult
	select {
	case res = <-resultCh:
	case <-ctx.Done():
		// 後から届いたストリームは必ず閉じる
		go func() {
			if late := <-resultCh; late.stream != nil {
				closeStream(late.stream)
			}
		}()
		return nil, ctx.Err()
	}

	if res.err != nil {
		return nil, classifyMediaError(res.err)
	}

	tracks := res.stream.GetVideoTracks()
	if len(tracks) == 0 {
		closeStream(res.stream)
		return nil, fmt.Errorf("%w: 映像トラックがありません", session.ErrNotReadable)
	}
	videoTrack, ok := tracks[0].(*mediadevices.VideoTrack)
	if !ok {
		closeStream(res.stream)
		return nil, fmt.Errorf("%w: 映像トラックを読み取れません", session.ErrNotReadable)
	}

	stream := res.stream
	h := newStreamHandle(info.DeviceID, info.Label, func() {
		closeStream(stream)
	})
	go a.readFrames(h, videoTrack)

	a.logger.WithFields(logrus.Fields{
		"device": info.DeviceID,
		"label":  info.Label,
		"width":  width,
		"height": height,
	}).Info("カメラ映像の取得を開始しました")
	return h, nil
}

// readFrames はトラックのフレームをJPEGにして送信する
func (a *MediaDevicesAcquirer) readFrames(h *StreamHandle, track *mediadevices.VideoTrack) {
	defer h.finish()

	reader := track.NewReader(false)
	opts := &jpeg.Options{Quality: a.quality}

	for h.ctx.Err() == nil {
		img, release, err := reader.Read()
		if err != nil {
			if h.ctx.Err() == nil {
				h.sendError(fmt.Errorf("フレームの読み取りに失敗: %w", err))
			}
			return
		}

		var buf bytes.Buffer
		encErr := jpeg.Encode(&buf, img, opts)
		release()
		if encErr != nil {
			a.logger.WithError(encErr).Debug("フレームのエンコードに失敗しました")
			continue
		}

		if !h.sendFrame(buf.Bytes()) {
			return
		}
	}
}

// selectMediaDevice はビデオ入力の中から希望する向きに合うものを選ぶ
func selectMediaDevice(devices []mediadevices.MediaDeviceInfo, facing session.FacingMode) (mediadevices.MediaDeviceInfo, bool) {
	var video []mediadevices.MediaDeviceInfo
	for _, d := range devices {
		if d.Kind == mediadevices.VideoInput {
			video = append(video, d)
		}
	}
	if len(video) == 0 {
		return mediadevices.MediaDeviceInfo{}, false
	}

	for _, d := range video {
		if facing != "" && FacingOf(d.Label) == facing {
			return d, true
		}
	}
	return video[0], true
}

// classifyMediaError は mediadevices のエラーを取得失敗の分類に対応付ける
// mediadevices は型付きエラーを返さないため、メッセージで判定する
func classifyMediaError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission denied"), strings.Contains(msg, "not permitted"):
		return fmt.Errorf("%w: %v", session.ErrNotAllowed, err)
	case strings.Contains(msg, "no such device"), strings.Contains(msg, "not found"):
		return fmt.Errorf("%w: %v", session.ErrNotFound, err)
	case strings.Contains(msg, "busy"), strings.Contains(msg, "input/output error"):
		return fmt.Errorf("%w: %v", session.ErrNotReadable, err)
	case strings.Contains(msg, "fits the constraints"), strings.Contains(msg, "constraint"):
		return fmt.Errorf("%w: %v", session.ErrOverconstrained, err)
	default:
		return fmt.Errorf("デバイスの取得に失敗: %w", err)
	}
}

// closeStream はストリームの全トラックを閉じる
func closeStream(stream mediadevices.MediaStream) {
	for _, track := range stream.GetTracks() {
		_ = track.Close()
	}
}
