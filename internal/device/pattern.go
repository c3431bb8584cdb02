package device

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"shashin/internal/session"
)

// barColors はテストパターンのカラーバー
var barColors = []color.RGBA{
	{R: 0xC0, G: 0xC0, B: 0xC0, A: 0xFF},
	{R: 0xC0, G: 0xC0, B: 0x00, A: 0xFF},
	{R: 0x00, G: 0xC0, B: 0xC0, A: 0xFF},
	{R: 0x00, G: 0xC0, B: 0x00, A: 0xFF},
	{R: 0xC0, G: 0x00, B: 0xC0, A: 0xFF},
	{R: 0xC0, G: 0x00, B: 0x00, A: 0xFF},
	{R: 0x00, G: 0x00, B: 0xC0, A: 0xFF},
}

// PatternAcquirer は物理デバイスの代わりにテストパターンを配信する
type PatternAcquirer struct {
	fallback Resolution
	fps      int
	quality  int
	logger   *logrus.Entry

	count atomic.Uint64
}

// NewPatternAcquirer は新しいPatternAcquirerを作成する
func NewPatternAcquirer(settings Settings) *PatternAcquirer {
	return &PatternAcquirer{
		fallback: Resolution{Width: settings.width(), Height: settings.height()},
		fps:      settings.fps(),
		quality:  settings.jpegQuality(),
		logger:   settings.logger().WithField("driver", "mock"),
	}
}

// Acquire はテストパターンを配信するハンドルを返す
func (a *PatternAcquirer) Acquire(ctx context.Context, constraints session.Constraints) (session.DeviceHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := a.fallback
	if constraints.Width > 0 && constraints.Height > 0 {
		res = Resolution{Width: constraints.Width, Height: constraints.Height}
	}

	n := a.count.Add(1)
	id := fmt.Sprintf("pattern%d", n)
	label := fmt.Sprintf("テストパターン (%s)", constraints.FacingMode)
	h := newStreamHandle(id, label, nil)

	go a.produce(h, res)

	a.logger.WithFields(logrus.Fields{
		"device": id,
		"width":  res.Width,
		"height": res.Height,
	}).Info("テストパターンの配信を開始しました")
	return h, nil
}

// produce はフレームレートに合わせてテストパターンを送信する
func (a *PatternAcquirer) produce(h *StreamHandle, res Resolution) {
	defer h.finish()

	ticker := time.NewTicker(time.Second / time.Duration(a.fps))
	defer ticker.Stop()

	var frameIndex int
	for {
		frame, err := PatternFrame(res.Width, res.Height, frameIndex, a.quality)
		if err != nil {
			h.sendError(fmt.Errorf("テストパターンの生成に失敗: %w", err))
			return
		}
		if !h.sendFrame(frame) {
			return
		}
		frameIndex++

		select {
		case <-h.Done():
			return
		case <-ticker.C:
		}
	}
}

// PatternFrame はカラーバーのJPEGフレームを生成する。offset でバーが横に流れる
func PatternFrame(width, height, offset, quality int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("無効なフレームサイズ: %dx%d", width, height)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	barWidth := width / len(barColors)
	if barWidth == 0 {
		barWidth = 1
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			idx := ((x + offset*4) / barWidth) % len(barColors)
			img.SetRGBA(x, y, barColors[idx])
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
