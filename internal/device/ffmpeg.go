package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"shashin/internal/session"
)

// maxFrameBuffer を超えてもフレームが完成しない場合はバッファを破棄する
const maxFrameBuffer = 8 * 1024 * 1024

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// FFmpegAcquirer はV4L2デバイスをffmpegで取得する
type FFmpegAcquirer struct {
	discovery  Discovery
	ffmpegPath string
	device     string // 固定デバイス（空なら自動検出）
	fallback   Resolution
	fps        int
	quality    int
	logger     *logrus.Entry
}

// NewFFmpegAcquirer は新しいFFmpegAcquirerを作成する
func NewFFmpegAcquirer(discovery Discovery, settings Settings) *FFmpegAcquirer {
	ffmpegPath := settings.FFmpegPath
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegAcquirer{
		discovery:  discovery,
		ffmpegPath: ffmpegPath,
		device:     settings.Device,
		fallback:   Resolution{Width: settings.width(), Height: settings.height()},
		fps:        settings.fps(),
		quality:    ffmpegQuality(settings.JPEGQuality),
		logger:     settings.logger().WithField("driver", "ffmpeg"),
	}
}

// Acquire はデバイスを選択し、ffmpegによるストリーミングを開始する
func (a *FFmpegAcquirer) Acquire(ctx context.Context, constraints session.Constraints) (session.DeviceHandle, error) {
	info, err := a.selectDevice(ctx, constraints.FacingMode)
	if err != nil {
		return nil, err
	}

	// 使用中や権限不足をここで検出する
	if err := probeDevice(info.Device); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := NearestResolution(info.Resolutions, constraints.Width, constraints.Height, a.fallback)

	h := newStreamHandle(info.Device, info.Name, nil)
	cmd := exec.CommandContext(h.ctx, a.ffmpegPath, a.args(info.Device, res)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		h.stop()
		return nil, fmt.Errorf("stdoutパイプの作成に失敗: %w", err)
	}
	stderr := &tailBuffer{max: 4096}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		h.stop()
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: ffmpeg が見つかりません: %v", session.ErrNotReadable, err)
		}
		return nil, fmt.Errorf("ffmpegの起動に失敗: %w", err)
	}

	a.logger.WithFields(logrus.Fields{
		"device": info.Device,
		"name":   info.Name,
		"width":  res.Width,
		"height": res.Height,
	}).Info("ffmpegによるストリーミングを開始しました")

	go a.readFrames(h, cmd, stdout, stderr)

	return h, nil
}

// selectDevice は希望する向きに合うデバイスを選ぶ
func (a *FFmpegAcquirer) selectDevice(ctx context.Context, facing session.FacingMode) (DeviceInfo, error) {
	var devices []string
	if a.device != "" {
		devices = []string{a.device}
	} else {
		scanned, err := a.discovery.ScanDevices(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return DeviceInfo{}, ctxErr
			}
			return DeviceInfo{}, fmt.Errorf("デバイスの検出に失敗: %w", err)
		}
		devices = scanned
	}

	infos := make([]DeviceInfo, 0, len(devices))
	for _, device := range devices {
		info, err := a.discovery.GetDeviceInfo(ctx, device)
		if err != nil {
			// 固定デバイスは情報が取れなくても使う
			info = &DeviceInfo{Device: device, Name: device}
		}
		infos = append(infos, *info)
	}

	selected, ok := SelectDevice(infos, facing)
	if !ok {
		return DeviceInfo{}, fmt.Errorf("%w: カメラデバイスが見つかりません", session.ErrNotFound)
	}
	return selected, nil
}

// args はffmpegの引数を組み立てる
func (a *FFmpegAcquirer) args(device string, res Resolution) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "v4l2",
		"-video_size", fmt.Sprintf("%dx%d", res.Width, res.Height),
		"-r", strconv.Itoa(a.fps),
		"-i", device,
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", strconv.Itoa(a.quality),
		"-",
	}
}

// readFrames はffmpegの出力をJPEGフレームに分割して送信する
func (a *FFmpegAcquirer) readFrames(h *StreamHandle, cmd *exec.Cmd, stdout io.Reader, stderr *tailBuffer) {
	defer h.finish()

	var splitter jpegSplitter
	buffer := make([]byte, 64*1024)

	for {
		n, err := stdout.Read(buffer)
		if n > 0 {
			for _, frame := range splitter.Feed(buffer[:n]) {
				if !h.sendFrame(frame) {
					break
				}
			}
		}
		if err != nil {
			break
		}
		if h.ctx.Err() != nil {
			break
		}
	}

	waitErr := cmd.Wait()
	if h.ctx.Err() != nil {
		// 停止による終了
		return
	}

	msg := strings.TrimSpace(stderr.String())
	if waitErr != nil {
		h.sendError(fmt.Errorf("ffmpeg が異常終了しました: %w (stderr: %s)", waitErr, msg))
	} else {
		h.sendError(fmt.Errorf("ffmpeg が終了しました (stderr: %s)", msg))
	}
	a.logger.WithField("device", h.ID()).WithError(waitErr).Warn("ffmpegが予期せず終了しました")
}

// probeDevice はデバイスを開けるか確認する
// 失敗時のエラーは fs.ErrPermission / fs.ErrNotExist / syscall.EBUSY などを保持する
func probeDevice(device string) error {
	file, err := os.OpenFile(device, os.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("デバイスを開けません: %w", err)
	}
	_ = file.Close()
	return nil
}

// ffmpegQuality はJPEG品質(1-100)をffmpegの -q:v (2-31, 小さいほど高品質) に変換する
func ffmpegQuality(quality int) int {
	if quality <= 0 || quality > 100 {
		return 3
	}
	q := 31 - (quality*29)/100
	if q < 2 {
		q = 2
	}
	return q
}

// jpegSplitter はバイト列をJPEGフレームに分割する
type jpegSplitter struct {
	buf []byte
}

// Feed はデータを追加し、完成したフレームを返す
func (s *jpegSplitter) Feed(data []byte) [][]byte {
	s.buf = append(s.buf, data...)

	var frames [][]byte
	for {
		// JPEGの開始マーカー（FF D8）を探す
		start := bytes.Index(s.buf, jpegSOI)
		if start == -1 {
			// マーカーの途中で切れている可能性があるため末尾の FF は残す
			if n := len(s.buf); n > 0 && s.buf[n-1] == 0xFF {
				s.buf = append(s.buf[:0], 0xFF)
			} else {
				s.buf = s.buf[:0]
			}
			return frames
		}

		// JPEGの終了マーカー（FF D9）を探す
		end := bytes.Index(s.buf[start+2:], jpegEOI)
		if end == -1 {
			// 完全なフレームがまだない
			if start > 0 {
				s.buf = append(s.buf[:0], s.buf[start:]...)
			}
			if len(s.buf) > maxFrameBuffer {
				s.buf = s.buf[:0]
			}
			return frames
		}

		// マーカーのサイズを含める
		end += start + 2 + 2
		frame := make([]byte, end-start)
		copy(frame, s.buf[start:end])
		frames = append(frames, frame)

		s.buf = append(s.buf[:0], s.buf[end:]...)
	}
}

// tailBuffer は書き込まれたデータの末尾だけを保持する
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
