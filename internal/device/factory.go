package device

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"shashin/internal/session"
)

// Settings は取得実装の作成設定
type Settings struct {
	Device      string // デバイスパス（空なら自動検出）
	Width       int    // 希望が無い場合の幅
	Height      int    // 希望が無い場合の高さ
	FPS         int    // フレームレート
	JPEGQuality int    // JPEG品質 (1-100)
	FFmpegPath  string // ffmpeg 実行ファイル
	Logger      *logrus.Entry
}

func (s Settings) width() int {
	if s.Width > 0 {
		return s.Width
	}
	return 1280
}

func (s Settings) height() int {
	if s.Height > 0 {
		return s.Height
	}
	return 720
}

func (s Settings) fps() int {
	if s.FPS > 0 {
		return s.FPS
	}
	return 15
}

func (s Settings) jpegQuality() int {
	if s.JPEGQuality > 0 && s.JPEGQuality <= 100 {
		return s.JPEGQuality
	}
	return 80
}

func (s Settings) logger() *logrus.Entry {
	if s.Logger != nil {
		return s.Logger
	}
	return logrus.WithField("component", "device")
}

// Creator は取得実装の作成関数の型
type Creator func(settings Settings) (session.Acquirer, error)

// Factory はドライバー名から取得実装を作成する
type Factory struct {
	creators map[string]Creator
}

// NewFactory は標準のドライバーを登録したファクトリーを作成する
func NewFactory() *Factory {
	f := &Factory{
		creators: make(map[string]Creator),
	}

	f.Register("ffmpeg", func(settings Settings) (session.Acquirer, error) {
		return NewFFmpegAcquirer(NewLinuxDiscovery(), settings), nil
	})
	f.Register("mediadevices", func(settings Settings) (session.Acquirer, error) {
		return NewMediaDevicesAcquirer(settings), nil
	})
	f.Register("mock", func(settings Settings) (session.Acquirer, error) {
		return NewPatternAcquirer(settings), nil
	})

	return f
}

// Register は作成関数を登録する
func (f *Factory) Register(driver string, creator Creator) {
	f.creators[driver] = creator
}

// Create は取得実装を作成する
func (f *Factory) Create(driver string, settings Settings) (session.Acquirer, error) {
	creator, exists := f.creators[driver]
	if !exists {
		return nil, fmt.Errorf("サポートされていないドライバー: %s", driver)
	}
	return creator(settings)
}

// SupportedDrivers は登録されているドライバー名を返す
func (f *Factory) SupportedDrivers() []string {
	drivers := make([]string, 0, len(f.creators))
	for driver := range f.creators {
		drivers = append(drivers, driver)
	}
	sort.Strings(drivers)
	return drivers
}
