package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPathEnv は設定ファイルのパスを指定する環境変数
const ConfigPathEnv = "SHASHIN_CONFIG"

// サポートするカメラドライバー
const (
	DriverFFmpeg       = "ffmpeg"
	DriverMediaDevices = "mediadevices"
	DriverMock         = "mock"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server ServerConfig `yaml:"server"`
	Camera CameraConfig `yaml:"camera"`
	Auth   AuthConfig   `yaml:"auth"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // 読み込みタイムアウト
	WriteTimeout time.Duration `yaml:"write_timeout"` // 書き込みタイムアウト

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // グレースフルシャットダウンの待ち時間
}

// CameraConfig はカメラ関連の設定
type CameraConfig struct {
	Driver string `yaml:"driver"` // ffmpeg / mediadevices / mock
	Device string `yaml:"device"` // デバイスパス（空なら自動検出）

	// 取得時の希望値（ideal 扱い）
	Width  int `yaml:"width"`  // 画像幅
	Height int `yaml:"height"` // 画像高さ
	FPS    int `yaml:"fps"`    // フレームレート (fps)

	JPEGQuality    int           `yaml:"jpeg_quality"`    // プレビュー用JPEG品質 (1-100)
	AcquireTimeout time.Duration `yaml:"acquire_timeout"` // デバイス取得の待ち時間
	FFmpegPath     string        `yaml:"ffmpeg_path"`     // ffmpeg 実行ファイル
}

// AuthConfig は認証トークンの設定
type AuthConfig struct {
	Secret       string        `yaml:"secret"`        // HS256 の署名鍵
	TokenTTL     time.Duration `yaml:"token_ttl"`     // トークンの有効期間
	SecureCookie bool          `yaml:"secure_cookie"` // Cookie に Secure を付けるか
	Required     bool          `yaml:"required"`      // カメラ操作にトークンを必須とするか
}

// LogConfig はログ出力の設定
type LogConfig struct {
	Level  string `yaml:"level"`  // debug / info / warn / error
	Format string `yaml:"format"` // text / json
}

// Default はデフォルト設定を返す
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    0, // ストリーミング用にタイムアウト無効化
			ShutdownTimeout: 5 * time.Second,
		},
		Camera: CameraConfig{
			Driver:         DriverFFmpeg,
			Width:          1280,
			Height:         720,
			FPS:            15,
			JPEGQuality:    80,
			AcquireTimeout: 30 * time.Second,
			FFmpegPath:     "ffmpeg",
		},
		Auth: AuthConfig{
			Secret:   "your-secret-key",
			TokenTTL: time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load は設定を読み込む
// SHASHIN_CONFIG が指定されていればYAMLファイルを読み込み、その後環境変数で上書きする
func Load() (*Config, error) {
	return LoadFile(os.Getenv(ConfigPathEnv))
}

// LoadFile は指定されたYAMLファイルから設定を読み込む。path が空ならデフォルト値を使う
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("設定ファイルの解析に失敗: %w", err)
		}
	}

	cfg.applyEnv()

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// applyEnv は環境変数で設定を上書きする
func (c *Config) applyEnv() {
	c.Server.Host = getEnvOrDefault("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsIntOrDefault("SERVER_PORT", c.Server.Port)

	c.Camera.Driver = getEnvOrDefault("CAMERA_DRIVER", c.Camera.Driver)
	c.Camera.Device = getEnvOrDefault("CAMERA_DEVICE", c.Camera.Device)

	c.Auth.Secret = getEnvOrDefault("JWT_SECRET", c.Auth.Secret)
	if os.Getenv("AUTH_REQUIRED") == "true" {
		c.Auth.Required = true
	}
	if os.Getenv("APP_ENV") == "production" {
		c.Auth.SecureCookie = true
	}

	c.Log.Level = getEnvOrDefault("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnvOrDefault("LOG_FORMAT", c.Log.Format)
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	// サーバー設定の検証
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}

	// カメラ設定の検証
	switch c.Camera.Driver {
	case DriverFFmpeg, DriverMediaDevices, DriverMock:
	default:
		return fmt.Errorf("サポートされていないカメラドライバー: %q", c.Camera.Driver)
	}
	if c.Camera.Width < 0 || c.Camera.Width > 4096 {
		return fmt.Errorf("無効な幅: %d", c.Camera.Width)
	}
	if c.Camera.Height < 0 || c.Camera.Height > 4096 {
		return fmt.Errorf("無効な高さ: %d", c.Camera.Height)
	}
	if c.Camera.FPS <= 0 || c.Camera.FPS > 60 {
		return fmt.Errorf("無効なFPS値: %d", c.Camera.FPS)
	}
	if c.Camera.JPEGQuality < 1 || c.Camera.JPEGQuality > 100 {
		return fmt.Errorf("無効なJPEG品質: %d", c.Camera.JPEGQuality)
	}
	if c.Camera.AcquireTimeout <= 0 {
		return errors.New("acquire_timeout は正の値である必要があります")
	}

	// 認証設定の検証
	if c.Auth.Secret == "" {
		return errors.New("auth.secret は必須です")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth.token_ttl は正の値である必要があります")
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("サポートされていないログ形式: %q", c.Log.Format)
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
