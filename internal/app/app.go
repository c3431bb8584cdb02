// Package app は設定からサーバーを組み立てる
package app

import (
	"fmt"

	"shashin/internal/auth"
	"shashin/internal/config"
	"shashin/internal/device"
	"shashin/internal/logging"
	"shashin/internal/metrics"
	"shashin/internal/renderer"
	"shashin/internal/server"
	"shashin/internal/session"
)

// New は設定に従って各コンポーネントを作成し、サーバーを返す
func New(cfg *config.Config) (*server.Server, error) {
	acquirer, err := device.NewFactory().Create(cfg.Camera.Driver, device.Settings{
		Device:      cfg.Camera.Device,
		Width:       cfg.Camera.Width,
		Height:      cfg.Camera.Height,
		FPS:         cfg.Camera.FPS,
		JPEGQuality: cfg.Camera.JPEGQuality,
		FFmpegPath:  cfg.Camera.FFmpegPath,
		Logger:      logging.Component("device"),
	})
	if err != nil {
		return nil, fmt.Errorf("カメラドライバーの作成に失敗: %w", err)
	}

	m := metrics.New()
	env := server.NewClientEnvironment()

	sess := session.New(env, m.InstrumentAcquirer(acquirer),
		session.WithLogger(logging.Component("session")),
		session.WithPreferredSize(cfg.Camera.Width, cfg.Camera.Height),
	)
	r := renderer.New(sess, logging.Component("renderer"))
	sess.BindRenderer(r)

	return server.New(cfg, server.Dependencies{
		Session:     sess,
		Renderer:    r,
		Environment: env,
		Metrics:     m,
		Issuer:      auth.NewIssuer(cfg.Auth.Secret, cfg.Auth.TokenTTL, cfg.Auth.SecureCookie),
		Logger:      logging.Component("server"),
	})
}
