// Package logging はアプリケーション全体のログ出力を設定する
package logging

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"shashin/internal/config"
)

// Setup は設定に従って標準ロガーを初期化する
func Setup(cfg config.LogConfig, out io.Writer) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("ログレベルの解析に失敗: %w", err)
	}

	switch cfg.Format {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
	logrus.SetLevel(level)
	if out != nil {
		logrus.SetOutput(out)
	}

	return nil
}

// Component はコンポーネント名付きのロガーを返す
func Component(name string) *logrus.Entry {
	return logrus.WithField("component", name)
}
