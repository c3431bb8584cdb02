// Package main はShashinサーバーコマンドの実装です
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"shashin/internal/app"
	"shashin/internal/config"
	"shashin/internal/logging"
)

func main() {
	// コマンドラインオプション
	var (
		configPath = flag.String("config", os.Getenv(config.ConfigPathEnv), "設定ファイルのパス (YAML)")
		host       = flag.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
		port       = flag.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
		driver     = flag.String("driver", "", "カメラドライバー (ffmpeg / mediadevices / mock)")
		help       = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("Shashin")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  server [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// 設定を読み込む
	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		logrus.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *driver != "" {
		cfg.Camera.Driver = *driver
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("設定が不正です: %v", err)
	}

	if err := logging.Setup(cfg.Log, os.Stderr); err != nil {
		logrus.Fatalf("ログの設定に失敗しました: %v", err)
	}

	srv, err := app.New(cfg)
	if err != nil {
		logrus.Fatalf("サーバーの作成に失敗しました: %v", err)
	}

	// サーバーを起動
	logrus.WithField("address", cfg.ServerAddress()).Info("Shashin サーバーを起動します")
	if err := srv.Start(context.Background()); err != nil {
		logrus.Fatalf("サーバーの起動に失敗しました: %v", err)
	}
}
