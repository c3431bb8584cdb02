package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"shashin/internal/config"
)

func restoreLogger(t *testing.T) {
	t.Cleanup(func() {
		logrus.SetOutput(os.Stderr)
		logrus.SetFormatter(&logrus.TextFormatter{})
		logrus.SetLevel(logrus.InfoLevel)
	})
}

// TestSetupJSON はJSON形式の出力をテストする
func TestSetupJSON(t *testing.T) {
	restoreLogger(t)

	var buf bytes.Buffer
	if err := Setup(config.LogConfig{Level: "debug", Format: "json"}, &buf); err != nil {
		t.Fatalf("ロガーの初期化に失敗しました: %v", err)
	}

	Component("device").Debug("テスト")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("JSONとして解析できません: %v (%s)", err, buf.String())
	}
	if entry["component"] != "device" {
		t.Errorf("component フィールドが一致しません: got %v", entry["component"])
	}
	if entry["level"] != "debug" {
		t.Errorf("level が一致しません: got %v", entry["level"])
	}
}

// TestSetupLevel はログレベルの反映をテストする
func TestSetupLevel(t *testing.T) {
	restoreLogger(t)

	var buf bytes.Buffer
	if err := Setup(config.LogConfig{Level: "warn", Format: "text"}, &buf); err != nil {
		t.Fatalf("ロガーの初期化に失敗しました: %v", err)
	}

	logrus.Info("出力されない")
	logrus.Warn("出力される")

	out := buf.String()
	if strings.Contains(out, "出力されない") {
		t.Error("warn レベルで info が出力されました")
	}
	if !strings.Contains(out, "出力される") {
		t.Error("warn が出力されていません")
	}
}

// TestSetupInvalidLevel は不正なログレベルをテストする
func TestSetupInvalidLevel(t *testing.T) {
	restoreLogger(t)

	if err := Setup(config.LogConfig{Level: "verbose", Format: "text"}, nil); err == nil {
		t.Error("エラーが期待されましたが、エラーが発生しませんでした")
	}
}
