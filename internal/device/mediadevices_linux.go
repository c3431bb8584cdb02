//go:build linux

package device

// V4L2 カメラドライバーを mediadevices に登録する
import _ "github.com/pion/mediadevices/pkg/driver/camera"
