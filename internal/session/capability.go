package session

import (
	"regexp"
	"strings"
)

// Environment は実行環境の識別文字列を提供する
type Environment interface {
	UserAgent() string
	Vendor() string
}

// StaticEnvironment は固定値の Environment 実装
type StaticEnvironment struct {
	UA         string
	VendorName string
}

// UserAgent はUser-Agent文字列を返す
func (e StaticEnvironment) UserAgent() string { return e.UA }

// Vendor はベンダー文字列を返す
func (e StaticEnvironment) Vendor() string { return e.VendorName }

// googleVendor はChrome系ブラウザが navigator.vendor に返す値
const googleVendor = "Google Inc."

var mobilePattern = regexp.MustCompile(`(?i)Android|webOS|iPhone|iPad|iPod|BlackBerry|IEMobile|Opera Mini`)

// IsSupportedEnvironment はカメラを要求してよい環境かを判定する
// デスクトップ/AndroidのChrome（Edge・Operaを除く）とiOSのChromeのみ許可する
func IsSupportedEnvironment(env Environment) bool {
	if env == nil {
		return false
	}
	ua := env.UserAgent()

	desktopOrAndroidChrome := strings.Contains(ua, "Chrome") &&
		env.Vendor() == googleVendor &&
		!strings.Contains(ua, "Edg/") &&
		!strings.Contains(ua, "OPR/")
	iosChrome := strings.Contains(ua, "CriOS/")

	return desktopOrAndroidChrome || iosChrome
}

// IsMobile はモバイル端末のUser-Agentかを判定する
func IsMobile(env Environment) bool {
	if env == nil {
		return false
	}
	return mobilePattern.MatchString(env.UserAgent())
}

// PreferredConstraints は端末種別から取得条件を決める
// モバイルでは背面、それ以外では前面を希望する
func PreferredConstraints(env Environment, width, height int) Constraints {
	facing := FacingUser
	if IsMobile(env) {
		facing = FacingEnvironment
	}
	return Constraints{
		FacingMode: facing,
		Width:      width,
		Height:     height,
	}
}
