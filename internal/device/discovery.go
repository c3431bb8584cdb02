package device

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"shashin/internal/session"
)

// Discovery はカメラデバイスの検出機能を提供する
type Discovery interface {
	// ScanDevices はシステム内の利用可能なカメラデバイスをスキャンする
	ScanDevices(ctx context.Context) ([]string, error)

	// IsDeviceAvailable は指定されたデバイスが利用可能かチェックする
	IsDeviceAvailable(ctx context.Context, device string) bool

	// GetDeviceInfo はデバイスの詳細情報を取得する
	GetDeviceInfo(ctx context.Context, device string) (*DeviceInfo, error)
}

// DeviceInfo はカメラデバイスの詳細情報を表す
type DeviceInfo struct {
	Device      string       // デバイスパス
	Name        string       // デバイス名（v4l2 の Card type）
	Driver      string       // ドライバー名
	Resolutions []Resolution // サポートされている解像度
	Formats     []string     // サポートされているフォーマット
}

// Resolution は解像度を表す
type Resolution struct {
	Width  int
	Height int
}

var (
	deviceNumberPattern = regexp.MustCompile(`video(\d+)`)
	v4l2DevicePattern   = regexp.MustCompile(`^/dev/video\d+$`)
	frameSizePattern    = regexp.MustCompile(`Size: Discrete (\d+)x(\d+)`)
)

// デバイス名から向きを推定するキーワード
var (
	environmentKeywords = []string{"back", "rear", "environment", "world"}
	userKeywords        = []string{"front", "user", "integrated", "facetime", "webcam"}
)

// LinuxDiscovery はLinux環境でのカメラデバイス検出を実装する
type LinuxDiscovery struct{}

// NewLinuxDiscovery は新しいLinuxDiscoveryを作成する
func NewLinuxDiscovery() Discovery {
	return &LinuxDiscovery{}
}

// ScanDevices はシステム内の利用可能なカメラデバイスをスキャンする
func (d *LinuxDiscovery) ScanDevices(ctx context.Context) ([]string, error) {
	var devices []string

	// /dev/video* パターンでデバイスを検索
	matches, err := filepath.Glob("/dev/video*")
	if err != nil {
		return nil, fmt.Errorf("デバイスのスキャンに失敗: %w", err)
	}

	// デバイス番号でソート
	sort.Slice(matches, func(i, j int) bool {
		return extractDeviceNumber(matches[i]) < extractDeviceNumber(matches[j])
	})

	for _, match := range matches {
		// コンテキストのキャンセルをチェック
		select {
		case <-ctx.Done():
			return devices, ctx.Err()
		default:
		}

		// メタデータ用のノードなどカラー映像を出さないデバイスは除外
		if d.IsDeviceAvailable(ctx, match) && d.isColorCamera(ctx, match) {
			devices = append(devices, match)
		}
	}

	return devices, nil
}

// IsDeviceAvailable は指定されたデバイスが利用可能かチェックする
func (d *LinuxDiscovery) IsDeviceAvailable(_ context.Context, device string) bool {
	if !v4l2DevicePattern.MatchString(device) {
		return false
	}

	// デバイスファイルの存在確認
	if _, err := os.Stat(device); err != nil {
		return false
	}
	return true
}

// GetDeviceInfo はデバイスの詳細情報を取得する
func (d *LinuxDiscovery) GetDeviceInfo(ctx context.Context, device string) (*DeviceInfo, error) {
	if !d.IsDeviceAvailable(ctx, device) {
		return nil, fmt.Errorf("デバイスが利用できません: %s", device)
	}

	info := &DeviceInfo{
		Device: device,
		Name:   d.deviceName(ctx, device),
		Driver: "uvcvideo",
	}

	if output, err := v4l2ctl(ctx, device, "--list-formats-ext"); err == nil {
		info.Resolutions = parseResolutions(output)
		info.Formats = parseFormats(output)
	}
	if len(info.Resolutions) == 0 {
		info.Resolutions = []Resolution{
			{Width: 640, Height: 480},
			{Width: 1280, Height: 720},
		}
	}

	return info, nil
}

// deviceName はv4l2-ctlの Card type からデバイス名を取得する
func (d *LinuxDiscovery) deviceName(ctx context.Context, device string) string {
	output, err := v4l2ctl(ctx, device, "--info")
	if err == nil {
		for _, line := range strings.Split(output, "\n") {
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "Card type") {
				continue
			}
			parts := strings.SplitN(line, ":", 2)
			if len(parts) == 2 && strings.TrimSpace(parts[1]) != "" {
				return strings.TrimSpace(parts[1])
			}
		}
	}

	// フォールバック: デバイス番号から生成
	return fmt.Sprintf("カメラ %d", extractDeviceNumber(device))
}

// isColorCamera はデバイスがカラー映像を出力するかを判定する
func (d *LinuxDiscovery) isColorCamera(ctx context.Context, device string) bool {
	output, err := v4l2ctl(ctx, device, "--list-formats-ext")
	if err != nil {
		return false
	}
	return strings.Contains(output, "YUYV") || strings.Contains(output, "MJPG")
}

// v4l2ctl はv4l2-ctlを実行して出力を返す
func v4l2ctl(ctx context.Context, device string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmdArgs := append([]string{"--device", device}, args...)
	output, err := exec.CommandContext(ctx, "v4l2-ctl", cmdArgs...).Output()
	if err != nil {
		return "", fmt.Errorf("v4l2-ctl の実行に失敗: %w", err)
	}
	return string(output), nil
}

// parseResolutions は --list-formats-ext の出力から解像度を抽出する
func parseResolutions(output string) []Resolution {
	seen := make(map[Resolution]bool)
	var resolutions []Resolution

	for _, m := range frameSizePattern.FindAllStringSubmatch(output, -1) {
		w, errW := strconv.Atoi(m[1])
		h, errH := strconv.Atoi(m[2])
		if errW != nil || errH != nil {
			continue
		}
		res := Resolution{Width: w, Height: h}
		if !seen[res] {
			seen[res] = true
			resolutions = append(resolutions, res)
		}
	}
	return resolutions
}

// parseFormats は --list-formats-ext の出力からピクセルフォーマットを抽出する
func parseFormats(output string) []string {
	var formats []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		// 例: [0]: 'MJPG' (Motion-JPEG, compressed)
		start := strings.Index(line, "'")
		if !strings.HasPrefix(line, "[") || start == -1 {
			continue
		}
		end := strings.Index(line[start+1:], "'")
		if end == -1 {
			continue
		}
		formats = append(formats, line[start+1:start+1+end])
	}
	return formats
}

// extractDeviceNumber はデバイスパスから番号を抽出する
func extractDeviceNumber(device string) int {
	matches := deviceNumberPattern.FindStringSubmatch(device)
	if len(matches) < 2 {
		return 0
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0
	}
	return num
}

// FacingOf はデバイス名から向きを推定する。推定できなければ空文字を返す
func FacingOf(name string) session.FacingMode {
	lower := strings.ToLower(name)
	for _, kw := range environmentKeywords {
		if strings.Contains(lower, kw) {
			return session.FacingEnvironment
		}
	}
	for _, kw := range userKeywords {
		if strings.Contains(lower, kw) {
			return session.FacingUser
		}
	}
	return ""
}

// SelectDevice は希望する向きに合うデバイスを選ぶ
// 向きは希望にすぎないため、合うものが無ければ先頭のデバイスを返す
func SelectDevice(infos []DeviceInfo, facing session.FacingMode) (DeviceInfo, bool) {
	if len(infos) == 0 {
		return DeviceInfo{}, false
	}
	for _, info := range infos {
		if facing != "" && FacingOf(info.Name) == facing {
			return info, true
		}
	}
	return infos[0], true
}

// NearestResolution は希望解像度に最も近い解像度を返す
// 希望が無い場合や候補が無い場合は fallback を返す
func NearestResolution(candidates []Resolution, width, height int, fallback Resolution) Resolution {
	if width <= 0 || height <= 0 || len(candidates) == 0 {
		return fallback
	}

	best := candidates[0]
	bestScore := -1
	for _, c := range candidates {
		score := abs(c.Width-width)*abs(c.Width-width) + abs(c.Height-height)*abs(c.Height-height)
		if bestScore < 0 || score < bestScore {
			best = c
			bestScore = score
		}
	}
	return best
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// MockDiscovery はテスト用のモックDiscovery実装
type MockDiscovery struct {
	mu          sync.Mutex
	devices     []string
	deviceInfos map[string]*DeviceInfo
	scanErr     error
}

// NewMockDiscovery は新しいMockDiscoveryを作成する
func NewMockDiscovery(devices []string) *MockDiscovery {
	m := &MockDiscovery{
		deviceInfos: make(map[string]*DeviceInfo),
	}
	for _, device := range devices {
		m.AddDevice(device, "")
	}
	return m
}

// ScanDevices はモックデバイス一覧を返す
func (m *MockDiscovery) ScanDevices(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	return append([]string(nil), m.devices...), nil
}

// IsDeviceAvailable はモックデバイスが利用可能かチェックする
func (m *MockDiscovery) IsDeviceAvailable(_ context.Context, device string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, exists := m.deviceInfos[device]
	return exists
}

// GetDeviceInfo はモックデバイス情報を取得する
func (m *MockDiscovery) GetDeviceInfo(_ context.Context, device string) (*DeviceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, exists := m.deviceInfos[device]
	if !exists {
		return nil, fmt.Errorf("デバイスが見つかりません: %s", device)
	}

	// コピーを返す
	result := *info
	return &result, nil
}

// AddDevice はテスト用にデバイスを追加する。name が空なら番号から生成する
func (m *MockDiscovery) AddDevice(device, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.deviceInfos[device]; exists {
		return
	}
	if name == "" {
		name = fmt.Sprintf("テストカメラ %d", len(m.devices)+1)
	}

	m.devices = append(m.devices, device)
	m.deviceInfos[device] = &DeviceInfo{
		Device: device,
		Name:   name,
		Driver: "mock",
		Resolutions: []Resolution{
			{Width: 640, Height: 480},
			{Width: 1280, Height: 720},
		},
		Formats: []string{"MJPG"},
	}
}

// RemoveDevice はテスト用にデバイスを削除する
func (m *MockDiscovery) RemoveDevice(device string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, d := range m.devices {
		if d == device {
			m.devices = append(m.devices[:i], m.devices[i+1:]...)
			break
		}
	}
	delete(m.deviceInfos, device)
}

// SetScanError はテスト用にスキャンの失敗を設定する
func (m *MockDiscovery) SetScanError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanErr = err
}
