package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

// ErrorKind はセッションエラーの大分類
type ErrorKind string

const (
	KindUnsupportedEnvironment    ErrorKind = "UnsupportedEnvironment"
	KindPermissionDenied          ErrorKind = "PermissionDenied"
	KindDeviceNotFound            ErrorKind = "DeviceNotFound"
	KindAcquisitionAborted        ErrorKind = "AcquisitionAborted"
	KindHardwareUnavailable       ErrorKind = "HardwareUnavailable"
	KindConstraintUnsatisfiable   ErrorKind = "ConstraintUnsatisfiable"
	KindUnknownAcquisitionFailure ErrorKind = "UnknownAcquisitionFailure"
	KindRenderError               ErrorKind = "RenderError"
	KindNotReady                  ErrorKind = "NotReady"
	KindEncodeFailure             ErrorKind = "EncodeFailure"
)

// プラットフォームの取得失敗カテゴリ。取得アダプタはこれらをラップして返す
var (
	ErrNotAllowed      = errors.New("not allowed")      // 利用者または OS が許可しなかった
	ErrNotFound        = errors.New("not found")        // 該当デバイスが無い
	ErrAborted         = errors.New("aborted")          // 取得が中断された
	ErrNotReadable     = errors.New("not readable")     // デバイスが使用中・ハードウェア異常
	ErrOverconstrained = errors.New("overconstrained") // 条件を満たすデバイスが無い
)

// ErrSuperseded は後続の Open / Close によって取得結果が無効になったことを表す
var ErrSuperseded = errors.New("後続の操作によって取得結果は破棄されました")

// SessionError はセッションで発生したエラー
type SessionError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

// Error は error インターフェースを実装する
func (e *SessionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap は原因となったエラーを返す
func (e *SessionError) Unwrap() error {
	return e.Cause
}

// Is は同じ Kind の SessionError と一致する
func (e *SessionError) Is(target error) bool {
	t, ok := target.(*SessionError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewError は SessionError を作成する
func NewError(kind ErrorKind, cause error) *SessionError {
	return &SessionError{
		Kind:    kind,
		Message: messageFor(kind),
		Cause:   cause,
	}
}

// KindOf は err に含まれる SessionError の Kind を返す
func KindOf(err error) (ErrorKind, bool) {
	var se *SessionError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}

// ClassifyAcquisitionError はデバイス取得の失敗を Kind に対応付ける
func ClassifyAcquisitionError(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotAllowed), errors.Is(err, fs.ErrPermission):
		return KindPermissionDenied
	case errors.Is(err, ErrNotFound), errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENODEV):
		return KindDeviceNotFound
	case errors.Is(err, ErrAborted), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindAcquisitionAborted
	case errors.Is(err, ErrNotReadable), errors.Is(err, syscall.EBUSY), errors.Is(err, syscall.EIO):
		return KindHardwareUnavailable
	case errors.Is(err, ErrOverconstrained):
		return KindConstraintUnsatisfiable
	default:
		return KindUnknownAcquisitionFailure
	}
}

// messageFor は Kind ごとの利用者向けメッセージを返す
func messageFor(kind ErrorKind) string {
	switch kind {
	case KindUnsupportedEnvironment:
		return "カメラを利用するには Google Chrome を使用してください"
	case KindPermissionDenied:
		return "カメラへのアクセスが許可されていません"
	case KindDeviceNotFound:
		return "利用可能なカメラが見つかりません"
	case KindAcquisitionAborted:
		return "カメラの取得が中断されました"
	case KindHardwareUnavailable:
		return "カメラが他のアプリケーションで使用中か、ハードウェアに問題があります"
	case KindConstraintUnsatisfiable:
		return "要求した条件に合うカメラがありません"
	case KindUnknownAcquisitionFailure:
		return "カメラにアクセスできないか、カメラが使用できる状態ではありません"
	case KindRenderError:
		return "カメラ映像の再生に問題があります"
	case KindNotReady:
		return "カメラの準備ができていないか、映像の大きさが不正なため撮影できません"
	case KindEncodeFailure:
		return "撮影した画像を生成できませんでした"
	default:
		return "不明なエラーが発生しました"
	}
}
