package session

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"
)

// PNGMIMEType はキャプチャ画像の形式
const PNGMIMEType = "image/png"

// Encoder は静止画をデータURLへ変換する
type Encoder func(img image.Image) (string, error)

// EncodePNGDataURL は画像をPNGのデータURLにエンコードする
func EncodePNGDataURL(img image.Image) (string, error) {
	if img == nil {
		return "", errors.New("画像がありません")
	}
	if img.Bounds().Empty() {
		return "", errors.New("画像の大きさが0です")
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("PNGエンコードに失敗: %w", err)
	}

	return "data:" + PNGMIMEType + ";base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeDataURL はbase64形式のデータURLを MIME タイプとバイト列に分解する
func DecodeDataURL(dataURL string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return "", nil, errors.New("データURLではありません")
	}

	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errors.New("データURLにペイロードがありません")
	}

	mimeType, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, fmt.Errorf("base64以外のデータURLには対応していません: %s", meta)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("base64のデコードに失敗: %w", err)
	}

	return mimeType, data, nil
}
