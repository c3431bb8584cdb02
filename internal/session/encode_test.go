package session

import (
	"image"
	"strings"
	"testing"
)

func TestEncodePNGDataURL(t *testing.T) {
	dataURL, err := EncodePNGDataURL(image.NewRGBA(image.Rect(0, 0, 4, 3)))
	if err != nil {
		t.Fatalf("EncodePNGDataURL failed: %v", err)
	}
	if !strings.HasPrefix(dataURL, "data:image/png;base64,") {
		t.Errorf("Unexpected prefix: %.30s", dataURL)
	}
}

func TestEncodePNGDataURL_Empty(t *testing.T) {
	if _, err := EncodePNGDataURL(nil); err == nil {
		t.Error("Expected error for nil image")
	}
	if _, err := EncodePNGDataURL(image.NewRGBA(image.Rect(0, 0, 0, 0))); err == nil {
		t.Error("Expected error for empty image")
	}
}

func TestDecodeDataURL_Invalid(t *testing.T) {
	testCases := []string{
		"",
		"image/png;base64,AAAA",
		"data:image/png;base64",
		"data:text/plain,hello",
		"data:image/png;base64,***",
	}

	for _, tc := range testCases {
		if _, _, err := DecodeDataURL(tc); err == nil {
			t.Errorf("Expected error for %q", tc)
		}
	}
}
