// Package marshal encodes output images for presentation
package marshal

import (
	"encoding/base64"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"go-vehicle-counter/internal/bridge"
	apperrors "go-vehicle-counter/internal/errors"
	"go-vehicle-counter/internal/strategy"
)

// EncodedImage is an image ready to be embedded in a response
type EncodedImage struct {
	Base64   string `json:"base64"`
	MimeType string `json:"mime_type"`
}

// DataURI returns the image as a data: URI
func (e *EncodedImage) DataURI() string {
	return "data:" + e.MimeType + ";base64," + e.Base64
}

// Decode returns the original bytes
func (e *EncodedImage) Decode() ([]byte, error) {
	return base64.StdEncoding.DecodeString(e.Base64)
}

// Marshal encodes the output image of a counting result
func Marshal(result *strategy.CountingResult) (*EncodedImage, error) {
	if result == nil {
		return nil, apperrors.NewPresentationError("no result to present", nil)
	}
	return EncodeFile(result.OutputPath)
}

// EncodeFile reads the image at path and encodes it. The file is only
// read, never removed.
func EncodeFile(path string) (*EncodedImage, error) {
	if path == "" || path == bridge.SentinelError {
		return nil, apperrors.NewPresentationError("no output image to present", nil)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewPresentationError("failed to read output image", err).WithDetails(path)
	}
	return Encode(data)
}

// Encode encodes image bytes, sniffing the MIME type from content
func Encode(data []byte) (*EncodedImage, error) {
	if len(data) == 0 {
		return nil, apperrors.NewPresentationError("output image is empty", nil)
	}

	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		return nil, apperrors.NewPresentationError("output is not an image", nil).WithDetails(mime.String())
	}

	return &EncodedImage{
		Base64:   base64.StdEncoding.EncodeToString(data),
		MimeType: mime.String(),
	}, nil
}
