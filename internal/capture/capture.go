// Package capture connects the assistant to the user's devices: images read
// from files or pasted data URIs, typed or transcribed text, and the system
// clipboard. It never decodes image contents; images travel as base64 text.
package capture

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// maxImageBytes bounds how much of an image file is read
const maxImageBytes = 20 << 20

// CaptureUnavailableError means an input device is unsupported or denied
type CaptureUnavailableError struct {
	Device string
	Reason string
}

func (e *CaptureUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %s", e.Device, e.Reason)
}

// Image is a base64-encoded picture
type Image struct {
	MIMEType string
	Base64   string
}

// DataURI returns the image as a data: URI
func (i Image) DataURI() string {
	return "data:" + i.MIMEType + ";base64," + i.Base64
}

// LoadImage reads an image file
func LoadImage(path string) (Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return Image{}, &CaptureUnavailableError{Device: "file", Reason: err.Error()}
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxImageBytes+1))
	if err != nil {
		return Image{}, fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) > maxImageBytes {
		return Image{}, fmt.Errorf("image %s exceeds %d bytes", path, maxImageBytes)
	}
	if len(data) == 0 {
		return Image{}, fmt.Errorf("image %s is empty", path)
	}

	mimeType := mimetype.Detect(data).String()
	if !strings.HasPrefix(mimeType, "image/") {
		return Image{}, fmt.Errorf("unsupported image type %s", mimeType)
	}

	return Image{MIMEType: mimeType, Base64: base64.StdEncoding.EncodeToString(data)}, nil
}

// ParseDataURI accepts a "data:<mime>;base64,<payload>" string
func ParseDataURI(uri string) (Image, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(uri), "data:")
	if !ok {
		return Image{}, errors.New("not a data URI")
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return Image{}, errors.New("data URI has no payload")
	}
	mimeType, ok := strings.CutSuffix(header, ";base64")
	if !ok {
		return Image{}, errors.New("data URI is not base64 encoded")
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	if _, err := base64.StdEncoding.DecodeString(payload); err != nil {
		return Image{}, fmt.Errorf("invalid base64 payload: %w", err)
	}
	return Image{MIMEType: mimeType, Base64: payload}, nil
}

// Camera reports that live camera capture is not possible from a terminal
func Camera() error {
	return &CaptureUnavailableError{Device: "camera", Reason: "live capture is not supported in a terminal; pass an image file instead"}
}

// Microphone reports that live speech capture is not possible from a terminal
func Microphone() error {
	return &CaptureUnavailableError{Device: "microphone", Reason: "speech recognition is not supported in a terminal; pipe a transcript on stdin instead"}
}

// ReadTranscript reads typed or transcribed text
func ReadTranscript(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read transcript: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
