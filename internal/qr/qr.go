// Package qr renders scan URLs as PNG QR codes.
package qr

import (
	"errors"

	"github.com/skip2/go-qrcode"
)

const (
	DefaultSize = 320
	MinSize     = 128
	MaxSize     = 1024
)

// Renderer encodes payloads as PNG images.
type Renderer struct {
	level qrcode.RecoveryLevel
}

// NewRenderer uses medium error correction, enough for a projector screen.
func NewRenderer() *Renderer {
	return &Renderer{level: qrcode.Medium}
}

// PNG renders payload as a square image of size pixels. Sizes outside
// MinSize..MaxSize are clamped; zero means DefaultSize.
func (r *Renderer) PNG(payload string, size int) ([]byte, error) {
	if payload == "" {
		return nil, errors.New("empty qr payload")
	}
	switch {
	case size == 0:
		size = DefaultSize
	case size < MinSize:
		size = MinSize
	case size > MaxSize:
		size = MaxSize
	}
	return qrcode.Encode(payload, r.level, size)
}
