package qr

import (
	"errors"

	"event-ticketing/internal/tickets/token"

	"github.com/skip2/go-qrcode"
)

const (
	DefaultSize = 256
	MinSize     = 64
	MaxSize     = 1024
)

var ErrInvalidToken = errors.New("qr: not a ticket token")

// Render encodes a ticket token as a square PNG of size pixels. Gate scanners
// read the token back and submit it for redemption.
func Render(code string, size int) ([]byte, error) {
	if !token.Valid(code) {
		return nil, ErrInvalidToken
	}
	if size < MinSize || size > MaxSize {
		size = DefaultSize
	}
	return qrcode.Encode(code, qrcode.Medium, size)
}
