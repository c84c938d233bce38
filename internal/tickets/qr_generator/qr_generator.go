package qr

import (
	"errors"

	"github.com/skip2/go-qrcode"
)

const DefaultSize = 256

type QRGenerator struct {
	size int
}

func NewQRGenerator(size int) *QRGenerator {
	if size <= 0 {
		size = DefaultSize
	}
	return &QRGenerator{size: size}
}

// GeneratePNG renders the bearer secret as a QR code. The secret is encoded
// as-is so a scanner reads back exactly what the holder was issued.
func (q *QRGenerator) GeneratePNG(secret string) ([]byte, error) {
	if secret == "" {
		return nil, errors.New("qr: empty secret")
	}
	return qrcode.Encode(secret, qrcode.Medium, q.size)
}

func (q *QRGenerator) Size() int {
	return q.size
}
