// Package qr renders pairing QR codes for browser clients.
package qr

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// DataURLPrefix starts every encoded image.
const DataURLPrefix = "data:image/png;base64,"

// Size of the rendered PNG in pixels.
const Size = 256

// DataURL encodes content as a PNG QR code wrapped in a data URL.
func DataURL(content string) (string, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, Size)
	if err != nil {
		return "", fmt.Errorf("failed to encode qr: %w", err)
	}
	return DataURLPrefix + base64.StdEncoding.EncodeToString(png), nil
}
