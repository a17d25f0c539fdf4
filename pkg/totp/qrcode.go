package totp

import (
	"encoding/base64"
	"errors"
	"strings"

	skipqrcode "github.com/skip2/go-qrcode"
)

// DefaultQRCodeSize is the PNG edge length in pixels used when size is not positive.
const DefaultQRCodeSize = 256

// QRCode renders a provisioning URI as a PNG and returns it as a data URI
// ready to drop into an <img src="..."> attribute.
func QRCode(uri string, size int) (string, error) {
	if strings.TrimSpace(uri) == "" {
		return "", errors.Join(ErrFailedToGenerateQRCode, ErrMissingSecret)
	}
	if size <= 0 {
		size = DefaultQRCodeSize
	}
	png, err := skipqrcode.Encode(uri, skipqrcode.Medium, size)
	if err != nil {
		return "", errors.Join(ErrFailedToGenerateQRCode, err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
