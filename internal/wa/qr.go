package wa

import (
	"encoding/base64"

	qrcode "github.com/skip2/go-qrcode"
)

// qrPixels is the edge length of the rendered QR image. 256px matches what
// phone cameras decode comfortably at typical screen sizes.
const qrPixels = 256

// QRDataURL renders a raw QR challenge string into a PNG data URL suitable
// for direct embedding in an <img> tag.
func QRDataURL(code string) (string, error) {
	png, err := qrcode.Encode(code, qrcode.Medium, qrPixels)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
