package facefinder

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// decodeBase64 decodes a standard base64 payload into an image.
func decodeBase64(b64 string) (image.Image, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
	if err != nil {
		return nil, &DecodeError{Err: errors.Wrap(err, "invalid base64 payload")}
	}
	return decodeImg(data)
}

// decodeImg decodes the raw image bytes, applying the EXIF orientation if any.
func decodeImg(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, &DecodeError{Err: errors.New("empty image")}
	}
	return img, nil
}

// DecodeImage decodes the raw image bytes.
func DecodeImage(data []byte) (image.Image, error) {
	return decodeImg(data)
}

// DecodeFile opens and decodes the image found at path.
func DecodeFile(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open the image file: %v", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("could not read the image file: %v", err)
	}
	return decodeImg(data)
}

// EncodeImage encodes img to w. The format is picked from the file extension
// when w is a file and defaults to PNG otherwise.
func EncodeImage(w io.Writer, img image.Image) error {
	switch w := w.(type) {
	case *os.File:
		switch strings.ToLower(filepath.Ext(w.Name())) {
		case ".jpg", ".jpeg":
			return jpeg.Encode(w, img, &jpeg.Options{Quality: 100})
		case "", ".png":
			return png.Encode(w, img)
		case ".bmp":
			return bmp.Encode(w, img)
		default:
			return errors.New("unsupported image format")
		}
	default:
		return png.Encode(w, img)
	}
}
