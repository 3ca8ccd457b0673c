package model

import (
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	_ "golang.org/x/image/webp"

	perr "github.com/Brownie44l1/waste-api/internal/errors"
)

// Decode reads any of the accepted upload formats (png, jpeg, gif, webp)
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", perr.Wrap(err, perr.ErrorCodeDecode, "Failed to process image")
	}
	return img, format, nil
}

// DecodeFile opens and decodes path
func DecodeFile(path string) (image.Image, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", perr.Wrap(err, perr.ErrorCodeNotFound, "image not found")
	}
	defer f.Close()
	return Decode(f)
}
