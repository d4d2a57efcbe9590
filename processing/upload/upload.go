// Package upload loads a single still image picked by the user.
package upload

import (
	"bytes"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	// register the webp decoder with image.Decode
	_ "golang.org/x/image/webp"
)

// AllowedExtensions are the accepted file types, without the leading dot.
var AllowedExtensions = [...]string{"jpg", "jpeg", "png", "webp"}

var ErrUnsupportedType = errors.New("unsupported image type")

// Image is an uploaded file together with its decoded pixels.
type Image struct {
	Name    string
	Data    []byte
	Decoded *image.NRGBA
}

// FilterExtensions returns AllowedExtensions in ".ext" form.
func FilterExtensions() []string {
	out := make([]string, len(AllowedExtensions))
	for i, ext := range AllowedExtensions {
		out[i] = "." + ext
	}
	return out
}

// CheckName rejects names whose extension is not an allowed image type.
func CheckName(name string) error {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return nil
		}
	}
	return errors.Wrapf(ErrUnsupportedType, "%q", name)
}

// Load reads and decodes the image at path.
func Load(path string) (*Image, error) {
	data, err := ReadFile(path)
	if err != nil {
		return nil, err
	}

	return FromBytes(filepath.Base(path), data)
}

// ReadFile checks the extension of path and returns its raw bytes.
func ReadFile(path string) ([]byte, error) {
	if err := CheckName(path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	return data, errors.Wrap(err, "read image")
}

// FromBytes decodes an already read upload.
func FromBytes(name string, data []byte) (*Image, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}

	img, err := Decode(data)
	if err != nil {
		return nil, err
	}

	return &Image{Name: name, Data: data, Decoded: img}, nil
}

// Decode decodes data, applies EXIF orientation and flattens any
// transparency onto white so the result is opaque.
func Decode(data []byte) (*image.NRGBA, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrap(err, "decode image")
	}

	bounds := img.Bounds()
	opaque := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
	return imaging.Overlay(opaque, img, image.Pt(0, 0), 1.0), nil
}

// Thumbnail scales img down to fit within w x h, keeping its aspect ratio.
func Thumbnail(img image.Image, w, h int) *image.NRGBA {
	return imaging.Fit(img, w, h, imaging.Lanczos)
}
