package texture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"

	"github.com/h2non/filetype"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

// decoders maps sniffed MIME types to their image decoder.
var decoders = map[string]func(*bytes.Reader) (image.Image, error){
	"image/png":  func(r *bytes.Reader) (image.Image, error) { return png.Decode(r) },
	"image/jpeg": func(r *bytes.Reader) (image.Image, error) { return jpeg.Decode(r) },
	"image/gif":  func(r *bytes.Reader) (image.Image, error) { return gif.Decode(r) },
	"image/webp": func(r *bytes.Reader) (image.Image, error) { return webp.Decode(r) },
	"image/bmp":  func(r *bytes.Reader) (image.Image, error) { return bmp.Decode(r) },
	"image/tiff": func(r *bytes.Reader) (image.Image, error) { return tiff.Decode(r) },
}

// decode sniffs the encoded image format from its magic bytes and decodes it to tightly
// packed RGBA8 pixels.
//
// Parameters:
//   - data: the encoded image
//
// Returns:
//   - []byte: RGBA pixel data (4 bytes per pixel, row-major order)
//   - uint32: width in pixels
//   - uint32: height in pixels
//   - string: the sniffed MIME type
//   - error: an error if the format is unknown or decoding fails
func decode(data []byte) ([]byte, uint32, uint32, string, error) {
	if len(data) == 0 {
		return nil, 0, 0, "", errors.New("empty image data")
	}
	kind, err := filetype.Image(data)
	if err != nil {
		return nil, 0, 0, "", fmt.Errorf("failed to sniff image type: %w", err)
	}
	if kind == filetype.Unknown {
		return nil, 0, 0, "", errors.New("data is not a recognized image")
	}
	dec, ok := decoders[kind.MIME.Value]
	if !ok {
		return nil, 0, 0, kind.MIME.Value, fmt.Errorf("unsupported image type %s", kind.MIME.Value)
	}

	img, err := dec(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, kind.MIME.Value, fmt.Errorf("failed to decode %s: %w", kind.MIME.Value, err)
	}

	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, 0, 0, kind.MIME.Value, errors.New("image has no pixels")
	}
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)

	return rgba.Pix, uint32(bounds.Dx()), uint32(bounds.Dy()), kind.MIME.Value, nil
}
