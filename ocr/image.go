// Package ocr prepares wine label photos and reads their text through a
// vision API.
package ocr

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"

	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const jpegQuality = 85

var ErrUnsupportedImage = errors.New("unsupported image")

// Downscale shrinks img so its longest edge is maxEdge, keeping the aspect
// ratio. Images already within bounds are returned unchanged.
func Downscale(img image.Image, maxEdge int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxEdge <= 0 || (w <= maxEdge && h <= maxEdge) {
		return img
	}

	var nw, nh int
	if w >= h {
		nw = maxEdge
		nh = (h*maxEdge + w/2) / w
	} else {
		nh = maxEdge
		nw = (w*maxEdge + h/2) / h
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// Prepared is a label photo ready to send upstream.
type Prepared struct {
	JPEG           []byte
	Format         string
	OriginalWidth  int
	OriginalHeight int
	Width          int
	Height         int
}

// PrepareUpload decodes a JPEG, PNG, GIF or WebP image, downscales it and
// re-encodes it as JPEG.
func PrepareUpload(r io.Reader, maxEdge int) (*Prepared, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	scaled := Downscale(img, maxEdge)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}

	return &Prepared{
		JPEG:           buf.Bytes(),
		Format:         format,
		OriginalWidth:  img.Bounds().Dx(),
		OriginalHeight: img.Bounds().Dy(),
		Width:          scaled.Bounds().Dx(),
		Height:         scaled.Bounds().Dy(),
	}, nil
}
