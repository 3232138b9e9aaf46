// Package model holds the data exchanged between the capture pipeline stages.
package model

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
)

// Page is a rendered page image, captured at a given page index.
//
// A [Page] is immutable once captured: consumers must not draw into Image.
type Page struct {
	Index       int
	Image       image.Image
	Fingerprint string
}

// Bounds returns the pixel bounds of the page image, or an empty rectangle when no image is attached.
func (p Page) Bounds() image.Rectangle {
	if p.Image == nil {
		return image.Rectangle{}
	}

	return p.Image.Bounds()
}

// Images returns the images of a list of pages, in order.
func Images(pages []Page) []image.Image {
	images := make([]image.Image, 0, len(pages))
	for _, page := range pages {
		images = append(images, page.Image)
	}

	return images
}

var errNoImage = errors.New("no image")

// EncodePNG encodes an image as PNG with the given compression level.
//
// The encoding is lossless and deterministic: identical pixels at the same level yield identical bytes.
func EncodePNG(img image.Image, level png.CompressionLevel) ([]byte, error) {
	var buf bytes.Buffer
	if err := WritePNG(&buf, img, level); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// WritePNG writes an image as PNG to w.
func WritePNG(w io.Writer, img image.Image, level png.CompressionLevel) error {
	if img == nil {
		return errNoImage
	}

	enc := png.Encoder{CompressionLevel: level}
	if err := enc.Encode(w, img); err != nil {
		return fmt.Errorf("encoding png: %w", err)
	}

	return nil
}

// DecodePNG decodes PNG bytes as produced by a browser screenshot.
func DecodePNG(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, errNoImage
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding png: %w", err)
	}

	return img, nil
}
