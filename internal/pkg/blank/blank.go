// Package blank detects blank or near-blank page images.
package blank

import (
	"image"
	"image/draw"
)

// white is the maximum intensity of an 8-bit gray channel.
const white = 0xff

// Detector classifies page images as blank by sampling every pixel in grayscale.
type Detector struct {
	options
}

// New builds a blank page [Detector].
func New(opts ...Option) *Detector {
	return &Detector{
		options: optionsWithDefaults(opts),
	}
}

// IsBlank reports whether the fraction of pure white pixels exceeds the threshold.
//
// An image without pixels is blank.
func (d *Detector) IsBlank(img image.Image) bool {
	ratio, ok := d.WhiteRatio(img)
	if !ok {
		return true
	}

	return ratio > d.threshold
}

// WhiteRatio returns the fraction of pixels with maximum gray intensity.
//
// The second return value is false when the image has no pixel to sample.
func (d *Detector) WhiteRatio(img image.Image) (float64, bool) {
	gray := toGray(img)
	if gray == nil {
		return 0, false
	}

	bounds := gray.Bounds()
	total := bounds.Dx() * bounds.Dy()
	whites := 0

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		row := gray.Pix[(y-bounds.Min.Y)*gray.Stride:]
		for _, v := range row[:bounds.Dx()] {
			if v == white {
				whites++
			}
		}
	}

	return float64(whites) / float64(total), true
}

// toGray converts an image to full resolution 8-bit grayscale.
func toGray(img image.Image) *image.Gray {
	if img == nil {
		return nil
	}

	bounds := img.Bounds()
	if bounds.Empty() {
		return nil
	}

	if gray, ok := img.(*image.Gray); ok {
		return gray
	}

	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, img, bounds.Min, draw.Src)

	return gray
}
