// Package fingerprint computes content digests of captured page images.
//
// A fingerprint is only used as an equality proxy to deduplicate pages.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"

	"github.com/fredbi/docsnap/internal/pkg/model"
)

// Sentinel is the fingerprint returned when an image cannot be encoded.
//
// Two images that both fail to encode share this fingerprint.
const Sentinel = ""

// ErrEncodeFailed is returned when an image cannot be encoded for hashing.
var ErrEncodeFailed = errors.New("fingerprint: image encoding failed")

// Hasher computes the SHA-256 of the PNG encoding of an image, as lowercase hex.
type Hasher struct {
	options
}

// New builds a fingerprint [Hasher].
func New(opts ...Option) *Hasher {
	return &Hasher{
		options: optionsWithDefaults(opts),
	}
}

// Fingerprint returns the hex digest of an image.
//
// On encoding failure, it returns [Sentinel] and an error wrapping [ErrEncodeFailed].
func (h *Hasher) Fingerprint(img image.Image) (string, error) {
	data, err := model.EncodePNG(img, h.level)
	if err != nil {
		return Sentinel, fmt.Errorf("%w: %w", ErrEncodeFailed, err)
	}

	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:]), nil
}
