package fingerprint

import "image/png"

// Option to tune the [Hasher].
type Option func(*options)

type options struct {
	level png.CompressionLevel
}

func optionsWithDefaults(opts []Option) options {
	o := options{
		level: png.DefaultCompression,
	}

	for _, apply := range opts {
		apply(&o)
	}

	return o
}

// WithCompression sets the PNG compression level used to encode images before hashing.
//
// Fingerprints are only comparable between hashers using the same level.
//
// Defaults to [png.DefaultCompression].
func WithCompression(level png.CompressionLevel) Option {
	return func(o *options) {
		o.level = level
	}
}
