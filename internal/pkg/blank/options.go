package blank

// Option to tune the blank page [Detector].
type Option func(*options)

type options struct {
	threshold float64
}

const defaultThreshold = 0.99

func optionsWithDefaults(opts []Option) options {
	o := options{
		threshold: defaultThreshold,
	}

	for _, apply := range opts {
		apply(&o)
	}

	return o
}

// WithThreshold sets the fraction of pure white pixels above which a page is considered blank.
//
// Values outside ]0, 1] are ignored. Defaults to 0.99.
func WithThreshold(threshold float64) Option {
	return func(o *options) {
		if threshold <= 0 || threshold > 1 {
			return
		}

		o.threshold = threshold
	}
}
