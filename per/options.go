package per

import "math/rand"

type config struct {
	// Parameter alpha controls how strongly the priority of an entry skews its
	// likelihood of being sampled. The probability P(i) of sampling entry i
	// is its priority raised to the power of alpha, normalized over all the
	// entries: P(i) = (p[i]^alpha) / Σ(p[k]^alpha). High values of alpha
	// concentrate sampling on the entries with the highest priorities. By
	// contrast, small values of alpha flatten the distribution towards random
	// uniform sampling.
	alpha float64

	// Parameter beta controls how strongly importance weights compensate for
	// the bias introduced by non-uniform sampling. The weight of an entry is
	// derived from its sampling probability raised to the power of beta.
	beta float64

	// Seed of the random number generator used to draw samples.
	seed int64
}

// Option configures a Buffer.
type Option func(*config)

// WithAlpha sets the priority exponent. The default is 1 (sampling
// proportional to priorities).
func WithAlpha(alpha float64) Option {
	return func(c *config) {
		c.alpha = alpha
	}
}

// WithBeta sets the importance weight exponent. The default is 1.
func WithBeta(beta float64) Option {
	return func(c *config) {
		c.beta = beta
	}
}

// WithSeed sets the seed of the buffer's random number generator. By default,
// the seed is drawn from the process-wide source which is itself seeded from
// system entropy.
func WithSeed(seed int64) Option {
	return func(c *config) {
		c.seed = seed
	}
}

func defaultConfig() config {
	return config{
		alpha: 1,
		beta:  1,
		seed:  rand.Int63(),
	}
}
