package vae

import (
	"github.com/relight/relight/ml"
	"github.com/relight/relight/model"
)

// EncodeArgMax encodes with the distribution mode instead of a random
// sample. The encoder's sampling flag is overridden for the duration of the
// delegated call and restored on every exit path, including failure.
func EncodeArgMax(enc Encoder, pixels *ml.Tensor) (*model.Latent, error) {
	kl, ok := enc.(*AutoencoderKL)
	if !ok {
		return nil, ErrUnsupportedEncoder
	}

	original := kl.Regularization.Sample
	kl.Regularization.Sample = false
	defer func() {
		kl.Regularization.Sample = original
	}()

	return enc.Encode(pixels)
}
