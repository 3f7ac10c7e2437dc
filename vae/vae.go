// Package vae fronts the first-stage autoencoder: the piece that maps
// pixels into the latent space the diffusion model runs in. The encoder
// network itself is supplied by the host pipeline; this package owns the
// distribution sampling policy and the deterministic-encode override.
package vae

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/relight/relight/ml"
	"github.com/relight/relight/model"
)

// ErrUnsupportedEncoder is returned when a deterministic encode is requested
// on an encoder architecture with no sampling flag to override.
var ErrUnsupportedEncoder = errors.New("argmax encode is only supported for AutoencoderKL")

// GaussianDistribution is the diagonal Gaussian a KL autoencoder's encoder
// produces per latent element.
type GaussianDistribution struct {
	Mean   *ml.Tensor
	Logvar *ml.Tensor
}

// Mode returns the distribution's mode, which for a diagonal Gaussian is
// its mean.
func (d *GaussianDistribution) Mode() *ml.Tensor {
	return d.Mean.Clone()
}

// Sample draws mean + stddev*eps with standard normal eps.
func (d *GaussianDistribution) Sample() *ml.Tensor {
	out := d.Mean.Clone()
	data := out.Floats()
	logvar := d.Logvar.Floats()
	for i := range data {
		std := float32(math.Exp(0.5 * float64(logvar[i])))
		data[i] += std * float32(rand.NormFloat64())
	}

	return out
}

// DiagonalGaussianRegularizer decides whether encoding draws a sample or
// takes the distribution mode.
type DiagonalGaussianRegularizer struct {
	Sample bool
}

// Apply reduces a distribution to one latent tensor per the current policy.
func (r *DiagonalGaussianRegularizer) Apply(d *GaussianDistribution) *ml.Tensor {
	if r.Sample {
		return d.Sample()
	}

	return d.Mode()
}

// Encoder encodes a pixel tensor into a latent batch.
type Encoder interface {
	Encode(pixels *ml.Tensor) (*model.Latent, error)
}

// MomentsFunc is the encoder network: it projects pixels to distribution
// moments. Hosts plug in their own backbone here.
type MomentsFunc func(pixels *ml.Tensor) (*GaussianDistribution, error)

// AutoencoderKL is a KL-regularized first-stage autoencoder.
type AutoencoderKL struct {
	Regularization *DiagonalGaussianRegularizer
	Moments        MomentsFunc
}

// NewAutoencoderKL wires an encoder network to the default stochastic
// regularizer.
func NewAutoencoderKL(moments MomentsFunc) *AutoencoderKL {
	return &AutoencoderKL{
		Regularization: &DiagonalGaussianRegularizer{Sample: true},
		Moments:        moments,
	}
}

// Encode maps pixels to a latent batch under the current sampling policy.
func (kl *AutoencoderKL) Encode(pixels *ml.Tensor) (*model.Latent, error) {
	dist, err := kl.Moments(pixels)
	if err != nil {
		return nil, fmt.Errorf("encode moments: %w", err)
	}

	return &model.Latent{Samples: kl.Regularization.Apply(dist)}, nil
}
