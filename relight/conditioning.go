package relight

import (
	"fmt"

	"github.com/relight/relight/ml"
	"github.com/relight/relight/model"
)

// concatKey is the conditioning-map entry the UNet reads concatenated
// latent channels from.
const concatKey = "c_concat"

// projector holds the conditioning tensor precomputed at patch time and
// injects it into every forward call's conditioning map.
type projector struct {
	// cond is (1, C*B0, H, W): the scaled latent with its batch entries
	// folded into the channel axis.
	cond *ml.Tensor
}

// newProjector scales a raw latent batch by the model's latent scale factor
// and folds the batch axis into channels. This runs once per Apply, not per
// denoising step.
func newProjector(samples *ml.Tensor, scaleFactor float32) (*projector, error) {
	scaled, err := samples.MulScalar(scaleFactor)
	if err != nil {
		return nil, fmt.Errorf("scale conditioning latent: %w", err)
	}

	shape := scaled.Shape()
	if len(shape) != 4 {
		return nil, fmt.Errorf("conditioning latent must be 4-D, got %v", shape)
	}

	// (B0, C, H, W) entries concatenated along the channel axis. Row-major
	// NCHW makes this a pure reshape.
	cond, err := scaled.Reshape(1, shape[0]*shape[1], shape[2], shape[3])
	if err != nil {
		return nil, fmt.Errorf("fold conditioning batch into channels: %w", err)
	}

	return &projector{cond: cond}, nil
}

// inject tiles the precomputed tensor up to the live batch size and places
// it in the call's conditioning map, matching the live input's device and
// precision. The live batch must be an exact multiple of the precomputed
// batch; that is the caller's batching policy, not a choice made here.
func (p *projector) inject(params *model.UnetParams) error {
	b, b0 := params.Input.Dim(0), p.cond.Dim(0)
	if b%b0 != 0 {
		return fmt.Errorf("live batch %d is not a multiple of conditioning batch %d", b, b0)
	}

	tiled, err := p.cond.Tile(0, b/b0)
	if err != nil {
		return fmt.Errorf("broadcast conditioning to batch %d: %w", b, err)
	}

	params.C[concatKey] = tiled.To(params.Input.Device(), params.Input.DType())
	return nil
}

// stage is the forward-wrapper stage wired in by Apply: inject, then
// delegate to the continuation.
func (p *projector) stage(next model.UnetApplyFunc, params *model.UnetParams) (*ml.Tensor, error) {
	if err := p.inject(params); err != nil {
		return nil, err
	}

	return next(params)
}
