// Package compositing has image/mask helpers used when preparing relight
// inputs.
package compositing

import (
	"errors"
	"fmt"

	"github.com/relight/relight/ml"
)

// ErrTypeViolation is returned when a mask argument is not a tensor of the
// expected rank.
var ErrTypeViolation = errors.New("alpha mask is not a tensor of the expected kind")

// ApplyMaskGrey blends the masked-out area of an image to mid grey:
// image*alpha + 0.5*(1-alpha). image is (B, H, W, C); alpha is (B, H, W) or
// (B, H, W, 1) and broadcasts over channels.
func ApplyMaskGrey(image, alpha *ml.Tensor) (*ml.Tensor, error) {
	if image == nil || len(image.Shape()) != 4 {
		return nil, fmt.Errorf("%w: image must be (B, H, W, C)", ErrTypeViolation)
	}

	if alpha == nil {
		return nil, ErrTypeViolation
	}

	ashape := alpha.Shape()
	switch {
	case len(ashape) == 3:
	case len(ashape) == 4 && ashape[3] == 1:
		ashape = ashape[:3]
	default:
		return nil, fmt.Errorf("%w: alpha must be (B, H, W) or (B, H, W, 1), got %v", ErrTypeViolation, alpha.Shape())
	}

	ishape := image.Shape()
	if ishape[0] != ashape[0] || ishape[1] != ashape[1] || ishape[2] != ashape[2] {
		return nil, fmt.Errorf("alpha %v does not cover image %v", alpha.Shape(), ishape)
	}

	channels := ishape[3]
	src, msk := image.Floats(), alpha.Floats()

	blended := make([]float32, len(src))
	for i, a := range msk {
		for c := range channels {
			j := i*channels + c
			blended[j] = src[j]*a + 0.5*(1-a)
		}
	}

	return ml.NewTensor(ishape, blended)
}
