package relight

import (
	"log/slog"

	"github.com/relight/relight/ml"
	"github.com/relight/relight/model"
)

// inputProjectionWeight is the first convolution of the UNet. IC-Light
// checkpoints widen it to take the concatenated conditioning channels, so
// its delta needs zero-padding against bases trained with fewer inputs.
const inputProjectionWeight = "input_blocks.0.0.weight"

// diffusionPrefix qualifies auxiliary parameter names into the base model's
// parameter namespace.
const diffusionPrefix = "diffusion_model."

// BuildPatches turns the auxiliary model's weights into additive-diff
// patches against the base model's diffusion sub-network. The intermediate
// state dict is released before returning; this runs while both full weight
// sets are resident, so the allocator is asked to trim afterwards.
func BuildPatches(aux *model.Model, device ml.Device, dtype ml.DType) map[string]model.Patch {
	sd := aux.StateDict(device, dtype)

	patches := make(map[string]model.Patch, len(sd))
	for key, w := range sd {
		patches[diffusionPrefix+key] = model.Patch{
			Kind:      model.PatchKindDiff,
			Delta:     w,
			PadWeight: key == inputProjectionWeight,
		}
	}

	slog.Debug("built weight patches", "model", aux.Name, "count", len(patches))

	clear(sd)
	ml.SoftEmptyCache()

	return patches
}
