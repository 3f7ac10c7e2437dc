// Package relight merges an IC-Light auxiliary network into a diffusion
// model without retraining or mutating it: the auxiliary weights become
// additive patches on a clone of the base model, and a forward wrapper
// concatenates an encoded background latent into every denoising call.
package relight

import (
	"errors"
	"log/slog"

	"github.com/relight/relight/ml"
	"github.com/relight/relight/model"
)

// ErrMissingField is returned when the conditioning input lacks its latent
// samples tensor.
var ErrMissingField = errors.New("conditioning input has no samples tensor")

// Apply returns a clone of base carrying the auxiliary model's weights as
// non-destructive patches plus a forward wrapper that injects the
// conditioning latent on every denoising step. base and aux are left
// untouched; on any failure no half-patched model is returned.
func Apply(base, aux *model.Model, conc *model.Latent) (*model.Model, error) {
	if conc == nil || conc.Samples == nil {
		return nil, ErrMissingField
	}

	work := base.Clone()

	proj, err := newProjector(conc.Samples, work.Format.ScaleFactor)
	if err != nil {
		return nil, err
	}

	work.SetWrapperFunction(proj.stage)
	work.AddPatches(BuildPatches(aux, work.Device(), work.DType()))

	slog.Debug("applied relight patches",
		"base", base.Name,
		"aux", aux.Name,
		"patched", len(work.PatchedParams()),
		"wrappers", work.WrapperDepth())

	ml.SoftEmptyCache()

	return work, nil
}
