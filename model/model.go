// Package model holds the diffusion model handle: immutable weight storage
// plus a per-handle overlay of additive weight patches and a forward-wrapper
// chain. Handles are cloned before mutation, so patching one handle never
// affects another.
package model

import (
	"errors"
	"fmt"
	"slices"

	"github.com/relight/relight/ml"
)

var (
	// ErrShapeMismatch is returned when a patch cannot be applied to its
	// target parameter, either because the target does not exist or the
	// delta's shape is incompatible after padding rules.
	ErrShapeMismatch = errors.New("patch shape mismatch")
)

// LatentFormat describes the latent space a model family operates in.
type LatentFormat struct {
	ScaleFactor float32
	Channels    int
}

// SD15 is the Stable Diffusion 1.x latent format.
var SD15 = LatentFormat{ScaleFactor: 0.18215, Channels: 4}

// PatchKind names how a patch combines with its target parameter.
type PatchKind string

// PatchKindDiff adds the delta tensor to the existing parameter value.
const PatchKindDiff PatchKind = "diff"

// Patch is a pending, non-destructive modification of one named parameter.
type Patch struct {
	Kind  PatchKind
	Delta *ml.Tensor

	// PadWeight zero-pads the delta's input-channel dimension up to the
	// target's when the source model was trained with fewer input channels.
	PadWeight bool
}

// ForwardFunc is a model's native denoising computation.
type ForwardFunc func(x, timestep *ml.Tensor, c map[string]*ml.Tensor) (*ml.Tensor, error)

// Latent is an encoded image batch as produced by a first-stage encoder.
// Samples is required; a nil Samples is a contract violation at the point
// of use.
type Latent struct {
	Samples *ml.Tensor
}

// Model is a handle on a diffusion network. The weight map and native
// forward function are shared between clones and never mutated; the patch
// registry and wrapper chain are per-handle.
type Model struct {
	Name   string
	Format LatentFormat

	weights map[string]*ml.Tensor
	forward ForwardFunc
	dtype   ml.DType
	device  ml.Device

	patches  map[string][]Patch
	wrappers []WrapperFunc
}

// New creates a model handle over a weight dictionary. The map is owned by
// the handle and treated as immutable from then on.
func New(name string, format LatentFormat, weights map[string]*ml.Tensor, forward ForwardFunc) *Model {
	dtype := ml.DTypeF32
	device := ml.CPU
	for _, w := range weights {
		dtype = w.DType()
		device = w.Device()
		break
	}

	return &Model{
		Name:    name,
		Format:  format,
		weights: weights,
		forward: forward,
		dtype:   dtype,
		device:  device,
		patches: make(map[string][]Patch),
	}
}

// Clone produces an independent handle sharing the underlying weights.
// The patch registry and wrapper chain are copied so mutating the clone
// leaves the original untouched.
func (m *Model) Clone() *Model {
	patches := make(map[string][]Patch, len(m.patches))
	for name, ps := range m.patches {
		patches[name] = slices.Clone(ps)
	}

	return &Model{
		Name:     m.Name,
		Format:   m.Format,
		weights:  m.weights,
		forward:  m.forward,
		dtype:    m.dtype,
		device:   m.device,
		patches:  patches,
		wrappers: slices.Clone(m.wrappers),
	}
}

func (m *Model) DType() ml.DType {
	return m.dtype
}

func (m *Model) Device() ml.Device {
	return m.device
}

// Weight returns the unpatched base value of a named parameter.
func (m *Model) Weight(name string) (*ml.Tensor, bool) {
	w, ok := m.weights[name]
	return w, ok
}

// StateDict copies the model's weight dictionary with every tensor cast to
// the given device and dtype. The copy is independent of the handle and may
// be released by the caller.
func (m *Model) StateDict(device ml.Device, dtype ml.DType) map[string]*ml.Tensor {
	sd := make(map[string]*ml.Tensor, len(m.weights))
	for name, w := range m.weights {
		sd[name] = w.To(device, dtype)
	}

	return sd
}

// AddPatches registers a batch of named patches on this handle. Patches are
// applied lazily by ResolvedWeight, not here, so shape problems surface at
// application time. Same-key patches from separate AddPatches calls
// accumulate and are summed at resolution.
func (m *Model) AddPatches(patches map[string]Patch) {
	for name, p := range patches {
		m.patches[name] = append(m.patches[name], p)
	}
}

// PatchedParams lists the parameter names with at least one pending patch.
func (m *Model) PatchedParams() []string {
	names := make([]string, 0, len(m.patches))
	for name := range m.patches {
		names = append(names, name)
	}

	slices.Sort(names)
	return names
}

// Patches returns the pending patches for one parameter name.
func (m *Model) Patches(name string) []Patch {
	return slices.Clone(m.patches[name])
}

// ResolvedWeight applies a parameter's pending patches to its base value.
// The base tensor is never mutated. Each pending patch contributes exactly
// once.
func (m *Model) ResolvedWeight(name string) (*ml.Tensor, error) {
	base, ok := m.weights[name]
	if !ok {
		return nil, fmt.Errorf("%w: no parameter %q", ErrShapeMismatch, name)
	}

	out := base.Clone()
	for _, p := range m.patches[name] {
		delta := p.Delta
		if p.PadWeight && len(delta.Shape()) > 1 && delta.Dim(1) < out.Dim(1) {
			padded, err := delta.PadDim(1, out.Dim(1))
			if err != nil {
				return nil, fmt.Errorf("%w: pad %q: %v", ErrShapeMismatch, name, err)
			}

			delta = padded
		}

		if !slices.Equal(delta.Shape(), out.Shape()) {
			return nil, fmt.Errorf("%w: delta %v does not fit parameter %q %v", ErrShapeMismatch, delta.Shape(), name, out.Shape())
		}

		sum, err := out.Add(delta)
		if err != nil {
			return nil, fmt.Errorf("apply patch to %q: %w", name, err)
		}

		out = sum
	}

	return out, nil
}

// ResolveAll applies every pending patch, returning the effective weight
// dictionary for a forward pass. Unpatched parameters share the base
// tensors. Fails without partial results if any patch is incompatible.
func (m *Model) ResolveAll() (map[string]*ml.Tensor, error) {
	resolved := make(map[string]*ml.Tensor, len(m.weights))
	for name, w := range m.weights {
		resolved[name] = w
	}

	for name := range m.patches {
		w, err := m.ResolvedWeight(name)
		if err != nil {
			return nil, err
		}

		resolved[name] = w
	}

	return resolved, nil
}
