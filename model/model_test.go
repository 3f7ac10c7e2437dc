package model

import (
	"errors"
	"slices"
	"testing"

	"github.com/relight/relight/ml"
)

func testWeights(t *testing.T) map[string]*ml.Tensor {
	t.Helper()

	conv := make([]float32, 8*4*3*3)
	for i := range conv {
		conv[i] = float32(i%7) * 0.25
	}

	w, err := ml.NewTensor([]int{8, 4, 3, 3}, conv)
	if err != nil {
		t.Fatal(err)
	}

	b, err := ml.NewTensor([]int{8}, []float32{1, 2, 3, 4, 5, 6, 7, 8})
	if err != nil {
		t.Fatal(err)
	}

	return map[string]*ml.Tensor{
		"diffusion_model.input_blocks.0.0.weight": w,
		"diffusion_model.input_blocks.0.0.bias":   b,
	}
}

func noopForward(x, timestep *ml.Tensor, c map[string]*ml.Tensor) (*ml.Tensor, error) {
	return x, nil
}

func TestCloneIndependentOverlay(t *testing.T) {
	m := New("base", SD15, testWeights(t), noopForward)

	clone := m.Clone()
	delta, err := ml.NewTensor([]int{8}, make([]float32, 8))
	if err != nil {
		t.Fatal(err)
	}

	clone.AddPatches(map[string]Patch{
		"diffusion_model.input_blocks.0.0.bias": {Kind: PatchKindDiff, Delta: delta},
	})
	clone.SetWrapperFunction(func(next UnetApplyFunc, params *UnetParams) (*ml.Tensor, error) {
		return next(params)
	})

	if len(m.PatchedParams()) != 0 {
		t.Errorf("patching the clone leaked into the original: %v", m.PatchedParams())
	}

	if m.WrapperDepth() != 0 {
		t.Errorf("wrapper installed on clone reached the original: depth %d", m.WrapperDepth())
	}

	if len(clone.PatchedParams()) != 1 || clone.WrapperDepth() != 1 {
		t.Errorf("clone overlay not updated: %v, depth %d", clone.PatchedParams(), clone.WrapperDepth())
	}
}

func TestResolvedWeightPadding(t *testing.T) {
	m := New("base", SD15, testWeights(t), noopForward)

	base, _ := m.Weight("diffusion_model.input_blocks.0.0.weight")
	baseVals := slices.Clone(base.Floats())

	// delta trained with 2 input channels against a 4-channel target
	deltaVals := make([]float32, 8*2*3*3)
	for i := range deltaVals {
		deltaVals[i] = 1
	}

	delta, err := ml.NewTensor([]int{8, 2, 3, 3}, deltaVals)
	if err != nil {
		t.Fatal(err)
	}

	m.AddPatches(map[string]Patch{
		"diffusion_model.input_blocks.0.0.weight": {Kind: PatchKindDiff, Delta: delta, PadWeight: true},
	})

	got, err := m.ResolvedWeight("diffusion_model.input_blocks.0.0.weight")
	if err != nil {
		t.Fatal(err)
	}

	if want := []int{8, 4, 3, 3}; !slices.Equal(got.Shape(), want) {
		t.Fatalf("got shape %v, want %v", got.Shape(), want)
	}

	vals := got.Floats()
	for o := range 8 {
		for c := range 4 {
			for i := range 9 {
				j := o*4*9 + c*9 + i
				want := baseVals[j]
				if c < 2 {
					want += 1
				}

				if vals[j] != want {
					t.Fatalf("out %d channel %d elem %d: got %v, want %v", o, c, i, vals[j], want)
				}
			}
		}
	}

	// base storage untouched
	if !slices.Equal(base.Floats(), baseVals) {
		t.Error("resolving patches mutated the base weight")
	}
}

func TestResolvedWeightSumsSameKey(t *testing.T) {
	m := New("base", SD15, testWeights(t), noopForward)

	one, err := ml.NewTensor([]int{8}, []float32{1, 1, 1, 1, 1, 1, 1, 1})
	if err != nil {
		t.Fatal(err)
	}

	for range 2 {
		m.AddPatches(map[string]Patch{
			"diffusion_model.input_blocks.0.0.bias": {Kind: PatchKindDiff, Delta: one},
		})
	}

	got, err := m.ResolvedWeight("diffusion_model.input_blocks.0.0.bias")
	if err != nil {
		t.Fatal(err)
	}

	if want := []float32{3, 4, 5, 6, 7, 8, 9, 10}; !slices.Equal(got.Floats(), want) {
		t.Errorf("got %v, want %v", got.Floats(), want)
	}
}

func TestResolvedWeightErrors(t *testing.T) {
	m := New("base", SD15, testWeights(t), noopForward)

	bad, err := ml.NewTensor([]int{3}, []float32{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}

	m.AddPatches(map[string]Patch{
		"diffusion_model.input_blocks.0.0.bias": {Kind: PatchKindDiff, Delta: bad},
		"diffusion_model.no_such_parameter":     {Kind: PatchKindDiff, Delta: bad},
	})

	if _, err := m.ResolvedWeight("diffusion_model.input_blocks.0.0.bias"); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("incompatible delta: got %v, want ErrShapeMismatch", err)
	}

	if _, err := m.ResolvedWeight("diffusion_model.no_such_parameter"); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("unknown target: got %v, want ErrShapeMismatch", err)
	}

	if _, err := m.ResolveAll(); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("ResolveAll: got %v, want ErrShapeMismatch", err)
	}
}

func TestResolveAllSharesUnpatched(t *testing.T) {
	m := New("base", SD15, testWeights(t), noopForward)

	resolved, err := m.ResolveAll()
	if err != nil {
		t.Fatal(err)
	}

	base, _ := m.Weight("diffusion_model.input_blocks.0.0.weight")
	if resolved["diffusion_model.input_blocks.0.0.weight"] != base {
		t.Error("unpatched parameter should share the base tensor")
	}
}
