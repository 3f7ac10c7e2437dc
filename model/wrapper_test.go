package model

import (
	"slices"
	"testing"

	"github.com/relight/relight/ml"
)

func TestForwardNoWrappers(t *testing.T) {
	var calls int
	m := New("base", SD15, testWeights(t), func(x, timestep *ml.Tensor, c map[string]*ml.Tensor) (*ml.Tensor, error) {
		calls++
		return x, nil
	})

	x := ml.Zeros(1, 4, 8, 8)
	out, err := m.Forward(&UnetParams{Input: x, Timestep: ml.Zeros(1), C: map[string]*ml.Tensor{}})
	if err != nil {
		t.Fatal(err)
	}

	if out != x {
		t.Error("identity forward should return its input")
	}

	if calls != 1 {
		t.Errorf("native forward called %d times", calls)
	}
}

func TestWrapperCompositionOrder(t *testing.T) {
	var calls int
	m := New("base", SD15, testWeights(t), func(x, timestep *ml.Tensor, c map[string]*ml.Tensor) (*ml.Tensor, error) {
		calls++
		return x, nil
	})

	var order []string
	stage := func(name string) WrapperFunc {
		return func(next UnetApplyFunc, params *UnetParams) (*ml.Tensor, error) {
			order = append(order, name)
			return next(params)
		}
	}

	m.SetWrapperFunction(stage("X"))
	m.SetWrapperFunction(stage("Y"))

	params := &UnetParams{Input: ml.Zeros(1, 4, 8, 8), Timestep: ml.Zeros(1), C: map[string]*ml.Tensor{}}
	if _, err := m.Forward(params); err != nil {
		t.Fatal(err)
	}

	// most recently installed stage pre-processes first
	if want := []string{"Y", "X"}; !slices.Equal(order, want) {
		t.Errorf("got order %v, want %v", order, want)
	}

	if calls != 1 {
		t.Errorf("native forward called %d times, want exactly 1", calls)
	}

	// chain is stateless across calls
	order = order[:0]
	if _, err := m.Forward(params); err != nil {
		t.Fatal(err)
	}

	if want := []string{"Y", "X"}; !slices.Equal(order, want) {
		t.Errorf("second call: got order %v, want %v", order, want)
	}

	if calls != 2 {
		t.Errorf("native forward called %d times over two steps", calls)
	}
}

func TestWrapperChainClonedByValue(t *testing.T) {
	m := New("base", SD15, testWeights(t), noopForward)
	m.SetWrapperFunction(func(next UnetApplyFunc, params *UnetParams) (*ml.Tensor, error) {
		return next(params)
	})

	clone := m.Clone()
	clone.SetWrapperFunction(func(next UnetApplyFunc, params *UnetParams) (*ml.Tensor, error) {
		return next(params)
	})

	if m.WrapperDepth() != 1 {
		t.Errorf("original depth %d, want 1", m.WrapperDepth())
	}

	if clone.WrapperDepth() != 2 {
		t.Errorf("clone depth %d, want 2", clone.WrapperDepth())
	}
}
