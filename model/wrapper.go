package model

import "github.com/relight/relight/ml"

// UnetParams is the record threaded through the forward-wrapper chain on
// every denoising step. Wrapper stages mutate it in place before handing it
// to their continuation.
type UnetParams struct {
	Input    *ml.Tensor
	Timestep *ml.Tensor

	// C is the auxiliary conditioning mapping passed to the native forward
	// as keyword tensors.
	C map[string]*ml.Tensor

	// CondOrUncond marks which batch entries are conditional vs
	// unconditional under classifier-free guidance.
	CondOrUncond []int
}

// UnetApplyFunc is a stage's continuation: it carries the rest of the chain
// and, innermost, the model's native forward.
type UnetApplyFunc func(params *UnetParams) (*ml.Tensor, error)

// WrapperFunc is one interception stage around the forward call. A stage
// must invoke next exactly once; the native forward runs a single time per
// denoising step no matter how many stages are installed.
type WrapperFunc func(next UnetApplyFunc, params *UnetParams) (*ml.Tensor, error)

// SetWrapperFunction composes a new stage onto the wrapper chain without
// displacing stages installed earlier. Stages run in reverse installation
// order: the newest stage's pre-processing first, the native forward last.
func (m *Model) SetWrapperFunction(stage WrapperFunc) {
	m.wrappers = append(m.wrappers, stage)
}

// WrapperDepth reports how many stages are installed.
func (m *Model) WrapperDepth() int {
	return len(m.wrappers)
}

// Forward runs one denoising step through the wrapper chain. The chain is
// rebuilt from the stage list on every call, so repeated calls see identical
// behavior and stages cannot leak state between steps.
func (m *Model) Forward(params *UnetParams) (*ml.Tensor, error) {
	next := UnetApplyFunc(func(params *UnetParams) (*ml.Tensor, error) {
		return m.forward(params.Input, params.Timestep, params.C)
	})

	for _, stage := range m.wrappers {
		stage, inner := stage, next
		next = func(params *UnetParams) (*ml.Tensor, error) {
			return stage(inner, params)
		}
	}

	return next(params)
}
