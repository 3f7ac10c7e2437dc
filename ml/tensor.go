package ml

import (
	"fmt"
	"math"
	"slices"

	"github.com/pdevine/tensor"
	"github.com/x448/float16"
)

// DType is the logical element type of a tensor. Storage is always float32
// on the CPU backend; F16 and BF16 tensors round their values through the
// reduced precision so arithmetic matches what the device would produce.
type DType int

const (
	DTypeF32 DType = iota
	DTypeF16
	DTypeBF16
)

func (t DType) String() string {
	switch t {
	case DTypeF32:
		return "F32"
	case DTypeF16:
		return "F16"
	case DTypeBF16:
		return "BF16"
	default:
		return "unknown"
	}
}

// Tensor is a dense CPU tensor with a logical dtype and device placement.
type Tensor struct {
	data   *tensor.Dense
	dtype  DType
	device Device
}

// NewTensor creates a tensor from a float32 backing slice. The backing is
// owned by the tensor afterwards.
func NewTensor(shape []int, data []float32) (*Tensor, error) {
	n := 1
	for _, d := range shape {
		n *= d
	}

	if n != len(data) {
		return nil, fmt.Errorf("backing length %d does not match shape %v", len(data), shape)
	}

	return &Tensor{
		data:   tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data)),
		device: CPU,
	}, nil
}

// Zeros creates a zero-valued float32 tensor.
func Zeros(shape ...int) *Tensor {
	return &Tensor{
		data:   tensor.New(tensor.WithShape(shape...), tensor.Of(tensor.Float32)),
		device: CPU,
	}
}

func (t *Tensor) Shape() []int {
	return slices.Clone([]int(t.data.Shape()))
}

// Dim returns the size of dimension n.
func (t *Tensor) Dim(n int) int {
	return t.data.Shape()[n]
}

func (t *Tensor) DType() DType {
	return t.dtype
}

func (t *Tensor) Device() Device {
	return t.device
}

// Floats exposes the tensor's backing values.
func (t *Tensor) Floats() []float32 {
	return t.data.Data().([]float32)
}

func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		data:   t.data.Clone().(*tensor.Dense),
		dtype:  t.dtype,
		device: t.device,
	}
}

// To returns a copy placed on device with the given logical dtype. Values
// are rounded through the target precision so later arithmetic agrees with
// native storage of that type.
func (t *Tensor) To(device Device, dtype DType) *Tensor {
	out := t.Clone()
	out.device = device

	if dtype == out.dtype {
		return out
	}

	data := out.Floats()
	switch dtype {
	case DTypeF16:
		for i, v := range data {
			data[i] = float16.Fromfloat32(v).Float32()
		}
	case DTypeBF16:
		for i, v := range data {
			data[i] = math.Float32frombits(math.Float32bits(v) &^ 0xffff)
		}
	}

	out.dtype = dtype
	return out
}

// MulScalar returns t * s elementwise.
func (t *Tensor) MulScalar(s float32) (*Tensor, error) {
	d, err := t.data.MulScalar(s, true)
	if err != nil {
		return nil, err
	}

	return &Tensor{data: d, dtype: t.dtype, device: t.device}, nil
}

// Add returns t + t2 elementwise. Shapes must match exactly.
func (t *Tensor) Add(t2 *Tensor) (*Tensor, error) {
	if !slices.Equal(t.Shape(), t2.Shape()) {
		return nil, fmt.Errorf("cannot add shape %v to shape %v", t2.Shape(), t.Shape())
	}

	d, err := t.data.Add(t2.data)
	if err != nil {
		return nil, err
	}

	return &Tensor{data: d, dtype: t.dtype, device: t.device}, nil
}

// Concat concatenates t with ts along dim.
func (t *Tensor) Concat(dim int, ts ...*Tensor) (*Tensor, error) {
	others := make([]*tensor.Dense, len(ts))
	for i, o := range ts {
		others[i] = o.data
	}

	d, err := t.data.Concat(dim, others...)
	if err != nil {
		return nil, err
	}

	return &Tensor{data: d, dtype: t.dtype, device: t.device}, nil
}

// Tile concatenates n copies of t along dim.
func (t *Tensor) Tile(dim, n int) (*Tensor, error) {
	if n < 1 {
		return nil, fmt.Errorf("cannot tile %d times", n)
	} else if n == 1 {
		return t.Clone(), nil
	}

	copies := make([]*Tensor, n-1)
	for i := range copies {
		copies[i] = t
	}

	return t.Concat(dim, copies...)
}

// PadDim zero-pads t along dim up to size. The existing values keep their
// leading positions; the tail is zero.
func (t *Tensor) PadDim(dim, size int) (*Tensor, error) {
	have := t.Dim(dim)
	if have > size {
		return nil, fmt.Errorf("cannot pad dimension %d from %d down to %d", dim, have, size)
	} else if have == size {
		return t.Clone(), nil
	}

	padShape := t.Shape()
	padShape[dim] = size - have
	return t.Concat(dim, Zeros(padShape...))
}

// Reshape returns a view-copy of t with a new shape covering the same
// number of elements.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	out := t.Clone()
	if err := out.data.Reshape(shape...); err != nil {
		return nil, err
	}

	return out, nil
}
