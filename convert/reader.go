// Package convert reads serialized tensor dictionaries (safetensors,
// legacy torch checkpoints) and rewrites diffusers-layout UNet weights into
// the ldm layout the runtime expects, downcasting precision on the way out.
package convert

import (
	"fmt"
	"path/filepath"
)

// Tensor is one entry of an on-disk tensor dictionary.
type Tensor interface {
	Name() string
	Shape() []uint64
	DType() string
	Floats() ([]float32, error)
}

type tensorBase struct {
	name  string
	shape []uint64
}

func (t tensorBase) Name() string {
	return t.name
}

func (t tensorBase) Shape() []uint64 {
	return t.shape
}

func (t tensorBase) elements() uint64 {
	n := uint64(1)
	for _, d := range t.shape {
		n *= d
	}

	return n
}

// renameFunc rewrites tensor names while reading. A nil renameFunc keeps
// names as stored.
type renameFunc func(string) string

func rename(fn renameFunc, name string) string {
	if fn == nil {
		return name
	}

	return fn(name)
}

// Detect returns the reader for a checkpoint path by extension.
func Detect(p string) (string, error) {
	switch filepath.Ext(p) {
	case ".safetensors":
		return "safetensors", nil
	case ".pt", ".pth", ".ckpt", ".bin":
		return "torch", nil
	default:
		return "", fmt.Errorf("unknown checkpoint format %q", filepath.Ext(p))
	}
}
