package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/relight/relight/convert"
	"github.com/relight/relight/ml"
)

// LoadFromSafetensors builds a model handle from a serialized checkpoint.
// Weights are decoded to the host once; handles cloned from the result
// share this storage.
func LoadFromSafetensors(path string, format LatentFormat, forward ForwardFunc) (*Model, error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}

	ts, err := convert.ParseSafetensors(os.DirFS(dir), nil, base)
	if err != nil {
		return nil, err
	}

	weights := make(map[string]*ml.Tensor, len(ts))
	for _, t := range ts {
		f32s, err := t.Floats()
		if err != nil {
			return nil, fmt.Errorf("decode %q: %w", t.Name(), err)
		}

		shape := make([]int, len(t.Shape()))
		for i, d := range t.Shape() {
			shape[i] = int(d)
		}

		w, err := ml.NewTensor(shape, f32s)
		if err != nil {
			return nil, fmt.Errorf("tensor %q: %w", t.Name(), err)
		}

		weights[t.Name()] = w.To(ml.CPU, dtypeOf(t.DType()))
	}

	name := strings.TrimSuffix(base, filepath.Ext(base))
	return New(name, format, weights, forward), nil
}

func dtypeOf(s string) ml.DType {
	switch s {
	case "F16":
		return ml.DTypeF16
	case "BF16":
		return ml.DTypeBF16
	default:
		return ml.DTypeF32
	}
}
