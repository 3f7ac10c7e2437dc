package convert

import (
	"fmt"

	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"
)

// ParseTorch reads legacy pickle checkpoints (.ckpt, .pt, .bin), renaming
// entries through fn. Unlike safetensors, storage is decoded eagerly by the
// pickle machinery; Floats only reslices it.
func ParseTorch(fn renameFunc, ps ...string) ([]Tensor, error) {
	var ts []Tensor
	for _, p := range ps {
		pt, err := pytorch.Load(p)
		if err != nil {
			return nil, err
		}

		dict, ok := pt.(*types.Dict)
		if !ok {
			return nil, fmt.Errorf("%s: checkpoint root is %T, expected a dict", p, pt)
		}

		for _, k := range dict.Keys() {
			t, ok := dict.MustGet(k).(*pytorch.Tensor)
			if !ok {
				continue
			}

			var shape []uint64
			for _, dim := range t.Size {
				shape = append(shape, uint64(dim))
			}

			ts = append(ts, torch{
				storage: t.Source,
				offset:  t.StorageOffset,
				tensorBase: &tensorBase{
					name:  rename(fn, k.(string)),
					shape: shape,
				},
			})
		}
	}

	return ts, nil
}

type torch struct {
	storage pytorch.StorageInterface
	offset  int
	*tensorBase
}

func (t torch) DType() string {
	switch t.storage.(type) {
	case *pytorch.FloatStorage:
		return "F32"
	case *pytorch.HalfStorage:
		return "F16"
	case *pytorch.BFloat16Storage:
		return "BF16"
	case *pytorch.DoubleStorage:
		return "F64"
	default:
		return "unknown"
	}
}

func (t torch) Floats() ([]float32, error) {
	n := int(t.elements())

	switch s := t.storage.(type) {
	case *pytorch.FloatStorage:
		return s.Data[t.offset : t.offset+n], nil
	case *pytorch.HalfStorage:
		return s.Data[t.offset : t.offset+n], nil
	case *pytorch.BFloat16Storage:
		return s.Data[t.offset : t.offset+n], nil
	case *pytorch.DoubleStorage:
		f32s := make([]float32, n)
		for i, v := range s.Data[t.offset : t.offset+n] {
			f32s[i] = float32(v)
		}

		return f32s, nil
	default:
		return nil, fmt.Errorf("unsupported torch storage %T for %q", t.storage, t.name)
	}
}
