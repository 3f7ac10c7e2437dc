package convert

import (
	"cmp"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/x448/float16"
)

// TensorData is a decoded tensor staged for serialization.
type TensorData struct {
	Name  string
	Shape []uint64
	DType string
	Data  []float32
}

func (wt TensorData) byteSize() int64 {
	n := int64(len(wt.Data))
	switch wt.DType {
	case "F16":
		return n * 2
	default:
		return n * 4
	}
}

// WriteSafetensors serializes a tensor dictionary: an 8-byte little-endian
// header length, a JSON header of dtype/shape/offsets per tensor, then the
// packed payloads. Tensors are written in name order so offsets match the
// sorted header encoding/json produces for maps.
func WriteSafetensors(w io.Writer, ts []TensorData) error {
	slices.SortFunc(ts, func(a, b TensorData) int {
		return cmp.Compare(a.Name, b.Name)
	})

	headers := make(map[string]safetensorMetadata, len(ts))
	var offset int64
	for _, t := range ts {
		headers[t.Name] = safetensorMetadata{
			Type:    t.DType,
			Shape:   t.Shape,
			Offsets: []int64{offset, offset + t.byteSize()},
		}

		offset += t.byteSize()
	}

	header, err := json.Marshal(headers)
	if err != nil {
		return err
	}

	if err := binary.Write(w, binary.LittleEndian, int64(len(header))); err != nil {
		return err
	}

	if _, err := w.Write(header); err != nil {
		return err
	}

	for _, t := range ts {
		switch t.DType {
		case "F32":
			if err := binary.Write(w, binary.LittleEndian, t.Data); err != nil {
				return err
			}
		case "F16":
			u16s := make([]uint16, len(t.Data))
			for i, v := range t.Data {
				u16s[i] = float16.Fromfloat32(v).Bits()
			}

			if err := binary.Write(w, binary.LittleEndian, u16s); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown storage type: %s", t.DType)
		}
	}

	return nil
}
