package convert

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"slices"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
	"golang.org/x/exp/maps"
)

type safetensorMetadata struct {
	Type    string   `json:"dtype"`
	Shape   []uint64 `json:"shape"`
	Offsets []int64  `json:"data_offsets"`
}

// ParseSafetensors reads the tensor dictionaries at ps, renaming entries
// through fn. Tensor payloads are read lazily by Floats.
func ParseSafetensors(fsys fs.FS, fn renameFunc, ps ...string) ([]Tensor, error) {
	var ts []Tensor
	for _, p := range ps {
		f, err := fsys.Open(p)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		var n int64
		if err := binary.Read(f, binary.LittleEndian, &n); err != nil {
			return nil, err
		}

		b := bytes.NewBuffer(make([]byte, 0, n))
		if _, err = io.CopyN(b, f, n); err != nil {
			return nil, err
		}

		var headers map[string]safetensorMetadata
		if err := json.NewDecoder(b).Decode(&headers); err != nil {
			return nil, err
		}

		delete(headers, "__metadata__")

		keys := maps.Keys(headers)
		slices.Sort(keys)

		names := make(map[string]struct{}, len(keys))

		for _, key := range keys {
			value := headers[key]
			if value.Type == "" {
				continue
			}

			if len(value.Shape) == 0 {
				return nil, errors.New("unsupported safetensors checkpoint")
			}

			name := rename(fn, key)
			if _, ok := names[name]; ok {
				return nil, fmt.Errorf("duplicate tensor name %q", name)
			}
			names[name] = struct{}{}

			ts = append(ts, safetensor{
				fs:     fsys,
				path:   p,
				dtype:  value.Type,
				offset: safetensorsPad(n, value.Offsets[0]),
				size:   safetensorsPad(n, value.Offsets[1]) - safetensorsPad(n, value.Offsets[0]),
				tensorBase: &tensorBase{
					name:  name,
					shape: value.Shape,
				},
			})
		}
	}

	return ts, nil
}

// safetensorsPad returns the absolute file offset for a data offset given
// the header length n.
func safetensorsPad(n, offset int64) int64 {
	return 8 + n + offset
}

type safetensor struct {
	fs     fs.FS
	path   string
	dtype  string
	offset int64
	size   int64
	*tensorBase
}

func (st safetensor) DType() string {
	return st.dtype
}

func (st safetensor) Floats() ([]float32, error) {
	f, err := st.fs.Open(st.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if seeker, ok := f.(io.Seeker); ok {
		if _, err := seeker.Seek(st.offset, io.SeekStart); err != nil {
			return nil, err
		}
	} else {
		if _, err := io.CopyN(io.Discard, f, st.offset); err != nil {
			return nil, err
		}
	}

	switch st.dtype {
	case "F32":
		f32s := make([]float32, st.size/4)
		if err := binary.Read(f, binary.LittleEndian, f32s); err != nil {
			return nil, err
		}

		return f32s, nil
	case "F16":
		u16s := make([]uint16, st.size/2)
		if err := binary.Read(f, binary.LittleEndian, u16s); err != nil {
			return nil, err
		}

		f32s := make([]float32, len(u16s))
		for i := range u16s {
			f32s[i] = float16.Frombits(u16s[i]).Float32()
		}

		return f32s, nil
	case "BF16":
		u8s := make([]uint8, st.size)
		if err := binary.Read(f, binary.LittleEndian, u8s); err != nil {
			return nil, err
		}

		return bfloat16.DecodeFloat32(u8s), nil
	default:
		return nil, fmt.Errorf("unknown data type: %s", st.dtype)
	}
}
