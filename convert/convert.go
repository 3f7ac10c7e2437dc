package convert

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/relight/relight/envconfig"
	"github.com/relight/relight/format"
)

// UnetOptions control the offline conversion output.
type UnetOptions struct {
	// OutType is the serialized element type, "F16" (default) or "F32".
	OutType string
}

func (o UnetOptions) outType() string {
	if o.OutType == "" {
		return "F16"
	}

	return o.OutType
}

// ConvertUnet reads a diffusers-layout UNet tensor dictionary from path,
// remaps every key into the ldm layout, downcasts to the requested element
// type, and re-serializes the dictionary to w as safetensors. One-shot
// batch transform; nothing here touches the runtime patching path.
func ConvertUnet(fsys fs.FS, path string, w io.Writer, opts UnetOptions) error {
	switch opts.outType() {
	case "F16", "F32":
	default:
		return fmt.Errorf("unsupported output type %q", opts.OutType)
	}

	ts, err := ParseSafetensors(fsys, nil, path)
	if err != nil {
		return err
	}

	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = t.Name()
	}

	mapping := ldmUNetNames(names)

	out := make([]TensorData, len(ts))
	var g errgroup.Group
	g.SetLimit(envconfig.NumParallel)

	for i, t := range ts {
		g.Go(func() error {
			f32s, err := t.Floats()
			if err != nil {
				return fmt.Errorf("decode %q: %w", t.Name(), err)
			}

			out[i] = TensorData{
				Name:  mapping[t.Name()],
				Shape: t.Shape(),
				DType: opts.outType(),
				Data:  f32s,
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	var bytes int64
	for _, t := range out {
		bytes += t.byteSize()
	}

	slog.Info("converted unet checkpoint",
		"tensors", len(out),
		"dtype", opts.outType(),
		"size", format.HumanBytes(bytes))

	return WriteSafetensors(w, out)
}
