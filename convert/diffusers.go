package convert

import (
	"fmt"
	"strings"
)

// The diffusers UNet layout names blocks semantically (down_blocks.N,
// resnets.N, time_embedding); the ldm layout indexes flat module lists
// (input_blocks.N.M, in_layers.N). Each pair below is {ldm, diffusers}.

var unetConversionMap = [][2]string{
	{"time_embed.0.weight", "time_embedding.linear_1.weight"},
	{"time_embed.0.bias", "time_embedding.linear_1.bias"},
	{"time_embed.2.weight", "time_embedding.linear_2.weight"},
	{"time_embed.2.bias", "time_embedding.linear_2.bias"},
	{"input_blocks.0.0.weight", "conv_in.weight"},
	{"input_blocks.0.0.bias", "conv_in.bias"},
	{"out.0.weight", "conv_norm_out.weight"},
	{"out.0.bias", "conv_norm_out.bias"},
	{"out.2.weight", "conv_out.weight"},
	{"out.2.bias", "conv_out.bias"},
}

var unetConversionMapResnet = [][2]string{
	{"in_layers.0", "norm1"},
	{"in_layers.2", "conv1"},
	{"out_layers.0", "norm2"},
	{"out_layers.3", "conv2"},
	{"emb_layers.1", "time_emb_proj"},
	{"skip_connection", "conv_shortcut"},
}

// unetConversionMapLayer builds the per-block prefix pairs for the SD 1.x
// UNet topology: 4 down blocks of 2 resnets, 4 up blocks of 3 resnets, and
// a middle block of resnet/attention/resnet.
func unetConversionMapLayer() [][2]string {
	var m [][2]string

	add := func(ldm, hf string) {
		m = append(m, [2]string{ldm, hf})
	}

	for i := range 4 {
		for j := range 2 {
			add(fmt.Sprintf("input_blocks.%d.0.", 3*i+j+1), fmt.Sprintf("down_blocks.%d.resnets.%d.", i, j))
			add(fmt.Sprintf("input_blocks.%d.1.", 3*i+j+1), fmt.Sprintf("down_blocks.%d.attentions.%d.", i, j))
		}

		for j := range 3 {
			add(fmt.Sprintf("output_blocks.%d.0.", 3*i+j), fmt.Sprintf("up_blocks.%d.resnets.%d.", i, j))
			add(fmt.Sprintf("output_blocks.%d.1.", 3*i+j), fmt.Sprintf("up_blocks.%d.attentions.%d.", i, j))
		}

		if i < 3 {
			add(fmt.Sprintf("input_blocks.%d.0.op.", 3*(i+1)), fmt.Sprintf("down_blocks.%d.downsamplers.0.conv.", i))

			// the first up block has no attention, so its upsampler sits at
			// module index 1 instead of 2
			upsampleIndex := 2
			if i == 0 {
				upsampleIndex = 1
			}
			add(fmt.Sprintf("output_blocks.%d.%d.", 3*i+2, upsampleIndex), fmt.Sprintf("up_blocks.%d.upsamplers.0.", i))
		}
	}

	add("middle_block.1.", "mid_block.attentions.0.")
	for j := range 2 {
		add(fmt.Sprintf("middle_block.%d.", 2*j), fmt.Sprintf("mid_block.resnets.%d.", j))
	}

	return m
}

// ldmUNetNames maps each diffusers UNet key to its ldm name. Keys with no
// mapping pass through unchanged.
func ldmUNetNames(keys []string) map[string]string {
	mapping := make(map[string]string, len(keys))
	for _, k := range keys {
		mapping[k] = k
	}

	for _, p := range unetConversionMap {
		if _, ok := mapping[p[1]]; ok {
			mapping[p[1]] = p[0]
		}
	}

	for k, v := range mapping {
		if strings.Contains(k, "resnets") {
			for _, p := range unetConversionMapResnet {
				v = strings.ReplaceAll(v, p[1], p[0])
			}

			mapping[k] = v
		}
	}

	layerMap := unetConversionMapLayer()
	for k, v := range mapping {
		for _, p := range layerMap {
			v = strings.ReplaceAll(v, p[1], p[0])
		}

		mapping[k] = v
	}

	return mapping
}
