package classifier

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

const depthwiseWithGroups = `{
	"name": "block1_dwconv",
	"kernel_size": [3, 3],
	"strides": [1, 1],
	"padding": "same",
	"data_format": "channels_last",
	"dilation_rate": [1, 1],
	"depth_multiplier": 1,
	"activation": "linear",
	"use_bias": false,
	"trainable": true,
	"dtype": "float32",
	"groups": 1
}`

func TestSanitizeLayerConfigDropsGroupsFromDepthwise(t *testing.T) {
	cleaned, err := sanitizeLayerConfig(depthwiseConv2DClass, json.RawMessage(depthwiseWithGroups))
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(cleaned, &fields))
	require.NotContains(t, fields, "groups")
	require.Contains(t, fields, "depth_multiplier")
}

func TestSanitizeLayerConfigLeavesOtherLayersUntouched(t *testing.T) {
	raw := json.RawMessage(`{"name": "conv1", "groups": 4}`)
	cleaned, err := sanitizeLayerConfig("Conv2D", raw)
	require.NoError(t, err)
	require.Equal(t, raw, cleaned)
}

func TestStrictDecodeRejectsUnsanitizedDepthwiseConfig(t *testing.T) {
	err := strictDecodeLayer(depthwiseConv2DClass, json.RawMessage(depthwiseWithGroups))
	require.Error(t, err)
	require.Contains(t, err.Error(), "incompatible")

	cleaned, err := sanitizeLayerConfig(depthwiseConv2DClass, json.RawMessage(depthwiseWithGroups))
	require.NoError(t, err)
	require.NoError(t, strictDecodeLayer(depthwiseConv2DClass, cleaned))
}

func TestDecodeMetadataSanitizesLayers(t *testing.T) {
	raw := []byte(`{
		"model_version": "EfficientNetB0",
		"input_shape": [1, 150, 150, 3],
		"output_shape": [1, 3],
		"classes": ["CONTROL", "AD", "PD"],
		"layers": [
			{"class_name": "Conv2D", "config": {"name": "stem_conv"}},
			{"class_name": "DepthwiseConv2D", "config": ` + depthwiseWithGroups + `}
		]
	}`)

	meta, err := decodeMetadata(raw)
	require.NoError(t, err)
	require.Equal(t, "EfficientNetB0", meta.ModelVersion)
	require.Len(t, meta.Layers, 2)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(meta.Layers[1].Config, &fields))
	require.NotContains(t, fields, "groups")
}

func TestDecodeMetadataRejectsWrongGeometry(t *testing.T) {
	cases := []string{
		`{"input_shape": [1, 224, 224, 3], "output_shape": [1, 3], "classes": ["CONTROL", "AD", "PD"]}`,
		`{"input_shape": [1, 150, 150, 3], "output_shape": [1, 5], "classes": ["CONTROL", "AD", "PD"]}`,
		`{"input_shape": [1, 150, 150, 3], "output_shape": [1, 3], "classes": ["CONTROL", "AD"]}`,
	}
	for _, raw := range cases {
		_, err := decodeMetadata([]byte(raw))
		require.Error(t, err, "metadata %s", raw)
	}
}
