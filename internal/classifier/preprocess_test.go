package classifier

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestPreprocessor() *Preprocessor {
	logger := zap.NewNop()
	return NewPreprocessor(NewValidator(logger), logger)
}

func TestPrepareGrayscaleProducesFixedShape(t *testing.T) {
	pre := newTestPreprocessor()

	tensor, err := pre.Prepare(encodePNG(t, grayImage(300, 300, 77)))
	require.NoError(t, err)
	require.Equal(t, [4]int64{1, 150, 150, 3}, tensor.Shape)
	require.Len(t, tensor.Data, TensorSize)

	// Grayscale sources are channel-replicated: all 3 channels equal per pixel.
	for i := 0; i < TensorSize; i += InputChannels {
		require.Equal(t, tensor.Data[i], tensor.Data[i+1])
		require.Equal(t, tensor.Data[i], tensor.Data[i+2])
	}
}

func TestPrepareRGBADropsAlpha(t *testing.T) {
	pre := newTestPreprocessor()

	// Near-gray pixels so validation passes; alpha well below opaque.
	img := image.NewNRGBA(image.Rect(0, 0, 40, 90))
	for y := 0; y < 90; y++ {
		for x := 0; x < 40; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 120, G: 121, B: 119, A: 128})
		}
	}

	tensor, err := pre.Prepare(encodePNG(t, img))
	require.NoError(t, err)
	require.Equal(t, [4]int64{1, 150, 150, 3}, tensor.Shape)
	require.Len(t, tensor.Data, TensorSize)
}

func TestPrepareOddSizesAreSquashedTo150(t *testing.T) {
	pre := newTestPreprocessor()

	for _, dims := range [][2]int{{1, 1}, {17, 503}, {150, 150}, {1024, 64}} {
		tensor, err := pre.Prepare(encodePNG(t, grayImage(dims[0], dims[1], 200)))
		require.NoError(t, err, "dims %v", dims)
		require.Equal(t, [4]int64{1, 150, 150, 3}, tensor.Shape, "dims %v", dims)
	}
}

func TestPrepareRejectsColorPhotographWithReason(t *testing.T) {
	pre := newTestPreprocessor()

	_, err := pre.Prepare(encodePNG(t, uniformRGBA(32, 32, color.NRGBA{R: 255, A: 255})))
	var perr *PreprocessingError
	require.ErrorAs(t, err, &perr)
	require.Contains(t, perr.Reason, "color photograph")
}

func TestPrepareFailsOnUndecodableBytes(t *testing.T) {
	pre := newTestPreprocessor()

	_, err := pre.Prepare([]byte{0xde, 0xad, 0xbe, 0xef})
	var perr *PreprocessingError
	require.ErrorAs(t, err, &perr)
	require.NotEmpty(t, perr.Reason)
}

func TestPrepareKeepsRawPixelScale(t *testing.T) {
	pre := newTestPreprocessor()

	tensor, err := pre.Prepare(encodePNG(t, grayImage(150, 150, 200)))
	require.NoError(t, err)
	// No rescaling: values stay on the 0-255 channel scale.
	require.InDelta(t, 200.0, float64(tensor.Data[0]), 1.0)
}

func TestPreprocessingErrorUnwraps(t *testing.T) {
	inner := errors.New("boom")
	err := &PreprocessingError{Reason: "failed to decode image", Err: inner}
	require.ErrorIs(t, err, inner)
	require.Contains(t, err.Error(), "failed to decode image")
}
