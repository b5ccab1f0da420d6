package classifier

import (
	"bytes"
	"fmt"
	"image"

	// Decoders for every upload format the API allows.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

// Model input geometry. The classifier was trained on 150x150 RGB crops and
// the exported graph carries a leading batch dimension of 1.
const (
	InputHeight   = 150
	InputWidth    = 150
	InputChannels = 3
)

// TensorSize is the element count of one prepared input.
const TensorSize = InputHeight * InputWidth * InputChannels

// Tensor is a prepared model input in NHWC layout with batch size 1. The
// channel count is always 3 regardless of the source format.
type Tensor struct {
	Data  []float32
	Shape [4]int64
}

// Preprocessor turns arbitrary uploaded image bytes into the fixed tensor
// shape the classifier expects.
type Preprocessor struct {
	validator *Validator
	logger    *zap.Logger
}

// NewPreprocessor constructs a preprocessor that validates before decoding.
func NewPreprocessor(validator *Validator, logger *zap.Logger) *Preprocessor {
	return &Preprocessor{
		validator: validator,
		logger:    logger.Named("preprocessor"),
	}
}

// Prepare runs validation, decodes the upload, resizes it to exactly
// 150x150, normalizes it to 3 channels and adds the batch dimension. Aspect
// ratio is NOT preserved; the source model was trained on squashed inputs and
// keeping that behavior keeps predictions comparable, at some quality cost
// for very elongated scans. Every failure surfaces as *PreprocessingError.
func (p *Preprocessor) Prepare(data []byte) (t *Tensor, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("image preprocessing panic", zap.Any("panic", r))
			t, err = nil, &PreprocessingError{Reason: fmt.Sprintf("failed to preprocess image: %v", r)}
		}
	}()

	validation := p.validator.Validate(data)
	if !validation.IsValid {
		return nil, &PreprocessingError{Reason: validation.Reason}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		p.logger.Warn("image decode failed", zap.Error(err))
		return nil, &PreprocessingError{Reason: "failed to decode image", Err: err}
	}

	// Passing both dimensions forces the exact 150x150 output.
	resized := imaging.Resize(img, InputWidth, InputHeight, imaging.Lanczos)

	// imaging always yields NRGBA, which folds the channel normalization in:
	// grayscale sources come out with R=G=B and alpha is simply dropped.
	// Pixel values stay on the raw 0-255 scale; the model rescales internally.
	tensor := &Tensor{
		Data:  make([]float32, TensorSize),
		Shape: [4]int64{1, InputHeight, InputWidth, InputChannels},
	}
	i := 0
	for y := 0; y < InputHeight; y++ {
		for x := 0; x < InputWidth; x++ {
			px := resized.NRGBAAt(x, y)
			tensor.Data[i] = float32(px.R)
			tensor.Data[i+1] = float32(px.G)
			tensor.Data[i+2] = float32(px.B)
			i += InputChannels
		}
	}

	return tensor, nil
}
