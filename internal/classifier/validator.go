package classifier

import (
	"bytes"
	"fmt"
	"image"

	"go.uber.org/zap"
)

// colorDiffThreshold is the summed mean pairwise channel difference (0-255
// scale) above which an image is treated as an obvious color photograph.
const colorDiffThreshold = 20.0

const (
	reasonAccepted       = "Image accepted for analysis."
	reasonColorPhoto     = "This appears to be a color photograph. Please upload a medical scan (MRI, CT, X-ray, etc.)."
	reasonSkippedOnError = "Validation skipped due to error."
)

// Validation is the outcome of the pre-inference scan check.
type Validation struct {
	IsValid bool
	Reason  string
}

// Validator rejects obvious color photographs before the expensive inference
// path. It is a heuristic: muted-color scans can slip through and legitimate
// scans with a strong color cast can be rejected. Known limitation, kept
// deliberately loose so it never blocks borderline medical imagery outright.
type Validator struct {
	logger *zap.Logger
}

// NewValidator constructs a validator.
func NewValidator(logger *zap.Logger) *Validator {
	return &Validator{logger: logger.Named("scan_validator")}
}

// Validate decodes the image and measures how colorful it is. Grayscale
// images pass immediately. Any decode or computation failure degrades to
// acceptance: validation must never block the pipeline on its own errors.
func (v *Validator) Validate(data []byte) Validation {
	result, err := v.measure(data)
	if err != nil {
		v.logger.Warn("image validation skipped", zap.Error(err))
		return Validation{IsValid: true, Reason: reasonSkippedOnError}
	}
	return result
}

func (v *Validator) measure(data []byte) (validation Validation, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("image analysis panic: %v", r)
		}
	}()

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Validation{}, err
	}

	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return Validation{IsValid: true, Reason: reasonAccepted}, nil
	}

	if channelDifferenceSum(img) > colorDiffThreshold {
		return Validation{IsValid: false, Reason: reasonColorPhoto}, nil
	}
	return Validation{IsValid: true, Reason: reasonAccepted}, nil
}

// channelDifferenceSum computes mean(|R-G|) + mean(|G-B|) + mean(|R-B|) over
// all pixels on the 0-255 channel scale.
func channelDifferenceSum(img image.Image) float64 {
	bounds := img.Bounds()
	pixels := bounds.Dx() * bounds.Dy()
	if pixels == 0 {
		return 0
	}

	var sumRG, sumGB, sumRB float64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r16, g16, b16, _ := img.At(x, y).RGBA()
			r := float64(r16 >> 8)
			g := float64(g16 >> 8)
			b := float64(b16 >> 8)
			sumRG += abs(r - g)
			sumGB += abs(g - b)
			sumRB += abs(r - b)
		}
	}

	n := float64(pixels)
	return sumRG/n + sumGB/n + sumRB/n
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
