package classifier

import (
	"context"

	"go.uber.org/zap"
)

// predictor runs a prepared tensor through the model. Satisfied by *Engine;
// an interface so the pipeline is testable without a loaded session.
type predictor interface {
	Predict(ctx context.Context, t *Tensor) (PredictionResult, error)
}

// Diagnosis bundles the raw prediction with its diagnostic payload.
type Diagnosis struct {
	Result  PredictionResult
	Payload DiagnosticPayload
}

// Pipeline is the full triage flow over raw upload bytes: validation and
// preprocessing, inference, and structured result mapping. Stateless per
// call; safe for concurrent use.
type Pipeline struct {
	pre    *Preprocessor
	engine predictor
	logger *zap.Logger
}

// NewPipeline wires the pipeline stages together.
func NewPipeline(pre *Preprocessor, engine predictor, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		pre:    pre,
		engine: engine,
		logger: logger.Named("pipeline"),
	}
}

// Diagnose turns raw image bytes into a diagnosis. Errors carry the package
// taxonomy: *PreprocessingError for bad input, ErrModelUnavailable while
// degraded, *InferenceError for runtime failures.
func (p *Pipeline) Diagnose(ctx context.Context, image []byte) (*Diagnosis, error) {
	tensor, err := p.pre.Prepare(image)
	if err != nil {
		return nil, err
	}

	result, err := p.engine.Predict(ctx, tensor)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("prediction complete",
		zap.String("label", string(result.Label)),
		zap.Float32("confidence", result.Confidence))

	return &Diagnosis{
		Result:  result,
		Payload: MapToPayload(result),
	}, nil
}
