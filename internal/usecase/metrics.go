package usecase

import "context"

// MetricsSummary represents aggregated triage insights.
type MetricsSummary struct {
	TotalPredictions         int64   `json:"total_predictions"`
	ControlCount             int64   `json:"control_count"`
	AlzheimerCount           int64   `json:"alzheimer_count"`
	ParkinsonCount           int64   `json:"parkinson_count"`
	AveragePrimaryConfidence float64 `json:"average_primary_confidence"`
}

// GetMetricsSummary aggregates prediction metrics from persisted logs.
func (uc *PredictionUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	aggregation, err := uc.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	return &MetricsSummary{
		TotalPredictions:         aggregation.TotalCount,
		ControlCount:             aggregation.ControlCount,
		AlzheimerCount:           aggregation.AlzheimerCount,
		ParkinsonCount:           aggregation.ParkinsonCount,
		AveragePrimaryConfidence: aggregation.AveragePrimaryConfidence,
	}, nil
}
