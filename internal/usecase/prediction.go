package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/neuroscan/internal/classifier"
	"github.com/example/neuroscan/internal/logging"
	"github.com/example/neuroscan/internal/repository"
)

// Diagnoser runs the classification pipeline on raw upload bytes.
type Diagnoser interface {
	Diagnose(ctx context.Context, image []byte) (*classifier.Diagnosis, error)
}

// PredictionRepository defines the persistence operations needed by the use case.
type PredictionRepository interface {
	SaveLog(ctx context.Context, log *repository.PredictionLog) error
	FindByRequestIDAndUser(ctx context.Context, requestID, userID string) (*repository.PredictionLog, error)
	FindDuplicatesByHash(ctx context.Context, userID, hash, excludeRequestID string) ([]*repository.PredictionLog, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// PredictionUseCase encapsulates business logic for the triage flow.
type PredictionUseCase struct {
	repo           PredictionRepository
	cache          Cache
	pipeline       Diagnoser
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

type cachedPrediction struct {
	RequestID         string    `json:"request_id"`
	UserID            string    `json:"user_id"`
	Label             string    `json:"label"`
	PrimaryConfidence float64   `json:"primary_confidence"`
	ControlPct        float64   `json:"control_pct"`
	AlzheimerPct      float64   `json:"alzheimer_pct"`
	ParkinsonPct      float64   `json:"parkinson_pct"`
	Details           string    `json:"details"`
	Hash              string    `json:"sha1_hash"`
	CreatedAt         time.Time `json:"created_at"`
}

// DuplicateReport lists earlier predictions over the same scan bytes.
type DuplicateReport struct {
	Request    *repository.PredictionLog
	Duplicates []*repository.PredictionLog
}

// NewPredictionUseCase constructs a new use case instance.
func NewPredictionUseCase(repo PredictionRepository, cache Cache, pipeline Diagnoser, logger *zap.Logger) *PredictionUseCase {
	return &PredictionUseCase{
		repo:           repo,
		cache:          cache,
		pipeline:       pipeline,
		logger:         logger.Named("prediction_usecase"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// Predict orchestrates the pipeline plus caching and persistence. Pipeline
// errors keep their taxonomy (wrapped, not replaced) so the handler can map
// them to the right status.
func (uc *PredictionUseCase) Predict(ctx context.Context, userID, filename string, imageBytes []byte) (string, *classifier.Diagnosis, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.predict", requestID)

	cacheKey := fmt.Sprintf("prediction:%s", requestID)
	if err := uc.withRedisRetry(ctx, requestID, "cache.set.processing", func() error {
		return uc.cache.Set(ctx, cacheKey, "processing", time.Minute)
	}); err != nil {
		opLogger.Error("failed to set processing flag", zap.Error(err))
		return "", nil, err
	}

	diagnosis, err := uc.pipeline.Diagnose(ctx, imageBytes)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.diagnose", requestID, err)
		opLogger.Warn("pipeline rejected or failed", zap.Error(wrapped))
		return "", nil, wrapped
	}

	hash := sha1.Sum(imageBytes)
	hashHex := hex.EncodeToString(hash[:])
	log := &repository.PredictionLog{
		RequestID:         requestID,
		UserID:            userID,
		Filename:          filename,
		Label:             string(diagnosis.Result.Label),
		PrimaryConfidence: diagnosis.Payload.PrimaryConfidence,
		ControlPct:        diagnosis.Payload.Confidence.Control,
		AlzheimerPct:      diagnosis.Payload.Confidence.Alzheimer,
		ParkinsonPct:      diagnosis.Payload.Confidence.Parkinson,
		SHA1Hash:          hashHex,
		CreatedAt:         time.Now().UTC(),
	}
	log.Details = fmt.Sprintf("label:%s primary:%.2f hash:%s", log.Label, log.PrimaryConfidence, hashHex)
	if err := uc.repo.SaveLog(ctx, log); err != nil {
		wrapped := logging.NewOperationError("usecase.save_log", requestID, err)
		opLogger.Error("failed to persist prediction log", zap.Error(wrapped))
		return "", nil, wrapped
	}

	cached := cachedPrediction{
		RequestID:         requestID,
		UserID:            userID,
		Label:             log.Label,
		PrimaryConfidence: log.PrimaryConfidence,
		ControlPct:        log.ControlPct,
		AlzheimerPct:      log.AlzheimerPct,
		ParkinsonPct:      log.ParkinsonPct,
		Details:           log.Details,
		Hash:              log.SHA1Hash,
		CreatedAt:         log.CreatedAt,
	}

	serialized, err := json.Marshal(cached)
	if err != nil {
		opLogger.Error("failed to serialize prediction result", zap.Error(err))
		return "", nil, err
	}

	if err := uc.withRedisRetry(ctx, requestID, "cache.set.result", func() error {
		return uc.cache.Set(ctx, cacheKey, string(serialized), 5*time.Minute)
	}); err != nil {
		opLogger.Error("failed to cache prediction result", zap.Error(err))
		return "", nil, err
	}

	return requestID, diagnosis, nil
}

// GetResult retrieves a cached prediction or falls back to persistence.
func (uc *PredictionUseCase) GetResult(ctx context.Context, userID, requestID string) (*repository.PredictionLog, error) {
	cacheKey := fmt.Sprintf("prediction:%s", requestID)
	if cached, err := uc.withRedisGet(ctx, requestID, "cache.get.result", cacheKey); err == nil {
		var payload cachedPrediction
		if err := json.Unmarshal([]byte(cached), &payload); err != nil {
			logging.WithOperation(uc.logger, "usecase.get_result", requestID).Warn("failed to decode cached result", zap.Error(err))
		} else if payload.UserID != "" && payload.UserID != userID {
			// The cached entry belongs to another account. Fall through to the
			// owner-scoped repository lookup instead of serving it.
			logging.WithOperation(uc.logger, "usecase.get_result", requestID).Warn("cached result owned by another user",
				zap.String("owner_id", payload.UserID), zap.String("caller_id", userID))
		} else {
			log := &repository.PredictionLog{
				RequestID:         requestID,
				UserID:            userID,
				Label:             payload.Label,
				PrimaryConfidence: payload.PrimaryConfidence,
				ControlPct:        payload.ControlPct,
				AlzheimerPct:      payload.AlzheimerPct,
				ParkinsonPct:      payload.ParkinsonPct,
				Details:           payload.Details,
				SHA1Hash:          payload.Hash,
				CreatedAt:         payload.CreatedAt,
			}
			if payload.UserID != "" {
				log.UserID = payload.UserID
			}
			if payload.RequestID != "" {
				log.RequestID = payload.RequestID
			}
			return log, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		logging.WithOperation(uc.logger, "usecase.get_result", requestID).Warn("failed to read cache", zap.Error(err))
	}

	return uc.repo.FindByRequestIDAndUser(ctx, requestID, userID)
}

// GetDuplicateReport flags earlier uploads of the same scan by the same user.
func (uc *PredictionUseCase) GetDuplicateReport(ctx context.Context, userID, requestID string) (*DuplicateReport, error) {
	log, err := uc.repo.FindByRequestIDAndUser(ctx, requestID, userID)
	if err != nil {
		return nil, err
	}

	duplicates, err := uc.repo.FindDuplicatesByHash(ctx, userID, log.SHA1Hash, log.RequestID)
	if err != nil {
		return nil, err
	}

	return &DuplicateReport{
		Request:    log,
		Duplicates: duplicates,
	}, nil
}

func (uc *PredictionUseCase) withRedisRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	if uc.retryAttempts <= 1 {
		err := fn()
		return logging.NewOperationError(operation, requestID, err)
	}

	backoff := uc.initialBackoff
	opLogger := logging.WithOperation(uc.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < uc.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= uc.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == uc.retryAttempts-1 {
			opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func (uc *PredictionUseCase) withRedisGet(ctx context.Context, requestID, operation, cacheKey string) (string, error) {
	var result string
	err := uc.withRedisRetry(ctx, requestID, operation, func() error {
		value, err := uc.cache.Get(ctx, cacheKey)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
