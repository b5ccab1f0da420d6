package classifier

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"go.uber.org/zap"
)

// ModelInfo describes the engine's load state for health and status reporting.
type ModelInfo struct {
	Loaded      bool     `json:"loaded"`
	Path        string   `json:"path"`
	Exists      bool     `json:"exists"`
	Version     string   `json:"model_version,omitempty"`
	InputShape  []int64  `json:"input_shape,omitempty"`
	OutputShape []int64  `json:"output_shape,omitempty"`
	Classes     []string `json:"classes,omitempty"`
}

// EngineConfig locates the frozen model artifact and its sidecar metadata.
type EngineConfig struct {
	ModelPath    string
	MetadataPath string
	LibraryPath  string
}

// Engine wraps the loaded classifier. The session handle is an immutable
// snapshot swapped atomically by Load/Reload, so any number of concurrent
// Predict calls can read it without observing a partially-initialized model.
type Engine struct {
	cfg        EngineConfig
	logger     *zap.Logger
	newSession sessionFactory
	handle     atomic.Pointer[modelHandle]
}

// modelHandle pins one loaded session behind a reference count. The engine
// holds one reference; every dispatched forward pass holds another. The
// session is destroyed only when the count drains to zero, so a reload can
// never tear a session down under a run that is about to start. A nil engine
// handle means Absent.
type modelHandle struct {
	runner forwardRunner
	refs   atomic.Int64
}

func newModelHandle(runner forwardRunner) *modelHandle {
	h := &modelHandle{runner: runner}
	h.refs.Store(1)
	return h
}

// acquire takes a reference unless the handle has already drained.
func (h *modelHandle) acquire() bool {
	for {
		n := h.refs.Load()
		if n <= 0 {
			return false
		}
		if h.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// release drops a reference, destroying the session on the last one.
func (h *modelHandle) release() {
	if h.refs.Add(-1) == 0 {
		h.runner.destroy()
	}
}

// NewEngine constructs an engine with an absent handle. The hosting process
// owns the lifecycle: call Load once at startup, Reload thereafter.
func NewEngine(cfg EngineConfig, logger *zap.Logger) *Engine {
	return &Engine{
		cfg:        cfg,
		logger:     logger.Named("inference_engine"),
		newSession: newONNXSessionFactory(cfg.LibraryPath),
	}
}

// Load attempts to load the model artifact. Failure is non-fatal: the handle
// becomes Absent, the error is logged and returned, and the service keeps
// running with inference refused.
func (e *Engine) Load() error {
	runner, err := e.newSession(e.cfg.ModelPath, e.cfg.MetadataPath)
	if err != nil {
		wrapped := &ModelLoadError{Path: e.cfg.ModelPath, Err: err}
		e.logger.Error("model load failed, inference disabled", zap.Error(wrapped))
		if old := e.handle.Swap(nil); old != nil {
			old.release()
		}
		return wrapped
	}

	old := e.handle.Swap(newModelHandle(runner))
	if old != nil {
		old.release()
	}
	e.logger.Info("model loaded",
		zap.String("path", e.cfg.ModelPath),
		zap.String("version", runner.metadata().ModelVersion))
	return nil
}

// Reload is an idempotent re-run of Load. In-flight predictions on the
// previous handle complete before the old session is torn down.
func (e *Engine) Reload() error {
	return e.Load()
}

// IsLoaded reports whether a model is currently available.
func (e *Engine) IsLoaded() bool {
	return e.handle.Load() != nil
}

// Info reports load state plus the artifact's on-disk presence and shapes.
func (e *Engine) Info() ModelInfo {
	info := ModelInfo{Path: e.cfg.ModelPath}
	if _, err := os.Stat(e.cfg.ModelPath); err == nil {
		info.Exists = true
	}

	h := e.handle.Load()
	if h == nil {
		return info
	}
	meta := h.runner.metadata()
	info.Loaded = true
	info.Version = meta.ModelVersion
	info.InputShape = meta.InputShape
	info.OutputShape = meta.OutputShape
	info.Classes = meta.Classes
	return info
}

// Predict runs one prepared tensor through the classifier. Model absence is
// checked before any work so ErrModelUnavailable is raised deliberately. The
// forward pass is synchronous and CPU-bound; a caller-supplied ctx deadline
// bounds how long the caller waits for it.
func (e *Engine) Predict(ctx context.Context, t *Tensor) (PredictionResult, error) {
	if e.handle.Load() == nil {
		return PredictionResult{}, ErrModelUnavailable
	}

	if t == nil || len(t.Data) != TensorSize {
		return PredictionResult{}, &InferenceError{Err: fmt.Errorf("tensor has %d elements, want %d", tensorLen(t), TensorSize)}
	}

	// Pin the live handle before dispatching. If the handle drained between
	// the load and the acquire, a reload swapped it out; re-read and retry.
	var h *modelHandle
	for {
		h = e.handle.Load()
		if h == nil {
			return PredictionResult{}, ErrModelUnavailable
		}
		if h.acquire() {
			break
		}
	}

	type runOutcome struct {
		probs []float32
		err   error
	}
	done := make(chan runOutcome, 1)
	go func() {
		// The reference is dropped when the run finishes, even if the caller
		// gave up on its deadline and abandoned this goroutine.
		probs, err := h.runner.run(t.Data)
		h.release()
		done <- runOutcome{probs: probs, err: err}
	}()

	select {
	case <-ctx.Done():
		return PredictionResult{}, &InferenceError{Err: ctx.Err()}
	case out := <-done:
		if out.err != nil {
			return PredictionResult{}, &InferenceError{Err: out.err}
		}
		return resultFromProbabilities(out.probs)
	}
}

// resultFromProbabilities maps a raw probability vector to a structured
// result. Argmax is first-occurrence: ties resolve to the lowest class index.
func resultFromProbabilities(probs []float32) (PredictionResult, error) {
	if len(probs) != NumClasses {
		return PredictionResult{}, &InferenceError{Err: fmt.Errorf("model produced %d probabilities, want %d", len(probs), NumClasses)}
	}

	classID := 0
	for i := 1; i < NumClasses; i++ {
		if probs[i] > probs[classID] {
			classID = i
		}
	}

	result := PredictionResult{
		ClassID:    classID,
		Label:      classLabels[classID],
		Confidence: probs[classID],
	}
	copy(result.Probabilities[:], probs)
	return result, nil
}

func tensorLen(t *Tensor) int {
	if t == nil {
		return 0
	}
	return len(t.Data)
}
