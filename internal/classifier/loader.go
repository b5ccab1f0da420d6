package classifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Metadata mirrors the sidecar JSON exported alongside the model artifact:
// shapes, class names, and the serialized layer configs of the source graph.
type Metadata struct {
	ModelVersion string        `json:"model_version"`
	InputShape   []int64       `json:"input_shape"`
	OutputShape  []int64       `json:"output_shape"`
	Classes      []string      `json:"classes"`
	Layers       []LayerConfig `json:"layers"`
}

// LayerConfig is one exported layer entry. Config is kept raw so it can be
// sanitized before strict decoding.
type LayerConfig struct {
	ClassName string          `json:"class_name"`
	Config    json.RawMessage `json:"config"`
}

const depthwiseConv2DClass = "DepthwiseConv2D"

// depthwiseConv2DParams lists the DepthwiseConv2D fields this runtime
// understands. Decoding is strict so an export from an incompatible model
// version fails loudly at load time rather than mid-inference.
type depthwiseConv2DParams struct {
	Name            string `json:"name"`
	KernelSize      []int  `json:"kernel_size"`
	Strides         []int  `json:"strides"`
	Padding         string `json:"padding"`
	DataFormat      string `json:"data_format"`
	DilationRate    []int  `json:"dilation_rate"`
	DepthMultiplier int    `json:"depth_multiplier"`
	Activation      string `json:"activation"`
	UseBias         bool   `json:"use_bias"`
	Trainable       bool   `json:"trainable"`
	DType           string `json:"dtype"`
}

// sanitizeLayerConfig is the versioned deserialization adapter for a known
// source-model export quirk: newer exporters emit a "groups" parameter on
// DepthwiseConv2D configs that the layer implementation does not accept. The
// field is dropped silently before strict decoding. Pure function, applied
// per layer before construction; configs of other layer types pass through
// untouched.
func sanitizeLayerConfig(className string, raw json.RawMessage) (json.RawMessage, error) {
	if className != depthwiseConv2DClass {
		return raw, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("parse %s config: %w", className, err)
	}
	delete(fields, "groups")
	return json.Marshal(fields)
}

// strictDecodeLayer verifies a sanitized config against the runtime's layer
// schema. Only DepthwiseConv2D currently has a strict schema.
func strictDecodeLayer(className string, raw json.RawMessage) error {
	if className != depthwiseConv2DClass {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var params depthwiseConv2DParams
	if err := dec.Decode(&params); err != nil {
		return fmt.Errorf("incompatible %s config: %w", className, err)
	}
	return nil
}

// decodeMetadata parses and sanitizes the sidecar metadata, then checks it
// against the geometry this service is built for.
func decodeMetadata(data []byte) (*Metadata, error) {
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse model metadata: %w", err)
	}

	for i := range meta.Layers {
		cleaned, err := sanitizeLayerConfig(meta.Layers[i].ClassName, meta.Layers[i].Config)
		if err != nil {
			return nil, err
		}
		if err := strictDecodeLayer(meta.Layers[i].ClassName, cleaned); err != nil {
			return nil, err
		}
		meta.Layers[i].Config = cleaned
	}

	if len(meta.InputShape) != 4 ||
		meta.InputShape[1] != InputHeight || meta.InputShape[2] != InputWidth || meta.InputShape[3] != InputChannels {
		return nil, fmt.Errorf("unexpected model input shape %v", meta.InputShape)
	}
	if len(meta.OutputShape) != 2 || meta.OutputShape[1] != NumClasses {
		return nil, fmt.Errorf("unexpected model output shape %v", meta.OutputShape)
	}
	if len(meta.Classes) != NumClasses {
		return nil, fmt.Errorf("expected %d classes, metadata lists %d", NumClasses, len(meta.Classes))
	}

	return &meta, nil
}

// forwardRunner is one loaded model the engine can run a forward pass on.
type forwardRunner interface {
	run(input []float32) ([]float32, error)
	metadata() *Metadata
	destroy()
}

// sessionFactory builds a runner from artifact paths. Swappable so engine
// behavior is testable without the ONNX runtime.
type sessionFactory func(modelPath, metadataPath string) (forwardRunner, error)

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// initRuntime initializes the shared ONNX environment once per process.
func initRuntime(libraryPath string) error {
	ortInitOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// onnxSession owns an ONNX session with fixed input/output tensors. The
// tensors are shared per session, so run is serialized by a mutex.
type onnxSession struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	meta    *Metadata
}

// newONNXSessionFactory returns the production session factory.
func newONNXSessionFactory(libraryPath string) sessionFactory {
	return func(modelPath, metadataPath string) (forwardRunner, error) {
		if err := initRuntime(libraryPath); err != nil {
			return nil, fmt.Errorf("initialize onnx runtime: %w", err)
		}

		rawMeta, err := os.ReadFile(metadataPath)
		if err != nil {
			return nil, fmt.Errorf("read model metadata: %w", err)
		}
		meta, err := decodeMetadata(rawMeta)
		if err != nil {
			return nil, err
		}

		inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(meta.InputShape...))
		if err != nil {
			return nil, fmt.Errorf("create input tensor: %w", err)
		}
		outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(meta.OutputShape...))
		if err != nil {
			inputTensor.Destroy()
			return nil, fmt.Errorf("create output tensor: %w", err)
		}

		session, err := ort.NewAdvancedSession(modelPath,
			[]string{"input"}, []string{"output"},
			[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
			nil)
		if err != nil {
			inputTensor.Destroy()
			outputTensor.Destroy()
			return nil, fmt.Errorf("create onnx session: %w", err)
		}

		return &onnxSession{
			session: session,
			input:   inputTensor,
			output:  outputTensor,
			meta:    meta,
		}, nil
	}
}

func (s *onnxSession) run(input []float32) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy(s.input.GetData(), input)
	if err := s.session.Run(); err != nil {
		return nil, err
	}

	out := s.output.GetData()
	probs := make([]float32, len(out))
	copy(probs, out)
	return probs, nil
}

func (s *onnxSession) metadata() *Metadata {
	return s.meta
}

// destroy tears down the fixed tensors and the session. The engine only
// calls it once every reference to the owning handle has been released.
func (s *onnxSession) destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.input.Destroy()
	s.output.Destroy()
	s.session.Destroy()
}
