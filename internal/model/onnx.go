package model

import (
	"context"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/mailcam/mailcam/internal/vision"
)

var runtimeInit struct {
	once sync.Once
	err  error
}

// initRuntime initializes the shared ONNX Runtime environment once per
// process. The library path can be overridden for non-standard installs.
func initRuntime() error {
	runtimeInit.once.Do(func() {
		if path := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); path != "" {
			ort.SetSharedLibraryPath(path)
		}
		runtimeInit.err = ort.InitializeEnvironment()
	})
	return runtimeInit.err
}

// ONNXInvoker runs a YOLO-style detection model through ONNX Runtime.
// The session holds pre-allocated input and output tensors, so calls
// are serialized with a mutex.
type ONNXInvoker struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]

	inputSide  int
	numClasses int
	outDim0    int
	outDim1    int
	layout     vision.Layout
}

// NewONNXInvoker loads the model at path and probes its input and
// output signature. tensorSide is used when the model declares a
// dynamic input dimension. numClasses must match the labels file; the
// output shape is validated against it.
func NewONNXInvoker(path string, tensorSide, numClasses int) (*ONNXInvoker, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	if err := initRuntime(); err != nil {
		return nil, &LoadError{Path: path, Err: fmt.Errorf("initialize runtime: %w", err)}
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: fmt.Errorf("read model signature: %w", err)}
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, &LoadError{Path: path, Err: fmt.Errorf("model has %d inputs and %d outputs", len(inputs), len(outputs))}
	}

	side, err := resolveInputSide(inputs[0].Dimensions, tensorSide)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	outDim0, outDim1, layout, err := resolveOutputDims(outputs[0].Dimensions, numClasses)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, &LoadError{Path: path, Err: fmt.Errorf("create session options: %w", err)}
	}
	defer options.Destroy()

	// One inference at a time on an edge box. Let the scheduler keep
	// the cores for the rest of the service.
	options.SetIntraOpNumThreads(1)
	options.SetInterOpNumThreads(1)

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(side), int64(side)))
	if err != nil {
		return nil, &LoadError{Path: path, Err: fmt.Errorf("create input tensor: %w", err)}
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(outDim0), int64(outDim1)))
	if err != nil {
		inputTensor.Destroy()
		return nil, &LoadError{Path: path, Err: fmt.Errorf("create output tensor: %w", err)}
	}

	session, err := ort.NewAdvancedSession(
		path,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, &LoadError{Path: path, Err: fmt.Errorf("create session: %w", err)}
	}

	return &ONNXInvoker{
		session:    session,
		input:      inputTensor,
		output:     outputTensor,
		inputSide:  side,
		numClasses: numClasses,
		outDim0:    outDim0,
		outDim1:    outDim1,
		layout:     layout,
	}, nil
}

// resolveInputSide validates a (1, 3, H, W) input shape and returns the
// square side. Dynamic dimensions fall back to the configured side.
func resolveInputSide(dims []int64, fallback int) (int, error) {
	if len(dims) != 4 {
		return 0, fmt.Errorf("unsupported input rank %d, want 4", len(dims))
	}
	if dims[1] != 3 {
		return 0, fmt.Errorf("unsupported input channels %d, want 3", dims[1])
	}
	h, w := dims[2], dims[3]
	if h <= 0 && w <= 0 {
		if fallback <= 0 {
			return 0, fmt.Errorf("dynamic input shape and no tensor side configured")
		}
		return fallback, nil
	}
	if h != w {
		return 0, fmt.Errorf("non-square input %dx%d", h, w)
	}
	return int(h), nil
}

// resolveOutputDims validates the detection output shape against the
// class count and determines its orientation. A leading batch dimension
// of 1 is tolerated.
func resolveOutputDims(dims []int64, numClasses int) (int, int, vision.Layout, error) {
	if len(dims) == 3 && dims[0] == 1 {
		dims = dims[1:]
	}
	if len(dims) != 2 {
		return 0, 0, vision.LayoutUnknown, fmt.Errorf("unsupported output rank %d, want 2 or batched 3", len(dims))
	}
	if dims[0] <= 0 || dims[1] <= 0 {
		return 0, 0, vision.LayoutUnknown, fmt.Errorf("dynamic output shape %dx%d not supported", dims[0], dims[1])
	}

	layout, err := vision.ResolveLayout(int(dims[0]), int(dims[1]), numClasses)
	if err != nil {
		return 0, 0, vision.LayoutUnknown, fmt.Errorf("output shape %dx%d does not match %d classes: %w",
			dims[0], dims[1], numClasses, err)
	}
	return int(dims[0]), int(dims[1]), layout, nil
}

func (m *ONNXInvoker) Infer(ctx context.Context, input *vision.Tensor) (*vision.RawTensor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dst := m.input.GetData()
	if len(input.Data) != len(dst) {
		return nil, &InferenceError{Err: fmt.Errorf("input tensor length %d, want %d", len(input.Data), len(dst))}
	}
	copy(dst, input.Data)

	if err := m.session.Run(); err != nil {
		return nil, &InferenceError{Err: err}
	}

	out := make([]float32, len(m.output.GetData()))
	copy(out, m.output.GetData())

	return &vision.RawTensor{
		Data:   out,
		Dim0:   m.outDim0,
		Dim1:   m.outDim1,
		Layout: m.layout,
	}, nil
}

func (m *ONNXInvoker) InputSide() int {
	return m.inputSide
}

func (m *ONNXInvoker) NumClasses() int {
	return m.numClasses
}

func (m *ONNXInvoker) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		m.session.Destroy()
		m.session = nil
	}
	if m.input != nil {
		m.input.Destroy()
		m.input = nil
	}
	if m.output != nil {
		m.output.Destroy()
		m.output = nil
	}
	return nil
}
