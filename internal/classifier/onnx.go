package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/shashankrm11/malscan/internal/domain"
	"github.com/shashankrm11/malscan/internal/domain/feature"
	"github.com/shashankrm11/malscan/internal/domain/verdict"
)

// Default tensor names of a scikit-learn model converted with zipmap disabled.
const (
	DefaultONNXInput             = "float_input"
	DefaultONNXLabelOutput       = "label"
	DefaultONNXProbabilityOutput = "probabilities"
)

// ONNXOptions names the runtime library and the graph's tensors.
type ONNXOptions struct {
	// LibraryPath overrides shared-library discovery.
	LibraryPath       string
	InputName         string
	LabelOutput       string
	ProbabilityOutput string
}

func (o *ONNXOptions) applyDefaults() {
	if o.InputName == "" {
		o.InputName = DefaultONNXInput
	}
	if o.LabelOutput == "" {
		o.LabelOutput = DefaultONNXLabelOutput
	}
	if o.ProbabilityOutput == "" {
		o.ProbabilityOutput = DefaultONNXProbabilityOutput
	}
}

var envMu sync.Mutex

// ONNX runs a binary classifier graph. Every call allocates its own tensors, so the
// session is shared without locking.
type ONNX struct {
	session *ort.DynamicAdvancedSession
	n       int
}

// LoadONNX opens the graph at path expecting an [1, n] float32 input.
func LoadONNX(path string, n int, opts ONNXOptions) (*ONNX, error) {
	if n <= 0 {
		return nil, errors.New("onnx model needs a positive feature count")
	}
	opts.applyDefaults()

	if err := initRuntime(opts.LibraryPath, filepath.Dir(path)); err != nil {
		return nil, err
	}

	session, err := ort.NewDynamicAdvancedSession(
		path,
		[]string{opts.InputName},
		[]string{opts.LabelOutput, opts.ProbabilityOutput},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}
	return &ONNX{session: session, n: n}, nil
}

func initRuntime(libraryPath, modelDir string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if libraryPath == "" {
		libraryPath = resolveSharedLibraryPath(modelDir)
	}
	if libraryPath == "" {
		return errors.New("onnxruntime shared library not found; set ONNXRUNTIME_SHARED_LIBRARY_PATH or classifier.onnx.library_path")
	}
	ort.SetSharedLibraryPath(libraryPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnxruntime: %w", err)
	}
	return nil
}

// resolveSharedLibraryPath locates the onnxruntime shared library.
// ONNXRUNTIME_SHARED_LIBRARY_PATH wins over the probed locations.
func resolveSharedLibraryPath(modelDir string) string {
	if env := strings.TrimSpace(os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")); env != "" {
		return env
	}

	names := []string{
		"libonnxruntime.so",
		"onnxruntime.so",
		"libonnxruntime.dylib",
		"onnxruntime.dll",
	}
	dirs := []string{
		modelDir,
		filepath.Join(modelDir, "lib"),
		"/usr/local/lib",
		"/usr/lib",
		"/opt/homebrew/lib",
	}
	for _, dir := range dirs {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}

func (o *ONNX) run(ctx context.Context, v feature.Vector) (int64, float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	if err := checkInput(v, o.n); err != nil {
		return 0, 0, err
	}

	in := make([]float32, len(v))
	for i, f := range v {
		in[i] = float32(f)
	}
	input, err := ort.NewTensor(ort.NewShape(1, int64(len(in))), in)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: allocate input: %w", domain.ErrClassifierFailure, err)
	}
	defer input.Destroy()

	label, err := ort.NewEmptyTensor[int64](ort.NewShape(1))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: allocate label: %w", domain.ErrClassifierFailure, err)
	}
	defer label.Destroy()

	probs, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 2))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: allocate probabilities: %w", domain.ErrClassifierFailure, err)
	}
	defer probs.Destroy()

	if err := o.session.Run([]ort.Value{input}, []ort.Value{label, probs}); err != nil {
		return 0, 0, fmt.Errorf("%w: onnx run: %w", domain.ErrClassifierFailure, err)
	}

	p := float64(probs.GetData()[1])
	if math.IsNaN(p) {
		return 0, 0, fmt.Errorf("%w: onnx probability is NaN", domain.ErrClassifierFailure)
	}
	return label.GetData()[0], p, nil
}

// PredictProbability returns the class-1 column of the probabilities output.
func (o *ONNX) PredictProbability(ctx context.Context, v feature.Vector) (float64, error) {
	_, p, err := o.run(ctx, v)
	return p, err
}

// Predict returns the graph's label output.
func (o *ONNX) Predict(ctx context.Context, v feature.Vector) (verdict.Label, error) {
	l, _, err := o.run(ctx, v)
	if err != nil {
		return verdict.Legitimate, err
	}
	label := verdict.Label(l)
	if !label.Valid() {
		return verdict.Legitimate, fmt.Errorf("%w: unexpected label %d", domain.ErrClassifierFailure, l)
	}
	return label, nil
}

// HealthCheck reports whether the session is open.
func (o *ONNX) HealthCheck(context.Context) error {
	if o.session == nil {
		return domain.ErrModelUnavailable
	}
	return nil
}

// Close destroys the session. The runtime environment stays initialized for the
// life of the process.
func (o *ONNX) Close() error {
	if o.session == nil {
		return nil
	}
	err := o.session.Destroy()
	o.session = nil
	return err
}
