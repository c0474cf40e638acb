package local

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"
	"gopkg.in/yaml.v3"
)

// File names inside a model directory. The manifest is optional.
const (
	ManifestFile  = "model.yaml"
	TokenizerFile = "tokenizer.json"
	ModelFile     = "model.onnx"
)

// DefaultMaxLength is the token limit when neither the manifest nor the
// configuration sets one.
const DefaultMaxLength = 512

// Input names recognised on the ONNX graph.
const (
	inputIDs      = "input_ids"
	attentionMask = "attention_mask"
	tokenTypeIDs  = "token_type_ids"
)

// Manifest describes a model directory. Every field has a default.
type Manifest struct {
	// Name defaults to the directory name.
	Name string `yaml:"name"`

	// Dimension must match the hidden size of the output when both are known.
	Dimension int `yaml:"dimension,omitempty"`

	MaxLength int `yaml:"max_length,omitempty"`
	PadID     int `yaml:"pad_id"`

	// Output names the hidden-state output. Default: the graph's first output.
	Output string `yaml:"output,omitempty"`
}

func (m *Manifest) validate() error {
	if m.Dimension < 0 {
		return fmt.Errorf("%w: dimension must not be negative", ErrInvalidManifest)
	}
	if m.MaxLength < 0 {
		return fmt.Errorf("%w: max_length must not be negative", ErrInvalidManifest)
	}
	if m.PadID < 0 {
		return fmt.Errorf("%w: pad_id must not be negative", ErrInvalidManifest)
	}
	return nil
}

// Encoding is one tokenized input, truncated or padded to a fixed length.
// Mask is 1 for real tokens and 0 for padding.
type Encoding struct {
	IDs   []int64
	Mask  []int64
	Types []int64
}

// Model is a transformer encoder exported to ONNX with its tokenizer.
// Embed is safe for concurrent use.
type Model struct {
	manifest Manifest

	tokMu     sync.Mutex
	tokenizer *tokenizer.Tokenizer

	session *ort.DynamicAdvancedSession
	inputs  []string
}

var _ encoder = (*Model)(nil)

var runtimeMu sync.Mutex

// initRuntime loads the onnxruntime shared library once per process. library
// may be empty to use the platform default name.
func initRuntime(library string) error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	if library != "" {
		ort.SetSharedLibraryPath(library)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("%w: %v", ErrRuntimeUnavailable, err)
	}
	return nil
}

// LoadModel reads dir and opens an inference session on model.onnx. runtime
// is the path of the onnxruntime shared library.
func LoadModel(dir, runtime string) (*Model, error) {
	manifest, err := readManifest(dir)
	if err != nil {
		return nil, err
	}

	modelPath := filepath.Join(dir, ModelFile)
	tokenizerPath := filepath.Join(dir, TokenizerFile)
	for _, path := range []string{modelPath, tokenizerPath} {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrModelNotFound, path)
			}
			return nil, err
		}
	}

	tk, err := pretrained.FromFile(tokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer %s: %w", tokenizerPath, err)
	}

	if err := initRuntime(runtime); err != nil {
		return nil, err
	}

	inputInfo, outputInfo, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", modelPath, err)
	}
	inputs, err := graphInputs(inputInfo)
	if err != nil {
		return nil, err
	}
	if err := manifest.resolveOutput(outputInfo); err != nil {
		return nil, err
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}
	defer opts.Destroy()
	// Parallelism comes from the embedder's worker pool.
	if err := opts.SetIntraOpNumThreads(1); err != nil {
		return nil, err
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, inputs, []string{manifest.Output}, opts)
	if err != nil {
		return nil, fmt.Errorf("open session on %s: %w", modelPath, err)
	}

	return &Model{
		manifest:  *manifest,
		tokenizer: tk,
		session:   session,
		inputs:    inputs,
	}, nil
}

// graphInputs keeps the graph's input order and rejects inputs the encoder
// cannot feed.
func graphInputs(info []ort.InputOutputInfo) ([]string, error) {
	names := make([]string, 0, len(info))
	seen := false
	for _, in := range info {
		switch in.Name {
		case inputIDs:
			seen = true
		case attentionMask, tokenTypeIDs:
		default:
			return nil, fmt.Errorf("%w: unsupported input %q", ErrInvalidModel, in.Name)
		}
		names = append(names, in.Name)
	}
	if !seen {
		return nil, fmt.Errorf("%w: no %s input", ErrInvalidModel, inputIDs)
	}
	return names, nil
}

// resolveOutput picks the hidden-state output and reconciles its size with
// the manifest's dimension.
func (m *Manifest) resolveOutput(info []ort.InputOutputInfo) error {
	if len(info) == 0 {
		return fmt.Errorf("%w: graph has no outputs", ErrInvalidModel)
	}
	out := info[0]
	if m.Output != "" {
		found := false
		for _, o := range info {
			if o.Name == m.Output {
				out, found = o, true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: no output named %q", ErrInvalidModel, m.Output)
		}
	}
	m.Output = out.Name

	// [batch, sequence, hidden]
	if len(out.Dimensions) != 3 {
		return fmt.Errorf("%w: output %q has shape %v, want [batch, sequence, hidden]", ErrInvalidModel, out.Name, out.Dimensions)
	}
	hidden := int(out.Dimensions[2])
	switch {
	case hidden > 0 && m.Dimension > 0 && hidden != m.Dimension:
		return fmt.Errorf("%w: output %q has %d values per token, manifest says %d", ErrDimensionMismatch, out.Name, hidden, m.Dimension)
	case hidden > 0:
		m.Dimension = hidden
	case m.Dimension == 0:
		return fmt.Errorf("%w: hidden size is dynamic, set dimension in %s", ErrInvalidManifest, ManifestFile)
	}
	return nil
}

// Name returns the model name.
func (m *Model) Name() string { return m.manifest.Name }

// Dimension returns the vector length.
func (m *Model) Dimension() int { return m.manifest.Dimension }

// MaxLength returns the token limit per input.
func (m *Model) MaxLength() int { return m.manifest.MaxLength }

// Tokenize encodes text with special tokens and fits it to maxLength.
func (m *Model) Tokenize(text string, maxLength int) (Encoding, error) {
	m.tokMu.Lock()
	enc, err := m.tokenizer.EncodeSingle(text, true)
	m.tokMu.Unlock()
	if err != nil {
		return Encoding{}, fmt.Errorf("tokenize: %w", err)
	}
	return fitLength(enc.Ids, enc.TypeIds, enc.AttentionMask, maxLength, m.manifest.PadID), nil
}

// Infer runs the encoder on one input and returns the hidden state at
// position 0. The result is not normalized.
func (m *Model) Infer(enc Encoding) ([]float32, error) {
	shape := ort.NewShape(1, int64(len(enc.IDs)))

	inputs := make([]ort.Value, len(m.inputs))
	for i, name := range m.inputs {
		data := enc.IDs
		switch name {
		case attentionMask:
			data = enc.Mask
		case tokenTypeIDs:
			data = enc.Types
		}
		tensor, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", name, err)
		}
		defer tensor.Destroy()
		inputs[i] = tensor
	}

	dim := m.manifest.Dimension
	hidden, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(enc.IDs)), int64(dim)))
	if err != nil {
		return nil, err
	}
	defer hidden.Destroy()

	if err := m.session.Run(inputs, []ort.Value{hidden}); err != nil {
		return nil, fmt.Errorf("run %s: %w", m.manifest.Name, err)
	}
	return firstPosition(hidden.GetData(), dim), nil
}

// Embed tokenizes text and runs one inference.
func (m *Model) Embed(text string, maxLength int) ([]float32, error) {
	enc, err := m.Tokenize(text, maxLength)
	if err != nil {
		return nil, err
	}
	return m.Infer(enc)
}

// Close destroys the inference session. The runtime stays loaded for the
// life of the process.
func (m *Model) Close() error {
	return m.session.Destroy()
}

// fitLength truncates or pads one encoding to exactly maxLength positions.
// Truncation keeps the final real token (the closing special token) in the
// last position. Without a mask of the same length every id counts as real.
func fitLength(ids, types, mask []int, maxLength, padID int) Encoding {
	used := len(ids)
	if len(mask) == len(ids) {
		used = 0
		for _, m := range mask {
			used += m
		}
	}
	ids = ids[:used]

	enc := Encoding{
		IDs:   make([]int64, maxLength),
		Mask:  make([]int64, maxLength),
		Types: make([]int64, maxLength),
	}
	n := min(used, maxLength)
	for i := 0; i < maxLength; i++ {
		if i >= n {
			enc.IDs[i] = int64(padID)
			continue
		}
		enc.IDs[i] = int64(ids[i])
		enc.Mask[i] = 1
		if i < len(types) {
			enc.Types[i] = int64(types[i])
		}
	}
	if used > maxLength && maxLength > 1 {
		enc.IDs[maxLength-1] = int64(ids[used-1])
	}
	return enc
}

// firstPosition copies the dim values of position 0 out of a flattened
// [1, sequence, dim] tensor.
func firstPosition(hidden []float32, dim int) []float32 {
	out := make([]float32, dim)
	copy(out, hidden[:min(dim, len(hidden))])
	return out
}

func readManifest(dir string) (*Manifest, error) {
	manifest := &Manifest{}
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, manifest); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
		}
	}

	if err := manifest.validate(); err != nil {
		return nil, err
	}
	if manifest.Name == "" {
		manifest.Name = filepath.Base(filepath.Clean(dir))
	}
	if manifest.MaxLength == 0 {
		manifest.MaxLength = DefaultMaxLength
	}
	return manifest, nil
}
