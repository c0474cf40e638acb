package local

import "errors"

var (
	// ErrModelNotFound indicates model.onnx or tokenizer.json is missing.
	ErrModelNotFound = errors.New("model file not found")

	// ErrInvalidManifest indicates model.yaml is malformed or incomplete.
	ErrInvalidManifest = errors.New("invalid model manifest")

	// ErrInvalidModel indicates the ONNX graph has inputs or outputs the
	// encoder cannot use.
	ErrInvalidModel = errors.New("unsupported model graph")

	// ErrDimensionMismatch indicates the output hidden size differs from the
	// manifest's dimension.
	ErrDimensionMismatch = errors.New("output does not match model dimension")

	// ErrRuntimeUnavailable indicates the onnxruntime shared library could
	// not be loaded.
	ErrRuntimeUnavailable = errors.New("onnxruntime is not available")

	// ErrEmbedderClosed is returned after Close.
	ErrEmbedderClosed = errors.New("embedder is closed")
)
