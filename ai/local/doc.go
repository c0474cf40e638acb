// Package local runs an embedding model in-process with onnxruntime.
//
// A model directory holds:
//
//   - model.onnx: a transformer encoder whose first output (or the output
//     named in the manifest) is the [batch, sequence, hidden] hidden state
//   - tokenizer.json: the HuggingFace tokenizer shipped with the model
//   - model.yaml (optional): name, dimension, max_length, pad_id and output
//
// Each text is tokenized with special tokens, truncated or padded to
// max_length with an attention mask, run through the encoder, and the hidden
// state at position 0 (the CLS token) is L2-normalized. Inference runs on a
// bounded ants pool sharing one session, so the Embedder is safe for
// concurrent use.
package local
