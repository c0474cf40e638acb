// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ai

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultSubBatchSize is how many texts the resolver sends to a backend per call.
const DefaultSubBatchSize = 10

// RemoteConfig describes an OpenAI-compatible embedding endpoint.
type RemoteConfig struct {
	// Host is the base URL of the API.
	// Example: "http://localhost:11434/v1", "https://api.openai.com/v1"
	Host string `yaml:"host"`

	// Token is the bearer token sent with each request. May be empty for
	// local servers.
	Token string `yaml:"token,omitempty"`

	// Model is the embedding model identifier.
	Model string `yaml:"model"`

	// Dimension is the expected vector length. Zero means infer it from the
	// first response.
	Dimension int `yaml:"dimension,omitempty"`

	// Timeout bounds each HTTP request.
	Timeout time.Duration `yaml:"timeout"`

	// BatchSize is the number of texts per HTTP request.
	BatchSize int `yaml:"batch_size"`
}

// Enabled reports whether enough is configured to attempt a connection.
func (r RemoteConfig) Enabled() bool {
	return r.Host != "" && r.Model != ""
}

// DefaultTimeout bounds each remote embedding request.
const DefaultTimeout = 60 * time.Second

// Normalized returns a copy with the /v1 suffix on Host and defaults for an
// unset Timeout and BatchSize.
func (r RemoteConfig) Normalized() RemoteConfig {
	if r.Host != "" && !strings.HasSuffix(r.Host, "/v1") {
		r.Host = strings.TrimSuffix(r.Host, "/") + "/v1"
	}
	if r.Timeout <= 0 {
		r.Timeout = DefaultTimeout
	}
	if r.BatchSize <= 0 {
		r.BatchSize = DefaultSubBatchSize
	}
	return r
}

// LocalConfig describes an on-disk embedding model.
type LocalConfig struct {
	// ModelDir holds model.onnx, tokenizer.json and an optional model.yaml.
	ModelDir string `yaml:"model_dir"`

	// Runtime is the path of the onnxruntime shared library. Empty means the
	// platform default name on the library search path.
	Runtime string `yaml:"runtime,omitempty"`

	// MaxLength overrides the manifest's token limit when positive.
	MaxLength int `yaml:"max_length,omitempty"`

	// Workers bounds concurrent inferences.
	Workers int `yaml:"workers"`
}

// Config holds configuration for the embedding backends.
type Config struct {
	// Backend selects the primary backend: "local" or "remote".
	Backend string `yaml:"backend"`

	// Remote configures the remote backend when it is primary.
	Remote RemoteConfig `yaml:"remote"`

	// Fallback configures the remote backend used when the primary is local.
	Fallback RemoteConfig `yaml:"fallback"`

	// Local configures the local backend.
	Local LocalConfig `yaml:"local"`

	// SubBatchSize is the number of texts sent to a backend per call.
	// Default: 10
	SubBatchSize int `yaml:"sub_batch_size"`
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithBackend sets the primary backend.
func WithBackend(backend string) ConfigOption {
	return func(c *Config) {
		c.Backend = backend
	}
}

// WithRemote sets the remote backend host and model.
func WithRemote(host, model string) ConfigOption {
	return func(c *Config) {
		c.Remote.Host = host
		c.Remote.Model = model
	}
}

// WithToken sets the bearer token for both the remote and the fallback backend.
func WithToken(token string) ConfigOption {
	return func(c *Config) {
		c.Remote.Token = token
		c.Fallback.Token = token
	}
}

// WithFallback sets the fallback backend host and model.
func WithFallback(host, model string) ConfigOption {
	return func(c *Config) {
		c.Fallback.Host = host
		c.Fallback.Model = model
	}
}

// WithLocalModel sets the local model directory.
func WithLocalModel(dir string) ConfigOption {
	return func(c *Config) {
		c.Local.ModelDir = dir
	}
}

// WithRuntime sets the onnxruntime shared library path.
func WithRuntime(path string) ConfigOption {
	return func(c *Config) {
		c.Local.Runtime = path
	}
}

// WithSubBatchSize sets how many texts go to a backend per call.
func WithSubBatchSize(n int) ConfigOption {
	return func(c *Config) {
		c.SubBatchSize = n
	}
}

// DefaultConfig returns a Config that embeds locally and falls back to a
// local OpenAI-compatible server.
func DefaultConfig() *Config {
	remote := RemoteConfig{
		Host:      "http://localhost:11434/v1",
		Model:     "nomic-embed-text",
		Timeout:   DefaultTimeout,
		BatchSize: DefaultSubBatchSize,
	}
	return &Config{
		Backend:  BackendLocal,
		Remote:   remote,
		Fallback: remote,
		Local: LocalConfig{
			ModelDir: "models/embedding",
			Workers:  4,
		},
		SubBatchSize: DefaultSubBatchSize,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// It adds the /v1 suffix to remote hosts if missing, which OpenAI-compatible
// servers (Ollama, LocalAI, vLLM) expect.
func (c *Config) Normalize() {
	c.Remote = c.Remote.Normalized()
	c.Fallback = c.Fallback.Normalized()
	if c.SubBatchSize <= 0 {
		c.SubBatchSize = DefaultSubBatchSize
	}
}

// Validate checks that the configuration is valid and complete.
// It normalizes the configuration first.
func (c *Config) Validate() error {
	c.Normalize()

	switch c.Backend {
	case BackendRemote:
		if !c.Remote.Enabled() {
			return errors.New("ai config: remote backend requires Remote.Host and Remote.Model")
		}
	case BackendLocal:
		if c.Local.ModelDir == "" {
			return errors.New("ai config: local backend requires Local.ModelDir")
		}
	default:
		return fmt.Errorf("ai config: unknown backend %q", c.Backend)
	}

	if c.Remote.Dimension < 0 || c.Fallback.Dimension < 0 {
		return errors.New("ai config: Dimension must not be negative")
	}
	if c.Local.Workers < 0 {
		return errors.New("ai config: Local.Workers must not be negative")
	}
	return nil
}
