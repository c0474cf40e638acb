package config

import (
	"fmt"
	"strconv"
	"time"
)

// EnvPrefix starts every environment variable read by ApplyEnv.
const EnvPrefix = "FOLIO_"

type envBinding struct {
	name  string
	apply func(c *Config, value string) error
}

func setString(dst func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*dst(c) = v
		return nil
	}
}

func setInt(dst func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst(c) = n
		return nil
	}
}

func setDuration(dst func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst(c) = d
		return nil
	}
}

var envBindings = []envBinding{
	{"STORAGE_BACKEND", setString(func(c *Config) *string { return &c.Storage.Backend })},
	{"BADGER_PATH", setString(func(c *Config) *string { return &c.Storage.Badger.Path })},
	{"POSTGRES_DSN", setString(func(c *Config) *string { return &c.Storage.Postgres.DSN })},
	{"POSTGRES_DIMENSION", setInt(func(c *Config) *int { return &c.Storage.Postgres.Dimension })},
	{"FILES_BACKEND", setString(func(c *Config) *string { return &c.Files.Backend })},
	{"FILES_ROOT", setString(func(c *Config) *string { return &c.Files.Local.Root })},
	{"GCS_BUCKET", setString(func(c *Config) *string { return &c.Files.GCS.Bucket })},
	{"GCS_PREFIX", setString(func(c *Config) *string { return &c.Files.GCS.Prefix })},
	{"GCS_CREDENTIALS_FILE", setString(func(c *Config) *string { return &c.Files.GCS.CredentialsFile })},
	{"PARSER", setString(func(c *Config) *string { return &c.Parser.Kind })},
	{"LAYOUT_URL", setString(func(c *Config) *string { return &c.Parser.LayoutURL })},
	{"LAYOUT_TIMEOUT", setDuration(func(c *Config) *time.Duration { return &c.Parser.LayoutTimeout })},
	{"SPLIT_STRATEGY", setString(func(c *Config) *string { return &c.Splitter.Strategy })},
	{"CHUNK_SIZE", setInt(func(c *Config) *int { return &c.Splitter.ChunkSize })},
	{"CHUNK_OVERLAP", setInt(func(c *Config) *int { return &c.Splitter.ChunkOverlap })},
	{"EMBEDDING_BACKEND", setString(func(c *Config) *string { return &c.Embedding.Backend })},
	{"EMBEDDING_HOST", setString(func(c *Config) *string { return &c.Embedding.Remote.Host })},
	{"EMBEDDING_MODEL", setString(func(c *Config) *string { return &c.Embedding.Remote.Model })},
	{"EMBEDDING_TOKEN", func(c *Config, v string) error {
		c.Embedding.Remote.Token = v
		c.Embedding.Fallback.Token = v
		return nil
	}},
	{"FALLBACK_HOST", setString(func(c *Config) *string { return &c.Embedding.Fallback.Host })},
	{"FALLBACK_MODEL", setString(func(c *Config) *string { return &c.Embedding.Fallback.Model })},
	{"LOCAL_MODEL_DIR", setString(func(c *Config) *string { return &c.Embedding.Local.ModelDir })},
	{"ONNXRUNTIME_LIB", setString(func(c *Config) *string { return &c.Embedding.Local.Runtime })},
	{"POOL_SIZE", setInt(func(c *Config) *int { return &c.Ingestion.PoolSize })},
	{"JOB_TIMEOUT", setDuration(func(c *Config) *time.Duration { return &c.Ingestion.JobTimeout })},
}

// ApplyEnv overrides cfg with every FOLIO_* variable lookup reports.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	for _, b := range envBindings {
		v, ok := lookup(EnvPrefix + b.name)
		if !ok || v == "" {
			continue
		}
		if err := b.apply(cfg, v); err != nil {
			return fmt.Errorf("%w: %s%s: %w", ErrInvalidConfig, EnvPrefix, b.name, err)
		}
	}
	return nil
}
