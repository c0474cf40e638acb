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


package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/folio/ai"
	"github.com/poiesic/folio/reembed"
	"github.com/poiesic/folio/splitter"
	"github.com/poiesic/folio/storage/postgres"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	StorageBadger   = "badger"
	StoragePostgres = "postgres"
)

// File store backends.
const (
	FilesLocal  = "local"
	FilesGCS    = "gcs"
	FilesBadger = "badger"
)

// DefaultPath is where `folio config init` writes the configuration.
const DefaultPath = "folio.yaml"

// BadgerConfig locates the embedded database.
type BadgerConfig struct {
	Path     string `yaml:"path" validate:"required_unless=InMemory true"`
	InMemory bool   `yaml:"in_memory,omitempty"`
}

// StorageConfig selects the document store.
type StorageConfig struct {
	Backend  string          `yaml:"backend" validate:"oneof=badger postgres"`
	Badger   BadgerConfig    `yaml:"badger"`
	Postgres postgres.Config `yaml:"postgres"`
}

// LocalFilesConfig is a directory tree of uploaded files.
type LocalFilesConfig struct {
	Root string `yaml:"root"`
}

// GCSConfig is a Cloud Storage bucket of uploaded files.
type GCSConfig struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix,omitempty"`
	CredentialsFile string `yaml:"credentials_file,omitempty"`
}

// FilesConfig selects the file store.
type FilesConfig struct {
	Backend string           `yaml:"backend" validate:"oneof=local gcs badger"`
	Local   LocalFilesConfig `yaml:"local"`
	GCS     GCSConfig        `yaml:"gcs"`
}

// ParserConfig selects the parser backend.
type ParserConfig struct {
	Kind          string        `yaml:"kind" validate:"oneof=auto layout structural"`
	LayoutURL     string        `yaml:"layout_url,omitempty" validate:"omitempty,url"`
	LayoutWorkers int           `yaml:"layout_workers" validate:"gte=0"`
	LayoutTimeout time.Duration `yaml:"layout_timeout" validate:"gte=0"`
}

// IngestionConfig sizes the task queue.
type IngestionConfig struct {
	PoolSize    int           `yaml:"pool_size" validate:"gte=1"`
	JobTimeout  time.Duration `yaml:"job_timeout" validate:"gte=0"`
	Nonblocking bool          `yaml:"nonblocking,omitempty"`
}

// SearchConfig tunes query answering.
type SearchConfig struct {
	MinScore float32 `yaml:"min_score" validate:"gte=-1,lte=1"`
	MaxHits  int     `yaml:"max_hits" validate:"gte=1"`
}

// Config is the complete application configuration.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Files     FilesConfig     `yaml:"files"`
	Parser    ParserConfig    `yaml:"parser"`
	Splitter  splitter.Config `yaml:"splitter"`
	Embedding ai.Config       `yaml:"embedding"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Search    SearchConfig    `yaml:"search"`
	Reembed   reembed.Config  `yaml:"reembed"`
}

// Default returns a configuration for a single machine: badger storage and
// local files under ./data, the auto parser and local embeddings.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend: StorageBadger,
			Badger:  BadgerConfig{Path: filepath.Join("data", "db")},
			Postgres: postgres.Config{
				AutoMigrate: true,
			},
		},
		Files: FilesConfig{
			Backend: FilesLocal,
			Local:   LocalFilesConfig{Root: filepath.Join("data", "files")},
		},
		Parser: ParserConfig{
			Kind:          "auto",
			LayoutWorkers: 2,
			LayoutTimeout: 5 * time.Minute,
		},
		Splitter:  splitter.DefaultConfig(),
		Embedding: *ai.DefaultConfig(),
		Ingestion: IngestionConfig{
			PoolSize:   10,
			JobTimeout: 10 * time.Minute,
		},
		Search: SearchConfig{
			MinScore: 0.6,
			MaxHits:  10,
		},
		Reembed: *reembed.DefaultConfig(),
	}
}

// Load builds the configuration from path, the .env file in the working
// directory and the environment. A missing file at path yields the defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path as YAML, creating parent directories.
func Save(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
