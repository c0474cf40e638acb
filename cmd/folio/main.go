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


package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/poiesic/folio"
	"github.com/poiesic/folio/config"
	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newApp(os.Stdout, os.Stderr).RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:      "folio",
		Usage:     "Ingest research papers and search them semantically",
		Writer:    out,
		ErrWriter: errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
				Value:   config.DefaultPath,
				EnvVars: []string{"FOLIO_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log output format (text, json)",
				Value: "text",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Override the BadgerDB database directory",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Store files and run them through the pipeline",
				ArgsUsage: "FILE...",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "wait",
						Usage: "Wait for processing to finish and report each result",
						Value: true,
					},
				},
			},
			{
				Name:      "process",
				Usage:     "Run one PENDING or FAILED document through the pipeline in the foreground",
				ArgsUsage: "ID",
				Action:    processCommand,
			},
			{
				Name:      "retrigger",
				Usage:     "Reset a finished document to PENDING and process it again",
				ArgsUsage: "ID",
				Action:    retriggerCommand,
			},
			{
				Name:      "show",
				Usage:     "Print a document and its metadata",
				ArgsUsage: "ID",
				Action:    showCommand,
			},
			{
				Name:      "chunks",
				Usage:     "Print the chunks of a document",
				ArgsUsage: "ID",
				Action:    chunksCommand,
			},
			{
				Name:   "list",
				Usage:  "List documents",
				Action: listCommand,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "status",
						Aliases: []string{"s"},
						Usage:   "Only list documents in these states (PENDING, PROCESSING, COMPLETED, FAILED)",
					},
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a document, its chunks and its stored file",
				ArgsUsage: "ID",
				Action:    deleteCommand,
			},
			{
				Name:      "search",
				Usage:     "Find chunks relevant to a query",
				ArgsUsage: "QUERY...",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of results (default: search.max_hits)",
					},
					&cli.Float64Flag{
						Name:  "min-score",
						Usage: "Override the similarity threshold (default: search.min_score)",
					},
				},
			},
			{
				Name:   "reembed",
				Usage:  "Re-embed the chunks of every COMPLETED document",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Re-embed documents already embedded by the current model",
					},
					&cli.IntFlag{
						Name:  "concurrency",
						Usage: "Documents re-embedded at once (default: reembed.concurrency)",
					},
				},
			},
			{
				Name:   "migrate",
				Usage:  "Create or upgrade the database schema",
				Action: migrateCommand,
			},
			{
				Name:  "config",
				Usage: "Manage the configuration file",
				Subcommands: []*cli.Command{
					{
						Name:   "init",
						Usage:  "Write the default configuration",
						Action: configInitCommand,
						Flags: []cli.Flag{
							&cli.BoolFlag{
								Name:  "force",
								Usage: "Overwrite an existing file",
							},
						},
					},
					{
						Name:   "show",
						Usage:  "Print the effective configuration",
						Action: configShowCommand,
					},
				},
			},
		},
	}
}

// loadConfig reads the configuration and applies global flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if db := c.String("db"); db != "" {
		cfg.Storage.Badger.Path = db
	}
	return cfg, nil
}

func openFolio(c *cli.Context) (*folio.Folio, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	f, err := folio.Open(c.Context, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open folio: %w", err)
	}
	return f, nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	opts := &slog.HandlerOptions{Level: level}
	w := c.App.ErrWriter
	if w == nil {
		w = os.Stderr
	}

	var handler slog.Handler
	switch strings.ToLower(c.String("log-format")) {
	case "text", "":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return fmt.Errorf("invalid log format %q: must be one of text, json", c.String("log-format"))
	}
	slog.SetDefault(slog.New(handler))

	return nil
}
