package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/poiesic/folio/config"
	"github.com/poiesic/folio/core"
	"github.com/poiesic/folio/ingestion"
	"github.com/poiesic/folio/search"
	"github.com/poiesic/folio/storage"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

const snippetLength = 160

func ingestCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one file is required")
	}

	f, err := openFolio(c)
	if err != nil {
		return err
	}
	defer f.Close()

	out := c.App.Writer
	queued := make([]*core.Document, 0, c.NArg())
	for _, path := range c.Args().Slice() {
		doc, err := submitFile(c, f.Queue(), path)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "queued %s %s\n", doc.ID, doc.FileName)
		queued = append(queued, doc)
	}

	if !c.Bool("wait") {
		return nil
	}
	f.Queue().Wait()

	failed := 0
	for _, doc := range queued {
		stored, err := f.Documents().GetDocument(c.Context, doc.ID)
		if err != nil {
			return err
		}
		printStatus(c, stored)
		if stored.Status != core.StatusCompleted {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents did not complete", failed, len(queued))
	}
	return nil
}

func submitFile(c *cli.Context, queue *ingestion.Queue, path string) (*core.Document, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	doc, err := queue.Submit(c.Context, filepath.Base(path), file)
	if err != nil {
		return nil, fmt.Errorf("failed to submit %s: %w", path, err)
	}
	return doc, nil
}

func processCommand(c *cli.Context) error {
	id, err := idArg(c)
	if err != nil {
		return err
	}

	f, err := openFolio(c)
	if err != nil {
		return err
	}
	defer f.Close()

	// A stage failure is recorded on the document and printed below.
	var stageErr *ingestion.StageError
	if err := f.Orchestrator().Process(c.Context, id); err != nil && !errors.As(err, &stageErr) {
		return err
	}

	doc, err := f.Documents().GetDocument(c.Context, id)
	if err != nil {
		return err
	}
	printStatus(c, doc)
	return nil
}

func retriggerCommand(c *cli.Context) error {
	id, err := idArg(c)
	if err != nil {
		return err
	}

	f, err := openFolio(c)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Queue().Retrigger(c.Context, id); err != nil {
		return fmt.Errorf("failed to retrigger %s: %w", id, err)
	}
	f.Queue().Wait()

	doc, err := f.Documents().GetDocument(c.Context, id)
	if err != nil {
		return err
	}
	printStatus(c, doc)
	return nil
}

func showCommand(c *cli.Context) error {
	id, err := idArg(c)
	if err != nil {
		return err
	}

	f, err := openFolio(c)
	if err != nil {
		return err
	}
	defer f.Close()

	doc, err := f.Documents().GetDocument(c.Context, id)
	if err != nil {
		return err
	}

	out := c.App.Writer
	fmt.Fprintf(out, "ID:       %s\n", doc.ID)
	fmt.Fprintf(out, "Status:   %s\n", doc.Status)
	if doc.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:    %s\n", doc.ErrorMessage)
	}
	fmt.Fprintf(out, "File:     %s (%s)\n", doc.FileName, doc.FileKey)
	fmt.Fprintf(out, "Digest:   %s\n", doc.FileDigest)
	fmt.Fprintf(out, "Title:    %s\n", doc.Title)
	fmt.Fprintf(out, "Authors:  %s\n", strings.Join(doc.Authors, ", "))
	fmt.Fprintf(out, "Pages:    %d\n", doc.PageCount)
	fmt.Fprintf(out, "Created:  %s\n", doc.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Updated:  %s\n", doc.UpdatedAt.Format("2006-01-02 15:04:05"))
	if doc.Abstract != "" {
		fmt.Fprintf(out, "\n%s\n", doc.Abstract)
	}
	if len(doc.TableOfContents) > 0 {
		fmt.Fprintln(out, "\nContents:")
		for _, entry := range doc.TableOfContents {
			fmt.Fprintf(out, "%s%s (p.%d)\n", strings.Repeat("  ", max(entry.Level-1, 0)+1), entry.Title, entry.Page)
		}
	}
	return nil
}

func chunksCommand(c *cli.Context) error {
	id, err := idArg(c)
	if err != nil {
		return err
	}

	f, err := openFolio(c)
	if err != nil {
		return err
	}
	defer f.Close()

	chunks, err := f.Documents().GetChunks(c.Context, id)
	if err != nil {
		return err
	}

	out := c.App.Writer
	fmt.Fprintf(out, "%d chunks\n", len(chunks))
	for _, chunk := range chunks {
		fmt.Fprintf(out, "%d: %s%s [%s/%d]\n    %s\n",
			chunk.PositionIndex, chunk.ID, page(chunk), chunk.EmbeddingModel, chunk.EmbeddingDimension, snippet(chunk.Content))
	}
	return nil
}

func listCommand(c *cli.Context) error {
	var statuses []core.Status
	for _, s := range c.StringSlice("status") {
		status := core.Status(strings.ToUpper(s))
		if !status.Valid() {
			return fmt.Errorf("invalid status %q", s)
		}
		statuses = append(statuses, status)
	}

	f, err := openFolio(c)
	if err != nil {
		return err
	}
	defer f.Close()

	docs, err := f.Documents().ListDocuments(c.Context, statuses...)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tPAGES\tFILE\tTITLE")
	for _, doc := range docs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", doc.ID, doc.Status, doc.PageCount, doc.FileName, doc.Title)
	}
	return tw.Flush()
}

func deleteCommand(c *cli.Context) error {
	id, err := idArg(c)
	if err != nil {
		return err
	}

	f, err := openFolio(c)
	if err != nil {
		return err
	}
	defer f.Close()

	doc, err := f.Documents().GetDocument(c.Context, id)
	if err != nil {
		return err
	}
	if err := f.Documents().DeleteDocument(c.Context, id); err != nil {
		return fmt.Errorf("failed to delete %s: %w", id, err)
	}
	if doc.FileKey != "" {
		if err := f.Files().Delete(c.Context, doc.FileKey); err != nil && !errors.Is(err, storage.ErrFileNotFound) {
			return fmt.Errorf("failed to delete file %s: %w", doc.FileKey, err)
		}
	}

	fmt.Fprintf(c.App.Writer, "deleted %s\n", id)
	return nil
}

func searchCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("a query is required")
	}

	f, err := openFolio(c)
	if err != nil {
		return err
	}
	defer f.Close()

	var opts []search.Option
	if c.IsSet("min-score") {
		opts = append(opts, search.WithMinScore(float32(c.Float64("min-score"))))
	}
	searcher, err := f.NewSearcher(opts...)
	if err != nil {
		return err
	}

	limit := f.Config().Search.MaxHits
	if c.IsSet("limit") {
		limit = c.Int("limit")
	}
	results, err := searcher.FindSimilar(c.Context, query, limit)
	if err != nil {
		return err
	}

	out := c.App.Writer
	fmt.Fprintf(out, "Found %d hits\n", len(results))
	for i, hit := range results {
		title := hit.Document.Title
		if title == "" {
			title = hit.Document.FileName
		}
		fmt.Fprintf(out, "%d: [%0.3f] %s%s (%s)\n    %s\n",
			i+1, hit.Score, title, page(hit.Chunk), hit.Document.ID, snippet(hit.Chunk.Content))
	}
	return nil
}

func reembedCommand(c *cli.Context) error {
	f, err := openFolio(c)
	if err != nil {
		return err
	}
	defer f.Close()

	cfg := f.Config()
	cfg.Reembed.Force = c.Bool("force")
	if c.IsSet("concurrency") {
		cfg.Reembed.Concurrency = c.Int("concurrency")
	}
	if cfg.Reembed.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if cfg.Reembed.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	errOut := c.App.ErrWriter
	fmt.Fprintf(errOut, "Embedding model: %s\n", f.Embedder().Model())
	fmt.Fprintln(errOut)

	summary, err := f.NewReembedder(errOut).Run(c.Context)
	if err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "re-embedded %d documents (%d chunks), skipped %d in %s\n",
		summary.Documents, summary.Chunks, summary.Skipped, summary.Elapsed.Round(time.Millisecond))
	return nil
}

func migrateCommand(c *cli.Context) error {
	f, err := openFolio(c)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Migrate(c.Context); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	fmt.Fprintln(c.App.Writer, "schema is up to date")
	return nil
}

func configInitCommand(c *cli.Context) error {
	path := c.String("config")
	if _, err := os.Stat(path); err == nil && !c.Bool("force") {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.Save(path, config.Default()); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	fmt.Fprintf(c.App.Writer, "wrote %s\n", path)
	return nil
}

func configShowCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(c.App.Writer)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}

func idArg(c *cli.Context) (core.ID, error) {
	if c.NArg() != 1 {
		return core.ID{}, fmt.Errorf("exactly one document ID is required")
	}
	id, err := core.ParseID(c.Args().First())
	if err != nil {
		return core.ID{}, fmt.Errorf("invalid document ID %q: %w", c.Args().First(), err)
	}
	return id, nil
}

func printStatus(c *cli.Context, doc *core.Document) {
	if doc.Status == core.StatusFailed {
		fmt.Fprintf(c.App.Writer, "%s %s %s: %s\n", doc.ID, doc.Status, doc.FileName, doc.ErrorMessage)
		return
	}
	fmt.Fprintf(c.App.Writer, "%s %s %s %q\n", doc.ID, doc.Status, doc.FileName, doc.Title)
}

func page(chunk *core.Chunk) string {
	if chunk.PageNumber == nil {
		return ""
	}
	return fmt.Sprintf(" p.%d", *chunk.PageNumber)
}

func snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= snippetLength {
		return text
	}
	return string(runes[:snippetLength]) + "..."
}
