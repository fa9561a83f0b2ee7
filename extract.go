package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/AnTengye/contractgraph/config"
	"github.com/AnTengye/contractgraph/graph"
	"github.com/AnTengye/contractgraph/model"
	"github.com/AnTengye/contractgraph/pipeline"
	"github.com/AnTengye/contractgraph/report"
	"github.com/AnTengye/contractgraph/service"
)

func extractAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	initLogger(cfg, c.App.ErrWriter)

	input, txt := c.String("input"), c.String("txt")
	if input == "" && txt == "" {
		return cli.Exit("one of --input or --txt is required", 2)
	}

	ctx := c.Context
	writers := graph.Writers{graph.FileWriter{Path: c.String("output")}}
	if c.Bool("neo4j") {
		client, err := graph.NewClient(ctx, &cfg.Neo4j, slog.Default())
		if err != nil {
			return err
		}
		defer client.Close(ctx)
		writers = append(writers, client.Writer())
	}

	deps := service.ExtractionDeps{
		Orchestrator: newOrchestrator(cfg),
		Store:        service.NewContractStore(&cfg.Store),
		Graph:        writers,
	}
	if path := archivePath(c, cfg); path != "" {
		archive, err := service.OpenArchive(path)
		if err != nil {
			return err
		}
		defer archive.Close()
		deps.Archive = archive
	}
	svc := service.NewExtractionService(deps)

	source := input
	if source == "" {
		source = txt
	}
	contract := &model.Contract{
		ID:        c.String("document-id"),
		Filename:  filepath.Base(source),
		Status:    model.StatusPending,
		CreatedAt: time.Now(),
	}
	if contract.ID == "" {
		contract.ID = uuid.NewString()
	}
	svc.Store().Save(contract)

	in := pipeline.Input{DocumentID: contract.ID, SourceDocument: contract.Filename}
	if input != "" {
		in.Structured = pipeline.JSONFile{Path: input}
	}
	if txt != "" {
		in.Fallback = pipeline.FileTextSource{Path: txt}
	}

	res, err := svc.Resolve(ctx, contract, in)
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	if path := c.String("summary"); path != "" {
		if err := writeOutput(c, path, func(w io.Writer) error { return report.RenderMarkdown(w, res) }); err != nil {
			return err
		}
	}
	if path := c.String("xlsx"); path != "" {
		if err := writeOutput(c, path, func(w io.Writer) error { return report.WriteXLSX(w, res) }); err != nil {
			return err
		}
	}

	fmt.Fprintf(c.App.Writer, "%s: %q from %s, %d articles, %d parties\n",
		res.DocumentID, report.DisplayTitle(res.Metadata.Title), res.Provenance, len(res.Articles), len(res.Parties))
	return nil
}

func summarizeAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	initLogger(cfg, c.App.ErrWriter)

	id := c.String("document-id")
	res, err := loadResult(c, cfg, id)
	if errors.Is(err, service.ErrNotArchived) || errors.Is(err, graph.ErrNotFound) {
		return cli.Exit(fmt.Sprintf("contract %s not found", id), 1)
	}
	if err != nil {
		return err
	}

	out := c.String("output")
	if strings.EqualFold(filepath.Ext(out), ".xlsx") {
		return writeOutput(c, out, func(w io.Writer) error { return report.WriteXLSX(w, res) })
	}
	return writeOutput(c, out, func(w io.Writer) error { return report.RenderMarkdown(w, res) })
}

// loadResult reads a resolved contract from the archive when one is
// configured, otherwise from Neo4j.
func loadResult(c *cli.Context, cfg *config.Config, id string) (*model.ExtractionResult, error) {
	ctx := c.Context
	if path := archivePath(c, cfg); path != "" {
		archive, err := service.OpenArchive(path)
		if err != nil {
			return nil, err
		}
		defer archive.Close()
		return archive.Get(ctx, id)
	}

	client, err := graph.NewClient(ctx, &cfg.Neo4j, slog.Default())
	if err != nil {
		return nil, err
	}
	defer client.Close(ctx)
	return client.Reader().ReadContract(ctx, id)
}

func archivePath(c *cli.Context, cfg *config.Config) string {
	if path := c.String("archive"); path != "" {
		return path
	}
	return cfg.Archive.Path
}

// writeOutput renders into path, or to the app's writer for "-".
func writeOutput(c *cli.Context, path string, render func(io.Writer) error) error {
	if path == "-" {
		return render(c.App.Writer)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := render(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
