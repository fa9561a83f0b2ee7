package main

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/AnTengye/contractgraph/annotation"
	"github.com/AnTengye/contractgraph/config"
	"github.com/AnTengye/contractgraph/extract"
	"github.com/AnTengye/contractgraph/pipeline"
	"github.com/AnTengye/contractgraph/pkg/logger"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

var configFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "path to the YAML configuration",
	Value:   "config.yaml",
	EnvVars: []string{"CONTRACTGRAPH_CONFIG"},
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "contractgraph",
		Usage: "extract contract structure into a knowledge graph",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API",
				Flags:  []cli.Flag{configFlag},
				Action: serveAction,
			},
			{
				Name:  "extract",
				Usage: "resolve one document and write its graph import script",
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "structured page JSON"},
					&cli.StringFlag{Name: "txt", Usage: "plain-text fallback of the same document"},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Cypher script to write", Required: true},
					&cli.StringFlag{Name: "document-id", Usage: "id of the contract node (generated when empty)"},
					&cli.StringFlag{Name: "summary", Usage: "also write a Markdown summary"},
					&cli.StringFlag{Name: "xlsx", Usage: "also write a spreadsheet export"},
					&cli.StringFlag{Name: "archive", Usage: "SQLite run archive (overrides archive.path)"},
					&cli.BoolFlag{Name: "neo4j", Usage: "also import the script into Neo4j"},
				},
				Action: extractAction,
			},
			{
				Name:  "summarize",
				Usage: "render the summary of an imported contract",
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{Name: "document-id", Usage: "contract to summarize", Required: true},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "file to write, .xlsx for a spreadsheet", Value: "-"},
					&cli.StringFlag{Name: "archive", Usage: "read from this SQLite run archive instead of Neo4j"},
				},
				Action: summarizeAction,
			},
		},
	}
}

// loadConfig reads --config. A missing default file falls back to built-in
// defaults; a missing explicit file is an error.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) && !c.IsSet("config") {
		return config.Default(), nil
	}
	return cfg, err
}

func initLogger(cfg *config.Config, out io.Writer) {
	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: out,
	})
}

// newOrchestrator wires the annotation service and language detection
// configured in cfg. Without an annotation URL extraction runs on patterns
// only.
func newOrchestrator(cfg *config.Config) *pipeline.Orchestrator {
	var annotator annotation.Annotator
	if cfg.Annotation.URL != "" {
		annotator = annotation.NewClient(&cfg.Annotation)
	}
	evidence := annotation.NewEvidence(annotator, annotation.Options{
		EntityWindow:   cfg.Annotation.EntityWindow,
		EntityLimit:    cfg.Annotation.EntityLimit,
		SentenceWindow: cfg.Annotation.SentenceWindow,
		SentenceLimit:  cfg.Annotation.SentenceLimit,
	}, slog.Default())

	var language extract.LanguageDetector
	if cfg.Annotation.DetectLanguage {
		language = annotation.NewLinguaDetector()
	}

	return pipeline.New(pipeline.Config{
		Evidence:   evidence,
		Language:   language,
		FirstPages: cfg.Extraction.FirstPages,
		LastPages:  cfg.Extraction.LastPages,
		Logger:     slog.Default(),
	})
}
