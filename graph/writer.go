package graph

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/AnTengye/contractgraph/config"
)

// Writer persists an import script.
type Writer interface {
	Write(ctx context.Context, s *Script) error
}

// FileWriter writes scripts as cypher-shell files. Path may name a file or,
// when Dir is set, a directory receiving <documentId>.cypher.
type FileWriter struct {
	Path string
	Dir  string
}

func (w FileWriter) target(s *Script) string {
	if w.Dir != "" {
		return filepath.Join(w.Dir, s.DocumentID+".cypher")
	}
	return w.Path
}

func (w FileWriter) Write(_ context.Context, s *Script) error {
	path := w.target(s)
	if path == "" {
		return fmt.Errorf("no output path for script %s", s.DocumentID)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create script directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create script file: %w", err)
	}
	if _, err := s.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write script: %w", err)
	}
	return f.Close()
}

// Writers writes a script to each writer in turn and stops at the first
// failure.
type Writers []Writer

func (ws Writers) Write(ctx context.Context, s *Script) error {
	for _, w := range ws {
		if err := w.Write(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// Client holds a Neo4j driver and the database it targets.
type Client struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *slog.Logger
}

// NewClient connects to Neo4j and verifies connectivity.
func NewClient(ctx context.Context, cfg *config.Neo4jConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to neo4j: %w", err)
	}
	logger.Info("neo4j.connected", "uri", cfg.URI, "database", cfg.Database)
	return &Client{driver: driver, database: cfg.Database, logger: logger}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// Writer returns a Writer that runs scripts against the database.
func (c *Client) Writer() *Neo4jWriter {
	return &Neo4jWriter{client: c}
}

// Reader returns a Reader over the database.
func (c *Client) Reader() *Neo4jReader {
	return &Neo4jReader{client: c}
}

// Neo4jWriter runs every statement of a script in one write transaction.
type Neo4jWriter struct {
	client *Client
}

func (w *Neo4jWriter) Write(ctx context.Context, s *Script) error {
	session := w.client.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: w.client.database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, stmt := range s.Statements {
			result, err := tx.Run(ctx, stmt, nil)
			if err != nil {
				return nil, err
			}
			if _, err := result.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("failed to import %s into neo4j: %w", s.DocumentID, err)
	}
	w.client.logger.Info("neo4j.imported", "document_id", s.DocumentID, "statements", len(s.Statements))
	return nil
}
