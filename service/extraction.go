package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AnTengye/contractgraph/graph"
	"github.com/AnTengye/contractgraph/model"
	"github.com/AnTengye/contractgraph/pipeline"
	"github.com/AnTengye/contractgraph/pkg/logger"
	"github.com/AnTengye/contractgraph/report"
)

// Artifact file names stored per contract.
const (
	ArtifactFallback = "fallback.md"
	ArtifactCypher   = "graph.cypher"
	ArtifactSummary  = "summary.md"
	ArtifactResult   = "result.json"
)

const maxPollAttempts = 60

// ErrNoResult reports a contract that has not been resolved yet.
var ErrNoResult = errors.New("contract has no extraction result")

// Converter turns an uploaded source file into page text.
type Converter interface {
	CreateTask(ctx context.Context, sourceURL, dataID string) (*MineruTaskResponse, error)
	GetTaskStatus(ctx context.Context, taskID string) (*MineruTaskStatusResponse, error)
	FetchResult(ctx context.Context, zipURL string) (*ConversionResult, error)
}

// ResultArchive keeps resolved extractions beyond the in-memory store.
type ResultArchive interface {
	Save(ctx context.Context, res *model.ExtractionResult) error
	Get(ctx context.Context, documentID string) (*model.ExtractionResult, error)
}

type textSourcer interface {
	TextSource(objectName string) pipeline.TextSource
}

// ExtractionDeps wires an ExtractionService. Only Orchestrator and Store are
// required.
type ExtractionDeps struct {
	Orchestrator *pipeline.Orchestrator
	Store        *ContractStore
	Converter    Converter
	Graph        graph.Writer
	Artifacts    ArtifactStore
	Archive      ResultArchive
	PollInterval time.Duration
}

// ExtractionService resolves contracts and hands each result to the graph
// writer, the artifact store and the archive.
type ExtractionService struct {
	orchestrator *pipeline.Orchestrator
	store        *ContractStore
	converter    Converter
	graph        graph.Writer
	artifacts    ArtifactStore
	archive      ResultArchive
	pollInterval time.Duration
	now          func() time.Time
}

func NewExtractionService(deps ExtractionDeps) *ExtractionService {
	if deps.PollInterval <= 0 {
		deps.PollInterval = 5 * time.Second
	}
	return &ExtractionService{
		orchestrator: deps.Orchestrator,
		store:        deps.Store,
		converter:    deps.Converter,
		graph:        deps.Graph,
		artifacts:    deps.Artifacts,
		archive:      deps.Archive,
		pollInterval: deps.PollInterval,
		now:          time.Now,
	}
}

// Store returns the contract store the service updates.
func (s *ExtractionService) Store() *ContractStore {
	return s.store
}

// Convert submits the uploaded source of c for conversion, waits for the
// task and resolves the result. It is run in its own goroutine per upload.
func (s *ExtractionService) Convert(ctx context.Context, c *model.Contract) {
	ctx = context.WithValue(ctx, logger.ContractIDKey, c.ID)
	if s.converter == nil {
		s.fail(ctx, c.ID, "no document converter configured")
		return
	}

	s.store.UpdateStatus(c.ID, model.StatusConverting, "")
	resp, err := s.converter.CreateTask(ctx, c.SourceURL, c.ID)
	if err != nil {
		s.fail(ctx, c.ID, "failed to create conversion task: "+err.Error())
		return
	}
	s.store.SetTaskID(c.ID, resp.Data.TaskID)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for i := 0; i < maxPollAttempts; i++ {
		select {
		case <-ctx.Done():
			s.fail(ctx, c.ID, "conversion cancelled: "+ctx.Err().Error())
			return
		case <-ticker.C:
		}

		status, err := s.converter.GetTaskStatus(ctx, resp.Data.TaskID)
		if err != nil {
			logger.Warn(ctx, "conversion.poll.failed", "attempt", i+1, "error", err)
			continue
		}
		if done := s.CompleteConversion(ctx, c.ID, status.Data); done {
			return
		}
	}
	s.fail(ctx, c.ID, "conversion polling timeout")
}

// CompleteConversion applies a task status reported by polling or by a
// callback. It reports whether the task reached a final state.
func (s *ExtractionService) CompleteConversion(ctx context.Context, contractID string, status MineruTaskStatus) bool {
	ctx = context.WithValue(ctx, logger.ContractIDKey, contractID)
	switch status.State {
	case MineruStateDone:
		c, claimed := s.store.ClaimExtraction(contractID)
		if !claimed {
			// already extracting, finished, or gone
			logger.Info(ctx, "conversion.duplicate", "task_id", status.TaskID)
			return true
		}
		if status.FullZipURL == "" {
			s.fail(ctx, contractID, "conversion finished without a result archive")
			return true
		}
		if s.converter == nil {
			s.fail(ctx, contractID, "no document converter configured")
			return true
		}
		conv, err := s.converter.FetchResult(ctx, status.FullZipURL)
		if err != nil {
			s.fail(ctx, contractID, "failed to fetch conversion result: "+err.Error())
			return true
		}
		_, _ = s.Resolve(ctx, c, s.conversionInput(ctx, c, conv))
		return true
	case MineruStateFailed:
		s.fail(ctx, contractID, status.ErrorMsg)
		return true
	case MineruStateRunning:
		logger.Debug(ctx, "conversion.progress",
			"extracted_pages", status.ExtractProgress.ExtractedPages,
			"total_pages", status.ExtractProgress.TotalPages,
		)
	}
	return false
}

func (s *ExtractionService) conversionInput(ctx context.Context, c *model.Contract, conv *ConversionResult) pipeline.Input {
	in := pipeline.Input{
		DocumentID:     c.ID,
		SourceDocument: c.Filename,
		Structured:     pipeline.StaticDocument{Doc: conv.Document},
	}
	if strings.TrimSpace(conv.Markdown) != "" {
		in.Fallback = s.FallbackSource(ctx, c, conv.Markdown)
	}
	return in
}

// FallbackSource stores text as the contract's fallback artifact and returns
// a source reading it back. Without an object store the text is used
// directly.
func (s *ExtractionService) FallbackSource(ctx context.Context, c *model.Contract, text string) pipeline.TextSource {
	objects, ok := s.artifacts.(textSourcer)
	if !ok {
		return pipeline.StaticTextSource(text)
	}
	name := ArtifactName(c.Tenant, c.ID, ArtifactFallback)
	if err := s.artifacts.PutArtifact(ctx, name, []byte(text), ContentTypeMarkdown); err != nil {
		logger.Warn(ctx, "artifact.store.failed", "artifact", ArtifactFallback, "error", err)
		return pipeline.StaticTextSource(text)
	}
	return objects.TextSource(name)
}

// Resolve runs the pipeline for c and hands the result on. The contract is
// completed with the result, or failed when extraction is unrecoverable or
// the graph import fails.
func (s *ExtractionService) Resolve(ctx context.Context, c *model.Contract, in pipeline.Input) (*model.ExtractionResult, error) {
	ctx = context.WithValue(ctx, logger.ContractIDKey, c.ID)
	s.store.UpdateStatus(c.ID, model.StatusExtracting, "")

	res, err := s.orchestrator.Run(ctx, in)
	if err != nil {
		s.fail(ctx, c.ID, err.Error())
		return nil, err
	}

	s.store.SetResult(c.ID, res)
	if err := s.handoff(ctx, c.Tenant, res); err != nil {
		s.fail(ctx, c.ID, err.Error())
		return res, err
	}
	logger.Info(ctx, "extraction.completed",
		"provenance", res.Provenance,
		"articles", len(res.Articles),
		"parties", len(res.Parties),
	)
	return res, nil
}

// handoff writes the graph exactly once per resolved result. Artifact and
// archive failures are logged only.
func (s *ExtractionService) handoff(ctx context.Context, tenant string, res *model.ExtractionResult) error {
	script := graph.Build(res, s.now())

	if s.archive != nil {
		if err := s.archive.Save(ctx, res); err != nil {
			logger.Warn(ctx, "archive.save.failed", "error", err)
		}
	}

	if s.artifacts != nil {
		for name, render := range map[string]func() ([]byte, string, error){
			ArtifactCypher:  func() ([]byte, string, error) { return cypherBytes(script) },
			ArtifactSummary: func() ([]byte, string, error) { return summaryBytes(res) },
			ArtifactResult:  func() ([]byte, string, error) { return resultBytes(res) },
		} {
			data, contentType, err := render()
			if err == nil {
				err = s.artifacts.PutArtifact(ctx, ArtifactName(tenant, res.DocumentID, name), data, contentType)
			}
			if err != nil {
				logger.Warn(ctx, "artifact.store.failed", "artifact", name, "error", err)
			}
		}
	}

	if s.graph != nil {
		if err := s.graph.Write(ctx, script); err != nil {
			return fmt.Errorf("graph import failed: %w", err)
		}
	}
	return nil
}

// Result returns the extraction result of a contract, loading it from the
// archive when the store no longer holds it.
func (s *ExtractionService) Result(ctx context.Context, c *model.Contract) (*model.ExtractionResult, error) {
	if c.Result != nil {
		return c.Result, nil
	}
	if s.archive != nil && c.Status == model.StatusCompleted {
		return s.archive.Get(ctx, c.ID)
	}
	return nil, ErrNoResult
}

func (s *ExtractionService) fail(ctx context.Context, contractID, msg string) {
	logger.Error(ctx, "extraction.failed", "error", msg)
	s.store.UpdateStatus(contractID, model.StatusFailed, msg)
}

func cypherBytes(script *graph.Script) ([]byte, string, error) {
	var buf bytes.Buffer
	if _, err := script.WriteTo(&buf); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), ContentTypeCypher, nil
}

func summaryBytes(res *model.ExtractionResult) ([]byte, string, error) {
	var buf bytes.Buffer
	if err := report.RenderMarkdown(&buf, res); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), ContentTypeMarkdown, nil
}

func resultBytes(res *model.ExtractionResult) ([]byte, string, error) {
	data, err := json.MarshalIndent(res, "", "  ")
	return data, ContentTypeJSON, err
}
