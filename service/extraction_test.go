package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AnTengye/contractgraph/graph"
	"github.com/AnTengye/contractgraph/model"
	"github.com/AnTengye/contractgraph/pipeline"
)

const servicesContract = "SERVICES AGREEMENT\nEffective Date: April 1, 2024\nARTICLE I - SCOPE\nThe scope of services."

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut bool
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string][]byte{}}
}

func (f *fakeObjects) PutArtifact(_ context.Context, name string, data []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPut {
		return errors.New("bucket unavailable")
	}
	f.objects[name] = append([]byte(nil), data...)
	return nil
}

func (f *fakeObjects) TextSource(name string) pipeline.TextSource {
	return fakeObjectText{objects: f, name: name}
}

func (f *fakeObjects) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for n := range f.objects {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type fakeObjectText struct {
	objects *fakeObjects
	name    string
}

func (t fakeObjectText) ReadText(context.Context) (string, error) {
	t.objects.mu.Lock()
	defer t.objects.mu.Unlock()
	data, ok := t.objects.objects[t.name]
	if !ok {
		return "", pipeline.ErrMissingSource
	}
	return string(data), nil
}

type recordingGraph struct {
	mu      sync.Mutex
	scripts []*graph.Script
	err     error
}

func (g *recordingGraph) Write(_ context.Context, s *graph.Script) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scripts = append(g.scripts, s)
	return g.err
}

func (g *recordingGraph) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.scripts)
}

type fakeConverter struct {
	states     []string
	polls      int
	conversion *ConversionResult
	fetchErr   error
}

func (f *fakeConverter) CreateTask(_ context.Context, _, _ string) (*MineruTaskResponse, error) {
	resp := &MineruTaskResponse{}
	resp.Data.TaskID = "task-1"
	return resp, nil
}

func (f *fakeConverter) GetTaskStatus(_ context.Context, taskID string) (*MineruTaskStatusResponse, error) {
	state := f.states[len(f.states)-1]
	if f.polls < len(f.states) {
		state = f.states[f.polls]
	}
	f.polls++
	resp := &MineruTaskStatusResponse{}
	resp.Data.TaskID = taskID
	resp.Data.State = state
	if state == MineruStateDone {
		resp.Data.FullZipURL = "http://example.com/result.zip"
	}
	return resp, nil
}

func (f *fakeConverter) FetchResult(context.Context, string) (*ConversionResult, error) {
	return f.conversion, f.fetchErr
}

type testEnv struct {
	svc       *ExtractionService
	store     *ContractStore
	graph     *recordingGraph
	artifacts *fakeObjects
	archive   *Archive
}

func newTestEnv(t *testing.T, conv Converter) *testEnv {
	t.Helper()
	env := &testEnv{
		store:     newTestStore(100),
		graph:     &recordingGraph{},
		artifacts: newFakeObjects(),
		archive:   newTestArchive(t),
	}
	env.svc = NewExtractionService(ExtractionDeps{
		Orchestrator: pipeline.New(pipeline.Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}),
		Store:        env.store,
		Converter:    conv,
		Graph:        env.graph,
		Artifacts:    env.artifacts,
		Archive:      env.archive,
		PollInterval: time.Millisecond,
	})
	env.svc.now = func() time.Time { return time.Date(2025, 4, 29, 10, 0, 0, 0, time.UTC) }
	return env
}

func (e *testEnv) newContract(id string) *model.Contract {
	c := &model.Contract{ID: id, Tenant: "tenant1", Filename: id + ".pdf", Status: model.StatusPending, CreatedAt: time.Now()}
	e.store.Save(c)
	return e.store.Get(id)
}

func structuredInput(c *model.Contract, text string) pipeline.Input {
	return pipeline.Input{
		DocumentID:     c.ID,
		SourceDocument: c.Filename,
		Structured:     pipeline.StaticDocument{Doc: &model.Document{Pages: []model.Page{{Text: text}}}},
	}
}

func TestExtractionServiceResolve(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.newContract("c-1")

	res, err := env.svc.Resolve(context.Background(), c, structuredInput(c, servicesContract))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if res.Provenance != model.ProvenanceJSON {
		t.Errorf("Expected json provenance, got %s", res.Provenance)
	}

	stored := env.store.Get("c-1")
	if stored.Status != model.StatusCompleted || stored.Result == nil {
		t.Errorf("Expected completed contract with result, got %s", stored.Status)
	}

	if env.graph.count() != 1 {
		t.Fatalf("Expected exactly one graph import, got %d", env.graph.count())
	}
	if env.graph.scripts[0].DocumentID != "c-1" {
		t.Errorf("Expected script for c-1, got %s", env.graph.scripts[0].DocumentID)
	}

	want := []string{
		"tenant1/c-1/artifacts/graph.cypher",
		"tenant1/c-1/artifacts/result.json",
		"tenant1/c-1/artifacts/summary.md",
	}
	if got := env.artifacts.names(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Expected artifacts %v, got %v", want, got)
	}
	if !strings.Contains(string(env.artifacts.objects["tenant1/c-1/artifacts/summary.md"]), "# Services Agreement") {
		t.Error("Expected rendered summary artifact")
	}

	archived, err := env.archive.Get(context.Background(), "c-1")
	if err != nil {
		t.Fatalf("Expected archived run: %v", err)
	}
	if archived.Metadata.Title != "SERVICES AGREEMENT" {
		t.Errorf("Expected archived title, got %q", archived.Metadata.Title)
	}
}

func TestExtractionServiceResolveUnrecoverable(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.newContract("c-2")

	_, err := env.svc.Resolve(context.Background(), c, structuredInput(c, "   "))
	if !errors.Is(err, pipeline.ErrUnrecoverable) {
		t.Fatalf("Expected ErrUnrecoverable, got %v", err)
	}

	stored := env.store.Get("c-2")
	if stored.Status != model.StatusFailed {
		t.Errorf("Expected failed status, got %s", stored.Status)
	}
	if env.graph.count() != 0 {
		t.Errorf("Expected no graph import, got %d", env.graph.count())
	}
	if len(env.artifacts.names()) != 0 {
		t.Errorf("Expected no artifacts, got %v", env.artifacts.names())
	}
}

func TestExtractionServiceGraphFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.graph.err = errors.New("neo4j unavailable")
	c := env.newContract("c-3")

	res, err := env.svc.Resolve(context.Background(), c, structuredInput(c, servicesContract))
	if err == nil {
		t.Fatal("Expected graph import error")
	}
	if res == nil {
		t.Fatal("Expected result despite graph failure")
	}

	stored := env.store.Get("c-3")
	if stored.Status != model.StatusFailed || !strings.Contains(stored.ErrorMsg, "graph import failed") {
		t.Errorf("Expected failed contract, got %s %q", stored.Status, stored.ErrorMsg)
	}
	if stored.Result == nil {
		t.Error("Expected result to be kept")
	}
}

func TestExtractionServiceArtifactFailureIsNotFatal(t *testing.T) {
	env := newTestEnv(t, nil)
	env.artifacts.failPut = true
	c := env.newContract("c-4")

	if _, err := env.svc.Resolve(context.Background(), c, structuredInput(c, servicesContract)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if env.store.Get("c-4").Status != model.StatusCompleted {
		t.Error("Expected completed contract")
	}
	if env.graph.count() != 1 {
		t.Errorf("Expected one graph import, got %d", env.graph.count())
	}
}

func TestExtractionServiceCompleteConversionFromMarkdown(t *testing.T) {
	conv := &fakeConverter{conversion: &ConversionResult{Markdown: servicesContract}}
	env := newTestEnv(t, conv)
	env.newContract("c-5")

	done := env.svc.CompleteConversion(context.Background(), "c-5", MineruTaskStatus{
		TaskID: "task-1", State: MineruStateDone, FullZipURL: "http://example.com/r.zip",
	})
	if !done {
		t.Fatal("Expected final state")
	}

	stored := env.store.Get("c-5")
	if stored.Status != model.StatusCompleted {
		t.Fatalf("Expected completed, got %s: %s", stored.Status, stored.ErrorMsg)
	}
	if stored.Provenance != model.ProvenanceText {
		t.Errorf("Expected text provenance, got %s", stored.Provenance)
	}
	if _, ok := env.artifacts.objects["tenant1/c-5/artifacts/fallback.md"]; !ok {
		t.Error("Expected fallback text to be stored")
	}

	// a repeated notification for a finished contract is ignored
	env.svc.CompleteConversion(context.Background(), "c-5", MineruTaskStatus{State: MineruStateDone, FullZipURL: "http://example.com/r.zip"})
	if env.graph.count() != 1 {
		t.Errorf("Expected exactly one graph import, got %d", env.graph.count())
	}
}

func TestExtractionServiceCompleteConversionFailures(t *testing.T) {
	tests := []struct {
		name   string
		conv   *fakeConverter
		status MineruTaskStatus
		errMsg string
	}{
		{
			name:   "task failed",
			conv:   &fakeConverter{},
			status: MineruTaskStatus{State: MineruStateFailed, ErrorMsg: "unsupported file"},
			errMsg: "unsupported file",
		},
		{
			name:   "no archive url",
			conv:   &fakeConverter{},
			status: MineruTaskStatus{State: MineruStateDone},
			errMsg: "without a result archive",
		},
		{
			name:   "fetch failed",
			conv:   &fakeConverter{fetchErr: errors.New("404")},
			status: MineruTaskStatus{State: MineruStateDone, FullZipURL: "http://example.com/r.zip"},
			errMsg: "failed to fetch conversion result",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.conv)
			env.newContract("c")

			if !env.svc.CompleteConversion(context.Background(), "c", tt.status) {
				t.Fatal("Expected final state")
			}
			stored := env.store.Get("c")
			if stored.Status != model.StatusFailed || !strings.Contains(stored.ErrorMsg, tt.errMsg) {
				t.Errorf("Expected failure %q, got %s %q", tt.errMsg, stored.Status, stored.ErrorMsg)
			}
		})
	}

	env := newTestEnv(t, &fakeConverter{})
	if env.svc.CompleteConversion(context.Background(), "c", MineruTaskStatus{State: MineruStateRunning}) {
		t.Error("Expected running to be non-final")
	}
}

func TestExtractionServiceConvert(t *testing.T) {
	conv := &fakeConverter{
		states: []string{MineruStatePending, MineruStateRunning, MineruStateDone},
		conversion: &ConversionResult{
			Document: &model.Document{Pages: []model.Page{{Text: servicesContract}}},
			Markdown: servicesContract,
		},
	}
	env := newTestEnv(t, conv)
	c := env.newContract("c-6")

	env.svc.Convert(context.Background(), c)

	stored := env.store.Get("c-6")
	if stored.Status != model.StatusCompleted {
		t.Fatalf("Expected completed, got %s: %s", stored.Status, stored.ErrorMsg)
	}
	if stored.MineruTaskID != "task-1" {
		t.Errorf("Expected task id, got %q", stored.MineruTaskID)
	}
	if stored.Provenance != model.ProvenanceJSON {
		t.Errorf("Expected json provenance, got %s", stored.Provenance)
	}
	if conv.polls != 3 {
		t.Errorf("Expected 3 polls, got %d", conv.polls)
	}
}

func TestExtractionServiceConvertCancelled(t *testing.T) {
	env := newTestEnv(t, &fakeConverter{states: []string{MineruStateRunning}})
	c := env.newContract("c-7")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	env.svc.Convert(ctx, c)

	if got := env.store.Get("c-7").Status; got != model.StatusFailed {
		t.Errorf("Expected failed status, got %s", got)
	}
}

func TestExtractionServiceConvertWithoutConverter(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.newContract("c-8")

	env.svc.Convert(context.Background(), c)

	if got := env.store.Get("c-8").Status; got != model.StatusFailed {
		t.Errorf("Expected failed status, got %s", got)
	}
}

func TestExtractionServiceResult(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.newContract("c-9")
	ctx := context.Background()

	if _, err := env.svc.Result(ctx, c); !errors.Is(err, ErrNoResult) {
		t.Errorf("Expected ErrNoResult, got %v", err)
	}

	if _, err := env.svc.Resolve(ctx, c, structuredInput(c, servicesContract)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// a contract record without its result falls back to the archive
	stored := env.store.Get("c-9")
	stored.Result = nil
	res, err := env.svc.Result(ctx, stored)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if res.Metadata.Title != "SERVICES AGREEMENT" {
		t.Errorf("Expected archived result, got %q", res.Metadata.Title)
	}
}

// gatedConverter holds FetchResult until release is closed.
type gatedConverter struct {
	fakeConverter
	release chan struct{}
	mu      sync.Mutex
	fetches int
}

func (g *gatedConverter) FetchResult(ctx context.Context, url string) (*ConversionResult, error) {
	g.mu.Lock()
	g.fetches++
	g.mu.Unlock()
	<-g.release
	return g.fakeConverter.FetchResult(ctx, url)
}

func TestExtractionServiceConcurrentDoneHandsOffOnce(t *testing.T) {
	conv := &gatedConverter{
		fakeConverter: fakeConverter{conversion: &ConversionResult{Markdown: servicesContract}},
		release:       make(chan struct{}),
	}
	env := newTestEnv(t, conv)
	env.newContract("c-9")
	env.store.UpdateStatus("c-9", model.StatusConverting, "")

	status := MineruTaskStatus{TaskID: "task-1", State: MineruStateDone, FullZipURL: "http://example.com/r.zip"}
	returned := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		go func() {
			env.svc.CompleteConversion(context.Background(), "c-9", status)
			returned <- struct{}{}
		}()
	}

	// the losing report returns while the winner is still fetching
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		close(conv.release)
		t.Fatal("Expected the duplicate report to return without fetching")
	}
	close(conv.release)
	select {
	case <-returned:
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for extraction")
	}

	if conv.fetches != 1 {
		t.Errorf("Expected one result fetch, got %d", conv.fetches)
	}
	if env.graph.count() != 1 {
		t.Errorf("Expected exactly one graph import, got %d", env.graph.count())
	}
	if got := env.store.Get("c-9").Status; got != model.StatusCompleted {
		t.Errorf("Expected completed, got %s", got)
	}
}
