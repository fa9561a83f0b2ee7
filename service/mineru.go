package service

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/AnTengye/contractgraph/config"
	"github.com/AnTengye/contractgraph/model"
	"github.com/AnTengye/contractgraph/pkg/logger"
)

// ErrEmptyConversion reports a result archive with neither page blocks nor
// Markdown.
var ErrEmptyConversion = errors.New("conversion result has no content")

// MinerU task states
const (
	MineruStatePending    = "pending"
	MineruStateRunning    = "running"
	MineruStateConverting = "converting"
	MineruStateDone       = "done"
	MineruStateFailed     = "failed"
)

type MineruService struct {
	config     *config.MineruConfig
	httpClient *http.Client
}

// MineruTaskRequest represents the request to create an extraction task
type MineruTaskRequest struct {
	URL          string `json:"url"`
	ModelVersion string `json:"model_version"`
	Callback     string `json:"callback,omitempty"`
	Seed         string `json:"seed,omitempty"`
	DataID       string `json:"data_id,omitempty"`
}

// MineruTaskResponse represents the response from task creation
type MineruTaskResponse struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
	Data    struct {
		TaskID string `json:"task_id"`
	} `json:"data"`
}

// MineruTaskStatus is the data part of a status response and of a callback.
type MineruTaskStatus struct {
	TaskID          string `json:"task_id"`
	DataID          string `json:"data_id"`
	State           string `json:"state"`
	FullZipURL      string `json:"full_zip_url,omitempty"`
	ErrorMsg        string `json:"err_msg,omitempty"`
	ExtractProgress struct {
		ExtractedPages int    `json:"extracted_pages"`
		TotalPages     int    `json:"total_pages"`
		StartTime      string `json:"start_time"`
	} `json:"extract_progress,omitempty"`
}

// MineruTaskStatusResponse represents the task status query response
type MineruTaskStatusResponse struct {
	Code    int              `json:"code"`
	Message string           `json:"msg"`
	TraceID string           `json:"trace_id"`
	Data    MineruTaskStatus `json:"data"`
}

// ContentBlock is one layout block of content_list.json.
type ContentBlock struct {
	Type         string   `json:"type"`
	Text         string   `json:"text"`
	TextLevel    int      `json:"text_level,omitempty"`
	PageIdx      int      `json:"page_idx"`
	TableCaption []string `json:"table_caption,omitempty"`
	TableFooter  []string `json:"table_footnote,omitempty"`
	ImageCaption []string `json:"img_caption,omitempty"`
}

// ConversionResult is a converted source document: its pages and the
// Markdown rendering that serves as fallback text.
type ConversionResult struct {
	Document *model.Document
	Markdown string
}

func NewMineruService(cfg *config.MineruConfig) *MineruService {
	return &MineruService{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// CreateTask submits sourceURL for conversion. dataID comes back in status
// responses and callbacks.
func (s *MineruService) CreateTask(ctx context.Context, sourceURL, dataID string) (*MineruTaskResponse, error) {
	reqBody := MineruTaskRequest{
		URL:          sourceURL,
		ModelVersion: s.config.ModelVersion,
		DataID:       dataID,
	}

	if s.config.CallbackURL != "" {
		reqBody.Callback = s.config.CallbackURL
		reqBody.Seed = s.config.Seed
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIURL+"/extract/task", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var result MineruTaskResponse
	if err := s.do(req, &result); err != nil {
		return nil, err
	}
	if result.Code != 0 {
		return nil, fmt.Errorf("MinerU API error: %s", result.Message)
	}

	logger.Info(ctx, "mineru.task.created", "task_id", result.Data.TaskID, "data_id", dataID)
	return &result, nil
}

// GetTaskStatus queries the status of a task
func (s *MineruService) GetTaskStatus(ctx context.Context, taskID string) (*MineruTaskStatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/extract/task/%s", s.config.APIURL, taskID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var result MineruTaskStatusResponse
	if err := s.do(req, &result); err != nil {
		return nil, err
	}
	if result.Code != 0 {
		return nil, fmt.Errorf("MinerU API error: %s", result.Message)
	}

	logger.Debug(ctx, "mineru.task.status",
		"task_id", taskID,
		"state", result.Data.State,
		"extracted_pages", result.Data.ExtractProgress.ExtractedPages,
		"total_pages", result.Data.ExtractProgress.TotalPages,
	)
	return &result, nil
}

func (s *MineruService) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+s.config.APIToken)
	req.Header.Set("Accept", "*/*")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w, body: %s", err, truncate(string(body), 200))
	}
	return nil
}

// VerifyCallback verifies the callback checksum
func (s *MineruService) VerifyCallback(checksum, content string, uid string) bool {
	// Checksum = SHA256(uid + seed + content)
	data := uid + s.config.Seed + content
	hash := sha256.Sum256([]byte(data))
	expected := hex.EncodeToString(hash[:])
	return checksum == expected
}

// FetchResult downloads the result archive of a finished task.
func (s *MineruService) FetchResult(ctx context.Context, zipURL string) (*ConversionResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, zipURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download ZIP: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download ZIP: status %d", resp.StatusCode)
	}

	zipData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read ZIP: %w", err)
	}
	logger.Info(ctx, "mineru.result.downloaded", "bytes", len(zipData))

	return ReadResultZip(zipData)
}

// ReadResultZip reads content_list.json into pages and the first Markdown
// file into fallback text. Either may be missing, not both.
func ReadResultZip(data []byte) (*ConversionResult, error) {
	zipReader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open ZIP: %w", err)
	}

	result := &ConversionResult{}
	for _, file := range zipReader.File {
		switch {
		case strings.HasSuffix(file.Name, "content_list.json") && result.Document == nil:
			content, err := readZipFile(file)
			if err != nil {
				return nil, err
			}
			doc, err := ParseContentList(content)
			if err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", file.Name, err)
			}
			result.Document = doc
		case strings.HasSuffix(file.Name, ".md") && result.Markdown == "":
			content, err := readZipFile(file)
			if err != nil {
				return nil, err
			}
			result.Markdown = string(content)
		}
	}

	if result.Document == nil && strings.TrimSpace(result.Markdown) == "" {
		return nil, ErrEmptyConversion
	}
	return result, nil
}

func readZipFile(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", file.Name, err)
	}
	defer rc.Close()
	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", file.Name, err)
	}
	return content, nil
}

// ParseContentList groups the text of content_list.json blocks by page. Pages
// with no text blocks are kept empty so page numbering stays intact.
func ParseContentList(data []byte) (*model.Document, error) {
	var blocks []ContentBlock
	if err := json.Unmarshal(data, &blocks); err != nil {
		return nil, err
	}

	var pages [][]string
	for _, b := range blocks {
		if b.PageIdx < 0 {
			continue
		}
		for len(pages) <= b.PageIdx {
			pages = append(pages, nil)
		}
		for _, text := range blockText(b) {
			if strings.TrimSpace(text) != "" {
				pages[b.PageIdx] = append(pages[b.PageIdx], text)
			}
		}
	}

	doc := &model.Document{Pages: make([]model.Page, len(pages))}
	for i, lines := range pages {
		doc.Pages[i] = model.Page{Text: strings.Join(lines, "\n")}
	}
	return doc, nil
}

func blockText(b ContentBlock) []string {
	switch b.Type {
	case "text", "equation", "":
		return []string{b.Text}
	case "table":
		return append(append([]string{}, b.TableCaption...), b.TableFooter...)
	case "image":
		return b.ImageCaption
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
