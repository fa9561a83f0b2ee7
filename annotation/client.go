package annotation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/AnTengye/contractgraph/config"
)

// Client calls the annotation service over HTTP.
//
// Every endpoint takes {"text": ...} and answers with a
// {"code": 0, "msg": "", "data": ...} envelope.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type textRequest struct {
	Text string `json:"text"`
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

type entitiesData struct {
	Entities []Entity `json:"entities"`
}

type sentencesData struct {
	Sentences []Sentence `json:"sentences"`
}

func NewClient(cfg *config.AnnotationConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ExtractEntities tags named entities in text.
func (c *Client) ExtractEntities(ctx context.Context, text string) ([]Entity, error) {
	var data entitiesData
	if err := c.post(ctx, "/entities", text, &data); err != nil {
		return nil, err
	}
	return data.Entities, nil
}

// SegmentSentences splits text into sentences.
func (c *Client) SegmentSentences(ctx context.Context, text string) ([]Sentence, error) {
	var data sentencesData
	if err := c.post(ctx, "/sentences", text, &data); err != nil {
		return nil, err
	}
	return data.Sentences, nil
}

// Classify labels text with the service's contract classifier.
func (c *Client) Classify(ctx context.Context, text string) (Classification, error) {
	var data Classification
	if err := c.post(ctx, "/classify", text, &data); err != nil {
		return Classification{}, err
	}
	return data, nil
}

func (c *Client) post(ctx context.Context, path, text string, out any) error {
	jsonData, err := json.Marshal(textRequest{Text: text})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("annotation service %s returned %d: %s", path, resp.StatusCode, truncateBody(body))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if env.Code != 0 {
		return fmt.Errorf("annotation service error: %s", env.Message)
	}
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to parse %s data: %w", path, err)
	}
	return nil
}

func truncateBody(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
