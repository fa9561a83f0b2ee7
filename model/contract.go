package model

import (
	"time"
)

// Contract is the job record for an uploaded source document moving through
// conversion and extraction.
type Contract struct {
	ID           string            `json:"id"`
	Filename     string            `json:"filename"`
	Tenant       string            `json:"tenant"`
	SourceURL    string            `json:"source_url"`
	ObjectName   string            `json:"object_name,omitempty"`
	Status       string            `json:"status"` // pending, converting, extracting, completed, failed
	MineruTaskID string            `json:"mineru_task_id,omitempty"`
	Provenance   Provenance        `json:"provenance,omitempty"`
	Result       *ExtractionResult `json:"result,omitempty"`
	ErrorMsg     string            `json:"error_msg,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Contract status values
const (
	StatusPending    = "pending"
	StatusConverting = "converting"
	StatusExtracting = "extracting"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Terminal reports whether the contract will not change status again.
func (c *Contract) Terminal() bool {
	return c.Status == StatusCompleted || c.Status == StatusFailed
}
