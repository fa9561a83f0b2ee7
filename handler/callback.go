package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AnTengye/contractgraph/pkg/logger"
	"github.com/AnTengye/contractgraph/service"
)

// ChecksumVerifier checks the signature MinerU attaches to callbacks.
type ChecksumVerifier interface {
	VerifyCallback(checksum, content, uid string) bool
}

type CallbackHandler struct {
	extraction *service.ExtractionService
	store      *service.ContractStore
	verifier   ChecksumVerifier
	uid        string
}

// NewCallbackHandler builds the MinerU callback endpoint. With a nil verifier
// checksums are not checked.
func NewCallbackHandler(extraction *service.ExtractionService, verifier ChecksumVerifier, uid string) *CallbackHandler {
	return &CallbackHandler{
		extraction: extraction,
		store:      extraction.Store(),
		verifier:   verifier,
		uid:        uid,
	}
}

type CallbackRequest struct {
	Checksum string `json:"checksum"`
	Content  string `json:"content"`
}

// HandleCallback receives a task status pushed by MinerU
func (h *CallbackHandler) HandleCallback(c *gin.Context) {
	var req CallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if h.verifier != nil && !h.verifier.VerifyCallback(req.Checksum, req.Content, h.uid) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid checksum"})
		return
	}

	var status service.MineruTaskStatus
	if err := json.Unmarshal([]byte(req.Content), &status); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid content format"})
		return
	}

	// DataID is our contract id
	contract := h.store.Get(status.DataID)
	if contract == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Contract not found"})
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	logger.Info(ctx, "mineru callback", "contract_id", contract.ID, "task_id", status.TaskID, "state", status.State)
	go h.extraction.CompleteConversion(ctx, contract.ID, status)

	c.JSON(http.StatusOK, gin.H{"message": "Callback received"})
}
