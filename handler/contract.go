package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AnTengye/contractgraph/config"
	"github.com/AnTengye/contractgraph/graph"
	"github.com/AnTengye/contractgraph/middleware"
	"github.com/AnTengye/contractgraph/model"
	"github.com/AnTengye/contractgraph/pipeline"
	"github.com/AnTengye/contractgraph/pkg/logger"
	"github.com/AnTengye/contractgraph/report"
	"github.com/AnTengye/contractgraph/service"
)

const (
	contentTypePDF  = "application/pdf"
	contentTypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// ObjectStore holds uploaded source documents.
type ObjectStore interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
	GetPresignedURL(ctx context.Context, objectName string) (string, error)
	DeletePrefix(ctx context.Context, prefix string) error
}

type ContractHandler struct {
	extraction     *service.ExtractionService
	objects        ObjectStore
	store          *service.ContractStore
	maxUploadBytes int64
}

// NewContractHandler builds the contract endpoints. objects may be nil, in
// which case uploads are rejected and only direct extraction is available.
func NewContractHandler(extraction *service.ExtractionService, objects ObjectStore, cfg *config.ServerConfig) *ContractHandler {
	return &ContractHandler{
		extraction:     extraction,
		objects:        objects,
		store:          extraction.Store(),
		maxUploadBytes: int64(cfg.MaxUploadBytes),
	}
}

// Upload stores a PDF or DOCX source and starts its conversion.
func (h *ContractHandler) Upload(c *gin.Context) {
	if h.objects == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Uploads are not configured"})
		return
	}
	tenant := middleware.GetTenant(c)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}
	defer file.Close()

	if h.maxUploadBytes > 0 && header.Size > h.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File is too large"})
		return
	}

	contentType, ok := sourceContentType(file, header)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only PDF and DOCX files are allowed"})
		return
	}

	contractID := uuid.NewString()
	objectName := service.ContractPrefix(tenant, contractID) + filepath.Base(header.Filename)
	ctx := c.Request.Context()

	if err := h.objects.UploadFile(ctx, objectName, file, header.Size, contentType); err != nil {
		logger.Error(ctx, "upload failed", "object", objectName, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upload file: " + err.Error()})
		return
	}

	sourceURL, err := h.objects.GetPresignedURL(ctx, objectName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate URL: " + err.Error()})
		return
	}

	now := time.Now()
	contract := &model.Contract{
		ID:         contractID,
		Filename:   header.Filename,
		Tenant:     tenant,
		SourceURL:  sourceURL,
		ObjectName: objectName,
		Status:     model.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	h.store.Save(contract)

	go h.extraction.Convert(context.WithoutCancel(ctx), contract)

	c.JSON(http.StatusOK, gin.H{
		"id":         contractID,
		"filename":   header.Filename,
		"source_url": sourceURL,
		"status":     model.StatusPending,
	})
}

// sourceContentType checks the extension and, for PDFs with a suspicious
// declared type, the leading bytes.
func sourceContentType(file multipart.File, header *multipart.FileHeader) (string, bool) {
	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".docx":
		return contentTypeDOCX, true
	case ".pdf":
	default:
		return "", false
	}

	declared := header.Header.Get("Content-Type")
	if declared == "" || declared == "application/octet-stream" || strings.Contains(declared, "pdf") {
		return contentTypePDF, true
	}

	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", false
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", false
	}
	detected := http.DetectContentType(buffer[:n])
	if !strings.Contains(detected, "pdf") && detected != "application/octet-stream" {
		return "", false
	}
	return contentTypePDF, true
}

// Extract resolves an already converted document synchronously. The form
// carries a page JSON "document", a plain-text "fallback", or both.
func (h *ContractHandler) Extract(c *gin.Context) {
	tenant := middleware.GetTenant(c)
	ctx := c.Request.Context()

	var in pipeline.Input
	filename := c.PostForm("filename")

	if docFile, docHeader, err := c.Request.FormFile("document"); err == nil {
		doc, err := pipeline.LoadDocument(docFile)
		docFile.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid document: " + err.Error()})
			return
		}
		in.Structured = pipeline.StaticDocument{Doc: doc}
		if filename == "" {
			filename = docHeader.Filename
		}
	}

	fallback, fallbackName, err := formText(c, "fallback")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read fallback text"})
		return
	}
	if filename == "" {
		filename = fallbackName
	}

	if in.Structured == nil && fallback == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A document or fallback text is required"})
		return
	}

	now := time.Now()
	contract := &model.Contract{
		ID:        uuid.NewString(),
		Filename:  filename,
		Tenant:    tenant,
		Status:    model.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	h.store.Save(contract)

	in.DocumentID = contract.ID
	in.SourceDocument = filename
	if fallback != "" {
		in.Fallback = h.extraction.FallbackSource(ctx, contract, fallback)
	}

	res, err := h.extraction.Resolve(ctx, contract, in)
	switch {
	case errors.Is(err, pipeline.ErrUnrecoverable):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"id": contract.ID, "error": err.Error()})
	case err != nil && res != nil:
		c.JSON(http.StatusBadGateway, gin.H{"id": contract.ID, "error": err.Error(), "result": res})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"id": contract.ID, "error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{
			"id":         contract.ID,
			"status":     model.StatusCompleted,
			"provenance": res.Provenance,
			"result":     res,
		})
	}
}

// formText reads a form field given either as an uploaded file or as a
// plain value.
func formText(c *gin.Context, field string) (string, string, error) {
	file, header, err := c.Request.FormFile(field)
	if err != nil {
		return c.PostForm(field), "", nil
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return "", "", err
	}
	return string(data), header.Filename, nil
}

// List returns all contracts for the current tenant
func (h *ContractHandler) List(c *gin.Context) {
	contracts := h.store.GetByTenant(middleware.GetTenant(c))

	// Return without results for list view
	result := make([]gin.H, len(contracts))
	for i, contract := range contracts {
		result[i] = gin.H{
			"id":         contract.ID,
			"filename":   contract.Filename,
			"status":     contract.Status,
			"provenance": contract.Provenance,
			"created_at": contract.CreatedAt.Format(time.RFC3339),
			"updated_at": contract.UpdatedAt.Format(time.RFC3339),
		}
	}

	c.JSON(http.StatusOK, gin.H{"contracts": result})
}

// Get returns a single contract with its result
func (h *ContractHandler) Get(c *gin.Context) {
	contract := h.tenantContract(c)
	if contract == nil {
		return
	}
	c.JSON(http.StatusOK, contract)
}

// GetStatus returns the processing status of a contract
func (h *ContractHandler) GetStatus(c *gin.Context) {
	contract := h.tenantContract(c)
	if contract == nil {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":         contract.ID,
		"status":     contract.Status,
		"provenance": contract.Provenance,
		"error_msg":  contract.ErrorMsg,
	})
}

// Graph returns the Cypher import script of a resolved contract.
func (h *ContractHandler) Graph(c *gin.Context) {
	res := h.result(c)
	if res == nil {
		return
	}
	var buf bytes.Buffer
	if _, err := graph.Build(res, res.ResolvedAt).WriteTo(&buf); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render graph: " + err.Error()})
		return
	}
	c.Data(http.StatusOK, service.ContentTypeCypher, buf.Bytes())
}

// Summary returns the Markdown summary of a resolved contract.
func (h *ContractHandler) Summary(c *gin.Context) {
	res := h.result(c)
	if res == nil {
		return
	}
	var buf bytes.Buffer
	if err := report.RenderMarkdown(&buf, res); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render summary: " + err.Error()})
		return
	}
	c.Data(http.StatusOK, service.ContentTypeMarkdown, buf.Bytes())
}

// Export returns a resolved contract as a spreadsheet.
func (h *ContractHandler) Export(c *gin.Context) {
	res := h.result(c)
	if res == nil {
		return
	}
	var buf bytes.Buffer
	if err := report.WriteXLSX(&buf, res); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export: " + err.Error()})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+exportName(res)+`"`)
	c.Data(http.StatusOK, service.ContentTypeXLSX, buf.Bytes())
}

func exportName(res *model.ExtractionResult) string {
	base := strings.TrimSuffix(filepath.Base(res.SourceDocument), filepath.Ext(res.SourceDocument))
	if base == "" || base == "." {
		base = res.DocumentID
	}
	return strings.NewReplacer(`"`, "", "\\", "", "/", "").Replace(base) + ".xlsx"
}

// Delete deletes a contract and everything stored for it
func (h *ContractHandler) Delete(c *gin.Context) {
	contract := h.tenantContract(c)
	if contract == nil {
		return
	}

	h.store.Delete(contract.ID)
	if h.objects != nil {
		ctx := c.Request.Context()
		if err := h.objects.DeletePrefix(ctx, service.ContractPrefix(contract.Tenant, contract.ID)); err != nil {
			logger.Warn(ctx, "delete objects failed", "contract_id", contract.ID, "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "Contract deleted"})
}

// tenantContract looks up the :id contract of the caller's tenant and writes
// a 404 when there is none.
func (h *ContractHandler) tenantContract(c *gin.Context) *model.Contract {
	contract := h.store.Get(c.Param("id"))
	if contract == nil || contract.Tenant != middleware.GetTenant(c) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Contract not found"})
		return nil
	}
	return contract
}

func (h *ContractHandler) result(c *gin.Context) *model.ExtractionResult {
	contract := h.tenantContract(c)
	if contract == nil {
		return nil
	}
	res, err := h.extraction.Result(c.Request.Context(), contract)
	switch {
	case errors.Is(err, service.ErrNoResult), errors.Is(err, service.ErrNotArchived):
		c.JSON(http.StatusConflict, gin.H{"error": "Contract has no result yet", "status": contract.Status})
		return nil
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load result: " + err.Error()})
		return nil
	}
	return res
}
