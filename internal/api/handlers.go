// Package api implements the REST API endpoints of the code generation service.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Habib-0007/CSC-320-Mini-Project/server/internal/analytics"
	"github.com/Habib-0007/CSC-320-Mini-Project/server/internal/document"
	"github.com/Habib-0007/CSC-320-Mini-Project/server/internal/generation"
	"github.com/Habib-0007/CSC-320-Mini-Project/server/internal/middleware"
	"github.com/Habib-0007/CSC-320-Mini-Project/server/pkg/models"
)

// multipartOverhead is the slack allowed on top of the file size limit for
// the other form fields and part headers.
const multipartOverhead = 1 << 20

// Handlers provides REST API endpoint handlers.
type Handlers struct {
	generator     *generation.Service
	reports       *analytics.Engine
	maxUploadSize int64
}

// NewHandlers creates a new Handlers instance. reports may be nil when no
// usage store is configured; the usage endpoints then answer 503.
func NewHandlers(generator *generation.Service, reports *analytics.Engine, maxUploadSize int64) *Handlers {
	return &Handlers{generator: generator, reports: reports, maxUploadSize: maxUploadSize}
}

// HealthCheck returns the service health status.
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "codegen",
		"version": "0.1.0",
	})
}

// Generate generates code with the provider named in the request body.
func (h *Handlers) Generate(c *gin.Context) {
	h.generate(c, "")
}

// GenerateWith returns a handler that always uses provider p, whatever the
// request body says.
func (h *Handlers) GenerateWith(p models.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		h.generate(c, p)
	}
}

func (h *Handlers) generate(c *gin.Context, forced models.Provider) {
	var req models.GenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if forced != "" {
		req.Provider = forced
	}

	principal, _ := middleware.PrincipalFrom(c)
	res, err := h.generator.Generate(c.Request.Context(), generation.Call{
		Principal: principal,
		ClientIP:  c.ClientIP(),
		Request:   req,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Code generated successfully",
		"result":  res,
	})
}

// UploadImage generates code from the text recognized in an uploaded image.
// Form fields: image (file), prompt, provider, language, framework,
// parameters (JSON).
func (h *Handlers) UploadImage(c *gin.Context) {
	h.generateFromUpload(c, "image", "Image processed and code generated successfully")
}

// ProcessDocument generates code from the text of an uploaded PDF or Word
// document. Form fields as UploadImage, with the file under document.
func (h *Handlers) ProcessDocument(c *gin.Context) {
	h.generateFromUpload(c, "document", "Document processed and code generated successfully")
}

func (h *Handlers) generateFromUpload(c *gin.Context, field, successMessage string) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize+multipartOverhead)

	fh, err := c.FormFile(field)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.uploadTooLarge(c)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": fmt.Sprintf("No %s file provided.", field)})
		return
	}
	if fh.Size > h.maxUploadSize {
		h.uploadTooLarge(c)
		return
	}

	mimeType := fh.Header.Get("Content-Type")
	if !document.Supported(mimeType) {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported_file_type", "message": "Unsupported file type."})
		return
	}

	f, err := fh.Open()
	if err != nil {
		writeError(c, fmt.Errorf("opening upload: %w", err))
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		writeError(c, fmt.Errorf("reading upload: %w", err))
		return
	}

	req := models.GenerationRequest{
		Prompt:    c.PostForm("prompt"),
		Provider:  models.Provider(c.DefaultPostForm("provider", string(models.ProviderGemini))),
		Language:  c.PostForm("language"),
		Framework: c.PostForm("framework"),
	}
	if raw := c.PostForm("parameters"); raw != "" {
		var params models.Parameters
		if err := json.Unmarshal([]byte(raw), &params); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "parameters must be a JSON object"})
			return
		}
		req.Parameters = &params
	}

	principal, _ := middleware.PrincipalFrom(c)
	res, err := h.generator.GenerateFromUpload(c.Request.Context(), generation.Call{
		Principal: principal,
		ClientIP:  c.ClientIP(),
		Request:   req,
	}, document.Upload{Filename: fh.Filename, MIMEType: mimeType, Data: data})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       successMessage,
		"extractedText": res.ExtractedText,
		"result":        res.Result,
	})
}

func (h *Handlers) uploadTooLarge(c *gin.Context) {
	c.JSON(http.StatusRequestEntityTooLarge, gin.H{
		"error":   "file_too_large",
		"message": fmt.Sprintf("File exceeds the %d byte limit.", h.maxUploadSize),
	})
}

// requireReports returns true if the usage store is available, or sends a 503 and returns false.
func (h *Handlers) requireReports(c *gin.Context) bool {
	if h.reports == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "usage_store_unavailable", "message": "Usage statistics are unavailable."})
		return false
	}
	return true
}

// GetUserUsage returns the caller's usage report.
func (h *Handlers) GetUserUsage(c *gin.Context) {
	principal, _ := middleware.PrincipalFrom(c)
	h.userUsage(c, principal.ID)
}

// GetUserUsageByID returns the usage report of the user named in the path.
func (h *Handlers) GetUserUsageByID(c *gin.Context) {
	h.userUsage(c, c.Param("id"))
}

func (h *Handlers) userUsage(c *gin.Context, userID string) {
	if !h.requireReports(c) {
		return
	}
	report, err := h.reports.UserUsage(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetUsageHistory returns the caller's most recent usage records.
// Query params: limit (1-1000, default 50)
func (h *Handlers) GetUsageHistory(c *gin.Context) {
	if !h.requireReports(c) {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 1000 {
		limit = 50
	}

	principal, _ := middleware.PrincipalFrom(c)
	records, err := h.reports.History(c.Request.Context(), principal.ID, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count": len(records),
		"data":  records,
	})
}

// GetLLMStatistics returns the service-wide provider report.
func (h *Handlers) GetLLMStatistics(c *gin.Context) {
	if !h.requireReports(c) {
		return
	}
	report, err := h.reports.LLMStatistics(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
