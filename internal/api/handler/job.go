package handler

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/timmy/slidewise/internal/api/middleware"
	"github.com/timmy/slidewise/internal/domain"
	"github.com/timmy/slidewise/internal/export"
	"github.com/timmy/slidewise/internal/logger"
	"github.com/timmy/slidewise/internal/queue"
)

// statusTimeFormat matches the timestamp embedded in upload file names.
const statusTimeFormat = "20060102150405"

// statusNotFound is reported for unknown job ids.
const statusNotFound = "not found"

// JobHandler handles document upload and job status endpoints.
type JobHandler struct {
	store         queue.Store
	supports      func(ext string) bool
	maxUploadSize int64
}

// JobHandlerConfig holds configuration for the job handler.
type JobHandlerConfig struct {
	// Supports reports whether a file extension can be explained; nil accepts everything.
	Supports      func(ext string) bool
	MaxUploadSize int64
}

// NewJobHandler creates a new job handler.
// Parameters:
//   - store: queue store receiving submissions and answering lookups.
//   - cfg: upload limits.
// Returns:
//   - *JobHandler: initialized handler.
func NewJobHandler(store queue.Store, cfg *JobHandlerConfig) *JobHandler {
	h := &JobHandler{store: store}
	if cfg != nil {
		h.supports = cfg.Supports
		h.maxUploadSize = cfg.MaxUploadSize
	}
	return h
}

// StatusResponse is the body of GET /status/:uid.
type StatusResponse struct {
	Status      domain.JobStatus `json:"status"`
	Filename    string           `json:"filename"`
	Timestamp   string           `json:"timestamp"`
	Explanation []string         `json:"explanation"`
	Error       string           `json:"error,omitempty"`
}

// Upload handles POST /upload with a multipart "file" field.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes {"uid": ...} on success).
func (h *JobHandler) Upload(c *gin.Context) {
	log := middleware.GetLogger(c)

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided."})
		return
	}

	name := filepath.Base(file.Filename)
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if h.supports != nil && !h.supports(ext) {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "Unsupported document type: " + ext})
		return
	}
	if h.maxUploadSize > 0 && file.Size > h.maxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File is too large."})
		return
	}

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read upload: " + err.Error()})
		return
	}
	defer f.Close()

	job, err := h.store.Submit(c.Request.Context(), name, f, file.Size)
	if err != nil {
		log.WithError(err).Error("Failed to submit document")
		internalError(c, "Failed to store upload.")
		return
	}

	logger.With(logger.Fields{logger.FieldJobID: job.ID}).
		WithSize(file.Size).
		Info(c.Request.Context(), "Document submitted: %s", name)
	c.JSON(http.StatusOK, gin.H{"uid": job.ID})
}

// Status handles GET /status/:uid.
func (h *JobHandler) Status(c *gin.Context) {
	view, err := h.store.Lookup(c.Request.Context(), c.Param("uid"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"status": statusNotFound})
			return
		}
		middleware.GetLogger(c).WithError(err).Error("Failed to look up job")
		internalError(c, "Failed to look up job.")
		return
	}

	resp := StatusResponse{
		Status:      view.Status,
		Filename:    view.Filename,
		Explanation: view.Explanations,
		Error:       view.ErrorMessage,
	}
	if !view.SubmittedAt.IsZero() {
		resp.Timestamp = view.SubmittedAt.UTC().Format(statusTimeFormat)
	}
	if view.Status != domain.JobStatusDone {
		resp.Explanation = nil
	}
	c.JSON(http.StatusOK, resp)
}

// Export handles GET /status/:uid/export?format=json|xlsx.
func (h *JobHandler) Export(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	artifact, err := h.store.Artifact(c.Request.Context(), c.Param("uid"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"status": statusNotFound})
			return
		}
		middleware.GetLogger(c).WithError(err).Error("Failed to load artifact")
		internalError(c, "Failed to load artifact.")
		return
	}

	body, err := export.Render(format, artifact)
	if err != nil {
		middleware.GetLogger(c).WithError(err).Error("Failed to render artifact")
		internalError(c, "Failed to render artifact.")
		return
	}

	filename := artifact.LectureName + "." + string(format)
	c.Header("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(filename, `"`, "")+`"`)
	c.Data(http.StatusOK, format.ContentType(), body)
}

// internalError writes a 500 body carrying the request ID of the failed call.
func internalError(c *gin.Context, msg string) {
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":      msg,
		"request_id": logger.GetRequestID(c.Request.Context()),
	})
}
