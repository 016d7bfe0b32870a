package job

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jkrishnan-dev/textjobs/common"
	"github.com/jkrishnan-dev/textjobs/internal/dto"
	"github.com/jkrishnan-dev/textjobs/middleware"
)

const defaultListLimit = 20

// JobHandler exposes the job lifecycle over HTTP. Upload validation (size,
// UTF-8) is done here, before any row is created; everything else is
// delegated to the JobService.
type JobHandler struct {
	service        JobServiceInterface
	maxUploadBytes int64
}

func NewJobHandler(s JobServiceInterface, maxUploadBytes int64) *JobHandler {
	return &JobHandler{service: s, maxUploadBytes: maxUploadBytes}
}

var _ JobHandlerInterface = (*JobHandler)(nil)

// Create handles POST /jobs: either a multipart upload with a "file" field
// holding UTF-8 text, or a JSON body {"text": ...}. Oversized payloads get
// 413, non-UTF-8 uploads 400, and no job row is created in either case.
func (h *JobHandler) Create(c *gin.Context) {
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		h.createFromJSON(c)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.Error(common.Errf(http.StatusBadRequest, "multipart field 'file' is required"))
		return
	}

	if fileHeader.Size > h.maxUploadBytes {
		c.Error(common.Errf(http.StatusRequestEntityTooLarge,
			"file too large (max %d bytes)", h.maxUploadBytes))
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.Error(common.Errf(http.StatusBadRequest, "could not read upload"))
		return
	}
	defer f.Close()

	// The header size is client-supplied, re-check while reading.
	raw, err := io.ReadAll(io.LimitReader(f, h.maxUploadBytes+1))
	if err != nil {
		c.Error(common.Errf(http.StatusBadRequest, "could not read upload"))
		return
	}
	if int64(len(raw)) > h.maxUploadBytes {
		c.Error(common.Errf(http.StatusRequestEntityTooLarge,
			"file too large (max %d bytes)", h.maxUploadBytes))
		return
	}
	if !utf8.Valid(raw) {
		c.Error(common.Errf(http.StatusBadRequest, "file must be UTF-8 encoded text"))
		return
	}

	resp, err := h.service.SubmitJob(c.Request.Context(), string(raw))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *JobHandler) createFromJSON(c *gin.Context) {
	var req dto.JobCreateRequest
	if !middleware.Bind(c, &req) {
		return
	}

	if int64(len(req.Text)) > h.maxUploadBytes {
		c.Error(common.Errf(http.StatusRequestEntityTooLarge,
			"text too large (max %d bytes)", h.maxUploadBytes))
		return
	}

	resp, err := h.service.SubmitJob(c.Request.Context(), req.Text)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// Status handles GET /jobs/:id/status.
func (h *JobHandler) Status(c *gin.Context) {
	id, ok := h.jobID(c)
	if !ok {
		return
	}

	resp, err := h.service.GetJobStatus(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Result handles GET /jobs/:id/result. Done jobs return the character count,
// failed jobs return 409 with the attempt count and stored error, anything
// still in flight returns 202.
func (h *JobHandler) Result(c *gin.Context) {
	id, ok := h.jobID(c)
	if !ok {
		return
	}

	out, err := h.service.GetJobResult(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	switch {
	case out.Status == "failed":
		c.JSON(http.StatusConflict, gin.H{
			"job_id":   out.JobID,
			"status":   out.Status,
			"attempts": out.Attempts,
			"error":    out.LastError,
		})
	case out.Status == "done" && out.Characters != nil:
		c.JSON(http.StatusOK, gin.H{
			"job_id":     out.JobID,
			"status":     out.Status,
			"characters": *out.Characters,
		})
	default:
		c.JSON(http.StatusAccepted, gin.H{
			"job_id":  out.JobID,
			"status":  out.Status,
			"message": "Result not ready",
		})
	}
}

// Get handles GET /jobs/:id.
func (h *JobHandler) Get(c *gin.Context) {
	id, ok := h.jobID(c)
	if !ok {
		return
	}

	resp, err := h.service.GetJob(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// List handles GET /jobs?limit=N, newest first, default 20.
func (h *JobHandler) List(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.Error(common.Errf(http.StatusBadRequest, "limit must be a positive integer"))
			return
		}
		limit = n
	}

	jobs, err := h.service.ListJobs(c.Request.Context(), limit)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, jobs)
}

func (h *JobHandler) jobID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.Error(common.Errf(http.StatusBadRequest, "invalid job id"))
		return uuid.Nil, false
	}
	return id, true
}
