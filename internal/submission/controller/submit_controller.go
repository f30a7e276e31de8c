package controller

import (
	"io"

	"github.com/rishvic/jumpcoder/internal/submission/service"
	appErr "github.com/rishvic/jumpcoder/pkg/errors"
	"github.com/rishvic/jumpcoder/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// SubmitController handles submission HTTP endpoints.
type SubmitController struct {
	submitService *service.SubmitService
	maxBodyBytes  int64
}

// NewSubmitController creates a new SubmitController. maxBodyBytes gates the
// declared request size before any of the stream is consumed.
func NewSubmitController(submitService *service.SubmitService, maxBodyBytes int64) *SubmitController {
	return &SubmitController{
		submitService: submitService,
		maxBodyBytes:  maxBodyBytes,
	}
}

// Submit ingests one code submission for the problem named in the path.
func (h *SubmitController) Submit(c *gin.Context) {
	slug := c.Param("slug")
	if slug == "" {
		response.BadRequest(c, "Invalid problem slug")
		return
	}

	if h.maxBodyBytes > 0 && c.Request.ContentLength > h.maxBodyBytes {
		response.ErrorWithCode(c, appErr.PayloadTooLarge, "Payload too large")
		return
	}

	reader, err := c.Request.MultipartReader()
	if err != nil {
		response.BadRequest(c, "Expected multipart form data")
		return
	}

	receipt, err := h.submitService.Ingest(c.Request.Context(), slug, reader)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, receipt)
}

// GetSubmission returns one submission record.
func (h *SubmitController) GetSubmission(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	submission, err := h.submitService.GetSubmission(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, SubmissionResponse{
		ID:     submission.ID.Hex(),
		Lang:   submission.Lang,
		ETag:   submission.ETag,
		Status: string(submission.Status),
	})
}

// GetSource streams the stored source object of one submission.
func (h *SubmitController) GetSource(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	_, source, err := h.submitService.OpenSource(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer func() {
		_ = source.Close()
	}()

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Status(200)
	_, _ = io.Copy(c.Writer, source)
}

// SubmissionResponse defines the submission record payload.
type SubmissionResponse struct {
	ID     string `json:"id"`
	Lang   string `json:"lang"`
	ETag   string `json:"etag"`
	Status string `json:"status"`
}
