package job

import (
	"net/http"

	"github.com/SNU-SE/analysisq/common"
	"github.com/SNU-SE/analysisq/internal/dto"
	"github.com/SNU-SE/analysisq/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type JobHandler struct {
	service JobServiceInterface
}

func NewJobHandler(s JobServiceInterface) *JobHandler {
	return &JobHandler{service: s}
}

var _ JobHandlerInterface = (*JobHandler)(nil)

// RegisterRoutes attaches the analysis endpoints to the router.
func (h *JobHandler) RegisterRoutes(r gin.IRouter) {
	v1 := r.Group("/v1")
	{
		v1.POST("/analyses", h.Create)
		v1.GET("/analyses/:id", h.Get)
		v1.POST("/analyses/:id/cancel", h.Cancel)
		v1.POST("/analyses/:id/retry", h.Retry)
		v1.GET("/queue/status", h.QueueStatus)
	}
	r.GET("/healthz", h.Health)
}

// Create handles HTTP requests for submitting a new analysis job.
// It validates and binds the request body, delegates business logic
// to the JobService, and returns HTTP 202 with the assigned job id.
func (h *JobHandler) Create(c *gin.Context) {
	var req dto.AnalyzeRequest

	if !middleware.Bind(c, &req) {
		c.Abort()
		return
	}

	id, err := h.service.CreateJob(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		c.Abort()
		return
	}

	c.JSON(http.StatusAccepted, dto.EnqueueResponse{JobID: id})
}

// Get handles HTTP requests to fetch a job's status surface by its ID.
func (h *JobHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if uuid.Validate(id) != nil {
		c.Error(common.Errf(http.StatusBadRequest, "invalid job id"))
		return
	}

	resp, err := h.service.GetJobStatus(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Cancel handles HTTP requests to stop a job. The response reports
// whether anything was actually cancelled; asking to cancel a finished
// or unknown job is not an error.
func (h *JobHandler) Cancel(c *gin.Context) {
	id := c.Param("id")
	if uuid.Validate(id) != nil {
		c.Error(common.Errf(http.StatusBadRequest, "invalid job id"))
		return
	}

	cancelled, err := h.service.CancelJob(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.CancelResponse{Cancelled: cancelled})
}

// Retry handles HTTP requests to re-queue a failed job.
func (h *JobHandler) Retry(c *gin.Context) {
	id := c.Param("id")
	if uuid.Validate(id) != nil {
		c.Error(common.Errf(http.StatusBadRequest, "invalid job id"))
		return
	}

	jobID, err := h.service.RetryJob(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusAccepted, dto.EnqueueResponse{JobID: jobID})
}

// QueueStatus handles HTTP requests for the pipeline counts.
func (h *JobHandler) QueueStatus(c *gin.Context) {
	resp, err := h.service.QueueStatus(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Health reports whether the service can reach its backing stores.
func (h *JobHandler) Health(c *gin.Context) {
	if err := h.service.Healthy(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, dto.HealthResponse{
			Healthy: false,
			Error:   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, dto.HealthResponse{Healthy: true})
}
