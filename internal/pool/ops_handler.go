package pool

import (
	"net/http"
	"time"

	"github.com/SNU-SE/analysisq/internal/dto"
	"github.com/gin-gonic/gin"
)

// OpsHandler is the worker binary's admin surface: liveness plus a stats
// snapshot. It reads the repository directly because the worker process
// does not carry the API's service layer.
type OpsHandler struct {
	pool *WorkerPool
}

func NewOpsHandler(p *WorkerPool) *OpsHandler {
	return &OpsHandler{pool: p}
}

func (h *OpsHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/healthz", h.Health)
	r.GET("/stats", h.Stats)
}

func (h *OpsHandler) Health(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.pool.repo.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, dto.HealthResponse{
			Healthy: false,
			Error:   "database unreachable: " + err.Error(),
		})
		return
	}
	if err := h.pool.broker.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, dto.HealthResponse{
			Healthy: false,
			Error:   "broker unreachable: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, dto.HealthResponse{Healthy: true})
}

func (h *OpsHandler) Stats(c *gin.Context) {
	counts, err := h.pool.repo.AggregateCounts(c.Request.Context(), time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate queue status"})
		return
	}

	c.JSON(http.StatusOK, dto.OpsStatsResponse{
		Workers: h.pool.Stats(),
		Queue: dto.QueueStatusResponse{
			Waiting:   counts.Waiting,
			Active:    counts.Active,
			Completed: counts.Completed,
			Failed:    counts.Failed,
			Delayed:   counts.Delayed,
		},
	})
}
