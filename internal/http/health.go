package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	logx "github.com/fintalk/server/pkg/logger"
)

// Pinger is a reachability probe against one backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

type serviceStatus struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type healthDocument struct {
	Status   string                   `json:"status"`
	Services map[string]serviceStatus `json:"services"`
}

// HealthHandler aggregates the three dependency checks into one document.
// All checks always run; one failing never hides the others.
type HealthHandler struct {
	db           Pinger
	vector       Pinger
	bedrockReady bool
}

func NewHealthHandler(db, vector Pinger, bedrockReady bool) *HealthHandler {
	return &HealthHandler{db: db, vector: vector, bedrockReady: bedrockReady}
}

func (h *HealthHandler) Check(c *gin.Context) {
	ctx := c.Request.Context()
	doc := healthDocument{
		Status:   "healthy",
		Services: make(map[string]serviceStatus, 3),
	}
	allHealthy := true

	if err := h.db.Ping(ctx); err != nil {
		doc.Services["postgresql"] = serviceStatus{
			Status:  "unhealthy",
			Message: fmt.Sprintf("Database connection failed: %v", err),
		}
		allHealthy = false
		logx.Error().Err(err).Msg("postgresql health check failed")
	} else {
		doc.Services["postgresql"] = serviceStatus{
			Status:  "healthy",
			Message: "Database connection successful",
		}
	}

	if err := h.vector.Ping(ctx); err != nil {
		doc.Services["opensearch"] = serviceStatus{
			Status:  "unhealthy",
			Message: fmt.Sprintf("Vector store connection failed: %v", err),
		}
		allHealthy = false
		logx.Error().Err(err).Msg("opensearch health check failed")
	} else {
		doc.Services["opensearch"] = serviceStatus{
			Status:  "healthy",
			Message: "Vector store connection successful",
		}
	}

	if h.bedrockReady {
		doc.Services["aws_bedrock"] = serviceStatus{
			Status:  "healthy",
			Message: "AWS Bedrock client initialized",
		}
	} else {
		doc.Services["aws_bedrock"] = serviceStatus{
			Status:  "unhealthy",
			Message: "AWS Bedrock connection failed: client not initialized",
		}
		allHealthy = false
		logx.Error().Msg("aws bedrock health check failed")
	}

	if !allHealthy {
		doc.Status = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, doc)
		return
	}
	c.JSON(http.StatusOK, doc)
}
