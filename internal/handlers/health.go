package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hartline/accountd/internal/monitoring"
	"github.com/hartline/accountd/pkg/response"
)

// Health evaluates the supplied dependency probes and reports readiness.
// Without probes it degenerates to a static liveness payload.
func Health(checks ...monitoring.Check) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(checks) == 0 {
			response.Success(c, http.StatusOK, gin.H{"status": "ok"})
			return
		}

		report := monitoring.Evaluate(requestContext(c), checks)
		status := http.StatusOK
		if !report.Success {
			status = http.StatusServiceUnavailable
		}
		response.Success(c, status, report)
	}
}
