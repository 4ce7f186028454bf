package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hartline/accountd/internal/services"
	"github.com/hartline/accountd/pkg/response"
)

// AuditHandler lists audit events for administrators.
type AuditHandler struct {
	audit *services.AuditService
}

func NewAuditHandler(audit *services.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// GET /api/audit
func (h *AuditHandler) List(c *gin.Context) {
	opts := services.AuditListOptions{
		Page:     parseIntQuery(c, "page", 1),
		PageSize: parseIntQuery(c, "per_page", 50),
		Filters: services.AuditFilters{
			AccountID: strings.TrimSpace(c.Query("account_id")),
			Action:    strings.TrimSpace(c.Query("action")),
			Result:    strings.TrimSpace(c.Query("result")),
		},
	}

	if since := strings.TrimSpace(c.Query("since")); since != "" {
		if ts, err := time.Parse(time.RFC3339, since); err == nil {
			opts.Filters.Since = &ts
		}
	}
	if until := strings.TrimSpace(c.Query("until")); until != "" {
		if ts, err := time.Parse(time.RFC3339, until); err == nil {
			opts.Filters.Until = &ts
		}
	}

	logs, total, err := h.audit.List(requestContext(c), opts)
	if err != nil {
		response.Error(c, err)
		return
	}

	perPage := opts.PageSize
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}
	totalPages := int((total + int64(perPage) - 1) / int64(perPage))

	response.SuccessWithMeta(c, http.StatusOK, logs, &response.Meta{
		Page:       opts.Page,
		PerPage:    perPage,
		Total:      int(total),
		TotalPages: totalPages,
	})
}
