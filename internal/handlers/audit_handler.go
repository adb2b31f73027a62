package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitewise/platform/internal/domain/audit"
)

// AuditHandler exposes the read side of the audit trail
type AuditHandler struct {
	svc    audit.Service
	logger *zap.Logger
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(svc audit.Service, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		svc:    svc,
		logger: logger,
	}
}

// ListLogs handles GET /companies/:company_id/audit-logs with optional
// actor_id, action, from, to (RFC 3339) and limit query parameters.
func (h *AuditHandler) ListLogs(c *gin.Context) {
	companyID, ok := companyIDParam(c)
	if !ok {
		return
	}

	filter, ok := parseAuditFilter(c)
	if !ok {
		return
	}

	entries, err := h.svc.GetLogs(c.Request.Context(), companyID, filter)
	if err != nil {
		h.logger.Error("failed to list audit logs", zap.Int64("company_id", companyID), zap.Error(err))
		respondDomainError(c, err)
		return
	}
	respondOK(c, entries)
}

func parseAuditFilter(c *gin.Context) (audit.Filter, bool) {
	var filter audit.Filter

	if raw := c.Query("actor_id"); raw != "" {
		actorID, err := uuid.Parse(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "INVALID_ACTOR_ID", "Invalid actor_id")
			return filter, false
		}
		filter.ActorID = &actorID
	}

	filter.Action = audit.Action(c.Query("action"))

	if raw := c.Query("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "INVALID_TIME_RANGE", "Invalid from timestamp")
			return filter, false
		}
		filter.From = &from
	}

	if raw := c.Query("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "INVALID_TIME_RANGE", "Invalid to timestamp")
			return filter, false
		}
		filter.To = &to
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			respondError(c, http.StatusBadRequest, "INVALID_LIMIT", "Invalid limit")
			return filter, false
		}
		filter.Limit = limit
	}

	return filter, true
}
