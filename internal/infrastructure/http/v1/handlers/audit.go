package handlers

import (
	"github.com/gin-gonic/gin"

	"kardex/internal/core/apperror"
	"kardex/internal/core/id"
	"kardex/internal/infrastructure/http/v1/dto"
	"kardex/internal/infrastructure/storage/postgres"
)

// AuditHandler serves the adjustment audit trail.
type AuditHandler struct {
	*BaseHandler
	audit *postgres.AuditService
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(base *BaseHandler, audit *postgres.AuditService) *AuditHandler {
	return &AuditHandler{
		BaseHandler: base,
		audit:       audit,
	}
}

// GetMovementHistory handles GET /ledger/audit/:movementId
func (h *AuditHandler) GetMovementHistory(c *gin.Context) {
	movementID, err := id.Parse(c.Param("movementId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid movementId format"))
		return
	}
	limit := h.ParseIntQuery(c, "limit", 50)

	entries, err := h.audit.GetEntityHistory(c.Request.Context(), "stock_balance", movementID, limit)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.AuditEntryResponse, len(entries))
	for i, e := range entries {
		items[i] = dto.AuditEntryResponse{
			ID:         e.ID.String(),
			EntityType: e.EntityType,
			EntityID:   e.EntityID.String(),
			Action:     string(e.Action),
			ActorID:    e.ActorID,
			Changes:    e.Changes,
			CreatedAt:  e.CreatedAt,
		}
	}
	h.OK(c, dto.AuditHistoryResponse{Items: items})
}
