// Package dto defines request and response shapes for the v1 API.
package dto

import (
	"encoding/json"
	"time"
)

// SuccessResponse is a generic success envelope.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// AuditEntryResponse is one adjustment audit trail entry.
type AuditEntryResponse struct {
	ID         string          `json:"id"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Action     string          `json:"action"`
	ActorID    string          `json:"actorId,omitempty"`
	Changes    json.RawMessage `json:"changes,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// AuditHistoryResponse represents an entity's audit history.
type AuditHistoryResponse struct {
	Items []AuditEntryResponse `json:"items"`
}
