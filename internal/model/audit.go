package model

import "time"

// Audit actions recorded for admin changes to monitoring state
const (
	AuditActionResolveEvent = "security_event.resolve"
	AuditActionBlockIP      = "ip.block"
	AuditActionUnblockIP    = "ip.unblock"
)

// Audited resource types
const (
	AuditResourceSecurityEvent = "security_event"
	AuditResourceIPAddress     = "ip_address"
)

// AuditLog records who changed monitoring state and how
type AuditLog struct {
	ID           string                 `json:"id"`
	UserID       *string                `json:"userId,omitempty"`
	Action       string                 `json:"action"`
	ResourceType string                 `json:"resourceType"`
	ResourceID   *string                `json:"resourceId,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
}
