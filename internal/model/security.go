package model

import "time"

// EventType classifies a security event
type EventType string

const (
	EventTypeSuspiciousActivity EventType = "suspicious_activity"
	EventTypeRateLimitExceeded  EventType = "rate_limit_exceeded"
	EventTypeUnauthorizedAccess EventType = "unauthorized_access"
	EventTypeFailedLogin        EventType = "failed_login"
	EventTypeDataBreachAttempt  EventType = "data_breach_attempt"
)

// Valid reports whether t is one of the known event types
func (t EventType) Valid() bool {
	switch t {
	case EventTypeSuspiciousActivity, EventTypeRateLimitExceeded, EventTypeUnauthorizedAccess,
		EventTypeFailedLogin, EventTypeDataBreachAttempt:
		return true
	}
	return false
}

// Severity is the ordered importance of a security event
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns the position of s in low < medium < high < critical.
// Unknown severities rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// Valid reports whether s is one of the known severities
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// AtLeast reports whether s is as severe as min or more
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() >= min.Rank()
}

// LoginAttempt is one authentication attempt. Rows are immutable except for
// Blocked, which only the auto-blocker and the manual block override change.
type LoginAttempt struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	IPAddress     string    `json:"ipAddress"`
	UserAgent     *string   `json:"userAgent,omitempty"`
	Success       bool      `json:"success"`
	FailureReason *string   `json:"failureReason,omitempty"`
	UserID        *string   `json:"userId,omitempty"`
	Blocked       bool      `json:"blocked"`
	CreatedAt     time.Time `json:"createdAt"`
}

// SecurityEvent is a detected anomaly or policy violation
type SecurityEvent struct {
	ID          string                 `json:"id"`
	Type        EventType              `json:"type"`
	Severity    Severity               `json:"severity"`
	Description string                 `json:"description"`
	IPAddress   string                 `json:"ipAddress"`
	UserAgent   *string                `json:"userAgent,omitempty"`
	UserID      *string                `json:"userId,omitempty"`
	Endpoint    *string                `json:"endpoint,omitempty"`
	Method      *string                `json:"method,omitempty"`
	StatusCode  *int                   `json:"statusCode,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Resolved    bool                   `json:"resolved"`
	ResolvedBy  *string                `json:"resolvedBy,omitempty"`
	ResolvedAt  *time.Time             `json:"resolvedAt,omitempty"`
	Notes       *string                `json:"notes,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
}

// Failure reasons recorded on login attempts
const (
	FailureReasonUserNotFound    = "user_not_found"
	FailureReasonInvalidPassword = "invalid_password"
	FailureReasonAccountInactive = "account_inactive"
	FailureReasonManualBlock     = "manual_block"
)

// Timeframe is the label stored in event metadata for the trailing window
const Timeframe = "1hour"

// SecurityEventFilter narrows ListSecurityEvents
type SecurityEventFilter struct {
	Severity Severity
	Type     EventType
}

// LoginAttemptFilter narrows ListLoginAttempts
type LoginAttemptFilter struct {
	IPAddressContains string
}

// IPFailureCount is a per-address failure aggregate
type IPFailureCount struct {
	IPAddress string `json:"ipAddress"`
	Count     int    `json:"count"`
}

// TypeCount is a per-type event aggregate
type TypeCount struct {
	Type  EventType `json:"type"`
	Count int       `json:"count"`
}

// SecurityOverview holds the headline numbers for a stats window
type SecurityOverview struct {
	SecurityEvents int    `json:"securityEvents"`
	LoginAttempts  int    `json:"loginAttempts"`
	FailedLogins   int    `json:"failedLogins"`
	CriticalEvents int    `json:"criticalEvents"`
	SuccessRate    string `json:"successRate"`
}

// SecurityStats is the dashboard summary for a number of days
type SecurityStats struct {
	Overview      SecurityOverview `json:"overview"`
	TopThreats    []TypeCount      `json:"topThreats"`
	SuspiciousIPs []IPFailureCount `json:"suspiciousIPs"`
}
