package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/riskianand4/internet-stock-tracker-84/internal/middleware"
	"github.com/riskianand4/internet-stock-tracker-84/internal/model"
	"github.com/riskianand4/internet-stock-tracker-84/internal/service"
)

// ListSecurityEvents handles GET /api/security/events
func (h *Handler) ListSecurityEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}

	events, err := h.reviewSvc.ListSecurityEvents(r.Context(), model.SecurityEventFilter{
		Severity: model.Severity(q.Get("severity")),
		Type:     model.EventType(q.Get("type")),
	}, limit)
	if err != nil {
		h.reviewError(w, err, "failed to list security events")
		return
	}

	writeSuccess(w, http.StatusOK, map[string]interface{}{"events": events})
}

// ListLoginAttempts handles GET /api/security/login-attempts
func (h *Handler) ListLoginAttempts(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}

	attempts, err := h.reviewSvc.ListLoginAttempts(r.Context(), model.LoginAttemptFilter{
		IPAddressContains: r.URL.Query().Get("ip"),
	}, limit)
	if err != nil {
		h.reviewError(w, err, "failed to list login attempts")
		return
	}

	writeSuccess(w, http.StatusOK, map[string]interface{}{"attempts": attempts})
}

// GetSecurityStats handles GET /api/security/stats
func (h *Handler) GetSecurityStats(w http.ResponseWriter, r *http.Request) {
	days, ok := queryInt(w, r, "days")
	if !ok {
		return
	}

	stats, err := h.reviewSvc.GetSecurityStats(r.Context(), days)
	if err != nil {
		h.reviewError(w, err, "failed to get security stats")
		return
	}

	writeSuccess(w, http.StatusOK, stats)
}

// ResolveEventRequest is the optional body of the resolve route
type ResolveEventRequest struct {
	Notes *string `json:"notes"`
}

// ResolveSecurityEvent handles PATCH /api/security/events/{id}/resolve
func (h *Handler) ResolveSecurityEvent(w http.ResponseWriter, r *http.Request) {
	var req ResolveEventRequest
	if err := readJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	ev, err := h.reviewSvc.ResolveSecurityEvent(r.Context(), r.PathValue("id"), middleware.GetUserID(r.Context()), req.Notes)
	if err != nil {
		h.reviewError(w, err, "failed to resolve security event")
		return
	}

	writeSuccess(w, http.StatusOK, map[string]interface{}{"event": ev})
}

// IPBlockRequest is the body of POST /api/security/ip-block
type IPBlockRequest struct {
	IPAddress string `json:"ipAddress"`
	Action    string `json:"action"`
	Reason    string `json:"reason"`
}

// SetIPBlockState handles POST /api/security/ip-block
func (h *Handler) SetIPBlockState(w http.ResponseWriter, r *http.Request) {
	var req IPBlockRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	result, err := h.reviewSvc.SetIPBlockState(r.Context(), service.IPBlockRequest{
		IPAddress: req.IPAddress,
		Action:    req.Action,
		Reason:    req.Reason,
		Actor:     middleware.GetUserID(r.Context()),
	})
	if err != nil {
		h.reviewError(w, err, "failed to change ip block state")
		return
	}

	writeSuccess(w, http.StatusOK, result)
}

// ListAuditTrail handles GET /api/security/audit?resource=...&id=...
func (h *Handler) ListAuditTrail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}

	entries, err := h.reviewSvc.AuditTrail(r.Context(), q.Get("resource"), q.Get("id"), limit)
	if err != nil {
		h.reviewError(w, err, "failed to list audit trail")
		return
	}

	writeSuccess(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// RunSweep handles POST /api/security/sweep
func (h *Handler) RunSweep(w http.ResponseWriter, r *http.Request) {
	// a disconnecting admin must not cut the sweep short
	report := h.blocker.RunSweep(context.WithoutCancel(r.Context()))
	if report.Skipped {
		writeError(w, http.StatusConflict, "sweep_skipped", report.SkipReason)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"candidates": report.Candidates,
		"blocked":    report.Blocked,
		"errors":     report.Errors,
		"durationMs": report.Duration.Milliseconds(),
	})
}

func (h *Handler) reviewError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, service.ErrEventNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Security event not found")
	case errors.Is(err, service.ErrEventAlreadyResolved):
		writeError(w, http.StatusConflict, "already_resolved", "Security event is already resolved")
	case errors.Is(err, service.ErrInvalidIPAddress):
		writeError(w, http.StatusBadRequest, "validation_error", "A valid IP address is required")
	case errors.Is(err, service.ErrInvalidBlockAction):
		writeError(w, http.StatusBadRequest, "validation_error", "Action must be block or unblock")
	case errors.Is(err, service.ErrInvalidFilter):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	default:
		h.log.Error().Err(err).Msg(msg)
		writeError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

// queryInt parses an optional integer query parameter, answering 400 itself
// when the value is malformed. A missing parameter yields 0.
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "validation_error", name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
