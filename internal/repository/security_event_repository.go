package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/riskianand4/internet-stock-tracker-84/internal/database"
	"github.com/riskianand4/internet-stock-tracker-84/internal/model"
)

const securityEventColumns = `id, type, severity, description, ip_address, user_agent, user_id,
		endpoint, method, status_code, metadata, resolved, resolved_by, resolved_at, notes, created_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// SecurityEventRepository handles security event persistence
type SecurityEventRepository struct {
	db *database.Postgres
}

// NewSecurityEventRepository creates a new SecurityEventRepository
func NewSecurityEventRepository(db *database.Postgres) *SecurityEventRepository {
	return &SecurityEventRepository{db: db}
}

// Create inserts a new security event
func (r *SecurityEventRepository) Create(ctx context.Context, ev *model.SecurityEvent) error {
	metadataJSON, err := json.Marshal(ev.Metadata)
	if err != nil || ev.Metadata == nil {
		metadataJSON = []byte("{}")
	}

	query := `
		INSERT INTO security_events (id, type, severity, description, ip_address,
		    user_agent, user_id, endpoint, method, status_code, metadata, resolved, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, false, $12)
	`
	_, err = r.db.ExecContext(ctx, query,
		ev.ID,
		ev.Type,
		ev.Severity,
		ev.Description,
		ev.IPAddress,
		ev.UserAgent,
		ev.UserID,
		ev.Endpoint,
		ev.Method,
		ev.StatusCode,
		metadataJSON,
		ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create security event: %w", err)
	}
	return nil
}

// GetByID retrieves a security event by ID
func (r *SecurityEventRepository) GetByID(ctx context.Context, id string) (*model.SecurityEvent, error) {
	query := `SELECT ` + securityEventColumns + ` FROM security_events WHERE id = $1`
	return scanSecurityEvent(r.db.QueryRowContext(ctx, query, id))
}

// List returns the most recent events matching filter
func (r *SecurityEventRepository) List(ctx context.Context, filter model.SecurityEventFilter, limit int) ([]*model.SecurityEvent, error) {
	query := `
		SELECT ` + securityEventColumns + `
		FROM security_events
		WHERE ($1 = '' OR severity = $1) AND ($2 = '' OR type = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, string(filter.Severity), string(filter.Type), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list security events: %w", err)
	}
	defer rows.Close()

	events := []*model.SecurityEvent{}
	for rows.Next() {
		ev, err := scanSecurityEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Resolve marks an unresolved event as resolved. The update only matches
// unresolved rows, so resolved_at is written at most once.
func (r *SecurityEventRepository) Resolve(ctx context.Context, id, resolvedBy string, notes *string, at time.Time) (*model.SecurityEvent, error) {
	query := `
		UPDATE security_events
		SET resolved = true, resolved_by = $2, resolved_at = $3, notes = $4
		WHERE id = $1 AND resolved = false
		RETURNING ` + securityEventColumns

	ev, err := scanSecurityEvent(r.db.QueryRowContext(ctx, query, id, resolvedBy, at, notes))
	if !errors.Is(err, ErrNotFound) {
		return ev, err
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM security_events WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check security event: %w", err)
	}
	if exists {
		return nil, ErrAlreadyResolved
	}
	return nil, ErrNotFound
}

// CountSince returns the total and critical event counts created after since
func (r *SecurityEventRepository) CountSince(ctx context.Context, since time.Time) (total, critical int, err error) {
	query := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE severity = $2)
		FROM security_events
		WHERE created_at > $1
	`
	if err := r.db.QueryRowContext(ctx, query, since, model.SeverityCritical).Scan(&total, &critical); err != nil {
		return 0, 0, fmt.Errorf("failed to count security events: %w", err)
	}
	return total, critical, nil
}

// TopTypesSince returns the most frequent event types since the given time
func (r *SecurityEventRepository) TopTypesSince(ctx context.Context, since time.Time, limit int) ([]model.TypeCount, error) {
	query := `
		SELECT type, COUNT(*) AS events
		FROM security_events
		WHERE created_at > $1
		GROUP BY type
		ORDER BY events DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top event types: %w", err)
	}
	defer rows.Close()

	counts := []model.TypeCount{}
	for rows.Next() {
		var c model.TypeCount
		if err := rows.Scan(&c.Type, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan event type count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func scanSecurityEvent(row rowScanner) (*model.SecurityEvent, error) {
	var ev model.SecurityEvent
	var metadataJSON []byte
	err := row.Scan(
		&ev.ID,
		&ev.Type,
		&ev.Severity,
		&ev.Description,
		&ev.IPAddress,
		&ev.UserAgent,
		&ev.UserID,
		&ev.Endpoint,
		&ev.Method,
		&ev.StatusCode,
		&metadataJSON,
		&ev.Resolved,
		&ev.ResolvedBy,
		&ev.ResolvedAt,
		&ev.Notes,
		&ev.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan security event: %w", err)
	}

	if len(metadataJSON) > 0 {
		json.Unmarshal(metadataJSON, &ev.Metadata)
	}
	return &ev, nil
}
