package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/riskianand4/internet-stock-tracker-84/internal/database"
	"github.com/riskianand4/internet-stock-tracker-84/internal/model"
)

const loginAttemptColumns = `id, email, ip_address, user_agent, success, failure_reason, user_id, blocked, created_at`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// LoginAttemptRepository handles login attempt persistence
type LoginAttemptRepository struct {
	db *database.Postgres
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository
func NewLoginAttemptRepository(db *database.Postgres) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// Create inserts a login attempt. The blocked flag is always stored as false.
func (r *LoginAttemptRepository) Create(ctx context.Context, a *model.LoginAttempt) error {
	query := `
		INSERT INTO login_attempts (id, email, ip_address, user_agent, success,
		    failure_reason, user_id, blocked, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		a.ID,
		a.Email,
		a.IPAddress,
		a.UserAgent,
		a.Success,
		a.FailureReason,
		a.UserID,
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create login attempt: %w", err)
	}
	return nil
}

// CountFailuresByIP counts failed attempts from ip created after since
func (r *LoginAttemptRepository) CountFailuresByIP(ctx context.Context, ip string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_attempts
		WHERE ip_address = $1 AND success = false AND created_at > $2
	`
	var n int
	if err := r.db.QueryRowContext(ctx, query, ip, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count failures by ip: %w", err)
	}
	return n, nil
}

// CountFailuresByEmail counts failed attempts for email created after since
func (r *LoginAttemptRepository) CountFailuresByEmail(ctx context.Context, email string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_attempts
		WHERE email = $1 AND success = false AND created_at > $2
	`
	var n int
	if err := r.db.QueryRowContext(ctx, query, email, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count failures by email: %w", err)
	}
	return n, nil
}

// HasBlocked reports whether any attempt from ip is flagged as blocked
func (r *LoginAttemptRepository) HasBlocked(ctx context.Context, ip string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM login_attempts WHERE ip_address = $1 AND blocked = true)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, ip).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check blocked state: %w", err)
	}
	return exists, nil
}

// AggregateUnblockedFailures groups failed, unblocked attempts created after
// since by address and returns the groups with at least min rows
func (r *LoginAttemptRepository) AggregateUnblockedFailures(ctx context.Context, since time.Time, min int) ([]model.IPFailureCount, error) {
	query := `
		SELECT ip_address, COUNT(*) AS attempts
		FROM login_attempts
		WHERE success = false AND blocked = false AND created_at > $1
		GROUP BY ip_address
		HAVING COUNT(*) >= $2
		ORDER BY attempts DESC
	`
	rows, err := r.db.QueryContext(ctx, query, since, min)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate failures: %w", err)
	}
	return scanIPCounts(rows)
}

// BlockIP flags every attempt from ip as blocked in a single statement and
// returns the number of rows that changed
func (r *LoginAttemptRepository) BlockIP(ctx context.Context, ip string) (int64, error) {
	query := `UPDATE login_attempts SET blocked = true WHERE ip_address = $1 AND blocked = false`
	result, err := r.db.ExecContext(ctx, query, ip)
	if err != nil {
		return 0, fmt.Errorf("failed to block ip: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// UnblockIP clears the blocked flag for ip and removes manual block markers
func (r *LoginAttemptRepository) UnblockIP(ctx context.Context, ip string) (int64, error) {
	tx, err := r.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin unblock: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM login_attempts WHERE ip_address = $1 AND failure_reason = $2`,
		ip, model.FailureReasonManualBlock,
	); err != nil {
		return 0, fmt.Errorf("failed to remove block markers: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE login_attempts SET blocked = false WHERE ip_address = $1 AND blocked = true`, ip)
	if err != nil {
		return 0, fmt.Errorf("failed to unblock ip: %w", err)
	}
	n, _ := result.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit unblock: %w", err)
	}
	return n, nil
}

// InsertBlockMarker stores a blocked placeholder attempt so an address with no
// history can still be denied by the access guard
func (r *LoginAttemptRepository) InsertBlockMarker(ctx context.Context, id, ip string, at time.Time) error {
	query := `
		INSERT INTO login_attempts (id, email, ip_address, success, failure_reason, blocked, created_at)
		VALUES ($1, '', $2, false, $3, true, $4)
	`
	if _, err := r.db.ExecContext(ctx, query, id, ip, model.FailureReasonManualBlock, at); err != nil {
		return fmt.Errorf("failed to insert block marker: %w", err)
	}
	return nil
}

// List returns the most recent attempts matching filter
func (r *LoginAttemptRepository) List(ctx context.Context, filter model.LoginAttemptFilter, limit int) ([]*model.LoginAttempt, error) {
	query := `
		SELECT ` + loginAttemptColumns + `
		FROM login_attempts
		WHERE ($1 = '' OR ip_address LIKE '%' || $1 || '%')
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, likeEscaper.Replace(filter.IPAddressContains), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list login attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*model.LoginAttempt
	for rows.Next() {
		var a model.LoginAttempt
		if err := rows.Scan(
			&a.ID,
			&a.Email,
			&a.IPAddress,
			&a.UserAgent,
			&a.Success,
			&a.FailureReason,
			&a.UserID,
			&a.Blocked,
			&a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan login attempt: %w", err)
		}
		attempts = append(attempts, &a)
	}
	return attempts, rows.Err()
}

// CountSince returns the total and failed attempt counts created after since
func (r *LoginAttemptRepository) CountSince(ctx context.Context, since time.Time) (total, failed int, err error) {
	query := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE success = false)
		FROM login_attempts
		WHERE created_at > $1
	`
	if err := r.db.QueryRowContext(ctx, query, since).Scan(&total, &failed); err != nil {
		return 0, 0, fmt.Errorf("failed to count login attempts: %w", err)
	}
	return total, failed, nil
}

// TopFailingIPs returns the addresses with the most failures since the given time
func (r *LoginAttemptRepository) TopFailingIPs(ctx context.Context, since time.Time, limit int) ([]model.IPFailureCount, error) {
	query := `
		SELECT ip_address, COUNT(*) AS attempts
		FROM login_attempts
		WHERE success = false AND created_at > $1
		GROUP BY ip_address
		ORDER BY attempts DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query failing ips: %w", err)
	}
	return scanIPCounts(rows)
}

func scanIPCounts(rows *sql.Rows) ([]model.IPFailureCount, error) {
	defer rows.Close()

	counts := []model.IPFailureCount{}
	for rows.Next() {
		var c model.IPFailureCount
		if err := rows.Scan(&c.IPAddress, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan ip count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}
