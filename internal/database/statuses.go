package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"mastodon-to-sqlite/internal/metrics"
)

// Status represents a Mastodon status authored by AccountID
type Status struct {
	ID        string
	AccountID string
	Content   *string
	CreatedAt *string // as returned by the API (ISO 8601)
}

// UpsertStatuses inserts statuses or overwrites the mutable columns of an
// existing row with the same ID.
func (tx *Tx) UpsertStatuses(ctx context.Context, statuses []Status) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpUpsertStatuses))
	defer timer.ObserveDuration()

	stmt, err := tx.tx.PrepareContext(ctx, `
		INSERT INTO statuses (id, account_id, content, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			account_id = excluded.account_id,
			content = excluded.content,
			created_at = excluded.created_at
	`)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpUpsertStatuses).Inc()
		return fmt.Errorf("failed to prepare status upsert: %w", err)
	}
	defer stmt.Close()

	for _, s := range statuses {
		if _, err := stmt.ExecContext(ctx, s.ID, s.AccountID, s.Content, s.CreatedAt); err != nil {
			metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpUpsertStatuses).Inc()
			return fmt.Errorf("failed to upsert status %s: %w", s.ID, err)
		}
	}

	metrics.RecordsSavedTotal.WithLabelValues(metrics.TableStatuses).Add(float64(len(statuses)))
	return nil
}

// GetStatus retrieves a status by ID
func (db *DB) GetStatus(id string) (*Status, error) {
	var s Status
	err := db.conn.QueryRow(`
		SELECT id, account_id, content, created_at
		FROM statuses WHERE id = ?
	`, id).Scan(&s.ID, &s.AccountID, &s.Content, &s.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}
	return &s, nil
}

// SearchStatuses runs a full-text query over status content
func (db *DB) SearchStatuses(query string, limit int) ([]*Status, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpSearchStatuses))
	defer timer.ObserveDuration()

	if limit <= 0 {
		limit = 20
	}

	rows, err := db.conn.Query(`
		SELECT s.id, s.account_id, s.content, s.created_at
		FROM statuses_fts
		JOIN statuses s ON s.rowid = statuses_fts.rowid
		WHERE statuses_fts MATCH ?
		ORDER BY statuses_fts.rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpSearchStatuses).Inc()
		return nil, fmt.Errorf("failed to search statuses: %w", err)
	}
	defer rows.Close()

	var statuses []*Status
	for rows.Next() {
		var s Status
		if err := rows.Scan(&s.ID, &s.AccountID, &s.Content, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan status: %w", err)
		}
		statuses = append(statuses, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating statuses: %w", err)
	}

	return statuses, nil
}
