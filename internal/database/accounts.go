package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"mastodon-to-sqlite/internal/metrics"
)

// Account represents a Mastodon account profile
type Account struct {
	ID          string
	Username    *string
	URL         *string
	DisplayName *string
	Note        *string
}

// UpsertAccounts inserts accounts or overwrites every mutable column of an
// existing row with the same ID.
func (tx *Tx) UpsertAccounts(ctx context.Context, accounts []Account) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpUpsertAccounts))
	defer timer.ObserveDuration()

	stmt, err := tx.tx.PrepareContext(ctx, `
		INSERT INTO accounts (id, username, url, display_name, note)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			url = excluded.url,
			display_name = excluded.display_name,
			note = excluded.note
	`)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpUpsertAccounts).Inc()
		return fmt.Errorf("failed to prepare account upsert: %w", err)
	}
	defer stmt.Close()

	for _, a := range accounts {
		if _, err := stmt.ExecContext(ctx, a.ID, a.Username, a.URL, a.DisplayName, a.Note); err != nil {
			metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpUpsertAccounts).Inc()
			return fmt.Errorf("failed to upsert account %s: %w", a.ID, err)
		}
	}

	metrics.RecordsSavedTotal.WithLabelValues(metrics.TableAccounts).Add(float64(len(accounts)))
	return nil
}

// EnsureAccount inserts a bare account row for id unless one already exists.
// Existing rows are left untouched.
func (tx *Tx) EnsureAccount(ctx context.Context, id string) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpEnsureAccount))
	defer timer.ObserveDuration()

	_, err := tx.tx.ExecContext(ctx, `INSERT INTO accounts (id) VALUES (?) ON CONFLICT(id) DO NOTHING`, id)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpEnsureAccount).Inc()
		return fmt.Errorf("failed to ensure account %s: %w", id, err)
	}
	return nil
}

// GetAccount retrieves an account by ID
func (db *DB) GetAccount(id string) (*Account, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpGetAccount))
	defer timer.ObserveDuration()

	var a Account
	err := db.conn.QueryRow(`
		SELECT id, username, url, display_name, note
		FROM accounts WHERE id = ?
	`, id).Scan(&a.ID, &a.Username, &a.URL, &a.DisplayName, &a.Note)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetAccount).Inc()
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &a, nil
}

// SearchAccounts runs a full-text query over username, display name and note
func (db *DB) SearchAccounts(query string, limit int) ([]*Account, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpSearchAccounts))
	defer timer.ObserveDuration()

	if limit <= 0 {
		limit = 20
	}

	rows, err := db.conn.Query(`
		SELECT a.id, a.username, a.url, a.display_name, a.note
		FROM accounts_fts
		JOIN accounts a ON a.rowid = accounts_fts.rowid
		WHERE accounts_fts MATCH ?
		ORDER BY accounts_fts.rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpSearchAccounts).Inc()
		return nil, fmt.Errorf("failed to search accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Username, &a.URL, &a.DisplayName, &a.Note); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}
