package database

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"mastodon-to-sqlite/internal/metrics"
)

// StatusActivity records that AccountID performed Activity on StatusID
type StatusActivity struct {
	AccountID string
	Activity  string
	StatusID  string
}

// UpsertStatusActivities records activities; recording the same activity again
// leaves a single row.
func (tx *Tx) UpsertStatusActivities(ctx context.Context, activities []StatusActivity) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpUpsertStatusActivity))
	defer timer.ObserveDuration()

	stmt, err := tx.tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO status_activities (account_id, activity, status_id)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpUpsertStatusActivity).Inc()
		return fmt.Errorf("failed to prepare status activity upsert: %w", err)
	}
	defer stmt.Close()

	for _, a := range activities {
		if _, err := stmt.ExecContext(ctx, a.AccountID, a.Activity, a.StatusID); err != nil {
			metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpUpsertStatusActivity).Inc()
			return fmt.Errorf("failed to upsert %s activity for status %s: %w", a.Activity, a.StatusID, err)
		}
	}

	metrics.RecordsSavedTotal.WithLabelValues(metrics.TableStatusActivities).Add(float64(len(activities)))
	return nil
}

// ListStatusActivities returns the activities an account performed, optionally
// filtered to one activity label
func (db *DB) ListStatusActivities(accountID, activity string) ([]*StatusActivity, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpListStatusActivities))
	defer timer.ObserveDuration()

	query := `SELECT account_id, activity, status_id FROM status_activities WHERE account_id = ?`
	args := []any{accountID}
	if activity != "" {
		query += " AND activity = ?"
		args = append(args, activity)
	}
	query += " ORDER BY status_id ASC"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpListStatusActivities).Inc()
		return nil, fmt.Errorf("failed to list status activities: %w", err)
	}
	defer rows.Close()

	var activities []*StatusActivity
	for rows.Next() {
		var a StatusActivity
		if err := rows.Scan(&a.AccountID, &a.Activity, &a.StatusID); err != nil {
			return nil, fmt.Errorf("failed to scan status activity: %w", err)
		}
		activities = append(activities, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status activities: %w", err)
	}

	return activities, nil
}
