package database

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mastodon-to-sqlite/internal/metrics"
)

// FollowingEdge records that FollowerID follows FollowedID
type FollowingEdge struct {
	FollowedID string
	FollowerID string
	FirstSeen  time.Time
}

// InsertFollowing inserts edges that are not stored yet. An edge that already
// exists keeps its original first_seen.
func (tx *Tx) InsertFollowing(ctx context.Context, edges []FollowingEdge) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpInsertFollowing))
	defer timer.ObserveDuration()

	stmt, err := tx.tx.PrepareContext(ctx, `
		INSERT INTO following (followed_id, follower_id, first_seen)
		VALUES (?, ?, ?)
		ON CONFLICT(followed_id, follower_id) DO NOTHING
	`)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpInsertFollowing).Inc()
		return fmt.Errorf("failed to prepare following insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range edges {
		firstSeen := e.FirstSeen.UTC().Format(time.RFC3339Nano)
		if _, err := stmt.ExecContext(ctx, e.FollowedID, e.FollowerID, firstSeen); err != nil {
			metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpInsertFollowing).Inc()
			return fmt.Errorf("failed to insert following %s -> %s: %w", e.FollowerID, e.FollowedID, err)
		}
	}

	metrics.RecordsSavedTotal.WithLabelValues(metrics.TableFollowing).Add(float64(len(edges)))
	return nil
}

// ListFollowing returns every stored edge ordered by discovery time
func (db *DB) ListFollowing() ([]*FollowingEdge, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpListFollowing))
	defer timer.ObserveDuration()

	rows, err := db.conn.Query(`
		SELECT followed_id, follower_id, first_seen
		FROM following
		ORDER BY first_seen ASC, followed_id ASC, follower_id ASC
	`)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpListFollowing).Inc()
		return nil, fmt.Errorf("failed to list following: %w", err)
	}
	defer rows.Close()

	var edges []*FollowingEdge
	for rows.Next() {
		var e FollowingEdge
		var firstSeen string
		if err := rows.Scan(&e.FollowedID, &e.FollowerID, &firstSeen); err != nil {
			return nil, fmt.Errorf("failed to scan following: %w", err)
		}
		e.FirstSeen, err = time.Parse(time.RFC3339Nano, firstSeen)
		if err != nil {
			return nil, fmt.Errorf("failed to parse first_seen %q: %w", firstSeen, err)
		}
		edges = append(edges, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating following: %w", err)
	}

	return edges, nil
}
