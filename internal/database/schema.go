package database

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"mastodon-to-sqlite/internal/metrics"
)

// Schema contains all SQL statements for creating tables, search indexes and indexes.
// Every statement is guarded with IF NOT EXISTS so it can run before each write.
const Schema = `
-- Accounts table: profiles of the authenticated user and everyone related to it
CREATE TABLE IF NOT EXISTS accounts (
    id TEXT NOT NULL PRIMARY KEY,  -- Mastodon account ID
    username TEXT,
    url TEXT,
    display_name TEXT,
    note TEXT
);

-- Following table: one row per directed follow edge
CREATE TABLE IF NOT EXISTS following (
    followed_id TEXT NOT NULL,
    follower_id TEXT NOT NULL,
    first_seen TEXT NOT NULL,  -- RFC 3339 UTC, set once when the edge is discovered

    PRIMARY KEY (followed_id, follower_id),
    FOREIGN KEY (followed_id) REFERENCES accounts(id),
    FOREIGN KEY (follower_id) REFERENCES accounts(id)
);

-- Statuses table
CREATE TABLE IF NOT EXISTS statuses (
    id TEXT NOT NULL PRIMARY KEY,  -- Mastodon status ID
    account_id TEXT NOT NULL,
    content TEXT,
    created_at TEXT,

    FOREIGN KEY (account_id) REFERENCES accounts(id)
);

-- Status activities table: favourited / bookmarked markers
CREATE TABLE IF NOT EXISTS status_activities (
    account_id TEXT NOT NULL,
    activity TEXT NOT NULL,  -- favourited, bookmarked
    status_id TEXT NOT NULL,

    PRIMARY KEY (account_id, activity, status_id),
    FOREIGN KEY (account_id) REFERENCES accounts(id),
    FOREIGN KEY (status_id) REFERENCES statuses(id)
);

-- Full-text search over accounts
CREATE VIRTUAL TABLE IF NOT EXISTS accounts_fts USING fts5(
    username,
    display_name,
    note,
    content='accounts'
);

CREATE TRIGGER IF NOT EXISTS accounts_ai AFTER INSERT ON accounts BEGIN
    INSERT INTO accounts_fts(rowid, username, display_name, note)
    VALUES (new.rowid, new.username, new.display_name, new.note);
END;

CREATE TRIGGER IF NOT EXISTS accounts_ad AFTER DELETE ON accounts BEGIN
    INSERT INTO accounts_fts(accounts_fts, rowid, username, display_name, note)
    VALUES ('delete', old.rowid, old.username, old.display_name, old.note);
END;

CREATE TRIGGER IF NOT EXISTS accounts_au AFTER UPDATE ON accounts BEGIN
    INSERT INTO accounts_fts(accounts_fts, rowid, username, display_name, note)
    VALUES ('delete', old.rowid, old.username, old.display_name, old.note);
    INSERT INTO accounts_fts(rowid, username, display_name, note)
    VALUES (new.rowid, new.username, new.display_name, new.note);
END;

-- Full-text search over statuses
CREATE VIRTUAL TABLE IF NOT EXISTS statuses_fts USING fts5(
    content,
    content='statuses'
);

CREATE TRIGGER IF NOT EXISTS statuses_ai AFTER INSERT ON statuses BEGIN
    INSERT INTO statuses_fts(rowid, content) VALUES (new.rowid, new.content);
END;

CREATE TRIGGER IF NOT EXISTS statuses_ad AFTER DELETE ON statuses BEGIN
    INSERT INTO statuses_fts(statuses_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
END;

CREATE TRIGGER IF NOT EXISTS statuses_au AFTER UPDATE ON statuses BEGIN
    INSERT INTO statuses_fts(statuses_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
    INSERT INTO statuses_fts(rowid, content) VALUES (new.rowid, new.content);
END;

-- Indexes for following table
CREATE INDEX IF NOT EXISTS idx_following_followed_id ON following(followed_id);
CREATE INDEX IF NOT EXISTS idx_following_follower_id ON following(follower_id);

-- Indexes for statuses table
CREATE INDEX IF NOT EXISTS idx_statuses_account_id ON statuses(account_id);

-- Indexes for status_activities table
CREATE INDEX IF NOT EXISTS idx_status_activities_account_activity ON status_activities(account_id, activity);
CREATE INDEX IF NOT EXISTS idx_status_activities_status_activity ON status_activities(status_id, activity);
`

// EnsureSchema creates any missing tables, search indexes and indexes. It
// never touches existing rows.
func (db *DB) EnsureSchema(ctx context.Context) error {
	return db.InTx(ctx, func(tx *Tx) error {
		return tx.EnsureSchema(ctx)
	})
}

// EnsureSchema creates any missing schema objects inside the transaction
func (tx *Tx) EnsureSchema(ctx context.Context) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpEnsureSchema))
	defer timer.ObserveDuration()

	if _, err := tx.tx.ExecContext(ctx, Schema); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpEnsureSchema).Inc()
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// TableExists reports whether a table (or virtual table) with the given name exists
func (db *DB) TableExists(name string) (bool, error) {
	var count int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", name, err)
	}
	return count > 0, nil
}

// IndexColumns returns the column lists of every index on a table
func (db *DB) IndexColumns(table string) ([][]string, error) {
	rows, err := db.conn.Query(`SELECT name FROM pragma_index_list(?)`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexes for %s: %w", table, err)
	}

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan index name: %w", err)
		}
		names = append(names, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating indexes: %w", err)
	}

	var result [][]string
	for _, name := range names {
		colRows, err := db.conn.Query(`SELECT name FROM pragma_index_info(?) ORDER BY seqno`, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read index %s: %w", name, err)
		}
		var cols []string
		for colRows.Next() {
			var col string
			if err := colRows.Scan(&col); err != nil {
				colRows.Close()
				return nil, fmt.Errorf("failed to scan index column: %w", err)
			}
			cols = append(cols, col)
		}
		colRows.Close()
		result = append(result, cols)
	}

	return result, nil
}
