package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mastodon-to-sqlite/internal/database"
	"mastodon-to-sqlite/internal/mastodon"
)

// ErrInvalidRelation is returned when a Relation is neither NoRelation nor a
// Followed/Follower relation with a non-empty account id
var ErrInvalidRelation = errors.New("invalid relation: an account list is related to at most one account")

// ErrMissingID is returned for records that have no id
var ErrMissingID = errors.New("record has no id")

// Activity is the kind of interaction recorded in status_activities
type Activity string

const (
	ActivityFavourited Activity = "favourited"
	ActivityBookmarked Activity = "bookmarked"
)

type relationKind int

const (
	relationNone relationKind = iota
	relationFollowed
	relationFollower
)

// Relation says how a batch of accounts relates to another account. The zero
// value is NoRelation.
type Relation struct {
	kind      relationKind
	accountID string
}

// NoRelation saves accounts without recording any edge
func NoRelation() Relation {
	return Relation{kind: relationNone}
}

// Followed records each saved account as a follower of accountID
func Followed(accountID string) Relation {
	return Relation{kind: relationFollowed, accountID: accountID}
}

// Follower records accountID as a follower of each saved account
func Follower(accountID string) Relation {
	return Relation{kind: relationFollower, accountID: accountID}
}

func (r Relation) validate() error {
	switch r.kind {
	case relationNone:
		if r.accountID != "" {
			return ErrInvalidRelation
		}
	case relationFollowed, relationFollower:
		if r.accountID == "" {
			return ErrInvalidRelation
		}
	default:
		return ErrInvalidRelation
	}
	return nil
}

func (r Relation) String() string {
	switch r.kind {
	case relationNone:
		return "none"
	case relationFollowed:
		return "followed:" + r.accountID
	case relationFollower:
		return "follower:" + r.accountID
	default:
		return "invalid"
	}
}

// Service persists API records into the archive database. It holds no state
// between calls; every save is a single transaction.
type Service struct {
	db     *database.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a service writing to db
func NewService(db *database.DB, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// DB returns the database the service writes to
func (s *Service) DB() *database.DB {
	return s.db
}

// SaveAccounts upserts accounts and, depending on rel, records a following
// edge between each account and the related account. Edges keep the
// first_seen of their first insert.
func (s *Service) SaveAccounts(ctx context.Context, accounts []mastodon.Record, rel Relation) error {
	if err := rel.validate(); err != nil {
		return err
	}

	rows := make([]database.Account, 0, len(accounts))
	for _, raw := range accounts {
		row, err := accountRow(TransformAccount(raw))
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	var edges []database.FollowingEdge
	if rel.kind != relationNone {
		firstSeen := s.now().UTC()
		edges = make([]database.FollowingEdge, 0, len(rows))
		for _, row := range rows {
			edge := database.FollowingEdge{FirstSeen: firstSeen}
			if rel.kind == relationFollowed {
				edge.FollowedID, edge.FollowerID = rel.accountID, row.ID
			} else {
				edge.FollowedID, edge.FollowerID = row.ID, rel.accountID
			}
			edges = append(edges, edge)
		}
	}

	err := s.db.InTx(ctx, func(tx *database.Tx) error {
		if err := tx.EnsureSchema(ctx); err != nil {
			return err
		}
		if err := tx.UpsertAccounts(ctx, rows); err != nil {
			return err
		}
		if len(edges) == 0 {
			return nil
		}
		if err := tx.EnsureAccount(ctx, rel.accountID); err != nil {
			return err
		}
		return tx.InsertFollowing(ctx, edges)
	})
	if err != nil {
		return fmt.Errorf("failed to save accounts: %w", err)
	}

	s.logger.Debug("Saved accounts", "count", len(rows), "relation", rel.String(), "edges", len(edges))
	return nil
}

// SaveStatuses upserts statuses together with their authors
func (s *Service) SaveStatuses(ctx context.Context, statuses []mastodon.Record) error {
	authors, rows, err := statusRows(statuses)
	if err != nil {
		return err
	}

	err = s.db.InTx(ctx, func(tx *database.Tx) error {
		if err := tx.EnsureSchema(ctx); err != nil {
			return err
		}
		if err := saveAuthors(ctx, tx, authors, rows); err != nil {
			return err
		}
		return tx.UpsertStatuses(ctx, rows)
	})
	if err != nil {
		return fmt.Errorf("failed to save statuses: %w", err)
	}

	s.logger.Debug("Saved statuses", "count", len(rows))
	return nil
}

// SaveActivities upserts statuses and records that accountID performed
// activity on each of them
func (s *Service) SaveActivities(ctx context.Context, statuses []mastodon.Record, accountID string, activity Activity) error {
	if accountID == "" {
		return fmt.Errorf("failed to save activities: %w", ErrMissingID)
	}

	authors, rows, err := statusRows(statuses)
	if err != nil {
		return err
	}

	activities := make([]database.StatusActivity, 0, len(rows))
	for _, row := range rows {
		activities = append(activities, database.StatusActivity{
			AccountID: accountID,
			Activity:  string(activity),
			StatusID:  row.ID,
		})
	}

	err = s.db.InTx(ctx, func(tx *database.Tx) error {
		if err := tx.EnsureSchema(ctx); err != nil {
			return err
		}
		if err := saveAuthors(ctx, tx, authors, rows); err != nil {
			return err
		}
		if err := tx.UpsertStatuses(ctx, rows); err != nil {
			return err
		}
		if err := tx.EnsureAccount(ctx, accountID); err != nil {
			return err
		}
		return tx.UpsertStatusActivities(ctx, activities)
	})
	if err != nil {
		return fmt.Errorf("failed to save %s statuses: %w", activity, err)
	}

	s.logger.Debug("Saved activities", "count", len(activities), "activity", activity, "account_id", accountID)
	return nil
}

// saveAuthors upserts the embedded authors and inserts a bare row for any
// author referenced only by id
func saveAuthors(ctx context.Context, tx *database.Tx, authors []database.Account, rows []database.Status) error {
	if err := tx.UpsertAccounts(ctx, authors); err != nil {
		return err
	}

	known := make(map[string]bool, len(authors))
	for _, a := range authors {
		known[a.ID] = true
	}
	for _, row := range rows {
		if known[row.AccountID] {
			continue
		}
		if err := tx.EnsureAccount(ctx, row.AccountID); err != nil {
			return err
		}
		known[row.AccountID] = true
	}
	return nil
}

func accountRow(r mastodon.Record) (database.Account, error) {
	id := stringField(r, "id")
	if id == nil || *id == "" {
		return database.Account{}, fmt.Errorf("account: %w", ErrMissingID)
	}
	return database.Account{
		ID:          *id,
		Username:    stringField(r, "username"),
		URL:         stringField(r, "url"),
		DisplayName: stringField(r, "display_name"),
		Note:        stringField(r, "note"),
	}, nil
}

// statusRows transforms raw statuses into rows and collects their distinct
// authors so the foreign key from statuses to accounts holds
func statusRows(statuses []mastodon.Record) ([]database.Account, []database.Status, error) {
	var authors []database.Account
	seen := make(map[string]bool)
	rows := make([]database.Status, 0, len(statuses))

	for _, raw := range statuses {
		if account, ok := nestedAccount(raw); ok {
			author, err := accountRow(TransformAccount(account))
			if err != nil {
				return nil, nil, fmt.Errorf("status author: %w", err)
			}
			if !seen[author.ID] {
				seen[author.ID] = true
				authors = append(authors, author)
			}
		}

		status := TransformStatus(raw)
		id := stringField(status, "id")
		if id == nil || *id == "" {
			return nil, nil, fmt.Errorf("status: %w", ErrMissingID)
		}
		accountID := stringField(status, "account_id")
		if accountID == nil || *accountID == "" {
			return nil, nil, fmt.Errorf("status %s has no account: %w", *id, ErrMissingID)
		}

		rows = append(rows, database.Status{
			ID:        *id,
			AccountID: *accountID,
			Content:   stringField(status, "content"),
			CreatedAt: stringField(status, "created_at"),
		})
	}

	return authors, rows, nil
}
