package archive

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"mastodon-to-sqlite/internal/mastodon"
	"mastodon-to-sqlite/internal/metrics"
)

const (
	ResourceFollowers  = "followers"
	ResourceFollowings = "followings"
	ResourceStatuses   = "statuses"
	ResourceBookmarks  = "bookmarks"
	ResourceFavourites = "favourites"
)

// Syncer drives the client's page sequences into the service, one pipeline
// at a time
type Syncer struct {
	client  *mastodon.Client
	service *Service
	logger  *slog.Logger
}

// NewSyncer creates a new syncer
func NewSyncer(client *mastodon.Client, service *Service, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		client:  client,
		service: service,
		logger:  logger,
	}
}

// Verify reports whether the credentials are accepted by the instance.
// Rejected credentials are not an error.
func (s *Syncer) Verify(ctx context.Context) (bool, error) {
	_, err := s.client.VerifyCredentials(ctx)
	if err == nil {
		return true, nil
	}

	var authErr *mastodon.AuthError
	if errors.As(err, &authErr) {
		s.logger.Warn("Credentials rejected", "status", authErr.StatusCode)
		return false, nil
	}
	return false, err
}

// AuthenticatedAccount fetches the account owning the access token and saves
// it, returning the raw record
func (s *Syncer) AuthenticatedAccount(ctx context.Context) (mastodon.Record, error) {
	account, err := s.client.VerifyCredentials(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.service.SaveAccounts(ctx, []mastodon.Record{account}, NoRelation()); err != nil {
		return nil, err
	}

	s.logger.Info("Authenticated", "account_id", RecordID(account), "username", account["username"])
	return account, nil
}

// SyncFollowers saves every account following the authenticated account
func (s *Syncer) SyncFollowers(ctx context.Context) (int, error) {
	self, err := s.selfID(ctx)
	if err != nil {
		return 0, err
	}

	return s.drain(ctx, ResourceFollowers, s.client.Followers(ctx, self), func(records []mastodon.Record) error {
		return s.service.SaveAccounts(ctx, records, Follower(self))
	})
}

// SyncFollowings saves every account the authenticated account follows
func (s *Syncer) SyncFollowings(ctx context.Context) (int, error) {
	self, err := s.selfID(ctx)
	if err != nil {
		return 0, err
	}

	return s.drain(ctx, ResourceFollowings, s.client.Following(ctx, self), func(records []mastodon.Record) error {
		return s.service.SaveAccounts(ctx, records, Followed(self))
	})
}

// SyncStatuses saves the authenticated account's statuses, optionally only
// those newer than sinceID
func (s *Syncer) SyncStatuses(ctx context.Context, sinceID string) (int, error) {
	self, err := s.selfID(ctx)
	if err != nil {
		return 0, err
	}

	return s.drain(ctx, ResourceStatuses, s.client.Statuses(ctx, self, sinceID), func(records []mastodon.Record) error {
		return s.service.SaveStatuses(ctx, records)
	})
}

// SyncBookmarks saves the authenticated account's bookmarked statuses
func (s *Syncer) SyncBookmarks(ctx context.Context) (int, error) {
	self, err := s.selfID(ctx)
	if err != nil {
		return 0, err
	}

	return s.drain(ctx, ResourceBookmarks, s.client.Bookmarks(ctx), func(records []mastodon.Record) error {
		return s.service.SaveActivities(ctx, records, self, ActivityBookmarked)
	})
}

// SyncFavourites saves the authenticated account's favourited statuses
func (s *Syncer) SyncFavourites(ctx context.Context) (int, error) {
	self, err := s.selfID(ctx)
	if err != nil {
		return 0, err
	}

	return s.drain(ctx, ResourceFavourites, s.client.Favourites(ctx), func(records []mastodon.Record) error {
		return s.service.SaveActivities(ctx, records, self, ActivityFavourited)
	})
}

func (s *Syncer) selfID(ctx context.Context) (string, error) {
	account, err := s.AuthenticatedAccount(ctx)
	if err != nil {
		return "", err
	}

	id := RecordID(account)
	if id == "" {
		return "", fmt.Errorf("authenticated account: %w", ErrMissingID)
	}
	return id, nil
}

// drain saves every page of pages, stopping at the first failure. Pages that
// were saved before a failure stay saved.
func (s *Syncer) drain(ctx context.Context, resource string, pages iter.Seq2[*mastodon.Page, error], save func([]mastodon.Record) error) (int, error) {
	start := time.Now()
	saved := 0

	err := func() error {
		for page, err := range pages {
			if err != nil {
				return err
			}
			if err := page.Err(); err != nil {
				return err
			}

			records, err := page.Records()
			if err != nil {
				return err
			}
			if err := save(records); err != nil {
				return err
			}

			saved += len(records)
			s.logger.Info("Saved page", "resource", resource, "records", len(records), "total", saved)
		}
		return nil
	}()

	result := "success"
	if err != nil {
		result = "error"
	}
	metrics.SyncDuration.WithLabelValues(resource, result).Observe(time.Since(start).Seconds())
	metrics.CollectTableRows(s.service.DB(), s.logger)

	if err != nil {
		s.logger.Error("Sync failed", "resource", resource, "saved", saved, "error", err)
		return saved, fmt.Errorf("failed to sync %s: %w", resource, err)
	}

	s.logger.Info("Sync complete", "resource", resource, "saved", saved, "duration", time.Since(start))
	return saved, nil
}
