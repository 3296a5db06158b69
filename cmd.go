package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"mastodon-to-sqlite/internal/archive"
)

var sinceID string

var followersCmd = &cobra.Command{
	Use:   "followers [DB_PATH]",
	Short: "Save followers for the authenticated user",
	Args:  cobra.MaximumNArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		return runSync(ctx, a, args, "followers", func(s *archive.Syncer) (int, error) {
			return s.SyncFollowers(ctx)
		})
	}),
}

var followingsCmd = &cobra.Command{
	Use:   "followings [DB_PATH]",
	Short: "Save followings for the authenticated user",
	Args:  cobra.MaximumNArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		return runSync(ctx, a, args, "followings", func(s *archive.Syncer) (int, error) {
			return s.SyncFollowings(ctx)
		})
	}),
}

var statusesCmd = &cobra.Command{
	Use:   "statuses [DB_PATH]",
	Short: "Save statuses for the authenticated user",
	Example: `  # Everything
  mastodon-to-sqlite statuses mastodon.db

  # Only statuses newer than a known one
  mastodon-to-sqlite statuses mastodon.db --since-id 109876543210987654`,
	Args: cobra.MaximumNArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		return runSync(ctx, a, args, "statuses", func(s *archive.Syncer) (int, error) {
			return s.SyncStatuses(ctx, sinceID)
		})
	}),
}

var bookmarksCmd = &cobra.Command{
	Use:   "bookmarks [DB_PATH]",
	Short: "Save bookmarks for the authenticated user",
	Args:  cobra.MaximumNArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		return runSync(ctx, a, args, "bookmarks", func(s *archive.Syncer) (int, error) {
			return s.SyncBookmarks(ctx)
		})
	}),
}

var favouritesCmd = &cobra.Command{
	Use:   "favourites [DB_PATH]",
	Short: "Save favourites for the authenticated user",
	Args:  cobra.MaximumNArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		return runSync(ctx, a, args, "favourites", func(s *archive.Syncer) (int, error) {
			return s.SyncFavourites(ctx)
		})
	}),
}

func init() {
	statusesCmd.Flags().StringVar(&sinceID, "since-id", "", "Only save statuses newer than this id")

	rootCmd.AddCommand(followersCmd, followingsCmd, statusesCmd, bookmarksCmd, favouritesCmd)
}

func runSync(ctx context.Context, a *app, args []string, label string, sync func(*archive.Syncer) (int, error)) error {
	syncer, db, err := a.syncer(args)
	if err != nil {
		return err
	}
	defer db.Close()

	a.logger.Info("Importing "+label, "database", a.databasePath(args))
	saved, err := sync(syncer)
	if err != nil {
		return err
	}

	fmt.Printf("Saved %d %s to %s\n", saved, label, a.databasePath(args))
	return nil
}
