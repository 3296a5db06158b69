package main

import (
	"context"
	"fmt"
	"html"
	"io"
	"os"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/spf13/cobra"

	"mastodon-to-sqlite/internal/database"
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Full-text search over saved accounts and statuses",
}

var searchAccountsCmd = &cobra.Command{
	Use:   "accounts DB_PATH QUERY",
	Short: "Search saved accounts by username, display name and bio",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		db, err := a.openDatabase(args[:1])
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			return err
		}

		accounts, err := db.SearchAccounts(args[1], searchLimit)
		if err != nil {
			return err
		}
		printAccounts(os.Stdout, accounts)
		return nil
	}),
}

var searchStatusesCmd = &cobra.Command{
	Use:     "statuses DB_PATH QUERY",
	Short:   "Search saved statuses by content",
	Example: `  mastodon-to-sqlite search statuses mastodon.db 'sourdough OR bread'`,
	Args:    cobra.ExactArgs(2),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		db, err := a.openDatabase(args[:1])
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			return err
		}

		statuses, err := db.SearchStatuses(args[1], searchLimit)
		if err != nil {
			return err
		}
		printStatuses(os.Stdout, statuses)
		return nil
	}),
}

func init() {
	searchCmd.PersistentFlags().IntVarP(&searchLimit, "limit", "n", 20, "Maximum number of results")

	searchCmd.AddCommand(searchAccountsCmd, searchStatusesCmd)
	rootCmd.AddCommand(searchCmd)
}

var stripTags = bluemonday.StrictPolicy()

// plainText renders status and bio HTML as a single line of text
func plainText(s *string) string {
	if s == nil {
		return ""
	}
	text := strings.NewReplacer("</p>", " ", "<br>", " ", "<br/>", " ", "<br />", " ").Replace(*s)
	text = html.UnescapeString(stripTags.Sanitize(text))
	return strings.Join(strings.Fields(text), " ")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func printAccounts(w io.Writer, accounts []*database.Account) {
	if len(accounts) == 0 {
		fmt.Fprintln(w, "No matching accounts.")
		return
	}
	for _, account := range accounts {
		fmt.Fprintf(w, "@%s (%s) %s\n", deref(account.Username), deref(account.DisplayName), deref(account.URL))
		if note := plainText(account.Note); note != "" {
			fmt.Fprintf(w, "  %s\n", note)
		}
	}
}

func printStatuses(w io.Writer, statuses []*database.Status) {
	if len(statuses) == 0 {
		fmt.Fprintln(w, "No matching statuses.")
		return
	}
	for _, status := range statuses {
		fmt.Fprintf(w, "%s [%s] %s\n", status.ID, deref(status.CreatedAt), plainText(status.Content))
	}
}
