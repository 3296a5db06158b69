package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountOperations(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.EnsureSchema(ctx))

	t.Run("UpsertAndGetAccount", func(t *testing.T) {
		err := db.InTx(ctx, func(tx *Tx) error {
			return tx.UpsertAccounts(ctx, []Account{{
				ID:          "109",
				Username:    strPtr("alice"),
				URL:         strPtr("https://mastodon.example/@alice"),
				DisplayName: strPtr("Alice"),
				Note:        strPtr("<p>hello</p>"),
			}})
		})
		require.NoError(t, err)

		account, err := db.GetAccount("109")
		require.NoError(t, err)
		require.NotNil(t, account)
		assert.Equal(t, "alice", *account.Username)
		assert.Equal(t, "Alice", *account.DisplayName)
	})

	t.Run("UpsertReplacesFields", func(t *testing.T) {
		err := db.InTx(ctx, func(tx *Tx) error {
			return tx.UpsertAccounts(ctx, []Account{{ID: "109", Username: strPtr("alice"), DisplayName: strPtr("Alice Again")}})
		})
		require.NoError(t, err)

		account, err := db.GetAccount("109")
		require.NoError(t, err)
		assert.Equal(t, "Alice Again", *account.DisplayName)
		assert.Nil(t, account.Note, "fields absent from the new record are overwritten")

		count, err := db.CountRows("accounts")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("EnsureAccountKeepsExisting", func(t *testing.T) {
		err := db.InTx(ctx, func(tx *Tx) error {
			if err := tx.EnsureAccount(ctx, "109"); err != nil {
				return err
			}
			return tx.EnsureAccount(ctx, "200")
		})
		require.NoError(t, err)

		account, err := db.GetAccount("109")
		require.NoError(t, err)
		assert.Equal(t, "Alice Again", *account.DisplayName)

		placeholder, err := db.GetAccount("200")
		require.NoError(t, err)
		require.NotNil(t, placeholder)
		assert.Nil(t, placeholder.Username)
	})

	t.Run("GetMissingAccount", func(t *testing.T) {
		account, err := db.GetAccount("nope")
		require.NoError(t, err)
		assert.Nil(t, account)
	})

	t.Run("SearchAccounts", func(t *testing.T) {
		err := db.InTx(ctx, func(tx *Tx) error {
			return tx.UpsertAccounts(ctx, []Account{{ID: "300", Username: strPtr("bob"), Note: strPtr("birdwatcher and gardener")}})
		})
		require.NoError(t, err)

		results, err := db.SearchAccounts("gardener", 10)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "300", results[0].ID)

		// Search index follows updates
		err = db.InTx(ctx, func(tx *Tx) error {
			return tx.UpsertAccounts(ctx, []Account{{ID: "300", Username: strPtr("bob"), Note: strPtr("sailor")}})
		})
		require.NoError(t, err)

		results, err = db.SearchAccounts("gardener", 10)
		require.NoError(t, err)
		assert.Empty(t, results)

		results, err = db.SearchAccounts("sailor", 10)
		require.NoError(t, err)
		assert.Len(t, results, 1)
	})
}

func TestFollowingOperations(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.EnsureSchema(ctx))

	first := time.Date(2024, 1, 2, 3, 4, 5, 6000, time.UTC)
	later := first.Add(48 * time.Hour)

	err := db.InTx(ctx, func(tx *Tx) error {
		if err := tx.UpsertAccounts(ctx, []Account{{ID: "1"}, {ID: "2"}}); err != nil {
			return err
		}
		return tx.InsertFollowing(ctx, []FollowingEdge{{FollowedID: "1", FollowerID: "2", FirstSeen: first}})
	})
	require.NoError(t, err)

	err = db.InTx(ctx, func(tx *Tx) error {
		return tx.InsertFollowing(ctx, []FollowingEdge{{FollowedID: "1", FollowerID: "2", FirstSeen: later}})
	})
	require.NoError(t, err)

	edges, err := db.ListFollowing()
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.True(t, edges[0].FirstSeen.Equal(first), "first_seen must keep the first discovery time, got %s", edges[0].FirstSeen)

	t.Run("UnknownEndpointRejected", func(t *testing.T) {
		err := db.InTx(ctx, func(tx *Tx) error {
			return tx.InsertFollowing(ctx, []FollowingEdge{{FollowedID: "1", FollowerID: "ghost", FirstSeen: first}})
		})
		assert.Error(t, err)
	})
}
