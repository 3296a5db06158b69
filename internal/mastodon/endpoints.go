package mastodon

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"net/url"

	"mastodon-to-sqlite/internal/metrics"
)

const (
	accountsPageSize = "80"
	statusesPageSize = "40"
)

// VerifyCredentials fetches the account that owns the access token.
// A non-2xx answer is returned as an *AuthError.
func (c *Client) VerifyCredentials(ctx context.Context) (Record, error) {
	page, err := c.doRequest(ctx, metrics.OpVerifyCredentials, http.MethodGet, "accounts/verify_credentials", nil)
	if err != nil {
		return nil, err
	}

	if !page.OK() {
		return nil, &AuthError{StatusCode: page.StatusCode(), Body: string(page.Body)}
	}

	return page.Record()
}

// Followers lists the accounts following accountID
func (c *Client) Followers(ctx context.Context, accountID string) iter.Seq2[*Page, error] {
	path := fmt.Sprintf("accounts/%s/followers", url.PathEscape(accountID))
	params := url.Values{"limit": {accountsPageSize}}
	return c.paginate(ctx, metrics.OpFollowers, http.MethodGet, path, params)
}

// Following lists the accounts accountID follows
func (c *Client) Following(ctx context.Context, accountID string) iter.Seq2[*Page, error] {
	path := fmt.Sprintf("accounts/%s/following", url.PathEscape(accountID))
	params := url.Values{"limit": {accountsPageSize}}
	return c.paginate(ctx, metrics.OpFollowing, http.MethodGet, path, params)
}

// Statuses lists the statuses posted by accountID, newest first. When sinceID
// is set only statuses newer than it are returned.
func (c *Client) Statuses(ctx context.Context, accountID, sinceID string) iter.Seq2[*Page, error] {
	path := fmt.Sprintf("accounts/%s/statuses", url.PathEscape(accountID))
	params := url.Values{"limit": {statusesPageSize}}
	if sinceID != "" {
		params.Set("since_id", sinceID)
	}
	return c.paginate(ctx, metrics.OpStatuses, http.MethodGet, path, params)
}

// Bookmarks lists the statuses the authenticated account bookmarked
func (c *Client) Bookmarks(ctx context.Context) iter.Seq2[*Page, error] {
	params := url.Values{"limit": {statusesPageSize}}
	return c.paginate(ctx, metrics.OpBookmarks, http.MethodGet, "bookmarks", params)
}

// Favourites lists the statuses the authenticated account favourited
func (c *Client) Favourites(ctx context.Context) iter.Seq2[*Page, error] {
	params := url.Values{"limit": {statusesPageSize}}
	return c.paginate(ctx, metrics.OpFavourites, http.MethodGet, "favourites", params)
}
