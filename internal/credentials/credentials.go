package credentials

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when no credentials have been stored yet
	ErrNotFound = errors.New("credentials not found")

	// ErrInvalid is returned for credentials missing the domain or the token
	ErrInvalid = errors.New("credentials must include a domain and an access token")
)

// Credentials identify one account on one Mastodon instance
type Credentials struct {
	Domain      string `json:"mastodon_domain"`
	AccessToken string `json:"mastodon_access_token"`
}

// Validate normalizes the domain and checks both fields are present
func (c *Credentials) Validate() error {
	if c == nil {
		return ErrInvalid
	}

	c.Domain = NormalizeDomain(c.Domain)
	c.AccessToken = strings.TrimSpace(c.AccessToken)
	if c.Domain == "" || c.AccessToken == "" {
		return ErrInvalid
	}
	return nil
}

// NormalizeDomain strips whitespace, a scheme and trailing slashes and
// lowercases the host so that "https://Mastodon.Social/" becomes
// "mastodon.social"
func NormalizeDomain(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	return strings.TrimRight(domain, "/")
}

// Store saves and loads credentials
type Store interface {
	Load() (*Credentials, error)
	Save(creds *Credentials) error
}

// Credential store kinds, as accepted by NewStore and the configuration
const (
	KindFile    = "file"
	KindKeyring = "keyring"
)

// NewStore returns the store for kind. path is only used by the file store.
func NewStore(kind, path string) (Store, error) {
	switch kind {
	case KindFile, "":
		return NewFileStore(path), nil
	case KindKeyring:
		return NewKeyringStore(), nil
	default:
		return nil, fmt.Errorf("unknown credential store %q", kind)
	}
}
