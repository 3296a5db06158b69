package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// FileStore keeps credentials in a JSON file. Comments and trailing commas
// are accepted when reading.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by the file at path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the location of the credentials file
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the credentials file
func (s *FileStore) Load() (*Credentials, error) {
	fields, err := s.read()
	if err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, ErrNotFound
	}

	var creds Credentials
	for key, dst := range map[string]*string{
		"mastodon_domain":       &creds.Domain,
		"mastodon_access_token": &creds.AccessToken,
	} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return nil, fmt.Errorf("invalid %s in %s: %w", key, s.path, err)
		}
	}

	if err := creds.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	return &creds, nil
}

// Save writes the credentials, keeping any other keys already in the file.
// The file is only readable by its owner.
func (s *FileStore) Save(creds *Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}

	fields, err := s.read()
	if err != nil {
		return err
	}
	if fields == nil {
		fields = make(map[string]json.RawMessage)
	}

	for key, value := range map[string]string{
		"mastodon_domain":       creds.Domain,
		"mastodon_access_token": creds.AccessToken,
	} {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", key, err)
		}
		fields[key] = raw
	}

	data, err := json.MarshalIndent(fields, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(s.path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.path, err)
	}
	return os.Chmod(s.path, 0o600)
}

// read returns the top-level fields of the file, or nil if it does not exist
func (s *FileStore) read() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	data, err = hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}

	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	return fields, nil
}
