package client

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/oauth2"

	"github.com/ArionMiles/budgetbrief/pkg/api"
)

const tokenExt = ".json"

// TokenStore keeps one bank token per file in a directory. Each file is one
// credential set; its name without the extension is the credential ID.
type TokenStore struct {
	dir    string
	config *oauth2.Config
	logger *slog.Logger

	// locks serialise refresh-and-persist per credential so two fetches never
	// race on one file while different credentials refresh in parallel.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTokenStore creates a TokenStore that refreshes tokens with config.
func NewTokenStore(dir string, config *oauth2.Config, logger *slog.Logger) *TokenStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenStore{
		dir:    dir,
		config: config,
		logger: logger.With("component", "tokenstore"),
		locks:  make(map[string]*sync.Mutex),
	}
}

// lock acquires the mutex for name and returns its release func.
func (s *TokenStore) lock(name string) func() {
	s.mu.Lock()
	m, ok := s.locks[name]
	if !ok {
		m = &sync.Mutex{}
		s.locks[name] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// Dir returns the directory tokens are kept in.
func (s *TokenStore) Dir() string { return s.dir }

// Credentials lists stored credential sets sorted by ID. A missing directory
// yields an empty list.
func (s *TokenStore) Credentials(_ context.Context) ([]api.Credential, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading token directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), tokenExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), tokenExt))
	}
	sort.Strings(names)

	creds := make([]api.Credential, 0, len(names))
	for _, n := range names {
		creds = append(creds, &fileCredential{store: s, name: n})
	}
	return creds, nil
}

// Load reads the stored token for name without refreshing it.
func (s *TokenStore) Load(name string) (*oauth2.Token, error) {
	if err := ValidName(name); err != nil {
		return nil, err
	}
	return TokenFromFile(s.path(name))
}

// Save stores tok under name, replacing any existing token.
func (s *TokenStore) Save(name string, tok *oauth2.Token) error {
	if err := ValidName(name); err != nil {
		return err
	}
	defer s.lock(name)()
	return SaveToken(s.path(name), tok)
}

func (s *TokenStore) path(name string) string {
	return filepath.Join(s.dir, name+tokenExt)
}

// ValidName reports whether name can be used as a credential set ID.
func ValidName(name string) error {
	if name == "" {
		return errors.New("credential name is empty")
	}
	for _, r := range name {
		ok := r == '-' || r == '_' || r == '.' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			return fmt.Errorf("credential name %q: only letters, digits, '-', '_' and '.' are allowed", name)
		}
	}
	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("credential name %q must not start with '.'", name)
	}
	return nil
}

type fileCredential struct {
	store *TokenStore
	name  string
}

func (c *fileCredential) ID() string { return c.name }

// Token returns a valid access token, refreshing and persisting it when expired.
func (c *fileCredential) Token(ctx context.Context) (string, error) {
	s := c.store
	defer s.lock(c.name)()

	path := s.path(c.name)
	stored, err := TokenFromFile(path)
	if err != nil {
		return "", &api.CredentialError{CredentialID: c.name, Err: fmt.Errorf("loading token: %w", err)}
	}

	fresh, err := s.config.TokenSource(ctx, stored).Token()
	if err != nil {
		return "", &api.CredentialError{CredentialID: c.name, Err: fmt.Errorf("refreshing token: %w", err)}
	}

	if fresh.AccessToken != stored.AccessToken {
		s.logger.Debug("token refreshed", "credential", c.name, "expiry", fresh.Expiry)
		if err := SaveToken(path, fresh); err != nil {
			// The token is still usable for this run.
			s.logger.Warn("failed to persist refreshed token", "credential", c.name, "error", err)
		}
	}
	return fresh.AccessToken, nil
}
