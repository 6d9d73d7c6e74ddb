// Package auth manages the marketplace OAuth2 credential: a token
// document on disk, refreshed ahead of expiry so unattended runs never
// start with a dead token.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"investhor/internal/config"
)

// FileProvider serves bearer tokens from a JSON token file and rotates
// the file when expiry falls inside the refresh window. Safe for
// concurrent use.
type FileProvider struct {
	oauth  *oauth2.Config
	path   string
	window time.Duration

	mu    sync.Mutex
	token *oauth2.Token
	now   func() time.Time
}

func NewFileProvider(cfg config.AuthConfig, path string) *FileProvider {
	window := cfg.RefreshWindow
	if window <= 0 {
		window = 48 * time.Hour
	}
	return &FileProvider{
		oauth:  oauthConfig(cfg),
		path:   path,
		window: window,
		now:    time.Now,
	}
}

func oauthConfig(cfg config.AuthConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.AuthURL,
			TokenURL: cfg.TokenURL,
		},
	}
}

// Token returns a live access token, refreshing and rewriting the token
// file first when the stored one is about to expire.
func (p *FileProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token == nil {
		tok, err := readTokenFile(p.path)
		if err != nil {
			return "", err
		}
		p.token = tok
	}

	tok := p.token
	if !tok.Expiry.IsZero() && p.now().Add(p.window).After(tok.Expiry) {
		// Mark the token expired so the oauth2 source refreshes now
		// instead of waiting until it actually lapses mid-run.
		stale := *tok
		stale.Expiry = p.now().Add(-time.Minute)
		refreshed, err := p.oauth.TokenSource(ctx, &stale).Token()
		if err != nil {
			return "", fmt.Errorf("refresh token: %w", err)
		}
		if err := writeTokenFile(p.path, refreshed); err != nil {
			return "", err
		}
		p.token = refreshed
		tok = refreshed
	}

	if tok.AccessToken == "" {
		return "", fmt.Errorf("token file %s has no access token", p.path)
	}
	return tok.AccessToken, nil
}

func readTokenFile(path string) (*oauth2.Token, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("parse token file %s: %w", path, err)
	}
	return &tok, nil
}

func writeTokenFile(path string, tok *oauth2.Token) error {
	raw, err := json.MarshalIndent(tok, "", "    ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(raw, '\n'), 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}

// Bootstrap runs the one-time interactive authorization: prints the
// consent URL, exchanges the pasted code and seeds the token file.
func Bootstrap(ctx context.Context, cfg config.AuthConfig, path string, prompt func(url string) (code string, err error)) error {
	oc := oauthConfig(cfg)
	code, err := prompt(oc.AuthCodeURL("state", oauth2.AccessTypeOffline))
	if err != nil {
		return err
	}
	tok, err := oc.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange authorization code: %w", err)
	}
	return writeTokenFile(path, tok)
}

// Static is a fixed token source for tests and one-off invocations.
type Static string

func (s Static) Token(context.Context) (string, error) { return string(s), nil }
