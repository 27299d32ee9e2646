// Package auth resolves which backend credential is usable: a stored or
// environment API key (stateless mode) or the CLI's OAuth credentials file
// (resumable mode).
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/agentdeck/core"
)

// Mode names the backend strategy a credential unlocks.
type Mode string

const (
	ModeAPIKey Mode = "api_key"
	ModeOAuth  Mode = "oauth"
)

// ConfigKeyAPIKey is the config store key of a stored API key.
const ConfigKeyAPIKey = "api_key"

const (
	apiKeyPrefix     = "sk-ant-api"
	setupTokenPrefix = "sk-ant-oat"
	expirySkew       = 60 * time.Second
)

// ErrInvalidCredential is returned for keys or tokens with the wrong prefix.
var ErrInvalidCredential = errors.New("invalid credential format")

// Status describes the current authentication state.
type Status struct {
	Authenticated bool   `json:"authenticated"`
	Mode          Mode   `json:"mode,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// Err returns an *core.AuthenticationError when not authenticated.
func (s Status) Err() error {
	if s.Authenticated {
		return nil
	}
	return &core.AuthenticationError{Reason: s.Reason}
}

// Options configures a Resolver.
type Options struct {
	// CredentialsPath is the CLI OAuth credentials file.
	CredentialsPath string
	// EnvAPIKey is used when no key is stored.
	EnvAPIKey string
	Now       func() time.Time
}

// Resolver answers authentication questions from the config store and the
// credentials file.
type Resolver struct {
	config core.ConfigStore
	opts   Options
}

// DefaultCredentialsPath returns ~/.claude/.credentials.json.
func DefaultCredentialsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".claude", ".credentials.json")
	}
	return filepath.Join(home, ".claude", ".credentials.json")
}

// NewResolver creates a Resolver.
func NewResolver(config core.ConfigStore, optFns ...func(o *Options)) *Resolver {
	opts := Options{
		CredentialsPath: DefaultCredentialsPath(),
		Now:             time.Now,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Resolver{config: config, opts: opts}
}

// APIKey returns the stored key, falling back to the environment key.
func (r *Resolver) APIKey(ctx context.Context) (string, error) {
	key, ok, err := r.config.GetConfig(ctx, ConfigKeyAPIKey)
	if err != nil {
		return "", err
	}
	if ok && key != "" {
		return key, nil
	}
	return r.opts.EnvAPIKey, nil
}

// Status reports whether a usable credential exists and which mode it enables.
func (r *Resolver) Status(ctx context.Context) (Status, error) {
	key, err := r.APIKey(ctx)
	if err != nil {
		return Status{}, err
	}
	if key != "" {
		return Status{Authenticated: true, Mode: ModeAPIKey}, nil
	}

	creds, err := r.readCredentials()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Status{Reason: "no credentials found"}, nil
		}
		return Status{Reason: fmt.Sprintf("unreadable credentials: %v", err)}, nil
	}

	if creds.AccessToken == "" {
		return Status{Reason: "no access token in credentials"}, nil
	}

	if expiry, ok := creds.expiry(); ok && !r.opts.Now().Before(expiry.Add(-expirySkew)) {
		return Status{Reason: "token expired"}, nil
	}

	return Status{Authenticated: true, Mode: ModeOAuth}, nil
}

// SetAPIKey stores an Anthropic API key.
func (r *Resolver) SetAPIKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if !strings.HasPrefix(key, apiKeyPrefix) {
		return fmt.Errorf("%w: api key must start with %s", ErrInvalidCredential, apiKeyPrefix)
	}
	return r.config.SetConfig(ctx, ConfigKeyAPIKey, key)
}

// RemoveAPIKey deletes the stored API key.
func (r *Resolver) RemoveAPIKey(ctx context.Context) error {
	return r.config.DeleteConfig(ctx, ConfigKeyAPIKey)
}

// SetSetupToken writes a long-lived CLI token to the credentials file.
func (r *Resolver) SetSetupToken(token string) error {
	token = strings.TrimSpace(token)
	if !strings.HasPrefix(token, setupTokenPrefix) {
		return fmt.Errorf("%w: setup token must start with %s", ErrInvalidCredential, setupTokenPrefix)
	}

	payload, err := json.Marshal(credentialsFile{OAuth: &oauthCredentials{AccessToken: token}})
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(r.opts.CredentialsPath), 0o700); err != nil {
		return fmt.Errorf("create credentials directory: %w", err)
	}

	return os.WriteFile(r.opts.CredentialsPath, payload, 0o600)
}

type credentialsFile struct {
	OAuth *oauthCredentials `json:"claudeAiOauth,omitempty"`
}

type oauthCredentials struct {
	AccessToken string          `json:"accessToken"`
	ExpiresAt   json.RawMessage `json:"expiresAt,omitempty"`
}

// expiry accepts epoch milliseconds (number or numeric string) and RFC 3339.
func (c *oauthCredentials) expiry() (time.Time, bool) {
	raw := strings.Trim(strings.TrimSpace(string(c.ExpiresAt)), `"`)
	if raw == "" || raw == "null" {
		return time.Time{}, false
	}

	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms), true
	}

	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}

	return time.Time{}, false
}

func (r *Resolver) readCredentials() (*oauthCredentials, error) {
	data, err := os.ReadFile(r.opts.CredentialsPath)
	if err != nil {
		return nil, err
	}

	var file credentialsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	if file.OAuth != nil {
		return file.OAuth, nil
	}

	// Some installs store the credential object at the top level.
	var flat oauthCredentials
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, err
	}

	return &flat, nil
}
