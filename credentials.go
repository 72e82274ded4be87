package network

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CredentialSet is the credential state held by the refresh coordinator.
type CredentialSet struct {
	AccessToken  string
	RefreshToken string
	// ExpiresAt is derived from the access token's JWT exp claim when
	// decodable, else from the server's expires_in. Zero means unknown;
	// an unknown expiry is treated as fresh until the server rejects it.
	ExpiresAt time.Time
}

// Fresh reports whether the access credential is usable without a refresh,
// given how far ahead of expiry a refresh should be triggered.
func (c *CredentialSet) Fresh(threshold time.Duration, now time.Time) bool {
	if c == nil || c.AccessToken == "" {
		return false
	}
	if c.ExpiresAt.IsZero() {
		return true
	}
	return c.ExpiresAt.Sub(now) > threshold
}

// TokenStore persists credentials between client instances. Implementations
// may be backed by files, keychains or remote stores and may block; all
// methods receive a context.
type TokenStore interface {
	Access(ctx context.Context) (string, error)
	SetAccess(ctx context.Context, token string) error
	Refresh(ctx context.Context) (string, error)
	SetRefresh(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// MemoryTokenStore is the default process-local TokenStore.
type MemoryTokenStore struct {
	mu      sync.Mutex
	access  string
	refresh string
}

// NewMemoryTokenStore returns an empty in-memory store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Access(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.access, nil
}

func (s *MemoryTokenStore) SetAccess(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = token
	return nil
}

func (s *MemoryTokenStore) Refresh(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refresh, nil
}

func (s *MemoryTokenStore) SetRefresh(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh = token
	return nil
}

func (s *MemoryTokenStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = ""
	s.refresh = ""
	return nil
}

// AuthConfig configures credential handling for a client.
type AuthConfig struct {
	// LoginURL is the authorization server's login endpoint.
	LoginURL string
	// RefreshURL is the authorization server's refresh endpoint.
	RefreshURL string
	// Store persists credentials. Default: NewMemoryTokenStore().
	Store TokenStore
	// RefreshThreshold is how far before expiry a refresh is triggered.
	// Default 30s.
	RefreshThreshold time.Duration
	// Header and Scheme control credential attachment.
	// Defaults: "Authorization", "Bearer".
	Header string
	Scheme string
}

func (cfg AuthConfig) withDefaults() AuthConfig {
	if cfg.Store == nil {
		cfg.Store = NewMemoryTokenStore()
	}
	if cfg.RefreshThreshold <= 0 {
		cfg.RefreshThreshold = 30 * time.Second
	}
	if cfg.Header == "" {
		cfg.Header = "Authorization"
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "Bearer"
	}
	return cfg
}

// tokenResponse is the wire shape both auth endpoints return.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
}

// refreshCall is one in-flight refresh shared by every caller that needs a
// fresh credential while it runs. creds and err are written before done is
// closed.
type refreshCall struct {
	done  chan struct{}
	creds *CredentialSet
	err   error
}

// Authenticator owns credential state and serializes refreshes: at most one
// refresh is in flight at a time, and every concurrent caller observes that
// one refresh's outcome. Wire calls to the authorization server go through
// the transport the client was built with.
type Authenticator struct {
	cfg     AuthConfig
	store   TokenStore
	doer    RoundTripper
	logger  Logger
	debug   *DebugConfig
	metrics *MetricsCollector

	mu       sync.Mutex
	creds    *CredentialSet
	inflight *refreshCall
}

// NewAuthenticator creates a coordinator using doer for wire calls.
func NewAuthenticator(cfg AuthConfig, doer RoundTripper) *Authenticator {
	cfg = cfg.withDefaults()
	return &Authenticator{
		cfg:   cfg,
		store: cfg.Store,
		doer:  doer,
	}
}

// Token returns a valid access credential, refreshing first if the stored
// one is within the refresh threshold of expiry.
func (a *Authenticator) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	if a.creds == nil {
		creds, err := a.loadLocked(ctx)
		if err != nil {
			a.mu.Unlock()
			return "", err
		}
		a.creds = creds
	}
	creds := a.creds
	a.mu.Unlock()

	if creds.Fresh(a.cfg.RefreshThreshold, time.Now()) {
		return creds.AccessToken, nil
	}

	refreshed, err := a.RefreshCredential(ctx)
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

// loadLocked pulls persisted credentials from the store. Caller holds a.mu.
func (a *Authenticator) loadLocked(ctx context.Context) (*CredentialSet, error) {
	access, err := a.store.Access(ctx)
	if err != nil {
		return nil, a.authError("reading access credential from store", err)
	}
	refresh, err := a.store.Refresh(ctx)
	if err != nil {
		return nil, a.authError("reading refresh credential from store", err)
	}
	creds := &CredentialSet{AccessToken: access, RefreshToken: refresh}
	if access != "" {
		creds.ExpiresAt = decodeExpiry(access, 0)
	}
	return creds, nil
}

// Login exchanges caller-supplied credentials (serialized as JSON) for a
// CredentialSet at the login endpoint and persists it.
func (a *Authenticator) Login(ctx context.Context, credentials interface{}) (*CredentialSet, error) {
	if a.cfg.LoginURL == "" {
		return nil, a.authError("login endpoint not configured", nil)
	}
	creds, err := a.exchange(ctx, a.cfg.LoginURL, credentials)
	if err != nil {
		if a.metrics != nil {
			a.metrics.RecordAuthLogin("failure")
		}
		return nil, err
	}
	if a.metrics != nil {
		a.metrics.RecordAuthLogin("success")
	}
	if err := a.persist(ctx, creds); err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.creds = creds
	a.mu.Unlock()
	return creds, nil
}

// RefreshCredential exchanges the stored refresh credential for a new
// CredentialSet. Concurrent callers join the refresh already in flight and
// receive its outcome; a second wire call is never started while one runs.
// On failure all waiters receive the same error and stored credentials are
// cleared, so later calls fail closed instead of replaying a known-bad
// credential.
func (a *Authenticator) RefreshCredential(ctx context.Context) (*CredentialSet, error) {
	a.mu.Lock()
	if call := a.inflight; call != nil {
		a.mu.Unlock()
		select {
		case <-call.done:
			return call.creds, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	// Registered before any suspension so a concurrent caller can never
	// start a second refresh.
	call := &refreshCall{done: make(chan struct{})}
	a.inflight = call
	refreshToken := ""
	if a.creds != nil {
		refreshToken = a.creds.RefreshToken
	}
	a.mu.Unlock()

	a.logAuth("refreshing credential")
	creds, err := a.doRefresh(ctx, refreshToken)

	a.mu.Lock()
	a.inflight = nil
	if err != nil {
		a.creds = nil
	} else {
		a.creds = creds
	}
	a.mu.Unlock()

	if err != nil {
		// Fail closed: a known-bad credential must not be replayed.
		_ = a.store.Clear(context.WithoutCancel(ctx))
		a.logAuth("credential refresh failed, cleared stored credentials", "error", err)
		if a.metrics != nil {
			a.metrics.RecordAuthRefresh("failure")
		}
	} else {
		a.logAuth("credential refreshed", "expiresAt", creds.ExpiresAt)
		if a.metrics != nil {
			a.metrics.RecordAuthRefresh("success")
		}
	}

	call.creds, call.err = creds, err
	close(call.done)
	return creds, err
}

func (a *Authenticator) doRefresh(ctx context.Context, refreshToken string) (*CredentialSet, error) {
	if refreshToken == "" {
		token, err := a.store.Refresh(ctx)
		if err != nil {
			return nil, a.authError("reading refresh credential from store", err)
		}
		refreshToken = token
	}
	if refreshToken == "" {
		return nil, a.authError("no refresh credential available", ErrNoCredentials)
	}
	if a.cfg.RefreshURL == "" {
		return nil, a.authError("refresh endpoint not configured", nil)
	}

	creds, err := a.exchange(ctx, a.cfg.RefreshURL, map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return nil, err
	}
	if creds.RefreshToken == "" {
		// Servers that do not rotate refresh credentials keep the old one.
		creds.RefreshToken = refreshToken
	}
	if err := a.persist(ctx, creds); err != nil {
		return nil, err
	}
	return creds, nil
}

// Logout clears stored and cached credentials.
func (a *Authenticator) Logout(ctx context.Context) error {
	a.mu.Lock()
	a.creds = nil
	a.mu.Unlock()
	if err := a.store.Clear(ctx); err != nil {
		return a.authError("clearing credential store", err)
	}
	return nil
}

// exchange POSTs a JSON payload to an authorization endpoint and parses the
// returned token envelope.
func (a *Authenticator) exchange(ctx context.Context, url string, payload interface{}) (*CredentialSet, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, a.authError("encoding credential payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, a.authError("building credential request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.doer.RoundTrip(req)
	if err != nil {
		return nil, a.authError("credential exchange failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, a.authError("reading credential response", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &ClientError{
			Type:       ErrorTypeAuth,
			Message:    fmt.Sprintf("authorization server returned %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
			Body:       respBody,
			URL:        url,
			Timestamp:  time.Now(),
		}
	}

	var token tokenResponse
	if err := json.Unmarshal(respBody, &token); err != nil {
		return nil, a.authError("decoding credential response", err)
	}
	if token.AccessToken == "" {
		return nil, a.authError("authorization server returned no access credential", nil)
	}

	return &CredentialSet{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    decodeExpiry(token.AccessToken, token.ExpiresIn),
	}, nil
}

func (a *Authenticator) persist(ctx context.Context, creds *CredentialSet) error {
	if err := a.store.SetAccess(ctx, creds.AccessToken); err != nil {
		return a.authError("persisting access credential", err)
	}
	if creds.RefreshToken != "" {
		if err := a.store.SetRefresh(ctx, creds.RefreshToken); err != nil {
			return a.authError("persisting refresh credential", err)
		}
	}
	return nil
}

func (a *Authenticator) logAuth(msg string, kv ...interface{}) {
	if a.logger == nil || a.debug == nil || !a.debug.Enabled || !a.debug.LogAuth {
		return
	}
	a.logger.Debug(msg, kv...)
}

func (a *Authenticator) authError(message string, cause error) *ClientError {
	return &ClientError{
		Type:      ErrorTypeAuth,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// decodeExpiry derives the credential expiry. The JWT exp claim wins when
// the access token is a decodable JWT; otherwise expiresIn (seconds) is
// used; otherwise the expiry is unknown.
func decodeExpiry(accessToken string, expiresIn int64) time.Time {
	parser := jwt.NewParser()
	if token, _, err := parser.ParseUnverified(accessToken, jwt.MapClaims{}); err == nil {
		if exp, err := token.Claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	if expiresIn > 0 {
		return time.Now().Add(time.Duration(expiresIn) * time.Second)
	}
	return time.Time{}
}
