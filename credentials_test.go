package network

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": "user-1"}
	if !exp.IsZero() {
		claims["exp"] = exp.Unix()
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return token
}

func tokenJSON(t *testing.T, access, refresh string, expiresIn int64) []byte {
	t.Helper()
	body, err := json.Marshal(tokenResponse{AccessToken: access, RefreshToken: refresh, ExpiresIn: expiresIn})
	require.NoError(t, err)
	return body
}

func jsonResponse(status int, body []byte) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(string(body))),
	}
}

func TestCredentialSetFresh(t *testing.T) {
	now := time.Now()
	threshold := 30 * time.Second

	cases := []struct {
		name  string
		creds *CredentialSet
		want  bool
	}{
		{"nil", nil, false},
		{"empty access", &CredentialSet{}, false},
		{"unknown expiry", &CredentialSet{AccessToken: "tok"}, true},
		{"well before threshold", &CredentialSet{AccessToken: "tok", ExpiresAt: now.Add(time.Hour)}, true},
		{"inside threshold", &CredentialSet{AccessToken: "tok", ExpiresAt: now.Add(10 * time.Second)}, false},
		{"already expired", &CredentialSet{AccessToken: "tok", ExpiresAt: now.Add(-time.Minute)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.creds.Fresh(threshold, now))
		})
	}
}

func TestMemoryTokenStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryTokenStore()

	require.NoError(t, store.SetAccess(ctx, "access-1"))
	require.NoError(t, store.SetRefresh(ctx, "refresh-1"))

	access, err := store.Access(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-1", access)
	refresh, err := store.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", refresh)

	require.NoError(t, store.Clear(ctx))
	access, _ = store.Access(ctx)
	refresh, _ = store.Refresh(ctx)
	assert.Empty(t, access)
	assert.Empty(t, refresh)
}

func TestAuthenticatorLogin(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	access := signedToken(t, exp)

	var gotPayload map[string]string
	doer := RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "http://auth.test/login", req.URL.String())
		assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
		body, _ := io.ReadAll(req.Body)
		require.NoError(t, json.Unmarshal(body, &gotPayload))
		return jsonResponse(http.StatusOK, tokenJSON(t, access, "refresh-1", 0)), nil
	})

	store := NewMemoryTokenStore()
	auth := NewAuthenticator(AuthConfig{
		LoginURL:   "http://auth.test/login",
		RefreshURL: "http://auth.test/refresh",
		Store:      store,
	}, doer)

	creds, err := auth.Login(context.Background(), map[string]string{"username": "u", "password": "p"})
	require.NoError(t, err)
	assert.Equal(t, "u", gotPayload["username"])
	assert.Equal(t, access, creds.AccessToken)
	assert.Equal(t, "refresh-1", creds.RefreshToken)
	assert.True(t, creds.ExpiresAt.Equal(exp), "expiry must come from the JWT exp claim")

	persisted, err := store.Access(context.Background())
	require.NoError(t, err)
	assert.Equal(t, access, persisted)

	token, err := auth.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, access, token)
}

func TestAuthenticatorLoginRequiresEndpoint(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{}, RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		t.Fatal("no wire call expected")
		return nil, nil
	}))
	_, err := auth.Login(context.Background(), map[string]string{})
	var clientErr *ClientError
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, ErrorTypeAuth, clientErr.Type)
}

func TestAuthenticatorLoginServerRejection(t *testing.T) {
	doer := RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusUnauthorized, []byte(`{"error":"bad credentials"}`)), nil
	})
	auth := NewAuthenticator(AuthConfig{LoginURL: "http://auth.test/login"}, doer)

	_, err := auth.Login(context.Background(), map[string]string{"username": "u"})
	var clientErr *ClientError
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, ErrorTypeAuth, clientErr.Type)
	assert.Equal(t, http.StatusUnauthorized, clientErr.StatusCode)
	assert.Contains(t, string(clientErr.Body), "bad credentials")
}

func TestRefreshCredentialRotation(t *testing.T) {
	access := signedToken(t, time.Now().Add(time.Hour))

	var gotRefreshToken string
	doer := RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		var payload map[string]string
		body, _ := io.ReadAll(req.Body)
		require.NoError(t, json.Unmarshal(body, &payload))
		gotRefreshToken = payload["refresh_token"]
		return jsonResponse(http.StatusOK, tokenJSON(t, access, "refresh-2", 0)), nil
	})

	store := NewMemoryTokenStore()
	require.NoError(t, store.SetRefresh(context.Background(), "refresh-1"))
	auth := NewAuthenticator(AuthConfig{RefreshURL: "http://auth.test/refresh", Store: store}, doer)

	creds, err := auth.RefreshCredential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", gotRefreshToken)
	assert.Equal(t, "refresh-2", creds.RefreshToken, "rotated refresh credential must be adopted")

	persisted, _ := store.Refresh(context.Background())
	assert.Equal(t, "refresh-2", persisted)
}

func TestRefreshCredentialKeepsUnrotatedToken(t *testing.T) {
	access := signedToken(t, time.Now().Add(time.Hour))
	doer := RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, tokenJSON(t, access, "", 0)), nil
	})

	store := NewMemoryTokenStore()
	require.NoError(t, store.SetRefresh(context.Background(), "refresh-1"))
	auth := NewAuthenticator(AuthConfig{RefreshURL: "http://auth.test/refresh", Store: store}, doer)

	creds, err := auth.RefreshCredential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", creds.RefreshToken)
}

func TestRefreshCredentialFailsClosed(t *testing.T) {
	doer := RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusUnauthorized, []byte(`{"error":"refresh token revoked"}`)), nil
	})

	store := NewMemoryTokenStore()
	ctx := context.Background()
	require.NoError(t, store.SetAccess(ctx, "stale-access"))
	require.NoError(t, store.SetRefresh(ctx, "revoked-refresh"))
	auth := NewAuthenticator(AuthConfig{RefreshURL: "http://auth.test/refresh", Store: store}, doer)

	_, err := auth.RefreshCredential(ctx)
	var clientErr *ClientError
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, ErrorTypeAuth, clientErr.Type)

	access, _ := store.Access(ctx)
	refresh, _ := store.Refresh(ctx)
	assert.Empty(t, access, "failed refresh must clear stored credentials")
	assert.Empty(t, refresh, "failed refresh must clear stored credentials")

	_, err = auth.Token(ctx)
	require.Error(t, err, "later calls must fail instead of replaying a known-bad credential")
}

func TestRefreshCredentialNoRefreshToken(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{RefreshURL: "http://auth.test/refresh"}, RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		t.Fatal("no wire call expected without a refresh credential")
		return nil, nil
	}))
	_, err := auth.RefreshCredential(context.Background())
	require.ErrorIs(t, err, ErrNoCredentials)
}

func TestRefreshCredentialCollapsesConcurrentCallers(t *testing.T) {
	access := signedToken(t, time.Now().Add(time.Hour))

	var wireCalls int64
	release := make(chan struct{})
	started := make(chan struct{})
	doer := RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if atomic.AddInt64(&wireCalls, 1) == 1 {
			close(started)
		}
		<-release
		return jsonResponse(http.StatusOK, tokenJSON(t, access, "refresh-2", 0)), nil
	})

	store := NewMemoryTokenStore()
	require.NoError(t, store.SetRefresh(context.Background(), "refresh-1"))
	auth := NewAuthenticator(AuthConfig{RefreshURL: "http://auth.test/refresh", Store: store}, doer)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*CredentialSet, callers)
	errs := make([]error, callers)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = auth.RefreshCredential(context.Background())
	}()
	<-started

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = auth.RefreshCredential(context.Background())
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&wireCalls), "exactly one wire refresh")
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, access, results[i].AccessToken)
	}
}

func TestTokenRefreshesNearExpiry(t *testing.T) {
	staleAccess := signedToken(t, time.Now().Add(5*time.Second))
	freshAccess := signedToken(t, time.Now().Add(time.Hour))

	var wireCalls int64
	doer := RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		atomic.AddInt64(&wireCalls, 1)
		return jsonResponse(http.StatusOK, tokenJSON(t, freshAccess, "", 0)), nil
	})

	store := NewMemoryTokenStore()
	ctx := context.Background()
	require.NoError(t, store.SetAccess(ctx, staleAccess))
	require.NoError(t, store.SetRefresh(ctx, "refresh-1"))
	auth := NewAuthenticator(AuthConfig{
		RefreshURL:       "http://auth.test/refresh",
		Store:            store,
		RefreshThreshold: 30 * time.Second,
	}, doer)

	token, err := auth.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, freshAccess, token, "near-expiry credential must be refreshed first")
	assert.Equal(t, int64(1), atomic.LoadInt64(&wireCalls))

	// A second call finds the refreshed credential fresh.
	token, err = auth.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, freshAccess, token)
	assert.Equal(t, int64(1), atomic.LoadInt64(&wireCalls))
}

func TestLogout(t *testing.T) {
	store := NewMemoryTokenStore()
	ctx := context.Background()
	require.NoError(t, store.SetAccess(ctx, "access-1"))
	require.NoError(t, store.SetRefresh(ctx, "refresh-1"))

	auth := NewAuthenticator(AuthConfig{Store: store}, RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("unexpected wire call")
	}))

	require.NoError(t, auth.Logout(ctx))
	access, _ := store.Access(ctx)
	assert.Empty(t, access)
}

func TestDecodeExpiry(t *testing.T) {
	exp := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	jwtToken := signedToken(t, exp)

	got := decodeExpiry(jwtToken, 60)
	assert.True(t, got.Equal(exp), "JWT exp claim must win over expires_in")

	before := time.Now()
	got = decodeExpiry("opaque-token", 60)
	assert.WithinDuration(t, before.Add(time.Minute), got, time.Second, "expires_in fallback for opaque tokens")

	got = decodeExpiry("opaque-token", 0)
	assert.True(t, got.IsZero(), "unknown expiry stays zero")
}
