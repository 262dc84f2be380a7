package crm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCredentials() Credentials {
	return Credentials{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RefreshToken: "refresh-token",
	}
}

func TestToken_RefreshSuccess(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "client-id", r.Form.Get("client_id"))
		assert.Equal(t, "refresh-token", r.Form.Get("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token": "tok-1", "expires_in": 3600}`))
	}))
	defer server.Close()

	m := NewTokenManager(server.URL, testCredentials())

	token, err := m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)

	// Second call is served from the cached token.
	token, err = m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, int32(1), calls.Load())
}

func TestToken_RefreshesInsideExpiryBuffer(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"access_token": "tok", "expires_in": 3600}`))
	}))
	defer server.Close()

	m := NewTokenManager(server.URL, testCredentials())
	now := time.Now()
	m.now = func() time.Time { return now }

	_, err := m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	// Just inside the buffer: token is treated as expired.
	now = now.Add(time.Hour - TokenExpiryBuffer + time.Second)
	_, err = m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestToken_Invalidate(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"access_token": "tok", "expires_in": 3600}`))
	}))
	defer server.Close()

	m := NewTokenManager(server.URL, testCredentials())

	_, err := m.Token(context.Background())
	require.NoError(t, err)

	m.Invalidate()
	_, err = m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestToken_RefreshRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "invalid_client"}`))
	}))
	defer server.Close()

	m := NewTokenManager(server.URL, testCredentials())

	_, err := m.Token(context.Background())
	require.Error(t, err)
	assert.True(t, IsKind(err, KindAuth))
	// The failure text must not leak the exchange response.
	assert.NotContains(t, err.Error(), "invalid_client")
}

func TestToken_FailureClearsStoredToken(t *testing.T) {
	var fail atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"access_token": "tok", "expires_in": 3600}`))
	}))
	defer server.Close()

	m := NewTokenManager(server.URL, testCredentials())
	now := time.Now()
	m.now = func() time.Time { return now }

	_, err := m.Token(context.Background())
	require.NoError(t, err)

	fail.Store(true)
	now = now.Add(2 * time.Hour)
	_, err = m.Token(context.Background())
	require.Error(t, err)

	// The stale token must not resurface once the refresh has failed.
	fail.Store(false)
	token, err := m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok", token)
}

func TestToken_MissingCredentials(t *testing.T) {
	m := NewTokenManager("http://localhost:0", Credentials{})

	_, err := m.Token(context.Background())
	require.Error(t, err)
	assert.True(t, IsKind(err, KindAuth))
}

func TestToken_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer server.Close()

	m := NewTokenManager(server.URL, testCredentials())

	_, err := m.Token(context.Background())
	require.Error(t, err)
	assert.True(t, IsKind(err, KindMalformed))
}

func TestToken_DefaultExpiry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"access_token": "tok"}`))
	}))
	defer server.Close()

	m := NewTokenManager(server.URL, testCredentials())
	now := time.Now()
	m.now = func() time.Time { return now }

	_, err := m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), m.expiry)
}
