package crm

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// TokenExpiryBuffer is how long before expiry a token is treated as expired,
// so a token never goes stale mid-request.
const TokenExpiryBuffer = 5 * time.Minute

// Credentials holds the static OAuth client credentials used for the
// refresh-token exchange.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// TokenManager owns the single process-wide access token and its expiry.
// Token reads are cheap; refreshes are serialized behind a mutex so only one
// in-flight token is ever considered authoritative.
type TokenManager struct {
	tokenURL string
	creds    Credentials
	client   *http.Client

	mu     sync.Mutex
	token  string
	expiry time.Time

	now func() time.Time
}

// NewTokenManager creates a token manager for the given OAuth token endpoint.
func NewTokenManager(tokenURL string, creds Credentials) *TokenManager {
	return &TokenManager{
		tokenURL: tokenURL,
		creds:    creds,
		client:   &http.Client{Timeout: RequestTimeout},
		now:      time.Now,
	}
}

// Token returns a valid access token, refreshing it when missing or within
// the expiry buffer. Exactly one refresh attempt is made per call; callers
// must not loop on auth failures.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != "" && m.now().Before(m.expiry.Add(-TokenExpiryBuffer)) {
		return m.token, nil
	}
	return m.refreshLocked(ctx)
}

// Invalidate force-clears the stored token so the next call refreshes.
// Used on 401 responses.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.expiry = time.Time{}
}

// refreshLocked exchanges the refresh token for a new access token. The
// caller must hold mu. Any failure clears the stored token.
func (m *TokenManager) refreshLocked(ctx context.Context) (string, error) {
	m.token = ""
	m.expiry = time.Time{}

	if m.creds.ClientID == "" || m.creds.ClientSecret == "" || m.creds.RefreshToken == "" {
		return "", &APIError{Kind: KindAuth, Message: "CRM credentials are not configured"}
	}

	log.Printf("[crm] refreshing access token")
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {m.creds.ClientID},
		"client_secret": {m.creds.ClientSecret},
		"refresh_token": {m.creds.RefreshToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &APIError{Kind: KindUnknown, Message: "failed to build token request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := m.now()
	resp, err := m.client.Do(req)
	if err != nil {
		return "", classifyTransportError(err, "token refresh failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		// Do not log the response body: failed exchanges can echo credentials.
		log.Printf("[crm] token refresh failed: HTTP %d (%.2fs)", resp.StatusCode, m.now().Sub(start).Seconds())
		return "", &APIError{
			Kind:       KindAuth,
			Message:    "token refresh rejected, re-authentication required",
			StatusCode: resp.StatusCode,
		}
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", &APIError{Kind: KindMalformed, Message: "invalid token response", Cause: err}
	}
	if body.AccessToken == "" {
		return "", &APIError{Kind: KindAuth, Message: "token response missing access_token"}
	}
	if body.ExpiresIn <= 0 {
		body.ExpiresIn = 3600
	}

	m.token = body.AccessToken
	m.expiry = m.now().Add(time.Duration(body.ExpiresIn) * time.Second)
	log.Printf("[crm] token refresh successful (%.2fs), expires in %ds", m.now().Sub(start).Seconds(), body.ExpiresIn)
	return m.token, nil
}
