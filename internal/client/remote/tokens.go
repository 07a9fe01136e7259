package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrijs2005/vaultexport/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// expiryLeeway refreshes tokens slightly before they expire.
const expiryLeeway = 30 * time.Second

// TokenSource holds an access/refresh token pair. Access tokens are JWTs
// issued by the backend; only their expiry is inspected here, the backend
// verifies the signature.
type TokenSource struct {
	mu      sync.Mutex
	access  string
	refresh string

	refreshURL string
	client     *http.Client
	now        func() time.Time
}

func NewTokenSource(access, refresh, refreshURL string, client *http.Client) *TokenSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &TokenSource{
		access:     access,
		refresh:    refresh,
		refreshURL: refreshURL,
		client:     client,
		now:        time.Now,
	}
}

// Token returns a valid access token, refreshing it when it is about to
// expire. With no tokens configured it returns "" and remote calls go out
// unauthenticated.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.access == "" && s.refresh == "" {
		return "", nil
	}
	if s.access != "" && !s.expired(s.access) {
		return s.access, nil
	}
	if err := s.refreshLocked(ctx); err != nil {
		return "", err
	}
	return s.access, nil
}

// Invalidate drops the current access token so the next Token call
// refreshes it. It is used when the backend rejects a token as expired.
func (s *TokenSource) Invalidate() {
	s.mu.Lock()
	s.access = ""
	s.mu.Unlock()
}

func (s *TokenSource) expired(token string) bool {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		// opaque token: let the backend decide
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !s.now().Add(expiryLeeway).Before(claims.ExpiresAt.Time)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (s *TokenSource) refreshLocked(ctx context.Context) error {
	if s.refresh == "" || s.refreshURL == "" {
		return common.ErrTokenExpired
	}

	body, err := json.Marshal(refreshRequest{RefreshToken: s.refresh})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.refreshURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("token refresh: %w", common.ErrUnauthorized)
	case resp.StatusCode >= 500:
		return fmt.Errorf("token refresh: %s: %w", resp.Status, common.ErrUnavailable)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("token refresh: unexpected response %s", resp.Status)
	}

	var out refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("token refresh: decoding response: %w", err)
	}
	if out.AccessToken == "" {
		return errors.New("token refresh: empty access token")
	}

	s.access = out.AccessToken
	if out.RefreshToken != "" {
		s.refresh = out.RefreshToken
	}
	return nil
}
