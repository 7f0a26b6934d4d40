package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

// RoleClaims is the role snapshot pushed to the identity provider
type RoleClaims struct {
	Role           string    `json:"role"`
	OrganizationID int64     `json:"organizationId"`
	LastRoleUpdate time.Time `json:"lastRoleUpdate"`
}

// ClaimsPublisher pushes role claims for an actor identified by the
// provider's subject
type ClaimsPublisher interface {
	PublishRoleClaims(ctx context.Context, externalID string, claims RoleClaims) error
}

// NoopClaimsPublisher discards claims. It is used when no claims API is
// configured.
type NoopClaimsPublisher struct{}

// PublishRoleClaims implements ClaimsPublisher
func (NoopClaimsPublisher) PublishRoleClaims(context.Context, string, RoleClaims) error {
	return nil
}

// HTTPClaimsConfig configures the claims API client
type HTTPClaimsConfig struct {
	BaseURL string

	// OAuth2 client credentials. When TokenURL is empty requests are sent
	// unauthenticated.
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string

	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
}

// HTTPClaimsPublisher writes claims to <base>/users/<externalID>/metadata
type HTTPClaimsPublisher struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

type metadataPatch struct {
	PublicMetadata RoleClaims `json:"public_metadata"`
}

// NewHTTPClaimsPublisher creates a publisher. ctx scopes the token source's
// HTTP client.
func NewHTTPClaimsPublisher(ctx context.Context, cfg HTTPClaimsConfig) (*HTTPClaimsPublisher, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("claims API base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid claims API base URL: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	if cfg.TokenURL != "" {
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		client = cc.Client(ctx)
		client.Timeout = timeout
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &HTTPClaimsPublisher{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
	}, nil
}

// PublishRoleClaims implements ClaimsPublisher
func (p *HTTPClaimsPublisher) PublishRoleClaims(ctx context.Context, externalID string, claims RoleClaims) error {
	if externalID == "" {
		return fmt.Errorf("external ID is required")
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("claims API rate limit: %w", err)
	}

	body, err := json.Marshal(metadataPatch{PublicMetadata: claims})
	if err != nil {
		return fmt.Errorf("failed to encode claims: %w", err)
	}

	endpoint := p.baseURL + "/users/" + url.PathEscape(externalID) + "/metadata"
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build claims request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to publish claims: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("claims API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
