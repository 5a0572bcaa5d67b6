package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/smarteros/backend/internal/domain/shared"
	"github.com/smarteros/backend/internal/domain/sync"
)

// Config holds the connection settings for the external secret store
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client resolves tenant-scoped credential leases from the external
// secret store over HTTP. Any transport or server failure surfaces as
// ErrSecretUnavailable; the caller decides whether to retry.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a secret store client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type leaseResponse struct {
	Credentials map[string]string `json:"credentials"`
	TTLSeconds  int64             `json:"ttl_seconds"`
}

// Resolve fetches a credential lease for (tenant, service)
func (c *Client) Resolve(ctx context.Context, tenantCode, service string) (*sync.CredentialLease, error) {
	endpoint := fmt.Sprintf("%s/v1/secrets/%s/%s",
		c.cfg.BaseURL, url.PathEscape(tenantCode), url.PathEscape(service))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, shared.ErrSecretUnavailable
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("secret store unreachable",
			zap.String("tenant_code", tenantCode),
			zap.String("service", service),
			zap.Error(err))
		return nil, shared.ErrSecretUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("secret store rejected lease request",
			zap.String("tenant_code", tenantCode),
			zap.String("service", service),
			zap.Int("status", resp.StatusCode))
		return nil, shared.ErrSecretUnavailable
	}

	var body leaseResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, shared.ErrSecretUnavailable
	}
	if len(body.Credentials) == 0 {
		return nil, shared.ErrSecretUnavailable
	}

	return &sync.CredentialLease{
		Credentials: body.Credentials,
		TTL:         time.Duration(body.TTLSeconds) * time.Second,
		IssuedAt:    time.Now(),
	}, nil
}
