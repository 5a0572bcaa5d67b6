package webhook

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	appsync "github.com/smarteros/backend/internal/application/sync"
	"github.com/smarteros/backend/internal/domain/identity"
	"github.com/smarteros/backend/internal/domain/shared"
	"github.com/smarteros/backend/internal/domain/sync"
	"github.com/smarteros/backend/internal/infrastructure/logger"
	"github.com/smarteros/backend/internal/infrastructure/signature"
)

// secretService is the secret-store service name holding webhook secrets
const secretService = "webhook"

// signingSecretKey is the credential key carrying the HMAC secret
const signingSecretKey = "signing_secret"

// EventProcessor hands a verified event to the sync engine
type EventProcessor interface {
	ProcessInbound(ctx context.Context, tenant *identity.Tenant, event *sync.InboundWebhookEvent) (*appsync.Outcome, error)
}

// IngestRequest carries one raw webhook delivery plus its routing hints
type IngestRequest struct {
	RawBody     []byte
	Signature   string
	TenantCode  string
	StoreDomain string
	Host        string
}

// webhookBody is the commerce platform's delivery format
type webhookBody struct {
	Source     string          `json:"source"`
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Revision   int64           `json:"revision"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// Service is the webhook ingestion pipeline: resolve the tenant, verify
// the signature over the raw bytes, then hand the event to the engine.
// Verification happens before any parse of the body.
type Service struct {
	tenants   identity.TenantRepository
	secrets   sync.SecretStore
	verifier  *signature.Verifier
	processor EventProcessor
	logger    *zap.Logger
}

// NewService creates a webhook ingestion service
func NewService(
	tenants identity.TenantRepository,
	secrets sync.SecretStore,
	verifier *signature.Verifier,
	processor EventProcessor,
	log *zap.Logger,
) *Service {
	return &Service{
		tenants:   tenants,
		secrets:   secrets,
		verifier:  verifier,
		processor: processor,
		logger:    log,
	}
}

// Ingest runs the full ingestion pipeline for one delivery
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*appsync.Outcome, error) {
	tenant, err := s.ResolveTenant(ctx, req.TenantCode, req.StoreDomain, req.Host)
	if err != nil {
		return nil, err
	}

	log := logger.WithLogger(ctx, s.logger).With(zap.String("tenant_code", tenant.Code))

	lease, err := s.secrets.Resolve(ctx, tenant.Code, secretService)
	if err != nil {
		return nil, err
	}
	secret := lease.Get(signingSecretKey)
	if secret == "" {
		return nil, shared.ErrSecretUnavailable
	}

	if !s.verifier.Verify(req.RawBody, req.Signature, secret) {
		log.Warn("webhook signature rejected")
		return nil, shared.ErrAuthenticationFailed
	}

	event, err := s.parseEvent(tenant, req.RawBody)
	if err != nil {
		return nil, err
	}

	outcome, err := s.processor.ProcessInbound(ctx, tenant, event)
	if err != nil {
		return outcome, err
	}
	log.Info("webhook ingested",
		zap.String("source", event.Source),
		zap.String("source_event_id", event.SourceEventID),
		zap.String("status", string(outcome.Status)))
	return outcome, nil
}

// ResolveTenant maps routing hints onto a tenant. The explicit code
// header wins over the store-domain header, which wins over the Host.
func (s *Service) ResolveTenant(ctx context.Context, code, storeDomain, host string) (*identity.Tenant, error) {
	var tenant *identity.Tenant
	var err error
	switch {
	case code != "":
		tenant, err = s.tenants.FindByCode(ctx, code)
	case storeDomain != "":
		tenant, err = s.tenants.FindByStoreDomain(ctx, storeDomain)
	default:
		hostname := host
		if i := strings.IndexByte(hostname, ':'); i >= 0 {
			hostname = hostname[:i]
		}
		if hostname == "" {
			return nil, shared.ErrUnknownTenant
		}
		tenant, err = s.tenants.FindByStoreDomain(ctx, hostname)
	}
	if err != nil {
		return nil, err
	}
	if !tenant.CanProcessEvents() {
		return nil, shared.ErrTenantSuspended
	}
	return tenant, nil
}

func (s *Service) parseEvent(tenant *identity.Tenant, raw []byte) (*sync.InboundWebhookEvent, error) {
	var body webhookBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "malformed webhook body")
	}
	return sync.NewInboundWebhookEvent(
		tenant.ID,
		body.Source,
		body.EventID,
		body.EventType,
		sync.EntityType(body.EntityType),
		body.EntityID,
		body.Revision,
		body.Data,
	)
}
