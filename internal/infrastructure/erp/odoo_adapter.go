package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smarteros/backend/internal/domain/identity"
	"github.com/smarteros/backend/internal/domain/shared"
	"github.com/smarteros/backend/internal/domain/sync"
)

// maxOdooResponseSize limits the response body size to prevent memory exhaustion
const maxOdooResponseSize = 10 * 1024 * 1024

// credential lease keys expected from the secret store for the erp service
const (
	credAPIKey   = "api_key"
	credDatabase = "database"
)

// OdooAdapter implements the ERP adapter against the Odoo JSON API.
// Every call resolves the tenant's leased credentials and sends them as
// a bearer token plus database header, so requests are scoped to the
// tenant's own Odoo database. The adapter performs no retries itself;
// transient failures surface as ErrTransientDependency for the retry
// manager to own.
type OdooAdapter struct {
	config     *OdooConfig
	tenants    identity.TenantRepository
	secrets    sync.SecretStore
	httpClient *http.Client
	logger     *zap.Logger
}

// NewOdooAdapter creates an Odoo adapter
func NewOdooAdapter(config *OdooConfig, tenants identity.TenantRepository, secrets sync.SecretStore, logger *zap.Logger) (*OdooAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &OdooAdapter{
		config:     config,
		tenants:    tenants,
		secrets:    secrets,
		httpClient: &http.Client{Timeout: config.Timeout()},
		logger:     logger,
	}, nil
}

// FindByExternalRef looks up an entity by its stable external reference
func (a *OdooAdapter) FindByExternalRef(ctx context.Context, tenantID uuid.UUID, kind sync.EntityType, externalRef string) (*sync.ERPEntity, error) {
	model, ok := odooModelFor(kind)
	if !ok {
		return nil, shared.ErrInvalidInput
	}

	reqBody := odooSearchRequest{
		Domain: [][]any{{externalRefField, "=", externalRef}},
		Fields: []string{"id", externalRefField, "write_date"},
		Limit:  1,
	}
	respBody, err := a.call(ctx, tenantID, model, "search_read", reqBody)
	if err != nil {
		return nil, err
	}

	var records []odooRecord
	if err := json.Unmarshal(respBody, &records); err != nil {
		return nil, fmt.Errorf("odoo: failed to parse search_read response: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return a.toEntity(&records[0], kind), nil
}

// Create creates an entity carrying the external reference so a
// subsequent lookup finds it even after a crash mid-write
func (a *OdooAdapter) Create(ctx context.Context, tenantID uuid.UUID, payload sync.ERPPayload) (*sync.ERPEntity, error) {
	model, ok := odooModelFor(payload.Kind)
	if !ok {
		return nil, shared.ErrInvalidInput
	}

	values := make(map[string]any, len(payload.Fields)+1)
	for k, v := range payload.Fields {
		values[k] = v
	}
	values[externalRefField] = payload.ExternalRef

	respBody, err := a.call(ctx, tenantID, model, "create", odooCreateRequest{Values: values})
	if err != nil {
		return nil, err
	}

	var ids []int64
	if err := json.Unmarshal(respBody, &ids); err != nil || len(ids) == 0 {
		return nil, fmt.Errorf("odoo: unexpected create response: %s", respBody)
	}
	return &sync.ERPEntity{
		ID:          strconv.FormatInt(ids[0], 10),
		ExternalRef: payload.ExternalRef,
		Kind:        payload.Kind,
	}, nil
}

// Update writes fields on an existing entity
func (a *OdooAdapter) Update(ctx context.Context, tenantID uuid.UUID, erpID string, payload sync.ERPPayload) (*sync.ERPEntity, error) {
	model, ok := odooModelFor(payload.Kind)
	if !ok {
		return nil, shared.ErrInvalidInput
	}
	id, err := strconv.ParseInt(erpID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("odoo: invalid entity id %q: %w", erpID, err)
	}

	if _, err := a.call(ctx, tenantID, model, "write", odooWriteRequest{IDs: []int64{id}, Values: payload.Fields}); err != nil {
		return nil, err
	}
	return &sync.ERPEntity{
		ID:          erpID,
		ExternalRef: payload.ExternalRef,
		Kind:        payload.Kind,
	}, nil
}

func (a *OdooAdapter) toEntity(rec *odooRecord, kind sync.EntityType) *sync.ERPEntity {
	return &sync.ERPEntity{
		ID:          strconv.FormatInt(rec.ID, 10),
		ExternalRef: rec.ExternalRef,
		Kind:        kind,
		UpdatedAt:   rec.writeDate(),
	}
}

// call performs one JSON API request scoped by the tenant's credentials
func (a *OdooAdapter) call(ctx context.Context, tenantID uuid.UUID, model, method string, body any) ([]byte, error) {
	tenant, err := a.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	lease, err := a.secrets.Resolve(ctx, tenant.Code, "erp")
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("odoo: failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/json/2/%s/%s", a.config.BaseURL, model, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+lease.Get(credAPIKey))
	req.Header.Set("X-Odoo-Database", lease.Get(credDatabase))

	resp, err := a.httpClient.Do(req)
	if err != nil {
		a.logger.Warn("odoo request failed",
			zap.String("tenant_id", tenantID.String()),
			zap.String("model", model),
			zap.String("method", method),
			zap.Error(err))
		return nil, shared.ErrTransientDependency
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxOdooResponseSize))
	if err != nil {
		return nil, shared.ErrTransientDependency
	}

	return respBody, a.classifyStatus(resp.StatusCode, model, method, respBody)
}

// classifyStatus maps HTTP outcomes onto the sync error taxonomy
func (a *OdooAdapter) classifyStatus(status int, model, method string, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		// the lease may have been rotated under us; retry re-resolves it
		return shared.ErrSecretUnavailable
	case status == http.StatusNotFound || status == http.StatusGone:
		// writing to a deleted entity cannot be reconciled automatically
		return shared.ErrConflict
	case status == http.StatusTooManyRequests || status >= 500:
		return shared.ErrTransientDependency
	default:
		var oerr odooError
		if err := json.Unmarshal(body, &oerr); err == nil && oerr.Message != "" {
			return fmt.Errorf("odoo: %s/%s: %s: %s", model, method, oerr.Name, oerr.Message)
		}
		return fmt.Errorf("odoo: %s/%s: unexpected status %d", model, method, status)
	}
}
