package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appsync "github.com/smarteros/backend/internal/application/sync"
	"github.com/smarteros/backend/internal/application/webhook"
	"github.com/smarteros/backend/internal/domain/shared"
	domainsync "github.com/smarteros/backend/internal/domain/sync"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubIngestor struct {
	lastReq webhook.IngestRequest
	outcome *appsync.Outcome
	err     error
}

func (s *stubIngestor) Ingest(_ context.Context, req webhook.IngestRequest) (*appsync.Outcome, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return s.outcome, nil
}

func newWebhookRouter(ingestor WebhookIngestor) *gin.Engine {
	router := gin.New()
	h := NewWebhookHandler(ingestor, zap.NewNop())
	h.RegisterRoutes(router.Group("/api/v1"))
	return router
}

func postWebhook(router *gin.Engine, body string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/commerce", strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestWebhookReceiveAppliedDelivery(t *testing.T) {
	record, err := domainsync.NewSyncRecord(uuid.New(), domainsync.EntityTypeOrder, "SO-1001")
	require.NoError(t, err)

	ingestor := &stubIngestor{outcome: &appsync.Outcome{Status: appsync.OutcomeApplied, Record: record}}
	router := newWebhookRouter(ingestor)

	w := postWebhook(router, `{"event_id":"evt-1"}`, map[string]string{
		HeaderSignature:  "sha256=abc",
		HeaderTenantCode: "acme",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"applied"`)
	assert.Contains(t, w.Body.String(), `"entity_id":"SO-1001"`)

	// raw bytes and routing hints must reach the service untouched
	assert.Equal(t, `{"event_id":"evt-1"}`, string(ingestor.lastReq.RawBody))
	assert.Equal(t, "sha256=abc", ingestor.lastReq.Signature)
	assert.Equal(t, "acme", ingestor.lastReq.TenantCode)
	assert.NotEmpty(t, ingestor.lastReq.Host)
}

func TestWebhookReceiveDuplicateAcknowledges(t *testing.T) {
	ingestor := &stubIngestor{outcome: &appsync.Outcome{Status: appsync.OutcomeDuplicate}}
	router := newWebhookRouter(ingestor)

	w := postWebhook(router, `{"event_id":"evt-1"}`, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"duplicate"`)
}

func TestWebhookReceiveRetryScheduledCarriesTicket(t *testing.T) {
	ticketID := uuid.New()
	ingestor := &stubIngestor{outcome: &appsync.Outcome{Status: appsync.OutcomeRetryScheduled, TicketID: ticketID}}
	router := newWebhookRouter(ingestor)

	w := postWebhook(router, `{"event_id":"evt-1"}`, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"retry_scheduled"`)
	assert.Contains(t, w.Body.String(), ticketID.String())
}

func TestWebhookReceiveBadSignature(t *testing.T) {
	router := newWebhookRouter(&stubIngestor{err: shared.ErrAuthenticationFailed})

	w := postWebhook(router, `{"event_id":"evt-1"}`, map[string]string{HeaderSignature: "sha256=bad"})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "ERR_SIGNATURE_INVALID")
}

func TestWebhookReceiveTenantErrorsShareStatusDistinctCodes(t *testing.T) {
	unknown := postWebhook(newWebhookRouter(&stubIngestor{err: shared.ErrUnknownTenant}), `{}`, nil)
	suspended := postWebhook(newWebhookRouter(&stubIngestor{err: shared.ErrTenantSuspended}), `{}`, nil)

	assert.Equal(t, http.StatusNotFound, unknown.Code)
	assert.Equal(t, http.StatusNotFound, suspended.Code)
	assert.Contains(t, unknown.Body.String(), "ERR_UNKNOWN_TENANT")
	assert.Contains(t, suspended.Body.String(), "ERR_TENANT_SUSPENDED")
}

func TestWebhookReceiveConflict(t *testing.T) {
	router := newWebhookRouter(&stubIngestor{err: shared.ErrConflict})

	w := postWebhook(router, `{"event_id":"evt-1"}`, nil)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "ERR_SYNC_CONFLICT")
}

func TestWebhookReceiveConcurrentWriterLosesAsRetryable(t *testing.T) {
	// The loser of an optimistic write relies on platform redelivery for
	// the final state to converge, so it must answer with the retryable
	// 503, never the manual-resolution 409.
	router := newWebhookRouter(&stubIngestor{err: shared.ErrConcurrencyConflict})

	w := postWebhook(router, `{"event_id":"evt-1"}`, nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "ERR_CONCURRENCY_CONFLICT")
}

func TestWebhookReceiveSecretUnavailable(t *testing.T) {
	router := newWebhookRouter(&stubIngestor{err: shared.ErrSecretUnavailable})

	w := postWebhook(router, `{"event_id":"evt-1"}`, nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "ERR_SECRET_UNAVAILABLE")
}

func TestWebhookReceiveEmptyBody(t *testing.T) {
	router := newWebhookRouter(&stubIngestor{})

	w := postWebhook(router, "", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "ERR_BAD_REQUEST")
}
