package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	appsync "github.com/smarteros/backend/internal/application/sync"
	"github.com/smarteros/backend/internal/application/webhook"
	"github.com/smarteros/backend/internal/infrastructure/logger"
	"github.com/smarteros/backend/internal/interfaces/http/dto"
)

// Webhook delivery headers.
const (
	HeaderSignature   = "X-Webhook-Signature"
	HeaderTenantCode  = "X-Tenant-Code"
	HeaderStoreDomain = "X-Store-Domain"
)

// WebhookIngestor processes one raw webhook delivery
type WebhookIngestor interface {
	Ingest(ctx context.Context, req webhook.IngestRequest) (*appsync.Outcome, error)
}

// WebhookHandler is the ingress endpoint for commerce platform deliveries
type WebhookHandler struct {
	BaseHandler
	ingestor WebhookIngestor
	logger   *zap.Logger
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(ingestor WebhookIngestor, log *zap.Logger) *WebhookHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebhookHandler{ingestor: ingestor, logger: log}
}

// RegisterRoutes registers webhook routes
func (h *WebhookHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/webhooks/commerce", h.Receive)
}

// WebhookAckResponse tells the platform how the delivery was resolved.
// Duplicates and stale revisions acknowledge with 200 so the platform
// stops redelivering.
type WebhookAckResponse struct {
	Status     string `json:"status"`
	EntityType string `json:"entity_type,omitempty"`
	EntityID   string `json:"entity_id,omitempty"`
	TicketID   string `json:"ticket_id,omitempty"`
}

// Receive handles POST /webhooks/commerce.
//
// The raw body is read before any parsing because the signature covers the
// exact bytes on the wire.
func (h *WebhookHandler) Receive(c *gin.Context) {
	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeRequestTooLarge, "Request body could not be read")
		return
	}
	if len(rawBody) == 0 {
		h.BadRequest(c, "Request body is empty")
		return
	}

	outcome, err := h.ingestor.Ingest(c.Request.Context(), webhook.IngestRequest{
		RawBody:     rawBody,
		Signature:   c.GetHeader(HeaderSignature),
		TenantCode:  c.GetHeader(HeaderTenantCode),
		StoreDomain: c.GetHeader(HeaderStoreDomain),
		Host:        c.Request.Host,
	})
	if err != nil {
		logger.WithLogger(c.Request.Context(), h.logger).Warn("webhook delivery rejected",
			zap.String("tenant_code", c.GetHeader(HeaderTenantCode)),
			zap.Error(err),
		)
		h.HandleError(c, err)
		return
	}

	ack := WebhookAckResponse{Status: string(outcome.Status)}
	if outcome.Record != nil {
		ack.EntityType = string(outcome.Record.EntityType)
		ack.EntityID = outcome.Record.EntityID
	}
	if outcome.TicketID != uuid.Nil {
		ack.TicketID = outcome.TicketID.String()
	}
	h.Success(c, ack)
}
