package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/smarteros/backend/internal/domain/messaging"
	"github.com/smarteros/backend/internal/interfaces/http/dto"
)

// DeadLetterManager exposes the retry manager's dead-letter operations
type DeadLetterManager interface {
	ListDead(ctx context.Context, offset, limit int) ([]*messaging.RetryTicket, int64, error)
	ReplayDead(ctx context.Context, ticketID uuid.UUID) error
}

// DeadLetterHandler is the operator surface for inspecting and replaying
// exhausted deliveries
type DeadLetterHandler struct {
	BaseHandler
	manager DeadLetterManager
}

// NewDeadLetterHandler creates a new DeadLetterHandler
func NewDeadLetterHandler(manager DeadLetterManager) *DeadLetterHandler {
	return &DeadLetterHandler{manager: manager}
}

// RegisterRoutes registers dead-letter admin routes
func (h *DeadLetterHandler) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group("/dead-letters")
	group.GET("", h.List)
	group.POST("/:id/replay", h.Replay)
}

// DeadLetterResponse represents one dead ticket in API responses
type DeadLetterResponse struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	SubjectType  string    `json:"subject_type"`
	SubjectID    string    `json:"subject_id"`
	AttemptCount int       `json:"attempt_count"`
	MaxAttempts  int       `json:"max_attempts"`
	LastError    string    `json:"last_error"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toDeadLetterResponse(t *messaging.RetryTicket) DeadLetterResponse {
	return DeadLetterResponse{
		ID:           t.ID.String(),
		TenantID:     t.TenantID.String(),
		SubjectType:  string(t.SubjectType),
		SubjectID:    t.SubjectID,
		AttemptCount: t.AttemptCount,
		MaxAttempts:  t.MaxAttempts,
		LastError:    t.LastError,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

// List handles GET /dead-letters
func (h *DeadLetterHandler) List(c *gin.Context) {
	req := dto.DefaultListRequest()
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, "Invalid pagination parameters")
		return
	}
	if req.Limit == 0 {
		req.Limit = dto.DefaultListRequest().Limit
	}

	tickets, total, err := h.manager.ListDead(c.Request.Context(), req.Offset, req.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	items := make([]DeadLetterResponse, 0, len(tickets))
	for _, t := range tickets {
		items = append(items, toDeadLetterResponse(t))
	}
	h.SuccessWithMeta(c, items, total, req.Offset, req.Limit)
}

// ReplayAckResponse acknowledges a requested replay
type ReplayAckResponse struct {
	TicketID string `json:"ticket_id"`
	Replayed bool   `json:"replayed"`
}

// Replay handles POST /dead-letters/:id/replay
func (h *DeadLetterHandler) Replay(c *gin.Context) {
	ticketID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Ticket id must be a UUID")
		return
	}

	if err := h.manager.ReplayDead(c.Request.Context(), ticketID); err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, ReplayAckResponse{TicketID: ticketID.String(), Replayed: true})
}
