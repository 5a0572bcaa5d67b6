package sync

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/smarteros/backend/internal/domain/shared"
	"github.com/smarteros/backend/internal/domain/sync"
)

// ExternalRef derives the stable ERP-side reference for an event's
// entity. It never changes across revisions of the same entity, which is
// what the lookup-before-write keys on.
func ExternalRef(event *sync.InboundWebhookEvent) string {
	return fmt.Sprintf("%s:%s:%s", event.Source, event.EntityType, event.EntityID)
}

// orderBody is the commerce platform's order payload shape
type orderBody struct {
	Name     string          `json:"name"`
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency"`
	Email    string          `json:"email"`
	Note     string          `json:"note"`
}

// stockBody is the commerce platform's inventory payload shape
type stockBody struct {
	SKU      string          `json:"sku"`
	Quantity decimal.Decimal `json:"quantity"`
	Location string          `json:"location"`
}

// partnerBody is the commerce platform's customer payload shape
type partnerBody struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	VAT   string `json:"vat"`
}

// BuildERPPayload maps the raw webhook payload onto the ERP fields for
// the event's entity type. Monetary and quantity values travel as
// decimals end to end; floats never touch them.
func BuildERPPayload(event *sync.InboundWebhookEvent) (sync.ERPPayload, error) {
	payload := sync.ERPPayload{
		ExternalRef: ExternalRef(event),
		Kind:        event.EntityType,
	}

	var fields map[string]any
	var err error
	switch event.EntityType {
	case sync.EntityTypeOrder:
		fields, err = orderFields(event)
	case sync.EntityTypeStock:
		fields, err = stockFields(event)
	case sync.EntityTypePartner:
		fields, err = partnerFields(event)
	default:
		return payload, shared.ErrInvalidInput
	}
	if err != nil {
		return payload, shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("malformed %s payload: %v", event.EntityType, err))
	}

	payload.Fields = fields
	return payload, nil
}

func orderFields(event *sync.InboundWebhookEvent) (map[string]any, error) {
	var body orderBody
	if err := json.Unmarshal(event.Payload, &body); err != nil {
		return nil, err
	}
	return map[string]any{
		"client_order_ref": event.EntityID,
		"origin":           event.Source,
		"amount_total":     body.Total.String(),
		"currency":         body.Currency,
		"note":             body.Note,
	}, nil
}

func stockFields(event *sync.InboundWebhookEvent) (map[string]any, error) {
	var body stockBody
	if err := json.Unmarshal(event.Payload, &body); err != nil {
		return nil, err
	}
	return map[string]any{
		"sku":      body.SKU,
		"quantity": body.Quantity.String(),
		"location": body.Location,
	}, nil
}

func partnerFields(event *sync.InboundWebhookEvent) (map[string]any, error) {
	var body partnerBody
	if err := json.Unmarshal(event.Payload, &body); err != nil {
		return nil, err
	}
	return map[string]any{
		"name":  body.Name,
		"email": body.Email,
		"phone": body.Phone,
		"vat":   body.VAT,
	}, nil
}
