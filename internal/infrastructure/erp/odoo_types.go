package erp

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/smarteros/backend/internal/domain/sync"
)

// externalRefField is the stable reference field on every synced Odoo
// model; lookup-before-write on this field is what keeps retried writes
// from creating duplicates.
const externalRefField = "x_external_ref"

// odooModelFor maps an entity type to its Odoo model name
func odooModelFor(kind sync.EntityType) (string, bool) {
	switch kind {
	case sync.EntityTypeOrder:
		return "sale.order", true
	case sync.EntityTypeStock:
		return "stock.quant", true
	case sync.EntityTypePartner:
		return "res.partner", true
	}
	return "", false
}

// odooSearchRequest is the body for a search_read call
type odooSearchRequest struct {
	Domain [][]any  `json:"domain"`
	Fields []string `json:"fields"`
	Limit  int      `json:"limit,omitempty"`
}

// odooRecord is the subset of fields read back from any synced model
type odooRecord struct {
	ID          int64           `json:"id"`
	ExternalRef string          `json:"x_external_ref"`
	WriteDate   string          `json:"write_date"`
	AmountTotal decimal.Decimal `json:"amount_total"`
	Quantity    decimal.Decimal `json:"quantity"`
}

// writeDate parses Odoo's timestamp format, zero time on failure
func (r *odooRecord) writeDate() time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
		if ts, err := time.Parse(layout, r.WriteDate); err == nil {
			return ts
		}
	}
	return time.Time{}
}

// odooCreateRequest is the body for a create call
type odooCreateRequest struct {
	Values map[string]any `json:"values"`
}

// odooWriteRequest is the body for a write call
type odooWriteRequest struct {
	IDs    []int64        `json:"ids"`
	Values map[string]any `json:"values"`
}

// odooError is the error body returned by the Odoo JSON API
type odooError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}
