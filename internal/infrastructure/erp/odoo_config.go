package erp

import (
	"fmt"
	"strings"
	"time"
)

// OdooConfig holds the connection settings for one Odoo instance.
// API key and database name come from the per-tenant credential lease,
// not from this config.
type OdooConfig struct {
	BaseURL        string
	TimeoutSeconds int
	MaxRetries     int
}

// Validate checks the configuration
func (c *OdooConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("odoo: config is required")
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("odoo: base url is required")
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 10
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	return nil
}

// Timeout returns the request timeout
func (c *OdooConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
