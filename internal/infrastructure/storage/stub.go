package storage

import (
	"context"
	"sync"

	"github.com/smarteros/backend/internal/domain/messaging"
)

// StubArchiver keeps archived payloads in memory. Used in development
// and tests where no object storage is available.
type StubArchiver struct {
	mu       sync.Mutex
	payloads map[string][]byte
}

// NewStubArchiver creates an empty in-memory archiver
func NewStubArchiver() *StubArchiver {
	return &StubArchiver{payloads: make(map[string][]byte)}
}

// Archive stores the payload under a stub location
func (a *StubArchiver) Archive(_ context.Context, ticket *messaging.RetryTicket, payload []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	location := "stub://dead-letters/" + ticket.ID.String()
	a.payloads[location] = append([]byte(nil), payload...)
	return location, nil
}

// Get returns a previously archived payload
func (a *StubArchiver) Get(location string) ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	payload, ok := a.payloads[location]
	return payload, ok
}

// Len reports how many payloads were archived
func (a *StubArchiver) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.payloads)
}
