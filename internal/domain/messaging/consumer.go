package messaging

import (
	"context"
	"time"
)

// Handler processes one envelope. Returning an error means the delivery
// was not acknowledged and will be attempted again.
type Handler interface {
	Handle(ctx context.Context, envelope *EventEnvelope) error
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc func(ctx context.Context, envelope *EventEnvelope) error

func (f HandlerFunc) Handle(ctx context.Context, envelope *EventEnvelope) error {
	return f(ctx, envelope)
}

// ConsumerGroup binds a named group to the topic patterns it subscribes
// to. Each group owns its offsets; groups never share a cursor.
type ConsumerGroup struct {
	Name     string
	Patterns []TopicPattern
	Handler  Handler
}

// Matches reports whether any of the group's patterns covers the topic
func (g *ConsumerGroup) Matches(topic Topic) bool {
	for _, p := range g.Patterns {
		if p.Matches(topic) {
			return true
		}
	}
	return false
}

// ConsumerOffset records the last acknowledged envelope per (group, topic)
type ConsumerOffset struct {
	Group     string    `json:"group"`
	Topic     Topic     `json:"topic"`
	Offset    int64     `json:"offset"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConsumerOffsetRepository persists per-group cursors. Advance must be
// monotonic: a stored offset is never moved backwards.
type ConsumerOffsetRepository interface {
	Get(ctx context.Context, group string, topic Topic) (int64, error)
	Advance(ctx context.Context, group string, topic Topic, seq int64) error
	MinOffset(ctx context.Context, group string) (int64, error)
	ListByGroup(ctx context.Context, group string) ([]*ConsumerOffset, error)
}
