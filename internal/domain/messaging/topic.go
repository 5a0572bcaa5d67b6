package messaging

import (
	"fmt"
	"strings"

	"github.com/smarteros/backend/internal/domain/shared"
)

// Topics follow {tenant}.{service}.{event_type}. Each segment is an opaque
// ASCII token; tenant-scoped topics are a naming convention over a single
// shared channel, never one physical resource per tenant.

const topicSegments = 3

// Topic is a fully qualified three-segment topic name
type Topic string

// BuildTopic assembles and validates a topic from its segments
func BuildTopic(tenant, service, eventType string) (Topic, error) {
	for _, seg := range []string{tenant, service, eventType} {
		if !validSegment(seg) {
			return "", shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("invalid topic segment: %q", seg))
		}
	}
	return Topic(tenant + "." + service + "." + eventType), nil
}

// ParseTopic validates a topic string
func ParseTopic(s string) (Topic, error) {
	parts := strings.Split(s, ".")
	if len(parts) != topicSegments {
		return "", shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("topic must have %d segments: %q", topicSegments, s))
	}
	return BuildTopic(parts[0], parts[1], parts[2])
}

// Tenant returns the tenant segment
func (t Topic) Tenant() string {
	return strings.SplitN(string(t), ".", topicSegments)[0]
}

func (t Topic) String() string {
	return string(t)
}

// TopicPattern matches topics segment by segment; "*" matches any single
// segment. "*.erp.*" spans all tenants, "76543210-9.*.*" one tenant.
type TopicPattern string

// ParsePattern validates a topic pattern
func ParsePattern(s string) (TopicPattern, error) {
	parts := strings.Split(s, ".")
	if len(parts) != topicSegments {
		return "", shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("pattern must have %d segments: %q", topicSegments, s))
	}
	for _, seg := range parts {
		if seg != "*" && !validSegment(seg) {
			return "", shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("invalid pattern segment: %q", seg))
		}
	}
	return TopicPattern(s), nil
}

// Matches reports whether the topic falls under this pattern
func (p TopicPattern) Matches(topic Topic) bool {
	ps := strings.Split(string(p), ".")
	ts := strings.Split(string(topic), ".")
	if len(ps) != topicSegments || len(ts) != topicSegments {
		return false
	}
	for i := range ps {
		if ps[i] != "*" && ps[i] != ts[i] {
			return false
		}
	}
	return true
}

func (p TopicPattern) String() string {
	return string(p)
}

func validSegment(seg string) bool {
	if seg == "" {
		return false
	}
	for _, c := range seg {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return false
		}
	}
	return true
}
