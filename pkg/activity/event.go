package activity

import (
	"encoding/json"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Event is one accepted request, completed response, or error, appended
// on accept and on completion (spec.md §3: ActivityEvent).
type Event struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source"`
	EventType string         `json:"event_type"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata"`
}

// EventType values.
const (
	EventAccepted  = "accepted"
	EventCompleted = "completed"
)

// secretKeyPattern matches metadata keys that must never reach the log
// (spec.md §4.9: "must never contain access tokens, refresh tokens, or
// raw credentials; the producer is responsible for redaction at the
// source").
var secretKeyPattern = regexp.MustCompile(`(?i)access_token|refresh_token|secret|password`)

const redactedPlaceholder = "[redacted]"

// NewEvent builds a sanitized Event, redacting any metadata key that
// looks secret-shaped before it is ever appended to the ring or mirror.
func NewEvent(source, eventType, message string, metadata map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Source:    source,
		EventType: eventType,
		Message:   message,
		Metadata:  sanitize(metadata),
	}
}

// sanitize returns a copy of metadata with any secret-shaped key replaced
// by a placeholder. Nested maps are sanitized recursively.
func sanitize(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		if secretKeyPattern.MatchString(k) {
			out[k] = redactedPlaceholder
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = sanitize(nested)
			continue
		}
		out[k] = v
	}
	return out
}

func (e Event) toRow() (row, error) {
	metadataJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return row{}, err
	}
	return row{
		ID:        e.ID,
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
		Source:    e.Source,
		EventType: e.EventType,
		Message:   e.Message,
		Metadata:  string(metadataJSON),
	}, nil
}

func rowToEvent(r row) (Event, error) {
	ts, err := time.Parse(time.RFC3339Nano, r.Timestamp)
	if err != nil {
		return Event{}, err
	}
	var metadata map[string]any
	if err := json.Unmarshal([]byte(r.Metadata), &metadata); err != nil {
		return Event{}, err
	}
	return Event{
		ID:        r.ID,
		Timestamp: ts,
		Source:    r.Source,
		EventType: r.EventType,
		Message:   r.Message,
		Metadata:  metadata,
	}, nil
}
