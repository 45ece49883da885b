package audit

import (
	"context"
	"encoding/json"
	"time"
)

// Event describes one committed mutation. OldValue and NewValue are any JSON
// serialisable snapshot, nil when not applicable.
type Event struct {
	ActorID      int64
	Action       string
	ResourceType string
	ResourceID   int64
	OldValue     any
	NewValue     any
}

// Emitter publishes events after the mutation committed. Emit never fails
// the caller; delivery problems are logged.
type Emitter interface {
	Emit(ctx context.Context, e Event)
}

type nopEmitter struct{}

func (nopEmitter) Emit(context.Context, Event) {}

// Nop discards every event.
var Nop Emitter = nopEmitter{}

// Record is the task payload carried from the control plane to the worker.
type Record struct {
	ActorID      int64           `json:"actor_id,string"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resource_type"`
	ResourceID   int64           `json:"resource_id,string"`
	OldValue     json.RawMessage `json:"old_value,omitempty"`
	NewValue     json.RawMessage `json:"new_value,omitempty"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

func newRecord(e Event, now time.Time) (Record, error) {
	r := Record{
		ActorID:      e.ActorID,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		OccurredAt:   now.UTC(),
	}

	var err error
	if r.OldValue, err = marshalValue(e.OldValue); err != nil {
		return Record{}, err
	}
	if r.NewValue, err = marshalValue(e.NewValue); err != nil {
		return Record{}, err
	}
	return r, nil
}

func marshalValue(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
