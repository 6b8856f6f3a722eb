package events

import (
	"encoding/json"

	"github.com/charlie0129/battstat/pkg/powerinfo"
)

// Event names.
const (
	StatusChanged = "status.changed"
)

// Event is a named event as sent over SSE.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// StatusChangedEvent is the payload of status.changed.
type StatusChangedEvent struct {
	Status  powerinfo.CompositeStatus `json:"status"`
	State   string                    `json:"state"`
	Backend string                    `json:"backend"`
	Ts      int64                     `json:"ts"`
}

// DecodeAs decodes the event payload into T. The event name is not
// checked. Empty data decodes to the zero value.
//
//	payload, err := events.DecodeAs[events.StatusChangedEvent](ev)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
