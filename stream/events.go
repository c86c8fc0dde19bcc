package stream

import "encoding/json"

type EventType string

const (
	EventToken EventType = "token"
	EventDone  EventType = "done"
	EventError EventType = "error"
)

// Event is one decoded application frame. Which fields carry data depends on
// Type: Token uses Text, Done uses Reply and Suggestion, Error uses Message.
type Event struct {
	Type       EventType
	Text       string
	Reply      string
	Suggestion json.RawMessage
	Message    string
}

type frame struct {
	T          *string         `json:"t"`
	Done       *bool           `json:"done"`
	Reply      string          `json:"reply"`
	Suggestion json.RawMessage `json:"suggestion"`
	Error      *string         `json:"error"`
}

// classify maps a decoded frame to its event variant by field presence: a "t"
// field wins, then "done", then "error". Frames with none of the three carry
// nothing the engine understands and are dropped.
func classify(f frame) (Event, bool) {

	switch {
	case f.T != nil:
		return Event{Type: EventToken, Text: *f.T}, true
	case f.Done != nil:
		return Event{Type: EventDone, Reply: f.Reply, Suggestion: f.Suggestion}, true
	case f.Error != nil:
		return Event{Type: EventError, Message: *f.Error}, true
	}
	return Event{}, false
}
