package chat

import "encoding/json"

type EventType string

const (
	// EventReplyDelta carries the current in-progress reply text: the growing
	// assistant message in direct mode, the live preview in assist mode.
	EventReplyDelta EventType = "reply_delta"
	// EventReplyFinalized is published exactly once per turn, after the
	// session has returned to idle. Suggestion is set only when the terminal
	// frame carried one.
	EventReplyFinalized EventType = "reply_finalized"
)

type Event struct {
	Type       EventType
	SessionID  string
	Content    string
	Suggestion json.RawMessage
}
