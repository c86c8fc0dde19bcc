package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mwatt/replystream/model"
	"github.com/mwatt/replystream/store"
	"github.com/mwatt/replystream/stream"
)

var (
	ErrEmptyInput = errors.New("chat: input is empty")
	ErrBusy       = errors.New("chat: a turn is already streaming")
)

// Transport opens one streaming turn against the chat endpoint. extra holds
// opaque fields merged into the request body alongside the message history.
type Transport interface {
	Open(ctx context.Context, messages []model.Message, extra map[string]json.RawMessage) (<-chan stream.Event, error)
}

// Session owns one conversation: its history, its streaming status, and the
// turn lifecycle. At most one turn is in flight at a time; sessions share no
// state with each other.
type Session struct {
	id        string
	mode      Mode
	handler   turnHandler
	transport Transport
	messages  store.MessageStore
	events    *Broker[Event]
	streaming atomic.Bool

	mu      sync.Mutex
	history []model.Message
	preview string
	extra   map[string]json.RawMessage
	cancel  context.CancelFunc
	epoch   uint64
}

// turn is the loop-goroutine-private state of one in-flight turn. epoch ties
// it to the session generation it started in; a Reset bumps the generation
// and orphans the turn.
type turn struct {
	epoch      uint64
	slot       int
	acc        strings.Builder
	raw        strings.Builder
	done       bool
	final      string
	suggestion json.RawMessage
	cancel     context.CancelFunc
}

// NewSession creates an idle session. messages may be nil to disable
// transcript persistence.
func NewSession(id string, mode Mode, transport Transport, messages store.MessageStore) *Session {
	must(transport != nil, "transport must not be nil")
	if id == "" {
		id = uuid.NewString()
	}
	return &Session{
		id:        id,
		mode:      mode,
		handler:   handlerFor(mode),
		transport: transport,
		messages:  messages,
		events:    NewBroker[Event](),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Mode() Mode {
	return s.mode
}

func (s *Session) Events() *Broker[Event] {
	return s.events
}

func (s *Session) Streaming() bool {
	return s.streaming.Load()
}

// History returns a copy of the conversation so far, including the in-flight
// placeholder assistant message in direct mode.
func (s *Session) History() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Message, len(s.history))
	copy(out, s.history)
	return out
}

// Preview returns the transient assist-mode live preview. It is empty outside
// an assist-mode turn.
func (s *Session) Preview() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preview
}

// SetContext sets opaque fields merged into every request body, e.g. an edit
// context supplied by the host.
func (s *Session) SetContext(extra map[string]json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extra = extra
}

// Resume preloads history from a persisted transcript. Ignored while a turn
// is streaming.
func (s *Session) Resume(msgs []model.Message) {
	if s.streaming.Load() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history[:0], msgs...)
}

// Send starts one turn. It rejects blank input with ErrEmptyInput and an
// already-streaming session with ErrBusy; in both cases history is untouched
// and no transport is opened. The turn itself runs asynchronously; progress
// and completion are observable via Events, History and Streaming. Cancelling
// ctx aborts the turn.
func (s *Session) Send(ctx context.Context, text string) error {
	must(ctx != nil, "context must not be nil")
	if strings.TrimSpace(text) == "" {
		return ErrEmptyInput
	}
	if !s.streaming.CompareAndSwap(false, true) {
		return ErrBusy
	}
	cctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	user := s.newMessage(model.RoleUser, text)
	s.history = append(s.history, user)
	request := make([]model.Message, len(s.history))
	copy(request, s.history)
	t := &turn{epoch: s.epoch, slot: -1, cancel: cancel}
	if s.mode == ModeDirect {
		s.history = append(s.history, s.newMessage(model.RoleAssistant, ""))
		t.slot = len(s.history) - 1
	}
	s.preview = ""
	s.cancel = cancel
	extra := s.extra
	s.mu.Unlock()
	s.persist(user)
	go s.run(cctx, t, request, extra)
	return nil
}

// Reset returns the session to its initial empty state and aborts any
// in-flight turn.
func (s *Session) Reset() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.epoch++
	s.history = nil
	s.preview = ""
	s.mu.Unlock()
	s.streaming.Store(false)
	if cancel != nil {
		cancel()
	}
}

// Close aborts any in-flight turn without discarding history.
func (s *Session) Close() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Session) run(ctx context.Context, t *turn, request []model.Message, extra map[string]json.RawMessage) {
	defer s.finishTurn(t)
	events, err := s.transport.Open(ctx, request, extra)
	if err != nil {
		s.handler.onError(s, t, "connection failed")
		return
	}
	for ev := range events {
		switch ev.Type {
		case stream.EventToken:
			s.handler.onToken(s, t, ev.Text)
		case stream.EventDone:
			s.handler.onDone(s, t, ev)
		case stream.EventError:
			s.handler.onError(s, t, ev.Message)
		}
	}
}

// finishTurn runs when the transport closes, whatever was or was not seen
// before that: transport close is authoritative.
func (s *Session) finishTurn(t *turn) {
	if !t.done {
		s.handler.finalize(s, t)
	}
	s.mu.Lock()
	live := t.epoch == s.epoch
	if live {
		s.cancel = nil
	}
	s.mu.Unlock()
	t.cancel()
	if !live {
		return
	}
	s.streaming.Store(false)
	s.events.Publish(Event{
		Type:       EventReplyFinalized,
		SessionID:  s.id,
		Content:    t.final,
		Suggestion: t.suggestion,
	})
}

// updateSlot rewrites the direct-mode placeholder message in place.
func (s *Session) updateSlot(t *turn, content string) {
	s.mu.Lock()
	if t.epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	must(t.slot >= 0 && t.slot < len(s.history), "direct turn slot out of range")
	s.history[t.slot].Content = content
	s.mu.Unlock()
	s.events.Publish(Event{Type: EventReplyDelta, SessionID: s.id, Content: content})
}

func (s *Session) updatePreview(t *turn, preview string) {
	s.mu.Lock()
	if t.epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	s.preview = preview
	s.mu.Unlock()
	s.events.Publish(Event{Type: EventReplyDelta, SessionID: s.id, Content: preview})
}

// commitAssistant appends the final assist-mode message to history.
func (s *Session) commitAssistant(t *turn, content string) {
	s.mu.Lock()
	if t.epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	msg := s.newMessage(model.RoleAssistant, content)
	s.history = append(s.history, msg)
	s.preview = ""
	s.mu.Unlock()
	s.persist(msg)
}

// persistSlot writes the direct-mode placeholder's final content to the
// transcript store.
func (s *Session) persistSlot(t *turn) {
	s.mu.Lock()
	if t.epoch != s.epoch || t.slot < 0 || t.slot >= len(s.history) {
		s.mu.Unlock()
		return
	}
	msg := s.history[t.slot]
	s.mu.Unlock()
	s.persist(msg)
}

// persist writes one message to the transcript store. The transcript is
// advisory; a failed write must not fail the turn.
func (s *Session) persist(msg model.Message) {
	if s.messages == nil {
		return
	}
	_ = s.messages.Create(&msg)
}

func (s *Session) newMessage(role model.Role, content string) model.Message {
	return model.Message{
		ID:        uuid.NewString(),
		SessionID: s.id,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}
