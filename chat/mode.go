package chat

import (
	"fmt"

	"github.com/mwatt/replystream/stream"
)

// Mode selects how streamed tokens are interpreted. It is fixed for the
// lifetime of a session.
type Mode string

const (
	// ModeDirect treats tokens as the literal reply text.
	ModeDirect Mode = "direct"
	// ModeAssist treats tokens as fragments of a JSON envelope; the reply is
	// extracted from its "reply" field while the envelope is still open.
	ModeAssist Mode = "assist"
)

const replyField = "reply"

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDirect:
		return ModeDirect, nil
	case ModeAssist:
		return ModeAssist, nil
	}
	return "", fmt.Errorf("unknown chat mode %q", s)
}

// turnHandler is the per-mode strategy for one turn. All methods run on the
// session's read-loop goroutine, strictly in frame arrival order.
type turnHandler interface {
	onToken(s *Session, t *turn, text string)
	onDone(s *Session, t *turn, ev stream.Event)
	onError(s *Session, t *turn, msg string)
	finalize(s *Session, t *turn)
}

func handlerFor(m Mode) turnHandler {
	switch m {
	case ModeDirect:
		return directHandler{}
	case ModeAssist:
		return assistHandler{}
	}
	panic(fmt.Sprintf("unknown chat mode %q", m))
}

func errorText(msg string) string {
	return "[error: " + msg + "]"
}

// directHandler mutates the placeholder assistant message in place so the
// host sees monotonically growing text. Stream closure alone ends the turn;
// there is no terminal frame in this mode.
type directHandler struct{}

func (directHandler) onToken(s *Session, t *turn, text string) {
	if t.done {
		return
	}
	t.acc.WriteString(text)
	s.updateSlot(t, t.acc.String())
}

func (directHandler) onDone(*Session, *turn, stream.Event) {}

func (directHandler) onError(s *Session, t *turn, msg string) {
	if t.done {
		return
	}
	t.done = true
	if t.acc.Len() > 0 {
		t.acc.WriteString("\n")
	}
	t.acc.WriteString(errorText(msg))
	t.final = t.acc.String()
	s.updateSlot(t, t.final)
	s.persistSlot(t)
}

func (directHandler) finalize(s *Session, t *turn) {
	t.final = t.acc.String()
	s.persistSlot(t)
}

// assistHandler accumulates the raw envelope and keeps the live preview
// current; nothing reaches history until the turn ends.
type assistHandler struct{}

func (assistHandler) onToken(s *Session, t *turn, text string) {
	if t.done {
		return
	}
	t.raw.WriteString(text)
	s.updatePreview(t, stream.Extract(t.raw.String(), replyField))
}

func (assistHandler) onDone(s *Session, t *turn, ev stream.Event) {
	if t.done {
		return
	}
	t.done = true
	t.suggestion = ev.Suggestion
	// fallback precedence: terminal frame, then a final extractor pass, then
	// the raw buffer verbatim
	content := ev.Reply
	if content == "" {
		content = stream.Extract(t.raw.String(), replyField)
	}
	if content == "" {
		content = t.raw.String()
	}
	t.final = content
	s.commitAssistant(t, content)
}

func (assistHandler) onError(s *Session, t *turn, msg string) {
	if t.done {
		return
	}
	t.done = true
	t.final = errorText(msg)
	s.commitAssistant(t, t.final)
}

// finalize covers a stream that closed without a terminal frame: whatever
// preview or raw content exists is committed best-effort.
func (assistHandler) finalize(s *Session, t *turn) {
	if t.raw.Len() == 0 {
		return
	}
	content := stream.Extract(t.raw.String(), replyField)
	if content == "" {
		content = t.raw.String()
	}
	t.final = content
	s.commitAssistant(t, content)
}
