package stream

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

const framePrefix = "data:"

// ParseStream consumes a streaming response body and yields decoded events in
// arrival order. The channel closes when the body reaches end-of-stream;
// transport close is authoritative regardless of whether a terminal event was
// seen. The body is closed on return.
func ParseStream(body io.ReadCloser) <-chan Event {

	out := make(chan Event, 16)

	go parseFrames(body, out)
	return out
}

func parseFrames(body io.ReadCloser, out chan<- Event) {

	defer close(out)
	defer body.Close()

	s := bufio.NewScanner(body)
	s.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || !strings.HasPrefix(line, framePrefix) {
			continue
		}
		ev, ok := decodeFrame(strings.TrimSpace(strings.TrimPrefix(line, framePrefix)))
		if !ok {
			continue
		}
		out <- ev
	}
	if err := s.Err(); err != nil {
		out <- Event{Type: EventError, Message: err.Error()}
	}
}

// decodeFrame parses the payload of one data: line. A malformed payload is
// reported as not-ok so the caller skips the frame; a single bad line must
// never abort the stream.
func decodeFrame(data string) (Event, bool) {

	d := strings.TrimSpace(data)
	if d == "" {
		return Event{}, false
	}
	var f frame
	if err := json.Unmarshal([]byte(d), &f); err != nil {
		return Event{}, false
	}
	return classify(f)
}
