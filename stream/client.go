package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mwatt/replystream/model"
)

// Client opens streaming chat requests against one endpoint. An idle timeout
// of zero disables the stall watchdog.
type Client struct {
	endpoint    string
	apiKey      string
	extra       map[string]json.RawMessage
	idleTimeout time.Duration
	client      *http.Client
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func NewClient(endpoint, apiKey string, extra map[string]json.RawMessage, idleTimeout time.Duration) *Client {
	must(strings.TrimSpace(endpoint) != "", "endpoint must not be empty")
	c := &Client{
		endpoint:    strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		apiKey:      apiKey,
		extra:       extra,
		idleTimeout: idleTimeout,
		client:      &http.Client{},
	}
	must(c.endpoint != "", "endpoint must not be empty after trim")
	return c
}

// Open POSTs the conversation and returns the decoded event stream. A nil
// error means the transport is open and the returned channel will close when
// the server closes the response body, a read stalls past the idle timeout,
// or ctx is cancelled.
func (c *Client) Open(ctx context.Context, messages []model.Message, extra map[string]json.RawMessage) (<-chan Event, error) {
	must(c != nil, "client must not be nil")
	must(ctx != nil, "context must not be nil")
	payload, err := marshalRequest(messages, c.extra, extra)
	if err != nil {
		return nil, err
	}
	rctx, cancel := context.WithCancel(ctx)
	resp, err := c.doPost(rctx, payload)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		cancel()
		return nil, readStatusError(resp)
	}
	if resp.Body == nil {
		cancel()
		return nil, errors.New("stream response has no body")
	}
	body := io.ReadCloser(&cancelOnClose{rc: resp.Body, cancel: cancel})
	if c.idleTimeout > 0 {
		body = newIdleWatch(body, c.idleTimeout, cancel)
	}
	return ParseStream(body), nil
}

func marshalRequest(messages []model.Message, layers ...map[string]json.RawMessage) ([]byte, error) {
	must(len(messages) > 0, "request messages must not be empty")
	wire := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		wire = append(wire, wireMessage{Role: string(m.Role), Content: m.Content})
	}
	raw, err := json.Marshal(wire)
	if err != nil {
		return nil, err
	}
	body := map[string]json.RawMessage{"messages": raw}
	for _, layer := range layers {
		for k, v := range layer {
			if k == "messages" {
				continue
			}
			body[k] = v
		}
	}
	return json.Marshal(body)
}

func (c *Client) doPost(ctx context.Context, payload []byte) (*http.Response, error) {
	must(len(payload) > 0, "request payload must not be empty")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return c.client.Do(req)
}

func readStatusError(resp *http.Response) error {
	must(resp != nil, "http response must not be nil")
	if resp.Body == nil {
		return fmt.Errorf("chat stream failed: status %d", resp.StatusCode)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
	msg := strings.TrimSpace(string(b))
	if msg == "" {
		return fmt.Errorf("chat stream failed: status %d", resp.StatusCode)
	}
	return fmt.Errorf("chat stream failed: status %d: %s", resp.StatusCode, msg)
}

// cancelOnClose releases the request context once the read loop is done with
// the body, so a finished stream does not leak its context.
type cancelOnClose struct {
	rc     io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Read(p []byte) (int, error) {
	return c.rc.Read(p)
}

func (c *cancelOnClose) Close() error {
	c.cancel()
	return c.rc.Close()
}

// idleWatch cancels the request context when no bytes arrive for d. Each
// completed read re-arms the timer.
type idleWatch struct {
	rc    io.ReadCloser
	timer *time.Timer
	d     time.Duration
}

func newIdleWatch(rc io.ReadCloser, d time.Duration, cancel context.CancelFunc) *idleWatch {
	must(d > 0, "idle timeout must be positive")
	return &idleWatch{
		rc:    rc,
		timer: time.AfterFunc(d, cancel),
		d:     d,
	}
}

func (w *idleWatch) Read(p []byte) (int, error) {
	n, err := w.rc.Read(p)
	if err == nil {
		w.timer.Reset(w.d)
	}
	return n, err
}

func (w *idleWatch) Close() error {
	w.timer.Stop()
	return w.rc.Close()
}
