package stream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// timeoutEventName is the named SSE event the backend emits when
// processing overruns its server-side deadline
const timeoutEventName = "timeout"

// Client opens result subscriptions against the backend
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a stream client for the given backend base URL.
// The default HTTP client is used without a timeout: the connection is
// long-lived and the backend enforces the deadline.
func NewClient(baseURL string) *Client {
	return NewClientWithHTTP(baseURL, &http.Client{})
}

// NewClientWithHTTP creates a stream client with a caller-supplied HTTP
// client
func NewClientWithHTTP(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		logger:     slog.Default().With("component", "stream"),
	}
}

// Subscription is one live result stream for one session. It is owned by
// a single consumer and never reused: a new session gets a fresh handle.
type Subscription struct {
	sessionID string
	logger    *slog.Logger

	mu      sync.Mutex
	state   State
	outcome Outcome
	body    io.ReadCloser
	closed  bool

	cancel context.CancelFunc
	done   chan struct{}
}

// Open connects the result stream for a session. An empty session
// identifier is the Idle case: there is nothing to fetch and ErrNoSession
// is returned without touching the network. A connection-level failure on
// the initial request is returned wrapped in ErrStream.
//
// Each call opens exactly one connection. If a previous subscription for
// another session is still open, the caller closes it first.
func (c *Client) Open(ctx context.Context, sessionID string) (*Subscription, error) {
	if sessionID == "" {
		return nil, ErrNoSession
	}

	ctx, cancel := context.WithCancel(ctx)

	endpoint := fmt.Sprintf("%s/result?session=%s", c.baseURL, url.QueryEscape(sessionID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", ErrStream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: HTTP %d", ErrStream, resp.StatusCode)
	}

	sub := &Subscription{
		sessionID: sessionID,
		logger:    c.logger.With("session", sessionID),
		state:     StateConnecting,
		body:      resp.Body,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go sub.consume()

	return sub, nil
}

// consume reads the stream and feeds events through the state machine
// until the first terminal event
func (sub *Subscription) consume() {
	scanner := newSSEScanner(sub.body)

	for scanner.Scan() {
		ev := scanner.Event()
		switch ev.name {
		case timeoutEventName:
			sub.apply(Event{Kind: EventTimeout, Data: []byte(ev.data)})
		default:
			sub.apply(Event{Kind: EventMessage, Data: []byte(ev.data)})
		}
	}

	// The stream ended without a terminal event, or reading failed.
	// Either way the attempt is over. A read error caused by our own
	// teardown is swallowed by apply: the state is already terminal.
	sub.apply(Event{Kind: EventTransportError, Err: scanner.Err()})
}

// apply runs one transition. The first terminal outcome closes the
// transport synchronously and wakes waiters; later events are no-ops.
func (sub *Subscription) apply(ev Event) Outcome {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	if sub.state.Terminal() {
		return Outcome{State: sub.state, Effect: EffectNone}
	}

	out := Transition(sub.state, ev)
	sub.state = out.State

	if out.State.Terminal() {
		sub.outcome = out
		sub.closeLocked()
		close(sub.done)
		sub.logger.Debug("subscription finished", "state", out.State.String())
	}
	return out
}

// closeLocked tears down the transport. Idempotent; callers hold mu.
func (sub *Subscription) closeLocked() {
	if sub.closed {
		return
	}
	sub.closed = true
	sub.body.Close()
	sub.cancel()
}

// Close cancels the subscription. While still connecting this is the
// silent teardown path: no user-visible outcome fires. After a terminal
// event it only releases resources. Safe to call any number of times,
// including racing a just-arrived message.
func (sub *Subscription) Close() error {
	sub.apply(Event{Kind: EventCancel})
	return nil
}

// State returns the current subscription state
func (sub *Subscription) State() State {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.state
}

// Done is closed once the subscription reaches a terminal state
func (sub *Subscription) Done() <-chan struct{} {
	return sub.done
}

// Wait blocks until the subscription finishes and returns its outcome:
// the payload on delivery, ErrTimeout, ErrStream, or ErrCancelled.
func (sub *Subscription) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-ctx.Done():
		return Outcome{State: sub.State()}, ctx.Err()
	case <-sub.done:
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.outcome, sub.outcome.Err
}
