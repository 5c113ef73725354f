package stream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sseHandler writes SSE headers and runs the given script against the
// response writer
func sseHandler(t *testing.T, script func(w http.ResponseWriter, r *http.Request)) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/result", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		script(w, r)
	})
}

func writeEvent(w http.ResponseWriter, name, data string) {
	if name != "" {
		fmt.Fprintf(w, "event: %s\n", name)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	w.(http.Flusher).Flush()
}

func TestOpenRequiresSession(t *testing.T) {
	c := NewClient("http://unused.invalid")
	_, err := c.Open(context.Background(), "")
	require.ErrorIs(t, err, ErrNoSession)
}

func TestOpenSendsSessionQuery(t *testing.T) {
	var gotSession string
	srv := httptest.NewServer(sseHandler(t, func(w http.ResponseWriter, r *http.Request) {
		gotSession = r.URL.Query().Get("session")
		writeEvent(w, "", `{"image":"i","contents":"c"}`)
	}))
	defer srv.Close()

	sub, err := NewClient(srv.URL).Open(context.Background(), "sess-99")
	require.NoError(t, err)
	defer sub.Close()

	_, err = sub.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sess-99", gotSession)
}

func TestOpenTrimsTrailingSlash(t *testing.T) {
	// sseHandler asserts the request path is exactly "/result"
	srv := httptest.NewServer(sseHandler(t, func(w http.ResponseWriter, r *http.Request) {
		writeEvent(w, "", `{"image":"i","contents":"c"}`)
	}))
	defer srv.Close()

	sub, err := NewClient(srv.URL + "/").Open(context.Background(), "sess-7")
	require.NoError(t, err)
	defer sub.Close()

	out, err := sub.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateDelivered, out.State)
}

func TestSubscriptionDelivered(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, func(w http.ResponseWriter, r *http.Request) {
		writeEvent(w, "", `{"image":"data:image/png;base64,AA==","contents":"great send"}`)
	}))
	defer srv.Close()

	sub, err := NewClient(srv.URL).Open(context.Background(), "sess-1")
	require.NoError(t, err)
	defer sub.Close()

	out, err := sub.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateDelivered, out.State)
	assert.Equal(t, EffectDeliver, out.Effect)
	require.NotNil(t, out.Payload)
	assert.Equal(t, "great send", out.Payload.Contents)
}

func TestSubscriptionDeliveredLargePayload(t *testing.T) {
	// Result images arrive inline as data URIs, so a single data line
	// can run far past bufio's 64KB default
	uri := "data:image/png;base64," + strings.Repeat("A", 80*1024)
	srv := httptest.NewServer(sseHandler(t, func(w http.ResponseWriter, r *http.Request) {
		writeEvent(w, "", fmt.Sprintf(`{"image":%q,"contents":"send"}`, uri))
	}))
	defer srv.Close()

	sub, err := NewClient(srv.URL).Open(context.Background(), "sess-1")
	require.NoError(t, err)
	defer sub.Close()

	out, err := sub.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateDelivered, out.State)
	require.NotNil(t, out.Payload)
	assert.Equal(t, uri, out.Payload.Image)
}

func TestSubscriptionTimeout(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, func(w http.ResponseWriter, r *http.Request) {
		writeEvent(w, "timeout", `{"error": "timeout"}`)
	}))
	defer srv.Close()

	sub, err := NewClient(srv.URL).Open(context.Background(), "sess-1")
	require.NoError(t, err)
	defer sub.Close()

	out, err := sub.Wait(context.Background())
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, StateTimedOut, out.State)
	assert.Equal(t, EffectNotifyTimeout, out.Effect)
}

func TestSubscriptionMalformedPayload(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, func(w http.ResponseWriter, r *http.Request) {
		writeEvent(w, "", "this is not json")
	}))
	defer srv.Close()

	sub, err := NewClient(srv.URL).Open(context.Background(), "sess-1")
	require.NoError(t, err)
	defer sub.Close()

	out, err := sub.Wait(context.Background())
	require.ErrorIs(t, err, ErrStream)
	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, EffectNotifyFailure, out.Effect)
}

func TestSubscriptionTransportError(t *testing.T) {
	// Server ends the stream without ever sending a terminal event
	srv := httptest.NewServer(sseHandler(t, func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	sub, err := NewClient(srv.URL).Open(context.Background(), "sess-1")
	require.NoError(t, err)
	defer sub.Close()

	out, err := sub.Wait(context.Background())
	require.ErrorIs(t, err, ErrStream)
	assert.Equal(t, StateFailed, out.State)
}

func TestOpenNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such session", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Open(context.Background(), "sess-1")
	require.ErrorIs(t, err, ErrStream)
}

func TestSubscriptionAtMostOnce(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, func(w http.ResponseWriter, r *http.Request) {
		// A terminal message followed by events that must be ignored
		writeEvent(w, "", `{"image":"first","contents":"first"}`)
		writeEvent(w, "", `{"image":"second","contents":"second"}`)
		writeEvent(w, "timeout", `{"error": "timeout"}`)
	}))
	defer srv.Close()

	sub, err := NewClient(srv.URL).Open(context.Background(), "sess-1")
	require.NoError(t, err)
	defer sub.Close()

	out, err := sub.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateDelivered, out.State)
	assert.Equal(t, "first", out.Payload.Contents)

	// The handle is closed; the state never moves again
	assert.Equal(t, StateDelivered, sub.State())
}

func TestSubscriptionCancelSilence(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(sseHandler(t, func(w http.ResponseWriter, r *http.Request) {
		// Hold the stream open until the client tears down
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	sub, err := NewClient(srv.URL).Open(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Equal(t, StateConnecting, sub.State())

	// Unmount before any terminal event
	require.NoError(t, sub.Close())

	out, err := sub.Wait(context.Background())
	require.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, StateCancelled, out.State)
	assert.Equal(t, EffectNone, out.Effect, "cancellation produces no user-visible effect")

	// The reader goroutine observes the closed body; the state stays put
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateCancelled, sub.State())
}

func TestSubscriptionCloseIdempotent(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, func(w http.ResponseWriter, r *http.Request) {
		writeEvent(w, "", `{"image":"i","contents":"c"}`)
	}))
	defer srv.Close()

	sub, err := NewClient(srv.URL).Open(context.Background(), "sess-1")
	require.NoError(t, err)

	_, err = sub.Wait(context.Background())
	require.NoError(t, err)

	// Close after delivery, repeatedly, must not panic or change state
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.Equal(t, StateDelivered, sub.State())
}

func TestWaitHonoursContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(sseHandler(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	sub, err := NewClient(srv.URL).Open(context.Background(), "sess-1")
	require.NoError(t, err)
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = sub.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
