// Package climbinsight is a Go client for the ClimbInsight processing
// backend.
//
// A user journey runs in three steps: upload a wall photo with the holds
// of a problem selected on it, attach route metadata (gym, grade, style),
// then retrieve the asynchronously produced result (a processed cover
// image plus a generated post text) over a server-sent-event stream.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//
//		climbinsight "github.com/climbinsight/climbinsight-go"
//		"github.com/climbinsight/climbinsight-go/pkg/types"
//	)
//
//	func main() {
//		client, err := climbinsight.New(climbinsight.Options{
//			BaseURL:          "http://localhost:8080",
//			SessionStorePath: "/tmp/climbinsight-session",
//		})
//		if err != nil {
//			log.Fatal(err)
//		}
//		defer client.Close()
//
//		ctx := context.Background()
//		session, err := client.SubmitImage(ctx, "wall.jpg", []types.Point{{X: 120, Y: 340}}, 0, 0)
//		if err != nil {
//			log.Fatal(err)
//		}
//		log.Printf("session %s", session)
//
//		if err := client.GenerateContents(ctx, types.Contents{Gym: "B-PUMP", Style: "スラブ", IsGenerate: true}); err != nil {
//			log.Fatal(err)
//		}
//
//		result, err := client.FetchResult(ctx)
//		if err != nil {
//			log.Fatal(err)
//		}
//		if err := client.Presenter().SavePNG(ctx, *result, "climbinsight_result.png"); err != nil {
//			log.Fatal(err)
//		}
//	}
//
// The package consists of five components:
//
// 1. Picker (pkg/picker): hold selection and coordinate rescaling
// 2. Submit (pkg/submit): job submission to the backend
// 3. Stream (pkg/stream): result retrieval over server-sent events
// 4. Present (pkg/present): rendering, download and caption copy
// 5. Session (pkg/session): the durable bridge between steps
package climbinsight

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/climbinsight/climbinsight-go/pkg/picker"
	"github.com/climbinsight/climbinsight-go/pkg/present"
	"github.com/climbinsight/climbinsight-go/pkg/session"
	"github.com/climbinsight/climbinsight-go/pkg/stream"
	"github.com/climbinsight/climbinsight-go/pkg/submit"
	"github.com/climbinsight/climbinsight-go/pkg/types"
)

// Version of the client library
const Version = "1.0.0"

// Options configures a Client
type Options struct {
	// BaseURL is the backend base URL. Required.
	BaseURL string
	// SessionStorePath is the directory for the durable session bridge.
	// Required unless a store is injected via NewWithStore.
	SessionStorePath string
	// SubmitTimeout bounds a single job submission call. Defaults to 30s.
	// The result stream is not covered: it is long-lived and the backend
	// enforces its own deadline.
	SubmitTimeout time.Duration
}

// Client is the high-level interface for the full upload → configure →
// result journey
type Client struct {
	submitter *submit.Submitter
	stream    *stream.Client
	sessions  *session.Store
	presenter *present.Presenter
	ownsStore bool
	logger    *slog.Logger
}

// New creates a client, opening the durable session store at the
// configured path. Callers must Close the client.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if opts.SessionStorePath == "" {
		return nil, fmt.Errorf("session store path is required")
	}

	store, err := session.Open(session.Config{Path: opts.SessionStorePath})
	if err != nil {
		return nil, err
	}

	c := NewWithStore(opts, store)
	c.ownsStore = true
	return c, nil
}

// NewWithStore creates a client around an externally owned session store.
// The store is not closed by Close; tests inject an in-memory store here.
func NewWithStore(opts Options, store *session.Store) *Client {
	timeout := opts.SubmitTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	return &Client{
		submitter: submit.NewWithClient(opts.BaseURL, httpClient),
		stream:    stream.NewClient(opts.BaseURL),
		sessions:  store,
		presenter: present.New(),
		logger:    slog.Default().With("component", "client"),
	}
}

// Close releases resources owned by the client
func (c *Client) Close() error {
	if c.ownsStore {
		return c.sessions.Close()
	}
	return nil
}

// Sessions exposes the session bridge
func (c *Client) Sessions() *session.Store {
	return c.sessions
}

// Presenter exposes the result presenter
func (c *Client) Presenter() *present.Presenter {
	return c.presenter
}

// SubmitImage uploads a wall photo with its selected hold points and
// records the allocated session in the bridge, replacing any previous
// journey. Points are given in display-pixel space; pass the displayed
// size so they can be rescaled to the image's native resolution, or zero
// sizes if the points are already native.
func (c *Client) SubmitImage(ctx context.Context, imagePath string, points []types.Point, displayW, displayH float64) (string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}

	if displayW > 0 && displayH > 0 {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("failed to read image dimensions: %w", err)
		}
		points = picker.Rescale(points, displayW, displayH, float64(cfg.Width), float64(cfg.Height))
	}

	sessionID, err := c.submitter.ProcessImage(ctx, submit.ImageJob{
		FileName:    filepath.Base(imagePath),
		ContentType: http.DetectContentType(data),
		Data:        data,
		Points:      points,
	})
	if err != nil {
		return "", err
	}

	if err := c.sessions.Set(sessionID, imagePath); err != nil {
		return "", err
	}
	return sessionID, nil
}

// GenerateContents attaches route metadata to the in-flight session
// tracked by the bridge
func (c *Client) GenerateContents(ctx context.Context, contents types.Contents) error {
	contents.SessionID = c.sessions.SessionID()
	return c.submitter.GenerateContents(ctx, contents)
}

// FetchResult opens the result stream for the in-flight session and
// blocks until its terminal event. On delivery the bridge entry is
// cleared: the journey is complete and the session is never reused.
func (c *Client) FetchResult(ctx context.Context) (*types.ResultPayload, error) {
	sub, err := c.stream.Open(ctx, c.sessions.SessionID())
	if err != nil {
		return nil, err
	}
	defer sub.Close()

	out, err := sub.Wait(ctx)
	if err != nil {
		return nil, err
	}

	if err := c.sessions.Clear(); err != nil {
		c.logger.Warn("failed to clear session after delivery", "error", err)
	}
	return out.Payload, nil
}
