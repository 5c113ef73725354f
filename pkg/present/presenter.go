// Package present renders a delivered result: the processed cover image
// and the generated post text.
//
// The image reference on a result payload may be a data URI, an http(s)
// URL or a local file. Whatever the source, the download path decodes the
// pixels client-side and re-encodes them as PNG at native resolution, so
// a cross-origin or non-downloadable reference still yields a saved file.
package present

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/atotto/clipboard"
	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/climbinsight/climbinsight-go/pkg/types"
)

// DefaultFileName is the name offered for the downloaded artifact
const DefaultFileName = "climbinsight_result.png"

// toastDuration is how long a confirmation notice stays visible
const toastDuration = 2 * time.Second

// Toast is a transient confirmation notice with an auto-expiring message
type Toast struct {
	mu       sync.Mutex
	message  string
	deadline time.Time
	now      func() time.Time
}

// NewToast creates an empty toast
func NewToast() *Toast {
	return &Toast{now: time.Now}
}

// Show displays a message for the toast duration
func (t *Toast) Show(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.message = message
	t.deadline = t.now().Add(toastDuration)
}

// Message returns the visible message, or "" once it has expired
func (t *Toast) Message() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.message == "" || t.now().After(t.deadline) {
		return ""
	}
	return t.message
}

// Presenter renders result payloads. Rendering is idempotent; the toast
// timer is the only mutable state.
type Presenter struct {
	httpClient *http.Client
	logger     *slog.Logger
	toast      *Toast
}

// New creates a presenter
func New() *Presenter {
	return &Presenter{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default().With("component", "present"),
		toast:      NewToast(),
	}
}

// Toast exposes the presenter's confirmation notice
func (p *Presenter) Toast() *Toast {
	return p.toast
}

// LoadImage resolves a payload's image reference and decodes it
func (p *Presenter) LoadImage(ctx context.Context, ref string) (image.Image, error) {
	if ref == "" {
		return nil, fmt.Errorf("payload contains no image reference")
	}

	switch {
	case strings.HasPrefix(ref, "data:"):
		data, err := decodeDataURI(ref)
		if err != nil {
			return nil, err
		}
		return decodeImageBytes(data)

	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		data, err := p.fetch(ctx, ref)
		if err != nil {
			return nil, err
		}
		return decodeImageBytes(data)

	default:
		data, err := os.ReadFile(ref)
		if err != nil {
			return nil, fmt.Errorf("failed to read image file: %w", err)
		}
		return decodeImageBytes(data)
	}
}

// SavePNG decodes the payload's image at its native resolution and writes
// it to path as PNG. Re-rendering the same payload writes the same pixels.
func (p *Presenter) SavePNG(ctx context.Context, payload types.ResultPayload, path string) error {
	img, err := p.LoadImage(ctx, payload.Image)
	if err != nil {
		return err
	}

	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}

	bounds := img.Bounds()
	p.logger.Info("result saved", "path", path, "width", bounds.Dx(), "height", bounds.Dy())
	return nil
}

// CopyCaption writes the post text to the system clipboard and shows a
// transient confirmation. The clipboard write is best-effort; the error
// is returned but needs no special handling.
func (p *Presenter) CopyCaption(payload types.ResultPayload) error {
	err := clipboard.WriteAll(payload.Contents)
	p.toast.Show("コピーしました")
	return err
}

// fetch downloads an image over HTTP
func (p *Presenter) fetch(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// decodeDataURI extracts the binary payload of a base64 data URI
func decodeDataURI(uri string) ([]byte, error) {
	idx := strings.Index(uri, ",")
	if idx < 0 {
		return nil, fmt.Errorf("malformed data URI")
	}
	meta, encoded := uri[:idx], uri[idx+1:]
	if !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("unsupported data URI encoding")
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode data URI: %w", err)
	}
	return data, nil
}

// decodeImageBytes decodes an image with WebP fallback
func decodeImageBytes(data []byte) (image.Image, error) {
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	return nil, fmt.Errorf("image: unknown or unsupported format")
}
