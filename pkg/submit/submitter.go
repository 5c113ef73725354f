// Package submit packages climbing jobs and posts them to the backend.
//
// Two request shapes exist: a multipart upload of a wall photo with its
// selected hold points, and a JSON request attaching route metadata to a
// session whose image was already processed. Each call issues exactly one
// network request; failures are returned to the caller and never retried.
package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/climbinsight/climbinsight-go/pkg/types"
)

// ErrValidation marks a pre-flight failure. No network call was made and
// the user can correct the input and resubmit.
var ErrValidation = errors.New("validation failed")

// SubmissionError is a non-2xx or transport failure on a job submission
type SubmissionError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("submission to %s failed: HTTP %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("submission to %s failed: %v", e.Endpoint, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// ImageJob is one wall photo upload with its selected hold points.
// Points must already be in the image's native pixel space.
type ImageJob struct {
	FileName    string
	ContentType string
	Data        []byte
	Points      []types.Point
}

// Submitter posts jobs to the ClimbInsight backend
type Submitter struct {
	baseURL    string
	httpClient *http.Client
	validate   *validator.Validate
	logger     *slog.Logger
}

// New creates a submitter for the given backend base URL
func New(baseURL string) *Submitter {
	return NewWithClient(baseURL, &http.Client{Timeout: 30 * time.Second})
}

// NewWithClient creates a submitter with a caller-supplied HTTP client
func NewWithClient(baseURL string, httpClient *http.Client) *Submitter {
	return &Submitter{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		validate:   validator.New(),
		logger:     slog.Default().With("component", "submit"),
	}
}

// ProcessImage uploads a wall photo and its hold points and returns the
// session identifier allocated by the backend.
func (s *Submitter) ProcessImage(ctx context.Context, job ImageJob) (string, error) {
	if len(job.Data) == 0 {
		return "", fmt.Errorf("%w: image is required", ErrValidation)
	}

	body, contentType, err := encodeMultipart(job)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	endpoint := s.baseURL + "/images/process"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", &SubmissionError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &SubmissionError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &SubmissionError{Endpoint: endpoint, Err: err}
	}

	var parsed struct {
		Session string `json:"session"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if parsed.Session == "" {
		return "", fmt.Errorf("response contains no session identifier")
	}

	s.logger.Info("image submitted", "session", parsed.Session, "points", len(job.Points))
	return parsed.Session, nil
}

// GenerateContents attaches route metadata to an existing session. The
// backend acknowledges the request; the generated post arrives later on
// the session's result stream.
func (s *Submitter) GenerateContents(ctx context.Context, contents types.Contents) error {
	if contents.SessionID == "" {
		return fmt.Errorf("%w: session identifier is required", ErrValidation)
	}
	if err := s.validate.Struct(contents); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if !types.ValidGrade(contents.Grade) {
		return fmt.Errorf("%w: unknown grade %q", ErrValidation, contents.Grade)
	}

	payload, err := json.Marshal(contents)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	endpoint := s.baseURL + "/contents/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &SubmissionError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &SubmissionError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	s.logger.Info("contents submitted", "session", contents.SessionID, "generate", contents.IsGenerate)
	return nil
}

// encodeMultipart builds the multipart body for an image job: the photo
// under "image" and the point list as a JSON array under "points".
func encodeMultipart(job ImageJob) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="image"; filename=%q`, job.FileName))
	contentType := job.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(job.Data); err != nil {
		return nil, "", err
	}

	points := job.Points
	if points == nil {
		points = []types.Point{}
	}
	pointsJSON, err := json.Marshal(points)
	if err != nil {
		return nil, "", err
	}
	if err := w.WriteField("points", string(pointsJSON)); err != nil {
		return nil, "", err
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
