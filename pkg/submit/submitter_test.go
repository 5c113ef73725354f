package submit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/climbinsight/climbinsight-go/pkg/types"
)

func TestProcessImage(t *testing.T) {
	var gotPoints []types.Point

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/images/process", r.URL.Path)

		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("image")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "wall.jpg", header.Filename)

		require.NoError(t, json.Unmarshal([]byte(r.FormValue("points")), &gotPoints))

		json.NewEncoder(w).Encode(map[string]string{"session": "sess-42"})
	}))
	defer srv.Close()

	s := New(srv.URL)
	session, err := s.ProcessImage(context.Background(), ImageJob{
		FileName:    "wall.jpg",
		ContentType: "image/jpeg",
		Data:        []byte{0xff, 0xd8, 0xff},
		Points:      []types.Point{{X: 200, Y: 200}},
	})

	require.NoError(t, err)
	assert.Equal(t, "sess-42", session)
	require.Len(t, gotPoints, 1)
	assert.Equal(t, 200.0, gotPoints[0].X)
}

func TestProcessImageRequiresImage(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
	}))
	defer srv.Close()

	s := New(srv.URL)
	_, err := s.ProcessImage(context.Background(), ImageJob{FileName: "wall.jpg"})

	require.ErrorIs(t, err, ErrValidation)
	assert.Zero(t, atomic.LoadInt64(&calls), "validation failure must not reach the network")
}

func TestProcessImageServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := New(srv.URL)
	_, err := s.ProcessImage(context.Background(), ImageJob{Data: []byte{1}})

	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, http.StatusInternalServerError, subErr.StatusCode)
}

func TestProcessImageEmptySession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	s := New(srv.URL)
	_, err := s.ProcessImage(context.Background(), ImageJob{Data: []byte{1}})
	require.Error(t, err)
}

func TestGenerateContents(t *testing.T) {
	var got types.Contents

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/contents/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := New(srv.URL)
	err := s.GenerateContents(context.Background(), types.Contents{
		SessionID:  "sess-42",
		Grade:      "3級",
		Gym:        "B-PUMP",
		Style:      "slab",
		TryCount:   4,
		IsGenerate: true,
	})

	require.NoError(t, err)
	assert.Equal(t, "sess-42", got.SessionID)
	assert.Equal(t, uint(4), got.TryCount)
	assert.True(t, got.IsGenerate)
}

func TestGenerateContentsValidationGate(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
	}))
	defer srv.Close()

	s := New(srv.URL)

	cases := []types.Contents{
		{SessionID: "sess-1", Style: "slab"},                              // missing gym
		{SessionID: "sess-1", Gym: "B-PUMP"},                              // missing style
		{Gym: "B-PUMP", Style: "slab"},                                    // missing session
		{SessionID: "sess-1", Gym: "B-PUMP", Style: "slab", Grade: "V15"}, // grade not in the vocabulary
	}
	for _, c := range cases {
		err := s.GenerateContents(context.Background(), c)
		require.ErrorIs(t, err, ErrValidation)
	}
	assert.Zero(t, atomic.LoadInt64(&calls), "validation failures must not reach the network")
}

func TestGenerateContentsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // force connection failures

	s := New(srv.URL)
	err := s.GenerateContents(context.Background(), types.Contents{
		SessionID: "sess-1", Gym: "B-PUMP", Style: "slab",
	})

	var subErr *SubmissionError
	require.True(t, errors.As(err, &subErr))
	assert.Zero(t, subErr.StatusCode)
}
