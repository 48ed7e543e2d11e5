package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imageselector/internal/config"
)

type fakeClient struct {
	calls atomic.Int32
	err   error
	fn    func(texts []string) [][]float32
}

func (f *fakeClient) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.fn(texts), nil
}

func lengthVectors(texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out
}

func TestHuggingFaceEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/models/org/model/pipeline/feature-extraction", r.URL.Path)
		assert.Equal(t, "Bearer hf-key", r.Header.Get("Authorization"))

		var req featureExtractionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"hello", "world"}, req.Inputs)
		assert.True(t, req.Options.WaitForModel)

		_ = json.NewEncoder(w).Encode([][]float32{{0.1, 0.2}, {0.3, 0.4}})
	}))
	defer server.Close()

	c := NewHuggingFaceClient("hf-key", "org/model", WithHuggingFaceBaseURL(server.URL))
	vecs, err := c.CreateEmbedding(context.Background(), []string{"hello", "world"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.1, 0.2}, {0.3, 0.4}}, vecs)
}

func TestHuggingFaceEmbedErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		payload string
	}{
		{name: "http error", status: http.StatusServiceUnavailable, payload: `{"error":"loading"}`},
		{name: "bad json", status: http.StatusOK, payload: `{"error":"nope"}`},
		{name: "count mismatch", status: http.StatusOK, payload: `[[0.1]]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.payload))
			}))
			defer server.Close()

			c := NewHuggingFaceClient("k", "", WithHuggingFaceBaseURL(server.URL))
			_, err := c.CreateEmbedding(context.Background(), []string{"a", "b"})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrEmbeddingFailed)
		})
	}
}

func TestHuggingFaceEmbedEmptyInput(t *testing.T) {
	c := NewHuggingFaceClient("k", "m", WithHuggingFaceBaseURL("http://127.0.0.1:1"))
	vecs, err := c.CreateEmbedding(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &fakeClient{err: errors.New("upstream down")}
	b := NewBreaker(inner, BreakerSettings{Name: "test", MaxFailures: 2, Timeout: time.Minute})

	for i := 0; i < 2; i++ {
		_, err := b.CreateEmbedding(context.Background(), []string{"x"})
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	_, err := b.CreateEmbedding(context.Background(), []string{"x"})
	require.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.Equal(t, int32(2), inner.calls.Load(), "open circuit must not reach the backend")
}

func TestBreakerIgnoresCancelledRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	b := NewBreaker(NewHuggingFaceClient("k", "m", WithHuggingFaceBaseURL(server.URL)),
		BreakerSettings{Name: "cancel", MaxFailures: 2, Timeout: time.Minute})

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
		time.AfterFunc(20*time.Millisecond, cancel)
		_, err := b.CreateEmbedding(ctx, []string{"x"})
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.ErrorIs(t, err, ErrEmbeddingFailed)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreakerIgnoresCancelledRequestsWithOpaqueErrors(t *testing.T) {
	inner := &fakeClient{err: errors.New("stream reset")}
	b := NewBreaker(inner, BreakerSettings{Name: "opaque", MaxFailures: 2, Timeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 3; i++ {
		_, err := b.CreateEmbedding(ctx, []string{"x"})
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
	assert.Equal(t, int32(3), inner.calls.Load())

	// the same error without cancellation still trips the circuit
	for i := 0; i < 2; i++ {
		_, _ = b.CreateEmbedding(context.Background(), []string{"x"})
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())
}

func TestBreakerPassesThrough(t *testing.T) {
	inner := &fakeClient{fn: lengthVectors}
	b := NewBreaker(inner, BreakerSettings{Name: "ok"})

	vecs, err := b.CreateEmbedding(context.Background(), []string{"abc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{3, 1}}, vecs)
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestWrapBatchesAndStripsNewLines(t *testing.T) {
	var seen []string
	var batches int
	inner := &fakeClient{fn: func(texts []string) [][]float32 {
		batches++
		seen = append(seen, texts...)
		return lengthVectors(texts)
	}}

	e, err := Wrap(inner)
	require.NoError(t, err)

	texts := make([]string, batchSize+3)
	for i := range texts {
		texts[i] = "line\nbreak"
	}
	vecs, err := e.EmbedDocuments(context.Background(), texts)
	require.NoError(t, err)
	assert.Len(t, vecs, len(texts))
	assert.Equal(t, 2, batches)
	assert.Equal(t, "line break", seen[0])
}

func TestNewWithoutProvider(t *testing.T) {
	cfg := &config.Config{Provider: config.ProviderAuto, EmbeddingTimeout: time.Second}
	e, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestNewHuggingFace(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([][]float32{{1, 0}})
	}))
	defer server.Close()

	cfg := &config.Config{
		Provider:         config.ProviderHuggingFace,
		HuggingFaceKey:   "k",
		HuggingFaceModel: "m",
		HuggingFaceURL:   server.URL,
		EmbeddingTimeout: time.Second,
	}
	e, err := New(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "closed", e.CircuitState())

	vec, err := e.EmbedQuery(context.Background(), "query")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, vec)
}
