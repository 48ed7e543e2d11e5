package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"imageselector/internal/config"
)

var defaultHuggingFaceHTTPClient = &http.Client{Timeout: 30 * time.Second}

// HuggingFaceOption configures the Hugging Face backend.
type HuggingFaceOption func(*HuggingFaceClient)

// WithHuggingFaceBaseURL sets the inference base URL.
func WithHuggingFaceBaseURL(url string) HuggingFaceOption {
	return func(c *HuggingFaceClient) { c.baseURL = url }
}

// WithHuggingFaceClient sets a custom HTTP client.
func WithHuggingFaceClient(client *http.Client) HuggingFaceOption {
	return func(c *HuggingFaceClient) { c.client = client }
}

// HuggingFaceClient calls the hosted feature-extraction pipeline of a
// sentence-transformers model.
type HuggingFaceClient struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewHuggingFaceClient(apiKey, model string, opts ...HuggingFaceOption) *HuggingFaceClient {
	c := &HuggingFaceClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: config.DefaultHuggingFaceURL,
		client:  defaultHuggingFaceHTTPClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.model == "" {
		c.model = config.DefaultHuggingFaceModel
	}
	return c
}

type featureExtractionRequest struct {
	Inputs  []string                 `json:"inputs"`
	Options featureExtractionOptions `json:"options"`
}

type featureExtractionOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

// CreateEmbedding implements embeddings.EmbedderClient.
func (c *HuggingFaceClient) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(featureExtractionRequest{
		Inputs:  texts,
		Options: featureExtractionOptions{WaitForModel: true},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrEmbeddingFailed, err)
	}

	url := fmt.Sprintf("%s/models/%s/pipeline/feature-extraction", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrEmbeddingFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http request: %w", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrEmbeddingFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: API error %d: %s", ErrEmbeddingFailed, resp.StatusCode, string(respBody))
	}

	var vectors [][]float32
	if err := json.Unmarshal(respBody, &vectors); err != nil {
		return nil, fmt.Errorf("%w: unmarshal response: %v", ErrEmbeddingFailed, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vectors), len(texts))
	}
	return vectors, nil
}
