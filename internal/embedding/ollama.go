package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	eqerrors "eventqual/internal/errors"
	"eventqual/internal/logging"
)

// ollamaDefaultDimensions is what embeddinggemma produces. Other models
// report their real width after the first successful call.
const ollamaDefaultDimensions = 768

// OllamaEngine embeds text with a local Ollama server through the batch
// /api/embed endpoint.
type OllamaEngine struct {
	endpoint string
	model    string
	client   *http.Client
	dims     atomic.Int32
}

// NewOllamaEngine creates an engine talking to endpoint (default
// http://localhost:11434) with model (default embeddinggemma).
func NewOllamaEngine(endpoint, model string) (*OllamaEngine, error) {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	if model == "" {
		model = "embeddinggemma"
	}
	e := &OllamaEngine{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	e.dims.Store(ollamaDefaultDimensions)
	return e, nil
}

// Embed embeds a single text.
func (e *OllamaEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds every text in one request. The result has one vector
// per input, in order.
func (e *OllamaEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	const op = "embedding.ollama"
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, eqerrors.Wrap(eqerrors.EInvalidInput, op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, eqerrors.Wrap(eqerrors.EInvalidInput, op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, eqerrors.Wrap(eqerrors.EExternalUnavailable, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, eqerrors.Newf(eqerrors.EExternalUnavailable, op, "status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, eqerrors.Wrap(eqerrors.EMalformedResponse, op, err)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, eqerrors.Newf(eqerrors.EMalformedResponse, op, "got %d embeddings for %d inputs", len(out.Embeddings), len(texts))
	}
	for i, v := range out.Embeddings {
		if len(v) == 0 {
			return nil, eqerrors.Newf(eqerrors.EMalformedResponse, op, "empty embedding at index %d", i)
		}
	}

	if w := int32(len(out.Embeddings[0])); w != e.dims.Load() {
		logging.EmbeddingDebug("ollama model %s reports %d dimensions", e.model, w)
		e.dims.Store(w)
	}
	return out.Embeddings, nil
}

// Dimensions returns the width of the last embedding seen, 768 before any call.
func (e *OllamaEngine) Dimensions() int {
	return int(e.dims.Load())
}

// HealthCheck probes /api/tags.
func (e *OllamaEngine) HealthCheck(ctx context.Context) error {
	const op = "embedding.ollama.health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.endpoint+"/api/tags", nil)
	if err != nil {
		return eqerrors.Wrap(eqerrors.EInvalidInput, op, err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return eqerrors.Wrap(eqerrors.EExternalUnavailable, op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return eqerrors.Newf(eqerrors.EExternalUnavailable, op, "unreachable at %s: status %d", e.endpoint, resp.StatusCode)
	}
	return nil
}

// Name returns "ollama:<model>".
func (e *OllamaEngine) Name() string {
	return fmt.Sprintf("ollama:%s", e.model)
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}
