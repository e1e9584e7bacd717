//go:build e2e

// Package e2e exercises the full HTTP surface against a real router, a real
// vector store, and an OpenAI-compatible fake upstream. The fake upstream
// returns deterministic embeddings so retrieval order is stable across runs.
package e2e

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/askbase/askbase/internal/api/handlers"
	"github.com/askbase/askbase/internal/chunker"
	"github.com/askbase/askbase/internal/config"
	"github.com/askbase/askbase/internal/knowledge"
	"github.com/askbase/askbase/internal/provider"
	"github.com/askbase/askbase/internal/rag"
	"github.com/askbase/askbase/internal/server"
	"github.com/askbase/askbase/internal/session"
	"github.com/askbase/askbase/internal/vectorstore"
)

// testDimension keeps the fake embeddings small; the store dimension must
// match what the upstream returns.
const testDimension = 8

// streamDeltas is what the fake upstream emits for streaming completions.
var streamDeltas = []string{"Solar panels ", "convert sunlight ", "into electricity."}

// completionText is the fake upstream's non-streaming answer.
const completionText = "Solar panels convert sunlight into electricity."

// embedText maps text to a deterministic unit vector using bag-of-words
// hashing, so texts sharing words land closer in cosine space.
func embedText(text string) []float32 {
	vec := make([]float32, testDimension)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(word))
		vec[h.Sum32()%testDimension]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

// newFakeProvider serves the OpenAI wire shapes the adapters expect:
// /v1/embeddings, /v1/chat/completions (streaming and not), /v1/models.
func newFakeProvider(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		type embeddingItem struct {
			Object    string    `json:"object"`
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		items := make([]embeddingItem, len(req.Input))
		for i, text := range req.Input {
			items[i] = embeddingItem{Object: "embedding", Index: i, Embedding: embedText(text)}
		}

		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   items,
			"model":  "text-embedding-3-small",
		})
	})

	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Stream bool `json:"stream"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if !req.Stream {
			fmt.Fprintf(w, `{"id":"cmpl-1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":%q},"finish_reason":"stop"}]}`, completionText)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, delta := range streamDeltas {
			payload, _ := json.Marshal(map[string]any{
				"id":      "cmpl-1",
				"object":  "chat.completion.chunk",
				"choices": []map[string]any{{"index": 0, "delta": map[string]string{"content": delta}}},
			})
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	})

	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"object":"list","data":[{"id":"gpt-4o-mini","object":"model"},{"id":"text-embedding-3-small","object":"model"}]}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// EnvOptions selects the backing pieces for one test environment.
type EnvOptions struct {
	// Store overrides the default local store, e.g. with a pgvector store.
	Store vectorstore.Store
	// Archiver attaches an optional raw-file archive.
	Archiver knowledge.Archiver
	// NoSystemCredentials leaves the deployment without provider keys so
	// only guest configs can authenticate.
	NoSystemCredentials bool
}

// TestEnv is one running instance of the service: router, store, and a fake
// provider upstream, all torn down with the test.
type TestEnv struct {
	Server      *httptest.Server
	ProviderURL string
	Client      *http.Client
}

// NewTestEnv wires the full service the same way the serve command does and
// exposes it over an httptest server.
func NewTestEnv(t *testing.T, opts EnvOptions) *TestEnv {
	t.Helper()

	upstream := newFakeProvider(t)

	cfg := &config.Config{
		VectorBackend:      config.BackendLocal,
		EmbeddingDimension: testDimension,
		ChunkWindow:        120,
		ChunkOverlap:       20,
		TopK:               8,
		ContextBudget:      4000,
		MaxTokens:          64,
		Temperature:        0.3,
		MaxUploadBytes:     1 << 20,
		RequestTimeout:     10 * time.Second,
		StreamIdleTimeout:  5 * time.Second,
	}
	if !opts.NoSystemCredentials {
		cfg.LLMProvider = "openai"
		cfg.LLMModel = "gpt-4o-mini"
		cfg.LLMAPIKey = "sk-e2e-system"
		cfg.LLMBaseURL = upstream.URL + "/v1"
		cfg.EmbeddingProvider = "openai"
		cfg.EmbeddingModel = "text-embedding-3-small"
		cfg.EmbeddingAPIKey = "sk-e2e-system"
		cfg.EmbeddingBaseURL = upstream.URL + "/v1"
	}

	store := opts.Store
	if store == nil {
		local, err := vectorstore.NewLocalStore(t.TempDir(), testDimension)
		require.NoError(t, err)
		t.Cleanup(func() { local.Close() })
		store = local
	}

	registry := provider.NewRegistry(provider.Options{
		Temperature:    cfg.Temperature,
		MaxTokens:      cfg.MaxTokens,
		RequestTimeout: cfg.RequestTimeout,
	})

	svc := knowledge.NewService(store, registry, chunker.SplitConfig{
		Window:  cfg.ChunkWindow,
		Overlap: cfg.ChunkOverlap,
	})
	if opts.Archiver != nil {
		svc = svc.WithArchiver(opts.Archiver)
	}

	pipeline := rag.NewPipeline(store, registry, rag.Options{
		TopK:          cfg.TopK,
		ContextBudget: cfg.ContextBudget,
		DeltaTimeout:  cfg.StreamIdleTimeout,
	})

	router := server.NewRouter(server.RouterConfig{
		Resolver:        session.NewResolver(cfg),
		DocumentHandler: handlers.NewDocumentHandler(svc, cfg.MaxUploadBytes),
		QueryHandler:    handlers.NewQueryHandler(pipeline),
		ModelsHandler:   handlers.NewModelsHandler(registry),
		MaxBodyBytes:    cfg.MaxUploadBytes,
		HealthInfo:      map[string]string{"environment": "e2e"},
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &TestEnv{
		Server:      srv,
		ProviderURL: upstream.URL,
		Client:      &http.Client{Timeout: 30 * time.Second},
	}
}

// GuestConfigHeader builds an X-Provider-Config value pointing at the fake
// upstream.
func (env *TestEnv) GuestConfigHeader(t *testing.T) string {
	t.Helper()
	raw, err := json.Marshal(session.GuestConfig{
		LLMProvider:       "openai",
		LLMModel:          "gpt-4o-mini",
		LLMAPIKey:         "sk-e2e-guest",
		LLMBaseURL:        env.ProviderURL + "/v1",
		EmbeddingProvider: "openai",
		EmbeddingModel:    "text-embedding-3-small",
		EmbeddingBaseURL:  env.ProviderURL + "/v1",
	})
	require.NoError(t, err)
	return string(raw)
}

func (env *TestEnv) do(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := env.Client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

// Get performs a GET and returns the status and raw body.
func (env *TestEnv) Get(t *testing.T, path string, headers map[string]string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, env.Server.URL+path, nil)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, body := env.do(t, req)
	return resp.StatusCode, body
}

// PostJSON posts a JSON body and returns the status and raw body.
func (env *TestEnv) PostJSON(t *testing.T, path string, payload any, headers map[string]string) (int, []byte) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, env.Server.URL+path, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, body := env.do(t, req)
	return resp.StatusCode, body
}

// Delete performs a DELETE and returns the status and raw body.
func (env *TestEnv) Delete(t *testing.T, path string, headers map[string]string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodDelete, env.Server.URL+path, nil)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, body := env.do(t, req)
	return resp.StatusCode, body
}

// Upload sends one file as multipart form data and returns the status and
// raw body.
func (env *TestEnv) Upload(t *testing.T, filename, content, description string, headers map[string]string) (int, []byte) {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	if description != "" {
		require.NoError(t, writer.WriteField("description", description))
	}
	require.NoError(t, writer.Close())

	req, err := http.NewRequest(http.MethodPost, env.Server.URL+"/upload", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, body := env.do(t, req)
	return resp.StatusCode, body
}

// decodeData unwraps the {"data": ...} envelope into out.
func decodeData(t *testing.T, body []byte, out any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &envelope))
	require.NotNil(t, envelope.Data, "response has no data field: %s", body)
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

// sseEvent is one decoded data: line from an event stream.
type sseEvent struct {
	Chunk   string `json:"chunk"`
	Status  string `json:"status"`
	Error   string `json:"error"`
	Partial bool   `json:"partial"`
}

// streamEvents opens /stream and collects every SSE event until the
// connection closes.
func (env *TestEnv) streamEvents(t *testing.T, path string, headers map[string]string) (int, []sseEvent) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, env.Server.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/event-stream")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	// no client timeout: the stream stays open until the server finishes
	resp, err := (&http.Client{}).Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}

	var events []sseEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event sseEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event))
		events = append(events, event)
	}
	require.NoError(t, scanner.Err())
	return resp.StatusCode, events
}
