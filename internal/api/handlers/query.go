package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/askbase/askbase/internal/api"
	"github.com/askbase/askbase/internal/api/middleware"
	"github.com/askbase/askbase/internal/domain"
	"github.com/askbase/askbase/internal/rag"
	"github.com/askbase/askbase/internal/session"
)

type QueryPipeline interface {
	Ask(ctx context.Context, input rag.QueryInput) (*rag.AnswerStream, error)
	Answer(ctx context.Context, input rag.QueryInput) (*rag.Answer, error)
}

type QueryHandler struct {
	pipeline QueryPipeline
}

func NewQueryHandler(pipeline QueryPipeline) *QueryHandler {
	return &QueryHandler{pipeline: pipeline}
}

type QueryRequest struct {
	Question       string               `json:"question"`
	TopK           int                  `json:"top_k,omitempty"`
	ProviderConfig *session.GuestConfig `json:"provider_config,omitempty"`
}

type SourceResponse struct {
	DocumentID string  `json:"document_id"`
	Ordinal    int     `json:"ordinal"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

type QueryResponse struct {
	Question    string           `json:"question"`
	Answer      string           `json:"answer"`
	Status      string           `json:"status"`
	EmptyCorpus bool             `json:"empty_corpus,omitempty"`
	Sources     []SourceResponse `json:"sources,omitempty"`
}

// resolveScope prefers a provider_config carried in the request body over the
// scope the middleware resolved from headers.
func resolveScope(r *http.Request, guest *session.GuestConfig) (*session.Scope, error) {
	if guest != nil {
		return guest.Scope()
	}
	if scope := middleware.GetScope(r.Context()); scope != nil {
		return scope, nil
	}
	return nil, domain.NewDomainError(domain.ErrCodeAuth, "no provider credentials configured; supply a provider config")
}

// Query answers a question in one shot, without streaming.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		api.Error(w, http.StatusBadRequest, "question is required")
		return
	}

	scope, err := resolveScope(r, req.ProviderConfig)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	answer, err := h.pipeline.Answer(r.Context(), rag.QueryInput{
		Question:   req.Question,
		Embedding:  scope.Embedding,
		Generation: scope.Generation,
		TopK:       req.TopK,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	sources := make([]SourceResponse, len(answer.Sources))
	for i, c := range answer.Sources {
		sources[i] = SourceResponse{
			DocumentID: c.DocumentID,
			Ordinal:    c.Ordinal,
			Text:       c.Text,
			Score:      answer.Scores[i],
		}
	}

	api.JSON(w, http.StatusOK, QueryResponse{
		Question:    req.Question,
		Answer:      answer.Text,
		Status:      "success",
		EmptyCorpus: answer.EmptyCorpus,
		Sources:     sources,
	})
}

type streamChunkEvent struct {
	Chunk string `json:"chunk"`
}

type streamDoneEvent struct {
	Status string `json:"status"`
}

type streamErrorEvent struct {
	Error   string `json:"error"`
	Partial bool   `json:"partial,omitempty"`
}

// Stream answers a question as server-sent events. Each delta arrives as
// data: {"chunk": ...}; the stream ends with {"status":"done"} on success or
// {"error": ...} on failure. A failure after deltas is marked partial and is
// never retried server-side.
func (h *QueryHandler) Stream(w http.ResponseWriter, r *http.Request) {
	question := r.URL.Query().Get("question")
	if question == "" {
		api.Error(w, http.StatusBadRequest, "question is required")
		return
	}

	topK := 0
	if raw := r.URL.Query().Get("top_k"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			topK = parsed
		}
	}

	scope, err := resolveScope(r, nil)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	stream, err := h.pipeline.Ask(r.Context(), rag.QueryInput{
		Question:   question,
		Embedding:  scope.Embedding,
		Generation: scope.Generation,
		TopK:       topK,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}
	defer stream.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		api.Error(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for {
		delta, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				writeSSE(w, flusher, streamDoneEvent{Status: "done"})
			} else {
				writeSSE(w, flusher, streamErrorEvent{Error: err.Error(), Partial: stream.Partial()})
			}
			return
		}
		writeSSE(w, flusher, streamChunkEvent{Chunk: delta})
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
	flusher.Flush()
}
