//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askbase/askbase/internal/api/handlers"
	"github.com/askbase/askbase/internal/storage"
	"github.com/askbase/askbase/internal/testutil"
	"github.com/askbase/askbase/internal/vectorstore"
)

const solarNotes = `Solar panels convert sunlight into electricity through the
photovoltaic effect. Panels are wired into arrays, and an inverter converts
the direct current they produce into alternating current for the grid.
Typical residential panels produce between 250 and 400 watts each.`

func TestHealthz(t *testing.T) {
	env := NewTestEnv(t, EnvOptions{})

	status, body := env.Get(t, "/healthz", nil)

	require.Equal(t, http.StatusOK, status)
	var health map[string]string
	decodeData(t, body, &health)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "e2e", health["environment"])
}

func TestDocumentLifecycle(t *testing.T) {
	env := NewTestEnv(t, EnvOptions{})

	status, body := env.Upload(t, "solar.txt", solarNotes, "residential solar notes", nil)
	require.Equal(t, http.StatusCreated, status, "upload failed: %s", body)

	var doc handlers.DocumentResponse
	decodeData(t, body, &doc)
	assert.Equal(t, "processed", doc.Status)
	assert.Equal(t, "solar.txt", doc.Filename)
	assert.Equal(t, "residential solar notes", doc.Description)
	assert.Greater(t, doc.ChunkCount, 0)
	assert.Greater(t, doc.RawTextLength, 0)

	status, body = env.Get(t, "/documents/"+doc.ID, nil)
	require.Equal(t, http.StatusOK, status)
	var fetched handlers.DocumentResponse
	decodeData(t, body, &fetched)
	assert.Equal(t, doc.ID, fetched.ID)

	status, body = env.Get(t, "/documents/", nil)
	require.Equal(t, http.StatusOK, status)
	var list handlers.DocumentListResponse
	decodeData(t, body, &list)
	require.Len(t, list.Items, 1)
	assert.False(t, list.HasMore)

	status, body = env.Get(t, "/documents/stats", nil)
	require.Equal(t, http.StatusOK, status)
	var stats handlers.StatsResponse
	decodeData(t, body, &stats)
	assert.Equal(t, int64(1), stats.DocumentCount)
	assert.Equal(t, int64(doc.ChunkCount), stats.VectorCount)

	status, _ = env.Delete(t, "/documents/"+doc.ID, nil)
	require.Equal(t, http.StatusOK, status)

	status, body = env.Get(t, "/documents/stats", nil)
	require.Equal(t, http.StatusOK, status)
	decodeData(t, body, &stats)
	assert.Equal(t, int64(0), stats.DocumentCount)
	assert.Equal(t, int64(0), stats.VectorCount)

	status, _ = env.Get(t, "/documents/"+doc.ID, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestListPagination(t *testing.T) {
	env := NewTestEnv(t, EnvOptions{})

	for i := 0; i < 3; i++ {
		status, body := env.Upload(t, fmt.Sprintf("notes-%d.txt", i), solarNotes, "", nil)
		require.Equal(t, http.StatusCreated, status, "upload failed: %s", body)
	}

	status, body := env.Get(t, "/documents/?limit=2", nil)
	require.Equal(t, http.StatusOK, status)
	var first handlers.DocumentListResponse
	decodeData(t, body, &first)
	require.Len(t, first.Items, 2)
	require.True(t, first.HasMore)
	require.NotEmpty(t, first.Cursor)

	status, body = env.Get(t, "/documents/?limit=2&cursor="+first.Cursor, nil)
	require.Equal(t, http.StatusOK, status)
	var second handlers.DocumentListResponse
	decodeData(t, body, &second)
	require.Len(t, second.Items, 1)
	assert.False(t, second.HasMore)

	// no overlap between pages
	seen := map[string]bool{}
	for _, d := range append(first.Items, second.Items...) {
		assert.False(t, seen[d.ID])
		seen[d.ID] = true
	}
}

func TestQuery_EmptyCorpus(t *testing.T) {
	env := NewTestEnv(t, EnvOptions{})

	status, body := env.PostJSON(t, "/query", map[string]any{
		"question": "How do solar panels work?",
	}, nil)

	require.Equal(t, http.StatusOK, status, "query failed: %s", body)
	var resp handlers.QueryResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, "success", resp.Status)
	assert.True(t, resp.EmptyCorpus)
	assert.Empty(t, resp.Sources)
	assert.NotEmpty(t, resp.Answer)
}

func TestQuery_WithSources(t *testing.T) {
	env := NewTestEnv(t, EnvOptions{})

	status, body := env.Upload(t, "solar.txt", solarNotes, "", nil)
	require.Equal(t, http.StatusCreated, status, "upload failed: %s", body)

	status, body = env.PostJSON(t, "/query", map[string]any{
		"question": "How do solar panels convert sunlight?",
	}, nil)

	require.Equal(t, http.StatusOK, status, "query failed: %s", body)
	var resp handlers.QueryResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, "success", resp.Status)
	assert.False(t, resp.EmptyCorpus)
	assert.NotEmpty(t, resp.Answer)
	require.NotEmpty(t, resp.Sources)
	for _, src := range resp.Sources {
		assert.NotEmpty(t, src.DocumentID)
		assert.NotEmpty(t, src.Text)
	}
}

func TestStream(t *testing.T) {
	env := NewTestEnv(t, EnvOptions{})

	status, body := env.Upload(t, "solar.txt", solarNotes, "", nil)
	require.Equal(t, http.StatusCreated, status, "upload failed: %s", body)

	status, events := env.streamEvents(t, "/stream?question=How+do+solar+panels+work", nil)

	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.Equal(t, "done", last.Status)
	assert.Empty(t, last.Error)

	var answer string
	for _, e := range events[:len(events)-1] {
		require.NotEmpty(t, e.Chunk)
		answer += e.Chunk
	}
	assert.Equal(t, completionText, answer)
}

func TestStream_MissingQuestion(t *testing.T) {
	env := NewTestEnv(t, EnvOptions{})

	status, _ := env.streamEvents(t, "/stream", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestGuestScope(t *testing.T) {
	env := NewTestEnv(t, EnvOptions{NoSystemCredentials: true})

	// without credentials anywhere, ingestion is refused
	status, _ := env.Upload(t, "solar.txt", solarNotes, "", nil)
	require.Equal(t, http.StatusUnauthorized, status)

	// a guest header authenticates the upload
	headers := map[string]string{"X-Provider-Config": env.GuestConfigHeader(t)}
	status, body := env.Upload(t, "solar.txt", solarNotes, "", headers)
	require.Equal(t, http.StatusCreated, status, "guest upload failed: %s", body)

	// a provider config in the request body works without the header
	status, body = env.PostJSON(t, "/query", map[string]any{
		"question": "How do solar panels work?",
		"provider_config": map[string]string{
			"llm_provider":       "openai",
			"llm_model":          "gpt-4o-mini",
			"llm_api_key":        "sk-e2e-guest",
			"llm_base_url":       env.ProviderURL + "/v1",
			"embedding_provider": "openai",
			"embedding_model":    "text-embedding-3-small",
			"embedding_base_url": env.ProviderURL + "/v1",
		},
	}, nil)
	require.Equal(t, http.StatusOK, status, "guest query failed: %s", body)
	var resp handlers.QueryResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.False(t, resp.EmptyCorpus)

	// a query with neither header nor body config is refused
	status, _ = env.PostJSON(t, "/query", map[string]any{"question": "anything"}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	// malformed guest header is rejected outright
	status, _ = env.Get(t, "/documents/", map[string]string{"X-Provider-Config": "{not json"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestModels(t *testing.T) {
	env := NewTestEnv(t, EnvOptions{})

	status, body := env.Get(t, "/models", nil)
	require.Equal(t, http.StatusOK, status)

	var resp handlers.ModelsResponse
	decodeData(t, body, &resp)
	require.NotEmpty(t, resp.Embedding)
	require.NotEmpty(t, resp.Generation)

	var openaiAvailable bool
	for _, catalog := range resp.Generation {
		if catalog.Name == "openai" && catalog.Available {
			openaiAvailable = true
			assert.Contains(t, catalog.Models, "gpt-4o-mini")
		}
	}
	assert.True(t, openaiAvailable)
}

func TestPostgresBackend(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	t.Cleanup(func() { pc.Terminate(context.Background()) })

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	t.Cleanup(pool.Close)

	store, err := vectorstore.NewPostgresStore(pool, testDimension)
	require.NoError(t, err)

	env := NewTestEnv(t, EnvOptions{Store: store})

	status, body := env.Upload(t, "solar.txt", solarNotes, "", nil)
	require.Equal(t, http.StatusCreated, status, "upload failed: %s", body)
	var doc handlers.DocumentResponse
	decodeData(t, body, &doc)
	assert.Equal(t, "processed", doc.Status)
	assert.Greater(t, doc.ChunkCount, 0)

	status, body = env.PostJSON(t, "/query", map[string]any{
		"question": "How much power does a residential panel produce?",
	}, nil)
	require.Equal(t, http.StatusOK, status, "query failed: %s", body)
	var resp handlers.QueryResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.False(t, resp.EmptyCorpus)
	assert.NotEmpty(t, resp.Sources)

	status, _ = env.Delete(t, "/documents/"+doc.ID, nil)
	require.Equal(t, http.StatusOK, status)

	status, body = env.Get(t, "/documents/stats", nil)
	require.Equal(t, http.StatusOK, status)
	var stats handlers.StatsResponse
	decodeData(t, body, &stats)
	assert.Equal(t, int64(0), stats.VectorCount)
}

func TestS3Archive(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	rc := testutil.NewRustFSContainer(ctx, t)
	t.Cleanup(func() { rc.Terminate(context.Background()) })

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        rc.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     "rustfsadmin",
		SecretAccessKey: "rustfsadmin",
		Bucket:          "askbase-e2e",
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	require.NoError(t, s3Client.EnsureBucket(ctx))

	env := NewTestEnv(t, EnvOptions{Archiver: s3Client})

	status, body := env.Upload(t, "solar.txt", solarNotes, "", nil)
	require.Equal(t, http.StatusCreated, status, "upload failed: %s", body)
	var doc handlers.DocumentResponse
	decodeData(t, body, &doc)

	key := fmt.Sprintf("documents/%s/%s", doc.ID, doc.Filename)
	meta, err := s3Client.HeadObject(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(len(solarNotes)), meta.ContentLength)

	raw, err := s3Client.GetObject(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, solarNotes, string(raw))

	status, _ = env.Delete(t, "/documents/"+doc.ID, nil)
	require.Equal(t, http.StatusOK, status)

	_, err = s3Client.HeadObject(ctx, key)
	assert.Error(t, err, "archived copy should be removed with the document")
}
