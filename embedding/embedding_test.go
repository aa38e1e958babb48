package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bwenge/ragcore/types"
)

func TestGeminiProvider_EmbedQueryUsesQueryTaskType(t *testing.T) {
	t.Parallel()

	var gotReq geminiEmbedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		json.NewEncoder(w).Encode(geminiEmbedResponse{
			Embedding: geminiContentEmbedding{Values: []float64{0.1, 0.2, 0.3}},
		})
	}))
	defer srv.Close()

	p := NewGeminiProvider(GeminiConfig{APIKey: "test-key", BaseURL: srv.URL})

	vec, err := p.EmbedQuery(context.Background(), "what is semantic search?")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, geminiTaskRetrievalQuery, gotReq.TaskType)
}

func TestGeminiProvider_EmbedDocumentsUsesBatchEndpoint(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var gotReq geminiBatchEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		require.Len(t, gotReq.Requests, 2)
		assert.Equal(t, geminiTaskRetrievalDocument, gotReq.Requests[0].TaskType)

		json.NewEncoder(w).Encode(geminiBatchEmbedResponse{
			Embeddings: []geminiContentEmbedding{
				{Values: []float64{1, 0}},
				{Values: []float64{0, 1}},
			},
		})
	}))
	defer srv.Close()

	p := NewGeminiProvider(GeminiConfig{APIKey: "k", BaseURL: srv.URL})

	vecs, err := p.EmbedDocuments(context.Background(), []string{"doc one", "doc two"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float64{1, 0}, vecs[0])
	assert.Equal(t, []float64{0, 1}, vecs[1])
}

func TestGeminiProvider_ServerErrorIsEmbeddingProviderError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewGeminiProvider(GeminiConfig{APIKey: "k", BaseURL: srv.URL})

	_, err := p.EmbedQuery(context.Background(), "q")
	require.Error(t, err)
	assert.True(t, types.IsEmbeddingProvider(err))
	assert.True(t, types.IsRetryable(err))
}

func TestGeminiProvider_EmptyInputIsInvalidArgument(t *testing.T) {
	t.Parallel()

	p := NewGeminiProvider(GeminiConfig{APIKey: "k"})
	_, err := p.Embed(context.Background(), &EmbeddingRequest{})
	require.Error(t, err)
	assert.True(t, types.IsInvalidArgument(err))
}

func TestOpenAIProvider_EmbedDocuments(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var gotReq openAIEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		require.Len(t, gotReq.Input, 2)

		var resp openAIEmbedResponse
		resp.Model = gotReq.Model
		resp.Data = []struct {
			Object    string    `json:"object"`
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		}{
			{Index: 0, Embedding: []float64{0.5, 0.5}},
			{Index: 1, Embedding: []float64{0.1, 0.9}},
		}
		resp.Usage.PromptTokens = 7
		resp.Usage.TotalTokens = 7
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL})

	vecs, err := p.EmbedDocuments(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float64{0.5, 0.5}, vecs[0])
}

func TestOpenAIProvider_AuthFailureNotRetryable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "bad", BaseURL: srv.URL})

	_, err := p.EmbedQuery(context.Background(), "q")
	require.Error(t, err)
	assert.True(t, types.IsEmbeddingProvider(err))
	assert.False(t, types.IsRetryable(err))
}
