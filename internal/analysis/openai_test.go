package analysis_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tmskss/portfolio-health-report/internal/analysis"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	ResponseFormat *struct {
		Type       string `json:"type"`
		JSONSchema struct {
			Name   string          `json:"name"`
			Schema json.RawMessage `json:"schema"`
			Strict bool            `json:"strict"`
		} `json:"json_schema"`
	} `json:"response_format"`
}

func chatResponse(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
		"usage": map[string]any{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
	}
}

func newClient(t *testing.T, handler http.HandlerFunc) *analysis.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := analysis.New(analysis.Options{
		APIKey:         "test-key",
		BaseURL:        srv.URL + "/v1",
		Model:          "gpt-4o-mini",
		EmbeddingModel: "text-embedding-ada-002",
	}, nil)
	require.NoError(t, err)
	return client
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, payload any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(payload))
}

func TestAnalyzeThread(t *testing.T) {
	var captured chatRequest
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		writeJSON(t, w, http.StatusOK, chatResponse(validReport))
	})

	rep, err := client.AnalyzeThread(context.Background(), "From: a\nTo: b\nDate: d\nSubject: s\n\nbody", "Alice - PM")
	require.NoError(t, err)
	require.Equal(t, "Apollo", rep.Project)
	require.Equal(t, 3, rep.IssuesNeedingAttention[0].Priority)

	require.Equal(t, "gpt-4o-mini", captured.Model)
	require.Len(t, captured.Messages, 2)
	require.Equal(t, "system", captured.Messages[0].Role)
	require.Contains(t, captured.Messages[1].Content, "Subject: s\n\nbody")
	require.Contains(t, captured.Messages[1].Content, "Alice - PM")
	require.NotNil(t, captured.ResponseFormat)
	require.Equal(t, "json_schema", captured.ResponseFormat.Type)
	require.Equal(t, "email_thread_risk_analysis", captured.ResponseFormat.JSONSchema.Name)
	require.True(t, captured.ResponseFormat.JSONSchema.Strict)
	require.Contains(t, string(captured.ResponseFormat.JSONSchema.Schema), "issues_needing_attention")
}

func TestAnalyzeThreadMalformedResponse(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, chatResponse(`{"project":"p"}`))
	})

	_, err := client.AnalyzeThread(context.Background(), "thread", "")
	require.ErrorIs(t, err, analysis.ErrMalformedReport)
}

func TestAnalyzeThreadServiceError(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusTooManyRequests, map[string]any{
			"error": map[string]any{"message": "slow down", "type": "rate_limit", "code": "rate_limit_exceeded"},
		})
	})

	_, err := client.AnalyzeThread(context.Background(), "thread", "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "slow down")
}

func TestSynthesize(t *testing.T) {
	var captured chatRequest
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		writeJSON(t, w, http.StatusOK, chatResponse("Portfolio is amber."))
	})

	got, err := client.Synthesize(context.Background(), "Project: Apollo\n")
	require.NoError(t, err)
	require.Equal(t, "Portfolio is amber.", got)

	require.Nil(t, captured.ResponseFormat)
	require.Contains(t, captured.Messages[0].Content, "'Project' fields match")
	require.True(t, strings.HasPrefix(captured.Messages[1].Content, "Analyze these reports"))
	require.True(t, strings.HasSuffix(captured.Messages[1].Content, "Project: Apollo\n"))
}

func TestSynthesizeEmptyChoices(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		resp := chatResponse("")
		resp["choices"] = []map[string]any{}
		writeJSON(t, w, http.StatusOK, resp)
	})

	_, err := client.Synthesize(context.Background(), "x")
	require.ErrorIs(t, err, analysis.ErrEmptyResponse)
}

func TestEmbedDocumentsOrdersByIndex(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/embeddings", r.URL.Path)
		writeJSON(t, w, http.StatusOK, map[string]any{
			"object": "list",
			"model":  "text-embedding-ada-002",
			"data": []map[string]any{
				{"object": "embedding", "index": 1, "embedding": []float32{0.2}},
				{"object": "embedding", "index": 0, "embedding": []float32{0.1}},
			},
			"usage": map[string]any{"prompt_tokens": 2, "total_tokens": 2},
		})
	})

	got, err := client.EmbedDocuments(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Equal(t, [][]float32{{0.1}, {0.2}}, got)
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := analysis.New(analysis.Options{Model: "gpt-4o-mini"}, nil)
	require.Error(t, err)
}
