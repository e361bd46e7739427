package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jmehdipour/data-moodboard/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeOpenAI(t *testing.T) (*OpenAIClient, *map[string]any) {
	t.Helper()
	var lastBody map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&lastBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"commands\":[],\"message\":\"ok\"}"},"finish_reason":"stop"}]}`))
	})
	mux.HandleFunc("/v1/images/generations", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&lastBody))
		w.Header().Set("Content-Type", "application/json")
		b64 := base64.StdEncoding.EncodeToString([]byte("\x89PNG fake"))
		_, _ = w.Write([]byte(`{"created":1,"data":[{"b64_json":"` + b64 + `"}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := NewOpenAIClient(config.OpenAIConfig{
		APIKey:     "test",
		BaseURL:    srv.URL + "/v1",
		Model:      "gpt-4o-mini",
		ImageModel: "dall-e-3",
		Timeout:    5 * time.Second,
		MaxTokens:  100,
	})
	return c, &lastBody
}

func TestOpenAIComplete(t *testing.T) {
	c, body := newFakeOpenAI(t)

	out, err := c.Complete(context.Background(), "sys", []Message{{Role: "user", Content: "hi"}}, CompletionOptions{Temperature: 0.2, JSON: true})
	require.NoError(t, err)
	assert.Equal(t, `{"commands":[],"message":"ok"}`, out)

	assert.Equal(t, "gpt-4o-mini", (*body)["model"])
	msgs := (*body)["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "json_object", (*body)["response_format"].(map[string]any)["type"])
}

func TestOpenAIGenerateImage(t *testing.T) {
	c, body := newFakeOpenAI(t)

	img, err := c.GenerateImage(context.Background(), "a red fox", "1024x1024")
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG fake"), img)
	assert.Equal(t, "b64_json", (*body)["response_format"])
	assert.Equal(t, "dall-e-3", (*body)["model"])
}

func TestOpenAIUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(config.OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1", Model: "m", Timeout: time.Second})
	_, err := c.Complete(context.Background(), "", []Message{{Role: "user", Content: "x"}}, CompletionOptions{})
	assert.Error(t, err)
}
