package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/felixgeelhaar/cotsynth/internal/domain"
	"github.com/felixgeelhaar/cotsynth/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeServer(t *testing.T, status int, content string) (*OpenAICompat, *chatRequest) {
	t.Helper()
	var got chatRequest

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []map[string]string{{"id": "model.gguf"}}})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		if status != http.StatusOK {
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"message": "context overflow"}})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model": got.Model,
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"},
			},
		})
	})

	server := newTestServer(t, mux)
	return NewOpenAICompat(server.URL+"/v1", "test-key", 5*time.Second), &got
}

func TestOpenAICompatGenerate(t *testing.T) {
	p, got := newFakeServer(t, http.StatusOK, " The answer is 4. ")
	ctx := context.Background()

	profile := domain.ModelProfile{ID: "qwen-gguf", Backend: domain.BackendGGUF, ServerModel: "qwen3-8b-q4"}
	require.NoError(t, p.Load(ctx, profile))

	out, err := p.Generate(ctx, []Message{System("s"), User("2+2?")}, Options{MaxNewTokens: 128, Temperature: 0.7, TopP: 0.9})
	require.NoError(t, err)
	assert.Equal(t, "The answer is 4.", out)

	assert.Equal(t, "qwen3-8b-q4", got.Model)
	assert.Equal(t, 128, got.MaxTokens)
	assert.InDelta(t, 0.7, got.Temperature, 1e-9)
	assert.False(t, got.Stream)
	assert.Len(t, got.Messages, 2)

	require.NoError(t, p.Unload(ctx))
	_, err = p.Generate(ctx, nil, Options{})
	assert.True(t, errors.HasCode(err, errors.ErrCodeModelNotLoaded))
}

func TestOpenAICompatServerError(t *testing.T) {
	p, _ := newFakeServer(t, http.StatusBadRequest, "")
	ctx := context.Background()

	require.NoError(t, p.Load(ctx, domain.ModelProfile{ID: "m"}))
	_, err := p.Generate(ctx, []Message{User("q")}, Options{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeBackendResponse))
	assert.Contains(t, err.Error(), "context overflow")
}

func TestOpenAICompatProbe(t *testing.T) {
	p, _ := newFakeServer(t, http.StatusOK, "")
	require.NoError(t, p.Probe(context.Background()))

	down := NewOpenAICompat("http://127.0.0.1:1/v1", "", time.Second)
	err := down.Probe(context.Background())
	assert.True(t, errors.HasCode(err, errors.ErrCodeBackendUnavailable))
}
