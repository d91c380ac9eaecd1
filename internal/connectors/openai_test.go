package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIClientGenerate(t *testing.T) {
	var got openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"# Policy"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/", Model: "gpt-test"})
	out, err := c.Generate(context.Background(), Prompt{System: "sys", User: "Company: Acme Corp", MaxTokens: 1200, Temperature: 0.3})
	require.NoError(t, err)
	assert.Equal(t, "# Policy", out)

	assert.Equal(t, "gpt-test", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "Company: Acme Corp", got.Messages[1].Content)
	assert.Equal(t, 1200, got.MaxTokens)
}

func TestOpenAIClientErrorKinds(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		header    string
		kind      ErrorKind
		transient bool
		retry     time.Duration
	}{
		{"rate limit", http.StatusTooManyRequests, "7", KindRateLimited, true, 7 * time.Second},
		{"server", http.StatusBadGateway, "", KindServer, true, 0},
		{"auth", http.StatusUnauthorized, "", KindAuth, false, 0},
		{"bad request", http.StatusBadRequest, "", KindBadRequest, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.header != "" {
					w.Header().Set("Retry-After", tt.header)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"x"}}`))
			}))
			defer srv.Close()

			c := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
			_, err := c.Generate(context.Background(), Prompt{User: "u"})

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.kind, apiErr.Kind)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, "boom", apiErr.Message)
			assert.Equal(t, tt.transient, IsTransient(err))
			assert.Equal(t, tt.retry, apiErr.RetryAfter)
		})
	}
}

func TestOpenAIClientWithoutKey(t *testing.T) {
	c := NewOpenAIClient(OpenAIConfig{})
	_, err := c.Generate(context.Background(), Prompt{User: "u"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, KindAuth, apiErr.Kind)
}

func TestMockGenerator(t *testing.T) {
	m := &MockGenerator{}
	out, err := m.Generate(context.Background(), Prompt{User: "Policy: AI Ethics Policy\nCompany: Acme Corp"})
	require.NoError(t, err)
	assert.Contains(t, out, "# AI Ethics Policy")
	assert.Contains(t, out, "Acme Corp")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	slow := &MockGenerator{MinLatency: time.Second, MaxLatency: 2 * time.Second}
	_, err = slow.Generate(ctx, Prompt{User: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}
