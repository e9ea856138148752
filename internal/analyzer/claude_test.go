package analyzer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadscout/leadscout/internal/models"
)

func messageReply(text string) map[string]interface{} {
	return map[string]interface{}{
		"id":          "msg_test",
		"type":        "message",
		"role":        "assistant",
		"model":       "claude-test",
		"stop_reason": "end_turn",
		"content": []map[string]interface{}{
			{"type": "text", "text": text},
		},
		"usage": map[string]interface{}{"input_tokens": 10, "output_tokens": 20},
	}
}

func newFakeClaude(t *testing.T, status int, body interface{}, seen *map[string]interface{}) *ClaudeClassifier {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		if seen != nil {
			_ = json.NewDecoder(r.Body).Decode(seen)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)

	return NewClaudeClassifier("test-key", "claude-test",
		option.WithBaseURL(srv.URL+"/"),
		option.WithMaxRetries(0),
	)
}

func TestClaudeClassifier_Classify(t *testing.T) {
	var req map[string]interface{}
	c := newFakeClaude(t, http.StatusOK,
		messageReply("```json\n{\"is_lead\":true,\"opportunity_type\":\"security\",\"opportunity_subtype\":\"pentest\",\"confidence\":0.87,\"reasoning\":\"asks for a pentest\"}\n```"),
		&req)

	result, err := c.Classify(context.Background(), "We need a pentest before our SOC2 audit", []string{"pentest"})
	require.NoError(t, err)

	assert.True(t, result.IsLead)
	assert.Equal(t, TypeSecurity, result.Type)
	assert.Equal(t, "pentest", result.Subtype)
	assert.InDelta(t, 0.87, result.Confidence, 0.0001)
	assert.Equal(t, "claude-test", req["model"])
	assert.NotEmpty(t, req["system"])
}

func TestClaudeClassifier_UnparseableReply(t *testing.T) {
	c := newFakeClaude(t, http.StatusOK, messageReply("I'd rather not say"), nil)

	result, err := c.Classify(context.Background(), "hiring a designer", nil)
	require.NoError(t, err)
	assert.Equal(t, TypeUnknown, result.Type)
	assert.False(t, result.IsValidLead(0.5))
}

func TestClaudeClassifier_APIError(t *testing.T) {
	c := newFakeClaude(t, http.StatusInternalServerError, map[string]interface{}{
		"type":  "error",
		"error": map[string]interface{}{"type": "api_error", "message": "boom"},
	}, nil)

	_, err := c.Classify(context.Background(), "hiring a designer", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrAnalyzerUnavailable)
	assert.True(t, models.IsRetryable(err))
}

func TestClaudeClassifier_ErrorKinds(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		errType   string
		want      error
		retryable bool
	}{
		{"bad request", http.StatusBadRequest, "invalid_request_error", models.ErrAnalyzerRejected, false},
		{"auth", http.StatusUnauthorized, "authentication_error", models.ErrAnalyzerRejected, false},
		{"rate limited", http.StatusTooManyRequests, "rate_limit_error", models.ErrAnalyzerUnavailable, true},
		{"overloaded", 529, "overloaded_error", models.ErrAnalyzerUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newFakeClaude(t, tt.status, map[string]interface{}{
				"type":  "error",
				"error": map[string]interface{}{"type": tt.errType, "message": "nope"},
			}, nil)

			_, err := c.Classify(context.Background(), "hiring a designer", nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.retryable, models.IsRetryable(err))
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	p := buildPrompt("I am a designer with 10 years of experience", []string{"design", "ux"})
	assert.Contains(t, p, "Search keywords: design, ux")
	assert.Contains(t, p, "offering services")

	p = buildPrompt("Looking for a designer", nil)
	assert.NotContains(t, p, "Search keywords")
	assert.NotContains(t, p, "offering services")
}
