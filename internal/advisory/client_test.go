package advisory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pilltrack/pilltrack/internal/config"
	apperrors "github.com/pilltrack/pilltrack/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func advisoryServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(config.AdvisoryConfig{
		Enabled: true,
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "test-model",
		Timeout: 5,
	})
}

func modelReply(t *testing.T, w http.ResponseWriter, payload string) {
	t.Helper()

	resp := generateResponse{}
	resp.Candidates = []struct {
		Content content `json:"content"`
	}{
		{Content: content{Parts: []part{{Text: payload}}}},
	}
	require.NoError(t, json.NewEncoder(w).Encode(resp))
}

func TestCheck_Success(t *testing.T) {
	client := advisoryServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "test-model")
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))

		modelReply(t, w, `{
			"hasInteractions": true,
			"summary": "One moderate interaction found",
			"details": [{
				"description": "Increased bleeding risk",
				"severity": "Moderate",
				"management": "Monitor closely",
				"interactingDrugs": ["Aspirin 100mg", "Warfarin 5mg"]
			}]
		}`)
	})

	res, err := client.Check(context.Background(), []string{"Aspirin 100mg", "Warfarin 5mg"})
	require.NoError(t, err)
	assert.True(t, res.HasInteractions)
	require.Len(t, res.Details, 1)
	assert.Equal(t, SeverityModerate, res.Details[0].Severity)
}

func TestCheck_MarkdownFencedPayload(t *testing.T) {
	client := advisoryServer(t, func(w http.ResponseWriter, r *http.Request) {
		modelReply(t, w, "```json\n{\"hasInteractions\": false, \"summary\": \"No interactions\"}\n```")
	})

	res, err := client.Check(context.Background(), []string{"A", "B"})
	require.NoError(t, err)
	assert.False(t, res.HasInteractions)
	assert.Equal(t, "No interactions", res.Summary)
}

func TestCheck_UnknownSeverityNormalized(t *testing.T) {
	client := advisoryServer(t, func(w http.ResponseWriter, r *http.Request) {
		modelReply(t, w, `{"hasInteractions": true, "summary": "s", "details": [{"description": "d", "severity": "Catastrophic"}]}`)
	})

	res, err := client.Check(context.Background(), []string{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, SeverityUnknown, res.Details[0].Severity)
}

func TestCheck_ServerError(t *testing.T) {
	client := advisoryServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := client.Check(context.Background(), []string{"A", "B"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrAdvisoryUnavailable.Code, apperrors.GetCode(err))
}

func TestCheck_MalformedPayload(t *testing.T) {
	client := advisoryServer(t, func(w http.ResponseWriter, r *http.Request) {
		modelReply(t, w, "definitely not json")
	})

	_, err := client.Check(context.Background(), []string{"A", "B"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrAdvisoryMalformed.Code, apperrors.GetCode(err))
}

func TestCheck_BreakerTrips(t *testing.T) {
	calls := 0
	client := advisoryServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	for i := 0; i < 5; i++ {
		_, err := client.Check(context.Background(), []string{"A", "B"})
		require.Error(t, err)
	}

	// After three consecutive failures the breaker stops hitting the server
	assert.Equal(t, 3, calls)
}
