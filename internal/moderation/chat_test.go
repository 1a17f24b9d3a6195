package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChatServer replies with reply as the assistant content
func fakeChatServer(t *testing.T, reply func(req chatRequest) string) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, EndpointChat, r.URL.Path)

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		json.NewEncoder(w).Encode(chatResponse{
			Message: chatMessage{Role: "assistant", Content: reply(req)},
			Done:    true,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestChatOracleApprove(t *testing.T) {
	ctx := context.Background()

	srv := fakeChatServer(t, func(req chatRequest) string {
		assert.Equal(t, "test-model", req.Model)
		assert.False(t, req.Stream)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, SystemPrompt, req.Messages[0].Content)
		assert.Equal(t, "user", req.Messages[1].Role)
		assert.Contains(t, req.Format, "properties")

		if strings.Contains(req.Messages[1].Content, "Trump") {
			return `{"is_valid": false}`
		}
		return `{"is_valid": true}`
	})

	o := NewChatOracle(srv.URL, "test-model", 0)

	ok, err := o.Approve(ctx, "a satellite image of a mountain")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = o.Approve(ctx, "a satellite image of Trump")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChatOracleMalformedVerdict(t *testing.T) {
	for name, content := range map[string]string{
		"not json":      "sure, looks fine",
		"wrong key":     `{"valid": true}`,
		"wrong type":    `{"is_valid": "yes"}`,
		"empty content": "",
	} {
		t.Run(name, func(t *testing.T) {
			srv := fakeChatServer(t, func(chatRequest) string { return content })
			_, err := NewChatOracle(srv.URL, "", 0).Approve(context.Background(), "a satellite image")
			assert.True(t, errors.Is(err, ErrMalformedVerdict), "got %v", err)
		})
	}
}

func TestChatOracleErrors(t *testing.T) {
	t.Run("error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := NewChatOracle(srv.URL, "", 0).Approve(context.Background(), "a satellite image of a lake")
		assert.True(t, errors.Is(err, ErrRequestFailed))
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := NewChatOracle(url, "", 0).Approve(context.Background(), "a satellite image of a lake")
		assert.True(t, errors.Is(err, ErrOracleUnavailable))
	})
}
