package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"
)

// Sentinel errors for the chat oracle
var (
	// ErrOracleUnavailable is returned when the chat service cannot be reached
	ErrOracleUnavailable = errors.New("moderation oracle unavailable")
	// ErrRequestFailed is returned for non-2xx responses
	ErrRequestFailed = errors.New("moderation request failed")
	// ErrMalformedVerdict is returned when the reply has no is_valid field
	ErrMalformedVerdict = errors.New("moderation verdict malformed")
)

const (
	DefaultChatEndpoint = "http://localhost:11434"
	DefaultChatModel    = "llama3.1:8b"
	DefaultChatTimeout  = 30 * time.Second

	EndpointChat = "/api/chat"
)

// SystemPrompt primes the model with accepted and rejected examples.
const SystemPrompt = `You are a moderator for a fictional satellite imagery company.
Decide whether the user's caption is valid and reply with {"is_valid": true} or {"is_valid": false}.

Examples of valid captions:
 * A satellite image of a mountain
 * A satellite image of a dark blue river
 * A satellite image of an island in a deep blue ocean
 * A satellite image of a natural disaster
 * A satellite image of a sci fi futuristic city

Examples of invalid captions:
 * A satellite image of Trump
 * A satellite image of <body part>
 * A satellite image of a cat girl
 * A satellite image of <something that cannot be possibly be seen from space>`

// verdictSchema constrains the model reply to {"is_valid": bool}.
var verdictSchema = map[string]any{
	"type":       "object",
	"properties": map[string]any{"is_valid": map[string]any{"type": "boolean"}},
	"required":   []string{"is_valid"},
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   map[string]any `json:"format"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

type verdict struct {
	IsValid *bool `json:"is_valid"`
}

// ChatOracle asks an Ollama-compatible chat endpoint to judge captions.
type ChatOracle struct {
	endpoint   string
	model      string
	httpClient *http.Client
}

// NewChatOracle creates an oracle. Empty arguments select the defaults.
func NewChatOracle(endpoint, model string, timeout time.Duration) *ChatOracle {
	if endpoint == "" {
		endpoint = DefaultChatEndpoint
	}
	if model == "" {
		model = DefaultChatModel
	}
	if timeout <= 0 {
		timeout = DefaultChatTimeout
	}
	return &ChatOracle{
		endpoint:   strings.TrimRight(endpoint, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Approve implements Oracle.
func (o *ChatOracle) Approve(ctx context.Context, caption string) (bool, error) {
	body, err := json.Marshal(chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: caption},
		},
		Stream:  false,
		Format:  verdictSchema,
		Options: map[string]any{"temperature": 0},
	})
	if err != nil {
		return false, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+EndpointChat, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return false, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("%w: unexpected status %d", ErrRequestFailed, resp.StatusCode)
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}

	var v verdict
	if err := json.Unmarshal([]byte(chat.Message.Content), &v); err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedVerdict, err)
	}
	if v.IsValid == nil {
		return false, fmt.Errorf("%w: missing is_valid", ErrMalformedVerdict)
	}
	return *v.IsValid, nil
}

func classifyError(err error) error {
	if errors.Is(err, context.Canceled) {
		return context.Canceled
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: timeout", ErrOracleUnavailable)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("%w: connection refused", ErrOracleUnavailable)
	}
	return fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
}
