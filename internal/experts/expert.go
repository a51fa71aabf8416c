package experts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/linesage/linesage/internal/models"
)

// ErrorKind is the failure taxonomy shared by all adapters.
type ErrorKind string

const (
	ErrRateLimit     ErrorKind = "RATE_LIMIT"
	ErrTimeout       ErrorKind = "TIMEOUT"
	ErrAuth          ErrorKind = "AUTH_ERROR"
	ErrEmptyResponse ErrorKind = "EMPTY_RESPONSE"
	ErrTransport     ErrorKind = "TRANSPORT_ERROR"
	ErrBadRequest    ErrorKind = "BAD_REQUEST"
)

// AgentError is the typed failure an adapter surfaces instead of a response.
type AgentError struct {
	Expert  string
	Kind    ErrorKind
	Message string
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Expert, e.Kind, e.Message)
}

// Transient reports whether the failure is worth one retry.
func (e *AgentError) Transient() bool {
	switch e.Kind {
	case ErrRateLimit, ErrTimeout, ErrTransport, ErrEmptyResponse:
		return true
	default:
		return false
	}
}

// KindOf extracts the taxonomy kind from an adapter error.
func KindOf(err error) ErrorKind {
	var ae *AgentError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ErrTransport
}

// Expert is one LLM-backed advisor. Adapters are stateless between calls and
// safe for concurrent use; configuration is fixed at construction.
type Expert interface {
	Name() string
	Specialty() string
	SystemPrompt() string
	Ask(ctx context.Context, systemPrompt, userPrompt string) (*models.ExpertResponse, error)
}

// ConfidenceBounds clamp every reported confidence.
type ConfidenceBounds struct {
	Floor   float64
	Ceiling float64
}

// DefaultBounds matches the documented [0.3, 0.95] clamp.
func DefaultBounds() ConfidenceBounds {
	return ConfidenceBounds{Floor: 0.3, Ceiling: 0.95}
}

// scoreConfidence applies the uniform heuristic: a per-provider base,
// up to +0.10 for long detailed responses, down to -0.20 for very short
// ones, a small token-volume adjustment, clamped to the bounds.
func scoreConfidence(base float64, responseLen int, usage models.TokenUsage, b ConfidenceBounds) float64 {
	c := base
	switch {
	case responseLen > 800:
		c += 0.10
	case responseLen < 200:
		c -= 0.20
	}
	switch {
	case usage.CompletionTokens > 1000:
		c += 0.05
	case usage.CompletionTokens > 0 && usage.CompletionTokens < 300:
		c -= 0.10
	}
	if c > b.Ceiling {
		c = b.Ceiling
	}
	if c < b.Floor {
		c = b.Floor
	}
	return c
}

// postJSON issues one JSON POST and returns status and body. Transport and
// deadline failures are already translated into the taxonomy.
func postJSON(ctx context.Context, client *http.Client, expert, url string, headers map[string]string, payload any) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, &AgentError{Expert: expert, Kind: ErrBadRequest, Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, &AgentError{Expert: expert, Kind: ErrBadRequest, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return 0, nil, &AgentError{Expert: expert, Kind: ErrTimeout, Message: "deadline exceeded"}
		}
		return 0, nil, &AgentError{Expert: expert, Kind: ErrTransport, Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, &AgentError{Expert: expert, Kind: ErrTransport, Message: err.Error()}
	}
	return resp.StatusCode, data, nil
}

// classifyStatus maps a non-2xx provider status into the taxonomy.
func classifyStatus(expert string, status int, body []byte) error {
	msg := fmt.Sprintf("status %d: %s", status, truncate(string(body), 200))
	switch {
	case status == http.StatusTooManyRequests:
		return &AgentError{Expert: expert, Kind: ErrRateLimit, Message: msg}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &AgentError{Expert: expert, Kind: ErrAuth, Message: msg}
	case status == http.StatusBadRequest:
		return &AgentError{Expert: expert, Kind: ErrBadRequest, Message: msg}
	default:
		return &AgentError{Expert: expert, Kind: ErrTransport, Message: msg}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
