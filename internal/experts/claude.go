package experts

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/linesage/linesage/internal/config"
	"github.com/linesage/linesage/internal/models"
)

const (
	ClaudeAPIURL  = "https://api.anthropic.com/v1/messages"
	ClaudeModel   = "claude-3-5-sonnet-20240620"
	claudeVersion = "2023-06-01"

	claudeBaseConfidence = 0.85
)

// ClaudeExpert backs the debate moderator; it never joins the advice panel.
type ClaudeExpert struct {
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	bounds      ConfidenceBounds
	httpClient  *http.Client
	log         *logrus.Logger
}

type claudeRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature,omitempty"`
	System      string          `json:"system,omitempty"`
	Messages    []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func NewClaudeExpert(cfg config.ExpertConfig, bounds ConfidenceBounds, log *logrus.Logger) *ClaudeExpert {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = ClaudeAPIURL
	}
	model := cfg.Model
	if model == "" {
		model = ClaudeModel
	}
	return &ClaudeExpert{
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		model:       model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		bounds:      bounds,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		log:         log,
	}
}

func (e *ClaudeExpert) Name() string      { return "Claude" }
func (e *ClaudeExpert) Specialty() string { return "전문가 토론 진행 및 종합" }

func (e *ClaudeExpert) SystemPrompt() string {
	return `당신은 제조업 전문가 패널의 토론 진행자입니다. 전문가들의 의견을
비교하고 토론을 이끌어 합의된 최종 권장안을 도출합니다.`
}

// Ask sends one prompt to the Anthropic messages endpoint.
func (e *ClaudeExpert) Ask(ctx context.Context, systemPrompt, userPrompt string) (*models.ExpertResponse, error) {
	start := time.Now()

	payload := claudeRequest{
		Model:       e.model,
		MaxTokens:   e.maxTokens,
		Temperature: e.temperature,
		System:      systemPrompt,
		Messages:    []claudeMessage{{Role: "user", Content: userPrompt}},
	}
	headers := map[string]string{
		"x-api-key":         e.apiKey,
		"anthropic-version": claudeVersion,
	}

	status, body, err := postJSON(ctx, e.httpClient, e.Name(), e.baseURL, headers, payload)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, classifyStatus(e.Name(), status, body)
	}

	var parsed claudeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &AgentError{Expert: e.Name(), Kind: ErrTransport, Message: "malformed response: " + err.Error()}
	}

	var text string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return nil, &AgentError{Expert: e.Name(), Kind: ErrEmptyResponse, Message: "no text content"}
	}

	usage := models.TokenUsage{
		PromptTokens:     parsed.Usage.InputTokens,
		CompletionTokens: parsed.Usage.OutputTokens,
		TotalTokens:      parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
	}

	e.log.WithFields(logrus.Fields{
		"expert": e.Name(),
		"model":  e.model,
		"tokens": usage.TotalTokens,
	}).Debug("moderator call completed")

	return &models.ExpertResponse{
		Expert:         e.Name(),
		Specialty:      e.Specialty(),
		Response:       text,
		Confidence:     scoreConfidence(claudeBaseConfidence, len(text), usage, e.bounds),
		TokenUsage:     usage,
		ProcessingTime: time.Since(start),
		Model:          e.model,
		CreatedAt:      time.Now(),
	}, nil
}
