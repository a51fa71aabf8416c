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
	OpenAIAPIURL = "https://api.openai.com/v1/chat/completions"
	OpenAIModel  = "gpt-4o-mini"

	gptBaseConfidence = 0.80
)

// GPTExpert is the comprehensive-analysis advisor backed by OpenAI chat
// completions.
type GPTExpert struct {
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	bounds      ConfidenceBounds
	httpClient  *http.Client
	log         *logrus.Logger
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// NewGPTExpert builds the adapter; configuration is fixed for the lifetime of
// the process.
func NewGPTExpert(cfg config.ExpertConfig, bounds ConfidenceBounds, log *logrus.Logger) *GPTExpert {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = OpenAIAPIURL
	}
	model := cfg.Model
	if model == "" {
		model = OpenAIModel
	}
	return &GPTExpert{
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

func (e *GPTExpert) Name() string      { return "GPT" }
func (e *GPTExpert) Specialty() string { return "종합 분석 및 논리적 해결책" }

func (e *GPTExpert) SystemPrompt() string {
	return `당신은 제조업 장비 문제 해결 전문가입니다.

전문성:
- 종합적이고 논리적인 문제 분석
- 단계별 해결 방법 제시
- 안전성을 최우선으로 고려
- 체계적이고 구조화된 접근

응답 시 문제 진단, 단계별 해결 방법, 예상 소요 시간, 안전 주의사항,
장기적 예방 방안을 포함하고 명확하고 실행 가능한 형태로 작성하세요.`
}

// Ask sends one prompt to OpenAI and returns a complete ExpertResponse.
func (e *GPTExpert) Ask(ctx context.Context, systemPrompt, userPrompt string) (*models.ExpertResponse, error) {
	start := time.Now()

	payload := openAIRequest{
		Model: e.model,
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: e.temperature,
		MaxTokens:   e.maxTokens,
	}
	headers := map[string]string{"Authorization": "Bearer " + e.apiKey}

	status, body, err := postJSON(ctx, e.httpClient, e.Name(), e.baseURL, headers, payload)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, classifyStatus(e.Name(), status, body)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &AgentError{Expert: e.Name(), Kind: ErrTransport, Message: "malformed response: " + err.Error()}
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return nil, &AgentError{Expert: e.Name(), Kind: ErrEmptyResponse, Message: "no completion text"}
	}

	text := parsed.Choices[0].Message.Content
	usage := models.TokenUsage{
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
		TotalTokens:      parsed.Usage.TotalTokens,
	}

	e.log.WithFields(logrus.Fields{
		"expert": e.Name(),
		"model":  e.model,
		"tokens": usage.TotalTokens,
	}).Debug("expert call completed")

	return &models.ExpertResponse{
		Expert:         e.Name(),
		Specialty:      e.Specialty(),
		Response:       text,
		Confidence:     scoreConfidence(gptBaseConfidence, len(text), usage, e.bounds),
		TokenUsage:     usage,
		ProcessingTime: time.Since(start),
		Model:          e.model,
		CreatedAt:      time.Now(),
	}, nil
}
