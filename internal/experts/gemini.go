package experts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/linesage/linesage/internal/config"
	"github.com/linesage/linesage/internal/models"
)

const (
	GeminiAPIURL = "https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent"
	GeminiModel  = "gemini-2.0-flash"

	geminiBaseConfidence = 0.78
)

// GeminiExpert is the technical-accuracy advisor backed by Google's
// generateContent API.
type GeminiExpert struct {
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	bounds      ConfidenceBounds
	httpClient  *http.Client
	log         *logrus.Logger
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func NewGeminiExpert(cfg config.ExpertConfig, bounds ConfidenceBounds, log *logrus.Logger) *GeminiExpert {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = GeminiAPIURL
	}
	model := cfg.Model
	if model == "" {
		model = GeminiModel
	}
	return &GeminiExpert{
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

func (e *GeminiExpert) Name() string      { return "Gemini" }
func (e *GeminiExpert) Specialty() string { return "기술적 정확성 및 공학적 접근" }

func (e *GeminiExpert) SystemPrompt() string {
	return `당신은 제조업 장비의 기술적 분석 전문가입니다.

전문성:
- 데이터와 수치를 중시하는 공학적 접근
- 장비 사양, 공차, 측정값 기반 진단
- 근본 원인의 기술적 규명

응답 시 측정 가능한 수치와 기술적 근거를 제시하고, 표준 사양 대비
편차와 공학적 해결 절차를 구체적으로 작성하세요.`
}

func (e *GeminiExpert) endpoint() string {
	if strings.Contains(e.baseURL, "%s") {
		return fmt.Sprintf(e.baseURL, e.model)
	}
	return e.baseURL
}

// Ask sends one prompt to Gemini. The system prompt is folded into the user
// content, the same way the upstream API is driven without systemInstruction.
func (e *GeminiExpert) Ask(ctx context.Context, systemPrompt, userPrompt string) (*models.ExpertResponse, error) {
	start := time.Now()

	prompt := userPrompt
	if systemPrompt != "" {
		prompt = "시스템 지시사항: " + systemPrompt + "\n\n" + userPrompt
	}

	payload := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}, Role: "user"}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     e.temperature,
			MaxOutputTokens: e.maxTokens,
		},
	}
	headers := map[string]string{"x-goog-api-key": e.apiKey}

	status, body, err := postJSON(ctx, e.httpClient, e.Name(), e.endpoint(), headers, payload)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, classifyStatus(e.Name(), status, body)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &AgentError{Expert: e.Name(), Kind: ErrTransport, Message: "malformed response: " + err.Error()}
	}

	var text string
	if len(parsed.Candidates) > 0 {
		for _, part := range parsed.Candidates[0].Content.Parts {
			text += part.Text
		}
	}
	if text == "" {
		return nil, &AgentError{Expert: e.Name(), Kind: ErrEmptyResponse, Message: "no candidate text"}
	}

	usage := models.TokenUsage{
		PromptTokens:     parsed.UsageMetadata.PromptTokenCount,
		CompletionTokens: parsed.UsageMetadata.CandidatesTokenCount,
		TotalTokens:      parsed.UsageMetadata.TotalTokenCount,
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
		Confidence:     scoreConfidence(geminiBaseConfidence, len(text), usage, e.bounds),
		TokenUsage:     usage,
		ProcessingTime: time.Since(start),
		Model:          e.model,
		CreatedAt:      time.Now(),
	}, nil
}
