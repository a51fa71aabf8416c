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
	ClovaAPIURL = "https://clovastudio.stream.ntruss.com/testapp/v1/chat-completions/HCX-003"
	ClovaModel  = "HCX-003"

	clovaBaseConfidence = 0.70
)

// ClovaExpert is the hands-on practitioner advisor backed by Naver
// HyperCLOVA X.
type ClovaExpert struct {
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	bounds      ConfidenceBounds
	httpClient  *http.Client
	log         *logrus.Logger
}

type clovaRequest struct {
	Messages      []clovaMessage `json:"messages"`
	TopP          float64        `json:"topP,omitempty"`
	MaxTokens     int            `json:"maxTokens,omitempty"`
	Temperature   float64        `json:"temperature,omitempty"`
	RepeatPenalty float64        `json:"repeatPenalty,omitempty"`
}

type clovaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type clovaResponse struct {
	Result struct {
		Message clovaMessage `json:"message"`
	} `json:"result"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

func NewClovaExpert(cfg config.ExpertConfig, bounds ConfidenceBounds, log *logrus.Logger) *ClovaExpert {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = ClovaAPIURL
	}
	model := cfg.Model
	if model == "" {
		model = ClovaModel
	}
	return &ClovaExpert{
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

func (e *ClovaExpert) Name() string      { return "Clova" }
func (e *ClovaExpert) Specialty() string { return "실무 경험 및 비용 효율성" }

func (e *ClovaExpert) SystemPrompt() string {
	return `당신은 제조업 현장에서 20년 이상 경험을 쌓은 실무 전문가입니다.

전문성:
- 풍부한 현장 경험과 실무 노하우
- 비용 효율적인 해결 방안 제시
- 작업자 관점에서의 실행 가능성 고려

현장에서 바로 적용 가능하고 비용 대비 효과가 높은, 구체적이고 현실적인
조언을 제공하세요.`
}

// Ask sends one prompt to the Clova chat-completions endpoint.
func (e *ClovaExpert) Ask(ctx context.Context, systemPrompt, userPrompt string) (*models.ExpertResponse, error) {
	start := time.Now()

	payload := clovaRequest{
		Messages: []clovaMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		TopP:          0.8,
		MaxTokens:     e.maxTokens,
		Temperature:   e.temperature,
		RepeatPenalty: 5.0,
	}
	headers := map[string]string{"X-NCP-APIGW-API-KEY": e.apiKey}

	status, body, err := postJSON(ctx, e.httpClient, e.Name(), e.baseURL, headers, payload)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, classifyStatus(e.Name(), status, body)
	}

	var parsed clovaResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &AgentError{Expert: e.Name(), Kind: ErrTransport, Message: "malformed response: " + err.Error()}
	}

	text := parsed.Result.Message.Content
	if text == "" {
		return nil, &AgentError{Expert: e.Name(), Kind: ErrEmptyResponse, Message: "no message content"}
	}

	usage := models.TokenUsage{
		PromptTokens:     parsed.Usage.InputTokens,
		CompletionTokens: parsed.Usage.OutputTokens,
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
		Confidence:     scoreConfidence(clovaBaseConfidence, len(text), usage, e.bounds),
		TokenUsage:     usage,
		ProcessingTime: time.Since(start),
		Model:          e.model,
		CreatedAt:      time.Now(),
	}, nil
}
