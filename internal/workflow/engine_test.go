package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/linesage/linesage/internal/classifier"
	"github.com/linesage/linesage/internal/config"
	"github.com/linesage/linesage/internal/experts"
	"github.com/linesage/linesage/internal/models"
	"github.com/linesage/linesage/internal/moderator"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeExpert struct {
	name       string
	delay      time.Duration
	err        error
	confidence float64
}

func (f *fakeExpert) Name() string         { return f.name }
func (f *fakeExpert) Specialty() string    { return f.name + " 분야" }
func (f *fakeExpert) SystemPrompt() string { return "당신은 " + f.name + " 전문가입니다" }

func (f *fakeExpert) Ask(ctx context.Context, systemPrompt, userPrompt string) (*models.ExpertResponse, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, &experts.AgentError{Expert: f.name, Kind: experts.ErrTimeout, Message: "deadline exceeded"}
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &models.ExpertResponse{
		Expert:     f.name,
		Specialty:  f.Specialty(),
		Response:   f.name + "의 상세한 분석 의견입니다",
		Confidence: f.confidence,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// cannedModerator answers every phase with parseable JSON.
type cannedModerator struct {
	mu    sync.Mutex
	calls int
}

func (c *cannedModerator) Name() string { return "Claude" }

func (c *cannedModerator) Ask(ctx context.Context, systemPrompt, userPrompt string) (*models.ExpertResponse, error) {
	c.mu.Lock()
	c.calls++
	n := c.calls
	c.mu.Unlock()

	reply := `{"executive_summary": "종합 권고", "expert_consensus": "높음", "confidence_level": 0.8, "recommended_followup": "추가 점검"}`
	if n == 2 {
		reply = `{"debate_rounds": [{"round": 1, "topic": "원인", "discussions": [{"speaker": "GPT", "statement": "의견"}]}], "consensus_points": ["합의"], "final_agreement": "합의안"}`
	}
	return &models.ExpertResponse{Expert: "Claude", Response: reply, Confidence: 0.85}, nil
}

type emptySearcher struct{}

func (emptySearcher) Search(ctx context.Context, query string, topK int) *models.RetrievalContext {
	return &models.RetrievalContext{}
}

func testConfig() config.WorkflowConfig {
	cfg := config.Default().Workflow
	cfg.ClassifierTimeout = time.Second
	cfg.ExpertTimeout = time.Second
	cfg.ModeratorTimeout = time.Second
	return cfg
}

func newEngine(t *testing.T, pool []experts.Expert, cfg config.WorkflowConfig) (*Engine, *cannedModerator) {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	asker := &cannedModerator{}
	eng := NewEngine(
		classifier.New(emptySearcher{}, log),
		moderator.New(asker, log),
		pool,
		cfg,
		log,
	)
	eng.retry = experts.RetryConfig{MaxRetries: 0}
	return eng, asker
}

func TestRun_GeneralFirstTurnSingleExpert(t *testing.T) {
	eng, asker := newEngine(t, []experts.Expert{
		&fakeExpert{name: "GPT", confidence: 0.8},
		&fakeExpert{name: "Gemini", confidence: 0.78},
		&fakeExpert{name: "Clova", confidence: 0.7},
	}, testConfig())

	st, err := eng.Run(context.Background(), &State{UserMessage: "컨베이어 벨트가 자꾸 멈춰요"})
	require.NoError(t, err)

	assert.Equal(t, models.CategoryGeneral, st.Classification.Category)
	assert.Equal(t, []string{"GPT"}, st.Selection.Experts)
	assert.Equal(t, []string{"GPT"}, st.Recommendation.ParticipatingExperts)
	assert.Equal(t, 0, st.Recommendation.DebateRoundsCount)
	assert.Equal(t, 1, asker.calls, "single expert skips the debate phases")
	assert.Equal(t, []string{"classify", "select", "dispatch", "moderate"}, st.StepsCompleted)
	assert.False(t, st.AllFailed)
}

func TestRun_SafetyCriticalFansOutToAll(t *testing.T) {
	eng, _ := newEngine(t, []experts.Expert{
		&fakeExpert{name: "GPT", confidence: 0.8},
		&fakeExpert{name: "Gemini", confidence: 0.78},
		&fakeExpert{name: "Clova", confidence: 0.7},
	}, testConfig())

	st, err := eng.Run(context.Background(), &State{
		UserMessage: "브레이크가 안 잡혀요",
		IssueCode:   "ASBP-BRAKE-FADE",
	})
	require.NoError(t, err)

	assert.Len(t, st.Selection.Experts, 3)
	assert.Len(t, st.Responses, 3)
	assert.Empty(t, st.Failures)
	assert.GreaterOrEqual(t, st.Recommendation.DebateRoundsCount, 1)
	assert.ElementsMatch(t, []string{"GPT", "Gemini", "Clova"}, st.Recommendation.ParticipatingExperts)
	assert.Len(t, st.Timings, 3)
}

func TestRun_PartialFailureProceedsToModerate(t *testing.T) {
	eng, _ := newEngine(t, []experts.Expert{
		&fakeExpert{name: "GPT", confidence: 0.8},
		&fakeExpert{name: "Gemini", err: &experts.AgentError{Expert: "Gemini", Kind: experts.ErrAuth, Message: "bad key"}},
		&fakeExpert{name: "Clova", confidence: 0.7},
	}, testConfig())

	st, err := eng.Run(context.Background(), &State{
		UserMessage: "브레이크가 안 잡혀요",
		IssueCode:   "ASBP-BRAKE-FADE",
	})
	require.NoError(t, err)

	require.Len(t, st.Failures, 1)
	assert.Equal(t, "Gemini", st.Failures[0].Expert)
	assert.Equal(t, "AUTH_ERROR", st.Failures[0].Kind)
	assert.ElementsMatch(t, []string{"GPT", "Clova"}, st.Recommendation.ParticipatingExperts)
	assert.Contains(t, st.Recommendation.ExecutiveSummary, "Gemini")
}

func TestRun_AllFailedShortCircuits(t *testing.T) {
	broken := &experts.AgentError{Kind: experts.ErrBadRequest, Message: "rejected"}
	eng, asker := newEngine(t, []experts.Expert{
		&fakeExpert{name: "GPT", err: broken},
		&fakeExpert{name: "Gemini", err: broken},
		&fakeExpert{name: "Clova", err: broken},
	}, testConfig())

	st, err := eng.Run(context.Background(), &State{
		UserMessage: "브레이크가 안 잡혀요",
		IssueCode:   "ASBP-BRAKE-FADE",
	})
	require.NoError(t, err)

	assert.True(t, st.AllFailed)
	assert.Len(t, st.Failures, 3)
	assert.Equal(t, 0.0, st.Recommendation.ConfidenceLevel)
	assert.Equal(t, 0, asker.calls, "moderator adapter must stay idle on the all-failed path")
	assert.Contains(t, st.StepsCompleted, "all_failed")
	assert.NotContains(t, st.StepsCompleted, "moderate")
}

func TestRun_SlowExpertTimesOutOthersSurvive(t *testing.T) {
	cfg := testConfig()
	cfg.ExpertTimeout = 50 * time.Millisecond

	eng, _ := newEngine(t, []experts.Expert{
		&fakeExpert{name: "GPT", confidence: 0.8},
		&fakeExpert{name: "Gemini", delay: 500 * time.Millisecond, confidence: 0.78},
		&fakeExpert{name: "Clova", confidence: 0.7},
	}, cfg)

	st, err := eng.Run(context.Background(), &State{
		UserMessage: "브레이크가 안 잡혀요",
		IssueCode:   "ASBP-BRAKE-FADE",
	})
	require.NoError(t, err)

	require.Len(t, st.Failures, 1)
	assert.Equal(t, "TIMEOUT", st.Failures[0].Kind)
	assert.ElementsMatch(t, []string{"GPT", "Clova"}, st.SuccessfulExperts())
}

func TestRun_UnconfiguredExpertBecomesFailureRecord(t *testing.T) {
	eng, _ := newEngine(t, []experts.Expert{
		&fakeExpert{name: "GPT", confidence: 0.8},
	}, testConfig())

	st, err := eng.Run(context.Background(), &State{
		UserMessage: "브레이크가 안 잡혀요",
		IssueCode:   "ASBP-BRAKE-FADE",
	})
	require.NoError(t, err)

	assert.Len(t, st.Failures, 2)
	assert.Equal(t, []string{"GPT"}, st.SuccessfulExperts())
}

func TestRun_HooksObserveFailuresAndLatency(t *testing.T) {
	eng, _ := newEngine(t, []experts.Expert{
		&fakeExpert{name: "GPT", confidence: 0.8},
		&fakeExpert{name: "Gemini", err: &experts.AgentError{Expert: "Gemini", Kind: experts.ErrRateLimit, Message: "429"}},
		&fakeExpert{name: "Clova", confidence: 0.7},
	}, testConfig())

	var mu sync.Mutex
	failures := map[string]string{}
	latencies := map[string]float64{}
	eng.SetHooks(Hooks{
		ExpertFailure: func(expert, kind string) {
			mu.Lock()
			failures[expert] = kind
			mu.Unlock()
		},
		ExpertLatency: func(expert string, seconds float64) {
			mu.Lock()
			latencies[expert] = seconds
			mu.Unlock()
		},
	})

	_, err := eng.Run(context.Background(), &State{
		UserMessage: "브레이크가 안 잡혀요",
		IssueCode:   "ASBP-BRAKE-FADE",
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"Gemini": "RATE_LIMIT"}, failures)
	assert.Len(t, latencies, 3)
}

func TestRun_TurnDeadlineWithNoResponsesFiresAllFailed(t *testing.T) {
	eng, asker := newEngine(t, []experts.Expert{
		&fakeExpert{name: "GPT", delay: time.Second, confidence: 0.8},
	}, testConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	st, err := eng.Run(ctx, &State{UserMessage: "컨베이어 벨트가 자꾸 멈춰요"})
	require.NoError(t, err, "a deadline expiry is not a turn abort")

	assert.True(t, st.AllFailed)
	assert.Empty(t, st.Responses)
	require.Len(t, st.Failures, 1)
	require.NotNil(t, st.Recommendation)
	assert.Equal(t, 0.0, st.Recommendation.ConfidenceLevel)
	assert.Equal(t, "diagnostic", st.Recommendation.SynthesisMethod)
	assert.Equal(t, 0, asker.calls)
	assert.Contains(t, st.StepsCompleted, "all_failed")
}

func TestRun_TurnDeadlineWithCollectedResponsesStillModerates(t *testing.T) {
	cfg := testConfig()
	cfg.ExpertTimeout = 40 * time.Millisecond

	eng, _ := newEngine(t, []experts.Expert{
		&fakeExpert{name: "GPT", confidence: 0.8},
		&fakeExpert{name: "Gemini", confidence: 0.78},
		&fakeExpert{name: "Clova", delay: time.Second, confidence: 0.7},
	}, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	st, err := eng.Run(ctx, &State{
		UserMessage: "브레이크가 안 잡혀요",
		IssueCode:   "ASBP-BRAKE-FADE",
	})
	require.NoError(t, err)

	assert.False(t, st.AllFailed)
	assert.ElementsMatch(t, []string{"GPT", "Gemini"}, st.SuccessfulExperts())
	require.NotNil(t, st.Recommendation)
	assert.Greater(t, st.Recommendation.ConfidenceLevel, 0.0)
}

func TestRun_CallerCancelAbortsBeforeAnyResponse(t *testing.T) {
	eng, _ := newEngine(t, []experts.Expert{
		&fakeExpert{name: "GPT", delay: time.Second, confidence: 0.8},
	}, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(20*time.Millisecond, cancel)
	defer timer.Stop()

	st, err := eng.Run(ctx, &State{UserMessage: "컨베이어 벨트가 자꾸 멈춰요"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, st.Responses)
	assert.Nil(t, st.Recommendation)
}
