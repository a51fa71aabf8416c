package services

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/linesage/linesage/internal/classifier"
	"github.com/linesage/linesage/internal/config"
	"github.com/linesage/linesage/internal/models"
	"github.com/linesage/linesage/internal/session"
	"github.com/linesage/linesage/internal/workflow"
)

// maxMessageLen bounds the user message in runes.
const maxMessageLen = 5000

var (
	ErrInvalidMessage  = errors.New("user_message must be 1..5000 characters")
	ErrSessionNotFound = errors.New("session not found")
	ErrConcurrentTurn  = errors.New("another turn is in progress for this session")
)

// Observer is the slice of the monitoring surface the chat flow reports to.
type Observer interface {
	ChatRequestReceived()
	WorkflowSucceeded(d time.Duration)
	WorkflowFailed()
	ExpertSucceeded(expert string)
}

type nopObserver struct{}

func (nopObserver) ChatRequestReceived()            {}
func (nopObserver) WorkflowSucceeded(time.Duration) {}
func (nopObserver) WorkflowFailed()                 {}
func (nopObserver) ExpertSucceeded(string)          {}

// TurnRunner runs one turn of the diagnosis workflow.
type TurnRunner interface {
	Run(ctx context.Context, st *workflow.State) (*workflow.State, error)
}

// ChatRequest is one incoming chat turn. Sensor readings are optional; when
// present they feed the classifier's numeric severity trigger.
type ChatRequest struct {
	UserMessage string                     `json:"user_message" binding:"required"`
	SessionID   string                     `json:"session_id,omitempty"`
	IssueCode   string                     `json:"issue_code,omitempty"`
	OwnerID     string                     `json:"owner_id,omitempty"`
	Readings    []classifier.SensorReading `json:"sensor_readings,omitempty"`
}

// ChatResult is the committed outcome of one chat turn.
type ChatResult struct {
	Recommendation       *models.Recommendation `json:"recommendation"`
	SessionID            string                 `json:"session_id"`
	ConversationCount    int                    `json:"conversation_count"`
	ResponseType         string                 `json:"response_type"`
	ParticipatingExperts []string               `json:"participating_experts"`
	FailedExperts        []models.FailureRecord `json:"failed_experts,omitempty"`
	ProcessingTime       float64                `json:"processing_time_seconds"`
	ErrorKind            string                 `json:"error_kind,omitempty"`
	Debate               *models.DebateRecord   `json:"debate,omitempty"`
}

// ChatService drives one chat turn end to end: session resolution, workflow
// execution under the turn deadline, and the atomic history commit.
type ChatService struct {
	store    session.Store
	engine   TurnRunner
	observer Observer
	cfg      config.WorkflowConfig
	log      *logrus.Logger
}

func NewChatService(store session.Store, engine TurnRunner, cfg config.WorkflowConfig, log *logrus.Logger) *ChatService {
	return &ChatService{
		store:    store,
		engine:   engine,
		observer: nopObserver{},
		cfg:      cfg,
		log:      log,
	}
}

// SetObserver wires the monitoring surface. Call before serving traffic.
func (c *ChatService) SetObserver(o Observer) {
	if o != nil {
		c.observer = o
	}
}

// Chat executes one turn. An all-experts-failed turn returns a diagnostic
// result without touching the session; only session errors and carrier
// cancellation surface as errors.
func (c *ChatService) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	if n := utf8.RuneCountInString(req.UserMessage); n == 0 || n > maxMessageLen {
		return nil, ErrInvalidMessage
	}
	c.observer.ChatRequestReceived()
	start := time.Now()

	sess, err := c.resolveSession(ctx, req)
	if err != nil {
		return nil, err
	}

	tctx, cancel := context.WithTimeout(ctx, c.cfg.TurnTimeout)
	defer cancel()

	st, err := c.engine.Run(tctx, &workflow.State{
		UserMessage: req.UserMessage,
		IssueCode:   firstNonEmpty(req.IssueCode, sess.IssueCode),
		Readings:    req.Readings,
		History:     sess.History,
		TurnCount:   sess.ConversationCount,
	})
	if err != nil {
		c.observer.WorkflowFailed()
		return nil, fmt.Errorf("workflow: %w", err)
	}

	elapsed := time.Since(start)
	result := &ChatResult{
		Recommendation:       st.Recommendation,
		SessionID:            sess.ID,
		ParticipatingExperts: st.Recommendation.ParticipatingExperts,
		FailedExperts:        st.Failures,
		ProcessingTime:       elapsed.Seconds(),
		Debate:               st.Debate,
	}

	if st.AllFailed {
		c.observer.WorkflowFailed()
		result.ErrorKind = "ALL_EXPERTS_FAILED"
		result.ConversationCount = sess.ConversationCount
		result.ResponseType = responseType(sess.ConversationCount + 1)
		return result, nil
	}

	for _, name := range st.SuccessfulExperts() {
		c.observer.ExpertSucceeded(name)
	}

	updated, err := c.commitTurn(ctx, sess, req.UserMessage, st)
	if err != nil {
		c.observer.WorkflowFailed()
		return nil, err
	}
	c.observer.WorkflowSucceeded(elapsed)

	result.ConversationCount = updated.ConversationCount
	result.ResponseType = responseType(updated.ConversationCount)
	c.log.WithFields(logrus.Fields{
		"session_id": sess.ID,
		"turn":       updated.ConversationCount,
		"experts":    result.ParticipatingExperts,
		"elapsed":    elapsed.Seconds(),
	}).Info("chat turn completed")
	return result, nil
}

func (c *ChatService) resolveSession(ctx context.Context, req ChatRequest) (*models.Session, error) {
	if req.SessionID == "" {
		return c.store.Create(ctx, req.OwnerID, req.IssueCode)
	}
	sess, err := c.store.Get(ctx, req.SessionID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	return sess, err
}

// commitTurn appends under optimistic concurrency. A rejected append gets one
// confirming re-read: if the stored counter moved past the pre-turn read, a
// competing turn committed first and this turn fails with ErrConcurrentTurn;
// if the counter is unchanged the rejection was a spurious transaction abort
// and the append is retried once.
func (c *ChatService) commitTurn(ctx context.Context, sess *models.Session, userMessage string, st *workflow.State) (*models.Session, error) {
	turn := models.Turn{
		UserMessage:    userMessage,
		Reply:          st.Recommendation.ExecutiveSummary,
		Timestamp:      time.Now().UTC(),
		Experts:        st.SuccessfulExperts(),
		ExpertTimings:  st.Timings,
		Confidence:     st.Recommendation.ConfidenceLevel,
		Recommendation: st.Recommendation,
		Debate:         st.Debate,
	}

	updated, err := c.store.AppendTurn(ctx, sess.ID, turn, sess.ConversationCount)
	if errors.Is(err, session.ErrConcurrentTurn) {
		fresh, rerr := c.store.Get(ctx, sess.ID)
		if rerr != nil {
			return nil, fmt.Errorf("session re-read: %w", rerr)
		}
		if fresh.ConversationCount != sess.ConversationCount {
			return nil, ErrConcurrentTurn
		}
		updated, err = c.store.AppendTurn(ctx, sess.ID, turn, sess.ConversationCount)
		if errors.Is(err, session.ErrConcurrentTurn) {
			return nil, ErrConcurrentTurn
		}
	}
	if errors.Is(err, session.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session append: %w", err)
	}
	return updated, nil
}

func responseType(conversationCount int) string {
	if conversationCount <= 1 {
		return "first_question"
	}
	return "follow_up"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
