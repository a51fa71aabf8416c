package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linesage/linesage/internal/config"
	"github.com/linesage/linesage/internal/models"
	"github.com/linesage/linesage/internal/monitoring"
	"github.com/linesage/linesage/internal/retrieval"
	"github.com/linesage/linesage/internal/services"
	"github.com/linesage/linesage/internal/session"
	"github.com/linesage/linesage/internal/workflow"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubRunner stands in for the workflow with one canned successful expert.
type stubRunner struct{}

func (stubRunner) Run(ctx context.Context, st *workflow.State) (*workflow.State, error) {
	st.Responses = []*models.ExpertResponse{{Expert: "GPT", Response: "의견", Confidence: 0.8}}
	st.Recommendation = &models.Recommendation{
		ExecutiveSummary:     "베어링을 교체하세요",
		ConfidenceLevel:      0.8,
		ParticipatingExperts: []string{"GPT"},
		SynthesisMethod:      "single_expert",
	}
	return st, nil
}

type memKnowledge struct {
	name string
	docs []retrieval.Document
}

func (m *memKnowledge) Name() string { return m.name }

func (m *memKnowledge) Search(ctx context.Context, query string, topK int) ([]models.Snippet, error) {
	return nil, nil
}

func (m *memKnowledge) AddDocuments(ctx context.Context, docs []retrieval.Document) error {
	m.docs = append(m.docs, docs...)
	return nil
}

func testRouter(t *testing.T) (*gin.Engine, session.Store, *memKnowledge) {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	store := session.NewMemoryStore(50)
	chat := services.NewChatService(store, stubRunner{}, config.Default().Workflow, log)

	vector := &memKnowledge{name: "chromadb"}
	keyword := &memKnowledge{name: "elasticsearch"}
	provider := retrieval.NewProvider(vector, keyword, log)

	reg := prometheus.NewRegistry()
	monitor := monitoring.New(reg)

	router := NewRouter(chat, store, provider, monitor, reg, log)
	return router.Setup(), store, vector
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestChatEndpoint(t *testing.T) {
	engine, _, _ := testRouter(t)

	w := doJSON(t, engine, http.MethodPost, "/api/v1/chat", gin.H{"user_message": "컨베이어 벨트가 멈춰요"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res services.ChatResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.NotEmpty(t, res.SessionID)
	assert.Equal(t, 1, res.ConversationCount)
	assert.Equal(t, "first_question", res.ResponseType)
	assert.Equal(t, []string{"GPT"}, res.ParticipatingExperts)
}

func TestChatEndpoint_Validation(t *testing.T) {
	engine, _, _ := testRouter(t)

	w := doJSON(t, engine, http.MethodPost, "/api/v1/chat", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, engine, http.MethodPost, "/api/v1/chat", gin.H{
		"user_message": "질문", "session_id": "sess_missing",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "SESSION_NOT_FOUND", body.Kind)
}

func TestSessionLifecycleEndpoints(t *testing.T) {
	engine, _, _ := testRouter(t)

	w := doJSON(t, engine, http.MethodPost, "/api/v1/sessions", gin.H{"owner_id": "user-1", "issue_code": "ASBP-GRILL-GAP"})
	require.Equal(t, http.StatusCreated, w.Code)

	var created models.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "ASBP-GRILL-GAP", created.IssueCode)

	w = doJSON(t, engine, http.MethodGet, "/api/v1/sessions/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, engine, http.MethodGet, "/api/v1/sessions/"+created.ID+"/history", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "conversation_history")

	w = doJSON(t, engine, http.MethodPost, "/api/v1/sessions/"+created.ID+"/end", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, engine, http.MethodDelete, "/api/v1/sessions/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, engine, http.MethodGet, "/api/v1/sessions/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIssueLookupEndpoint(t *testing.T) {
	engine, _, _ := testRouter(t)

	w := doJSON(t, engine, http.MethodGet, "/api/v1/issues/ASBP-BRAKE-FADE", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "SAFETY_CRITICAL")

	w = doJSON(t, engine, http.MethodGet, "/api/v1/issues/ASBP-UNKNOWN", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAddDocumentsEndpoint(t *testing.T) {
	engine, _, vector := testRouter(t)

	w := doJSON(t, engine, http.MethodPost, "/api/v1/documents", gin.H{
		"documents": []gin.H{{"content": "베어링 마모 대응 절차", "title": "bearing", "category": "maintenance"}},
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, vector.docs, 1)
	assert.Equal(t, "베어링 마모 대응 절차", vector.docs[0].Content)

	w = doJSON(t, engine, http.MethodPost, "/api/v1/documents", gin.H{"documents": []gin.H{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthEndpoint(t *testing.T) {
	engine, store, _ := testRouter(t)
	_, err := store.Create(context.Background(), "user-1", "")
	require.NoError(t, err)

	w := doJSON(t, engine, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var h monitoring.Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &h))
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, 1, h.ActiveSessions)
}

func TestMetricsEndpoint(t *testing.T) {
	engine, _, _ := testRouter(t)

	doJSON(t, engine, http.MethodGet, "/health", nil)
	w := doJSON(t, engine, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "linesage_total_requests")
}
