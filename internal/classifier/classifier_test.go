package classifier

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linesage/linesage/internal/models"
)

type fixedSearcher struct {
	rc *models.RetrievalContext
}

func (f *fixedSearcher) Search(ctx context.Context, query string, topK int) *models.RetrievalContext {
	if f.rc != nil {
		return f.rc
	}
	return &models.RetrievalContext{}
}

func newTestClassifier() *Classifier {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return New(&fixedSearcher{}, log)
}

func TestClassify_IssueCodeDirectPath(t *testing.T) {
	cls, _ := newTestClassifier().Classify(context.Background(), Request{
		Message:   "도어에 문제가 있습니다",
		IssueCode: "ASBP-BRAKE-FADE",
	})

	assert.Equal(t, models.CategorySafetyCritical, cls.Category)
	assert.Equal(t, models.SeverityCritical, cls.Severity)
	assert.Equal(t, "ASBP-BRAKE-FADE", cls.IssueCode)
	assert.Equal(t, 1.0, cls.MatchScore)
	assert.NotEmpty(t, cls.CommonCauses)
	assert.NotEmpty(t, cls.StandardSolutions)
}

func TestClassify_IssueCodeNormalized(t *testing.T) {
	cls, _ := newTestClassifier().Classify(context.Background(), Request{
		Message:   "질문",
		IssueCode: "  asbp-door-scratch ",
	})
	assert.Equal(t, "ASBP-DOOR-SCRATCH", cls.IssueCode)
	assert.Equal(t, models.CategoryPractical, cls.Category)
}

func TestClassify_KeywordMatch(t *testing.T) {
	cls, _ := newTestClassifier().Classify(context.Background(), Request{
		Message: "엔진에서 이상음이 나고 진동이 심해요",
	})

	assert.Equal(t, "ASBP-ENGINE-NOISE", cls.IssueCode)
	assert.Equal(t, models.CategoryTechnical, cls.Category)
	assert.Equal(t, models.SeverityHigh, cls.Severity)
	assert.Greater(t, cls.MatchScore, 0.0)
}

func TestClassify_NoMatchFallsBackToGeneral(t *testing.T) {
	cls, _ := newTestClassifier().Classify(context.Background(), Request{
		Message: "오늘 날씨가 좋네요",
	})

	assert.Equal(t, models.CategoryGeneral, cls.Category)
	assert.Equal(t, models.SeverityNormal, cls.Severity)
	assert.Empty(t, cls.IssueCode)
}

func TestClassify_CostIntentOverridesDictionaryCategory(t *testing.T) {
	cls, _ := newTestClassifier().Classify(context.Background(), Request{
		Message: "엔진 소음 수리 비용이 얼마나 들까요",
	})

	assert.Equal(t, "ASBP-ENGINE-NOISE", cls.IssueCode)
	assert.Equal(t, models.CategoryCost, cls.Category)
}

func TestClassify_SafetyIntentEscalatesSeverity(t *testing.T) {
	cls, _ := newTestClassifier().Classify(context.Background(), Request{
		Message: "도장 표면이 이상한데 작업자가 위험할 수 있나요",
	})

	assert.Equal(t, models.CategorySafetyCritical, cls.Category)
	assert.Equal(t, models.SeverityHigh, cls.Severity)
}

func TestClassify_CriticalReadingForcesSafetyCritical(t *testing.T) {
	cls, _ := newTestClassifier().Classify(context.Background(), Request{
		Message: "프레스 압력이 이상합니다",
		Readings: []SensorReading{
			{Equipment: "PRESS", Sensor: "PRESSURE", Value: 130},
		},
	})

	assert.Equal(t, models.SeverityCritical, cls.Severity)
	assert.Equal(t, models.CategorySafetyCritical, cls.Category)
}

func TestClassify_Deterministic(t *testing.T) {
	c := newTestClassifier()
	req := Request{Message: "범퍼에 균열이 생겼어요"}

	first, _ := c.Classify(context.Background(), req)
	for i := 0; i < 5; i++ {
		next, _ := c.Classify(context.Background(), req)
		assert.Equal(t, first, next)
	}
}

func TestClassify_ReturnsRetrievalContext(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	c := New(&fixedSearcher{rc: &models.RetrievalContext{
		VectorResults: []models.Snippet{{Content: "베어링 문서", Score: 0.9, Source: "chromadb"}},
	}}, log)

	_, rc := c.Classify(context.Background(), Request{Message: "베어링"})
	require.Len(t, rc.VectorResults, 1)
}

func TestGradeReading(t *testing.T) {
	tests := []struct {
		name    string
		reading SensorReading
		want    models.Severity
	}{
		{"within band", SensorReading{"PRESS", "PRESSURE", 85}, models.SeverityNormal},
		{"above Q3", SensorReading{"PRESS", "PRESSURE", 110}, models.SeverityHigh},
		{"above critical max", SensorReading{"PRESS", "VIBRATION", 16}, models.SeverityCritical},
		{"below critical min", SensorReading{"WELD", "SENSOR_VALUE", 4.2}, models.SeverityCritical},
		{"below Q1", SensorReading{"PAINT", "THICKNESS", 18}, models.SeverityHigh},
		{"unknown sensor", SensorReading{"PRESS", "HUMIDITY", 999}, models.SeverityNormal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GradeReading(tt.reading))
		})
	}
}
