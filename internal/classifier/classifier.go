package classifier

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/linesage/linesage/internal/models"
)

// matchThreshold is the minimum keyword score for a dictionary match to hold.
const matchThreshold = 2

// defaultTopK is how many snippets one turn of retrieval context carries.
const defaultTopK = 5

// ContextSearcher supplies retrieval context for the classified question.
type ContextSearcher interface {
	Search(ctx context.Context, query string, topK int) *models.RetrievalContext
}

// Request is one classification job.
type Request struct {
	Message   string
	IssueCode string
	Readings  []SensorReading
}

// Classifier resolves a user message into an issue classification plus
// retrieval context. It is deterministic for a fixed dictionary.
type Classifier struct {
	retrieval ContextSearcher
	log       *logrus.Logger
}

func New(retrieval ContextSearcher, log *logrus.Logger) *Classifier {
	return &Classifier{retrieval: retrieval, log: log}
}

// Classify runs the dictionary lookup and the retrieval fan-out concurrently
// and joins the results.
func (c *Classifier) Classify(ctx context.Context, req Request) (*models.Classification, *models.RetrievalContext) {
	rcCh := make(chan *models.RetrievalContext, 1)
	go func() {
		rcCh <- c.retrieval.Search(ctx, req.Message, defaultTopK)
	}()

	cls := c.classify(req)

	var rc *models.RetrievalContext
	select {
	case rc = <-rcCh:
	case <-ctx.Done():
		rc = &models.RetrievalContext{Warnings: []string{"retrieval deadline exceeded"}}
	}

	c.log.WithFields(logrus.Fields{
		"category":   cls.Category,
		"severity":   cls.Severity,
		"issue_code": cls.IssueCode,
	}).Debug("classification complete")
	return cls, rc
}

func (c *Classifier) classify(req Request) *models.Classification {
	var cls *models.Classification

	if info, ok := LookupIssue(req.IssueCode); ok {
		cls = &models.Classification{
			Category:          info.QuestionCategory(),
			Severity:          info.Severity,
			IssueCode:         info.Code,
			Description:       info.Description,
			MatchScore:        1.0,
			CommonCauses:      info.CommonCauses,
			StandardSolutions: info.StandardSolutions,
		}
	} else if info, score := matchByKeywords(req.Message); score >= matchThreshold {
		cls = &models.Classification{
			Category:          info.QuestionCategory(),
			Severity:          info.Severity,
			IssueCode:         info.Code,
			Description:       info.Description,
			MatchScore:        float64(score) / float64(2*len(info.SearchKeywords)+1),
			CommonCauses:      info.CommonCauses,
			StandardSolutions: info.StandardSolutions,
		}
	} else {
		cls = &models.Classification{
			Category: models.CategoryGeneral,
			Severity: models.SeverityNormal,
		}
	}

	// Free-text intent beats the dictionary category for routing.
	if cat, ok := categorizeIntent(req.Message); ok {
		cls.Category = cat
	}
	if cls.Category == models.CategorySafetyCritical {
		cls.Severity = escalate(cls.Severity, models.SeverityHigh)
	}

	for _, r := range req.Readings {
		cls.Severity = escalate(cls.Severity, GradeReading(r))
	}
	if cls.Severity == models.SeverityCritical {
		cls.Category = models.CategorySafetyCritical
	}
	return cls
}

var intentKeywords = []struct {
	category models.Category
	words    []string
}{
	{models.CategorySafetyCritical, []string{"안전", "위험", "사고", "부상", "화재", "폭발"}},
	{models.CategoryCost, []string{"비용", "가격", "예산", "금액", "원가", "견적"}},
	{models.CategoryNumeric, []string{"수치", "측정값", "센서값", "기준치", "임계값"}},
	{models.CategoryTechnical, []string{"원리", "설계", "스펙", "사양", "공학"}},
	{models.CategoryPractical, []string{"현장", "실무", "경험", "노하우", "작업자"}},
}

// categorizeIntent scans the message for intent keywords in priority order.
func categorizeIntent(message string) (models.Category, bool) {
	for _, set := range intentKeywords {
		for _, w := range set.words {
			if strings.Contains(message, w) {
				return set.category, true
			}
		}
	}
	return "", false
}
