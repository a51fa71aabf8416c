package selector

import (
	"github.com/linesage/linesage/internal/models"
)

// Expert names as the selector routes them. The moderator is never selected.
const (
	ExpertGPT    = "GPT"
	ExpertGemini = "Gemini"
	ExpertClova  = "Clova"
)

// Selection is the routing decision for one turn.
type Selection struct {
	Experts   []string `json:"experts"`
	Rationale string   `json:"rationale"`
}

// Select picks 1-3 experts for a classified question. Rules apply in order
// and the first match wins; turnCount is the number of committed turns so
// far in the session.
func Select(cls *models.Classification, turnCount int) Selection {
	switch {
	case cls.Category == models.CategorySafetyCritical || cls.Severity == models.SeverityCritical:
		return Selection{
			Experts:   []string{ExpertGPT, ExpertGemini, ExpertClova},
			Rationale: "안전 관련 질문은 모든 전문가의 검토가 필요합니다",
		}
	case cls.Category == models.CategoryCost || cls.Category == models.CategoryPractical:
		return Selection{
			Experts:   []string{ExpertClova, ExpertGPT},
			Rationale: "비용 및 실무 질문은 현장 경험과 종합 분석으로 답합니다",
		}
	case cls.Category == models.CategoryTechnical || cls.Category == models.CategoryNumeric:
		return Selection{
			Experts:   []string{ExpertGemini, ExpertGPT},
			Rationale: "기술 질문은 공학적 정확성과 종합 분석으로 답합니다",
		}
	case cls.Category == models.CategoryGeneral && turnCount <= 1:
		return Selection{
			Experts:   []string{ExpertGPT},
			Rationale: "일반적인 첫 질문은 종합 분석 전문가가 답합니다",
		}
	default:
		return Selection{
			Experts:   []string{ExpertGPT, ExpertGemini},
			Rationale: "후속 질문은 종합 분석과 기술 검토를 병행합니다",
		}
	}
}
