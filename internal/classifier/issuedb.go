package classifier

import (
	"strings"

	"github.com/linesage/linesage/internal/models"
)

// IssueInfo is one entry of the static issue dictionary.
type IssueInfo struct {
	Code               string
	Description        string
	Category           string // raw dictionary category (Korean)
	Severity           models.Severity
	CommonCauses       []string
	StandardSolutions  []string
	AffectedComponents []string
	SearchKeywords     []string
}

// issueCategories maps a dictionary category onto a question category.
var issueCategories = map[string]models.Category{
	"표면 손상": models.CategoryPractical,
	"표면 품질": models.CategoryPractical,
	"치수 불량": models.CategoryNumeric,
	"구조 손상": models.CategoryTechnical,
	"성능 이상": models.CategoryTechnical,
	"안전 관련": models.CategorySafetyCritical,
}

// IssueDatabase holds the known issue templates, keyed by issue code.
var IssueDatabase = map[string]IssueInfo{
	"ASBP-DOOR-SCRATCH": {
		Code:        "ASBP-DOOR-SCRATCH",
		Description: "도어 스크래치",
		Category:    "표면 손상",
		Severity:    models.SeverityNormal,
		CommonCauses: []string{
			"조립 공정 중 충돌", "작업자 부주의", "장비 간섭", "운반 과정 중 손상",
		},
		StandardSolutions: []string{
			"작업자 교육 강화", "조립 간 간섭 방지 설계", "보호 패드 설치", "운반 지그 개선",
		},
		AffectedComponents: []string{"도어 외판", "도어 핸들", "도어 몰딩"},
		SearchKeywords:     []string{"도어", "스크래치", "표면손상", "조립공정", "외관불량"},
	},
	"ASBP-GRILL-GAP": {
		Code:        "ASBP-GRILL-GAP",
		Description: "라디에이터 그릴 단차",
		Category:    "치수 불량",
		Severity:    models.SeverityHigh,
		CommonCauses: []string{
			"고정 브래킷 사양 불일치", "조립 위치 정렬 오차", "브래킷 변형 또는 강성 부족", "볼트 체결 토크 부족",
		},
		StandardSolutions: []string{
			"브래킷 사양 통일 및 검수", "정렬용 지그 도입", "정렬센서 보정", "체결 토크 관리 강화",
		},
		AffectedComponents: []string{"라디에이터 그릴", "고정 브래킷", "범퍼"},
		SearchKeywords:     []string{"그릴", "단차", "정렬", "브래킷", "치수불량"},
	},
	"ASBP-BUMPER-CRACK": {
		Code:        "ASBP-BUMPER-CRACK",
		Description: "범퍼 크랙",
		Category:    "구조 손상",
		Severity:    models.SeverityHigh,
		CommonCauses: []string{
			"온도 변화에 의한 수축팽창", "충격 흡수 한계 초과", "재료 피로 누적", "설계 응력 집중",
		},
		StandardSolutions: []string{
			"재료 강도 개선", "응력 집중 부위 보강", "온도 관리 강화", "충격 흡수 구조 개선",
		},
		AffectedComponents: []string{"전면 범퍼", "후면 범퍼", "충격 흡수재"},
		SearchKeywords:     []string{"범퍼", "크랙", "균열", "구조손상", "충격"},
	},
	"ASBP-PAINT-DEFECT": {
		Code:        "ASBP-PAINT-DEFECT",
		Description: "도장 불량",
		Category:    "표면 품질",
		Severity:    models.SeverityNormal,
		CommonCauses: []string{
			"도장 부스 온습도 조건 불량", "스프레이 건 노즐 문제", "도료 점도 관리 불량", "전처리 공정 불완전",
		},
		StandardSolutions: []string{
			"부스 환경 조건 최적화", "스프레이 장비 정비", "도료 품질 관리 강화", "전처리 공정 개선",
		},
		AffectedComponents: []string{"차체 외판", "플라스틱 부품", "메탈 부품"},
		SearchKeywords:     []string{"도장", "페인트", "표면", "색상", "광택"},
	},
	"ASBP-ENGINE-NOISE": {
		Code:        "ASBP-ENGINE-NOISE",
		Description: "엔진 이상음",
		Category:    "성능 이상",
		Severity:    models.SeverityHigh,
		CommonCauses: []string{
			"베어링 마모", "밸브 간극 조정 불량", "연료 계통 문제", "점화 계통 불량",
		},
		StandardSolutions: []string{
			"베어링 교체", "밸브 간극 재조정", "연료 계통 점검", "점화 계통 정비",
		},
		AffectedComponents: []string{"엔진 블록", "밸브", "베어링", "연료 펌프"},
		SearchKeywords:     []string{"엔진", "소음", "진동", "성능", "이상음"},
	},
	"ASBP-BRAKE-FADE": {
		Code:        "ASBP-BRAKE-FADE",
		Description: "브레이크 페이드",
		Category:    "안전 관련",
		Severity:    models.SeverityCritical,
		CommonCauses: []string{
			"브레이크 패드 과열", "브레이크 유압 부족", "디스크 변형", "냉각 시스템 불량",
		},
		StandardSolutions: []string{
			"브레이크 패드 교체", "유압 시스템 점검", "디스크 교체", "냉각 성능 개선",
		},
		AffectedComponents: []string{"브레이크 패드", "브레이크 디스크", "캘리퍼"},
		SearchKeywords:     []string{"브레이크", "페이드", "제동력", "안전", "열화"},
	},
}

// LookupIssue returns the dictionary entry for a code, if known.
func LookupIssue(code string) (IssueInfo, bool) {
	info, ok := IssueDatabase[strings.ToUpper(strings.TrimSpace(code))]
	return info, ok
}

// QuestionCategory maps a dictionary category to the routing category.
func (i IssueInfo) QuestionCategory() models.Category {
	if c, ok := issueCategories[i.Category]; ok {
		return c
	}
	return models.CategoryGeneral
}

// matchByKeywords scores every dictionary entry against the message and
// returns the best match. Keyword hits weigh double a description hit.
func matchByKeywords(message string) (IssueInfo, int) {
	var best IssueInfo
	bestScore := 0
	for _, code := range issueCodesOrdered {
		info := IssueDatabase[code]
		score := 0
		for _, kw := range info.SearchKeywords {
			if strings.Contains(message, kw) {
				score += 2
			}
		}
		if strings.Contains(message, info.Description) {
			score++
		}
		if score > bestScore {
			best, bestScore = info, score
		}
	}
	return best, bestScore
}

// issueCodesOrdered keeps keyword matching deterministic across runs.
var issueCodesOrdered = []string{
	"ASBP-DOOR-SCRATCH",
	"ASBP-GRILL-GAP",
	"ASBP-BUMPER-CRACK",
	"ASBP-PAINT-DEFECT",
	"ASBP-ENGINE-NOISE",
	"ASBP-BRAKE-FADE",
}
