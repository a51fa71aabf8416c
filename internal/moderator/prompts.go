package moderator

import (
	"fmt"
	"strings"

	"github.com/linesage/linesage/internal/models"
)

const moderatorSystemPrompt = `당신은 제조업 설비 진단 전문가 토론의 사회자입니다.
여러 전문가의 의견을 공정하게 비교하고, 토론을 진행하며, 최종 권고안을 종합합니다.
반드시 요청된 JSON 형식으로만 응답하세요. JSON 외의 설명은 붙이지 마세요.`

func differencePrompt(userMessage string, responses []*models.ExpertResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "사용자 질문: %s\n\n전문가 의견:\n", userMessage)
	writeOpinions(&b, responses)
	b.WriteString(`
위 전문가 의견들을 분석해 다음 JSON으로 응답하세요:
{
  "common_points": ["공통 의견"],
  "differences": [{"area": "차이 영역", "details": ["세부 내용"]}],
  "conflicts": [{"issue": "충돌 쟁점", "positions": ["입장"]}],
  "complementary_aspects": [{"combination": "보완 조합", "benefit": "기대 효과"}]
}`)
	return b.String()
}

func debatePrompt(userMessage string, responses []*models.ExpertResponse, report *models.DifferenceReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "사용자 질문: %s\n\n전문가 의견:\n", userMessage)
	writeOpinions(&b, responses)
	if len(report.Differences) > 0 || len(report.Conflicts) > 0 {
		b.WriteString("\n쟁점 분석:\n")
		for _, d := range report.Differences {
			fmt.Fprintf(&b, "- 차이: %s\n", d.Area)
		}
		for _, c := range report.Conflicts {
			fmt.Fprintf(&b, "- 충돌: %s\n", c.Issue)
		}
	}
	b.WriteString(`
위 쟁점에 대해 전문가 토론을 시뮬레이션하고 다음 JSON으로 응답하세요:
{
  "debate_rounds": [{"round": 1, "topic": "토론 주제", "discussions": [{"speaker": "전문가명", "statement": "발언"}]}],
  "consensus_points": ["합의 사항"],
  "final_agreement": "최종 합의 내용"
}`)
	return b.String()
}

func synthesisPrompt(userMessage string, responses []*models.ExpertResponse, debate *models.DebateRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "사용자 질문: %s\n\n전문가 의견:\n", userMessage)
	writeOpinions(&b, responses)
	if debate != nil && debate.FinalAgreement != "" {
		fmt.Fprintf(&b, "\n토론 합의: %s\n", debate.FinalAgreement)
	}
	b.WriteString(recommendationSchema)
	return b.String()
}

func singleExpertPrompt(userMessage string, resp *models.ExpertResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "사용자 질문: %s\n\n%s 전문가(%s)의 답변:\n%s\n",
		userMessage, resp.Expert, resp.Specialty, resp.Response)
	b.WriteString(recommendationSchema)
	return b.String()
}

const recommendationSchema = `
위 내용을 종합해 다음 JSON 형식의 최종 권고안으로 응답하세요:
{
  "executive_summary": "핵심 요약",
  "immediate_actions": [{"step": 1, "action": "조치", "time": "소요 시간", "priority": "높음", "responsible": "담당"}],
  "detailed_solution": [{"phase": "단계명", "actions": ["작업"], "estimated_time": "예상 기간", "resources": "필요 자원"}],
  "cost_estimation": {"parts": "부품비", "labor": "인건비", "total": "총액", "cost_breakdown": ["내역"]},
  "safety_precautions": ["안전 수칙"],
  "prevention_measures": ["예방 조치"],
  "success_indicators": ["성공 지표"],
  "alternative_approaches": ["대안"],
  "expert_consensus": "전문가 합의 수준",
  "confidence_level": 0.8,
  "recommended_followup": "권장 후속 질문"
}`

func writeOpinions(b *strings.Builder, responses []*models.ExpertResponse) {
	for _, r := range responses {
		fmt.Fprintf(b, "\n[%s — %s] (확신도 %.2f)\n%s\n", r.Expert, r.Specialty, r.Confidence, r.Response)
	}
}
