package moderator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/linesage/linesage/internal/models"
	"github.com/linesage/linesage/internal/selector"
)

// Asker is the slice of the expert contract the moderator needs from its
// backing adapter.
type Asker interface {
	Name() string
	Ask(ctx context.Context, systemPrompt, userPrompt string) (*models.ExpertResponse, error)
}

// defaultMinDebate is the response count below which the debate phases are
// skipped in favor of a direct joint synthesis.
const defaultMinDebate = 2

// Moderator drives the three-phase synthesis over the successful expert
// responses: difference analysis, debate simulation, final synthesis.
type Moderator struct {
	expert       Asker
	minDebate    int
	log          *logrus.Logger
	parseFailure func(phase string)
}

func New(expert Asker, log *logrus.Logger) *Moderator {
	return &Moderator{
		expert:       expert,
		minDebate:    defaultMinDebate,
		log:          log,
		parseFailure: func(string) {},
	}
}

// OnParseFailure registers a hook fired once per degraded phase.
func (m *Moderator) OnParseFailure(fn func(phase string)) {
	if fn != nil {
		m.parseFailure = fn
	}
}

// SetMinDebate raises the minimum response count for the debate phases.
func (m *Moderator) SetMinDebate(n int) {
	if n >= defaultMinDebate {
		m.minDebate = n
	}
}

// Moderate produces the final Recommendation for one turn. Expert failures
// never reach here as errors; zero responses takes the diagnostic path and a
// single response skips the debate phases entirely.
func (m *Moderator) Moderate(ctx context.Context, userMessage string, responses []*models.ExpertResponse, failures []models.FailureRecord) (*models.Recommendation, *models.DebateRecord) {
	responses = sortedByName(responses)

	switch len(responses) {
	case 0:
		return diagnosticRecommendation(failures), nil
	case 1:
		rec := m.structureSingle(ctx, userMessage, responses[0])
		m.annotateFailures(rec, failures)
		return rec, nil
	}

	var debate *models.DebateRecord
	var reportErr, debateErr error
	if len(responses) >= m.minDebate {
		var report *models.DifferenceReport
		report, reportErr = m.analyzeDifferences(ctx, userMessage, responses)
		debate, debateErr = m.simulateDebate(ctx, userMessage, responses, report)
	}

	rec, synthErr := m.synthesize(ctx, userMessage, responses, debate)
	if synthErr != nil {
		if reportErr != nil && debateErr != nil {
			m.log.WithError(synthErr).Warn("all moderation phases failed, using best expert response")
		}
		rec = bestExpertFallback(responses)
	}

	rec.ParticipatingExperts = expertNames(responses)
	if debate != nil {
		rec.DebateRoundsCount = len(debate.Rounds)
	}
	if rec.ConfidenceLevel <= 0 {
		rec.ConfidenceLevel = meanConfidence(responses)
	}
	m.annotateFailures(rec, failures)
	return rec, debate
}

// analyzeDifferences is phase one. Any failure degrades to an empty report.
func (m *Moderator) analyzeDifferences(ctx context.Context, userMessage string, responses []*models.ExpertResponse) (*models.DifferenceReport, error) {
	resp, err := m.expert.Ask(ctx, moderatorSystemPrompt, differencePrompt(userMessage, responses))
	if err != nil {
		m.log.WithError(err).Warn("difference analysis failed")
		return &models.DifferenceReport{}, err
	}

	var report models.DifferenceReport
	if err := json.Unmarshal(extractJSON(resp.Response), &report); err != nil {
		m.parseFailure("difference_analysis")
		m.log.WithError(err).Warn("difference analysis parse failed")
		return &models.DifferenceReport{Raw: resp.Response}, nil
	}
	return &report, nil
}

// simulateDebate is phase two. Parse failure keeps the raw transcript.
func (m *Moderator) simulateDebate(ctx context.Context, userMessage string, responses []*models.ExpertResponse, report *models.DifferenceReport) (*models.DebateRecord, error) {
	record := &models.DebateRecord{
		Participants: expertNames(responses),
		ModeratedAt:  time.Now().UTC(),
	}

	resp, err := m.expert.Ask(ctx, moderatorSystemPrompt, debatePrompt(userMessage, responses, report))
	if err != nil {
		m.log.WithError(err).Warn("debate simulation failed")
		return record, err
	}

	var parsed struct {
		Rounds          []models.DebateRound `json:"debate_rounds"`
		ConsensusPoints []string             `json:"consensus_points"`
		FinalAgreement  string               `json:"final_agreement"`
	}
	if err := json.Unmarshal(extractJSON(resp.Response), &parsed); err != nil {
		m.parseFailure("debate_simulation")
		m.log.WithError(err).Warn("debate simulation parse failed")
		record.Raw = resp.Response
		return record, nil
	}

	record.Rounds = parsed.Rounds
	record.ConsensusPoints = parsed.ConsensusPoints
	record.FinalAgreement = parsed.FinalAgreement
	return record, nil
}

// synthesize is phase three. Parse failure degrades to a raw-text summary;
// only an adapter error propagates, triggering the best-expert fallback.
func (m *Moderator) synthesize(ctx context.Context, userMessage string, responses []*models.ExpertResponse, debate *models.DebateRecord) (*models.Recommendation, error) {
	resp, err := m.expert.Ask(ctx, moderatorSystemPrompt, synthesisPrompt(userMessage, responses, debate))
	if err != nil {
		m.log.WithError(err).Warn("synthesis failed")
		return nil, err
	}
	method := "debate_synthesis"
	if debate == nil {
		method = "joint_synthesis"
	}
	return m.parseRecommendation(resp.Response, method), nil
}

// structureSingle asks the moderator to shape one expert's answer into the
// recommendation schema without running a debate.
func (m *Moderator) structureSingle(ctx context.Context, userMessage string, resp *models.ExpertResponse) *models.Recommendation {
	var rec *models.Recommendation

	out, err := m.expert.Ask(ctx, moderatorSystemPrompt, singleExpertPrompt(userMessage, resp))
	if err != nil {
		m.log.WithError(err).Warn("single-expert structuring failed")
		rec = bestExpertFallback([]*models.ExpertResponse{resp})
	} else {
		rec = m.parseRecommendation(out.Response, "single_expert")
	}

	rec.ParticipatingExperts = []string{resp.Expert}
	rec.DebateRoundsCount = 0
	rec.ConfidenceLevel = resp.Confidence
	return rec
}

func (m *Moderator) parseRecommendation(raw, method string) *models.Recommendation {
	var rec models.Recommendation
	if err := json.Unmarshal(extractJSON(raw), &rec); err != nil {
		m.parseFailure("synthesis")
		m.log.WithError(err).Warn("synthesis parse failed")
		rec = models.Recommendation{
			ExecutiveSummary:    raw,
			ExpertConsensus:     "구조화 실패",
			RecommendedFollowup: "권고안을 구조화하지 못했습니다. 요약 내용을 참고해 주세요.",
			SynthesisMethod:     "degraded_raw",
		}
	} else {
		rec.SynthesisMethod = method
	}
	rec.SynthesizedAt = time.Now().UTC()
	return &rec
}

// annotateFailures appends the partial-failure notice required for turns
// where some experts did not answer.
func (m *Moderator) annotateFailures(rec *models.Recommendation, failures []models.FailureRecord) {
	if len(failures) == 0 {
		return
	}
	names := make([]string, len(failures))
	for i, f := range failures {
		names[i] = f.Expert
	}
	rec.ExecutiveSummary = strings.TrimSpace(rec.ExecutiveSummary) +
		fmt.Sprintf(" (참고: %s 전문가는 이번 답변에 참여하지 못했습니다.)", strings.Join(names, ", "))
}

// diagnosticRecommendation is the fixed answer when every expert failed.
func diagnosticRecommendation(failures []models.FailureRecord) *models.Recommendation {
	var details []string
	for _, f := range failures {
		details = append(details, fmt.Sprintf("%s: %s", f.Expert, f.Kind))
	}
	summary := "죄송합니다. 현재 모든 전문가 시스템에 연결할 수 없어 답변을 드리지 못했습니다."
	if len(details) > 0 {
		summary += " (" + strings.Join(details, ", ") + ")"
	}
	return &models.Recommendation{
		ExecutiveSummary:    summary,
		ConfidenceLevel:     0.0,
		ExpertConsensus:     "없음",
		RecommendedFollowup: "잠시 후 다시 시도하시거나 운영자에게 문의해 주세요.",
		SynthesisMethod:     "diagnostic",
		SynthesizedAt:       time.Now().UTC(),
	}
}

// bestExpertFallback promotes the highest-confidence expert answer when the
// moderator itself cannot synthesize.
func bestExpertFallback(responses []*models.ExpertResponse) *models.Recommendation {
	best := responses[0]
	for _, r := range responses[1:] {
		if r.Confidence > best.Confidence {
			best = r
		}
	}
	return &models.Recommendation{
		ExecutiveSummary:    best.Response,
		ConfidenceLevel:     best.Confidence,
		ExpertConsensus:     fmt.Sprintf("%s 전문가 단독 의견", best.Expert),
		RecommendedFollowup: "추가 질문으로 더 구체적인 답변을 받아보세요.",
		SynthesisMethod:     "best_expert_fallback",
		SynthesizedAt:       time.Now().UTC(),
		Fallback:            true,
	}
}

// expertOrder is the canonical panel ordering the selector routes in;
// sorting by it keeps the moderator invariant to completion order.
var expertOrder = map[string]int{
	selector.ExpertGPT:    0,
	selector.ExpertGemini: 1,
	selector.ExpertClova:  2,
}

func sortedByName(responses []*models.ExpertResponse) []*models.ExpertResponse {
	out := append([]*models.ExpertResponse{}, responses...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, iKnown := expertOrder[out[i].Expert]
		rj, jKnown := expertOrder[out[j].Expert]
		switch {
		case iKnown && jKnown:
			return ri < rj
		case iKnown:
			return true
		case jKnown:
			return false
		default:
			return out[i].Expert < out[j].Expert
		}
	})
	return out
}

func expertNames(responses []*models.ExpertResponse) []string {
	names := make([]string, len(responses))
	for i, r := range responses {
		names[i] = r.Expert
	}
	return names
}

func meanConfidence(responses []*models.ExpertResponse) float64 {
	if len(responses) == 0 {
		return 0
	}
	var sum float64
	for _, r := range responses {
		sum += r.Confidence
	}
	return sum / float64(len(responses))
}

// extractJSON trims markdown fences and any prose around the outermost JSON
// object so a permissive model reply still parses.
func extractJSON(raw string) []byte {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return []byte(raw)
	}
	return []byte(raw[start : end+1])
}
