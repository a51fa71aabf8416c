package models

import "time"

// Category classifies the kind of question a user is asking.
type Category string

const (
	CategoryGeneral        Category = "GENERAL"
	CategorySafetyCritical Category = "SAFETY_CRITICAL"
	CategoryCost           Category = "COST"
	CategoryPractical      Category = "PRACTICAL"
	CategoryTechnical      Category = "TECHNICAL"
	CategoryNumeric        Category = "NUMERIC"
)

// Severity grades how urgent a classified issue is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityNormal   Severity = "normal"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Classification is the classifier's verdict on one user message.
type Classification struct {
	Category          Category `json:"category"`
	Severity          Severity `json:"severity"`
	IssueCode         string   `json:"issue_code,omitempty"`
	Description       string   `json:"description,omitempty"`
	MatchScore        float64  `json:"match_score"`
	CommonCauses      []string `json:"common_causes,omitempty"`
	StandardSolutions []string `json:"standard_solutions,omitempty"`
}

// Snippet is one ranked piece of retrieved context.
type Snippet struct {
	Content  string            `json:"content"`
	Score    float64           `json:"score"`
	Source   string            `json:"source"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// RetrievalContext carries the hybrid search results for one turn.
type RetrievalContext struct {
	VectorResults  []Snippet `json:"vector_results"`
	KeywordResults []Snippet `json:"keyword_results"`
	Warnings       []string  `json:"warnings,omitempty"`
}

// TokenUsage mirrors the provider-reported token counters.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ExpertResponse is one expert's complete answer for one turn.
type ExpertResponse struct {
	Expert         string        `json:"expert"`
	Specialty      string        `json:"specialty"`
	Response       string        `json:"response"`
	Confidence     float64       `json:"confidence"`
	TokenUsage     TokenUsage    `json:"token_usage"`
	ProcessingTime time.Duration `json:"processing_time"`
	Model          string        `json:"model"`
	CreatedAt      time.Time     `json:"created_at"`
}

// FailureRecord replaces an ExpertResponse when an expert did not answer.
type FailureRecord struct {
	Expert    string    `json:"name"`
	Kind      string    `json:"error_kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ImmediateAction is one numbered first-response step.
type ImmediateAction struct {
	Step        int    `json:"step"`
	Action      string `json:"action"`
	Time        string `json:"time"`
	Priority    string `json:"priority"`
	Responsible string `json:"responsible,omitempty"`
}

// SolutionPhase is one phase of the detailed plan.
type SolutionPhase struct {
	Phase         string   `json:"phase"`
	Actions       []string `json:"actions"`
	EstimatedTime string   `json:"estimated_time"`
	Resources     string   `json:"resources,omitempty"`
}

// CostEstimation carries free-text cost figures from the synthesis.
type CostEstimation struct {
	Parts     string   `json:"parts"`
	Labor     string   `json:"labor"`
	Total     string   `json:"total"`
	Breakdown []string `json:"cost_breakdown,omitempty"`
}

// Recommendation is the moderator's final structured output for one turn.
type Recommendation struct {
	ExecutiveSummary      string            `json:"executive_summary"`
	ImmediateActions      []ImmediateAction `json:"immediate_actions"`
	DetailedSolution      []SolutionPhase   `json:"detailed_solution"`
	CostEstimation        CostEstimation    `json:"cost_estimation"`
	SafetyPrecautions     []string          `json:"safety_precautions"`
	PreventionMeasures    []string          `json:"prevention_measures"`
	SuccessIndicators     []string          `json:"success_indicators"`
	AlternativeApproaches []string          `json:"alternative_approaches"`
	ExpertConsensus       string            `json:"expert_consensus"`
	ConfidenceLevel       float64           `json:"confidence_level"`
	RecommendedFollowup   string            `json:"recommended_followup"`
	ParticipatingExperts  []string          `json:"participating_experts"`
	DebateRoundsCount     int               `json:"debate_rounds_count"`
	SynthesizedAt         time.Time         `json:"synthesized_at"`
	SynthesisMethod       string            `json:"synthesis_method"`
	Fallback              bool              `json:"fallback,omitempty"`
}

// DebateStatement is one speaker's contribution inside a debate round.
type DebateStatement struct {
	Speaker   string `json:"speaker"`
	Statement string `json:"statement"`
}

// DebateRound is one simulated round of the expert debate.
type DebateRound struct {
	Round       int               `json:"round"`
	Topic       string            `json:"topic"`
	Discussions []DebateStatement `json:"discussions"`
}

// Difference describes how expert positions diverge in one area.
type Difference struct {
	Area    string   `json:"area"`
	Details []string `json:"details"`
}

// Conflict describes directly opposed expert positions.
type Conflict struct {
	Issue     string   `json:"issue"`
	Positions []string `json:"positions"`
}

// Complementary describes expert opinions that reinforce each other.
type Complementary struct {
	Combination string `json:"combination"`
	Benefit     string `json:"benefit"`
}

// DifferenceReport is the moderator's phase-one analysis.
type DifferenceReport struct {
	CommonPoints         []string        `json:"common_points"`
	Differences          []Difference    `json:"differences"`
	Conflicts            []Conflict      `json:"conflicts"`
	ComplementaryAspects []Complementary `json:"complementary_aspects"`
	Raw                  string          `json:"raw,omitempty"`
}

// DebateRecord is the full moderator record for one turn.
type DebateRecord struct {
	Rounds          []DebateRound `json:"debate_rounds"`
	ConsensusPoints []string      `json:"consensus_points"`
	FinalAgreement  string        `json:"final_agreement,omitempty"`
	SynthesisNotes  string        `json:"synthesis_notes,omitempty"`
	Participants    []string      `json:"participants"`
	ModeratedAt     time.Time     `json:"moderated_at"`
	Raw             string        `json:"raw,omitempty"`
}

// Turn is one committed user-message/recommendation exchange.
type Turn struct {
	UserMessage    string             `json:"user_message"`
	Reply          string             `json:"reply"`
	Timestamp      time.Time          `json:"timestamp"`
	Experts        []string           `json:"experts"`
	ExpertTimings  map[string]float64 `json:"expert_timings,omitempty"` // seconds per expert
	Confidence     float64            `json:"confidence"`
	Recommendation *Recommendation    `json:"recommendation,omitempty"`
	Debate         *DebateRecord      `json:"debate,omitempty"`
}

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

// SessionVersion is the current session document schema version.
const SessionVersion = 1

// Session is the per-user multi-turn conversation document.
type Session struct {
	Version           int               `json:"version"`
	ID                string            `json:"session_id"`
	OwnerID           string            `json:"owner_id"`
	IssueCode         string            `json:"issue_code,omitempty"`
	Status            SessionStatus     `json:"status"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	ConversationCount int               `json:"conversation_count"`
	History           []Turn            `json:"conversation_history"`
	ExpertsUsed       []string          `json:"experts_used,omitempty"`
	TotalProcessing   float64           `json:"total_processing_seconds"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// RecordExpert marks an expert as having participated in this session.
func (s *Session) RecordExpert(name string) {
	for _, e := range s.ExpertsUsed {
		if e == name {
			return
		}
	}
	s.ExpertsUsed = append(s.ExpertsUsed, name)
}
