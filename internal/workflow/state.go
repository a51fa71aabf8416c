package workflow

import (
	"github.com/linesage/linesage/internal/classifier"
	"github.com/linesage/linesage/internal/models"
	"github.com/linesage/linesage/internal/selector"
)

// State is the single mutable object threaded through one turn of the graph.
// Scalar fields are last-writer-wins; StepsCompleted and Failures only append.
type State struct {
	UserMessage string
	IssueCode   string
	Readings    []classifier.SensorReading
	History     []models.Turn
	TurnCount   int

	Classification *models.Classification
	Retrieval      *models.RetrievalContext
	Selection      selector.Selection

	Responses []*models.ExpertResponse
	Failures  []models.FailureRecord
	Timings   map[string]float64 // seconds per expert

	Recommendation *models.Recommendation
	Debate         *models.DebateRecord

	StepsCompleted []string
	AllFailed      bool
}

func (s *State) completeStep(name string) {
	s.StepsCompleted = append(s.StepsCompleted, name)
}

// SuccessfulExperts lists the experts that answered, in dispatch order.
func (s *State) SuccessfulExperts() []string {
	names := make([]string, len(s.Responses))
	for i, r := range s.Responses {
		names[i] = r.Expert
	}
	return names
}
