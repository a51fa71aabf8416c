package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/linesage/linesage/internal/models"
)

var (
	// ErrNotFound is returned for any operation on an unknown session id.
	ErrNotFound = errors.New("session not found")
	// ErrConcurrentTurn is returned when append's expected counter is stale.
	ErrConcurrentTurn = errors.New("concurrent turn rejected")
)

// Store is the session persistence contract. AppendTurn is atomic: the
// counter and the history update together or not at all, and a stale
// expectedCount is rejected with ErrConcurrentTurn.
type Store interface {
	Create(ctx context.Context, ownerID, issueCode string) (*models.Session, error)
	Get(ctx context.Context, id string) (*models.Session, error)
	AppendTurn(ctx context.Context, id string, turn models.Turn, expectedCount int) (*models.Session, error)
	End(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	SweepExpired(ctx context.Context, now time.Time, idleTimeout time.Duration) (int, error)
	ActiveCount(ctx context.Context) (int, error)
}

// NewSessionID mints ids like sess_7f3a... (32 hex chars).
func NewSessionID() string {
	return "sess_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func newSession(ownerID, issueCode string) *models.Session {
	now := time.Now().UTC()
	return &models.Session{
		Version:   models.SessionVersion,
		ID:        NewSessionID(),
		OwnerID:   ownerID,
		IssueCode: issueCode,
		Status:    models.SessionActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// applyTurn mutates a session with one committed turn, evicting the oldest
// history entry once maxHistory is reached.
func applyTurn(s *models.Session, turn models.Turn, maxHistory int) {
	s.History = append(s.History, turn)
	if maxHistory > 0 && len(s.History) > maxHistory {
		s.History = s.History[len(s.History)-maxHistory:]
	}
	s.ConversationCount++
	s.UpdatedAt = time.Now().UTC()
	for _, e := range turn.Experts {
		s.RecordExpert(e)
	}
	for _, secs := range turn.ExpertTimings {
		s.TotalProcessing += secs
	}
}

// migrate upgrades an older stored document to the current schema in place.
func migrate(s *models.Session) {
	if s.Version < models.SessionVersion {
		if s.Status == "" {
			s.Status = models.SessionActive
		}
		s.Version = models.SessionVersion
	}
}
