package session

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linesage/linesage/internal/models"
)

func turn(msg string) models.Turn {
	return models.Turn{
		UserMessage: msg,
		Reply:       "답변: " + msg,
		Timestamp:   time.Now().UTC().Truncate(time.Second),
		Experts:     []string{"GPT"},
		Confidence:  0.8,
	}
}

// storeUnderTest runs the same contract suite against both backends.
func storeUnderTest(t *testing.T, maxHistory int) map[string]Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(maxHistory),
		"redis":  NewRedisStore(client, maxHistory),
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	for name, store := range storeUnderTest(t, 50) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s, err := store.Create(ctx, "user-1", "ASBP-DOOR-SCRATCH")
			require.NoError(t, err)

			assert.Regexp(t, regexp.MustCompile(`^sess_[0-9a-f]{32}$`), s.ID)
			assert.Equal(t, models.SessionActive, s.Status)
			assert.Equal(t, models.SessionVersion, s.Version)
			assert.Equal(t, 0, s.ConversationCount)

			got, err := store.Get(ctx, s.ID)
			require.NoError(t, err)
			assert.Equal(t, s.ID, got.ID)
			assert.Equal(t, "ASBP-DOOR-SCRATCH", got.IssueCode)

			again, err := store.Get(ctx, s.ID)
			require.NoError(t, err)
			assert.Equal(t, got, again, "reads without mutation must be identical")
		})
	}
}

func TestStore_GetUnknown(t *testing.T) {
	for name, store := range storeUnderTest(t, 50) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(context.Background(), "sess_missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_AppendTurnKeepsCountAndHistoryInSync(t *testing.T) {
	for name, store := range storeUnderTest(t, 50) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s, err := store.Create(ctx, "user-1", "")
			require.NoError(t, err)

			for i := 0; i < 5; i++ {
				updated, err := store.AppendTurn(ctx, s.ID, turn(fmt.Sprintf("질문 %d", i)), i)
				require.NoError(t, err)
				assert.Equal(t, i+1, updated.ConversationCount)
				assert.Len(t, updated.History, i+1)
			}
		})
	}
}

func TestStore_AppendTurnStaleCounterRejected(t *testing.T) {
	for name, store := range storeUnderTest(t, 50) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s, err := store.Create(ctx, "user-1", "")
			require.NoError(t, err)

			_, err = store.AppendTurn(ctx, s.ID, turn("첫 질문"), 0)
			require.NoError(t, err)

			_, err = store.AppendTurn(ctx, s.ID, turn("경쟁 질문"), 0)
			assert.ErrorIs(t, err, ErrConcurrentTurn)

			got, err := store.Get(ctx, s.ID)
			require.NoError(t, err)
			assert.Equal(t, 1, got.ConversationCount)
			assert.Len(t, got.History, 1)
		})
	}
}

func TestStore_AppendTurnUnknownSession(t *testing.T) {
	for name, store := range storeUnderTest(t, 50) {
		t.Run(name, func(t *testing.T) {
			_, err := store.AppendTurn(context.Background(), "sess_missing", turn("질문"), 0)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_HistoryEvictsOldest(t *testing.T) {
	for name, store := range storeUnderTest(t, 3) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s, err := store.Create(ctx, "user-1", "")
			require.NoError(t, err)

			for i := 0; i < 5; i++ {
				_, err := store.AppendTurn(ctx, s.ID, turn(fmt.Sprintf("질문 %d", i)), i)
				require.NoError(t, err)
			}

			got, err := store.Get(ctx, s.ID)
			require.NoError(t, err)
			assert.Equal(t, 5, got.ConversationCount, "the counter keeps counting past eviction")
			require.Len(t, got.History, 3)
			assert.Equal(t, "질문 2", got.History[0].UserMessage)
			assert.Equal(t, "질문 4", got.History[2].UserMessage)
		})
	}
}

func TestStore_EndAndDelete(t *testing.T) {
	for name, store := range storeUnderTest(t, 50) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s, err := store.Create(ctx, "user-1", "")
			require.NoError(t, err)

			require.NoError(t, store.End(ctx, s.ID))
			got, err := store.Get(ctx, s.ID)
			require.NoError(t, err)
			assert.Equal(t, models.SessionEnded, got.Status)

			require.NoError(t, store.Delete(ctx, s.ID))
			_, err = store.Get(ctx, s.ID)
			assert.ErrorIs(t, err, ErrNotFound)

			assert.ErrorIs(t, store.End(ctx, s.ID), ErrNotFound)
			assert.ErrorIs(t, store.Delete(ctx, s.ID), ErrNotFound)
		})
	}
}

func TestStore_SweepExpiredAndActiveCount(t *testing.T) {
	for name, store := range storeUnderTest(t, 50) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			stale, err := store.Create(ctx, "user-1", "")
			require.NoError(t, err)
			_, err = store.Create(ctx, "user-2", "")
			require.NoError(t, err)

			n, err := store.ActiveCount(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			ended, err := store.SweepExpired(ctx, time.Now().UTC().Add(25*time.Hour), 24*time.Hour)
			require.NoError(t, err)
			assert.Equal(t, 2, ended)

			got, err := store.Get(ctx, stale.ID)
			require.NoError(t, err)
			assert.Equal(t, models.SessionEnded, got.Status)

			n, err = store.ActiveCount(ctx)
			require.NoError(t, err)
			assert.Equal(t, 0, n)
		})
	}
}

func TestStore_ConcurrentAppendsOnlyOneWins(t *testing.T) {
	for name, store := range storeUnderTest(t, 50) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s, err := store.Create(ctx, "user-1", "")
			require.NoError(t, err)

			const writers = 8
			var wg sync.WaitGroup
			errs := make(chan error, writers)
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, err := store.AppendTurn(ctx, s.ID, turn(fmt.Sprintf("경쟁 %d", i)), 0)
					errs <- err
				}(i)
			}
			wg.Wait()
			close(errs)

			wins := 0
			for err := range errs {
				if err == nil {
					wins++
				} else {
					assert.ErrorIs(t, err, ErrConcurrentTurn)
				}
			}
			assert.Equal(t, 1, wins)

			got, err := store.Get(ctx, s.ID)
			require.NoError(t, err)
			assert.Equal(t, 1, got.ConversationCount)
		})
	}
}

func TestRedisStore_MigratesLegacyDocumentOnRead(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	store := NewRedisStore(client, 50)

	legacy := map[string]any{
		"session_id": "sess_0123456789abcdef0123456789abcdef",
		"owner_id":   "user-1",
		"created_at": time.Now().UTC(),
		"updated_at": time.Now().UTC(),
	}
	payload, err := json.Marshal(legacy)
	require.NoError(t, err)
	require.NoError(t, client.Set(context.Background(), "session:sess_0123456789abcdef0123456789abcdef", payload, 0).Err())

	got, err := store.Get(context.Background(), "sess_0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	assert.Equal(t, models.SessionVersion, got.Version)
	assert.Equal(t, models.SessionActive, got.Status)
}

func TestSession_JSONRoundTrip(t *testing.T) {
	s := &models.Session{
		Version:           models.SessionVersion,
		ID:                NewSessionID(),
		OwnerID:           "user-1",
		IssueCode:         "ASBP-GRILL-GAP",
		Status:            models.SessionActive,
		CreatedAt:         time.Now().UTC().Truncate(time.Second),
		UpdatedAt:         time.Now().UTC().Truncate(time.Second),
		ConversationCount: 1,
		History:           []models.Turn{turn("질문")},
		ExpertsUsed:       []string{"GPT"},
	}

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var back models.Session
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, *s, back)
}
