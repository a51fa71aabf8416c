package workflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/linesage/linesage/internal/classifier"
	"github.com/linesage/linesage/internal/config"
	"github.com/linesage/linesage/internal/experts"
	"github.com/linesage/linesage/internal/models"
	"github.com/linesage/linesage/internal/moderator"
	"github.com/linesage/linesage/internal/selector"
)

// Hooks lets the caller observe engine events without the engine depending
// on the metrics package. Nil funcs are skipped.
type Hooks struct {
	ExpertFailure func(expert, kind string)
	ExpertLatency func(expert string, seconds float64)
}

// Engine runs the fixed turn graph:
//
//	Classify → Select → Dispatch → {experts} → Moderate → END
//
// with an all-failed short-circuit when no expert answers.
type Engine struct {
	classifier *classifier.Classifier
	moderator  *moderator.Moderator
	experts    map[string]experts.Expert
	retry      experts.RetryConfig
	cfg        config.WorkflowConfig
	hooks      Hooks
	log        *logrus.Logger
}

func NewEngine(cls *classifier.Classifier, mod *moderator.Moderator, pool []experts.Expert, cfg config.WorkflowConfig, log *logrus.Logger) *Engine {
	byName := make(map[string]experts.Expert, len(pool))
	for _, e := range pool {
		byName[e.Name()] = e
	}
	return &Engine{
		classifier: cls,
		moderator:  mod,
		experts:    byName,
		retry:      experts.DefaultRetryConfig(),
		cfg:        cfg,
		log:        log,
	}
}

// SetHooks installs observation hooks. Call before the first Run.
func (e *Engine) SetHooks(h Hooks) { e.hooks = h }

// Run executes one turn. The caller carries the global turn deadline on ctx;
// every node layers its own tighter deadline on top. Run only errors on
// caller cancellation before any expert answered: a turn-deadline expiry with
// zero responses still routes to the all-failed terminal, and any responses
// already collected proceed to the moderator.
func (e *Engine) Run(ctx context.Context, st *State) (*State, error) {
	e.classify(ctx, st)
	e.selectExperts(st)
	e.dispatch(ctx, st)

	if err := ctx.Err(); errors.Is(err, context.Canceled) && len(st.Responses) == 0 {
		return st, err
	}
	e.moderate(ctx, st)
	return st, nil
}

func (e *Engine) classify(ctx context.Context, st *State) {
	cctx, cancel := context.WithTimeout(ctx, e.cfg.ClassifierTimeout)
	defer cancel()

	st.Classification, st.Retrieval = e.classifier.Classify(cctx, classifier.Request{
		Message:   st.UserMessage,
		IssueCode: st.IssueCode,
		Readings:  st.Readings,
	})
	st.completeStep("classify")
}

func (e *Engine) selectExperts(st *State) {
	st.Selection = selector.Select(st.Classification, st.TurnCount)
	if len(st.Selection.Experts) > e.cfg.MaxExperts {
		st.Selection.Experts = st.Selection.Experts[:e.cfg.MaxExperts]
	}
	e.log.WithFields(logrus.Fields{
		"experts":   st.Selection.Experts,
		"rationale": st.Selection.Rationale,
	}).Debug("experts selected")
	st.completeStep("select")
}

type dispatchResult struct {
	expert   string
	response *models.ExpertResponse
	failure  *models.FailureRecord
	elapsed  time.Duration
}

// dispatch fans the chosen experts out in parallel. Each call gets its own
// deadline; the turn deadline on ctx still wins if it fires first. The join
// waits for every dispatched expert, successful or not.
func (e *Engine) dispatch(ctx context.Context, st *State) {
	prompt := buildExpertPrompt(st)
	results := make(chan dispatchResult, len(st.Selection.Experts))

	var wg sync.WaitGroup
	dispatched := 0
	for _, name := range st.Selection.Experts {
		adapter, ok := e.experts[name]
		if !ok {
			st.Failures = append(st.Failures, models.FailureRecord{
				Expert:    name,
				Kind:      string(experts.ErrTransport),
				Message:   "expert not configured",
				Timestamp: time.Now().UTC(),
			})
			continue
		}
		dispatched++
		wg.Add(1)
		go func(name string, adapter experts.Expert) {
			defer wg.Done()
			ectx, cancel := context.WithTimeout(ctx, e.cfg.ExpertTimeout)
			defer cancel()

			start := time.Now()
			resp, err := experts.AskWithRetry(ectx, adapter, adapter.SystemPrompt(), prompt, e.retry)
			elapsed := time.Since(start)

			res := dispatchResult{expert: name, elapsed: elapsed}
			if err != nil {
				res.failure = &models.FailureRecord{
					Expert:    name,
					Kind:      string(experts.KindOf(err)),
					Message:   err.Error(),
					Timestamp: time.Now().UTC(),
				}
			} else {
				res.response = resp
			}
			results <- res
		}(name, adapter)
	}

	wg.Wait()
	close(results)

	st.Timings = make(map[string]float64, dispatched)
	for res := range results {
		st.Timings[res.expert] = res.elapsed.Seconds()
		if e.hooks.ExpertLatency != nil {
			e.hooks.ExpertLatency(res.expert, res.elapsed.Seconds())
		}
		if res.failure != nil {
			st.Failures = append(st.Failures, *res.failure)
			if e.hooks.ExpertFailure != nil {
				e.hooks.ExpertFailure(res.expert, res.failure.Kind)
			}
			e.log.WithFields(logrus.Fields{
				"expert": res.expert,
				"kind":   res.failure.Kind,
			}).Warn("expert failed")
			continue
		}
		st.Responses = append(st.Responses, res.response)
	}
	st.completeStep("dispatch")
}

func (e *Engine) moderate(ctx context.Context, st *State) {
	mctx, cancel := context.WithTimeout(ctx, e.cfg.ModeratorTimeout)
	defer cancel()

	st.Recommendation, st.Debate = e.moderator.Moderate(mctx, st.UserMessage, st.Responses, st.Failures)
	if len(st.Responses) == 0 {
		st.AllFailed = true
		st.completeStep("all_failed")
		return
	}
	st.completeStep("moderate")
}
