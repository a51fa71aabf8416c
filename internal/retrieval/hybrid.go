package retrieval

import (
	"context"
	"crypto/md5"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/linesage/linesage/internal/models"
)

// Document is one indexable knowledge-base entry.
type Document struct {
	Content  string            `json:"content"`
	Title    string            `json:"title,omitempty"`
	Category string            `json:"category,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Searcher is one ranked-snippet backend.
type Searcher interface {
	Name() string
	Search(ctx context.Context, query string, topK int) ([]models.Snippet, error)
}

// Indexer is a backend that also accepts documents.
type Indexer interface {
	AddDocuments(ctx context.Context, docs []Document) error
}

// Provider fans a query out to the vector store and the keyword store in
// parallel and merges the results. Partial failure degrades to the surviving
// store; total failure yields an empty context, never an error.
type Provider struct {
	vector  Searcher
	keyword Searcher
	log     *logrus.Logger
}

func NewProvider(vector, keyword Searcher, log *logrus.Logger) *Provider {
	return &Provider{vector: vector, keyword: keyword, log: log}
}

// Search returns the merged, de-duplicated, score-sorted top-k context.
func (p *Provider) Search(ctx context.Context, query string, topK int) *models.RetrievalContext {
	rc := &models.RetrievalContext{}

	var vectorResults, keywordResults []models.Snippet
	var vectorErr, keywordErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vectorResults, vectorErr = p.vector.Search(gctx, query, topK)
		return nil
	})
	g.Go(func() error {
		keywordResults, keywordErr = p.keyword.Search(gctx, query, topK)
		return nil
	})
	_ = g.Wait()

	if vectorErr != nil {
		p.log.WithError(vectorErr).WithField("store", p.vector.Name()).Warn("vector store search failed")
		rc.Warnings = append(rc.Warnings, fmt.Sprintf("%s unavailable", p.vector.Name()))
	}
	if keywordErr != nil {
		p.log.WithError(keywordErr).WithField("store", p.keyword.Name()).Warn("keyword store search failed")
		rc.Warnings = append(rc.Warnings, fmt.Sprintf("%s unavailable", p.keyword.Name()))
	}

	merged := append(append([]models.Snippet{}, vectorResults...), keywordResults...)
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	merged = dedupeByContent(merged)
	if len(merged) > topK {
		merged = merged[:topK]
	}

	for _, s := range merged {
		if s.Source == p.vector.Name() {
			rc.VectorResults = append(rc.VectorResults, s)
		} else {
			rc.KeywordResults = append(rc.KeywordResults, s)
		}
	}
	return rc
}

// AddDocuments indexes into every backend that accepts documents; the first
// failure is returned but does not stop the other backend.
func (p *Provider) AddDocuments(ctx context.Context, docs []Document) error {
	var firstErr error
	for _, store := range []Searcher{p.vector, p.keyword} {
		idx, ok := store.(Indexer)
		if !ok {
			continue
		}
		if err := idx.AddDocuments(ctx, docs); err != nil {
			p.log.WithError(err).WithField("store", store.Name()).Warn("document indexing failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func dedupeByContent(snippets []models.Snippet) []models.Snippet {
	seen := make(map[[16]byte]bool, len(snippets))
	out := snippets[:0]
	for _, s := range snippets {
		h := md5.Sum([]byte(s.Content))
		if seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, s)
	}
	return out
}
