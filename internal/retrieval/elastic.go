package retrieval

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linesage/linesage/internal/models"
)

// ElasticStore is a typed HTTP adapter over an Elasticsearch index.
type ElasticStore struct {
	baseURL    string
	index      string
	httpClient *http.Client
}

type elasticSearchRequest struct {
	Query elasticQuery `json:"query"`
	Size  int          `json:"size"`
}

type elasticQuery struct {
	MultiMatch elasticMultiMatch `json:"multi_match"`
}

type elasticMultiMatch struct {
	Query     string   `json:"query"`
	Fields    []string `json:"fields"`
	Type      string   `json:"type"`
	Fuzziness string   `json:"fuzziness"`
}

type elasticSearchResponse struct {
	Hits struct {
		MaxScore float64 `json:"max_score"`
		Hits     []struct {
			Score  float64 `json:"_score"`
			Source struct {
				Content  string            `json:"content"`
				Title    string            `json:"title"`
				Category string            `json:"category"`
				Metadata map[string]string `json:"metadata"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

type elasticDocument struct {
	Content   string            `json:"content"`
	Title     string            `json:"title"`
	Category  string            `json:"category"`
	Timestamp string            `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func NewElasticStore(baseURL, index string) *ElasticStore {
	return &ElasticStore{
		baseURL:    baseURL,
		index:      index,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *ElasticStore) Name() string { return "elasticsearch" }

// Search runs a fuzzy multi_match over content and title. Raw BM25 scores
// are unbounded, so they are normalized by the response's max_score.
func (s *ElasticStore) Search(ctx context.Context, query string, topK int) ([]models.Snippet, error) {
	req := elasticSearchRequest{
		Query: elasticQuery{MultiMatch: elasticMultiMatch{
			Query:     query,
			Fields:    []string{"content^2", "title^1.5"},
			Type:      "best_fields",
			Fuzziness: "AUTO",
		}},
		Size: topK,
	}

	body, err := s.do(ctx, http.MethodPost, fmt.Sprintf("/%s/_search", s.index), req)
	if err != nil {
		return nil, err
	}

	var result elasticSearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("elasticsearch response: %w", err)
	}

	maxScore := result.Hits.MaxScore
	if maxScore <= 0 {
		maxScore = 1
	}

	var snippets []models.Snippet
	for _, hit := range result.Hits.Hits {
		meta := hit.Source.Metadata
		if meta == nil {
			meta = map[string]string{}
		}
		if hit.Source.Title != "" {
			meta["title"] = hit.Source.Title
		}
		if hit.Source.Category != "" {
			meta["category"] = hit.Source.Category
		}
		snippets = append(snippets, models.Snippet{
			Content:  hit.Source.Content,
			Score:    clampScore(hit.Score / maxScore),
			Source:   s.Name(),
			Metadata: meta,
		})
	}
	return snippets, nil
}

// AddDocuments indexes each document under an md5 id, overwriting duplicates.
func (s *ElasticStore) AddDocuments(ctx context.Context, docs []Document) error {
	for _, d := range docs {
		id := fmt.Sprintf("%x", md5.Sum([]byte(d.Content)))
		doc := elasticDocument{
			Content:   d.Content,
			Title:     d.Title,
			Category:  d.Category,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Metadata:  d.Metadata,
		}
		if _, err := s.do(ctx, http.MethodPut, fmt.Sprintf("/%s/_doc/%s", s.index, id), doc); err != nil {
			return err
		}
	}
	return nil
}

func (s *ElasticStore) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("elasticsearch status %d: %s", resp.StatusCode, body)
	}
	return body, nil
}
