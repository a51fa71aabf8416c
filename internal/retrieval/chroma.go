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

// ChromaStore is a typed HTTP adapter over a ChromaDB collection.
type ChromaStore struct {
	baseURL    string
	collection string
	httpClient *http.Client
}

type chromaQueryRequest struct {
	QueryTexts []string `json:"query_texts"`
	NResults   int      `json:"n_results"`
}

type chromaQueryResult struct {
	IDs       [][]string                 `json:"ids"`
	Documents [][]string                 `json:"documents"`
	Metadatas [][]map[string]interface{} `json:"metadatas"`
	Distances [][]float64                `json:"distances"`
}

type chromaAddRequest struct {
	IDs       []string            `json:"ids"`
	Documents []string            `json:"documents"`
	Metadatas []map[string]string `json:"metadatas"`
}

func NewChromaStore(baseURL, collection string) *ChromaStore {
	return &ChromaStore{
		baseURL:    baseURL,
		collection: collection,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *ChromaStore) Name() string { return "chromadb" }

// Search queries the collection and converts distances into [0,1] scores.
func (s *ChromaStore) Search(ctx context.Context, query string, topK int) ([]models.Snippet, error) {
	body, err := s.do(ctx, http.MethodPost,
		fmt.Sprintf("/api/v1/collections/%s/query", s.collection),
		chromaQueryRequest{QueryTexts: []string{query}, NResults: topK})
	if err != nil {
		return nil, err
	}

	var result chromaQueryResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("chroma response: %w", err)
	}

	var snippets []models.Snippet
	if len(result.Documents) > 0 {
		for i, doc := range result.Documents[0] {
			score := 0.8
			if len(result.Distances) > 0 && i < len(result.Distances[0]) {
				score = clampScore(1.0 - result.Distances[0][i])
			}
			meta := map[string]string{}
			if len(result.Metadatas) > 0 && i < len(result.Metadatas[0]) {
				for k, v := range result.Metadatas[0][i] {
					meta[k] = fmt.Sprint(v)
				}
			}
			snippets = append(snippets, models.Snippet{
				Content:  doc,
				Score:    score,
				Source:   s.Name(),
				Metadata: meta,
			})
		}
	}
	return snippets, nil
}

// AddDocuments indexes documents keyed by an md5 of their content.
func (s *ChromaStore) AddDocuments(ctx context.Context, docs []Document) error {
	req := chromaAddRequest{}
	for _, d := range docs {
		req.IDs = append(req.IDs, fmt.Sprintf("%x", md5.Sum([]byte(d.Content))))
		req.Documents = append(req.Documents, d.Content)
		meta := map[string]string{"title": d.Title, "category": d.Category}
		req.Metadatas = append(req.Metadatas, meta)
	}

	_, err := s.do(ctx, http.MethodPost,
		fmt.Sprintf("/api/v1/collections/%s/add", s.collection), req)
	return err
}

func (s *ChromaStore) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
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
		return nil, fmt.Errorf("chroma request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chroma status %d: %s", resp.StatusCode, body)
	}
	return body, nil
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
