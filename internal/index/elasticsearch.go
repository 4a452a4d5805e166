package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"querybot/internal/common/database"
	apperrors "querybot/internal/common/errors"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const documentMapping = `{
  "mappings": {
    "properties": {
      "id":      {"type": "keyword"},
      "table":   {"type": "keyword"},
      "content": {"type": "text"}
    }
  }
}`

// Elasticsearch keeps documents in a single index and ranks them with the
// engine's own BM25 similarity.
type Elasticsearch struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticsearch(client *elasticsearch.Client, index string) *Elasticsearch {
	return &Elasticsearch{client: client, index: index}
}

func (e *Elasticsearch) Add(ctx context.Context, docs ...Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := database.EnsureIndex(ctx, e.client, e.index, documentMapping); err != nil {
		return apperrors.NewElasticsearchConnectionFailedError(err)
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, doc := range docs {
		meta := map[string]interface{}{"index": map[string]interface{}{"_id": doc.ID}}
		if err := enc.Encode(meta); err != nil {
			return err
		}
		if err := enc.Encode(doc); err != nil {
			return err
		}
	}

	res, err := esapi.BulkRequest{
		Index:   e.index,
		Body:    &body,
		Refresh: "true",
	}.Do(ctx, e.client)
	if err != nil {
		return apperrors.NewElasticsearchConnectionFailedError(err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return apperrors.NewSearchQueryFailedError(e.index, fmt.Errorf("bulk: %s", res.String()))
	}

	var r struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return err
	}
	if r.Errors {
		return apperrors.NewSearchQueryFailedError(e.index, fmt.Errorf("bulk request reported item errors"))
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string   `json:"_id"`
			Score  float64  `json:"_score"`
			Source Document `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (e *Elasticsearch) Search(ctx context.Context, text string, k int) ([]Hit, error) {
	if k <= 0 || strings.TrimSpace(text) == "" {
		return nil, nil
	}

	queryBody := map[string]interface{}{
		"query": map[string]interface{}{
			"match": map[string]interface{}{"content": text},
		},
		"size": k,
	}
	body, _ := json.Marshal(queryBody)

	res, err := esapi.SearchRequest{
		Index: []string{e.index},
		Body:  bytes.NewReader(body),
	}.Do(ctx, e.client)
	if err != nil {
		return nil, apperrors.NewElasticsearchConnectionFailedError(err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		return nil, nil
	}
	if res.IsError() {
		return nil, apperrors.NewSearchQueryFailedError(e.index, fmt.Errorf("%s", res.String()))
	}

	var r searchResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(r.Hits.Hits))
	for _, h := range r.Hits.Hits {
		if h.Score <= 0 {
			continue
		}
		doc := h.Source
		if doc.ID == "" {
			doc.ID = h.ID
		}
		hits = append(hits, Hit{Document: doc, Score: h.Score})
	}
	return hits, nil
}

func (e *Elasticsearch) Reset(ctx context.Context) error {
	ignore := true
	res, err := esapi.IndicesDeleteRequest{
		Index:             []string{e.index},
		IgnoreUnavailable: &ignore,
	}.Do(ctx, e.client)
	if err != nil {
		return apperrors.NewElasticsearchConnectionFailedError(err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != 404 {
		return apperrors.NewSearchQueryFailedError(e.index, fmt.Errorf("delete index: %s", res.Status()))
	}
	return nil
}

// Count fails with INDEX_NOT_FOUND until the first Add creates the index.
func (e *Elasticsearch) Count(ctx context.Context) (int, error) {
	res, err := esapi.CountRequest{Index: []string{e.index}}.Do(ctx, e.client)
	if err != nil {
		return 0, apperrors.NewElasticsearchConnectionFailedError(err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		return 0, apperrors.NewIndexNotFoundError(e.index)
	}
	if res.IsError() {
		return 0, apperrors.NewSearchQueryFailedError(e.index, fmt.Errorf("count: %s", res.Status()))
	}

	var r struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return 0, err
	}
	return r.Count, nil
}
