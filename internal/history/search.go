package history

import (
	"context"
	"fmt"
	"strings"

	"otp-agent/internal/client"
)

const searchMapping = `{
  "mappings": {
    "properties": {
      "session_id":   {"type": "keyword"},
      "request_id":   {"type": "keyword"},
      "phone_number": {"type": "text", "fields": {"raw": {"type": "keyword"}}},
      "service_id":   {"type": "keyword"},
      "country_id":   {"type": "keyword"},
      "status":       {"type": "keyword"},
      "otp_code":     {"type": "keyword", "index": false},
      "checks":       {"type": "integer"},
      "note":         {"type": "text"},
      "created_at":   {"type": "date"},
      "finished_at":  {"type": "date"},
      "bucket":       {"type": "integer"},
      "date_bucket":  {"type": "keyword"}
    }
  }
}`

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// SearchIndex keeps finished sessions in Elasticsearch and searches them.
type SearchIndex struct {
	es *client.ESClient
}

func NewSearchIndex(es *client.ESClient) *SearchIndex {
	return &SearchIndex{es: es}
}

func (s *SearchIndex) EnsureIndex(ctx context.Context) error {
	return s.es.EnsureIndex(ctx, searchMapping)
}

func (s *SearchIndex) Name() string { return "elasticsearch" }

func (s *SearchIndex) Record(ctx context.Context, rec Record) error {
	res, err := s.es.IndexDocument(ctx, rec.SessionID, rec)
	if err != nil {
		return err
	}
	if err := s.es.ParseResponse(res, nil); err != nil {
		return fmt.Errorf("failed to index session %s: %w", rec.SessionID, err)
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source Record `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Result is one page of matching records, newest first.
type Result struct {
	Records []Record `json:"records"`
	Total   int      `json:"total"`
}

// Search matches term against phone number, request id, service, country,
// status and note. An empty term lists the most recent sessions.
func (s *SearchIndex) Search(ctx context.Context, term string, limit int) (Result, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	query := map[string]interface{}{"match_all": map[string]interface{}{}}
	if term = strings.TrimSpace(term); term != "" {
		query = map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":   term,
				"fields":  []string{"phone_number", "request_id", "service_id", "country_id", "status", "note"},
				"lenient": true,
			},
		}
	}

	res, err := s.es.Search(ctx, map[string]interface{}{
		"size":  limit,
		"query": query,
		"sort":  []interface{}{map[string]interface{}{"finished_at": map[string]string{"order": "desc"}}},
	})
	if err != nil {
		return Result{}, err
	}

	var body searchResponse
	if err := s.es.ParseResponse(res, &body); err != nil {
		return Result{}, err
	}

	out := Result{Records: make([]Record, 0, len(body.Hits.Hits)), Total: body.Hits.Total.Value}
	for _, hit := range body.Hits.Hits {
		out.Records = append(out.Records, hit.Source)
	}
	return out, nil
}
