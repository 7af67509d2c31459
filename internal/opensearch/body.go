package opensearch

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BRO3886/survey-index/internal/search"
	"github.com/BRO3886/survey-index/internal/types"
)

// maxResultWindow is OpenSearch's default index.max_result_window.
const maxResultWindow = 10000

const indexSettings = `{
	"settings": {
		"index": {
			"number_of_shards": 1,
			"number_of_replicas": 0
		}
	},
	"mappings": {
		"properties": {
			"doc_id":         {"type": "keyword"},
			"form_model_id":  {"type": "keyword"},
			"tag":            {"type": "keyword"},
			"modified_epoch": {"type": "long"},
			"doc":            {"type": "object", "enabled": false}
		}
	}
}`

// source is the stored shape of one view row.
type source struct {
	DocID         string          `json:"doc_id"`
	FormModelID   string          `json:"form_model_id"`
	Tag           string          `json:"tag"`
	ModifiedEpoch int64           `json:"modified_epoch"`
	Doc           json.RawMessage `json:"doc"`
}

func toSource(rec types.IndexRecord) (source, error) {
	doc, err := json.Marshal(rec.Value)
	if err != nil {
		return source{}, err
	}
	return source{
		DocID:         rec.ID,
		FormModelID:   rec.Key.FormModelID,
		Tag:           rec.Key.Tag,
		ModifiedEpoch: rec.Key.ModifiedEpoch,
		Doc:           doc,
	}, nil
}

func (s source) record() (types.IndexRecord, error) {
	doc, err := types.ParseDocument(s.Doc)
	if err != nil {
		return types.IndexRecord{}, fmt.Errorf("row %s: %w", s.DocID, err)
	}
	return types.IndexRecord{
		ID: s.DocID,
		Key: types.Key{
			FormModelID:   s.FormModelID,
			Tag:           s.Tag,
			ModifiedEpoch: s.ModifiedEpoch,
		},
		Value: doc,
	}, nil
}

// bulkBody renders recs as newline-delimited index actions. Records that
// cannot be encoded are logged and skipped.
func bulkBody(index string, recs []types.IndexRecord, logger *slog.Logger) (string, error) {
	var b strings.Builder
	for _, rec := range recs {
		src, err := toSource(rec)
		if err != nil {
			logger.Error("failed to marshal document", "id", rec.ID, "err", err)
			continue
		}
		action, err := json.Marshal(map[string]any{
			"index": map[string]string{"_index": index, "_id": rec.ID},
		})
		if err != nil {
			return "", err
		}
		data, err := json.Marshal(src)
		if err != nil {
			logger.Error("failed to marshal document", "id", rec.ID, "err", err)
			continue
		}
		b.Write(action)
		b.WriteByte('\n')
		b.Write(data)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

type bulkFailure struct {
	ID     string
	Status int
	Reason string
}

// bulkFailures lists the items a 200 bulk response still rejected.
func bulkFailures(body []byte) ([]bulkFailure, error) {
	var resp struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode bulk response: %w", err)
	}
	if !resp.Errors {
		return nil, nil
	}
	var out []bulkFailure
	for _, item := range resp.Items {
		for _, result := range item {
			if result.Error == nil {
				continue
			}
			out = append(out, bulkFailure{
				ID:     result.ID,
				Status: result.Status,
				Reason: result.Error.Type + ": " + result.Error.Reason,
			})
		}
	}
	return out, nil
}

func formModelFilter(formModelID string) map[string]any {
	return map[string]any{"term": map[string]any{"form_model_id": formModelID}}
}

func searchBody(q search.Query) (string, error) {
	filters := []any{formModelFilter(q.FormModelID)}
	if q.Tag != "" {
		filters = append(filters, map[string]any{"term": map[string]any{"tag": q.Tag}})
	}
	if q.Since != nil || q.Until != nil {
		r := map[string]any{}
		if q.Since != nil {
			r["gte"] = *q.Since
		}
		if q.Until != nil {
			r["lte"] = *q.Until
		}
		filters = append(filters, map[string]any{"range": map[string]any{"modified_epoch": r}})
	}

	order := "asc"
	if q.Descending {
		order = "desc"
	}

	size := q.Limit
	if size == 0 || q.Skip+size > maxResultWindow {
		size = maxResultWindow - q.Skip
	}
	if size < 0 {
		return "", fmt.Errorf("%w: skip beyond %d rows", search.ErrInvalidQuery, maxResultWindow)
	}

	body := map[string]any{
		"from":             q.Skip,
		"size":             size,
		"track_total_hits": true,
		"query":            map[string]any{"bool": map[string]any{"filter": filters}},
		"sort": []any{
			map[string]any{"form_model_id": order},
			map[string]any{"tag": order},
			map[string]any{"modified_epoch": order},
			map[string]any{"doc_id": order},
		},
	}
	out, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func countBody(formModelID string) (string, error) {
	out, err := json.Marshal(map[string]any{
		"query": map[string]any{"bool": map[string]any{"filter": []any{formModelFilter(formModelID)}}},
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func parseSearchResponse(raw []byte) (search.Page, error) {
	var resp struct {
		Hits struct {
			Total struct {
				Value int `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source source `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return search.Page{}, fmt.Errorf("decode search response: %w", err)
	}

	page := search.Page{
		Total: resp.Hits.Total.Value,
		Rows:  make([]types.IndexRecord, 0, len(resp.Hits.Hits)),
	}
	for _, hit := range resp.Hits.Hits {
		rec, err := hit.Source.record()
		if err != nil {
			return search.Page{}, err
		}
		page.Rows = append(page.Rows, rec)
	}
	return page, nil
}

func parseCountResponse(raw []byte) (int, error) {
	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return 0, fmt.Errorf("decode count response: %w", err)
	}
	return resp.Count, nil
}
