package opensearch

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BRO3886/survey-index/internal/logging"
	"github.com/BRO3886/survey-index/internal/search"
	"github.com/BRO3886/survey-index/internal/types"
)

func testRecord(id string) types.IndexRecord {
	return types.IndexRecord{
		ID:  id,
		Key: types.Key{FormModelID: "FM1", Tag: "clinic-a", ModifiedEpoch: 1673776800000},
		Value: types.NewDocument(map[string]any{
			"_id":           id,
			"document_type": types.SurveyResponseType,
			"values":        map[string]any{"tag": "clinic-a"},
		}),
	}
}

func TestBulkBody(t *testing.T) {
	body, err := bulkBody("responses", []types.IndexRecord{testRecord("r1"), testRecord("r2")}, logging.Discard())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(body, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.JSONEq(t, `{"index":{"_index":"responses","_id":"r1"}}`, lines[0])
	assert.JSONEq(t, `{"index":{"_index":"responses","_id":"r2"}}`, lines[2])

	var src source
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &src))
	assert.Equal(t, "r1", src.DocID)
	assert.Equal(t, "FM1", src.FormModelID)
	assert.Equal(t, "clinic-a", src.Tag)
	assert.Equal(t, int64(1673776800000), src.ModifiedEpoch)

	rec, err := src.record()
	require.NoError(t, err)
	assert.Equal(t, testRecord("r1").Key, rec.Key)
	assert.Equal(t, "r1", rec.Value.ID)
}

func TestBulkBody_Empty(t *testing.T) {
	body, err := bulkBody("responses", nil, logging.Discard())
	require.NoError(t, err)
	assert.Empty(t, body)
}

func TestBulkFailures(t *testing.T) {
	failed, err := bulkFailures([]byte(`{"errors":false,"items":[{"index":{"_id":"r1","status":201}}]}`))
	require.NoError(t, err)
	assert.Empty(t, failed)

	failed, err = bulkFailures([]byte(`{"errors":true,"items":[
		{"index":{"_id":"r1","status":201}},
		{"index":{"_id":"r2","status":400,"error":{"type":"mapper_parsing_exception","reason":"bad"}}}
	]}`))
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "r2", failed[0].ID)
	assert.Equal(t, 400, failed[0].Status)
	assert.Equal(t, "mapper_parsing_exception: bad", failed[0].Reason)

	_, err = bulkFailures([]byte(`nope`))
	assert.Error(t, err)
}

func TestSearchBody(t *testing.T) {
	since := int64(100)
	body, err := searchBody(search.Query{FormModelID: "FM1", Tag: "a", Since: &since, Skip: 20, Limit: 10, Descending: true})
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"from": 20,
		"size": 10,
		"track_total_hits": true,
		"query": {"bool": {"filter": [
			{"term": {"form_model_id": "FM1"}},
			{"term": {"tag": "a"}},
			{"range": {"modified_epoch": {"gte": 100}}}
		]}},
		"sort": [
			{"form_model_id": "desc"},
			{"tag": "desc"},
			{"modified_epoch": "desc"},
			{"doc_id": "desc"}
		]
	}`, body)
}

func TestSearchBody_Window(t *testing.T) {
	body, err := searchBody(search.Query{FormModelID: "FM1", Skip: 9990})
	require.NoError(t, err)
	assert.Contains(t, body, `"size":10`)
	assert.Contains(t, body, `"form_model_id":"asc"`)

	_, err = searchBody(search.Query{FormModelID: "FM1", Skip: maxResultWindow + 1})
	assert.ErrorIs(t, err, search.ErrInvalidQuery)
}

func TestParseSearchResponse(t *testing.T) {
	page, err := parseSearchResponse([]byte(`{
		"hits": {
			"total": {"value": 42, "relation": "eq"},
			"hits": [
				{"_id": "r1", "_source": {"doc_id": "r1", "form_model_id": "FM1", "tag": "a", "modified_epoch": 5, "doc": {"_id": "r1", "values": {"tag": "a"}}}}
			]
		}
	}`))
	require.NoError(t, err)
	assert.Equal(t, 42, page.Total)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, "r1", page.Rows[0].ID)
	assert.Equal(t, types.Key{FormModelID: "FM1", Tag: "a", ModifiedEpoch: 5}, page.Rows[0].Key)

	_, err = parseSearchResponse([]byte(`{"hits":{"hits":[{"_source":{"doc_id":"r1","doc":null}}]}}`))
	assert.Error(t, err)
}

func TestParseCountResponse(t *testing.T) {
	n, err := parseCountResponse([]byte(`{"count": 7}`))
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}
