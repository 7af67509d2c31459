package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BRO3886/survey-index/internal/logging"
	"github.com/BRO3886/survey-index/internal/search"
	"github.com/BRO3886/survey-index/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record(t *testing.T, id, formModelID, tag string, epoch int64) types.IndexRecord {
	t.Helper()
	doc := types.NewDocument(map[string]any{
		"_id":           id,
		"document_type": types.SurveyResponseType,
		"form_model_id": formModelID,
		"values":        map[string]any{"tag": tag},
	})
	return types.IndexRecord{
		ID:    id,
		Key:   types.Key{FormModelID: formModelID, Tag: tag, ModifiedEpoch: epoch},
		Value: doc,
	}
}

func ids(page search.Page) []string {
	out := make([]string, 0, len(page.Rows))
	for _, r := range page.Rows {
		out = append(out, r.ID)
	}
	return out
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	for _, rec := range []types.IndexRecord{
		record(t, "r1", "FM1", "a", 100),
		record(t, "r2", "FM1", "a", 300),
		record(t, "r3", "FM1", "b", 200),
		record(t, "r4", "FM2", "a", 50),
	} {
		require.NoError(t, s.Index(ctx, rec))
	}
}

func TestStore_QueryOrder(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	page, err := s.Query(ctx, search.Query{FormModelID: "FM1", Descending: true})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, []string{"r3", "r2", "r1"}, ids(page))

	page, err = s.Query(ctx, search.Query{FormModelID: "FM1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2", "r3"}, ids(page))

	assert.Equal(t, types.Key{FormModelID: "FM1", Tag: "a", ModifiedEpoch: 100}, page.Rows[0].Key)
	assert.Equal(t, "r1", page.Rows[0].Value.ID)
}

func TestStore_QueryFilters(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	page, err := s.Query(ctx, search.Query{FormModelID: "FM1", Tag: "a", Descending: true})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, []string{"r2", "r1"}, ids(page))

	since, until := int64(150), int64(250)
	page, err = s.Query(ctx, search.Query{FormModelID: "FM1", Since: &since, Until: &until})
	require.NoError(t, err)
	assert.Equal(t, []string{"r3"}, ids(page))

	page, err = s.Query(ctx, search.Query{FormModelID: "missing"})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
	assert.Empty(t, page.Rows)
}

func TestStore_QueryPaging(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	page, err := s.Query(ctx, search.Query{FormModelID: "FM1", Descending: true, Skip: 1, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 1, page.Skip)
	assert.Equal(t, []string{"r2"}, ids(page))

	page, err = s.Query(ctx, search.Query{FormModelID: "FM1", Skip: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"r3"}, ids(page))
}

func TestStore_IndexReplacesRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Index(ctx, record(t, "r1", "FM1", "a", 100)))
	require.NoError(t, s.Index(ctx, record(t, "r1", "FM1", "b", 200)))

	page, err := s.Query(ctx, search.Query{FormModelID: "FM1"})
	require.NoError(t, err)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, "b", page.Rows[0].Key.Tag)
	assert.Equal(t, int64(200), page.Rows[0].Key.ModifiedEpoch)
}

func TestStore_DeIndex(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	require.NoError(t, s.DeIndex(ctx, "r2"))
	require.NoError(t, s.DeIndex(ctx, "never-indexed"))

	page, err := s.Query(ctx, search.Query{FormModelID: "FM1"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, []string{"r1", "r3"}, ids(page))
}

func TestStore_RejectsBadInput(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.Error(t, s.Index(ctx, types.IndexRecord{}))

	_, err := s.Query(ctx, search.Query{})
	assert.ErrorIs(t, err, search.ErrInvalidQuery)
}
