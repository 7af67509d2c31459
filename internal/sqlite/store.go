// Package sqlite keeps the view in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/BRO3886/survey-index/internal/search"
	"github.com/BRO3886/survey-index/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS view_rows (
	doc_id         TEXT PRIMARY KEY,
	form_model_id  TEXT NOT NULL,
	tag            TEXT NOT NULL,
	modified_epoch INTEGER NOT NULL,
	value          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS view_rows_key ON view_rows(form_model_id, tag, modified_epoch);
`

type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the database at path. ":memory:" keeps the view
// in process memory.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// a single connection keeps ":memory:" databases shared across calls
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: pragmas: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: schema: %w", err)
	}
	return &Store{db: db, logger: logger.With("component", "sqlite")}, nil
}

func (s *Store) Index(ctx context.Context, rec types.IndexRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("sqlite: record has no id")
	}
	value, err := json.Marshal(rec.Value)
	if err != nil {
		return fmt.Errorf("sqlite: marshal %s: %w", rec.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO view_rows(doc_id, form_model_id, tag, modified_epoch, value)
		VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET
			form_model_id = excluded.form_model_id,
			tag = excluded.tag,
			modified_epoch = excluded.modified_epoch,
			value = excluded.value`,
		rec.ID, rec.Key.FormModelID, rec.Key.Tag, rec.Key.ModifiedEpoch, string(value))
	if err != nil {
		return fmt.Errorf("sqlite: index %s: %w", rec.ID, err)
	}
	s.logger.Debug("row indexed", "id", rec.ID, "key", rec.Key.String())
	return nil
}

func (s *Store) DeIndex(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM view_rows WHERE doc_id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deindex %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Debug("row removed", "id", id)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, q search.Query) (search.Page, error) {
	if err := q.Validate(); err != nil {
		return search.Page{}, err
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM view_rows WHERE form_model_id = ?`, q.FormModelID,
	).Scan(&total); err != nil {
		return search.Page{}, fmt.Errorf("sqlite: count: %w", err)
	}

	where := []string{"form_model_id = ?"}
	args := []any{q.FormModelID}
	if q.Tag != "" {
		where = append(where, "tag = ?")
		args = append(args, q.Tag)
	}
	if q.Since != nil {
		where = append(where, "modified_epoch >= ?")
		args = append(args, *q.Since)
	}
	if q.Until != nil {
		where = append(where, "modified_epoch <= ?")
		args = append(args, *q.Until)
	}

	order := "ASC"
	if q.Descending {
		order = "DESC"
	}
	limit := q.Limit
	if limit == 0 {
		limit = -1
	}
	args = append(args, limit, q.Skip)

	stmt := fmt.Sprintf(`SELECT doc_id, form_model_id, tag, modified_epoch, value FROM view_rows
		WHERE %s
		ORDER BY form_model_id %[2]s, tag %[2]s, modified_epoch %[2]s, doc_id %[2]s
		LIMIT ? OFFSET ?`, strings.Join(where, " AND "), order)

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return search.Page{}, fmt.Errorf("sqlite: query: %w", err)
	}
	defer rows.Close()

	page := search.Page{Total: total, Skip: q.Skip, Rows: []types.IndexRecord{}}
	for rows.Next() {
		var (
			rec   types.IndexRecord
			value string
		)
		if err := rows.Scan(&rec.ID, &rec.Key.FormModelID, &rec.Key.Tag, &rec.Key.ModifiedEpoch, &value); err != nil {
			return search.Page{}, fmt.Errorf("sqlite: scan: %w", err)
		}
		if rec.Value, err = types.ParseDocument([]byte(value)); err != nil {
			return search.Page{}, fmt.Errorf("sqlite: row %s: %w", rec.ID, err)
		}
		page.Rows = append(page.Rows, rec)
	}
	if err := rows.Err(); err != nil {
		return search.Page{}, fmt.Errorf("sqlite: rows: %w", err)
	}
	return page, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

var _ search.Store = (*Store)(nil)
