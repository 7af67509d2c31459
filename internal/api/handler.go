package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/BRO3886/survey-index/internal/search"
	"github.com/BRO3886/survey-index/internal/view"
)

const (
	defaultLimit = 20
	maxLimit     = 500
)

type ViewHandler struct {
	store  search.Store
	logger *slog.Logger
}

func (h *ViewHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Responses lists the view rows of one form model.
func (h *ViewHandler) Responses(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(chi.URLParam(r, "formModelID"), r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.store.Query(r.Context(), q)
	if err != nil {
		if errors.Is(err, search.ErrInvalidQuery) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("query failed", "form_model_id", q.FormModelID, "err", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func parseQuery(formModelID string, v url.Values) (search.Query, error) {
	q := search.Query{
		FormModelID: formModelID,
		Tag:         v.Get("tag"),
		Limit:       defaultLimit,
		Descending:  true,
	}

	var err error
	if s := v.Get("skip"); s != "" {
		if q.Skip, err = strconv.Atoi(s); err != nil || q.Skip < 0 {
			return q, fmt.Errorf("skip must be a non-negative integer")
		}
	}
	if s := v.Get("limit"); s != "" {
		if q.Limit, err = strconv.Atoi(s); err != nil || q.Limit < 1 || q.Limit > maxLimit {
			return q, fmt.Errorf("limit must be between 1 and %d", maxLimit)
		}
	}
	switch v.Get("order") {
	case "", "desc":
	case "asc":
		q.Descending = false
	default:
		return q, fmt.Errorf("order must be asc or desc")
	}
	if q.Since, err = parseBound(v.Get("since")); err != nil {
		return q, fmt.Errorf("since: %w", err)
	}
	if q.Until, err = parseBound(v.Get("until")); err != nil {
		return q, fmt.Errorf("until: %w", err)
	}
	return q, nil
}

// parseBound accepts epoch milliseconds or any timestamp the view itself
// understands.
func parseBound(s string) (*int64, error) {
	if s == "" {
		return nil, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &n, nil
	}
	n, err := view.ParseModified(s)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
