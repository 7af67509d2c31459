// Package indexer keeps a view store in step with the document change feed.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/BRO3886/survey-index/internal/search"
	"github.com/BRO3886/survey-index/internal/types"
	"github.com/BRO3886/survey-index/internal/view"
)

var ErrMissingID = errors.New("document has no _id")

// Action reports what Handle did with a change.
type Action string

const (
	ActionIndexed   Action = "indexed"
	ActionRemoved   Action = "removed"
	ActionRejected  Action = "rejected"
	ActionDuplicate Action = "duplicate"
)

type Indexer struct {
	mapper view.Mapper
	store  search.Store
	logger *slog.Logger
	// last applied revision per document id
	applied *lru.Cache[string, string]
}

type Option func(*Indexer)

func WithMapper(m view.Mapper) Option {
	return func(i *Indexer) {
		i.mapper = m
	}
}

// WithDedupe remembers the last applied revision of up to size documents so
// redelivered changes are skipped. Zero disables it.
func WithDedupe(size int) Option {
	return func(i *Indexer) {
		if size <= 0 {
			i.applied = nil
			return
		}
		cache, err := lru.New[string, string](size)
		if err != nil {
			return
		}
		i.applied = cache
	}
}

func New(store search.Store, logger *slog.Logger, opts ...Option) *Indexer {
	i := &Indexer{
		mapper: view.ResponseIndexMapper,
		store:  store,
		logger: logger.With("component", "indexer"),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// HandleMessage decodes one feed message and applies it. Messages that can
// never be applied are logged and dropped so they do not block the
// partition; store failures are returned for redelivery.
func (i *Indexer) HandleMessage(ctx context.Context, data []byte) error {
	var change types.Change
	if err := json.Unmarshal(data, &change); err != nil {
		i.logger.Warn("dropping undecodable message", "err", err)
		return nil
	}
	if _, err := i.Handle(ctx, change); err != nil {
		if errors.Is(err, ErrMissingID) {
			i.logger.Warn("dropping change", "seq", change.Seq, "err", err)
			return nil
		}
		return err
	}
	return nil
}

// Handle applies one change to the store.
func (i *Indexer) Handle(ctx context.Context, change types.Change) (Action, error) {
	id := change.DocID()
	if id == "" {
		return "", ErrMissingID
	}

	rev := change.Rev
	if rev == "" && change.Doc != nil {
		rev = change.Doc.Rev
	}
	if i.seen(id, rev) {
		i.logger.Debug("skipping applied revision", "id", id, "rev", rev)
		return ActionDuplicate, nil
	}

	action, err := i.apply(ctx, id, change)
	if err != nil {
		return "", err
	}
	i.remember(id, rev)
	return action, nil
}

func (i *Indexer) apply(ctx context.Context, id string, change types.Change) (Action, error) {
	if change.Deleted || change.Doc == nil || change.Doc.Deleted() {
		if err := i.store.DeIndex(ctx, id); err != nil {
			return "", fmt.Errorf("deindex %s: %w", id, err)
		}
		return ActionRemoved, nil
	}

	doc := *change.Doc
	if doc.ID == "" {
		fields := maps.Clone(doc.Fields())
		if fields == nil {
			fields = map[string]any{}
		}
		fields["_id"] = id
		doc = types.NewDocument(fields)
	}

	rec, err := i.mapper.Map(doc)
	if err != nil {
		// the document keeps no row until it carries a usable timestamp
		i.logger.Warn("excluding document from view", "id", id, "err", err)
		if err := i.store.DeIndex(ctx, id); err != nil {
			return "", fmt.Errorf("deindex %s: %w", id, err)
		}
		return ActionRejected, nil
	}
	if rec == nil {
		if err := i.store.DeIndex(ctx, id); err != nil {
			return "", fmt.Errorf("deindex %s: %w", id, err)
		}
		return ActionRemoved, nil
	}

	// rows are keyed by the feed id so a later delete finds them
	rec.ID = id
	if err := i.store.Index(ctx, *rec); err != nil {
		return "", fmt.Errorf("index %s: %w", id, err)
	}
	i.logger.Debug("document indexed", "id", id, "key", rec.Key.String())
	return ActionIndexed, nil
}

func (i *Indexer) seen(id, rev string) bool {
	if i.applied == nil || rev == "" {
		return false
	}
	last, ok := i.applied.Get(id)
	return ok && last == rev
}

func (i *Indexer) remember(id, rev string) {
	if i.applied == nil || rev == "" {
		return
	}
	i.applied.Add(id, rev)
}
