package opensearch

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	external "github.com/opensearch-project/opensearch-go/v2"
	api "github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/BRO3886/survey-index/internal/config"
	"github.com/BRO3886/survey-index/internal/search"
	"github.com/BRO3886/survey-index/internal/types"
)

type openSearchClient struct {
	client        *external.Client
	index         string
	buff          []types.IndexRecord
	flushInterval time.Duration
	buffSize      int
	logger        *slog.Logger
	m             sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

func New(ctx context.Context, c *config.Config, logger *slog.Logger) (search.Store, error) {
	client, err := external.NewClient(external.Config{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: c.Opensearch.Insecure},
		},
		Addresses:  c.Opensearch.URLs,
		MaxRetries: c.Opensearch.MaxRetries,
		Username:   c.Opensearch.Username,
		Password:   c.Opensearch.Password,
	})
	if err != nil {
		return nil, err
	}

	s := &openSearchClient{
		client:        client,
		index:         c.Opensearch.Index.Name,
		buff:          make([]types.IndexRecord, 0, c.Opensearch.Index.BuffSize),
		flushInterval: time.Second * time.Duration(c.Opensearch.Index.FlushInterval),
		buffSize:      c.Opensearch.Index.BuffSize,
		logger:        logger.With("component", "opensearch"),
		done:          make(chan struct{}),
	}

	if s.flushInterval <= 0 {
		s.flushInterval = 5 * time.Second
	}

	if err := s.checkAndCreateIndex(ctx, s.index); err != nil {
		return nil, err
	}

	tickerCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.startFlushTicker(tickerCtx)

	return s, nil
}

func (s *openSearchClient) checkAndCreateIndex(ctx context.Context, index string) error {
	if resp, err := s.client.Indices.Exists([]string{index}); err == nil {
		resp.Body.Close()
		// early return if index already exists
		if resp.StatusCode == http.StatusOK {
			return nil
		}
	}

	req := api.IndicesCreateRequest{
		Index: index,
		Body:  strings.NewReader(indexSettings),
	}

	resp, err := req.Do(ctx, s.client)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.IsError() {
		return fmt.Errorf("failed to create index: %s %s", resp.Status(), string(body))
	}

	if resp.HasWarnings() {
		s.logger.Warn("create index warnings", "warnings", resp.Warnings())
	}

	s.logger.Info("index created", "index", index)

	return nil
}

// Index buffers rec; rows reach OpenSearch on the next flush, or at once
// when the buffer is full.
func (s *openSearchClient) Index(ctx context.Context, rec types.IndexRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("opensearch: record has no id")
	}
	s.m.Lock()
	defer s.m.Unlock()
	s.buff = append(s.buff, rec)
	if s.buffSize > 0 && len(s.buff) >= s.buffSize {
		return s.flushLocked(ctx)
	}
	return nil
}

func (s *openSearchClient) startFlushTicker(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.flush(ctx); err != nil {
				s.logger.Error("failed to flush documents", "err", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *openSearchClient) flush(ctx context.Context) error {
	s.m.Lock()
	defer s.m.Unlock()
	return s.flushLocked(ctx)
}

// flushLocked sends the buffer with the Bulk API. On failure the buffer is
// kept and retried by the next flush.
func (s *openSearchClient) flushLocked(ctx context.Context) error {
	if len(s.buff) == 0 {
		return nil
	}

	s.logger.Debug("flushing documents", "count", len(s.buff))

	reqBody, err := bulkBody(s.index, s.buff, s.logger)
	if err != nil {
		return err
	}
	if reqBody == "" {
		s.buff = s.buff[:0]
		return nil
	}

	req := api.BulkRequest{
		Body: strings.NewReader(reqBody),
	}

	resp, err := req.Do(ctx, s.client)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.IsError() {
		return fmt.Errorf("failed to flush documents: %s %s", resp.Status(), string(body))
	}

	failed, err := bulkFailures(body)
	if err != nil {
		return err
	}

	var retry []types.IndexRecord
	if len(failed) > 0 {
		pending := make(map[string]types.IndexRecord, len(s.buff))
		for _, rec := range s.buff {
			pending[rec.ID] = rec
		}
		for _, f := range failed {
			s.logger.Error("bulk item failed", "id", f.ID, "status", f.Status, "reason", f.Reason)
			if rec, ok := pending[f.ID]; ok && retryable(f.Status) {
				retry = append(retry, rec)
			}
		}
	}

	s.logger.Info("flushed documents", "count", len(s.buff), "failed", len(failed), "retry", len(retry))

	s.buff = append(make([]types.IndexRecord, 0, s.buffSize), retry...)
	if len(retry) > 0 {
		return fmt.Errorf("failed to flush documents: %d kept for retry", len(retry))
	}

	return nil
}

// retryable reports whether a rejected bulk item may succeed if sent again.
// Mapping and validation errors are dropped.
func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// DeIndex flushes pending rows first so a buffered upsert cannot bring the
// row back after the delete.
func (s *openSearchClient) DeIndex(ctx context.Context, id string) error {
	s.m.Lock()
	defer s.m.Unlock()
	if err := s.flushLocked(ctx); err != nil {
		return err
	}

	req := api.DeleteRequest{
		Index:      s.index,
		DocumentID: id,
	}

	resp, err := req.Do(ctx, s.client)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.IsError() {
		return fmt.Errorf("failed to delete document: %s %s", resp.Status(), string(body))
	}

	s.logger.Debug("document deleted", "id", id)

	return nil
}

func (s *openSearchClient) Query(ctx context.Context, q search.Query) (search.Page, error) {
	if err := q.Validate(); err != nil {
		return search.Page{}, err
	}

	body, err := searchBody(q)
	if err != nil {
		return search.Page{}, err
	}

	req := api.SearchRequest{
		Index: []string{s.index},
		Body:  strings.NewReader(body),
	}
	resp, err := req.Do(ctx, s.client)
	if err != nil {
		return search.Page{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return search.Page{}, err
	}
	if resp.IsError() {
		return search.Page{}, fmt.Errorf("failed to search: %s %s", resp.Status(), string(raw))
	}

	page, err := parseSearchResponse(raw)
	if err != nil {
		return search.Page{}, err
	}
	page.Skip = q.Skip

	if q.Tag != "" || q.Since != nil || q.Until != nil {
		if page.Total, err = s.count(ctx, q.FormModelID); err != nil {
			return search.Page{}, err
		}
	}
	return page, nil
}

func (s *openSearchClient) count(ctx context.Context, formModelID string) (int, error) {
	body, err := countBody(formModelID)
	if err != nil {
		return 0, err
	}
	req := api.CountRequest{
		Index: []string{s.index},
		Body:  strings.NewReader(body),
	}
	resp, err := req.Do(ctx, s.client)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	if resp.IsError() {
		return 0, fmt.Errorf("failed to count: %s %s", resp.Status(), string(raw))
	}
	return parseCountResponse(raw)
}

// Close stops the flush ticker and sends whatever is still buffered.
func (s *openSearchClient) Close() error {
	s.cancel()
	<-s.done
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.flush(ctx)
}
