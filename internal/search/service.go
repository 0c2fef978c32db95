package search

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

const (
	BackendMeili = "meilisearch"
	BackendPG    = "postgres"
)

// Service is the facade that tries the index first and falls back to PG FTS.
type Service struct {
	index    Indexer
	primary  Searcher
	fallback Searcher
	loader   Loader
	log      zerolog.Logger
}

// NewService wires a search facade. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS, log zerolog.Logger) *Service {
	s := &Service{fallback: pgfts, loader: pgfts, log: log}
	if meili != nil {
		s.index = meili
		s.primary = meili
	}
	return s
}

// Search tries the primary backend if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.primary != nil && s.primary.Healthy() {
		results, total, err := s.primary.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: BackendMeili}
		}
		s.log.Warn().Err(err).Msg("meilisearch error, falling back to pgfts")
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text, Backend: BackendPG}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.log.Error().Err(err).Msg("pgfts search failed")
		return Response{Results: []Result{}, Total: 0, Query: q.Text, Backend: BackendPG}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: BackendPG}
}

// IndexEnabled reports whether there is an index to keep in sync.
func (s *Service) IndexEnabled() bool {
	return s.index != nil
}

// SyncThread brings one thread's index entry in line with Postgres: published
// threads are upserted, drafts and deleted threads are removed. It returns an
// error when the index is unavailable so the caller can retry later.
func (s *Service) SyncThread(ctx context.Context, id string) error {
	if s.index == nil {
		return nil
	}
	if !s.index.Healthy() {
		return fmt.Errorf("search index unavailable")
	}
	record, found, err := s.loader.LoadThreadRecord(ctx, id)
	if err != nil {
		return err
	}
	if !found || !record.IsPublished {
		return s.index.DeleteThread(ctx, id)
	}
	return s.index.UpsertThreads(ctx, []ThreadRecord{record})
}

// ReindexAllFromPG pushes every published thread from PostgreSQL into the index.
func (s *Service) ReindexAllFromPG(ctx context.Context) (int, error) {
	if s.index == nil || !s.index.Healthy() || s.loader == nil {
		return 0, fmt.Errorf("search index unavailable")
	}
	records, err := s.loader.LoadAllRecords(ctx)
	if err != nil {
		return 0, fmt.Errorf("reindex load: %w", err)
	}
	if err := s.index.UpsertThreads(ctx, records); err != nil {
		return 0, fmt.Errorf("reindex upsert: %w", err)
	}
	return len(records), nil
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
