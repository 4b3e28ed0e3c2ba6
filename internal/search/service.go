package search

import (
	"context"
	"log"
)

// Engine is a searcher that also owns an index, like Meilisearch.
type Engine interface {
	Searcher
	Indexer
}

// Service is the facade that tries the index engine first and falls back to PG FTS.
type Service struct {
	engine   Engine
	fallback Searcher
}

// NewService creates a search service. engine may be nil if Meilisearch is not configured.
func NewService(engine Engine, fallback Searcher) *Service {
	return &Service{engine: engine, fallback: fallback}
}

// Search tries the engine if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.engine != nil && s.engine.Healthy() {
		results, total, err := s.engine.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}
	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}

	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexResume indexes a resume (fire-and-forget).
func (s *Service) IndexResume(doc ResumeDoc) {
	if s.engine == nil || !s.engine.Healthy() {
		return
	}
	go func() {
		if err := s.engine.IndexResumes([]ResumeDoc{doc}); err != nil {
			log.Printf("search: index resume %s: %v", doc.ID, err)
		}
	}()
}

// DeleteResume removes a resume from the index (fire-and-forget).
func (s *Service) DeleteResume(id string) {
	if s.engine == nil || !s.engine.Healthy() {
		return
	}
	go func() {
		if err := s.engine.DeleteResume(id); err != nil {
			log.Printf("search: delete resume %s: %v", id, err)
		}
	}()
}

// ReindexAllFromPG pushes every stored resume into the engine. Called at boot.
func (s *Service) ReindexAllFromPG(ctx context.Context, pg *PgFTS) {
	if s.engine == nil || !s.engine.Healthy() || pg == nil {
		return
	}
	docs, err := pg.LoadAllResumes(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if err := s.engine.IndexResumes(docs); err != nil {
		log.Printf("search: reindex resumes: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
