// Package search indexes resumes in Meilisearch and falls back to Postgres
// full-text search when Meilisearch is unavailable.
package search

import (
	"context"
	"strings"

	"resumekit/api/internal/resume"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
	Template string `json:"template,omitempty"`
}

// Query describes a search request. OwnerID is mandatory: users only ever
// search their own resumes.
type Query struct {
	Text     string
	OwnerID  string
	Template string
	Limit    int
	Offset   int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push resumes into a search index.
type Indexer interface {
	IndexResumes(docs []ResumeDoc) error
	DeleteResume(id string) error
}

// ResumeDoc is the data we index for a resume.
type ResumeDoc struct {
	ID       string   `json:"id"`
	OwnerID  string   `json:"ownerId"`
	Title    string   `json:"title"`
	Name     string   `json:"name"`
	Headline string   `json:"headline"`
	Summary  string   `json:"summary"`
	Skills   []string `json:"skills"`
	Template string   `json:"template"`
}

func DocFromResume(r resume.Resume) ResumeDoc {
	return ResumeDoc{
		ID:       r.ID,
		OwnerID:  r.OwnerID,
		Title:    r.Title,
		Name:     r.Personal.FullName,
		Headline: r.Personal.Headline,
		Summary:  r.Summary,
		Skills:   append([]string(nil), r.Skills...),
		Template: r.Template,
	}
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return 20
	}
	if q.Limit > 100 {
		return 100
	}
	return q.Limit
}

func (q Query) offset() int {
	if q.Offset < 0 {
		return 0
	}
	return q.Offset
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
