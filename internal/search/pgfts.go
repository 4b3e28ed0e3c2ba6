package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"resumekit/api/internal/resume"
)

// PgFTS implements Searcher over the generated tsvector column of records.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" || q.OwnerID == "" {
		return nil, 0, nil
	}

	const tsQuery = "plainto_tsquery('english', $1)"
	where := "r.collection = $2 AND r.owner_id = $3 AND r.fts @@ " + tsQuery
	args := []any{q.Text, resume.CollectionName, q.OwnerID}
	if q.Template != "" {
		args = append(args, q.Template)
		where += fmt.Sprintf(" AND r.payload->>'template' = $%d", len(args))
	}

	var total int
	if err := p.db.QueryRowContext(ctx, "SELECT count(*) FROM records r WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT r.id, COALESCE(r.payload->>'title', ''),
			ts_headline('english', COALESCE(r.payload->>'summary', ''), %s, 'MaxFragments=1,MaxWords=30'),
			COALESCE(r.payload->>'template', '')
		FROM records r
		WHERE %s
		ORDER BY ts_rank(r.fts, %s) DESC, r.created_at ASC
		LIMIT %d OFFSET %d`, tsQuery, where, tsQuery, q.limit(), q.offset())

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &r.Template); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllResumes returns every stored resume for full reindexing.
func (p *PgFTS) LoadAllResumes(ctx context.Context) ([]ResumeDoc, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, owner_id, payload FROM records WHERE collection = $1 ORDER BY created_at
	`, resume.CollectionName)
	if err != nil {
		return nil, fmt.Errorf("load resumes: %w", err)
	}
	defer rows.Close()

	docs := make([]ResumeDoc, 0)
	for rows.Next() {
		var res resume.Resume
		var payload []byte
		if err := rows.Scan(&res.ID, &res.OwnerID, &payload); err != nil {
			return nil, fmt.Errorf("scan resume: %w", err)
		}
		if err := json.Unmarshal(payload, &res.Draft); err != nil {
			return nil, fmt.Errorf("decode resume %s: %w", res.ID, err)
		}
		docs = append(docs, DocFromResume(res))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resumes: %w", err)
	}
	return docs, nil
}
