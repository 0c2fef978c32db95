package search

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
// It also loads index records, since Postgres is the system of record.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// threadDocuments flattens each thread into one searchable text row.
// Segment markup is stripped so tags do not match as words.
const threadDocuments = `
	WITH docs AS (
		SELECT t.id, t.title, t.tags, t.is_published, t.created_at,
			u.id AS author_id, u.name AS author_name,
			COALESCE((
				SELECT string_agg(regexp_replace(seg.content, '<[^>]*>', ' ', 'g'), ' ' ORDER BY seg."order")
				FROM thread_segments seg
				WHERE seg.thread_id = t.id
			), '') AS body
		FROM threads t
		JOIN users u ON u.id = t.user_id
	)`

// Search ranks published threads with plainto_tsquery and ts_rank, using
// ts_headline for snippets.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := normalizeLimit(q.Limit)
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	tag := strings.TrimSpace(q.Tag)
	if strings.EqualFold(tag, "all") {
		tag = ""
	}

	where := `
		FROM docs d,
			to_tsvector('english', d.title || ' ' || array_to_string(d.tags, ' ') || ' ' || d.body) AS vec,
			plainto_tsquery('english', $1) AS query
		WHERE d.is_published
		  AND vec @@ query
		  AND ($2 = '' OR d.tags @> ARRAY[$2]::text[])`

	var total int
	if err := p.db.QueryRowContext(ctx, threadDocuments+`SELECT COUNT(*)`+where, q.Text, tag).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, threadDocuments+`
		SELECT d.id, d.title,
			ts_headline('english', d.body, query, 'MaxFragments=1,MaxWords=30,StartSel=<mark>,StopSel=</mark>'),
			d.tags::text, d.author_id, d.author_name`+where+`
		ORDER BY ts_rank(vec, query) DESC, d.created_at DESC
		LIMIT $3 OFFSET $4`, q.Text, tag, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, pq.Array(&r.Tags), &r.AuthorID, &r.AuthorName); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		if r.Tags == nil {
			r.Tags = []string{}
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

func scanRecord(row interface{ Scan(...any) error }) (ThreadRecord, error) {
	var (
		record    ThreadRecord
		createdAt time.Time
	)
	err := row.Scan(&record.ID, &record.Title, pq.Array(&record.Tags), &record.Body, &record.AuthorID, &record.AuthorName, &record.IsPublished, &createdAt)
	if record.Tags == nil {
		record.Tags = []string{}
	}
	record.Body = strings.Join(strings.Fields(record.Body), " ")
	record.CreatedAt = unixSeconds(createdAt)
	return record, err
}

const recordColumns = `SELECT d.id, d.title, d.tags::text, d.body, d.author_id, d.author_name, d.is_published, d.created_at FROM docs d`

// LoadThreadRecord returns the current indexable state of one thread.
// found is false when the thread no longer exists.
func (p *PgFTS) LoadThreadRecord(ctx context.Context, id string) (ThreadRecord, bool, error) {
	record, err := scanRecord(p.db.QueryRowContext(ctx, threadDocuments+recordColumns+` WHERE d.id::text = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ThreadRecord{}, false, nil
		}
		return ThreadRecord{}, false, fmt.Errorf("load thread record: %w", err)
	}
	return record, true, nil
}

// LoadAllRecords returns every published thread for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ThreadRecord, error) {
	rows, err := p.db.QueryContext(ctx, threadDocuments+recordColumns+` WHERE d.is_published ORDER BY d.created_at`)
	if err != nil {
		return nil, fmt.Errorf("load threads: %w", err)
	}
	defer rows.Close()

	records := make([]ThreadRecord, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate threads: %w", err)
	}
	return records, nil
}
