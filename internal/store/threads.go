package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"wisdom/api/internal/util"
)

// ErrNoSegments is returned when publishing a thread that has nothing to show.
var ErrNoSegments = errors.New("thread has no segments")

const threadColumns = `t.id, t.user_id, t.title, t.tags::text, t.is_published, COALESCE(t.original_thread_id::text, ''), t.created_at, t.updated_at`

func scanThread(row interface{ Scan(...any) error }) (Thread, error) {
	var thread Thread
	err := row.Scan(
		&thread.ID,
		&thread.UserID,
		&thread.Title,
		pq.Array(&thread.Tags),
		&thread.IsPublished,
		&thread.OriginalThreadID,
		&thread.CreatedAt,
		&thread.UpdatedAt,
	)
	if thread.Tags == nil {
		thread.Tags = []string{}
	}
	return thread, err
}

// summarySelect joins everything a thread card needs. Callers append WHERE and
// ORDER BY; extra columns land after the preview and are scanned via scanThreadSummary.
func summarySelect(extra string) string {
	if extra != "" {
		extra = ", " + extra
	}
	return `
	SELECT ` + threadColumns + `,
		u.id, u.name, COALESCE(u.profile_image, ''),
		COALESCE(b.cnt, 0), COALESCE(f.cnt, 0),
		p.id, p.content, p."order", p.created_at` + extra + `
	FROM threads t
	JOIN users u ON u.id = t.user_id
	LEFT JOIN (
		SELECT thread_id, COUNT(*)::int AS cnt FROM bookmarks GROUP BY thread_id
	) b ON b.thread_id = t.id
	LEFT JOIN (
		SELECT original_thread_id, COUNT(*)::int AS cnt FROM threads
		WHERE original_thread_id IS NOT NULL
		GROUP BY original_thread_id
	) f ON f.original_thread_id = t.id
	LEFT JOIN thread_segments p ON p.thread_id = t.id AND p."order" = 0
`
}

func scanThreadSummary(row interface{ Scan(...any) error }, extra ...any) (ThreadSummary, error) {
	var (
		summary       ThreadSummary
		previewID     sql.NullString
		previewBody   sql.NullString
		previewOrder  sql.NullInt64
		previewCreate sql.NullTime
	)
	dest := []any{
		&summary.ID,
		&summary.UserID,
		&summary.Title,
		pq.Array(&summary.Tags),
		&summary.IsPublished,
		&summary.OriginalThreadID,
		&summary.CreatedAt,
		&summary.UpdatedAt,
		&summary.Author.ID,
		&summary.Author.Name,
		&summary.Author.ProfileImage,
		&summary.BookmarkCount,
		&summary.ForkCount,
		&previewID,
		&previewBody,
		&previewOrder,
		&previewCreate,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return ThreadSummary{}, err
	}
	if summary.Tags == nil {
		summary.Tags = []string{}
	}
	if previewID.Valid {
		summary.Preview = &Segment{
			ID:        previewID.String,
			ThreadID:  summary.ID,
			Content:   previewBody.String,
			Order:     int(previewOrder.Int64),
			CreatedAt: previewCreate.Time,
		}
	}
	return summary, nil
}

func collectSummaries(rows *sql.Rows) ([]ThreadSummary, error) {
	defer rows.Close()
	out := []ThreadSummary{}
	for rows.Next() {
		summary, err := scanThreadSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

func sortClause(sort ThreadSort) (string, error) {
	switch sort {
	case "", SortNewest:
		return `t.created_at DESC, t.id DESC`, nil
	case SortPopular:
		return `COALESCE(b.cnt, 0) DESC, t.created_at DESC, t.id DESC`, nil
	case SortForked:
		return `COALESCE(f.cnt, 0) DESC, t.created_at DESC, t.id DESC`, nil
	default:
		return "", fmt.Errorf("unknown sort %q", sort)
	}
}

// ListThreads returns published threads only.
func (s *PostgresStore) ListThreads(ctx context.Context, filter ThreadFilter) ([]ThreadSummary, error) {
	order, err := sortClause(filter.Sort)
	if err != nil {
		return nil, err
	}
	// A NULL limit returns every row.
	var limit any
	if filter.Limit > 0 {
		limit = filter.Limit
	}

	rows, err := s.db.QueryContext(ctx, summarySelect("")+`
		WHERE t.is_published
		  AND ($1 = '' OR t.tags @> ARRAY[$1]::text[])
		ORDER BY `+order+`
		LIMIT $2::bigint OFFSET $3
	`, strings.TrimSpace(filter.Tag), limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	return collectSummaries(rows)
}

// ListForks returns the published forks of threadID, newest first.
func (s *PostgresStore) ListForks(ctx context.Context, threadID string) ([]ThreadSummary, error) {
	rows, err := s.db.QueryContext(ctx, summarySelect("")+`
		WHERE t.original_thread_id = $1 AND t.is_published
		ORDER BY t.created_at DESC, t.id DESC
	`, threadID)
	if err != nil {
		if IsInvalidText(err) {
			return []ThreadSummary{}, nil
		}
		return nil, fmt.Errorf("list forks: %w", err)
	}
	return collectSummaries(rows)
}

// ListRelated returns other published threads sharing at least one tag.
func (s *PostgresStore) ListRelated(ctx context.Context, threadID string, tags []string, limit int) ([]ThreadSummary, error) {
	if len(tags) == 0 {
		return []ThreadSummary{}, nil
	}
	if limit <= 0 {
		limit = 3
	}
	rows, err := s.db.QueryContext(ctx, summarySelect("")+`
		WHERE t.is_published
		  AND t.id <> $1
		  AND t.tags && $2::text[]
		ORDER BY t.created_at DESC, t.id DESC
		LIMIT $3
	`, threadID, tags, limit)
	if err != nil {
		return nil, fmt.Errorf("list related threads: %w", err)
	}
	return collectSummaries(rows)
}

// ListThreadsByUser returns every thread the user authored, drafts included.
func (s *PostgresStore) ListThreadsByUser(ctx context.Context, userID string) ([]ThreadSummary, error) {
	rows, err := s.db.QueryContext(ctx, summarySelect("")+`
		WHERE t.user_id = $1
		ORDER BY t.created_at DESC, t.id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user threads: %w", err)
	}
	return collectSummaries(rows)
}

func (s *PostgresStore) GetThread(ctx context.Context, id string) (Thread, error) {
	thread, err := scanThread(s.db.QueryRowContext(ctx, `
		SELECT `+threadColumns+`
		FROM threads t
		WHERE t.id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || IsInvalidText(err) {
			return Thread{}, ErrNotFound
		}
		return Thread{}, fmt.Errorf("get thread: %w", err)
	}
	return thread, nil
}

// GetThreadDetail loads a thread with author, ordered segments, their reactions
// and the thread it was forked from. Visibility is the caller's concern.
func (s *PostgresStore) GetThreadDetail(ctx context.Context, id string) (ThreadDetail, error) {
	var (
		detail        ThreadDetail
		lineageID     sql.NullString
		lineageTitle  sql.NullString
		lineageAuthor sql.NullString
		lineageName   sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT `+threadColumns+`,
			u.id, u.name, COALESCE(u.profile_image, ''),
			o.id, o.title, ou.id, ou.name
		FROM threads t
		JOIN users u ON u.id = t.user_id
		LEFT JOIN threads o ON o.id = t.original_thread_id
		LEFT JOIN users ou ON ou.id = o.user_id
		WHERE t.id = $1
	`, id).Scan(
		&detail.ID,
		&detail.UserID,
		&detail.Title,
		pq.Array(&detail.Tags),
		&detail.IsPublished,
		&detail.OriginalThreadID,
		&detail.CreatedAt,
		&detail.UpdatedAt,
		&detail.Author.ID,
		&detail.Author.Name,
		&detail.Author.ProfileImage,
		&lineageID,
		&lineageTitle,
		&lineageAuthor,
		&lineageName,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || IsInvalidText(err) {
			return ThreadDetail{}, ErrNotFound
		}
		return ThreadDetail{}, fmt.Errorf("get thread detail: %w", err)
	}
	if detail.Tags == nil {
		detail.Tags = []string{}
	}
	if lineageID.Valid {
		detail.Lineage = &Lineage{
			ID:         lineageID.String,
			Title:      lineageTitle.String,
			AuthorID:   lineageAuthor.String,
			AuthorName: lineageName.String,
		}
	}

	segments, err := s.listSegments(ctx, id)
	if err != nil {
		return ThreadDetail{}, err
	}
	reactions, err := s.reactionsForThread(ctx, id)
	if err != nil {
		return ThreadDetail{}, err
	}
	detail.Segments = make([]SegmentDetail, 0, len(segments))
	for _, segment := range segments {
		item := SegmentDetail{Segment: segment, Reactions: reactions[segment.ID]}
		if item.Reactions == nil {
			item.Reactions = []Reaction{}
		}
		detail.Segments = append(detail.Segments, item)
	}
	return detail, nil
}

func (s *PostgresStore) listSegments(ctx context.Context, threadID string) ([]Segment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thread_id, content, "order", created_at
		FROM thread_segments
		WHERE thread_id = $1
		ORDER BY "order" ASC
	`, threadID)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()

	segments := []Segment{}
	for rows.Next() {
		var segment Segment
		if err := rows.Scan(&segment.ID, &segment.ThreadID, &segment.Content, &segment.Order, &segment.CreatedAt); err != nil {
			return nil, err
		}
		segments = append(segments, segment)
	}
	return segments, rows.Err()
}

func (s *PostgresStore) reactionsForThread(ctx context.Context, threadID string) (map[string][]Reaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.user_id, r.segment_id, r.type, r.created_at, r.updated_at
		FROM reactions r
		JOIN thread_segments seg ON seg.id = r.segment_id
		WHERE seg.thread_id = $1
		ORDER BY r.created_at ASC, r.id ASC
	`, threadID)
	if err != nil {
		return nil, fmt.Errorf("list reactions: %w", err)
	}
	defer rows.Close()

	out := map[string][]Reaction{}
	for rows.Next() {
		var reaction Reaction
		if err := rows.Scan(&reaction.ID, &reaction.UserID, &reaction.SegmentID, &reaction.Type, &reaction.CreatedAt, &reaction.UpdatedAt); err != nil {
			return nil, err
		}
		out[reaction.SegmentID] = append(out[reaction.SegmentID], reaction)
	}
	return out, rows.Err()
}

// CreateThread inserts the thread and all its segments atomically.
func (s *PostgresStore) CreateThread(ctx context.Context, input NewThread) (Thread, error) {
	var created Thread
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		tags := input.Tags
		if tags == nil {
			tags = []string{}
		}
		thread, err := scanThread(tx.QueryRowContext(ctx, `
			INSERT INTO threads AS t (id, user_id, title, tags, is_published)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+threadColumns+`
		`, input.ID, input.UserID, input.Title, tags, input.IsPublished))
		if err != nil {
			if isForeignKeyViolation(err) {
				return ErrInvalidReference
			}
			return fmt.Errorf("insert thread: %w", err)
		}

		for _, segment := range input.Segments {
			if err := insertSegment(ctx, tx, thread.ID, segment.Content, segment.Order); err != nil {
				return err
			}
		}
		if err := enqueueThreadSync(ctx, tx, thread.ID); err != nil {
			return err
		}
		created = thread
		return nil
	})
	if err != nil {
		return Thread{}, err
	}
	return created, nil
}

func insertSegment(ctx context.Context, tx *sql.Tx, threadID, content string, order int) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO thread_segments (id, thread_id, content, "order")
		VALUES ($1, $2, $3, $4)
	`, util.NewUUID(), threadID, content, order)
	if err != nil {
		if isUniqueViolation(err) && constraintName(err) == "thread_segments_thread_order_key" {
			return ErrConflict
		}
		return fmt.Errorf("insert segment: %w", err)
	}
	return nil
}

// ForkThread copies a published thread into a new draft owned by userID.
// The source row is held FOR SHARE so it cannot be unpublished mid-copy.
func (s *PostgresStore) ForkThread(ctx context.Context, newID, userID, sourceID string) (Thread, error) {
	var forked Thread
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		source, err := scanThread(tx.QueryRowContext(ctx, `
			SELECT `+threadColumns+`
			FROM threads t
			WHERE t.id = $1 AND t.is_published
			FOR SHARE
		`, sourceID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) || IsInvalidText(err) {
				return ErrNotFound
			}
			return fmt.Errorf("lock source thread: %w", err)
		}

		thread, err := scanThread(tx.QueryRowContext(ctx, `
			INSERT INTO threads AS t (id, user_id, title, tags, is_published, original_thread_id)
			VALUES ($1, $2, $3, $4, FALSE, $5)
			RETURNING `+threadColumns+`
		`, newID, userID, source.Title+" (Remix)", source.Tags, source.ID))
		if err != nil {
			if isForeignKeyViolation(err) {
				return ErrInvalidReference
			}
			return fmt.Errorf("insert fork: %w", err)
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT content, "order" FROM thread_segments
			WHERE thread_id = $1
			ORDER BY "order" ASC
		`, source.ID)
		if err != nil {
			return fmt.Errorf("read source segments: %w", err)
		}
		var copies []SegmentInput
		for rows.Next() {
			var segment SegmentInput
			if err := rows.Scan(&segment.Content, &segment.Order); err != nil {
				rows.Close()
				return err
			}
			copies = append(copies, segment)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		for _, segment := range copies {
			if err := insertSegment(ctx, tx, thread.ID, segment.Content, segment.Order); err != nil {
				return err
			}
		}
		forked = thread
		return nil
	})
	if err != nil {
		return Thread{}, err
	}
	return forked, nil
}

// SetThreadPublished flips visibility. Publishing requires at least one segment.
func (s *PostgresStore) SetThreadPublished(ctx context.Context, id string, published bool) (Thread, error) {
	var updated Thread
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		var segments int
		err := tx.QueryRowContext(ctx, `
			SELECT (SELECT COUNT(*) FROM thread_segments WHERE thread_id = t.id)
			FROM threads t
			WHERE t.id = $1
			FOR UPDATE
		`, id).Scan(&segments)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) || IsInvalidText(err) {
				return ErrNotFound
			}
			return fmt.Errorf("lock thread: %w", err)
		}
		if published && segments == 0 {
			return ErrNoSegments
		}

		thread, err := scanThread(tx.QueryRowContext(ctx, `
			UPDATE threads AS t
			SET is_published = $2, updated_at = NOW()
			WHERE t.id = $1
			RETURNING `+threadColumns+`
		`, id, published))
		if err != nil {
			return fmt.Errorf("update thread: %w", err)
		}
		if err := enqueueThreadSync(ctx, tx, id); err != nil {
			return err
		}
		updated = thread
		return nil
	})
	if err != nil {
		return Thread{}, err
	}
	return updated, nil
}

// DeleteThread removes a thread; segments, reactions and bookmarks cascade.
func (s *PostgresStore) DeleteThread(ctx context.Context, id string) error {
	return inTx(ctx, s.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM threads WHERE id = $1`, id)
		if err != nil {
			if IsInvalidText(err) {
				return ErrNotFound
			}
			return fmt.Errorf("delete thread: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return enqueueThreadSync(ctx, tx, id)
	})
}
