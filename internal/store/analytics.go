package store

import (
	"context"
	"fmt"
	"time"
)

const (
	analyticsTopN   = 5
	analyticsMonths = 6
)

// AuthorAnalytics aggregates engagement for every thread authored by userID.
// Activity covers the month containing now plus the five before it, oldest first.
func (s *PostgresStore) AuthorAnalytics(ctx context.Context, userID string, now time.Time) (Analytics, error) {
	var out Analytics
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*)::int FROM threads WHERE user_id = $1`, userID).Scan(&out.TotalThreads); err != nil {
		if IsInvalidText(err) {
			return Analytics{}, ErrNotFound
		}
		return Analytics{}, fmt.Errorf("count threads: %w", err)
	}

	var err error
	if out.TopReacted, err = s.topThreads(ctx, userID, `
		SELECT seg.thread_id AS thread_id, COUNT(*)::int AS cnt
		FROM reactions r
		JOIN thread_segments seg ON seg.id = r.segment_id
		GROUP BY seg.thread_id
	`); err != nil {
		return Analytics{}, err
	}
	if out.TopBookmarked, err = s.topThreads(ctx, userID, `
		SELECT thread_id, COUNT(*)::int AS cnt FROM bookmarks GROUP BY thread_id
	`); err != nil {
		return Analytics{}, err
	}
	if out.TopForked, err = s.topThreads(ctx, userID, `
		SELECT original_thread_id AS thread_id, COUNT(*)::int AS cnt
		FROM threads
		WHERE original_thread_id IS NOT NULL
		GROUP BY original_thread_id
	`); err != nil {
		return Analytics{}, err
	}

	windowStart := MonthWindow(now, analyticsMonths)[0]
	rows, err := s.db.QueryContext(ctx, `
		SELECT EXTRACT(YEAR FROM created_at AT TIME ZONE 'UTC')::int,
			EXTRACT(MONTH FROM created_at AT TIME ZONE 'UTC')::int,
			COUNT(*)::int
		FROM threads
		WHERE user_id = $1 AND created_at >= $2
		GROUP BY 1, 2
	`, userID, time.Date(windowStart.Year, windowStart.Month, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		return Analytics{}, fmt.Errorf("thread activity: %w", err)
	}
	defer rows.Close()

	var counts []MonthlyCount
	for rows.Next() {
		var (
			count MonthlyCount
			month int
		)
		if err := rows.Scan(&count.Year, &month, &count.Count); err != nil {
			return Analytics{}, err
		}
		count.Month = time.Month(month)
		counts = append(counts, count)
	}
	if err := rows.Err(); err != nil {
		return Analytics{}, err
	}
	out.Activity = FillMonths(now, analyticsMonths, counts)
	return out, nil
}

// topThreads ranks the author's threads by the per-thread counts produced by
// countQuery, which must yield (thread_id, cnt). Zero counts are omitted.
func (s *PostgresStore) topThreads(ctx context.Context, userID, countQuery string) ([]ThreadCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.title, c.cnt
		FROM threads t
		JOIN (`+countQuery+`) c ON c.thread_id = t.id
		WHERE t.user_id = $1 AND c.cnt > 0
		ORDER BY c.cnt DESC, t.created_at DESC, t.id DESC
		LIMIT $2
	`, userID, analyticsTopN)
	if err != nil {
		return nil, fmt.Errorf("top threads: %w", err)
	}
	defer rows.Close()

	out := []ThreadCount{}
	for rows.Next() {
		var count ThreadCount
		if err := rows.Scan(&count.ThreadID, &count.Title, &count.Count); err != nil {
			return nil, err
		}
		out = append(out, count)
	}
	return out, rows.Err()
}

// MonthWindow lists the n calendar months ending with the month of now (UTC), oldest first.
func MonthWindow(now time.Time, n int) []MonthlyCount {
	now = now.UTC()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	window := make([]MonthlyCount, 0, n)
	for i := n - 1; i >= 0; i-- {
		month := first.AddDate(0, -i, 0)
		window = append(window, MonthlyCount{Year: month.Year(), Month: month.Month()})
	}
	return window
}

// FillMonths places counts into the window, leaving missing months at zero.
func FillMonths(now time.Time, n int, counts []MonthlyCount) []MonthlyCount {
	window := MonthWindow(now, n)
	for _, count := range counts {
		for i := range window {
			if window[i].Year == count.Year && window[i].Month == count.Month {
				window[i].Count += count.Count
			}
		}
	}
	return window
}
