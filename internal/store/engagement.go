package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"wisdom/api/internal/util"
)

// ErrInvalidReaction is returned when a toggle would insert or update with an
// empty or unknown reaction type.
var ErrInvalidReaction = errors.New("invalid reaction type")

// SetReaction applies the toggle rules for a user's reaction on a segment:
// existing row and no type removes it, existing row and a type updates it,
// no row and a type inserts it. A concurrent insert for the same pair is
// retried once so both callers converge on a single row.
func (s *PostgresStore) SetReaction(ctx context.Context, userID, segmentID string, reactionType ReactionType) (ToggleAction, *Reaction, error) {
	action, reaction, err := s.setReaction(ctx, userID, segmentID, reactionType)
	if errors.Is(err, ErrConflict) {
		action, reaction, err = s.setReaction(ctx, userID, segmentID, reactionType)
	}
	return action, reaction, err
}

func (s *PostgresStore) setReaction(ctx context.Context, userID, segmentID string, reactionType ReactionType) (ToggleAction, *Reaction, error) {
	var (
		action ToggleAction
		result *Reaction
	)
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		var segmentExists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM thread_segments WHERE id = $1)`, segmentID).Scan(&segmentExists); err != nil {
			if IsInvalidText(err) {
				return ErrNotFound
			}
			return fmt.Errorf("check segment: %w", err)
		}
		if !segmentExists {
			return ErrNotFound
		}

		var existingID string
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM reactions
			WHERE user_id = $1 AND segment_id = $2
			FOR UPDATE
		`, userID, segmentID).Scan(&existingID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			existingID = ""
		case err != nil:
			return fmt.Errorf("lock reaction: %w", err)
		}

		switch {
		case existingID != "" && reactionType == "":
			if _, err := tx.ExecContext(ctx, `DELETE FROM reactions WHERE id = $1`, existingID); err != nil {
				return fmt.Errorf("delete reaction: %w", err)
			}
			action = ActionRemoved
			return nil
		case !reactionType.Valid():
			return ErrInvalidReaction
		case existingID != "":
			reaction, err := scanReaction(tx.QueryRowContext(ctx, `
				UPDATE reactions SET type = $2, updated_at = NOW()
				WHERE id = $1
				RETURNING id, user_id, segment_id, type, created_at, updated_at
			`, existingID, string(reactionType)))
			if err != nil {
				return fmt.Errorf("update reaction: %w", err)
			}
			action, result = ActionUpdated, &reaction
			return nil
		default:
			reaction, err := scanReaction(tx.QueryRowContext(ctx, `
				INSERT INTO reactions (id, user_id, segment_id, type)
				VALUES ($1, $2, $3, $4)
				RETURNING id, user_id, segment_id, type, created_at, updated_at
			`, util.NewUUID(), userID, segmentID, string(reactionType)))
			if err != nil {
				if isUniqueViolation(err) {
					return ErrConflict
				}
				if isForeignKeyViolation(err) {
					return ErrNotFound
				}
				return fmt.Errorf("insert reaction: %w", err)
			}
			action, result = ActionAdded, &reaction
			return nil
		}
	})
	if err != nil {
		return "", nil, err
	}
	return action, result, nil
}

func scanReaction(row interface{ Scan(...any) error }) (Reaction, error) {
	var reaction Reaction
	err := row.Scan(&reaction.ID, &reaction.UserID, &reaction.SegmentID, &reaction.Type, &reaction.CreatedAt, &reaction.UpdatedAt)
	return reaction, err
}

// ToggleBookmark removes the user's bookmark on threadID if present, otherwise adds it.
// Two racing adds both observe "added" and leave one row behind.
func (s *PostgresStore) ToggleBookmark(ctx context.Context, userID, threadID string) (ToggleAction, *Bookmark, error) {
	var threadExists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM threads WHERE id = $1)`, threadID).Scan(&threadExists); err != nil {
		if IsInvalidText(err) {
			return "", nil, ErrNotFound
		}
		return "", nil, fmt.Errorf("check thread: %w", err)
	}
	if !threadExists {
		return "", nil, ErrNotFound
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM bookmarks WHERE user_id = $1 AND thread_id = $2`, userID, threadID)
	if err != nil {
		return "", nil, fmt.Errorf("delete bookmark: %w", err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		return ActionRemoved, nil, nil
	}

	bookmark, err := scanBookmark(s.db.QueryRowContext(ctx, `
		INSERT INTO bookmarks (id, user_id, thread_id)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, thread_id, created_at
	`, util.NewUUID(), userID, threadID))
	if err != nil {
		switch {
		case isUniqueViolation(err):
			existing, lookupErr := s.getBookmark(ctx, userID, threadID)
			if lookupErr != nil {
				return "", nil, lookupErr
			}
			return ActionAdded, &existing, nil
		case isForeignKeyViolation(err):
			return "", nil, ErrNotFound
		default:
			return "", nil, fmt.Errorf("insert bookmark: %w", err)
		}
	}
	return ActionAdded, &bookmark, nil
}

func (s *PostgresStore) getBookmark(ctx context.Context, userID, threadID string) (Bookmark, error) {
	bookmark, err := scanBookmark(s.db.QueryRowContext(ctx, `
		SELECT id, user_id, thread_id, created_at
		FROM bookmarks
		WHERE user_id = $1 AND thread_id = $2
	`, userID, threadID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Bookmark{}, ErrNotFound
		}
		return Bookmark{}, fmt.Errorf("get bookmark: %w", err)
	}
	return bookmark, nil
}

func scanBookmark(row interface{ Scan(...any) error }) (Bookmark, error) {
	var bookmark Bookmark
	err := row.Scan(&bookmark.ID, &bookmark.UserID, &bookmark.ThreadID, &bookmark.CreatedAt)
	return bookmark, err
}

// ListBookmarks returns the user's bookmarks, newest first, with the thread card.
// Drafts bookmarked before being unpublished are only shown to their author.
func (s *PostgresStore) ListBookmarks(ctx context.Context, userID string) ([]BookmarkEntry, error) {
	rows, err := s.db.QueryContext(ctx, summarySelect("bm.id, bm.created_at")+`
		JOIN bookmarks bm ON bm.thread_id = t.id
		WHERE bm.user_id = $1
		  AND (t.is_published OR t.user_id = $1)
		ORDER BY bm.created_at DESC, bm.id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}
	defer rows.Close()

	entries := []BookmarkEntry{}
	for rows.Next() {
		var entry BookmarkEntry
		summary, err := scanThreadSummary(rows, &entry.ID, &entry.CreatedAt)
		if err != nil {
			return nil, err
		}
		entry.UserID = userID
		entry.ThreadID = summary.ID
		entry.Thread = summary
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
