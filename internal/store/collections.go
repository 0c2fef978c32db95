package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"wisdom/api/internal/util"
)

const collectionColumns = `c.id, c.user_id, c.name, c.description, c.is_private, c.created_at, c.updated_at`

func scanCollection(row interface{ Scan(...any) error }) (Collection, error) {
	var collection Collection
	err := row.Scan(
		&collection.ID,
		&collection.UserID,
		&collection.Name,
		&collection.Description,
		&collection.IsPrivate,
		&collection.CreatedAt,
		&collection.UpdatedAt,
	)
	return collection, err
}

func (s *PostgresStore) CreateCollection(ctx context.Context, collection Collection) (Collection, error) {
	created, err := scanCollection(s.db.QueryRowContext(ctx, `
		INSERT INTO collections AS c (id, user_id, name, description, is_private)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+collectionColumns+`
	`, collection.ID, collection.UserID, collection.Name, collection.Description, collection.IsPrivate))
	if err != nil {
		if isForeignKeyViolation(err) {
			return Collection{}, ErrInvalidReference
		}
		return Collection{}, fmt.Errorf("insert collection: %w", err)
	}
	return created, nil
}

// ListCollections returns the user's collections newest first, each with its items.
func (s *PostgresStore) ListCollections(ctx context.Context, userID string) ([]CollectionWithItems, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+collectionColumns+`
		FROM collections c
		WHERE c.user_id = $1
		ORDER BY c.created_at DESC, c.id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	collections := []CollectionWithItems{}
	index := map[string]int{}
	for rows.Next() {
		collection, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		index[collection.ID] = len(collections)
		collections = append(collections, CollectionWithItems{Collection: collection, Items: []CollectionItem{}})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(collections) == 0 {
		return collections, nil
	}

	items, err := s.collectionItems(ctx, `c.user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if i, ok := index[item.CollectionID]; ok {
			collections[i].Items = append(collections[i].Items, item)
		}
	}
	return collections, nil
}

// GetCollection loads a collection and its items. Privacy is checked by the caller.
func (s *PostgresStore) GetCollection(ctx context.Context, id string) (CollectionWithItems, error) {
	collection, err := scanCollection(s.db.QueryRowContext(ctx, `
		SELECT `+collectionColumns+`
		FROM collections c
		WHERE c.id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || IsInvalidText(err) {
			return CollectionWithItems{}, ErrNotFound
		}
		return CollectionWithItems{}, fmt.Errorf("get collection: %w", err)
	}
	items, err := s.collectionItems(ctx, `c.id = $1`, id)
	if err != nil {
		return CollectionWithItems{}, err
	}
	return CollectionWithItems{Collection: collection, Items: items}, nil
}

func (s *PostgresStore) collectionItems(ctx context.Context, where string, arg any) ([]CollectionItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ci.id, ci.collection_id, ci.thread_id, t.title, ci.added_at
		FROM collection_items ci
		JOIN collections c ON c.id = ci.collection_id
		JOIN threads t ON t.id = ci.thread_id
		WHERE `+where+`
		ORDER BY ci.added_at DESC, ci.id DESC
	`, arg)
	if err != nil {
		return nil, fmt.Errorf("list collection items: %w", err)
	}
	defer rows.Close()

	items := []CollectionItem{}
	for rows.Next() {
		var item CollectionItem
		if err := rows.Scan(&item.ID, &item.CollectionID, &item.ThreadID, &item.ThreadTitle, &item.AddedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// DeleteCollection removes a collection owned by userID; its items cascade.
func (s *PostgresStore) DeleteCollection(ctx context.Context, userID, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM collections WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		if IsInvalidText(err) {
			return ErrNotFound
		}
		return fmt.Errorf("delete collection: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddCollectionItem files threadID into a collection owned by userID.
// A second add of the same thread yields ErrConflict.
func (s *PostgresStore) AddCollectionItem(ctx context.Context, userID, collectionID, threadID string) (CollectionItem, error) {
	var item CollectionItem
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		var owned bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS(SELECT 1 FROM collections WHERE id = $1 AND user_id = $2)
		`, collectionID, userID).Scan(&owned); err != nil {
			if IsInvalidText(err) {
				return ErrNotFound
			}
			return fmt.Errorf("check collection: %w", err)
		}
		if !owned {
			return ErrNotFound
		}

		err := tx.QueryRowContext(ctx, `
			INSERT INTO collection_items (id, collection_id, thread_id)
			VALUES ($1, $2, $3)
			RETURNING id, collection_id, thread_id, (SELECT title FROM threads WHERE id = $3), added_at
		`, util.NewUUID(), collectionID, threadID).Scan(&item.ID, &item.CollectionID, &item.ThreadID, &item.ThreadTitle, &item.AddedAt)
		if err != nil {
			switch {
			case isUniqueViolation(err):
				return ErrConflict
			case isForeignKeyViolation(err), IsInvalidText(err):
				return ErrNotFound
			default:
				return fmt.Errorf("insert collection item: %w", err)
			}
		}
		_, err = tx.ExecContext(ctx, `UPDATE collections SET updated_at = NOW() WHERE id = $1`, collectionID)
		return err
	})
	if err != nil {
		return CollectionItem{}, err
	}
	return item, nil
}

// RemoveCollectionItem deletes by (collection, thread) pair, scoped to the owner.
func (s *PostgresStore) RemoveCollectionItem(ctx context.Context, userID, collectionID, threadID string) error {
	return s.removeCollectionItems(ctx, `
		DELETE FROM collection_items ci
		USING collections c
		WHERE c.id = ci.collection_id
		  AND c.user_id = $1
		  AND ci.collection_id = $2
		  AND ci.thread_id = $3
	`, userID, collectionID, threadID)
}

// RemoveCollectionItemByID deletes a single item, scoped to the owner.
func (s *PostgresStore) RemoveCollectionItemByID(ctx context.Context, userID, itemID string) error {
	return s.removeCollectionItems(ctx, `
		DELETE FROM collection_items ci
		USING collections c
		WHERE c.id = ci.collection_id
		  AND c.user_id = $1
		  AND ci.id = $2
	`, userID, itemID)
}

func (s *PostgresStore) removeCollectionItems(ctx context.Context, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if IsInvalidText(err) {
			return ErrNotFound
		}
		return fmt.Errorf("remove collection item: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
