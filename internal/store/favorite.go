package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/mealdex/apiserver/types"
)

// FavoriteRepository handles persistence for favorites. Every operation
// takes the owner's id as a mandatory filter; a bare favorite id is never
// trusted on its own.
type FavoriteRepository struct {
	db *sql.DB
}

func NewFavoriteRepository(db *sql.DB) *FavoriteRepository {
	return &FavoriteRepository{db: db}
}

// Create inserts a new favorite. The unique index on (user_id, recipe_id)
// makes the duplicate check atomic under concurrent inserts; a violation
// surfaces as ErrConflict.
func (r *FavoriteRepository) Create(ctx context.Context, favorite types.Favorite) (types.Favorite, error) {
	favorite.ID = uuid.New()
	favorite.CreatedAt = time.Now()

	const query = `
		INSERT INTO favorites (id, user_id, recipe_id, name, image, cuisine, note, rating, image_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		favorite.ID,
		favorite.UserID,
		favorite.RecipeID,
		favorite.Name,
		favorite.Image,
		favorite.Cuisine,
		favorite.Note,
		favorite.Rating,
		favorite.ImageKey,
		favorite.CreatedAt,
	); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return types.Favorite{}, ErrConflict
		}
		return types.Favorite{}, err
	}
	return favorite, nil
}

func (r *FavoriteRepository) GetByOwner(ctx context.Context, ownerID, id uuid.UUID) (types.Favorite, error) {
	const query = `
		SELECT id, user_id, recipe_id, name, image, cuisine, note, rating, image_key, created_at
		FROM favorites
		WHERE id = $1 AND user_id = $2`
	var favorite types.Favorite
	err := r.db.QueryRowContext(ctx, query, id, ownerID).Scan(
		&favorite.ID,
		&favorite.UserID,
		&favorite.RecipeID,
		&favorite.Name,
		&favorite.Image,
		&favorite.Cuisine,
		&favorite.Note,
		&favorite.Rating,
		&favorite.ImageKey,
		&favorite.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Favorite{}, ErrNotFound
		}
		return types.Favorite{}, err
	}
	return favorite, nil
}

// ListByOwner returns the owner's favorites, most recently created first.
func (r *FavoriteRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]types.Favorite, error) {
	const query = `
		SELECT id, user_id, recipe_id, name, image, cuisine, note, rating, image_key, created_at
		FROM favorites
		WHERE user_id = $1
		ORDER BY created_at DESC, id`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	favorites := make([]types.Favorite, 0)
	for rows.Next() {
		var favorite types.Favorite
		if err := rows.Scan(
			&favorite.ID,
			&favorite.UserID,
			&favorite.RecipeID,
			&favorite.Name,
			&favorite.Image,
			&favorite.Cuisine,
			&favorite.Note,
			&favorite.Rating,
			&favorite.ImageKey,
			&favorite.CreatedAt,
		); err != nil {
			return nil, err
		}
		favorites = append(favorites, favorite)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return favorites, nil
}

// UpdateFields applies a partial update: nil note/rating leave the stored
// value untouched. Returns the updated row, or ErrNotFound when no row
// matches the (id, owner) pair.
func (r *FavoriteRepository) UpdateFields(ctx context.Context, ownerID, id uuid.UUID, note *string, rating *int) (types.Favorite, error) {
	const query = `
		UPDATE favorites
		SET note = COALESCE($3, note),
			rating = COALESCE($4, rating)
		WHERE id = $1 AND user_id = $2
		RETURNING id, user_id, recipe_id, name, image, cuisine, note, rating, image_key, created_at`
	var favorite types.Favorite
	err := r.db.QueryRowContext(ctx, query, id, ownerID, note, rating).Scan(
		&favorite.ID,
		&favorite.UserID,
		&favorite.RecipeID,
		&favorite.Name,
		&favorite.Image,
		&favorite.Cuisine,
		&favorite.Note,
		&favorite.Rating,
		&favorite.ImageKey,
		&favorite.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Favorite{}, ErrNotFound
		}
		return types.Favorite{}, err
	}
	return favorite, nil
}

func (r *FavoriteRepository) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	const query = `DELETE FROM favorites WHERE id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, ownerID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetImageKey records the object-storage key of a mirrored image copy.
func (r *FavoriteRepository) SetImageKey(ctx context.Context, ownerID, id uuid.UUID, key string) error {
	const query = `UPDATE favorites SET image_key = $3 WHERE id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, ownerID, key)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
