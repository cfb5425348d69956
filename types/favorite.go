package types

import (
	"time"

	"github.com/google/uuid"
)

// Favorite represents a recipe a user has saved from the external catalog.
// The recipe itself is not owned by this system; only the reference plus the
// user's own annotations (note, rating) are stored.
type Favorite struct {
	// ID is the unique identifier of the favorite record.
	ID uuid.UUID `json:"id" db:"id"`

	// UserID identifies the owning user. Every read and mutation is
	// scoped by this field; a favorite is never visible outside its owner.
	UserID uuid.UUID `json:"user_id" db:"user_id"`

	// RecipeID is the opaque identifier of the recipe in the external
	// catalog. Together with UserID it forms the uniqueness constraint:
	// a user can favorite a given recipe at most once.
	RecipeID string `json:"recipe_id" db:"recipe_id"`

	// Name is the recipe name as captured at save time.
	Name string `json:"name" db:"name"`

	// Image is the URL of the recipe image in the external catalog.
	Image string `json:"image" db:"image"`

	// Cuisine is an optional descriptive tag (e.g., "Italian").
	Cuisine string `json:"cuisine" db:"cuisine"`

	// Note is the user's free-text annotation. Defaults to empty.
	Note string `json:"note" db:"note"`

	// Rating is the user's star rating in [0, 5]. Defaults to 0.
	Rating int `json:"rating" db:"rating"`

	// ImageKey is the object-storage key of the mirrored image copy,
	// when image mirroring is enabled. Internal, never serialized.
	ImageKey string `json:"-" db:"image_key"`

	// CreatedAt is the timestamp when the favorite was saved.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
