package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/mealdex/apiserver/internal/mq"
	"github.com/mealdex/apiserver/internal/storage"
	"github.com/mealdex/apiserver/types"
)

// EventChannel is the broker channel favorite events are published to.
const EventChannel = "favorites.events"

// Event types published on favorite mutations.
const (
	EventFavoriteCreated = "favorite.created"
	EventFavoriteDeleted = "favorite.deleted"
)

const (
	mirrorKeyPrefix = "favorites/"
	mirrorTimeout   = 30 * time.Second
)

// ErrRatingOutOfRange is returned when a supplied rating is outside [0, 5].
// Out-of-range ratings are rejected, never clamped.
var ErrRatingOutOfRange = errors.New("rating must be between 0 and 5")

// ErrNoMirroredImage is returned when a favorite has no mirrored image copy.
var ErrNoMirroredImage = errors.New("no mirrored image")

// FavoriteRepository defines persistence operations for favorites.
type FavoriteRepository interface {
	Create(ctx context.Context, favorite types.Favorite) (types.Favorite, error)
	GetByOwner(ctx context.Context, ownerID, id uuid.UUID) (types.Favorite, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]types.Favorite, error)
	UpdateFields(ctx context.Context, ownerID, id uuid.UUID, note *string, rating *int) (types.Favorite, error)
	Delete(ctx context.Context, ownerID, id uuid.UUID) error
	SetImageKey(ctx context.Context, ownerID, id uuid.UUID, key string) error
}

// CreateFavoriteInput carries the caller-supplied fields of a new favorite.
// Note and rating always start at their defaults ("" and 0).
type CreateFavoriteInput struct {
	RecipeID string
	Name     string
	Image    string
	Cuisine  string
}

// FavoriteEvent is the JSON payload published on favorite mutations.
type FavoriteEvent struct {
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	FavoriteID string    `json:"favorite_id"`
	RecipeID   string    `json:"recipe_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// FavoriteService encapsulates favorite use-cases: validation, defaults,
// event publishing, and best-effort image mirroring. All operations are
// scoped to the owning user.
type FavoriteService struct {
	repo       FavoriteRepository
	events     *mq.MQ
	mirror     *storage.Storage
	log        *slog.Logger
	httpClient *http.Client
}

// NewFavoriteService constructs a FavoriteService. mirror may be nil, in
// which case image mirroring is disabled.
func NewFavoriteService(repo FavoriteRepository, events *mq.MQ, mirror *storage.Storage, log *slog.Logger) *FavoriteService {
	return &FavoriteService{
		repo:       repo,
		events:     events,
		mirror:     mirror,
		log:        log,
		httpClient: &http.Client{Timeout: mirrorTimeout},
	}
}

// List returns the owner's favorites, most recently created first.
func (s *FavoriteService) List(ctx context.Context, ownerID uuid.UUID) ([]types.Favorite, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

// Get returns a single favorite owned by ownerID.
func (s *FavoriteService) Get(ctx context.Context, ownerID, id uuid.UUID) (types.Favorite, error) {
	return s.repo.GetByOwner(ctx, ownerID, id)
}

// Create saves a new favorite for ownerID. A duplicate (owner, recipe) pair
// surfaces as store.ErrConflict from the repository's unique index.
func (s *FavoriteService) Create(ctx context.Context, ownerID uuid.UUID, input CreateFavoriteInput) (types.Favorite, error) {
	favorite := types.Favorite{
		UserID:   ownerID,
		RecipeID: input.RecipeID,
		Name:     input.Name,
		Image:    input.Image,
		Cuisine:  input.Cuisine,
		Note:     "",
		Rating:   0,
	}

	created, err := s.repo.Create(ctx, favorite)
	if err != nil {
		return types.Favorite{}, err
	}

	s.publishEvent(ctx, EventFavoriteCreated, created)

	if s.mirror != nil && created.Image != "" {
		go s.mirrorImage(created)
	}

	return created, nil
}

// Update applies a partial update. Nil fields are left untouched; a rating
// outside [0, 5] is rejected with ErrRatingOutOfRange before any store access.
func (s *FavoriteService) Update(ctx context.Context, ownerID, id uuid.UUID, note *string, rating *int) (types.Favorite, error) {
	if rating != nil && (*rating < 0 || *rating > 5) {
		return types.Favorite{}, ErrRatingOutOfRange
	}
	return s.repo.UpdateFields(ctx, ownerID, id, note, rating)
}

// Delete removes a favorite owned by ownerID, together with its mirrored
// image copy when one exists.
func (s *FavoriteService) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	favorite, err := s.repo.GetByOwner(ctx, ownerID, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, ownerID, id); err != nil {
		return err
	}

	s.publishEvent(ctx, EventFavoriteDeleted, favorite)

	if s.mirror != nil && favorite.ImageKey != "" {
		go s.deleteMirror(favorite)
	}

	return nil
}

// OpenImage opens the mirrored image copy of a favorite. It returns
// store.ErrNotFound semantics through the repository when the favorite is
// missing, and storage errors when no usable mirror exists.
func (s *FavoriteService) OpenImage(ctx context.Context, ownerID, id uuid.UUID) (io.ReadCloser, error) {
	favorite, err := s.repo.GetByOwner(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if s.mirror == nil || favorite.ImageKey == "" {
		return nil, ErrNoMirroredImage
	}
	return s.mirror.Get(ctx, favorite.ImageKey)
}

// publishEvent publishes a favorite event. Failures are logged, never
// surfaced: the mutation already succeeded and events are best-effort.
func (s *FavoriteService) publishEvent(ctx context.Context, eventType string, favorite types.Favorite) {
	event := FavoriteEvent{
		Type:       eventType,
		UserID:     favorite.UserID.String(),
		FavoriteID: favorite.ID.String(),
		RecipeID:   favorite.RecipeID,
		OccurredAt: time.Now(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		s.log.Warn("failed to encode favorite event", slog.Any("err", err))
		return
	}

	attrs := map[string]string{"type": eventType}
	if _, err := s.events.Publish(ctx, EventChannel, data, attrs); err != nil {
		s.log.Warn("failed to publish favorite event",
			slog.String("type", eventType),
			slog.String("favorite_id", favorite.ID.String()),
			slog.Any("err", err),
		)
	}
}

// mirrorImage fetches the favorite's image URL and stores a copy in object
// storage. Runs in the background with its own deadline; failures are logged
// and the favorite keeps serving the original URL.
func (s *FavoriteService) mirrorImage(favorite types.Favorite) {
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, favorite.Image, nil)
	if err != nil {
		s.log.Warn("invalid favorite image url", slog.String("favorite_id", favorite.ID.String()), slog.Any("err", err))
		return
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.log.Warn("failed to fetch favorite image", slog.String("favorite_id", favorite.ID.String()), slog.Any("err", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.log.Warn("unexpected status fetching favorite image",
			slog.String("favorite_id", favorite.ID.String()),
			slog.Int("status", resp.StatusCode),
		)
		return
	}

	key := mirrorKeyPrefix + favorite.ID.String()
	contentType := resp.Header.Get("Content-Type")
	if err := s.mirror.Put(ctx, key, resp.Body, resp.ContentLength, contentType); err != nil {
		s.log.Warn("failed to store mirrored image", slog.String("favorite_id", favorite.ID.String()), slog.Any("err", err))
		return
	}

	if err := s.repo.SetImageKey(ctx, favorite.UserID, favorite.ID, key); err != nil {
		s.log.Warn("failed to record mirrored image key", slog.String("favorite_id", favorite.ID.String()), slog.Any("err", err))
	}
}

// deleteMirror removes the mirrored image copy of a deleted favorite.
func (s *FavoriteService) deleteMirror(favorite types.Favorite) {
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()

	if err := s.mirror.Delete(ctx, favorite.ImageKey); err != nil {
		s.log.Warn("failed to delete mirrored image", slog.String("favorite_id", favorite.ID.String()), slog.Any("err", err))
	}
}
