package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mealdex/apiserver/internal/services"
	"github.com/mealdex/apiserver/internal/store"
)

// FavoriteHandler provides HTTP handlers for favorites.
type FavoriteHandler struct {
	favoriteService *services.FavoriteService
}

// NewFavoriteHandler constructs a handler with the provided service.
func NewFavoriteHandler(favoriteService *services.FavoriteService) *FavoriteHandler {
	return &FavoriteHandler{favoriteService: favoriteService}
}

// FavoriteRouter registers favorite routes on the given router. Every route
// requires authentication; unauthenticated requests never reach the service.
func FavoriteRouter(
	r chi.Router,
	favoriteService *services.FavoriteService,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewFavoriteHandler(favoriteService)

	r.Use(authMiddleware)
	r.Get("/", handler.ListFavorites)
	r.Post("/", handler.CreateFavorite)
	r.Route("/{favoriteID}", func(r chi.Router) {
		r.Patch("/", handler.UpdateFavorite)
		r.Delete("/", handler.DeleteFavorite)
		r.Get("/image", handler.GetFavoriteImage)
	})
}

// ListFavorites returns the caller's favorites, newest first.
func (h *FavoriteHandler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	favorites, err := h.favoriteService.List(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list favorites")
		return
	}

	writeJSON(w, http.StatusOK, favorites)
}

// CreateFavorite saves a new favorite for the caller.
func (h *FavoriteHandler) CreateFavorite(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreateFavoriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.RecipeID = strings.TrimSpace(req.RecipeID)
	req.Name = strings.TrimSpace(req.Name)
	if req.RecipeID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "recipe_id and name required")
		return
	}

	created, err := h.favoriteService.Create(r.Context(), userID, services.CreateFavoriteInput{
		RecipeID: req.RecipeID,
		Name:     req.Name,
		Image:    req.Image,
		Cuisine:  req.Cuisine,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "already in favorites")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create favorite")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// UpdateFavorite applies a partial update to the caller's favorite.
func (h *FavoriteHandler) UpdateFavorite(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, ok := parseFavoriteID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "favorite not found")
		return
	}

	var req UpdateFavoriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	updated, err := h.favoriteService.Update(r.Context(), userID, id, req.Note, req.Rating)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrRatingOutOfRange):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "favorite not found")
		default:
			writeError(w, http.StatusInternalServerError, "failed to update favorite")
		}
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// DeleteFavorite removes the caller's favorite.
func (h *FavoriteHandler) DeleteFavorite(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, ok := parseFavoriteID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "favorite not found")
		return
	}

	if err := h.favoriteService.Delete(r.Context(), userID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "favorite not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete favorite")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetFavoriteImage streams the mirrored image copy of the caller's favorite.
func (h *FavoriteHandler) GetFavoriteImage(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, ok := parseFavoriteID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "favorite not found")
		return
	}

	reader, err := h.favoriteService.OpenImage(r.Context(), userID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, services.ErrNoMirroredImage) {
			writeError(w, http.StatusNotFound, "image not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load image")
		return
	}
	defer reader.Close()

	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, reader)
}

// parseFavoriteID extracts the favorite id from the URL. Ids are opaque
// UUIDs; anything that does not parse cannot match a record, so malformed
// ids are reported as not found rather than bad input.
func parseFavoriteID(r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "favoriteID")
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// CreateFavoriteRequest is the JSON payload for saving a favorite.
type CreateFavoriteRequest struct {
	RecipeID string `json:"recipe_id"`
	Name     string `json:"name"`
	Image    string `json:"image"`
	Cuisine  string `json:"cuisine"`
}

// UpdateFavoriteRequest is the JSON payload for a partial update. Absent
// fields stay nil and leave the stored values untouched.
type UpdateFavoriteRequest struct {
	Note   *string `json:"note"`
	Rating *int    `json:"rating"`
}
