package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/mealdex/apiserver/types"
)

func createTestFavorite(t *testing.T, router http.Handler, token, recipeID, name string) types.Favorite {
	t.Helper()

	rec := doRequest(t, router, http.MethodPost, "/favorites", token, map[string]string{
		"recipe_id": recipeID,
		"name":      name,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create favorite status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	return decodeBody[types.Favorite](t, rec)
}

func TestCreateFavoriteDefaults(t *testing.T) {
	router, _ := newTestRouter(t)
	token, user := registerTestUser(t, router, "a@x.com")

	rec := doRequest(t, router, http.MethodPost, "/favorites", token, map[string]string{
		"recipe_id": "5",
		"name":      "Soup",
		"image":     "https://example.com/soup.jpg",
		"cuisine":   "French",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}

	favorite := decodeBody[types.Favorite](t, rec)
	if favorite.ID == uuid.Nil {
		t.Fatalf("expected favorite id to be set")
	}
	if favorite.UserID != user.ID {
		t.Fatalf("favorite user id = %s, want %s", favorite.UserID, user.ID)
	}
	if favorite.RecipeID != "5" || favorite.Name != "Soup" {
		t.Fatalf("favorite = %+v, want recipe_id 5 name Soup", favorite)
	}
	if favorite.Image != "https://example.com/soup.jpg" || favorite.Cuisine != "French" {
		t.Fatalf("favorite = %+v, want supplied image and cuisine", favorite)
	}
	if favorite.Note != "" {
		t.Fatalf("favorite note = %q, want empty default", favorite.Note)
	}
	if favorite.Rating != 0 {
		t.Fatalf("favorite rating = %d, want 0 default", favorite.Rating)
	}
	if favorite.CreatedAt.IsZero() {
		t.Fatalf("expected created_at to be set")
	}
}

func TestCreateFavoriteMissingFields(t *testing.T) {
	router, favoriteRepo := newTestRouter(t)
	token, _ := registerTestUser(t, router, "a@x.com")

	cases := []map[string]string{
		{"recipe_id": "5"},
		{"name": "Soup"},
		{"recipe_id": "  ", "name": "Soup"},
		{},
	}
	for _, payload := range cases {
		rec := doRequest(t, router, http.MethodPost, "/favorites", token, payload)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("create %v status = %d, want %d", payload, rec.Code, http.StatusBadRequest)
		}
	}
	if n := favoriteRepo.mutationCount(); n != 0 {
		t.Fatalf("store mutations = %d, want 0", n)
	}
}

func TestCreateFavoriteDuplicate(t *testing.T) {
	router, _ := newTestRouter(t)
	tokenA, _ := registerTestUser(t, router, "a@x.com")
	tokenB, _ := registerTestUser(t, router, "b@x.com")

	createTestFavorite(t, router, tokenA, "5", "Soup")

	rec := doRequest(t, router, http.MethodPost, "/favorites", tokenA, map[string]string{
		"recipe_id": "5",
		"name":      "Soup again",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate create status = %d, want %d", rec.Code, http.StatusConflict)
	}

	// A different owner may favorite the same recipe.
	rec = doRequest(t, router, http.MethodPost, "/favorites", tokenB, map[string]string{
		"recipe_id": "5",
		"name":      "Soup",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("other owner create status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
}

func TestListFavoritesNewestFirst(t *testing.T) {
	router, _ := newTestRouter(t)
	token, _ := registerTestUser(t, router, "a@x.com")

	for i := 1; i <= 3; i++ {
		createTestFavorite(t, router, token, fmt.Sprintf("%d", i), fmt.Sprintf("Recipe %d", i))
	}

	rec := doRequest(t, router, http.MethodGet, "/favorites", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want %d", rec.Code, http.StatusOK)
	}
	list := decodeBody[[]types.Favorite](t, rec)
	if len(list) != 3 {
		t.Fatalf("list length = %d, want 3", len(list))
	}
	for i, want := range []string{"3", "2", "1"} {
		if list[i].RecipeID != want {
			t.Fatalf("list[%d].recipe_id = %q, want %q", i, list[i].RecipeID, want)
		}
	}
}

func TestPartialUpdate(t *testing.T) {
	router, _ := newTestRouter(t)
	token, _ := registerTestUser(t, router, "a@x.com")

	favorite := createTestFavorite(t, router, token, "5", "Soup")

	rec := doRequest(t, router, http.MethodPatch, "/favorites/"+favorite.ID.String(), token, map[string]any{
		"rating": 4,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch rating status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	updated := decodeBody[types.Favorite](t, rec)
	if updated.Rating != 4 {
		t.Fatalf("rating = %d, want 4", updated.Rating)
	}
	if updated.Note != "" {
		t.Fatalf("note = %q, want unchanged empty", updated.Note)
	}

	rec = doRequest(t, router, http.MethodPatch, "/favorites/"+favorite.ID.String(), token, map[string]any{
		"note": "less salt next time",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch note status = %d, want %d", rec.Code, http.StatusOK)
	}
	updated = decodeBody[types.Favorite](t, rec)
	if updated.Note != "less salt next time" {
		t.Fatalf("note = %q, want updated", updated.Note)
	}
	if updated.Rating != 4 {
		t.Fatalf("rating = %d, want 4 preserved", updated.Rating)
	}

	// An explicit empty note is an update, not an omission.
	rec = doRequest(t, router, http.MethodPatch, "/favorites/"+favorite.ID.String(), token, map[string]any{
		"note": "",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch empty note status = %d, want %d", rec.Code, http.StatusOK)
	}
	updated = decodeBody[types.Favorite](t, rec)
	if updated.Note != "" || updated.Rating != 4 {
		t.Fatalf("favorite = %+v, want note cleared and rating preserved", updated)
	}
}

func TestUpdateRatingOutOfRange(t *testing.T) {
	router, _ := newTestRouter(t)
	token, _ := registerTestUser(t, router, "a@x.com")

	favorite := createTestFavorite(t, router, token, "5", "Soup")

	for _, rating := range []int{-1, 6, 100} {
		rec := doRequest(t, router, http.MethodPatch, "/favorites/"+favorite.ID.String(), token, map[string]any{
			"rating": rating,
		})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("patch rating %d status = %d, want %d", rating, rec.Code, http.StatusBadRequest)
		}
	}

	rec := doRequest(t, router, http.MethodGet, "/favorites", token, nil)
	list := decodeBody[[]types.Favorite](t, rec)
	if list[0].Rating != 0 {
		t.Fatalf("rating = %d, want 0 after rejected updates", list[0].Rating)
	}
}

func TestUpdateRatingNotAnInteger(t *testing.T) {
	router, _ := newTestRouter(t)
	token, _ := registerTestUser(t, router, "a@x.com")

	favorite := createTestFavorite(t, router, token, "5", "Soup")

	for _, raw := range []string{`{"rating":"four"}`, `{"rating":4.5}`} {
		req := doRequestRaw(t, router, http.MethodPatch, "/favorites/"+favorite.ID.String(), token, raw)
		if req.Code != http.StatusBadRequest {
			t.Fatalf("patch %s status = %d, want %d", raw, req.Code, http.StatusBadRequest)
		}
	}
}

func TestOwnershipIsolation(t *testing.T) {
	router, _ := newTestRouter(t)
	tokenA, _ := registerTestUser(t, router, "a@x.com")
	tokenB, _ := registerTestUser(t, router, "b@x.com")

	favorite := createTestFavorite(t, router, tokenA, "5", "Soup")
	path := "/favorites/" + favorite.ID.String()

	// User B sees an empty list and treats A's favorite as nonexistent.
	rec := doRequest(t, router, http.MethodGet, "/favorites", tokenB, nil)
	if list := decodeBody[[]types.Favorite](t, rec); len(list) != 0 {
		t.Fatalf("other user's list length = %d, want 0", len(list))
	}

	rec = doRequest(t, router, http.MethodPatch, path, tokenB, map[string]any{"rating": 5})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cross-owner patch status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	rec = doRequest(t, router, http.MethodDelete, path, tokenB, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cross-owner delete status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	// The record is untouched for its owner.
	rec = doRequest(t, router, http.MethodGet, "/favorites", tokenA, nil)
	list := decodeBody[[]types.Favorite](t, rec)
	if len(list) != 1 || list[0].Rating != 0 {
		t.Fatalf("owner list = %+v, want one unmodified favorite", list)
	}
}

func TestDeleteLifecycle(t *testing.T) {
	router, _ := newTestRouter(t)
	token, _ := registerTestUser(t, router, "a@x.com")

	favorite := createTestFavorite(t, router, token, "5", "Soup")
	path := "/favorites/" + favorite.ID.String()

	rec := doRequest(t, router, http.MethodDelete, path, token, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("delete body = %q, want empty", rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodGet, "/favorites", token, nil)
	if list := decodeBody[[]types.Favorite](t, rec); len(list) != 0 {
		t.Fatalf("list length after delete = %d, want 0", len(list))
	}

	rec = doRequest(t, router, http.MethodPatch, path, token, map[string]any{"rating": 4})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("patch after delete status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	rec = doRequest(t, router, http.MethodDelete, path, token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestUnknownFavoriteID(t *testing.T) {
	router, _ := newTestRouter(t)
	token, _ := registerTestUser(t, router, "a@x.com")

	rec := doRequest(t, router, http.MethodPatch, "/favorites/"+uuid.NewString(), token, map[string]any{"rating": 3})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("patch unknown id status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	// Malformed ids cannot match a record either.
	rec = doRequest(t, router, http.MethodDelete, "/favorites/not-a-uuid", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("delete malformed id status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestUnauthenticatedRequestsNeverReachStore(t *testing.T) {
	router, favoriteRepo := newTestRouter(t)

	requests := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, "/favorites", nil},
		{http.MethodPost, "/favorites", map[string]string{"recipe_id": "5", "name": "Soup"}},
		{http.MethodPatch, "/favorites/" + uuid.NewString(), map[string]any{"rating": 4}},
		{http.MethodDelete, "/favorites/" + uuid.NewString(), nil},
	}
	for _, tc := range requests {
		rec := doRequest(t, router, tc.method, tc.path, "", tc.body)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s status = %d, want %d", tc.method, tc.path, rec.Code, http.StatusUnauthorized)
		}
	}
	if n := favoriteRepo.mutationCount(); n != 0 {
		t.Fatalf("store mutations = %d, want 0", n)
	}
}

func TestFavoriteJSONHidesImageKey(t *testing.T) {
	router, _ := newTestRouter(t)
	token, _ := registerTestUser(t, router, "a@x.com")

	createTestFavorite(t, router, token, "5", "Soup")

	rec := doRequest(t, router, http.MethodGet, "/favorites", token, nil)
	var raw []map[string]json.RawMessage
	if err := json.NewDecoder(rec.Body).Decode(&raw); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if _, ok := raw[0]["image_key"]; ok {
		t.Fatalf("favorite JSON exposes image_key")
	}
	for _, field := range []string{"id", "user_id", "recipe_id", "name", "image", "cuisine", "note", "rating", "created_at"} {
		if _, ok := raw[0][field]; !ok {
			t.Fatalf("favorite JSON missing field %q", field)
		}
	}
}
