package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mealdex/apiserver/internal/mq"
	"github.com/mealdex/apiserver/internal/services"
	"github.com/mealdex/apiserver/internal/store"
	"github.com/mealdex/apiserver/types"
)

const testSecret = "test-secret"

// memUserRepo is an in-memory services.UserRepository used to test the
// HTTP surface without a database.
type memUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]types.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[uuid.UUID]types.User)}
}

func (r *memUserRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return types.User{}, store.ErrConflict
		}
	}
	user.ID = uuid.New()
	user.CreatedAt = time.Now()
	r.users[user.ID] = user
	return user, nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memUserRepo) GetByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

// memFavoriteRepo is an in-memory services.FavoriteRepository. It counts
// mutations so tests can assert that rejected requests never touch the store.
type memFavoriteRepo struct {
	mu        sync.Mutex
	favorites []types.Favorite
	seq       int
	mutations int
}

func newMemFavoriteRepo() *memFavoriteRepo {
	return &memFavoriteRepo{}
}

func (r *memFavoriteRepo) Create(ctx context.Context, favorite types.Favorite) (types.Favorite, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.favorites {
		if existing.UserID == favorite.UserID && existing.RecipeID == favorite.RecipeID {
			return types.Favorite{}, store.ErrConflict
		}
	}
	r.seq++
	r.mutations++
	favorite.ID = uuid.New()
	favorite.CreatedAt = time.Unix(0, int64(r.seq)*int64(time.Millisecond))
	r.favorites = append(r.favorites, favorite)
	return favorite, nil
}

func (r *memFavoriteRepo) GetByOwner(ctx context.Context, ownerID, id uuid.UUID) (types.Favorite, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, favorite := range r.favorites {
		if favorite.ID == id && favorite.UserID == ownerID {
			return favorite, nil
		}
	}
	return types.Favorite{}, store.ErrNotFound
}

func (r *memFavoriteRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]types.Favorite, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owned := make([]types.Favorite, 0)
	for _, favorite := range r.favorites {
		if favorite.UserID == ownerID {
			owned = append(owned, favorite)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})
	return owned, nil
}

func (r *memFavoriteRepo) UpdateFields(ctx context.Context, ownerID, id uuid.UUID, note *string, rating *int) (types.Favorite, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, favorite := range r.favorites {
		if favorite.ID == id && favorite.UserID == ownerID {
			if note != nil {
				favorite.Note = *note
			}
			if rating != nil {
				favorite.Rating = *rating
			}
			r.mutations++
			r.favorites[i] = favorite
			return favorite, nil
		}
	}
	return types.Favorite{}, store.ErrNotFound
}

func (r *memFavoriteRepo) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, favorite := range r.favorites {
		if favorite.ID == id && favorite.UserID == ownerID {
			r.mutations++
			r.favorites = append(r.favorites[:i], r.favorites[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (r *memFavoriteRepo) SetImageKey(ctx context.Context, ownerID, id uuid.UUID, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, favorite := range r.favorites {
		if favorite.ID == id && favorite.UserID == ownerID {
			r.favorites[i].ImageKey = key
			return nil
		}
	}
	return store.ErrNotFound
}

func (r *memFavoriteRepo) mutationCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mutations
}

func newTestRouter(t *testing.T) (*chi.Mux, *memFavoriteRepo) {
	t.Helper()

	userRepo := newMemUserRepo()
	favoriteRepo := newMemFavoriteRepo()

	userService := services.NewUserService(userRepo)
	favoriteService := services.NewFavoriteService(
		favoriteRepo,
		mq.New(mq.NewNoopBackend()),
		nil,
		slog.New(slog.DiscardHandler),
	)

	authHandler := NewAuthHandler(userService, testSecret)

	router := chi.NewRouter()
	router.Get("/healthz", Healthz)
	router.Route("/auth", func(r chi.Router) {
		AuthRouter(r, authHandler)
	})
	router.With(authHandler.RequireAuth).Get("/me", authHandler.Me)
	router.Route("/favorites", func(r chi.Router) {
		FavoriteRouter(r, favoriteService, authHandler.RequireAuth)
	})
	return router, favoriteRepo
}

func doRequest(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func doRequestRaw(t *testing.T, router http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var value T
	if err := json.NewDecoder(rec.Body).Decode(&value); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return value
}

func registerTestUser(t *testing.T, router http.Handler, email string) (string, types.User) {
	t.Helper()

	rec := doRequest(t, router, http.MethodPost, "/auth/register", "", map[string]string{
		"email":    email,
		"password": "pw12345",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	resp := decodeBody[AuthResponse](t, rec)
	if resp.Token == "" {
		t.Fatalf("register returned empty token")
	}
	return resp.Token, resp.User
}
