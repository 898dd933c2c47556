package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veyralabs/fitlens/api/schemas"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "fitlens.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func product(id, name string) schemas.ProductMetadata {
	return schemas.ProductMetadata{
		ID:       id,
		Name:     name,
		ImageURL: "https://cdn.example.com/" + id + ".jpg",
	}
}

func TestProductsEmptyByDefault(t *testing.T) {
	s := newTestStore(t)

	products, err := s.Products(context.Background())
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestUpsertProductPrepends(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertProduct(ctx, product("product-1", "Parka"))
	require.NoError(t, err)
	list, err := s.UpsertProduct(ctx, product("product-2", "Boots"))
	require.NoError(t, err)

	require.Len(t, list, 2)
	assert.Equal(t, "product-2", list[0].ID)
	assert.Equal(t, "product-1", list[1].ID)
}

func TestUpsertProductReplacesByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertProduct(ctx, product("product-1", "Parka"))
	require.NoError(t, err)
	_, err = s.UpsertProduct(ctx, product("product-2", "Boots"))
	require.NoError(t, err)

	// Re-capturing an existing id must not duplicate it, and the fresh
	// capture moves to the front.
	list, err := s.UpsertProduct(ctx, product("product-1", "Parka v2"))
	require.NoError(t, err)

	require.Len(t, list, 2)
	assert.Equal(t, "product-1", list[0].ID)
	assert.Equal(t, "Parka v2", list[0].Name)
	assert.Equal(t, "product-2", list[1].ID)
}

func TestUpsertProductEvictsBeyondCap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < MaxProducts+3; i++ {
		_, err := s.UpsertProduct(ctx, product(fmt.Sprintf("product-%d", i), "Item"))
		require.NoError(t, err)
	}

	list, err := s.Products(ctx)
	require.NoError(t, err)
	require.Len(t, list, MaxProducts)
	// Newest first; the earliest three captures were evicted.
	assert.Equal(t, fmt.Sprintf("product-%d", MaxProducts+2), list[0].ID)
	assert.Equal(t, "product-3", list[MaxProducts-1].ID)
}

func TestUpsertSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "fitlens.db")

	s, err := Open(ctx, path, zap.NewNop())
	require.NoError(t, err)
	_, err = s.UpsertProduct(ctx, product("product-1", "Parka"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	list, err := s.Products(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Parka", list[0].Name)
}

func TestUserProfileRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UserProfile(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	profile := schemas.UserProfile{
		PhotoDataURL: "data:image/png;base64,aGVsbG8=",
		UploadedAt:   "2026-08-30T12:00:00Z",
	}
	require.NoError(t, s.SaveUserProfile(ctx, profile))

	got, err := s.UserProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, profile, got)
}

func TestTryOnResultRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.LatestTryOnResult(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	result := schemas.TryOnResult{
		RequestID:         "req-1",
		GeneratedImageURL: "data:image/jpeg;base64,d29ybGQ=",
		Confidence:        0.92,
		GeneratedAt:       "2026-08-30T12:05:00Z",
	}
	require.NoError(t, s.SaveTryOnResult(ctx, result))

	got, err := s.LatestTryOnResult(ctx)
	require.NoError(t, err)
	assert.Equal(t, result, got)
}

func TestAPIKeyCache(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.APIKey(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.CacheAPIKey(ctx, "AIza-test"))
	key, err := s.APIKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, "AIza-test", key)
}
