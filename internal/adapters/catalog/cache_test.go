package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/sarbatch/internal/domain/model"
	"github.com/target/sarbatch/internal/mocks"
	"go.uber.org/mock/gomock"
)

func granule(name string) model.Granule {
	return model.Granule{Name: name, Polygon: orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}}
}

func encoded(t *testing.T, g model.Granule) []byte {
	t.Helper()
	raw, err := json.Marshal(g)
	require.NoError(t, err)
	return raw
}

func TestCachedClient_ServesHitsAndFetchesMisses(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCacheRepository(ctrl)
	next := mocks.NewMockCatalogClient(ctrl)
	c := NewCachedClient(CachedClientOptions{Next: next, Cache: cache, TTL: time.Hour})
	ctx := context.Background()

	cache.EXPECT().
		GetMany(ctx, []string{"sarbatch:granule:A", "sarbatch:granule:B", "sarbatch:granule:C"}).
		Return(map[string][]byte{"sarbatch:granule:A": encoded(t, granule("A"))}, nil)
	next.EXPECT().Lookup(ctx, []string{"B", "C"}).Return([]model.Granule{granule("B")}, nil)
	cache.EXPECT().
		SetMany(ctx, map[string][]byte{"sarbatch:granule:B": encoded(t, granule("B"))}, time.Hour).
		Return(nil)

	got, err := c.Lookup(ctx, []string{"A", "B", "C", "A"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []model.Granule{granule("A"), granule("B")}, got)
}

func TestCachedClient_AllHitsSkipCatalog(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCacheRepository(ctrl)
	next := mocks.NewMockCatalogClient(ctrl)
	c := NewCachedClient(CachedClientOptions{Next: next, Cache: cache})

	cache.EXPECT().GetMany(gomock.Any(), gomock.Any()).
		Return(map[string][]byte{"sarbatch:granule:A": encoded(t, granule("A"))}, nil)

	got, err := c.Lookup(context.Background(), []string{"A"})
	require.NoError(t, err)
	assert.Equal(t, []model.Granule{granule("A")}, got)
}

func TestCachedClient_CacheFailuresDegrade(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCacheRepository(ctrl)
	next := mocks.NewMockCatalogClient(ctrl)
	c := NewCachedClient(CachedClientOptions{Next: next, Cache: cache})

	cache.EXPECT().GetMany(gomock.Any(), gomock.Any()).Return(nil, errors.New("redis down"))
	next.EXPECT().Lookup(gomock.Any(), []string{"A"}).Return([]model.Granule{granule("A")}, nil)
	cache.EXPECT().SetMany(gomock.Any(), gomock.Any(), DefaultCacheTTL).Return(errors.New("redis down"))

	got, err := c.Lookup(context.Background(), []string{"A"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestCachedClient_CorruptEntryIsRefetched(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCacheRepository(ctrl)
	next := mocks.NewMockCatalogClient(ctrl)
	c := NewCachedClient(CachedClientOptions{Next: next, Cache: cache})

	cache.EXPECT().GetMany(gomock.Any(), gomock.Any()).
		Return(map[string][]byte{"sarbatch:granule:A": []byte("{oops")}, nil)
	next.EXPECT().Lookup(gomock.Any(), []string{"A"}).Return([]model.Granule{granule("A")}, nil)
	cache.EXPECT().SetMany(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	_, err := c.Lookup(context.Background(), []string{"A"})
	require.NoError(t, err)
}

func TestCachedClient_PropagatesCatalogErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCacheRepository(ctrl)
	next := mocks.NewMockCatalogClient(ctrl)
	c := NewCachedClient(CachedClientOptions{Next: next, Cache: cache})

	cache.EXPECT().GetMany(gomock.Any(), gomock.Any()).Return(map[string][]byte{}, nil)
	next.EXPECT().Lookup(gomock.Any(), gomock.Any()).Return(nil, model.ErrCatalogUnavailable)

	_, err := c.Lookup(context.Background(), []string{"A"})
	require.ErrorIs(t, err, model.ErrCatalogUnavailable)
}
