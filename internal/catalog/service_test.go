package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type memCatalogRepo struct {
	items     []CatalogItem
	listCalls int
	listErr   error
}

func (m *memCatalogRepo) List(_ context.Context, _ int64) ([]CatalogItem, error) {
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.items, nil
}

func (m *memCatalogRepo) Get(_ context.Context, id int64) (*CatalogItem, error) {
	for i := range m.items {
		if m.items[i].ID == id {
			return &m.items[i], nil
		}
	}
	return nil, errors.New("not found")
}

func newCatalogFixture(t *testing.T) (*Service, *memCatalogRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := &memCatalogRepo{items: []CatalogItem{
		{ID: 1, OrgID: 1, Name: "Detergent", Kind: KindProduct, UnitPrice: 10, StockQty: 5},
		{ID: 2, OrgID: 1, Name: "Pressing", Kind: KindService, UnitPrice: 25},
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, NewCache(client, time.Minute), logger), repo, mr
}

func TestSnapshotReadThrough(t *testing.T) {
	svc, repo, _ := newCatalogFixture(t)
	ctx := context.Background()

	items, err := svc.Snapshot(ctx, 1)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, 1, repo.listCalls)

	// Second read is served from the cache.
	items, err = svc.Snapshot(ctx, 1)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, 1, repo.listCalls)
}

func TestSnapshotInvalidateForcesReload(t *testing.T) {
	svc, repo, _ := newCatalogFixture(t)
	ctx := context.Background()

	_, err := svc.Snapshot(ctx, 1)
	require.NoError(t, err)

	svc.InvalidateSnapshot(ctx, 1)

	_, err = svc.Snapshot(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 2, repo.listCalls)
}

func TestSnapshotExpiresWithTTL(t *testing.T) {
	svc, repo, mr := newCatalogFixture(t)
	ctx := context.Background()

	_, err := svc.Snapshot(ctx, 1)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = svc.Snapshot(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 2, repo.listCalls)
}

func TestSnapshotDegradesWhenCacheDown(t *testing.T) {
	svc, repo, mr := newCatalogFixture(t)
	mr.Close()

	items, err := svc.Snapshot(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, 1, repo.listCalls)
}

func TestTracked(t *testing.T) {
	require.True(t, CatalogItem{Kind: KindProduct}.Tracked())
	require.False(t, CatalogItem{Kind: KindService}.Tracked())
}
