package catalog

import (
	"context"
	"log/slog"
)

// RepositoryPort abstracts catalog reads for the service.
type RepositoryPort interface {
	List(ctx context.Context, orgID int64) ([]CatalogItem, error)
	Get(ctx context.Context, id int64) (*CatalogItem, error)
}

// Service serves catalog snapshots through a read-through cache.
type Service struct {
	repo   RepositoryPort
	cache  *Cache
	logger *slog.Logger
}

// NewService builds a Service.
func NewService(repo RepositoryPort, cache *Cache, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger}
}

// Snapshot returns the orderable items for the organization. Cache failures
// degrade to a direct read; the snapshot is advisory either way.
func (s *Service) Snapshot(ctx context.Context, orgID int64) ([]CatalogItem, error) {
	if cached, err := s.cache.Get(ctx, orgID); err != nil {
		if s.logger != nil {
			s.logger.Warn("catalog cache read", slog.Any("error", err))
		}
	} else if cached != nil {
		return cached, nil
	}

	items, err := s.repo.List(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, orgID, items); err != nil && s.logger != nil {
		s.logger.Warn("catalog cache write", slog.Any("error", err))
	}
	return items, nil
}

// Item returns a single catalog item, bypassing the snapshot cache.
func (s *Service) Item(ctx context.Context, id int64) (*CatalogItem, error) {
	return s.repo.Get(ctx, id)
}

// InvalidateSnapshot drops the cached snapshot after a stock movement.
func (s *Service) InvalidateSnapshot(ctx context.Context, orgID int64) {
	if err := s.cache.Invalidate(ctx, orgID); err != nil && s.logger != nil {
		s.logger.Warn("catalog cache invalidate", slog.Any("error", err))
	}
}
