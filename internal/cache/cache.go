package cache

import (
	"context"
	"time"

	"sealdesk/backend/internal/domain"
)

type AlertCache interface {
	Get(ctx context.Context, key string) (*domain.LowStockAlertResponse, bool, error)
	Set(ctx context.Context, key string, value *domain.LowStockAlertResponse, ttl time.Duration) error
}

type NoopAlertCache struct{}

func (NoopAlertCache) Get(_ context.Context, _ string) (*domain.LowStockAlertResponse, bool, error) {
	return nil, false, nil
}

func (NoopAlertCache) Set(_ context.Context, _ string, _ *domain.LowStockAlertResponse, _ time.Duration) error {
	return nil
}
