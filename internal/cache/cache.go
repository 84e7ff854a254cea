package cache

import (
	"context"
	"time"

	"dorixona/backend/internal/domain"
)

type DebtSummaryCache interface {
	Get(ctx context.Context, key string) (*domain.DebtSummary, bool, error)
	Set(ctx context.Context, key string, value *domain.DebtSummary, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type NoopDebtSummaryCache struct{}

func (NoopDebtSummaryCache) Get(_ context.Context, _ string) (*domain.DebtSummary, bool, error) {
	return nil, false, nil
}

func (NoopDebtSummaryCache) Set(_ context.Context, _ string, _ *domain.DebtSummary, _ time.Duration) error {
	return nil
}

func (NoopDebtSummaryCache) Delete(_ context.Context, _ string) error {
	return nil
}
