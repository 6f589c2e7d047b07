package cache

import (
	"context"
	"time"
)

// ReportCache holds marshalled report payloads. Reports are recomputed from
// trips on every write, so entries are short-lived and invalidated whenever
// a trip changes.
type ReportCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	InvalidatePrefix(ctx context.Context, prefix string) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) ([]byte, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error {
	return nil
}

func (NoopReportCache) InvalidatePrefix(_ context.Context, _ string) error {
	return nil
}
