package cache

import (
	"context"
	"time"
)

// BytesCache: общий (межпроцессный) кэш; промахи и ошибки вызывающий код трактует одинаково.
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
}
