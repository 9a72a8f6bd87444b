package cache

import (
	"context"
	"time"
)

// ResponseCache is a read-through cache for raw upstream payloads.
type ResponseCache interface {
	GetResponse(ctx context.Context, key string) (*Entry, bool, error)
	SetResponse(ctx context.Context, key string, entry *Entry, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	GetTTL(ctx context.Context, key string) (time.Duration, error)
	Health(ctx context.Context) map[string]interface{}
	Close() error
}

var _ ResponseCache = (*Cache)(nil)
