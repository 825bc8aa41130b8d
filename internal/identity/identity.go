// Package identity resolves member display information at join time. The
// signaling core never blocks on it: lookups run in the connection goroutine
// with a short timeout, and failures degrade to the client-supplied info.
package identity

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/janhae4/DATN-sub006/internal/protocol"
)

// ErrNotFound is returned when no identity record exists for the key.
var ErrNotFound = errors.New("identity not found")

// Provider supplies display info for a user key (the application user
// identity, distinct from the per-socket member id).
type Provider interface {
	Resolve(ctx context.Context, userKey string) (protocol.MemberInfo, error)
}

// Directory is a Redis-backed Provider reading one hash per user.
type Directory struct {
	rdb     *redis.Client
	prefix  string
	timeout time.Duration
}

// NewDirectory builds a Directory against the given Redis address.
func NewDirectory(addr string) *Directory {
	return &Directory{
		rdb:     redis.NewClient(&redis.Options{Addr: addr}),
		prefix:  "identity:user:",
		timeout: 500 * time.Millisecond,
	}
}

// Resolve fetches the user hash. The per-call timeout keeps a slow or down
// Redis from stalling the join path.
func (d *Directory) Resolve(ctx context.Context, userKey string) (protocol.MemberInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	vals, err := d.rdb.HGetAll(ctx, d.prefix+userKey).Result()
	if err != nil {
		return protocol.MemberInfo{}, err
	}
	if len(vals) == 0 {
		return protocol.MemberInfo{}, ErrNotFound
	}
	return protocol.MemberInfo{
		DisplayName: vals["display_name"],
		Avatar:      vals["avatar"],
		Role:        vals["role"],
	}, nil
}

// Close releases the Redis connection.
func (d *Directory) Close() error {
	return d.rdb.Close()
}

// Static is a fixed-map Provider for development and tests.
type Static map[string]protocol.MemberInfo

func (s Static) Resolve(_ context.Context, userKey string) (protocol.MemberInfo, error) {
	info, ok := s[userKey]
	if !ok {
		return protocol.MemberInfo{}, ErrNotFound
	}
	return info, nil
}
