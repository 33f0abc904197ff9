// Package rediscas provides a Redis-backed content-addressable store.
//
// Objects are stored under "cas:<cid>" string keys. Redis is a reasonable
// shared backend for a small federation cluster; the CAS contract (immutable,
// CID-keyed, verify-on-read) holds regardless of who else writes to the
// instance.
package rediscas

import (
	"context"
	"errors"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/redis/go-redis/v9"

	"github.com/InterCooperative-Network/icn-v2-sub001/cidutil"
	"github.com/InterCooperative-Network/icn-v2-sub001/storage"
)

const keyPrefix = "cas:"

// CAS implements storage.CAS over a Redis client.
type CAS struct {
	rdb *redis.Client

	// Timeout applies per operation when non-zero.
	Timeout time.Duration
}

type Options struct {
	// Addr is the Redis host:port.
	Addr string
	// Password is optional.
	Password string
	// DB selects the Redis logical database.
	DB int
	// Timeout applies per operation when non-zero.
	Timeout time.Duration
}

func New(opts Options) (*CAS, error) {
	if opts.Addr == "" {
		return nil, errors.New("rediscas: addr is required")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &CAS{rdb: rdb, Timeout: opts.Timeout}, nil
}

// NewFromClient wraps an existing Redis client (used by tests with miniredis).
func NewFromClient(rdb *redis.Client) *CAS {
	return &CAS{rdb: rdb}
}

func (c *CAS) Close() error { return c.rdb.Close() }

func (c *CAS) Put(bytes []byte) (cid.Cid, error) {
	id, err := cidutil.CIDv1RawSHA256CID(bytes)
	if err != nil {
		return cid.Undef, err
	}
	if !id.Defined() {
		return cid.Undef, storage.ErrInvalidCID
	}

	ctx, cancel := c.ctx()
	defer cancel()

	// SETNX keeps stored objects immutable; a duplicate Put of identical
	// bytes is a no-op by construction of the key.
	if err := c.rdb.SetNX(ctx, keyPrefix+id.String(), bytes, 0).Err(); err != nil {
		return cid.Undef, err
	}
	return id, nil
}

func (c *CAS) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	ctx, cancel := c.ctx()
	defer cancel()

	b, err := c.rdb.Get(ctx, keyPrefix+id.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	got, err := cidutil.CIDv1RawSHA256CID(b)
	if err != nil {
		return nil, err
	}
	if got != id {
		return nil, storage.ErrCIDMismatch
	}
	return b, nil
}

func (c *CAS) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	ctx, cancel := c.ctx()
	defer cancel()

	n, err := c.rdb.Exists(ctx, keyPrefix+id.String()).Result()
	return err == nil && n > 0
}

// Walk scans the keyspace and visits every stored object.
func (c *CAS) Walk(fn func(id cid.Cid, bytes []byte) error) error {
	ctx, cancel := c.ctx()
	defer cancel()

	iter := c.rdb.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		id, err := cid.Decode(key[len(keyPrefix):])
		if err != nil || !id.Defined() {
			return storage.ErrInvalidCID
		}
		b, err := c.Get(id)
		if err != nil {
			return err
		}
		if err := fn(id, b); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (c *CAS) ctx() (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), c.Timeout)
}

var (
	_ storage.CAS      = (*CAS)(nil)
	_ storage.Iterable = (*CAS)(nil)
)
