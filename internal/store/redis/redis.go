// Package redis implements store.Backend on Redis. Each secret is a hash at
// <prefix>secret:<id>; a sorted set at <prefix>expiry indexes ids by expiry in
// Unix milliseconds so purge can find expired entries without scanning.
// Keys carry no native TTL: expiry is enforced by the lifecycle layer so that
// lazy deletion and purge account for every removal.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/haukened/vanish/internal/domain"
	"github.com/haukened/vanish/internal/store"
)

var _ store.Backend = (*Backend)(nil)

// DefaultPrefix namespaces every key the backend writes.
const DefaultPrefix = "vanish:"

// maxTxRetries bounds optimistic retries of a contended consume.
const maxTxRetries = 64

const (
	fieldCiphertext = "ct"
	fieldNonce      = "nonce"
	fieldExpires    = "exp"
	fieldMaxViews   = "max"
	fieldViews      = "views"
	fieldCreated    = "created"
)

// insertScript writes the hash and its expiry index entry, refusing to
// overwrite an existing id.
var insertScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'ct', ARGV[1], 'nonce', ARGV[2], 'exp', ARGV[3], 'max', ARGV[4], 'views', ARGV[5], 'created', ARGV[6])
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[7])
return 1
`)

// Backend stores secrets in Redis. It is safe for concurrent use.
type Backend struct {
	rdb    redis.UniversalClient
	prefix string
}

// New returns a Backend using rdb. An empty prefix uses DefaultPrefix.
func New(rdb redis.UniversalClient, prefix string) *Backend {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Backend{rdb: rdb, prefix: prefix}
}

func (b *Backend) secretKey(id domain.SecretID) string { return b.prefix + "secret:" + id.String() }
func (b *Backend) expiryKey() string                   { return b.prefix + "expiry" }

func (b *Backend) Insert(ctx context.Context, rec domain.SecretRecord) error {
	exp := rec.ExpiresAt.UnixMilli()
	ok, err := insertScript.Run(ctx, b.rdb,
		[]string{b.secretKey(rec.ID), b.expiryKey()},
		rec.Ciphertext, rec.Nonce, exp, rec.MaxViews, rec.ViewCount, rec.CreatedAt.UnixMilli(), rec.ID.String(),
	).Int()
	if err != nil {
		return domain.Storage("redis.insert", err)
	}
	if ok == 0 {
		return domain.Storage("redis.insert", domain.ErrIDCollision)
	}
	return nil
}

// Consume watches the secret key, runs fn on the loaded record and applies
// its decision in a MULTI/EXEC block. A concurrent writer aborts the EXEC
// and the whole read-decide-write cycle is retried.
func (b *Backend) Consume(ctx context.Context, id domain.SecretID, fn store.ConsumeFunc) error {
	key := b.secretKey(id)
	var aborted bool
	txf := func(tx *redis.Tx) error {
		aborted = false
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return domain.Storage("redis.consume", err)
		}
		if len(fields) == 0 {
			return domain.ErrNotFound
		}
		rec, err := decode(id, fields)
		if err != nil {
			return domain.Storage("redis.consume", err)
		}
		m, err := fn(rec)
		if err != nil {
			aborted = true
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			switch m {
			case store.MutationIncrement:
				pipe.HIncrBy(ctx, key, fieldViews, 1)
			case store.MutationDelete:
				b.remove(ctx, pipe, id)
			default:
				return errors.New("unknown mutation " + m.String())
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := b.rdb.Watch(ctx, txf, key)
		switch {
		case err == nil, aborted:
			return err
		case errors.Is(err, redis.TxFailedErr):
			continue
		case isClassified(err):
			return err
		}
		return domain.Storage("redis.consume", err)
	}
	return domain.Storage("redis.consume", store.ErrConflict)
}

// DeleteExpired removes up to limit ids scored before the cutoff. The count is
// taken from DEL so records a concurrent consume already removed are not
// counted twice.
func (b *Backend) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	rng := &redis.ZRangeBy{Min: "-inf", Max: "(" + strconv.FormatInt(before.UnixMilli(), 10)}
	if limit > 0 {
		rng.Count = int64(limit)
	}
	members, err := b.rdb.ZRangeByScore(ctx, b.expiryKey(), rng).Result()
	if err != nil {
		return 0, domain.Storage("redis.delete_expired", err)
	}
	if len(members) == 0 {
		return 0, nil
	}
	ids := make([]domain.SecretID, len(members))
	for i, m := range members {
		ids[i] = domain.SecretID(m)
	}
	var del *redis.IntCmd
	_, err = b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = b.remove(ctx, pipe, ids...)
		return nil
	})
	if err != nil {
		return 0, domain.Storage("redis.delete_expired", err)
	}
	return int(del.Val()), nil
}

func (b *Backend) Ping(ctx context.Context) error {
	return domain.Storage("redis.ping", b.rdb.Ping(ctx).Err())
}

// remove queues deletion of the hashes and their index entries. Lazy
// deletion and purge both go through it.
func (b *Backend) remove(ctx context.Context, pipe redis.Pipeliner, ids ...domain.SecretID) *redis.IntCmd {
	keys := make([]string, len(ids))
	members := make([]any, len(ids))
	for i, id := range ids {
		keys[i] = b.secretKey(id)
		members[i] = id.String()
	}
	del := pipe.Del(ctx, keys...)
	pipe.ZRem(ctx, b.expiryKey(), members...)
	return del
}

func decode(id domain.SecretID, f map[string]string) (domain.SecretRecord, error) {
	ints := make(map[string]int64, 4)
	for _, name := range []string{fieldExpires, fieldMaxViews, fieldViews, fieldCreated} {
		v, err := strconv.ParseInt(f[name], 10, 64)
		if err != nil {
			return domain.SecretRecord{}, fmt.Errorf("field %s: %w", name, err)
		}
		ints[name] = v
	}
	return domain.SecretRecord{
		ID:         id,
		Ciphertext: []byte(f[fieldCiphertext]),
		Nonce:      []byte(f[fieldNonce]),
		ExpiresAt:  time.UnixMilli(ints[fieldExpires]).UTC(),
		MaxViews:   int(ints[fieldMaxViews]),
		ViewCount:  int(ints[fieldViews]),
		CreatedAt:  time.UnixMilli(ints[fieldCreated]).UTC(),
	}, nil
}

// isClassified reports whether err already belongs to the error taxonomy.
func isClassified(err error) bool {
	var de *domain.Error
	return errors.As(err, &de) || errors.Is(err, domain.ErrNotFound)
}
