package kvprovider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Partition selects a redis logical database. Every store call carries its own partition so
// concurrent callers never race on shared connection state.
type Partition int

const (
	MinPartition Partition = 0
	MaxPartition Partition = 15
)

// TTL results for keys without an expiry and keys that do not exist, matching redis.
const (
	NoExpiry   time.Duration = -1
	KeyMissing time.Duration = -2
)

// ExpiryMode controls what a cache ttl applies to.
type ExpiryMode int

const (
	// ExpireKey sets the ttl on the whole hash, refreshed on every write.
	ExpireKey ExpiryMode = iota
	// ExpireField sets the ttl on the written hash field only (HEXPIRE).
	ExpireField
)

var ErrInvalidPartition = errors.New("invalid partition")

// ErrTransient marks a failed store call that may succeed if retried.
var ErrTransient = errors.New("transient store failure")

// TransientError records which store operation failed.
type TransientError struct {
	Op  string
	Key string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

func (e *TransientError) Unwrap() []error {
	return []error{ErrTransient, e.Err}
}

func transient(op, key string, err error) error {
	return &TransientError{Op: op, Key: key, Err: err}
}

func (p Partition) Validate() error {
	if p < MinPartition || p > MaxPartition {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidPartition, p, MinPartition, MaxPartition)
	}
	return nil
}

// BitStore reads and sets single bits of named bit arrays. Absent keys read as all zero.
type BitStore interface {
	SetBit(ctx context.Context, p Partition, key string, offset uint64) error
	GetBit(ctx context.Context, p Partition, key string, offset uint64) (bool, error)
	BitCount(ctx context.Context, p Partition, key string) (uint64, error)
}

// HashStore holds cache entries as fields of named hashes.
type HashStore interface {
	// HGet returns nil without error when the field is absent.
	HGet(ctx context.Context, p Partition, key, field string) ([]byte, error)
	HSetWithTTL(ctx context.Context, p Partition, key, field string, value []byte, ttl time.Duration, mode ExpiryMode) error
	HDel(ctx context.Context, p Partition, key string, fields ...string) (int64, error)
}

// A KVInterface provides a fast key-value store. This is intended so we can write unit tests without connecting
// to redis.
type KVInterface interface {
	BitStore
	HashStore
	// GetBytes returns nil without error when the key is absent.
	GetBytes(ctx context.Context, p Partition, key string) ([]byte, error)
	Set(ctx context.Context, p Partition, key string, value []byte, expiration time.Duration) error
	/*Delete any number of keys and return the number of elements that were deleted and any errors.*/
	Del(ctx context.Context, p Partition, keys ...string) (int64, error)
	Exists(ctx context.Context, p Partition, key string) (bool, error)
	TTL(ctx context.Context, p Partition, key string) (time.Duration, error)
	Expire(ctx context.Context, p Partition, key string, ttl time.Duration) (bool, error)
	GetDBSize(ctx context.Context, p Partition) (int64, error)
	Ping(ctx context.Context, p Partition) error
	Close() error
}
