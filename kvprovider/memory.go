package kvprovider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
)

var errWrongType = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")

type memValue struct {
	val     []byte
	expires time.Time
}

type memHash struct {
	fields  map[string]memValue
	expires time.Time
}

type memPartition struct {
	bits    map[string]*roaring.Bitmap
	strings map[string]memValue
	hashes  map[string]*memHash
}

// MemoryProvider is an in process KVInterface with redis semantics, used by unit tests.
type MemoryProvider struct {
	mu         sync.Mutex
	partitions map[Partition]*memPartition
	// Now is the clock used for expiry.
	Now func() time.Time
	// FailWith makes every call fail with a transient error wrapping it.
	FailWith error
	// Calls counts operations by name.
	Calls map[string]int
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		partitions: map[Partition]*memPartition{},
		Now:        time.Now,
		Calls:      map[string]int{},
	}
}

func expired(expires, now time.Time) bool {
	return !expires.IsZero() && !now.Before(expires)
}

// enter validates the call and returns the partition with expired entries removed for key.
// caller must hold mu.
func (prov *MemoryProvider) enter(op string, p Partition, key string) (*memPartition, error) {
	prov.Calls[op] += 1
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if prov.FailWith != nil {
		return nil, transient(op, key, prov.FailWith)
	}
	part, ok := prov.partitions[p]
	if !ok {
		part = &memPartition{
			bits:    map[string]*roaring.Bitmap{},
			strings: map[string]memValue{},
			hashes:  map[string]*memHash{},
		}
		prov.partitions[p] = part
	}
	now := prov.Now()
	if v, ok := part.strings[key]; ok && expired(v.expires, now) {
		delete(part.strings, key)
	}
	if h, ok := part.hashes[key]; ok {
		if expired(h.expires, now) {
			delete(part.hashes, key)
		} else {
			for f, v := range h.fields {
				if expired(v.expires, now) {
					delete(h.fields, f)
				}
			}
			if len(h.fields) == 0 {
				delete(part.hashes, key)
			}
		}
	}
	return part, nil
}

// kind returns the type held at key, or an empty string when the key is absent.
func (part *memPartition) kind(key string) string {
	if _, ok := part.bits[key]; ok {
		return "bits"
	}
	if _, ok := part.strings[key]; ok {
		return "string"
	}
	if _, ok := part.hashes[key]; ok {
		return "hash"
	}
	return ""
}

func (part *memPartition) holdsOther(key string, want string) bool {
	held := part.kind(key)
	return held != "" && held != want
}

func checkOffset(offset uint64) error {
	if offset > math.MaxUint32 {
		return fmt.Errorf("bit offset %d is out of range", offset)
	}
	return nil
}

func (prov *MemoryProvider) SetBit(ctx context.Context, p Partition, key string, offset uint64) error {
	prov.mu.Lock()
	defer prov.mu.Unlock()
	part, err := prov.enter("setbit", p, key)
	if err != nil {
		return err
	}
	if err := checkOffset(offset); err != nil {
		return err
	}
	if part.holdsOther(key, "bits") {
		return errWrongType
	}
	bm, ok := part.bits[key]
	if !ok {
		bm = roaring.New()
		part.bits[key] = bm
	}
	bm.Add(uint32(offset))
	return nil
}

func (prov *MemoryProvider) GetBit(ctx context.Context, p Partition, key string, offset uint64) (bool, error) {
	prov.mu.Lock()
	defer prov.mu.Unlock()
	part, err := prov.enter("getbit", p, key)
	if err != nil {
		return false, err
	}
	if err := checkOffset(offset); err != nil {
		return false, err
	}
	if part.holdsOther(key, "bits") {
		return false, errWrongType
	}
	bm, ok := part.bits[key]
	if !ok {
		return false, nil
	}
	return bm.Contains(uint32(offset)), nil
}

func (prov *MemoryProvider) BitCount(ctx context.Context, p Partition, key string) (uint64, error) {
	prov.mu.Lock()
	defer prov.mu.Unlock()
	part, err := prov.enter("bitcount", p, key)
	if err != nil {
		return 0, err
	}
	bm, ok := part.bits[key]
	if !ok {
		return 0, nil
	}
	return bm.GetCardinality(), nil
}

func (prov *MemoryProvider) HGet(ctx context.Context, p Partition, key, field string) ([]byte, error) {
	prov.mu.Lock()
	defer prov.mu.Unlock()
	part, err := prov.enter("hget", p, key)
	if err != nil {
		return nil, err
	}
	if part.holdsOther(key, "hash") {
		return nil, errWrongType
	}
	h, ok := part.hashes[key]
	if !ok {
		return nil, nil
	}
	v, ok := h.fields[field]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v.val...), nil
}

func (prov *MemoryProvider) HSetWithTTL(ctx context.Context, p Partition, key, field string, value []byte, ttl time.Duration, mode ExpiryMode) error {
	prov.mu.Lock()
	defer prov.mu.Unlock()
	part, err := prov.enter("hset", p, key)
	if err != nil {
		return err
	}
	if part.holdsOther(key, "hash") {
		return errWrongType
	}
	h, ok := part.hashes[key]
	if !ok {
		h = &memHash{fields: map[string]memValue{}}
		part.hashes[key] = h
	}
	v := memValue{val: append([]byte(nil), value...)}
	if ttl > 0 {
		expires := prov.Now().Add(ttl)
		if mode == ExpireField {
			v.expires = expires
		} else {
			h.expires = expires
		}
	}
	h.fields[field] = v
	return nil
}

func (prov *MemoryProvider) HDel(ctx context.Context, p Partition, key string, fields ...string) (int64, error) {
	prov.mu.Lock()
	defer prov.mu.Unlock()
	part, err := prov.enter("hdel", p, key)
	if err != nil {
		return 0, err
	}
	h, ok := part.hashes[key]
	if !ok {
		return 0, nil
	}
	var deleted int64
	for _, f := range fields {
		if _, ok := h.fields[f]; ok {
			delete(h.fields, f)
			deleted += 1
		}
	}
	if len(h.fields) == 0 {
		delete(part.hashes, key)
	}
	return deleted, nil
}

func (prov *MemoryProvider) GetBytes(ctx context.Context, p Partition, key string) ([]byte, error) {
	prov.mu.Lock()
	defer prov.mu.Unlock()
	part, err := prov.enter("get", p, key)
	if err != nil {
		return nil, err
	}
	if part.holdsOther(key, "string") {
		return nil, errWrongType
	}
	v, ok := part.strings[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v.val...), nil
}

func (prov *MemoryProvider) Set(ctx context.Context, p Partition, key string, value []byte, expiration time.Duration) error {
	prov.mu.Lock()
	defer prov.mu.Unlock()
	part, err := prov.enter("set", p, key)
	if err != nil {
		return err
	}
	// SET replaces whatever type the key held
	delete(part.bits, key)
	delete(part.hashes, key)
	v := memValue{val: append([]byte(nil), value...)}
	if expiration > 0 {
		v.expires = prov.Now().Add(expiration)
	}
	part.strings[key] = v
	return nil
}

func (prov *MemoryProvider) Del(ctx context.Context, p Partition, keys ...string) (int64, error) {
	prov.mu.Lock()
	defer prov.mu.Unlock()
	var deletedKeys int64
	for _, k := range keys {
		part, err := prov.enter("del", p, k)
		if err != nil {
			return deletedKeys, err
		}
		if part.delete(k) {
			deletedKeys += 1
		}
	}
	return deletedKeys, nil
}

func (part *memPartition) delete(key string) bool {
	held := part.kind(key)
	delete(part.bits, key)
	delete(part.strings, key)
	delete(part.hashes, key)
	return held != ""
}

func (prov *MemoryProvider) Exists(ctx context.Context, p Partition, key string) (bool, error) {
	prov.mu.Lock()
	defer prov.mu.Unlock()
	part, err := prov.enter("exists", p, key)
	if err != nil {
		return false, err
	}
	return part.kind(key) != "", nil
}

func (prov *MemoryProvider) TTL(ctx context.Context, p Partition, key string) (time.Duration, error) {
	prov.mu.Lock()
	defer prov.mu.Unlock()
	part, err := prov.enter("ttl", p, key)
	if err != nil {
		return 0, err
	}
	var expires time.Time
	if v, ok := part.strings[key]; ok {
		expires = v.expires
	} else if h, ok := part.hashes[key]; ok {
		expires = h.expires
	} else if _, ok := part.bits[key]; !ok {
		return KeyMissing, nil
	}
	if expires.IsZero() {
		return NoExpiry, nil
	}
	// redis reports whole seconds
	return expires.Sub(prov.Now()).Truncate(time.Second), nil
}

func (prov *MemoryProvider) Expire(ctx context.Context, p Partition, key string, ttl time.Duration) (bool, error) {
	prov.mu.Lock()
	defer prov.mu.Unlock()
	part, err := prov.enter("expire", p, key)
	if err != nil {
		return false, err
	}
	expires := prov.Now().Add(ttl)
	if v, ok := part.strings[key]; ok {
		v.expires = expires
		part.strings[key] = v
		return true, nil
	}
	if h, ok := part.hashes[key]; ok {
		h.expires = expires
		return true, nil
	}
	// bit arrays are kept for the life of the provider
	_, ok := part.bits[key]
	return ok, nil
}

func (prov *MemoryProvider) GetDBSize(ctx context.Context, p Partition) (int64, error) {
	prov.mu.Lock()
	defer prov.mu.Unlock()
	part, err := prov.enter("dbsize", p, "")
	if err != nil {
		return 0, err
	}
	return int64(len(part.bits) + len(part.strings) + len(part.hashes)), nil
}

func (prov *MemoryProvider) Ping(ctx context.Context, p Partition) error {
	prov.mu.Lock()
	defer prov.mu.Unlock()
	_, err := prov.enter("ping", p, "")
	return err
}

func (prov *MemoryProvider) Close() error {
	return nil
}

// CallCount returns how many times op has been called.
func (prov *MemoryProvider) CallCount(op string) int {
	prov.mu.Lock()
	defer prov.mu.Unlock()
	return prov.Calls[op]
}

// SetFailure makes subsequent calls fail (nil restores normal operation).
func (prov *MemoryProvider) SetFailure(err error) {
	prov.mu.Lock()
	defer prov.mu.Unlock()
	prov.FailWith = err
}
