package kvprovider

import (
	"context"
	"errors"
	"sync"
	"time"

	st "github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/settings"

	"github.com/redis/go-redis/v9"
)

// try to impose some sanity into redis usage
// one client per logical database, the DB option is never changed on a live client

type RedisProvider struct {
	opts    redis.Options
	mu      sync.Mutex
	clients map[Partition]*redis.Client
}

/*Initialise a redis provider from settings.*/
func NewRedisProvider() (*RedisProvider, error) {
	if len(st.Redis.Endpoint) == 0 {
		return nil, errors.New("no endpoint for redis")
	}
	timeout := time.Second * time.Duration(st.Redis.ConnectionTimeoutSeconds)
	return NewRedisProviderWithOptions(&redis.Options{
		Addr:         st.Redis.Endpoint,
		Username:     st.Redis.Username,
		Password:     st.Redis.Password,
		MaxRetries:   st.Redis.MaxRetries,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		PoolSize:     st.Redis.PoolSize,
	}), nil
}

// NewRedisProviderWithOptions uses opts as a template for every partition client, opts.DB is ignored.
func NewRedisProviderWithOptions(opts *redis.Options) *RedisProvider {
	return &RedisProvider{
		opts:    *opts,
		clients: map[Partition]*redis.Client{},
	}
}

func (prov *RedisProvider) client(p Partition) (*redis.Client, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	prov.mu.Lock()
	defer prov.mu.Unlock()
	c, ok := prov.clients[p]
	if !ok {
		opts := prov.opts
		opts.DB = int(p)
		c = redis.NewClient(&opts)
		prov.clients[p] = c
	}
	return c, nil
}

func (prov *RedisProvider) SetBit(ctx context.Context, p Partition, key string, offset uint64) error {
	c, err := prov.client(p)
	if err != nil {
		return err
	}
	if err := c.SetBit(ctx, key, int64(offset), 1).Err(); err != nil {
		return transient("setbit", key, err)
	}
	return nil
}

func (prov *RedisProvider) GetBit(ctx context.Context, p Partition, key string, offset uint64) (bool, error) {
	c, err := prov.client(p)
	if err != nil {
		return false, err
	}
	val, err := c.GetBit(ctx, key, int64(offset)).Result()
	if err != nil {
		return false, transient("getbit", key, err)
	}
	return val == 1, nil
}

func (prov *RedisProvider) BitCount(ctx context.Context, p Partition, key string) (uint64, error) {
	c, err := prov.client(p)
	if err != nil {
		return 0, err
	}
	val, err := c.BitCount(ctx, key, nil).Result()
	if err != nil {
		return 0, transient("bitcount", key, err)
	}
	return uint64(val), nil
}

func (prov *RedisProvider) HGet(ctx context.Context, p Partition, key, field string) ([]byte, error) {
	c, err := prov.client(p)
	if err != nil {
		return nil, err
	}
	val, err := c.HGet(ctx, key, field).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	} else if err != nil {
		return nil, transient("hget", key, err)
	}
	return val, nil
}

func (prov *RedisProvider) HSetWithTTL(ctx context.Context, p Partition, key, field string, value []byte, ttl time.Duration, mode ExpiryMode) error {
	c, err := prov.client(p)
	if err != nil {
		return err
	}
	_, err = c.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, field, value)
		if ttl > 0 {
			if mode == ExpireField {
				pipe.HExpire(ctx, key, ttl, field)
			} else {
				pipe.Expire(ctx, key, ttl)
			}
		}
		return nil
	})
	if err != nil {
		return transient("hset", key, err)
	}
	return nil
}

func (prov *RedisProvider) HDel(ctx context.Context, p Partition, key string, fields ...string) (int64, error) {
	c, err := prov.client(p)
	if err != nil {
		return 0, err
	}
	val, err := c.HDel(ctx, key, fields...).Result()
	if err != nil {
		return 0, transient("hdel", key, err)
	}
	return val, nil
}

func (prov *RedisProvider) GetBytes(ctx context.Context, p Partition, key string) ([]byte, error) {
	c, err := prov.client(p)
	if err != nil {
		return nil, err
	}
	val, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	} else if err != nil {
		return nil, transient("get", key, err)
	}
	return val, nil
}

func (prov *RedisProvider) Set(ctx context.Context, p Partition, key string, value []byte, expiration time.Duration) error {
	c, err := prov.client(p)
	if err != nil {
		return err
	}
	if err := c.Set(ctx, key, value, expiration).Err(); err != nil {
		return transient("set", key, err)
	}
	return nil
}

func (prov *RedisProvider) Del(ctx context.Context, p Partition, keys ...string) (int64, error) {
	c, err := prov.client(p)
	if err != nil {
		return 0, err
	}
	val, err := c.Del(ctx, keys...).Result()
	if err != nil {
		return 0, transient("del", "", err)
	}
	return val, nil
}

func (prov *RedisProvider) Exists(ctx context.Context, p Partition, key string) (bool, error) {
	c, err := prov.client(p)
	if err != nil {
		return false, err
	}
	val, err := c.Exists(ctx, key).Result()
	if err != nil {
		return false, transient("exists", key, err)
	}
	return val > 0, nil
}

func (prov *RedisProvider) TTL(ctx context.Context, p Partition, key string) (time.Duration, error) {
	c, err := prov.client(p)
	if err != nil {
		return 0, err
	}
	val, err := c.TTL(ctx, key).Result()
	if err != nil {
		return 0, transient("ttl", key, err)
	}
	return val, nil
}

func (prov *RedisProvider) Expire(ctx context.Context, p Partition, key string, ttl time.Duration) (bool, error) {
	c, err := prov.client(p)
	if err != nil {
		return false, err
	}
	val, err := c.Expire(ctx, key, ttl).Result()
	if err != nil {
		return false, transient("expire", key, err)
	}
	return val, nil
}

func (prov *RedisProvider) GetDBSize(ctx context.Context, p Partition) (int64, error) {
	c, err := prov.client(p)
	if err != nil {
		return 0, err
	}
	val, err := c.DBSize(ctx).Result()
	if err != nil {
		return 0, transient("dbsize", "", err)
	}
	return val, nil
}

func (prov *RedisProvider) Ping(ctx context.Context, p Partition) error {
	c, err := prov.client(p)
	if err != nil {
		return err
	}
	if err := c.Ping(ctx).Err(); err != nil {
		return transient("ping", "", err)
	}
	return nil
}

func (prov *RedisProvider) Close() error {
	prov.mu.Lock()
	defer prov.mu.Unlock()
	var errs []error
	for p, c := range prov.clients {
		errs = append(errs, c.Close())
		delete(prov.clients, p)
	}
	return errors.Join(errs...)
}
