package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"Gin_postgres_redis_library/models"

	"github.com/redis/go-redis/v9"
)

// BookCache 缓存目录列表查询结果。
// GetList 返回读取时的代数；未命中后查库，再用同一代数 SetList，
// 期间若有写操作失效缓存，写入的旧结果落在已作废的代数下。
type BookCache interface {
	GetList(ctx context.Context, q string) (books []models.Book, gen int64, hit bool, err error)
	SetList(ctx context.Context, gen int64, q string, books []models.Book) error
	Invalidate(ctx context.Context) error
}

type RedisBookCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisBookCache(rdb *redis.Client, ttl time.Duration) *RedisBookCache {
	return &RedisBookCache{rdb: rdb, ttl: ttl}
}

const genKey = "library:books:gen"

func listKey(gen int64, q string) string {
	return fmt.Sprintf("library:books:%d:%s", gen, strings.ToLower(strings.TrimSpace(q)))
}

// 失效只需让代数 +1，旧 key 自然过期
func (c *RedisBookCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.rdb.Get(ctx, genKey).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return gen, err
}

func (c *RedisBookCache) GetList(ctx context.Context, q string) ([]models.Book, int64, bool, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return nil, 0, false, err
	}
	b, err := c.rdb.Get(ctx, listKey(gen, q)).Bytes()
	if err == redis.Nil {
		return nil, gen, false, nil
	}
	if err != nil {
		return nil, gen, false, err
	}
	var books []models.Book
	if err := json.Unmarshal(b, &books); err != nil {
		return nil, gen, false, err
	}
	return books, gen, true, nil
}

// SetList 写入 gen 代；不重新读取代数
func (c *RedisBookCache) SetList(ctx context.Context, gen int64, q string, books []models.Book) error {
	b, err := json.Marshal(books)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, listKey(gen, q), b, c.ttl).Err()
}

func (c *RedisBookCache) Invalidate(ctx context.Context) error {
	return c.rdb.Incr(ctx, genKey).Err()
}

// NopCache 未配置 Redis 时使用
type NopCache struct{}

func (NopCache) GetList(context.Context, string) ([]models.Book, int64, bool, error) {
	return nil, 0, false, nil
}
func (NopCache) SetList(context.Context, int64, string, []models.Book) error { return nil }
func (NopCache) Invalidate(context.Context) error                            { return nil }
