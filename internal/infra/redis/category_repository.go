package redis

import (
	"context"
	"math/rand"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"open-trivia-rounds/internal/domain"
	"open-trivia-rounds/internal/infra/memory"
)

// CategoryRepository caches the catalog in Redis and falls back to a loader on cache miss.
// Categories are stored as: HSET {prefix}:categories {id} {name}
type CategoryRepository struct {
	client redis.UniversalClient
	loader memory.CategoryLoader
	ttl    time.Duration
	key    string
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewCategoryRepository(client redis.UniversalClient, loader memory.CategoryLoader, ttl time.Duration, prefix string) *CategoryRepository {
	if prefix == "" {
		prefix = "trivia"
	}
	return &CategoryRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		key:    prefix + ":categories",
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *CategoryRepository) Categories(ctx context.Context) ([]domain.Category, error) {
	if cats, ok := r.cached(ctx); ok {
		return cats, nil
	}

	result, err, _ := r.sf.Do(r.key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if cats, ok := r.cached(ctx); ok {
			return cats, nil
		}

		cats, err := r.loader.LoadCategories(ctx)
		if err != nil {
			return nil, err
		}

		ttl := r.ttlWithJitter()
		pipe := r.client.Pipeline()
		pipe.Del(ctx, r.key)
		for _, c := range cats {
			pipe.HSet(ctx, r.key, strconv.Itoa(c.ID), c.Name)
		}
		if ttl > 0 {
			pipe.Expire(ctx, r.key, ttl)
		}
		_, _ = pipe.Exec(ctx)

		return cats, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(result.([]domain.Category)), nil
}

func (r *CategoryRepository) cached(ctx context.Context) ([]domain.Category, bool) {
	m, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil || len(m) == 0 {
		return nil, false
	}
	cats := make([]domain.Category, 0, len(m))
	for field, name := range m {
		id, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		cats = append(cats, domain.Category{ID: id, Name: name})
	}
	slices.SortFunc(cats, func(a, b domain.Category) int { return a.ID - b.ID })
	return cats, len(cats) > 0
}

func (r *CategoryRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
