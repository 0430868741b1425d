package memory

import (
	"context"
	_ "embed"
	"fmt"
	"math/rand"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"open-trivia-rounds/internal/domain"
)

// CategoryLoader fetches the category catalog from a backing source (trivia API, Postgres, static list).
type CategoryLoader interface {
	LoadCategories(ctx context.Context) ([]domain.Category, error)
}

// CategoryRepository caches the catalog with TTL to avoid hitting the source on every round.
type CategoryRepository struct {
	loader CategoryLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu        sync.RWMutex
	cached    []domain.Category
	expiresAt time.Time
}

func NewCategoryRepository(loader CategoryLoader, ttl time.Duration) *CategoryRepository {
	return &CategoryRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *CategoryRepository) Categories(ctx context.Context) ([]domain.Category, error) {
	if cats, ok := r.fresh(r.clock()); ok {
		return cats, nil
	}

	result, err, _ := r.sf.Do("categories", func() (interface{}, error) {
		now := r.clock()
		if cats, ok := r.fresh(now); ok {
			return cats, nil
		}

		cats, err := r.loader.LoadCategories(ctx)
		if err != nil {
			return nil, err
		}

		expiresAt := now.Add(r.ttlWithJitter())
		r.mu.Lock()
		r.cached = slices.Clone(cats)
		r.expiresAt = expiresAt
		r.mu.Unlock()
		return cats, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(result.([]domain.Category)), nil
}

func (r *CategoryRepository) fresh(now time.Time) ([]domain.Category, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.cached != nil && r.expiresAt.After(now) {
		return slices.Clone(r.cached), true
	}
	return nil, false
}

func (r *CategoryRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

//go:embed catalog.yaml
var catalogYAML []byte

// StaticCategoryLoader serves a fixed catalog (useful for tests/demos and offline play).
type StaticCategoryLoader struct {
	categories []domain.Category
}

func NewStaticCategoryLoader(categories []domain.Category) *StaticCategoryLoader {
	return &StaticCategoryLoader{categories: categories}
}

// DefaultCatalog parses the bundled trivia category list.
func DefaultCatalog() ([]domain.Category, error) {
	var doc struct {
		Categories []domain.Category `yaml:"categories"`
	}
	if err := yaml.Unmarshal(catalogYAML, &doc); err != nil {
		return nil, fmt.Errorf("parse bundled catalog: %w", err)
	}
	return doc.Categories, nil
}

func (l *StaticCategoryLoader) LoadCategories(context.Context) ([]domain.Category, error) {
	if len(l.categories) == 0 {
		return nil, &domain.FetchError{Op: "categories", Err: domain.ErrNoCategoriesAvailable}
	}
	return slices.Clone(l.categories), nil
}
