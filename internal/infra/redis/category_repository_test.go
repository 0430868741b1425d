package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"open-trivia-rounds/internal/domain"
	"open-trivia-rounds/internal/infra/memory"
)

func TestCategoryRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)

	loader := &countingLoader{
		CategoryLoader: memory.NewStaticCategoryLoader([]domain.Category{
			{ID: 23, Name: "History"},
			{ID: 9, Name: "General Knowledge"},
		}),
	}
	repo := NewCategoryRepository(client, loader, time.Minute, "")

	cats, err := repo.Categories(context.Background())
	if err != nil {
		t.Fatalf("categories: %v", err)
	}
	if len(cats) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(cats))
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if got := mr.HGet("trivia:categories", "23"); got != "History" {
		t.Fatalf("expected hash field 23=History, got %q", got)
	}
	if mr.TTL("trivia:categories") < time.Minute {
		t.Fatalf("expected ttl of at least a minute, got %v", mr.TTL("trivia:categories"))
	}

	// Second call should hit cache, loader not incremented.
	cats, err = repo.Categories(context.Background())
	if err != nil {
		t.Fatalf("categories 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	if cats[0].ID != 9 || cats[1].ID != 23 {
		t.Fatalf("expected categories sorted by id, got %+v", cats)
	}
}

func TestCategoryRepositoryReloadsAfterExpiry(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{CategoryLoader: memory.NewStaticCategoryLoader([]domain.Category{{ID: 9, Name: "General Knowledge"}})}
	repo := NewCategoryRepository(newClient(mr), loader, time.Minute, "test")

	if _, err := repo.Categories(context.Background()); err != nil {
		t.Fatalf("categories: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := repo.Categories(context.Background()); err != nil {
		t.Fatalf("categories: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected reload after expiry, loader calls=%d", loader.calls)
	}
}

type countingLoader struct {
	memory.CategoryLoader
	calls int
}

func (l *countingLoader) LoadCategories(ctx context.Context) ([]domain.Category, error) {
	l.calls++
	return l.CategoryLoader.LoadCategories(ctx)
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
