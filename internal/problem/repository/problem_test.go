package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rishvic/jumpcoder/internal/common/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type countingProblemRepo struct {
	mu       sync.Mutex
	problems map[string]*Problem
	calls    map[string]int
}

func (f *countingProblemRepo) FindBySlug(ctx context.Context, slug string) (*Problem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[slug]++
	problem, ok := f.problems[slug]
	if !ok {
		return nil, ErrProblemNotFound
	}
	return problem, nil
}

func (f *countingProblemRepo) callCount(slug string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[slug]
}

func newCachedRepoEnv(t *testing.T) (*countingProblemRepo, ProblemRepository) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	redisCache, err := cache.NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("new redis cache: %v", err)
	}
	t.Cleanup(func() {
		_ = redisCache.Close()
	})

	inner := &countingProblemRepo{
		problems: map[string]*Problem{
			"two-sum": {ID: primitive.NewObjectID(), Slug: "two-sum"},
		},
		calls: make(map[string]int),
	}
	return inner, NewCachedProblemRepositoryWithTTL(inner, redisCache, time.Minute, 10*time.Second)
}

func TestCachedFindBySlugServesRepeatsFromCache(t *testing.T) {
	inner, repo := newCachedRepoEnv(t)

	first, err := repo.FindBySlug(context.Background(), "two-sum")
	if err != nil {
		t.Fatalf("first lookup: %v", err)
	}
	second, err := repo.FindBySlug(context.Background(), "two-sum")
	if err != nil {
		t.Fatalf("second lookup: %v", err)
	}

	if first.ID != second.ID || second.Slug != "two-sum" {
		t.Errorf("lookups disagree: %+v vs %+v", first, second)
	}
	if got := inner.callCount("two-sum"); got != 1 {
		t.Errorf("inner called %d times, want 1", got)
	}
}

func TestCachedFindBySlugNegativelyCachesMisses(t *testing.T) {
	inner, repo := newCachedRepoEnv(t)

	for i := 0; i < 2; i++ {
		if _, err := repo.FindBySlug(context.Background(), "nonexistent"); !errors.Is(err, ErrProblemNotFound) {
			t.Fatalf("lookup %d: got %v, want ErrProblemNotFound", i, err)
		}
	}
	if got := inner.callCount("nonexistent"); got != 1 {
		t.Errorf("inner called %d times, want 1", got)
	}
}

func TestCachedFindBySlugRejectsEmptySlug(t *testing.T) {
	_, repo := newCachedRepoEnv(t)
	if _, err := repo.FindBySlug(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty slug")
	}
}
