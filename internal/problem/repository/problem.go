package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rishvic/jumpcoder/internal/common/cache"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	// CollectionName is the metadata store collection holding problems.
	CollectionName = "problems"

	defaultProblemCacheTTL      = 30 * time.Minute
	defaultProblemCacheEmptyTTL = 5 * time.Minute
	problemCacheKeyPrefix       = "problem:slug:"
)

var (
	ErrProblemNotFound = errors.New("problem not found")
)

// Problem is a metadata store document describing one problem.
// This pipeline only ever reads problems.
type Problem struct {
	ID      primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Slug    string              `bson:"slug" json:"slug"`
	Contest *primitive.ObjectID `bson:"contest" json:"contest,omitempty"`
}

// ProblemRepository defines problem lookup interfaces.
type ProblemRepository interface {
	FindBySlug(ctx context.Context, slug string) (*Problem, error)
}

// MongoProblemRepository implements ProblemRepository with MongoDB.
type MongoProblemRepository struct {
	coll *mongo.Collection
}

// NewMongoProblemRepository creates a problem repository over the given database.
func NewMongoProblemRepository(db *mongo.Database) *MongoProblemRepository {
	return &MongoProblemRepository{coll: db.Collection(CollectionName)}
}

// FindBySlug retrieves a problem by its slug.
func (r *MongoProblemRepository) FindBySlug(ctx context.Context, slug string) (*Problem, error) {
	if slug == "" {
		return nil, errors.New("slug is required")
	}
	problem := &Problem{}
	if err := r.coll.FindOne(ctx, bson.M{"slug": slug}).Decode(problem); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrProblemNotFound
		}
		return nil, err
	}
	return problem, nil
}

// CachedProblemRepository wraps a ProblemRepository with a read-through cache.
// Problems are immutable for this pipeline, so entries only ever expire.
type CachedProblemRepository struct {
	inner    ProblemRepository
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewCachedProblemRepository creates a cached problem repository with default TTLs.
func NewCachedProblemRepository(inner ProblemRepository, cacheClient cache.Cache) ProblemRepository {
	return NewCachedProblemRepositoryWithTTL(inner, cacheClient, defaultProblemCacheTTL, defaultProblemCacheEmptyTTL)
}

// NewCachedProblemRepositoryWithTTL creates a cached problem repository with custom TTLs.
func NewCachedProblemRepositoryWithTTL(inner ProblemRepository, cacheClient cache.Cache, ttl, emptyTTL time.Duration) ProblemRepository {
	if ttl <= 0 {
		ttl = defaultProblemCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultProblemCacheEmptyTTL
	}
	return &CachedProblemRepository{
		inner:    inner,
		cache:    cacheClient,
		ttl:      ttl,
		emptyTTL: emptyTTL,
	}
}

// FindBySlug retrieves a problem by slug, serving repeated lookups from cache.
// Absent slugs are cached negatively under the shorter empty TTL.
func (r *CachedProblemRepository) FindBySlug(ctx context.Context, slug string) (*Problem, error) {
	if slug == "" {
		return nil, errors.New("slug is required")
	}
	problem, err := cache.GetWithCached[*Problem](
		ctx,
		r.cache,
		problemCacheKey(slug),
		cache.JitterTTL(r.ttl),
		cache.JitterTTL(r.emptyTTL),
		func(problem *Problem) bool { return problem == nil },
		marshalProblem,
		unmarshalProblem,
		func(ctx context.Context) (*Problem, error) {
			problem, err := r.inner.FindBySlug(ctx, slug)
			if err != nil {
				if errors.Is(err, ErrProblemNotFound) {
					return nil, nil
				}
				return nil, err
			}
			return problem, nil
		},
	)
	if err != nil {
		return nil, err
	}
	if problem == nil {
		return nil, ErrProblemNotFound
	}
	return problem, nil
}

func problemCacheKey(slug string) string {
	return problemCacheKeyPrefix + slug
}

func marshalProblem(problem *Problem) string {
	if problem == nil {
		return ""
	}
	data, err := json.Marshal(problem)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalProblem(data string) (*Problem, error) {
	if data == "" || data == cache.NullCacheValue {
		return nil, nil
	}
	var problem Problem
	if err := json.Unmarshal([]byte(data), &problem); err != nil {
		return nil, err
	}
	return &problem, nil
}
