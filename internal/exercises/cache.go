package exercises

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coocood/freecache"
	log "github.com/sirupsen/logrus"
)

const (
	oneHour             = 60 * 60
	exerciseCacheExpire = oneHour * 12 // the catalog barely changes
)

type repo interface {
	Add(ctx context.Context, exercise Exercise) (*Exercise, error)
	Get(ctx context.Context, id int) (*Exercise, error)
	ListAll(ctx context.Context) ([]Exercise, error)
	Update(ctx context.Context, exercise *Exercise) error
	Delete(ctx context.Context, id int) error
}

// CachedRepo keeps exercises in an in-process freecache in front of the
// database repo. Lookups by id happen on every session evaluation, once
// per performed exercise, so they better be cheap.
type CachedRepo struct {
	repo  repo
	cache *freecache.Cache
}

func NewCachedRepo(r repo) *CachedRepo {
	megabyte := 1024 * 1024
	return &CachedRepo{
		repo:  r,
		cache: freecache.NewCache(10 * megabyte),
	}
}

func (cr *CachedRepo) Add(ctx context.Context, exercise Exercise) (*Exercise, error) {
	return cr.repo.Add(ctx, exercise)
}

func (cr *CachedRepo) Get(ctx context.Context, id int) (*Exercise, error) {
	cacheKey := []byte(fmt.Sprintf("exercise::%d", id))
	if cachedBytes, err := cr.cache.Get(cacheKey); err == nil {
		var e Exercise
		if err = json.Unmarshal(cachedBytes, &e); err == nil {
			return &e, nil
		} else {
			log.Errorf("failed to unmarshal cached exercise %d: %s", id, err)
		}
	}

	e, err := cr.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	eBytes, err := json.Marshal(e)
	if err != nil {
		log.Errorf("failed to marshal exercise %d for cache: %s", id, err)
		return e, nil
	}
	if err := cr.cache.Set(cacheKey, eBytes, exerciseCacheExpire); err != nil {
		log.Errorf("failed to write exercise cache for %d: %s", id, err)
	}

	return e, nil
}

func (cr *CachedRepo) ListAll(ctx context.Context) ([]Exercise, error) {
	return cr.repo.ListAll(ctx)
}

func (cr *CachedRepo) Update(ctx context.Context, exercise *Exercise) error {
	if err := cr.repo.Update(ctx, exercise); err != nil {
		return err
	}
	cr.evict(exercise.ID)
	return nil
}

func (cr *CachedRepo) Delete(ctx context.Context, id int) error {
	if err := cr.repo.Delete(ctx, id); err != nil {
		return err
	}
	cr.evict(id)
	return nil
}

func (cr *CachedRepo) evict(id int) {
	cr.cache.Del([]byte(fmt.Sprintf("exercise::%d", id)))
}
