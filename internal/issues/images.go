package issues

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/EmpoweredVote/meresahar/internal/metrics"
)

// ImageCache is an optional byte cache in front of the store. Get reports a
// miss with ok=false and a nil error.
type ImageCache interface {
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// ImageService stores and serves slot images independently of listings.
type ImageService struct {
	store Store
	cache ImageCache
	ttl   time.Duration

	// epoch counts invalidations. A fetch only fills the cache if no write
	// landed while it was reading the store.
	mu    sync.Mutex
	epoch uint64
}

// NewImageService builds the service. cache may be nil.
func NewImageService(store Store, cache ImageCache, ttl time.Duration) *ImageService {
	return &ImageService{store: store, cache: cache, ttl: ttl}
}

func imageKey(id int64, slot Slot) string {
	return fmt.Sprintf("issue:%d:image:%s", id, slot)
}

// StoreImage writes bytes into the slot's column. Whether that is a first
// write or a replacement is the caller's business.
func (s *ImageService) StoreImage(ctx context.Context, id int64, slot Slot, data []byte) error {
	if _, err := ParseSlot(string(slot)); err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: empty image", ErrValidation)
	}
	if err := s.store.SetImage(ctx, id, slot, data); err != nil {
		return err
	}
	s.invalidate(ctx, id, slot)
	return nil
}

// FetchImage returns the raw bytes in a slot, or ErrNotFound when the record
// or the slot is empty.
func (s *ImageService) FetchImage(ctx context.Context, id int64, slot Slot) ([]byte, error) {
	if _, err := ParseSlot(string(slot)); err != nil {
		return nil, err
	}

	key := imageKey(id, slot)
	var epoch uint64
	if s.cache != nil {
		s.mu.Lock()
		epoch = s.epoch
		s.mu.Unlock()

		data, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			log.Printf("[images] cache get %s: %v", key, err)
		} else if ok {
			metrics.ImageFetches.WithLabelValues(string(slot), "cache").Inc()
			return data, nil
		}
	}

	data, err := s.store.Image(ctx, id, slot)
	switch {
	case errors.Is(err, ErrNotFound):
		metrics.ImageFetches.WithLabelValues(string(slot), "missing").Inc()
		return nil, err
	case err != nil:
		metrics.ImageFetches.WithLabelValues(string(slot), "error").Inc()
		return nil, err
	}
	metrics.ImageFetches.WithLabelValues(string(slot), "store").Inc()

	if s.cache != nil {
		s.fill(ctx, key, data, epoch)
	}
	return data, nil
}

func (s *ImageService) fill(ctx context.Context, key string, data []byte, epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
		log.Printf("[images] cache set %s: %v", key, err)
	}
}

func (s *ImageService) invalidate(ctx context.Context, id int64, slot Slot) {
	if s.cache == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	if err := s.cache.Delete(ctx, imageKey(id, slot)); err != nil {
		log.Printf("[images] cache delete issue %d %s: %v", id, slot, err)
	}
}
