package business

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wolfman30/nailspa-booking/pkg/logging"
)

// CachedStore is a Redis read-through cache in front of another Store.
// Hours and catalog reads sit on the availability hot path; writes go to
// the backing store first and then drop the cached copy.
type CachedStore struct {
	next   Store
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewCachedStore wraps next. A nil redis client disables caching.
func NewCachedStore(next Store, redisClient *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedStore {
	if next == nil {
		panic("business: backing store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedStore{next: next, redis: redisClient, ttl: ttl, logger: logger}
}

func hoursKey(businessID string) string    { return fmt.Sprintf("business:hours:%s", businessID) }
func servicesKey(businessID string) string { return fmt.Sprintf("business:services:%s", businessID) }
func profileKey(businessID string) string  { return fmt.Sprintf("business:profile:%s", businessID) }

func (s *CachedStore) GetBusiness(ctx context.Context, id string) (*Business, error) {
	var b Business
	if s.load(ctx, profileKey(id), &b) {
		return &b, nil
	}
	found, err := s.next.GetBusiness(ctx, id)
	if err != nil {
		return nil, err
	}
	s.save(ctx, profileKey(id), found)
	return found, nil
}

func (s *CachedStore) FindBusinessByPhone(ctx context.Context, phone string) (*Business, error) {
	return s.next.FindBusinessByPhone(ctx, phone)
}

func (s *CachedStore) SaveBusiness(ctx context.Context, b Business) error {
	if err := s.next.SaveBusiness(ctx, b); err != nil {
		return err
	}
	s.invalidate(ctx, profileKey(b.ID))
	return nil
}

func (s *CachedStore) ListHours(ctx context.Context, businessID string) (WeeklyHours, error) {
	var hours WeeklyHours
	if s.load(ctx, hoursKey(businessID), &hours) {
		return hours, nil
	}
	hours, err := s.next.ListHours(ctx, businessID)
	if err != nil {
		return nil, err
	}
	s.save(ctx, hoursKey(businessID), hours)
	return hours, nil
}

func (s *CachedStore) SetHours(ctx context.Context, businessID string, hours WeeklyHours) error {
	if err := s.next.SetHours(ctx, businessID, hours); err != nil {
		return err
	}
	s.invalidate(ctx, hoursKey(businessID))
	return nil
}

func (s *CachedStore) ListServices(ctx context.Context, businessID string) ([]Service, error) {
	var services []Service
	if s.load(ctx, servicesKey(businessID), &services) {
		return services, nil
	}
	services, err := s.next.ListServices(ctx, businessID)
	if err != nil {
		return nil, err
	}
	s.save(ctx, servicesKey(businessID), services)
	return services, nil
}

func (s *CachedStore) SaveService(ctx context.Context, svc Service) (*Service, error) {
	saved, err := s.next.SaveService(ctx, svc)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, servicesKey(svc.BusinessID))
	return saved, nil
}

// load reports a cache hit. Redis failures degrade to a miss.
func (s *CachedStore) load(ctx context.Context, key string, dst any) bool {
	if s.redis == nil {
		return false
	}
	data, err := s.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		s.logger.Warn("business cache read failed", "key", key, "error", err)
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		s.logger.Warn("business cache entry unreadable", "key", key, "error", err)
		return false
	}
	return true
}

func (s *CachedStore) save(ctx context.Context, key string, value any) {
	if s.redis == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("business cache marshal failed", "key", key, "error", err)
		return
	}
	if err := s.redis.Set(ctx, key, data, s.ttl).Err(); err != nil {
		s.logger.Warn("business cache write failed", "key", key, "error", err)
	}
}

func (s *CachedStore) invalidate(ctx context.Context, key string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, key).Err(); err != nil {
		s.logger.Warn("business cache invalidate failed", "key", key, "error", err)
	}
}
