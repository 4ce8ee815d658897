package business

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the per-business configuration store: profile, weekly hours
// and service catalog.
type Store interface {
	GetBusiness(ctx context.Context, id string) (*Business, error)
	FindBusinessByPhone(ctx context.Context, phone string) (*Business, error)
	SaveBusiness(ctx context.Context, b Business) error
	ListHours(ctx context.Context, businessID string) (WeeklyHours, error)
	SetHours(ctx context.Context, businessID string, hours WeeklyHours) error
	ListServices(ctx context.Context, businessID string) ([]Service, error)
	SaveService(ctx context.Context, svc Service) (*Service, error)
}

// HoursForDay reads a single weekday from s. A missing row is reported as
// nil, which callers treat as closed.
func HoursForDay(ctx context.Context, s Store, businessID string, day time.Weekday) (*DayHours, error) {
	hours, err := s.ListHours(ctx, businessID)
	if err != nil {
		return nil, err
	}
	return hours.ForDay(day), nil
}

// MemoryStore keeps configuration in process memory.
type MemoryStore struct {
	mu         sync.RWMutex
	businesses map[string]Business
	hours      map[string]WeeklyHours
	services   map[string][]Service
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		businesses: make(map[string]Business),
		hours:      make(map[string]WeeklyHours),
		services:   make(map[string][]Service),
	}
}

func (m *MemoryStore) GetBusiness(_ context.Context, id string) (*Business, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.businesses[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (m *MemoryStore) FindBusinessByPhone(_ context.Context, phone string) (*Business, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	phone = strings.TrimSpace(phone)
	for _, b := range m.businesses {
		if phone != "" && b.PhoneNumber == phone {
			found := b
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) SaveBusiness(_ context.Context, b Business) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.businesses[b.ID] = b
	return nil
}

func (m *MemoryStore) ListHours(_ context.Context, businessID string) (WeeklyHours, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append(WeeklyHours(nil), m.hours[businessID]...), nil
}

func (m *MemoryStore) SetHours(_ context.Context, businessID string, hours WeeklyHours) error {
	if err := hours.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hours[businessID] = hours.Sorted()
	return nil
}

func (m *MemoryStore) ListServices(_ context.Context, businessID string) ([]Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]Service(nil), m.services[businessID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) SaveService(_ context.Context, svc Service) (*Service, error) {
	if err := svc.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.services[svc.BusinessID]
	for i := range list {
		if (svc.ID != "" && list[i].ID == svc.ID) || normalizeServiceKey(list[i].Name) == normalizeServiceKey(svc.Name) {
			svc.ID = list[i].ID
			list[i] = svc
			return &svc, nil
		}
	}
	if svc.ID == "" {
		svc.ID = uuid.NewString()
	}
	m.services[svc.BusinessID] = append(list, svc)
	return &svc, nil
}
