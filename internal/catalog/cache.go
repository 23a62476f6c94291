package catalog

import (
	"context"
	"sync"
	"time"

	"otp-agent/internal/model"
)

// Cache stores catalog lists between backend calls.
type Cache interface {
	GetCountries(ctx context.Context) ([]model.Country, bool, error)
	SetCountries(ctx context.Context, countries []model.Country, ttl time.Duration) error
	GetServices(ctx context.Context, countryID string) ([]model.Service, bool, error)
	SetServices(ctx context.Context, countryID string, services []model.Service, ttl time.Duration) error
}

type memoryItem struct {
	countries []model.Country
	services  []model.Service
	expires   time.Time
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string]memoryItem), now: time.Now}
}

const countriesKey = "countries"

func (m *MemoryCache) get(key string) (memoryItem, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[key]
	if !ok {
		return memoryItem{}, false
	}
	if !it.expires.IsZero() && m.now().After(it.expires) {
		delete(m.items, key)
		return memoryItem{}, false
	}
	return it, true
}

func (m *MemoryCache) set(key string, it memoryItem, ttl time.Duration) {
	if ttl > 0 {
		it.expires = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.items[key] = it
	m.mu.Unlock()
}

func (m *MemoryCache) GetCountries(_ context.Context) ([]model.Country, bool, error) {
	it, ok := m.get(countriesKey)
	return it.countries, ok, nil
}

func (m *MemoryCache) SetCountries(_ context.Context, countries []model.Country, ttl time.Duration) error {
	m.set(countriesKey, memoryItem{countries: append([]model.Country(nil), countries...)}, ttl)
	return nil
}

func (m *MemoryCache) GetServices(_ context.Context, countryID string) ([]model.Service, bool, error) {
	it, ok := m.get("services:" + countryID)
	return it.services, ok, nil
}

func (m *MemoryCache) SetServices(_ context.Context, countryID string, services []model.Service, ttl time.Duration) error {
	m.set("services:"+countryID, memoryItem{services: append([]model.Service(nil), services...)}, ttl)
	return nil
}
