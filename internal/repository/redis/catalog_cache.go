package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"otp-agent/internal/client"
	"otp-agent/internal/model"
)

const (
	countriesKey   = "catalog:countries"
	servicesPrefix = "catalog:services:"
	cacheTimeout   = 2 * time.Second
)

// CatalogCache implements catalog.Cache on redis. An entry that no longer
// decodes counts as a miss and is overwritten by the next load.
type CatalogCache struct {
	client *client.RedisClient
}

func NewCatalogCache(c *client.RedisClient) *CatalogCache {
	return &CatalogCache{client: c}
}

func (c *CatalogCache) GetCountries(ctx context.Context) ([]model.Country, bool, error) {
	var countries []model.Country
	ok, err := c.get(ctx, countriesKey, &countries)
	return countries, ok, err
}

func (c *CatalogCache) SetCountries(ctx context.Context, countries []model.Country, ttl time.Duration) error {
	return c.set(ctx, countriesKey, countries, ttl)
}

func (c *CatalogCache) GetServices(ctx context.Context, countryID string) ([]model.Service, bool, error) {
	var services []model.Service
	ok, err := c.get(ctx, servicesPrefix+countryID, &services)
	return services, ok, err
}

func (c *CatalogCache) SetServices(ctx context.Context, countryID string, services []model.Service, ttl time.Duration) error {
	return c.set(ctx, servicesPrefix+countryID, services, ttl)
}

func (c *CatalogCache) get(ctx context.Context, key string, out interface{}) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, cacheTimeout)
	defer cancel()

	err := c.client.GetJSON(ctx, key, out)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, client.ErrKeyNotFound), errors.Is(err, client.ErrBadValue):
		return false, nil
	}
	return false, fmt.Errorf("failed to read %s: %w", key, err)
}

func (c *CatalogCache) set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, cacheTimeout)
	defer cancel()

	if err := c.client.SetJSON(ctx, key, value, ttl); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}
