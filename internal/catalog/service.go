// Package catalog serves the countries and services a number can be bought
// for, with caching and a built-in country fallback.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"otp-agent/internal/backend"
	"otp-agent/internal/model"
	"otp-agent/internal/util"
	"otp-agent/internal/wallet"
)

var ErrInvalidCountry = errors.New("invalid country id")

type Backend interface {
	Countries(ctx context.Context) ([]model.Country, error)
	Services(ctx context.Context, countryID string) ([]model.Service, error)
}

type BalanceSource interface {
	Balance(ctx context.Context) (model.Balance, error)
}

type CountryList struct {
	Countries []model.Country `json:"countries"`
	Total     int             `json:"total"`
	Fallback  bool            `json:"fallback"`
}

type ServiceOption struct {
	model.Service
	Price      *float64 `json:"price,omitempty"`
	Affordable *bool    `json:"affordable,omitempty"`
}

// Overview is everything the purchase form needs for one country.
type Overview struct {
	CountryID string          `json:"country_id"`
	Services  []ServiceOption `json:"services"`
	Balance   *float64        `json:"balance,omitempty"`
}

type Service struct {
	backend Backend
	wallet  BalanceSource
	cache   Cache
	ttl     time.Duration
	logger  *zap.Logger
}

func NewService(be Backend, wallet BalanceSource, cache Cache, ttl time.Duration, logger *zap.Logger) *Service {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Service{backend: be, wallet: wallet, cache: cache, ttl: ttl, logger: logger}
}

// Countries returns the backend country list. When the backend cannot be
// reached the built-in list is returned with Fallback set.
func (s *Service) Countries(ctx context.Context) (CountryList, error) {
	if cached, ok, err := s.cache.GetCountries(ctx); err != nil {
		s.logger.Warn("country cache read failed", zap.Error(err))
	} else if ok {
		return newCountryList(cached, false), nil
	}

	countries, err := s.backend.Countries(ctx)
	if errors.Is(err, backend.ErrUnauthorized) {
		return CountryList{}, err
	}
	if err != nil {
		s.logger.Warn("loading countries failed, using fallback list", zap.Error(err))
		return newCountryList(FallbackCountries(), true), nil
	}

	if err := s.cache.SetCountries(ctx, countries, s.ttl); err != nil {
		s.logger.Warn("country cache write failed", zap.Error(err))
	}
	return newCountryList(countries, false), nil
}

func (s *Service) Services(ctx context.Context, countryID string) ([]model.Service, error) {
	if !util.IsIdentifier(countryID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCountry, countryID)
	}

	if cached, ok, err := s.cache.GetServices(ctx, countryID); err != nil {
		s.logger.Warn("service cache read failed", zap.String("country_id", countryID), zap.Error(err))
	} else if ok {
		return nonNil(cached), nil
	}

	services, err := s.backend.Services(ctx, countryID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetServices(ctx, countryID, services, s.ttl); err != nil {
		s.logger.Warn("service cache write failed", zap.String("country_id", countryID), zap.Error(err))
	}
	return nonNil(services), nil
}

// Overview loads the services of a country and the wallet balance in
// parallel and marks which services the balance covers. A balance failure
// other than a missing login only drops the affordability marks.
func (s *Service) Overview(ctx context.Context, countryID, term string) (Overview, error) {
	var (
		services []model.Service
		balance  *float64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, err := s.Services(gctx, countryID)
		services = list
		return err
	})
	g.Go(func() error {
		b, err := s.wallet.Balance(gctx)
		if errors.Is(err, backend.ErrUnauthorized) {
			return err
		}
		if err != nil {
			s.logger.Warn("balance unavailable for overview", zap.Error(err))
			return nil
		}
		balance = &b.Amount
		return nil
	})
	if err := g.Wait(); err != nil {
		return Overview{}, err
	}

	filtered := FilterServices(services, term)
	options := make([]ServiceOption, 0, len(filtered))
	for _, svc := range filtered {
		opt := ServiceOption{Service: svc}
		if price, ok := wallet.ParsePrice(svc.DisplayPrice); ok {
			opt.Price = &price
			if balance != nil {
				affordable := wallet.CanAfford(*balance, price)
				opt.Affordable = &affordable
			}
		}
		options = append(options, opt)
	}

	return Overview{CountryID: countryID, Services: options, Balance: balance}, nil
}

func newCountryList(countries []model.Country, fallback bool) CountryList {
	countries = nonNil(countries)
	return CountryList{Countries: countries, Total: len(countries), Fallback: fallback}
}

func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
