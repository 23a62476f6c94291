package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"otp-agent/internal/backend"
	"otp-agent/internal/model"
)

type fakeBackend struct {
	countries    []model.Country
	countriesErr error
	services     map[string][]model.Service
	servicesErr  error
	calls        int
}

func (f *fakeBackend) Countries(context.Context) ([]model.Country, error) {
	f.calls++
	return f.countries, f.countriesErr
}

func (f *fakeBackend) Services(_ context.Context, countryID string) ([]model.Service, error) {
	f.calls++
	return f.services[countryID], f.servicesErr
}

type fakeWallet struct {
	balance model.Balance
	err     error
}

func (f fakeWallet) Balance(context.Context) (model.Balance, error) { return f.balance, f.err }

func TestCountriesCachedAfterFirstLoad(t *testing.T) {
	fb := &fakeBackend{countries: []model.Country{{ID: "91", Title: "India", Code: "IN"}}}
	svc := NewService(fb, fakeWallet{}, NewMemoryCache(), time.Minute, zap.NewNop())

	list, err := svc.Countries(context.Background())
	require.NoError(t, err)
	assert.False(t, list.Fallback)
	assert.Equal(t, 1, list.Total)

	_, err = svc.Countries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fb.calls)
}

func TestCountriesFallback(t *testing.T) {
	fb := &fakeBackend{countriesErr: backend.ErrUnavailable}
	svc := NewService(fb, fakeWallet{}, NewMemoryCache(), time.Minute, zap.NewNop())

	list, err := svc.Countries(context.Background())
	require.NoError(t, err)
	assert.True(t, list.Fallback)
	require.Len(t, list.Countries, 7)
	assert.Equal(t, "Russia", list.Countries[0].Title)
	assert.Equal(t, model.ID("91"), list.Countries[4].ID)

	// fallback results are not cached
	fb.countriesErr = nil
	fb.countries = []model.Country{{ID: "44", Title: "United Kingdom", Code: "GB"}}
	list, err = svc.Countries(context.Background())
	require.NoError(t, err)
	assert.False(t, list.Fallback)
	assert.Equal(t, 1, list.Total)
}

func TestCountriesRequireLogin(t *testing.T) {
	fb := &fakeBackend{countriesErr: backend.ErrUnauthorized}
	svc := NewService(fb, fakeWallet{}, nil, time.Minute, zap.NewNop())

	_, err := svc.Countries(context.Background())
	assert.ErrorIs(t, err, backend.ErrUnauthorized)
}

func TestServices(t *testing.T) {
	fb := &fakeBackend{services: map[string][]model.Service{
		"91": {{ID: "3", Name: "WhatsApp", DisplayPrice: "₹12.50"}},
	}}
	svc := NewService(fb, fakeWallet{}, NewMemoryCache(), time.Minute, zap.NewNop())

	list, err := svc.Services(context.Background(), "91")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	empty, err := svc.Services(context.Background(), "7")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	_, err = svc.Services(context.Background(), "9/1")
	assert.ErrorIs(t, err, ErrInvalidCountry)

	fb.servicesErr = errors.New("boom")
	_, err = svc.Services(context.Background(), "16")
	assert.Error(t, err)
}

func TestOverviewMarksAffordableServices(t *testing.T) {
	fb := &fakeBackend{services: map[string][]model.Service{
		"91": {
			{ID: "3", Name: "WhatsApp", DisplayPrice: "₹12.50"},
			{ID: "4", Name: "Telegram", DisplayPrice: "₹30.00"},
			{ID: "5", Name: "Other", DisplayPrice: "n/a"},
		},
	}}
	svc := NewService(fb, fakeWallet{balance: model.Balance{Amount: 20}}, nil, time.Minute, zap.NewNop())

	ov, err := svc.Overview(context.Background(), "91", "")
	require.NoError(t, err)
	require.NotNil(t, ov.Balance)
	assert.Equal(t, 20.0, *ov.Balance)
	require.Len(t, ov.Services, 3)
	assert.True(t, *ov.Services[0].Affordable)
	assert.False(t, *ov.Services[1].Affordable)
	assert.Nil(t, ov.Services[2].Price)
	assert.Nil(t, ov.Services[2].Affordable)

	ov, err = svc.Overview(context.Background(), "91", "tele")
	require.NoError(t, err)
	require.Len(t, ov.Services, 1)
	assert.Equal(t, "Telegram", ov.Services[0].Name)
}

func TestOverviewWithoutBalance(t *testing.T) {
	fb := &fakeBackend{services: map[string][]model.Service{"91": {{ID: "3", Name: "WhatsApp", DisplayPrice: "₹12.50"}}}}

	svc := NewService(fb, fakeWallet{err: backend.ErrUnavailable}, nil, time.Minute, zap.NewNop())
	ov, err := svc.Overview(context.Background(), "91", "")
	require.NoError(t, err)
	assert.Nil(t, ov.Balance)
	assert.Nil(t, ov.Services[0].Affordable)

	svc = NewService(fb, fakeWallet{err: backend.ErrUnauthorized}, nil, time.Minute, zap.NewNop())
	_, err = svc.Overview(context.Background(), "91", "")
	assert.ErrorIs(t, err, backend.ErrUnauthorized)
}

func TestFilters(t *testing.T) {
	countries := []model.Country{
		{ID: "91", Title: "India", Code: "IN"},
		{ID: "44", Title: "United Kingdom", Code: "GB"},
		{ID: "16", Title: "Philippines", Code: "PH"},
	}
	assert.Len(t, FilterCountries(countries, ""), 3)
	assert.Len(t, FilterCountries(countries, "  gb "), 1)
	assert.Equal(t, "United Kingdom", FilterCountries(countries, "KING")[0].Title)
	assert.Len(t, FilterCountries(countries, "ph"), 1)
	assert.Empty(t, FilterCountries(countries, "zz"))

	services := []model.Service{
		{Name: "WhatsApp", DisplayPrice: "₹12.50"},
		{Name: "Telegram", DisplayPrice: "₹30.00"},
	}
	assert.Len(t, FilterServices(services, "what"), 1)
	assert.Len(t, FilterServices(services, "30"), 1)
	assert.Len(t, FilterServices(services, "₹"), 2)
}
