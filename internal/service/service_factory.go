// Package service wires the domain services around one backend client.
package service

import (
	"context"

	"go.uber.org/zap"

	"otp-agent/internal/auth"
	"otp-agent/internal/backend"
	"otp-agent/internal/catalog"
	"otp-agent/internal/config"
	"otp-agent/internal/purchase"
	"otp-agent/internal/scheduler"
	"otp-agent/internal/wallet"
)

// ServiceFactory creates each service once, on first use.
type ServiceFactory struct {
	config       *config.Config
	tokens       auth.Store
	catalogCache catalog.Cache
	sched        scheduler.Scheduler
	observers    []purchase.Observer
	logger       *zap.Logger

	backendClient  *backend.Client
	authService    *auth.Service
	walletService  *wallet.Service
	catalogService *catalog.Service
	controller     *purchase.Controller
}

// NewServiceFactory takes the token store, an optional catalog cache (nil
// keeps it in memory) and the observers the purchase controller reports to.
func NewServiceFactory(
	cfg *config.Config,
	tokens auth.Store,
	catalogCache catalog.Cache,
	sched scheduler.Scheduler,
	logger *zap.Logger,
	observers ...purchase.Observer,
) *ServiceFactory {
	return &ServiceFactory{
		config:       cfg,
		tokens:       tokens,
		catalogCache: catalogCache,
		sched:        sched,
		observers:    observers,
		logger:       logger,
	}
}

func (f *ServiceFactory) Backend() *backend.Client {
	if f.backendClient == nil {
		f.backendClient = backend.NewClient(f.config.Backend, auth.NewTokenSource(f.tokens), f.logger.Named("backend"))
	}
	return f.backendClient
}

func (f *ServiceFactory) AuthService() *auth.Service {
	if f.authService == nil {
		f.authService = auth.NewService(f.tokens, f.Backend(), f.logger.Named("auth"))
	}
	return f.authService
}

func (f *ServiceFactory) WalletService() *wallet.Service {
	if f.walletService == nil {
		f.walletService = wallet.NewService(f.Backend(), f.logger.Named("wallet"))
	}
	return f.walletService
}

func (f *ServiceFactory) CatalogService() *catalog.Service {
	if f.catalogService == nil {
		f.catalogService = catalog.NewService(
			f.Backend(),
			f.WalletService(),
			f.catalogCache,
			f.config.Catalog.CacheTTL,
			f.logger.Named("catalog"),
		)
	}
	return f.catalogService
}

func (f *ServiceFactory) PurchaseController() *purchase.Controller {
	if f.controller == nil {
		f.controller = purchase.NewController(
			f.Backend(),
			f.sched,
			purchase.NewConfig(f.config.Poll, f.config.Backend),
			f.logger.Named("purchase"),
			f.observers...,
		)
	}
	return f.controller
}

// Cleanup releases a number that is still waiting for its SMS.
func (f *ServiceFactory) Cleanup(ctx context.Context) {
	if f.controller != nil {
		f.controller.Shutdown(ctx)
	}
}
