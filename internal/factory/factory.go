package factory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"otp-agent/internal/auth"
	"otp-agent/internal/bucketing"
	"otp-agent/internal/catalog"
	"otp-agent/internal/client"
	"otp-agent/internal/config"
	"otp-agent/internal/encryption"
	"otp-agent/internal/events"
	"otp-agent/internal/handler"
	"otp-agent/internal/history"
	"otp-agent/internal/purchase"
	redisrepo "otp-agent/internal/repository/redis"
	"otp-agent/internal/scheduler"
	"otp-agent/internal/service"
	"otp-agent/internal/tls"
	"otp-agent/internal/util"
)

// Factory manages the lifecycle of all application dependencies.
type Factory struct {
	config     *config.Config
	tlsManager *tls.TLSManager

	// optional clients; nil when not configured or unreachable
	redisClient      *client.RedisClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	sealer           *encryption.Sealer
	bucketingManager *bucketing.BucketingManager

	tokenStore   auth.Store
	catalogCache catalog.Cache

	publisher   *events.Publisher
	fanout      *history.Fanout
	searchIndex *history.SearchIndex

	serviceFactory *service.ServiceFactory
	router         http.Handler

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory loads configuration and builds every dependency.
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()
	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)
	return New(cfg)
}

// New builds the dependencies for an already loaded configuration.
func New(cfg *config.Config) (*Factory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	f := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		f.tlsManager = tls.NewTLSManager(&tls.TLSConfig{
			EnableTLS:  cfg.Server.EnableTLS,
			CertFile:   cfg.Server.CertFile,
			KeyFile:    cfg.Server.KeyFile,
			DevCertDir: cfg.Server.DevCertDir,
			Host:       cfg.Server.Host,
		}, util.Named("tls"))
	}

	if err := f.initializeClients(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}
	if err := f.initializeManagers(); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.initializeStores(); err != nil {
		f.Close()
		return nil, err
	}
	f.initializeObservers()

	f.serviceFactory = service.NewServiceFactory(
		cfg,
		f.tokenStore,
		f.catalogCache,
		scheduler.New(),
		util.Get(),
		f.observers()...,
	)

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.String("backend_url", cfg.Backend.BaseURL),
		util.String("token_store", cfg.Auth.TokenStore),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("redis_enabled", f.redisClient != nil),
		util.Bool("kafka_enabled", f.kafkaProducer != nil),
		util.Bool("clickhouse_enabled", f.clickhouseClient != nil),
		util.Bool("elasticsearch_enabled", f.esClient != nil),
	)
	return f, nil
}

// initializeClients connects every configured optional client. Outside
// production a failing client is logged and left out.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	if f.config.RedisEnabled() {
		if c, err := client.NewRedisClient(f.config, util.Named("redis")); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
		} else {
			f.redisClient = c
		}
	}

	if f.config.KafkaEnabled() {
		if p, err := client.NewKafkaProducer(f.config, util.Named("kafka")); err != nil {
			initErrors = append(initErrors, fmt.Errorf("kafka: %w", err))
		} else {
			f.kafkaProducer = p
			if err := p.HealthCheck(ctx); err != nil {
				util.Warn("Kafka broker not reachable yet, events will retry on write", util.ErrorField(err))
			}
		}
	}

	if f.config.ElasticsearchEnabled() {
		if c, err := client.NewElasticsearchClient(f.config, util.Named("elasticsearch")); err != nil {
			initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
		} else {
			f.esClient = c
		}
	}

	if f.config.ClickhouseEnabled() {
		if c, err := client.NewClickHouseClient(f.config, util.Named("clickhouse")); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
		} else {
			f.clickhouseClient = c
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %w", errors.Join(initErrors...))
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}
	return nil
}

func (f *Factory) initializeManagers() error {
	f.bucketingManager = bucketing.NewBucketingManager(f.config.Bucketing)

	if f.config.Auth.Passphrase != "" {
		sealer, err := encryption.NewSealer(f.config.Auth.Passphrase, encryption.DefaultParams)
		if err != nil {
			return fmt.Errorf("failed to create token sealer: %w", err)
		}
		f.sealer = sealer
	}
	return nil
}

// initializeStores picks the token store and catalog cache. Redis backs
// both when it is available.
func (f *Factory) initializeStores() error {
	switch f.config.Auth.TokenStore {
	case "redis":
		if f.redisClient == nil {
			return fmt.Errorf("token store is redis but redis is not available")
		}
		f.tokenStore = redisrepo.NewTokenStore(f.redisClient, f.config.Auth.Profile, f.config.Auth.TokenTTL, f.sealer, util.Named("token_store"))
	case "file":
		f.tokenStore = auth.NewFileStore(f.config.Auth.TokenFile, f.sealer)
	default:
		f.tokenStore = auth.NewMemoryStore()
	}

	if f.redisClient != nil {
		f.catalogCache = redisrepo.NewCatalogCache(f.redisClient)
	}
	return nil
}

func (f *Factory) initializeObservers() {
	if f.kafkaProducer != nil {
		f.publisher = events.NewPublisher(f.kafkaProducer, util.Named("events"), 256)
		util.Info("Session events enabled", util.String("topic", f.kafkaProducer.Topic()))
	}

	var recorders []history.Recorder
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if f.clickhouseClient != nil {
		rec := history.NewClickHouseRecorder(f.clickhouseClient)
		if err := rec.EnsureSchema(ctx); err != nil {
			util.Warn("ClickHouse history disabled", util.ErrorField(err))
		} else {
			recorders = append(recorders, rec)
		}
	}
	if f.esClient != nil {
		idx := history.NewSearchIndex(f.esClient)
		if err := idx.EnsureIndex(ctx); err != nil {
			util.Warn("Elasticsearch history disabled",
				util.String("index", f.esClient.Index()),
				util.ErrorField(err),
			)
		} else {
			f.searchIndex = idx
			recorders = append(recorders, idx)
		}
	}
	if len(recorders) > 0 {
		f.fanout = history.NewFanout(f.bucketingManager, util.Named("history"), recorders...)
	}
}

func (f *Factory) observers() []purchase.Observer {
	var out []purchase.Observer
	if f.publisher != nil {
		out = append(out, f.publisher)
	}
	if f.fanout != nil {
		out = append(out, f.fanout)
	}
	return out
}

// Router builds the HTTP handler on first use.
func (f *Factory) Router() http.Handler {
	if f.router != nil {
		return f.router
	}

	sf := f.serviceFactory
	logger := util.Named("http")

	var search handler.HistorySearcher
	if f.searchIndex != nil {
		search = f.searchIndex
	}

	f.router = handler.NewRouter(handler.RouterOptions{
		AllowedOrigins: f.config.Server.AllowedOrigins,
		RequireHTTPS:   f.config.Server.EnableTLS,
		RequestTimeout: f.config.Server.WriteTimeout,
		Health:         f.healthError,
	}, logger,
		handler.NewAuthHandler(sf.AuthService(), logger),
		handler.NewCatalogHandler(sf.CatalogService(), logger),
		handler.NewWalletHandler(sf.WalletService(), logger),
		handler.NewPurchaseHandler(sf.PurchaseController(), sf.WalletService(), logger),
		handler.NewHistoryHandler(search, logger),
	)
	return f.router
}

// HealthCheck reports a failure per configured dependency.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.config.RedisEnabled() {
		if f.redisClient == nil {
			healthErrors["redis"] = fmt.Errorf("redis client not initialized")
		} else if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	}
	if f.config.ElasticsearchEnabled() {
		if f.esClient == nil {
			healthErrors["elasticsearch"] = fmt.Errorf("elasticsearch client not initialized")
		} else if err := f.esClient.HealthCheck(ctx); err != nil {
			healthErrors["elasticsearch"] = err
		}
	}
	if f.config.ClickhouseEnabled() {
		if f.clickhouseClient == nil {
			healthErrors["clickhouse"] = fmt.Errorf("clickhouse client not initialized")
		} else if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	}
	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}
	return healthErrors
}

// IsHealthy ignores kafka; events are best effort.
func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	return len(healthErrors) == 0
}

func (f *Factory) healthError(ctx context.Context) error {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	var errs []error
	for name, err := range healthErrors {
		errs = append(errs, fmt.Errorf("%s: %w", name, err))
	}
	return errors.Join(errs...)
}

// Shutdown releases a waiting number and flushes pending events and
// history writes. Call it before Close.
func (f *Factory) Shutdown(ctx context.Context) {
	if f.serviceFactory != nil {
		f.serviceFactory.Cleanup(ctx)
	}
	if f.publisher != nil {
		if err := f.publisher.Close(ctx); err != nil {
			util.Warn("Event publisher did not drain", util.ErrorField(err))
		}
	}
	if f.fanout != nil {
		if err := f.fanout.Close(ctx); err != nil {
			util.Warn("History writes did not finish", util.ErrorField(err))
		}
	}
}

// Close releases every client. It is safe to call more than once.
func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			}
		}
		if f.esClient != nil {
			_ = f.esClient.Close()
		}
		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			}
		}
		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			}
		}
		if f.sealer != nil {
			f.sealer.ClearCache()
		}

		util.Info("Factory shutdown completed")
		util.Sync()
	})
	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}

func (f *Factory) ServiceFactory() *service.ServiceFactory {
	return f.serviceFactory
}
