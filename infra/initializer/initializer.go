// Package initializer wires configuration into the full dependency graph
// used by the server binary.
package initializer

import (
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	infracache "github.com/stellarpay/starbridge/infra/cache"
	"github.com/stellarpay/starbridge/infra/database"
	infraeventbus "github.com/stellarpay/starbridge/infra/eventbus"
	infraprovider "github.com/stellarpay/starbridge/infra/provider"
	infrarepo "github.com/stellarpay/starbridge/infra/repository"
	"github.com/stellarpay/starbridge/infra/ton"
	"github.com/stellarpay/starbridge/pkg/cache"
	"github.com/stellarpay/starbridge/pkg/config"
	"github.com/stellarpay/starbridge/pkg/eventbus"
	"github.com/stellarpay/starbridge/pkg/provider"
	"github.com/stellarpay/starbridge/pkg/repository"
	conversionsvc "github.com/stellarpay/starbridge/pkg/service/conversion"
	feessvc "github.com/stellarpay/starbridge/pkg/service/fees"
	"github.com/stellarpay/starbridge/pkg/service/monitor"
	orderbooksvc "github.com/stellarpay/starbridge/pkg/service/orderbook"
	paymentsvc "github.com/stellarpay/starbridge/pkg/service/payment"
	ratessvc "github.com/stellarpay/starbridge/pkg/service/rates"
	routersvc "github.com/stellarpay/starbridge/pkg/service/router"
	settlementsvc "github.com/stellarpay/starbridge/pkg/service/settlement"
)

// Deps is the assembled dependency graph.
type Deps struct {
	Uow repository.UnitOfWork
	Bus eventbus.Bus

	Conversions *conversionsvc.Service
	Orders      *orderbooksvc.Service
	Payments    *paymentsvc.Service
	Settlements *settlementsvc.Processor

	TxMonitor      *monitor.TxMonitor
	DepositMonitor *monitor.DepositMonitor

	Chain    provider.BlockchainClient
	Webhooks provider.WebhookQueue

	closers []func() error
}

// Close releases held connections in reverse acquisition order.
func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]() //nolint:errcheck
	}
}

// InitializeDependencies builds every component from configuration.
// Simulated flags swap external collaborators for deterministic in-memory
// implementations without changing any wiring downstream.
func InitializeDependencies(cfg *config.App, logger *slog.Logger) (*Deps, error) {
	deps := &Deps{}

	db, err := database.Connect(cfg.DB.Url, logger)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	uow := infrarepo.NewUoW(db)
	deps.Uow = uow

	// Rate cache: Redis when configured, in-process otherwise.
	var rateCache cache.RateCache
	if cfg.Redis.Url != "" {
		redisCache, err := infracache.NewRedisCache(cfg.Redis.Url)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		deps.closers = append(deps.closers, redisCache.Close)
		rateCache = redisCache
	} else {
		rateCache = infracache.NewMemoryCache()
	}

	// Event bus: Kafka when configured, in-process otherwise.
	if cfg.Kafka.Brokers != "" {
		kafkaBus, err := infraeventbus.NewWithKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, logger)
		if err != nil {
			return nil, fmt.Errorf("connect kafka: %w", err)
		}
		deps.closers = append(deps.closers, kafkaBus.Close)
		deps.Bus = kafkaBus
	} else {
		deps.Bus = infraeventbus.NewWithMemory(logger)
	}

	// External collaborators.
	var sources []provider.RateSource
	if cfg.Rates.Simulated {
		sources = []provider.RateSource{
			infraprovider.NewSimulatedRateSource("sim-primary", 0),
			infraprovider.NewSimulatedRateSource("sim-secondary", 20),
		}
	} else {
		sources = []provider.RateSource{
			infraprovider.NewHTTPRateSource("coingecko", cfg.Rates.PrimaryUrl, cfg.Rates.ApiKey, cfg.Rates.HTTPTimeout, logger),
			infraprovider.NewHTTPRateSource("tonapi", cfg.Rates.SecondaryUrl, cfg.Ton.ApiKey, cfg.Rates.HTTPTimeout, logger),
		}
	}
	weights := map[string]decimal.Decimal{
		"coingecko":     decimal.RequireFromString("0.6"),
		"tonapi":        decimal.RequireFromString("0.4"),
		"sim-primary":   decimal.RequireFromString("0.6"),
		"sim-secondary": decimal.RequireFromString("0.4"),
	}

	var dex provider.DexAggregator
	if cfg.Dex.Simulated {
		dex = infraprovider.NewSimulatedDexAggregator(
			decimal.RequireFromString("0.00015"),
			decimal.NewFromFloat(cfg.Dex.SlippagePct).Div(decimal.NewFromInt(2)),
		)
	} else {
		dex = infraprovider.NewHTTPDexAggregator(cfg.Dex.ApiUrl, cfg.Dex.ApiKey, cfg.Dex.HTTPTimeout, logger)
	}

	if cfg.Ton.Simulated {
		deps.Chain = ton.NewSimulated()
	} else {
		deps.Chain = ton.NewClient(cfg.Ton.ApiUrl, cfg.Ton.ApiKey)
	}

	var wallets provider.WalletResolver
	if cfg.Wallet.RegistryUrl != "" {
		wallets = infraprovider.NewHTTPWalletResolver(cfg.Wallet.RegistryUrl, cfg.Wallet.ApiKey, cfg.Wallet.HTTPTimeout)
	} else {
		wallets = infraprovider.NewStaticWalletResolver(nil)
	}

	if cfg.Webhook.DispatcherUrl != "" {
		httpQueue := infraprovider.NewHTTPWebhookQueue(cfg.Webhook.DispatcherUrl, cfg.Webhook.Secret, logger)
		deps.closers = append(deps.closers, func() error { httpQueue.Close(); return nil })
		deps.Webhooks = httpQueue
	} else {
		deps.Webhooks = infraprovider.NewMemoryWebhookQueue()
	}

	// Services.
	feeSvc := feessvc.New(uow.Config(), logger)
	rateSvc := ratessvc.New(sources, weights, rateCache, cfg.Rates.CacheTTL, logger)
	orderSvc := orderbooksvc.New(uow, deps.Chain, wallets, logger)
	routerSvc := routersvc.New(uow.Orders(), dex, logger)

	deps.Conversions = conversionsvc.New(
		uow,
		feeSvc,
		rateSvc,
		routerSvc,
		dex,
		orderSvc,
		deps.Bus,
		cfg.Rates.QuoteValidity,
		decimal.NewFromFloat(cfg.Dex.SlippagePct),
		logger,
	)
	deps.Conversions.RegisterWorker()

	deps.Orders = orderSvc
	deps.Payments = paymentsvc.New(uow, logger)
	deps.Settlements = settlementsvc.New(uow, feeSvc, deps.Webhooks, cfg.Monitors.BatchSize, logger)

	deps.TxMonitor = monitor.NewTxMonitor(uow, deps.Chain, cfg.Monitors.TxPollInterval, cfg.Monitors.BatchSize, logger)
	deps.DepositMonitor = monitor.NewDepositMonitor(
		uow,
		deps.Chain,
		deps.Webhooks,
		cfg.Monitors.DepositPollInterval,
		cfg.Monitors.MinConfirmations,
		cfg.Monitors.BatchSize,
		logger,
	)

	return deps, nil
}
