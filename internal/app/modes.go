package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/marketledger/internal/config"
	"github.com/alanyoungcy/marketledger/internal/crypto"
	"github.com/alanyoungcy/marketledger/internal/domain"
	"github.com/alanyoungcy/marketledger/internal/metrics"
	"github.com/alanyoungcy/marketledger/internal/server"
	"github.com/alanyoungcy/marketledger/internal/server/handler"
	"github.com/alanyoungcy/marketledger/internal/server/ws"
	"github.com/alanyoungcy/marketledger/internal/service"
)

const shutdownTimeout = 5 * time.Second

type services struct {
	markets     *service.MarketService
	settlements *service.SettlementService
}

// APIMode serves the HTTP API and the websocket event stream.
func (a *App) APIMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting api mode")
	svc, err := a.buildServices(deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startHTTPServer(ctx, g, deps, svc); err != nil {
		return err
	}
	return g.Wait()
}

// WorkerMode closes expired markets, retries unsettled ones and exports aged
// audit entries.
func (a *App) WorkerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting worker mode")
	svc, err := a.buildServices(deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startWorker(ctx, g, deps, svc)
	return g.Wait()
}

// FullMode runs the API and the worker in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	svc, err := a.buildServices(deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startHTTPServer(ctx, g, deps, svc); err != nil {
		return err
	}
	a.startWorker(ctx, g, deps, svc)
	return g.Wait()
}

func (a *App) buildServices(deps *Dependencies) (*services, error) {
	limits, err := marketLimits(a.cfg.Ledger)
	if err != nil {
		return nil, fmt.Errorf("app: ledger limits: %w", err)
	}
	m := metrics.NewLedger()

	markets := service.NewMarketService(service.MarketDeps{
		Markets:  deps.MarketStore,
		Cache:    deps.MarketCache,
		Bus:      deps.SignalBus,
		Audit:    deps.AuditStore,
		Notifier: deps.Notifier,
		Metrics:  m,
	}, limits, a.logger)

	var sink service.BalanceSink
	if a.cfg.Settlement.BalanceBook {
		sink = deps.BalanceBook
	}
	var archiver service.Archiver
	if deps.Archiver != nil {
		archiver = deps.Archiver
	}
	settlements := service.NewSettlementService(service.SettlementDeps{
		Markets:  deps.MarketStore,
		Rewards:  deps.RewardStore,
		Locks:    deps.LockManager,
		Cache:    deps.MarketCache,
		Bus:      deps.SignalBus,
		Audit:    deps.AuditStore,
		Sink:     sink,
		Archiver: archiver,
		Notifier: deps.Notifier,
		Metrics:  m,
	}, service.SettlementConfig{
		AutoCredit: a.cfg.Settlement.AutoCredit,
		NoWinner:   service.NoWinnerPolicy(a.cfg.Settlement.NoWinner),
		LockTTL:    a.cfg.Settlement.LockTTL.Duration,
	}, a.logger)

	return &services{markets: markets, settlements: settlements}, nil
}

func (a *App) startWorker(ctx context.Context, g *errgroup.Group, deps *Dependencies, svc *services) {
	var archiver service.Archiver
	if deps.Archiver != nil {
		archiver = deps.Archiver
	}
	worker := service.NewMarketWorker(deps.MarketStore, svc.markets, svc.settlements, archiver, service.WorkerConfig{
		Interval:        a.cfg.Worker.Interval.Duration,
		BatchSize:       a.cfg.Worker.BatchSize,
		AuditRetention:  a.cfg.Worker.AuditRetention.Duration,
		ArchiveInterval: a.cfg.Worker.ArchiveInterval.Duration,
	}, a.logger)

	g.Go(func() error {
		return worker.Run(ctx)
	})
}

func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svc *services) error {
	verifier, err := crypto.NewVerifier(a.cfg.Oracle.Addresses)
	if err != nil {
		return fmt.Errorf("app: oracle verifier: %w", err)
	}

	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		ResolverKey: a.cfg.Oracle.ResolverKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:      handler.NewHealthHandler(deps.Checks, a.logger),
		Markets:     handler.NewMarketHandler(svc.markets, a.logger),
		Settlements: handler.NewSettlementHandler(svc.settlements, a.logger),
	}, server.Deps{
		Limiter:  deps.RateLimiter,
		Verifier: verifier,
		Hub:      hub,
	}, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	a.logger.InfoContext(ctx, "HTTP server listening",
		slog.Int("port", a.cfg.Server.Port),
		slog.Int("oracles", len(a.cfg.Oracle.Addresses)),
	)
	return nil
}

// marketLimits converts the configured bounds. The strings were checked by
// Config.Validate.
func marketLimits(cfg config.LedgerConfig) (service.MarketLimits, error) {
	limits := service.MarketLimits{
		MinDuration: cfg.MinDuration.Duration,
		MaxDuration: cfg.MaxDuration.Duration,
	}
	fields := []struct {
		dst *domain.Amount
		src string
	}{
		{&limits.MinInitialPool, cfg.MinInitialPool},
		{&limits.MaxInitialPool, cfg.MaxInitialPool},
		{&limits.MinBetAmount, cfg.MinBet},
		{&limits.MaxBetAmount, cfg.MaxBet},
	}
	for _, f := range fields {
		v, err := domain.ParseAmount(f.src)
		if err != nil {
			return service.MarketLimits{}, err
		}
		*f.dst = v
	}
	return limits, nil
}
