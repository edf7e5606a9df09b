package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// WorkerConfig tunes the MarketWorker.
type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
	// AuditRetention is how long audit entries stay in the store before
	// they are exported and purged. Zero disables the export.
	AuditRetention  time.Duration
	ArchiveInterval time.Duration
}

// MarketWorker closes expired markets, retries unfinished settlements and
// exports aged audit entries.
type MarketWorker struct {
	markets  domain.MarketStore
	closer   *MarketService
	settler  *SettlementService
	archiver Archiver
	cfg      WorkerConfig
	now      func() time.Time
	logger   *slog.Logger
}

// NewMarketWorker creates a MarketWorker. archiver may be nil.
func NewMarketWorker(
	markets domain.MarketStore,
	closer *MarketService,
	settler *SettlementService,
	archiver Archiver,
	cfg WorkerConfig,
	logger *slog.Logger,
) *MarketWorker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.ArchiveInterval <= 0 {
		cfg.ArchiveInterval = 24 * time.Hour
	}
	return &MarketWorker{
		markets:  markets,
		closer:   closer,
		settler:  settler,
		archiver: archiver,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "market_worker")),
	}
}

// Run ticks until ctx is cancelled.
func (w *MarketWorker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "market_worker: started",
		slog.Duration("interval", w.cfg.Interval),
		slog.Int("batch_size", w.cfg.BatchSize),
	)

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	var archiveC <-chan time.Time
	if w.archiver != nil && w.cfg.AuditRetention > 0 {
		archiveTicker := time.NewTicker(w.cfg.ArchiveInterval)
		defer archiveTicker.Stop()
		archiveC = archiveTicker.C
	}

	w.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "market_worker: stopped")
			return nil
		case <-ticker.C:
			w.Tick(ctx)
		case <-archiveC:
			if _, err := w.ArchiveAudit(ctx); err != nil {
				w.logger.WarnContext(ctx, "market_worker: audit export failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Tick runs one pass of auto-close and settlement retry.
func (w *MarketWorker) Tick(ctx context.Context) (closed, settled int) {
	closed = w.closeExpired(ctx)
	settled = w.retryUnsettled(ctx)
	if closed > 0 || settled > 0 {
		w.logger.InfoContext(ctx, "market_worker: tick",
			slog.Int("closed", closed),
			slog.Int("settled", settled),
		)
	}
	return closed, settled
}

func (w *MarketWorker) closeExpired(ctx context.Context) int {
	expired, err := w.markets.ListExpired(ctx, w.now().UTC(), w.cfg.BatchSize)
	if err != nil {
		w.logger.ErrorContext(ctx, "market_worker: list expired failed", slog.String("error", err.Error()))
		return 0
	}

	var n int
	for _, m := range expired {
		if _, err := w.closer.CloseMarket(ctx, m.ID); err != nil {
			// Another replica or a resolver got there first.
			if errors.Is(err, domain.ErrInvalidTransition) {
				continue
			}
			w.logger.WarnContext(ctx, "market_worker: auto-close failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		n++
	}
	return n
}

func (w *MarketWorker) retryUnsettled(ctx context.Context) int {
	unsettled, err := w.markets.ListUnsettled(ctx, w.cfg.BatchSize)
	if err != nil {
		w.logger.ErrorContext(ctx, "market_worker: list unsettled failed", slog.String("error", err.Error()))
		return 0
	}

	var n int
	for _, m := range unsettled {
		_, err := w.settler.Resettle(ctx, m.ID)
		switch {
		case err == nil:
			n++
		case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrAlreadySettled):
			// In flight elsewhere or finished since the listing.
		default:
			w.logger.WarnContext(ctx, "market_worker: settlement retry failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return n
}

// ArchiveAudit exports audit entries older than the retention window.
func (w *MarketWorker) ArchiveAudit(ctx context.Context) (int64, error) {
	if w.archiver == nil || w.cfg.AuditRetention <= 0 {
		return 0, nil
	}
	before := w.now().UTC().Add(-w.cfg.AuditRetention)
	n, err := w.archiver.ArchiveAudit(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("market_worker: archive audit before %s: %w", before.Format(time.RFC3339), err)
	}
	if n > 0 {
		w.logger.InfoContext(ctx, "market_worker: audit entries archived", slog.Int64("count", n))
	}
	return n, nil
}
