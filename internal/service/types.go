package service

import (
	"context"
	"time"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	// Locker serialises settlement of one market across replicas.
	Locker interface {
		Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
	}
	// BalanceSink receives credits for claimed rewards and refunds.
	BalanceSink interface {
		Credit(ctx context.Context, userID string, amount domain.Amount, reference string) error
	}
	// Archiver copies settlements and aged audit entries to cold storage.
	Archiver interface {
		ArchiveSettlement(ctx context.Context, market domain.Market, settlement domain.Settlement) (string, error)
		ArchiveAudit(ctx context.Context, before time.Time) (int64, error)
	}
	// Notifier alerts operators.
	Notifier interface {
		NotifyEvent(ctx context.Context, ev domain.LedgerEvent) error
	}
	// Metrics records ledger outcomes.
	Metrics interface {
		ObserveOperation(operation string, err error, started time.Time)
		ObserveSettlement(settlement domain.Settlement)
		ObserveClaim(amount domain.Amount)
		ObserveCreditFailure()
	}
)

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(string, error, time.Time) {}
func (noopMetrics) ObserveSettlement(domain.Settlement)       {}
func (noopMetrics) ObserveClaim(domain.Amount)                {}
func (noopMetrics) ObserveCreditFailure()                     {}
