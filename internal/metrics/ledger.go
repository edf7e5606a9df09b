package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

const namespace = "marketledger"

var (
	ledgerOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "operations_total",
		Help:      "Count of ledger operations by outcome.",
	}, []string{"operation", "status"})
	ledgerOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "operation_duration_seconds",
		Help:      "Duration of ledger operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "status"})
	settlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "settlements_total",
		Help:      "Settled markets by outcome.",
	}, []string{"outcome"})
	distributedOctasTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "distributed_octas_total",
		Help:      "Octas assigned to winners as claimable rewards.",
	})
	claimedOctasTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "claimed_octas_total",
		Help:      "Octas disbursed through successful claims.",
	})
	creditFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "credit_failures_total",
		Help:      "Balance sink credits that failed.",
	})
)

// Ledger records ledger service metrics. The zero value is ready to use.
type Ledger struct{}

// NewLedger returns a Ledger collector.
func NewLedger() *Ledger { return &Ledger{} }

// ObserveOperation records one operation outcome and duration. Business rule
// rejections are counted apart from infrastructure errors.
func (Ledger) ObserveOperation(operation string, err error, started time.Time) {
	status := statusOf(err)
	ledgerOperationsTotal.WithLabelValues(operation, status).Inc()
	ledgerOperationDuration.WithLabelValues(operation, status).Observe(time.Since(started).Seconds())
}

// ObserveSettlement records a completed settlement.
func (Ledger) ObserveSettlement(s domain.Settlement) {
	if s.NoWinner() {
		settlementsTotal.WithLabelValues("no_winner").Inc()
		return
	}
	settlementsTotal.WithLabelValues("winners").Inc()
	var total domain.Amount
	for _, p := range s.Payouts {
		total += p.Amount
	}
	distributedOctasTotal.Add(float64(total))
}

// ObserveClaim records a successful claim.
func (Ledger) ObserveClaim(amount domain.Amount) {
	claimedOctasTotal.Add(float64(amount))
}

// ObserveCreditFailure counts a failed balance credit.
func (Ledger) ObserveCreditFailure() {
	creditFailuresTotal.Inc()
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrAlreadyClaimed),
		errors.Is(err, domain.ErrUnauthorized):
		return "rejected"
	default:
		return "error"
	}
}
