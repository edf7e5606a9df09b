package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// eventPublisher fans a ledger event out to the bus, the durable stream, the
// audit log and the notifier. None of these can fail the operation that
// produced the event.
type eventPublisher struct {
	bus      domain.SignalBus
	audit    domain.AuditStore
	notifier Notifier
	logger   *slog.Logger
}

func (p *eventPublisher) emit(ctx context.Context, channel string, ev domain.LedgerEvent, detail map[string]any) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	if p.bus != nil {
		payload, err := json.Marshal(ev)
		if err != nil {
			p.warn(ctx, "marshal event", ev, err)
		} else {
			if err := p.bus.Publish(ctx, channel, payload); err != nil {
				p.warn(ctx, "publish event", ev, err)
			}
			if err := p.bus.StreamAppend(ctx, domain.EventStream, payload); err != nil {
				p.warn(ctx, "append event stream", ev, err)
			}
		}
	}

	if p.audit != nil && detail != nil {
		if err := p.audit.Log(ctx, ev.Type, detail); err != nil {
			p.warn(ctx, "audit log", ev, err)
		}
	}

	if p.notifier != nil {
		if err := p.notifier.NotifyEvent(ctx, ev); err != nil {
			p.warn(ctx, "notify", ev, err)
		}
	}
}

func (p *eventPublisher) warn(ctx context.Context, what string, ev domain.LedgerEvent, err error) {
	p.logger.WarnContext(ctx, "events: "+what+" failed",
		slog.String("event", ev.Type),
		slog.String("market_id", ev.MarketID),
		slog.String("error", err.Error()),
	)
}

func amountPtr(a domain.Amount) *domain.Amount { return &a }
