// Package notify fans ledger alerts out to operator chat channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// Sender delivers one alert to a channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier delivers ledger events to every sender. Only event types in the
// allow list are forwarded; an empty list forwards everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// NotifyEvent renders a ledger event and sends it if its type is allowed.
func (n *Notifier) NotifyEvent(ctx context.Context, ev domain.LedgerEvent) error {
	if !n.Enabled() {
		return nil
	}
	if len(n.events) > 0 && !n.events[ev.Type] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", ev.Type))
		return nil
	}
	title, body := Format(ev)
	return n.dispatch(ctx, title, body)
}

// Format renders an event as a title and a message body.
func Format(ev domain.LedgerEvent) (string, string) {
	var b strings.Builder
	fmt.Fprintf(&b, "market: %s", ev.MarketID)
	if ev.Side != "" {
		fmt.Fprintf(&b, "\nresult: %s", ev.Side)
	}
	if ev.UserID != "" {
		fmt.Fprintf(&b, "\nuser: %s", ev.UserID)
	}
	if ev.Amount != nil {
		fmt.Fprintf(&b, "\namount: %s", ev.Amount)
	}
	if detail, ok := ev.Payload.(string); ok && detail != "" {
		fmt.Fprintf(&b, "\n%s", detail)
	}

	var title string
	switch ev.Type {
	case domain.EventMarketResolved:
		title = "Market resolved"
	case domain.EventCreditFailed:
		title = "Balance credit failed"
	case domain.EventMarketClosed:
		title = "Market closed"
	case domain.EventRewardClaimed:
		title = "Reward claimed"
	default:
		title = strings.ReplaceAll(ev.Type, "_", " ")
	}
	return title, b.String()
}

// dispatch sends to every sender; one failing sender does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
