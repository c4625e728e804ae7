// Package pipeline runs the background loops: the reconciliation monitor, the
// exchange-rate poller, and the audit archiver.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/scorechain/bchbet/internal/domain"
	"github.com/scorechain/bchbet/internal/engine"
	"github.com/scorechain/bchbet/internal/notify"
)

// transactionChannel builds the signal-bus channel name for a match's
// transaction events. The websocket hub pattern-subscribes to transactions:*.
func transactionChannel(matchID string) string {
	return "transactions:" + matchID
}

// BusPublisher fans committed-transaction events out to the signal bus and,
// optionally, to the operator notifier. Failures are logged and absorbed; the
// ledger record is already durable by the time an event reaches this sink.
type BusPublisher struct {
	bus      domain.SignalBus
	notifier *notify.Notifier
	logger   *slog.Logger
}

// NewBusPublisher creates a BusPublisher. notifier may be nil.
func NewBusPublisher(bus domain.SignalBus, notifier *notify.Notifier, logger *slog.Logger) *BusPublisher {
	return &BusPublisher{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With("component", "event_publisher"),
	}
}

// TransactionAccepted publishes the event on the match's transaction channel.
func (p *BusPublisher) TransactionAccepted(ctx context.Context, evt domain.TransactionEvent) {
	payload, err := json.Marshal(evt)
	if err != nil {
		p.logger.Error("marshal transaction event", "error", err, "tx_hash", evt.Hash)
		return
	}

	if err := p.bus.Publish(ctx, transactionChannel(evt.MatchID), payload); err != nil {
		p.logger.Warn("publish transaction event failed",
			"error", err,
			"tx_hash", evt.Hash,
			"match_id", evt.MatchID)
	}

	if p.notifier != nil {
		msg := fmt.Sprintf("New bet: %d ticket(s) on %s (%s), tx %s",
			evt.Tickets, evt.Score, evt.MatchID, evt.Hash)
		_ = p.notifier.Notify(ctx, notify.EventBetAccepted, "Bet accepted", msg)
	}
}

// Compile-time interface check.
var _ engine.EventSink = (*BusPublisher)(nil)
