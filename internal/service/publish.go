// Package service wires the market engine together: each service owns one
// inbound flow (bets, P2P orders, oracle actions, LP events), orchestrating
// the market manager, order book, position tracker, pool manager, and
// settlement coordinator, and broadcasting an event for every state mutation
// in the order the mutations were applied.
package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/openodds/markethub/internal/domain"
)

// publish marshals detail and sends it on the signal bus. Broadcast is a
// collaborator: a publish failure is logged and never fails the operation
// that triggered it.
func publish(ctx context.Context, bus domain.SignalBus, logger *slog.Logger, channel string, detail map[string]any) {
	if bus == nil {
		return
	}
	payload, err := json.Marshal(detail)
	if err != nil {
		logger.WarnContext(ctx, "marshal event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := bus.Publish(ctx, channel, payload); err != nil {
		logger.WarnContext(ctx, "publish event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

// auditLog writes an audit entry, logging instead of failing when the audit
// store is down.
func auditLog(ctx context.Context, audit domain.AuditStore, logger *slog.Logger, event string, detail map[string]any) {
	if audit == nil {
		return
	}
	if err := audit.Log(ctx, event, detail); err != nil {
		logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
