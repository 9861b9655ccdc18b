package notify

import (
	"context"
	"log/slog"

	"github.com/mmynk/splitledger/internal/coordinator"
	"github.com/mmynk/splitledger/internal/metrics"
	"github.com/mmynk/splitledger/internal/models"
)

// Dispatcher applies Decide to fresh transactions and emits the results.
type Dispatcher struct {
	userID  string
	emitter Emitter
}

// NewDispatcher creates a dispatcher for userID's session.
func NewDispatcher(userID string, emitter Emitter) *Dispatcher {
	return &Dispatcher{userID: userID, emitter: emitter}
}

// Run consumes fresh until it is closed or ctx is done.
func (d *Dispatcher) Run(ctx context.Context, fresh <-chan coordinator.FreshTransaction) {
	for {
		select {
		case ft, ok := <-fresh:
			if !ok {
				return
			}
			d.Handle(ctx, ft)
		case <-ctx.Done():
			return
		}
	}
}

// Handle decides on and emits one fresh transaction. Emit failures are logged;
// the transaction is not retried.
func (d *Dispatcher) Handle(ctx context.Context, ft coordinator.FreshTransaction) {
	kind := string(ft.Transaction.Kind)

	// Without a directory entry for ourselves there is nobody to notify.
	current, ok := ft.State.User(d.userID)
	if !ok {
		metrics.Notifications.WithLabelValues(kind, "suppressed").Inc()
		return
	}
	group, ok := ft.State.Group(ft.Transaction.GroupID)
	if !ok {
		group = models.Group{ID: ft.Transaction.GroupID}
	}

	n, notify := Decide(ft.Transaction, group, current, ft.State.Directory())
	if !notify {
		metrics.Notifications.WithLabelValues(kind, "suppressed").Inc()
		return
	}

	if err := d.emitter.Emit(ctx, current, n); err != nil {
		slog.ErrorContext(ctx, "Failed to emit notification", "user_id", d.userID, "transaction_id", ft.Transaction.ID, "error", err)
		metrics.Notifications.WithLabelValues(kind, "failed").Inc()
		return
	}
	metrics.Notifications.WithLabelValues(kind, "emitted").Inc()
}
