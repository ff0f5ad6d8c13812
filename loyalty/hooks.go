package loyalty

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"loyaltyd/observability"
)

// HookHandler reacts to a reward credit that matched a configured threshold.
// Handlers run after the credit transaction has committed; returned errors are
// logged and counted but never fed back into the cascade.
type HookHandler func(ctx context.Context, customerID uuid.UUID, amount int64) error

type registeredHook struct {
	name    string
	handler HookHandler
}

// HookDispatcher routes reward credits to subscribers keyed by exact credit
// amount. External modules (vouchers, infinity bonuses) subscribe without the
// engines depending on them.
type HookDispatcher struct {
	mu       sync.RWMutex
	handlers map[int64][]registeredHook
	log      *slog.Logger
}

// NewHookDispatcher constructs an empty dispatcher.
func NewHookDispatcher(log *slog.Logger) *HookDispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &HookDispatcher{handlers: make(map[int64][]registeredHook), log: log}
}

// Register subscribes handler to credits of exactly threshold points.
// Multiple handlers may share a threshold; they run in registration order.
func (d *HookDispatcher) Register(threshold int64, name string, handler HookHandler) {
	if d == nil || handler == nil || threshold <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[threshold] = append(d.handlers[threshold], registeredHook{name: name, handler: handler})
}

// Dispatch invokes every handler registered for the credited amount.
func (d *HookDispatcher) Dispatch(ctx context.Context, customerID uuid.UUID, amount int64) {
	if d == nil {
		return
	}
	d.mu.RLock()
	hooks := d.handlers[amount]
	d.mu.RUnlock()
	for _, h := range hooks {
		err := h.handler(ctx, customerID, amount)
		observability.Engine().RecordHookDispatch(h.name, err)
		if err != nil {
			d.log.Error("threshold hook failed",
				"hook", h.name,
				"customer_id", customerID.String(),
				"amount", amount,
				"error", err.Error(),
			)
		}
	}
}
