package loyalty

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
)

func TestHookDispatchMatchesExactAmount(t *testing.T) {
	dispatcher := NewHookDispatcher(nil)

	var fired atomic.Int64
	dispatcher.Register(30_000, "bonus-voucher", func(ctx context.Context, customerID uuid.UUID, amount int64) error {
		fired.Add(1)
		return nil
	})

	dispatcher.Dispatch(context.Background(), uuid.New(), 500)
	if fired.Load() != 0 {
		t.Fatalf("hook fired for non-matching amount")
	}
	dispatcher.Dispatch(context.Background(), uuid.New(), 30_000)
	if fired.Load() != 1 {
		t.Fatalf("expected 1 invocation got %d", fired.Load())
	}
}

func TestHookMultipleSubscribersShareThreshold(t *testing.T) {
	dispatcher := NewHookDispatcher(nil)

	var order []string
	dispatcher.Register(30_000, "bonus-voucher", func(ctx context.Context, customerID uuid.UUID, amount int64) error {
		order = append(order, "voucher")
		return nil
	})
	dispatcher.Register(30_000, "infinity-reward", func(ctx context.Context, customerID uuid.UUID, amount int64) error {
		order = append(order, "infinity")
		return nil
	})

	dispatcher.Dispatch(context.Background(), uuid.New(), 30_000)
	if len(order) != 2 || order[0] != "voucher" || order[1] != "infinity" {
		t.Fatalf("expected registration order [voucher infinity] got %v", order)
	}
}

func TestHookErrorDoesNotStopDispatch(t *testing.T) {
	dispatcher := NewHookDispatcher(nil)

	var secondRan bool
	dispatcher.Register(500, "failing", func(ctx context.Context, customerID uuid.UUID, amount int64) error {
		return errors.New("boom")
	})
	dispatcher.Register(500, "following", func(ctx context.Context, customerID uuid.UUID, amount int64) error {
		secondRan = true
		return nil
	})

	dispatcher.Dispatch(context.Background(), uuid.New(), 500)
	if !secondRan {
		t.Fatalf("handler after a failing hook did not run")
	}
}

func TestHookRegisterIgnoresInvalid(t *testing.T) {
	dispatcher := NewHookDispatcher(nil)
	dispatcher.Register(0, "zero", func(ctx context.Context, customerID uuid.UUID, amount int64) error { return nil })
	dispatcher.Register(100, "nil-handler", nil)
	dispatcher.Dispatch(context.Background(), uuid.New(), 0)
	dispatcher.Dispatch(context.Background(), uuid.New(), 100)
}
