package loyalty

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"loyaltyd/models"
	"loyaltyd/wallet"
)

type cascadeFixture struct {
	db        *gorm.DB
	wallet    *wallet.Service
	allocator *Allocator
	stepUp    *StepUpEngine
	ripple    *RippleEngine
	hooks     *HookDispatcher
}

func newCascadeFixture(t *testing.T) *cascadeFixture {
	t.Helper()
	db := setupTestDB(t)
	walletSvc := newWalletService(db)
	hooks := NewHookDispatcher(nil)
	ripple := NewRippleEngine(db, walletSvc, nil, nil)
	stepUp := NewStepUpEngine(db, walletSvc, ripple, hooks, nil, nil)
	allocator := NewAllocator(db, stepUp, nil, nil)
	return &cascadeFixture{db: db, wallet: walletSvc, allocator: allocator, stepUp: stepUp, ripple: ripple, hooks: hooks}
}

// Full pipeline: five customers each cross the threshold; the fifth issuance
// pays the first holder, whose referrer then earns the ripple band reward.
func TestCascadeEndToEnd(t *testing.T) {
	f := newCascadeFixture(t)

	referrer := createCustomer(t, f.db)
	customers := make([]models.Customer, 5)
	for i := range customers {
		customers[i] = createCustomer(t, f.db)
	}
	linkReferral(t, f.db, referrer.ID, customers[0].ID)

	for _, c := range customers {
		result, err := f.allocator.OnPointsEarned(context.Background(), c.ID, 1_500, true)
		if err != nil {
			t.Fatalf("earn for %s: %v", c.ID, err)
		}
		if len(result.NumbersIssued) != 1 {
			t.Fatalf("expected one number per customer, got %v", result.NumbersIssued)
		}
	}

	if got := incomeBalance(t, f.db, customers[0].ID); got != 500 {
		t.Fatalf("expected holder of #1 step-up 500 got %d", got)
	}
	if got := incomeBalance(t, f.db, referrer.ID); got != 50 {
		t.Fatalf("expected referrer ripple 50 got %d", got)
	}

	// Reward credits live in the wallet, never in the loyalty balance.
	var holder models.Customer
	if err := f.db.First(&holder, "id = ?", customers[0].ID).Error; err != nil {
		t.Fatalf("load holder: %v", err)
	}
	if holder.LoyaltyBalance != 0 {
		t.Fatalf("step-up credit leaked into loyalty balance: %d", holder.LoyaltyBalance)
	}

	for _, c := range append(customers, referrer) {
		if err := f.wallet.Reconcile(context.Background(), c.ID); err != nil {
			t.Fatalf("reconcile %s: %v", c.ID, err)
		}
	}
}

// Replaying an entire earning sequence's cascade must not double-pay anyone.
func TestCascadeRedeliveryAfterFullRun(t *testing.T) {
	f := newCascadeFixture(t)

	customers := make([]models.Customer, 25)
	for i := range customers {
		customers[i] = createCustomer(t, f.db)
	}
	for _, c := range customers {
		if _, err := f.allocator.OnPointsEarned(context.Background(), c.ID, 1_500, true); err != nil {
			t.Fatalf("earn: %v", err)
		}
	}

	var before int64
	if err := f.db.Model(&models.StepUpReward{}).Count(&before).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	for n := uint64(1); n <= 25; n++ {
		if _, err := f.stepUp.OnGlobalNumberIssued(context.Background(), n); err != nil {
			t.Fatalf("redeliver %d: %v", n, err)
		}
	}
	var after int64
	if err := f.db.Model(&models.StepUpReward{}).Count(&after).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if before != after {
		t.Fatalf("redelivery minted rewards: before=%d after=%d", before, after)
	}

	// Exactly one record per eligible (G, m) pair with G*m <= 25.
	expected := int64(0)
	for _, tier := range StepUpTable {
		for g := uint64(1); g*tier.Multiplier <= 25; g++ {
			expected++
		}
	}
	if after != expected {
		t.Fatalf("expected %d step-up records got %d", expected, after)
	}
}

// A threshold hook fires once per matching credit, after the wallet credit
// has committed.
func TestCascadeThresholdHookFires(t *testing.T) {
	f := newCascadeFixture(t)

	var hookCalls atomic.Int64
	f.hooks.Register(500, "observer", func(ctx context.Context, customerID uuid.UUID, amount int64) error {
		if got := incomeBalance(t, f.db, customerID); got < amount {
			t.Errorf("hook observed uncommitted credit: balance %d < %d", got, amount)
		}
		hookCalls.Add(1)
		return nil
	})

	customers := make([]models.Customer, 5)
	for i := range customers {
		customers[i] = createCustomer(t, f.db)
		if _, err := f.allocator.OnPointsEarned(context.Background(), customers[i].ID, 1_500, true); err != nil {
			t.Fatalf("earn: %v", err)
		}
	}

	if hookCalls.Load() != 1 {
		t.Fatalf("expected 1 hook call got %d", hookCalls.Load())
	}
}
