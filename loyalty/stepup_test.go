package loyalty

import (
	"context"
	"testing"

	"gorm.io/gorm"

	"loyaltyd/models"
)

// issueNumbers mints 1..k across the supplied customers round-robin without
// firing the cascade, so tests control exactly when OnGlobalNumberIssued runs.
func issueNumbers(t *testing.T, db *gorm.DB, customers []models.Customer, k int) {
	t.Helper()
	allocator := NewAllocator(db, nil, nil, nil)
	for i := 0; i < k; i++ {
		owner := customers[i%len(customers)]
		if _, err := allocator.OnPointsEarned(context.Background(), owner.ID, 1_500, true); err != nil {
			t.Fatalf("issue number %d: %v", i+1, err)
		}
	}
}

// Scenario A: the first global number fires no step-up because no smaller
// assignment can satisfy any multiplier.
func TestStepUpNoRewardForFirstNumber(t *testing.T) {
	db := setupTestDB(t)
	engine := NewStepUpEngine(db, newWalletService(db), nil, nil, nil, nil)
	customer := createCustomer(t, db)
	issueNumbers(t, db, []models.Customer{customer}, 1)

	awarded, err := engine.OnGlobalNumberIssued(context.Background(), 1)
	if err != nil {
		t.Fatalf("on issued: %v", err)
	}
	if len(awarded) != 0 {
		t.Fatalf("expected no rewards, got %d", len(awarded))
	}
}

// Scenario B: issuing #5 pays 500 to the holder of #1 and nothing to #2..#4.
func TestStepUpFifthNumberPaysFirstHolder(t *testing.T) {
	db := setupTestDB(t)
	engine := NewStepUpEngine(db, newWalletService(db), nil, nil, nil, nil)

	customers := make([]models.Customer, 5)
	for i := range customers {
		customers[i] = createCustomer(t, db)
	}
	issueNumbers(t, db, customers, 5)

	awarded, err := engine.OnGlobalNumberIssued(context.Background(), 5)
	if err != nil {
		t.Fatalf("on issued: %v", err)
	}
	if len(awarded) != 1 {
		t.Fatalf("expected 1 reward got %d", len(awarded))
	}
	reward := awarded[0]
	if reward.RecipientGlobalNumber != 1 || reward.TriggerGlobalNumber != 5 || reward.Multiplier != 5 {
		t.Fatalf("unexpected reward combination: %+v", reward)
	}
	if reward.RewardPoints != 500 {
		t.Fatalf("expected 500 points got %d", reward.RewardPoints)
	}
	if got := incomeBalance(t, db, customers[0].ID); got != 500 {
		t.Fatalf("expected holder of #1 income 500 got %d", got)
	}
	for _, other := range customers[1:] {
		if got := incomeBalance(t, db, other.ID); got != 0 {
			t.Fatalf("unexpected credit %d for non-eligible holder", got)
		}
	}
}

// Scenario C: issuing #25 pays both the holder of #1 (x25) and #5 (x5) from
// the same event.
func TestStepUpMultipleTiersFireTogether(t *testing.T) {
	db := setupTestDB(t)
	engine := NewStepUpEngine(db, newWalletService(db), nil, nil, nil, nil)

	customers := make([]models.Customer, 25)
	for i := range customers {
		customers[i] = createCustomer(t, db)
	}
	issueNumbers(t, db, customers, 25)

	awarded, err := engine.OnGlobalNumberIssued(context.Background(), 25)
	if err != nil {
		t.Fatalf("on issued: %v", err)
	}
	if len(awarded) != 2 {
		t.Fatalf("expected 2 rewards got %d", len(awarded))
	}
	byRecipient := map[uint64]models.StepUpReward{}
	for _, reward := range awarded {
		byRecipient[reward.RecipientGlobalNumber] = reward
	}
	if reward, ok := byRecipient[5]; !ok || reward.Multiplier != 5 || reward.RewardPoints != 500 {
		t.Fatalf("holder of #5 reward wrong: %+v", byRecipient[5])
	}
	if reward, ok := byRecipient[1]; !ok || reward.Multiplier != 25 || reward.RewardPoints != 1_500 {
		t.Fatalf("holder of #1 reward wrong: %+v", byRecipient[1])
	}
	if got := incomeBalance(t, db, customers[0].ID); got != 1_500 {
		t.Fatalf("expected holder of #1 income 1500 got %d", got)
	}
	if got := incomeBalance(t, db, customers[4].ID); got != 500 {
		t.Fatalf("expected holder of #5 income 500 got %d", got)
	}
}

// Scenario E: re-delivering the same issuance event credits only once.
func TestStepUpRedeliveryIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	engine := NewStepUpEngine(db, newWalletService(db), nil, nil, nil, nil)

	customers := make([]models.Customer, 5)
	for i := range customers {
		customers[i] = createCustomer(t, db)
	}
	issueNumbers(t, db, customers, 5)

	first, err := engine.OnGlobalNumberIssued(context.Background(), 5)
	if err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("expected 1 reward got %d", len(first))
	}
	second, err := engine.OnGlobalNumberIssued(context.Background(), 5)
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("redelivery produced %d rewards", len(second))
	}

	var count int64
	if err := db.Model(&models.StepUpReward{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 reward record got %d", count)
	}
	if got := incomeBalance(t, db, customers[0].ID); got != 500 {
		t.Fatalf("expected single 500 credit, balance %d", got)
	}
}

func TestStepUpSkipsUnassignedRecipient(t *testing.T) {
	db := setupTestDB(t)
	engine := NewStepUpEngine(db, newWalletService(db), nil, nil, nil, nil)
	customer := createCustomer(t, db)
	issueNumbers(t, db, []models.Customer{customer}, 1)

	// Number 10 divides by 5 to recipient 2, which was never issued.
	awarded, err := engine.OnGlobalNumberIssued(context.Background(), 10)
	if err != nil {
		t.Fatalf("on issued: %v", err)
	}
	if len(awarded) != 0 {
		t.Fatalf("expected no rewards for unassigned recipient, got %d", len(awarded))
	}
}

func TestStepUpRejectsZeroNumber(t *testing.T) {
	db := setupTestDB(t)
	engine := NewStepUpEngine(db, newWalletService(db), nil, nil, nil, nil)

	if _, err := engine.OnGlobalNumberIssued(context.Background(), 0); err == nil {
		t.Fatalf("expected error for number 0")
	}
}

func TestStepUpQueries(t *testing.T) {
	db := setupTestDB(t)
	engine := NewStepUpEngine(db, newWalletService(db), nil, nil, nil, nil)

	customers := make([]models.Customer, 25)
	for i := range customers {
		customers[i] = createCustomer(t, db)
	}
	issueNumbers(t, db, customers, 25)
	for n := uint64(1); n <= 25; n++ {
		if _, err := engine.OnGlobalNumberIssued(context.Background(), n); err != nil {
			t.Fatalf("cascade for %d: %v", n, err)
		}
	}

	// Holder of #1 received x5 (from #5) and x25 (from #25).
	rewards, err := engine.RewardsFor(context.Background(), customers[0].ID)
	if err != nil {
		t.Fatalf("rewards for: %v", err)
	}
	if len(rewards) != 2 {
		t.Fatalf("expected 2 rewards got %d", len(rewards))
	}
	total, err := engine.TotalEarned(context.Background(), customers[0].ID)
	if err != nil {
		t.Fatalf("total earned: %v", err)
	}
	if total != 2_000 {
		t.Fatalf("expected total 2000 got %d", total)
	}
}
