package loyalty

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"loyaltyd/models"
	"loyaltyd/observability"
	"loyaltyd/wallet"
)

// RippleSink consumes step-up credits and pays referrer rewards. Implemented
// by RippleEngine; tests substitute a stub.
type RippleSink interface {
	OnStepUpCredited(ctx context.Context, referredCustomerID uuid.UUID, stepUpAmount int64) (*models.RippleReward, error)
}

// StepUpEngine pays multiplier rewards to existing global number holders when
// a new number is issued. Eligibility is a divisibility check against the
// fixed table, not a scan over customers: for each multiplier m with
// N mod m == 0, the holder of N/m (if assigned) earns the paired reward.
type StepUpEngine struct {
	db     *gorm.DB
	wallet *wallet.Service
	ripple RippleSink
	hooks  *HookDispatcher
	log    *slog.Logger
	now    func() time.Time
}

// NewStepUpEngine constructs the step-up engine. ripple and hooks may be nil
// when the downstream stages are not wired (tests).
func NewStepUpEngine(db *gorm.DB, walletSvc *wallet.Service, ripple RippleSink, hooks *HookDispatcher, log *slog.Logger, now func() time.Time) *StepUpEngine {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &StepUpEngine{db: db, wallet: walletSvc, ripple: ripple, hooks: hooks, log: log, now: now}
}

// OnGlobalNumberIssued evaluates every multiplier tier for the newly issued
// number and pays each eligible holder exactly once. Re-delivery of the same
// number is safe: the composite uniqueness key on the reward record rejects
// the replay and the credit is skipped.
func (e *StepUpEngine) OnGlobalNumberIssued(ctx context.Context, n uint64) ([]models.StepUpReward, error) {
	if e == nil || e.db == nil {
		return nil, fmt.Errorf("loyalty: step-up engine not configured")
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: global number must be positive", ErrInvariantViolation)
	}

	var awarded []models.StepUpReward
	for _, tier := range StepUpTable {
		if n%tier.Multiplier != 0 {
			continue
		}
		recipientNumber := n / tier.Multiplier
		if recipientNumber == 0 {
			continue
		}

		var assignment models.GlobalNumberAssignment
		err := e.db.WithContext(ctx).First(&assignment, "number = ?", recipientNumber).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return awarded, err
		}

		record := models.StepUpReward{
			ID:                    uuid.New(),
			RecipientCustomerID:   assignment.CustomerID,
			RecipientGlobalNumber: recipientNumber,
			TriggerGlobalNumber:   n,
			Multiplier:            tier.Multiplier,
			RewardPoints:          tier.Reward,
			AwardedAt:             e.now(),
		}
		err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&record)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrDuplicateIgnored
			}
			_, err := e.wallet.CreditTx(tx, assignment.CustomerID, models.TrackIncome, tier.Reward,
				fmt.Sprintf("step-up reward: number %d triggered by %d (x%d)", recipientNumber, n, tier.Multiplier),
				map[string]string{
					"recipientGlobalNumber": strconv.FormatUint(recipientNumber, 10),
					"triggerGlobalNumber":   strconv.FormatUint(n, 10),
					"multiplier":            strconv.FormatUint(tier.Multiplier, 10),
				})
			return err
		})
		if errors.Is(err, ErrDuplicateIgnored) {
			observability.Engine().RecordDuplicateSuppressed("stepup")
			continue
		}
		if err != nil {
			return awarded, err
		}

		observability.Engine().RecordStepUpAward(strconv.FormatUint(tier.Multiplier, 10))
		e.log.Info("step-up reward awarded",
			"recipient_id", assignment.CustomerID.String(),
			"recipient_number", recipientNumber,
			"trigger_number", n,
			"multiplier", tier.Multiplier,
			"reward", tier.Reward,
		)
		awarded = append(awarded, record)

		if e.ripple != nil {
			if _, err := e.ripple.OnStepUpCredited(ctx, assignment.CustomerID, tier.Reward); err != nil {
				return awarded, err
			}
		}
		if e.hooks != nil {
			e.hooks.Dispatch(ctx, assignment.CustomerID, tier.Reward)
		}
	}
	return awarded, nil
}

// RewardsFor returns the step-up rewards received by a customer, newest first.
func (e *StepUpEngine) RewardsFor(ctx context.Context, customerID uuid.UUID) ([]models.StepUpReward, error) {
	var rewards []models.StepUpReward
	err := e.db.WithContext(ctx).
		Where("recipient_customer_id = ?", customerID).
		Order("awarded_at DESC, trigger_global_number DESC").
		Find(&rewards).Error
	return rewards, err
}

// TotalEarned returns the lifetime step-up points received by a customer.
func (e *StepUpEngine) TotalEarned(ctx context.Context, customerID uuid.UUID) (int64, error) {
	var total int64
	err := e.db.WithContext(ctx).
		Model(&models.StepUpReward{}).
		Where("recipient_customer_id = ?", customerID).
		Select("COALESCE(SUM(reward_points), 0)").
		Scan(&total).Error
	return total, err
}
