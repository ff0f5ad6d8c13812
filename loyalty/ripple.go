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

// RippleEngine pays a tiered referrer reward when a referred customer
// receives a step-up credit. Single hop: ripple payouts never trigger further
// ripples and never feed the allocator.
type RippleEngine struct {
	db     *gorm.DB
	wallet *wallet.Service
	log    *slog.Logger
	now    func() time.Time
}

// NewRippleEngine constructs the ripple engine.
func NewRippleEngine(db *gorm.DB, walletSvc *wallet.Service, log *slog.Logger, now func() time.Time) *RippleEngine {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &RippleEngine{db: db, wallet: walletSvc, log: log, now: now}
}

// OnStepUpCredited looks up the referrer of the credited customer and pays
// the band-mapped ripple amount exactly once per (referrer, referred,
// step-up amount) combination. No referral or a sub-band amount is a no-op.
func (e *RippleEngine) OnStepUpCredited(ctx context.Context, referredCustomerID uuid.UUID, stepUpAmount int64) (*models.RippleReward, error) {
	if e == nil || e.db == nil {
		return nil, fmt.Errorf("loyalty: ripple engine not configured")
	}
	amount := RippleAmount(stepUpAmount)
	if amount == 0 {
		return nil, nil
	}

	var referral models.Referral
	err := e.db.WithContext(ctx).First(&referral, "referred_id = ?", referredCustomerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	record := models.RippleReward{
		ID:                 uuid.New(),
		ReferrerID:         referral.ReferrerID,
		ReferredID:         referral.ReferredID,
		StepUpRewardAmount: stepUpAmount,
		RippleRewardAmount: amount,
		CreatedAt:          e.now(),
	}
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&record)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrDuplicateIgnored
		}
		_, err := e.wallet.CreditTx(tx, referral.ReferrerID, models.TrackIncome, amount,
			fmt.Sprintf("ripple reward: referred step-up of %d", stepUpAmount),
			map[string]string{
				"referredId":   referral.ReferredID.String(),
				"stepUpAmount": strconv.FormatInt(stepUpAmount, 10),
			})
		return err
	})
	if errors.Is(err, ErrDuplicateIgnored) {
		observability.Engine().RecordDuplicateSuppressed("ripple")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	observability.Engine().RecordRippleAward()
	e.log.Info("ripple reward awarded",
		"referrer_id", referral.ReferrerID.String(),
		"referred_id", referral.ReferredID.String(),
		"step_up_amount", stepUpAmount,
		"ripple_amount", amount,
	)
	return &record, nil
}

// RewardsFor returns the ripple rewards earned by a referrer, newest first.
func (e *RippleEngine) RewardsFor(ctx context.Context, referrerID uuid.UUID) ([]models.RippleReward, error) {
	var rewards []models.RippleReward
	err := e.db.WithContext(ctx).
		Where("referrer_id = ?", referrerID).
		Order("created_at DESC").
		Find(&rewards).Error
	return rewards, err
}
