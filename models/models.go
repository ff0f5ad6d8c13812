package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Track identifies one of the three independent wallet balances.
type Track string

// All wallet tracks.
const (
	TrackRewardPoints Track = "rewardPoints"
	TrackIncome       Track = "income"
	TrackCommerce     Track = "commerce"
)

// Direction marks a ledger entry as a credit or a debit.
type Direction string

// Ledger entry directions.
const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// Customer stores a loyalty member. Customers are deactivated, never deleted.
type Customer struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	Email          string    `gorm:"uniqueIndex;size:255"`
	ReferralCode   string    `gorm:"uniqueIndex;size:32"`
	LoyaltyBalance int64     `gorm:"not null"`
	LifetimeEarned int64     `gorm:"not null"`
	Active         bool      `gorm:"not null;default:true"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// GlobalCounter is the single persisted source of truth for global number
// issuance. Exactly one row exists; it is always read under a row lock.
type GlobalCounter struct {
	ID        uint   `gorm:"primaryKey"`
	Current   uint64 `gorm:"not null"`
	UpdatedAt time.Time
}

// GlobalNumberAssignment records one global number grant. Immutable once
// created; the unique index on Number is the gapless-issuance safety net.
type GlobalNumberAssignment struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	Number           uint64    `gorm:"uniqueIndex;not null"`
	CustomerID       uuid.UUID `gorm:"type:uuid;index"`
	PointsAtIssuance int64     `gorm:"not null"`
	IssuedAt         time.Time
}

// Wallet carries the three per-customer balances with lifetime counters.
// Balances are mutated only through the ledger-append primitive in the wallet
// package, never written directly by handlers or engines.
type Wallet struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	CustomerID uuid.UUID `gorm:"type:uuid;uniqueIndex"`

	RewardPointsBalance     int64 `gorm:"not null"`
	RewardPointsEarned      int64 `gorm:"not null"`
	RewardPointsSpent       int64 `gorm:"not null"`
	RewardPointsTransferred int64 `gorm:"not null"`

	IncomeBalance     int64 `gorm:"not null"`
	IncomeEarned      int64 `gorm:"not null"`
	IncomeSpent       int64 `gorm:"not null"`
	IncomeTransferred int64 `gorm:"not null"`

	CommerceBalance     int64 `gorm:"not null"`
	CommerceEarned      int64 `gorm:"not null"`
	CommerceSpent       int64 `gorm:"not null"`
	CommerceTransferred int64 `gorm:"not null"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Balance returns the current balance for the supplied track.
func (w *Wallet) Balance(track Track) int64 {
	switch track {
	case TrackRewardPoints:
		return w.RewardPointsBalance
	case TrackIncome:
		return w.IncomeBalance
	case TrackCommerce:
		return w.CommerceBalance
	}
	return 0
}

// WalletLedgerEntry is the append-only audit trail for wallet mutations.
// BalanceAfter of the latest entry for a (wallet, track) pair always equals
// the stored balance for that track.
type WalletLedgerEntry struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	WalletID     uuid.UUID `gorm:"type:uuid;index:idx_ledger_wallet_track"`
	Track        Track     `gorm:"size:16;index:idx_ledger_wallet_track"`
	Direction    Direction `gorm:"size:8"`
	Amount       int64     `gorm:"not null"`
	BalanceAfter int64     `gorm:"not null"`
	Description  string    `gorm:"size:255;not null"`
	Metadata     string    `gorm:"type:text"`
	CreatedAt    time.Time
}

// StepUpReward records one multiplier reward payout. The composite unique
// index guarantees at most one award per eligible combination, for all time.
type StepUpReward struct {
	ID                    uuid.UUID `gorm:"type:uuid;primaryKey"`
	RecipientCustomerID   uuid.UUID `gorm:"type:uuid;index"`
	RecipientGlobalNumber uint64    `gorm:"uniqueIndex:idx_stepup_award;not null"`
	TriggerGlobalNumber   uint64    `gorm:"uniqueIndex:idx_stepup_award;not null"`
	Multiplier            uint64    `gorm:"uniqueIndex:idx_stepup_award;not null"`
	RewardPoints          int64     `gorm:"not null"`
	AwardedAt             time.Time
}

// RippleReward records one referrer payout triggered by a step-up credit to
// the referred customer.
type RippleReward struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey"`
	ReferrerID         uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_ripple_award;index"`
	ReferredID         uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_ripple_award"`
	StepUpRewardAmount int64     `gorm:"uniqueIndex:idx_ripple_award;not null"`
	RippleRewardAmount int64     `gorm:"not null"`
	CreatedAt          time.Time
}

// Referral links a referrer to the customer they referred. Immutable; a
// customer is referred at most once.
type Referral struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	ReferrerID uuid.UUID `gorm:"type:uuid;index"`
	ReferredID uuid.UUID `gorm:"type:uuid;uniqueIndex"`
	CreatedAt  time.Time
}

// IdempotencyKey stores request idempotency metadata for mutating endpoints.
type IdempotencyKey struct {
	Key       string `gorm:"primaryKey;size:128"`
	RequestID string `gorm:"size:64"`
	Method    string `gorm:"size:8"`
	Path      string `gorm:"size:255"`
	Status    int
	Response  string `gorm:"type:text"`
	CreatedAt time.Time
}

// AutoMigrate performs all schema migrations for the service and seeds the
// global counter row.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&Customer{},
		&GlobalCounter{},
		&GlobalNumberAssignment{},
		&Wallet{},
		&WalletLedgerEntry{},
		&StepUpReward{},
		&RippleReward{},
		&Referral{},
		&IdempotencyKey{},
	); err != nil {
		return err
	}
	return db.FirstOrCreate(&GlobalCounter{}, GlobalCounter{ID: 1}).Error
}
