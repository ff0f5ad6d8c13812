// Package wallet implements the ledger-backed balance primitive shared by the
// reward engines and the HTTP surface. Every balance mutation locks the wallet
// row, updates the stored balance and lifetime counters, and appends a ledger
// entry whose BalanceAfter mirrors the new balance, all in one transaction.
package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"loyaltyd/models"
	"loyaltyd/observability"
)

var (
	// ErrWalletNotFound indicates the customer has no wallet row.
	ErrWalletNotFound = errors.New("wallet: not found")
	// ErrAmountNotPositive is returned when a credit or debit amount is zero or negative.
	ErrAmountNotPositive = errors.New("wallet: amount must be positive")
	// ErrDescriptionRequired is returned when a ledger description is missing.
	ErrDescriptionRequired = errors.New("wallet: description is required")
	// ErrInvalidTrack indicates an unknown balance track.
	ErrInvalidTrack = errors.New("wallet: invalid track")
	// ErrInsufficientFunds is returned when a debit exceeds the track balance.
	ErrInsufficientFunds = errors.New("wallet: insufficient funds")
	// ErrReconciliation indicates the ledger sum diverged from the stored balance.
	ErrReconciliation = errors.New("wallet: ledger does not reconcile")
)

// Service exposes wallet credit, debit and transfer operations.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService constructs a wallet service backed by the provided database.
func NewService(db *gorm.DB, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{db: db, now: now}
}

// EncodeMetadata serialises ledger metadata for storage. Empty maps collapse
// to the empty string.
func EncodeMetadata(meta map[string]string) string {
	if len(meta) == 0 {
		return ""
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return ""
	}
	return string(data)
}

func validTrack(track models.Track) bool {
	switch track {
	case models.TrackRewardPoints, models.TrackIncome, models.TrackCommerce:
		return true
	}
	return false
}

// Credit adds amount to the customer's balance for track inside its own
// transaction and returns the balance after the credit.
func (s *Service) Credit(ctx context.Context, customerID uuid.UUID, track models.Track, amount int64, description string, meta map[string]string) (int64, error) {
	var after int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		after, txErr = s.CreditTx(tx, customerID, track, amount, description, meta)
		return txErr
	})
	return after, err
}

// CreditTx applies a credit within the caller's transaction. The reward
// engines use it so a payout commits atomically with its uniqueness record.
func (s *Service) CreditTx(tx *gorm.DB, customerID uuid.UUID, track models.Track, amount int64, description string, meta map[string]string) (int64, error) {
	return s.apply(tx, customerID, track, models.DirectionCredit, amount, description, meta)
}

// Debit removes amount from the customer's balance for track.
func (s *Service) Debit(ctx context.Context, customerID uuid.UUID, track models.Track, amount int64, description string, meta map[string]string) (int64, error) {
	var after int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		after, txErr = s.DebitTx(tx, customerID, track, amount, description, meta)
		return txErr
	})
	return after, err
}

// DebitTx applies a debit within the caller's transaction.
func (s *Service) DebitTx(tx *gorm.DB, customerID uuid.UUID, track models.Track, amount int64, description string, meta map[string]string) (int64, error) {
	return s.apply(tx, customerID, track, models.DirectionDebit, amount, description, meta)
}

func (s *Service) apply(tx *gorm.DB, customerID uuid.UUID, track models.Track, direction models.Direction, amount int64, description string, meta map[string]string) (int64, error) {
	if amount <= 0 {
		return 0, ErrAmountNotPositive
	}
	if description == "" {
		return 0, ErrDescriptionRequired
	}
	if !validTrack(track) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTrack, track)
	}

	var w models.Wallet
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&w, "customer_id = ?", customerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrWalletNotFound
		}
		return 0, err
	}

	balance := w.Balance(track)
	if direction == models.DirectionDebit && balance < amount {
		return 0, fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, balance, amount)
	}

	after := balance + amount
	if direction == models.DirectionDebit {
		after = balance - amount
	}
	setBalance(&w, track, direction, amount, after)
	w.UpdatedAt = s.now()
	if err := tx.Save(&w).Error; err != nil {
		return 0, err
	}

	entry := models.WalletLedgerEntry{
		ID:           uuid.New(),
		WalletID:     w.ID,
		Track:        track,
		Direction:    direction,
		Amount:       amount,
		BalanceAfter: after,
		Description:  description,
		Metadata:     EncodeMetadata(meta),
		CreatedAt:    s.now(),
	}
	if err := tx.Create(&entry).Error; err != nil {
		return 0, err
	}
	observability.Wallet().RecordLedgerEntry(string(track), string(direction))
	return after, nil
}

func setBalance(w *models.Wallet, track models.Track, direction models.Direction, amount, after int64) {
	switch track {
	case models.TrackRewardPoints:
		w.RewardPointsBalance = after
		if direction == models.DirectionCredit {
			w.RewardPointsEarned += amount
		} else {
			w.RewardPointsSpent += amount
		}
	case models.TrackIncome:
		w.IncomeBalance = after
		if direction == models.DirectionCredit {
			w.IncomeEarned += amount
		} else {
			w.IncomeSpent += amount
		}
	case models.TrackCommerce:
		w.CommerceBalance = after
		if direction == models.DirectionCredit {
			w.CommerceEarned += amount
		} else {
			w.CommerceSpent += amount
		}
	}
}

// TransferResult reports the balances after an inter-track transfer.
type TransferResult struct {
	FromBalance int64
	ToBalance   int64
	Fee         int64
}

// Transfer moves amount from one track to another for the same customer,
// charging feeBps basis points on the way. Debit, credit and fee all commit
// or none do.
func (s *Service) Transfer(ctx context.Context, customerID uuid.UUID, from, to models.Track, amount int64, feeBps uint32) (TransferResult, error) {
	var result TransferResult
	if from == to {
		return result, fmt.Errorf("%w: transfer between identical tracks", ErrInvalidTrack)
	}
	fee := amount * int64(feeBps) / 10_000
	credited := amount - fee
	if credited <= 0 {
		return result, ErrAmountNotPositive
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		desc := fmt.Sprintf("transfer %s->%s", from, to)
		fromAfter, err := s.DebitTx(tx, customerID, from, amount, desc, map[string]string{"fee": fmt.Sprintf("%d", fee)})
		if err != nil {
			return err
		}
		toAfter, err := s.CreditTx(tx, customerID, to, credited, desc, nil)
		if err != nil {
			return err
		}
		if err := markTransferred(tx, customerID, from, amount); err != nil {
			return err
		}
		result = TransferResult{FromBalance: fromAfter, ToBalance: toAfter, Fee: fee}
		return nil
	})
	return result, err
}

func markTransferred(tx *gorm.DB, customerID uuid.UUID, track models.Track, amount int64) error {
	column := ""
	switch track {
	case models.TrackRewardPoints:
		column = "reward_points_transferred"
	case models.TrackIncome:
		column = "income_transferred"
	case models.TrackCommerce:
		column = "commerce_transferred"
	default:
		return ErrInvalidTrack
	}
	return tx.Model(&models.Wallet{}).
		Where("customer_id = ?", customerID).
		UpdateColumn(column, gorm.Expr(column+" + ?", amount)).Error
}

// Get returns the wallet row for the customer.
func (s *Service) Get(ctx context.Context, customerID uuid.UUID) (*models.Wallet, error) {
	var w models.Wallet
	if err := s.db.WithContext(ctx).First(&w, "customer_id = ?", customerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &w, nil
}

// Ledger returns the most recent ledger entries for the customer, optionally
// filtered to a single track.
func (s *Service) Ledger(ctx context.Context, customerID uuid.UUID, track models.Track, limit int) ([]models.WalletLedgerEntry, error) {
	w, err := s.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := s.db.WithContext(ctx).Where("wallet_id = ?", w.ID)
	if track != "" {
		if !validTrack(track) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTrack, track)
		}
		query = query.Where("track = ?", track)
	}
	var entries []models.WalletLedgerEntry
	if err := query.Order("created_at DESC, id").Limit(limit).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// Reconcile verifies that for every track the sum of signed ledger entries
// reproduces the stored balance. A divergence is an invariant violation and
// is surfaced, never corrected.
func (s *Service) Reconcile(ctx context.Context, customerID uuid.UUID) error {
	w, err := s.Get(ctx, customerID)
	if err != nil {
		return err
	}
	for _, track := range []models.Track{models.TrackRewardPoints, models.TrackIncome, models.TrackCommerce} {
		var entries []models.WalletLedgerEntry
		if err := s.db.WithContext(ctx).
			Where("wallet_id = ? AND track = ?", w.ID, track).
			Find(&entries).Error; err != nil {
			return err
		}
		var sum int64
		for _, e := range entries {
			if e.Direction == models.DirectionCredit {
				sum += e.Amount
			} else {
				sum -= e.Amount
			}
		}
		if sum != w.Balance(track) {
			return fmt.Errorf("%w: track %s ledger sum %d, stored balance %d", ErrReconciliation, track, sum, w.Balance(track))
		}
	}
	return nil
}
