package loyalty

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"loyaltyd/models"
	"loyaltyd/observability"
)

// StepUpSink consumes newly issued global numbers. Implemented by
// StepUpEngine; tests substitute a stub.
type StepUpSink interface {
	OnGlobalNumberIssued(ctx context.Context, n uint64) ([]models.StepUpReward, error)
}

// AssignmentResult reports the outcome of a point-earning event.
type AssignmentResult struct {
	NumbersIssued    []uint64 `json:"numbers_issued"`
	RemainingBalance int64    `json:"remaining_balance"`
}

// Allocator owns the global number counter. It converts threshold-crossing
// convertible point earnings into sequential, gapless number grants and hands
// each new number to the step-up engine.
type Allocator struct {
	db     *gorm.DB
	stepUp StepUpSink
	log    *slog.Logger
	now    func() time.Time
}

// NewAllocator constructs the allocator. stepUp may be nil when the cascade
// is not wired (tests).
func NewAllocator(db *gorm.DB, stepUp StepUpSink, log *slog.Logger, now func() time.Time) *Allocator {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &Allocator{db: db, stepUp: stepUp, log: log, now: now}
}

// OnPointsEarned is the single entry point for every point-earning activity.
//
// Non-convertible points (step-up or ripple payouts) never trigger issuance:
// the call reports the current balance and leaves it untouched. Convertible
// points accumulate, and each full 1,500-point block claims the next global
// number under the counter row lock. The remainder, always below the
// threshold, is persisted back to the customer.
func (a *Allocator) OnPointsEarned(ctx context.Context, customerID uuid.UUID, points int64, convertible bool) (AssignmentResult, error) {
	var result AssignmentResult
	if a == nil || a.db == nil {
		return result, fmt.Errorf("loyalty: allocator not configured")
	}
	if points <= 0 {
		return result, fmt.Errorf("%w: points must be positive, got %d", ErrInvariantViolation, points)
	}

	if !convertible {
		customer, err := a.customer(ctx, customerID)
		if err != nil {
			return result, err
		}
		result.RemainingBalance = customer.LoyaltyBalance
		return result, nil
	}

	err := withRetry(ctx, func() error {
		result = AssignmentResult{}
		return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var customer models.Customer
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&customer, "id = ?", customerID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrNotFound
				}
				return err
			}
			if !customer.Active {
				return ErrCustomerInactive
			}

			balance := customer.LoyaltyBalance + points
			for balance >= PointsPerGlobalNumber {
				number, err := a.nextNumber(tx)
				if err != nil {
					return err
				}
				assignment := models.GlobalNumberAssignment{
					ID:               uuid.New(),
					Number:           number,
					CustomerID:       customer.ID,
					PointsAtIssuance: PointsPerGlobalNumber,
					IssuedAt:         a.now(),
				}
				if err := tx.Create(&assignment).Error; err != nil {
					if isDuplicateKey(err) {
						return fmt.Errorf("%w: global number %d already assigned", ErrInvariantViolation, number)
					}
					return err
				}
				balance -= PointsPerGlobalNumber
				result.NumbersIssued = append(result.NumbersIssued, number)
			}

			customer.LoyaltyBalance = balance
			customer.LifetimeEarned += points
			customer.UpdatedAt = a.now()
			if err := tx.Save(&customer).Error; err != nil {
				return err
			}
			result.RemainingBalance = balance
			return nil
		})
	})
	if err != nil {
		return AssignmentResult{}, err
	}

	for _, n := range result.NumbersIssued {
		observability.Engine().RecordNumberIssued()
		a.log.Info("global number issued", "number", n, "customer_id", customerID.String())
	}
	if a.stepUp != nil {
		for _, n := range result.NumbersIssued {
			if _, err := a.stepUp.OnGlobalNumberIssued(ctx, n); err != nil {
				// Issuance has committed; the cascade is idempotent and the
				// caller retries it by re-delivering the number.
				return result, fmt.Errorf("loyalty: cascade for number %d: %w", n, err)
			}
		}
	}
	return result, nil
}

// nextNumber increments the single counter row under a row lock and returns
// the claimed number. Two concurrent crossings can never observe the same
// value; the unique index on assignments is the backstop.
func (a *Allocator) nextNumber(tx *gorm.DB) (uint64, error) {
	var counter models.GlobalCounter
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&counter, "id = ?", 1).Error; err != nil {
		return 0, fmt.Errorf("loyalty: load counter: %w", err)
	}
	counter.Current++
	counter.UpdatedAt = a.now()
	if err := tx.Save(&counter).Error; err != nil {
		return 0, fmt.Errorf("loyalty: advance counter: %w", err)
	}
	return counter.Current, nil
}

func (a *Allocator) customer(ctx context.Context, customerID uuid.UUID) (*models.Customer, error) {
	var customer models.Customer
	if err := a.db.WithContext(ctx).First(&customer, "id = ?", customerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &customer, nil
}

// GlobalNumbers returns the numbers held by a customer in issuance order.
func (a *Allocator) GlobalNumbers(ctx context.Context, customerID uuid.UUID) ([]uint64, error) {
	if _, err := a.customer(ctx, customerID); err != nil {
		return nil, err
	}
	var assignments []models.GlobalNumberAssignment
	if err := a.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("number").
		Find(&assignments).Error; err != nil {
		return nil, err
	}
	numbers := make([]uint64, 0, len(assignments))
	for _, assignment := range assignments {
		numbers = append(numbers, assignment.Number)
	}
	return numbers, nil
}

func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "constraint failed")
}
