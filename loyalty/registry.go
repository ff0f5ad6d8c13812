package loyalty

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"loyaltyd/models"
)

// Registry manages customer enrolment: the customer row, its wallet and the
// optional referral link. All reads the engines rely on go through these rows.
type Registry struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRegistry constructs a registry backed by the provided database.
func NewRegistry(db *gorm.DB, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{db: db, now: now}
}

// RegisterCustomer enrols a new customer. When referredByCode resolves to an
// existing customer, an immutable referral row links the two. The customer,
// wallet and referral commit together or not at all.
func (r *Registry) RegisterCustomer(ctx context.Context, email, referredByCode string) (*models.Customer, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: invalid email", ErrInvariantViolation)
	}

	now := r.now()
	customer := models.Customer{
		ID:           uuid.New(),
		Email:        email,
		ReferralCode: newReferralCode(),
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var referrer *models.Customer
		if code := strings.TrimSpace(referredByCode); code != "" {
			var found models.Customer
			if err := tx.First(&found, "referral_code = ?", code).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrReferralCodeUnknown
				}
				return err
			}
			referrer = &found
		}

		if err := tx.Create(&customer).Error; err != nil {
			if isDuplicateKey(err) {
				return ErrEmailTaken
			}
			return err
		}
		w := models.Wallet{ID: uuid.New(), CustomerID: customer.ID, CreatedAt: now, UpdatedAt: now}
		if err := tx.Create(&w).Error; err != nil {
			return err
		}
		if referrer != nil {
			referral := models.Referral{
				ID:         uuid.New(),
				ReferrerID: referrer.ID,
				ReferredID: customer.ID,
				CreatedAt:  now,
			}
			if err := tx.Create(&referral).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

// Customer returns the customer row by id.
func (r *Registry) Customer(ctx context.Context, customerID uuid.UUID) (*models.Customer, error) {
	var customer models.Customer
	if err := r.db.WithContext(ctx).First(&customer, "id = ?", customerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &customer, nil
}

// DeactivateCustomer marks the customer inactive. Customers are never
// deleted; their numbers, rewards and ledger history remain.
func (r *Registry) DeactivateCustomer(ctx context.Context, customerID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&models.Customer{}).
		Where("id = ?", customerID).
		Updates(map[string]any{"active": false, "updated_at": r.now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func newReferralCode() string {
	// 12 hex characters of a fresh UUID keeps codes short, URL-safe and
	// collision-checked by the unique index.
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}
