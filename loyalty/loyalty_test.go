package loyalty

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"loyaltyd/models"
	"loyaltyd/wallet"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=busy_timeout(10000)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func createCustomer(t *testing.T, db *gorm.DB) models.Customer {
	t.Helper()
	now := time.Now().UTC()
	customer := models.Customer{
		ID:           uuid.New(),
		Email:        uuid.NewString() + "@example.com",
		ReferralCode: strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12]),
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := db.Create(&customer).Error; err != nil {
		t.Fatalf("create customer: %v", err)
	}
	w := models.Wallet{ID: uuid.New(), CustomerID: customer.ID, CreatedAt: now, UpdatedAt: now}
	if err := db.Create(&w).Error; err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	return customer
}

func linkReferral(t *testing.T, db *gorm.DB, referrerID, referredID uuid.UUID) {
	t.Helper()
	referral := models.Referral{ID: uuid.New(), ReferrerID: referrerID, ReferredID: referredID, CreatedAt: time.Now().UTC()}
	if err := db.Create(&referral).Error; err != nil {
		t.Fatalf("create referral: %v", err)
	}
}

func incomeBalance(t *testing.T, db *gorm.DB, customerID uuid.UUID) int64 {
	t.Helper()
	var w models.Wallet
	if err := db.First(&w, "customer_id = ?", customerID).Error; err != nil {
		t.Fatalf("load wallet: %v", err)
	}
	return w.IncomeBalance
}

func newWalletService(db *gorm.DB) *wallet.Service {
	return wallet.NewService(db, nil)
}
