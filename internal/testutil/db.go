// Package testutil provides fixtures shared by package tests.
package testutil

import (
	"fmt"
	"testing"

	"commissionledger/internal/config"
	"commissionledger/internal/infrastructure/database"
	"commissionledger/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NewDB returns a migrated, private in-memory sqlite database. The pool is pinned to
// one connection so transactions serialise the way row locks do on mysql/postgres.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := database.Open(&config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString()),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		LogLevel:     "silent",
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}

	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func CreateUser(t testing.TB, db *gorm.DB, name string, referrerID *int64) *model.User {
	t.Helper()
	u := &model.User{DisplayName: name, ReferrerID: referrerID}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

func CreateWallet(t testing.TB, db *gorm.DB, userID, balance int64) *model.Wallet {
	t.Helper()
	w := &model.Wallet{UserID: userID, Balance: balance, TotalEarned: balance}
	if err := db.Create(w).Error; err != nil {
		t.Fatalf("create wallet for user %d: %v", userID, err)
	}
	if balance > 0 {
		// seed the log so the wallet reconciles
		seed := &model.WalletTransaction{
			TransactionNo: "SEED" + uuid.NewString()[:20],
			WalletID:      w.ID,
			UserID:        userID,
			Type:          model.TransactionTypeBonus,
			Direction:     model.DirectionCredit,
			Amount:        balance,
			BalanceBefore: 0,
			BalanceAfter:  balance,
			Status:        model.TransactionStatusCompleted,
		}
		if err := db.Create(seed).Error; err != nil {
			t.Fatalf("seed wallet transaction: %v", err)
		}
	}
	return w
}

func CreateOrder(t testing.TB, db *gorm.DB, sourceUserID int64, referrerID *int64, amount int64) *model.Order {
	t.Helper()
	o := &model.Order{
		OrderNo:      "ORD" + uuid.NewString()[:12],
		SourceUserID: sourceUserID,
		ReferrerID:   referrerID,
		TotalAmount:  amount,
	}
	if err := db.Create(o).Error; err != nil {
		t.Fatalf("create order: %v", err)
	}
	return o
}

func Int64Ptr(v int64) *int64 { return &v }
