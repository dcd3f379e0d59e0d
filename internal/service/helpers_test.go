package service

import (
	"testing"

	"commissionledger/internal/config"
	"commissionledger/internal/model"
	"commissionledger/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testEnv struct {
	db         *gorm.DB
	cfg        *config.Config
	wallets    *WalletService
	commission *CommissionService
	withdraw   *WithdrawService
	payment    *PaymentService
	reconcile  *ReconcileService
}

func testConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{
				CommissionJob:        "commission_job",
				CommissionDeadLetter: "commission_job_dead_letter",
				PayoutRequest:        "payout_request",
			},
		},
		Business: config.BusinessConfig{
			Tier1Rate:         "0.10",
			Tier2Rate:         "0.05",
			MinWithdrawal:     100000,
			MaxRetryCount:     3,
			JobTimeoutSeconds: 10,
		},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewDB(t)
	cfg := testConfig()

	calc, err := NewCalculator(cfg.Business.Tier1Rate, cfg.Business.Tier2Rate)
	require.NoError(t, err)

	wallets := NewWalletService(db)
	return &testEnv{
		db:         db,
		cfg:        cfg,
		wallets:    wallets,
		commission: NewCommissionService(db, calc, wallets, nil, &cfg.Business),
		withdraw:   NewWithdrawService(db, wallets, nil, cfg),
		payment:    NewPaymentService(db, cfg.Kafka.Topic.CommissionJob),
		reconcile:  NewReconcileService(db, 2),
	}
}

func (e *testEnv) wallet(t *testing.T, userID int64) *model.Wallet {
	t.Helper()
	var w model.Wallet
	require.NoError(t, e.db.Where("user_id = ?", userID).First(&w).Error)
	return &w
}

func (e *testEnv) order(t *testing.T, id int64) *model.Order {
	t.Helper()
	var o model.Order
	require.NoError(t, e.db.First(&o, id).Error)
	return &o
}

func (e *testEnv) count(t *testing.T, m interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	q := e.db.Model(m)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

func jobFor(o *model.Order) model.CommissionJob {
	return model.CommissionJob{
		OrderID:      o.ID,
		OrderAmount:  o.TotalAmount,
		SourceUserID: o.SourceUserID,
		ReferrerID:   o.ReferrerID,
	}
}

// newMockDB returns a mysql-dialect gorm handle over go-sqlmock.
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}
