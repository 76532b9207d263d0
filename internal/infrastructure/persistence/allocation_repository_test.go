package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/commledger/backend/internal/domain/billing"
	"github.com/commledger/backend/internal/domain/shared"
	"github.com/commledger/backend/internal/domain/shared/valueobject"
	"github.com/commledger/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupAllocationTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.PaymentModel{}, &models.AccrualModel{}, &models.AllocationModel{})
	require.NoError(t, err)
	return db
}

func seedPayment(t *testing.T, db *gorm.DB, propertyID uuid.UUID, amount string) *billing.Payment {
	t.Helper()
	payment, err := billing.NewPayment(&propertyID,
		valueobject.NewMoneyRUB(decimal.RequireFromString(amount)),
		time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		billing.PaymentOriginManual)
	require.NoError(t, err)
	require.NoError(t, db.Create(models.PaymentModelFromDomain(payment)).Error)
	return payment
}

func seedAccrual(t *testing.T, db *gorm.DB, propertyID uuid.UUID, periodStr, amount string) *billing.Accrual {
	t.Helper()
	period, err := valueobject.ParsePeriod(periodStr)
	require.NoError(t, err)
	accrual, err := billing.NewAccrual(propertyID, period, billing.AccrualCategoryMembership,
		valueobject.NewMoneyRUB(decimal.RequireFromString(amount)))
	require.NoError(t, err)
	require.NoError(t, db.Create(models.AccrualModelFromDomain(accrual)).Error)
	return accrual
}

func buildAllocation(t *testing.T, paymentID, accrualID uuid.UUID, amount string) *billing.Allocation {
	t.Helper()
	allocation, err := billing.NewAllocation(paymentID, accrualID,
		decimal.RequireFromString(amount),
		decimal.RequireFromString(amount), decimal.RequireFromString(amount))
	require.NoError(t, err)
	return allocation
}

func TestAllocationRepositoryCreate(t *testing.T) {
	ctx := context.Background()
	propertyID := uuid.New()

	t.Run("inserts within both remainders", func(t *testing.T) {
		db := setupAllocationTestDB(t)
		repo := NewGormAllocationRepository(db)
		payment := seedPayment(t, db, propertyID, "500")
		accrual := seedAccrual(t, db, propertyID, "2024-01", "700")

		err := repo.Create(ctx, buildAllocation(t, payment.ID, accrual.ID, "300"))
		require.NoError(t, err)

		total, err := repo.SumByPayment(ctx, payment.ID)
		require.NoError(t, err)
		assert.True(t, total.Equal(decimal.RequireFromString("300")))
	})

	t.Run("re-derives the remainder inside the transaction", func(t *testing.T) {
		db := setupAllocationTestDB(t)
		repo := NewGormAllocationRepository(db)
		payment := seedPayment(t, db, propertyID, "500")
		accrual := seedAccrual(t, db, propertyID, "2024-01", "700")

		require.NoError(t, repo.Create(ctx, buildAllocation(t, payment.ID, accrual.ID, "400")))

		// A stale service-layer check let this through; the write guard must not.
		err := repo.Create(ctx, buildAllocation(t, payment.ID, accrual.ID, "200"))
		require.Error(t, err)
		domainErr, ok := err.(*shared.DomainError)
		require.True(t, ok)
		assert.Equal(t, shared.ErrCodeAllocationConflict, domainErr.Code)

		total, err := repo.SumByPayment(ctx, payment.ID)
		require.NoError(t, err)
		assert.True(t, total.Equal(decimal.RequireFromString("400")))
	})

	t.Run("rejects a voided payment", func(t *testing.T) {
		db := setupAllocationTestDB(t)
		repo := NewGormAllocationRepository(db)
		payment := seedPayment(t, db, propertyID, "500")
		accrual := seedAccrual(t, db, propertyID, "2024-01", "700")
		require.NoError(t, db.Model(&models.PaymentModel{}).Where("id = ?", payment.ID).Update("voided", true).Error)

		err := repo.Create(ctx, buildAllocation(t, payment.ID, accrual.ID, "100"))
		require.Error(t, err)
	})
}

func TestAllocationRepositoryCreateBatch(t *testing.T) {
	ctx := context.Background()
	propertyID := uuid.New()

	t.Run("a guard failure rolls back the whole batch", func(t *testing.T) {
		db := setupAllocationTestDB(t)
		repo := NewGormAllocationRepository(db)
		payment := seedPayment(t, db, propertyID, "500")
		jan := seedAccrual(t, db, propertyID, "2024-01", "300")
		feb := seedAccrual(t, db, propertyID, "2024-02", "300")

		batch := []billing.Allocation{
			*buildAllocation(t, payment.ID, jan.ID, "300"),
			*buildAllocation(t, payment.ID, feb.ID, "300"), // 600 > 500, must fail
		}
		err := repo.CreateBatch(ctx, batch)
		require.Error(t, err)

		total, err := repo.SumByPayment(ctx, payment.ID)
		require.NoError(t, err)
		assert.True(t, total.IsZero(), "the first row must not survive the rollback")
	})

	t.Run("a fitting batch lands whole", func(t *testing.T) {
		db := setupAllocationTestDB(t)
		repo := NewGormAllocationRepository(db)
		payment := seedPayment(t, db, propertyID, "500")
		jan := seedAccrual(t, db, propertyID, "2024-01", "300")
		feb := seedAccrual(t, db, propertyID, "2024-02", "300")

		batch := []billing.Allocation{
			*buildAllocation(t, payment.ID, jan.ID, "300"),
			*buildAllocation(t, payment.ID, feb.ID, "200"),
		}
		require.NoError(t, repo.CreateBatch(ctx, batch))

		rows, err := repo.ListByPayment(ctx, payment.ID)
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	})
}

func TestAllocationRepositoryDelete(t *testing.T) {
	ctx := context.Background()
	propertyID := uuid.New()

	t.Run("returns the removed rows", func(t *testing.T) {
		db := setupAllocationTestDB(t)
		repo := NewGormAllocationRepository(db)
		payment := seedPayment(t, db, propertyID, "500")
		jan := seedAccrual(t, db, propertyID, "2024-01", "300")
		feb := seedAccrual(t, db, propertyID, "2024-02", "300")
		require.NoError(t, repo.Create(ctx, buildAllocation(t, payment.ID, jan.ID, "300")))
		require.NoError(t, repo.Create(ctx, buildAllocation(t, payment.ID, feb.ID, "200")))

		removed, err := repo.DeleteByPayment(ctx, payment.ID)
		require.NoError(t, err)
		assert.Len(t, removed, 2)

		total, err := repo.SumByPayment(ctx, payment.ID)
		require.NoError(t, err)
		assert.True(t, total.IsZero())
	})

	t.Run("deleting a missing allocation reports not found", func(t *testing.T) {
		db := setupAllocationTestDB(t)
		repo := NewGormAllocationRepository(db)

		_, err := repo.Delete(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}
