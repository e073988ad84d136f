package uow

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	domainclaim "cropclaim/internal/domain/claim"
	"cropclaim/internal/infrastructure/persistence/relational/model"
	"cropclaim/internal/infrastructure/persistence/relational/repository"
	"cropclaim/internal/ports"
)

func setupUnitOfWork(t *testing.T) (*UnitOfWork, *repository.ClaimRepository) {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "uow.sqlite")
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(model.All()...); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return NewUnitOfWork(db), repository.NewClaimRepository(db)
}

func testPolicy() ports.Policy {
	return ports.Policy{
		PolicyID:   "P-UOW",
		FarmerID:   "F-1",
		InsurerID:  "I-1",
		CropType:   "maize",
		SumInsured: decimal.NewFromInt(1000),
		Status:     domainclaim.PolicyActive,
		StartDate:  time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2024, 10, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	u, repo := setupUnitOfWork(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := u.WithTx(ctx, func(txCtx context.Context) error {
		if err := repo.UpsertPolicy(txCtx, testPolicy()); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx() error = %v, want boom", err)
	}

	if _, err := repo.GetPolicy(ctx, "P-UOW"); !errors.Is(err, ports.ErrPolicyNotFound) {
		t.Fatalf("GetPolicy() after rollback error = %v, want ErrPolicyNotFound", err)
	}
}

func TestWithTxNestedJoinsOuterTransaction(t *testing.T) {
	u, repo := setupUnitOfWork(t)
	ctx := context.Background()

	err := u.WithTx(ctx, func(outer context.Context) error {
		if err := u.WithTx(outer, func(inner context.Context) error {
			if ports.TxFromContext(inner) != ports.TxFromContext(outer) {
				t.Fatalf("nested WithTx() opened a second transaction")
			}
			return repo.UpsertPolicy(inner, testPolicy())
		}); err != nil {
			return err
		}
		return errors.New("abort outer")
	})
	if err == nil {
		t.Fatalf("WithTx() expected error")
	}

	if _, err := repo.GetPolicy(ctx, "P-UOW"); !errors.Is(err, ports.ErrPolicyNotFound) {
		t.Fatalf("GetPolicy() error = %v, want inner write rolled back with outer", err)
	}
}
