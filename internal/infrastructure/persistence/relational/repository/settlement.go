package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"cropclaim/internal/errs"
	"cropclaim/internal/infrastructure/persistence/relational/model"
	"cropclaim/internal/ports"
)

func (r *ClaimRepository) GetPayout(ctx context.Context, claimID string) (ports.PayoutRecord, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.PayoutRecord{}, err
	}

	var row model.Payout
	if err := db.Where("claim_id = ?", claimID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.PayoutRecord{}, ports.ErrPayoutNotFound
		}
		return ports.PayoutRecord{}, errs.Wrap(err, "query payout")
	}
	return ports.PayoutRecord{
		ClaimID:       row.ClaimID,
		Amount:        row.Amount,
		TransactionID: row.TransactionID,
		SettledAt:     row.SettledAt.UTC(),
		Notes:         row.Notes,
		ProcessedBy:   row.ProcessedBy,
		CreatedAt:     row.CreatedAt.UTC(),
	}, nil
}

// CreatePayout writes the single payout row of a claim; a second row fails with ports.ErrDuplicateRecord.
func (r *ClaimRepository) CreatePayout(ctx context.Context, record ports.PayoutRecord) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	row := model.Payout{
		ClaimID:       record.ClaimID,
		Amount:        record.Amount,
		TransactionID: record.TransactionID,
		SettledAt:     record.SettledAt.UTC(),
		Notes:         record.Notes,
		ProcessedBy:   record.ProcessedBy,
		CreatedAt:     createdAt.UTC(),
	}
	if err := db.Create(&row).Error; err != nil {
		if isDuplicateKeyErr(err) {
			return ports.ErrDuplicateRecord
		}
		return errs.Wrap(err, "insert payout")
	}
	return nil
}
