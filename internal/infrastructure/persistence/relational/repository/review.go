package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domainclaim "cropclaim/internal/domain/claim"
	"cropclaim/internal/errs"
	"cropclaim/internal/infrastructure/persistence/relational/model"
	"cropclaim/internal/ports"
)

func (r *ClaimRepository) GetReviewDraft(ctx context.Context, claimID string) (ports.ReviewDraft, bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.ReviewDraft{}, false, err
	}

	var row model.ReviewDraft
	if err := db.Where("claim_id = ?", claimID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.ReviewDraft{}, false, nil
		}
		return ports.ReviewDraft{}, false, errs.Wrap(err, "query review draft")
	}

	photos, err := decodeStrings(row.FieldPhotoRefs)
	if err != nil {
		return ports.ReviewDraft{}, false, err
	}
	return ports.ReviewDraft{
		ClaimID:            row.ClaimID,
		VerifiedArea:       row.VerifiedArea,
		DamageConfirmation: domainclaim.DamageConfirmation(row.DamageConfirmation),
		Comments:           row.Comments,
		FieldPhotoRefs:     photos,
		UpdatedBy:          row.UpdatedBy,
		UpdatedAt:          row.UpdatedAt.UTC(),
	}, true, nil
}

// SaveReviewDraft overwrites the whole draft.
func (r *ClaimRepository) SaveReviewDraft(ctx context.Context, draft ports.ReviewDraft) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	photos, err := encodeStrings(draft.FieldPhotoRefs)
	if err != nil {
		return err
	}
	row := model.ReviewDraft{
		ClaimID:            draft.ClaimID,
		VerifiedArea:       draft.VerifiedArea,
		DamageConfirmation: string(draft.DamageConfirmation),
		Comments:           draft.Comments,
		FieldPhotoRefs:     photos,
		UpdatedBy:          draft.UpdatedBy,
		UpdatedAt:          draft.UpdatedAt.UTC(),
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "claim_id"}},
		UpdateAll: true,
	}).Create(&row).Error; err != nil {
		return errs.Wrap(err, "upsert review draft")
	}
	return nil
}

func (r *ClaimRepository) GetDecision(ctx context.Context, claimID string) (ports.DecisionRecord, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.DecisionRecord{}, err
	}

	var row model.Decision
	if err := db.Where("claim_id = ?", claimID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.DecisionRecord{}, ports.ErrDecisionNotFound
		}
		return ports.DecisionRecord{}, errs.Wrap(err, "query decision")
	}

	photos, err := decodeStrings(row.FieldPhotoRefs)
	if err != nil {
		return ports.DecisionRecord{}, err
	}
	return ports.DecisionRecord{
		ClaimID:            row.ClaimID,
		DecidedBy:          row.DecidedBy,
		DecidedAt:          row.DecidedAt.UTC(),
		Outcome:            domainclaim.Outcome(row.Outcome),
		FinalComments:      row.FinalComments,
		ApprovedAmount:     row.ApprovedAmount,
		FraudSuspect:       row.FraudSuspect,
		VerifiedArea:       row.VerifiedArea,
		DamageConfirmation: domainclaim.DamageConfirmation(row.DamageConfirmation),
		DraftComments:      row.DraftComments,
		FieldPhotoRefs:     photos,
	}, nil
}

func (r *ClaimRepository) CreateDecision(ctx context.Context, record ports.DecisionRecord) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	photos, err := encodeStrings(record.FieldPhotoRefs)
	if err != nil {
		return err
	}
	row := model.Decision{
		ClaimID:            record.ClaimID,
		DecidedBy:          record.DecidedBy,
		DecidedAt:          record.DecidedAt.UTC(),
		Outcome:            string(record.Outcome),
		FinalComments:      record.FinalComments,
		ApprovedAmount:     record.ApprovedAmount,
		FraudSuspect:       record.FraudSuspect,
		VerifiedArea:       record.VerifiedArea,
		DamageConfirmation: string(record.DamageConfirmation),
		DraftComments:      record.DraftComments,
		FieldPhotoRefs:     photos,
	}
	if err := db.Create(&row).Error; err != nil {
		if isDuplicateKeyErr(err) {
			return ports.ErrDuplicateRecord
		}
		return errs.Wrap(err, "insert decision")
	}
	return nil
}
