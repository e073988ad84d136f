package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domainclaim "cropclaim/internal/domain/claim"
	"cropclaim/internal/errs"
	"cropclaim/internal/infrastructure/persistence/relational/model"
	"cropclaim/internal/ports"
)

func (r *ClaimRepository) GetPolicy(ctx context.Context, policyID string) (ports.Policy, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.Policy{}, err
	}
	return getPolicy(db, policyID)
}

// GetPolicyForUpdate locks the policy row until the surrounding transaction ends. Intake holds
// it while checking for overlapping claims so two submissions cannot both pass the check.
func (r *ClaimRepository) GetPolicyForUpdate(ctx context.Context, policyID string) (ports.Policy, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.Policy{}, err
	}
	return getPolicy(forUpdate(db), policyID)
}

func getPolicy(db *gorm.DB, policyID string) (ports.Policy, error) {
	var row model.Policy
	if err := db.Where("policy_id = ?", policyID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.Policy{}, ports.ErrPolicyNotFound
		}
		return ports.Policy{}, errs.Wrap(err, "query policy")
	}

	status, err := domainclaim.ParsePolicyStatus(row.Status)
	if err != nil {
		return ports.Policy{}, errs.Wrapf(err, "policy %s", row.PolicyID)
	}
	return ports.Policy{
		PolicyID:   row.PolicyID,
		FarmerID:   row.FarmerID,
		InsurerID:  row.InsurerID,
		CropType:   row.CropType,
		SumInsured: row.SumInsured,
		Status:     status,
		StartDate:  row.StartDate.UTC(),
		EndDate:    row.EndDate.UTC(),
	}, nil
}

func (r *ClaimRepository) GetFarmer(ctx context.Context, farmerID string) (ports.Farmer, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.Farmer{}, err
	}

	var row model.Farmer
	if err := db.Where("farmer_id = ?", farmerID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.Farmer{}, ports.ErrFarmerNotFound
		}
		return ports.Farmer{}, errs.Wrap(err, "query farmer")
	}
	return ports.Farmer{
		FarmerID:          row.FarmerID,
		AccountRef:        row.AccountRef,
		Name:              row.Name,
		BankAccountName:   row.BankAccountName,
		BankAccountNumber: row.BankAccountNumber,
		BankCode:          row.BankCode,
	}, nil
}

func (r *ClaimRepository) UpsertPolicy(ctx context.Context, policy ports.Policy) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	row := model.Policy{
		PolicyID:   policy.PolicyID,
		FarmerID:   policy.FarmerID,
		InsurerID:  policy.InsurerID,
		CropType:   policy.CropType,
		SumInsured: policy.SumInsured,
		Status:     string(policy.Status),
		StartDate:  domainclaim.Day(policy.StartDate),
		EndDate:    domainclaim.Day(policy.EndDate),
		UpdatedAt:  time.Now().UTC(),
	}
	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "policy_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"farmer_id", "insurer_id", "crop_type", "sum_insured", "status", "start_date", "end_date", "updated_at",
		}),
	}).Create(&row).Error; err != nil {
		return errs.Wrap(err, "upsert policy")
	}
	return nil
}

func (r *ClaimRepository) UpsertFarmer(ctx context.Context, farmer ports.Farmer) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	row := model.Farmer{
		FarmerID:          farmer.FarmerID,
		AccountRef:        farmer.AccountRef,
		Name:              farmer.Name,
		BankAccountName:   farmer.BankAccountName,
		BankAccountNumber: farmer.BankAccountNumber,
		BankCode:          farmer.BankCode,
		UpdatedAt:         time.Now().UTC(),
	}
	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "farmer_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"account_ref", "name", "bank_account_name", "bank_account_number", "bank_code", "updated_at",
		}),
	}).Create(&row).Error; err != nil {
		return errs.Wrap(err, "upsert farmer")
	}
	return nil
}

func (r *ClaimRepository) UpsertInsurer(ctx context.Context, insurer ports.Insurer) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	row := model.Insurer{
		InsurerID:  insurer.InsurerID,
		AccountRef: insurer.AccountRef,
		Name:       insurer.Name,
		UpdatedAt:  time.Now().UTC(),
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "insurer_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"account_ref", "name", "updated_at"}),
	}).Create(&row).Error; err != nil {
		return errs.Wrap(err, "upsert insurer")
	}
	return nil
}
