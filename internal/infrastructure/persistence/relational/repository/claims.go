package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domainclaim "cropclaim/internal/domain/claim"
	"cropclaim/internal/errs"
	"cropclaim/internal/infrastructure/persistence/relational/model"
	"cropclaim/internal/ports"
)

var openClaimStatuses = []string{
	string(domainclaim.StatusSubmitted),
	string(domainclaim.StatusAssigned),
	string(domainclaim.StatusAIProcessed),
	string(domainclaim.StatusUnderReview),
	string(domainclaim.StatusDecided),
	string(domainclaim.StatusPayoutPending),
}

func (r *ClaimRepository) GetClaimByNumber(ctx context.Context, claimNumber string) (ports.Claim, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.Claim{}, err
	}
	return getClaim(db, claimRefQuery, claimRefArgs(claimNumber)...)
}

func (r *ClaimRepository) GetClaimForUpdate(ctx context.Context, claimNumber string) (ports.Claim, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.Claim{}, err
	}
	return getClaim(forUpdate(db), claimRefQuery, claimRefArgs(claimNumber)...)
}

// A claim is addressed by its claim number or by its internal id. Ids are stored lower-case.
const claimRefQuery = "claim_number = ? OR id = ?"

func claimRefArgs(ref string) []any {
	ref = strings.TrimSpace(ref)
	return []any{ref, strings.ToLower(ref)}
}

func (r *ClaimRepository) FindClaimByIdempotencyKey(ctx context.Context, farmerID string, key string) (ports.Claim, bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.Claim{}, false, err
	}

	claim, err := getClaim(db, "farmer_id = ? AND idempotency_key = ?", farmerID, key)
	if err != nil {
		if errors.Is(err, ports.ErrClaimNotFound) {
			return ports.Claim{}, false, nil
		}
		return ports.Claim{}, false, err
	}
	return claim, true, nil
}

func (r *ClaimRepository) CountOpenClaimsForIncident(ctx context.Context, policyID string, dateOfIncident time.Time) (int64, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := db.Model(&model.Claim{}).
		Where("policy_id = ? AND incident_day = ?", policyID, domainclaim.Day(dateOfIncident).Format(time.DateOnly)).
		Where("status IN ?", openClaimStatuses).
		Count(&count).Error; err != nil {
		return 0, errs.Wrap(err, "count open claims for incident")
	}
	return count, nil
}

func (r *ClaimRepository) ListClaims(ctx context.Context, filter ports.ClaimFilter) ([]ports.Claim, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.Claim{})
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			statuses = append(statuses, string(status))
		}
		query = query.Where("status IN ?", statuses)
	}
	if farmerID := strings.TrimSpace(filter.FarmerID); farmerID != "" {
		query = query.Where("farmer_id = ?", farmerID)
	}
	if policyID := strings.TrimSpace(filter.PolicyID); policyID != "" {
		query = query.Where("policy_id = ?", policyID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []model.Claim
	if err := query.Order("created_at asc").Order("claim_number asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query claims")
	}

	items := make([]ports.Claim, 0, len(rows))
	for _, row := range rows {
		item, err := mapClaim(row)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *ClaimRepository) CreateClaim(ctx context.Context, claim ports.Claim) (bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return false, err
	}

	evidence, err := encodeStrings(claim.EvidenceRefs)
	if err != nil {
		return false, err
	}
	version := claim.Version
	if version <= 0 {
		version = 1
	}

	row := model.Claim{
		ID:                 claim.ID,
		ClaimNumber:        claim.ClaimNumber,
		PolicyID:           claim.PolicyID,
		FarmerID:           claim.FarmerID,
		IdempotencyKey:     claim.IdempotencyKey,
		PayloadHash:        claim.PayloadHash,
		DateOfIncident:     domainclaim.Day(claim.DateOfIncident),
		IncidentDay:        domainclaim.Day(claim.DateOfIncident).Format(time.DateOnly),
		LocationOfIncident: claim.LocationOfIncident,
		Description:        claim.Description,
		AmountClaimed:      claim.AmountClaimed,
		EvidenceRefs:       evidence,
		Status:             string(claim.Status),
		DecisionOutcome:    string(claim.DecisionOutcome),
		FraudSuspect:       claim.FraudSuspect,
		AssignedReviewerID: claim.AssignedReviewerID,
		Version:            version,
		CreatedAt:          claim.CreatedAt.UTC(),
		UpdatedAt:          claim.UpdatedAt.UTC(),
	}
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "farmer_id"}, {Name: "idempotency_key"}},
		DoNothing: true,
	}).Create(&row)
	if result.Error != nil {
		if isDuplicateKeyErr(result.Error) {
			return false, nil
		}
		return false, errs.Wrap(result.Error, "insert claim")
	}
	return result.RowsAffected > 0, nil
}

func (r *ClaimRepository) UpdateClaim(ctx context.Context, update ports.ClaimUpdate) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	updatedAt := update.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	values := map[string]any{
		"version":    gorm.Expr("version + 1"),
		"updated_at": updatedAt.UTC(),
	}
	if update.Status != nil {
		values["status"] = string(*update.Status)
	}
	if update.DecisionOutcome != nil {
		values["decision_outcome"] = string(*update.DecisionOutcome)
	}
	if update.FraudSuspect != nil {
		values["fraud_suspect"] = *update.FraudSuspect
	}
	if update.AssignedReviewerID != nil {
		values["assigned_reviewer_id"] = *update.AssignedReviewerID
	}

	result := db.Model(&model.Claim{}).
		Where("id = ? AND version = ?", update.ClaimID, update.ExpectedVersion).
		Updates(values)
	if result.Error != nil {
		return errs.Wrap(result.Error, "update claim")
	}
	if result.RowsAffected == 0 {
		return ports.ErrStaleVersion
	}
	return nil
}

func getClaim(db *gorm.DB, query string, args ...any) (ports.Claim, error) {
	var row model.Claim
	if err := db.Where(query, args...).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.Claim{}, ports.ErrClaimNotFound
		}
		return ports.Claim{}, errs.Wrap(err, "query claim")
	}
	return mapClaim(row)
}

func mapClaim(row model.Claim) (ports.Claim, error) {
	evidence, err := decodeStrings(row.EvidenceRefs)
	if err != nil {
		return ports.Claim{}, errs.Wrapf(err, "claim %s evidence", row.ClaimNumber)
	}
	return ports.Claim{
		ID:                 row.ID,
		ClaimNumber:        row.ClaimNumber,
		PolicyID:           row.PolicyID,
		FarmerID:           row.FarmerID,
		DateOfIncident:     domainclaim.Day(row.DateOfIncident),
		LocationOfIncident: row.LocationOfIncident,
		Description:        row.Description,
		AmountClaimed:      row.AmountClaimed,
		EvidenceRefs:       evidence,
		Status:             domainclaim.Status(row.Status),
		DecisionOutcome:    domainclaim.Outcome(row.DecisionOutcome),
		FraudSuspect:       row.FraudSuspect,
		AssignedReviewerID: row.AssignedReviewerID,
		IdempotencyKey:     row.IdempotencyKey,
		PayloadHash:        row.PayloadHash,
		Version:            row.Version,
		CreatedAt:          row.CreatedAt.UTC(),
		UpdatedAt:          row.UpdatedAt.UTC(),
	}, nil
}
