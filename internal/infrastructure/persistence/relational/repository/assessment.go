package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domainclaim "cropclaim/internal/domain/claim"
	"cropclaim/internal/errs"
	"cropclaim/internal/infrastructure/persistence/relational/model"
	"cropclaim/internal/ports"
)

func (r *ClaimRepository) GetAssessmentReport(ctx context.Context, claimID string) (ports.AssessmentReport, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.AssessmentReport{}, err
	}

	var row model.AssessmentReport
	if err := db.Where("claim_id = ?", claimID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.AssessmentReport{}, ports.ErrReportNotFound
		}
		return ports.AssessmentReport{}, errs.Wrap(err, "query assessment report")
	}

	var flags []string
	if len(row.ValidationFlags) > 0 {
		if err := json.Unmarshal(row.ValidationFlags, &flags); err != nil {
			return ports.AssessmentReport{}, errs.Wrap(err, "decode validation flags")
		}
	}
	return ports.AssessmentReport{
		ClaimID:             row.ClaimID,
		RequestID:           row.RequestID,
		AIDamagePercent:     row.AIDamagePercent,
		AIRecommendedAmount: row.AIRecommendedAmount,
		ConfidenceScore:     row.ConfidenceScore,
		ValidationFlags:     domainclaim.NewFlagSet(flags...),
		WeatherSummary:      row.WeatherSummary,
		CropHealthSummary:   row.CropHealthSummary,
		GeospatialSummary:   row.GeospatialSummary,
		ReceivedAt:          row.ReceivedAt.UTC(),
	}, nil
}

// SaveAssessmentReport replaces the claim's report as a whole.
func (r *ClaimRepository) SaveAssessmentReport(ctx context.Context, report ports.AssessmentReport) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	flags := []string(report.ValidationFlags)
	if flags == nil {
		flags = []string{}
	}
	rawFlags, err := json.Marshal(flags)
	if err != nil {
		return errs.Wrap(err, "encode validation flags")
	}

	row := model.AssessmentReport{
		ClaimID:             report.ClaimID,
		RequestID:           report.RequestID,
		AIDamagePercent:     report.AIDamagePercent,
		AIRecommendedAmount: report.AIRecommendedAmount,
		ConfidenceScore:     report.ConfidenceScore,
		ValidationFlags:     datatypes.JSON(rawFlags),
		WeatherSummary:      report.WeatherSummary,
		CropHealthSummary:   report.CropHealthSummary,
		GeospatialSummary:   report.GeospatialSummary,
		ReceivedAt:          report.ReceivedAt.UTC(),
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "claim_id"}},
		UpdateAll: true,
	}).Create(&row).Error; err != nil {
		return errs.Wrap(err, "upsert assessment report")
	}
	return nil
}

// GetOutstandingAssessmentRequest returns the latest open request: outstanding or failed to dispatch.
func (r *ClaimRepository) GetOutstandingAssessmentRequest(ctx context.Context, claimID string) (ports.AssessmentRequest, bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.AssessmentRequest{}, false, err
	}

	var row model.AssessmentRequest
	if err := db.
		Where("claim_id = ? AND status IN ?", claimID, []string{
			string(ports.AssessmentOutstanding),
			string(ports.AssessmentDispatchFailed),
		}).
		Order("attempt desc").
		Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.AssessmentRequest{}, false, nil
		}
		return ports.AssessmentRequest{}, false, errs.Wrap(err, "query outstanding assessment request")
	}
	return mapAssessmentRequest(row), true, nil
}

func (r *ClaimRepository) ListAssessmentRequests(ctx context.Context, claimID string) ([]ports.AssessmentRequest, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.AssessmentRequest
	if err := db.Where("claim_id = ?", claimID).Order("attempt asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query assessment requests")
	}
	return mapAssessmentRequests(rows), nil
}

// ListStaleAssessmentRequests returns open requests dispatched before the cutoff, plus failed dispatches.
func (r *ClaimRepository) ListStaleAssessmentRequests(ctx context.Context, dispatchedBefore time.Time, limit int) ([]ports.AssessmentRequest, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.AssessmentRequest{}).
		Where("(status = ? AND dispatched_at < ?) OR status = ?",
			string(ports.AssessmentOutstanding), dispatchedBefore.UTC(), string(ports.AssessmentDispatchFailed)).
		Order("dispatched_at asc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []model.AssessmentRequest
	if err := query.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query stale assessment requests")
	}
	return mapAssessmentRequests(rows), nil
}

func (r *ClaimRepository) CreateAssessmentRequest(ctx context.Context, request ports.AssessmentRequest) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	row := model.AssessmentRequest{
		RequestID:    request.RequestID,
		ClaimID:      request.ClaimID,
		ClaimNumber:  request.ClaimNumber,
		Attempt:      request.Attempt,
		Status:       string(request.Status),
		DispatchedAt: request.DispatchedAt.UTC(),
		CompletedAt:  request.CompletedAt,
		LastError:    request.LastError,
	}
	if err := db.Create(&row).Error; err != nil {
		return errs.Wrap(err, "insert assessment request")
	}
	return nil
}

func (r *ClaimRepository) UpdateAssessmentRequest(
	ctx context.Context,
	requestID string,
	status ports.AssessmentRequestStatus,
	at time.Time,
	lastError *string,
) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	values := map[string]any{"status": string(status)}
	switch status {
	case ports.AssessmentCompleted, ports.AssessmentSuperseded:
		completedAt := at.UTC()
		values["completed_at"] = &completedAt
	}
	if lastError != nil {
		values["last_error"] = *lastError
	}

	result := db.Model(&model.AssessmentRequest{}).Where("request_id = ?", requestID).Updates(values)
	if result.Error != nil {
		return errs.Wrap(result.Error, "update assessment request")
	}
	if result.RowsAffected == 0 {
		return errs.Wrapf(gorm.ErrRecordNotFound, "assessment request %s", requestID)
	}
	return nil
}

func mapAssessmentRequests(rows []model.AssessmentRequest) []ports.AssessmentRequest {
	items := make([]ports.AssessmentRequest, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapAssessmentRequest(row))
	}
	return items
}

func mapAssessmentRequest(row model.AssessmentRequest) ports.AssessmentRequest {
	out := ports.AssessmentRequest{
		RequestID:    row.RequestID,
		ClaimID:      row.ClaimID,
		ClaimNumber:  row.ClaimNumber,
		Attempt:      row.Attempt,
		Status:       ports.AssessmentRequestStatus(row.Status),
		DispatchedAt: row.DispatchedAt.UTC(),
		LastError:    row.LastError,
	}
	if row.CompletedAt != nil {
		completedAt := row.CompletedAt.UTC()
		out.CompletedAt = &completedAt
	}
	return out
}
