package repository

import (
	"context"
	"time"

	"cropclaim/internal/errs"
	"cropclaim/internal/infrastructure/persistence/relational/model"
	"cropclaim/internal/ports"
)

func (r *ClaimRepository) AppendAudit(ctx context.Context, entry ports.AuditEntry) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	timestamp := entry.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	row := model.AuditEntry{
		ClaimID:     entry.ClaimID,
		Actor:       entry.Actor,
		Action:      entry.Action,
		BeforeState: entry.BeforeState,
		AfterState:  entry.AfterState,
		Detail:      entry.Detail,
		CreatedAt:   timestamp.UTC(),
	}
	if err := db.Create(&row).Error; err != nil {
		return errs.Wrap(err, "insert audit entry")
	}
	return nil
}

func (r *ClaimRepository) ListAuditEntries(ctx context.Context, claimID string) ([]ports.AuditEntry, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.AuditEntry
	if err := db.Where("claim_id = ?", claimID).Order("entry_id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query audit entries")
	}

	items := make([]ports.AuditEntry, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.AuditEntry{
			EntryID:     row.EntryID,
			ClaimID:     row.ClaimID,
			Actor:       row.Actor,
			Action:      row.Action,
			BeforeState: row.BeforeState,
			AfterState:  row.AfterState,
			Detail:      row.Detail,
			Timestamp:   row.CreatedAt.UTC(),
		})
	}
	return items, nil
}
