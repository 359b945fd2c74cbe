package repository

import (
	"context"

	"feedsync/internal/docstore"
	"feedsync/internal/models"
)

// ReportRepository appends moderation reports. Reports are never read back here.
type ReportRepository interface {
	Create(ctx context.Context, report *models.Report) (string, error)
}

type reportRepository struct {
	store docstore.Store
}

// NewReportRepository creates a ReportRepository backed by store.
func NewReportRepository(store docstore.Store) ReportRepository {
	return &reportRepository{store: store}
}

func (r *reportRepository) Create(ctx context.Context, report *models.Report) (string, error) {
	status := report.Status
	if status == "" {
		status = models.ReportStatusOpen
	}
	ref, err := r.store.Add(ctx, ReportsCollection, docstore.Fields{
		"targetType": report.TargetType,
		"targetId":   report.TargetID,
		"reason":     report.Reason,
		"reporterId": optionalString(report.ReporterID),
		"createdAt":  docstore.ServerTimestamp,
		"status":     string(status),
	})
	if err != nil {
		return "", err
	}
	return ref.ID, nil
}
