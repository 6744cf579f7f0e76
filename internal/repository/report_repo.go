package repository

import (
	"context"
	"database/sql"
	"fmt"

	"kiddoquest/internal/database"
	"kiddoquest/internal/models"
)

// ReportRepository stores analytics reports. Reports are immutable: there is
// no update method.
type ReportRepository struct {
	db database.DBTX
}

// NewReportRepository creates a new report repository
func NewReportRepository(db database.DBTX) *ReportRepository {
	return &ReportRepository{db: db}
}

const reportColumns = "id, family_id, report_type, start_date, end_date, metrics, insights, child_profiles, generated_at, generated_by"

func scanReport(s rowScanner) (*models.AnalyticsReport, error) {
	rep := &models.AnalyticsReport{}
	var metrics, insights, profiles string
	err := s.Scan(&rep.ID, &rep.FamilyID, &rep.ReportType, &rep.StartDate, &rep.EndDate,
		&metrics, &insights, &profiles, &rep.GeneratedAt, &rep.GeneratedBy)
	if err != nil {
		return nil, err
	}
	if err := fromJSON(metrics, &rep.Metrics); err != nil {
		return nil, err
	}
	if err := fromJSON(insights, &rep.Insights); err != nil {
		return nil, err
	}
	if err := fromJSON(profiles, &rep.ChildProfiles); err != nil {
		return nil, err
	}
	return rep, nil
}

// CreateReport stores a report
func (r *ReportRepository) CreateReport(ctx context.Context, rep *models.AnalyticsReport) error {
	metrics, err := toJSON(rep.Metrics)
	if err != nil {
		return err
	}
	insights, err := toJSON(rep.Insights)
	if err != nil {
		return err
	}
	profiles, err := toJSON(rep.ChildProfiles)
	if err != nil {
		return err
	}
	query := "INSERT INTO analytics_reports (" + reportColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	_, err = r.db.ExecContext(ctx, query, rep.ID, rep.FamilyID, rep.ReportType, utc(rep.StartDate), utc(rep.EndDate),
		metrics, insights, profiles, utc(rep.GeneratedAt), rep.GeneratedBy)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	return nil
}

// GetReportByID retrieves a report by ID
func (r *ReportRepository) GetReportByID(ctx context.Context, reportID string) (*models.AnalyticsReport, error) {
	query := "SELECT " + reportColumns + " FROM analytics_reports WHERE id = ?"
	rep, err := scanReport(r.db.QueryRowContext(ctx, query, reportID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return rep, nil
}

// GetFamilyReports returns a family's most recent reports, newest first
func (r *ReportRepository) GetFamilyReports(ctx context.Context, familyID string, limit int) ([]models.AnalyticsReport, error) {
	query := "SELECT " + reportColumns + " FROM analytics_reports WHERE family_id = ? ORDER BY generated_at DESC, id LIMIT ?"
	rows, err := r.db.QueryContext(ctx, query, familyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var reports []models.AnalyticsReport
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, *rep)
	}
	return reports, rows.Err()
}
