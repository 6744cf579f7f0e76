package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"kiddoquest/internal/analytics"
	"kiddoquest/internal/models"
	"kiddoquest/internal/repository"
	"kiddoquest/internal/validation"
)

// maxReportDays bounds manually requested reports
const maxReportDays = 92

// ReportService aggregates event logs into stored analytics reports
type ReportService struct {
	Deps
	email *EmailService
}

// NewReportService creates a new report service. email may be nil.
func NewReportService(deps Deps, email *EmailService) *ReportService {
	return &ReportService{Deps: deps, email: email}
}

// Generate builds and stores a report for one family over w
func (s *ReportService) Generate(ctx context.Context, familyID, reportType string, w analytics.Window, generatedBy string) (*models.AnalyticsReport, error) {
	report, err := s.generate(ctx, familyID, reportType, w, generatedBy)
	s.Metrics.RecordReport(reportType, err)
	return report, err
}

func (s *ReportService) generate(ctx context.Context, familyID, reportType string, w analytics.Window, generatedBy string) (*models.AnalyticsReport, error) {
	store := s.store()

	events, err := store.Events.GetFamilyEvents(ctx, familyID, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}

	var m models.Metrics
	if reportType == models.ReportDaily {
		m = analytics.AggregateDaily(events, w)
	} else {
		m = analytics.AggregateRange(events, w)
	}

	penalties, err := store.Penalties.CountApplied(ctx, familyID, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("failed to count penalties: %w", err)
	}
	m.PenaltiesApplied = penalties

	profiles, err := s.childProfiles(ctx, store, familyID, m)
	if err != nil {
		return nil, err
	}

	report := &models.AnalyticsReport{
		ID:            newID(),
		FamilyID:      familyID,
		ReportType:    reportType,
		StartDate:     w.Start,
		EndDate:       w.End,
		Metrics:       m,
		Insights:      analytics.GenerateInsights(m, s.Config.Insights),
		ChildProfiles: profiles,
		GeneratedAt:   s.now(),
		GeneratedBy:   generatedBy,
	}
	if err := store.Reports.CreateReport(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to store report: %w", err)
	}
	return report, nil
}

func (s *ReportService) childProfiles(ctx context.Context, store *repository.Store, familyID string, m models.Metrics) ([]models.ChildSnapshot, error) {
	children, err := store.Children.GetFamilyChildren(ctx, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load children: %w", err)
	}
	familyStreaks, err := store.Streaks.GetFamilyStreaks(ctx, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load streaks: %w", err)
	}
	current := make(map[string]int, len(familyStreaks))
	for _, st := range familyStreaks {
		if st.Type == models.StreakTypeDaily && !st.Broken {
			current[st.ChildID] = st.CurrentLength
		}
	}

	profiles := make([]models.ChildSnapshot, 0, len(children))
	for _, c := range children {
		profiles = append(profiles, models.ChildSnapshot{
			ID:            c.ID,
			Name:          c.Name,
			XP:            c.XP,
			CurrentStreak: current[c.ID],
			Completions:   m.ChildCompletions[c.ID],
		})
	}
	return profiles, nil
}

// GenerateDaily stores the report for the family's calendar day containing day
func (s *ReportService) GenerateDaily(ctx context.Context, familyID string, day time.Time, generatedBy string) (*models.AnalyticsReport, error) {
	loc := s.location(ctx, s.store(), familyID)
	return s.Generate(ctx, familyID, models.ReportDaily, analytics.DayWindow(day, loc), generatedBy)
}

// GenerateWeekly stores the report for the seven days starting on weekStart
func (s *ReportService) GenerateWeekly(ctx context.Context, familyID string, weekStart time.Time, generatedBy string) (*models.AnalyticsReport, error) {
	loc := s.location(ctx, s.store(), familyID)
	return s.Generate(ctx, familyID, models.ReportWeekly, analytics.WeekWindow(weekStart, loc), generatedBy)
}

// GenerateRange is the callable entry point for an arbitrary date range.
// start and end are calendar dates; end is inclusive.
func (s *ReportService) GenerateRange(ctx context.Context, identity models.Identity, familyID string, start, end time.Time) (*models.AnalyticsReport, error) {
	if err := requireGuardian(identity, familyID); err != nil {
		return nil, err
	}
	if err := validation.ValidateDateRange(start, end, maxReportDays); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}
	loc := s.location(ctx, s.store(), familyID)
	w := analytics.DayWindow(start, loc)
	w.End = analytics.DayWindow(end, loc).End
	generatedBy := identity.UserID
	if generatedBy == "" {
		generatedBy = identity.Role
	}
	return s.Generate(ctx, familyID, models.ReportCustom, w, generatedBy)
}

// RunDaily generates the daily report of every family for the day containing
// now in each family's timezone
func (s *ReportService) RunDaily(ctx context.Context, now time.Time) (RunSummary, error) {
	return s.runAll(ctx, "daily_report", func(ctx context.Context, f models.Family) error {
		_, err := s.GenerateDaily(ctx, f.ID, now, "scheduler")
		return err
	})
}

// RunWeekly generates the report for the seven days before now's calendar day
// and mails it to the family's guardians
func (s *ReportService) RunWeekly(ctx context.Context, now time.Time) (RunSummary, error) {
	return s.runAll(ctx, "weekly_report", func(ctx context.Context, f models.Family) error {
		loc := s.location(ctx, s.store(), f.ID)
		start := analytics.DayWindow(now, loc).Start.AddDate(0, 0, -7)
		report, err := s.Generate(ctx, f.ID, models.ReportWeekly, analytics.WeekWindow(start, loc), "scheduler")
		if err != nil {
			return err
		}
		s.sendDigests(ctx, &f, report)
		return nil
	})
}

// runAll applies fn to every family with bounded concurrency. A failing
// family is logged and counted; it never stops the others.
func (s *ReportService) runAll(ctx context.Context, job string, fn func(context.Context, models.Family) error) (RunSummary, error) {
	started := s.now()
	var summary RunSummary

	families, err := s.store().Families.ListFamilies(ctx)
	if err != nil {
		s.Metrics.RecordSweep(job, time.Since(started), 0, 0, 0, err)
		return summary, fmt.Errorf("failed to list families: %w", err)
	}

	limit := s.Config.ReportConcurrency
	if limit < 1 {
		limit = 1
	}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, family := range families {
		g.Go(func() error {
			err := fn(gctx, family)
			mu.Lock()
			defer mu.Unlock()
			summary.Processed++
			if err != nil {
				summary.Failed++
				s.log().Error("Failed to generate report", "job", job, "family_id", family.ID, "error", err)
				return nil
			}
			summary.Applied++
			return nil
		})
	}
	_ = g.Wait()

	err = ctx.Err()
	s.writeRunLog(ctx, job, started, summary, "")
	s.Metrics.RecordSweep(job, time.Since(started), summary.Processed, summary.Applied, summary.Failed, err)
	s.log().Info("Report run finished", "job", job, "families", summary.Processed, "failed", summary.Failed)
	return summary, err
}

func (s *ReportService) sendDigests(ctx context.Context, family *models.Family, report *models.AnalyticsReport) {
	if !s.email.IsEnabled() {
		return
	}
	guardians, err := s.store().Families.GetGuardians(ctx, family.ID)
	if err != nil {
		s.log().Error("Failed to load guardians", "family_id", family.ID, "error", err)
		return
	}
	for _, g := range guardians {
		if err := s.email.SendReportDigest(ctx, g, family, report); err != nil {
			s.log().Error("Failed to send report digest", "family_id", family.ID, "user_id", g.UserID, "error", err)
		}
	}
}

// FamilyReports lists a family's stored reports, newest first
func (s *ReportService) FamilyReports(ctx context.Context, identity models.Identity, familyID string, limit int) ([]models.AnalyticsReport, error) {
	if err := requireFamily(identity, familyID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	reports, err := s.store().Reports.GetFamilyReports(ctx, familyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get reports: %w", err)
	}
	return reports, nil
}
