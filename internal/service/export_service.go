package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"kiddoquest/internal/models"
)

// exportVersion identifies the layout of FamilyExport
const exportVersion = "1"

// FamilyExport is a point-in-time dump of one family's engine state
type FamilyExport struct {
	Version      string                   `json:"version"`
	ExportedAt   time.Time                `json:"exported_at"`
	DatabaseType string                   `json:"database_type"`
	Since        time.Time                `json:"since"`
	Family       models.Family            `json:"family"`
	Children     []models.Child           `json:"children"`
	Rules        []models.PenaltyRule     `json:"rules"`
	Penalties    []models.AppliedPenalty  `json:"penalties"`
	Streaks      []models.Streak          `json:"streaks"`
	Goals        []models.FamilyGoal      `json:"goals"`
	Reports      []models.AnalyticsReport `json:"reports"`
}

// ExportService dumps a family's rules, penalties, streaks, goals and
// reports for parents and operators
type ExportService struct {
	Deps
}

// NewExportService creates a new export service
func NewExportService(deps Deps) *ExportService {
	return &ExportService{Deps: deps}
}

// Collect gathers the export. Penalties applied before since are left out;
// a zero since exports all of them.
func (s *ExportService) Collect(ctx context.Context, identity models.Identity, familyID string, since time.Time) (*FamilyExport, error) {
	if err := requireGuardian(identity, familyID); err != nil {
		return nil, err
	}
	store := s.store()

	family, err := store.Families.GetFamilyByID(ctx, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get family: %w", err)
	}
	if family == nil {
		return nil, fmt.Errorf("%w: family %s", ErrNotFound, familyID)
	}

	data := &FamilyExport{
		Version:      exportVersion,
		ExportedAt:   s.now(),
		DatabaseType: s.DB.Dialect.DriverName(),
		Since:        since.UTC(),
		Family:       *family,
	}

	if data.Children, err = store.Children.GetFamilyChildren(ctx, familyID); err != nil {
		return nil, fmt.Errorf("failed to export children: %w", err)
	}
	if data.Rules, err = store.Rules.GetFamilyRules(ctx, familyID); err != nil {
		return nil, fmt.Errorf("failed to export rules: %w", err)
	}
	if data.Penalties, err = store.Penalties.GetFamilyPenalties(ctx, familyID, since); err != nil {
		return nil, fmt.Errorf("failed to export penalties: %w", err)
	}
	if data.Streaks, err = store.Streaks.GetFamilyStreaks(ctx, familyID); err != nil {
		return nil, fmt.Errorf("failed to export streaks: %w", err)
	}
	if data.Goals, err = store.Goals.GetFamilyGoals(ctx, familyID); err != nil {
		return nil, fmt.Errorf("failed to export goals: %w", err)
	}
	if data.Reports, err = store.Reports.GetFamilyReports(ctx, familyID, 100); err != nil {
		return nil, fmt.Errorf("failed to export reports: %w", err)
	}

	s.log().Info("Family exported", "family_id", familyID, "rules", len(data.Rules),
		"penalties", len(data.Penalties), "goals", len(data.Goals))
	return data, nil
}

// Export writes the family export as indented JSON
func (s *ExportService) Export(ctx context.Context, identity models.Identity, familyID string, since time.Time, w io.Writer) error {
	data, err := s.Collect(ctx, identity, familyID, since)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}
	return nil
}
