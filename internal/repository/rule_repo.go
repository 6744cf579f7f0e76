package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"kiddoquest/internal/database"
	"kiddoquest/internal/models"
)

// RuleRepository handles database operations for penalty rules.
// Rules are never deleted; deactivation is an update of is_active.
type RuleRepository struct {
	db database.DBTX
}

// NewRuleRepository creates a new rule repository
func NewRuleRepository(db database.DBTX) *RuleRepository {
	return &RuleRepository{db: db}
}

const ruleColumns = `id, family_id, name, description, trigger_type, severity, conditions, consequences,
	escalation, is_active, auto_apply, appealable, created_by, created_at, updated_at`

func scanRule(s rowScanner) (*models.PenaltyRule, error) {
	rule := &models.PenaltyRule{}
	var conditions, consequences string
	var escalation sql.NullString
	err := s.Scan(
		&rule.ID,
		&rule.FamilyID,
		&rule.Name,
		&rule.Description,
		&rule.Trigger,
		&rule.Severity,
		&conditions,
		&consequences,
		&escalation,
		&rule.IsActive,
		&rule.AutoApply,
		&rule.Appealable,
		&rule.CreatedBy,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := fromJSON(conditions, &rule.Conditions); err != nil {
		return nil, err
	}
	if err := fromJSON(consequences, &rule.Consequences); err != nil {
		return nil, err
	}
	if escalation.Valid && escalation.String != "" && escalation.String != "null" {
		rule.Escalation = &models.Escalation{}
		if err := fromJSON(escalation.String, rule.Escalation); err != nil {
			return nil, err
		}
	}
	return rule, nil
}

// CreateRule inserts a rule
func (r *RuleRepository) CreateRule(ctx context.Context, rule *models.PenaltyRule) error {
	conditions, err := toJSON(rule.Conditions)
	if err != nil {
		return err
	}
	consequences, err := toJSON(rule.Consequences)
	if err != nil {
		return err
	}
	var escalation sql.NullString
	if rule.Escalation != nil {
		s, err := toJSON(rule.Escalation)
		if err != nil {
			return err
		}
		escalation = sql.NullString{String: s, Valid: true}
	}

	query := "INSERT INTO penalty_rules (" + ruleColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	_, err = r.db.ExecContext(ctx, query,
		rule.ID, rule.FamilyID, rule.Name, rule.Description, string(rule.Trigger), string(rule.Severity),
		conditions, consequences, escalation, rule.IsActive, rule.AutoApply, rule.Appealable,
		rule.CreatedBy, utc(rule.CreatedAt), utc(rule.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

// GetRuleByID retrieves a rule by ID
func (r *RuleRepository) GetRuleByID(ctx context.Context, ruleID string) (*models.PenaltyRule, error) {
	query := "SELECT " + ruleColumns + " FROM penalty_rules WHERE id = ?"
	rule, err := scanRule(r.db.QueryRowContext(ctx, query, ruleID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// GetActiveRules returns a family's active rules for any of the triggers,
// in creation order. With no triggers every active rule is returned.
func (r *RuleRepository) GetActiveRules(ctx context.Context, familyID string, triggers []models.Trigger) ([]models.PenaltyRule, error) {
	query := "SELECT " + ruleColumns + " FROM penalty_rules WHERE family_id = ? AND is_active = " +
		r.db.GetDialect().BoolValue(true)
	args := []interface{}{familyID}
	if len(triggers) > 0 {
		query += " AND trigger_type IN (?" + strings.Repeat(", ?", len(triggers)-1) + ")"
		for _, t := range triggers {
			args = append(args, string(t))
		}
	}
	query += " ORDER BY created_at, id"
	return r.queryRules(ctx, query, args...)
}

// GetFamilyRules returns every rule of a family, disabled ones included
func (r *RuleRepository) GetFamilyRules(ctx context.Context, familyID string) ([]models.PenaltyRule, error) {
	query := "SELECT " + ruleColumns + " FROM penalty_rules WHERE family_id = ? ORDER BY created_at, id"
	return r.queryRules(ctx, query, familyID)
}

func (r *RuleRepository) queryRules(ctx context.Context, query string, args ...interface{}) ([]models.PenaltyRule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []models.PenaltyRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

// SetActive enables or disables a rule
func (r *RuleRepository) SetActive(ctx context.Context, ruleID string, active bool) error {
	query := "UPDATE penalty_rules SET is_active = ? WHERE id = ?"
	if _, err := r.db.ExecContext(ctx, query, active, ruleID); err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	return nil
}
