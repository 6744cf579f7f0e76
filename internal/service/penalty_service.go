package service

import (
	"context"
	"fmt"
	"time"

	"kiddoquest/internal/models"
	"kiddoquest/internal/repository"
	"kiddoquest/internal/rules"
	"kiddoquest/internal/streaks"
)

// PenaltyService evaluates rules against events and drives the lifecycle of
// applied penalties
type PenaltyService struct {
	Deps
	evaluator  *rules.Evaluator
	calculator *rules.Calculator
}

// NewPenaltyService creates a new penalty service
func NewPenaltyService(deps Deps, evaluator *rules.Evaluator, calculator *rules.Calculator) *PenaltyService {
	return &PenaltyService{Deps: deps, evaluator: evaluator, calculator: calculator}
}

// EvaluationResult is the outcome of matching one event against a family's rules
type EvaluationResult struct {
	Applicable  []models.PenaltyRule    `json:"applicable"`
	Applied     []models.AppliedPenalty `json:"applied"`
	NeedsReview bool                    `json:"needs_review"`
}

// Evaluate matches the event against the family's active rules. Auto-applied
// matches produce unsaved active penalties; the rest only flag review.
func (s *PenaltyService) Evaluate(ctx context.Context, event models.Event) (*EvaluationResult, error) {
	store := s.store()
	activeRules, err := store.Rules.GetActiveRules(ctx, event.FamilyID, event.Triggers())
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	match := s.evaluator.Applicable(event, activeRules)
	result := &EvaluationResult{Applicable: match.Applicable, NeedsReview: match.NeedsReview}
	now := s.now()

	for _, rule := range match.Applicable {
		if !rule.AutoApply {
			continue
		}
		counter, err := store.Offenses.GetCounter(ctx, event.ChildID, rule.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load offense counter: %w", err)
		}
		offense := nextOffense(rule, counter, now)
		consequences, err := s.calculator.Calculate(rule, offense)
		if err != nil {
			return nil, fmt.Errorf("failed to calculate consequences for rule %s: %w", rule.ID, err)
		}
		result.Applied = append(result.Applied, newPenalty(rule, event.ChildID, event.ID, consequences, offense, now, models.AppliedBySystem))
	}
	return result, nil
}

// ProcessResult summarizes ProcessEvent
type ProcessResult struct {
	Applied     []models.AppliedPenalty
	NeedsReview bool
	Failed      int
}

// ProcessEvent evaluates an event and applies every auto-applied penalty.
// Each penalty commits on its own; one failure does not stop the others.
func (s *PenaltyService) ProcessEvent(ctx context.Context, event models.Event) (*ProcessResult, error) {
	eval, err := s.Evaluate(ctx, event)
	if err != nil {
		return nil, err
	}

	result := &ProcessResult{NeedsReview: eval.NeedsReview}
	if eval.NeedsReview {
		s.log().Info("Event matched rules that need parent review",
			"event_id", event.ID, "child_id", event.ChildID, "kind", event.Kind)
	}
	for i := range eval.Applied {
		p := eval.Applied[i]
		if err := s.Apply(ctx, &p); err != nil {
			result.Failed++
			s.log().Error("Failed to apply penalty",
				"rule_id", p.RuleID, "child_id", p.ChildID, "event_id", event.ID, "error", err)
			continue
		}
		result.Applied = append(result.Applied, p)
	}
	return result, nil
}

// Apply enforces a penalty in a single transaction: offense counter, XP
// deduction clamped at zero, streak break, cooldown, remedial quest and the
// penalty record itself. Offense number and consequences are recomputed from
// the stored counter so concurrent offenses escalate correctly.
func (s *PenaltyService) Apply(ctx context.Context, p *models.AppliedPenalty) error {
	if p.ID == "" {
		p.ID = newID()
	}
	var applied models.AppliedPenalty
	var loc *time.Location

	err := s.inTx(ctx, func(store *repository.Store) error {
		applied = *p
		now := s.now()
		applied.AppliedAt = now
		applied.Status = models.PenaltyActive

		rule, err := store.Rules.GetRuleByID(ctx, applied.RuleID)
		if err != nil {
			return err
		}
		if rule == nil {
			return fmt.Errorf("%w: rule %s", ErrNotFound, applied.RuleID)
		}
		child, err := store.Children.GetChildByID(ctx, applied.ChildID)
		if err != nil {
			return err
		}
		if child == nil {
			return fmt.Errorf("%w: child %s", ErrNotFound, applied.ChildID)
		}
		if child.FamilyID != rule.FamilyID {
			return fmt.Errorf("%w: rule and child belong to different families", ErrPermissionDenied)
		}

		counter, err := store.Offenses.GetCounter(ctx, child.ID, rule.ID)
		if err != nil {
			return err
		}
		offense := nextOffense(*rule, counter, now)
		consequences, err := s.calculator.Calculate(*rule, offense)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if counter == nil {
			counter = &models.OffenseCounter{ChildID: child.ID, RuleID: rule.ID}
		}
		counter.Count = offense
		counter.LastOffenseAt = now
		if err := store.Offenses.SaveCounter(ctx, counter); err != nil {
			return err
		}
		applied.OffenseNumber = offense
		applied.Consequences = consequences
		applied.FamilyID = child.FamilyID

		deduction := XPDeduction(child.XP, consequences)
		if deduction > 0 {
			if err := store.Children.UpdateXP(ctx, child, child.XP-deduction, now); err != nil {
				return err
			}
		}
		applied.ActualXPDeduction = deduction

		if consequences.StreakBreak {
			if err := breakStreak(ctx, store, child.ID, now); err != nil {
				return err
			}
		}

		applied.ExpiresAt = nil
		if consequences.CooldownHours > 0 {
			expires := now.Add(time.Duration(consequences.CooldownHours) * time.Hour)
			applied.ExpiresAt = &expires
		}

		applied.RemedialQuestID = ""
		if consequences.RemedialQuestTemplateID != "" {
			quest, err := remedialQuest(ctx, store, consequences.RemedialQuestTemplateID, &applied, now)
			if err != nil {
				return err
			}
			applied.RemedialQuestID = quest.ID
		}

		if err := store.Penalties.CreatePenalty(ctx, &applied); err != nil {
			return err
		}
		loc = s.location(ctx, store, applied.FamilyID)
		return nil
	})
	if err != nil {
		return err
	}

	*p = applied
	s.incrementCounters(ctx, p.FamilyID, p.AppliedAt, loc, map[string]int64{models.CounterPenaltiesApplied: 1})
	s.Metrics.RecordPenalty("applied")
	s.log().Info("Penalty applied",
		"penalty_id", p.ID, "rule_id", p.RuleID, "child_id", p.ChildID,
		"offense", p.OffenseNumber, "xp_deducted", p.ActualXPDeduction)
	return nil
}

// ApplyManual applies a rule to a child on a guardian's request
func (s *PenaltyService) ApplyManual(ctx context.Context, identity models.Identity, ruleID, childID string) (*models.AppliedPenalty, error) {
	if ruleID == "" || childID == "" {
		return nil, fmt.Errorf("%w: rule_id and child_id are required", ErrValidation)
	}
	store := s.store()
	rule, err := store.Rules.GetRuleByID(ctx, ruleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	if rule == nil {
		return nil, fmt.Errorf("%w: rule %s", ErrNotFound, ruleID)
	}
	if err := requireGuardian(identity, rule.FamilyID); err != nil {
		return nil, err
	}
	child, err := store.Children.GetChildByID(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("failed to get child: %w", err)
	}
	if child == nil {
		return nil, fmt.Errorf("%w: child %s", ErrNotFound, childID)
	}
	if child.FamilyID != rule.FamilyID {
		return nil, fmt.Errorf("%w: child is not in this family", ErrPermissionDenied)
	}

	appliedBy := identity.UserID
	if appliedBy == "" {
		appliedBy = identity.Role
	}
	p := newPenalty(*rule, child.ID, "", rule.Consequences, 0, s.now(), appliedBy)
	if err := s.Apply(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// CheckAppeal reports why a penalty cannot be appealed at now, or nil
func CheckAppeal(p *models.AppliedPenalty, now time.Time, window time.Duration) error {
	switch {
	case !p.Appealable:
		return fmt.Errorf("%w: penalty is not appealable", ErrFailedPrecondition)
	case p.AppealedAt != nil || p.AppealStatus != models.AppealNone:
		return fmt.Errorf("%w: penalty has already been appealed", ErrFailedPrecondition)
	case p.Status != models.PenaltyActive:
		return fmt.Errorf("%w: penalty is %s", ErrFailedPrecondition, p.Status)
	case now.Sub(p.AppliedAt) > window:
		return fmt.Errorf("%w: appeal window has closed", ErrFailedPrecondition)
	}
	return nil
}

// Appeal submits an appeal. Rejected appeals leave the penalty untouched.
func (s *PenaltyService) Appeal(ctx context.Context, identity models.Identity, penaltyID, reason string) (*models.AppliedPenalty, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: reason is required", ErrValidation)
	}
	var out *models.AppliedPenalty
	err := s.inTx(ctx, func(store *repository.Store) error {
		p, err := s.loadPenalty(ctx, store, penaltyID)
		if err != nil {
			return err
		}
		if err := requireFamily(identity, p.FamilyID); err != nil {
			return err
		}
		now := s.now()
		if err := CheckAppeal(p, now, s.Config.AppealWindow); err != nil {
			return err
		}
		p.AppealedAt = &now
		p.AppealReason = reason
		p.AppealStatus = models.AppealPending
		if err := store.Penalties.UpdatePenalty(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Metrics.RecordPenalty("appealed")
	return out, nil
}

// ResolveAppeal records a guardian's decision. Approval cancels the penalty
// and refunds the XP it took, whatever state it reached meanwhile; denial
// keeps the status.
func (s *PenaltyService) ResolveAppeal(ctx context.Context, identity models.Identity, penaltyID string, decision models.AppealStatus, notes string) (*models.AppliedPenalty, error) {
	if decision != models.AppealApproved && decision != models.AppealDenied {
		return nil, fmt.Errorf("%w: decision must be approved or denied", ErrValidation)
	}
	var out *models.AppliedPenalty
	err := s.inTx(ctx, func(store *repository.Store) error {
		p, err := s.loadPenalty(ctx, store, penaltyID)
		if err != nil {
			return err
		}
		if err := requireGuardian(identity, p.FamilyID); err != nil {
			return err
		}
		if p.AppealStatus != models.AppealPending {
			return fmt.Errorf("%w: no pending appeal", ErrFailedPrecondition)
		}

		now := s.now()
		p.AppealStatus = decision
		p.AppealResolvedAt = &now
		p.AppealResolvedBy = identity.UserID
		p.AppealNotes = notes

		if decision == models.AppealApproved && p.Status != models.PenaltyCancelled {
			p.Status = models.PenaltyCancelled
			if p.ActualXPDeduction > 0 {
				child, err := store.Children.GetChildByID(ctx, p.ChildID)
				if err != nil {
					return err
				}
				if child != nil {
					if err := store.Children.UpdateXP(ctx, child, child.XP+p.ActualXPDeduction, now); err != nil {
						return err
					}
				}
			}
		}
		if err := store.Penalties.UpdatePenalty(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Metrics.RecordPenalty("appeal_" + string(decision))
	return out, nil
}

// Expire moves an active penalty to expired once its cooldown has ended.
// Expiring an expired penalty, or one with a pending appeal, is a no-op.
func (s *PenaltyService) Expire(ctx context.Context, penaltyID string, now time.Time) (bool, error) {
	changed := false
	err := s.inTx(ctx, func(store *repository.Store) error {
		changed = false
		p, err := s.loadPenalty(ctx, store, penaltyID)
		if err != nil {
			return err
		}
		switch {
		case p.Status == models.PenaltyExpired:
			return nil
		case p.AppealStatus == models.AppealPending:
			return nil
		case p.Status.IsTerminal():
			return fmt.Errorf("%w: penalty is %s", ErrFailedPrecondition, p.Status)
		case !p.IsExpiredAt(now):
			return fmt.Errorf("%w: cooldown has not ended", ErrFailedPrecondition)
		}
		p.Status = models.PenaltyExpired
		if err := store.Penalties.UpdatePenalty(ctx, p); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err == nil && changed {
		s.Metrics.RecordPenalty("expired")
	}
	return changed, err
}

// ExpireDue expires every active penalty whose cooldown ended by now
func (s *PenaltyService) ExpireDue(ctx context.Context, now time.Time) (RunSummary, error) {
	var summary RunSummary
	due, err := s.store().Penalties.GetDuePenalties(ctx, now, sweepBatchSize)
	if err != nil {
		return summary, fmt.Errorf("failed to load due penalties: %w", err)
	}
	for _, p := range due {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		summary.Processed++
		changed, err := s.Expire(ctx, p.ID, now)
		if err != nil {
			summary.Failed++
			s.log().Error("Failed to expire penalty", "penalty_id", p.ID, "error", err)
			continue
		}
		if changed {
			summary.Expired++
		}
	}
	return summary, nil
}

// Complete marks an active penalty completed, typically when its remedial
// quest is done
func (s *PenaltyService) Complete(ctx context.Context, penaltyID string) error {
	err := s.inTx(ctx, func(store *repository.Store) error {
		p, err := s.loadPenalty(ctx, store, penaltyID)
		if err != nil {
			return err
		}
		if p.Status == models.PenaltyCompleted {
			return nil
		}
		if p.Status != models.PenaltyActive {
			return fmt.Errorf("%w: penalty is %s", ErrFailedPrecondition, p.Status)
		}
		p.Status = models.PenaltyCompleted
		return store.Penalties.UpdatePenalty(ctx, p)
	})
	if err == nil {
		s.Metrics.RecordPenalty("completed")
	}
	return err
}

// ActiveRestrictions returns the union of locks imposed on a child by its
// active penalties
func (s *PenaltyService) ActiveRestrictions(ctx context.Context, identity models.Identity, childID string) (*models.Restrictions, error) {
	store := s.store()
	child, err := store.Children.GetChildByID(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("failed to get child: %w", err)
	}
	if child == nil {
		return nil, fmt.Errorf("%w: child %s", ErrNotFound, childID)
	}
	if err := requireFamily(identity, child.FamilyID); err != nil {
		return nil, err
	}
	active, err := store.Penalties.GetActivePenalties(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active penalties: %w", err)
	}
	return MergeRestrictions(childID, active, s.now()), nil
}

// MergeRestrictions unions the locks of penalties still in force at now.
// Lists keep first-seen order without duplicates.
func MergeRestrictions(childID string, penalties []models.AppliedPenalty, now time.Time) *models.Restrictions {
	r := &models.Restrictions{
		ChildID:           childID,
		RestrictedRewards: []string{},
		RestrictedQuests:  []string{},
		PrivilegeLoss:     []string{},
	}
	seen := map[string]bool{}
	add := func(kind string, dst *[]string, values []string) {
		for _, v := range values {
			key := kind + "\x00" + v
			if seen[key] {
				continue
			}
			seen[key] = true
			*dst = append(*dst, v)
		}
	}
	for _, p := range penalties {
		if p.Status != models.PenaltyActive || p.IsExpiredAt(now) {
			continue
		}
		add("reward", &r.RestrictedRewards, p.Consequences.RestrictedRewards)
		add("quest", &r.RestrictedQuests, p.Consequences.RestrictedQuests)
		add("privilege", &r.PrivilegeLoss, p.Consequences.PrivilegeLoss)
	}
	return r
}

// DailySweep flags overdue quests as missed, evaluates the resulting events
// and expires penalties whose cooldown ended. Every quest and penalty is
// handled independently; a failure is logged and counted.
func (s *PenaltyService) DailySweep(ctx context.Context, now time.Time) (RunSummary, error) {
	started := s.now()
	var summary RunSummary

	overdue, err := s.store().Quests.GetOverdueQuests(ctx, now, sweepBatchSize)
	if err != nil {
		s.Metrics.RecordSweep("penalty_sweep", time.Since(started), 0, 0, 0, err)
		return summary, fmt.Errorf("failed to load overdue quests: %w", err)
	}

	for _, quest := range overdue {
		if ctx.Err() != nil {
			break
		}
		summary.Processed++
		applied, failed, err := s.flagMissed(ctx, quest, now)
		if err != nil {
			summary.Failed++
			s.log().Error("Failed to process missed quest", "quest_id", quest.ID, "child_id", quest.AssignedTo, "error", err)
			continue
		}
		summary.Applied += applied
		summary.Failed += failed
	}

	expired, err := s.ExpireDue(ctx, now)
	if err != nil {
		s.log().Error("Failed to expire due penalties", "error", err)
		summary.Failed++
	}
	summary.Expired = expired.Expired
	summary.Failed += expired.Failed

	if ctx.Err() != nil {
		err = ctx.Err()
	}
	details := fmt.Sprintf("overdue=%d expired=%d", len(overdue), summary.Expired)
	s.writeRunLog(ctx, "daily_penalty_sweep", started, summary, details)
	s.Metrics.RecordSweep("penalty_sweep", time.Since(started), summary.Processed, summary.Applied, summary.Failed, err)
	s.log().Info("Daily penalty sweep finished",
		"processed", summary.Processed, "applied", summary.Applied,
		"failed", summary.Failed, "expired", summary.Expired)
	return summary, err
}

// flagMissed marks one quest missed and records its event in one commit, then
// applies penalties. A quest already flagged by another run is skipped.
func (s *PenaltyService) flagMissed(ctx context.Context, quest models.Quest, now time.Time) (applied, failed int, err error) {
	var event *models.Event
	err = s.inTx(ctx, func(store *repository.Store) error {
		event = nil
		flagged, err := store.Quests.MarkMissed(ctx, quest.ID)
		if err != nil || !flagged {
			return err
		}
		e := &models.Event{
			ID:         newID(),
			FamilyID:   quest.FamilyID,
			ChildID:    quest.AssignedTo,
			Kind:       models.EventDeadlineMissed,
			OccurredAt: now,
			Missed: &models.MissedDeadlineEvent{
				QuestID:    quest.ID,
				Title:      quest.Title,
				Difficulty: quest.Difficulty,
				DueAt:      *quest.DueAt,
			},
		}
		if err := store.Events.CreateEvent(ctx, e); err != nil {
			return err
		}
		event = e
		return nil
	})
	if err != nil || event == nil {
		return 0, 0, err
	}

	result, err := s.ProcessEvent(ctx, *event)
	if err != nil {
		return 0, 0, err
	}
	return len(result.Applied), result.Failed, nil
}

func (s *PenaltyService) loadPenalty(ctx context.Context, store *repository.Store, penaltyID string) (*models.AppliedPenalty, error) {
	p, err := store.Penalties.GetPenaltyByID(ctx, penaltyID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: penalty %s", ErrNotFound, penaltyID)
	}
	return p, nil
}

// XPDeduction returns the XP to take from a balance: the flat amount plus the
// percentage of the balance, never more than the balance itself
func XPDeduction(balance int, c models.Consequences) int {
	if balance <= 0 {
		return 0
	}
	requested := c.XPDeduction
	if c.XPPercentage > 0 {
		requested += balance * c.XPPercentage / 100
	}
	if requested < 0 {
		return 0
	}
	if requested > balance {
		return balance
	}
	return requested
}

func nextOffense(rule models.PenaltyRule, counter *models.OffenseCounter, now time.Time) int {
	if counter == nil {
		return 1
	}
	return rules.NextOffenseCount(rule.Escalation, counter.Count, counter.LastOffenseAt, now)
}

func newPenalty(rule models.PenaltyRule, childID, eventID string, c models.Consequences, offense int, now time.Time, appliedBy string) models.AppliedPenalty {
	return models.AppliedPenalty{
		ID:            newID(),
		FamilyID:      rule.FamilyID,
		ChildID:       childID,
		RuleID:        rule.ID,
		RuleName:      rule.Name,
		EventID:       eventID,
		Trigger:       rule.Trigger,
		Severity:      rule.Severity,
		Consequences:  c,
		OffenseNumber: offense,
		Status:        models.PenaltyActive,
		Appealable:    rule.Appealable,
		AppliedAt:     now,
		AppliedBy:     appliedBy,
	}
}

func breakStreak(ctx context.Context, store *repository.Store, childID string, now time.Time) error {
	st, err := store.Streaks.GetStreak(ctx, childID, models.StreakTypeDaily)
	if err != nil {
		return err
	}
	if st == nil || st.Broken {
		return nil
	}
	broken := streaks.MarkBroken(*st, now)
	return store.Streaks.SaveStreak(ctx, &broken)
}

func remedialQuest(ctx context.Context, store *repository.Store, templateID string, p *models.AppliedPenalty, now time.Time) (*models.Quest, error) {
	tmpl, err := store.Quests.GetTemplateByID(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if tmpl == nil {
		return nil, fmt.Errorf("%w: quest template %s", ErrNotFound, templateID)
	}
	q := &models.Quest{
		ID:          newID(),
		FamilyID:    p.FamilyID,
		AssignedTo:  p.ChildID,
		Title:       tmpl.Title,
		Description: tmpl.Description,
		Category:    tmpl.Category,
		Difficulty:  tmpl.Difficulty,
		XPReward:    tmpl.XPReward,
		Status:      models.QuestPending,
		TemplateID:  tmpl.ID,
		PenaltyID:   p.ID,
		CreatedAt:   now,
	}
	if tmpl.DurationHours > 0 {
		due := now.Add(time.Duration(tmpl.DurationHours) * time.Hour)
		q.DueAt = &due
	}
	if err := store.Quests.CreateQuest(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

