package models

import "time"

// PenaltyStatus is the lifecycle state of an applied penalty
type PenaltyStatus string

const (
	PenaltyActive    PenaltyStatus = "active"
	PenaltyCompleted PenaltyStatus = "completed"
	PenaltyCancelled PenaltyStatus = "cancelled"
	PenaltyExpired   PenaltyStatus = "expired"
)

// IsTerminal reports whether no further transitions are possible
func (s PenaltyStatus) IsTerminal() bool {
	return s == PenaltyCompleted || s == PenaltyCancelled || s == PenaltyExpired
}

// AppealStatus tracks an appeal against an applied penalty
type AppealStatus string

const (
	AppealNone     AppealStatus = ""
	AppealPending  AppealStatus = "pending"
	AppealApproved AppealStatus = "approved"
	AppealDenied   AppealStatus = "denied"
)

// AppliedBySystem marks penalties created by automatic rule evaluation
const AppliedBySystem = "system"

// AppliedPenalty is one rule enforced against one child for one event
type AppliedPenalty struct {
	ID                string        `json:"id"`
	FamilyID          string        `json:"family_id"`
	ChildID           string        `json:"child_id"`
	RuleID            string        `json:"rule_id"`
	RuleName          string        `json:"rule_name"`
	EventID           string        `json:"event_id,omitempty"`
	Trigger           Trigger       `json:"trigger"`
	Severity          Severity      `json:"severity"`
	Consequences      Consequences  `json:"consequences"`
	OffenseNumber     int           `json:"offense_number"`
	ActualXPDeduction int           `json:"actual_xp_deduction"`
	Status            PenaltyStatus `json:"status"`
	Appealable        bool          `json:"appealable"`
	AppliedAt         time.Time     `json:"applied_at"`
	AppliedBy         string        `json:"applied_by"`
	ExpiresAt         *time.Time    `json:"expires_at,omitempty"`
	RemedialQuestID   string        `json:"remedial_quest_id,omitempty"`
	AppealedAt        *time.Time    `json:"appealed_at,omitempty"`
	AppealReason      string        `json:"appeal_reason,omitempty"`
	AppealStatus      AppealStatus  `json:"appeal_status,omitempty"`
	AppealResolvedAt  *time.Time    `json:"appeal_resolved_at,omitempty"`
	AppealResolvedBy  string        `json:"appeal_resolved_by,omitempty"`
	AppealNotes       string        `json:"appeal_notes,omitempty"`
	Version           int           `json:"-"`
}

// IsExpiredAt reports whether the cooldown has passed at now
func (p *AppliedPenalty) IsExpiredAt(now time.Time) bool {
	return p.ExpiresAt != nil && !now.Before(*p.ExpiresAt)
}

// OffenseCounter tracks repeat offenses of one rule by one child
type OffenseCounter struct {
	ChildID       string
	RuleID        string
	Count         int
	LastOffenseAt time.Time
	Version       int
}

// Restrictions is the union of locks imposed by a child's active penalties
type Restrictions struct {
	ChildID           string   `json:"child_id"`
	RestrictedRewards []string `json:"restricted_rewards"`
	RestrictedQuests  []string `json:"restricted_quests"`
	PrivilegeLoss     []string `json:"privilege_loss"`
}
