package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"kiddoquest/internal/database"
	"kiddoquest/internal/models"
)

// EventRepository is the append-only behavioral event log
type EventRepository struct {
	db database.DBTX
}

// NewEventRepository creates a new event repository
func NewEventRepository(db database.DBTX) *EventRepository {
	return &EventRepository{db: db}
}

// eventPayload is the JSON stored in events.payload
type eventPayload struct {
	Quest      *models.QuestCompletionEvent `json:"quest,omitempty"`
	Redemption *models.RedemptionEvent      `json:"redemption,omitempty"`
	Missed     *models.MissedDeadlineEvent  `json:"missed,omitempty"`
	Behavior   *models.BehaviorFlagEvent    `json:"behavior,omitempty"`
	Streak     *models.StreakBreakEvent     `json:"streak,omitempty"`
}

func scanEvent(s rowScanner) (*models.Event, error) {
	e := &models.Event{}
	var payload string
	if err := s.Scan(&e.ID, &e.FamilyID, &e.ChildID, &e.Kind, &e.OccurredAt, &payload); err != nil {
		return nil, err
	}
	var p eventPayload
	if err := fromJSON(payload, &p); err != nil {
		return nil, err
	}
	e.Quest, e.Redemption, e.Missed, e.Behavior, e.Streak = p.Quest, p.Redemption, p.Missed, p.Behavior, p.Streak
	e.OccurredAt = e.OccurredAt.UTC()
	return e, nil
}

// CreateEvent appends an event
func (r *EventRepository) CreateEvent(ctx context.Context, e *models.Event) error {
	payload, err := toJSON(eventPayload{
		Quest:      e.Quest,
		Redemption: e.Redemption,
		Missed:     e.Missed,
		Behavior:   e.Behavior,
		Streak:     e.Streak,
	})
	if err != nil {
		return err
	}
	query := "INSERT INTO events (id, family_id, child_id, kind, occurred_at, payload) VALUES (?, ?, ?, ?, ?, ?)"
	if _, err := r.db.ExecContext(ctx, query, e.ID, e.FamilyID, e.ChildID, string(e.Kind), utc(e.OccurredAt), payload); err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}
	return nil
}

// GetEventByID retrieves an event by ID
func (r *EventRepository) GetEventByID(ctx context.Context, eventID string) (*models.Event, error) {
	query := "SELECT id, family_id, child_id, kind, occurred_at, payload FROM events WHERE id = ?"
	e, err := scanEvent(r.db.QueryRowContext(ctx, query, eventID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return e, nil
}

// GetFamilyEvents returns a family's events in [start, end), in the order they occurred
func (r *EventRepository) GetFamilyEvents(ctx context.Context, familyID string, start, end time.Time) ([]models.Event, error) {
	query := `SELECT id, family_id, child_id, kind, occurred_at, payload FROM events
		WHERE family_id = ? AND occurred_at >= ? AND occurred_at < ?
		ORDER BY occurred_at, id`
	rows, err := r.db.QueryContext(ctx, query, familyID, utc(start), utc(end))
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}
