// Package service orchestrates the engine: it loads records through the
// repository layer, runs the pure rule, streak, goal and analytics logic, and
// writes the results back inside optimistic transactions.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"kiddoquest/internal/config"
	"kiddoquest/internal/counters"
	"kiddoquest/internal/database"
	"kiddoquest/internal/logger"
	"kiddoquest/internal/metrics"
	"kiddoquest/internal/models"
	"kiddoquest/internal/repository"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrValidation         = errors.New("validation failed")
	ErrFailedPrecondition = errors.New("failed precondition")
)

// sweepBatchSize bounds how many records a sweep loads per run
const sweepBatchSize = 500

// Deps are the collaborators shared by every service
type Deps struct {
	DB       *database.DB
	Logger   *logger.Logger
	Metrics  *metrics.Collector
	Counters counters.Store
	Config   config.EngineConfig
	// Now defaults to time.Now; tests pin it.
	Now func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func (d Deps) log() *logger.Logger {
	if d.Logger == nil {
		return logger.Nop()
	}
	return d.Logger
}

func (d Deps) store() *repository.Store {
	return repository.NewStore(d.DB)
}

func (d Deps) retries() int {
	if d.Config.TxMaxRetries < 1 {
		return 1
	}
	return d.Config.TxMaxRetries
}

// inTx runs fn in a transaction with the configured optimistic retry
func (d Deps) inTx(ctx context.Context, fn func(store *repository.Store) error) error {
	err := d.DB.RunInTx(ctx, d.retries(), func(tx *database.Tx) error {
		return fn(repository.NewStore(tx))
	})
	if errors.Is(err, database.ErrRetryExhausted) {
		d.Metrics.RecordRetryExhausted()
	}
	return err
}

// location returns the family's timezone, falling back to the configured default
func (d Deps) location(ctx context.Context, store *repository.Store, familyID string) *time.Location {
	if family, err := store.Families.GetFamilyByID(ctx, familyID); err == nil && family != nil && family.Timezone != "" {
		if loc, err := time.LoadLocation(family.Timezone); err == nil {
			return loc
		}
		d.log().Warn("Invalid family timezone", "family_id", familyID, "timezone", family.Timezone)
	}
	if loc, err := time.LoadLocation(d.Config.DefaultTimezone); err == nil {
		return loc
	}
	return time.UTC
}

// incrementCounters bumps the family's daily counters. Failures are logged,
// counters never block the write they describe.
func (d Deps) incrementCounters(ctx context.Context, familyID string, at time.Time, loc *time.Location, deltas map[string]int64) {
	if d.Counters == nil {
		return
	}
	day := at.In(loc).Format("2006-01-02")
	if err := d.Counters.Increment(ctx, familyID, day, deltas); err != nil {
		d.log().Error("Failed to increment daily counters", "family_id", familyID, "day", day, "error", err)
	}
}

// RunSummary counts the outcomes of one scheduled run
type RunSummary struct {
	Processed int `json:"processed"`
	Applied   int `json:"applied"`
	Failed    int `json:"failed"`
	Expired   int `json:"expired,omitempty"`
}

func (d Deps) writeRunLog(ctx context.Context, logType string, started time.Time, s RunSummary, details string) {
	entry := &models.SystemLog{
		ID:        newID(),
		Type:      logType,
		Processed: s.Processed,
		Applied:   s.Applied,
		Failed:    s.Failed,
		Details:   details,
		StartedAt: started,
		CreatedAt: d.now(),
	}
	if err := d.store().SystemLogs.CreateLog(ctx, entry); err != nil {
		d.log().Error("Failed to write system log", "type", logType, "error", err)
	}
}

// requireFamily rejects identities outside familyID
func requireFamily(identity models.Identity, familyID string) error {
	if !identity.CanAccess(familyID) {
		return fmt.Errorf("%w: not a member of this family", ErrPermissionDenied)
	}
	return nil
}

// requireGuardian rejects identities that are not a parent or admin of familyID
func requireGuardian(identity models.Identity, familyID string) error {
	if err := requireFamily(identity, familyID); err != nil {
		return err
	}
	if !identity.IsGuardian() && !identity.IsSystem() {
		return fmt.Errorf("%w: parent or admin role required", ErrPermissionDenied)
	}
	return nil
}

func newID() string {
	return uuid.NewString()
}
