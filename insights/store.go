/*
store.go - Persistence and notification interfaces used by the coordinator

PURPOSE:
  Defines what the Ingestor needs from the outside world. Storage enforces
  both uniqueness invariants; the coordinator trusts the store's answer over
  any check it made itself.

UNIQUENESS CONTRACT:
  CreateRecord: returns ErrDuplicateSubmission when (client, period) exists
  Award:        returns ErrAlreadyUnlocked when (client, code) exists, and
                in that case must NOT credit points

ATOMIC POINTS:
  Award inserts the unlock and increments total_points in one storage
  transaction using an in-place increment, never read-modify-write.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite with unique indexes
  - insights/store/memory.go: In-memory for tests and local runs
*/
package insights

import (
	"context"
	"time"
)

// Store is everything the Ingestor reads and writes.
type Store interface {
	// GetClient returns ErrClientNotFound when id is unknown.
	GetClient(ctx context.Context, id ClientID) (*Client, error)

	// RecordExists is advisory only. CreateRecord is the authority.
	RecordExists(ctx context.Context, clientID ClientID, period Period) (bool, error)

	// CreateRecord persists rec. Returns ErrDuplicateSubmission on conflict.
	CreateRecord(ctx context.Context, rec PeriodRecord) error

	// History returns all records for the client, most recent period first.
	History(ctx context.Context, clientID ClientID) ([]PeriodRecord, error)

	// UnlockedCodes returns the set of achievements the client already holds.
	UnlockedCodes(ctx context.Context, clientID ClientID) (map[AchievementCode]bool, error)

	// Award persists the unlock and credits points atomically.
	// Returns ErrAlreadyUnlocked without crediting points on conflict.
	Award(ctx context.Context, unlock AchievementUnlock, points int) error
}

// =============================================================================
// NOTIFICATION - Outside the consistency boundary
// =============================================================================

// RecordEvent is everything a notifier needs about one successful ingestion.
type RecordEvent struct {
	Client     Client
	Record     PeriodRecord
	Metrics    Metrics
	Unlocked   []AchievementDefinition
	OccurredAt time.Time
}

// Notifier must return immediately. Delivery is best-effort.
type Notifier interface {
	Dispatch(evt RecordEvent)
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Dispatch(RecordEvent) {}
