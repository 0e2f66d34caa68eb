/*
ingest.go - Ingestion transaction coordinator

PURPOSE:
  Orchestrates one self-service submission end to end:

    validate -> window gate -> unique insert -> reload history
             -> metrics + rules -> persist unlocks and points
             -> dispatch notifications (async) -> return outcome

FAILURE SEMANTICS:
  Before the insert: every failure goes back to the caller
    (ValidationError, IneligibleWindowError, DuplicateSubmissionError).
  After the insert: the record is durable and is never deleted.
    History, unlock and points failures are logged and the outcome is
    returned with whatever was computed. A later Reevaluate converges
    because rule evaluation skips achievements already held.

CANCELLATION:
  Once the record exists, award persistence runs on a context detached
  from the caller's cancellation so a disconnect cannot strand awards.
  Notification dispatch is not tied to the request at all.

SEE ALSO:
  - window.go, metrics.go, rules.go: Pure building blocks
  - store.go: Store and Notifier contracts
  - notify/dispatcher.go: The production Notifier
*/
package insights

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/insights-engine/logger"
)

// =============================================================================
// INPUTS / OUTPUTS
// =============================================================================

// SubmitInput is a self-service submission from an authenticated client.
// A nil Period means the previous calendar month.
type SubmitInput struct {
	ClientID  ClientID
	Revenue   decimal.Decimal
	UnitCount *int
	Notes     string
	Highlight string
	Period    *Period
}

// BackfillInput is an administrative submission. It is not window-gated.
type BackfillInput struct {
	ClientID   ClientID
	Period     Period
	Revenue    decimal.Decimal
	UnitCount  *int
	Notes      string
	Investment *decimal.Decimal
}

// Outcome is the result of a successful submission.
type Outcome struct {
	Client        Client
	Record        PeriodRecord
	Metrics       Metrics
	Unlocked      []AchievementDefinition
	PointsAwarded int
}

// Event converts the outcome to a notifier event.
func (o *Outcome) Event(at time.Time) RecordEvent {
	return RecordEvent{
		Client:     o.Client,
		Record:     o.Record,
		Metrics:    o.Metrics,
		Unlocked:   o.Unlocked,
		OccurredAt: at,
	}
}

// WindowStatus describes the current self-service window.
type WindowStatus struct {
	Period        Period
	Open          bool
	DaysUntilLock int
}

// =============================================================================
// INGESTOR
// =============================================================================

type Ingestor struct {
	store    Store
	notifier Notifier
	clock    func() time.Time
	location *time.Location
	log      *logger.Logger
}

type Option func(*Ingestor)

func WithNotifier(n Notifier) Option { return func(in *Ingestor) { in.notifier = n } }

// WithClock injects "now". Business logic never reads the system clock directly.
func WithClock(clock func() time.Time) Option { return func(in *Ingestor) { in.clock = clock } }

// WithLocation sets the business time zone used for calendar decisions.
func WithLocation(loc *time.Location) Option { return func(in *Ingestor) { in.location = loc } }

func WithLogger(l *logger.Logger) Option { return func(in *Ingestor) { in.log = l } }

func NewIngestor(store Store, opts ...Option) *Ingestor {
	in := &Ingestor{
		store:    store,
		notifier: NopNotifier{},
		clock:    time.Now,
		location: time.UTC,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(in)
	}
	in.log = in.log.With("component", "ingestor")
	return in
}

// Now returns the injected clock in the business time zone.
func (in *Ingestor) Now() time.Time {
	return in.clock().In(in.location)
}

// Window reports the eligible period and whether it is still open.
func (in *Ingestor) Window() WindowStatus {
	now := in.Now()
	p := EligiblePeriod(now)
	return WindowStatus{
		Period:        p,
		Open:          CheckWindow(now, p).Eligible(),
		DaysUntilLock: DaysUntilLock(now, p),
	}
}

// Submit runs a self-service submission.
func (in *Ingestor) Submit(ctx context.Context, input SubmitInput) (*Outcome, error) {
	if err := validateAmounts(input.Revenue, input.UnitCount); err != nil {
		return nil, err
	}

	now := in.Now()
	period := EligiblePeriod(now)
	if input.Period != nil {
		period = *input.Period
	}
	if !period.Valid() {
		return nil, &ValidationError{Field: "month", Message: "must be between 1 and 12"}
	}

	if decision := CheckWindow(now, period); !decision.Eligible() {
		return nil, &IneligibleWindowError{Period: period, Reason: decision.Reason}
	}

	client, err := in.store.GetClient(ctx, input.ClientID)
	if err != nil {
		return nil, fmt.Errorf("load client %s: %w", input.ClientID, err)
	}

	// Fast path only. Two racing requests can both pass this check.
	exists, err := in.store.RecordExists(ctx, input.ClientID, period)
	if err != nil {
		in.log.Warn("advisory duplicate check failed", "client_id", input.ClientID, "period", period.String(), "error", err)
	} else if exists {
		return nil, &DuplicateSubmissionError{ClientID: input.ClientID, Period: period}
	}

	rec := PeriodRecord{
		ID:            RecordID(uuid.NewString()),
		ClientID:      input.ClientID,
		Period:        period,
		Revenue:       input.Revenue,
		UnitCount:     input.UnitCount,
		TicketAverage: TicketAverageOf(input.Revenue, input.UnitCount),
		Notes:         strings.TrimSpace(input.Notes),
		Highlight:     strings.TrimSpace(input.Highlight),
		SubmittedAt:   now.UTC(),
	}
	if err := in.store.CreateRecord(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicateSubmission) {
			return nil, &DuplicateSubmissionError{ClientID: input.ClientID, Period: period}
		}
		return nil, fmt.Errorf("create record: %w", err)
	}

	in.log.Info("record created",
		"client_id", rec.ClientID,
		"record_id", rec.ID,
		"period", period.String(),
		"revenue", rec.Revenue.String(),
	)

	// The record is durable from here on.
	ctx = context.WithoutCancel(ctx)

	outcome := &Outcome{
		Client:  *client,
		Record:  rec,
		Metrics: Metrics{TicketAverage: rec.TicketAverage, Insights: []string{}},
	}

	history, err := in.store.History(ctx, rec.ClientID)
	if err != nil {
		in.log.Error("history reload failed after insert", "client_id", rec.ClientID, "record_id", rec.ID, "error", err)
	} else {
		history = currentFirst(history, rec)
		outcome.Metrics = ComputeMetrics(history)
		outcome.Unlocked, outcome.PointsAwarded = in.evaluateAndAward(ctx, rec, history, outcome.Metrics, now)
		outcome.Client.TotalPoints += outcome.PointsAwarded
	}

	in.notifier.Dispatch(outcome.Event(now))
	return outcome, nil
}

// Reevaluate runs the rules for the client's most recent record and awards
// anything missing. Safe to call any number of times.
func (in *Ingestor) Reevaluate(ctx context.Context, clientID ClientID) (*Outcome, error) {
	client, err := in.store.GetClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("load client %s: %w", clientID, err)
	}
	history, err := in.store.History(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	outcome := &Outcome{Client: *client, Metrics: Metrics{Insights: []string{}}}
	if len(history) == 0 {
		return outcome, nil
	}

	outcome.Record = history[0]
	outcome.Metrics = ComputeMetrics(history)
	outcome.Unlocked, outcome.PointsAwarded = in.evaluateAndAward(ctx, history[0], history, outcome.Metrics, in.Now())
	outcome.Client.TotalPoints += outcome.PointsAwarded
	return outcome, nil
}

// Backfill stores a record for any period on behalf of an administrator.
// Uniqueness still applies. No achievements, no notifications.
func (in *Ingestor) Backfill(ctx context.Context, input BackfillInput) (PeriodRecord, error) {
	if err := validateAmounts(input.Revenue, input.UnitCount); err != nil {
		return PeriodRecord{}, err
	}
	if !input.Period.Valid() {
		return PeriodRecord{}, &ValidationError{Field: "month", Message: "must be between 1 and 12"}
	}
	if input.Period.Year < 1 {
		return PeriodRecord{}, &ValidationError{Field: "year", Message: "is required"}
	}
	if input.Investment != nil && input.Investment.IsNegative() {
		return PeriodRecord{}, &ValidationError{Field: "investment", Message: "must not be negative"}
	}
	if _, err := in.store.GetClient(ctx, input.ClientID); err != nil {
		return PeriodRecord{}, fmt.Errorf("load client %s: %w", input.ClientID, err)
	}

	notes := "[Admin] Retroactive record"
	if n := strings.TrimSpace(input.Notes); n != "" {
		notes = "[Admin] " + n
	}

	rec := PeriodRecord{
		ID:            RecordID(uuid.NewString()),
		ClientID:      input.ClientID,
		Period:        input.Period,
		Revenue:       input.Revenue,
		UnitCount:     input.UnitCount,
		TicketAverage: TicketAverageOf(input.Revenue, input.UnitCount),
		Notes:         notes,
		Investment:    input.Investment,
		SubmittedAt:   in.Now().UTC(),
	}
	if err := in.store.CreateRecord(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicateSubmission) {
			return PeriodRecord{}, &DuplicateSubmissionError{ClientID: input.ClientID, Period: input.Period}
		}
		return PeriodRecord{}, fmt.Errorf("create record: %w", err)
	}
	in.log.Info("record backfilled", "client_id", rec.ClientID, "record_id", rec.ID, "period", rec.Period.String())
	return rec, nil
}

// evaluateAndAward never returns an error: award failures are logged only.
func (in *Ingestor) evaluateAndAward(ctx context.Context, rec PeriodRecord, history []PeriodRecord, m Metrics, now time.Time) ([]AchievementDefinition, int) {
	held, err := in.store.UnlockedCodes(ctx, rec.ClientID)
	if err != nil {
		in.log.Error("load unlocked achievements failed", "client_id", rec.ClientID, "error", err)
		return []AchievementDefinition{}, 0
	}

	unlocked := []AchievementDefinition{}
	points := 0
	for _, code := range Evaluate(history, m, held) {
		def, err := Lookup(code)
		if err != nil {
			in.log.Error("rule produced unknown achievement", "code", code)
			continue
		}
		unlock := AchievementUnlock{
			ID:         uuid.NewString(),
			ClientID:   rec.ClientID,
			Code:       code,
			RecordID:   rec.ID,
			UnlockedAt: now.UTC(),
		}
		if err := in.store.Award(ctx, unlock, def.Points); err != nil {
			if errors.Is(err, ErrAlreadyUnlocked) {
				in.log.Info("achievement already held, skipping", "client_id", rec.ClientID, "code", code)
				continue
			}
			in.log.Error("award persistence failed",
				"error", &AwardPersistenceError{ClientID: rec.ClientID, Code: code, Err: err},
				"record_id", rec.ID,
			)
			continue
		}
		unlocked = append(unlocked, def)
		points += def.Points
	}
	if len(unlocked) > 0 {
		in.log.Info("achievements unlocked", "client_id", rec.ClientID, "count", len(unlocked), "points", points)
	}
	return unlocked, points
}

func validateAmounts(revenue decimal.Decimal, units *int) error {
	if !revenue.IsPositive() {
		return &ValidationError{Field: "revenue", Message: "must be greater than zero"}
	}
	if units != nil && *units < 0 {
		return &ValidationError{Field: "unit_count", Message: "must not be negative"}
	}
	return nil
}

// currentFirst puts rec at index 0 and keeps the rest in store order.
// The store may already return it first; it may also be missing on a lagging replica.
func currentFirst(history []PeriodRecord, rec PeriodRecord) []PeriodRecord {
	out := make([]PeriodRecord, 0, len(history)+1)
	out = append(out, rec)
	for _, r := range history {
		if r.ID == rec.ID {
			continue
		}
		out = append(out, r)
	}
	return out
}
