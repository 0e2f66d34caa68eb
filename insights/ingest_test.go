package insights_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/insights-engine/insights"
	"github.com/warp/insights-engine/insights/store"
	"github.com/warp/insights-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []insights.RecordEvent
}

func (n *recordingNotifier) Dispatch(evt insights.RecordEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evt)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

type fixture struct {
	ingestor *insights.Ingestor
	store    *store.Memory
	clock    *testClock
	notifier *recordingNotifier
}

const testClient insights.ClientID = "client-1"

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	require.NoError(t, mem.SaveClient(context.Background(), insights.Client{
		ID:       testClient,
		Name:     "Ana Souza",
		Phone:    "5511987654321",
		IsActive: true,
	}))

	f := &fixture{
		store:    mem,
		clock:    &testClock{now: at(2025, time.April, 5, 10, 0)},
		notifier: &recordingNotifier{},
	}
	f.ingestor = insights.NewIngestor(mem,
		insights.WithClock(f.clock.Now),
		insights.WithLocation(saoPaulo),
		insights.WithNotifier(f.notifier),
	)
	return f
}

func submit(revenue int64, units *int) insights.SubmitInput {
	return insights.SubmitInput{
		ClientID:  testClient,
		Revenue:   decimal.NewFromInt(revenue),
		UnitCount: units,
	}
}

func codesOf(defs []insights.AchievementDefinition) []insights.AchievementCode {
	out := make([]insights.AchievementCode, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.Code)
	}
	return out
}

func clientPoints(t *testing.T, s insights.Store) int {
	t.Helper()
	c, err := s.GetClient(context.Background(), testClient)
	require.NoError(t, err)
	return c.TotalPoints
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestSubmit_FirstRecord(t *testing.T) {
	// GIVEN: A client with no history
	// WHEN: They submit 10 000 over 10 units for the eligible period
	// THEN: It is a record, ticket is 1000, no growth, first_record is unlocked

	f := newFixture(t)

	out, err := f.ingestor.Submit(context.Background(), submit(10000, intPtr(10)))
	require.NoError(t, err)

	assert.Equal(t, insights.NewPeriod(2025, time.March), out.Record.Period)
	assert.True(t, out.Metrics.IsRecord)
	assertDecimal(t, "1000", out.Metrics.TicketAverage)
	assert.Nil(t, out.Metrics.GrowthPercent)
	assert.Equal(t, []insights.AchievementCode{insights.AchievementFirstRecord}, codesOf(out.Unlocked))
	assert.Equal(t, 10, out.PointsAwarded)
	assert.Equal(t, 10, out.Client.TotalPoints)
	assert.Equal(t, 10, clientPoints(t, f.store))
	assert.Equal(t, 1, f.notifier.count())
}

func TestSubmit_GrowthTierAndRecordBreaker(t *testing.T) {
	// GIVEN: March was 10 000
	// WHEN: April is submitted at 16 000 in May
	// THEN: growth is 60%, growth_50 and record_breaker unlock, lower tiers do not

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ingestor.Submit(ctx, submit(10000, intPtr(10)))
	require.NoError(t, err)

	f.clock.Set(at(2025, time.May, 3, 10, 0))
	out, err := f.ingestor.Submit(ctx, submit(16000, nil))
	require.NoError(t, err)

	assertDecimal(t, "60", out.Metrics.GrowthPercent)
	assert.Equal(t, []insights.AchievementCode{
		insights.AchievementGrowth50,
		insights.AchievementRecordBreaker,
	}, codesOf(out.Unlocked))
	assert.Equal(t, 80, out.PointsAwarded)
	assert.Equal(t, 90, out.Client.TotalPoints)
	assert.Equal(t, 90, clientPoints(t, f.store))
}

func TestSubmit_WrongPeriod_WindowLocked(t *testing.T) {
	f := newFixture(t)
	april := insights.NewPeriod(2025, time.April)

	input := submit(10000, nil)
	input.Period = &april
	_, err := f.ingestor.Submit(context.Background(), input)

	require.ErrorIs(t, err, insights.ErrWindowLocked)
	var locked *insights.IneligibleWindowError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, april, locked.Period)
	assert.Equal(t, 0, f.notifier.count())
}

func TestSubmit_AfterDeadline_WindowLocked(t *testing.T) {
	f := newFixture(t)
	f.clock.Set(at(2025, time.April, 11, 0, 0))

	_, err := f.ingestor.Submit(context.Background(), submit(10000, nil))
	assert.ErrorIs(t, err, insights.ErrWindowLocked)

	exists, err := f.store.RecordExists(context.Background(), testClient, insights.NewPeriod(2025, time.March))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSubmit_SixFiguresWithFlatGrowth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ingestor.Submit(ctx, submit(150000, nil))
	require.NoError(t, err)

	f.clock.Set(at(2025, time.May, 3, 10, 0))
	out, err := f.ingestor.Submit(ctx, submit(150000, nil))
	require.NoError(t, err)

	assertDecimal(t, "0", out.Metrics.GrowthPercent)
	assert.False(t, out.Metrics.IsRecord)
	assert.Empty(t, codesOf(out.Unlocked), "six_figures was already held from March")

	held, err := f.store.UnlockedCodes(ctx, testClient)
	require.NoError(t, err)
	assert.True(t, held[insights.AchievementSixFigures])
}

func TestSubmit_Duplicate_Rejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ingestor.Submit(ctx, submit(10000, nil))
	require.NoError(t, err)

	_, err = f.ingestor.Submit(ctx, submit(20000, nil))
	require.ErrorIs(t, err, insights.ErrDuplicateSubmission)
	var dup *insights.DuplicateSubmissionError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, testClient, dup.ClientID)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestSubmit_ConcurrentSamePeriod_ExactlyOneWins(t *testing.T) {
	stores := map[string]func(t *testing.T) insights.Store{
		"memory": func(t *testing.T) insights.Store { return store.NewMemory() },
		"sqlite": func(t *testing.T) insights.Store {
			s, err := sqlite.New(":memory:")
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			// GIVEN: Many concurrent submissions for the same client and period
			// THEN: Exactly one succeeds and the rest see DuplicateSubmissionError

			s := newStore(t)
			saver, ok := s.(interface {
				SaveClient(context.Context, insights.Client) error
			})
			require.True(t, ok)
			require.NoError(t, saver.SaveClient(context.Background(), insights.Client{ID: testClient, Name: "Ana", IsActive: true}))

			clock := &testClock{now: at(2025, time.April, 5, 10, 0)}
			in := insights.NewIngestor(s, insights.WithClock(clock.Now), insights.WithLocation(saoPaulo))

			const workers = 16
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				successes int
				dups      int
				others    []error
			)
			start := make(chan struct{})
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					_, err := in.Submit(context.Background(), submit(10000, nil))
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						successes++
					case errors.Is(err, insights.ErrDuplicateSubmission):
						dups++
					default:
						others = append(others, err)
					}
				}()
			}
			close(start)
			wg.Wait()

			assert.Empty(t, others)
			assert.Equal(t, 1, successes)
			assert.Equal(t, workers-1, dups)
			assert.Equal(t, 10, clientPoints(t, s), "first_record credited exactly once")
		})
	}
}

// =============================================================================
// AWARD FAILURES AND IDEMPOTENCY
// =============================================================================

func TestSubmit_AwardFailure_RecordStillCommitted(t *testing.T) {
	// GIVEN: The unlock write for first_record fails
	// WHEN: The client submits
	// THEN: The submission succeeds, nothing is awarded, and Reevaluate repairs it

	f := newFixture(t)
	ctx := context.Background()
	f.store.FailNextAward(insights.AchievementFirstRecord, errors.New("disk full"))

	out, err := f.ingestor.Submit(ctx, submit(10000, nil))
	require.NoError(t, err)
	assert.Empty(t, out.Unlocked)
	assert.Equal(t, 0, out.PointsAwarded)
	assert.Equal(t, 0, clientPoints(t, f.store))

	exists, err := f.store.RecordExists(ctx, testClient, out.Record.Period)
	require.NoError(t, err)
	assert.True(t, exists)

	re, err := f.ingestor.Reevaluate(ctx, testClient)
	require.NoError(t, err)
	assert.Equal(t, []insights.AchievementCode{insights.AchievementFirstRecord}, codesOf(re.Unlocked))
	assert.Equal(t, 10, clientPoints(t, f.store))
}

func TestSubmit_ConcurrentAwardConflict_NotCredited(t *testing.T) {
	// GIVEN: Another writer already persisted first_record
	f := newFixture(t)
	ctx := context.Background()
	f.store.FailNextAward(insights.AchievementFirstRecord, insights.ErrAlreadyUnlocked)

	out, err := f.ingestor.Submit(ctx, submit(10000, nil))
	require.NoError(t, err)
	assert.Empty(t, out.Unlocked)
	assert.Equal(t, 0, clientPoints(t, f.store))
}

func TestReevaluate_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ingestor.Submit(ctx, submit(120000, nil))
	require.NoError(t, err)
	before := clientPoints(t, f.store)
	assert.Equal(t, 110, before)

	for i := 0; i < 3; i++ {
		out, err := f.ingestor.Reevaluate(ctx, testClient)
		require.NoError(t, err)
		assert.Empty(t, out.Unlocked)
		assert.Equal(t, 0, out.PointsAwarded)
	}
	assert.Equal(t, before, clientPoints(t, f.store))
	assert.Equal(t, 1, f.notifier.count(), "reevaluation does not notify")
}

func TestReevaluate_AfterGrowthTierIsIdempotent(t *testing.T) {
	// GIVEN: February 10 000 backfilled, then March 16 000 submitted (+60%)
	// WHEN: Reevaluate runs three times
	// THEN: growth_50 stays the only tier, no lower tier and no points leak in

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ingestor.Backfill(ctx, insights.BackfillInput{
		ClientID: testClient,
		Period:   insights.NewPeriod(2025, time.February),
		Revenue:  decimal.NewFromInt(10000),
	})
	require.NoError(t, err)

	out, err := f.ingestor.Submit(ctx, submit(16000, nil))
	require.NoError(t, err)
	assert.ElementsMatch(t, []insights.AchievementCode{
		insights.AchievementGrowth50,
		insights.AchievementRecordBreaker,
	}, codesOf(out.Unlocked))
	before := clientPoints(t, f.store)

	for i := 0; i < 3; i++ {
		again, err := f.ingestor.Reevaluate(ctx, testClient)
		require.NoError(t, err)
		assert.Empty(t, again.Unlocked, "pass %d", i+1)
		assert.Equal(t, 0, again.PointsAwarded)
	}
	assert.Equal(t, before, clientPoints(t, f.store))

	held, err := f.store.UnlockedCodes(ctx, testClient)
	require.NoError(t, err)
	assert.False(t, held[insights.AchievementGrowth25])
	assert.False(t, held[insights.AchievementGrowth10])
}

func TestReevaluate_NoHistory(t *testing.T) {
	f := newFixture(t)
	out, err := f.ingestor.Reevaluate(context.Background(), testClient)
	require.NoError(t, err)
	assert.Empty(t, out.Unlocked)
	assert.Equal(t, insights.RecordID(""), out.Record.ID)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestSubmit_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ingestor.Submit(ctx, submit(0, nil))
	var verr *insights.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "revenue", verr.Field)

	_, err = f.ingestor.Submit(ctx, submit(-5, nil))
	assert.ErrorIs(t, err, insights.ErrValidation)

	_, err = f.ingestor.Submit(ctx, submit(1000, intPtr(-1)))
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "unit_count", verr.Field)

	bad := insights.NewPeriod(2025, 13)
	input := submit(1000, nil)
	input.Period = &bad
	_, err = f.ingestor.Submit(ctx, input)
	assert.ErrorIs(t, err, insights.ErrValidation)
}

func TestSubmit_ZeroUnits_NoTicketAverage(t *testing.T) {
	f := newFixture(t)
	out, err := f.ingestor.Submit(context.Background(), submit(1000, intPtr(0)))
	require.NoError(t, err)
	assert.Nil(t, out.Metrics.TicketAverage)
	assert.Nil(t, out.Record.TicketAverage)
}

func TestSubmit_UnknownClient(t *testing.T) {
	f := newFixture(t)
	input := submit(1000, nil)
	input.ClientID = "ghost"

	_, err := f.ingestor.Submit(context.Background(), input)
	assert.ErrorIs(t, err, insights.ErrClientNotFound)
	assert.True(t, insights.IsNotFound(err))
}

// =============================================================================
// BACKFILL
// =============================================================================

func TestBackfill_IgnoresWindowButKeepsUniqueness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old := insights.NewPeriod(2023, time.January)

	r, err := f.ingestor.Backfill(ctx, insights.BackfillInput{
		ClientID: testClient,
		Period:   old,
		Revenue:  decimal.NewFromInt(5000),
	})
	require.NoError(t, err)
	assert.Equal(t, "[Admin] Retroactive record", r.Notes)

	_, err = f.ingestor.Backfill(ctx, insights.BackfillInput{
		ClientID: testClient,
		Period:   old,
		Revenue:  decimal.NewFromInt(6000),
		Notes:    "fix",
	})
	assert.ErrorIs(t, err, insights.ErrDuplicateSubmission)

	assert.Equal(t, 0, clientPoints(t, f.store))
	assert.Equal(t, 0, f.notifier.count())
}

func TestBackfill_ThenSubmit_ComputesGrowthFromBackfill(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ingestor.Backfill(ctx, insights.BackfillInput{
		ClientID: testClient,
		Period:   insights.NewPeriod(2025, time.February),
		Revenue:  decimal.NewFromInt(10000),
		Notes:    "imported",
	})
	require.NoError(t, err)

	out, err := f.ingestor.Submit(ctx, submit(12500, nil))
	require.NoError(t, err)
	assertDecimal(t, "25", out.Metrics.GrowthPercent)
	assert.Contains(t, codesOf(out.Unlocked), insights.AchievementGrowth25)
	assert.NotContains(t, codesOf(out.Unlocked), insights.AchievementFirstRecord)
}

func TestBackfill_NegativeInvestment(t *testing.T) {
	f := newFixture(t)
	neg := decimal.NewFromInt(-1)
	_, err := f.ingestor.Backfill(context.Background(), insights.BackfillInput{
		ClientID:   testClient,
		Period:     insights.NewPeriod(2024, time.June),
		Revenue:    decimal.NewFromInt(100),
		Investment: &neg,
	})
	assert.ErrorIs(t, err, insights.ErrValidation)
}

func TestWindow_Status(t *testing.T) {
	f := newFixture(t)
	w := f.ingestor.Window()
	assert.Equal(t, insights.NewPeriod(2025, time.March), w.Period)
	assert.True(t, w.Open)
	assert.Equal(t, 5, w.DaysUntilLock)

	f.clock.Set(at(2025, time.April, 20, 10, 0))
	assert.False(t, f.ingestor.Window().Open)
}
