package api

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/insights-engine/insights"
	"github.com/warp/insights-engine/logger"
	"github.com/warp/insights-engine/store/sqlite"
)

type fixedWindow struct{ status insights.WindowStatus }

func (f fixedWindow) Window() insights.WindowStatus { return f.status }

type recordingReminder struct {
	mu      sync.Mutex
	clients []insights.ClientID
	err     error
}

func (r *recordingReminder) Remind(_ context.Context, c insights.Client, _ insights.Period, _ int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients = append(r.clients, c.ID)
	return r.err
}

func newReminderStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	require.NoError(t, store.SaveClient(ctx, insights.Client{ID: "c-pending", Name: "Ana", Phone: "5511911111111", IsActive: true}))
	require.NoError(t, store.SaveClient(ctx, insights.Client{ID: "c-done", Name: "Bruno", Phone: "5511922222222", IsActive: true}))
	require.NoError(t, store.SaveClient(ctx, insights.Client{ID: "c-nophone", Name: "Caio", IsActive: true}))
	require.NoError(t, store.SaveClient(ctx, insights.Client{ID: "c-inactive", Name: "Duda", Phone: "5511933333333", IsActive: false}))
	return store
}

var march = insights.NewPeriod(2025, time.March)

func TestReminderScheduler_RemindsPendingClientsOnce(t *testing.T) {
	// GIVEN: One client already submitted March, one has not
	// WHEN: The scheduler runs twice while the window is open
	// THEN: Only the pending client is reminded, and only once

	store := newReminderStore(t)
	require.NoError(t, store.CreateRecord(context.Background(), insights.PeriodRecord{
		ID: "r-1", ClientID: "c-done", Period: march, Revenue: insights.MustParseDecimal("100"),
		SubmittedAt: time.Now(),
	}))

	reminder := &recordingReminder{}
	rs := NewReminderScheduler(store, fixedWindow{insights.WindowStatus{Period: march, Open: true, DaysUntilLock: 3}}, reminder, logger.Nop())

	assert.Equal(t, 1, rs.RunNow(context.Background()))
	assert.Equal(t, 0, rs.RunNow(context.Background()))
	assert.Equal(t, []insights.ClientID{"c-pending"}, reminder.clients)
}

func TestReminderScheduler_WindowClosed_SendsNothing(t *testing.T) {
	store := newReminderStore(t)
	reminder := &recordingReminder{}
	rs := NewReminderScheduler(store, fixedWindow{insights.WindowStatus{Period: march, Open: false}}, reminder, logger.Nop())

	assert.Equal(t, 0, rs.RunNow(context.Background()))
	assert.Empty(t, reminder.clients)
}

func TestReminderScheduler_FailureRetriedNextRun(t *testing.T) {
	store := newReminderStore(t)
	reminder := &recordingReminder{err: errors.New("gateway down")}
	rs := NewReminderScheduler(store, fixedWindow{insights.WindowStatus{Period: march, Open: true}}, reminder, logger.Nop())

	assert.Equal(t, 0, rs.RunNow(context.Background()))

	reminder.err = nil
	assert.Equal(t, 2, rs.RunNow(context.Background()))
}

func TestNewReminderScheduler_DailyByDefault(t *testing.T) {
	rs := NewReminderScheduler(newReminderStore(t), fixedWindow{}, &recordingReminder{}, logger.Nop())
	assert.Equal(t, 24*time.Hour, rs.CheckInterval)
	assert.False(t, rs.Enabled)
}

func TestReminderScheduler_StartStop(t *testing.T) {
	store := newReminderStore(t)
	reminder := &recordingReminder{}
	rs := NewReminderScheduler(store, fixedWindow{insights.WindowStatus{Period: march, Open: true}}, reminder, logger.Nop())
	rs.CheckInterval = time.Hour
	rs.Enabled = true

	rs.Start()
	assert.Eventually(t, func() bool {
		reminder.mu.Lock()
		defer reminder.mu.Unlock()
		return len(reminder.clients) == 2
	}, time.Second, 10*time.Millisecond)
	rs.Stop()
	rs.Stop()
}
