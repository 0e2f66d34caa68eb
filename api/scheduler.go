/*
scheduler.go - Submission reminder scheduler

PURPOSE:
  While the eligible period is still open (day 1 through day 10), reminds
  active clients that have not submitted it yet.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Does nothing once the window has locked
  - Reminds each client at most once per period (in-process memory; a
    restart may send one extra reminder)
  - Send failures are logged and retried on the next tick

CONFIGURATION:
  - CheckInterval: How often to check (default: 6 hours)
  - Enabled: Whether scheduler is active (default: false)

USAGE:
  scheduler := NewReminderScheduler(store, ingestor, dispatcher, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/warp/insights-engine/insights"
	"github.com/warp/insights-engine/logger"
)

// ReminderStore is the read side the scheduler needs.
type ReminderStore interface {
	ListActiveClients(ctx context.Context) ([]insights.Client, error)
	RecordExists(ctx context.Context, clientID insights.ClientID, period insights.Period) (bool, error)
}

// Reminder delivers one reminder message.
type Reminder interface {
	Remind(ctx context.Context, client insights.Client, period insights.Period, daysLeft int) error
}

// WindowSource reports the current submission window.
type WindowSource interface {
	Window() insights.WindowStatus
}

type reminderKey struct {
	ClientID insights.ClientID
	Period   insights.Period
}

// ReminderScheduler handles automated submission reminders.
type ReminderScheduler struct {
	Store         ReminderStore
	Window        WindowSource
	Reminder      Reminder
	CheckInterval time.Duration
	Enabled       bool

	log    *logger.Logger
	sent   map[reminderKey]bool
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	runMu  sync.Mutex
}

// NewReminderScheduler creates a new scheduler.
func NewReminderScheduler(store ReminderStore, window WindowSource, reminder Reminder, log *logger.Logger) *ReminderScheduler {
	return &ReminderScheduler{
		Store:         store,
		Window:        window,
		Reminder:      reminder,
		CheckInterval: 24 * time.Hour,
		log:           log.With("component", "reminders"),
		sent:          make(map[reminderKey]bool),
	}
}

// Start begins the scheduler.
func (rs *ReminderScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.log.Info("scheduler disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)

	go rs.run()

	rs.log.Info("scheduler started", "interval", rs.CheckInterval.String())
}

// Stop stops the scheduler and waits for an in-flight run.
func (rs *ReminderScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		rs.log.Info("scheduler stopped")
	}
}

func (rs *ReminderScheduler) run() {
	defer rs.wg.Done()

	// Run immediately on start
	rs.RunNow(context.Background())

	for {
		select {
		case <-rs.ticker.C:
			rs.RunNow(context.Background())
		case <-rs.stop:
			return
		}
	}
}

// RunNow performs one check and returns how many reminders were sent.
func (rs *ReminderScheduler) RunNow(ctx context.Context) int {
	rs.runMu.Lock()
	defer rs.runMu.Unlock()

	ws := rs.Window.Window()
	if !ws.Open {
		return 0
	}

	clients, err := rs.Store.ListActiveClients(ctx)
	if err != nil {
		rs.log.Error("list active clients failed", "error", err)
		return 0
	}

	sent, skipped := 0, 0
	for _, c := range clients {
		key := reminderKey{ClientID: c.ID, Period: ws.Period}
		if rs.sent[key] || c.Phone == "" {
			skipped++
			continue
		}

		exists, err := rs.Store.RecordExists(ctx, c.ID, ws.Period)
		if err != nil {
			rs.log.Warn("record check failed", "client_id", c.ID, "error", err)
			continue
		}
		if exists {
			rs.sent[key] = true
			skipped++
			continue
		}

		if err := rs.Reminder.Remind(ctx, c, ws.Period, ws.DaysUntilLock); err != nil {
			rs.log.Warn("reminder failed", "client_id", c.ID, "period", ws.Period.String(), "error", err)
			continue
		}
		rs.sent[key] = true
		sent++
	}

	if sent > 0 || skipped > 0 {
		rs.log.Info("reminder run completed", "period", ws.Period.String(), "sent", sent, "skipped", skipped)
	}
	return sent
}
