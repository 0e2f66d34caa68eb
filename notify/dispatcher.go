/*
dispatcher.go - Best-effort post-ingestion notifications

PURPOSE:
  Implements insights.Notifier. Dispatch returns immediately; delivery runs
  on a background goroutine that fans out one job per message.

JOBS PER EVENT:
  - Congratulation to the client (when the client has a phone)
  - One message per unlocked achievement
  - Summary to the administrator (when configured)
  - Webhook post (when configured)

FAILURE SEMANTICS:
  Each job gets its own timeout. Failures are logged and dropped; nothing
  is retried and nothing flows back to the submission that caused them.
*/
package notify

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/warp/insights-engine/insights"
	"github.com/warp/insights-engine/logger"
)

const (
	DefaultTimeout  = 3 * time.Second
	DefaultCurrency = "R$"
	maxConcurrency  = 4
)

type Config struct {
	AdminAddress  string
	WebhookURL    string
	WebhookSecret string
	Timeout       time.Duration
	Currency      string
}

type Dispatcher struct {
	transport Transport
	webhook   *Webhook
	cfg       Config
	log       *logger.Logger
	wg        sync.WaitGroup
}

var _ insights.Notifier = (*Dispatcher)(nil)

func NewDispatcher(transport Transport, cfg Config, log *logger.Logger) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Currency == "" {
		cfg.Currency = DefaultCurrency
	}
	d := &Dispatcher{
		transport: transport,
		cfg:       cfg,
		log:       log.With("component", "notify"),
	}
	if cfg.WebhookURL != "" {
		d.webhook = NewWebhook(cfg.WebhookURL, cfg.WebhookSecret)
	}
	return d
}

type job struct {
	kind string
	run  func(ctx context.Context) error
}

// Dispatch schedules delivery and returns without blocking.
func (d *Dispatcher) Dispatch(evt insights.RecordEvent) {
	jobs := d.jobs(evt)
	if len(jobs) == 0 {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.deliver(evt, jobs)
	}()
}

// Remind sends a single reminder synchronously, bounded by the configured timeout.
func (d *Dispatcher) Remind(ctx context.Context, client insights.Client, period insights.Period, daysLeft int) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()
	return d.transport.Send(ctx, client.Phone, ReminderText(client, period, daysLeft))
}

// Wait blocks until every in-flight dispatch has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) jobs(evt insights.RecordEvent) []job {
	var jobs []job

	if evt.Client.Phone != "" {
		text := congratulationText(evt, d.cfg.Currency)
		jobs = append(jobs, job{kind: "congratulation", run: func(ctx context.Context) error {
			return d.transport.Send(ctx, evt.Client.Phone, text)
		}})
		for _, def := range evt.Unlocked {
			text := achievementText(evt.Client, def)
			jobs = append(jobs, job{kind: "achievement:" + string(def.Code), run: func(ctx context.Context) error {
				return d.transport.Send(ctx, evt.Client.Phone, text)
			}})
		}
	}

	if d.cfg.AdminAddress != "" {
		text := adminSummaryText(evt, d.cfg.Currency)
		jobs = append(jobs, job{kind: "admin_summary", run: func(ctx context.Context) error {
			return d.transport.Send(ctx, d.cfg.AdminAddress, text)
		}})
	}

	if d.webhook != nil {
		payload := NewWebhookPayload(evt)
		jobs = append(jobs, job{kind: "webhook", run: func(ctx context.Context) error {
			return d.webhook.Post(ctx, payload)
		}})
	}
	return jobs
}

func (d *Dispatcher) deliver(evt insights.RecordEvent, jobs []job) {
	var g errgroup.Group
	g.SetLimit(maxConcurrency)

	for _, j := range jobs {
		j := j
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
			defer cancel()
			if err := j.run(ctx); err != nil {
				d.log.Warn("notification failed",
					"kind", j.kind,
					"client_id", evt.Client.ID,
					"record_id", evt.Record.ID,
					"error", err,
				)
				return nil
			}
			d.log.Debug("notification sent", "kind", j.kind, "client_id", evt.Client.ID)
			return nil
		})
	}
	_ = g.Wait()
}
