package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/insights-engine/insights"
)

// EventRecordCreated is the webhook event name for a new record.
const EventRecordCreated = "monthly_record_created"

// WebhookSecretHeader carries the shared secret when one is configured.
const WebhookSecretHeader = "x-webhook-secret"

// Webhook posts event payloads to an automation endpoint.
type Webhook struct {
	url    string
	secret string
	client *http.Client
}

func NewWebhook(url, secret string) *Webhook {
	return &Webhook{url: url, secret: secret, client: &http.Client{Timeout: 10 * time.Second}}
}

// Post sends payload once. No retries.
func (w *Webhook) Post(ctx context.Context, payload WebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.secret != "" {
		req.Header.Set(WebhookSecretHeader, w.secret)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

// =============================================================================
// PAYLOAD
// =============================================================================

type WebhookPayload struct {
	Event                string               `json:"event"`
	Record               WebhookRecord        `json:"record"`
	Client               *WebhookClient       `json:"client"`
	Computed             WebhookComputed      `json:"computed"`
	AchievementsUnlocked []WebhookAchievement `json:"achievements_unlocked"`
	Insights             []string             `json:"insights"`
}

type WebhookRecord struct {
	ID            string   `json:"id"`
	ClientID      string   `json:"client_id"`
	Year          int      `json:"year"`
	Month         int      `json:"month"`
	Revenue       float64  `json:"revenue"`
	UnitCount     *int     `json:"sales_count"`
	TicketAverage *float64 `json:"ticket_average"`
	Notes         *string  `json:"notes"`
	Highlight     *string  `json:"highlight"`
	CreatedAt     string   `json:"created_at"`
}

type WebhookClient struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	CompanyName string `json:"company_name"`
	TotalPoints int    `json:"total_points"`
}

type WebhookComputed struct {
	MonthYear          string   `json:"month_year"`
	GrowthPercent      *float64 `json:"growth_percent"`
	PreviousRevenue    *float64 `json:"previous_revenue"`
	IsRecord           bool     `json:"is_record"`
	TotalGrowthPercent *float64 `json:"total_growth_percent"`
}

type WebhookAchievement struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Icon   string `json:"icon"`
	Points int    `json:"points"`
}

// NewWebhookPayload flattens an event for external automation.
func NewWebhookPayload(evt insights.RecordEvent) WebhookPayload {
	rec := evt.Record
	p := WebhookPayload{
		Event: EventRecordCreated,
		Record: WebhookRecord{
			ID:            string(rec.ID),
			ClientID:      string(rec.ClientID),
			Year:          rec.Period.Year,
			Month:         int(rec.Period.Month),
			Revenue:       rec.Revenue.InexactFloat64(),
			UnitCount:     rec.UnitCount,
			TicketAverage: floatPtr(rec.TicketAverage),
			Notes:         stringPtr(rec.Notes),
			Highlight:     stringPtr(rec.Highlight),
			CreatedAt:     rec.SubmittedAt.UTC().Format(time.RFC3339),
		},
		Computed: WebhookComputed{
			MonthYear:          rec.Period.Label(),
			GrowthPercent:      floatPtr(evt.Metrics.GrowthPercent),
			PreviousRevenue:    floatPtr(evt.Metrics.PreviousRevenue),
			IsRecord:           evt.Metrics.IsRecord,
			TotalGrowthPercent: floatPtr(evt.Metrics.TotalGrowthPercent),
		},
		AchievementsUnlocked: make([]WebhookAchievement, 0, len(evt.Unlocked)),
		Insights:             evt.Metrics.Insights,
	}
	if evt.Client.ID != "" {
		p.Client = &WebhookClient{
			ID:          string(evt.Client.ID),
			Name:        evt.Client.Name,
			Phone:       evt.Client.Phone,
			CompanyName: evt.Client.CompanyName,
			TotalPoints: evt.Client.TotalPoints,
		}
	}
	for _, def := range evt.Unlocked {
		p.AchievementsUnlocked = append(p.AchievementsUnlocked, WebhookAchievement{
			Code: string(def.Code), Name: def.Name, Icon: def.Icon, Points: def.Points,
		})
	}
	if p.Insights == nil {
		p.Insights = []string{}
	}
	return p
}

func floatPtr(d *decimal.Decimal) *float64 {
	if d == nil {
		return nil
	}
	f := d.Round(2).InexactFloat64()
	return &f
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
