/*
Package insights provides the period ingestion and achievement evaluation engine.

PURPOSE:
  A client submits one performance record per calendar period (revenue, unit
  count, notes). The engine decides whether the period is still open, stores
  the record under a per-period uniqueness constraint, derives analytics from
  the client's history and awards achievements at most once per client.

KEY CONCEPTS IN THIS FILE (types.go):
  - Period: A (year, month) reporting cycle
  - PeriodRecord: One submitted record, keyed by (client, period)
  - Client: The submitting business and its points accumulator
  - AchievementUnlock: A badge awarded to a client, never revoked

DESIGN PRINCIPLES:
  1. Precision: Money uses decimal.Decimal, never float64
  2. Storage owns uniqueness: the store rejects duplicates, not the caller
  3. History is the source of truth: metrics and awards are re-derivable
  4. Purity: window, metrics and rules take all inputs as arguments

SEE ALSO:
  - window.go: Eligibility window
  - metrics.go: Derived metrics and insight messages
  - rules.go: Achievement rule evaluation
  - ingest.go: The coordinator tying everything together
*/
package insights

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ClientID string
type RecordID string
type AchievementCode string

// =============================================================================
// PERIOD - One reporting cycle
// =============================================================================

// Period identifies a calendar month for a client.
type Period struct {
	Year  int
	Month time.Month
}

// NewPeriod builds a period. It does not validate the month.
func NewPeriod(year int, month time.Month) Period {
	return Period{Year: year, Month: month}
}

// PeriodOf returns the period containing t, in t's location.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// Valid reports whether the month is in [1, 12].
func (p Period) Valid() bool {
	return p.Month >= time.January && p.Month <= time.December
}

// Previous returns the period immediately before p.
func (p Period) Previous() Period {
	if p.Month == time.January {
		return Period{Year: p.Year - 1, Month: time.December}
	}
	return Period{Year: p.Year, Month: p.Month - 1}
}

// Next returns the period immediately after p.
func (p Period) Next() Period {
	if p.Month == time.December {
		return Period{Year: p.Year + 1, Month: time.January}
	}
	return Period{Year: p.Year, Month: p.Month + 1}
}

func (p Period) Before(other Period) bool {
	if p.Year != other.Year {
		return p.Year < other.Year
	}
	return p.Month < other.Month
}

func (p Period) Equal(other Period) bool { return p == other }

// String returns "2025-03".
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Label returns "March 2025" for messages.
func (p Period) Label() string {
	return fmt.Sprintf("%s %d", p.Month, p.Year)
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is provisioned externally. This engine only ever increments TotalPoints.
type Client struct {
	ID          ClientID
	Name        string
	CompanyName string
	Phone       string
	Email       string
	Segment     string
	TotalPoints int
	MonthlyGoal *decimal.Decimal
	IsActive    bool
	CreatedAt   time.Time
}

// FirstName returns the first word of the client's name.
func (c Client) FirstName() string {
	for i, r := range c.Name {
		if r == ' ' {
			return c.Name[:i]
		}
	}
	return c.Name
}

// =============================================================================
// PERIOD RECORD
// =============================================================================

// PeriodRecord is immutable once created. At most one exists per (ClientID, Period).
type PeriodRecord struct {
	ID            RecordID
	ClientID      ClientID
	Period        Period
	Revenue       decimal.Decimal
	UnitCount     *int
	TicketAverage *decimal.Decimal
	Notes         string
	Highlight     string
	Investment    *decimal.Decimal
	SubmittedAt   time.Time
}

// MustParseDecimal parses s, returning zero on malformed input.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// TicketAverageOf returns revenue / units when units > 0, nil otherwise.
func TicketAverageOf(revenue decimal.Decimal, units *int) *decimal.Decimal {
	if units == nil || *units <= 0 {
		return nil
	}
	avg := revenue.Div(decimal.NewFromInt(int64(*units)))
	return &avg
}

// =============================================================================
// ACHIEVEMENTS
// =============================================================================

// AchievementDefinition is static catalog data.
type AchievementDefinition struct {
	Code        AchievementCode
	Name        string
	Description string
	Icon        string
	Points      int
}

// AchievementUnlock is created exactly once per (ClientID, Code).
type AchievementUnlock struct {
	ID         string
	ClientID   ClientID
	Code       AchievementCode
	RecordID   RecordID
	UnlockedAt time.Time
}
