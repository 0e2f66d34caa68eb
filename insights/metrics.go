/*
metrics.go - Derived metrics for a freshly stored record

PURPOSE:
  Computes everything the response and notifications report about a record:
  ticket average, period-over-period growth, record flag, lifetime growth
  and the free-text insight messages.

INPUT CONTRACT:
  history is the client's full history, most recent first, with the new
  record at index 0. Growth only ever compares index 0 with index 1, and
  only when index 1 is an earlier period.

INSIGHT ORDER:
  1. Growth bucket (> 20%, (0%, 20%], < -10%), at most one
  2. Ticket average up more than 10% over the previous record
  3. Best month so far
*/
package insights

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)

	strongGrowthAbove = decimal.NewFromInt(20)
	weakMonthBelow    = decimal.NewFromInt(-10)
	ticketGainFactor  = decimal.RequireFromString("1.1")
)

// Metrics is the derived view of the record at history[0].
type Metrics struct {
	TicketAverage      *decimal.Decimal
	GrowthPercent      *decimal.Decimal
	PreviousRevenue    *decimal.Decimal
	IsRecord           bool
	TotalGrowthPercent *decimal.Decimal
	Insights           []string
}

// ComputeMetrics derives Metrics for history[0]. An empty history yields zero Metrics.
func ComputeMetrics(history []PeriodRecord) Metrics {
	if len(history) == 0 {
		return Metrics{Insights: []string{}}
	}
	current := history[0]

	m := Metrics{
		TicketAverage: TicketAverageOf(current.Revenue, current.UnitCount),
		IsRecord:      isRecord(current, history[1:]),
		Insights:      []string{},
	}

	if len(history) > 1 && history[1].Period.Before(current.Period) {
		previous := history[1]
		prevRevenue := previous.Revenue
		m.PreviousRevenue = &prevRevenue
		m.GrowthPercent = growthPercent(current.Revenue, previous.Revenue)
	}

	m.TotalGrowthPercent = totalGrowthPercent(history)
	m.Insights = buildInsights(m, history)
	return m
}

// growthPercent returns nil unless previous > 0.
func growthPercent(current, previous decimal.Decimal) *decimal.Decimal {
	if !previous.IsPositive() {
		return nil
	}
	g := current.Sub(previous).Div(previous).Mul(hundred)
	return &g
}

// isRecord is true when no other record reaches current's revenue.
func isRecord(current PeriodRecord, others []PeriodRecord) bool {
	for _, r := range others {
		if r.ID == current.ID {
			continue
		}
		if r.Revenue.GreaterThanOrEqual(current.Revenue) {
			return false
		}
	}
	return true
}

// totalGrowthPercent compares the latest and earliest periods by date.
func totalGrowthPercent(history []PeriodRecord) *decimal.Decimal {
	if len(history) < 2 {
		return nil
	}
	sorted := make([]PeriodRecord, len(history))
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Period.Before(sorted[j].Period)
	})
	earliest, latest := sorted[0], sorted[len(sorted)-1]
	return growthPercent(latest.Revenue, earliest.Revenue)
}

func buildInsights(m Metrics, history []PeriodRecord) []string {
	insights := []string{}

	if g := m.GrowthPercent; g != nil {
		switch {
		case g.GreaterThan(strongGrowthAbove):
			insights = append(insights, fmt.Sprintf("Excellent growth! You beat last month by %s%%.", g.StringFixed(0)))
		case g.IsPositive():
			insights = append(insights, fmt.Sprintf("Good work! You kept growing, up %s%%.", g.StringFixed(0)))
		case g.LessThan(weakMonthBelow):
			insights = append(insights, "A weaker month than the last one. Let's look at the causes together.")
		}
	}

	if m.TicketAverage != nil && m.PreviousRevenue != nil {
		prevTicket := history[1].TicketAverage
		if prevTicket == nil {
			prevTicket = TicketAverageOf(history[1].Revenue, history[1].UnitCount)
		}
		if prevTicket != nil && prevTicket.IsPositive() && m.TicketAverage.GreaterThan(prevTicket.Mul(ticketGainFactor)) {
			gain := m.TicketAverage.Div(*prevTicket).Sub(decimal.NewFromInt(1)).Mul(hundred)
			insights = append(insights, fmt.Sprintf("Your average ticket went up %s%%!", gain.StringFixed(0)))
		}
	}

	if m.IsRecord {
		insights = append(insights, "This was your best month yet. Keep it up!")
	}

	return insights
}
