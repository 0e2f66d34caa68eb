package notify

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/insights-engine/insights"
)

// FormatMoney renders d rounded to whole units with thousands separators.
func FormatMoney(d decimal.Decimal, symbol string) string {
	raw := d.Round(0).StringFixed(0)
	sign := ""
	if strings.HasPrefix(raw, "-") {
		sign, raw = "-", raw[1:]
	}
	var b strings.Builder
	for i, r := range raw {
		if i > 0 && (len(raw)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return fmt.Sprintf("%s%s %s", sign, symbol, b.String())
}

// FormatPercent renders "+12.5%" / "-3.0%".
func FormatPercent(d decimal.Decimal) string {
	sign := ""
	if !d.IsNegative() {
		sign = "+"
	}
	return sign + d.StringFixed(1) + "%"
}

func congratulationText(evt insights.RecordEvent, currency string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎉 *PERFORMANCE INSIGHTS*\n\nCongratulations, %s!\n\n", evt.Client.FirstName())
	fmt.Fprintf(&b, "Your %s record was saved.\n💰 Revenue: *%s*", evt.Record.Period.Label(), FormatMoney(evt.Record.Revenue, currency))

	if g := evt.Metrics.GrowthPercent; g != nil {
		arrow := "📈"
		if g.IsNegative() {
			arrow = "📉"
		}
		fmt.Fprintf(&b, "\n%s Growth: *%s* vs. last month", arrow, FormatPercent(*g))
	}
	if evt.Metrics.IsRecord {
		b.WriteString("\n\n🏆 *NEW RECORD!*\nThis was your best month so far!")
	}
	return b.String()
}

func achievementText(client insights.Client, def insights.AchievementDefinition) string {
	return fmt.Sprintf("🏅 *ACHIEVEMENT UNLOCKED!*\n\n%s %s, you unlocked:\n\n*%s* (+%d points)\n\nKeep growing to unlock more!",
		def.Icon, client.FirstName(), def.Name, def.Points)
}

func adminSummaryText(evt insights.RecordEvent, currency string) string {
	return fmt.Sprintf("📊 *New record*\n\nClient: *%s*\nCompany: %s\nMonth: %s\nRevenue: *%s*",
		evt.Client.Name, evt.Client.CompanyName, evt.Record.Period.Label(), FormatMoney(evt.Record.Revenue, currency))
}

// ReminderText asks the client to submit period before the window locks.
func ReminderText(client insights.Client, period insights.Period, daysLeft int) string {
	when := fmt.Sprintf("in %d days", daysLeft)
	switch daysLeft {
	case 0:
		when = "today"
	case 1:
		when = "tomorrow"
	}
	return fmt.Sprintf("📊 *PERFORMANCE INSIGHTS*\n\nHi, %s!\n\nIt's time to record your *%s* results. The window closes %s.\n\nIt takes less than a minute!",
		client.FirstName(), period.Label(), when)
}
