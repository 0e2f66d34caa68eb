package insights_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/insights-engine/insights"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// rec builds a record for month m of 2025.
func rec(month time.Month, revenue int64, units *int) insights.PeriodRecord {
	return insights.PeriodRecord{
		ID:        insights.RecordID(fmt.Sprintf("rec-2025-%02d", int(month))),
		ClientID:  "client-1",
		Period:    insights.NewPeriod(2025, month),
		Revenue:   decimal.NewFromInt(revenue),
		UnitCount: units,
	}
}

func intPtr(v int) *int { return &v }

func assertDecimal(t *testing.T, want string, got *decimal.Decimal) {
	t.Helper()
	require.NotNil(t, got)
	assert.True(t, decimal.RequireFromString(want).Equal(*got), "want %s, got %s", want, got.String())
}

// =============================================================================
// METRICS
// =============================================================================

func TestComputeMetrics_FirstRecord(t *testing.T) {
	m := insights.ComputeMetrics([]insights.PeriodRecord{rec(time.March, 10000, intPtr(10))})

	assertDecimal(t, "1000", m.TicketAverage)
	assert.Nil(t, m.GrowthPercent)
	assert.Nil(t, m.PreviousRevenue)
	assert.Nil(t, m.TotalGrowthPercent)
	assert.True(t, m.IsRecord)
	assert.Equal(t, []string{"This was your best month yet. Keep it up!"}, m.Insights)
}

func TestComputeMetrics_StrongGrowth(t *testing.T) {
	m := insights.ComputeMetrics([]insights.PeriodRecord{
		rec(time.April, 16000, nil),
		rec(time.March, 10000, nil),
	})

	assertDecimal(t, "60", m.GrowthPercent)
	assertDecimal(t, "10000", m.PreviousRevenue)
	assertDecimal(t, "60", m.TotalGrowthPercent)
	assert.Nil(t, m.TicketAverage)
	assert.True(t, m.IsRecord)
	assert.Equal(t, []string{
		"Excellent growth! You beat last month by 60%.",
		"This was your best month yet. Keep it up!",
	}, m.Insights)
}

func TestComputeMetrics_TieIsNotARecord(t *testing.T) {
	m := insights.ComputeMetrics([]insights.PeriodRecord{
		rec(time.April, 10000, nil),
		rec(time.March, 8000, nil),
		rec(time.February, 10000, nil),
	})
	assert.False(t, m.IsRecord)
}

func TestComputeMetrics_WeakMonth(t *testing.T) {
	m := insights.ComputeMetrics([]insights.PeriodRecord{
		rec(time.April, 8000, nil),
		rec(time.March, 10000, nil),
	})
	assertDecimal(t, "-20", m.GrowthPercent)
	assert.False(t, m.IsRecord)
	assert.Equal(t, []string{"A weaker month than the last one. Let's look at the causes together."}, m.Insights)
}

func TestComputeMetrics_SmallDropHasNoGrowthInsight(t *testing.T) {
	m := insights.ComputeMetrics([]insights.PeriodRecord{
		rec(time.April, 9500, nil),
		rec(time.March, 10000, nil),
	})
	assertDecimal(t, "-5", m.GrowthPercent)
	assert.Empty(t, m.Insights)
}

func TestComputeMetrics_InsightOrder(t *testing.T) {
	// GIVEN: Revenue up 20% (not above 20) and ticket average up 20%
	// THEN: Growth message, then ticket message, then best month
	m := insights.ComputeMetrics([]insights.PeriodRecord{
		rec(time.April, 12000, intPtr(10)),
		rec(time.March, 10000, intPtr(10)),
	})
	assert.Equal(t, []string{
		"Good work! You kept growing, up 20%.",
		"Your average ticket went up 20%!",
		"This was your best month yet. Keep it up!",
	}, m.Insights)
}

func TestComputeMetrics_PreviousIsLaterPeriod_NoGrowth(t *testing.T) {
	// GIVEN: A backfilled record for a later period sits at index 1
	// THEN: Growth is not computed against it
	m := insights.ComputeMetrics([]insights.PeriodRecord{
		rec(time.March, 10000, nil),
		rec(time.May, 5000, nil),
	})
	assert.Nil(t, m.GrowthPercent)
	assert.Nil(t, m.PreviousRevenue)
	assert.True(t, m.IsRecord)
	assertDecimal(t, "-50", m.TotalGrowthPercent)
}

func TestComputeMetrics_TotalGrowthUsesEarliestAndLatest(t *testing.T) {
	m := insights.ComputeMetrics([]insights.PeriodRecord{
		rec(time.March, 20000, nil),
		rec(time.February, 15000, nil),
		rec(time.January, 10000, nil),
	})
	assertDecimal(t, "100", m.TotalGrowthPercent)
}

func TestComputeMetrics_EmptyHistory(t *testing.T) {
	m := insights.ComputeMetrics(nil)
	assert.NotNil(t, m.Insights)
	assert.Empty(t, m.Insights)
	assert.False(t, m.IsRecord)
}
