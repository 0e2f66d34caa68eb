/*
rules.go - Achievement rule evaluation

PURPOSE:
  Decides which achievements a freshly stored record unlocks. Pure: no I/O,
  no clock. The coordinator persists whatever this returns.

RULES (evaluated independently, output in this order):
  first_record    history has exactly one record
  growth tier     first entry of GrowthTiers whose threshold is met, only
                  if that code is still locked (one tier per event)
  record_breaker  is_record and not the first record
  six_figures     revenue >= SixFiguresThreshold

IDEMPOTENCY:
  Codes already in the unlocked set are never returned, so running the
  evaluation twice against the same history awards nothing the second time.
*/
package insights

import "github.com/shopspring/decimal"

// GrowthTier pairs a minimum growth percent with the achievement it unlocks.
type GrowthTier struct {
	MinPercent decimal.Decimal
	Code       AchievementCode
}

// GrowthTiers is ordered highest threshold first. First match wins.
var GrowthTiers = []GrowthTier{
	{MinPercent: decimal.NewFromInt(50), Code: AchievementGrowth50},
	{MinPercent: decimal.NewFromInt(25), Code: AchievementGrowth25},
	{MinPercent: decimal.NewFromInt(10), Code: AchievementGrowth10},
}

// SixFiguresThreshold is in currency units.
var SixFiguresThreshold = decimal.NewFromInt(100000)

// Evaluate returns the codes history[0] unlocks, excluding anything in unlocked.
func Evaluate(history []PeriodRecord, m Metrics, unlocked map[AchievementCode]bool) []AchievementCode {
	if len(history) == 0 {
		return nil
	}
	current := history[0]
	var codes []AchievementCode

	add := func(code AchievementCode) {
		if !unlocked[code] {
			codes = append(codes, code)
		}
	}

	if len(history) == 1 {
		add(AchievementFirstRecord)
	}

	if code, ok := growthTierFor(m.GrowthPercent); ok {
		add(code)
	}

	if m.IsRecord && len(history) > 1 {
		add(AchievementRecordBreaker)
	}

	if current.Revenue.GreaterThanOrEqual(SixFiguresThreshold) {
		add(AchievementSixFigures)
	}

	return codes
}

// growthTierFor picks the tier from the threshold alone. A held tier does
// not hand the event down to a lower one.
func growthTierFor(growth *decimal.Decimal) (AchievementCode, bool) {
	if growth == nil {
		return "", false
	}
	for _, tier := range GrowthTiers {
		if growth.GreaterThanOrEqual(tier.MinPercent) {
			return tier.Code, true
		}
	}
	return "", false
}
