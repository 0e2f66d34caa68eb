package insights

import (
	"fmt"
	"math"
	"time"
)

// =============================================================================
// ELIGIBILITY WINDOW - Two states driven by the calendar
// =============================================================================

// SubmissionDeadlineDay is the last day of the month (inclusive) on which the
// previous month can still be submitted.
const SubmissionDeadlineDay = 10

type WindowState string

const (
	WindowEligible WindowState = "eligible"
	WindowLocked   WindowState = "locked"
)

// WindowDecision is the evaluator's answer. Locked carries a reason for the caller.
type WindowDecision struct {
	State  WindowState
	Period Period
	Reason string
}

func (d WindowDecision) Eligible() bool { return d.State == WindowEligible }

// EligiblePeriod returns the only period that can be self-submitted at now.
func EligiblePeriod(now time.Time) Period {
	return PeriodOf(now).Previous()
}

// CheckWindow decides whether p may be self-submitted at now.
// Only the month before now's month is eligible, and only through day 10.
func CheckWindow(now time.Time, p Period) WindowDecision {
	eligible := EligiblePeriod(now)
	if p != eligible {
		return WindowDecision{
			State:  WindowLocked,
			Period: p,
			Reason: fmt.Sprintf("only %s can be submitted now", eligible.Label()),
		}
	}
	if now.Day() > SubmissionDeadlineDay {
		return WindowDecision{
			State:  WindowLocked,
			Period: p,
			Reason: fmt.Sprintf("the deadline for %s was day %d", p.Label(), SubmissionDeadlineDay),
		}
	}
	return WindowDecision{State: WindowEligible, Period: p}
}

// DaysUntilLock returns the whole days left before p locks, counted from the
// start of now's day. Negative once the deadline has passed.
func DaysUntilLock(now time.Time, p Period) int {
	next := p.Next()
	deadline := time.Date(next.Year, next.Month, SubmissionDeadlineDay, 0, 0, 0, 0, now.Location())
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return int(math.Round(deadline.Sub(today).Hours() / 24))
}
