package types

import (
	"fmt"
	"time"
)

// NextBillingDate returns the end of the billing period that starts at start.
// Month arithmetic clamps to the last day of the target month, so a period
// anchored on Jan 31 renews on Feb 28 (or 29) instead of rolling into March.
func NextBillingDate(start time.Time, cycle BillingCycle) (time.Time, error) {
	switch cycle {
	case BillingCycleMonthly:
		return AddClampedDate(start, 0, 1), nil
	case BillingCycleYearly:
		return AddClampedDate(start, 1, 0), nil
	default:
		return start, fmt.Errorf("invalid billing cycle: %s", cycle)
	}
}

// AddClampedDate adds years and months to t keeping the time of day and clamping the day of month.
func AddClampedDate(t time.Time, years, months int) time.Time {
	y, m, d := t.Date()
	h, min, sec := t.Clock()

	newY := y + years
	newM := time.Month(int(m) + months)
	for newM > 12 {
		newM -= 12
		newY++
	}
	for newM < 1 {
		newM += 12
		newY--
	}

	lastDay := time.Date(newY, newM+1, 0, 0, 0, 0, 0, t.Location()).Day()
	if d > lastDay {
		d = lastDay
	}

	return time.Date(newY, newM, d, h, min, sec, t.Nanosecond(), t.Location())
}
