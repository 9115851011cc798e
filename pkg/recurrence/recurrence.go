package recurrence

import (
	"errors"
	"time"
)

// Frequency is the shared cadence enum used for both the service schedule on a
// request/contract and the payment cycle derived from it. The two views are
// mapped by PaymentFrequencyFor instead of keeping two parallel enums in sync.
type Frequency string

const (
	OneTime   Frequency = "one_time"
	Daily     Frequency = "daily"
	Weekly    Frequency = "weekly"
	BiWeekly  Frequency = "bi_weekly"
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
)

// ErrInvalidFrequency is returned for any frequency value outside the enum.
// Callers must not silently fall back to a default cadence.
var ErrInvalidFrequency = errors.New("invalid recurrence frequency")

// Valid reports whether f is a known frequency value.
func (f Frequency) Valid() bool {
	switch f {
	case OneTime, Daily, Weekly, BiWeekly, Monthly, Quarterly:
		return true
	}
	return false
}

// Parse validates a raw string into a Frequency.
func Parse(s string) (Frequency, error) {
	f := Frequency(s)
	if !f.Valid() {
		return "", ErrInvalidFrequency
	}
	return f, nil
}

// PaymentFrequencyFor maps a service recurrence to the billing cadence of the
// resulting contract. Daily service is billed as a single upfront charge, same
// as a one-time job.
func PaymentFrequencyFor(service Frequency) Frequency {
	switch service {
	case Weekly, BiWeekly, Monthly, Quarterly:
		return service
	default:
		return OneTime
	}
}

// IntervalDays returns the coarse day count for a frequency, used only to step
// a planning horizon. One-time uses 365 as a "never recurs again" sentinel.
func IntervalDays(f Frequency) (int, error) {
	switch f {
	case Daily:
		return 1, nil
	case Weekly:
		return 7, nil
	case BiWeekly:
		return 14, nil
	case Monthly:
		return 30, nil
	case Quarterly:
		return 90, nil
	case OneTime:
		return 365, nil
	}
	return 0, ErrInvalidFrequency
}

// NextOccurrence returns the next calendar date strictly after anchor for the
// given frequency. Monthly and quarterly add calendar months and clamp the
// day-of-month to the end of a shorter target month (Jan 31 -> Feb 28/29,
// never Mar 1-3). For one-time frequencies there is no next occurrence and ok
// is false.
func NextOccurrence(anchor time.Time, f Frequency) (next time.Time, ok bool, err error) {
	anchor = DateOnly(anchor)
	switch f {
	case Daily:
		return anchor.AddDate(0, 0, 1), true, nil
	case Weekly:
		return anchor.AddDate(0, 0, 7), true, nil
	case BiWeekly:
		return anchor.AddDate(0, 0, 14), true, nil
	case Monthly:
		return addMonthsClamped(anchor, 1), true, nil
	case Quarterly:
		return addMonthsClamped(anchor, 3), true, nil
	case OneTime:
		return time.Time{}, false, nil
	}
	return time.Time{}, false, ErrInvalidFrequency
}

// DateOnly truncates t to midnight UTC. Scheduled dates are compared and
// stored at day granularity only.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// addMonthsClamped adds calendar months while preserving the day-of-month,
// clamping to the last day of the target month. time.AddDate would normalize
// Jan 31 + 1 month into Mar 2/3, which is wrong for billing anchors.
func addMonthsClamped(t time.Time, months int) time.Time {
	firstOfTarget := time.Date(t.Year(), t.Month()+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, 0, 0, 0, 0, t.Location())
}
