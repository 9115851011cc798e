package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Schedule carries every scheduling knob for the background workers. It is
// built once in main and passed into each component; nothing reads the
// environment after startup.
type Schedule struct {
	// HorizonDays is the visit-planning window: visits are materialized up to
	// today + HorizonDays.
	HorizonDays int

	// LeadDays are the reminder thresholds (days before a payment is due) that
	// the payment monitor acts on, in descending order.
	LeadDays []int

	// ScanInterval is the payment monitor cadence.
	ScanInterval time.Duration

	// VisitInterval is the visit generation cadence (daily in production,
	// shorter in dev).
	VisitInterval time.Duration
}

// DefaultSchedule mirrors the production defaults: 30-day visit horizon,
// 10/7/3/1-day payment reminders, 10-minute payment scans, daily visit ticks.
func DefaultSchedule() Schedule {
	return Schedule{
		HorizonDays:   30,
		LeadDays:      []int{10, 7, 3, 1},
		ScanInterval:  10 * time.Minute,
		VisitInterval: 24 * time.Hour,
	}
}

// LoadSchedule reads overrides from the environment on top of the defaults.
//
//	VISIT_HORIZON_DAYS          e.g. "30"
//	PAYMENT_LEAD_DAYS           e.g. "10,7,3,1"
//	PAYMENT_SCAN_INTERVAL_MIN   e.g. "10"
//	VISIT_TICK_INTERVAL_HOURS   e.g. "24"
func LoadSchedule() Schedule {
	s := DefaultSchedule()

	if v := os.Getenv("VISIT_HORIZON_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			s.HorizonDays = n
		}
	}
	if v := os.Getenv("PAYMENT_LEAD_DAYS"); v != "" {
		if days := parseLeadDays(v); len(days) > 0 {
			s.LeadDays = days
		}
	}
	if v := os.Getenv("PAYMENT_SCAN_INTERVAL_MIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			s.ScanInterval = time.Duration(n) * time.Minute
		}
	}
	if v := os.Getenv("VISIT_TICK_INTERVAL_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			s.VisitInterval = time.Duration(n) * time.Hour
		}
	}
	return s
}

func parseLeadDays(raw string) []int {
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return nil
		}
		out = append(out, n)
	}
	return out
}
