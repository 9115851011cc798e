package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultSchedule(t *testing.T) {
	s := DefaultSchedule()
	require.Equal(t, 30, s.HorizonDays)
	require.Equal(t, []int{10, 7, 3, 1}, s.LeadDays)
	require.Equal(t, 10*time.Minute, s.ScanInterval)
	require.Equal(t, 24*time.Hour, s.VisitInterval)
}

func TestLoadSchedule_Overrides(t *testing.T) {
	t.Setenv("VISIT_HORIZON_DAYS", "14")
	t.Setenv("PAYMENT_LEAD_DAYS", "5,2")
	t.Setenv("PAYMENT_SCAN_INTERVAL_MIN", "5")
	t.Setenv("VISIT_TICK_INTERVAL_HOURS", "1")

	s := LoadSchedule()
	require.Equal(t, 14, s.HorizonDays)
	require.Equal(t, []int{5, 2}, s.LeadDays)
	require.Equal(t, 5*time.Minute, s.ScanInterval)
	require.Equal(t, time.Hour, s.VisitInterval)
}

func TestLoadSchedule_BadValuesKeepDefaults(t *testing.T) {
	t.Setenv("VISIT_HORIZON_DAYS", "zero")
	t.Setenv("PAYMENT_LEAD_DAYS", "10,x,3")
	t.Setenv("PAYMENT_SCAN_INTERVAL_MIN", "-4")

	s := LoadSchedule()
	require.Equal(t, 30, s.HorizonDays)
	require.Equal(t, []int{10, 7, 3, 1}, s.LeadDays)
	require.Equal(t, 10*time.Minute, s.ScanInterval)
}
