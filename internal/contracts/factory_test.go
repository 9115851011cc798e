package contracts

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/aldoetobex/facility-services-backend/pkg/models"
	"github.com/aldoetobex/facility-services-backend/pkg/recurrence"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func baseRequest() *models.ServiceRequest {
	return &models.ServiceRequest{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		PropertyID:     uuid.New(),
		ServiceID:      uuid.New(),
		Status:         models.RequestPending,
		ScheduledDate:  date(2025, 3, 1),
		EstimatedPrice: decimal.RequireFromString("120.00"),
	}
}

func TestBuildWeeklyRecurring(t *testing.T) {
	req := baseRequest()
	req.IsRecurring = true
	req.RecurrenceFrequency = recurrence.Weekly

	ct, err := Build(req, nil, BuildOptions{})
	require.NoError(t, err)

	require.Equal(t, recurrence.Weekly, ct.PaymentFrequency)
	require.Equal(t, date(2025, 3, 1), ct.StartDate)
	require.NotNil(t, ct.EndDate)
	require.Equal(t, date(2026, 3, 1), *ct.EndDate)
	require.NotNil(t, ct.NextPaymentDue)
	require.Equal(t, date(2025, 3, 8), *ct.NextPaymentDue)
	require.Equal(t, models.ContractActive, ct.Status)
	require.True(t, ct.IsActive)
	require.True(t, ct.PaymentAmount.Equal(decimal.RequireFromString("120.00")))
	// A recurring contract without explicit work days defaults to the start
	// date's weekday.
	require.Equal(t, []string{"saturday"}, ct.WorkDays)
}

func TestBuildOneTimeDueImmediately(t *testing.T) {
	req := baseRequest()
	req.RecurrenceFrequency = recurrence.OneTime

	ct, err := Build(req, nil, BuildOptions{})
	require.NoError(t, err)

	require.Equal(t, recurrence.OneTime, ct.PaymentFrequency)
	require.NotNil(t, ct.NextPaymentDue)
	require.Equal(t, ct.StartDate, *ct.NextPaymentDue)
	require.Nil(t, ct.EndDate)
}

func TestBuildDailyBilledAsOneTime(t *testing.T) {
	req := baseRequest()
	req.IsRecurring = true
	req.RecurrenceFrequency = recurrence.Daily

	ct, err := Build(req, nil, BuildOptions{})
	require.NoError(t, err)
	require.Equal(t, recurrence.OneTime, ct.PaymentFrequency)
	require.Equal(t, recurrence.Daily, ct.ServiceFrequency)
}

func TestBuildPricePrecedence(t *testing.T) {
	svc := &models.Service{
		ID:              uuid.New(),
		BasePrice:       decimal.RequireFromString("80.00"),
		DurationMinutes: 60,
	}

	// Confirmed actual price beats everything.
	req := baseRequest()
	req.ActualPrice = decimal.NewNullDecimal(decimal.RequireFromString("150.00"))
	ct, err := Build(req, svc, BuildOptions{})
	require.NoError(t, err)
	require.True(t, ct.PaymentAmount.Equal(decimal.RequireFromString("150.00")))

	// Without an actual price, the catalog recalculation wins over the estimate.
	req = baseRequest()
	ct, err = Build(req, svc, BuildOptions{})
	require.NoError(t, err)
	require.True(t, ct.PaymentAmount.Equal(decimal.RequireFromString("80.00")))

	// Longer-than-standard jobs scale the base price.
	req = baseRequest()
	req.EstimatedDurationMinutes = 90
	ct, err = Build(req, svc, BuildOptions{})
	require.NoError(t, err)
	require.True(t, ct.PaymentAmount.Equal(decimal.RequireFromString("120.00")),
		"got %s", ct.PaymentAmount)

	// No service, no actual price: fall back to the estimate.
	req = baseRequest()
	ct, err = Build(req, nil, BuildOptions{})
	require.NoError(t, err)
	require.True(t, ct.PaymentAmount.Equal(decimal.RequireFromString("120.00")))
}

func TestBuildMissingPrice(t *testing.T) {
	req := baseRequest()
	req.EstimatedPrice = decimal.Zero

	_, err := Build(req, nil, BuildOptions{})
	require.ErrorIs(t, err, ErrMissingPrice)
}

func TestBuildInvalidDateRange(t *testing.T) {
	req := baseRequest()
	req.IsRecurring = true
	req.RecurrenceFrequency = recurrence.Weekly
	end := date(2025, 2, 1) // before the scheduled date
	req.RecurrenceEndDate = &end

	_, err := Build(req, nil, BuildOptions{})
	require.ErrorIs(t, err, ErrInvalidDateRange)
}

func TestBuildExplicitEndDateWins(t *testing.T) {
	req := baseRequest()
	req.IsRecurring = true
	req.RecurrenceFrequency = recurrence.Monthly
	end := date(2025, 9, 1)
	req.RecurrenceEndDate = &end

	ct, err := Build(req, nil, BuildOptions{})
	require.NoError(t, err)
	require.NotNil(t, ct.EndDate)
	require.Equal(t, end, *ct.EndDate)
}
