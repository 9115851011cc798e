package contracts

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/aldoetobex/facility-services-backend/pkg/models"
	"github.com/aldoetobex/facility-services-backend/pkg/recurrence"
)

var (
	// ErrMissingPrice means no price source resolved to a positive amount.
	ErrMissingPrice = errors.New("no resolvable payment amount")

	// ErrInvalidDateRange means the requested end date precedes the start date.
	ErrInvalidDateRange = errors.New("end date is before start date")
)

// BuildOptions carries the admin-supplied extras for a new contract.
type BuildOptions struct {
	Notes    string
	Terms    string
	Scope    string
	WorkDays []string // lowercase weekday names; derived from the start date if empty
}

// Build derives a fully-populated Contract from an approved service request.
// It never persists anything; the caller owns the transaction.
//
// Price resolution order: the request's actual (confirmed) price, then a
// recalculation from the service catalog, then the original estimate. The
// first positive amount wins.
func Build(req *models.ServiceRequest, svc *models.Service, opts BuildOptions) (*models.Contract, error) {
	amount, err := resolvePrice(req, svc)
	if err != nil {
		return nil, err
	}

	payFreq := recurrence.PaymentFrequencyFor(req.RecurrenceFrequency)
	startDate := recurrence.DateOnly(req.ScheduledDate)

	endDate, err := resolveEndDate(req, startDate)
	if err != nil {
		return nil, err
	}

	// One-time contracts are due immediately; the approval path charges them
	// synchronously instead of waiting for the monitor.
	var nextDue *time.Time
	if payFreq == recurrence.OneTime {
		d := startDate
		nextDue = &d
	} else {
		next, ok, err := recurrence.NextOccurrence(startDate, payFreq)
		if err != nil {
			return nil, err
		}
		if ok {
			nextDue = &next
		}
	}

	workDays := opts.WorkDays
	if len(workDays) == 0 && req.IsRecurring {
		workDays = []string{strings.ToLower(startDate.Weekday().String())}
	}

	c := &models.Contract{
		ClientID:         req.UserID,
		PropertyID:       req.PropertyID,
		ServiceRequestID: &req.ID,

		Status:   models.ContractActive,
		IsActive: true,

		StartDate: startDate,
		EndDate:   endDate,

		PaymentAmount:    amount,
		PaymentFrequency: payFreq,
		NextPaymentDue:   nextDue,

		ServiceFrequency: req.RecurrenceFrequency,
		WorkDays:         workDays,
		WorkStartTime:    req.ScheduledTime,

		Notes: opts.Notes,
		Terms: opts.Terms,
		Scope: opts.Scope,

		EstimatedDurationMinutes: req.EstimatedDurationMinutes,
	}
	return c, nil
}

// resolvePrice picks the payment amount: confirmed actual price, then a
// recalculation from the service catalog, then the estimate.
func resolvePrice(req *models.ServiceRequest, svc *models.Service) (decimal.Decimal, error) {
	if req.ActualPrice.Valid && req.ActualPrice.Decimal.IsPositive() {
		return req.ActualPrice.Decimal, nil
	}
	if svc != nil && svc.BasePrice.IsPositive() {
		return recalculatePrice(req, svc), nil
	}
	if req.EstimatedPrice.IsPositive() {
		return req.EstimatedPrice, nil
	}
	return decimal.Zero, ErrMissingPrice
}

// recalculatePrice scales the service's base price when the requested duration
// exceeds the catalog's standard duration. Equal or shorter durations pay the
// base price as-is.
func recalculatePrice(req *models.ServiceRequest, svc *models.Service) decimal.Decimal {
	price := svc.BasePrice
	if svc.DurationMinutes > 0 && req.EstimatedDurationMinutes > svc.DurationMinutes {
		ratio := decimal.NewFromInt(int64(req.EstimatedDurationMinutes)).
			Div(decimal.NewFromInt(int64(svc.DurationMinutes)))
		price = price.Mul(ratio).Round(2)
	}
	return price
}

// resolveEndDate applies the precedence: explicit recurrence end date, then
// one year for open-ended recurring requests, then open-ended (nil).
func resolveEndDate(req *models.ServiceRequest, startDate time.Time) (*time.Time, error) {
	if req.RecurrenceEndDate != nil {
		end := recurrence.DateOnly(*req.RecurrenceEndDate)
		if end.Before(startDate) {
			return nil, ErrInvalidDateRange
		}
		return &end, nil
	}
	if req.IsRecurring {
		end := startDate.AddDate(1, 0, 0)
		return &end, nil
	}
	return nil, nil
}

// NextContractNumber allocates the next sequential number for the year, e.g.
// "CONT-2025-0001". The count does not serialize concurrent transactions;
// two approvals racing can compute the same number and the unique index on
// contract_number rejects the loser, so callers must treat a duplicate-key
// error on the contract insert as a signal to retry the allocation.
func NextContractNumber(tx *gorm.DB, year int) (string, error) {
	prefix := fmt.Sprintf("CONT-%d-", year)

	var count int64
	if err := tx.Model(&models.Contract{}).
		Where("contract_number LIKE ?", prefix+"%").
		Count(&count).Error; err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%04d", prefix, count+1), nil
}
