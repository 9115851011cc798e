package visits

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"github.com/aldoetobex/facility-services-backend/pkg/config"
	"github.com/aldoetobex/facility-services-backend/pkg/models"
	"github.com/aldoetobex/facility-services-backend/pkg/recurrence"
)

/*
Scheduler materializes future service visits for active contracts. It only
ever creates visits in the pending state; completing or skipping them is the
field staff's job (see handlers.go).

Each tick walks every active contract independently. One contract failing
(bad frequency, DB error) is logged and does not stop the rest of the batch.
*/

type Scheduler struct {
	db  *gorm.DB
	cfg config.Schedule

	running atomic.Bool
	stop    chan struct{}
	done    chan struct{}
}

func NewScheduler(db *gorm.DB, cfg config.Schedule) *Scheduler {
	return &Scheduler{
		db:   db,
		cfg:  cfg,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start runs one generation pass immediately, then on every tick. A tick that
// fires while the previous pass is still running is skipped.
func (s *Scheduler) Start() {
	go func() {
		defer close(s.done)

		s.runOnce()

		t := time.NewTicker(s.cfg.VisitInterval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				s.runOnce()
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop halts the ticker and waits for an in-flight pass to finish.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Scheduler) runOnce() {
	if !s.running.CompareAndSwap(false, true) {
		log.Println("visits: previous generation pass still running, skipping tick")
		return
	}
	defer s.running.Store(false)

	if err := s.GenerateUpcomingVisits(); err != nil {
		log.Printf("visits: generation pass failed: %v", err)
	}
}

// GenerateUpcomingVisits ensures every active contract has pending visits up
// to the planning horizon. Per-contract failures are logged and skipped.
func (s *Scheduler) GenerateUpcomingVisits() error {
	today := recurrence.DateOnly(time.Now())
	horizon := today.AddDate(0, 0, s.cfg.HorizonDays)

	var contracts []models.Contract
	if err := s.db.
		Where("status = ? AND is_active = ?", models.ContractActive, true).
		Find(&contracts).Error; err != nil {
		return err
	}

	for i := range contracts {
		ct := &contracts[i]
		if err := s.EnsureVisitsForContract(s.db, ct, today, horizon); err != nil {
			log.Printf("visits: contract %s (%s): %v", ct.ID, ct.ContractNumber, err)
		}
	}
	return nil
}

// EnsureVisitsForContract creates a pending visit for every due occurrence
// date up to the horizon. Running it twice with the same inputs produces the
// same visit set: existing dates are skipped, and the unique index on
// (contract_id, scheduled_date) backstops any concurrent run.
func (s *Scheduler) EnsureVisitsForContract(db *gorm.DB, ct *models.Contract, today, horizon time.Time) error {
	interval, err := recurrence.IntervalDays(ct.ServiceFrequency)
	if err != nil {
		return err
	}

	today = recurrence.DateOnly(today)
	horizon = recurrence.DateOnly(horizon)
	if ct.EndDate != nil && horizon.After(*ct.EndDate) {
		horizon = recurrence.DateOnly(*ct.EndDate)
	}

	// Never schedule in the past, never restart before the last known visit.
	ref := recurrence.DateOnly(ct.StartDate)
	if ref.Before(today) {
		ref = today
	}
	var last models.ServiceVisit
	err = db.Where("contract_id = ?", ct.ID).Order("scheduled_date DESC").First(&last).Error
	switch {
	case err == nil:
		if d := recurrence.DateOnly(last.ScheduledDate); d.After(ref) {
			ref = d
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		// first pass for this contract
	default:
		return err
	}

	for !ref.After(horizon) {
		if err := s.createIfAbsent(db, ct, ref); err != nil {
			return err
		}

		// Occurrence dates must advance strictly; adjustWorkday never moves
		// backwards, so the loop terminates.
		ref = adjustToWorkday(ref.AddDate(0, 0, interval), ct.WorkDays)
	}
	return nil
}

func (s *Scheduler) createIfAbsent(db *gorm.DB, ct *models.Contract, dateOn time.Time) error {
	var n int64
	if err := db.Model(&models.ServiceVisit{}).
		Where("contract_id = ? AND scheduled_date = ?", ct.ID, dateOn).
		Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	v := models.ServiceVisit{
		ContractID:       ct.ID,
		ServiceRequestID: ct.ServiceRequestID,
		ScheduledDate:    dateOn,
		ScheduledTime:    ct.WorkStartTime,
		Status:           models.VisitPending,
	}
	if err := db.Create(&v).Error; err != nil {
		// A concurrent pass beat us to this date; the visit exists, move on.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil
		}
		return err
	}
	return nil
}

// adjustToWorkday rolls the date forward to the next weekday listed in
// workDays, at most 7 single-day steps. An empty list or no match within a
// week keeps the date unchanged rather than looping forever.
func adjustToWorkday(d time.Time, workDays []string) time.Time {
	if len(workDays) == 0 {
		return d
	}
	allowed := make(map[string]bool, len(workDays))
	for _, w := range workDays {
		allowed[strings.ToLower(strings.TrimSpace(w))] = true
	}

	candidate := d
	for i := 0; i < 7; i++ {
		if allowed[strings.ToLower(candidate.Weekday().String())] {
			return candidate
		}
		candidate = candidate.AddDate(0, 0, 1)
	}
	return d
}
