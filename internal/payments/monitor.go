package payments

import (
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"github.com/aldoetobex/facility-services-backend/internal/notify"
	"github.com/aldoetobex/facility-services-backend/pkg/config"
	"github.com/aldoetobex/facility-services-backend/pkg/database"
	"github.com/aldoetobex/facility-services-backend/pkg/models"
	"github.com/aldoetobex/facility-services-backend/pkg/recurrence"
)

/*
Monitor watches active contracts for payments that are coming due or already
overdue, and creates the pending payment for the cycle. Policy note: both the
upcoming pass and the overdue pass create a real pending Payment (not just a
reminder log); the dedup index guarantees the contract is actioned at most
once per cycle no matter how many lead thresholds or ticks it matches.
*/

type Monitor struct {
	db     *gorm.DB
	cfg    config.Schedule
	mailer *notify.Mailer

	running atomic.Bool
	stop    chan struct{}
	done    chan struct{}
}

func NewMonitor(db *gorm.DB, cfg config.Schedule, mailer *notify.Mailer) *Monitor {
	return &Monitor{
		db:     db,
		cfg:    cfg,
		mailer: mailer,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start scans immediately, then on every tick. A tick firing while the
// previous scan is still running is skipped.
func (m *Monitor) Start() {
	go func() {
		defer close(m.done)

		m.runOnce()

		t := time.NewTicker(m.cfg.ScanInterval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				m.runOnce()
			case <-m.stop:
				return
			}
		}
	}()
}

// Stop halts the ticker and waits for an in-flight scan to finish.
func (m *Monitor) Stop() {
	close(m.stop)
	<-m.done
}

func (m *Monitor) runOnce() {
	if !m.running.CompareAndSwap(false, true) {
		log.Println("payments: previous scan still running, skipping tick")
		return
	}
	defer m.running.Store(false)

	if err := m.Scan(); err != nil {
		log.Printf("payments: scan failed: %v", err)
	}
}

// Scan runs the upcoming pass for every configured lead threshold, then the
// overdue pass. Per-contract failures are logged and do not stop the scan.
func (m *Monitor) Scan() error {
	today := recurrence.DateOnly(time.Now())

	for _, lead := range m.cfg.LeadDays {
		due := today.AddDate(0, 0, lead)

		var contracts []models.Contract
		if err := m.db.
			Where("status = ? AND is_active = ?", models.ContractActive, true).
			Where("next_payment_due = ?", due).
			Find(&contracts).Error; err != nil {
			return err
		}
		for i := range contracts {
			m.raiseObligation(&contracts[i], fmt.Sprintf("Payment due in %d days", lead),
				func(d time.Time) bool { return d.Equal(due) })
		}
	}

	var overdue []models.Contract
	if err := m.db.
		Where("status = ? AND is_active = ?", models.ContractActive, true).
		Where("next_payment_due IS NOT NULL AND next_payment_due < ?", today).
		Find(&overdue).Error; err != nil {
		return err
	}
	for i := range overdue {
		m.raiseObligation(&overdue[i], "Payment overdue",
			func(d time.Time) bool { return d.Before(today) })
	}
	return nil
}

// The contract stopped matching the scan criterion between the scan's read
// and the locked re-check.
var errObligationStale = errors.New("obligation no longer due")

// raiseObligation creates the cycle's pending payment and emails the payment
// link. The contract is re-read under a row lock and re-checked against the
// scan criterion before inserting: a webhook confirming the previous payment
// between the scan's read and this write advances the due date, and the cycle
// it advanced to must not be billed early. A contract that already has an
// active payment is silently skipped; anything else is logged without
// aborting the batch.
func (m *Monitor) raiseObligation(ct *models.Contract, description string, stillDue func(time.Time) bool) {
	var (
		created *models.Payment
		fresh   models.Contract
	)
	err := m.db.Transaction(func(tx *gorm.DB) error {
		if err := database.ForUpdate(tx).First(&fresh, "id = ?", ct.ID).Error; err != nil {
			return err
		}
		if fresh.Status != models.ContractActive || !fresh.IsActive ||
			fresh.NextPaymentDue == nil || !stillDue(recurrence.DateOnly(*fresh.NextPaymentDue)) {
			return errObligationStale
		}

		p, err := CreateForContract(tx, &fresh, description)
		if err != nil {
			return err
		}
		created = p
		return nil
	})
	if errors.Is(err, ErrDuplicateObligation) || errors.Is(err, errObligationStale) {
		return
	}
	if err != nil {
		log.Printf("payments: contract %s (%s): %v", ct.ID, ct.ContractNumber, err)
		return
	}

	var client models.User
	if err := m.db.First(&client, "id = ?", fresh.ClientID).Error; err != nil {
		log.Printf("payments: contract %s: load client: %v", fresh.ID, err)
		return
	}
	m.mailer.SendPaymentLink(client.Email, client.Name, created.Amount, *fresh.NextPaymentDue, created.PaymentURL)
}
