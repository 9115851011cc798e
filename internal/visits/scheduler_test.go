package visits

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/aldoetobex/facility-services-backend/pkg/config"
	"github.com/aldoetobex/facility-services-backend/pkg/database"
	"github.com/aldoetobex/facility-services-backend/pkg/models"
	"github.com/aldoetobex/facility-services-backend/pkg/recurrence"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedContract(t *testing.T, db *gorm.DB, freq recurrence.Frequency, start time.Time, workDays []string) *models.Contract {
	t.Helper()

	u := models.User{Email: uuid.NewString() + "@example.com", PasswordHash: "x", Role: models.RoleClient}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	p := models.Property{OwnerID: u.ID, Name: "Office"}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("seed property: %v", err)
	}

	ct := models.Contract{
		ClientID:         u.ID,
		PropertyID:       p.ID,
		ContractNumber:   "CONT-2025-" + uuid.NewString()[:4],
		Status:           models.ContractActive,
		IsActive:         true,
		StartDate:        start,
		PaymentAmount:    decimal.RequireFromString("100.00"),
		PaymentFrequency: recurrence.PaymentFrequencyFor(freq),
		ServiceFrequency: freq,
		WorkDays:         workDays,
		WorkStartTime:    "09:00",
	}
	if err := db.Create(&ct).Error; err != nil {
		t.Fatalf("seed contract: %v", err)
	}
	return &ct
}

func visitCount(t *testing.T, db *gorm.DB, contractID uuid.UUID) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&models.ServiceVisit{}).Where("contract_id = ?", contractID).Count(&n).Error; err != nil {
		t.Fatalf("count visits: %v", err)
	}
	return n
}

func TestEnsureVisitsIdempotent(t *testing.T) {
	db := newTestDB(t)
	s := NewScheduler(db, config.DefaultSchedule())

	today := recurrence.DateOnly(time.Now())
	horizon := today.AddDate(0, 0, 30)
	ct := seedContract(t, db, recurrence.Weekly, today, nil)

	if err := s.EnsureVisitsForContract(db, ct, today, horizon); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first := visitCount(t, db, ct.ID)
	if first == 0 {
		t.Fatal("expected visits to be created")
	}

	if err := s.EnsureVisitsForContract(db, ct, today, horizon); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got := visitCount(t, db, ct.ID); got != first {
		t.Fatalf("visit count changed on second run: %d -> %d", first, got)
	}
}

func TestVisitDatesStrictlyIncreasing(t *testing.T) {
	db := newTestDB(t)
	s := NewScheduler(db, config.DefaultSchedule())

	today := recurrence.DateOnly(time.Now())
	ct := seedContract(t, db, recurrence.Weekly, today, nil)

	if err := s.EnsureVisitsForContract(db, ct, today, today.AddDate(0, 0, 30)); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	var visits []models.ServiceVisit
	if err := db.Where("contract_id = ?", ct.ID).Order("scheduled_date ASC").Find(&visits).Error; err != nil {
		t.Fatalf("load visits: %v", err)
	}
	seen := map[string]bool{}
	prev := time.Time{}
	for _, v := range visits {
		key := v.ScheduledDate.Format("2006-01-02")
		if seen[key] {
			t.Fatalf("duplicate visit date %s", key)
		}
		seen[key] = true
		if !v.ScheduledDate.After(prev) {
			t.Fatalf("dates not strictly increasing at %s", key)
		}
		prev = v.ScheduledDate
	}
}

func TestVisitsRollForwardToWorkDays(t *testing.T) {
	db := newTestDB(t)
	s := NewScheduler(db, config.DefaultSchedule())

	// Start on a Monday so the anchor itself lands on an allowed day. The
	// monthly 30-day step drifts off Monday, forcing the roll-forward.
	start := recurrence.DateOnly(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)) // Monday
	ct := seedContract(t, db, recurrence.Monthly, start, []string{"monday"})

	if err := s.EnsureVisitsForContract(db, ct, start, start.AddDate(0, 0, 60)); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	var visits []models.ServiceVisit
	if err := db.Where("contract_id = ?", ct.ID).Find(&visits).Error; err != nil {
		t.Fatalf("load visits: %v", err)
	}
	if len(visits) < 2 {
		t.Fatalf("expected at least two visits, got %d", len(visits))
	}
	for _, v := range visits {
		if wd := v.ScheduledDate.UTC().Weekday(); wd != time.Monday {
			t.Fatalf("visit on %s scheduled for %s, want Monday", v.ScheduledDate.Format("2006-01-02"), wd)
		}
	}
}

func TestVisitsStopAtContractEndDate(t *testing.T) {
	db := newTestDB(t)
	s := NewScheduler(db, config.DefaultSchedule())

	today := recurrence.DateOnly(time.Now())
	ct := seedContract(t, db, recurrence.Weekly, today, nil)
	end := today.AddDate(0, 0, 10)
	ct.EndDate = &end
	if err := db.Save(ct).Error; err != nil {
		t.Fatalf("set end date: %v", err)
	}

	if err := s.EnsureVisitsForContract(db, ct, today, today.AddDate(0, 0, 30)); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	var visits []models.ServiceVisit
	if err := db.Where("contract_id = ?", ct.ID).Find(&visits).Error; err != nil {
		t.Fatalf("load visits: %v", err)
	}
	for _, v := range visits {
		if v.ScheduledDate.After(end) {
			t.Fatalf("visit %s scheduled past contract end %s", v.ScheduledDate, end)
		}
	}
}

func TestGenerationIsolatesBrokenContracts(t *testing.T) {
	db := newTestDB(t)
	s := NewScheduler(db, config.DefaultSchedule())

	today := recurrence.DateOnly(time.Now())
	good := seedContract(t, db, recurrence.Weekly, today, nil)
	bad := seedContract(t, db, recurrence.Weekly, today, nil)
	// Corrupt the frequency directly; the enum is enforced at the API edge.
	if err := db.Model(bad).Update("service_frequency", "fortnightly").Error; err != nil {
		t.Fatalf("corrupt contract: %v", err)
	}

	if err := s.GenerateUpcomingVisits(); err != nil {
		t.Fatalf("generate: %v", err)
	}

	if visitCount(t, db, good.ID) == 0 {
		t.Fatal("healthy contract should still get visits when another contract fails")
	}
	if visitCount(t, db, bad.ID) != 0 {
		t.Fatal("broken contract should not get visits")
	}
}
