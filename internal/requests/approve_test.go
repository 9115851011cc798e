package requests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/aldoetobex/facility-services-backend/internal/auth"
	"github.com/aldoetobex/facility-services-backend/internal/documents"
	"github.com/aldoetobex/facility-services-backend/internal/notify"
	"github.com/aldoetobex/facility-services-backend/internal/storage"
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

// newApprovalApp wires the workflow behind a fake admin identity.
func newApprovalApp(db *gorm.DB, adminID uuid.UUID) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler})
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("userID", adminID.String())
		c.Locals("role", string(models.RoleAdmin))
		return c.Next()
	})

	wf := NewApprovalWorkflow(db, notify.NewMailer(), documents.NewRenderer(storage.NewSupabase()))
	app.Post("/requests/:id/approve", wf.Approve)
	return app
}

type fixture struct {
	admin   models.User
	client  models.User
	prop    models.Property
	svc     models.Service
	request models.ServiceRequest
}

func seedRequest(t *testing.T, db *gorm.DB, mut func(*models.ServiceRequest)) *fixture {
	t.Helper()

	f := &fixture{
		admin:  models.User{Email: uuid.NewString() + "@example.com", PasswordHash: "x", Role: models.RoleAdmin},
		client: models.User{Email: uuid.NewString() + "@example.com", PasswordHash: "x", Role: models.RoleClient, Name: "Client", IsEmailConfirmed: true},
	}
	if err := db.Create(&f.admin).Error; err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	if err := db.Create(&f.client).Error; err != nil {
		t.Fatalf("seed client: %v", err)
	}

	f.prop = models.Property{OwnerID: f.client.ID, Name: "Office"}
	if err := db.Create(&f.prop).Error; err != nil {
		t.Fatalf("seed property: %v", err)
	}
	f.svc = models.Service{Name: "Cleaning", BasePrice: decimal.RequireFromString("80.00"), DurationMinutes: 60}
	if err := db.Create(&f.svc).Error; err != nil {
		t.Fatalf("seed service: %v", err)
	}

	f.request = models.ServiceRequest{
		UserID:              f.client.ID,
		PropertyID:          f.prop.ID,
		ServiceID:           f.svc.ID,
		Status:              models.RequestPending,
		Priority:            models.PriorityNormal,
		ScheduledDate:       time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		EstimatedPrice:      decimal.RequireFromString("120.00"),
		RecurrenceFrequency: recurrence.OneTime,
	}
	if mut != nil {
		mut(&f.request)
	}
	if err := db.Create(&f.request).Error; err != nil {
		t.Fatalf("seed request: %v", err)
	}
	return f
}

func approve(t *testing.T, app *fiber.App, requestID uuid.UUID, body any) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest("POST", "/requests/"+requestID.String()+"/approve", &buf)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("approve request: %v", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestApproveWeeklyRecurringRequest(t *testing.T) {
	db := newTestDB(t)
	f := seedRequest(t, db, func(r *models.ServiceRequest) {
		r.IsRecurring = true
		r.RecurrenceFrequency = recurrence.Weekly
	})
	app := newApprovalApp(db, f.admin.ID)

	if code := approve(t, app, f.request.ID, nil); code != 200 {
		t.Fatalf("approve status = %d", code)
	}

	var req models.ServiceRequest
	if err := db.First(&req, "id = ?", f.request.ID).Error; err != nil {
		t.Fatalf("reload request: %v", err)
	}
	if req.Status != models.RequestScheduled {
		t.Fatalf("request status = %s, want scheduled", req.Status)
	}

	var ct models.Contract
	if err := db.First(&ct, "service_request_id = ?", f.request.ID).Error; err != nil {
		t.Fatalf("load contract: %v", err)
	}
	if ct.PaymentFrequency != recurrence.Weekly {
		t.Fatalf("payment frequency = %s, want weekly", ct.PaymentFrequency)
	}
	if want := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC); !ct.StartDate.Equal(want) {
		t.Fatalf("start date = %v", ct.StartDate)
	}
	if want := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC); ct.EndDate == nil || !ct.EndDate.Equal(want) {
		t.Fatalf("end date = %v", ct.EndDate)
	}
	if want := time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC); ct.NextPaymentDue == nil || !ct.NextPaymentDue.Equal(want) {
		t.Fatalf("next due = %v", ct.NextPaymentDue)
	}
	if ct.Status != models.ContractActive {
		t.Fatalf("contract status = %s", ct.Status)
	}
	if ct.ContractNumber != "CONT-"+time.Now().UTC().Format("2006")+"-0001" {
		t.Fatalf("contract number = %s", ct.ContractNumber)
	}

	// Recurring approvals do not charge immediately.
	var n int64
	if err := db.Model(&models.Payment{}).Where("contract_id = ?", ct.ID).Count(&n).Error; err != nil {
		t.Fatalf("count payments: %v", err)
	}
	if n != 0 {
		t.Fatalf("payments = %d, want 0", n)
	}
}

func TestApproveOneTimeChargesImmediately(t *testing.T) {
	db := newTestDB(t)
	f := seedRequest(t, db, nil)
	app := newApprovalApp(db, f.admin.ID)

	if code := approve(t, app, f.request.ID, nil); code != 200 {
		t.Fatalf("approve status = %d", code)
	}

	var ct models.Contract
	if err := db.First(&ct, "service_request_id = ?", f.request.ID).Error; err != nil {
		t.Fatalf("load contract: %v", err)
	}
	if ct.PaymentFrequency != recurrence.OneTime {
		t.Fatalf("payment frequency = %s", ct.PaymentFrequency)
	}
	if ct.NextPaymentDue == nil || !ct.NextPaymentDue.Equal(ct.StartDate) {
		t.Fatalf("one-time next due = %v, want start date %v", ct.NextPaymentDue, ct.StartDate)
	}

	var pays []models.Payment
	if err := db.Where("contract_id = ?", ct.ID).Find(&pays).Error; err != nil {
		t.Fatalf("load payments: %v", err)
	}
	if len(pays) != 1 {
		t.Fatalf("payments = %d, want 1", len(pays))
	}
	if pays[0].Status != models.PayPending {
		t.Fatalf("payment status = %s", pays[0].Status)
	}
	if !pays[0].Amount.Equal(ct.PaymentAmount) {
		t.Fatalf("payment amount = %s, contract amount %s", pays[0].Amount, ct.PaymentAmount)
	}
}

func TestApproveAlreadyScheduledConflicts(t *testing.T) {
	db := newTestDB(t)
	f := seedRequest(t, db, func(r *models.ServiceRequest) {
		r.IsRecurring = true
		r.RecurrenceFrequency = recurrence.Monthly
	})
	app := newApprovalApp(db, f.admin.ID)

	if code := approve(t, app, f.request.ID, nil); code != 200 {
		t.Fatalf("first approve status = %d", code)
	}
	if code := approve(t, app, f.request.ID, nil); code != 409 {
		t.Fatalf("second approve status = %d, want 409", code)
	}

	// Exactly one contract, no matter how many approvals were attempted.
	var n int64
	if err := db.Model(&models.Contract{}).Where("service_request_id = ?", f.request.ID).Count(&n).Error; err != nil {
		t.Fatalf("count contracts: %v", err)
	}
	if n != 1 {
		t.Fatalf("contracts = %d, want 1", n)
	}
}

func TestApproveConfirmedPriceOverridesEstimate(t *testing.T) {
	db := newTestDB(t)
	f := seedRequest(t, db, func(r *models.ServiceRequest) {
		r.IsRecurring = true
		r.RecurrenceFrequency = recurrence.Monthly
	})
	app := newApprovalApp(db, f.admin.ID)

	body := map[string]any{"confirmed_price": "199.50"}
	if code := approve(t, app, f.request.ID, body); code != 200 {
		t.Fatalf("approve status = %d", code)
	}

	var ct models.Contract
	if err := db.First(&ct, "service_request_id = ?", f.request.ID).Error; err != nil {
		t.Fatalf("load contract: %v", err)
	}
	if !ct.PaymentAmount.Equal(decimal.RequireFromString("199.50")) {
		t.Fatalf("payment amount = %s, want 199.50", ct.PaymentAmount)
	}
}

func TestApproveFirstTimeCustomerGetsCredentials(t *testing.T) {
	db := newTestDB(t)
	f := seedRequest(t, db, nil)
	if err := db.Model(&models.User{}).Where("id = ?", f.client.ID).
		Update("is_email_confirmed", false).Error; err != nil {
		t.Fatalf("unconfirm client: %v", err)
	}
	app := newApprovalApp(db, f.admin.ID)

	if code := approve(t, app, f.request.ID, nil); code != 200 {
		t.Fatalf("approve status = %d", code)
	}

	var client models.User
	if err := db.First(&client, "id = ?", f.client.ID).Error; err != nil {
		t.Fatalf("reload client: %v", err)
	}
	if !client.IsEmailConfirmed {
		t.Fatal("client should be confirmed after approval")
	}
	if client.PasswordHash == "x" {
		t.Fatal("client should have fresh generated credentials")
	}
}

func TestApproveNumberCollisionReturnsConflict(t *testing.T) {
	db := newTestDB(t)
	f := seedRequest(t, db, nil)
	app := newApprovalApp(db, f.admin.ID)

	// A gap in the sequence makes the allocator land on a taken number on
	// every attempt: one contract exists for the year but it holds 0002, so
	// count+1 keeps coming out as 0002.
	year := time.Now().UTC().Year()
	taken := models.Contract{
		ClientID:         f.client.ID,
		PropertyID:       f.prop.ID,
		ContractNumber:   fmt.Sprintf("CONT-%d-0002", year),
		Status:           models.ContractActive,
		IsActive:         true,
		StartDate:        time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		PaymentAmount:    decimal.RequireFromString("50.00"),
		PaymentFrequency: recurrence.OneTime,
		ServiceFrequency: recurrence.OneTime,
	}
	if err := db.Create(&taken).Error; err != nil {
		t.Fatalf("seed contract: %v", err)
	}

	if code := approve(t, app, f.request.ID, nil); code != 409 {
		t.Fatalf("approve status = %d, want 409", code)
	}

	// The failed attempts rolled back completely.
	var n int64
	if err := db.Model(&models.Contract{}).Where("service_request_id = ?", f.request.ID).Count(&n).Error; err != nil {
		t.Fatalf("count contracts: %v", err)
	}
	if n != 0 {
		t.Fatalf("contracts = %d, want 0", n)
	}
	var req models.ServiceRequest
	if err := db.First(&req, "id = ?", f.request.ID).Error; err != nil {
		t.Fatalf("reload request: %v", err)
	}
	if req.Status != models.RequestPending {
		t.Fatalf("request status = %s, want pending", req.Status)
	}
}

func TestApproveMissingRequest(t *testing.T) {
	db := newTestDB(t)
	f := seedRequest(t, db, nil)
	app := newApprovalApp(db, f.admin.ID)

	if code := approve(t, app, uuid.New(), nil); code != 404 {
		t.Fatalf("status = %d, want 404", code)
	}
}
