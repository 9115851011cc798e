package requests

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/aldoetobex/facility-services-backend/internal/auth"
	"github.com/aldoetobex/facility-services-backend/pkg/database"
	"github.com/aldoetobex/facility-services-backend/pkg/models"
	"github.com/aldoetobex/facility-services-backend/pkg/recurrence"
	"github.com/aldoetobex/facility-services-backend/pkg/sanitize"
	"github.com/aldoetobex/facility-services-backend/pkg/validation"
)

type Handler struct{ db *gorm.DB }

func NewHandler(db *gorm.DB) *Handler { return &Handler{db: db} }

/* ================================ Create ================================ */

type CreateRequest struct {
	PropertyID string `json:"property_id" validate:"required,uuid4"`
	ServiceID  string `json:"service_id" validate:"required,uuid4"`

	ScheduledDate string `json:"scheduled_date" validate:"required,datetime=2006-01-02"`
	ScheduledTime string `json:"scheduled_time" validate:"omitempty,clock"`
	Priority      string `json:"priority" validate:"omitempty,oneof=low normal high urgent"`

	IsRecurring         bool   `json:"is_recurring"`
	RecurrenceFrequency string `json:"recurrence_frequency" validate:"omitempty,frequency"`
	RecurrenceEndDate   string `json:"recurrence_end_date" validate:"omitempty,datetime=2006-01-02"`

	EstimatedDurationMinutes int `json:"estimated_duration_minutes" validate:"omitempty,gte=0,lte=1440"`

	Notes               string `json:"notes" validate:"omitempty,max=2000"`
	SpecialInstructions string `json:"special_instructions" validate:"omitempty,max=2000"`
}

// @Summary      Create a service request
// @Tags         requests
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  CreateRequest  true  "Request payload"
// @Success      201  {object}  models.ServiceRequest
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /requests [post]
func (h *Handler) Create(c *fiber.Ctx) error {
	var in CreateRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	userID := auth.MustUserID(c)

	// The property must belong to the requesting customer.
	var prop models.Property
	if err := h.db.First(&prop, "id = ? AND owner_id = ?", in.PropertyID, userID).Error; err != nil {
		return fiber.NewError(fiber.StatusNotFound, "property not found")
	}
	var svc models.Service
	if err := h.db.First(&svc, "id = ?", in.ServiceID).Error; err != nil {
		return fiber.NewError(fiber.StatusNotFound, "service not found")
	}

	scheduled, _ := time.ParseInLocation("2006-01-02", in.ScheduledDate, time.UTC)
	if scheduled.Before(recurrence.DateOnly(time.Now())) {
		return fiber.NewError(fiber.StatusBadRequest, "scheduled date cannot be in the past")
	}

	freq := recurrence.OneTime
	if in.RecurrenceFrequency != "" {
		freq = recurrence.Frequency(in.RecurrenceFrequency)
	}
	var endDate *time.Time
	if in.RecurrenceEndDate != "" {
		d, _ := time.ParseInLocation("2006-01-02", in.RecurrenceEndDate, time.UTC)
		if d.Before(scheduled) {
			return fiber.NewError(fiber.StatusBadRequest, "recurrence end date is before the scheduled date")
		}
		endDate = &d
	}

	priority := models.PriorityNormal
	if in.Priority != "" {
		priority = models.RequestPriority(in.Priority)
	}

	req := models.ServiceRequest{
		UserID:     prop.OwnerID,
		PropertyID: prop.ID,
		ServiceID:  svc.ID,

		Status:   models.RequestPending,
		Priority: priority,

		ScheduledDate: scheduled,
		ScheduledTime: in.ScheduledTime,

		EstimatedPrice: svc.BasePrice,

		RecurrenceFrequency: freq,
		IsRecurring:         in.IsRecurring,
		RecurrenceEndDate:   endDate,

		EstimatedDurationMinutes: in.EstimatedDurationMinutes,

		Notes:               strings.TrimSpace(in.Notes),
		SpecialInstructions: strings.TrimSpace(in.SpecialInstructions),
	}
	if err := h.db.Create(&req).Error; err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(req)
}

/* =============================== Listing ================================ */

// @Summary      List my service requests
// @Tags         requests
// @Security     BearerAuth
// @Produce      json
// @Param        status    query  string  false  "filter by status"
// @Param        page      query  int     false  "page number (default 1)"
// @Param        per_page  query  int     false  "page size (default 20, max 100)"
// @Success      200  {array}  models.ServiceRequest
// @Router       /requests [get]
func (h *Handler) ListMine(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(c.Query("per_page"))
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	q := h.db.Where("user_id = ?", auth.MustUserID(c))
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		q = q.Where("status = ?", status)
	}

	var out []models.ServiceRequest
	err := q.Order("created_at DESC").
		Limit(perPage).
		Offset((page - 1) * perPage).
		Find(&out).Error
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// PendingItem is the admin queue row: customer notes are redacted and
// truncated before staff see them.
type PendingItem struct {
	ID            string    `json:"id"`
	PropertyID    string    `json:"property_id"`
	ServiceID     string    `json:"service_id"`
	Priority      string    `json:"priority"`
	ScheduledDate time.Time `json:"scheduled_date"`
	IsRecurring   bool      `json:"is_recurring"`
	Frequency     string    `json:"recurrence_frequency"`
	NotesPreview  string    `json:"notes_preview"`
	CreatedAt     time.Time `json:"created_at"`
}

// @Summary      Admin queue of pending requests
// @Tags         requests
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}  PendingItem
// @Router       /requests/pending [get]
func (h *Handler) Pending(c *fiber.Ctx) error {
	var reqs []models.ServiceRequest
	err := h.db.
		Where("status = ?", models.RequestPending).
		Order("CASE priority WHEN 'urgent' THEN 0 WHEN 'high' THEN 1 WHEN 'normal' THEN 2 ELSE 3 END, scheduled_date ASC").
		Find(&reqs).Error
	if err != nil {
		return err
	}

	out := make([]PendingItem, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, PendingItem{
			ID:            r.ID.String(),
			PropertyID:    r.PropertyID.String(),
			ServiceID:     r.ServiceID.String(),
			Priority:      string(r.Priority),
			ScheduledDate: r.ScheduledDate,
			IsRecurring:   r.IsRecurring,
			Frequency:     string(r.RecurrenceFrequency),
			NotesPreview:  sanitize.Summary(sanitize.RedactPII(r.Notes), 160),
			CreatedAt:     r.CreatedAt,
		})
	}
	return c.JSON(out)
}

// @Summary      Get a service request
// @Tags         requests
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "request ID"
// @Success      200  {object}  models.ServiceRequest
// @Failure      404  {object}  models.ErrorResponse
// @Router       /requests/{id} [get]
func (h *Handler) Get(c *fiber.Ctx) error {
	var req models.ServiceRequest
	if err := h.db.First(&req, "id = ?", c.Params("id")).Error; err != nil {
		return fiber.ErrNotFound
	}
	if auth.MustRole(c) == string(models.RoleClient) && req.UserID.String() != auth.MustUserID(c) {
		return fiber.ErrNotFound
	}
	return c.JSON(req)
}

/* ============================== Transitions ============================= */

type cancelInput struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

// @Summary      Cancel a service request
// @Description  Valid from any non-terminal state; owners and admins only
// @Tags         requests
// @Security     BearerAuth
// @Param        id  path  string  true  "request ID"
// @Success      200  {object}  models.ServiceRequest
// @Failure      409  {object}  models.ErrorResponse
// @Router       /requests/{id}/cancel [post]
func (h *Handler) Cancel(c *fiber.Ctx) error {
	var in cancelInput
	_ = c.BodyParser(&in)

	var req models.ServiceRequest
	txErr := h.db.Transaction(func(tx *gorm.DB) error {
		if err := database.ForUpdate(tx).First(&req, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.ErrNotFound
		}
		if auth.MustRole(c) == string(models.RoleClient) && req.UserID.String() != auth.MustUserID(c) {
			return fiber.ErrNotFound
		}
		if req.Status == models.RequestCompleted || req.Status == models.RequestCancelled {
			return fiber.NewError(fiber.StatusConflict, "cannot cancel a "+string(req.Status)+" request")
		}

		req.Status = models.RequestCancelled
		req.CancellationReason = strings.TrimSpace(in.Reason)
		return tx.Save(&req).Error
	})
	if txErr != nil {
		return txErr
	}
	return c.JSON(req)
}

type completeInput struct {
	ActualPrice           string `json:"actual_price" validate:"omitempty,max=20"`
	ActualDurationMinutes int    `json:"actual_duration_minutes" validate:"omitempty,gte=0,lte=1440"`
}

// @Summary      Mark a service request completed
// @Description  Optionally records the actual price and duration of the work
// @Tags         requests
// @Security     BearerAuth
// @Accept       json
// @Param        id       path  string         true   "request ID"
// @Param        payload  body  completeInput  false  "completion details"
// @Success      200  {object}  models.ServiceRequest
// @Failure      409  {object}  models.ErrorResponse
// @Router       /requests/{id}/complete [post]
func (h *Handler) Complete(c *fiber.Ctx) error {
	var in completeInput
	_ = c.BodyParser(&in)

	var actual decimal.NullDecimal
	if p := strings.TrimSpace(in.ActualPrice); p != "" {
		d, err := decimal.NewFromString(p)
		if err != nil || !d.IsPositive() {
			return fiber.NewError(fiber.StatusBadRequest, "actual_price must be a positive amount")
		}
		actual = decimal.NewNullDecimal(d)
	}

	var req models.ServiceRequest
	txErr := h.db.Transaction(func(tx *gorm.DB) error {
		if err := database.ForUpdate(tx).First(&req, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.ErrNotFound
		}
		if req.Status != models.RequestScheduled && req.Status != models.RequestInProgress {
			return fiber.NewError(fiber.StatusConflict, "cannot complete a "+string(req.Status)+" request")
		}

		now := time.Now()
		req.Status = models.RequestCompleted
		req.CompletedDate = &now
		if actual.Valid {
			req.ActualPrice = actual
		}
		if in.ActualDurationMinutes > 0 {
			req.ActualDurationMinutes = in.ActualDurationMinutes
		}
		return tx.Save(&req).Error
	})
	if txErr != nil {
		return txErr
	}
	return c.JSON(req)
}
