package contracts

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/facility-services-backend/internal/auth"
	"github.com/aldoetobex/facility-services-backend/internal/documents"
	"github.com/aldoetobex/facility-services-backend/pkg/database"
	"github.com/aldoetobex/facility-services-backend/pkg/models"
	"github.com/aldoetobex/facility-services-backend/pkg/recurrence"
	"github.com/aldoetobex/facility-services-backend/pkg/utils"
)

type Handler struct {
	db   *gorm.DB
	docs *documents.Renderer
}

func NewHandler(db *gorm.DB, docs *documents.Renderer) *Handler {
	return &Handler{db: db, docs: docs}
}

/* =============================== Listing ================================ */

// @Summary      List contracts
// @Description  Clients see their own contracts; admins see all, filterable by status
// @Tags         contracts
// @Security     BearerAuth
// @Produce      json
// @Param        status  query  string  false  "filter by status (admin only)"
// @Success      200  {array}  models.Contract
// @Router       /contracts [get]
func (h *Handler) List(c *fiber.Ctx) error {
	q := h.db.Model(&models.Contract{}).Order("created_at DESC")

	if auth.MustRole(c) == string(models.RoleAdmin) {
		if status := strings.TrimSpace(c.Query("status")); status != "" {
			q = q.Where("status = ?", status)
		}
	} else {
		q = q.Where("client_id = ?", auth.MustUserID(c))
	}

	var out []models.Contract
	if err := q.Find(&out).Error; err != nil {
		return err
	}
	return c.JSON(out)
}

// @Summary      Contracts with payments due soon
// @Description  Active contracts whose next payment falls within N days (default 7)
// @Tags         contracts
// @Security     BearerAuth
// @Produce      json
// @Param        days  query  int  false  "window in days"
// @Success      200  {array}  models.Contract
// @Router       /contracts/upcoming-payments [get]
func (h *Handler) UpcomingPayments(c *fiber.Ctx) error {
	days := 7
	if v, err := strconv.Atoi(c.Query("days")); err == nil && v > 0 {
		days = v
	}
	today := recurrence.DateOnly(time.Now())
	until := today.AddDate(0, 0, days)

	var out []models.Contract
	err := h.db.
		Where("status = ? AND is_active = ?", models.ContractActive, true).
		Where("next_payment_due IS NOT NULL AND next_payment_due >= ? AND next_payment_due <= ?", today, until).
		Order("next_payment_due ASC").
		Find(&out).Error
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// @Summary      Contracts with overdue payments
// @Tags         contracts
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}  models.Contract
// @Router       /contracts/overdue [get]
func (h *Handler) Overdue(c *fiber.Ctx) error {
	today := recurrence.DateOnly(time.Now())

	var out []models.Contract
	err := h.db.
		Where("status = ? AND is_active = ?", models.ContractActive, true).
		Where("next_payment_due IS NOT NULL AND next_payment_due < ?", today).
		Order("next_payment_due ASC").
		Find(&out).Error
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// @Summary      Contracts expiring soon
// @Description  Active contracts whose end date falls within N days (default 30)
// @Tags         contracts
// @Security     BearerAuth
// @Produce      json
// @Param        days  query  int  false  "window in days"
// @Success      200  {array}  models.Contract
// @Router       /contracts/expiring [get]
func (h *Handler) Expiring(c *fiber.Ctx) error {
	days := 30
	if v, err := strconv.Atoi(c.Query("days")); err == nil && v > 0 {
		days = v
	}
	today := recurrence.DateOnly(time.Now())
	until := today.AddDate(0, 0, days)

	var out []models.Contract
	err := h.db.
		Where("status = ? AND is_active = ?", models.ContractActive, true).
		Where("end_date IS NOT NULL AND end_date >= ? AND end_date <= ?", today, until).
		Order("end_date ASC").
		Find(&out).Error
	if err != nil {
		return err
	}
	return c.JSON(out)
}

/* ================================ Detail ================================ */

// load fetches a contract and enforces ownership for non-admin callers.
func (h *Handler) load(c *fiber.Ctx) (*models.Contract, error) {
	var ct models.Contract
	if err := h.db.First(&ct, "id = ?", c.Params("id")).Error; err != nil {
		return nil, fiber.ErrNotFound
	}
	if auth.MustRole(c) != string(models.RoleAdmin) && ct.ClientID.String() != auth.MustUserID(c) {
		return nil, fiber.ErrNotFound
	}
	return &ct, nil
}

// @Summary      Get a contract
// @Tags         contracts
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "contract ID"
// @Success      200  {object}  models.Contract
// @Failure      404  {object}  models.ErrorResponse
// @Router       /contracts/{id} [get]
func (h *Handler) Get(c *fiber.Ctx) error {
	ct, err := h.load(c)
	if err != nil {
		return err
	}
	return c.JSON(ct)
}

// @Summary      History of a contract
// @Tags         contracts
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "contract ID"
// @Success      200  {array}  models.ContractHistory
// @Router       /contracts/{id}/history [get]
func (h *Handler) History(c *fiber.Ctx) error {
	ct, err := h.load(c)
	if err != nil {
		return err
	}
	var out []models.ContractHistory
	if err := h.db.Where("contract_id = ?", ct.ID).Order("created_at DESC").Find(&out).Error; err != nil {
		return err
	}
	return c.JSON(out)
}

// @Summary      Signed URL for the contract summary document
// @Tags         contracts
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "contract ID"
// @Success      200  {object}  map[string]string
// @Failure      404  {object}  models.ErrorResponse
// @Router       /contracts/{id}/document [get]
func (h *Handler) Document(c *fiber.Ctx) error {
	ct, err := h.load(c)
	if err != nil {
		return err
	}
	url, err := h.docs.SignedURL(ct, 600)
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, "document not available")
	}
	return c.JSON(fiber.Map{"url": url, "expires_in": 600})
}

/* ============================== Lifecycle =============================== */

type cancelInput struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

// transition moves a contract between lifecycle states under a row lock and
// records the change in the history log.
func (h *Handler) transition(c *fiber.Ctx, action string, to models.ContractStatus, allowedFrom ...models.ContractStatus) error {
	actorID, err := uuid.Parse(auth.MustUserID(c))
	if err != nil {
		return fiber.ErrUnauthorized
	}

	var reason string
	if to == models.ContractCancelled {
		var in cancelInput
		_ = c.BodyParser(&in)
		reason = strings.TrimSpace(in.Reason)
	}

	var ct models.Contract
	txErr := h.db.Transaction(func(tx *gorm.DB) error {
		if err := database.ForUpdate(tx).
			First(&ct, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.ErrNotFound
		}

		if ct.Status == to {
			return fiber.NewError(fiber.StatusConflict, "contract is already "+string(to))
		}
		ok := false
		for _, from := range allowedFrom {
			if ct.Status == from {
				ok = true
				break
			}
		}
		if !ok {
			return fiber.NewError(fiber.StatusConflict, "cannot "+action+" a "+string(ct.Status)+" contract")
		}

		old := ct.Status
		ct.Status = to
		ct.IsActive = to == models.ContractActive
		if reason != "" {
			if ct.Notes != "" {
				ct.Notes += "\n"
			}
			ct.Notes += "Cancelled: " + reason
		}
		if err := tx.Save(&ct).Error; err != nil {
			return err
		}

		utils.LogContractHistory(c.Context(), tx, ct.ID, actorID, action, old, to, reason)
		return nil
	})
	if txErr != nil {
		return txErr
	}
	return c.JSON(ct)
}

// @Summary      Activate a contract
// @Tags         contracts
// @Security     BearerAuth
// @Param        id  path  string  true  "contract ID"
// @Success      200  {object}  models.Contract
// @Failure      409  {object}  models.ErrorResponse
// @Router       /contracts/{id}/activate [post]
func (h *Handler) Activate(c *fiber.Ctx) error {
	return h.transition(c, "activated", models.ContractActive,
		models.ContractDraft, models.ContractPaused)
}

// @Summary      Pause a contract
// @Tags         contracts
// @Security     BearerAuth
// @Param        id  path  string  true  "contract ID"
// @Success      200  {object}  models.Contract
// @Failure      409  {object}  models.ErrorResponse
// @Router       /contracts/{id}/pause [post]
func (h *Handler) Pause(c *fiber.Ctx) error {
	return h.transition(c, "paused", models.ContractPaused, models.ContractActive)
}

// @Summary      Cancel a contract
// @Tags         contracts
// @Security     BearerAuth
// @Param        id  path  string  true  "contract ID"
// @Success      200  {object}  models.Contract
// @Failure      409  {object}  models.ErrorResponse
// @Router       /contracts/{id}/cancel [post]
func (h *Handler) Cancel(c *fiber.Ctx) error {
	return h.transition(c, "cancelled", models.ContractCancelled,
		models.ContractDraft, models.ContractActive, models.ContractPaused)
}

// @Summary      Complete a contract
// @Tags         contracts
// @Security     BearerAuth
// @Param        id  path  string  true  "contract ID"
// @Success      200  {object}  models.Contract
// @Failure      409  {object}  models.ErrorResponse
// @Router       /contracts/{id}/complete [post]
func (h *Handler) Complete(c *fiber.Ctx) error {
	return h.transition(c, "completed", models.ContractCompleted,
		models.ContractActive, models.ContractPaused)
}
