package visits

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/aldoetobex/facility-services-backend/internal/auth"
	"github.com/aldoetobex/facility-services-backend/pkg/database"
	"github.com/aldoetobex/facility-services-backend/pkg/models"
)

type Handler struct{ db *gorm.DB }

func NewHandler(db *gorm.DB) *Handler { return &Handler{db: db} }

/* =============================== Listing ================================ */

// @Summary      List visits for a contract
// @Tags         visits
// @Security     BearerAuth
// @Produce      json
// @Param        id      path   string  true   "contract ID"
// @Param        status  query  string  false  "filter by visit status"
// @Success      200  {array}  models.ServiceVisit
// @Failure      404  {object}  models.ErrorResponse
// @Router       /contracts/{id}/visits [get]
func (h *Handler) ListForContract(c *fiber.Ctx) error {
	var ct models.Contract
	if err := h.db.First(&ct, "id = ?", c.Params("id")).Error; err != nil {
		return fiber.ErrNotFound
	}
	// Clients only see their own contracts; staff and admin see all.
	if auth.MustRole(c) == string(models.RoleClient) && ct.ClientID.String() != auth.MustUserID(c) {
		return fiber.ErrNotFound
	}

	q := h.db.Where("contract_id = ?", ct.ID).Order("scheduled_date ASC")
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		q = q.Where("status = ?", status)
	}

	var out []models.ServiceVisit
	if err := q.Find(&out).Error; err != nil {
		return err
	}
	return c.JSON(out)
}

/* ============================ Transitions =============================== */

type visitNoteInput struct {
	Notes string `json:"notes" validate:"omitempty,max=1000"`
}

// transition moves a pending visit to a terminal state under a row lock.
func (h *Handler) transition(c *fiber.Ctx, to models.VisitStatus) error {
	var in visitNoteInput
	_ = c.BodyParser(&in)

	var v models.ServiceVisit
	txErr := h.db.Transaction(func(tx *gorm.DB) error {
		if err := database.ForUpdate(tx).
			First(&v, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.ErrNotFound
		}

		if v.Status == to {
			return fiber.NewError(fiber.StatusConflict, "visit is already "+string(to))
		}
		if v.Status != models.VisitPending {
			return fiber.NewError(fiber.StatusConflict, "cannot update a "+string(v.Status)+" visit")
		}

		v.Status = to
		if n := strings.TrimSpace(in.Notes); n != "" {
			v.Notes = n
		}
		v.UpdatedAt = time.Now()
		return tx.Save(&v).Error
	})
	if txErr != nil {
		return txErr
	}
	return c.JSON(v)
}

// @Summary      Mark a visit completed
// @Tags         visits
// @Security     BearerAuth
// @Param        id  path  string  true  "visit ID"
// @Success      200  {object}  models.ServiceVisit
// @Failure      409  {object}  models.ErrorResponse
// @Router       /visits/{id}/complete [post]
func (h *Handler) Complete(c *fiber.Ctx) error {
	return h.transition(c, models.VisitCompleted)
}

// @Summary      Mark a visit skipped
// @Tags         visits
// @Security     BearerAuth
// @Param        id  path  string  true  "visit ID"
// @Success      200  {object}  models.ServiceVisit
// @Failure      409  {object}  models.ErrorResponse
// @Router       /visits/{id}/skip [post]
func (h *Handler) Skip(c *fiber.Ctx) error {
	return h.transition(c, models.VisitSkipped)
}
