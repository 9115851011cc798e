package payments

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/aldoetobex/facility-services-backend/internal/auth"
	"github.com/aldoetobex/facility-services-backend/internal/notify"
	"github.com/aldoetobex/facility-services-backend/pkg/models"
)

type Handler struct {
	db     *gorm.DB
	mailer *notify.Mailer
}

func NewHandler(db *gorm.DB, mailer *notify.Mailer) *Handler {
	return &Handler{db: db, mailer: mailer}
}

// @Summary      List payments
// @Description  Clients see their own payments; admins see all, filterable by status
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        status  query  string  false  "filter by status"
// @Success      200  {array}  models.Payment
// @Router       /payments [get]
func (h *Handler) List(c *fiber.Ctx) error {
	q := h.db.Model(&models.Payment{}).Order("created_at DESC")

	if auth.MustRole(c) != string(models.RoleAdmin) {
		q = q.Where("user_id = ?", auth.MustUserID(c))
	}
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		q = q.Where("status = ?", status)
	}

	var out []models.Payment
	if err := q.Find(&out).Error; err != nil {
		return err
	}
	return c.JSON(out)
}

// @Summary      Get a payment
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "payment ID"
// @Success      200  {object}  models.Payment
// @Failure      404  {object}  models.ErrorResponse
// @Router       /payments/{id} [get]
func (h *Handler) Get(c *fiber.Ctx) error {
	var p models.Payment
	if err := h.db.First(&p, "id = ?", c.Params("id")).Error; err != nil {
		return fiber.ErrNotFound
	}
	if auth.MustRole(c) != string(models.RoleAdmin) && p.UserID.String() != auth.MustUserID(c) {
		return fiber.ErrNotFound
	}
	return c.JSON(p)
}
