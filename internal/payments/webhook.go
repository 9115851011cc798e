package payments

import (
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/facility-services-backend/pkg/database"
	"github.com/aldoetobex/facility-services-backend/pkg/models"
	"github.com/aldoetobex/facility-services-backend/pkg/recurrence"
	"github.com/aldoetobex/facility-services-backend/pkg/utils"
)

/*
Mock provider webhooks. There is no real gateway behind the "mock" provider;
these endpoints simulate the provider confirming or failing a charge. Guarded
by a shared secret header instead of auth middleware, same as a gateway
callback would be.
*/

// requireDevSecret checks the X-Dev-Secret header against DEV_WEBHOOK_SECRET.
func requireDevSecret(c *fiber.Ctx) error {
	want := os.Getenv("DEV_WEBHOOK_SECRET")
	if want == "" || c.Get("X-Dev-Secret") != want {
		return fiber.ErrUnauthorized
	}
	return nil
}

// @Summary      Mock-complete a payment
// @Description  Simulates the provider confirming a charge; advances the contract's next due date
// @Tags         payments
// @Param        id            path    string  true  "payment ID"
// @Param        X-Dev-Secret  header  string  true  "shared dev secret"
// @Success      200  {object}  models.Payment
// @Failure      401  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /payments/{id}/mock-complete [post]
func (h *Handler) MockComplete(c *fiber.Ctx) error {
	if err := requireDevSecret(c); err != nil {
		return err
	}

	var (
		p            models.Payment
		transitioned bool
	)
	txErr := h.db.Transaction(func(tx *gorm.DB) error {
		if err := database.ForUpdate(tx).
			First(&p, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.ErrNotFound
		}

		// Providers retry webhooks; a repeat confirmation is a no-op.
		if p.Status == models.PaySucceeded {
			return nil
		}
		if p.Status.Terminal() {
			return fiber.NewError(fiber.StatusConflict, "payment is already "+string(p.Status))
		}

		now := time.Now()
		p.Status = models.PaySucceeded
		p.PaidAt = &now
		if err := tx.Save(&p).Error; err != nil {
			return err
		}
		transitioned = true

		if p.ContractID == nil {
			return nil
		}
		return advanceContract(c, tx, *p.ContractID, p, now)
	})
	if txErr != nil {
		return txErr
	}

	// Only the confirmation that actually flipped the status sends the
	// receipt; retries stay silent.
	if transitioned {
		h.sendReceipt(&p)
	}
	return c.JSON(p)
}

type mockFailInput struct {
	Reason string `json:"reason"`
}

// @Summary      Mock-fail a payment
// @Description  Simulates the provider reporting a failed charge; the contract schedule is untouched
// @Tags         payments
// @Param        id            path    string  true  "payment ID"
// @Param        X-Dev-Secret  header  string  true  "shared dev secret"
// @Success      200  {object}  models.Payment
// @Failure      401  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /payments/{id}/mock-fail [post]
func (h *Handler) MockFail(c *fiber.Ctx) error {
	if err := requireDevSecret(c); err != nil {
		return err
	}

	var in mockFailInput
	_ = c.BodyParser(&in)
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		reason = "declined"
	}

	var (
		p            models.Payment
		transitioned bool
	)
	txErr := h.db.Transaction(func(tx *gorm.DB) error {
		if err := database.ForUpdate(tx).
			First(&p, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.ErrNotFound
		}

		if p.Status == models.PayFailed {
			return nil
		}
		if p.Status.Terminal() {
			return fiber.NewError(fiber.StatusConflict, "payment is already "+string(p.Status))
		}

		// Failure frees the dedup slot; the next monitor pass raises a fresh
		// payment for the still-due cycle.
		p.Status = models.PayFailed
		p.FailureReason = reason
		transitioned = true
		return tx.Save(&p).Error
	})
	if txErr != nil {
		return txErr
	}

	if transitioned {
		var client models.User
		if err := h.db.First(&client, "id = ?", p.UserID).Error; err == nil {
			h.mailer.SendPaymentFailed(client.Email, client.Name, p.Reference, p.FailureReason)
		}
	}
	return c.JSON(p)
}

// advanceContract moves the billing cycle forward after a successful charge.
// The contract row is locked so a concurrent monitor pass reads the advanced
// due date, never the stale one. One-time contracts have no further cycle and
// clear their due date.
func advanceContract(c *fiber.Ctx, tx *gorm.DB, contractID uuid.UUID, p models.Payment, paidAt time.Time) error {
	var ct models.Contract
	if err := database.ForUpdate(tx).
		First(&ct, "id = ?", contractID).Error; err != nil {
		return err
	}

	paidDay := recurrence.DateOnly(paidAt)
	ct.LastPaymentDate = &paidDay

	if ct.PaymentFrequency == recurrence.OneTime {
		ct.NextPaymentDue = nil
	} else if ct.NextPaymentDue != nil {
		next, ok, err := recurrence.NextOccurrence(*ct.NextPaymentDue, ct.PaymentFrequency)
		if err != nil {
			return err
		}
		if ok {
			ct.NextPaymentDue = &next
		}
	}
	if err := tx.Save(&ct).Error; err != nil {
		return err
	}

	utils.LogContractHistory(c.Context(), tx, ct.ID, p.UserID, "payment_succeeded",
		ct.Status, ct.Status, "payment "+p.Reference)
	return nil
}

func (h *Handler) sendReceipt(p *models.Payment) {
	if p.Status != models.PaySucceeded {
		return
	}
	var client models.User
	if err := h.db.First(&client, "id = ?", p.UserID).Error; err != nil {
		return
	}
	h.mailer.SendPaymentReceipt(client.Email, client.Name, p.Reference, p.Amount)
}
