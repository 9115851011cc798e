package requests

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/aldoetobex/facility-services-backend/internal/auth"
	"github.com/aldoetobex/facility-services-backend/internal/contracts"
	"github.com/aldoetobex/facility-services-backend/internal/documents"
	"github.com/aldoetobex/facility-services-backend/internal/notify"
	"github.com/aldoetobex/facility-services-backend/internal/payments"
	"github.com/aldoetobex/facility-services-backend/pkg/database"
	"github.com/aldoetobex/facility-services-backend/pkg/models"
	"github.com/aldoetobex/facility-services-backend/pkg/recurrence"
	"github.com/aldoetobex/facility-services-backend/pkg/utils"
	"github.com/aldoetobex/facility-services-backend/pkg/validation"
)

/*
ApprovalWorkflow turns a pending service request into an active contract in
one transaction: status transition, contract creation with a fresh contract
number, and the immediate charge for one-time contracts. Notifications and
the summary document are dispatched after commit and never fail the approval.
*/

type ApprovalWorkflow struct {
	db     *gorm.DB
	mailer *notify.Mailer
	docs   *documents.Renderer
}

func NewApprovalWorkflow(db *gorm.DB, mailer *notify.Mailer, docs *documents.Renderer) *ApprovalWorkflow {
	return &ApprovalWorkflow{db: db, mailer: mailer, docs: docs}
}

type ApproveInput struct {
	ConfirmedPrice string   `json:"confirmed_price" validate:"omitempty,max=20"`
	Notes          string   `json:"notes" validate:"omitempty,max=2000"`
	Terms          string   `json:"terms" validate:"omitempty,max=5000"`
	Scope          string   `json:"scope" validate:"omitempty,max=5000"`
	WorkDays       []string `json:"work_days" validate:"omitempty,dive,workday"`
}

// @Summary      Approve a service request
// @Description  Transitions the request to scheduled and creates the contract; one-time contracts are charged immediately
// @Tags         requests
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string        true  "request ID"
// @Param        payload  body  ApproveInput  true  "Approval payload"
// @Success      200  {object}  models.Contract
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse  "request is already approved"
// @Router       /requests/{id}/approve [post]
func (w *ApprovalWorkflow) Approve(c *fiber.Ctx) error {
	// Approval body is optional; a bare approve uses the request's own data.
	var in ApproveInput
	_ = c.BodyParser(&in)
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	var confirmed decimal.NullDecimal
	if p := strings.TrimSpace(in.ConfirmedPrice); p != "" {
		d, err := decimal.NewFromString(p)
		if err != nil || !d.IsPositive() {
			return fiber.NewError(fiber.StatusBadRequest, "confirmed_price must be a positive amount")
		}
		confirmed = decimal.NewNullDecimal(d)
	}

	approverID, err := uuid.Parse(auth.MustUserID(c))
	if err != nil {
		return fiber.ErrUnauthorized
	}

	var (
		ct           *models.Contract
		client       models.User
		newCustomer  bool
		tempPassword string
		charge       *models.Payment
	)

	// The contract-number count cannot serialize concurrent approvals: two
	// racing transactions can compute the same number and the unique index on
	// contract_number rejects one. That attempt rolled back completely, so it
	// is retried with a fresh count.
	var txErr error
	for attempt := 0; attempt < 3; attempt++ {
		ct, charge = nil, nil
		client = models.User{}
		newCustomer, tempPassword = false, ""

		txErr = w.approveOnce(c, &in, confirmed, approverID, &ct, &client, &newCustomer, &tempPassword, &charge)
		if !errors.Is(txErr, gorm.ErrDuplicatedKey) {
			break
		}
	}
	if errors.Is(txErr, gorm.ErrDuplicatedKey) {
		return fiber.NewError(fiber.StatusConflict, "contract number conflict, please retry")
	}
	if txErr != nil {
		return txErr
	}

	w.afterApproval(ct, &client, newCustomer, tempPassword, charge)
	return c.JSON(ct)
}

// approveOnce runs one attempt of the approval transaction.
func (w *ApprovalWorkflow) approveOnce(
	c *fiber.Ctx,
	in *ApproveInput,
	confirmed decimal.NullDecimal,
	approverID uuid.UUID,
	ct **models.Contract,
	client *models.User,
	newCustomer *bool,
	tempPassword *string,
	charge **models.Payment,
) error {
	return w.db.Transaction(func(tx *gorm.DB) error {
		var req models.ServiceRequest
		if err := database.ForUpdate(tx).First(&req, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.ErrNotFound
		}

		switch req.Status {
		case models.RequestPending:
			// proceed
		case models.RequestScheduled:
			return fiber.NewError(fiber.StatusConflict, "request is already approved")
		default:
			return fiber.NewError(fiber.StatusConflict, "cannot approve a "+string(req.Status)+" request")
		}

		if err := tx.First(client, "id = ?", req.UserID).Error; err != nil {
			return err
		}
		var svc models.Service
		if err := tx.First(&svc, "id = ?", req.ServiceID).Error; err != nil {
			return err
		}

		// Admin-created requests leave the customer without credentials until
		// their first approval.
		if !client.IsEmailConfirmed {
			*newCustomer = true
			*tempPassword = generatePassword()
			hash, err := bcrypt.GenerateFromPassword([]byte(*tempPassword), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			client.PasswordHash = string(hash)
			client.IsEmailConfirmed = true
			if err := tx.Save(client).Error; err != nil {
				return err
			}
		}

		if confirmed.Valid {
			req.ActualPrice = confirmed
		}
		req.Status = models.RequestScheduled
		if err := tx.Save(&req).Error; err != nil {
			return err
		}

		built, err := contracts.Build(&req, &svc, contracts.BuildOptions{
			Notes:    strings.TrimSpace(in.Notes),
			Terms:    strings.TrimSpace(in.Terms),
			Scope:    strings.TrimSpace(in.Scope),
			WorkDays: in.WorkDays,
		})
		switch err {
		case nil:
		case contracts.ErrMissingPrice, contracts.ErrInvalidDateRange:
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		default:
			return err
		}

		number, err := contracts.NextContractNumber(tx, time.Now().UTC().Year())
		if err != nil {
			return err
		}
		built.ContractNumber = number
		if err := tx.Create(built).Error; err != nil {
			return err
		}
		*ct = built

		utils.LogContractHistory(c.Context(), tx, built.ID, approverID, "created",
			"", built.Status, "approved request "+req.ID.String())

		// One-time contracts are due immediately; create the charge now
		// instead of leaving it to the next monitor pass.
		if built.PaymentFrequency == recurrence.OneTime {
			p, err := payments.CreateForContract(tx, built, "One-time service charge")
			if err != nil {
				return err
			}
			*charge = p
		}
		return nil
	})
}

// afterApproval runs the best-effort side effects: notifications and the
// contract summary document. Failures are logged, never surfaced.
func (w *ApprovalWorkflow) afterApproval(ct *models.Contract, client *models.User, newCustomer bool, tempPassword string, charge *models.Payment) {
	if newCustomer {
		w.mailer.SendWelcome(client.Email, client.Name, tempPassword)
	}
	w.mailer.SendApprovalConfirmation(client.Email, client.Name, ct.ContractNumber, ct.StartDate)

	if charge != nil {
		due := ct.StartDate
		if ct.NextPaymentDue != nil {
			due = *ct.NextPaymentDue
		}
		w.mailer.SendPaymentLink(client.Email, client.Name, charge.Amount, due, charge.PaymentURL)
	}

	if _, err := w.docs.Store(ct, client); err != nil {
		log.Printf("requests: contract %s summary document: %v", ct.ContractNumber, err)
	}
}

// generatePassword returns a random 12-hex-char temporary password.
func generatePassword() string {
	b := make([]byte, 6)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
