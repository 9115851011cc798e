package payments

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"gorm.io/gorm"

	"github.com/aldoetobex/facility-services-backend/pkg/models"
)

// ErrDuplicateObligation means the contract already has a payment in a
// non-terminal state. The partial unique index on payments(contract_id) is
// the enforcement point; this error is the translated unique violation.
var ErrDuplicateObligation = errors.New("contract already has an active payment")

// How long a customer has to act on a payment link.
const paymentTTL = 72 * time.Hour

// NewReference builds a unique human-readable payment reference,
// e.g. "PAY-1735689600-482913".
func NewReference() string {
	return fmt.Sprintf("PAY-%d-%06d", time.Now().Unix(), rand.Intn(1_000_000))
}

// CreateForContract inserts one pending payment for the contract's current
// billing cycle. There is no existence pre-check: the insert either succeeds
// or hits the dedup index, so two concurrent callers can never both create
// one. Callers treat ErrDuplicateObligation as "already handled".
func CreateForContract(tx *gorm.DB, ct *models.Contract, description string) (*models.Payment, error) {
	ref := NewReference()
	expires := time.Now().Add(paymentTTL)

	p := &models.Payment{
		UserID:           ct.ClientID,
		ContractID:       &ct.ID,
		ServiceRequestID: ct.ServiceRequestID,

		Amount:   ct.PaymentAmount,
		Currency: "USD",
		Status:   models.PayPending,
		Provider: "mock",

		Reference:   ref,
		Description: description,
		PaymentURL:  "/pay/" + ref,
		ExpiresAt:   &expires,
	}
	if err := tx.Create(p).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateObligation
		}
		return nil, err
	}
	return p, nil
}
