package utils

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/facility-services-backend/pkg/models"
)

// LogContractHistory inserts an audit record into contract_histories.
// Used to track important status changes and actions on a contract.
// Errors are ignored on purpose (best-effort logging).
func LogContractHistory(
	ctx context.Context,
	db *gorm.DB,
	contractID, actorID uuid.UUID,
	action string,
	oldS, newS models.ContractStatus,
	reason string,
) {
	_ = db.WithContext(ctx).Create(&models.ContractHistory{
		ContractID: contractID,
		ActorID:    actorID,
		Action:     action,
		OldStatus:  oldS,
		NewStatus:  newS,
		Reason:     reason,
		CreatedAt:  time.Now(),
	}).Error
}
