package database

import (
	"fmt"
	"log"
	"os"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aldoetobex/facility-services-backend/pkg/models"
)

func Init() *gorm.DB {
	dsn := os.Getenv("DATABASE_URL")
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		// Unique-violation errors become gorm.ErrDuplicatedKey; the payment
		// dedup path depends on that translation.
		TranslateError: true,
	})
	if err != nil {
		log.Fatal("failed to connect database:", err)
	}
	return db
}

// ForUpdate applies a row lock on dialects that support it. SQLite runs
// single-writer and has no FOR UPDATE syntax.
func ForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// Migrate runs AutoMigrate for every entity plus the hand-written indexes
// AutoMigrate cannot express.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{}, &models.Property{}, &models.Service{},
		&models.ServiceRequest{}, &models.Contract{}, &models.ServiceVisit{},
		&models.Payment{}, &models.ContractHistory{},
	); err != nil {
		return err
	}
	return EnsureIndexes(db)
}

// EnsureIndexes creates the partial unique index that allows at most one
// non-terminal payment per contract. Creating a second active payment fails
// at the storage layer with a unique violation, which callers surface as a
// duplicate-obligation error; there is no check-then-act window to race.
// The statement is valid on both Postgres and SQLite (tests).
func EnsureIndexes(db *gorm.DB) error {
	states := make([]string, len(models.ActivePayStatuses))
	for i, s := range models.ActivePayStatuses {
		states[i] = "'" + string(s) + "'"
	}
	return db.Exec(fmt.Sprintf(`
CREATE UNIQUE INDEX IF NOT EXISTS ux_payment_contract_active
ON payments (contract_id)
WHERE status IN (%s)
  AND contract_id IS NOT NULL`, strings.Join(states, ", "))).Error
}
