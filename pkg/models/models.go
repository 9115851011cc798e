package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/aldoetobex/facility-services-backend/pkg/recurrence"
)

/* =============================== Enums ================================== */

// Role defines the type of user in the system.
type Role string

const (
	RoleClient Role = "client"
	RoleAdmin  Role = "admin"
	RoleStaff  Role = "staff"
)

// RequestStatus defines lifecycle states for a service request.
type RequestStatus string

const (
	RequestPending    RequestStatus = "pending"
	RequestScheduled  RequestStatus = "scheduled"
	RequestInProgress RequestStatus = "in_progress"
	RequestCompleted  RequestStatus = "completed"
	RequestCancelled  RequestStatus = "cancelled"
)

// RequestPriority orders the admin queue.
type RequestPriority string

const (
	PriorityLow    RequestPriority = "low"
	PriorityNormal RequestPriority = "normal"
	PriorityHigh   RequestPriority = "high"
	PriorityUrgent RequestPriority = "urgent"
)

// ContractStatus defines lifecycle states for a contract.
type ContractStatus string

const (
	ContractDraft     ContractStatus = "draft"
	ContractActive    ContractStatus = "active"
	ContractPaused    ContractStatus = "paused"
	ContractCompleted ContractStatus = "completed"
	ContractCancelled ContractStatus = "cancelled"
)

// VisitStatus defines lifecycle states for a scheduled service visit.
type VisitStatus string

const (
	VisitPending   VisitStatus = "pending"
	VisitCompleted VisitStatus = "completed"
	VisitSkipped   VisitStatus = "skipped"
	VisitCancelled VisitStatus = "cancelled"
)

// PayStatus defines lifecycle states for a payment.
type PayStatus string

const (
	PayPending        PayStatus = "pending"
	PayRequiresAction PayStatus = "requires_action"
	PayProcessing     PayStatus = "processing"
	PaySucceeded      PayStatus = "succeeded"
	PayFailed         PayStatus = "failed"
	PayCanceled       PayStatus = "canceled"
	PayRefunded       PayStatus = "refunded"
)

// Terminal reports whether the payment can no longer change on its own. Only
// one non-terminal payment may exist per contract at a time; that invariant is
// enforced by a partial unique index, not by application checks.
func (s PayStatus) Terminal() bool {
	switch s {
	case PaySucceeded, PayFailed, PayCanceled, PayRefunded:
		return true
	}
	return false
}

// ActivePayStatuses lists the non-terminal states guarded by the dedup index.
var ActivePayStatuses = []PayStatus{PayPending, PayRequiresAction, PayProcessing}

/* =============================== Entities =============================== */

// User represents a client, staff member, or admin.
type User struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	Email            string    `gorm:"uniqueIndex;not null"`
	PasswordHash     string    `gorm:"not null"`
	Role             Role      `gorm:"type:varchar(20);not null"`
	Name             string
	Phone            string
	IsEmailConfirmed bool `gorm:"not null;default:false"`
	CreatedAt        time.Time
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// Property is a serviced location owned by a client.
type Property struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	OwnerID   uuid.UUID `gorm:"type:uuid;not null;index"`
	Name      string    `gorm:"not null"`
	Address   string
	CreatedAt time.Time
}

func (p *Property) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Service is a catalog entry used to recalculate prices when a request has no
// confirmed amount.
type Service struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Name            string          `gorm:"not null"`
	BasePrice       decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	DurationMinutes int
	CreatedAt       time.Time
}

func (s *Service) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// ServiceRequest is a customer's ask for service at a property. Once a
// contract references it, it is never deleted.
type ServiceRequest struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;index"`
	PropertyID uuid.UUID `gorm:"type:uuid;not null;index"`
	ServiceID  uuid.UUID `gorm:"type:uuid;not null"`

	Status   RequestStatus   `gorm:"type:varchar(20);not null;default:'pending'"`
	Priority RequestPriority `gorm:"type:varchar(20);not null;default:'normal'"`

	ScheduledDate   time.Time `gorm:"not null"`
	ScheduledTime   string
	WalkthroughDate *time.Time
	WalkthroughTime string
	CompletedDate   *time.Time

	EstimatedPrice decimal.Decimal     `gorm:"type:decimal(10,2);not null"`
	ActualPrice    decimal.NullDecimal `gorm:"type:decimal(10,2)"`

	RecurrenceFrequency recurrence.Frequency `gorm:"type:varchar(20);not null;default:'one_time'"`
	IsRecurring         bool                 `gorm:"not null;default:false"`
	RecurrenceEndDate   *time.Time

	EstimatedDurationMinutes int
	ActualDurationMinutes    int

	Notes               string `gorm:"type:text"`
	SpecialInstructions string `gorm:"type:text"`
	CancellationReason  string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time

	// Relations
	User     User     `gorm:"foreignKey:UserID;references:ID"`
	Property Property `gorm:"foreignKey:PropertyID;references:ID"`
	Service  Service  `gorm:"foreignKey:ServiceID;references:ID"`
}

func (r *ServiceRequest) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Contract is the billing/service agreement produced from an approved request.
type Contract struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey"`
	ClientID         uuid.UUID  `gorm:"type:uuid;not null;index"`
	PropertyID       uuid.UUID  `gorm:"type:uuid;not null;index"`
	ServiceRequestID *uuid.UUID `gorm:"type:uuid;index"`

	ContractNumber string         `gorm:"uniqueIndex;not null"` // e.g. "CONT-2025-0001"
	Status         ContractStatus `gorm:"type:varchar(20);not null;default:'draft'"`
	IsActive       bool           `gorm:"not null;default:true"`

	StartDate time.Time `gorm:"not null"`
	EndDate   *time.Time

	PaymentAmount    decimal.Decimal      `gorm:"type:decimal(10,2);not null"`
	PaymentFrequency recurrence.Frequency `gorm:"type:varchar(20);not null"`
	NextPaymentDue   *time.Time
	LastPaymentDate  *time.Time
	PaymentMethod    string

	ServiceFrequency recurrence.Frequency `gorm:"type:varchar(20);not null;default:'weekly'"`
	WorkDays         []string             `gorm:"serializer:json"` // lowercase weekday names
	WorkStartTime    string
	WorkEndTime      string

	Terms string `gorm:"type:text"`
	Notes string `gorm:"type:text"`
	Scope string `gorm:"type:text"`

	TotalContractValue       decimal.NullDecimal `gorm:"type:decimal(10,2)"`
	EstimatedDurationMinutes int

	CreatedAt time.Time
	UpdatedAt time.Time

	// Relations
	Client         User            `gorm:"foreignKey:ClientID;references:ID"`
	Property       Property        `gorm:"foreignKey:PropertyID;references:ID"`
	ServiceRequest *ServiceRequest `gorm:"foreignKey:ServiceRequestID;references:ID"`
}

func (c *Contract) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// ServiceVisit is one concrete occurrence of work under a contract. The
// composite unique index guarantees at most one visit per contract per day.
type ServiceVisit struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey"`
	ContractID       uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:ux_visit_contract_date"`
	ServiceRequestID *uuid.UUID `gorm:"type:uuid"`

	ScheduledDate time.Time   `gorm:"not null;uniqueIndex:ux_visit_contract_date"`
	ScheduledTime string
	Status        VisitStatus `gorm:"type:varchar(20);not null;default:'pending'"`
	Notes         string      `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Contract Contract `gorm:"foreignKey:ContractID;references:ID"`
}

func (v *ServiceVisit) BeforeCreate(*gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

// Payment represents a single billing attempt tied to a contract and/or
// service request. The dedup guarantee ("one active payment per contract")
// lives in a partial unique index created by database.EnsureIndexes.
type Payment struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey"`
	UserID           uuid.UUID  `gorm:"type:uuid;not null;index"`
	ContractID       *uuid.UUID `gorm:"type:uuid;index"`
	ServiceRequestID *uuid.UUID `gorm:"type:uuid"`

	Amount   decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	Currency string          `gorm:"type:varchar(3);not null;default:'USD'"`
	Status   PayStatus       `gorm:"type:varchar(20);not null;default:'pending'"`
	Provider string          `gorm:"type:varchar(20);not null;default:'mock'"`

	Reference         string  `gorm:"uniqueIndex;not null"` // e.g. "PAY-1735689600-482913"
	ProviderPaymentID *string `gorm:"uniqueIndex:ux_pay_provider_filled"`
	Description       string  `gorm:"type:text"`

	PaymentURL    string `gorm:"type:text"`
	ReceiptURL    string `gorm:"type:text"`
	FailureReason string `gorm:"type:text"`

	PaidAt    *time.Time
	ExpiresAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time

	User     User      `gorm:"foreignKey:UserID;references:ID"`
	Contract *Contract `gorm:"foreignKey:ContractID;references:ID"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// ContractHistory is an audit log entry for important contract changes.
type ContractHistory struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey"`
	ContractID uuid.UUID      `gorm:"type:uuid;not null;index"`
	ActorID    uuid.UUID      `gorm:"type:uuid;not null;index"`  // who performed the action (admin/system)
	Action     string         `gorm:"type:varchar(50);not null"` // e.g. created, activated, paused, payment_succeeded
	OldStatus  ContractStatus `gorm:"type:varchar(20)"`
	NewStatus  ContractStatus `gorm:"type:varchar(20)"`
	Reason     string         `gorm:"type:text"`
	CreatedAt  time.Time      `gorm:"autoCreateTime"`
}

func (h *ContractHistory) BeforeCreate(*gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}
