package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CardStatus string

const (
	CardStatusActive   CardStatus = "active"
	CardStatusInactive CardStatus = "inactive"
	CardStatusExpired  CardStatus = "expired"
	CardStatusBlocked  CardStatus = "blocked"
)

type TransactionType string

const (
	TransactionTypePurchase TransactionType = "purchase"
	TransactionTypePayment  TransactionType = "payment"
	TransactionTypeDeposit  TransactionType = "deposit"
	TransactionTypeTopUp    TransactionType = "topup"
)

// IsDebit reports whether the type moves funds out of the card.
func (t TransactionType) IsDebit() bool {
	return t == TransactionTypePurchase || t == TransactionTypePayment
}

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusReversed  TransactionStatus = "reversed"
)

type RuleType string

const (
	RuleTypeSpendingLimit       RuleType = "spending_limit"
	RuleTypeCategoryRestriction RuleType = "category_restriction"
	RuleTypeVelocityCheck       RuleType = "velocity_check"
	RuleTypeGeoRestriction      RuleType = "geo_restriction"
	RuleTypeCardTypeRestriction RuleType = "card_type_restriction"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities so higher-severity violations sort first.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// StringList is a JSONB-backed list of strings.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal(l)
}

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into StringList", value)
	}
	return json.Unmarshal(b, l)
}

// Contains reports membership; an empty list matches nothing.
func (l StringList) Contains(s string) bool {
	for _, v := range l {
		if v == s {
			return true
		}
	}
	return false
}

type Citizen struct {
	ID          uuid.UUID `db:"id" json:"id"`
	FullName    string    `db:"full_name" json:"full_name"`
	NationalID  string    `db:"national_id" json:"national_id"`
	City        string    `db:"city" json:"city"`
	PhoneNumber string    `db:"phone_number" json:"phone_number"`
	Email       string    `db:"email" json:"email"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// CardType is reference data describing a class of assistance cards.
// AllowedCategories is the vendor-category whitelist carried at the type
// level; an empty list means no type-level restriction.
type CardType struct {
	ID                  uuid.UUID       `db:"id" json:"id"`
	TypeName            string          `db:"type_name" json:"type_name"`
	Description         string          `db:"description" json:"description"`
	DefaultMonthlyLimit decimal.Decimal `db:"default_monthly_limit" json:"default_monthly_limit"`
	AllowedCategories   StringList      `db:"allowed_categories" json:"allowed_categories"`
	IsActive            bool            `db:"is_active" json:"is_active"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
}

type Card struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	CitizenID      uuid.UUID       `db:"citizen_id" json:"citizen_id"`
	CardTypeID     uuid.UUID       `db:"card_type_id" json:"card_type_id"`
	CardNumber     string          `db:"card_number" json:"card_number"`
	CurrentBalance decimal.Decimal `db:"current_balance" json:"current_balance"`
	MonthlyLimit   decimal.Decimal `db:"monthly_limit" json:"monthly_limit"`
	Status         CardStatus      `db:"status" json:"status"`
	IssueDate      time.Time       `db:"issue_date" json:"issue_date"`
	ExpiryDate     time.Time       `db:"expiry_date" json:"expiry_date"`
	LastUsedAt     *time.Time      `db:"last_used_at" json:"last_used_at,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

type Vendor struct {
	ID         uuid.UUID `db:"id" json:"id"`
	VendorName string    `db:"vendor_name" json:"vendor_name"`
	Category   string    `db:"category" json:"category"`
	City       string    `db:"city" json:"city"`
	Address    string    `db:"address" json:"address"`
	IsActive   bool      `db:"is_active" json:"is_active"`
}

// TransactionRule is a stored compliance rule. Expression holds the rule
// parameters as JSON and is parsed once when the catalog loads. Rule rows
// referenced by historical flags are append-mostly: edits are expected to
// land as new rows rather than in-place rewrites.
type TransactionRule struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	RuleName          string     `db:"rule_name" json:"rule_name"`
	Description       string     `db:"description" json:"description"`
	RuleType          RuleType   `db:"rule_type" json:"rule_type"`
	Expression        string     `db:"expression" json:"expression"`
	Severity          Severity   `db:"severity" json:"severity"`
	IsActive          bool       `db:"is_active" json:"is_active"`
	AppliesToCardType *uuid.UUID `db:"applies_to_card_type" json:"applies_to_card_type,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
}

// Transaction is created once per purchase/payment/deposit event. Status
// and IsFraudSuspected are set exactly once by the pipeline at creation
// time; reversals create a new row, never mutate this one.
type Transaction struct {
	ID               uuid.UUID         `db:"id" json:"id"`
	CardID           uuid.UUID         `db:"card_id" json:"card_id"`
	VendorID         uuid.UUID         `db:"vendor_id" json:"vendor_id"`
	Amount           decimal.Decimal   `db:"amount" json:"amount"`
	City             string            `db:"city" json:"city"`
	TransactionType  TransactionType   `db:"transaction_type" json:"transaction_type"`
	PreviousBalance  decimal.Decimal   `db:"previous_balance" json:"previous_balance"`
	NewBalance       decimal.Decimal   `db:"new_balance" json:"new_balance"`
	Status           TransactionStatus `db:"status" json:"status"`
	StatusReason     string            `db:"status_reason" json:"status_reason"`
	IsFraudSuspected bool              `db:"is_fraud_suspected" json:"is_fraud_suspected"`
	RuleViolations   string            `db:"rule_violations" json:"rule_violations"`
	TransactionDate  time.Time         `db:"transaction_date" json:"transaction_date"`
	CreatedAt        time.Time         `db:"created_at" json:"created_at"`
}

// Flag records one rule violation on one transaction. Severity is copied
// from the rule at evaluation time and stays frozen if the rule changes.
type Flag struct {
	ID              uuid.UUID `db:"id" json:"id"`
	TransactionID   uuid.UUID `db:"transaction_id" json:"transaction_id"`
	RuleID          uuid.UUID `db:"rule_id" json:"rule_id"`
	CardID          uuid.UUID `db:"card_id" json:"card_id"`
	ViolationDate   time.Time `db:"violation_date" json:"violation_date"`
	ViolationDetail string    `db:"violation_detail" json:"violation_detail"`
	Severity        Severity  `db:"severity" json:"severity"`
	Resolved        bool      `db:"resolved" json:"resolved"`
}

type Alert struct {
	ID        uuid.UUID `db:"id" json:"id"`
	CitizenID uuid.UUID `db:"citizen_id" json:"citizen_id"`
	AlertType string    `db:"alert_type" json:"alert_type"`
	Message   string    `db:"message" json:"message"`
	IsSent    bool      `db:"is_sent" json:"is_sent"`
	AlertDate time.Time `db:"alert_date" json:"alert_date"`
}

type BalanceHistory struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	CardID        uuid.UUID       `db:"card_id" json:"card_id"`
	CitizenID     uuid.UUID       `db:"citizen_id" json:"citizen_id"`
	TransactionID uuid.UUID       `db:"transaction_id" json:"transaction_id"`
	OldBalance    decimal.Decimal `db:"old_balance" json:"old_balance"`
	NewBalance    decimal.Decimal `db:"new_balance" json:"new_balance"`
	LoggedAt      time.Time       `db:"logged_at" json:"logged_at"`
}

type MonthlyViolation struct {
	CitizenID      uuid.UUID `db:"citizen_id" json:"citizen_id"`
	CardID         uuid.UUID `db:"card_id" json:"card_id"`
	Year           int       `db:"year" json:"year"`
	Month          int       `db:"month" json:"month"`
	ViolationCount int       `db:"violation_count" json:"violation_count"`
	LastUpdated    time.Time `db:"last_updated" json:"last_updated"`
}

type MonthlyCredit struct {
	CardID      uuid.UUID       `db:"card_id" json:"card_id"`
	CitizenID   uuid.UUID       `db:"citizen_id" json:"citizen_id"`
	Year        int             `db:"year" json:"year"`
	Month       int             `db:"month" json:"month"`
	LimitAmount decimal.Decimal `db:"limit_amount" json:"limit_amount"`
	BonusAmount decimal.Decimal `db:"bonus_amount" json:"bonus_amount"`
	TotalAmount decimal.Decimal `db:"total_amount" json:"total_amount"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

type MonthlyCardSpending struct {
	CardID         uuid.UUID       `db:"card_id" json:"card_id"`
	Year           int             `db:"year" json:"year"`
	Month          int             `db:"month" json:"month"`
	SpendingAmount decimal.Decimal `db:"spending_amount" json:"spending_amount"`
}

type MonthlyVendorSpending struct {
	CardID         uuid.UUID       `db:"card_id" json:"card_id"`
	VendorID       uuid.UUID       `db:"vendor_id" json:"vendor_id"`
	Year           int             `db:"year" json:"year"`
	Month          int             `db:"month" json:"month"`
	SpendingAmount decimal.Decimal `db:"spending_amount" json:"spending_amount"`
}

// TransactionOutcome is everything the pipeline decides for one submission.
// Repositories persist it atomically: the transaction row, its flags, the
// card balance update and the balance-history entry either all land or
// none do.
type TransactionOutcome struct {
	Transaction *Transaction
	Flags       []*Flag
	Balance     *BalanceUpdate
	History     *BalanceHistory
	Alert       *Alert
}

// BalanceUpdate commits the new balance computed by the pipeline.
type BalanceUpdate struct {
	CardID     uuid.UUID
	NewBalance decimal.Decimal
	UsedAt     time.Time
}
