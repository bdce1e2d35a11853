// Package pipeline runs submitted transactions through the compliance
// rules and commits the outcome.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"cardguard/internal/catalog"
	"cardguard/internal/domain"
	"cardguard/internal/rules"
	pkgerrors "cardguard/pkg/errors"
	"cardguard/pkg/logger"
	"cardguard/pkg/validator"
)

// Repository interfaces

type TransactionRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	// SaveOutcome persists the transaction, its flags, the balance update
	// and the history row in one database transaction.
	SaveOutcome(ctx context.Context, outcome *domain.TransactionOutcome) error
	MonthToDateSpending(ctx context.Context, cardID uuid.UUID, at time.Time) (decimal.Decimal, error)
	RecentTimestamps(ctx context.Context, cardID uuid.UUID, since time.Time) ([]time.Time, error)
}

type CardRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Card, error)
}

type ReferenceRepository interface {
	FindCitizen(ctx context.Context, id uuid.UUID) (*domain.Citizen, error)
	FindVendor(ctx context.Context, id uuid.UUID) (*domain.Vendor, error)
	FindCardType(ctx context.Context, id uuid.UUID) (*domain.CardType, error)
}

// RuleProvider is the catalog view the pipeline needs.
type RuleProvider interface {
	ActiveRulesFor(cardTypeID uuid.UUID) []*catalog.ActiveRule
}

// Metrics receives instrumentation events. May be nil.
type Metrics interface {
	RecordSubmission(status string, duration time.Duration)
	RecordFlag(severity string)
}

type Service struct {
	txRepo   TransactionRepository
	cardRepo CardRepository
	refRepo  ReferenceRepository
	catalog  RuleProvider
	logger   logger.Logger
	metrics  Metrics
	locks    *cardLocks
	validate *validator.Validator
	// velocityLookback bounds how far back recent timestamps are fetched;
	// every velocity rule window must fit inside it.
	velocityLookback time.Duration
}

func NewService(
	txRepo TransactionRepository,
	cardRepo CardRepository,
	refRepo ReferenceRepository,
	cat RuleProvider,
	log logger.Logger,
	metrics Metrics,
	velocityLookback time.Duration,
) *Service {
	if velocityLookback <= 0 {
		velocityLookback = time.Hour
	}
	return &Service{
		txRepo:           txRepo,
		cardRepo:         cardRepo,
		refRepo:          refRepo,
		catalog:          cat,
		logger:           log,
		metrics:          metrics,
		locks:            newCardLocks(),
		validate:         validator.New(),
		velocityLookback: velocityLookback,
	}
}

// SubmitRequest is one purchase/payment/deposit event from the
// externally-owned transaction-entry surface. TransactionID is the
// caller-supplied idempotency key.
type SubmitRequest struct {
	TransactionID uuid.UUID              `json:"transaction_id" validate:"required"`
	CardID        uuid.UUID              `json:"card_id" validate:"required"`
	VendorID      uuid.UUID              `json:"vendor_id" validate:"required"`
	Amount        decimal.Decimal        `json:"amount" validate:"required,gt=0"`
	Type          domain.TransactionType `json:"type" validate:"required,oneof=purchase payment deposit topup"`
	City          string                 `json:"city"`
	Timestamp     time.Time              `json:"timestamp"`
}

// Result is what the submitter gets back. On a typed rejection the
// recorded Failed transaction rides along with the sentinel error; an
// accepted-but-flagged transaction carries a non-blocking advisory.
type Result struct {
	Transaction *domain.Transaction `json:"transaction"`
	Flags       []*domain.Flag      `json:"flags,omitempty"`
	Reason      pkgerrors.Reason    `json:"reason,omitempty"`
	Advisory    string              `json:"advisory,omitempty"`
}

// Submit runs one transaction through the compliance pipeline:
// Received -> Evaluated -> Accepted or Rejected. Submissions against the
// same card serialize on a per-card lock; different cards run in parallel.
func (s *Service) Submit(ctx context.Context, req *SubmitRequest) (*Result, error) {
	started := time.Now()

	if err := s.validate.Validate(req); err != nil {
		return nil, err
	}
	req.City = validator.Sanitize(req.City)
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now().UTC()
	}

	s.locks.Lock(req.CardID)
	defer s.locks.Unlock(req.CardID)

	res, err := s.process(ctx, req)

	status := "rejected"
	if err == nil {
		status = "accepted"
	} else if !pkgerrors.IsRejection(err) {
		status = "error"
	}
	s.recordSubmission(status, time.Since(started))

	return res, err
}

func (s *Service) process(ctx context.Context, req *SubmitRequest) (*Result, error) {
	// Idempotence: a known transaction id is rejected, not re-evaluated.
	if existing, err := s.txRepo.FindByID(ctx, req.TransactionID); err == nil && existing != nil {
		s.logger.Info("Duplicate submission rejected", map[string]interface{}{
			"transaction_id": req.TransactionID,
		})
		return &Result{
			Transaction: existing,
			Reason:      pkgerrors.ReasonDuplicateTransaction,
		}, pkgerrors.ErrDuplicateTransaction
	}

	card, err := s.cardRepo.FindByID(ctx, req.CardID)
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.ErrAccountNotFound) {
			return &Result{Reason: pkgerrors.ReasonAccountNotFound}, pkgerrors.ErrAccountNotFound
		}
		return nil, pkgerrors.Wrap(err, "failed to load card")
	}

	// The vendor is resolved before any outcome is recorded so a rejection
	// row never carries a vendor id the ledger cannot reference.
	vendor, err := s.refRepo.FindVendor(ctx, req.VendorID)
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.ErrVendorNotFound) {
			return &Result{Reason: pkgerrors.ReasonVendorNotFound}, pkgerrors.ErrVendorNotFound
		}
		return nil, pkgerrors.Wrap(err, "failed to load vendor")
	}

	if card.Status != domain.CardStatusActive {
		return s.recordRejection(ctx, req, card, pkgerrors.ErrCardInactive)
	}
	if req.Timestamp.After(card.ExpiryDate) {
		return s.recordRejection(ctx, req, card, pkgerrors.ErrCardExpired)
	}

	previousBalance := card.CurrentBalance
	var newBalance decimal.Decimal
	if req.Type.IsDebit() {
		newBalance = previousBalance.Sub(req.Amount)
		if newBalance.IsNegative() {
			return s.recordRejection(ctx, req, card, pkgerrors.ErrInsufficientFunds)
		}
	} else {
		newBalance = previousBalance.Add(req.Amount)
	}

	evalCtx, err := s.buildContext(ctx, req, card, vendor)
	if err != nil {
		return nil, err
	}

	verdicts := s.evaluateRules(card, req, evalCtx)

	tx := &domain.Transaction{
		ID:              req.TransactionID,
		CardID:          card.ID,
		VendorID:        vendor.ID,
		Amount:          req.Amount,
		City:            req.City,
		TransactionType: req.Type,
		PreviousBalance: previousBalance,
		TransactionDate: req.Timestamp,
		CreatedAt:       time.Now().UTC(),
	}

	flags := make([]*domain.Flag, 0, len(verdicts))
	var critical bool
	var summary []string
	for _, v := range verdicts {
		if v.rule.Severity == domain.SeverityCritical {
			critical = true
		}
		summary = append(summary, fmt.Sprintf("%s: %s", v.rule.RuleName, v.detail))
		flags = append(flags, &domain.Flag{
			ID:              uuid.New(),
			TransactionID:   tx.ID,
			RuleID:          v.rule.ID,
			CardID:          card.ID,
			ViolationDate:   req.Timestamp,
			ViolationDetail: v.detail,
			Severity:        v.rule.Severity,
		})
	}
	tx.RuleViolations = strings.Join(summary, "; ")
	tx.IsFraudSuspected = len(flags) > 0

	outcome := &domain.TransactionOutcome{Transaction: tx, Flags: flags}

	if critical {
		// Severity policy: any critical violation rejects the transaction
		// outright. No funds move; the zero-delta history row keeps the
		// audit trail complete.
		tx.Status = domain.TransactionStatusFailed
		tx.NewBalance = previousBalance
		tx.StatusReason = "rejected by compliance rules"
		outcome.History = s.historyRow(card, tx)
		outcome.Alert = &domain.Alert{
			ID:        uuid.New(),
			CitizenID: card.CitizenID,
			AlertType: "fraud_suspected",
			Message:   fmt.Sprintf("Transaction %s on card %s rejected: %s", tx.ID, card.CardNumber, tx.RuleViolations),
			AlertDate: time.Now().UTC(),
		}
	} else {
		tx.Status = domain.TransactionStatusCompleted
		tx.NewBalance = newBalance
		outcome.Balance = &domain.BalanceUpdate{
			CardID:     card.ID,
			NewBalance: newBalance,
			UsedAt:     req.Timestamp,
		}
		outcome.History = s.historyRow(card, tx)
	}

	if err := s.txRepo.SaveOutcome(ctx, outcome); err != nil {
		if pkgerrors.Is(err, pkgerrors.ErrDuplicateTransaction) {
			return &Result{Reason: pkgerrors.ReasonDuplicateTransaction}, pkgerrors.ErrDuplicateTransaction
		}
		return nil, pkgerrors.Wrap(err, "failed to persist transaction outcome")
	}

	for _, f := range flags {
		s.recordFlag(string(f.Severity))
	}

	s.logger.Info("Transaction evaluated", map[string]interface{}{
		"transaction_id":  tx.ID,
		"card_id":         card.ID,
		"status":          tx.Status,
		"flags":           len(flags),
		"fraud_suspected": tx.IsFraudSuspected,
	})

	result := &Result{Transaction: tx, Flags: flags}
	if critical {
		result.Reason = pkgerrors.ReasonComplianceRejected
		return result, pkgerrors.Wrap(pkgerrors.ErrComplianceRejected, tx.RuleViolations)
	}
	if len(flags) > 0 {
		result.Advisory = fmt.Sprintf("accepted with %d rule violation(s): %s", len(flags), tx.RuleViolations)
	}
	return result, nil
}

type verdict struct {
	rule   *domain.TransactionRule
	detail string
}

func (s *Service) evaluateRules(card *domain.Card, req *SubmitRequest, evalCtx rules.Context) []verdict {
	in := rules.Input{
		Amount:          req.Amount,
		TransactionType: req.Type,
		City:            req.City,
		Timestamp:       req.Timestamp,
	}

	var out []verdict
	for _, ar := range s.catalog.ActiveRulesFor(card.CardTypeID) {
		v, err := rules.Evaluate(ar.Expr, in, evalCtx)
		if err != nil {
			// Fails open: a broken rule is logged and skipped, never
			// surfaced to the submitter.
			s.logger.Error("Rule evaluation failed, skipping rule", map[string]interface{}{
				"rule_id": ar.Rule.ID,
				"error":   err.Error(),
			})
			continue
		}
		if v.Triggered {
			out = append(out, verdict{rule: ar.Rule, detail: v.Detail})
		}
	}
	return out
}

func (s *Service) buildContext(ctx context.Context, req *SubmitRequest, card *domain.Card, vendor *domain.Vendor) (rules.Context, error) {
	citizen, err := s.refRepo.FindCitizen(ctx, card.CitizenID)
	if err != nil {
		return rules.Context{}, pkgerrors.Wrap(err, "failed to load citizen")
	}
	cardType, err := s.refRepo.FindCardType(ctx, card.CardTypeID)
	if err != nil {
		return rules.Context{}, pkgerrors.Wrap(err, "failed to load card type")
	}

	monthToDate, err := s.txRepo.MonthToDateSpending(ctx, card.ID, req.Timestamp)
	if err != nil {
		return rules.Context{}, pkgerrors.Wrap(err, "failed to load month-to-date spending")
	}
	recent, err := s.txRepo.RecentTimestamps(ctx, card.ID, req.Timestamp.Add(-s.velocityLookback))
	if err != nil {
		return rules.Context{}, pkgerrors.Wrap(err, "failed to load recent transactions")
	}

	monthlyLimit := card.MonthlyLimit
	if monthlyLimit.IsZero() {
		monthlyLimit = cardType.DefaultMonthlyLimit
	}

	return rules.Context{
		MonthlyLimit:          monthlyLimit,
		MonthToDateSpending:   monthToDate,
		RecentTransactions:    recent,
		VendorCategory:        vendor.Category,
		CardAllowedCategories: cardType.AllowedCategories,
		RegisteredCity:        citizen.City,
	}, nil
}

// recordRejection persists a Failed transaction with no balance change and
// returns the matching typed error.
func (s *Service) recordRejection(ctx context.Context, req *SubmitRequest, card *domain.Card, cause error) (*Result, error) {
	tx := &domain.Transaction{
		ID:              req.TransactionID,
		CardID:          card.ID,
		VendorID:        req.VendorID,
		Amount:          req.Amount,
		City:            req.City,
		TransactionType: req.Type,
		PreviousBalance: card.CurrentBalance,
		NewBalance:      card.CurrentBalance,
		Status:          domain.TransactionStatusFailed,
		StatusReason:    cause.Error(),
		TransactionDate: req.Timestamp,
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.txRepo.SaveOutcome(ctx, &domain.TransactionOutcome{Transaction: tx}); err != nil {
		if pkgerrors.Is(err, pkgerrors.ErrDuplicateTransaction) {
			return &Result{Reason: pkgerrors.ReasonDuplicateTransaction}, pkgerrors.ErrDuplicateTransaction
		}
		return nil, pkgerrors.Wrap(err, "failed to record rejected transaction")
	}

	s.logger.Warn("Transaction rejected", map[string]interface{}{
		"transaction_id": tx.ID,
		"card_id":        card.ID,
		"reason":         pkgerrors.ReasonFor(cause),
	})

	return &Result{Transaction: tx, Reason: pkgerrors.ReasonFor(cause)}, cause
}

func (s *Service) historyRow(card *domain.Card, tx *domain.Transaction) *domain.BalanceHistory {
	return &domain.BalanceHistory{
		ID:            uuid.New(),
		CardID:        card.ID,
		CitizenID:     card.CitizenID,
		TransactionID: tx.ID,
		OldBalance:    tx.PreviousBalance,
		NewBalance:    tx.NewBalance,
		LoggedAt:      tx.TransactionDate,
	}
}

func (s *Service) recordSubmission(status string, d time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordSubmission(status, d)
	}
}

func (s *Service) recordFlag(severity string) {
	if s.metrics != nil {
		s.metrics.RecordFlag(severity)
	}
}
