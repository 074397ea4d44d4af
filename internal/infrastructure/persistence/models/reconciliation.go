package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/finrec/backend/internal/domain/reconciliation"
	"github.com/finrec/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StringSlice is a jsonb-backed string list column
type StringSlice []string

// Value implements driver.Valuer
func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner
func (s *StringSlice) Scan(value interface{}) error {
	return scanJSON(value, s)
}

// UUIDSlice is a jsonb-backed UUID list column
type UUIDSlice []uuid.UUID

// Value implements driver.Valuer
func (s UUIDSlice) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner
func (s *UUIDSlice) Scan(value interface{}) error {
	return scanJSON(value, s)
}

func scanJSON(value interface{}, dest interface{}) error {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported column type %T for json scan", value)
	}
}

// PaymentModel is the persistence model for ingested payments
type PaymentModel struct {
	ID            uuid.UUID       `gorm:"type:uuid;primary_key"`
	Reference     string          `gorm:"type:varchar(100);index"`
	Amount        decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Currency      string          `gorm:"type:varchar(3);not null;default:'KES'"`
	ReceivedAt    time.Time       `gorm:"not null;index"`
	PayerIdentity string          `gorm:"type:varchar(200)"`
	CustomerID    *uuid.UUID      `gorm:"type:uuid;index"`
	Gateway       string          `gorm:"type:varchar(20);not null"`
	RawMetadata   json.RawMessage `gorm:"type:jsonb;default:'{}'"`
	CreatedAt     time.Time       `gorm:"not null"`
	UpdatedAt     time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the persistence model to a domain Payment
func (m *PaymentModel) ToDomain() reconciliation.Payment {
	amount, _ := valueobject.NewMoney(m.Amount, valueobject.Currency(m.Currency))
	return reconciliation.Payment{
		ID:            m.ID,
		Reference:     m.Reference,
		Amount:        amount,
		ReceivedAt:    m.ReceivedAt,
		PayerIdentity: m.PayerIdentity,
		CustomerID:    m.CustomerID,
		Gateway:       reconciliation.Gateway(m.Gateway),
		RawMetadata:   m.RawMetadata,
	}
}

// FromDomain populates the persistence model from a domain Payment
func (m *PaymentModel) FromDomain(p *reconciliation.Payment) {
	m.ID = p.ID
	m.Reference = p.Reference
	m.Amount = p.Amount.Amount()
	m.Currency = string(p.Amount.Currency())
	m.ReceivedAt = p.ReceivedAt
	m.PayerIdentity = p.PayerIdentity
	m.CustomerID = p.CustomerID
	m.Gateway = string(p.Gateway)
	m.RawMetadata = p.RawMetadata
}

// InvoiceModel is the persistence model for the invoice read model synced
// from the billing system
type InvoiceModel struct {
	ID                 uuid.UUID       `gorm:"type:uuid;primary_key"`
	InvoiceNumber      string          `gorm:"type:varchar(50);not null;uniqueIndex"`
	CustomerID         uuid.UUID       `gorm:"type:uuid;not null;index"`
	CustomerName       string          `gorm:"type:varchar(200)"`
	CustomerEmail      string          `gorm:"type:varchar(200)"`
	CustomerPhone      string          `gorm:"type:varchar(50)"`
	InvoiceTotal       decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	AmountPaidSoFar    decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	OutstandingBalance decimal.Decimal `gorm:"type:decimal(18,4);not null;index"`
	Currency           string          `gorm:"type:varchar(3);not null;default:'KES'"`
	DueDate            *time.Time      `gorm:"index"`
	IssuedAt           time.Time       `gorm:"not null;index"`
	Status             string          `gorm:"type:varchar(20);not null;index"`
	ReferenceHints     StringSlice     `gorm:"type:jsonb;default:'[]'"`
	CreatedAt          time.Time       `gorm:"not null"`
	UpdatedAt          time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice
func (m *InvoiceModel) ToDomain() reconciliation.Invoice {
	currency := valueobject.Currency(m.Currency)
	total, _ := valueobject.NewMoney(m.InvoiceTotal, currency)
	paid, _ := valueobject.NewMoney(m.AmountPaidSoFar, currency)
	outstanding, _ := valueobject.NewMoney(m.OutstandingBalance, currency)
	return reconciliation.Invoice{
		ID:                 m.ID,
		InvoiceNumber:      m.InvoiceNumber,
		CustomerID:         m.CustomerID,
		CustomerName:       m.CustomerName,
		CustomerEmail:      m.CustomerEmail,
		CustomerPhone:      m.CustomerPhone,
		InvoiceTotal:       total,
		AmountPaidSoFar:    paid,
		OutstandingBalance: outstanding,
		DueDate:            m.DueDate,
		IssuedAt:           m.IssuedAt,
		Status:             reconciliation.InvoiceStatus(m.Status),
		ReferenceHints:     m.ReferenceHints,
	}
}

// FromDomain populates the persistence model from a domain Invoice
func (m *InvoiceModel) FromDomain(inv *reconciliation.Invoice) {
	m.ID = inv.ID
	m.InvoiceNumber = inv.InvoiceNumber
	m.CustomerID = inv.CustomerID
	m.CustomerName = inv.CustomerName
	m.CustomerEmail = inv.CustomerEmail
	m.CustomerPhone = inv.CustomerPhone
	m.InvoiceTotal = inv.InvoiceTotal.Amount()
	m.AmountPaidSoFar = inv.AmountPaidSoFar.Amount()
	m.OutstandingBalance = inv.OutstandingBalance.Amount()
	m.Currency = string(inv.InvoiceTotal.Currency())
	m.DueDate = inv.DueDate
	m.IssuedAt = inv.IssuedAt
	m.Status = string(inv.Status)
	m.ReferenceHints = inv.ReferenceHints
}

// ReconciliationRunModel is the persistence model for a run record
type ReconciliationRunModel struct {
	ID            uuid.UUID  `gorm:"type:uuid;primary_key"`
	Status        string     `gorm:"type:varchar(20);not null;index"`
	Currency      string     `gorm:"type:varchar(3);not null"`
	PeriodStart   *time.Time `gorm:"index"`
	PeriodEnd     *time.Time
	PaymentCount  int        `gorm:"not null;default:0"`
	InvoiceCount  int        `gorm:"not null;default:0"`
	StartedAt     time.Time  `gorm:"not null;index"`
	CompletedAt   *time.Time
	FailureReason string     `gorm:"type:varchar(500)"`
	Summary       []byte     `gorm:"type:jsonb"`
	CreatedAt     time.Time  `gorm:"not null"`
	UpdatedAt     time.Time  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ReconciliationRunModel) TableName() string {
	return "reconciliation_runs"
}

// runSummaryJSON is the storage shape of a RunSummary. Amounts are decimal
// strings so no precision is lost on the round trip.
type runSummaryJSON struct {
	GeneratedAt time.Time  `json:"generated_at"`
	PeriodStart *time.Time `json:"period_start,omitempty"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`

	TotalPayments    int `json:"total_payments"`
	MatchedCount     int `json:"matched_count"`
	PartialCount     int `json:"partial_count"`
	UnmatchedCount   int `json:"unmatched_count"`
	NeedsReviewCount int `json:"needs_review_count"`

	MatchedAmount     string `json:"matched_amount"`
	PartialAmount     string `json:"partial_amount"`
	UnmatchedAmount   string `json:"unmatched_amount"`
	NeedsReviewAmount string `json:"needs_review_amount"`

	MatchRate        float64 `json:"match_rate"`
	TotalOutstanding string  `json:"total_outstanding"`

	IssueCount         int `json:"issue_count"`
	HighSeverityIssues int `json:"high_severity_issues"`
}

// ToDomain converts the persistence model to a domain Run
func (m *ReconciliationRunModel) ToDomain() (*reconciliation.Run, error) {
	run := &reconciliation.Run{
		ID:            m.ID,
		Status:        reconciliation.RunStatus(m.Status),
		Currency:      valueobject.Currency(m.Currency),
		PeriodStart:   m.PeriodStart,
		PeriodEnd:     m.PeriodEnd,
		PaymentCount:  m.PaymentCount,
		InvoiceCount:  m.InvoiceCount,
		StartedAt:     m.StartedAt,
		CompletedAt:   m.CompletedAt,
		FailureReason: m.FailureReason,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if len(m.Summary) > 0 {
		summary, err := unmarshalSummary(m.Summary, run.Currency)
		if err != nil {
			return nil, fmt.Errorf("corrupt summary for run %s: %w", m.ID, err)
		}
		run.Summary = summary
	}
	return run, nil
}

// FromDomain populates the persistence model from a domain Run
func (m *ReconciliationRunModel) FromDomain(run *reconciliation.Run) error {
	m.ID = run.ID
	m.Status = string(run.Status)
	m.Currency = string(run.Currency)
	m.PeriodStart = run.PeriodStart
	m.PeriodEnd = run.PeriodEnd
	m.PaymentCount = run.PaymentCount
	m.InvoiceCount = run.InvoiceCount
	m.StartedAt = run.StartedAt
	m.CompletedAt = run.CompletedAt
	m.FailureReason = run.FailureReason
	m.CreatedAt = run.CreatedAt
	m.UpdatedAt = run.UpdatedAt
	if run.Summary != nil {
		data, err := marshalSummary(run.Summary)
		if err != nil {
			return err
		}
		m.Summary = data
	}
	return nil
}

func marshalSummary(s *reconciliation.RunSummary) ([]byte, error) {
	return json.Marshal(runSummaryJSON{
		GeneratedAt:        s.GeneratedAt,
		PeriodStart:        s.PeriodStart,
		PeriodEnd:          s.PeriodEnd,
		TotalPayments:      s.TotalPayments,
		MatchedCount:       s.MatchedCount,
		PartialCount:       s.PartialCount,
		UnmatchedCount:     s.UnmatchedCount,
		NeedsReviewCount:   s.NeedsReviewCount,
		MatchedAmount:      s.MatchedAmount.Amount().String(),
		PartialAmount:      s.PartialAmount.Amount().String(),
		UnmatchedAmount:    s.UnmatchedAmount.Amount().String(),
		NeedsReviewAmount:  s.NeedsReviewAmount.Amount().String(),
		MatchRate:          s.MatchRate,
		TotalOutstanding:   s.TotalOutstanding.Amount().String(),
		IssueCount:         s.IssueCount,
		HighSeverityIssues: s.HighSeverityIssues,
	})
}

func unmarshalSummary(data []byte, currency valueobject.Currency) (*reconciliation.RunSummary, error) {
	var raw runSummaryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	money := func(s string) (valueobject.Money, error) {
		return valueobject.NewMoneyFromString(s, currency)
	}
	matched, err := money(raw.MatchedAmount)
	if err != nil {
		return nil, err
	}
	partial, err := money(raw.PartialAmount)
	if err != nil {
		return nil, err
	}
	unmatched, err := money(raw.UnmatchedAmount)
	if err != nil {
		return nil, err
	}
	review, err := money(raw.NeedsReviewAmount)
	if err != nil {
		return nil, err
	}
	outstanding, err := money(raw.TotalOutstanding)
	if err != nil {
		return nil, err
	}
	return &reconciliation.RunSummary{
		GeneratedAt:        raw.GeneratedAt,
		PeriodStart:        raw.PeriodStart,
		PeriodEnd:          raw.PeriodEnd,
		TotalPayments:      raw.TotalPayments,
		MatchedCount:       raw.MatchedCount,
		PartialCount:       raw.PartialCount,
		UnmatchedCount:     raw.UnmatchedCount,
		NeedsReviewCount:   raw.NeedsReviewCount,
		MatchedAmount:      matched,
		PartialAmount:      partial,
		UnmatchedAmount:    unmatched,
		NeedsReviewAmount:  review,
		MatchRate:          raw.MatchRate,
		TotalOutstanding:   outstanding,
		IssueCount:         raw.IssueCount,
		HighSeverityIssues: raw.HighSeverityIssues,
	}, nil
}

// MatchResultModel is the persistence model for per-payment match results
type MatchResultModel struct {
	ID            uuid.UUID       `gorm:"type:uuid;primary_key"`
	RunID         uuid.UUID       `gorm:"type:uuid;not null;index"`
	PaymentID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	InvoiceID     *uuid.UUID      `gorm:"type:uuid;index"`
	State         string          `gorm:"type:varchar(20);not null;index"`
	Confidence    float64         `gorm:"not null"`
	MatchedAmount decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Currency      string          `gorm:"type:varchar(3);not null;default:'KES'"`
	Reasons       StringSlice     `gorm:"type:jsonb;default:'[]'"`
	CreatedAt     time.Time       `gorm:"not null"`
	UpdatedAt     time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (MatchResultModel) TableName() string {
	return "match_results"
}

// ToDomain converts the persistence model to a domain MatchResult
func (m *MatchResultModel) ToDomain() reconciliation.MatchResult {
	amount, _ := valueobject.NewMoney(m.MatchedAmount, valueobject.Currency(m.Currency))
	return reconciliation.MatchResult{
		ID:            m.ID,
		PaymentID:     m.PaymentID,
		InvoiceID:     m.InvoiceID,
		State:         reconciliation.MatchState(m.State),
		Confidence:    m.Confidence,
		MatchedAmount: amount,
		Reasons:       m.Reasons,
		CreatedAt:     m.CreatedAt,
	}
}

// FromDomain populates the persistence model from a domain MatchResult
func (m *MatchResultModel) FromDomain(runID uuid.UUID, mr *reconciliation.MatchResult) {
	m.ID = mr.ID
	m.RunID = runID
	m.PaymentID = mr.PaymentID
	m.InvoiceID = mr.InvoiceID
	m.State = string(mr.State)
	m.Confidence = mr.Confidence
	m.MatchedAmount = mr.MatchedAmount.Amount()
	m.Currency = string(mr.MatchedAmount.Currency())
	m.Reasons = mr.Reasons
	m.CreatedAt = mr.CreatedAt
}

// IssueModel is the persistence model for detected anomalies
type IssueModel struct {
	ID                uuid.UUID        `gorm:"type:uuid;primary_key"`
	RunID             uuid.UUID        `gorm:"type:uuid;not null;index"`
	Type              string           `gorm:"type:varchar(40);not null;index"`
	Severity          string           `gorm:"type:varchar(10);not null;index"`
	Description       string           `gorm:"type:text;not null"`
	RelatedPaymentIDs UUIDSlice        `gorm:"type:jsonb;default:'[]'"`
	RelatedInvoiceIDs UUIDSlice        `gorm:"type:jsonb;default:'[]'"`
	AmountInvolved    *decimal.Decimal `gorm:"type:decimal(18,4)"`
	Currency          string           `gorm:"type:varchar(3);not null;default:'KES'"`
	CreatedAt         time.Time        `gorm:"not null"`
}

// TableName returns the table name for GORM
func (IssueModel) TableName() string {
	return "reconciliation_issues"
}

// ToDomain converts the persistence model to a domain Issue
func (m *IssueModel) ToDomain() reconciliation.Issue {
	issue := reconciliation.Issue{
		ID:                m.ID,
		Type:              reconciliation.IssueType(m.Type),
		Severity:          reconciliation.IssueSeverity(m.Severity),
		Description:       m.Description,
		RelatedPaymentIDs: m.RelatedPaymentIDs,
		RelatedInvoiceIDs: m.RelatedInvoiceIDs,
	}
	if m.AmountInvolved != nil {
		amount, _ := valueobject.NewMoney(*m.AmountInvolved, valueobject.Currency(m.Currency))
		issue.AmountInvolved = &amount
	}
	return issue
}

// FromDomain populates the persistence model from a domain Issue
func (m *IssueModel) FromDomain(runID uuid.UUID, issue *reconciliation.Issue) {
	m.ID = issue.ID
	m.RunID = runID
	m.Type = string(issue.Type)
	m.Severity = string(issue.Severity)
	m.Description = issue.Description
	m.RelatedPaymentIDs = issue.RelatedPaymentIDs
	m.RelatedInvoiceIDs = issue.RelatedInvoiceIDs
	if issue.AmountInvolved != nil {
		amount := issue.AmountInvolved.Amount()
		m.AmountInvolved = &amount
		m.Currency = string(issue.AmountInvolved.Currency())
	}
}

// ReviewDecisionModel is the audit record for human review of a
// needs_review match result
type ReviewDecisionModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key"`
	MatchResultID uuid.UUID `gorm:"type:uuid;not null;index"`
	Outcome       string    `gorm:"type:varchar(20);not null"`
	Reviewer      string    `gorm:"type:varchar(200);not null"`
	Note          string    `gorm:"type:text"`
	DecidedAt     time.Time `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ReviewDecisionModel) TableName() string {
	return "review_decisions"
}

// ToDomain converts the persistence model to a domain ReviewDecision
func (m *ReviewDecisionModel) ToDomain() reconciliation.ReviewDecision {
	return reconciliation.ReviewDecision{
		ID:            m.ID,
		MatchResultID: m.MatchResultID,
		Outcome:       reconciliation.ReviewOutcome(m.Outcome),
		Reviewer:      m.Reviewer,
		Note:          m.Note,
		DecidedAt:     m.DecidedAt,
	}
}

// FromDomain populates the persistence model from a domain ReviewDecision
func (m *ReviewDecisionModel) FromDomain(d *reconciliation.ReviewDecision) {
	m.ID = d.ID
	m.MatchResultID = d.MatchResultID
	m.Outcome = string(d.Outcome)
	m.Reviewer = d.Reviewer
	m.Note = d.Note
	m.DecidedAt = d.DecidedAt
}
