package reconciliation

import (
	"context"
	"time"

	"github.com/finrec/backend/internal/domain/reconciliation"
	"github.com/finrec/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockPaymentRepository is a mock implementation of reconciliation.PaymentRepository
type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) FindForPeriod(ctx context.Context, start, end *time.Time) ([]reconciliation.Payment, error) {
	args := m.Called(ctx, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]reconciliation.Payment), args.Error(1)
}

func (m *MockPaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*reconciliation.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciliation.Payment), args.Error(1)
}

func (m *MockPaymentRepository) Save(ctx context.Context, payment *reconciliation.Payment) error {
	args := m.Called(ctx, payment)
	return args.Error(0)
}

// MockInvoiceRepository is a mock implementation of reconciliation.InvoiceRepository
type MockInvoiceRepository struct {
	mock.Mock
}

func (m *MockInvoiceRepository) FindMatchable(ctx context.Context) ([]reconciliation.Invoice, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]reconciliation.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*reconciliation.Invoice, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciliation.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) Save(ctx context.Context, invoice *reconciliation.Invoice) error {
	args := m.Called(ctx, invoice)
	return args.Error(0)
}

func (m *MockInvoiceRepository) ApplyAllocation(ctx context.Context, invoiceID uuid.UUID, amount valueobject.Money) error {
	args := m.Called(ctx, invoiceID, amount)
	return args.Error(0)
}

// MockRunRepository is a mock implementation of reconciliation.RunRepository
type MockRunRepository struct {
	mock.Mock
}

func (m *MockRunRepository) Create(ctx context.Context, run *reconciliation.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockRunRepository) Update(ctx context.Context, run *reconciliation.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockRunRepository) SaveResult(ctx context.Context, run *reconciliation.Run, result *reconciliation.RunResult) error {
	args := m.Called(ctx, run, result)
	return args.Error(0)
}

func (m *MockRunRepository) FindByID(ctx context.Context, id uuid.UUID) (*reconciliation.Run, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciliation.Run), args.Error(1)
}

func (m *MockRunRepository) FindLatestCompleted(ctx context.Context) (*reconciliation.Run, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciliation.Run), args.Error(1)
}

func (m *MockRunRepository) FindMatchResults(ctx context.Context, runID uuid.UUID) ([]reconciliation.MatchResult, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]reconciliation.MatchResult), args.Error(1)
}

func (m *MockRunRepository) FindMatchResultByID(ctx context.Context, id uuid.UUID) (*reconciliation.MatchResult, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciliation.MatchResult), args.Error(1)
}

func (m *MockRunRepository) FindIssues(ctx context.Context, runID uuid.UUID, severity reconciliation.IssueSeverity) ([]reconciliation.Issue, error) {
	args := m.Called(ctx, runID, severity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]reconciliation.Issue), args.Error(1)
}

func (m *MockRunRepository) SumAllocatedForInvoice(ctx context.Context, invoiceID uuid.UUID) (valueobject.Money, error) {
	args := m.Called(ctx, invoiceID)
	return args.Get(0).(valueobject.Money), args.Error(1)
}

func (m *MockRunRepository) SaveReviewDecision(ctx context.Context, result *reconciliation.MatchResult, decision *reconciliation.ReviewDecision) error {
	args := m.Called(ctx, result, decision)
	return args.Error(0)
}
