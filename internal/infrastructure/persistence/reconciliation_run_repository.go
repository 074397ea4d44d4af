package persistence

import (
	"context"
	"errors"

	"github.com/finrec/backend/internal/domain/reconciliation"
	"github.com/finrec/backend/internal/domain/shared/valueobject"
	"github.com/finrec/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormReconciliationRunRepository implements reconciliation.RunRepository using GORM
type GormReconciliationRunRepository struct {
	db *gorm.DB
}

// NewGormReconciliationRunRepository creates a new GormReconciliationRunRepository
func NewGormReconciliationRunRepository(db *gorm.DB) *GormReconciliationRunRepository {
	return &GormReconciliationRunRepository{db: db}
}

// Create persists a new run record
func (r *GormReconciliationRunRepository) Create(ctx context.Context, run *reconciliation.Run) error {
	var row models.ReconciliationRunModel
	if err := row.FromDomain(run); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

// Update persists run state transitions
func (r *GormReconciliationRunRepository) Update(ctx context.Context, run *reconciliation.Run) error {
	var row models.ReconciliationRunModel
	if err := row.FromDomain(run); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Save(&row).Error
}

// SaveResult persists the complete run output atomically: the run record,
// every match result, every issue, and the invoice allocations. A failure
// anywhere rolls the whole run back.
func (r *GormReconciliationRunRepository) SaveResult(ctx context.Context, run *reconciliation.Run, result *reconciliation.RunResult) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var runRow models.ReconciliationRunModel
		if err := runRow.FromDomain(run); err != nil {
			return err
		}
		if err := tx.Save(&runRow).Error; err != nil {
			return err
		}

		if len(result.MatchResults) > 0 {
			rows := make([]models.MatchResultModel, len(result.MatchResults))
			for i := range result.MatchResults {
				rows[i].FromDomain(run.ID, &result.MatchResults[i])
			}
			if err := tx.CreateInBatches(rows, 500).Error; err != nil {
				return err
			}
		}

		if len(result.Issues) > 0 {
			rows := make([]models.IssueModel, len(result.Issues))
			for i := range result.Issues {
				rows[i].FromDomain(run.ID, &result.Issues[i])
			}
			if err := tx.CreateInBatches(rows, 500).Error; err != nil {
				return err
			}
		}

		invoices := NewGormInvoiceRepository(tx)
		for _, mr := range result.MatchResults {
			if !mr.State.Allocates() || mr.InvoiceID == nil || !mr.MatchedAmount.IsPositive() {
				continue
			}
			if err := invoices.ApplyAllocation(ctx, *mr.InvoiceID, mr.MatchedAmount); err != nil {
				return err
			}
		}

		return nil
	})
}

// FindByID finds a run by ID
func (r *GormReconciliationRunRepository) FindByID(ctx context.Context, id uuid.UUID) (*reconciliation.Run, error) {
	var row models.ReconciliationRunModel
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return row.ToDomain()
}

// FindLatestCompleted finds the most recently completed run
func (r *GormReconciliationRunRepository) FindLatestCompleted(ctx context.Context) (*reconciliation.Run, error) {
	var row models.ReconciliationRunModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", string(reconciliation.RunStatusCompleted)).
		Order("completed_at DESC").
		First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return row.ToDomain()
}

// FindMatchResults finds all match results for a run in payment order
func (r *GormReconciliationRunRepository) FindMatchResults(ctx context.Context, runID uuid.UUID) ([]reconciliation.MatchResult, error) {
	var rows []models.MatchResultModel
	if err := r.db.WithContext(ctx).
		Joins("JOIN payments ON payments.id = match_results.payment_id").
		Where("match_results.run_id = ?", runID).
		Order("payments.received_at ASC, payments.id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	results := make([]reconciliation.MatchResult, len(rows))
	for i := range rows {
		results[i] = rows[i].ToDomain()
	}
	return results, nil
}

// FindMatchResultByID finds a single match result
func (r *GormReconciliationRunRepository) FindMatchResultByID(ctx context.Context, id uuid.UUID) (*reconciliation.MatchResult, error) {
	var row models.MatchResultModel
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	result := row.ToDomain()
	return &result, nil
}

// FindIssues finds issues for a run, severity-filtered when requested,
// highest severity first
func (r *GormReconciliationRunRepository) FindIssues(ctx context.Context, runID uuid.UUID, severity reconciliation.IssueSeverity) ([]reconciliation.Issue, error) {
	query := r.db.WithContext(ctx).Where("run_id = ?", runID)
	if severity != "" {
		query = query.Where("severity = ?", string(severity))
	}

	var rows []models.IssueModel
	if err := query.
		Order("CASE severity WHEN 'HIGH' THEN 0 WHEN 'MEDIUM' THEN 1 ELSE 2 END, type ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	issues := make([]reconciliation.Issue, len(rows))
	for i := range rows {
		issues[i] = rows[i].ToDomain()
	}
	return issues, nil
}

// SumAllocatedForInvoice sums matched amounts committed against an invoice
func (r *GormReconciliationRunRepository) SumAllocatedForInvoice(ctx context.Context, invoiceID uuid.UUID) (valueobject.Money, error) {
	var total decimal.Decimal
	err := r.db.WithContext(ctx).Model(&models.MatchResultModel{}).
		Where("invoice_id = ? AND state IN ?", invoiceID, []string{
			string(reconciliation.MatchStateMatched),
			string(reconciliation.MatchStatePartial),
		}).
		Select("COALESCE(SUM(matched_amount), 0)").
		Scan(&total).Error
	if err != nil {
		return valueobject.Money{}, err
	}
	return valueobject.NewMoney(total, valueobject.DefaultCurrency)
}

// SaveReviewDecision persists a review transition atomically: the match
// result update, the audit record, and the allocation when confirmed
func (r *GormReconciliationRunRepository) SaveReviewDecision(ctx context.Context, result *reconciliation.MatchResult, decision *reconciliation.ReviewDecision) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"state":          string(result.State),
			"matched_amount": result.MatchedAmount.Amount(),
		}
		res := tx.Model(&models.MatchResultModel{}).
			Where("id = ?", result.ID).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		var decisionRow models.ReviewDecisionModel
		decisionRow.FromDomain(decision)
		if err := tx.Create(&decisionRow).Error; err != nil {
			return err
		}

		if result.State.Allocates() && result.InvoiceID != nil && result.MatchedAmount.IsPositive() {
			invoices := NewGormInvoiceRepository(tx)
			if err := invoices.ApplyAllocation(ctx, *result.InvoiceID, result.MatchedAmount); err != nil {
				return err
			}
		}

		return nil
	})
}
