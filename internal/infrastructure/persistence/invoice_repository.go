package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/finrec/backend/internal/domain/reconciliation"
	"github.com/finrec/backend/internal/domain/shared/valueobject"
	"github.com/finrec/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormInvoiceRepository implements reconciliation.InvoiceRepository using GORM
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

// FindMatchable finds invoices eligible as matching targets, ordered by
// issued_at then id so snapshots are stable across calls
func (r *GormInvoiceRepository) FindMatchable(ctx context.Context) ([]reconciliation.Invoice, error) {
	var rows []models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Where("status NOT IN ?", []string{
			string(reconciliation.InvoiceStatusCancelled),
			string(reconciliation.InvoiceStatusPaid),
		}).
		Order("issued_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	invoices := make([]reconciliation.Invoice, len(rows))
	for i := range rows {
		invoices[i] = rows[i].ToDomain()
	}
	return invoices, nil
}

// FindByID finds an invoice by ID
func (r *GormInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*reconciliation.Invoice, error) {
	var row models.InvoiceModel
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	invoice := row.ToDomain()
	return &invoice, nil
}

// Save upserts an invoice snapshot
func (r *GormInvoiceRepository) Save(ctx context.Context, invoice *reconciliation.Invoice) error {
	var row models.InvoiceModel
	row.FromDomain(invoice)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&row).Error
}

// ApplyAllocation moves the allocated amount from outstanding_balance to
// amount_paid_so_far and flips the status to PAID when the balance hits
// zero. The guard on outstanding_balance makes over-allocation a no-op
// that surfaces as an error instead of negative balances.
func (r *GormInvoiceRepository) ApplyAllocation(ctx context.Context, invoiceID uuid.UUID, amount valueobject.Money) error {
	if !amount.IsPositive() {
		return fmt.Errorf("allocation must be positive, got %s", amount)
	}

	result := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).
		Where("id = ? AND outstanding_balance >= ?", invoiceID, amount.Amount()).
		Updates(map[string]interface{}{
			"amount_paid_so_far":  gorm.Expr("amount_paid_so_far + ?", amount.Amount()),
			"outstanding_balance": gorm.Expr("outstanding_balance - ?", amount.Amount()),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("invoice %s cannot absorb allocation %s", invoiceID, amount)
	}

	return r.db.WithContext(ctx).Model(&models.InvoiceModel{}).
		Where("id = ? AND outstanding_balance = 0", invoiceID).
		Update("status", string(reconciliation.InvoiceStatusPaid)).Error
}
