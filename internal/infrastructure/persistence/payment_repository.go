package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/finrec/backend/internal/domain/reconciliation"
	"github.com/finrec/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormPaymentRepository implements reconciliation.PaymentRepository using GORM
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// FindForPeriod finds payments received within the given bounds, ordered
// by received_at then id so snapshots are stable across calls
func (r *GormPaymentRepository) FindForPeriod(ctx context.Context, start, end *time.Time) ([]reconciliation.Payment, error) {
	query := r.db.WithContext(ctx).Model(&models.PaymentModel{})
	if start != nil {
		query = query.Where("received_at >= ?", *start)
	}
	if end != nil {
		query = query.Where("received_at <= ?", *end)
	}

	var rows []models.PaymentModel
	if err := query.Order("received_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	payments := make([]reconciliation.Payment, len(rows))
	for i := range rows {
		payments[i] = rows[i].ToDomain()
	}
	return payments, nil
}

// FindByID finds a payment by ID
func (r *GormPaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*reconciliation.Payment, error) {
	var row models.PaymentModel
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	payment := row.ToDomain()
	return &payment, nil
}

// Save upserts a payment record
func (r *GormPaymentRepository) Save(ctx context.Context, payment *reconciliation.Payment) error {
	var row models.PaymentModel
	row.FromDomain(payment)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&row).Error
}
