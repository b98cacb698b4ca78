package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/skyfare/internal/models"
)

// PaymentStore persists payments and their audit events in Postgres.
type PaymentStore struct {
	db *gorm.DB
}

func NewPaymentStore(db *gorm.DB) *PaymentStore {
	return &PaymentStore{db: db}
}

func (s *PaymentStore) Create(ctx context.Context, payment *models.Payment) error {
	return s.db.WithContext(ctx).Create(payment).Error
}

func (s *PaymentStore) FindByGatewayOrderID(ctx context.Context, gatewayOrderID int64) (*models.Payment, error) {
	var payment models.Payment
	if err := s.db.WithContext(ctx).
		Where("gateway_order_id = ?", gatewayOrderID).
		First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (s *PaymentStore) FindByBookingID(ctx context.Context, bookingID uuid.UUID) ([]models.Payment, error) {
	var payments []models.Payment
	if err := s.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at desc").
		Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

// UpdateStatus is a single conditional statement keyed on the expected
// prior status, so two racing callback deliveries cannot both transition
// the same record.
func (s *PaymentStore) UpdateStatus(ctx context.Context, paymentID uuid.UUID, expectedPrior, next string, fields map[string]any) (bool, error) {
	updates := map[string]any{"status": next}
	for k, v := range fields {
		updates[k] = v
	}

	res := s.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status = ?", paymentID, expectedPrior).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}

	return res.RowsAffected > 0, nil
}

func (s *PaymentStore) AppendEvent(ctx context.Context, event *models.PaymentEvent) error {
	return s.db.WithContext(ctx).Create(event).Error
}

func (s *PaymentStore) FindStalePending(ctx context.Context, before time.Time, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	if err := s.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.PaymentStatusPending, before).
		Order("created_at asc").
		Limit(limit).
		Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

func (s *PaymentStore) LatestEventTransactionID(ctx context.Context, paymentID uuid.UUID) (int64, error) {
	var event models.PaymentEvent
	err := s.db.WithContext(ctx).
		Where("payment_id = ? AND transaction_id <> 0", paymentID).
		Order("created_at desc").
		First(&event).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, nil
		}
		return 0, err
	}
	return event.TransactionID, nil
}
