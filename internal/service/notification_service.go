package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/waseemanjum-be/NotifyHub/internal/domain"
	"github.com/waseemanjum-be/NotifyHub/internal/observability"
	"github.com/waseemanjum-be/NotifyHub/internal/repository"
	"go.uber.org/zap"
)

type NotificationService struct {
	notifications repository.NotificationRepository
	deliveries    repository.DeliveryRepository
	lookups       repository.LookupRepository
	logger        *zap.Logger
	now           func() time.Time
}

// DeliveryView pairs one delivery record with its recorded attempts.
type DeliveryView struct {
	Record   domain.DeliveryRecord
	Attempts []domain.DeliveryAttempt
}

// StatusSummary is the full read model for one notification: the immutable
// request plus per-channel delivery progress and the derived overall status.
type StatusSummary struct {
	Notification domain.Notification
	Overall      domain.DeliveryStatus
	Deliveries   []DeliveryView
}

// ReceiptInput is one provider callback event. Exactly one of DeliveryID or
// ProviderMessageID identifies the delivery record.
type ReceiptInput struct {
	DeliveryID        string
	ProviderMessageID string
	Event             string
}

const (
	ReceiptEventDelivered = "delivered"
	ReceiptEventRead      = "read"
)

func NewNotificationService(
	notifications repository.NotificationRepository,
	deliveries repository.DeliveryRepository,
	lookups repository.LookupRepository,
	logger *zap.Logger,
) (*NotificationService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &NotificationService{
		notifications: notifications,
		deliveries:    deliveries,
		lookups:       lookups,
		logger:        logger,
		now:           time.Now,
	}, nil
}

// Create persists a notification together with one QUEUED delivery record per
// requested channel. A repeated idempotency key returns the previously
// accepted notification instead of creating a duplicate.
func (s *NotificationService) Create(ctx context.Context, notification *domain.Notification) (*domain.Notification, []domain.DeliveryRecord, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := prepareNotificationForCreate(notification, s.now().UTC()); err != nil {
		return nil, nil, err
	}

	if _, err := s.lookups.GetUser(ctx, notification.UserID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: user %s does not exist", domain.ErrValidation, notification.UserID)
		}
		return nil, nil, fmt.Errorf("failed to resolve user: %w", err)
	}
	if _, err := s.lookups.GetTemplate(ctx, notification.TemplateID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: template %s does not exist", domain.ErrValidation, notification.TemplateID)
		}
		return nil, nil, fmt.Errorf("failed to resolve template: %w", err)
	}

	deliveries := make([]domain.DeliveryRecord, 0, len(notification.Channels))
	for _, channel := range notification.Channels {
		deliveries = append(deliveries, domain.DeliveryRecord{
			ID:             uuid.NewString(),
			NotificationID: notification.ID,
			Channel:        channel,
			Status:         domain.StatusQueued,
			NextEligibleAt: notification.CreatedAt,
			CreatedAt:      notification.CreatedAt,
			UpdatedAt:      notification.CreatedAt,
		})
	}

	if err := s.notifications.CreateWithDeliveries(ctx, notification, deliveries); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return s.resolveIdempotencyConflict(ctx, notification.IdempotencyKey)
		}
		return nil, nil, err
	}

	return notification, deliveries, nil
}

// GetStatus loads a notification, its delivery records, and their attempts.
func (s *NotificationService) GetStatus(ctx context.Context, id string) (*StatusSummary, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}

	notification, err := s.notifications.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}

	records, err := s.deliveries.ListByNotification(ctx, notification.ID)
	if err != nil {
		return nil, err
	}

	views := make([]DeliveryView, 0, len(records))
	statuses := make([]domain.DeliveryStatus, 0, len(records))
	for _, record := range records {
		attempts, err := s.deliveries.ListAttempts(ctx, record.ID)
		if err != nil {
			return nil, err
		}
		views = append(views, DeliveryView{Record: record, Attempts: attempts})
		statuses = append(statuses, record.Status)
	}

	return &StatusSummary{
		Notification: *notification,
		Overall:      domain.OverallStatus(statuses),
		Deliveries:   views,
	}, nil
}

// MarkRead transitions DELIVERED channels of the notification to READ and
// returns the number of records it advanced. An empty channel marks every
// channel; a named channel restricts the transition to that one record.
// Records already READ count as satisfied; a notification with nothing
// delivered yet is a conflict.
func (s *NotificationService) MarkRead(ctx context.Context, notificationID string, channel domain.Channel) (int, error) {
	if strings.TrimSpace(notificationID) == "" {
		return 0, fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}
	if channel != "" && !channel.IsValid() {
		return 0, fmt.Errorf("%w: invalid channel %q", domain.ErrValidation, channel)
	}

	if _, err := s.notifications.GetByID(ctx, strings.TrimSpace(notificationID)); err != nil {
		return 0, err
	}

	records, err := s.deliveries.ListByNotification(ctx, strings.TrimSpace(notificationID))
	if err != nil {
		return 0, err
	}

	if channel != "" {
		matched := make([]domain.DeliveryRecord, 0, 1)
		for _, record := range records {
			if record.Channel == channel {
				matched = append(matched, record)
			}
		}
		if len(matched) == 0 {
			return 0, fmt.Errorf("%w: notification has no %s delivery", domain.ErrNotFound, channel)
		}
		records = matched
	}

	advanced := 0
	alreadyRead := 0
	for _, record := range records {
		switch record.Status {
		case domain.StatusRead:
			alreadyRead++
		case domain.StatusDelivered:
			err := s.deliveries.AdvanceState(ctx, record.ID, domain.StatusDelivered, domain.StatusRead, nil, s.now().UTC())
			if err != nil {
				if errors.Is(err, domain.ErrStaleTransition) {
					continue
				}
				return advanced, err
			}
			advanced++
		}
	}

	if advanced == 0 && alreadyRead == 0 {
		return 0, fmt.Errorf("%w: notification has no delivered channels to mark read", domain.ErrConflict)
	}

	return advanced, nil
}

// ApplyReceipt applies one provider callback event to a delivery record. It
// returns true when the event advanced the record and false when the event
// was stale, meaning the record had already moved at or past the target
// state. Stale receipts are not errors since providers redeliver callbacks.
func (s *NotificationService) ApplyReceipt(ctx context.Context, input ReceiptInput) (bool, error) {
	event := strings.ToLower(strings.TrimSpace(input.Event))
	if event != ReceiptEventDelivered && event != ReceiptEventRead {
		return false, fmt.Errorf("%w: unknown receipt event %q", domain.ErrValidation, input.Event)
	}

	record, err := s.resolveReceiptRecord(ctx, input)
	if err != nil {
		return false, err
	}

	now := s.now().UTC()
	switch event {
	case ReceiptEventDelivered:
		return s.advanceForReceipt(ctx, record.ID, domain.StatusSent, domain.StatusDelivered, now)
	default:
		// A read receipt for a record still in SENT implies delivery.
		if record.Status == domain.StatusSent {
			if _, err := s.advanceForReceipt(ctx, record.ID, domain.StatusSent, domain.StatusDelivered, now); err != nil {
				return false, err
			}
		}
		return s.advanceForReceipt(ctx, record.ID, domain.StatusDelivered, domain.StatusRead, now)
	}
}

func (s *NotificationService) advanceForReceipt(ctx context.Context, id string, from, to domain.DeliveryStatus, now time.Time) (bool, error) {
	err := s.deliveries.AdvanceState(ctx, id, from, to, nil, now)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, domain.ErrStaleTransition) {
		s.logger.Info("stale receipt ignored",
			zap.String("deliveryId", id),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
		return false, nil
	}
	return false, err
}

func (s *NotificationService) resolveReceiptRecord(ctx context.Context, input ReceiptInput) (*domain.DeliveryRecord, error) {
	deliveryID := strings.TrimSpace(input.DeliveryID)
	providerMessageID := strings.TrimSpace(input.ProviderMessageID)

	switch {
	case deliveryID != "":
		return s.deliveries.GetByID(ctx, deliveryID)
	case providerMessageID != "":
		return s.deliveries.GetByProviderMessageID(ctx, providerMessageID)
	default:
		return nil, fmt.Errorf("%w: delivery id or provider message id is required", domain.ErrValidation)
	}
}

func (s *NotificationService) resolveIdempotencyConflict(ctx context.Context, idempotencyKey string) (*domain.Notification, []domain.DeliveryRecord, error) {
	existing, err := s.notifications.GetByIdempotencyKey(ctx, idempotencyKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load existing notification after idempotency conflict: %w", err)
	}

	records, err := s.deliveries.ListByNotification(ctx, existing.ID)
	if err != nil {
		return nil, nil, err
	}

	observability.WithContextLogger(s.logger, ctx).Info("idempotency conflict resolved",
		zap.String("existingId", existing.ID),
		zap.String("idempotencyKey", idempotencyKey),
	)
	return existing, records, nil
}

func prepareNotificationForCreate(n *domain.Notification, now time.Time) error {
	if n == nil {
		return fmt.Errorf("%w: notification is required", domain.ErrValidation)
	}

	n.IdempotencyKey = strings.TrimSpace(n.IdempotencyKey)
	n.UserID = strings.TrimSpace(n.UserID)
	n.TemplateID = strings.TrimSpace(n.TemplateID)

	n.ID = strings.TrimSpace(n.ID)
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Priority == "" {
		n.Priority = domain.PriorityNormal
	}
	n.CreatedAt = now
	n.UpdatedAt = now

	return n.Validate()
}
