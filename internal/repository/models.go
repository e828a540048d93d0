package repository

import (
	"time"

	"github.com/waseemanjum-be/NotifyHub/internal/domain"
)

// Collection names.
const (
	collNotifications = "notifications"
	collDeliveries    = "delivery_records"
	collAttempts      = "delivery_attempts"
	collUsers         = "users"
	collTemplates     = "notification_templates"
)

// notificationModel is the persistence document for the notifications
// collection.
type notificationModel struct {
	ID             string            `bson:"_id"`
	IdempotencyKey string            `bson:"idempotency_key"`
	UserID         string            `bson:"user_id"`
	TemplateID     string            `bson:"template_id"`
	TemplateParams map[string]string `bson:"template_params,omitempty"`
	Priority       string            `bson:"priority"`
	Channels       []string          `bson:"channels"`
	CreatedAt      time.Time         `bson:"created_at"`
	UpdatedAt      time.Time         `bson:"updated_at"`
}

// deliveryModel is the persistence document for delivery_records, the unit
// of atomic claiming.
type deliveryModel struct {
	ID                string    `bson:"_id"`
	NotificationID    string    `bson:"notification_id"`
	Channel           string    `bson:"channel"`
	Status            string    `bson:"status"`
	AttemptCount      int       `bson:"attempt_count"`
	NextEligibleAt    time.Time `bson:"next_eligible_at"`
	ClaimedBy         string    `bson:"claimed_by"`
	LeaseExpiresAt    time.Time `bson:"lease_expires_at"`
	LastError         string    `bson:"last_error"`
	ProviderMessageID string    `bson:"provider_message_id"`
	CreatedAt         time.Time `bson:"created_at"`
	UpdatedAt         time.Time `bson:"updated_at"`
}

// attemptModel is the append-only persistence document for delivery_attempts.
type attemptModel struct {
	ID            string    `bson:"_id"`
	DeliveryID    string    `bson:"delivery_id"`
	AttemptNumber int       `bson:"attempt_number"`
	Outcome       string    `bson:"outcome"`
	StatusCode    *int      `bson:"status_code,omitempty"`
	ResponseBody  *string   `bson:"response_body,omitempty"`
	Error         *string   `bson:"error,omitempty"`
	LatencyMS     int64     `bson:"latency_ms"`
	CreatedAt     time.Time `bson:"created_at"`
}

type userModel struct {
	ID          string `bson:"_id"`
	Email       string `bson:"email"`
	PhoneNumber string `bson:"phone_number"`
	PushToken   string `bson:"push_token"`
	Name        string `bson:"name"`
}

type templateModel struct {
	ID      string `bson:"_id"`
	Name    string `bson:"name"`
	Subject string `bson:"subject"`
	Body    string `bson:"body"`
}

func notificationModelFromDomain(n *domain.Notification) *notificationModel {
	if n == nil {
		return nil
	}

	channels := make([]string, 0, len(n.Channels))
	for _, ch := range n.Channels {
		channels = append(channels, ch.String())
	}

	return &notificationModel{
		ID:             n.ID,
		IdempotencyKey: n.IdempotencyKey,
		UserID:         n.UserID,
		TemplateID:     n.TemplateID,
		TemplateParams: n.TemplateParams,
		Priority:       n.Priority.String(),
		Channels:       channels,
		CreatedAt:      n.CreatedAt,
		UpdatedAt:      n.UpdatedAt,
	}
}

func notificationModelToDomain(m *notificationModel) *domain.Notification {
	if m == nil {
		return nil
	}

	channels := make([]domain.Channel, 0, len(m.Channels))
	for _, ch := range m.Channels {
		channels = append(channels, domain.Channel(ch))
	}

	return &domain.Notification{
		ID:             m.ID,
		IdempotencyKey: m.IdempotencyKey,
		UserID:         m.UserID,
		TemplateID:     m.TemplateID,
		TemplateParams: m.TemplateParams,
		Priority:       domain.Priority(m.Priority),
		Channels:       channels,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func deliveryModelFromDomain(r *domain.DeliveryRecord) *deliveryModel {
	if r == nil {
		return nil
	}

	return &deliveryModel{
		ID:                r.ID,
		NotificationID:    r.NotificationID,
		Channel:           r.Channel.String(),
		Status:            r.Status.String(),
		AttemptCount:      r.AttemptCount,
		NextEligibleAt:    r.NextEligibleAt,
		ClaimedBy:         r.ClaimedBy,
		LeaseExpiresAt:    r.LeaseExpiresAt,
		LastError:         r.LastError,
		ProviderMessageID: r.ProviderMessageID,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func deliveryModelToDomain(m *deliveryModel) *domain.DeliveryRecord {
	if m == nil {
		return nil
	}

	return &domain.DeliveryRecord{
		ID:                m.ID,
		NotificationID:    m.NotificationID,
		Channel:           domain.Channel(m.Channel),
		Status:            domain.DeliveryStatus(m.Status),
		AttemptCount:      m.AttemptCount,
		NextEligibleAt:    m.NextEligibleAt,
		ClaimedBy:         m.ClaimedBy,
		LeaseExpiresAt:    m.LeaseExpiresAt,
		LastError:         m.LastError,
		ProviderMessageID: m.ProviderMessageID,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func attemptModelFromDomain(a *domain.DeliveryAttempt) *attemptModel {
	if a == nil {
		return nil
	}

	return &attemptModel{
		ID:            a.ID,
		DeliveryID:    a.DeliveryID,
		AttemptNumber: a.AttemptNumber,
		Outcome:       a.Outcome.String(),
		StatusCode:    a.StatusCode,
		ResponseBody:  a.ResponseBody,
		Error:         a.Error,
		LatencyMS:     a.LatencyMS,
		CreatedAt:     a.CreatedAt,
	}
}

func attemptModelToDomain(m *attemptModel) *domain.DeliveryAttempt {
	if m == nil {
		return nil
	}

	return &domain.DeliveryAttempt{
		ID:            m.ID,
		DeliveryID:    m.DeliveryID,
		AttemptNumber: m.AttemptNumber,
		Outcome:       domain.AttemptOutcome(m.Outcome),
		StatusCode:    m.StatusCode,
		ResponseBody:  m.ResponseBody,
		Error:         m.Error,
		LatencyMS:     m.LatencyMS,
		CreatedAt:     m.CreatedAt,
	}
}

func userModelToDomain(m *userModel) *domain.User {
	if m == nil {
		return nil
	}

	return &domain.User{
		ID:          m.ID,
		Email:       m.Email,
		PhoneNumber: m.PhoneNumber,
		PushToken:   m.PushToken,
		Name:        m.Name,
	}
}

func templateModelToDomain(m *templateModel) *domain.Template {
	if m == nil {
		return nil
	}

	return &domain.Template{
		ID:      m.ID,
		Name:    m.Name,
		Subject: m.Subject,
		Body:    m.Body,
	}
}
