package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/waseemanjum-be/NotifyHub/internal/domain"
	"github.com/waseemanjum-be/NotifyHub/internal/service"
)

type NotificationService interface {
	Create(ctx context.Context, n *domain.Notification) (*domain.Notification, []domain.DeliveryRecord, error)
	GetStatus(ctx context.Context, id string) (*service.StatusSummary, error)
	MarkRead(ctx context.Context, notificationID string, channel domain.Channel) (int, error)
}

type NotificationHandler struct {
	service NotificationService
}

func NewNotificationHandler(service NotificationService) (*NotificationHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("notification service is required")
	}
	return &NotificationHandler{service: service}, nil
}

func RegisterNotificationRoutes(router fiber.Router, service NotificationService) error {
	h, err := NewNotificationHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/notifications", h.CreateNotification)
	v1.Get("/notifications/:id", h.GetNotificationStatus)
	v1.Post("/notifications/:id/read", h.MarkNotificationRead)

	return nil
}

type createNotificationRequest struct {
	IdempotencyKey string            `json:"idempotencyKey"`
	UserID         string            `json:"userId"`
	TemplateID     string            `json:"templateId"`
	TemplateParams map[string]string `json:"templateParams,omitempty"`
	Priority       string            `json:"priority,omitempty"`
	Channels       []string          `json:"channels"`
}

type notificationResponse struct {
	ID             string             `json:"id"`
	IdempotencyKey string             `json:"idempotencyKey"`
	UserID         string             `json:"userId"`
	TemplateID     string             `json:"templateId"`
	TemplateParams map[string]string  `json:"templateParams,omitempty"`
	Priority       string             `json:"priority"`
	Status         string             `json:"status"`
	Deliveries     []deliveryResponse `json:"deliveries"`
	CreatedAt      time.Time          `json:"createdAt"`
}

type deliveryResponse struct {
	ID                string            `json:"id"`
	Channel           string            `json:"channel"`
	Status            string            `json:"status"`
	AttemptCount      int               `json:"attemptCount"`
	NextEligibleAt    *time.Time        `json:"nextEligibleAt,omitempty"`
	LastError         string            `json:"lastError,omitempty"`
	ProviderMessageID string            `json:"providerMessageId,omitempty"`
	Attempts          []attemptResponse `json:"attempts,omitempty"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

type attemptResponse struct {
	AttemptNumber int       `json:"attemptNumber"`
	Outcome       string    `json:"outcome"`
	StatusCode    *int      `json:"statusCode,omitempty"`
	Error         *string   `json:"error,omitempty"`
	LatencyMS     int64     `json:"latencyMs"`
	CreatedAt     time.Time `json:"createdAt"`
}

type markReadRequest struct {
	Channel string `json:"channel,omitempty"`
}

type markReadResponse struct {
	NotificationID string `json:"notificationId"`
	Channel        string `json:"channel,omitempty"`
	MarkedRead     int    `json:"markedRead"`
}

func (h *NotificationHandler) CreateNotification(c *fiber.Ctx) error {
	var req createNotificationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	notification, err := requestToDomainNotification(req)
	if err != nil {
		return toHTTPError(err)
	}

	created, deliveries, err := h.service.Create(c.UserContext(), &notification)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(toNotificationResponse(created, deliveries, nil))
}

func (h *NotificationHandler) GetNotificationStatus(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	summary, err := h.service.GetStatus(c.UserContext(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toStatusResponse(summary))
}

// MarkNotificationRead accepts an optional body naming a single channel;
// without one every delivered channel is marked.
func (h *NotificationHandler) MarkNotificationRead(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))

	var channel domain.Channel
	if len(c.Body()) > 0 {
		var req markReadRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if strings.TrimSpace(req.Channel) != "" {
			parsed, err := domain.ParseChannelFromString(req.Channel)
			if err != nil {
				return toHTTPError(err)
			}
			channel = parsed
		}
	}

	marked, err := h.service.MarkRead(c.UserContext(), id, channel)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(markReadResponse{
		NotificationID: id,
		Channel:        channel.String(),
		MarkedRead:     marked,
	})
}

func requestToDomainNotification(req createNotificationRequest) (domain.Notification, error) {
	channels, err := domain.ParseChannels(req.Channels)
	if err != nil {
		return domain.Notification{}, err
	}

	priority := domain.PriorityNormal
	if strings.TrimSpace(req.Priority) != "" {
		priority, err = domain.ParsePriorityFromString(req.Priority)
		if err != nil {
			return domain.Notification{}, err
		}
	}

	return domain.Notification{
		IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
		UserID:         strings.TrimSpace(req.UserID),
		TemplateID:     strings.TrimSpace(req.TemplateID),
		TemplateParams: req.TemplateParams,
		Priority:       priority,
		Channels:       channels,
	}, nil
}

func toStatusResponse(summary *service.StatusSummary) notificationResponse {
	deliveries := make([]domain.DeliveryRecord, 0, len(summary.Deliveries))
	attemptsByDelivery := make(map[string][]domain.DeliveryAttempt, len(summary.Deliveries))
	for _, view := range summary.Deliveries {
		deliveries = append(deliveries, view.Record)
		attemptsByDelivery[view.Record.ID] = view.Attempts
	}

	resp := toNotificationResponse(&summary.Notification, deliveries, attemptsByDelivery)
	resp.Status = summary.Overall.String()
	return resp
}

func toNotificationResponse(n *domain.Notification, deliveries []domain.DeliveryRecord, attemptsByDelivery map[string][]domain.DeliveryAttempt) notificationResponse {
	if n == nil {
		return notificationResponse{}
	}

	statuses := make([]domain.DeliveryStatus, 0, len(deliveries))
	items := make([]deliveryResponse, 0, len(deliveries))
	for _, record := range deliveries {
		statuses = append(statuses, record.Status)

		item := deliveryResponse{
			ID:                record.ID,
			Channel:           record.Channel.String(),
			Status:            record.Status.String(),
			AttemptCount:      record.AttemptCount,
			LastError:         record.LastError,
			ProviderMessageID: record.ProviderMessageID,
			UpdatedAt:         record.UpdatedAt,
		}
		if !record.Status.IsTerminal() && !record.NextEligibleAt.IsZero() {
			next := record.NextEligibleAt
			item.NextEligibleAt = &next
		}
		for _, attempt := range attemptsByDelivery[record.ID] {
			item.Attempts = append(item.Attempts, attemptResponse{
				AttemptNumber: attempt.AttemptNumber,
				Outcome:       attempt.Outcome.String(),
				StatusCode:    attempt.StatusCode,
				Error:         attempt.Error,
				LatencyMS:     attempt.LatencyMS,
				CreatedAt:     attempt.CreatedAt,
			})
		}
		items = append(items, item)
	}

	return notificationResponse{
		ID:             n.ID,
		IdempotencyKey: n.IdempotencyKey,
		UserID:         n.UserID,
		TemplateID:     n.TemplateID,
		TemplateParams: n.TemplateParams,
		Priority:       n.Priority.String(),
		Status:         domain.OverallStatus(statuses).String(),
		Deliveries:     items,
		CreatedAt:      n.CreatedAt,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
