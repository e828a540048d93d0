package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/waseemanjum-be/NotifyHub/internal/observability"
	"github.com/waseemanjum-be/NotifyHub/internal/service"
)

const providerTokenHeader = "X-Provider-Token"

type ReceiptService interface {
	ApplyReceipt(ctx context.Context, input service.ReceiptInput) (bool, error)
}

// CallbackHandler ingests delivered/read receipts pushed by providers.
type CallbackHandler struct {
	service ReceiptService
	token   string
	metrics *observability.Metrics
}

func NewCallbackHandler(service ReceiptService, token string, metrics *observability.Metrics) (*CallbackHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("receipt service is required")
	}
	return &CallbackHandler{
		service: service,
		token:   strings.TrimSpace(token),
		metrics: metrics,
	}, nil
}

func RegisterCallbackRoutes(router fiber.Router, service ReceiptService, token string, metrics *observability.Metrics) error {
	h, err := NewCallbackHandler(service, token, metrics)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/callbacks/provider", h.ProviderCallback)

	return nil
}

type providerCallbackRequest struct {
	DeliveryID        string `json:"deliveryId"`
	ProviderMessageID string `json:"providerMessageId"`
	Event             string `json:"event"`
}

type providerCallbackResponse struct {
	Result string `json:"result"`
}

func (h *CallbackHandler) ProviderCallback(c *fiber.Ctx) error {
	// An empty configured token disables verification for local setups.
	if h.token != "" && c.Get(providerTokenHeader) != h.token {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid provider token")
	}

	var req providerCallbackRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	applied, err := h.service.ApplyReceipt(c.UserContext(), service.ReceiptInput{
		DeliveryID:        req.DeliveryID,
		ProviderMessageID: req.ProviderMessageID,
		Event:             req.Event,
	})
	if err != nil {
		h.metrics.IncCallbackEvent(req.Event, "rejected")
		return toHTTPError(err)
	}

	result := "applied"
	if !applied {
		result = "stale"
	}
	h.metrics.IncCallbackEvent(req.Event, result)

	return c.Status(fiber.StatusOK).JSON(providerCallbackResponse{Result: result})
}
