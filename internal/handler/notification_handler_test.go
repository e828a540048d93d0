package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/waseemanjum-be/NotifyHub/internal/domain"
	"github.com/waseemanjum-be/NotifyHub/internal/service"
	"github.com/waseemanjum-be/NotifyHub/internal/transport"
	"go.uber.org/zap"
)

func newTestApp(t *testing.T, svc NotificationService) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
	if err := RegisterNotificationRoutes(app.Group("/api"), svc); err != nil {
		t.Fatalf("RegisterNotificationRoutes() error = %v", err)
	}
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	return resp, raw
}

func TestCreateNotificationAccepted(t *testing.T) {
	t.Parallel()

	svc := &stubNotificationService{
		createFn: func(ctx context.Context, n *domain.Notification) (*domain.Notification, []domain.DeliveryRecord, error) {
			n.ID = "n-created"
			n.CreatedAt = time.Unix(1_700_000_000, 0).UTC()
			deliveries := make([]domain.DeliveryRecord, 0, len(n.Channels))
			for i, channel := range n.Channels {
				deliveries = append(deliveries, domain.DeliveryRecord{
					ID:             fmt.Sprintf("d-%d", i+1),
					NotificationID: n.ID,
					Channel:        channel,
					Status:         domain.StatusQueued,
				})
			}
			return n, deliveries, nil
		},
	}
	app := newTestApp(t, svc)

	resp, raw := doJSON(t, app, fiber.MethodPost, "/api/v1/notifications", fiber.Map{
		"idempotencyKey": "order-42",
		"userId":         "u1",
		"templateId":     "t1",
		"templateParams": fiber.Map{"name": "Ada"},
		"priority":       "high",
		"channels":       []string{"email", "sms"},
	})

	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", resp.StatusCode, raw)
	}

	var got notificationResponse
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if got.ID != "n-created" {
		t.Fatalf("id = %q, want n-created", got.ID)
	}
	if got.Priority != "HIGH" {
		t.Fatalf("priority = %q, want HIGH", got.Priority)
	}
	if got.Status != "QUEUED" {
		t.Fatalf("status = %q, want QUEUED", got.Status)
	}
	if len(got.Deliveries) != 2 {
		t.Fatalf("deliveries = %d, want 2", len(got.Deliveries))
	}
}

func TestCreateNotificationBadRequest(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, &stubNotificationService{})

	tests := []struct {
		name string
		body fiber.Map
	}{
		{
			name: "invalid channel",
			body: fiber.Map{"idempotencyKey": "k", "userId": "u1", "templateId": "t1", "channels": []string{"FAX"}},
		},
		{
			name: "invalid priority",
			body: fiber.Map{"idempotencyKey": "k", "userId": "u1", "templateId": "t1", "priority": "URGENT", "channels": []string{"SMS"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp, raw := doJSON(t, app, fiber.MethodPost, "/api/v1/notifications", tt.body)
			if resp.StatusCode != fiber.StatusBadRequest {
				t.Fatalf("status = %d, want 400: %s", resp.StatusCode, raw)
			}
		})
	}
}

func TestCreateNotificationValidationErrorFromService(t *testing.T) {
	t.Parallel()

	svc := &stubNotificationService{
		createFn: func(ctx context.Context, n *domain.Notification) (*domain.Notification, []domain.DeliveryRecord, error) {
			return nil, nil, fmt.Errorf("%w: user ghost does not exist", domain.ErrValidation)
		},
	}
	app := newTestApp(t, svc)

	resp, _ := doJSON(t, app, fiber.MethodPost, "/api/v1/notifications", fiber.Map{
		"idempotencyKey": "k",
		"userId":         "ghost",
		"templateId":     "t1",
		"channels":       []string{"SMS"},
	})
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetNotificationStatus(t *testing.T) {
	t.Parallel()

	next := time.Unix(1_700_000_100, 0).UTC()
	svc := &stubNotificationService{
		getStatusFn: func(ctx context.Context, id string) (*service.StatusSummary, error) {
			return &service.StatusSummary{
				Notification: domain.Notification{ID: id, UserID: "u1", TemplateID: "t1", Priority: domain.PriorityNormal},
				Overall:      domain.StatusRetrying,
				Deliveries: []service.DeliveryView{
					{
						Record: domain.DeliveryRecord{
							ID: "d1", Channel: domain.ChannelSMS, Status: domain.StatusRetrying,
							AttemptCount: 2, NextEligibleAt: next, LastError: "RETRYABLE_FAILURE",
						},
						Attempts: []domain.DeliveryAttempt{
							{AttemptNumber: 1, Outcome: domain.OutcomeRetryableFailure},
							{AttemptNumber: 2, Outcome: domain.OutcomeRetryableFailure},
						},
					},
				},
			}, nil
		},
	}
	app := newTestApp(t, svc)

	resp, raw := doJSON(t, app, fiber.MethodGet, "/api/v1/notifications/n1", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200: %s", resp.StatusCode, raw)
	}

	var got notificationResponse
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if got.Status != "RETRYING" {
		t.Fatalf("overall status = %q, want RETRYING", got.Status)
	}
	if len(got.Deliveries) != 1 || len(got.Deliveries[0].Attempts) != 2 {
		t.Fatalf("deliveries = %+v, want one with two attempts", got.Deliveries)
	}
	if got.Deliveries[0].NextEligibleAt == nil {
		t.Fatal("nextEligibleAt should be exposed for a retrying delivery")
	}
}

func TestGetNotificationStatusNotFound(t *testing.T) {
	t.Parallel()

	svc := &stubNotificationService{
		getStatusFn: func(ctx context.Context, id string) (*service.StatusSummary, error) {
			return nil, fmt.Errorf("%w: notification %s", domain.ErrNotFound, id)
		},
	}
	app := newTestApp(t, svc)

	resp, _ := doJSON(t, app, fiber.MethodGet, "/api/v1/notifications/missing", nil)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestMarkNotificationRead(t *testing.T) {
	t.Parallel()

	svc := &stubNotificationService{
		markReadFn: func(ctx context.Context, notificationID string, channel domain.Channel) (int, error) {
			if notificationID != "n1" {
				return 0, fmt.Errorf("%w: notification %s", domain.ErrNotFound, notificationID)
			}
			if channel != "" {
				return 0, fmt.Errorf("channel = %q, want all channels", channel)
			}
			return 2, nil
		},
	}
	app := newTestApp(t, svc)

	resp, raw := doJSON(t, app, fiber.MethodPost, "/api/v1/notifications/n1/read", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200: %s", resp.StatusCode, raw)
	}

	var got markReadResponse
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if got.MarkedRead != 2 {
		t.Fatalf("markedRead = %d, want 2", got.MarkedRead)
	}
}

func TestMarkNotificationReadSingleChannel(t *testing.T) {
	t.Parallel()

	svc := &stubNotificationService{
		markReadFn: func(ctx context.Context, notificationID string, channel domain.Channel) (int, error) {
			if channel != domain.ChannelEmail {
				return 0, fmt.Errorf("channel = %q, want EMAIL", channel)
			}
			return 1, nil
		},
	}
	app := newTestApp(t, svc)

	resp, raw := doJSON(t, app, fiber.MethodPost, "/api/v1/notifications/n1/read", map[string]string{"channel": "email"})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200: %s", resp.StatusCode, raw)
	}

	var got markReadResponse
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if got.Channel != "EMAIL" || got.MarkedRead != 1 {
		t.Fatalf("response = %+v, want channel EMAIL marked 1", got)
	}
}

func TestMarkNotificationReadRejectsUnknownChannel(t *testing.T) {
	t.Parallel()

	svc := &stubNotificationService{
		markReadFn: func(ctx context.Context, notificationID string, channel domain.Channel) (int, error) {
			t.Errorf("service should not be called for an invalid channel")
			return 0, nil
		},
	}
	app := newTestApp(t, svc)

	resp, _ := doJSON(t, app, fiber.MethodPost, "/api/v1/notifications/n1/read", map[string]string{"channel": "fax"})
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestMarkNotificationReadConflict(t *testing.T) {
	t.Parallel()

	svc := &stubNotificationService{
		markReadFn: func(ctx context.Context, notificationID string, channel domain.Channel) (int, error) {
			return 0, fmt.Errorf("%w: notification has no delivered channels to mark read", domain.ErrConflict)
		},
	}
	app := newTestApp(t, svc)

	resp, _ := doJSON(t, app, fiber.MethodPost, "/api/v1/notifications/n1/read", nil)
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

type stubNotificationService struct {
	createFn    func(ctx context.Context, n *domain.Notification) (*domain.Notification, []domain.DeliveryRecord, error)
	getStatusFn func(ctx context.Context, id string) (*service.StatusSummary, error)
	markReadFn  func(ctx context.Context, notificationID string, channel domain.Channel) (int, error)
}

func (s *stubNotificationService) Create(ctx context.Context, n *domain.Notification) (*domain.Notification, []domain.DeliveryRecord, error) {
	if s.createFn != nil {
		return s.createFn(ctx, n)
	}
	return n, nil, nil
}

func (s *stubNotificationService) GetStatus(ctx context.Context, id string) (*service.StatusSummary, error) {
	if s.getStatusFn != nil {
		return s.getStatusFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (s *stubNotificationService) MarkRead(ctx context.Context, notificationID string, channel domain.Channel) (int, error) {
	if s.markReadFn != nil {
		return s.markReadFn(ctx, notificationID, channel)
	}
	return 0, domain.ErrNotFound
}

var _ NotificationService = (*stubNotificationService)(nil)
