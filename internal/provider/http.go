package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultSendTimeout = 5 * time.Second

type sendRequest struct {
	NotificationID string            `json:"notification_id"`
	DeliveryID     string            `json:"delivery_id"`
	Channel        string            `json:"channel"`
	Priority       string            `json:"priority"`
	To             string            `json:"to"`
	Subject        string            `json:"subject,omitempty"`
	Body           string            `json:"body"`
	Params         map[string]string `json:"params,omitempty"`
}

// HTTPProvider sends deliveries to a configured HTTP endpoint. One
// implementation serves every channel; swapping vendors is a config change.
type HTTPProvider struct {
	client    *resty.Client
	baseURL   string
	apiKey    string
	retryable map[int]struct{}
}

func NewHTTPProvider(baseURL, apiKey string, timeout time.Duration, retryableStatuses []int) (*HTTPProvider, error) {
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(0)

	return NewHTTPProviderWithClient(baseURL, apiKey, retryableStatuses, client)
}

func NewHTTPProviderWithClient(baseURL, apiKey string, retryableStatuses []int, client *resty.Client) (*HTTPProvider, error) {
	trimmedBaseURL := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmedBaseURL == "" {
		return nil, fmt.Errorf("provider base URL is required")
	}
	if _, err := url.ParseRequestURI(trimmedBaseURL); err != nil {
		return nil, fmt.Errorf("invalid provider base URL: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultSendTimeout)
	}
	client.SetRetryCount(0)

	retryable := make(map[int]struct{}, len(retryableStatuses))
	for _, code := range retryableStatuses {
		retryable[code] = struct{}{}
	}

	return &HTTPProvider{
		client:    client,
		baseURL:   trimmedBaseURL,
		apiKey:    strings.TrimSpace(apiKey),
		retryable: retryable,
	}, nil
}

func (p *HTTPProvider) Send(ctx context.Context, input SendInput) (*Response, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}

	to := input.Recipient.Address(input.Channel)
	if strings.TrimSpace(to) == "" {
		return nil, &ProviderError{
			Message:   fmt.Sprintf("recipient has no %s address", strings.ToLower(input.Channel.String())),
			Retryable: false,
		}
	}

	reqBody := sendRequest{
		NotificationID: input.NotificationID,
		DeliveryID:     input.DeliveryID,
		Channel:        strings.ToLower(input.Channel.String()),
		Priority:       strings.ToLower(input.Priority.String()),
		To:             to,
		Subject:        input.Subject,
		Body:           input.Body,
		Params:         input.Params,
	}

	req := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody)
	if p.apiKey != "" {
		req.SetHeader("Authorization", "Bearer "+p.apiKey)
	}

	response, err := req.Post(p.baseURL + "/send")
	if err != nil {
		return nil, &ProviderError{
			Message:   "provider request failed",
			Retryable: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return nil, &ProviderError{
			Message:   "provider returned empty response",
			Retryable: true,
		}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return &Response{
			StatusCode: statusCode,
			Body:       responseBody,
			MessageID:  messageIDFromResponse(response),
		}, nil
	}

	_, retryable := p.retryable[statusCode]
	return nil, &ProviderError{
		StatusCode: statusCode,
		Message:    statusErrorMessage(statusCode, responseBody),
		Retryable:  retryable,
	}
}

func statusErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("provider returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}

func messageIDFromResponse(response *resty.Response) string {
	if response == nil {
		return ""
	}

	for _, key := range []string{"X-Message-ID", "X-Message-Id", "X-Request-ID", "X-Request-Id"} {
		if value := strings.TrimSpace(response.Header().Get(key)); value != "" {
			return value
		}
	}

	return ""
}

var _ Provider = (*HTTPProvider)(nil)
