package provider

import (
	"context"
	"fmt"

	"github.com/waseemanjum-be/NotifyHub/internal/domain"
)

// Provider is the outbound delivery port. Provider identity is purely a base
// URL and API key from configuration; no vendor-specific logic lives here.
type Provider interface {
	Send(ctx context.Context, input SendInput) (*Response, error)
}

// Recipient carries the resolved contact details for one user.
type Recipient struct {
	Email       string
	PhoneNumber string
	PushToken   string
	Name        string
}

// Address returns the channel-appropriate destination.
func (r Recipient) Address(channel domain.Channel) string {
	switch channel {
	case domain.ChannelEmail:
		return r.Email
	case domain.ChannelSMS:
		return r.PhoneNumber
	case domain.ChannelPush:
		return r.PushToken
	}
	return ""
}

// SendInput is the provider call payload built from a claimed delivery
// record and its resolved user/template snapshots.
type SendInput struct {
	DeliveryID     string
	NotificationID string
	Channel        domain.Channel
	Priority       domain.Priority
	Recipient      Recipient
	Subject        string
	Body           string
	Params         map[string]string
}

// Response stores provider call metadata for audit and persistence.
type Response struct {
	StatusCode int
	Body       string
	MessageID  string
}

// Registry maps channels to their configured providers. Construction fails
// fast when an enabled channel has no provider, since that is a deployment
// error rather than a transient condition.
type Registry struct {
	providers map[domain.Channel]Provider
}

func NewRegistry(providers map[domain.Channel]Provider) (*Registry, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("at least one channel provider is required")
	}
	for channel, p := range providers {
		if !channel.IsValid() {
			return nil, fmt.Errorf("invalid channel %q", channel)
		}
		if p == nil {
			return nil, fmt.Errorf("provider for channel %s is nil", channel)
		}
	}

	return &Registry{providers: providers}, nil
}

// ForChannel returns the provider for a channel.
func (r *Registry) ForChannel(channel domain.Channel) (Provider, error) {
	p, ok := r.providers[channel]
	if !ok {
		return nil, fmt.Errorf("no provider configured for channel %s", channel)
	}
	return p, nil
}

// Channels lists the channels this registry can serve.
func (r *Registry) Channels() []domain.Channel {
	channels := make([]domain.Channel, 0, len(r.providers))
	for channel := range r.providers {
		channels = append(channels, channel)
	}
	return channels
}
