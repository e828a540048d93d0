package domain

import (
	"fmt"
	"strings"
	"time"
)

// Channel represents an independent delivery path for a notification.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
	ChannelPush  Channel = "PUSH"
)

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush:
		return true
	}
	return false
}

func ParseChannelFromString(s string) (Channel, error) {
	ch := Channel(strings.ToUpper(strings.TrimSpace(s)))
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}

// ParseChannels parses a list of channel names, rejecting duplicates and
// empty lists.
func ParseChannels(values []string) ([]Channel, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: channels must contain at least one channel", ErrValidation)
	}

	seen := make(map[Channel]struct{}, len(values))
	channels := make([]Channel, 0, len(values))
	for _, value := range values {
		ch, err := ParseChannelFromString(value)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[ch]; dup {
			return nil, fmt.Errorf("%w: duplicate channel %q", ErrValidation, ch)
		}
		seen[ch] = struct{}{}
		channels = append(channels, ch)
	}

	return channels, nil
}

// Priority represents the message priority level.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityNormal Priority = "NORMAL"
	PriorityLow    Priority = "LOW"
)

func (p Priority) String() string { return string(p) }

func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

func ParsePriorityFromString(s string) (Priority, error) {
	pr := Priority(strings.ToUpper(strings.TrimSpace(s)))
	if !pr.IsValid() {
		return "", fmt.Errorf("%w: invalid priority %q", ErrValidation, s)
	}
	return pr, nil
}

// Notification is the logical message requested once by a caller. It is
// immutable after creation; per-channel delivery progress lives on the
// DeliveryRecord entities created alongside it.
type Notification struct {
	ID             string
	IdempotencyKey string
	UserID         string
	TemplateID     string
	TemplateParams map[string]string
	Priority       Priority
	Channels       []Channel
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (n *Notification) Validate() error {
	if strings.TrimSpace(n.IdempotencyKey) == "" {
		return fmt.Errorf("%w: idempotency key is required", ErrValidation)
	}
	if strings.TrimSpace(n.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if strings.TrimSpace(n.TemplateID) == "" {
		return fmt.Errorf("%w: template id is required", ErrValidation)
	}
	if !n.Priority.IsValid() {
		return fmt.Errorf("%w: invalid priority %q", ErrValidation, n.Priority)
	}
	if len(n.Channels) == 0 {
		return fmt.Errorf("%w: at least one channel is required", ErrValidation)
	}

	seen := make(map[Channel]struct{}, len(n.Channels))
	for _, ch := range n.Channels {
		if !ch.IsValid() {
			return fmt.Errorf("%w: invalid channel %q", ErrValidation, ch)
		}
		if _, dup := seen[ch]; dup {
			return fmt.Errorf("%w: duplicate channel %q", ErrValidation, ch)
		}
		seen[ch] = struct{}{}
	}

	return nil
}

// User is a read-only recipient snapshot used to address provider requests.
type User struct {
	ID          string
	Email       string
	PhoneNumber string
	PushToken   string
	Name        string
}

// Template is a read-only message template snapshot.
type Template struct {
	ID      string
	Name    string
	Subject string
	Body    string
}
