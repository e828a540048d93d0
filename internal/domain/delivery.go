package domain

import (
	"fmt"
	"strings"
	"time"
)

// DeliveryStatus represents the per-channel delivery lifecycle state.
type DeliveryStatus string

const (
	StatusQueued    DeliveryStatus = "QUEUED"
	StatusRetrying  DeliveryStatus = "RETRYING"
	StatusSent      DeliveryStatus = "SENT"
	StatusDelivered DeliveryStatus = "DELIVERED"
	StatusRead      DeliveryStatus = "READ"
	StatusFailed    DeliveryStatus = "FAILED"
)

func (s DeliveryStatus) String() string { return string(s) }

func (s DeliveryStatus) IsValid() bool {
	switch s {
	case StatusQueued, StatusRetrying, StatusSent, StatusDelivered, StatusRead, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the status is absorbing.
func (s DeliveryStatus) IsTerminal() bool {
	return s == StatusFailed || s == StatusRead
}

func ParseDeliveryStatusFromString(s string) (DeliveryStatus, error) {
	st := DeliveryStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid delivery status %q", ErrValidation, s)
	}
	return st, nil
}

// CanTransition is the authoritative transition table for the per-channel
// delivery state machine. Claiming a record does not change its status, so
// QUEUED and RETRYING are both valid send sources.
func CanTransition(from, to DeliveryStatus) bool {
	switch from {
	case StatusQueued, StatusRetrying:
		switch to {
		case StatusSent, StatusRetrying, StatusFailed:
			return true
		}
	case StatusSent:
		return to == StatusDelivered
	case StatusDelivered:
		return to == StatusRead
	}
	return false
}

// DeliveryRecord is one (notification, channel) delivery tracked through the
// state machine. It is the unit of atomic claiming: workers compete on
// records, never on notifications, so channels progress independently.
type DeliveryRecord struct {
	ID                string
	NotificationID    string
	Channel           Channel
	Status            DeliveryStatus
	AttemptCount      int
	NextEligibleAt    time.Time
	ClaimedBy         string
	LeaseExpiresAt    time.Time
	LastError         string
	ProviderMessageID string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// LeaseHeldBy reports whether token currently holds an unexpired lease.
func (r *DeliveryRecord) LeaseHeldBy(token string, now time.Time) bool {
	return r.ClaimedBy == token && r.LeaseExpiresAt.After(now)
}

// OverallStatus derives the aggregate notification status from its
// per-channel delivery states.
func OverallStatus(statuses []DeliveryStatus) DeliveryStatus {
	if len(statuses) == 0 {
		return StatusQueued
	}

	all := func(allowed ...DeliveryStatus) bool {
		for _, s := range statuses {
			ok := false
			for _, a := range allowed {
				if s == a {
					ok = true
					break
				}
			}
			if !ok {
				return false
			}
		}
		return true
	}

	for _, s := range statuses {
		if s == StatusFailed {
			return StatusFailed
		}
	}
	if all(StatusRead) {
		return StatusRead
	}
	if all(StatusDelivered, StatusRead) {
		return StatusDelivered
	}
	if all(StatusSent, StatusDelivered, StatusRead) {
		return StatusSent
	}
	for _, s := range statuses {
		if s == StatusRetrying {
			return StatusRetrying
		}
	}
	return StatusQueued
}
