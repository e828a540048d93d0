package domain

import (
	"fmt"
	"strings"
	"time"
)

// AttemptOutcome tags how a provider call attempt ended. RETRY_EXHAUSTED is
// kept distinct from TERMINAL_FAILURE even though both move the record to
// FAILED, so the attempt log preserves why retries stopped.
type AttemptOutcome string

const (
	OutcomeSuccess          AttemptOutcome = "SUCCESS"
	OutcomeRetryableFailure AttemptOutcome = "RETRYABLE_FAILURE"
	OutcomeTerminalFailure  AttemptOutcome = "TERMINAL_FAILURE"
	OutcomeRetryExhausted   AttemptOutcome = "RETRY_EXHAUSTED"
)

func (o AttemptOutcome) String() string { return string(o) }

func (o AttemptOutcome) IsValid() bool {
	switch o {
	case OutcomeSuccess, OutcomeRetryableFailure, OutcomeTerminalFailure, OutcomeRetryExhausted:
		return true
	}
	return false
}

func ParseAttemptOutcomeFromString(s string) (AttemptOutcome, error) {
	o := AttemptOutcome(strings.ToUpper(strings.TrimSpace(s)))
	if !o.IsValid() {
		return "", fmt.Errorf("%w: invalid attempt outcome %q", ErrValidation, s)
	}
	return o, nil
}

// DeliveryAttempt is an append-only log entry for a single provider call.
// The Error field is free-form and recorded for observability only; control
// flow never parses it.
type DeliveryAttempt struct {
	ID            string
	DeliveryID    string
	AttemptNumber int
	Outcome       AttemptOutcome
	StatusCode    *int
	ResponseBody  *string
	Error         *string
	LatencyMS     int64
	CreatedAt     time.Time
}
