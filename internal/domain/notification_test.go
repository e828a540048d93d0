package domain

import (
	"errors"
	"testing"
)

func TestParseChannelFromString(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		input   string
		want    Channel
		wantErr bool
	}{
		{name: "email upper", input: "EMAIL", want: ChannelEmail},
		{name: "sms lower", input: "sms", want: ChannelSMS},
		{name: "push with spaces", input: "  push ", want: ChannelPush},
		{name: "unknown", input: "fax", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseChannelFromString(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("error = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("channel = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestParseChannels(t *testing.T) {
	t.Parallel()

	channels, err := ParseChannels([]string{"email", "SMS"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(channels) != 2 || channels[0] != ChannelEmail || channels[1] != ChannelSMS {
		t.Fatalf("channels = %v, want [EMAIL SMS]", channels)
	}

	if _, err := ParseChannels(nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty list error = %v, want ErrValidation", err)
	}
	if _, err := ParseChannels([]string{"email", "EMAIL"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("duplicate error = %v, want ErrValidation", err)
	}
}

func TestNotificationValidate(t *testing.T) {
	t.Parallel()

	valid := Notification{
		IdempotencyKey: "idem-1",
		UserID:         "user-1",
		TemplateID:     "tpl-1",
		Priority:       PriorityNormal,
		Channels:       []Channel{ChannelEmail, ChannelPush},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid notification returned error: %v", err)
	}

	testCases := []struct {
		name   string
		mutate func(n *Notification)
	}{
		{name: "missing idempotency key", mutate: func(n *Notification) { n.IdempotencyKey = " " }},
		{name: "missing user", mutate: func(n *Notification) { n.UserID = "" }},
		{name: "missing template", mutate: func(n *Notification) { n.TemplateID = "" }},
		{name: "invalid priority", mutate: func(n *Notification) { n.Priority = "URGENT" }},
		{name: "no channels", mutate: func(n *Notification) { n.Channels = nil }},
		{name: "invalid channel", mutate: func(n *Notification) { n.Channels = []Channel{"FAX"} }},
		{name: "duplicate channel", mutate: func(n *Notification) { n.Channels = []Channel{ChannelSMS, ChannelSMS} }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			n := valid
			n.Channels = append([]Channel(nil), valid.Channels...)
			tc.mutate(&n)

			if err := n.Validate(); !errors.Is(err, ErrValidation) {
				t.Fatalf("Validate() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestParseAttemptOutcomeFromString(t *testing.T) {
	t.Parallel()

	got, err := ParseAttemptOutcomeFromString("retry_exhausted")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != OutcomeRetryExhausted {
		t.Fatalf("outcome = %s, want RETRY_EXHAUSTED", got)
	}

	if _, err := ParseAttemptOutcomeFromString("PARTIAL"); !errors.Is(err, ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}
