package sender

import (
	"context"
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		category Category
		want     Severity
	}{
		{CategoryRecipientInvalid, SeverityRecipient},
		{CategoryRecipientBanned, SeverityRecipient},
		{CategoryConnection, SeveritySession},
		{CategoryRateLimited, SeveritySession},
		{CategorySessionBanned, SeveritySession},
		{CategoryUnknown, SeveritySession},
	}
	for _, tc := range cases {
		err := NewSendError(tc.category, "detail")
		if got := Classify(err); got != tc.want {
			t.Errorf("Classify(%s) = %v, want %v", tc.category, got, tc.want)
		}
	}

	// Errors without a category are treated as session-level: safer to
	// halt than to burn through recipients on a broken session.
	if got := Classify(errors.New("boom")); got != SeveritySession {
		t.Errorf("Classify(plain error) = %v, want session", got)
	}
}

func TestCategoryOf(t *testing.T) {
	if got := CategoryOf(NewSendError(CategoryRateLimited, "slow down")); got != CategoryRateLimited {
		t.Errorf("CategoryOf = %s", got)
	}
	if got := CategoryOf(errors.New("boom")); got != CategoryUnknown {
		t.Errorf("CategoryOf(plain error) = %s", got)
	}
}

func TestMockSenderDeterministic(t *testing.T) {
	a := NewMockSender(7, 0.5)
	b := NewMockSender(7, 0.5)
	for i := 0; i < 50; i++ {
		errA := a.Send(context.Background(), "r", "p")
		errB := b.Send(context.Background(), "r", "p")
		if (errA == nil) != (errB == nil) {
			t.Fatalf("same seed diverged at send %d", i)
		}
	}
}

func TestMockSenderAlwaysSucceedsAtFullRate(t *testing.T) {
	s := NewMockSender(1, 1.0)
	for i := 0; i < 20; i++ {
		if err := s.Send(context.Background(), "r", "p"); err != nil {
			t.Fatalf("unexpected failure: %v", err)
		}
	}
}
