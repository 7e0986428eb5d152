package reservation

import (
	"testing"
	"time"
)

func TestCanTransitionAndApply(t *testing.T) {
	if !CanTransition(StatusProvisional, StatusConfirmed) {
		t.Fatalf("expected provisional -> confirmed allowed")
	}
	if CanTransition(StatusCompleted, StatusProvisional) {
		t.Fatalf("expected completed -> provisional not allowed")
	}

	r := &Reservation{Status: StatusProvisional}
	now := time.Now()
	if err := ApplyTransition(r, StatusConfirmed, now); err != nil {
		t.Fatalf("ApplyTransition: %v", err)
	}
	if r.Status != StatusConfirmed {
		t.Fatalf("expected status confirmed, got %s", r.Status)
	}
	if r.ConfirmedAt == nil {
		t.Fatalf("expected ConfirmedAt set")
	}

	if err := ApplyTransition(r, StatusCompleted, now); err == nil {
		t.Fatalf("expected invalid shortcut transition to fail")
	}
}

func TestCancelFromAnyNonTerminal(t *testing.T) {
	now := time.Now()
	for _, from := range []Status{StatusProvisional, StatusConfirmed, StatusActive} {
		r := &Reservation{Status: from}
		if err := ApplyTransition(r, StatusCancelled, now); err != nil {
			t.Fatalf("cancel from %s: %v", from, err)
		}
		if r.CancelledAt == nil {
			t.Fatalf("expected CancelledAt set from %s", from)
		}
		if r.Blocking() {
			t.Fatalf("cancelled reservation must not block the calendar")
		}
	}

	for _, from := range []Status{StatusCompleted, StatusCancelled} {
		if !from.Terminal() {
			t.Fatalf("expected %s terminal", from)
		}
	}
	r := &Reservation{Status: StatusCompleted}
	if err := ApplyTransition(r, StatusCancelled, now); err == nil {
		t.Fatalf("expected cancel from completed to fail")
	}
}

func TestConfirmClearsExpiry(t *testing.T) {
	now := time.Now()
	exp := now.Add(30 * time.Minute)
	r := &Reservation{Status: StatusProvisional, ExpiresAt: &exp}
	if err := ApplyTransition(r, StatusConfirmed, now); err != nil {
		t.Fatalf("ApplyTransition: %v", err)
	}
	if r.ExpiresAt != nil {
		t.Fatalf("expected ExpiresAt cleared after confirm")
	}
}
