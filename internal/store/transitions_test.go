package store

import (
	"errors"
	"testing"

	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/models"
)

func TestValidTransition(t *testing.T) {
	cases := []struct {
		action Action
		from   models.Status
		valid  bool
	}{
		{ActionCall, models.StatusWaiting, true},
		{ActionCall, models.StatusCalled, false},
		{ActionStart, models.StatusCalled, true},
		{ActionStart, models.StatusWaiting, false},
		{ActionEnd, models.StatusInConsultation, true},
		{ActionEnd, models.StatusCalled, false},
		{ActionCancelActive, models.StatusCalled, true},
		{ActionCancelActive, models.StatusInConsultation, true},
		{ActionCancelActive, models.StatusWaiting, false},
		{ActionNoShow, models.StatusCalled, true},
		{ActionNoShow, models.StatusInConsultation, false},
		{ActionSkip, models.StatusCalled, true},
		{ActionSkip, models.StatusWaiting, true},
		{ActionSkip, models.StatusInConsultation, false},
		{ActionCancelWaiting, models.StatusWaiting, true},
		{ActionCancelWaiting, models.StatusCalled, false},
		{ActionChangePriority, models.StatusWaiting, true},
		{ActionChangePriority, models.StatusCompleted, false},
		{Action("unknown"), models.StatusWaiting, false},
	}

	for _, tt := range cases {
		if got := ValidTransition(tt.action, tt.from); got != tt.valid {
			t.Fatalf("ValidTransition(%q, %q)=%v, want %v", tt.action, tt.from, got, tt.valid)
		}
	}
}

func TestTerminalStatusesHaveNoExit(t *testing.T) {
	terminal := []models.Status{models.StatusCompleted, models.StatusCancelled, models.StatusNoShow}
	for action := range transitionMap {
		for _, status := range terminal {
			if ValidTransition(action, status) {
				t.Fatalf("action %q must not leave terminal status %q", action, status)
			}
		}
	}
}

func TestNextStatus(t *testing.T) {
	to, err := NextStatus(ActionEnd, models.StatusInConsultation)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if to != models.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", to)
	}
	if _, err := NextStatus(ActionEnd, models.StatusWaiting); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}
