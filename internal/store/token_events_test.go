package store

import (
	"testing"
	"time"

	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/models"
)

func TestTokenEventChainAndRehydrate(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	token := models.Token{
		TokenID:      "tok-1",
		TokenNumber:  "CARD-20260302-0001",
		Sequence:     1,
		PatientID:    "pat-1",
		DepartmentID: "dep-1",
		DoctorID:     "doc-1",
		Priority:     models.PriorityNormal,
		Status:       models.StatusWaiting,
		GeneratedAt:  base,
		QueuedAt:     base,
	}
	first, err := NextTokenEvent(nil, EventTokenCreated, token, base)
	if err != nil {
		t.Fatalf("first event: %v", err)
	}

	called := base.Add(5 * time.Minute)
	token.Status = models.StatusCalled
	token.CalledAt = &called
	second, err := NextTokenEvent(&first, EventType(ActionCall), token, called)
	if err != nil {
		t.Fatalf("second event: %v", err)
	}
	if second.TokenSeq != 2 || second.PrevHash != first.Hash {
		t.Fatalf("event not chained: seq=%d prev=%s", second.TokenSeq, second.PrevHash)
	}

	events := []TokenEvent{first, second}
	if bad := VerifyTokenEvents(events); bad != 0 {
		t.Fatalf("expected valid chain, broken at %d", bad)
	}

	got, err := RehydrateToken(events)
	if err != nil {
		t.Fatalf("rehydrate: %v", err)
	}
	if got.Status != models.StatusCalled || got.CalledAt == nil || !got.CalledAt.Equal(called) {
		t.Fatalf("unexpected rehydrated token: %+v", got)
	}

	events[0].Payload = []byte(`{"token_id":"tampered"}`)
	if bad := VerifyTokenEvents(events); bad != 1 {
		t.Fatalf("expected tamper detected at 1, got %d", bad)
	}
}
