package store

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/models"
)

const (
	EventTokenCreated = "token.created"
)

type TokenEvent struct {
	TokenID   string          `json:"token_id"`
	TokenSeq  int             `json:"token_seq"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	PrevHash  string          `json:"prev_hash"`
	Hash      string          `json:"hash"`
}

// EventType names the audit event recorded for an action.
func EventType(action Action) string {
	return "token." + string(action)
}

func ComputeTokenEventHash(prevHash, tokenID, eventType string, payload json.RawMessage, createdAt time.Time, seq int) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%d|%s", prevHash, tokenID, eventType, createdAt.UTC().Format(time.RFC3339Nano), seq, payload)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum)
}

// NextTokenEvent chains a new event after prev. prev is nil for the first
// event of a token.
func NextTokenEvent(prev *TokenEvent, eventType string, token models.Token, createdAt time.Time) (TokenEvent, error) {
	payload, err := json.Marshal(token)
	if err != nil {
		return TokenEvent{}, err
	}
	seq := 1
	prevHash := ""
	if prev != nil {
		seq = prev.TokenSeq + 1
		prevHash = prev.Hash
	}
	createdAt = createdAt.UTC()
	return TokenEvent{
		TokenID:   token.TokenID,
		TokenSeq:  seq,
		Type:      eventType,
		Payload:   payload,
		CreatedAt: createdAt,
		PrevHash:  prevHash,
		Hash:      ComputeTokenEventHash(prevHash, token.TokenID, eventType, payload, createdAt, seq),
	}, nil
}

// VerifyTokenEvents reports the first sequence whose hash does not chain, or 0.
func VerifyTokenEvents(events []TokenEvent) int {
	prev := ""
	for _, event := range events {
		if event.PrevHash != prev {
			return event.TokenSeq
		}
		if ComputeTokenEventHash(event.PrevHash, event.TokenID, event.Type, event.Payload, event.CreatedAt, event.TokenSeq) != event.Hash {
			return event.TokenSeq
		}
		prev = event.Hash
	}
	return 0
}

func RehydrateToken(events []TokenEvent) (models.Token, error) {
	var token models.Token
	for _, event := range events {
		if len(event.Payload) == 0 {
			continue
		}
		var payload models.Token
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return models.Token{}, err
		}
		if payload.TokenID != "" {
			token.TokenID = payload.TokenID
		}
		if payload.TokenNumber != "" {
			token.TokenNumber = payload.TokenNumber
			token.Sequence = payload.Sequence
		}
		if payload.PatientID != "" {
			token.PatientID = payload.PatientID
		}
		if payload.DepartmentID != "" {
			token.DepartmentID = payload.DepartmentID
		}
		if payload.DoctorID != "" {
			token.DoctorID = payload.DoctorID
		}
		if payload.Priority != "" {
			token.Priority = payload.Priority
		}
		if payload.Status != "" {
			token.Status = payload.Status
		}
		if !payload.GeneratedAt.IsZero() {
			token.GeneratedAt = payload.GeneratedAt
		}
		if !payload.QueuedAt.IsZero() {
			token.QueuedAt = payload.QueuedAt
		}
		// A skip clears calledAt, so the latest payload wins for it.
		token.CalledAt = payload.CalledAt
		if payload.ConsultationStartedAt != nil {
			token.ConsultationStartedAt = payload.ConsultationStartedAt
		}
		if payload.ConsultationEndedAt != nil {
			token.ConsultationEndedAt = payload.ConsultationEndedAt
		}
		token.SkipCount = payload.SkipCount
		if payload.Notes != "" {
			token.Notes = payload.Notes
		}
		if payload.CreatedBy != "" {
			token.CreatedBy = payload.CreatedBy
		}
	}
	return token, nil
}
