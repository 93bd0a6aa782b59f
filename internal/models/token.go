package models

import (
	"strings"
	"time"
)

type Priority string

const (
	PriorityEmergency     Priority = "EMERGENCY"
	PriorityPregnant      Priority = "PREGNANT"
	PrioritySeniorCitizen Priority = "SENIOR_CITIZEN"
	PriorityNormal        Priority = "NORMAL"
)

// Band groups priorities that order as equals. Higher bands are served first.
func (p Priority) Band() int {
	switch p {
	case PriorityEmergency:
		return 2
	case PriorityPregnant, PrioritySeniorCitizen:
		return 1
	default:
		return 0
	}
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityEmergency, PriorityPregnant, PrioritySeniorCitizen, PriorityNormal:
		return true
	}
	return false
}

// ParsePriority accepts any letter case. The second return is false for unknown values.
func ParsePriority(raw string) (Priority, bool) {
	p := Priority(strings.ToUpper(strings.TrimSpace(raw)))
	return p, p.Valid()
}

type Status string

const (
	StatusWaiting        Status = "WAITING"
	StatusCalled         Status = "CALLED"
	StatusInConsultation Status = "IN_CONSULTATION"
	StatusCompleted      Status = "COMPLETED"
	StatusCancelled      Status = "CANCELLED"
	StatusNoShow         Status = "NO_SHOW"
)

var AllStatuses = []Status{
	StatusWaiting,
	StatusCalled,
	StatusInConsultation,
	StatusCompleted,
	StatusCancelled,
	StatusNoShow,
}

// Active reports whether the status occupies a doctor's active slot.
func (s Status) Active() bool {
	return s == StatusCalled || s == StatusInConsultation
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

type Token struct {
	TokenID               string     `json:"token_id"`
	TokenNumber           string     `json:"token_number"`
	Sequence              int64      `json:"sequence"`
	PatientID             string     `json:"patient_id"`
	DepartmentID          string     `json:"department_id"`
	DoctorID              string     `json:"doctor_id,omitempty"`
	Priority              Priority   `json:"priority"`
	Status                Status     `json:"status"`
	GeneratedAt           time.Time  `json:"generated_at"`
	QueuedAt              time.Time  `json:"queued_at"`
	CalledAt              *time.Time `json:"called_at,omitempty"`
	ConsultationStartedAt *time.Time `json:"consultation_started_at,omitempty"`
	ConsultationEndedAt   *time.Time `json:"consultation_ended_at,omitempty"`
	SkipCount             int        `json:"skip_count,omitempty"`
	Notes                 string     `json:"notes,omitempty"`
	CreatedBy             string     `json:"created_by,omitempty"`
}

// ConsultationDuration is zero unless both consultation timestamps are set.
func (t Token) ConsultationDuration() time.Duration {
	if t.ConsultationStartedAt == nil || t.ConsultationEndedAt == nil {
		return 0
	}
	return t.ConsultationEndedAt.Sub(*t.ConsultationStartedAt)
}

// Clone copies the timestamp pointers so the result shares no memory with t.
func (t Token) Clone() Token {
	out := t
	out.CalledAt = cloneTime(t.CalledAt)
	out.ConsultationStartedAt = cloneTime(t.ConsultationStartedAt)
	out.ConsultationEndedAt = cloneTime(t.ConsultationEndedAt)
	return out
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}
