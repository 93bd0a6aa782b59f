package store

import (
	"context"
	"time"

	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/models"
)

// TokenStore persists tokens. The engine keeps the live queue in memory and
// writes through to a TokenStore before publishing any change.
type TokenStore interface {
	InsertToken(ctx context.Context, token models.Token) error
	// UpdateToken writes token only if the stored status still equals expected,
	// otherwise it returns ErrConflict.
	UpdateToken(ctx context.Context, token models.Token, expected models.Status, action Action) error
	ListTokensSince(ctx context.Context, since time.Time) ([]models.Token, error)
	ListTokenEvents(ctx context.Context, tokenID string) ([]TokenEvent, error)
}

// Sequencer hands out token-number sequences. Scopes are independent counters
// starting at 1.
type Sequencer interface {
	Next(ctx context.Context, scope string) (int64, error)
}

// Directory is the read side of patient, department and doctor registration,
// which this service does not own.
type Directory interface {
	GetPatient(ctx context.Context, patientID string) (models.Patient, error)
	GetDepartment(ctx context.Context, departmentID string) (models.Department, error)
	GetDoctor(ctx context.Context, doctorID string) (models.Doctor, error)
	ListDepartments(ctx context.Context) ([]models.Department, error)
	ListDoctors(ctx context.Context) ([]models.Doctor, error)
}

type StaffStore interface {
	GetStaff(ctx context.Context, username string) (models.Staff, error)
}

// SequenceScope builds the per-department, per-day counter key.
func SequenceScope(departmentCode string, day time.Time) string {
	return departmentCode + ":" + day.Format("20060102")
}
