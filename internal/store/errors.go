package store

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("invalid token transition")
	ErrDoctorBusy        = errors.New("doctor already has an active consultation")
	ErrEmptyQueue        = errors.New("no patients waiting in queue")
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid queue state")
	ErrValidation        = errors.New("validation failed")
)

var (
	ErrTokenNotFound      = fmt.Errorf("token %w", ErrNotFound)
	ErrDoctorNotFound     = fmt.Errorf("doctor %w", ErrNotFound)
	ErrPatientNotFound    = fmt.Errorf("patient %w", ErrNotFound)
	ErrDepartmentNotFound = fmt.Errorf("department %w", ErrNotFound)
	ErrStaffNotFound      = fmt.Errorf("staff %w", ErrNotFound)

	ErrDoctorUnavailable = fmt.Errorf("%w: doctor is not available", ErrValidation)
	ErrDoctorCapacity    = fmt.Errorf("%w: doctor has reached maximum patients for today", ErrValidation)

	// ErrConflict is returned by TokenStore.UpdateToken when the stored status no
	// longer matches the expected one.
	ErrConflict = fmt.Errorf("%w: stored token changed concurrently", ErrInvalidState)
)
