// Package memory implements every store contract in process. It backs the
// default development mode and the engine tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/models"
	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/store"
)

type Seed struct {
	Departments []models.Department
	Doctors     []models.Doctor
	Patients    []models.Patient
	Staff       []models.Staff
}

type Store struct {
	mu          sync.RWMutex
	tokens      map[string]models.Token
	events      map[string][]store.TokenEvent
	sequences   map[string]int64
	departments map[string]models.Department
	doctors     map[string]models.Doctor
	patients    map[string]models.Patient
	staff       map[string]models.Staff
	now         func() time.Time
}

func NewStore(seed Seed) *Store {
	s := &Store{
		tokens:      make(map[string]models.Token),
		events:      make(map[string][]store.TokenEvent),
		sequences:   make(map[string]int64),
		departments: make(map[string]models.Department),
		doctors:     make(map[string]models.Doctor),
		patients:    make(map[string]models.Patient),
		staff:       make(map[string]models.Staff),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, d := range seed.Departments {
		s.departments[d.DepartmentID] = d
	}
	for _, d := range seed.Doctors {
		s.doctors[d.DoctorID] = d
	}
	for _, p := range seed.Patients {
		s.patients[p.PatientID] = p
	}
	for _, st := range seed.Staff {
		s.staff[st.Username] = st
	}
	return s
}

func (s *Store) InsertToken(_ context.Context, token models.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[token.TokenID]; ok {
		return store.ErrConflict
	}
	if err := s.appendEvent(store.EventTokenCreated, token); err != nil {
		return err
	}
	s.tokens[token.TokenID] = token.Clone()
	return nil
}

func (s *Store) UpdateToken(_ context.Context, token models.Token, expected models.Status, action store.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.tokens[token.TokenID]
	if !ok {
		return store.ErrTokenNotFound
	}
	if current.Status != expected {
		return store.ErrConflict
	}
	if err := s.appendEvent(store.EventType(action), token); err != nil {
		return err
	}
	s.tokens[token.TokenID] = token.Clone()
	return nil
}

func (s *Store) appendEvent(eventType string, token models.Token) error {
	history := s.events[token.TokenID]
	var prev *store.TokenEvent
	if len(history) > 0 {
		prev = &history[len(history)-1]
	}
	event, err := store.NextTokenEvent(prev, eventType, token, s.now())
	if err != nil {
		return err
	}
	s.events[token.TokenID] = append(history, event)
	return nil
}

func (s *Store) ListTokensSince(_ context.Context, since time.Time) ([]models.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Token
	for _, token := range s.tokens {
		if token.GeneratedAt.Before(since) {
			continue
		}
		out = append(out, token.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].GeneratedAt.Equal(out[j].GeneratedAt) {
			return out[i].GeneratedAt.Before(out[j].GeneratedAt)
		}
		return out[i].TokenNumber < out[j].TokenNumber
	})
	return out, nil
}

func (s *Store) ListTokenEvents(_ context.Context, tokenID string) ([]store.TokenEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history, ok := s.events[tokenID]
	if !ok {
		return nil, store.ErrTokenNotFound
	}
	return append([]store.TokenEvent(nil), history...), nil
}

func (s *Store) Next(_ context.Context, scope string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequences[scope]++
	return s.sequences[scope], nil
}

func (s *Store) GetPatient(_ context.Context, patientID string) (models.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[patientID]
	if !ok {
		return models.Patient{}, store.ErrPatientNotFound
	}
	return p, nil
}

func (s *Store) GetDepartment(_ context.Context, departmentID string) (models.Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.departments[departmentID]
	if !ok {
		return models.Department{}, store.ErrDepartmentNotFound
	}
	return d, nil
}

func (s *Store) GetDoctor(_ context.Context, doctorID string) (models.Doctor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.doctors[doctorID]
	if !ok {
		return models.Doctor{}, store.ErrDoctorNotFound
	}
	return d, nil
}

func (s *Store) ListDepartments(_ context.Context) ([]models.Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Department, 0, len(s.departments))
	for _, d := range s.departments {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *Store) ListDoctors(_ context.Context) ([]models.Doctor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Doctor, 0, len(s.doctors))
	for _, d := range s.doctors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DoctorID < out[j].DoctorID })
	return out, nil
}

func (s *Store) GetStaff(_ context.Context, username string) (models.Staff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.staff[username]
	if !ok {
		return models.Staff{}, store.ErrStaffNotFound
	}
	return st, nil
}

// PutDoctor replaces a doctor record, e.g. to toggle availability.
func (s *Store) PutDoctor(doctor models.Doctor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doctors[doctor.DoctorID] = doctor
}

func (s *Store) PutPatient(patient models.Patient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patients[patient.PatientID] = patient
}
