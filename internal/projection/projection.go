// Package projection builds the read views (live board, per-doctor queues,
// dashboard counters, token self-lookup) from engine snapshots. It never
// mutates state and recomputes every figure on each call.
package projection

import (
	"context"
	"sort"
	"time"

	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/engine"
	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/estimate"
	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/models"
	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/store"
)

// Source is the read side of the engine.
type Source interface {
	Locate(ctx context.Context, tokenID string) (engine.Located, error)
	TokenByNumber(ctx context.Context, tokenNumber string) (models.Token, error)
	DoctorLane(ctx context.Context, doctorID string) engine.LaneSnapshot
	DepartmentLane(ctx context.Context, departmentID string) engine.LaneSnapshot
	Lanes(ctx context.Context) []engine.LaneSnapshot
	AverageConsultation(ctx context.Context, doctorID string) time.Duration
	Today() time.Time
}

type Service struct {
	source    Source
	directory store.Directory
	now       func() time.Time
}

func New(source Source, directory store.Directory, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{source: source, directory: directory, now: now}
}

// names caches directory rows for the duration of one read.
type names struct {
	departments map[string]models.Department
	doctors     map[string]models.Doctor
	patients    map[string]models.Patient
	directory   store.Directory
}

func (s *Service) loadNames(ctx context.Context) (*names, error) {
	departments, err := s.directory.ListDepartments(ctx)
	if err != nil {
		return nil, err
	}
	doctors, err := s.directory.ListDoctors(ctx)
	if err != nil {
		return nil, err
	}
	n := &names{
		departments: make(map[string]models.Department, len(departments)),
		doctors:     make(map[string]models.Doctor, len(doctors)),
		patients:    make(map[string]models.Patient),
		directory:   s.directory,
	}
	for _, d := range departments {
		n.departments[d.DepartmentID] = d
	}
	for _, d := range doctors {
		n.doctors[d.DoctorID] = d
	}
	return n, nil
}

func (n *names) patient(ctx context.Context, patientID string) models.Patient {
	if p, ok := n.patients[patientID]; ok {
		return p
	}
	p, err := n.directory.GetPatient(ctx, patientID)
	if err != nil {
		p = models.Patient{PatientID: patientID}
	}
	n.patients[patientID] = p
	return p
}

// tokenView decorates a token. Patient names are only filled when
// withPatient is set; public boards show token numbers only.
func (n *names) tokenView(ctx context.Context, token models.Token, est estimate.Estimate, withPatient bool) models.TokenView {
	view := models.TokenView{
		Token:                token,
		QueuePosition:        est.QueuePosition,
		PatientsAhead:        est.PatientsAhead,
		EstimatedWaitMinutes: est.WaitMinutes,
	}
	if est.QueuePosition > 0 {
		serviceTime := est.ServiceTime
		view.EstimatedServiceTime = &serviceTime
	}
	if d, ok := n.departments[token.DepartmentID]; ok {
		view.DepartmentName = d.Name
		view.DepartmentCode = d.Code
	}
	if d, ok := n.doctors[token.DoctorID]; ok {
		view.DoctorName = d.Name
		view.RoomNumber = d.RoomNumber
	}
	if withPatient {
		view.PatientName = n.patient(ctx, token.PatientID).Name
	}
	return view
}

func (s *Service) queueView(ctx context.Context, n *names, snap engine.LaneSnapshot) models.DoctorQueueView {
	now := s.now()
	view := models.DoctorQueueView{
		DepartmentID:           snap.DepartmentID,
		DoctorID:               snap.DoctorID,
		WaitingTokens:          make([]models.TokenView, 0, len(snap.Waiting)),
		TotalWaiting:           len(snap.Waiting),
		AverageWaitTimeMinutes: estimate.Minutes(snap.Average),
		LastUpdated:            now,
	}
	if d, ok := n.doctors[snap.DoctorID]; ok {
		view.DoctorName = d.Name
		view.RoomNumber = d.RoomNumber
		view.DepartmentID = d.DepartmentID
	}
	if d, ok := n.departments[view.DepartmentID]; ok {
		view.DepartmentName = d.Name
	}
	if snap.Active != nil {
		current := n.tokenView(ctx, *snap.Active, estimate.Estimate{}, false)
		view.CurrentToken = &current
	}
	for i, token := range snap.Waiting {
		est := estimate.Compute(positionAt(snap, i), snap.Average, now)
		view.WaitingTokens = append(view.WaitingTokens, n.tokenView(ctx, token, est, false))
	}
	return view
}

// positionAt is the reported rank of the i-th waiting token of snap.
func positionAt(snap engine.LaneSnapshot, i int) int {
	if len(snap.Positions) == len(snap.Waiting) {
		return snap.Positions[i]
	}
	return i + 1
}

// LiveBoard lists every lane that has a waiting or active token. Department
// lanes appear with an empty doctor id.
func (s *Service) LiveBoard(ctx context.Context) ([]models.DoctorQueueView, error) {
	n, err := s.loadNames(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.DoctorQueueView
	for _, snap := range s.source.Lanes(ctx) {
		if snap.Active == nil && len(snap.Waiting) == 0 {
			continue
		}
		out = append(out, s.queueView(ctx, n, snap))
	}
	sortQueues(out)
	return out, nil
}

func (s *Service) QueueByDoctor(ctx context.Context, doctorID string) (models.DoctorQueueView, error) {
	if _, err := s.directory.GetDoctor(ctx, doctorID); err != nil {
		return models.DoctorQueueView{}, err
	}
	n, err := s.loadNames(ctx)
	if err != nil {
		return models.DoctorQueueView{}, err
	}
	return s.queueView(ctx, n, s.source.DoctorLane(ctx, doctorID)), nil
}

// QueueByDepartment returns the department's shared lane followed by one view
// per doctor of the department.
func (s *Service) QueueByDepartment(ctx context.Context, departmentID string) ([]models.DoctorQueueView, error) {
	if _, err := s.directory.GetDepartment(ctx, departmentID); err != nil {
		return nil, err
	}
	n, err := s.loadNames(ctx)
	if err != nil {
		return nil, err
	}
	out := []models.DoctorQueueView{s.queueView(ctx, n, s.source.DepartmentLane(ctx, departmentID))}
	var doctors []models.DoctorQueueView
	for _, doctor := range n.doctors {
		if doctor.DepartmentID != departmentID {
			continue
		}
		doctors = append(doctors, s.queueView(ctx, n, s.source.DoctorLane(ctx, doctor.DoctorID)))
	}
	sortQueues(doctors)
	return append(out, doctors...), nil
}

func sortQueues(views []models.DoctorQueueView) {
	sort.SliceStable(views, func(i, j int) bool {
		if views[i].DepartmentName != views[j].DepartmentName {
			return views[i].DepartmentName < views[j].DepartmentName
		}
		if views[i].DoctorName != views[j].DoctorName {
			return views[i].DoctorName < views[j].DoctorName
		}
		return views[i].DoctorID < views[j].DoctorID
	})
}

// TokenStatus is the patient self-lookup by printed token number.
func (s *Service) TokenStatus(ctx context.Context, tokenNumber string) (models.TokenView, error) {
	token, err := s.source.TokenByNumber(ctx, tokenNumber)
	if err != nil {
		return models.TokenView{}, err
	}
	return s.TokenByID(ctx, token.TokenID)
}

func (s *Service) TokenByID(ctx context.Context, tokenID string) (models.TokenView, error) {
	located, err := s.source.Locate(ctx, tokenID)
	if err != nil {
		return models.TokenView{}, err
	}
	n, err := s.loadNames(ctx)
	if err != nil {
		return models.TokenView{}, err
	}
	return n.tokenView(ctx, located.Token, located.Estimate, true), nil
}

// ActiveConsultations lists tokens currently holding a doctor's slot.
func (s *Service) ActiveConsultations(ctx context.Context) ([]models.TokenView, error) {
	n, err := s.loadNames(ctx)
	if err != nil {
		return nil, err
	}
	out := []models.TokenView{}
	for _, snap := range s.source.Lanes(ctx) {
		if snap.Active != nil {
			out = append(out, n.tokenView(ctx, *snap.Active, estimate.Estimate{}, true))
		}
	}
	return out, nil
}

// PatientTokens lists the patient's tokens generated today, oldest first.
func (s *Service) PatientTokens(ctx context.Context, patientID string) ([]models.TokenView, error) {
	if _, err := s.directory.GetPatient(ctx, patientID); err != nil {
		return nil, err
	}
	n, err := s.loadNames(ctx)
	if err != nil {
		return nil, err
	}
	today := s.source.Today()
	now := s.now()
	out := []models.TokenView{}
	for _, snap := range s.source.Lanes(ctx) {
		for i, token := range snap.Waiting {
			if token.PatientID == patientID && !token.GeneratedAt.Before(today) {
				out = append(out, n.tokenView(ctx, token, estimate.Compute(positionAt(snap, i), snap.Average, now), true))
			}
		}
		for _, token := range snap.Tokens {
			if token.PatientID == patientID && token.Status != models.StatusWaiting && !token.GeneratedAt.Before(today) {
				out = append(out, n.tokenView(ctx, token, estimate.Estimate{}, true))
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].GeneratedAt.Before(out[j].GeneratedAt)
	})
	return out, nil
}

// Dashboard counts today's tokens by status. With a doctor id it is limited
// to tokens assigned to that doctor; shared department tokens are only
// counted in the hospital-wide view.
func (s *Service) Dashboard(ctx context.Context, doctorID string) (models.DashboardStats, error) {
	n, err := s.loadNames(ctx)
	if err != nil {
		return models.DashboardStats{}, err
	}
	if doctorID != "" {
		if _, ok := n.doctors[doctorID]; !ok {
			return models.DashboardStats{}, store.ErrDoctorNotFound
		}
	}
	stats := models.DashboardStats{
		DoctorID:            doctorID,
		StatusWiseCount:     make(map[models.Status]int, len(models.AllStatuses)),
		DepartmentWiseCount: make(map[string]int),
	}
	for _, status := range models.AllStatuses {
		stats.StatusWiseCount[status] = 0
	}
	today := s.source.Today()
	for _, snap := range s.source.Lanes(ctx) {
		for _, token := range snap.Tokens {
			if token.GeneratedAt.Before(today) {
				continue
			}
			if doctorID != "" && token.DoctorID != doctorID {
				continue
			}
			stats.TotalPatientsToday++
			stats.StatusWiseCount[token.Status]++
			department := token.DepartmentID
			if d, ok := n.departments[department]; ok {
				department = d.Name
			}
			stats.DepartmentWiseCount[department]++
		}
	}
	stats.TotalWaiting = stats.StatusWiseCount[models.StatusWaiting]
	stats.TotalCalled = stats.StatusWiseCount[models.StatusCalled]
	stats.TotalInConsultation = stats.StatusWiseCount[models.StatusInConsultation]
	stats.TotalCompleted = stats.StatusWiseCount[models.StatusCompleted]
	stats.TotalCancelled = stats.StatusWiseCount[models.StatusCancelled]
	stats.TotalNoShow = stats.StatusWiseCount[models.StatusNoShow]
	stats.AverageWaitTime = estimate.Minutes(s.averageConsultation(ctx, n, doctorID))
	return stats, nil
}

func (s *Service) averageConsultation(ctx context.Context, n *names, doctorID string) time.Duration {
	if doctorID != "" {
		return s.source.AverageConsultation(ctx, doctorID)
	}
	if len(n.doctors) == 0 {
		return estimate.DefaultConsultation
	}
	var total time.Duration
	for id := range n.doctors {
		total += s.source.AverageConsultation(ctx, id)
	}
	return total / time.Duration(len(n.doctors))
}
