package engine

import (
	"context"
	"iter"
	"slices"
	"sort"
	"time"

	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/estimate"
	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/models"
	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/store"
)

// LaneSnapshot is a consistent copy of one lane taken under its lock.
type LaneSnapshot struct {
	Key          string
	DoctorID     string
	DepartmentID string
	Active       *models.Token
	Waiting      []models.Token
	Tokens       []models.Token
	// Positions holds the reported rank of each Waiting token. Doctor lanes
	// count department-lane tokens that would be called first.
	Positions []int
	Average   time.Duration
}

// Located is a token together with its rank, read atomically.
type Located struct {
	Token    models.Token
	Position int
	Estimate estimate.Estimate
}

func (e *Engine) Token(_ context.Context, tokenID string) (models.Token, error) {
	l, t, err := e.lockToken(tokenID)
	if err != nil {
		return models.Token{}, err
	}
	defer l.mu.Unlock()
	return t.Clone(), nil
}

// TokenByNumber resolves a printed token number. Tokens generated before the
// retention window are reported as not found even if not yet purged.
func (e *Engine) TokenByNumber(ctx context.Context, tokenNumber string) (models.Token, error) {
	id, ok := e.tokenIDForNumber(tokenNumber)
	if !ok {
		return models.Token{}, store.ErrTokenNotFound
	}
	token, err := e.Token(ctx, id)
	if err != nil {
		return models.Token{}, err
	}
	if token.GeneratedAt.Before(e.RetentionCutoff()) {
		return models.Token{}, store.ErrTokenNotFound
	}
	return token, nil
}

// Locate returns the token with its queue position and wait estimate. Tokens
// that are not WAITING have position 0 and a zero estimate. A doctor-lane
// position includes department-lane tokens the doctor would call first.
func (e *Engine) Locate(ctx context.Context, tokenID string) (Located, error) {
	g, l, t, err := e.lockTokenGroup(tokenID, e.readGroup)
	if err != nil {
		return Located{}, err
	}
	token := t.Clone()
	position, _ := g.rankOf(l, token)
	g.unlock()

	located := Located{Token: token, Position: position}
	if position > 0 {
		located.Estimate = estimate.Compute(position, e.laneAverage(ctx, l), e.now())
	}
	return located, nil
}

// Position is the 1-based rank of a WAITING token within its own lane. ok is
// false for tokens that are not waiting. Locate reports the rank patients see.
func (e *Engine) Position(_ context.Context, tokenID string) (int, bool, error) {
	l, _, err := e.lockToken(tokenID)
	if err != nil {
		return 0, false, err
	}
	defer l.mu.Unlock()
	position, ok := l.waiting.Position(tokenID)
	return position, ok, nil
}

// WaitingList yields the doctor's own waiting tokens in service order. The
// sequence is a snapshot; later changes are not reflected.
func (e *Engine) WaitingList(_ context.Context, doctorID string) iter.Seq[models.Token] {
	l, ok := e.existingLane(doctorLaneKey(doctorID))
	if !ok {
		return slices.Values([]models.Token(nil))
	}
	l.mu.Lock()
	waiting := l.waitingTokens()
	l.mu.Unlock()
	return slices.Values(waiting)
}

// PeekNext returns the token CallNext would pick for the doctor without
// changing anything.
func (e *Engine) PeekNext(ctx context.Context, doctorID string) (models.Token, error) {
	doctor, err := e.directory.GetDoctor(ctx, doctorID)
	if err != nil {
		return models.Token{}, err
	}
	dept := e.departmentLane(doctor.DepartmentID)
	own := e.doctorLane(doctor)
	dept.mu.Lock()
	own.mu.Lock()
	defer dept.mu.Unlock()
	defer own.mu.Unlock()
	head, ok := bestHead(own, dept)
	if !ok {
		return models.Token{}, store.ErrEmptyQueue
	}
	return head.Clone(), nil
}

func (e *Engine) DoctorLane(ctx context.Context, doctorID string) LaneSnapshot {
	l, ok := e.existingLane(doctorLaneKey(doctorID))
	if !ok {
		return LaneSnapshot{
			Key:      doctorLaneKey(doctorID),
			DoctorID: doctorID,
			Average:  e.doctorAverage(ctx, doctorID),
		}
	}
	return e.snapshot(ctx, l)
}

func (e *Engine) DepartmentLane(ctx context.Context, departmentID string) LaneSnapshot {
	l, ok := e.existingLane(departmentLaneKey(departmentID))
	if !ok {
		return LaneSnapshot{
			Key:          departmentLaneKey(departmentID),
			DepartmentID: departmentID,
			Average:      e.departmentAverage(ctx, departmentID),
		}
	}
	return e.snapshot(ctx, l)
}

// Lanes snapshots every lane, ordered by key. Each lane is copied under its
// own lock, so lanes are individually but not mutually consistent.
func (e *Engine) Lanes(ctx context.Context) []LaneSnapshot {
	e.mu.RLock()
	lanes := make([]*lane, 0, len(e.lanes))
	for _, l := range e.lanes {
		lanes = append(lanes, l)
	}
	e.mu.RUnlock()
	sort.Slice(lanes, func(i, j int) bool { return lanes[i].key < lanes[j].key })

	out := make([]LaneSnapshot, 0, len(lanes))
	for _, l := range lanes {
		out = append(out, e.snapshot(ctx, l))
	}
	return out
}

func (e *Engine) snapshot(ctx context.Context, l *lane) LaneSnapshot {
	g := e.readGroup(l)
	g.lock()
	snap := LaneSnapshot{
		Key:          l.key,
		DoctorID:     l.doctorID,
		DepartmentID: l.departmentID,
		Waiting:      l.waitingTokens(),
		Tokens:       make([]models.Token, 0, len(l.tokens)),
	}
	if t, ok := l.tokens[l.active]; ok && l.active != "" {
		active := t.Clone()
		snap.Active = &active
	}
	for _, t := range l.tokens {
		snap.Tokens = append(snap.Tokens, t.Clone())
	}
	snap.Positions = make([]int, len(snap.Waiting))
	for i, t := range snap.Waiting {
		snap.Positions[i], _ = g.rankOf(l, t)
	}
	g.unlock()

	sort.Slice(snap.Tokens, func(i, j int) bool {
		if !snap.Tokens[i].GeneratedAt.Equal(snap.Tokens[j].GeneratedAt) {
			return snap.Tokens[i].GeneratedAt.Before(snap.Tokens[j].GeneratedAt)
		}
		return snap.Tokens[i].TokenNumber < snap.Tokens[j].TokenNumber
	})
	snap.Average = e.laneAverage(ctx, l)
	return snap
}

func (l *lane) waitingTokens() []models.Token {
	out := make([]models.Token, 0, l.waiting.Len())
	for _, entry := range l.waiting.All() {
		if t, ok := l.tokens[entry.TokenID]; ok {
			out = append(out, t.Clone())
		}
	}
	return out
}

// AverageConsultation is the duration estimates use for the doctor.
func (e *Engine) AverageConsultation(ctx context.Context, doctorID string) time.Duration {
	return e.doctorAverage(ctx, doctorID)
}

func (e *Engine) laneAverage(ctx context.Context, l *lane) time.Duration {
	if l.doctorID != "" {
		return e.doctorAverage(ctx, l.doctorID)
	}
	return e.departmentAverage(ctx, l.departmentID)
}

// doctorAverage falls back to the doctor's configured consultation length,
// then to the global default, until enough samples exist.
func (e *Engine) doctorAverage(ctx context.Context, doctorID string) time.Duration {
	fallback := e.averager.Default()
	if doctor, err := e.directory.GetDoctor(ctx, doctorID); err == nil && doctor.ConsultationDurationMinutes > 0 {
		fallback = time.Duration(doctor.ConsultationDurationMinutes) * time.Minute
	}
	return e.averager.Average(doctorID, fallback)
}

// departmentAverage is the mean over the department's doctors.
func (e *Engine) departmentAverage(ctx context.Context, departmentID string) time.Duration {
	doctors, err := e.directory.ListDoctors(ctx)
	if err != nil {
		return e.averager.Default()
	}
	var total time.Duration
	count := 0
	for _, doctor := range doctors {
		if doctor.DepartmentID != departmentID {
			continue
		}
		total += e.doctorAverage(ctx, doctor.DoctorID)
		count++
	}
	if count == 0 {
		return e.averager.Default()
	}
	return total / time.Duration(count)
}
