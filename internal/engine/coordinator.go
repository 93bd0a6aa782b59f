package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/estimate"
	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/models"
	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/notify"
	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/queue"
	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/store"
)

type CreateTokenInput struct {
	PatientID    string
	DepartmentID string
	DoctorID     string
	Priority     string
	Notes        string
	CreatedBy    string
}

// resolvePriority applies patient attributes: an explicit emergency always
// wins, then pregnancy, then senior citizen, then the requested value.
func resolvePriority(requested string, patient models.Patient) (models.Priority, error) {
	var explicit models.Priority
	if strings.TrimSpace(requested) != "" {
		p, ok := models.ParsePriority(requested)
		if !ok {
			return "", fmt.Errorf("%w: unknown priority %q", store.ErrValidation, requested)
		}
		explicit = p
	}
	switch {
	case explicit == models.PriorityEmergency:
		return models.PriorityEmergency, nil
	case patient.Pregnant:
		return models.PriorityPregnant, nil
	case patient.SeniorCitizen:
		return models.PrioritySeniorCitizen, nil
	case explicit != "":
		return explicit, nil
	}
	return models.PriorityNormal, nil
}

// CreateToken registers a patient visit and places the new token in WAITING.
// Tokens without a doctor wait in their department's lane and go to whichever
// doctor of that department calls first.
func (e *Engine) CreateToken(ctx context.Context, in CreateTokenInput) (token models.Token, err error) {
	ctx, span := e.startSpan(ctx, "CreateToken",
		attribute.String("patient.id", in.PatientID),
		attribute.String("department.id", in.DepartmentID),
		attribute.String("doctor.id", in.DoctorID))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(in.PatientID) == "" || strings.TrimSpace(in.DepartmentID) == "" {
		return models.Token{}, fmt.Errorf("%w: patient_id and department_id are required", store.ErrValidation)
	}
	patient, err := e.directory.GetPatient(ctx, in.PatientID)
	if err != nil {
		return models.Token{}, err
	}
	department, err := e.directory.GetDepartment(ctx, in.DepartmentID)
	if err != nil {
		return models.Token{}, err
	}
	priority, err := resolvePriority(in.Priority, patient)
	if err != nil {
		return models.Token{}, err
	}

	var l *lane
	var doctor models.Doctor
	if in.DoctorID != "" {
		doctor, err = e.directory.GetDoctor(ctx, in.DoctorID)
		if err != nil {
			return models.Token{}, err
		}
		if doctor.DepartmentID != department.DepartmentID {
			return models.Token{}, fmt.Errorf("%w: doctor does not belong to department", store.ErrValidation)
		}
		if !doctor.Available {
			return models.Token{}, store.ErrDoctorUnavailable
		}
		l = e.doctorLane(doctor)
	} else {
		l = e.departmentLane(department.DepartmentID)
	}

	now := e.now()
	today := e.dayStart(now)

	g := e.readGroup(l)
	g.lock()
	if in.DoctorID != "" && doctor.MaxPatientsPerDay > 0 && l.issuedSince(doctor.DoctorID, today) >= doctor.MaxPatientsPerDay {
		g.unlock()
		return models.Token{}, store.ErrDoctorCapacity
	}
	seq, err := e.sequencer.Next(ctx, store.SequenceScope(department.Code, today))
	if err != nil {
		g.unlock()
		return models.Token{}, fmt.Errorf("allocate token number: %w", err)
	}
	token = models.Token{
		TokenID:      uuid.NewString(),
		TokenNumber:  fmt.Sprintf("%s-%s-%04d", department.Code, today.Format("20060102"), seq),
		Sequence:     seq,
		PatientID:    patient.PatientID,
		DepartmentID: department.DepartmentID,
		DoctorID:     in.DoctorID,
		Priority:     priority,
		Status:       models.StatusWaiting,
		GeneratedAt:  now,
		QueuedAt:     now,
		Notes:        in.Notes,
		CreatedBy:    in.CreatedBy,
	}
	if err = e.tokens.InsertToken(ctx, token); err != nil {
		g.unlock()
		return models.Token{}, err
	}
	if err = l.waiting.Enqueue(token); err != nil {
		g.unlock()
		return models.Token{}, err
	}
	stored := token.Clone()
	l.tokens[token.TokenID] = &stored
	e.register(l, token)
	position, _ := g.rankOf(l, token)
	g.unlock()
	wait := estimate.Compute(position, e.laneAverage(ctx, l), now)

	log.Printf("token created token=%s number=%s lane=%s priority=%s position=%d", token.TokenID, token.TokenNumber, l.key, token.Priority, position)
	e.publish(ctx, eventFor(notify.EventTokenCreated, token, position, wait.WaitMinutes, now))
	return token.Clone(), nil
}

// issuedSince counts tokens issued to doctorID since the given time.
func (l *lane) issuedSince(doctorID string, since time.Time) int {
	count := 0
	for _, t := range l.tokens {
		if t.DoctorID == doctorID && !t.GeneratedAt.Before(since) {
			count++
		}
	}
	return count
}

// CallNext moves the best waiting token for the doctor to CALLED. Candidates
// are the head of the doctor's own lane and the head of the department lane.
// The department's lanes are locked together so every token that moved up
// can be told its new rank.
func (e *Engine) CallNext(ctx context.Context, doctorID string) (token models.Token, err error) {
	ctx, span := e.startSpan(ctx, "CallNext", attribute.String("doctor.id", doctorID))
	defer func() { endSpan(span, err) }()

	doctor, err := e.directory.GetDoctor(ctx, doctorID)
	if err != nil {
		return models.Token{}, err
	}
	own := e.doctorLane(doctor)
	dept := e.departmentLane(doctor.DepartmentID)

	g := e.groupFor(dept)
	g.include(own)
	g.lock()
	before := g.ranks()
	token, err = e.callNextLocked(ctx, doctor, dept, own)
	var moved []rank
	if err == nil {
		moved = e.advanced(before, g.ranks(), "", token.TokenID)
	}
	g.unlock()
	if err != nil {
		return models.Token{}, err
	}

	log.Printf("token transition action=%s token=%s number=%s doctor=%s status=%s", store.ActionCall, token.TokenID, token.TokenNumber, doctorID, token.Status)
	e.publish(ctx, eventFor(notify.EventTokenCalled, token, 0, 0, *token.CalledAt))
	e.publishAdvanced(ctx, moved, *token.CalledAt)
	return token, nil
}

func (e *Engine) callNextLocked(ctx context.Context, doctor models.Doctor, dept, own *lane) (models.Token, error) {
	if own.active != "" {
		return models.Token{}, store.ErrDoctorBusy
	}
	source, entry, ok := pickHead(own, dept)
	if !ok {
		return models.Token{}, store.ErrEmptyQueue
	}
	current, ok := source.tokens[entry.TokenID]
	if !ok {
		return models.Token{}, fmt.Errorf("%w: waiting entry %s has no token", store.ErrInvalidState, entry.TokenID)
	}
	next, err := store.NextStatus(store.ActionCall, current.Status)
	if err != nil {
		return models.Token{}, fmt.Errorf("%w: waiting entry %s is %s", store.ErrInvalidState, entry.TokenID, current.Status)
	}
	now := e.now()
	updated := current.Clone()
	updated.Status = next
	updated.CalledAt = &now
	updated.DoctorID = doctor.DoctorID
	if err := e.tokens.UpdateToken(ctx, updated, current.Status, store.ActionCall); err != nil {
		return models.Token{}, err
	}

	source.waiting.Remove(updated.TokenID)
	if source != own {
		delete(source.tokens, updated.TokenID)
		e.register(own, updated)
	}
	stored := updated.Clone()
	own.tokens[updated.TokenID] = &stored
	own.active = updated.TokenID
	return updated.Clone(), nil
}

func pickHead(own, dept *lane) (*lane, queue.Entry, bool) {
	a, errA := own.waiting.Next()
	b, errB := dept.waiting.Next()
	switch {
	case errA != nil && errB != nil:
		return nil, queue.Entry{}, false
	case errB != nil:
		return own, a, true
	case errA != nil:
		return dept, b, true
	case queue.Less(b, a):
		return dept, b, true
	}
	return own, a, true
}

func bestHead(own, dept *lane) (*models.Token, bool) {
	source, entry, ok := pickHead(own, dept)
	if !ok {
		return nil, false
	}
	t, ok := source.tokens[entry.TokenID]
	return t, ok
}

// outcome is the result of one transition: the updated token, its rank if it
// is waiting afterwards, and the other tokens that moved up.
type outcome struct {
	token    models.Token
	lane     *lane
	position int
	advanced []rank
}

// applyAction runs one status transition on a token. mutate edits the
// candidate copy before it is persisted; commit updates lane structures after
// the store accepted the write. Both run with the token's lane group locked.
func (e *Engine) applyAction(
	ctx context.Context,
	tokenID string,
	action store.Action,
	mutate func(l *lane, t *models.Token, now time.Time),
	commit func(l *lane, prev, next models.Token),
) (outcome, error) {
	g, l, current, err := e.lockTokenGroup(tokenID, e.groupFor)
	if err != nil {
		return outcome{}, err
	}
	defer g.unlock()

	prev := current.Clone()
	to, err := store.NextStatus(action, prev.Status)
	if err != nil {
		return outcome{}, fmt.Errorf("%w: cannot %s a %s token", err, action, prev.Status)
	}
	// A second active token can only come from a conflicting rehydrate. It
	// may be cancelled but nothing else.
	if prev.Status.Active() && l.active != prev.TokenID && action != store.ActionCancelActive {
		return outcome{}, fmt.Errorf("%w: token %s is %s but not in the active slot", store.ErrInvalidState, prev.TokenNumber, prev.Status)
	}
	before := g.ranks()
	next := prev.Clone()
	next.Status = to
	if mutate != nil {
		mutate(l, &next, e.now())
	}
	if err := e.tokens.UpdateToken(ctx, next, prev.Status, action); err != nil {
		return outcome{}, err
	}
	*current = next.Clone()
	if commit != nil {
		commit(l, prev, next)
	}
	log.Printf("token transition action=%s token=%s number=%s lane=%s from=%s to=%s", action, next.TokenID, next.TokenNumber, l.key, prev.Status, next.Status)

	after := g.ranks()
	var upNext string
	if prev.Status.Active() && l.doctorID != "" && l.active == "" {
		if head, ok := g.headFor(l); ok {
			upNext = head.TokenID
		}
	}
	out := outcome{token: next.Clone(), lane: l, advanced: e.advanced(before, after, upNext, prev.TokenID)}
	if r, ok := after[prev.TokenID]; ok {
		out.position = r.position
	}
	return out, nil
}

func freeSlot(l *lane, prev, _ models.Token) {
	if l.active == prev.TokenID {
		l.active = ""
	}
}

// StartConsultation moves a CALLED token to IN_CONSULTATION.
func (e *Engine) StartConsultation(ctx context.Context, tokenID string) (token models.Token, err error) {
	ctx, span := e.startSpan(ctx, "StartConsultation", attribute.String("token.id", tokenID))
	defer func() { endSpan(span, err) }()

	out, err := e.applyAction(ctx, tokenID, store.ActionStart, func(_ *lane, t *models.Token, now time.Time) {
		t.ConsultationStartedAt = &now
	}, nil)
	return out.token, err
}

// EndConsultation completes the active consultation and feeds its duration
// into the doctor's rolling average.
func (e *Engine) EndConsultation(ctx context.Context, tokenID string) (token models.Token, err error) {
	ctx, span := e.startSpan(ctx, "EndConsultation", attribute.String("token.id", tokenID))
	defer func() { endSpan(span, err) }()

	out, err := e.applyAction(ctx, tokenID, store.ActionEnd, func(_ *lane, t *models.Token, now time.Time) {
		t.ConsultationEndedAt = &now
	}, freeSlot)
	if err != nil {
		return models.Token{}, err
	}
	token = out.token
	if token.DoctorID != "" {
		e.averager.Record(token.DoctorID, token.ConsultationDuration())
	}
	e.publish(ctx, eventFor(notify.EventConsultationCompleted, token, 0, 0, *token.ConsultationEndedAt))
	e.publishAdvanced(ctx, out.advanced, *token.ConsultationEndedAt)
	return token, nil
}

// CancelConsultation cancels a CALLED or IN_CONSULTATION token.
func (e *Engine) CancelConsultation(ctx context.Context, tokenID string) (token models.Token, err error) {
	ctx, span := e.startSpan(ctx, "CancelConsultation", attribute.String("token.id", tokenID))
	defer func() { endSpan(span, err) }()

	out, err := e.applyAction(ctx, tokenID, store.ActionCancelActive, func(_ *lane, t *models.Token, now time.Time) {
		t.ConsultationEndedAt = &now
	}, freeSlot)
	if err != nil {
		return models.Token{}, err
	}
	e.publishAdvanced(ctx, out.advanced, e.now())
	return out.token, nil
}

// MarkNoShow records that a called patient did not turn up.
func (e *Engine) MarkNoShow(ctx context.Context, tokenID string) (token models.Token, err error) {
	ctx, span := e.startSpan(ctx, "MarkNoShow", attribute.String("token.id", tokenID))
	defer func() { endSpan(span, err) }()

	out, err := e.applyAction(ctx, tokenID, store.ActionNoShow, nil, freeSlot)
	if err != nil {
		return models.Token{}, err
	}
	e.publishAdvanced(ctx, out.advanced, e.now())
	return out.token, nil
}

// Skip sends a WAITING or CALLED token back to WAITING behind every token of
// its priority band that is already waiting. The call timestamp is cleared.
func (e *Engine) Skip(ctx context.Context, tokenID string) (token models.Token, err error) {
	ctx, span := e.startSpan(ctx, "Skip", attribute.String("token.id", tokenID))
	defer func() { endSpan(span, err) }()

	out, err := e.applyAction(ctx, tokenID, store.ActionSkip, func(l *lane, t *models.Token, now time.Time) {
		queuedAt := now
		if tail, ok := l.waiting.BandTail(t.Priority); ok && !queuedAt.After(tail) {
			queuedAt = tail.Add(time.Microsecond)
		}
		t.QueuedAt = queuedAt
		t.CalledAt = nil
		t.SkipCount++
	}, func(l *lane, prev, next models.Token) {
		if prev.Status == models.StatusWaiting {
			l.waiting.Remove(prev.TokenID)
		}
		freeSlot(l, prev, next)
		if err := l.waiting.Enqueue(next); err != nil {
			log.Printf("skip requeue error token=%s: %v", next.TokenID, err)
		}
	})
	if err != nil {
		return models.Token{}, err
	}
	e.publishAdvanced(ctx, out.advanced, e.now())
	return out.token, nil
}

// CancelWaitingToken withdraws a WAITING token. Cancelling a token that is
// already CANCELLED returns it unchanged.
func (e *Engine) CancelWaitingToken(ctx context.Context, tokenID string) (token models.Token, err error) {
	ctx, span := e.startSpan(ctx, "CancelWaitingToken", attribute.String("token.id", tokenID))
	defer func() { endSpan(span, err) }()

	out, err := e.applyAction(ctx, tokenID, store.ActionCancelWaiting, nil, func(l *lane, prev, _ models.Token) {
		l.waiting.Remove(prev.TokenID)
	})
	if errors.Is(err, store.ErrInvalidTransition) {
		if current, lookupErr := e.Token(ctx, tokenID); lookupErr == nil && current.Status == models.StatusCancelled {
			return current, nil
		}
	}
	if err != nil {
		return models.Token{}, err
	}
	e.publishAdvanced(ctx, out.advanced, e.now())
	return out.token, nil
}

// ChangePriority re-ranks a WAITING token. Its queue time is kept, so it lands
// among its new band by original arrival.
func (e *Engine) ChangePriority(ctx context.Context, tokenID, priority string) (token models.Token, err error) {
	ctx, span := e.startSpan(ctx, "ChangePriority", attribute.String("token.id", tokenID), attribute.String("priority", priority))
	defer func() { endSpan(span, err) }()

	p, ok := models.ParsePriority(priority)
	if !ok {
		return models.Token{}, fmt.Errorf("%w: unknown priority %q", store.ErrValidation, priority)
	}
	out, err := e.applyAction(ctx, tokenID, store.ActionChangePriority, func(_ *lane, t *models.Token, _ time.Time) {
		t.Priority = p
	}, func(l *lane, prev, next models.Token) {
		l.waiting.Remove(prev.TokenID)
		if err := l.waiting.Enqueue(next); err != nil {
			log.Printf("priority requeue error token=%s: %v", next.TokenID, err)
		}
	})
	if err != nil {
		return models.Token{}, err
	}
	now := e.now()
	wait := estimate.Compute(out.position, e.laneAverage(ctx, out.lane), now)
	e.publish(ctx, eventFor(notify.EventPriorityChanged, out.token, out.position, wait.WaitMinutes, now))
	e.publishAdvanced(ctx, out.advanced, now)
	return out.token, nil
}
