// Package engine owns the live queue state and is the only place token
// status changes.
//
// State is split into lanes: one per doctor and one per department for tokens
// issued to "any available doctor". Each lane has its own mutex, so doctors
// never contend with each other. Lock order is department lane before doctor
// lane; the registry lock (Engine.mu) is always taken last and held briefly.
//
// Every mutation is written to the TokenStore while the lane lock is held and
// only applied in memory once the write succeeds.
package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/estimate"
	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/models"
	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/notify"
	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/queue"
	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/store"
)

type Options struct {
	Averager      *estimate.Averager
	Notifier      notify.Notifier
	Location      *time.Location
	RetentionDays int
	Now           func() time.Time
	// AdvanceDepth bounds queue.advanced events to tokens at or above this
	// position. Defaults to 5.
	AdvanceDepth int
}

type Engine struct {
	tokens    store.TokenStore
	sequencer store.Sequencer
	directory store.Directory
	averager  *estimate.Averager
	notifier  notify.Notifier
	loc       *time.Location
	retention int
	now       func() time.Time
	tracer    trace.Tracer

	advanceDepth int

	mu      sync.RWMutex
	lanes   map[string]*lane
	index   map[string]string
	numbers map[string]string
}

type lane struct {
	mu           sync.Mutex
	key          string
	doctorID     string
	departmentID string
	waiting      *queue.WaitingSet
	active       string
	tokens       map[string]*models.Token
}

func New(tokens store.TokenStore, sequencer store.Sequencer, directory store.Directory, opts Options) *Engine {
	averager := opts.Averager
	if averager == nil {
		averager = estimate.NewAverager(estimate.Config{})
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	retention := opts.RetentionDays
	if retention <= 0 {
		retention = 1
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	depth := opts.AdvanceDepth
	if depth <= 0 {
		depth = 5
	}
	return &Engine{
		tokens:    tokens,
		sequencer: sequencer,
		directory: directory,
		averager:  averager,
		notifier:  notifier,
		loc:       loc,
		retention: retention,
		now:       now,
		tracer:    otel.Tracer("github.com/RakshitSrivastava-13/SmartQueueManagement/internal/engine"),
		lanes:     make(map[string]*lane),
		index:     make(map[string]string),
		numbers:   make(map[string]string),

		advanceDepth: depth,
	}
}

func doctorLaneKey(doctorID string) string {
	return "doctor:" + doctorID
}

func departmentLaneKey(departmentID string) string {
	return "department:" + departmentID
}

func laneKeyFor(token models.Token) string {
	if token.DoctorID != "" {
		return doctorLaneKey(token.DoctorID)
	}
	return departmentLaneKey(token.DepartmentID)
}

func (e *Engine) laneFor(key, doctorID, departmentID string) *lane {
	e.mu.RLock()
	l, ok := e.lanes[key]
	e.mu.RUnlock()
	if ok {
		return l
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if l, ok = e.lanes[key]; ok {
		return l
	}
	l = &lane{
		key:          key,
		doctorID:     doctorID,
		departmentID: departmentID,
		waiting:      queue.NewWaitingSet(),
		tokens:       make(map[string]*models.Token),
	}
	e.lanes[key] = l
	return l
}

func (e *Engine) doctorLane(doctor models.Doctor) *lane {
	return e.laneFor(doctorLaneKey(doctor.DoctorID), doctor.DoctorID, doctor.DepartmentID)
}

func (e *Engine) departmentLane(departmentID string) *lane {
	return e.laneFor(departmentLaneKey(departmentID), "", departmentID)
}

func (e *Engine) existingLane(key string) (*lane, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	l, ok := e.lanes[key]
	return l, ok
}

func (e *Engine) register(l *lane, token models.Token) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.index[token.TokenID] = l.key
	e.numbers[token.TokenNumber] = token.TokenID
}

func (e *Engine) unregister(token models.Token) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.index, token.TokenID)
	delete(e.numbers, token.TokenNumber)
}

// lockToken locks the lane currently holding tokenID. A token moves lanes at
// most once (department to doctor on call), so a short retry loop suffices.
func (e *Engine) lockToken(tokenID string) (*lane, *models.Token, error) {
	for attempt := 0; attempt < 3; attempt++ {
		e.mu.RLock()
		key, ok := e.index[tokenID]
		l := e.lanes[key]
		e.mu.RUnlock()
		if !ok || l == nil {
			return nil, nil, store.ErrTokenNotFound
		}
		l.mu.Lock()
		if t, ok := l.tokens[tokenID]; ok {
			return l, t, nil
		}
		l.mu.Unlock()
	}
	return nil, nil, store.ErrTokenNotFound
}

func (e *Engine) tokenIDForNumber(tokenNumber string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	id, ok := e.numbers[tokenNumber]
	return id, ok
}

// dayStart is midnight of t's day in the engine's location.
func (e *Engine) dayStart(t time.Time) time.Time {
	t = t.In(e.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, e.loc)
}

// RetentionCutoff is the earliest generatedAt still served by lookups.
func (e *Engine) RetentionCutoff() time.Time {
	return e.dayStart(e.now()).AddDate(0, 0, -(e.retention - 1))
}

func (e *Engine) Today() time.Time {
	return e.dayStart(e.now())
}

func (e *Engine) publish(ctx context.Context, events ...notify.Event) {
	for _, event := range events {
		if err := e.notifier.Notify(ctx, event); err != nil {
			log.Printf("notify error type=%s token=%s: %v", event.Type, event.TokenNumber, err)
		}
	}
}

func (e *Engine) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "engine."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func eventFor(eventType string, token models.Token, position int, waitMinutes int, at time.Time) notify.Event {
	return notify.Event{
		Type:                 eventType,
		TokenID:              token.TokenID,
		TokenNumber:          token.TokenNumber,
		PatientID:            token.PatientID,
		DepartmentID:         token.DepartmentID,
		DoctorID:             token.DoctorID,
		Status:               string(token.Status),
		QueuePosition:        position,
		EstimatedWaitMinutes: waitMinutes,
		OccurredAt:           at,
	}
}
