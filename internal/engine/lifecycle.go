package engine

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/models"
)

// Rehydrate loads tokens inside the retention window from the TokenStore and
// rebuilds waiting sets, active slots and rolling averages. It is meant to run
// once before the engine serves traffic.
func (e *Engine) Rehydrate(ctx context.Context) (err error) {
	ctx, span := e.startSpan(ctx, "Rehydrate")
	defer func() { endSpan(span, err) }()

	tokens, err := e.tokens.ListTokensSince(ctx, e.RetentionCutoff())
	if err != nil {
		return fmt.Errorf("rehydrate: %w", err)
	}

	var completed []models.Token
	loaded := 0
	for _, token := range tokens {
		key := laneKeyFor(token)
		l := e.laneFor(key, token.DoctorID, token.DepartmentID)
		l.mu.Lock()
		if _, exists := l.tokens[token.TokenID]; exists {
			l.mu.Unlock()
			continue
		}
		switch {
		case token.Status == models.StatusWaiting:
			if err := l.waiting.Enqueue(token); err != nil {
				log.Printf("rehydrate skip token=%s: %v", token.TokenID, err)
				l.mu.Unlock()
				continue
			}
		case token.Status.Active():
			if l.active != "" {
				log.Printf("rehydrate conflict lane=%s active=%s extra=%s; extra can only be cancelled", l.key, l.active, token.TokenID)
			} else {
				l.active = token.TokenID
			}
		case token.Status == models.StatusCompleted && token.ConsultationEndedAt != nil:
			completed = append(completed, token)
		}
		stored := token.Clone()
		l.tokens[token.TokenID] = &stored
		l.mu.Unlock()
		e.register(l, token)
		loaded++
	}

	sort.Slice(completed, func(i, j int) bool {
		return completed[i].ConsultationEndedAt.Before(*completed[j].ConsultationEndedAt)
	})
	for _, token := range completed {
		if token.DoctorID != "" {
			e.averager.Record(token.DoctorID, token.ConsultationDuration())
		}
	}
	log.Printf("engine rehydrated tokens=%d completed=%d", loaded, len(completed))
	return nil
}

// PurgeExpired drops tokens generated before the retention window from memory.
// A token still holding a doctor's active slot is kept.
func (e *Engine) PurgeExpired(ctx context.Context) int {
	_, span := e.startSpan(ctx, "PurgeExpired")
	defer span.End()

	cutoff := e.RetentionCutoff()
	e.mu.RLock()
	lanes := make([]*lane, 0, len(e.lanes))
	for _, l := range e.lanes {
		lanes = append(lanes, l)
	}
	e.mu.RUnlock()

	purged := 0
	for _, l := range lanes {
		l.mu.Lock()
		var expired []models.Token
		for id, t := range l.tokens {
			if id == l.active || !t.GeneratedAt.Before(cutoff) {
				continue
			}
			l.waiting.Remove(id)
			delete(l.tokens, id)
			expired = append(expired, *t)
		}
		l.mu.Unlock()
		for _, t := range expired {
			e.unregister(t)
		}
		purged += len(expired)
	}
	log.Printf("retention purge cutoff=%s purged=%d", cutoff.Format("2006-01-02"), purged)
	return purged
}
