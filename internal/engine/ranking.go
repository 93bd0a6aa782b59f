package engine

import (
	"context"
	"sort"
	"time"

	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/estimate"
	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/models"
	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/notify"
	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/queue"
	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/store"
)

// group is a department lane plus doctor lanes of that department, locked
// together so ranks that span lanes are read consistently. Locks go
// department first, then doctor lanes by key.
type group struct {
	dept    *lane
	doctors []*lane
}

func (g *group) lock() {
	if g.dept != nil {
		g.dept.mu.Lock()
	}
	for _, l := range g.doctors {
		l.mu.Lock()
	}
}

func (g *group) unlock() {
	for i := len(g.doctors) - 1; i >= 0; i-- {
		g.doctors[i].mu.Unlock()
	}
	if g.dept != nil {
		g.dept.mu.Unlock()
	}
}

// groupFor returns the lanes whose ranks move when l changes. A doctor lane
// pairs with its department lane; a department lane takes every doctor lane
// of the department known at the time of the call.
func (e *Engine) groupFor(l *lane) *group {
	if l.doctorID != "" {
		g := &group{doctors: []*lane{l}}
		if l.departmentID != "" {
			g.dept = e.departmentLane(l.departmentID)
		}
		return g
	}
	g := &group{dept: l}
	e.mu.RLock()
	for _, other := range e.lanes {
		if other.doctorID != "" && other.departmentID == l.departmentID {
			g.doctors = append(g.doctors, other)
		}
	}
	e.mu.RUnlock()
	sort.Slice(g.doctors, func(i, j int) bool { return g.doctors[i].key < g.doctors[j].key })
	return g
}

// include adds a doctor lane the department scan missed, such as a lane
// created with a stale department.
func (g *group) include(l *lane) {
	for _, d := range g.doctors {
		if d == l {
			return
		}
	}
	g.doctors = append(g.doctors, l)
	sort.Slice(g.doctors, func(i, j int) bool { return g.doctors[i].key < g.doctors[j].key })
}

// readGroup is the smallest group that fixes l's own ranks: a department
// lane alone, or a doctor lane with its department lane if one exists.
func (e *Engine) readGroup(l *lane) *group {
	if l.doctorID == "" {
		return &group{dept: l}
	}
	g := &group{doctors: []*lane{l}}
	if dept, ok := e.existingLane(departmentLaneKey(l.departmentID)); ok {
		g.dept = dept
	}
	return g
}

// lockTokenGroup is lockToken for operations that also need ranks. groupOf
// picks how many neighbouring lanes are locked with the token's lane.
func (e *Engine) lockTokenGroup(tokenID string, groupOf func(*lane) *group) (*group, *lane, *models.Token, error) {
	for attempt := 0; attempt < 3; attempt++ {
		e.mu.RLock()
		key, ok := e.index[tokenID]
		l := e.lanes[key]
		e.mu.RUnlock()
		if !ok || l == nil {
			return nil, nil, nil, store.ErrTokenNotFound
		}
		g := groupOf(l)
		g.lock()
		if t, ok := l.tokens[tokenID]; ok {
			return g, l, t, nil
		}
		g.unlock()
	}
	return nil, nil, nil, store.ErrTokenNotFound
}

// aheadFromDepartment counts department-lane entries CallNext would serve
// before entry.
func aheadFromDepartment(dept *lane, entry queue.Entry) int {
	if dept == nil {
		return 0
	}
	ahead := 0
	for _, other := range dept.waiting.All() {
		if !queue.Less(other, entry) {
			break
		}
		ahead++
	}
	return ahead
}

// mergedPositions ranks a doctor lane's entries against the department lane.
// Both slices are sorted, so one forward pass is enough.
func mergedPositions(own, dept []queue.Entry) []int {
	out := make([]int, len(own))
	j := 0
	for i, entry := range own {
		for j < len(dept) && queue.Less(dept[j], entry) {
			j++
		}
		out[i] = i + 1 + j
	}
	return out
}

// rankOf is the position a waiting token is reported at. Doctor-lane tokens
// include department-lane tokens ranked ahead of them; department-lane tokens
// are ranked within their lane. Callers hold the group lock.
func (g *group) rankOf(l *lane, token models.Token) (int, bool) {
	position, ok := l.waiting.Position(token.TokenID)
	if !ok || l.doctorID == "" {
		return position, ok
	}
	return position + aheadFromDepartment(g.dept, queue.EntryFor(token)), true
}

type rank struct {
	token    models.Token
	lane     *lane
	position int
}

func (g *group) ranks() map[string]rank {
	out := make(map[string]rank)
	var deptEntries []queue.Entry
	if g.dept != nil {
		deptEntries = g.dept.waiting.Snapshot()
		for i, entry := range deptEntries {
			if t, ok := g.dept.tokens[entry.TokenID]; ok {
				out[entry.TokenID] = rank{token: t.Clone(), lane: g.dept, position: i + 1}
			}
		}
	}
	for _, l := range g.doctors {
		entries := l.waiting.Snapshot()
		for i, position := range mergedPositions(entries, deptEntries) {
			if t, ok := l.tokens[entries[i].TokenID]; ok {
				out[entries[i].TokenID] = rank{token: t.Clone(), lane: l, position: position}
			}
		}
	}
	return out
}

// headFor is the token the doctor of l would call next.
func (g *group) headFor(l *lane) (*models.Token, bool) {
	if g.dept == nil {
		entry, err := l.waiting.Next()
		if err != nil {
			return nil, false
		}
		t, ok := l.tokens[entry.TokenID]
		return t, ok
	}
	return bestHead(l, g.dept)
}

// advanced picks tokens that moved forward, within the notification depth.
// upNext, when set, is the token a freed doctor will call and is always kept.
// skip is left out; its own event covers it.
func (e *Engine) advanced(before, after map[string]rank, upNext, skip string) []rank {
	var out []rank
	for id, r := range after {
		if id == skip {
			continue
		}
		prev, seen := before[id]
		moved := seen && r.position < prev.position && r.position <= e.advanceDepth
		if moved || id == upNext {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].position != out[j].position {
			return out[i].position < out[j].position
		}
		return out[i].token.TokenNumber < out[j].token.TokenNumber
	})
	return out
}

// publishAdvanced sends queue.advanced with a fresh estimate per token. It
// runs after the lanes are unlocked since averages may hit the directory.
func (e *Engine) publishAdvanced(ctx context.Context, moved []rank, at time.Time) {
	averages := make(map[string]time.Duration)
	for _, r := range moved {
		average, ok := averages[r.lane.key]
		if !ok {
			average = e.laneAverage(ctx, r.lane)
			averages[r.lane.key] = average
		}
		est := estimate.Compute(r.position, average, at)
		e.publish(ctx, eventFor(notify.EventQueueAdvanced, r.token, r.position, est.WaitMinutes, at))
	}
}
