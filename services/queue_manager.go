package services

import (
	"sort"

	"trivia-kiosk/models"
)

// QueueManager owns the ordered list of waiting participants and the
// currently active one. Like the state machine it is only ever touched
// from the reconciler loop, so it carries no locking of its own.
type QueueManager struct {
	entries []*models.Participant
	current *models.Participant

	// manual is set once an admin reorders; from then on arrival order
	// is whatever the admin left plus appends, not created_at order.
	manual bool
}

func NewQueueManager() *QueueManager {
	return &QueueManager{}
}

// Reset drops all queue state. Called on every session rebind.
func (q *QueueManager) Reset() {
	q.entries = nil
	q.current = nil
	q.manual = false
}

func (q *QueueManager) Len() int { return len(q.entries) }

// Current returns the active participant, nil when none is bound.
func (q *QueueManager) Current() *models.Participant {
	if q.current == nil {
		return nil
	}
	copied := *q.current
	return &copied
}

func (q *QueueManager) SetCurrent(p *models.Participant) {
	q.current = p
}

// Peek returns the head of the queue without removing it.
func (q *QueueManager) Peek() *models.Participant {
	if len(q.entries) == 0 {
		return nil
	}
	copied := *q.entries[0]
	return &copied
}

// Enqueue inserts or refreshes a participant. An entry already present
// is replaced in place so a metadata-only update never jumps the line.
// Returns true when the queue changed.
func (q *QueueManager) Enqueue(p *models.Participant) bool {
	if p == nil || !p.Waiting() {
		return false
	}
	if q.current != nil && q.current.ID == p.ID {
		q.current = p
		return true
	}
	for i, existing := range q.entries {
		if existing.ID == p.ID {
			q.entries[i] = p
			return true
		}
	}

	q.entries = append(q.entries, p)
	if !q.manual {
		q.sortByArrival()
	}
	return true
}

// Dequeue removes a participant by id, wherever it sits.
func (q *QueueManager) Dequeue(participantID string) bool {
	for i, existing := range q.entries {
		if existing.ID == participantID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

// ActivateNext pops the head, marks it playing and binds it as current.
// With an empty queue and a participant already active this is a no-op
// and the existing current is returned.
func (q *QueueManager) ActivateNext() *models.Participant {
	if len(q.entries) == 0 {
		return q.Current()
	}

	next := q.entries[0]
	q.entries = q.entries[1:]
	next.Status = models.ParticipantPlaying
	q.current = next

	copied := *next
	return &copied
}

// Reorder replaces the queue ordering wholesale with the given id
// sequence (admin drag-and-drop). Ids not present are ignored; entries
// missing from the list keep their relative order at the tail. There is
// no durable order column, so nothing is persisted.
func (q *QueueManager) Reorder(orderedIDs []string) {
	if len(orderedIDs) == 0 {
		return
	}

	byID := make(map[string]*models.Participant, len(q.entries))
	for _, e := range q.entries {
		byID[e.ID] = e
	}

	reordered := make([]*models.Participant, 0, len(q.entries))
	seen := make(map[string]bool, len(orderedIDs))
	for _, id := range orderedIDs {
		if e, ok := byID[id]; ok && !seen[id] {
			reordered = append(reordered, e)
			seen[id] = true
		}
	}
	for _, e := range q.entries {
		if !seen[e.ID] {
			reordered = append(reordered, e)
		}
	}

	q.entries = reordered
	q.manual = true
}

// CleanupCompleted drops entries whose participant has since been
// completed or disqualified elsewhere, and clears a current participant
// that is no longer playing. Returns the removed ids so the caller can
// prune its dedup ledger.
func (q *QueueManager) CleanupCompleted() []string {
	var removed []string
	kept := q.entries[:0]
	for _, e := range q.entries {
		if e.Waiting() {
			kept = append(kept, e)
		} else {
			removed = append(removed, e.ID)
		}
	}
	q.entries = kept

	if q.current != nil && !q.current.Waiting() {
		removed = append(removed, q.current.ID)
		q.current = nil
	}
	return removed
}

// Snapshot returns a copy of the waiting queue in order.
func (q *QueueManager) Snapshot() []models.Participant {
	out := make([]models.Participant, len(q.entries))
	for i, e := range q.entries {
		out[i] = *e
	}
	return out
}

// sortByArrival keeps created_at ascending ordering deterministic
// across repeated polls: ties break on participant id.
func (q *QueueManager) sortByArrival() {
	sort.SliceStable(q.entries, func(i, j int) bool {
		a, b := q.entries[i], q.entries[j]
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}
