// Package display holds the notifications currently shown to the operator.
package display

import (
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/nhle/frontdesk-notify/internal/events"
	"github.com/nhle/frontdesk-notify/internal/model"
)

// DefaultMaxVisible bounds the queue when no size is configured.
const DefaultMaxVisible = 5

// Queue is a bounded, most-recent-first list of live notifications with
// per-item auto-hide timers. It is safe for concurrent use.
type Queue struct {
	max   int
	clock clock.Clock
	bus   *events.Bus
	log   *logrus.Entry

	mu       sync.Mutex
	items    []model.Notification
	timers   map[string]*clock.Timer
	expanded map[string]bool
}

// NewQueue returns a queue holding at most maxVisible notifications.
func NewQueue(maxVisible int, clk clock.Clock, bus *events.Bus, logger *logrus.Entry) *Queue {
	if maxVisible <= 0 {
		maxVisible = DefaultMaxVisible
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Queue{
		max:      maxVisible,
		clock:    clk,
		bus:      bus,
		log:      logger.WithField("component", "display"),
		timers:   make(map[string]*clock.Timer),
		expanded: make(map[string]bool),
	}
}

// Push inserts n at the head, replacing any live notification with the
// same id, and evicts from the tail when over capacity.
func (q *Queue) Push(n model.Notification) {
	var removed []events.NotificationRemoved

	q.mu.Lock()
	if q.indexOf(n.ID) >= 0 {
		q.removeLocked(n.ID)
	}
	q.items = append([]model.Notification{n}, q.items...)
	for len(q.items) > q.max {
		tail := q.items[len(q.items)-1]
		q.removeLocked(tail.ID)
		removed = append(removed, events.NotificationRemoved{ID: tail.ID, Reason: events.RemovedEvicted})
	}
	q.armLocked(n)
	q.mu.Unlock()

	for _, r := range removed {
		q.log.WithField("id", r.ID).Debug("notification evicted")
		q.bus.Publish(r)
	}
}

// Dismiss removes id. Absent ids are ignored.
func (q *Queue) Dismiss(id string) {
	q.remove(id, events.RemovedDismissed)
}

// Expand suppresses auto-hide for id while it is expanded.
func (q *Queue) Expand(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.indexOf(id) < 0 {
		return
	}
	q.expanded[id] = true
	if t, ok := q.timers[id]; ok {
		t.Stop()
		delete(q.timers, id)
	}
}

// Collapse ends expansion and re-arms auto-hide with the full duration.
func (q *Queue) Collapse(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.indexOf(id)
	if i < 0 || !q.expanded[id] {
		return
	}
	delete(q.expanded, id)
	q.armLocked(q.items[i])
}

// Toggle flips the expansion state of id.
func (q *Queue) Toggle(id string) {
	if q.IsExpanded(id) {
		q.Collapse(id)
	} else {
		q.Expand(id)
	}
}

// IsExpanded reports whether id is expanded.
func (q *Queue) IsExpanded(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.expanded[id]
}

// Items returns a snapshot, most recent first.
func (q *Queue) Items() []model.Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]model.Notification, len(q.items))
	copy(out, q.items)
	return out
}

// Len returns the number of live notifications.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear removes every notification.
func (q *Queue) Clear() {
	q.mu.Lock()
	ids := make([]string, len(q.items))
	for i, n := range q.items {
		ids[i] = n.ID
	}
	for _, id := range ids {
		q.removeLocked(id)
	}
	q.mu.Unlock()

	for _, id := range ids {
		q.bus.Publish(events.NotificationRemoved{ID: id, Reason: events.RemovedCleared})
	}
}

func (q *Queue) remove(id string, reason events.RemovalReason) {
	q.mu.Lock()
	ok := q.removeLocked(id)
	q.mu.Unlock()
	if !ok {
		return
	}
	q.log.WithFields(logrus.Fields{"id": id, "reason": reason}).Debug("notification removed")
	q.bus.Publish(events.NotificationRemoved{ID: id, Reason: reason})
}

func (q *Queue) removeLocked(id string) bool {
	i := q.indexOf(id)
	if i < 0 {
		return false
	}
	q.items = append(q.items[:i], q.items[i+1:]...)
	if t, ok := q.timers[id]; ok {
		t.Stop()
		delete(q.timers, id)
	}
	delete(q.expanded, id)
	return true
}

func (q *Queue) armLocked(n model.Notification) {
	if t, ok := q.timers[n.ID]; ok {
		t.Stop()
		delete(q.timers, n.ID)
	}
	if !n.AutoHide || n.Duration <= 0 {
		return
	}

	var timer *clock.Timer
	timer = q.clock.AfterFunc(n.Duration, func() {
		q.mu.Lock()
		// A newer timer (collapse, re-push) owns the id now.
		if q.timers[n.ID] != timer {
			q.mu.Unlock()
			return
		}
		delete(q.timers, n.ID)
		q.mu.Unlock()
		q.remove(n.ID, events.RemovedExpired)
	})
	q.timers[n.ID] = timer
}

func (q *Queue) indexOf(id string) int {
	for i, n := range q.items {
		if n.ID == id {
			return i
		}
	}
	return -1
}
