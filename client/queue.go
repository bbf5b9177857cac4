// Package client provides the resilience layer a messaging frontend
// embeds: a durable offline send queue, a polling fallback for unread
// counts, and a reconnect helper for the websocket transport.
package client

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Queued message states.
const (
	StatePending = "pending"
	StateSending = "sending"
	StateSent    = "sent"
	StateFailed  = "failed"
)

const maxAttempts = 5

// backoffSchedule is the wait before retry attempt n (1-based); later
// attempts stay at the last entry.
var backoffSchedule = []time.Duration{
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
	30 * time.Second,
}

var (
	ErrUnknownEntry = errors.New("unknown queue entry")
	ErrNotRetryable = errors.New("entry is not in a retryable state")
)

// QueuedMessage is one outbound message waiting for delivery.
type QueuedMessage struct {
	ID          string    `json:"id"`
	ThreadID    int64     `json:"thread_id"`
	Content     string    `json:"content"`
	State       string    `json:"state"`
	Attempts    int       `json:"attempts"`
	NextAttempt time.Time `json:"next_attempt"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
	LastError   string    `json:"last_error,omitempty"`
}

// Sender delivers one queued message to the server.
type Sender interface {
	Send(ctx context.Context, msg QueuedMessage) error
}

// Store persists the queue across restarts.
type Store interface {
	Load() ([]QueuedMessage, error)
	Save(entries []QueuedMessage) error
}

// Queue is a durable FIFO send queue. Messages drain per thread in
// enqueue order; a failing thread blocks only its own messages, other
// threads keep draining. After maxAttempts failures a message parks in
// the failed state until Retry is called.
type Queue struct {
	sender Sender
	store  Store
	now    func() time.Time

	mu      sync.Mutex
	entries []QueuedMessage
}

// NewQueue builds a queue, restoring any persisted entries. Messages
// interrupted mid-send by a crash go back to pending.
func NewQueue(sender Sender, store Store) (*Queue, error) {
	entries, err := store.Load()
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].State == StateSending {
			entries[i].State = StatePending
		}
	}
	return &Queue{
		sender:  sender,
		store:   store,
		now:     time.Now,
		entries: entries,
	}, nil
}

// SetClock overrides the wall clock, for tests.
func (q *Queue) SetClock(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
}

// Enqueue adds a message to the back of its thread's queue and persists
// it. The returned id identifies the entry for Retry and status checks.
func (q *Queue) Enqueue(threadID int64, content string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry := QueuedMessage{
		ID:         uuid.NewString(),
		ThreadID:   threadID,
		Content:    content,
		State:      StatePending,
		EnqueuedAt: q.now(),
	}
	q.entries = append(q.entries, entry)
	if err := q.store.Save(q.entries); err != nil {
		q.entries = q.entries[:len(q.entries)-1]
		return "", err
	}
	return entry.ID, nil
}

// Pending returns a copy of every entry not yet sent, oldest first.
func (q *Queue) Pending() []QueuedMessage {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]QueuedMessage, 0, len(q.entries))
	for _, e := range q.entries {
		if e.State != StateSent {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].EnqueuedAt.Before(out[j].EnqueuedAt) })
	return out
}

// Retry moves a parked entry back to pending for immediate delivery.
func (q *Queue) Retry(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.entries {
		if q.entries[i].ID != id {
			continue
		}
		if q.entries[i].State != StateFailed {
			return ErrNotRetryable
		}
		q.entries[i].State = StatePending
		q.entries[i].Attempts = 0
		q.entries[i].NextAttempt = time.Time{}
		return q.store.Save(q.entries)
	}
	return ErrUnknownEntry
}

// Drain attempts delivery of every due message once. Each thread is
// tried head-first: when the head is not due or fails, the rest of that
// thread waits, preserving per-thread order.
func (q *Queue) Drain(ctx context.Context) {
	for {
		entry, ok := q.nextDue()
		if !ok {
			return
		}

		err := q.sender.Send(ctx, entry)
		q.settle(entry.ID, err)
		if ctx.Err() != nil {
			return
		}
	}
}

// Run drains on the given interval until the context ends.
func (q *Queue) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.Drain(ctx)
		}
	}
}

// nextDue claims the oldest due pending message whose thread has no
// earlier unsent entry, marking it sending.
func (q *Queue) nextDue() (QueuedMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	blocked := make(map[int64]bool)

	for i := range q.entries {
		e := &q.entries[i]
		if e.State == StateSent || blocked[e.ThreadID] {
			continue
		}
		if e.State == StatePending && !e.NextAttempt.After(now) {
			e.State = StateSending
			return *e, true
		}
		// Head of this thread is parked, backing off, or in flight;
		// everything behind it waits.
		blocked[e.ThreadID] = true
	}
	return QueuedMessage{}, false
}

// settle records the outcome of one delivery attempt.
func (q *Queue) settle(id string, sendErr error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.entries {
		e := &q.entries[i]
		if e.ID != id {
			continue
		}

		if sendErr == nil {
			e.State = StateSent
			e.LastError = ""
		} else {
			e.Attempts++
			e.LastError = sendErr.Error()
			if e.Attempts >= maxAttempts {
				e.State = StateFailed
				log.Printf("client: message %s parked after %d attempts: %v", e.ID, e.Attempts, sendErr)
			} else {
				e.State = StatePending
				e.NextAttempt = q.now().Add(backoffFor(e.Attempts))
			}
		}
		if err := q.store.Save(q.entries); err != nil {
			log.Printf("client: persist queue: %v", err)
		}
		return
	}
}

// Compact drops sent entries from memory and the store.
func (q *Queue) Compact() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.entries[:0]
	for _, e := range q.entries {
		if e.State != StateSent {
			kept = append(kept, e)
		}
	}
	q.entries = kept
	return q.store.Save(q.entries)
}

func backoffFor(attempts int) time.Duration {
	if attempts < 1 {
		return backoffSchedule[0]
	}
	if attempts > len(backoffSchedule) {
		return backoffSchedule[len(backoffSchedule)-1]
	}
	return backoffSchedule[attempts-1]
}
