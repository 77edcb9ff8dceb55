package session

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return strconv.Itoa(int(p))
	}
}

// Pending is one outbound message waiting for the writer.
type Pending struct {
	// Key coalesces: a newer message with the same key replaces the older
	// one. Empty keys never coalesce.
	Key       string
	Priority  Priority
	Payload   []byte
	QueuedAt  time.Time
	Attempts  int
	LastError string

	seq uint64
}

// Outbox is a coalescing priority queue. Next returns the highest priority
// first and FIFO within a priority.
type Outbox struct {
	mu       sync.Mutex
	items    map[string]*Pending
	seq      uint64
	capacity int
	ready    chan struct{}
	dropped  int
}

func NewOutbox(capacity int) *Outbox {
	return &Outbox{
		items:    make(map[string]*Pending),
		capacity: capacity,
		ready:    make(chan struct{}, 1),
	}
}

// Upsert queues item. A pending message with the same key is replaced and
// moves behind everything queued before item. When the queue is full the oldest lowest-priority message is dropped; Upsert
// reports false if that was item itself.
func (o *Outbox) Upsert(item Pending) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	key := strings.TrimSpace(item.Key)
	if item.QueuedAt.IsZero() {
		item.QueuedAt = time.Now()
	}
	if key != "" {
		if cur, ok := o.items[key]; ok {
			cur.Payload = item.Payload
			cur.Priority = max(cur.Priority, item.Priority)
			cur.QueuedAt = item.QueuedAt
			o.seq++
			cur.seq = o.seq
			o.signal()
			return true
		}
	} else {
		key = "#" + strconv.FormatUint(o.seq, 10)
	}

	if o.capacity > 0 && len(o.items) >= o.capacity {
		victim := o.lowest()
		if victim == nil || victim.Priority > item.Priority {
			o.dropped++
			return false
		}
		delete(o.items, victim.Key)
		o.dropped++
	}

	o.seq++
	item.seq = o.seq
	item.Key = key
	o.items[key] = &item
	o.signal()
	return true
}

// Next removes and returns the next message to send.
func (o *Outbox) Next() (Pending, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var best *Pending
	for _, p := range o.items {
		if best == nil || p.Priority > best.Priority || (p.Priority == best.Priority && p.seq < best.seq) {
			best = p
		}
	}
	if best == nil {
		return Pending{}, false
	}
	delete(o.items, best.Key)
	return *best, true
}

// Requeue puts back a message whose write failed, unless a newer message
// with the same key is already queued.
func (o *Outbox) Requeue(item Pending, lastErr string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.items[item.Key]; ok {
		return
	}
	item.Attempts++
	item.LastError = strings.TrimSpace(lastErr)
	o.items[item.Key] = &item
	o.signal()
}

// Ready is signalled whenever a message is queued.
func (o *Outbox) Ready() <-chan struct{} {
	return o.ready
}

func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}

// Dropped counts messages discarded because the queue was full.
func (o *Outbox) Dropped() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped
}

// Clear drops everything queued.
func (o *Outbox) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	clear(o.items)
}

func (o *Outbox) lowest() *Pending {
	var worst *Pending
	for _, p := range o.items {
		if worst == nil || p.Priority < worst.Priority || (p.Priority == worst.Priority && p.seq < worst.seq) {
			worst = p
		}
	}
	return worst
}

func (o *Outbox) signal() {
	select {
	case o.ready <- struct{}{}:
	default:
	}
}
