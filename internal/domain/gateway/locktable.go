package gateway

import (
	"context"
	"sync"
)

// LockTable serializes work per key in reservation order. Keys with no
// pending tickets hold no memory.
type LockTable struct {
	mu   sync.Mutex
	tail map[string]*Ticket
}

// NewLockTable creates an empty lock table
func NewLockTable() *LockTable {
	return &LockTable{tail: make(map[string]*Ticket)}
}

// Ticket is a place in the queue of one key
type Ticket struct {
	table *LockTable
	key   string
	prev  *Ticket
	done  chan struct{}

	once     sync.Once
	acquired bool
}

// Reserve takes the next place in the key's queue without blocking
func (l *LockTable) Reserve(key string) *Ticket {
	l.mu.Lock()
	defer l.mu.Unlock()

	t := &Ticket{
		table: l,
		key:   key,
		prev:  l.tail[key],
		done:  make(chan struct{}),
	}
	l.tail[key] = t
	return t
}

// Wait blocks until every earlier ticket of the key was released
func (t *Ticket) Wait(ctx context.Context) error {
	if t.prev != nil {
		select {
		case <-t.prev.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	t.acquired = true
	t.prev = nil
	return nil
}

// Release hands the key to the next ticket. A ticket released without having
// been acquired passes the key on only once its predecessor is done.
func (t *Ticket) Release() {
	t.once.Do(func() {
		if t.acquired || t.prev == nil {
			t.finish()
			return
		}
		prev := t.prev
		go func() {
			<-prev.done
			t.finish()
		}()
	})
}

func (t *Ticket) finish() {
	close(t.done)

	t.table.mu.Lock()
	if t.table.tail[t.key] == t {
		delete(t.table.tail, t.key)
	}
	t.table.mu.Unlock()
}

// Len returns the number of keys with pending tickets
func (l *LockTable) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tail)
}
