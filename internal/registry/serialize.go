package registry

import "sync"

// serialKey identifies one exclusive hook: invocations sharing a key must
// never run concurrently with each other.
type serialKey struct {
	identity string // owning plugin identity
	hook     string // declared hook name
}

// serialQueue is the per-key FIFO admission queue behind exclusive hooks.
//
// A key is in one of three states: absent (no contention), marker (one
// execution in flight, nil waiter slice, no queue allocated yet), or
// queue (one execution in flight plus parked waiters in arrival order).
// Entries exist only while an execution is running or queued; release
// deletes a drained entry rather than leaving it empty.
type serialQueue struct {
	mu      sync.Mutex
	waiting map[serialKey][]chan struct{}
}

func newSerialQueue() *serialQueue {
	return &serialQueue{waiting: make(map[serialKey][]chan struct{})}
}

// acquire admits the caller for the key, parking it behind any execution
// already in flight. Wakeups are strictly FIFO.
func (q *serialQueue) acquire(key serialKey) {
	q.mu.Lock()
	if _, inFlight := q.waiting[key]; !inFlight {
		q.waiting[key] = nil
		q.mu.Unlock()
		return
	}

	token := make(chan struct{})
	q.waiting[key] = append(q.waiting[key], token)
	q.mu.Unlock()

	<-token
}

// release hands the key to the head waiter, or deletes the entry when the
// queue is drained.
func (q *serialQueue) release(key serialKey) {
	q.mu.Lock()
	defer q.mu.Unlock()

	waiters := q.waiting[key]
	if len(waiters) == 0 {
		delete(q.waiting, key)
		return
	}
	head := waiters[0]
	q.waiting[key] = waiters[1:]
	close(head)
}

// purge drops idle entries for a plugin's keys. An entry with parked
// waiters still has an execution in flight that will release it normally;
// only waiterless markers left behind by cancelled tasks are cleared.
func (q *serialQueue) purge(identity string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for key, waiters := range q.waiting {
		if key.identity == identity && len(waiters) == 0 {
			delete(q.waiting, key)
		}
	}
}

// pending reports whether the key currently has an entry. Test hook.
func (q *serialQueue) pending(key serialKey) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.waiting[key]
	return ok
}
