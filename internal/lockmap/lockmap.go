// Package lockmap implements the server's fine-grained reader-writer
// lock table: one writer-preference RW lock per entry, plus a
// deadlock-free protocol for locking two entries at once so a transfer
// between two accounts can be applied atomically.
//
// Entries are never removed once inserted, so — unlike the original's
// explicit reference-counted handles — a *entry kept by a caller past a
// lookup simply stays reachable through Go's ordinary garbage collector;
// there is no separate refcount to manage.
package lockmap

import "sync"

// entry wraps one stored value plus its writer-preference RW lock state.
// seq is a stable, monotonically assigned total order used to avoid
// AB-BA deadlocks in AtomicPairOperation: every caller orders by the
// same seq, so no two callers can ever request the pair in opposite
// orders.
type entry[V any] struct {
	mu   sync.Mutex
	cond *sync.Cond

	value V

	activeReaders  int
	writerActive   bool
	waitingWriters int

	seq uint64
}

func newEntry[V any](value V, seq uint64) *entry[V] {
	e := &entry[V]{value: value, seq: seq}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// rlock blocks while a writer is active or any writer is waiting —
// writer preference — then registers as an active reader.
func (e *entry[V]) rlock() {
	e.mu.Lock()
	for e.writerActive || e.waitingWriters > 0 {
		e.cond.Wait()
	}
	e.activeReaders++
	e.mu.Unlock()
}

func (e *entry[V]) runlock() {
	e.mu.Lock()
	e.activeReaders--
	if e.activeReaders == 0 {
		e.cond.Broadcast()
	}
	e.mu.Unlock()
}

// wlock registers as a waiting writer (blocking new readers immediately),
// then blocks until no writer is active and no reader is active.
func (e *entry[V]) wlock() {
	e.mu.Lock()
	e.waitingWriters++
	for e.writerActive || e.activeReaders > 0 {
		e.cond.Wait()
	}
	e.writerActive = true
	e.waitingWriters--
	e.mu.Unlock()
}

func (e *entry[V]) wunlock() {
	e.mu.Lock()
	e.writerActive = false
	e.cond.Broadcast()
	e.mu.Unlock()
}

// Map is a reference-counted-by-GC table of writer-preference RW-locked
// entries, keyed by K (the server uses client IP strings).
type Map[K comparable, V any] struct {
	structMu sync.Mutex
	entries  map[K]*entry[V]
	nextSeq  uint64
}

// New returns an empty Map.
func New[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{entries: make(map[K]*entry[V])}
}

// Insert atomically inserts value under key iff absent. It returns true
// iff this call created the entry.
func (m *Map[K, V]) Insert(key K, value V) bool {
	m.structMu.Lock()
	defer m.structMu.Unlock()
	if _, exists := m.entries[key]; exists {
		return false
	}
	m.nextSeq++
	m.entries[key] = newEntry(value, m.nextSeq)
	return true
}

// Exists is a structural query: it takes only the map's structural lock,
// never an entry's RW lock.
func (m *Map[K, V]) Exists(key K) bool {
	m.structMu.Lock()
	defer m.structMu.Unlock()
	_, ok := m.entries[key]
	return ok
}

func (m *Map[K, V]) lookup(key K) (*entry[V], bool) {
	m.structMu.Lock()
	defer m.structMu.Unlock()
	e, ok := m.entries[key]
	return e, ok
}

// Read acquires key's read lock, returns a copy of its value, and
// releases. It returns false if key was never inserted.
func (m *Map[K, V]) Read(key K) (V, bool) {
	e, ok := m.lookup(key)
	if !ok {
		var zero V
		return zero, false
	}
	e.rlock()
	v := e.value
	e.runlock()
	return v, true
}

// Write acquires key's write lock, replaces its value, and releases. It
// returns false if key was never inserted — there is no retry and no
// waiting for the key to appear.
func (m *Map[K, V]) Write(key K, value V) bool {
	e, ok := m.lookup(key)
	if !ok {
		return false
	}
	e.wlock()
	e.value = value
	e.wunlock()
	return true
}

// AtomicPairOperation runs fn with mutable pointers to k1's and k2's
// values while holding both entries' write locks, then releases. fn is
// always invoked as fn(&v1, &v2) in (k1, k2) order regardless of which
// entry's lock was acquired first.
//
// Lookups happen under the map's structural mutex, which is released
// before any entry lock is touched (step 1 of the deadlock-free
// protocol). If k1 and k2 resolve to the same entry, its write lock is
// acquired exactly once and fn is invoked with both pointers aliased to
// it (step 2). Otherwise the two entries are locked in ascending seq
// order (step 3) — since every caller uses this same global order, the
// AB-BA cycle that causes deadlock is impossible (P7).
//
// AtomicPairOperation returns false, without invoking fn, if either key
// was never inserted.
func (m *Map[K, V]) AtomicPairOperation(k1, k2 K, fn func(v1, v2 *V)) bool {
	e1, ok1 := m.lookup(k1)
	if !ok1 {
		return false
	}
	if k1 == k2 {
		e1.wlock()
		fn(&e1.value, &e1.value)
		e1.wunlock()
		return true
	}
	e2, ok2 := m.lookup(k2)
	if !ok2 {
		return false
	}
	if e1 == e2 {
		e1.wlock()
		fn(&e1.value, &e1.value)
		e1.wunlock()
		return true
	}

	first, second := e1, e2
	if e2.seq < e1.seq {
		first, second = e2, e1
	}
	first.wlock()
	second.wlock()
	fn(&e1.value, &e2.value)
	second.wunlock()
	first.wunlock()
	return true
}
