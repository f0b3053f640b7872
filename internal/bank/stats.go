package bank

import "sync"

// Stats is the global bank statistics record (spec.md §3): a single value
// behind one mutex, so a printed snapshot is always internally
// consistent — it is deliberately not split across independent atomics.
type Stats struct {
	mu               sync.Mutex
	numTransactions  uint64
	totalTransferred uint64
	totalBalance     uint64
}

// Snapshot returns a consistent (numTransactions, totalTransferred,
// totalBalance) triple.
func (s *Stats) Snapshot() (numTransactions, totalTransferred, totalBalance uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.numTransactions, s.totalTransferred, s.totalBalance
}

// AddRegisteredClient accounts for a newly discovered client: total
// balance grows by initialBalance. Called once per distinct client IP,
// from the discovery handler's insert-succeeded branch.
func (s *Stats) AddRegisteredClient(initialBalance uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalBalance += uint64(initialBalance)
}

// RecordTransfer accounts for one successfully applied, non-duplicate,
// non-zero, non-self transfer. totalBalance is left unchanged —
// transfers conserve the sum of balances.
func (s *Stats) RecordTransfer(value uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.numTransactions++
	s.totalTransferred += uint64(value)
}
