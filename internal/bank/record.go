package bank

// ClientRecord is the server-side per-client state (spec.md §3): the last
// request id this client's requests have been processed through (0 until
// the first non-discovery request is processed, whether or not it
// succeeds), and its current balance.
type ClientRecord struct {
	LastProcessedRequestID uint32
	Balance                uint32
}
