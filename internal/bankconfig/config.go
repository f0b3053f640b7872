// Package bankconfig holds the constants shared by the server and client
// binaries: the initial balance granted to every newly discovered client
// and the client's ACK timeout. The wire packet size lives in
// internal/packet, the package that actually owns the wire format.
package bankconfig

import "time"

const (
	// InitialBalance is assigned to every client record the first time its
	// IP address is seen via CLIENT_DISCOVERY.
	InitialBalance uint32 = 100

	// AckTimeout bounds how long the client sender waits for a reply before
	// retransmitting. It also doubles as the broadcast-discovery retry
	// interval (spec: "discovery send interval equals the client's ACK
	// timeout; do not introduce exponential backoff").
	AckTimeout = 200 * time.Millisecond
)
