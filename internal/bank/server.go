// Package bank is the server pipeline (spec.md §4.4): the listen loop,
// per-packet worker dispatch, discovery handler, and the transaction
// handler that is the linchpin of the whole system.
package bank

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"udpbank/internal/bankconfig"
	"udpbank/internal/lockmap"
	"udpbank/internal/packet"
	"udpbank/internal/transport"
)

// Server holds everything the listen loop and its workers share: the
// socket, the client registry (C3 locked map keyed by source IP string),
// and the statistics record.
type Server struct {
	socket  *transport.Socket
	clients *lockmap.Map[string, ClientRecord]
	stats   *Stats
	log     *logrus.Logger

	initialBalance uint32
}

// NewServer binds a UDP socket on port and returns a Server ready to Run.
func NewServer(port int, log *logrus.Logger) (*Server, error) {
	sock, err := transport.Listen(port, false)
	if err != nil {
		return nil, err
	}
	return &Server{
		socket:         sock,
		clients:        lockmap.New[string, ClientRecord](),
		stats:          &Stats{},
		log:            log,
		initialBalance: bankconfig.InitialBalance,
	}, nil
}

// Close releases the server's socket.
func (s *Server) Close() error {
	return s.socket.Close()
}

// Port returns the local port the server's socket is bound to.
func (s *Server) Port() int {
	return s.socket.LocalPort()
}

// StatsForTest exposes a consistent stats snapshot for tests; production
// callers only ever see stats through LogState's log line.
func (s *Server) StatsForTest() (numTransactions, totalTransferred, totalBalance uint64) {
	return s.stats.Snapshot()
}

// LogState logs the startup / post-transfer state line the spec requires.
func (s *Server) LogState() {
	n, transferred, total := s.stats.Snapshot()
	s.log.WithFields(logrus.Fields{
		"num_transactions":  n,
		"total_transferred": transferred,
		"total_balance":     total,
	}).Infof("num_transactions %d total_transferred %d total_balance %d", n, transferred, total)
}

// Run is the listen loop (C4.4.1): it blocks on receive and, for every
// datagram exactly packet.Size long, spawns a fresh worker goroutine.
// Undersized or oversized datagrams are silently dropped. The listen
// loop itself never performs business logic and never holds a lock, so
// packet intake is never blocked by a slow transaction.
func (s *Server) Run() error {
	s.LogState()
	buf := make([]byte, 2*packet.Size)
	for {
		n, from, err := s.socket.PollForever(buf)
		if err != nil {
			return err
		}
		if n != packet.Size {
			continue
		}
		data := make([]byte, packet.Size)
		copy(data, buf[:n])
		go s.worker(data, from)
	}
}

// worker is the per-packet handler (C4.4.2): it decodes the datagram and
// dispatches on the type tag. Each worker is tagged with its own
// worker_id purely for log correlation — it never appears on the wire.
func (s *Server) worker(data []byte, from transport.Addr) {
	workerID := uuid.New().String()
	log := s.log.WithField("worker_id", workerID)

	p, err := packet.Decode(data)
	if err != nil {
		log.WithError(err).Debug("dropping undecodable datagram")
		return
	}

	switch p.Type() {
	case packet.ClientDiscovery:
		s.handleDiscovery(from, log)
	case packet.TransactionRequest:
		s.handleTransaction(from, p, log)
	default:
		// ACKs and any server-to-server messages are not business for
		// this worker to act on.
	}
}

func (s *Server) send(to transport.Addr, p packet.Packet) {
	wire := p.Encode()
	if err := s.socket.Send(wire[:], to); err != nil {
		s.log.WithError(err).WithField("to", to.String()).Warn("send failed")
	}
}

// handleDiscovery implements the discovery handler (C4.4.3): idempotent
// registration of a client IP, replying with its current
// (last_processed_request_id, balance).
func (s *Server) handleDiscovery(from transport.Addr, log *logrus.Entry) {
	ip := from.IP.String()
	if s.clients.Insert(ip, ClientRecord{LastProcessedRequestID: 0, Balance: s.initialBalance}) {
		s.stats.AddRegisteredClient(s.initialBalance)
		log.WithField("client", ip).Info("discovered new client")
		s.LogState()
		reply, _ := packet.NewReply(packet.ClientDiscoveryAck, 0, s.initialBalance)
		s.send(from, reply)
		return
	}

	record, _ := s.clients.Read(ip)
	reply, _ := packet.NewReply(packet.ClientDiscoveryAck, record.LastProcessedRequestID, record.Balance)
	s.send(from, reply)
}

// handleTransaction is the transaction handler (C4.4.4), the linchpin of
// the whole pipeline: it runs the ten numbered steps from spec.md in
// order, with steps 1-3 and steps 7-8 each fused into one atomic pair
// operation (see below), including the "claim before validate" ordering
// that makes duplicate detection safe under concurrent retransmission.
func (s *Server) handleTransaction(from transport.Addr, p packet.Packet, log *logrus.Entry) {
	req, _ := p.Request()
	srcIP := from.IP.String()
	dstIP := req.DestinationIP().String()
	requestID := p.RequestID()
	value := req.Value

	log = log.WithFields(logrus.Fields{
		"request_id": requestID,
		"src":        srcIP,
		"dst":        dstIP,
		"value":      value,
	})

	// Steps 1-3 run as a single atomic_pair_operation with k1==k2==srcIP:
	// per spec.md §4.3, that acquires the source entry's write lock exactly
	// once and holds it across the read-check-claim sequence. That closes
	// a race plain Read-then-Write would leave open: two workers racing
	// the exact same retransmitted request_id could otherwise both read
	// the pre-claim state before either writes, and both would conclude
	// "not a duplicate". Serializing the claim under one write lock is
	// what makes spec.md's "any duplicate is guaranteed to be observed as
	// such by the time it reaches the duplicate check" true even when two
	// copies of the same datagram are in flight at once.
	var (
		isDuplicate      bool
		balanceAtClaim   uint32
		lastIDBeforeThis uint32
	)
	claimed := s.clients.AtomicPairOperation(srcIP, srcIP, func(src, _ *ClientRecord) {
		// Step 2: duplicate detection.
		if requestID <= src.LastProcessedRequestID {
			isDuplicate = true
			lastIDBeforeThis = src.LastProcessedRequestID
			balanceAtClaim = src.Balance
			return
		}
		// Step 3: claim the request id — the de-duplication commit point.
		src.LastProcessedRequestID = requestID
		balanceAtClaim = src.Balance
	})

	// Step 1: source known?
	if !claimed {
		log.Warn("request from unknown source")
		reply, _ := packet.NewReply(packet.ErrorAck, requestID, 0)
		s.send(from, reply)
		return
	}
	if isDuplicate {
		log.Info("DUP!! replaying cached ack")
		reply, _ := packet.NewReply(packet.TransactionAck, lastIDBeforeThis, balanceAtClaim)
		s.send(from, reply)
		return
	}

	// Step 4: zero-value fast path.
	if value == 0 {
		reply, _ := packet.NewReply(packet.TransactionAck, requestID, balanceAtClaim)
		s.send(from, reply)
		return
	}

	// Step 5: destination known?
	if !s.clients.Exists(dstIP) {
		log.Warn("unknown destination")
		reply, _ := packet.NewReply(packet.InvalidClientAck, requestID, balanceAtClaim)
		s.send(from, reply)
		return
	}

	// Step 6: self-transfer fast path.
	if srcIP == dstIP {
		reply, _ := packet.NewReply(packet.TransactionAck, requestID, balanceAtClaim)
		s.send(from, reply)
		return
	}

	// Steps 7-8: the solvency check must see the authoritative balance at
	// the moment the transfer would apply, not the balanceAtClaim snapshot
	// — another worker crediting srcIP as someone else's destination could
	// run between the claim above and here. So the check happens inside
	// the same atomic_pair_operation that applies the transfer.
	var (
		newBalance        uint32
		insufficientFunds bool
	)
	applied := s.clients.AtomicPairOperation(srcIP, dstIP, func(src, dst *ClientRecord) {
		if src.Balance < value {
			insufficientFunds = true
			newBalance = src.Balance
			return
		}
		src.Balance -= value
		dst.Balance += value
		newBalance = src.Balance
	})
	if !applied {
		// Rare deletion race; not expected since records are never
		// removed. The client will retransmit.
		log.Warn("atomic pair operation failed, dropping reply")
		return
	}
	if insufficientFunds {
		log.Info("insufficient balance")
		reply, _ := packet.NewReply(packet.InsufficientBalanceAck, requestID, newBalance)
		s.send(from, reply)
		return
	}

	// Step 9: statistics (conservation: total_balance untouched).
	s.stats.RecordTransfer(value)
	s.LogState()

	// Step 10: reply.
	log.WithField("new_balance", newBalance).Infof("request_id %d dest %s value %d new_balance %d", requestID, dstIP, value, newBalance)
	reply, _ := packet.NewReply(packet.TransactionAck, requestID, newBalance)
	s.send(from, reply)
}
