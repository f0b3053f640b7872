package bankclient

import (
	"fmt"
	"net"
	"sync"
	"time"

	"udpbank/internal/bankconfig"
	"udpbank/internal/packet"
)

// Result is what the receiver hands back to the sender once a reply
// matching the pending request id arrives: the reply's type, the balance
// it carries, and (for Transfer's convenience) the destination the
// outstanding request was addressed to.
type Result struct {
	Type        packet.Type
	RequestID   uint32
	Balance     uint32
	Destination net.IP
	Value       uint32
}

// Transfer runs the send routine from spec.md §4.5.2: it assigns a fresh,
// strictly increasing request id, holds it as the single outstanding
// request, and retransmits on every ACK_TIMEOUT expiry until the
// receiver goroutine clears the pending slot.
func (c *Client) Transfer(destination net.IP, value uint32) (Result, error) {
	c.mu.Lock()
	id := c.nextRequestID
	c.nextRequestID++
	c.mu.Unlock()

	pkt, err := packet.NewRequest(packet.TransactionRequest, id, destination, value)
	if err != nil {
		return Result{}, err
	}
	wire := pkt.Encode()

	c.mu.Lock()
	c.pendingID = id
	c.pendingSet = true
	c.pendingPkt = pkt
	c.mu.Unlock()

	for {
		if err := c.socket.Send(wire[:], c.serverAddr); err != nil {
			c.mu.Lock()
			c.pendingSet = false
			c.mu.Unlock()
			return Result{}, fmt.Errorf("bankclient: send failed, aborting transfer: %w", err)
		}

		c.mu.Lock()
		if c.pendingSet && c.pendingID == id {
			waitTimeout(c.cond, bankconfig.AckTimeout)
		}
		stillPending := c.pendingSet && c.pendingID == id
		result := c.lastResult
		c.mu.Unlock()

		if !stillPending {
			result.Destination = destination
			result.Value = value
			return result, nil
		}
		// ACK_TIMEOUT elapsed with no matching reply: retransmit.
	}
}

// receiveLoop is the receiver thread from spec.md §4.5.3: it polls the
// socket for reply datagrams and, for each one whose echoed request id
// equals the current pending id, clears the pending slot and wakes the
// sender under the same mutex the sender uses. Replies that don't match
// the pending id — stale duplicates from earlier retransmissions — are
// silently ignored; at most one request is ever outstanding, so the id
// comparison alone suffices to reject them.
func (c *Client) receiveLoop() {
	buf := make([]byte, 2*packet.Size)
	for {
		n, _, err := c.socket.PollForever(buf)
		if err != nil {
			return // socket closed
		}
		if n != packet.Size {
			continue
		}
		p, err := packet.Decode(buf[:n])
		if err != nil || !p.Type().IsReply() {
			continue
		}

		c.mu.Lock()
		if !c.pendingSet || p.RequestID() != c.pendingID {
			c.mu.Unlock()
			continue
		}
		reply, _ := p.Reply()
		c.lastResult = Result{Type: p.Type(), RequestID: p.RequestID(), Balance: reply.Balance}
		c.pendingSet = false
		c.cond.Broadcast()
		c.mu.Unlock()
	}
}

// waitTimeout blocks on cond (cond.L must already be held by the caller)
// until either a Broadcast/Signal wakes it or timeout elapses, then
// returns with cond.L held again. Go's sync.Cond has no built-in timed
// wait, so a timer goroutine provides the wakeup; the caller re-checks
// its own predicate afterward regardless of which source woke it, so a
// timer firing concurrently with a genuine notify is harmless.
func waitTimeout(cond *sync.Cond, timeout time.Duration) {
	timer := time.AfterFunc(timeout, func() {
		cond.L.Lock()
		cond.Broadcast()
		cond.L.Unlock()
	})
	defer timer.Stop()
	cond.Wait()
}
