package bankclient

import (
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"udpbank/internal/bankconfig"
	"udpbank/internal/packet"
	"udpbank/internal/transport"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(new(discardWriter))
	return log
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func loopback(port int) transport.Addr {
	return transport.Addr{IP: net.IPv4(127, 0, 0, 1), Port: port}
}

// TestTransferRetransmitsOnTimeout drives Transfer against a fake server
// goroutine that silently drops the first TRANSACTION_REQUEST and only
// replies to the retransmitted copy — exercising the stop-and-wait
// sender's retransmit-on-ACK_TIMEOUT path (spec.md §4.5.2) directly,
// rather than incidentally through a real bank.Server.
func TestTransferRetransmitsOnTimeout(t *testing.T) {
	fakeServer, err := transport.Listen(0, false)
	if err != nil {
		t.Fatalf("transport.Listen: %v", err)
	}
	defer fakeServer.Close()

	requestCount := make(chan int, 8)
	go func() {
		buf := make([]byte, 2*packet.Size)
		seen := 0
		for {
			n, from, err := fakeServer.PollForever(buf)
			if err != nil {
				return
			}
			if n != packet.Size {
				continue
			}
			p, err := packet.Decode(buf[:n])
			if err != nil {
				continue
			}
			switch p.Type() {
			case packet.ClientDiscovery:
				reply, _ := packet.NewReply(packet.ClientDiscoveryAck, 0, bankconfig.InitialBalance)
				wire := reply.Encode()
				fakeServer.Send(wire[:], from)
			case packet.TransactionRequest:
				seen++
				requestCount <- seen
				if seen == 1 {
					continue // drop the first copy on purpose
				}
				reply, _ := packet.NewReply(packet.TransactionAck, p.RequestID(), 42)
				wire := reply.Encode()
				fakeServer.Send(wire[:], from)
			}
		}
	}()

	c, err := New(0, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()
	if err := c.DiscoverDirect(net.IPv4(127, 0, 0, 1), fakeServer.LocalPort()); err != nil {
		t.Fatalf("DiscoverDirect: %v", err)
	}
	c.Run()

	start := time.Now()
	res, err := c.Transfer(net.IPv4(10, 0, 0, 1), 5)
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	elapsed := time.Since(start)

	if res.Type != packet.TransactionAck || res.Balance != 42 {
		t.Fatalf("Transfer result = %+v, want TransactionAck balance 42", res)
	}
	if elapsed < bankconfig.AckTimeout {
		t.Fatalf("Transfer returned after %v, want at least one ACK_TIMEOUT (%v) of retransmission delay", elapsed, bankconfig.AckTimeout)
	}

	select {
	case <-requestCount: // the dropped original
	default:
		t.Fatal("fake server never logged the original request")
	}
	select {
	case n := <-requestCount:
		if n < 2 {
			t.Fatalf("only %d request(s) seen, want at least 2 (original + retransmit)", n)
		}
	default:
		t.Fatal("fake server never logged a second request")
	}
}

// TestReceiveLoopIgnoresStaleReply drives the receiver goroutine directly:
// a reply whose request id doesn't match the pending one must be silently
// ignored (spec.md §4.5.3), leaving the pending slot untouched, while a
// reply that does match clears it and records the result.
func TestReceiveLoopIgnoresStaleReply(t *testing.T) {
	c, err := New(0, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()
	c.Run()

	raw, err := transport.Listen(0, false)
	if err != nil {
		t.Fatalf("transport.Listen: %v", err)
	}
	defer raw.Close()
	clientAddr := loopback(c.LocalPort())

	// Fabricate a pending request id of 7, as Transfer would just before
	// blocking on the ACK condition variable.
	c.mu.Lock()
	c.pendingSet = true
	c.pendingID = 7
	c.mu.Unlock()

	stale, _ := packet.NewReply(packet.TransactionAck, 6, 999)
	wire := stale.Encode()
	if err := raw.Send(wire[:], clientAddr); err != nil {
		t.Fatalf("Send stale reply: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	c.mu.Lock()
	stillPending := c.pendingSet
	pendingID := c.pendingID
	c.mu.Unlock()
	if !stillPending || pendingID != 7 {
		t.Fatalf("pendingSet=%v pendingID=%d after a stale reply; want pendingSet=true pendingID=7 (untouched)", stillPending, pendingID)
	}

	match, _ := packet.NewReply(packet.TransactionAck, 7, 55)
	wire = match.Encode()
	if err := raw.Send(wire[:], clientAddr); err != nil {
		t.Fatalf("Send matching reply: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		c.mu.Lock()
		stillPending = c.pendingSet
		result := c.lastResult
		c.mu.Unlock()
		if !stillPending {
			if result.RequestID != 7 || result.Balance != 55 {
				t.Fatalf("lastResult = %+v, want RequestID 7 Balance 55", result)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("receiveLoop never cleared the pending slot for the matching reply")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
