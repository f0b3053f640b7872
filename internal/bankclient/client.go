// Package bankclient is the client pipeline (spec.md §4.5): discovery,
// the stop-and-wait sender, and the asynchronous reply receiver that
// together let a single outstanding request travel safely over lossy
// UDP.
package bankclient

import (
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"udpbank/internal/bankconfig"
	"udpbank/internal/packet"
	"udpbank/internal/transport"
)

// Client owns the sender state from spec.md §3: the next request id to
// assign, the single outstanding request slot, the condition variable
// used to wake the sender on ACK arrival, and whether the server address
// is known yet.
type Client struct {
	socket *transport.Socket
	log    *logrus.Entry

	serverAddr  transport.Addr
	serverKnown bool

	nextRequestID uint32

	mu         sync.Mutex
	cond       *sync.Cond
	pendingSet bool
	pendingID  uint32
	pendingPkt packet.Packet
	lastResult Result

	closed bool
}

// New opens a UDP socket on localPort (0 for an ephemeral port), bound to
// all interfaces, with broadcast enabled, ready for discovery.
func New(localPort int, log *logrus.Logger) (*Client, error) {
	return NewOnAddr(nil, localPort, log)
}

// NewOnAddr is New with an explicit local bind IP — used by tests to run
// several clients on distinct loopback addresses (127.0.0.2, 127.0.0.3,
// ...) so the server sees them as distinct source IPs, the way distinct
// LAN machines would be in production.
//
// Every client process run is tagged with its own run_id, a log-only UUID
// (never transmitted on the wire) carried on every log line this Client
// emits, mirroring the server worker_id tagging in internal/bank.
func NewOnAddr(ip net.IP, localPort int, log *logrus.Logger) (*Client, error) {
	sock, err := transport.ListenAddr(ip, localPort, true)
	if err != nil {
		return nil, err
	}
	c := &Client{
		socket:        sock,
		log:           log.WithField("run_id", uuid.New().String()),
		nextRequestID: 1, // 0 is reserved for discovery
	}
	c.cond = sync.NewCond(&c.mu)
	return c, nil
}

// Close releases the client's socket.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.socket.Close()
}

// LocalPort returns the local port the client's socket is bound to.
func (c *Client) LocalPort() int {
	return c.socket.LocalPort()
}

// LocalIP returns the IP the client's socket is bound to — the address the
// server will see as this client's source IP and identity.
func (c *Client) LocalIP() (net.IP, error) {
	ip := c.socket.LocalIP()
	if ip == nil || ip.IsUnspecified() {
		return nil, fmt.Errorf("bankclient: socket bound to all interfaces, no single local IP")
	}
	return ip, nil
}

// DiscoverBroadcast sends CLIENT_DISCOVERY to the broadcast address on
// serverPort, retrying every ACK_TIMEOUT until a
// CLIENT_DISCOVERY_ACK arrives (spec.md §4.5.1, broadcast mode).
func (c *Client) DiscoverBroadcast(serverPort int) error {
	return c.discover(transport.BroadcastAddr(serverPort))
}

// DiscoverDirect sends CLIENT_DISCOVERY directly to serverIP:serverPort,
// retrying the same way (spec.md §4.5.1, direct mode).
func (c *Client) DiscoverDirect(serverIP net.IP, serverPort int) error {
	return c.discover(transport.Addr{IP: serverIP, Port: serverPort})
}

func (c *Client) discover(target transport.Addr) error {
	pkt, err := packet.NewRequest(packet.ClientDiscovery, 0, net.IPv4zero, 0)
	if err != nil {
		return err
	}
	wire := pkt.Encode()
	buf := make([]byte, 2*packet.Size)

	for {
		if err := c.socket.Send(wire[:], target); err != nil {
			return fmt.Errorf("bankclient: discovery send: %w", err)
		}
		n, from, err := c.socket.Poll(buf, bankconfig.AckTimeout)
		if err != nil {
			return fmt.Errorf("bankclient: discovery receive: %w", err)
		}
		if n != packet.Size {
			continue
		}
		p, err := packet.Decode(buf[:n])
		if err != nil || p.Type() != packet.ClientDiscoveryAck {
			continue
		}

		c.serverAddr = from
		c.serverKnown = true
		c.log.Infof("server_addr %s", from.IP.String())
		return nil
	}
}

// ServerKnown reports whether discovery has completed.
func (c *Client) ServerKnown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverKnown
}

// ServerAddr returns the server address discovery resolved. Only
// meaningful once ServerKnown reports true.
func (c *Client) ServerAddr() transport.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverAddr
}

// Run starts the receiver goroutine (spec.md §4.5.3). Must be called
// after discovery completes and before the first Transfer.
func (c *Client) Run() {
	go c.receiveLoop()
}
