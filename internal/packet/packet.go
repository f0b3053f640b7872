// Package packet implements the fixed-size wire format shared by the
// server and client: a type tag, a request id, and a tagged-variant
// payload that is either a transfer request or a balance reply.
//
// Decoding never inspects the payload bytes for a type the tag doesn't
// declare, and encoding never accepts a mismatched constructor/type pair —
// callers reach the payload only through Request/Reply, both of which
// check the tag first, so there is no raw union-style access.
package packet

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Type is the closed set of packet kinds that can appear on the wire.
type Type byte

const (
	ClientDiscovery Type = iota
	ClientDiscoveryAck
	TransactionRequest
	TransactionAck
	InsufficientBalanceAck
	InvalidClientAck
	ErrorAck
)

func (t Type) String() string {
	switch t {
	case ClientDiscovery:
		return "CLIENT_DISCOVERY"
	case ClientDiscoveryAck:
		return "CLIENT_DISCOVERY_ACK"
	case TransactionRequest:
		return "TRANSACTION_REQUEST"
	case TransactionAck:
		return "TRANSACTION_ACK"
	case InsufficientBalanceAck:
		return "INSUFFICIENT_BALANCE_ACK"
	case InvalidClientAck:
		return "INVALID_CLIENT_ACK"
	case ErrorAck:
		return "ERROR_ACK"
	default:
		return fmt.Sprintf("UNKNOWN_TYPE(%d)", byte(t))
	}
}

// IsRequest reports whether this type's payload is a RequestPayload.
func (t Type) IsRequest() bool {
	return t == ClientDiscovery || t == TransactionRequest
}

// IsReply reports whether this type's payload is a ReplyPayload.
func (t Type) IsReply() bool {
	return !t.IsRequest()
}

// Size is the fixed on-wire size of every Packet: 1 tag byte + 4 request-id
// bytes + 8 payload bytes. Well under the 512-byte fragmentation ceiling.
const Size = 1 + 4 + 8

const payloadSize = Size - 1 - 4

// RequestPayload carries a transfer's destination and value. Destination is
// kept exactly as received on the wire (network byte order) — callers that
// need a net.IP call DestinationIP.
type RequestPayload struct {
	Destination [4]byte
	Value       uint32
}

// DestinationIP returns the payload's destination as a net.IP.
func (r RequestPayload) DestinationIP() net.IP {
	ip := make(net.IP, 4)
	copy(ip, r.Destination[:])
	return ip
}

// ReplyPayload carries a balance snapshot.
type ReplyPayload struct {
	Balance uint32
}

// Packet is the sum type over {request, reply} discriminated by Type.
// Zero value is not meaningful; use NewRequest/NewReply or Decode.
type Packet struct {
	typ       Type
	requestID uint32
	request   RequestPayload
	reply     ReplyPayload
}

// NewRequest builds a request-variant packet. destination must be a 4-byte
// (IPv4) address; it is copied verbatim, preserving network byte order.
func NewRequest(t Type, requestID uint32, destination net.IP, value uint32) (Packet, error) {
	if !t.IsRequest() {
		return Packet{}, fmt.Errorf("packet: %s is not a request type", t)
	}
	ip4 := destination.To4()
	if ip4 == nil {
		return Packet{}, fmt.Errorf("packet: destination %v is not an IPv4 address", destination)
	}
	p := Packet{typ: t, requestID: requestID}
	copy(p.request.Destination[:], ip4)
	p.request.Value = value
	return p, nil
}

// NewReply builds a reply-variant packet echoing requestID.
func NewReply(t Type, requestID uint32, balance uint32) (Packet, error) {
	if !t.IsReply() {
		return Packet{}, fmt.Errorf("packet: %s is not a reply type", t)
	}
	return Packet{typ: t, requestID: requestID, reply: ReplyPayload{Balance: balance}}, nil
}

// Type returns the packet's discriminant.
func (p Packet) Type() Type { return p.typ }

// RequestID returns the packet's request id (0 is reserved for discovery).
func (p Packet) RequestID() uint32 { return p.requestID }

// Request returns the request payload and true iff this packet's type is a
// request type. Otherwise it returns the zero value and false.
func (p Packet) Request() (RequestPayload, bool) {
	if !p.typ.IsRequest() {
		return RequestPayload{}, false
	}
	return p.request, true
}

// Reply returns the reply payload and true iff this packet's type is a
// reply type. Otherwise it returns the zero value and false.
func (p Packet) Reply() (ReplyPayload, bool) {
	if !p.typ.IsReply() {
		return ReplyPayload{}, false
	}
	return p.reply, true
}

// Encode serializes p into the fixed Size-byte wire layout. It does not
// validate semantic correctness (e.g. a plausible destination); it only
// guarantees a reader observes the same field values the writer stored.
func (p Packet) Encode() [Size]byte {
	var buf [Size]byte
	buf[0] = byte(p.typ)
	binary.BigEndian.PutUint32(buf[1:5], p.requestID)

	var payload [payloadSize]byte
	if p.typ.IsRequest() {
		copy(payload[0:4], p.request.Destination[:])
		binary.BigEndian.PutUint32(payload[4:8], p.request.Value)
	} else {
		binary.BigEndian.PutUint32(payload[0:4], p.reply.Balance)
	}
	copy(buf[5:], payload[:])
	return buf
}

// Decode reinterprets data as a Packet iff it is exactly Size bytes. It
// rejects unrecognized type tags but performs no further validation —
// callers (the worker/dispatch layer) are responsible for checking the
// size before calling Decode; Decode itself double-checks for safety.
func Decode(data []byte) (Packet, error) {
	if len(data) != Size {
		return Packet{}, fmt.Errorf("packet: wrong size %d, want %d", len(data), Size)
	}
	t := Type(data[0])
	switch t {
	case ClientDiscovery, ClientDiscoveryAck, TransactionRequest, TransactionAck,
		InsufficientBalanceAck, InvalidClientAck, ErrorAck:
	default:
		return Packet{}, fmt.Errorf("packet: unknown type tag %d", data[0])
	}

	p := Packet{typ: t, requestID: binary.BigEndian.Uint32(data[1:5])}
	payload := data[5:Size]
	if t.IsRequest() {
		copy(p.request.Destination[:], payload[0:4])
		p.request.Value = binary.BigEndian.Uint32(payload[4:8])
	} else {
		p.reply.Balance = binary.BigEndian.Uint32(payload[0:4])
	}
	return p, nil
}
