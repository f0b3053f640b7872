package packet

import (
	"net"
	"testing"
)

func TestRequestRoundTrip(t *testing.T) {
	dst := net.ParseIP("10.0.0.2")
	p, err := NewRequest(TransactionRequest, 7, dst, 30)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}

	wire := p.Encode()
	if len(wire) != Size {
		t.Fatalf("encoded size = %d, want %d", len(wire), Size)
	}

	got, err := Decode(wire[:])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Type() != TransactionRequest {
		t.Fatalf("Type() = %v, want TransactionRequest", got.Type())
	}
	if got.RequestID() != 7 {
		t.Fatalf("RequestID() = %d, want 7", got.RequestID())
	}
	req, ok := got.Request()
	if !ok {
		t.Fatal("Request() ok = false, want true")
	}
	if !req.DestinationIP().Equal(dst) {
		t.Fatalf("DestinationIP() = %v, want %v", req.DestinationIP(), dst)
	}
	if req.Value != 30 {
		t.Fatalf("Value = %d, want 30", req.Value)
	}
	if _, ok := got.Reply(); ok {
		t.Fatal("Reply() ok = true on a request packet, want false")
	}
}

func TestReplyRoundTrip(t *testing.T) {
	p, err := NewReply(TransactionAck, 42, 70)
	if err != nil {
		t.Fatalf("NewReply: %v", err)
	}
	wire := p.Encode()
	got, err := Decode(wire[:])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	reply, ok := got.Reply()
	if !ok {
		t.Fatal("Reply() ok = false, want true")
	}
	if reply.Balance != 70 {
		t.Fatalf("Balance = %d, want 70", reply.Balance)
	}
	if _, ok := got.Request(); ok {
		t.Fatal("Request() ok = true on a reply packet, want false")
	}
}

func TestNewRequestRejectsReplyType(t *testing.T) {
	if _, err := NewRequest(TransactionAck, 1, net.ParseIP("10.0.0.1"), 1); err == nil {
		t.Fatal("NewRequest with a reply type should error")
	}
}

func TestNewReplyRejectsRequestType(t *testing.T) {
	if _, err := NewReply(TransactionRequest, 1, 1); err == nil {
		t.Fatal("NewReply with a request type should error")
	}
}

func TestDecodeRejectsWrongSize(t *testing.T) {
	if _, err := Decode(make([]byte, Size-1)); err == nil {
		t.Fatal("Decode of undersized buffer should error")
	}
	if _, err := Decode(make([]byte, Size+1)); err == nil {
		t.Fatal("Decode of oversized buffer should error")
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	wire := make([]byte, Size)
	wire[0] = 0xFF
	if _, err := Decode(wire); err == nil {
		t.Fatal("Decode of unknown type tag should error")
	}
}

func TestByteOrderPreserved(t *testing.T) {
	dst := net.IPv4(203, 0, 113, 9)
	p, err := NewRequest(ClientDiscovery, 0, dst, 0)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	wire := p.Encode()
	if wire[5] != 203 || wire[6] != 0 || wire[7] != 113 || wire[8] != 9 {
		t.Fatalf("destination bytes not preserved: %v", wire[5:9])
	}
}
