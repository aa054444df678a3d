package net

import (
	"reflect"
	"testing"
	"time"

	"github.com/mosaicnetworks/turnstile/src/common"
	"github.com/mosaicnetworks/turnstile/src/peers"
)

const (
	INMEM = iota
	TCP
	numTestTransports // NOTE: must be last
)

func NewTestTransport(ttype int, addr string, t *testing.T) Transport {
	switch ttype {
	case INMEM:
		_, it := NewInmemTransport(addr)
		return it
	case TCP:
		tt, err := NewTCPTransport(addr, "", 2, time.Second, 2*time.Second, common.NewTestEntry(t, common.TestLogLevel))
		if err != nil {
			t.Fatal(err)
		}
		go tt.Listen()
		return tt
	default:
		panic("Unknown transport type")
	}
}

// testPair returns a consumer and a client transport, and the address the
// client must use to reach the consumer.
func testPair(ttype int, t *testing.T) (Transport, Transport, string) {
	trans1 := NewTestTransport(ttype, "127.0.0.1:0", t)
	trans2 := NewTestTransport(ttype, "127.0.0.1:0", t)

	target := trans1.AdvertiseAddr()
	if ttype == INMEM {
		target = "consumer"
		trans2.(*InmemTransport).Connect(target, trans1)
	}
	return trans1, trans2, target
}

// serveOne answers the first RPC with resp, after checking that its command
// is equal to expected.
func serveOne(t *testing.T, trans Transport, expected interface{}, resp interface{}) {
	go func() {
		select {
		case rpc := <-trans.Consumer():
			if !reflect.DeepEqual(rpc.Command, expected) {
				t.Errorf("command mismatch: %#v %#v", rpc.Command, expected)
			}
			rpc.Respond(resp, nil)
		case <-time.After(2 * time.Second):
			t.Errorf("timeout")
		}
	}()
}

func testAddr(b byte) peers.Addr {
	var a peers.Addr
	for i := range a {
		a[i] = b
	}
	return a
}

func TestTransport_StartStop(t *testing.T) {
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans := NewTestTransport(ttype, "127.0.0.1:0", t)
		if err := trans.Close(); err != nil {
			t.Fatalf("err: %v", err)
		}
	}
}

func TestTransport_Join(t *testing.T) {
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans1, trans2, target := testPair(ttype, t)

		args := JoinRequest{
			FromAddr:   testAddr(1),
			GroupID:    peers.GroupIDFromName("test"),
			SocketAddr: "127.0.0.1:9000",
			Payload:    []byte{0x01, 0x92, 0xc4, 0x01, 0xaa, 0xc4, 0x00},
		}
		resp := JoinResponse{
			FromAddr:  testAddr(2),
			Accepted:  true,
			NeedRetry: false,
			Payload:   []byte("payload"),
		}
		serveOne(t, trans1, &args, &resp)

		var out JoinResponse
		if err := trans2.Join(target, &args, &out); err != nil {
			t.Fatalf("err: %v", err)
		}
		if !reflect.DeepEqual(resp, out) {
			t.Fatalf("response mismatch: %#v %#v", resp, out)
		}

		trans1.Close()
		trans2.Close()
	}
}

func TestTransport_JoinResult(t *testing.T) {
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans1, trans2, target := testPair(ttype, t)

		args := JoinResultRequest{
			FromAddr: testAddr(3),
			GroupID:  peers.GroupIDFromName("test"),
			Accepted: true,
			Payload:  []byte("proof"),
		}
		resp := JoinResultResponse{
			FromAddr: testAddr(4),
			Success:  true,
		}
		serveOne(t, trans1, &args, &resp)

		var out JoinResultResponse
		if err := trans2.JoinResult(target, &args, &out); err != nil {
			t.Fatalf("err: %v", err)
		}
		if !reflect.DeepEqual(resp, out) {
			t.Fatalf("response mismatch: %#v %#v", resp, out)
		}

		trans1.Close()
		trans2.Close()
	}
}

func TestTransport_Leave(t *testing.T) {
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans1, trans2, target := testPair(ttype, t)

		args := LeaveRequest{
			FromAddr: testAddr(5),
			GroupID:  peers.GroupIDFromName("test"),
		}
		resp := LeaveResponse{
			FromAddr: testAddr(6),
			Success:  true,
		}
		serveOne(t, trans1, &args, &resp)

		var out LeaveResponse
		if err := trans2.Leave(target, &args, &out); err != nil {
			t.Fatalf("err: %v", err)
		}
		if !reflect.DeepEqual(resp, out) {
			t.Fatalf("response mismatch: %#v %#v", resp, out)
		}

		trans1.Close()
		trans2.Close()
	}
}

func TestTransport_Heartbeat(t *testing.T) {
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans1, trans2, target := testPair(ttype, t)

		args := HeartbeatRequest{
			FromAddr: testAddr(7),
			GroupID:  peers.GroupIDFromName("test"),
			PubKey:   []byte("pubkey"),
		}
		resp := HeartbeatResponse{
			FromAddr: testAddr(8),
			Success:  true,
		}
		serveOne(t, trans1, &args, &resp)

		var out HeartbeatResponse
		if err := trans2.Heartbeat(target, &args, &out); err != nil {
			t.Fatalf("err: %v", err)
		}
		if !reflect.DeepEqual(resp, out) {
			t.Fatalf("response mismatch: %#v %#v", resp, out)
		}

		trans1.Close()
		trans2.Close()
	}
}

func TestTransport_SyncPeers(t *testing.T) {
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans1, trans2, target := testPair(ttype, t)

		args := SyncPeersRequest{
			FromAddr: testAddr(9),
			GroupID:  peers.GroupIDFromName("test"),
			PubKey:   []byte("pubkey"),
		}
		resp := SyncPeersResponse{
			FromAddr: testAddr(10),
			Peers: []PeerInfo{
				{Addr: testAddr(11), SocketAddr: "127.0.0.1:1"},
				{Addr: testAddr(12), SocketAddr: "127.0.0.1:2"},
			},
		}
		serveOne(t, trans1, &args, &resp)

		var out SyncPeersResponse
		if err := trans2.SyncPeers(target, &args, &out); err != nil {
			t.Fatalf("err: %v", err)
		}
		if !reflect.DeepEqual(resp, out) {
			t.Fatalf("response mismatch: %#v %#v", resp, out)
		}

		trans1.Close()
		trans2.Close()
	}
}

func TestTransport_RemoteError(t *testing.T) {
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans1, trans2, target := testPair(ttype, t)

		go func() {
			select {
			case rpc := <-trans1.Consumer():
				rpc.Respond(&LeaveResponse{}, errTestRemote)
			case <-time.After(2 * time.Second):
				t.Errorf("timeout")
			}
		}()

		var out LeaveResponse
		err := trans2.Leave(target, &LeaveRequest{FromAddr: testAddr(1)}, &out)
		if err == nil || err.Error() != errTestRemote.Error() {
			t.Fatalf("expected remote error, got %v", err)
		}

		trans1.Close()
		trans2.Close()
	}
}
