package pool

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/cuemby/meridian/pkg/types"
)

func TestTCPManagerConnectAndBorrow(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	host := &types.Host{Address: types.Address{Host: "127.0.0.1", Port: addr.Port}}

	m := NewTCPManager(time.Second)
	defer m.Close()

	if err := m.Connect(context.Background(), host); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if _, err := m.Borrow(host); err != nil {
		t.Fatalf("Borrow: %v", err)
	}

	select {
	case ev := <-m.Events():
		if !ev.Up {
			t.Fatal("expected Up event after Connect")
		}
	case <-time.After(time.Second):
		t.Fatal("no event published after Connect")
	}
}

func TestTCPManagerConnectFailureUnreachable(t *testing.T) {
	m := NewTCPManager(50 * time.Millisecond)
	defer m.Close()

	host := &types.Host{Address: types.Address{Host: "127.0.0.1", Port: 1}}
	if err := m.Connect(context.Background(), host); err == nil {
		t.Fatal("expected Connect to fail against an unreachable port")
	}
}
