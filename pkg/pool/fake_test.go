package pool

import (
	"context"
	"testing"

	"github.com/cuemby/meridian/pkg/types"
)

func TestFakeConnectThenBorrow(t *testing.T) {
	f := NewFake()
	host := &types.Host{Address: types.Address{Host: "a", Port: 9042}}

	if err := f.Connect(context.Background(), host); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn, err := f.Borrow(host)
	if err != nil {
		t.Fatalf("Borrow: %v", err)
	}
	if conn.Address() != host.Address {
		t.Fatalf("Address() = %v, want %v", conn.Address(), host.Address)
	}

	select {
	case ev := <-f.Events():
		if !ev.Up {
			t.Fatal("expected Up event after Connect")
		}
	default:
		t.Fatal("expected a pool event after Connect")
	}
}

func TestFakeBorrowWithoutConnectFails(t *testing.T) {
	f := NewFake()
	host := &types.Host{Address: types.Address{Host: "a", Port: 9042}}
	if _, err := f.Borrow(host); err == nil {
		t.Fatal("Borrow on unconnected host should fail")
	}
}

func TestFakeConnectFailureMarksCritical(t *testing.T) {
	f := NewFake()
	host := &types.Host{Address: types.Address{Host: "a", Port: 9042}}
	f.FailAddresses[host.Address] = true

	if err := f.Connect(context.Background(), host); err == nil {
		t.Fatal("expected Connect to fail for configured address")
	}

	select {
	case ev := <-f.Events():
		if !ev.Critical {
			t.Fatal("expected Critical event on configured connect failure")
		}
	default:
		t.Fatal("expected a pool event after failed Connect")
	}
}

func TestFakeWriteRecordsPayload(t *testing.T) {
	f := NewFake()
	host := &types.Host{Address: types.Address{Host: "a", Port: 9042}}
	_ = f.Connect(context.Background(), host)
	conn, _ := f.Borrow(host)

	if ok := conn.Write(BytesCallback("select 1")); !ok {
		t.Fatal("Write returned false for a healthy connection")
	}
	writes := f.WritesTo(host)
	if len(writes) != 1 || string(writes[0].Encode()) != "select 1" {
		t.Fatalf("WritesTo(host) = %v, want one write of %q", writes, "select 1")
	}
}

func TestFakeRefuseWritesMarksConnectionUnwritable(t *testing.T) {
	f := NewFake()
	host := &types.Host{Address: types.Address{Host: "a", Port: 9042}}
	f.RefuseWrites[host.Address] = true
	_ = f.Connect(context.Background(), host)
	conn, _ := f.Borrow(host)

	if ok := conn.Write(BytesCallback("select 1")); ok {
		t.Fatal("Write returned true on a connection configured to refuse writes")
	}
}

func TestFakeDisconnectClosesConnection(t *testing.T) {
	f := NewFake()
	host := &types.Host{Address: types.Address{Host: "a", Port: 9042}}
	_ = f.Connect(context.Background(), host)
	conn, _ := f.Borrow(host)

	f.Disconnect(host)

	if !conn.IsClosed() {
		t.Fatal("Disconnect did not close the borrowed connection")
	}
	if _, err := f.Borrow(host); err == nil {
		t.Fatal("Borrow should fail after Disconnect")
	}
}
