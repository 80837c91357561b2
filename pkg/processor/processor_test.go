package processor

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/meridian/pkg/config"
	"github.com/cuemby/meridian/pkg/handler"
	"github.com/cuemby/meridian/pkg/listener"
	"github.com/cuemby/meridian/pkg/policy"
	"github.com/cuemby/meridian/pkg/pool"
	"github.com/cuemby/meridian/pkg/profile"
	"github.com/cuemby/meridian/pkg/queue"
	"github.com/cuemby/meridian/pkg/types"
)

func testSettings() config.Settings {
	s := config.DefaultSettings()
	s.MaxSchemaWaitTime = 50 * time.Millisecond
	return s
}

func newTestProcessor(t *testing.T, fake *pool.Fake, hosts ...*types.Host) *Processor {
	t.Helper()
	hm := make(types.HostMap, len(hosts))
	for _, h := range hosts {
		hm[h.Address] = h
	}
	prof := profile.New("default", func() policy.LoadBalancingPolicy {
		return policy.NewRoundRobinPolicy()
	})

	p := New(Params{
		PoolManager:    fake,
		Hosts:          hm,
		Settings:       testSettings(),
		Queue:          queue.New[*handler.RequestHandler](64),
		DefaultProfile: prof,
		Profiles:       profile.Map{},
	})
	p.Start()
	t.Cleanup(func() {
		p.Close()
		select {
		case <-p.Closed():
		case <-time.After(time.Second):
			t.Fatal("processor did not close in time")
		}
	})
	return p
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestEnqueueDispatchesAgainstConnectedHost(t *testing.T) {
	fake := pool.NewFake()
	host := &types.Host{Address: types.Address{Host: "a", Port: 9042}, State: types.HostUp}
	_ = fake.Connect(context.Background(), host)

	p := newTestProcessor(t, fake, host)

	var result *handler.Error
	done := make(chan struct{})
	h := handler.New("ks", "select 1", "", func(err *handler.Error) {
		result = err
		close(done)
	})
	if err := p.Enqueue(h); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("request never completed")
	}
	if result != nil {
		t.Fatalf("result = %v, want nil", result)
	}
	waitFor(t, func() bool { return len(fake.WritesTo(host)) == 1 })
}

func TestEnqueueWithUnknownProfileSetsError(t *testing.T) {
	fake := pool.NewFake()
	host := &types.Host{Address: types.Address{Host: "a", Port: 9042}, State: types.HostUp}
	_ = fake.Connect(context.Background(), host)

	p := newTestProcessor(t, fake, host)

	var result *handler.Error
	done := make(chan struct{})
	h := handler.New("ks", "select 1", "ghost", func(err *handler.Error) {
		result = err
		close(done)
	})
	if err := p.Enqueue(h); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("request never completed")
	}
	if result == nil || result.Code != handler.ErrorExecutionProfileInvalid {
		t.Fatalf("result = %v, want ErrorExecutionProfileInvalid", result)
	}
}

func TestNotifyHostAddConnectsAndReachesPolicy(t *testing.T) {
	fake := pool.NewFake()
	p := newTestProcessor(t, fake)

	host := &types.Host{Address: types.Address{Host: "b", Port: 9042}, State: types.HostAdded}
	p.NotifyHostAdd(host)

	waitFor(t, func() bool {
		_, err := fake.Borrow(host)
		return err == nil
	})

	var result *handler.Error
	done := make(chan struct{})
	h := handler.New("ks", "select 1", "", func(err *handler.Error) {
		result = err
		close(done)
	})
	if err := p.Enqueue(h); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("request never completed")
	}
	if result != nil {
		t.Fatalf("result = %v, want nil", result)
	}
}

func TestNotifyHostRemoveStopsFutureDispatch(t *testing.T) {
	fake := pool.NewFake()
	host := &types.Host{Address: types.Address{Host: "a", Port: 9042}, State: types.HostUp}
	_ = fake.Connect(context.Background(), host)
	p := newTestProcessor(t, fake, host)

	p.NotifyHostRemove(host)

	var result *handler.Error
	done := make(chan struct{})
	h := handler.New("ks", "select 1", "", func(err *handler.Error) {
		result = err
		close(done)
	})
	if err := p.Enqueue(h); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("request never completed")
	}
	if result == nil || result.Code != handler.ErrorNoHostsAvailable {
		t.Fatalf("result = %v, want ErrorNoHostsAvailable", result)
	}
}

func TestPoolCriticalErrorReachesListener(t *testing.T) {
	fake := pool.NewFake()
	host := &types.Host{Address: types.Address{Host: "a", Port: 9042}, State: types.HostAdded}
	fake.FailAddresses[host.Address] = true

	notified := make(chan *types.Host, 1)
	lst := &recordingListener{onCriticalError: func(h *types.Host, _ error) { notified <- h }}

	prof := profile.New("default", func() policy.LoadBalancingPolicy { return policy.NewRoundRobinPolicy() })
	p := New(Params{
		PoolManager:    fake,
		Listener:       lst,
		Settings:       testSettings(),
		Queue:          queue.New[*handler.RequestHandler](64),
		DefaultProfile: prof,
		Profiles:       profile.Map{},
	})
	p.Start()
	defer func() {
		p.Close()
		<-p.Closed()
	}()

	p.NotifyHostAdd(host)

	select {
	case got := <-notified:
		if got.Address != host.Address {
			t.Fatalf("notified host = %v, want %v", got.Address, host.Address)
		}
	case <-time.After(time.Second):
		t.Fatal("listener never notified of critical error")
	}
}

func TestCloseIsIdempotentAndDrainsFirst(t *testing.T) {
	fake := pool.NewFake()
	host := &types.Host{Address: types.Address{Host: "a", Port: 9042}, State: types.HostUp}
	_ = fake.Connect(context.Background(), host)

	prof := profile.New("default", func() policy.LoadBalancingPolicy { return policy.NewRoundRobinPolicy() })
	hm := types.HostMap{host.Address: host}
	p := New(Params{
		PoolManager:    fake,
		Hosts:          hm,
		Settings:       testSettings(),
		Queue:          queue.New[*handler.RequestHandler](64),
		DefaultProfile: prof,
		Profiles:       profile.Map{},
	})
	p.Start()

	done := make(chan struct{})
	h := handler.New("ks", "select 1", "", func(*handler.Error) { close(done) })
	if err := p.Enqueue(h); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	p.Close()
	p.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueued request never completed before close")
	}
	select {
	case <-p.Closed():
	case <-time.After(time.Second):
		t.Fatal("processor never reported closed")
	}
}

type recordingListener struct {
	listener.Nop
	onCriticalError func(host *types.Host, err error)
}

func (l *recordingListener) OnPoolCriticalError(host *types.Host, err error) {
	if l.onCriticalError != nil {
		l.onCriticalError(host, err)
	}
}
