package schemaagreement

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestWaitReturnsImmediatelyWhenAgreed(t *testing.T) {
	h := New(func() (bool, error) { return true, nil }, time.Millisecond, time.Second)
	timedOut, err := h.Wait(context.Background())
	if err != nil || timedOut {
		t.Fatalf("Wait() = %v, %v; want false, nil", timedOut, err)
	}
}

func TestWaitTimesOutWhenNeverAgreed(t *testing.T) {
	h := New(func() (bool, error) { return false, nil }, time.Millisecond, 20*time.Millisecond)
	timedOut, err := h.Wait(context.Background())
	if err != nil || !timedOut {
		t.Fatalf("Wait() = %v, %v; want true, nil", timedOut, err)
	}
}

func TestWaitAgreesAfterSomePolls(t *testing.T) {
	var calls atomic.Int32
	h := New(func() (bool, error) {
		return calls.Add(1) >= 3, nil
	}, time.Millisecond, time.Second)

	timedOut, err := h.Wait(context.Background())
	if err != nil || timedOut {
		t.Fatalf("Wait() = %v, %v; want false, nil", timedOut, err)
	}
	if calls.Load() < 3 {
		t.Fatalf("check called %d times, want >= 3", calls.Load())
	}
}

func TestWaitPropagatesCheckError(t *testing.T) {
	wantErr := errors.New("boom")
	h := New(func() (bool, error) { return false, wantErr }, time.Millisecond, time.Second)
	_, err := h.Wait(context.Background())
	if err != wantErr {
		t.Fatalf("Wait() err = %v, want %v", err, wantErr)
	}
}

func TestWaitAsyncCallsOnDoneOnce(t *testing.T) {
	h := New(func() (bool, error) { return true, nil }, time.Millisecond, time.Second)
	done := make(chan struct{})
	h.WaitAsync(context.Background(), func(timedOut bool, err error) {
		if timedOut || err != nil {
			t.Errorf("onDone(%v, %v), want false, nil", timedOut, err)
		}
		close(done)
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("onDone was never called")
	}
}
