package goSession

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/container/containertest"
)

func TestSweepRemovesExpiredRecords(t *testing.T) {
	f := newManagerFixture(t, nil)
	f.store.Put(testID('a'), []byte("x"), testNow.Add(-time.Hour))
	f.store.Put(testID('b'), []byte("y"), testNow)

	ok, err := f.m.Sweep(context.Background())
	if err != nil || !ok {
		t.Fatalf("Sweep: %v %v", ok, err)
	}
	if f.store.Len() != 1 {
		t.Fatalf("expected 1 record, got %d", f.store.Len())
	}
	if n := f.rec.Count(containertest.OpClose); n != 1 {
		t.Fatalf("expected the sweep container to be closed, got %d", n)
	}
}

func TestSweepReportsBackendFailure(t *testing.T) {
	f := newManagerFixture(t, nil)
	f.rec.Fail(containertest.OpGC, errors.New("locked"))

	if _, err := f.m.Sweep(context.Background()); !errors.Is(err, ErrBackendFailure) {
		t.Fatalf("expected backend failure, got %v", err)
	}
}

func TestRunSweeperStopsWithContext(t *testing.T) {
	f := newManagerFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.m.RunSweeper(ctx, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for f.rec.Count(containertest.OpGC) == 0 {
		select {
		case <-deadline:
			t.Fatal("sweeper never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
