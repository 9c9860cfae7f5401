// Package containertest provides a conformance suite every backend runs against, and a
// recording provider used to observe exactly which container calls the coordinator
// makes.
package containertest

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/container"
)

// Conformance exercises the container contract against a provider. ids must be valid
// for any backend.
func Conformance(t *testing.T, p container.Provider, now time.Time) {
	t.Helper()
	ctx := context.Background()

	open := func(t *testing.T) container.Container {
		t.Helper()
		c := p.NewContainer()
		if err := c.Init(ctx, container.InitParams{SavePath: t.TempDir(), Name: "GOSESSID", Now: now}); err != nil {
			t.Fatalf("init: %v", err)
		}
		t.Cleanup(func() { _ = c.Close() })
		return c
	}

	t.Run("MissIsNotAnError", func(t *testing.T) {
		c := open(t)
		data, ok, err := c.Get(ctx, "conformance0missing")
		if err != nil {
			t.Fatalf("get missing: %v", err)
		}
		if ok || data != nil {
			t.Fatalf("expected miss, got ok=%v data=%q", ok, data)
		}
	})

	t.Run("SetThenGet", func(t *testing.T) {
		c := open(t)
		want := []byte("ciphertext-1")
		ok, err := c.Set(ctx, "conformance1set", want)
		if err != nil || !ok {
			t.Fatalf("set: ok=%v err=%v", ok, err)
		}
		got, found, err := c.Get(ctx, "conformance1set")
		if err != nil || !found {
			t.Fatalf("get after set: found=%v err=%v", found, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("got %q want %q", got, want)
		}
	})

	t.Run("SetOverwrites", func(t *testing.T) {
		c := open(t)
		if _, err := c.Set(ctx, "conformance2upsert", []byte("v1")); err != nil {
			t.Fatalf("first set: %v", err)
		}
		if _, err := c.Set(ctx, "conformance2upsert", []byte("v2")); err != nil {
			t.Fatalf("second set: %v", err)
		}
		got, _, err := c.Get(ctx, "conformance2upsert")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if string(got) != "v2" {
			t.Fatalf("expected overwrite, got %q", got)
		}
	})

	t.Run("Touch", func(t *testing.T) {
		c := open(t)
		if _, err := c.Set(ctx, "conformance3touch", []byte("v")); err != nil {
			t.Fatalf("set: %v", err)
		}
		ok, err := c.Touch(ctx, "conformance3touch", []byte("v"))
		if err != nil || !ok {
			t.Fatalf("touch existing: ok=%v err=%v", ok, err)
		}
		ok, err = c.Touch(ctx, "conformance3absent", []byte("v"))
		if err != nil {
			t.Fatalf("touch missing: %v", err)
		}
		if ok {
			t.Fatal("touch of a missing record must report false")
		}
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		c := open(t)
		if _, err := c.Set(ctx, "conformance4delete", []byte("v")); err != nil {
			t.Fatalf("set: %v", err)
		}
		for i := 0; i < 2; i++ {
			if _, err := c.Delete(ctx, "conformance4delete"); err != nil {
				t.Fatalf("delete #%d: %v", i+1, err)
			}
		}
		if _, found, err := c.Get(ctx, "conformance4delete"); err != nil || found {
			t.Fatalf("expected miss after delete, found=%v err=%v", found, err)
		}
	})

	t.Run("GC", func(t *testing.T) {
		c := open(t)
		ok, err := c.GC(ctx, time.Hour)
		if err != nil || !ok {
			t.Fatalf("gc: ok=%v err=%v", ok, err)
		}
	})
}
