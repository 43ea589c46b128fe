package service

import (
	"context"
	"testing"
	"time"
)

func TestNewPrunerDisabled(t *testing.T) {
	auth, _ := newTestAuth(t)
	p := NewPruner(auth, 0, nil)
	if p != nil {
		t.Fatal("expected nil pruner for zero interval")
	}
	// Nil pruner methods are no-ops.
	p.Start()
	p.Stop()
}

func TestPrunerSweepsOnStart(t *testing.T) {
	auth, st := newTestAuth(t)
	ctx := context.Background()

	if err := st.BlacklistToken(ctx, "stale", time.Now().Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}

	p := NewPruner(auth, time.Hour, nil)
	p.Start()

	deadline := time.Now().Add(2 * time.Second)
	for {
		count, err := st.CountBlacklisted(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if count == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("pruner did not sweep the stale entry")
		}
		time.Sleep(10 * time.Millisecond)
	}

	p.Stop()
}
