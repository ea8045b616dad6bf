package session

import (
	"context"
	"testing"
	"time"

	logx "remindbot/pkg/logx"
)

func TestPutGetDelete(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())

	if _, ok := s.Get(1); ok {
		t.Fatal("empty store returned a session")
	}

	s.Put(1, "step-datetime")
	v, ok := s.Get(1)
	if !ok || v != "step-datetime" {
		t.Fatalf("Get = (%v, %v), want (step-datetime, true)", v, ok)
	}

	// Put replaces.
	s.Put(1, "step-text")
	if v, _ := s.Get(1); v != "step-text" {
		t.Fatalf("Get after replace = %v", v)
	}

	s.Delete(1)
	if _, ok := s.Get(1); ok {
		t.Fatal("session survived Delete")
	}
	// Deleting again is a no-op.
	s.Delete(1)
}

func TestSessionsAreIsolatedPerUser(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	s.Put(1, "a")
	s.Put(2, "b")

	if v, _ := s.Get(1); v != "a" {
		t.Fatalf("user 1 state = %v", v)
	}
	if v, _ := s.Get(2); v != "b" {
		t.Fatalf("user 2 state = %v", v)
	}
	s.Delete(1)
	if _, ok := s.Get(2); !ok {
		t.Fatal("deleting user 1 dropped user 2")
	}
}

func TestExpiredEntryIsDroppedOnGet(t *testing.T) {
	t.Parallel()
	s := New(Config{TTL: 20 * time.Millisecond}, logx.Nop())
	s.Put(1, "x")

	time.Sleep(40 * time.Millisecond)
	if _, ok := s.Get(1); ok {
		t.Fatal("expired session returned")
	}
	if s.Len() != 0 {
		t.Fatalf("Len = %d after expiry", s.Len())
	}
}

func TestGetRefreshesTTL(t *testing.T) {
	t.Parallel()
	s := New(Config{TTL: 60 * time.Millisecond}, logx.Nop())
	s.Put(1, "x")

	// Keep touching within the TTL; the entry must stay alive past the
	// original deadline.
	for i := 0; i < 4; i++ {
		time.Sleep(30 * time.Millisecond)
		if _, ok := s.Get(1); !ok {
			t.Fatalf("session expired despite activity (touch %d)", i)
		}
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	t.Parallel()
	s := New(Config{TTL: 10 * time.Millisecond, SweepInterval: 15 * time.Millisecond}, logx.Nop())
	s.Start(context.Background())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(ctx)
	}()

	s.Put(1, "x")
	s.Put(2, "y")

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if s.Len() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("sweep never cleared expired sessions")
}
