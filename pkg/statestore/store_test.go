package statestore

import (
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func TestReadStatusDefaultsToAbsent(t *testing.T) {
	s := New(t.TempDir())
	status, err := s.ReadStatus()
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusAbsent {
		t.Fatalf("ReadStatus() = %v, want %v", status, StatusAbsent)
	}
}

func TestWriteReadStatus(t *testing.T) {
	s := New(t.TempDir())
	if err := s.WriteStatus(StatusReplaced); err != nil {
		t.Fatal(err)
	}
	status, err := s.ReadStatus()
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusReplaced {
		t.Fatalf("ReadStatus() = %v, want %v", status, StatusReplaced)
	}
}

func TestFailureSinceLifecycle(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	s := &Store{Dir: t.TempDir(), Clock: clock}

	if _, ok, err := s.FailureSince("cluster"); err != nil || ok {
		t.Fatalf("expected no recorded failure initially, ok=%v err=%v", ok, err)
	}

	if err := s.RecordFailureSince("cluster"); err != nil {
		t.Fatal(err)
	}

	clock.now = time.Unix(1030, 0)
	dur, ok, err := s.FailureDuration("cluster")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected failure to be recorded")
	}
	if dur != 30*time.Second {
		t.Fatalf("FailureDuration() = %v, want 30s", dur)
	}

	// Recording again while still failing must not reset the start time.
	if err := s.RecordFailureSince("cluster"); err != nil {
		t.Fatal(err)
	}
	dur, _, err = s.FailureDuration("cluster")
	if err != nil {
		t.Fatal(err)
	}
	if dur != 30*time.Second {
		t.Fatalf("FailureDuration() after re-record = %v, want unchanged 30s", dur)
	}

	if err := s.ClearFailureSince("cluster"); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := s.FailureSince("cluster"); err != nil || ok {
		t.Fatalf("expected failure to be cleared, ok=%v err=%v", ok, err)
	}
}

func TestFailureSinceIndependentKeys(t *testing.T) {
	clock := &fakeClock{now: time.Unix(500, 0)}
	s := &Store{Dir: t.TempDir(), Clock: clock}

	if err := s.RecordFailureSince("cluster"); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := s.FailureSince("member"); err != nil || ok {
		t.Fatalf("expected member key to be independent of cluster key, ok=%v err=%v", ok, err)
	}
}
