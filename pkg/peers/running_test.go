package peers

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
)

func TestFileRunningNodeCounter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "running-count")
	if err := ioutil.WriteFile(path, []byte("3\n"), 0644); err != nil {
		t.Fatal(err)
	}
	c := &FileRunningNodeCounter{Path: path}
	n, err := c.CountRunning(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("CountRunning() = %d, want 3", n)
	}
}

func TestFileRunningNodeCounterMissingFile(t *testing.T) {
	dir := t.TempDir()
	c := &FileRunningNodeCounter{Path: filepath.Join(dir, "does-not-exist")}
	n, err := c.CountRunning(context.Background())
	if err != nil {
		t.Fatalf("expected no error for missing sentinel file, got %v", err)
	}
	if n != 0 {
		t.Fatalf("CountRunning() = %d, want 0", n)
	}
}

func TestFileRunningNodeCounterMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "running-count")
	if err := ioutil.WriteFile(path, []byte("not-a-number"), 0644); err != nil {
		t.Fatal(err)
	}
	c := &FileRunningNodeCounter{Path: path}
	if _, err := c.CountRunning(context.Background()); err == nil {
		t.Fatal("expected error for malformed sentinel file")
	}
}

type fakeCounter struct {
	n   int
	err error
}

func (f *fakeCounter) CountRunning(ctx context.Context) (int, error) {
	return f.n, f.err
}

func TestSummedRunningNodeCounter(t *testing.T) {
	s := &SummedRunningNodeCounter{
		Counters: []RunningNodeCounter{
			&fakeCounter{n: 2},
			&fakeCounter{n: 3},
		},
	}
	n, err := s.CountRunning(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Fatalf("CountRunning() = %d, want 5 (sum without dedup)", n)
	}
}

func TestSummedRunningNodeCounterSingle(t *testing.T) {
	s := &SummedRunningNodeCounter{Counters: []RunningNodeCounter{&fakeCounter{n: 4}}}
	n, err := s.CountRunning(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Fatalf("CountRunning() = %d, want 4", n)
	}
}

func TestSummedRunningNodeCounterPropagatesError(t *testing.T) {
	s := &SummedRunningNodeCounter{
		Counters: []RunningNodeCounter{
			&fakeCounter{n: 1},
			&fakeCounter{err: os.ErrInvalid},
		},
	}
	if _, err := s.CountRunning(context.Background()); err == nil {
		t.Fatal("expected error to propagate from a failing counter")
	}
}
