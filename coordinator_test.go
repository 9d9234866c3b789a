package goslabs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// fakeClock lets coordinator tests cross OPEN_TIMEOUT/CLOSE_TIMEOUT
// instantly instead of sleeping in real time: sleep() advances the
// clock rather than blocking.
type fakeClock struct {
	cur time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{cur: time.Unix(0, 0)}
}

func (f *fakeClock) now() time.Time        { return f.cur }
func (f *fakeClock) sleep(d time.Duration) { f.cur = f.cur.Add(d) }

// TestBeginCohortIncomplete covers scenario S5 of spec.md §8: a master
// expecting 3 processes but seeing only itself times out with
// CohortIncomplete(1,3).
func TestBeginCohortIncomplete(t *testing.T) {
	dir := t.TempDir()
	slabPath := filepath.Join(dir, "out.slab")
	fc := newFakeClock()

	m, err := MasterOpen(slabPath, 3,
		withClock(fc.now),
		withSleep(fc.sleep),
		WithOpenTimeout(30*time.Millisecond),
		WithPollInterval(10*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("MasterOpen: %v", err)
	}

	err = m.Begin()
	var cohortErr *CohortIncompleteError
	if !errors.As(err, &cohortErr) {
		t.Fatalf("Begin: want *CohortIncompleteError, got %v", err)
	}
	if cohortErr.Actual != 1 || cohortErr.Expected != 3 {
		t.Errorf("CohortIncompleteError = {%d,%d}, want {1,3}", cohortErr.Actual, cohortErr.Expected)
	}
	if !errors.Is(err, ErrCohortIncomplete) {
		t.Errorf("Begin: want errors.Is ErrCohortIncomplete")
	}
}

// TestBeginSucceedsWhenCohortComplete exercises the happy path: once
// enough process subdirectories exist, Begin returns without waiting
// out the full timeout.
func TestBeginSucceedsWhenCohortComplete(t *testing.T) {
	dir := t.TempDir()
	slabPath := filepath.Join(dir, "out.slab")
	fc := newFakeClock()

	m, err := MasterOpen(slabPath, 2,
		withClock(fc.now),
		withSleep(fc.sleep),
		WithOpenTimeout(time.Second),
		WithPollInterval(10*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("MasterOpen: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(m.workPath, newProcessID()), 0o755); err != nil {
		t.Fatalf("simulating peer join: %v", err)
	}
	if err := m.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
}

// TestParallelOpenNoBeginToken covers spec.md §7's NoBeginToken: a peer
// opening against a path the master never opened times out.
func TestParallelOpenNoBeginToken(t *testing.T) {
	dir := t.TempDir()
	slabPath := filepath.Join(dir, "out.slab")
	fc := newFakeClock()

	_, err := ParallelOpen(slabPath,
		withClock(fc.now),
		withSleep(fc.sleep),
		WithOpenTimeout(30*time.Millisecond),
		WithPollInterval(10*time.Millisecond),
	)
	if !errors.Is(err, ErrNoBeginToken) {
		t.Fatalf("ParallelOpen: want ErrNoBeginToken, got %v", err)
	}
}

// TestParallelOpenNoConfig covers spec.md §7's NoConfig: the begin
// token exists (MasterOpen ran) but CONFIG was never published because
// Begin was never called.
func TestParallelOpenNoConfig(t *testing.T) {
	dir := t.TempDir()
	slabPath := filepath.Join(dir, "out.slab")
	fc := newFakeClock()

	if _, err := MasterOpen(slabPath, 2); err != nil {
		t.Fatalf("MasterOpen: %v", err)
	}

	_, err := ParallelOpen(slabPath,
		withClock(fc.now),
		withSleep(fc.sleep),
		WithOpenTimeout(30*time.Millisecond),
		WithPollInterval(10*time.Millisecond),
	)
	if !errors.Is(err, ErrNoConfig) {
		t.Fatalf("ParallelOpen: want ErrNoConfig, got %v", err)
	}
}

// TestCloseFinishTimeout covers spec.md §7's FinishTimeout: the cohort
// completes Begin but a joined peer never calls Close, so the master's
// Close never observes that peer's FINISH marker.
func TestCloseFinishTimeout(t *testing.T) {
	dir := t.TempDir()
	slabPath := filepath.Join(dir, "out.slab")
	fc := newFakeClock()

	m, err := MasterOpen(slabPath, 2,
		withClock(fc.now),
		withSleep(fc.sleep),
		WithOpenTimeout(time.Second),
		WithCloseTimeout(30*time.Millisecond),
		WithPollInterval(10*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("MasterOpen: %v", err)
	}
	// Simulate a peer that joined (so Begin's cohort check passes) but
	// never finishes (so Close's finish-marker wait times out).
	if err := os.MkdirAll(filepath.Join(m.workPath, newProcessID()), 0o755); err != nil {
		t.Fatalf("simulating peer join: %v", err)
	}
	if err := m.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	err = m.Close()
	if !errors.Is(err, ErrFinishTimeout) {
		t.Fatalf("Close: want ErrFinishTimeout, got %v", err)
	}
}

func TestListProcessDirsFiltersNonProcessEntries(t *testing.T) {
	dir := t.TempDir()
	pid := newProcessID()
	if err := os.MkdirAll(filepath.Join(dir, pid), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "not-a-pid"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "__config__"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	ids, err := listProcessDirs(os.ReadDir, dir)
	if err != nil {
		t.Fatalf("listProcessDirs: %v", err)
	}
	if len(ids) != 1 || ids[0] != pid {
		t.Errorf("listProcessDirs = %v, want [%s]", ids, pid)
	}
}
