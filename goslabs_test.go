package goslabs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/grnydawn/goslabs/codec"
)

func tile(dims []int, data ...float64) codec.NumericArray {
	return codec.NumericArray{Dims: dims, Data: data}
}

// TestSingleProcessRoundTrip covers scenario S1 of spec.md §8: one
// process declares a variable, writes every tile, closes, and a reader
// gets back the exact array.
func TestSingleProcessRoundTrip(t *testing.T) {
	dir := t.TempDir()
	slabPath := filepath.Join(dir, "out.slab")

	m, err := MasterOpen(slabPath, 1)
	if err != nil {
		t.Fatalf("MasterOpen: %v", err)
	}
	length := uint64(4)
	if _, err := m.DefineDim("x", &length); err != nil {
		t.Fatalf("DefineDim: %v", err)
	}
	stackLen := Unlimited
	if _, err := m.DefineStack("time", &stackLen); err != nil {
		t.Fatalf("DefineStack: %v", err)
	}

	w, err := m.GetWriter("temp", Shape{2}, []string{"time", "x"})
	if err != nil {
		t.Fatalf("GetWriter: %v", err)
	}
	if err := m.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	if err := w.Write(tile([]int{2}, 1, 2), 0); err != nil {
		t.Fatalf("Write tile0: %v", err)
	}
	if err := w.Write(tile([]int{2}, 3, 4), 2); err != nil {
		t.Fatalf("Write tile1: %v", err)
	}
	w.Stacking(1)
	if err := w.Write(tile([]int{2}, 5, 6), 0); err != nil {
		t.Fatalf("Write tile2: %v", err)
	}
	if err := w.Write(tile([]int{2}, 7, 8), 2); err != nil {
		t.Fatalf("Write tile3: %v", err)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(slabPath); err != nil {
		t.Fatalf("archive not created: %v", err)
	}

	r, err := Open(slabPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := r.GetArray("temp", false)
	if err != nil {
		t.Fatalf("GetArray: %v", err)
	}
	want := codec.NumericArray{Dims: []int{2, 4}, Data: []float64{1, 2, 3, 4, 5, 6, 7, 8}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GetArray mismatch (-want +got):\n%s", diff)
	}
}

// TestParallelRoundTrip covers scenario S2: two peers write disjoint
// origins of the same variable, the master merges them.
func TestParallelRoundTrip(t *testing.T) {
	dir := t.TempDir()
	slabPath := filepath.Join(dir, "out.slab")

	m, err := MasterOpen(slabPath, 2)
	if err != nil {
		t.Fatalf("MasterOpen: %v", err)
	}
	length := uint64(4)
	if _, err := m.DefineDim("x", &length); err != nil {
		t.Fatalf("DefineDim: %v", err)
	}
	stackLen := uint64(1)
	if _, err := m.DefineStack("time", &stackLen); err != nil {
		t.Fatalf("DefineStack: %v", err)
	}
	if _, err := m.GetWriter("temp", Shape{2}, []string{"time", "x"}); err != nil {
		t.Fatalf("GetWriter: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		p, err := ParallelOpen(slabPath)
		if err != nil {
			done <- err
			return
		}
		w, err := p.GetWriter("temp")
		if err != nil {
			done <- err
			return
		}
		if err := w.Write(tile([]int{2}, 3, 4), 2); err != nil {
			done <- err
			return
		}
		done <- p.Close()
	}()

	if err := m.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	mw, err := m.GetWriter("temp", Shape{2}, []string{"time", "x"})
	if err != nil {
		t.Fatalf("GetWriter after begin: %v", err)
	}
	if err := mw.Write(tile([]int{2}, 1, 2), 0); err != nil {
		t.Fatalf("master write: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("peer: %v", err)
	}

	r, err := Open(slabPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := r.GetArray("temp", true)
	if err != nil {
		t.Fatalf("GetArray: %v", err)
	}
	want := codec.NumericArray{Dims: []int{4}, Data: []float64{1, 2, 3, 4}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GetArray mismatch (-want +got):\n%s", diff)
	}
}

// TestShapeMismatchRejected covers spec.md §7's ShapeMismatch: a tile
// whose shape differs from the declared tile shape is rejected.
func TestShapeMismatchRejected(t *testing.T) {
	dir := t.TempDir()
	slabPath := filepath.Join(dir, "out.slab")
	m, err := MasterOpen(slabPath, 1)
	if err != nil {
		t.Fatalf("MasterOpen: %v", err)
	}
	w, err := m.GetWriter("temp", Shape{2}, []string{"time", "x"})
	if err != nil {
		t.Fatalf("GetWriter: %v", err)
	}
	if err := w.Write(tile([]int{3}, 1, 2, 3), 0); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("Write: want ErrShapeMismatch, got %v", err)
	}
}

// TestDuplicateTileRejected covers spec.md §7's DuplicateTile.
func TestDuplicateTileRejected(t *testing.T) {
	dir := t.TempDir()
	slabPath := filepath.Join(dir, "out.slab")
	m, err := MasterOpen(slabPath, 1)
	if err != nil {
		t.Fatalf("MasterOpen: %v", err)
	}
	w, err := m.GetWriter("temp", Shape{2}, []string{"time", "x"})
	if err != nil {
		t.Fatalf("GetWriter: %v", err)
	}
	if err := w.Write(tile([]int{2}, 1, 2), 0); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := w.Write(tile([]int{2}, 3, 4), 0); !errors.Is(err, ErrDuplicateTile) {
		t.Fatalf("Write: want ErrDuplicateTile, got %v", err)
	}
}
