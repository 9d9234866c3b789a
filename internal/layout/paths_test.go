package layout

import "testing"

func TestTileRelPathAndParseLeaf(t *testing.T) {
	p := TileRelPath([]int{10, 0}, 4, "numpy", "npy")
	want := "10/0/4.numpy.npy"
	if p != want {
		t.Fatalf("TileRelPath = %q, want %q", p, want)
	}

	lvl, tag, ext, err := ParseLeaf("4.numpy.npy")
	if err != nil {
		t.Fatalf("ParseLeaf: %v", err)
	}
	if lvl != 4 || tag != "numpy" || ext != "npy" {
		t.Fatalf("ParseLeaf = (%d, %q, %q), want (4, numpy, npy)", lvl, tag, ext)
	}
}

func TestTileRelPathScalarOrigin(t *testing.T) {
	p := TileRelPath(nil, 0, "pickle", "dat")
	if p != "0.pickle.dat" {
		t.Fatalf("TileRelPath(nil) = %q, want 0.pickle.dat", p)
	}
}

func TestSplitOrigin(t *testing.T) {
	origin, err := SplitOrigin([]string{"10", "0"})
	if err != nil {
		t.Fatalf("SplitOrigin: %v", err)
	}
	if len(origin) != 2 || origin[0] != 10 || origin[1] != 0 {
		t.Fatalf("SplitOrigin = %v, want [10 0]", origin)
	}

	if _, err := SplitOrigin([]string{"abc"}); err == nil {
		t.Fatal("SplitOrigin(abc) expected error")
	}
}
