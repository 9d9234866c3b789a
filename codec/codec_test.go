package codec

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNumericCodecRoundTrip(t *testing.T) {
	a := NumericArray{Dims: []int{2, 3}, Data: []float64{1, 2, 3, 4, 5, 6}}
	c := NumericCodec{}
	b, err := c.Encode(a)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := c.Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	na := got.(NumericArray)
	if diff := cmp.Diff(a.Dims, na.Dims); diff != "" {
		t.Errorf("dims mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(a.Data, na.Data); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestNumericCodecStack(t *testing.T) {
	c := NumericCodec{}
	lower := NumericArray{Dims: []int{2}, Data: []float64{1, 2}}
	up, err := c.Stack(nil, lower)
	if err != nil {
		t.Fatalf("Stack(nil, lower): %v", err)
	}
	u := up.(NumericArray)
	if diff := cmp.Diff([]int{1, 2}, u.Dims); diff != "" {
		t.Errorf("dims after first stack (-want +got):\n%s", diff)
	}

	lower2 := NumericArray{Dims: []int{2}, Data: []float64{3, 4}}
	up2, err := c.Stack(u, lower2)
	if err != nil {
		t.Fatalf("Stack(u, lower2): %v", err)
	}
	u2 := up2.(NumericArray)
	if diff := cmp.Diff([]int{2, 2}, u2.Dims); diff != "" {
		t.Errorf("dims after second stack (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{1, 2, 3, 4}, u2.Data); diff != "" {
		t.Errorf("data after second stack (-want +got):\n%s", diff)
	}
}

func TestNumericCodecConcatAxis1(t *testing.T) {
	c := NumericCodec{}
	a := NumericArray{Dims: []int{2, 2}, Data: []float64{1, 2, 3, 4}}
	b := NumericArray{Dims: []int{2, 3}, Data: []float64{5, 6, 7, 8, 9, 10}}
	got, err := c.Concat(a, b, 1)
	if err != nil {
		t.Fatalf("Concat: %v", err)
	}
	r := got.(NumericArray)
	want := NumericArray{Dims: []int{2, 5}, Data: []float64{1, 2, 5, 6, 7, 3, 4, 8, 9, 10}}
	if diff := cmp.Diff(want, r); diff != "" {
		t.Errorf("concat result mismatch (-want +got):\n%s", diff)
	}
}

func TestNumericCodecSliceDropsIntAxis(t *testing.T) {
	c := NumericCodec{}
	a := NumericArray{Dims: []int{3, 3}, Data: []float64{0, 1, 2, 3, 4, 5, 6, 7, 8}}
	got, err := c.Slice(a, []Range{{IsInt: true, Start: 1}, {Start: 0, Stop: 3, Step: 2}})
	if err != nil {
		t.Fatalf("Slice: %v", err)
	}
	r := got.(NumericArray)
	want := NumericArray{Dims: []int{2}, Data: []float64{3, 5}}
	if diff := cmp.Diff(want, r); diff != "" {
		t.Errorf("slice result mismatch (-want +got):\n%s", diff)
	}
}

func TestNumericCodecSqueezeAxis0(t *testing.T) {
	c := NumericCodec{}
	a := NumericArray{Dims: []int{1, 4}, Data: []float64{1, 2, 3, 4}}
	got, err := c.SqueezeAxis0(a)
	if err != nil {
		t.Fatalf("SqueezeAxis0: %v", err)
	}
	r := got.(NumericArray)
	if diff := cmp.Diff([]int{4}, r.Dims); diff != "" {
		t.Errorf("dims mismatch (-want +got):\n%s", diff)
	}
}

func TestObjectCodecRoundTrip(t *testing.T) {
	c := ObjectCodec{}
	v := []int{1, 2, 3}
	b, err := c.Encode(v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := c.Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff(v, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestObjectCodecStackAndConcat(t *testing.T) {
	c := ObjectCodec{}
	up, err := c.Stack(nil, []int{1, 2, 3})
	if err != nil {
		t.Fatalf("Stack(nil, ...): %v", err)
	}
	up, err = c.Stack(up, []int{4, 5, 6})
	if err != nil {
		t.Fatalf("Stack(up, ...): %v", err)
	}
	want := [][]int{{1, 2, 3}, {4, 5, 6}}
	if diff := cmp.Diff(want, up); diff != "" {
		t.Errorf("stack mismatch (-want +got):\n%s", diff)
	}

	cat, err := c.Concat([][]int{{1, 2}}, [][]int{{3, 4}}, 0)
	if err != nil {
		t.Fatalf("Concat axis0: %v", err)
	}
	if diff := cmp.Diff([][]int{{1, 2}, {3, 4}}, cat); diff != "" {
		t.Errorf("concat axis0 mismatch (-want +got):\n%s", diff)
	}
}

func TestObjectCodecSliceAndSqueeze(t *testing.T) {
	c := ObjectCodec{}
	v := [][]int{{0, 1, 2}, {3, 4, 5}, {6, 7, 8}}
	got, err := c.Slice(v, []Range{{IsInt: true, Start: 1}})
	if err != nil {
		t.Fatalf("Slice: %v", err)
	}
	if diff := cmp.Diff([]int{3, 4, 5}, got); diff != "" {
		t.Errorf("slice mismatch (-want +got):\n%s", diff)
	}

	sq, err := c.SqueezeAxis0([][]int{{1, 2, 3}})
	if err != nil {
		t.Fatalf("SqueezeAxis0: %v", err)
	}
	if diff := cmp.Diff([]int{1, 2, 3}, sq); diff != "" {
		t.Errorf("squeeze mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistryDetectFallsBackToObject(t *testing.T) {
	r := Default()
	c, err := r.Detect(NumericArray{Dims: []int{1}, Data: []float64{1}})
	if err != nil || c.Tag() != "numpy" {
		t.Fatalf("expected numpy codec for NumericArray, got %v, err %v", c, err)
	}
	c, err = r.Detect([]int{1, 2, 3})
	if err != nil || c.Tag() != "pickle" {
		t.Fatalf("expected pickle fallback for []int, got %v, err %v", c, err)
	}
}
