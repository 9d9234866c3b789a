package codec

import (
	"bytes"
	"fmt"

	"github.com/kshedden/gonpy"
)

// NumericArray is the dense-numeric tile representation: a flat,
// row-major buffer plus its shape. It is the fast path of spec.md §4.A —
// consumers that want tile-level interoperability with the NumPy binary
// format construct their tiles as NumericArray directly rather than
// relying on reflection-based shape discovery.
type NumericArray struct {
	Dims []int
	Data []float64
}

// NumericCodec is the dense-numeric codec, backed by gonpy's .npy reader
// and writer.
type NumericCodec struct{}

func (NumericCodec) Tag() string       { return "numpy" }
func (NumericCodec) Extension() string { return "npy" }

func (NumericCodec) Detect(v any) bool {
	_, ok := v.(NumericArray)
	return ok
}

func (NumericCodec) Shape(v any) (Shape, error) {
	a, ok := v.(NumericArray)
	if !ok {
		return nil, fmt.Errorf("%T: %w", v, ErrUnsupportedType)
	}
	return append(Shape{}, a.Dims...), nil
}

func (NumericCodec) Encode(v any) ([]byte, error) {
	a, ok := v.(NumericArray)
	if !ok {
		return nil, fmt.Errorf("%T: %w", v, ErrUnsupportedType)
	}
	buf := &bytes.Buffer{}
	w, err := gonpy.NewWriter(buf)
	if err != nil {
		return nil, err
	}
	w.Shape = append([]int{}, a.Dims...)
	if err := w.WriteFloat64(a.Data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (NumericCodec) Decode(b []byte) (any, error) {
	r, err := gonpy.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	data, err := r.GetFloat64()
	if err != nil {
		return nil, err
	}
	return NumericArray{Dims: append([]int{}, r.Shape...), Data: data}, nil
}

func (NumericCodec) Stack(upper, lower any) (any, error) {
	l, ok := lower.(NumericArray)
	if !ok {
		return nil, fmt.Errorf("%T: %w", lower, ErrUnsupportedCodec)
	}
	if upper == nil {
		dims := append([]int{1}, l.Dims...)
		data := append([]float64{}, l.Data...)
		return NumericArray{Dims: dims, Data: data}, nil
	}
	u, ok := upper.(NumericArray)
	if !ok {
		return nil, fmt.Errorf("%T: %w", upper, ErrUnsupportedCodec)
	}
	if !Shape(u.Dims[1:]).Equal(Shape(l.Dims)) {
		return nil, fmt.Errorf("stack: tile shape %v != column shape %v: %w", l.Dims, u.Dims[1:], ErrInvalidSlice)
	}
	dims := append([]int{}, u.Dims...)
	dims[0]++
	data := make([]float64, 0, len(u.Data)+len(l.Data))
	data = append(data, u.Data...)
	data = append(data, l.Data...)
	return NumericArray{Dims: dims, Data: data}, nil
}

func (NumericCodec) Concat(a, b any, axis int) (any, error) {
	av, ok := a.(NumericArray)
	if !ok {
		return nil, fmt.Errorf("%T: %w", a, ErrUnsupportedCodec)
	}
	bv, ok := b.(NumericArray)
	if !ok {
		return nil, fmt.Errorf("%T: %w", b, ErrUnsupportedCodec)
	}
	if len(av.Dims) != len(bv.Dims) || axis < 0 || axis >= len(av.Dims) {
		return nil, fmt.Errorf("concat axis %d: %w", axis, ErrInvalidSlice)
	}
	for i := range av.Dims {
		if i == axis {
			continue
		}
		if av.Dims[i] != bv.Dims[i] {
			return nil, fmt.Errorf("concat: shape %v != %v off-axis: %w", av.Dims, bv.Dims, ErrInvalidSlice)
		}
	}
	outDims := append([]int{}, av.Dims...)
	outDims[axis] = av.Dims[axis] + bv.Dims[axis]

	stridesA := strides(av.Dims)
	stridesB := strides(bv.Dims)
	stridesOut := strides(outDims)
	total := product(outDims)
	out := make([]float64, total)

	idx := make([]int, len(outDims))
	var fill func(d int)
	fill = func(d int) {
		if d == len(outDims) {
			outOff := 0
			for i, v := range idx {
				outOff += v * stridesOut[i]
			}
			if idx[axis] < av.Dims[axis] {
				aOff := 0
				for i, v := range idx {
					aOff += v * stridesA[i]
				}
				out[outOff] = av.Data[aOff]
			} else {
				bOff := 0
				for i, v := range idx {
					if i == axis {
						v -= av.Dims[axis]
					}
					bOff += v * stridesB[i]
				}
				out[outOff] = bv.Data[bOff]
			}
			return
		}
		for i := 0; i < outDims[d]; i++ {
			idx[d] = i
			fill(d + 1)
		}
	}
	fill(0)
	return NumericArray{Dims: outDims, Data: out}, nil
}

func (NumericCodec) Slice(v any, key []Range) (any, error) {
	a, ok := v.(NumericArray)
	if !ok {
		return nil, fmt.Errorf("%T: %w", v, ErrUnsupportedCodec)
	}
	if len(key) > len(a.Dims) {
		return nil, fmt.Errorf("slice key rank %d > value rank %d: %w", len(key), len(a.Dims), ErrInvalidSlice)
	}
	src := strides(a.Dims)

	axisIdx := make([][]int, len(key))
	var outDims []int
	for i, r := range key {
		if r.IsInt {
			axisIdx[i] = []int{r.Start}
			continue
		}
		var idxs []int
		if r.Step > 0 {
			for x := r.Start; x < r.Stop; x += r.Step {
				idxs = append(idxs, x)
			}
		} else if r.Step < 0 {
			for x := r.Start; x > r.Stop; x += r.Step {
				idxs = append(idxs, x)
			}
		} else {
			return nil, fmt.Errorf("slice: zero step: %w", ErrInvalidSlice)
		}
		axisIdx[i] = idxs
		outDims = append(outDims, len(idxs))
	}
	// axes beyond key pass through unchanged.
	for i := len(key); i < len(a.Dims); i++ {
		idxs := make([]int, a.Dims[i])
		for j := range idxs {
			idxs[j] = j
		}
		axisIdx = append(axisIdx, idxs)
		outDims = append(outDims, a.Dims[i])
	}

	var out []float64
	var rec func(axis, offset int)
	rec = func(axis, offset int) {
		if axis == len(a.Dims) {
			out = append(out, a.Data[offset])
			return
		}
		for _, idx := range axisIdx[axis] {
			rec(axis+1, offset+idx*src[axis])
		}
	}
	rec(0, 0)
	if outDims == nil {
		outDims = []int{}
	}
	return NumericArray{Dims: outDims, Data: out}, nil
}

func (NumericCodec) SqueezeAxis0(v any) (any, error) {
	a, ok := v.(NumericArray)
	if !ok {
		return nil, fmt.Errorf("%T: %w", v, ErrUnsupportedCodec)
	}
	if len(a.Dims) == 0 {
		return a, nil
	}
	return NumericArray{Dims: append([]int{}, a.Dims[1:]...), Data: a.Data}, nil
}

func (NumericCodec) Blank() any {
	return NumericArray{Dims: []int{0}, Data: nil}
}

func strides(dims []int) []int {
	s := make([]int, len(dims))
	acc := 1
	for i := len(dims) - 1; i >= 0; i-- {
		s[i] = acc
		acc *= dims[i]
	}
	return s
}

func product(dims []int) int {
	p := 1
	for _, d := range dims {
		p *= d
	}
	return p
}
