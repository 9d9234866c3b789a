package codec

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"reflect"
)

// ObjectCodec is the generic fallback codec of spec.md §4.A: a
// self-describing serialization (encoding/gob, the Go analog of Python's
// pickle) paired with reflection-based shape/stack/concat/slice
// operations over nested Go slices, mirroring the original's
// list-of-lists builtins codec.
//
// gob only round-trips a concrete type through an interface{} value if
// that type was registered with gob.Register; RegisterType exposes this
// to callers that want to write tiles of a custom type through the
// fallback codec.
type ObjectCodec struct{}

// RegisterType makes a concrete tile type usable with ObjectCodec. Call
// it with a zero value of the type before writing or reading tiles of
// that type through the generic fallback.
func RegisterType(v any) {
	gob.Register(v)
}

func init() {
	for _, v := range []any{
		0, int8(0), int16(0), int32(0), int64(0),
		uint(0), uint8(0), uint16(0), uint32(0), uint64(0),
		float32(0), float64(0), "", false,
		[]int{}, []int64{}, []float64{}, []string{}, []bool{}, []any{},
		[][]int{}, [][]float64{}, [][]any{},
		[3]int{},
	} {
		gob.Register(v)
	}
}

func (ObjectCodec) Tag() string       { return "pickle" }
func (ObjectCodec) Extension() string { return "dat" }

// Detect always reports true; ObjectCodec is the registry's catch-all.
func (ObjectCodec) Detect(v any) bool { return true }

func (ObjectCodec) Encode(v any) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := gob.NewEncoder(buf).Encode(&v); err != nil {
		return nil, fmt.Errorf("pickle encode %T: %w: %w", v, err, ErrUnsupportedType)
	}
	return buf.Bytes(), nil
}

func (ObjectCodec) Decode(b []byte) (any, error) {
	var v any
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&v); err != nil {
		return nil, fmt.Errorf("pickle decode: %w: %w", err, ErrUnsupportedType)
	}
	return v, nil
}

func (ObjectCodec) Shape(v any) (Shape, error) {
	rv := reflect.ValueOf(v)
	var s Shape
	for rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		l := rv.Len()
		s = append(s, l)
		if l == 0 {
			break
		}
		rv = rv.Index(0)
	}
	if s == nil {
		s = Shape{}
	}
	return s, nil
}

func (ObjectCodec) Stack(upper, lower any) (any, error) {
	lv := reflect.ValueOf(lower)
	if upper == nil {
		sl := reflect.MakeSlice(reflect.SliceOf(lv.Type()), 1, 1)
		sl.Index(0).Set(lv)
		return sl.Interface(), nil
	}
	uv := reflect.ValueOf(upper)
	if uv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("stack: upper is %s, want slice: %w", uv.Kind(), ErrUnsupportedCodec)
	}
	out := reflect.MakeSlice(uv.Type(), uv.Len(), uv.Len()+1)
	reflect.Copy(out, uv)
	out = reflect.Append(out, lv)
	return out.Interface(), nil
}

func (ObjectCodec) Concat(a, b any, axis int) (any, error) {
	av := reflect.ValueOf(a)
	bv := reflect.ValueOf(b)
	if av.Kind() != reflect.Slice || bv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("concat: operands are %s/%s, want slices: %w", av.Kind(), bv.Kind(), ErrUnsupportedCodec)
	}
	if axis == 0 {
		out := reflect.AppendSlice(reflect.MakeSlice(av.Type(), 0, av.Len()+bv.Len()), av)
		out = reflect.AppendSlice(out, bv)
		return out.Interface(), nil
	}
	if av.Len() != bv.Len() {
		return nil, fmt.Errorf("concat axis %d: outer length %d != %d: %w", axis, av.Len(), bv.Len(), ErrInvalidSlice)
	}
	out := reflect.MakeSlice(av.Type(), av.Len(), av.Len())
	for i := 0; i < av.Len(); i++ {
		c, err := ObjectCodec{}.Concat(av.Index(i).Interface(), bv.Index(i).Interface(), axis-1)
		if err != nil {
			return nil, err
		}
		out.Index(i).Set(reflect.ValueOf(c))
	}
	return out.Interface(), nil
}

func (ObjectCodec) Slice(v any, key []Range) (any, error) {
	if len(key) == 0 {
		return v, nil
	}
	r := key[0]
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("slice: value is %s, want slice: %w", rv.Kind(), ErrInvalidSlice)
	}
	if r.IsInt {
		if r.Start < 0 || r.Start >= rv.Len() {
			return nil, fmt.Errorf("slice: index %d out of range [0,%d): %w", r.Start, rv.Len(), ErrInvalidSlice)
		}
		elem := rv.Index(r.Start).Interface()
		return ObjectCodec{}.Slice(elem, key[1:])
	}
	var idxs []int
	switch {
	case r.Step > 0:
		for x := r.Start; x < r.Stop; x += r.Step {
			idxs = append(idxs, x)
		}
	case r.Step < 0:
		for x := r.Start; x > r.Stop; x += r.Step {
			idxs = append(idxs, x)
		}
	default:
		return nil, fmt.Errorf("slice: zero step: %w", ErrInvalidSlice)
	}
	out := reflect.MakeSlice(rv.Type(), 0, len(idxs))
	for _, idx := range idxs {
		if idx < 0 || idx >= rv.Len() {
			return nil, fmt.Errorf("slice: index %d out of range [0,%d): %w", idx, rv.Len(), ErrInvalidSlice)
		}
		if len(key) > 1 {
			e2, err := ObjectCodec{}.Slice(rv.Index(idx).Interface(), key[1:])
			if err != nil {
				return nil, err
			}
			out = reflect.Append(out, reflect.ValueOf(e2))
		} else {
			out = reflect.Append(out, rv.Index(idx))
		}
	}
	return out.Interface(), nil
}

func (ObjectCodec) SqueezeAxis0(v any) (any, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.Len() != 1 {
		return v, nil
	}
	return rv.Index(0).Interface(), nil
}

func (ObjectCodec) Blank() any {
	return []any{}
}
