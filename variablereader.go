package goslabs

import (
	"errors"
	"fmt"

	"github.com/grnydawn/goslabs/codec"
	"github.com/grnydawn/goslabs/internal/tower"
)

// Selector is one axis key component of a VariableReader.Get call: a
// scalar index, a (possibly partial) strided range, or "everything"
// (spec.md §4.H key normalization).
type Selector struct {
	isIndex                     bool
	index                       int
	start, stop, step           int
	hasStart, hasStop, hasStep bool
}

// At selects a single scalar index on an axis, squeezing that axis out
// of the result.
func At(i int) Selector { return Selector{isIndex: true, index: i} }

// All selects the full extent of an axis.
func All() Selector { return Selector{} }

// Span selects a strided range on an axis. A nil argument leaves that
// bound unspecified, taking Python slice defaults relative to the
// sign of step (nil step defaults to 1).
func Span(start, stop, step *int) Selector {
	s := Selector{}
	if start != nil {
		s.start, s.hasStart = *start, true
	}
	if stop != nil {
		s.stop, s.hasStop = *stop, true
	}
	if step != nil {
		s.step, s.hasStep = *step, true
	}
	return s
}

// P is a convenience constructor for the *int arguments Span takes.
func P(v int) *int { return &v }

// VariableReader is the read-side handle for a single declared
// variable (spec.md §6 VarReader): shape/ndim/len plus N-D indexing.
type VariableReader struct {
	name        string
	vc          *VarConfig
	archive     *tower.Archive
	codecs      *codec.Registry
	unstackable bool
}

// Shape returns the variable's fully assembled array shape, axis 0
// being the stack dimension.
func (v *VariableReader) Shape() []uint64 { return append([]uint64{}, v.vc.Shape...) }

// NDim returns the variable's rank.
func (v *VariableReader) NDim() int { return len(v.vc.Shape) }

// Len returns the stack axis extent.
func (v *VariableReader) Len() int {
	if len(v.vc.Shape) == 0 {
		return 0
	}
	return int(v.vc.Shape[0])
}

// Get indexes the variable by an N-tuple of Selectors, one per axis,
// axis 0 being the stack axis. A key shorter than the variable's rank
// is padded on the right with All(); see spec.md §4.H.
//
// Unlike Reader.GetArray's explicit squeezeAxis0 parameter, Get
// squeezes the stack axis automatically when its own selector is a
// scalar At(i) — matching property 5's "int index on axis 0 drops that
// axis" expectation without requiring a separate flag on every call.
func (v *VariableReader) Get(key ...Selector) (any, error) {
	full := key
	if v.unstackable && v.Len() == 1 && len(key) == len(v.vc.Shape)-1 {
		full = append([]Selector{At(0)}, key...)
	}

	shape := make([]int, len(v.vc.Shape))
	for i, s := range v.vc.Shape {
		shape[i] = int(s)
	}
	ranges, err := normalizeKey(shape, full)
	if err != nil {
		return nil, err
	}

	result, cd, err := tower.GetArray(v.archive, v.codecs, v.name, shape[1:], ranges[1:], ranges[0])
	if err != nil {
		return nil, mapTowerErr(err)
	}
	if ranges[0].IsInt {
		squeezed, err := cd.SqueezeAxis0(result)
		if err != nil {
			return nil, fmt.Errorf("goslabs: %s: squeezing stack axis: %w", v.name, err)
		}
		result = squeezed
	}
	return result, nil
}

func (v *VariableReader) getArray(squeezeAxis0 bool) (any, error) {
	shape := make([]int, len(v.vc.Shape))
	for i, s := range v.vc.Shape {
		shape[i] = int(s)
	}
	innerKey := make([]codec.Range, len(shape)-1)
	for i := range innerKey {
		innerKey[i] = codec.Range{Start: 0, Stop: shape[i+1], Step: 1}
	}
	stackKey := codec.Range{Start: 0, Stop: shape[0], Step: 1}

	result, cd, err := tower.GetArray(v.archive, v.codecs, v.name, shape[1:], innerKey, stackKey)
	if err != nil {
		return nil, mapTowerErr(err)
	}
	if squeezeAxis0 && shape[0] == 1 {
		return cd.SqueezeAxis0(result)
	}
	return result, nil
}

// normalizeKey pads key to dimShape's rank with All() and resolves
// each Selector against its axis's extent (spec.md §4.H key
// normalization): negative bounds add the axis length, a scalar index
// becomes a length-1 IsInt range, and a negative step is only legal on
// axis 0.
func normalizeKey(dimShape []int, key []Selector) ([]codec.Range, error) {
	if len(key) > len(dimShape) {
		return nil, fmt.Errorf("goslabs: key has %d axes, variable has %d: %w", len(key), len(dimShape), ErrInvalidSlice)
	}
	ranges := make([]codec.Range, len(dimShape))
	for axis := range dimShape {
		n := dimShape[axis]
		var sel Selector
		if axis < len(key) {
			sel = key[axis]
		}
		r, err := normalizeSelector(sel, n, axis == 0)
		if err != nil {
			return nil, err
		}
		ranges[axis] = r
	}
	return ranges, nil
}

func normalizeSelector(sel Selector, n int, isStackAxis bool) (codec.Range, error) {
	if sel.isIndex {
		idx := sel.index
		if idx < 0 {
			idx += n
		}
		if idx < 0 || idx >= n {
			return codec.Range{}, fmt.Errorf("goslabs: index %d out of range for axis of length %d: %w", sel.index, n, ErrInvalidSlice)
		}
		return codec.Range{Start: idx, Stop: idx + 1, Step: 1, IsInt: true}, nil
	}

	step := 1
	if sel.hasStep {
		step = sel.step
	}
	if step == 0 {
		return codec.Range{}, fmt.Errorf("goslabs: step of 0: %w", ErrInvalidSlice)
	}
	if step < 0 && !isStackAxis {
		return codec.Range{}, fmt.Errorf("goslabs: %w", ErrNegativeStep)
	}

	var start, stop int
	if step > 0 {
		start, stop = 0, n
	} else {
		start, stop = n-1, -1
	}
	if sel.hasStart {
		start = resolveBound(sel.start, n)
	}
	if sel.hasStop {
		stop = resolveBound(sel.stop, n)
	}
	return codec.Range{Start: start, Stop: stop, Step: step}, nil
}

func resolveBound(v, n int) int {
	if v < 0 {
		v += n
	}
	return v
}

func mapTowerErr(err error) error {
	switch {
	case errors.Is(err, tower.ErrUnknownVariable):
		return fmt.Errorf("%v: %w", err, ErrUnknownVariable)
	case errors.Is(err, tower.ErrCodecMismatchInColumn):
		return fmt.Errorf("%v: %w", err, ErrCodecMismatchInColumn)
	case errors.Is(err, tower.ErrInvalidSlice):
		return fmt.Errorf("%v: %w", err, ErrInvalidSlice)
	default:
		return err
	}
}
