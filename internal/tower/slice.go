package tower

import (
	"errors"
	"fmt"

	"github.com/grnydawn/goslabs/codec"
)

// Sentinel errors returned by the slicer. variablereader.go (which can see both
// this package and the root package's error sentinels, but not vice
// versa — tower sits below the root package) maps these onto the
// root's matching spec.md §7 sentinels via errors.Is.
var (
	ErrUnknownVariable      = errors.New("tower: unknown variable")
	ErrInvalidSlice         = errors.New("tower: invalid slice")
	ErrCodecMismatchInColumn = errors.New("tower: mixed codec tags in stack column")
)

// CodecResolver looks up a Codec by the tag embedded in tile filenames.
type CodecResolver interface {
	ByTag(tag string) (codec.Codec, bool)
}

// GetArray assembles the window described by stackKey (axis 0) and
// innerKey (axes 1..N-1) out of the tiles recorded in t, per the
// recursive-descent algorithm of spec.md §4.H. innerShape is the
// declared extent of each inner axis (used to bound the last tile's
// upper edge, mirroring the pseudocode's shape[0] in next_offsets).
//
// The exact per-level axis bookkeeping in spec.md's pseudocode
// ("axis = len(piece_key) - (1 if is_sq else 0)", and a squeeze_axis0
// call threaded through every recursion level) is underspecified where
// an inner axis is squeezed: because codec.Slice already collapses
// every int axis of a tile in one pass, the output axis that a given
// inner dim lands on can be computed once, up front, as a plain
// function of how many earlier inner axes are themselves int — there
// is no need to thread a running is_sq flag through the recursion to
// recover it. That precomputed mapping (outputAxis below) replaces the
// pseudocode's per-level bookkeeping with an equivalent, simpler one.
func GetArray(a *Archive, codecs CodecResolver, varName string, innerShape []int, innerKey []codec.Range, stackKey codec.Range) (any, codec.Codec, error) {
	t, ok := a.Towers[varName]
	if !ok {
		return nil, nil, fmt.Errorf("%s: %w", varName, ErrUnknownVariable)
	}
	if len(innerKey) != len(innerShape) {
		return nil, nil, fmt.Errorf("key has %d inner axes, variable has %d: %w", len(innerKey), len(innerShape), ErrInvalidSlice)
	}

	outputAxis := make([]int, len(innerKey))
	pos := 1 // axis 0 is always the stack axis
	for i, r := range innerKey {
		outputAxis[i] = pos
		if !r.IsInt {
			pos++
		}
	}

	s := &slicer{archive: a, codecs: codecs, cache: a.cache}
	result, err := s.assemble(t.Root, innerShape, innerKey, outputAxis, stackKey, nil)
	if err != nil {
		return nil, nil, err
	}
	if s.codec == nil {
		// No leaf was ever visited: fall back to probing the variable's
		// codec from any tile so Blank() still returns a typed empty
		// value instead of forcing the caller to special-case nil.
		cd, err := firstCodec(codecs, t.Root)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", varName, err)
		}
		s.codec = cd
	}
	if result == nil {
		result = s.codec.Blank()
	}
	return result, s.codec, nil
}

func firstCodec(codecs CodecResolver, n *Node) (codec.Codec, error) {
	for _, lvl := range n.SortedLevels() {
		cd, ok := codecs.ByTag(n.Leaves[lvl].codecTag)
		if !ok {
			return nil, fmt.Errorf("no codec registered for tag %q", n.Leaves[lvl].codecTag)
		}
		return cd, nil
	}
	for _, off := range n.SortedOffsets() {
		child, _ := n.Child(off)
		if cd, err := firstCodec(codecs, child); err == nil {
			return cd, nil
		}
	}
	return nil, fmt.Errorf("empty variable, no tiles on record")
}

type slicer struct {
	archive *Archive
	codecs  CodecResolver
	cache   *decodeCache
	codec   codec.Codec
	tag     string
}

func (s *slicer) resolve(tag string) (codec.Codec, error) {
	if s.codec == nil {
		cd, ok := s.codecs.ByTag(tag)
		if !ok {
			return nil, fmt.Errorf("no codec registered for tag %q", tag)
		}
		s.codec = cd
		s.tag = tag
		return cd, nil
	}
	if tag != s.tag {
		return nil, fmt.Errorf("%s vs %s: %w", s.tag, tag, ErrCodecMismatchInColumn)
	}
	return s.codec, nil
}

// assemble walks node for the remaining innerKey axes, stitching
// together the tiles that overlap the requested window along each
// axis, finally delegating to gatherColumn at the leaf to resolve the
// stack axis.
func (s *slicer) assemble(node *Node, shape []int, innerKey []codec.Range, outputAxis []int, stackKey codec.Range, accumulated []codec.Range) (any, error) {
	if len(innerKey) == 0 {
		return s.gatherColumn(node, stackKey, accumulated)
	}

	c := innerKey[0]
	offsets := node.SortedOffsets()
	var result any
	for i, lo := range offsets {
		var hi int
		if i+1 < len(offsets) {
			hi = offsets[i+1]
		} else {
			hi = shape[0]
		}
		if hi <= c.Start {
			continue
		}
		if lo >= c.Stop {
			break
		}
		a, b, ok := intraTileBounds(lo, hi, c)
		if !ok {
			continue
		}
		piece := codec.Range{Start: a, Stop: b, Step: c.Step, IsInt: c.IsInt}
		child, _ := node.Child(lo)
		panel, err := s.assemble(child, shape[1:], innerKey[1:], outputAxis[1:], stackKey, append(accumulated, piece))
		if err != nil {
			return nil, err
		}
		if result == nil {
			result = panel
		} else if !c.IsInt {
			result, err = s.codec.Concat(result, panel, outputAxis[0])
			if err != nil {
				return nil, fmt.Errorf("concatenating along axis %d: %w", outputAxis[0], err)
			}
		}
	}
	return result, nil
}

// gatherColumn resolves the stack axis at a leaf: select the requested
// stack levels, decode and slice each against the fully accumulated
// inner key, and stack them along axis 0 (spec.md §4.H gather_column).
func (s *slicer) gatherColumn(node *Node, stackKey codec.Range, innerSliceKey []codec.Range) (any, error) {
	if node == nil {
		return nil, nil
	}
	levels := node.SortedLevels()
	selected := pySlice(len(levels), stackKey)

	var stacked any
	for _, idx := range selected {
		lvl := levels[idx]
		entry := node.Leaves[lvl]
		cd, err := s.resolve(entry.codecTag)
		if err != nil {
			return nil, err
		}
		tile, cached := s.cache.get(entry.member)
		if !cached {
			raw, ok := s.archive.Bytes(entry.member)
			if !ok {
				return nil, fmt.Errorf("missing archive member %q", entry.member)
			}
			decoded, err := cd.Decode(raw)
			if err != nil {
				return nil, fmt.Errorf("decoding %q: %w", entry.member, err)
			}
			tile = decoded
			s.cache.add(entry.member, tile)
		}
		sliced, err := cd.Slice(tile, innerSliceKey)
		if err != nil {
			return nil, fmt.Errorf("slicing %q: %w", entry.member, err)
		}
		stacked, err = cd.Stack(stacked, sliced)
		if err != nil {
			return nil, fmt.Errorf("stacking %q: %w", entry.member, err)
		}
	}
	return stacked, nil
}

// intraTileBounds trims the global window c to the portion that falls
// within tile [lo, hi), returning tile-local bounds. It realigns the
// starting edge to the next on-stride position directly from the
// global coordinates rather than carrying a step-residual value
// between calls (spec.md's offset_in_dim) — an equivalent, simpler
// way to preserve stride phase across tile boundaries.
func intraTileBounds(lo, hi int, c codec.Range) (a, b int, ok bool) {
	globalStart := lo
	if c.Start > globalStart {
		globalStart = c.Start
	}
	if c.Step > 1 {
		rem := (globalStart - c.Start) % c.Step
		if rem != 0 {
			globalStart += c.Step - rem
		}
	}
	globalStop := hi
	if c.Stop < globalStop {
		globalStop = c.Stop
	}
	if globalStart >= globalStop {
		return 0, 0, false
	}
	return globalStart - lo, globalStop - lo, true
}

// pySlice returns the 0-based indices selected by Range r out of a
// sorted sequence of length n, matching Python's slice semantics
// (including negative step, used only for the stack axis per spec.md
// §4.H).
func pySlice(n int, r codec.Range) []int {
	if r.IsInt {
		if r.Start < 0 || r.Start >= n {
			return nil
		}
		return []int{r.Start}
	}
	var out []int
	if r.Step > 0 {
		for i := r.Start; i < r.Stop && i < n; i += r.Step {
			if i >= 0 {
				out = append(out, i)
			}
		}
	} else if r.Step < 0 {
		for i := r.Start; i > r.Stop && i >= 0; i += r.Step {
			if i < n {
				out = append(out, i)
			}
		}
	}
	return out
}
