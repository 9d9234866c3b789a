package goslabs

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/grnydawn/goslabs/codec"
	"github.com/grnydawn/goslabs/internal/layout"
	"github.com/grnydawn/goslabs/internal/tilestore"
)

// VariableWriter is one process's handle for writing tiles of a single
// variable (spec.md §4.C). It is not safe for concurrent use from
// multiple goroutines, mirroring the "one OS process per writer, no
// thread-level concurrency required" model of spec.md §5.
type VariableWriter struct {
	procPath string
	name     string
	cfg      *VarConfig
	codecs   *codec.Registry
	level    int
}

func newVariableWriter(procPath string, cfg *VarConfig, codecs *codec.Registry) *VariableWriter {
	return &VariableWriter{procPath: procPath, name: cfg.Name, cfg: cfg, codecs: codecs}
}

// Write writes tile at the writer's current stack level, auto-advancing
// that level afterward iff the variable was declared with
// WithAutoStack(true). origin gives the offset along each inner dim; if
// shorter than the number of inner dims, it is zero-padded on the right
// (spec.md §4.C: this is also how a single scalar origin value is
// expressed — Write(tile, 5) and Write(tile, 5, 0, 0) are equivalent for
// a rank-3 tile).
func (w *VariableWriter) Write(tile any, origin ...int) error {
	return w.write(tile, nil, origin)
}

// WriteAt writes tile at an explicit stack level, bypassing
// auto-advancement of the writer's current level.
func (w *VariableWriter) WriteAt(tile any, stackLevel int, origin ...int) error {
	return w.write(tile, &stackLevel, origin)
}

// Stacking advances the writer's current stack level by n (1 if n==0),
// per spec.md §4.C.
func (w *VariableWriter) Stacking(n int) {
	if n == 0 {
		n = 1
	}
	w.level += n
}

func (w *VariableWriter) write(tile any, stackLevel *int, origin []int) error {
	cd, err := w.codecs.Detect(tile)
	if err != nil {
		return fmt.Errorf("goslabs: %s: %w: %w", w.name, err, ErrUnsupportedType)
	}
	shape, err := cd.Shape(tile)
	if err != nil {
		return fmt.Errorf("goslabs: %s: %w", w.name, err)
	}
	if !codec.Shape(shape).Equal(codec.Shape(w.cfg.TileShape)) {
		return fmt.Errorf("goslabs: %s: tile shape %v != declared tile shape %v: %w", w.name, shape, w.cfg.TileShape, ErrShapeMismatch)
	}

	rank := len(w.cfg.ArrayDims) - 1
	if len(origin) > rank {
		return fmt.Errorf("goslabs: %s: origin %v has more entries than inner rank %d", w.name, origin, rank)
	}
	full := make([]int, rank)
	copy(full, origin)

	level := w.level
	if stackLevel != nil {
		level = *stackLevel
	}

	if w.cfg.Writes == nil {
		w.cfg.Writes = make(map[int]map[string]TileRecord)
	}
	originKey := originPathKey(full)
	if w.cfg.Writes[level] == nil {
		w.cfg.Writes[level] = make(map[string]TileRecord)
	}
	if _, exists := w.cfg.Writes[level][originKey]; exists {
		return fmt.Errorf("goslabs: %s: level %d origin %v: %w", w.name, level, full, ErrDuplicateTile)
	}

	data, err := cd.Encode(tile)
	if err != nil {
		if errors.Is(err, codec.ErrUnsupportedType) {
			return fmt.Errorf("goslabs: %s: encode: %w: %w", w.name, err, ErrUnsupportedType)
		}
		return fmt.Errorf("goslabs: %s: encode: %w", w.name, err)
	}

	relPath := layout.TileRelPath(full, level, cd.Tag(), cd.Extension())
	if err := tilestore.WriteTile(filepath.Join(w.procPath, w.name), relPath, data); err != nil {
		if errors.Is(err, tilestore.ErrDuplicateTile) {
			return fmt.Errorf("goslabs: %s: %v: %w", w.name, err, ErrDuplicateTile)
		}
		return fmt.Errorf("goslabs: %s: %w", w.name, err)
	}

	w.cfg.Writes[level][originKey] = TileRecord{Origin: full, TileShape: append(Shape{}, shape...)}

	if stackLevel == nil && w.cfg.StackAuto {
		w.level++
	}
	return nil
}

func originPathKey(origin []int) string {
	parts := make([]string, len(origin))
	for i, o := range origin {
		parts[i] = strconv.Itoa(o)
	}
	return strings.Join(parts, "/")
}
