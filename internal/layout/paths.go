// Package layout encodes and parses the on-disk tile path scheme of
// spec.md §4.B:
//
//	<var>/<o_1>/<o_2>/…/<o_{n-1}>/<stack_level>.<codec>.<ext>
//
// It has no knowledge of the filesystem itself — that lives in
// internal/tilestore — only of how a (variable, origin, stack level,
// codec tag, extension) tuple maps to a relative path and back.
package layout

import (
	"fmt"
	"path"
	"strconv"
	"strings"
)

// TileRelPath builds the path of one tile's file relative to the
// variable's root directory: <o_1>/…/<o_{n-1}>/<stack_level>.<codec>.<ext>.
// origin may be empty (a scalar/rank-0 tile), in which case the leaf
// filename sits directly under the variable root.
func TileRelPath(origin []int, stackLevel int, codecTag, ext string) string {
	parts := make([]string, 0, len(origin)+1)
	for _, o := range origin {
		parts = append(parts, strconv.Itoa(o))
	}
	parts = append(parts, LeafName(stackLevel, codecTag, ext))
	return path.Join(parts...)
}

// LeafName formats the "<stack_level>.<codec>.<ext>" tile filename.
func LeafName(stackLevel int, codecTag, ext string) string {
	return fmt.Sprintf("%d.%s.%s", stackLevel, codecTag, ext)
}

// ParseLeaf parses a tile filename back into its stack level, codec tag,
// and extension.
func ParseLeaf(name string) (stackLevel int, codecTag, ext string, err error) {
	parts := strings.SplitN(name, ".", 3)
	if len(parts) != 3 {
		return 0, "", "", fmt.Errorf("layout: malformed tile filename %q", name)
	}
	lvl, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, "", "", fmt.Errorf("layout: malformed stack level in %q: %w", name, err)
	}
	return lvl, parts[1], parts[2], nil
}

// VarRelPath builds a tile's full path relative to the work directory
// (or archive root): <var>/<o_1>/…/<o_{n-1}>/<stack_level>.<codec>.<ext>.
func VarRelPath(varName string, origin []int, stackLevel int, codecTag, ext string) string {
	return path.Join(varName, TileRelPath(origin, stackLevel, codecTag, ext))
}

// SplitOrigin parses the directory segments of decimal offsets (the
// "<o_1>/…/<o_{n-1}>" portion of a tile path, already split on "/")
// into ints.
func SplitOrigin(dirs []string) ([]int, error) {
	origin := make([]int, len(dirs))
	for i, d := range dirs {
		v, err := strconv.Atoi(d)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("layout: non-negative integer origin directory expected, got %q", d)
		}
		origin[i] = v
	}
	return origin, nil
}
