package goslabs

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sort"

	"k8s.io/klog/v2"

	"github.com/grnydawn/goslabs/codec"
	"github.com/grnydawn/goslabs/internal/tower"
)

// Reader is the read-side handle over a finalized slab archive,
// spec.md §6's `master_open(path, mode="r")`.
type Reader struct {
	path    string
	archive *tower.Archive
	cfg     *Config
	codecs  *codec.Registry
}

// ReadOption configures Open.
type ReadOption func(*readConfig)

type readConfig struct {
	tileCacheSize int
}

// WithTileCacheSize overrides the decoded-tile LRU cache capacity (see
// spec.md §4.H); 0 disables the cache.
func WithTileCacheSize(n int) ReadOption {
	return func(c *readConfig) { c.tileCacheSize = n }
}

// Open loads the slab archive at path into memory (spec.md §4.G: the
// whole tower is built once, at open time) and decodes its Config.
func Open(path string, opts ...ReadOption) (*Reader, error) {
	rc := readConfig{tileCacheSize: -1}
	for _, o := range opts {
		o(&rc)
	}

	var a *tower.Archive
	var err error
	if rc.tileCacheSize >= 0 {
		a, err = tower.OpenWithCacheSize(path, rc.tileCacheSize)
	} else {
		a, err = tower.Open(path)
	}
	if err != nil {
		return nil, fmt.Errorf("goslabs: Open: %w", err)
	}

	var cfg Config
	if err := gob.NewDecoder(bytes.NewReader(a.Config)).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("goslabs: Open: decoding config: %w", err)
	}

	klog.V(1).Infof("goslabs: opened %q (%d variables)", path, len(cfg.Vars))
	return &Reader{path: path, archive: a, cfg: &cfg, codecs: codec.Default()}, nil
}

// GetReader returns a VariableReader over the declared variable name.
// unstackable mirrors spec.md's supplemented `unstackable` flag: when
// the variable's stack axis has extent 1, a key that omits the stack
// axis entirely is implicitly prefixed with index 0.
func (r *Reader) GetReader(name string, unstackable bool) (*VariableReader, error) {
	vc, ok := r.cfg.Vars[name]
	if !ok {
		return nil, fmt.Errorf("goslabs: %s: %w", name, ErrUnknownVariable)
	}
	return &VariableReader{
		name:        name,
		vc:          vc,
		archive:     r.archive,
		codecs:      r.codecs,
		unstackable: unstackable,
	}, nil
}

// GetArray is the full-array convenience form of spec.md §4.H's
// get_array: equivalent to a full-range key over every axis, optionally
// squeezing axis 0 when squeezeAxis0 is set and the stack extent is 1.
func (r *Reader) GetArray(name string, squeezeAxis0 bool) (any, error) {
	v, err := r.GetReader(name, false)
	if err != nil {
		return nil, err
	}
	return v.getArray(squeezeAxis0)
}

// DimNames returns the dimension names of the declared array shape for
// name, axis 0 (the stack dim) first — parity with pyslabs's
// named-dimension shape display (see SPEC_FULL.md's supplemented
// features).
func (r *Reader) DimNames(name string) ([]string, error) {
	vc, ok := r.cfg.Vars[name]
	if !ok {
		return nil, fmt.Errorf("goslabs: %s: %w", name, ErrUnknownVariable)
	}
	return append([]string{}, vc.ArrayDims...), nil
}

// VarInfo is the "var" mode result of Reader.Info.
type VarInfo struct {
	Shape []uint64
	NDim  int
	Len   int
}

// SlabInfo is one variable's entry in the "slab" mode result of
// Reader.Info: per-tile-file size statistics (spec.md §6 info modes;
// the "slab" mode's (count, totalSize, maxSize, minSize) tuple is
// specified in SPEC_FULL.md's supplemented-features section).
type SlabInfo struct {
	Count     int
	TotalSize int64
	MaxSize   int64
	MinSize   int64
}

// Info implements spec.md §6's `Reader.info(mode)` with modes "", "list",
// "var", and "slab":
//   - "" returns a summary map with the archive version and variable/dim
//     counts.
//   - "list" returns the sorted variable names.
//   - "var" returns a VarInfo for the variable named by arg.
//   - "slab" returns a map of variable name to SlabInfo, computed by
//     walking every tile file recorded for that variable.
func (r *Reader) Info(mode string, arg ...string) (any, error) {
	switch mode {
	case "":
		return map[string]any{
			"version":   r.cfg.Version,
			"variables": len(r.cfg.Vars),
			"dims":      len(r.cfg.Dims),
		}, nil
	case "list":
		names := make([]string, 0, len(r.cfg.Vars))
		for name := range r.cfg.Vars {
			names = append(names, name)
		}
		sort.Strings(names)
		return names, nil
	case "var":
		if len(arg) != 1 {
			return nil, fmt.Errorf("goslabs: Info(\"var\"): exactly one variable name required")
		}
		vc, ok := r.cfg.Vars[arg[0]]
		if !ok {
			return nil, fmt.Errorf("goslabs: %s: %w", arg[0], ErrUnknownVariable)
		}
		length := 0
		if len(vc.Shape) > 0 {
			length = int(vc.Shape[0])
		}
		return VarInfo{Shape: vc.Shape, NDim: len(vc.Shape), Len: length}, nil
	case "slab":
		out := make(map[string]SlabInfo, len(r.cfg.Vars))
		for name := range r.cfg.Vars {
			info, err := tower.VarSlabInfo(r.archive, name)
			if err != nil {
				return nil, fmt.Errorf("goslabs: Info(\"slab\"): %s: %w", name, err)
			}
			out[name] = SlabInfo(info)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("goslabs: Info: unknown mode %q", mode)
	}
}
