package goslabs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"k8s.io/klog/v2"

	"github.com/grnydawn/goslabs/internal/tilestore"
)

// mergeWorkdir implements the Merger of spec.md §4.E: fold every
// process's per-variable subtree into workPath/<var>, then reconcile the
// merged tile tree into each variable's final shape.
func mergeWorkdir(workPath string, procIDs []string, cfg *Config) error {
	names := make([]string, 0, len(cfg.Vars))
	for name := range cfg.Vars {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, pid := range procIDs {
		procPath := filepath.Join(workPath, pid)
		for _, name := range names {
			srcVarDir := filepath.Join(procPath, name)
			if _, err := os.Stat(srcVarDir); os.IsNotExist(err) {
				continue
			}

			varCfgPath := filepath.Join(srcVarDir, "__varcfg__")
			var proc VarConfig
			if ok, err := readGobIfExists(varCfgPath, &proc); err != nil {
				return fmt.Errorf("reading %q: %w", varCfgPath, err)
			} else if ok {
				if err := os.Remove(varCfgPath); err != nil {
					return fmt.Errorf("removing %q: %w", varCfgPath, err)
				}
				appendProcessConfig(cfg.Vars[name], pid, &proc)
			}

			dstVarDir := filepath.Join(workPath, name)
			if err := os.MkdirAll(dstVarDir, 0o755); err != nil {
				return fmt.Errorf("creating %q: %w", dstVarDir, err)
			}
			if err := tilestore.Merge(srcVarDir, dstVarDir); err != nil {
				if errors.Is(err, tilestore.ErrTileCollision) {
					return fmt.Errorf("%v: %w", err, ErrTileCollision)
				}
				return fmt.Errorf("merging %q into %q: %w", srcVarDir, dstVarDir, err)
			}
		}
		if err := os.RemoveAll(procPath); err != nil {
			return fmt.Errorf("removing process dir %q: %w", procPath, err)
		}
	}

	for _, name := range names {
		vc := cfg.Vars[name]
		dstVarDir := filepath.Join(workPath, name)
		stackLen, innerExtents, err := reconcileVar(dstVarDir, vc.TileShape)
		if err != nil {
			return fmt.Errorf("variable %s: %w", name, err)
		}

		shape := append([]int{stackLen}, innerExtents...)
		if len(shape) != len(vc.ArrayDims) {
			return fmt.Errorf("variable %s: reconciled rank %d != declared rank %d: %w", name, len(shape), len(vc.ArrayDims), ErrStartIndexError)
		}

		u64Shape := make([]uint64, len(shape))
		for i, dimName := range vc.ArrayDims {
			d, ok := cfg.Dims[dimName]
			if !ok {
				return fmt.Errorf("variable %s: dim %s not declared", name, dimName)
			}
			if err := d.Check(uint64(shape[i])); err != nil {
				return fmt.Errorf("variable %s, dim %s: %w", name, dimName, err)
			}
			u64Shape[i] = uint64(shape[i])
		}

		cfg.Vars[name] = vc.finalize(u64Shape)
		klog.V(1).Infof("goslabs: merged variable %s, shape %v", name, shape)
	}

	return nil
}

// appendProcessConfig records one process's per-variable write log into
// the shared VarConfig's attrs, matching spec.md §4.E step 1
// ("append it to attrs[V].configs").
func appendProcessConfig(vc *VarConfig, pid string, proc *VarConfig) {
	if vc == nil {
		return
	}
	if vc.Attrs == nil {
		vc.Attrs = make(map[string]any)
	}
	configs, _ := vc.Attrs["configs"].(map[string]map[int]map[string]TileRecord)
	if configs == nil {
		configs = make(map[string]map[int]map[string]TileRecord)
	}
	configs[pid] = proc.Writes
	vc.Attrs["configs"] = configs
}

// reconcileVar walks the merged tile tree for one variable and derives
// its stack length and per-inner-dim extents (spec.md §4.E step 2).
// Because VariableWriter already enforces that every tile's shape equals
// the declared tile_shape, each inner dim's extent is simply
// max(offset) + tileShape[dim] rather than something that needs to be
// recomputed bottom-up from sibling subtree shapes.
func reconcileVar(dstVarDir string, tileShape Shape) (stackLen int, innerExtents []int, err error) {
	rank := len(tileShape)
	innerExtents = make([]int, rank)
	stackLen = -1

	var walk func(dir string, depth int) error
	walk = func(dir string, depth int) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("reading %q: %w", dir, err)
		}
		if depth == rank {
			n := len(entries)
			if stackLen == -1 {
				stackLen = n
			} else if stackLen != n {
				return fmt.Errorf("%q: %d tiles, expected %d: %w", dir, n, stackLen, ErrStackLengthMismatch)
			}
			return nil
		}
		for _, e := range entries {
			if !e.IsDir() {
				return fmt.Errorf("%q: expected origin directory at depth %d, found file %q: %w", dir, depth, e.Name(), ErrStartIndexError)
			}
			offset, convErr := strconv.Atoi(e.Name())
			if convErr != nil || offset < 0 {
				return fmt.Errorf("%q: non-negative integer origin directory expected, got %q: %w", dir, e.Name(), ErrStartIndexError)
			}
			extent := offset + tileShape[depth]
			if extent > innerExtents[depth] {
				innerExtents[depth] = extent
			}
			if err := walk(filepath.Join(dir, e.Name()), depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(dstVarDir, 0); err != nil {
		return 0, nil, err
	}
	if stackLen < 0 {
		stackLen = 0
	}
	return stackLen, innerExtents, nil
}
