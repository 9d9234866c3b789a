// Package tilestore implements the Tile Store of spec.md §4.B: an
// fsync-aware, atomic write-then-rename primitive for individual tile
// files, plus the directory-merging move used by the Merger (spec.md
// §4.E) to fold a process's private subtree into the shared workdir
// tree. It is adapted from the teacher's storage/posix/file_ops.go,
// swapping the manual temp-file-then-link dance for
// github.com/google/renameio and adding the duplicate/collision
// detection spec.md requires.
package tilestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/renameio"
	"k8s.io/klog/v2"
)

const dirPerm = 0o755

var (
	// ErrDuplicateTile is returned by WriteTile when a file already
	// exists at the target path.
	ErrDuplicateTile = errors.New("tilestore: tile already exists at target path")
	// ErrTileCollision is returned by Merge when two process subtrees
	// produced the same tile path, or when a directory and a file
	// collide at the same path.
	ErrTileCollision = errors.New("tilestore: tile path collision between processes")
)

// syncDir fsyncs a directory, used after creating or linking entries
// into it so the directory entry itself is durable.
func syncDir(d string) error {
	fd, err := os.Open(d)
	if err != nil {
		return fmt.Errorf("failed to open %q: %w", d, err)
	}
	if err := fd.Sync(); err != nil {
		fd.Close()
		return fmt.Errorf("failed to sync %q: %w", d, err)
	}
	return fd.Close()
}

// mkdirAll reimplements os.MkdirAll but fsyncs each parent directory it
// creates, mirroring the teacher's durability posture for freshly
// created directory entries.
func mkdirAll(name string, perm os.FileMode) error {
	name = strings.TrimSuffix(name, string(filepath.Separator))
	if name == "" {
		return nil
	}
	dir, _ := filepath.Split(name)
	di, err := os.Lstat(name)
	switch {
	case errors.Is(err, syscall.ENOENT), errors.Is(err, os.ErrNotExist):
		if dir != "" {
			if err := mkdirAll(dir, perm); err != nil {
				return err
			}
		}
		if err := os.Mkdir(name, perm); err != nil && !os.IsExist(err) {
			return fmt.Errorf("%q: %w", name, err)
		}
		return syncDir(dir)
	case err != nil:
		return fmt.Errorf("lstat %q: %w", name, err)
	case !di.IsDir():
		return fmt.Errorf("%s is not a directory", name)
	default:
		return nil
	}
}

// WriteTile atomically creates the file at root/relPath with contents
// data. Directory creation along relPath is best-effort idempotent. It
// returns ErrDuplicateTile if a file already exists at the target path,
// satisfying spec.md §4.B's "MUST NOT pre-exist" invariant.
func WriteTile(root, relPath string, data []byte) error {
	full := filepath.Join(root, relPath)
	if _, err := os.Stat(full); err == nil {
		return fmt.Errorf("%s: %w", full, ErrDuplicateTile)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat %q: %w", full, err)
	}

	dir := filepath.Dir(full)
	if err := mkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("failed to make tile directory structure: %w", err)
	}

	t, err := renameio.TempFile("", full)
	if err != nil {
		return fmt.Errorf("failed to create temp file for %q: %w", full, err)
	}
	defer t.Cleanup()

	if _, err := t.Write(data); err != nil {
		return fmt.Errorf("failed to write tile %q: %w", full, err)
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("failed to finalize tile %q: %w", full, err)
	}
	return syncDir(dir)
}

// Merge recursively moves the contents of src into dst, mirroring
// directory structure. Directory-vs-directory collisions recurse;
// anything else colliding (a file already present where src has a file
// or a directory, or vice versa) is ErrTileCollision, matching the
// Merger's directory-move step in spec.md §4.E.
func Merge(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("read %q: %w", src, err)
	}
	for _, e := range entries {
		srcPath := filepath.Join(src, e.Name())
		dstPath := filepath.Join(dst, e.Name())

		if e.IsDir() {
			di, err := os.Stat(dstPath)
			switch {
			case err == nil && di.IsDir():
				if err := Merge(srcPath, dstPath); err != nil {
					return err
				}
			case err == nil:
				return fmt.Errorf("%s: %w", dstPath, ErrTileCollision)
			case os.IsNotExist(err):
				if err := mkdirAll(dstPath, dirPerm); err != nil {
					return err
				}
				if err := Merge(srcPath, dstPath); err != nil {
					return err
				}
			default:
				return fmt.Errorf("stat %q: %w", dstPath, err)
			}
			continue
		}

		if _, err := os.Stat(dstPath); err == nil {
			return fmt.Errorf("%s: %w", dstPath, ErrTileCollision)
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("stat %q: %w", dstPath, err)
		}
		if err := os.Rename(srcPath, dstPath); err != nil {
			return fmt.Errorf("move %q -> %q: %w", srcPath, dstPath, err)
		}
	}
	klog.V(2).Infof("tilestore: merged %q into %q", src, dst)
	return nil
}
