package goslabs

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/renameio"
)

// configEntryName is the archive member (and workdir file) holding the
// pickled Config. spec.md §4.G calls this member "CONFIG" in prose but
// §6's filesystem/archive-layout tables both spell it "__config__";
// this implementation treats the latter as the literal name, consistent
// with the other double-underscore sentinel names (__finished__,
// __varcfg__).
const configEntryName = "__config__"

// packArchive implements the Archive Packer of spec.md §4.F: write the
// finalized CONFIG, tar up the merged work tree, and remove the workdir
// on success. The archive is a plain archive/tar container — spec.md
// explicitly scopes the container format itself out, treating it as an
// opaque bag of files with stable paths.
func packArchive(workPath, slabPath string, cfg *Config) error {
	finalCfg := *cfg
	finalCfg.Control = nil
	if err := writeGobAtomic(filepath.Join(workPath, configEntryName), &finalCfg); err != nil {
		return fmt.Errorf("writing %s: %w", configEntryName, err)
	}

	buf := &bytes.Buffer{}
	tw := tar.NewWriter(buf)

	configData, err := os.ReadFile(filepath.Join(workPath, configEntryName))
	if err != nil {
		return fmt.Errorf("reading %s: %w", configEntryName, err)
	}
	if err := addTarEntry(tw, configEntryName, configData); err != nil {
		return err
	}

	names := make([]string, 0, len(cfg.Vars))
	for name := range cfg.Vars {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		varDir := filepath.Join(workPath, name)
		if _, err := os.Stat(varDir); os.IsNotExist(err) {
			continue
		}
		if err := addTarTree(tw, varDir, name); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("closing archive: %w", err)
	}

	if err := renameio.WriteFile(slabPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing archive %q: %w", slabPath, err)
	}

	if err := os.RemoveAll(workPath); err != nil {
		return fmt.Errorf("removing workdir %q: %w", workPath, err)
	}
	return nil
}

func addTarTree(tw *tar.Writer, dir, memberPrefix string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading %q: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		full := filepath.Join(dir, name)
		member := memberPrefix + "/" + name
		info, err := os.Stat(full)
		if err != nil {
			return fmt.Errorf("stat %q: %w", full, err)
		}
		if info.IsDir() {
			if err := addTarTree(tw, full, member); err != nil {
				return err
			}
			continue
		}
		data, err := os.ReadFile(full)
		if err != nil {
			return fmt.Errorf("reading %q: %w", full, err)
		}
		if err := addTarEntry(tw, member, data); err != nil {
			return err
		}
	}
	return nil
}

func addTarEntry(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{
		Name: name,
		Mode: 0o644,
		Size: int64(len(data)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("writing tar header for %q: %w", name, err)
	}
	if _, err := io.Copy(tw, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing tar data for %q: %w", name, err)
	}
	return nil
}
