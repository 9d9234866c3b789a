package goslabs

import (
	"bytes"
	"encoding/gob"
	"os"

	"github.com/google/renameio"
)

// writeGobAtomic gob-encodes v and atomically creates/replaces the file
// at path, the "pickle" of spec.md §6 for begin-tokens, CONFIG, VARCFG,
// written via renameio the same way the Tile Store writes tile files.
func writeGobAtomic(path string, v any) error {
	buf := &bytes.Buffer{}
	if err := gob.NewEncoder(buf).Encode(v); err != nil {
		return err
	}
	t, err := renameio.TempFile("", path)
	if err != nil {
		return err
	}
	defer t.Cleanup()
	if _, err := t.Write(buf.Bytes()); err != nil {
		return err
	}
	return t.CloseAtomicallyReplace()
}

// writeFileAtomic atomically creates/replaces the file at path with raw
// bytes data (used for the fixed-content FINISH marker).
func writeFileAtomic(path string, data []byte) error {
	return renameio.WriteFile(path, data, 0o644)
}

// readGobIfExists gob-decodes the file at path into v, reporting false
// (no error) if the file does not yet exist — the shape a poll loop
// needs.
func readGobIfExists(path string, v any) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()
	if err := gob.NewDecoder(f).Decode(v); err != nil {
		return false, err
	}
	return true, nil
}
