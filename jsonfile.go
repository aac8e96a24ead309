package updater

import (
	"encoding/json"
	"os"
	"path/filepath"

	pkgerrors "github.com/pkg/errors"
)

// readJSONFile decodes path into v. A missing file is reported via
// os.ErrNotExist so callers can fall back to defaults without logging noise.
func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return pkgerrors.Wrapf(err, "parse %s", path)
	}
	return nil
}

// writeJSONFile persists v as indented JSON using a write-then-rename so a
// crash mid-write never leaves a truncated file behind.
func writeJSONFile(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return pkgerrors.Wrapf(err, "create dir %s", dir)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return pkgerrors.Wrapf(err, "marshal %s", path)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return pkgerrors.Wrapf(err, "create temp file in %s", dir)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return pkgerrors.Wrapf(err, "write %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return pkgerrors.Wrapf(err, "close %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return pkgerrors.Wrapf(err, "rename %s to %s", tmpName, path)
	}
	return nil
}

// truncateFile empties path, creating it (and parents) when absent.
func truncateFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return pkgerrors.Wrapf(err, "create dir for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return pkgerrors.Wrapf(err, "truncate %s", path)
	}
	return f.Close()
}
