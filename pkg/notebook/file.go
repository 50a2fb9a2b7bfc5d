package notebook

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/leapnb/pkg/core"
)

// Recognized notebook file extensions.
const (
	ExtNotebook = ".lnb"
	ExtJupyter  = ".ipynb"
)

// tempFilePrefix names the temporary files SaveFile renames into place.
const tempFilePrefix = ".leapnb-tmp-"

// IsNotebookFile reports whether path has a recognized extension.
func IsNotebookFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ExtNotebook, ExtJupyter:
		return true
	}
	return false
}

// LoadFile reads a notebook from path.
// Structural problems are reported as *core.FormatError carrying path.
func LoadFile(path string) (*Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !IsNotebookFile(path) {
		return nil, &core.FormatError{
			Path:   path,
			Reason: fmt.Sprintf("unrecognized extension %q (want %s or %s)", ext, ExtNotebook, ExtJupyter),
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read notebook: %w", err)
	}

	var doc *Document
	if ext == ExtJupyter {
		doc, err = UnmarshalJupyter(data)
	} else {
		doc, err = Unmarshal(data)
	}
	if err != nil {
		var fe *core.FormatError
		if errors.As(err, &fe) && fe.Path == "" {
			fe.Path = path
		}
		return nil, err
	}

	if doc.Title == "" {
		doc.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return doc, nil
}

// LoadInto loads path and replaces d's contents. On error d is unchanged.
func LoadInto(path string, d *Document) error {
	loaded, err := LoadFile(path)
	if err != nil {
		return err
	}
	d.Replace(loaded)
	return nil
}

// SaveFile writes d to path atomically. The format follows the extension.
func SaveFile(path string, d *Document) error {
	if !IsNotebookFile(path) {
		return &core.ValidationError{
			Field:   "path",
			Message: fmt.Sprintf("unrecognized extension %q (want %s or %s)", filepath.Ext(path), ExtNotebook, ExtJupyter),
		}
	}

	var (
		data []byte
		err  error
	)
	if strings.ToLower(filepath.Ext(path)) == ExtJupyter {
		data, err = d.MarshalJupyter()
	} else {
		data, err = d.Marshal()
	}
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data, 0o644)
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it over filename.
func writeFileAtomic(filename string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(filename)

	tmpFile, err := os.CreateTemp(dir, tempFilePrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpFile.Name(), perm); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpFile.Name(), filename); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", filename, err)
	}
	return nil
}
