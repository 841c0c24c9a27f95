package tablesync

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mesh-intelligence/courtside/internal/export"
	"github.com/mesh-intelligence/courtside/pkg/types"
)

// ExportData writes records, or the current data when records is nil, to w.
// Collection state is not modified.
func (c *Collection) ExportData(w io.Writer, records []types.Record, format export.Format) error {
	if records == nil {
		records = c.Snapshot().Data
	}
	return export.Write(w, records, format)
}

// ExportFile writes an export into dir as <resource>_<YYYY-MM-DD>.<ext> and
// returns its path. The file is written to a temporary name and renamed
// into place.
func (c *Collection) ExportFile(dir string, records []types.Record, format export.Format) (string, error) {
	format, err := export.ParseFormat(string(format))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating export dir: %w", err)
	}
	name := fmt.Sprintf("%s_%s.%s", fileStem(c.opts.Resource), c.now().Format("2006-01-02"), format.Extension())
	path := filepath.Join(dir, name)

	tmp, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := c.ExportData(tmp, records, format); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return "", fmt.Errorf("renaming export file: %w", err)
	}
	return path, nil
}

func fileStem(resource string) string {
	stem := filepath.Base(resource)
	if stem == "" || stem == "." || stem == "/" {
		return "export"
	}
	return stem
}
