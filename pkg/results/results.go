// Package results reads and writes the per-run result files produced by
// the solvers. A result file holds one ordered sequence of records for a
// single work package.
package results

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatthiesen/efficient-global-opt/pkg/container"
	"github.com/bmatthiesen/efficient-global-opt/pkg/models"
)

// ResultsPath is the dataset holding the record sequence
const ResultsPath = "/results"

// ErrUnreadable marks a result file that could not be opened or parsed.
// Callers treat it as a per-file problem.
var ErrUnreadable = errors.New("unreadable result file")

// Read loads and validates the record sequence of the file at path. The
// file is closed before Read returns, on every path.
func Read(path string) ([]models.Result, error) {
	f, err := container.OpenReadOnly(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnreadable, path, err)
	}
	defer f.Close()

	recs, err := container.ReadSlice[models.Result](f, ResultsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnreadable, path, err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: %s: empty record sequence", ErrUnreadable, path)
	}
	if err := models.SchemaOf(recs[0]).Check(recs); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnreadable, path, err)
	}
	return recs, nil
}

// Write creates a result file at path holding recs
func Write(path string, recs []models.Result) error {
	f, err := container.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := container.WriteSlice(f, ResultsPath, recs); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// WPIndex returns the WP index shared by recs. Records carrying 0 are
// padding and accepted alongside any index; any other disagreement is an
// error.
func WPIndex(recs []models.Result) (uint64, error) {
	if len(recs) == 0 {
		return 0, fmt.Errorf("no records")
	}
	idx := recs[0].WPIndex
	for i, r := range recs {
		if r.WPIndex != idx && r.WPIndex != 0 {
			return 0, fmt.Errorf("record %d has WP index %d, record 0 has %d", i, r.WPIndex, idx)
		}
	}
	return idx, nil
}

// Glob lists the regular files in dir matching pattern, in lexical order
func Glob(dir, pattern string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("bad glob pattern %q: %w", pattern, err)
	}
	files := make([]string, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, m)
	}
	return files, nil
}
