package summary

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
)

// Frame is a table of named float columns over a shared index
type Frame struct {
	IndexLabel string
	Index      []float64
	names      []string
	cols       map[string][]float64
}

// NewFrame creates an empty frame over index
func NewFrame(indexLabel string, index []float64) *Frame {
	return &Frame{
		IndexLabel: indexLabel,
		Index:      slices.Clone(index),
		cols:       make(map[string][]float64),
	}
}

// Add appends a column, or replaces the column of the same name in place
func (fr *Frame) Add(name string, vals []float64) error {
	if len(vals) != len(fr.Index) {
		return fmt.Errorf("column %s has %d rows, frame has %d", name, len(vals), len(fr.Index))
	}
	if _, ok := fr.cols[name]; !ok {
		fr.names = append(fr.names, name)
	}
	fr.cols[name] = slices.Clone(vals)
	return nil
}

// Column returns the column called name
func (fr *Frame) Column(name string) ([]float64, bool) {
	c, ok := fr.cols[name]
	return c, ok
}

// Columns returns the column names in insertion order
func (fr *Frame) Columns() []string { return slices.Clone(fr.names) }

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteCSV writes a header row and one row per index entry
func (fr *Frame) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{fr.IndexLabel}, fr.names...)); err != nil {
		return err
	}
	row := make([]string, len(fr.names)+1)
	for i, idx := range fr.Index {
		row[0] = formatFloat(idx)
		for j, name := range fr.names {
			row[j+1] = formatFloat(fr.cols[name][i])
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile writes the frame as CSV to path
func (fr *Frame) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fr.WriteCSV(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
