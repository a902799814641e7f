// Package results writes the per-image outputs of a run: the measurement
// table, the object overlay stacks and the optional object archive.
package results

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"vesseldots/internal/models"
	"vesseldots/pkg/quantify"
)

// Header lists the table columns in order
var Header = []string{
	"Image name",
	"Image-ROI vol (µm3)",
	"Dots channel bg",
	"Vessels vol (µm3)",
	"Nb dots in vessels",
	"Dots vol in vessels (µm3)",
	"Dots int in vessels",
	"Dots bg-corrected int in vessels",
	"Nb dots out vessels",
	"Dots vol out vessels (µm3)",
	"Dots int out vessels",
	"Dots bg-corrected int out vessels",
}

// Table is a tab-separated results file. Every row is flushed to disk as
// soon as it is written so an interrupted run keeps its completed images.
type Table struct {
	file *os.File
	w    *csv.Writer
	rows int
}

// NewTable creates path, truncating any previous file, and writes the header
func NewTable(path string) (*Table, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("error creating results table: %v: %w", err, models.ErrIO)
	}
	t := &Table{file: f, w: csv.NewWriter(f)}
	t.w.Comma = '\t'
	if err := t.writeRow(Header); err != nil {
		f.Close()
		return nil, err
	}
	return t, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Row formats a record as table cells
func Row(rec quantify.Record) []string {
	return []string{
		rec.Image,
		formatFloat(rec.ROIVolume),
		formatFloat(rec.Background),
		formatFloat(rec.VesselVolume),
		strconv.Itoa(rec.DotsInside.Count),
		formatFloat(rec.DotsInside.Volume),
		formatFloat(rec.DotsInside.Intensity),
		formatFloat(rec.DotsInside.CorrectedIntensity),
		strconv.Itoa(rec.DotsOutside.Count),
		formatFloat(rec.DotsOutside.Volume),
		formatFloat(rec.DotsOutside.Intensity),
		formatFloat(rec.DotsOutside.CorrectedIntensity),
	}
}

// Write appends one record and flushes it
func (t *Table) Write(rec quantify.Record) error {
	if err := t.writeRow(Row(rec)); err != nil {
		return err
	}
	t.rows++
	return nil
}

func (t *Table) writeRow(cells []string) error {
	if err := t.w.Write(cells); err != nil {
		return fmt.Errorf("error writing results row: %v: %w", err, models.ErrIO)
	}
	t.w.Flush()
	if err := t.w.Error(); err != nil {
		return fmt.Errorf("error flushing results row: %v: %w", err, models.ErrIO)
	}
	if err := t.file.Sync(); err != nil {
		return fmt.Errorf("error syncing results table: %v: %w", err, models.ErrIO)
	}
	return nil
}

// Rows returns the number of records written
func (t *Table) Rows() int {
	return t.rows
}

// Close closes the underlying file
func (t *Table) Close() error {
	if err := t.file.Close(); err != nil {
		return fmt.Errorf("error closing results table: %v: %w", err, models.ErrIO)
	}
	return nil
}
