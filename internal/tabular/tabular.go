// Package tabular reads header-keyed CSV files such as the EIA, HIFLD and
// census tables.
package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Reader yields rows of a CSV file whose first line is a header. Column
// lookups are case-insensitive.
type Reader struct {
	r    *csv.Reader
	cols map[string]int
	head []string
	row  []string
	line int
	err  error
}

// NewReader reads the header line and checks that every required column is
// present.
func NewReader(r io.Reader, required ...string) (*Reader, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true
	head, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(head))
	names := make([]string, len(head))
	for i, h := range head {
		h = strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		cols[h] = i
		names[i] = h
	}
	t := &Reader{r: cr, cols: cols, head: names, line: 1}
	for _, c := range required {
		if !t.Has(c) {
			return nil, fmt.Errorf("missing column %q", c)
		}
	}
	return t, nil
}

// Next advances to the next row. It returns false at EOF or on error.
func (t *Reader) Next() bool {
	row, err := t.r.Read()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			t.err = fmt.Errorf("line %d: %w", t.line+1, err)
		}
		return false
	}
	t.row = row
	t.line++
	return true
}

func (t *Reader) Err() error { return t.err }

// Line is the 1-based file line of the current row.
func (t *Reader) Line() int { return t.line }

// Columns returns the upper-cased header in file order.
func (t *Reader) Columns() []string { return append([]string(nil), t.head...) }

func (t *Reader) Has(col string) bool {
	_, ok := t.cols[strings.ToUpper(col)]
	return ok
}

// String returns the trimmed value of col, or "" if the column is absent.
func (t *Reader) String(col string) string {
	i, ok := t.cols[strings.ToUpper(col)]
	if !ok || i >= len(t.row) {
		return ""
	}
	return strings.TrimSpace(t.row[i])
}

// Float parses col. Blank, "NA", "." and non-numeric values report false.
// Thousands separators are ignored.
func (t *Reader) Float(col string) (float64, bool) {
	return ParseFloat(t.String(col))
}

func (t *Reader) Int(col string) (int64, bool) {
	f, ok := t.Float(col)
	if !ok || f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}

func ParseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	switch strings.ToUpper(s) {
	case "", "NA", "N/A", ".", "NAN":
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Writer writes a header followed by rows.
type Writer struct {
	w *csv.Writer
}

func NewWriter(w io.Writer, header ...string) (*Writer, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	return &Writer{w: cw}, nil
}

func (w *Writer) Write(fields ...string) error {
	return w.w.Write(fields)
}

// Flush flushes buffered rows and returns any write error.
func (w *Writer) Flush() error {
	w.w.Flush()
	return w.w.Error()
}

// FormatFloat formats without trailing zeros.
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func FormatInt(i int64) string {
	return strconv.FormatInt(i, 10)
}
