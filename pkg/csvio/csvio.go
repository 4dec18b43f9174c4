package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/floorscore/floorscore/pkg/efficiency"
)

// ErrNoHeader is returned for input without a header row.
var ErrNoHeader = errors.New("csvio: missing header row")

// Row is one data row keyed by normalised header name.
type Row struct {
	Line int // 1-based line in the source, header is line 1
	Raw  efficiency.RawRecord
}

// NormalizeHeader turns "Total Hours Worked" into "total_hours_worked".
func NormalizeHeader(h string) string {
	h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	h = strings.ToLower(h)
	return strings.Join(strings.FieldsFunc(h, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	}), "_")
}

// ReadAll parses every row of r. Blank cells are omitted from Raw so that
// validation reports them as missing.
func ReadAll(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("csvio: read header: %w", err)
	}
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = NormalizeHeader(h)
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csvio: %w", err)
		}
		line, _ := cr.FieldPos(0)
		raw := make(efficiency.RawRecord, len(cols))
		empty := true
		for i, v := range rec {
			if i >= len(cols) || cols[i] == "" {
				continue
			}
			if v = strings.TrimSpace(v); v != "" {
				raw[cols[i]] = v
				empty = false
			}
		}
		if empty {
			continue
		}
		rows = append(rows, Row{Line: line, Raw: raw})
	}
	return rows, nil
}

// Writer writes rows with a fixed column order.
type Writer struct {
	w    *csv.Writer
	cols []string
}

// NewWriter writes the header for cols immediately.
func NewWriter(w io.Writer, cols []string) (*Writer, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(cols); err != nil {
		return nil, fmt.Errorf("csvio: write header: %w", err)
	}
	return &Writer{w: cw, cols: cols}, nil
}

// Write emits one row. Missing columns are written empty.
func (w *Writer) Write(vals map[string]any) error {
	out := make([]string, len(w.cols))
	for i, c := range w.cols {
		out[i] = Format(vals[c])
	}
	return w.w.Write(out)
}

// Flush flushes buffered rows and returns any write error.
func (w *Writer) Flush() error {
	w.w.Flush()
	return w.w.Error()
}

// Format renders a cell value. Floats use the shortest exact form.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
