package style

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Column is one table column. A zero Width is sized by Fit.
type Column struct {
	Name  string
	Width int
	Align Alignment
	Style lipgloss.Style
}

// Alignment is the horizontal placement of a cell within its column.
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignRight
	AlignCenter
)

func (a Alignment) position() lipgloss.Position {
	switch a {
	case AlignRight:
		return lipgloss.Right
	case AlignCenter:
		return lipgloss.Center
	default:
		return lipgloss.Left
	}
}

// Table is a fixed-width text table for console listings. Cells may carry
// their own styling; widths are measured on the visible text.
type Table struct {
	columns   []Column
	rows      [][]string
	separator bool
	indent    string
}

// NewTable creates a table with a two-space indent and a rule under the
// header.
func NewTable(columns ...Column) *Table {
	return &Table{columns: columns, separator: true, indent: "  "}
}

func (t *Table) SetIndent(indent string) *Table {
	t.indent = indent
	return t
}

func (t *Table) SetHeaderSeparator(enabled bool) *Table {
	t.separator = enabled
	return t
}

// AddRow appends a row. Missing trailing cells render empty.
func (t *Table) AddRow(values ...string) *Table {
	row := make([]string, len(t.columns))
	copy(row, values)
	t.rows = append(t.rows, row)
	return t
}

// Fit sizes every column to its widest cell or header. If the table is
// then wider than maxWidth, the widest column is narrowed until it fits.
// A maxWidth of zero means no limit.
func (t *Table) Fit(maxWidth int) *Table {
	for i := range t.columns {
		w := lipgloss.Width(t.columns[i].Name)
		for _, row := range t.rows {
			w = max(w, lipgloss.Width(row[i]))
		}
		t.columns[i].Width = w
	}
	if maxWidth <= 0 {
		return t
	}
	for t.width() > maxWidth {
		widest := 0
		for i, c := range t.columns {
			if c.Width > t.columns[widest].Width {
				widest = i
			}
		}
		if t.columns[widest].Width <= 4 {
			break
		}
		t.columns[widest].Width--
	}
	return t
}

// width is the rendered line width including indent and gaps.
func (t *Table) width() int {
	w := lipgloss.Width(t.indent) + len(t.columns) - 1
	for _, c := range t.columns {
		w += c.Width
	}
	return w
}

// Render returns the table, one line per row, each ending in a newline.
func (t *Table) Render() string {
	if len(t.columns) == 0 {
		return ""
	}
	var b strings.Builder

	header := make([]string, len(t.columns))
	for i, c := range t.columns {
		header[i] = cell(Bold.Render(c.Name), c.Width, c.Align)
	}
	t.line(&b, header)

	if t.separator {
		b.WriteString(t.indent + Dim.Render(strings.Repeat("─", t.width()-lipgloss.Width(t.indent))) + "\n")
	}

	for _, row := range t.rows {
		cells := make([]string, len(t.columns))
		for i, c := range t.columns {
			v := row[i]
			if c.Style.Value() != "" {
				v = c.Style.Render(v)
			}
			cells[i] = cell(v, c.Width, c.Align)
		}
		t.line(&b, cells)
	}
	return b.String()
}

func (t *Table) line(b *strings.Builder, cells []string) {
	b.WriteString(t.indent)
	b.WriteString(strings.Join(cells, " "))
	b.WriteString("\n")
}

// cell truncates s to width with an ellipsis and pads it into place.
func cell(s string, width int, align Alignment) string {
	if lipgloss.Width(s) > width {
		s = lipgloss.NewStyle().MaxWidth(width-1).Render(s) + "…"
	}
	return lipgloss.PlaceHorizontal(width, align.position(), s)
}
