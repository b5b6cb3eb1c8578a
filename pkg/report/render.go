package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	numberStyle = cellStyle.Align(lipgloss.Right)
)

// Format selects a renderer.
type Format string

const (
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatTable, FormatYAML:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown output format %q (want table or yaml)", s)
}

// Write renders reports in the given format.
func Write(w io.Writer, f Format, reports ...*Report) error {
	if f == FormatYAML {
		return WriteYAML(w, reports...)
	}
	return WriteTable(w, reports...)
}

// WriteYAML renders reports as a YAML stream, one document per report.
func WriteYAML(w io.Writer, reports ...*Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	for _, r := range reports {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return enc.Close()
}

// WriteTable renders one table per aggregate. Nested aggregate fields are
// flattened with dotted names and absolute offsets.
func WriteTable(w io.Writer, reports ...*Report) error {
	for _, r := range reports {
		if _, err := fmt.Fprintln(w, titleStyle.Render(r.Target+"  "+r.Machine)); err != nil {
			return err
		}
		for _, agg := range r.Aggregates {
			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("field", "type", "offset", "size").
				StyleFunc(func(row, col int) lipgloss.Style {
					switch {
					case row == table.HeaderRow:
						return headerStyle
					case col >= 2:
						return numberStyle
					}
					return cellStyle
				})
			for _, row := range flatten("", 0, agg.Fields) {
				t.Row(row...)
			}
			caption := fmt.Sprintf("%s  size %d", agg.Name, agg.Size)
			if _, err := fmt.Fprintf(w, "%s\n%s\n", caption, t.String()); err != nil {
				return err
			}
		}
	}
	return nil
}

func flatten(prefix string, base int64, fields []Field) [][]string {
	var rows [][]string
	for _, f := range fields {
		name := prefix + f.Name
		rows = append(rows, []string{
			name,
			f.Type,
			strconv.FormatInt(base+f.Offset, 10),
			strconv.FormatInt(f.Size, 10),
		})
		rows = append(rows, flatten(name+".", base+f.Offset, f.Fields)...)
	}
	return rows
}
