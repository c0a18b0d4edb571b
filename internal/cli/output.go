package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"csvload/internal/pipeline"
	"csvload/internal/stage"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	pendStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func mark(done bool) string {
	if done {
		return okStyle.Render("✓")
	}
	return pendStyle.Render("·")
}

func printReport(w io.Writer, rep stage.Report) {
	fmt.Fprintf(w, "%s: %d processed, %d skipped", rep.Stage, rep.Processed, rep.Skipped)
	if rep.Rows > 0 {
		fmt.Fprintf(w, ", %d rows", rep.Rows)
	}
	if rep.Connection != "" {
		fmt.Fprintf(w, " (connection %s)", rep.Connection)
	}
	fmt.Fprintln(w)
}

// printFiles renders one line per file with a mark per stage.
func printFiles(w io.Writer, d pipeline.Descriptor) {
	width := len("FILE")
	for _, f := range d.Files {
		width = max(width, len(f.FileName))
	}

	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-*s  %-3s %-3s %-3s  %s", width, "FILE", "A", "C", "I", "TABLE")))
	for _, f := range d.Files {
		fmt.Fprintf(w, "%-*s  %s   %s   %s    %s\n", width, f.FileName,
			mark(f.SchemaInferred), mark(f.TableMaterialized), mark(f.DataLoaded), f.TargetTableName)
	}
}

func printColumns(w io.Writer, f pipeline.FileRecord) {
	parts := make([]string, len(f.Columns))
	for i, c := range f.Columns {
		null := ""
		if c.Nullable {
			null = " NULL"
		}
		parts[i] = fmt.Sprintf("%s %s%s", c.Name, c.Type, null)
	}
	fmt.Fprintf(w, "  %s (%d rows): %s\n", f.TargetTableName, f.RowCount, strings.Join(parts, ", "))
}
