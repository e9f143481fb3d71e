// Package display renders consumer-facing output for the dvlogs CLI.
package display

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/grovetools/devlogs/internal/reader"
	"github.com/mattn/go-isatty"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))

// styled reports whether the writer is a terminal worth coloring.
func styled(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

// PrintSessionsTable prints live sessions in a formatted table.
func PrintSessionsTable(sessions []reader.SessionInfo, writer io.Writer) {
	w := tabwriter.NewWriter(writer, 0, 0, 3, ' ', 0)

	header := "SESSION ID\tPROJECT\tSTARTED\tAGE\tDESCRIPTOR"
	if styled(writer) {
		header = headerStyle.Render(header)
	}
	fmt.Fprintln(w, header)

	now := time.Now()
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			s.ID, s.ProjectDir,
			s.StartTime.Local().Format("2006-01-02 15:04"),
			formatAge(now.Sub(s.StartTime)),
			s.Descriptor)
	}
	w.Flush()
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
