package style

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	Bold    = lipgloss.NewStyle().Bold(true)
	Dim     = lipgloss.NewStyle().Faint(true)
	Success = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#2E7D32", Dark: "#81C784"})
	Warning = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#E65100", Dark: "#FFB74D"})
	Error   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#C62828", Dark: "#E57373"})
	Info    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#1565C0", Dark: "#64B5F6"})

	SuccessPrefix = Success.Render("✓")
	WarningPrefix = Warning.Render("⚠")
	ErrorPrefix   = Error.Render("✗")
	ArrowPrefix   = Info.Render("→")
)

// PrintWarning writes a formatted warning line to stderr.
func PrintWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", WarningPrefix, fmt.Sprintf(format, args...))
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

var titler = cases.Title(language.English)

// StateLabel turns a Windows service state such as START_PENDING into
// "Start Pending".
func StateLabel(state string) string {
	return titler.String(strings.ReplaceAll(strings.ToLower(state), "_", " "))
}

// StateStyle colours a service state: running is green, stopped is red and
// anything in between is amber.
func StateStyle(state string) lipgloss.Style {
	switch strings.ToUpper(state) {
	case "RUNNING":
		return Success
	case "STOPPED":
		return Error
	default:
		return Warning
	}
}
