package display

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// New creates a formatter for the configured format.
func New(cfg Config) Formatter {
	if cfg.Format == "" {
		cfg.Format = FormatTable
	}

	switch cfg.Format {
	case FormatJSON:
		return &jsonFormatter{config: cfg}
	case FormatSimple:
		return &simpleFormatter{config: cfg}
	default:
		return &tableFormatter{config: cfg}
	}
}

// viewTitle maps view names to section headers.
func viewTitle(name string) string {
	switch name {
	case "overview":
		return "Usage Overview"
	case "projects":
		return "Usage by Project"
	case "sessions":
		return "Sessions"
	case "daily":
		return "Daily Usage"
	case "monthly":
		return "Billing Periods"
	case "active":
		return "Live Activity"
	default:
		return name
	}
}

// writeHeader writes a section header with an underline.
func writeHeader(w io.Writer, title string, compact bool) error {
	if compact {
		_, err := fmt.Fprintf(w, "%s\n", title)
		return err
	}
	_, err := fmt.Fprintf(w, "\n%s\n%s\n\n", title, strings.Repeat("=", len(title)))
	return err
}

// terminalWidth reports the width of w when it is a terminal, 0
// otherwise. Used to fall back to compact layout on narrow screens.
func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return 0
	}
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return 0
	}
	width, _, err := term.GetSize(fd)
	if err != nil {
		return 0
	}
	return width
}
