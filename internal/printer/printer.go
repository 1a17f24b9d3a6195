// Package printer formats CLI output: coloured status lines on stdout and
// structured errors on stderr.
package printer

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/dyluth/terrain/pkg/canvas"
	"github.com/fatih/color"
)

func init() {
	// Force colour even without a TTY; NO_COLOR disables it
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	// Out and Err receive normal and error output
	Out io.Writer = os.Stdout
	Err io.Writer = os.Stderr

	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// Success prints a green message prefixed with a checkmark
func Success(format string, a ...any) {
	green.Fprintf(Out, "✓ %s", strings.TrimPrefix(fmt.Sprintf(format, a...), "✓ "))
}

// Info prints an uncoloured message
func Info(format string, a ...any) {
	fmt.Fprintf(Out, format, a...)
}

// Warning prints a yellow message prefixed with a warning sign
func Warning(format string, a ...any) {
	yellow.Fprintf(Out, "⚠️  %s", strings.TrimPrefix(fmt.Sprintf(format, a...), "⚠️  "))
}

// Step prints a cyan progress line for multi-step operations
func Step(format string, a ...any) {
	cyan.Fprintf(Out, "→ %s", fmt.Sprintf(format, a...))
}

// Error prints title, explanation and suggestions to Err and returns an error
// carrying only the title (cobra's own printing is silenced).
func Error(title string, explanation string, suggestions []string) error {
	return ErrorWithContext(title, explanation, nil, suggestions)
}

// ErrorWithContext is Error with key/value details, printed in key order.
func ErrorWithContext(title string, explanation string, context map[string]string, suggestions []string) error {
	red.Fprintf(Err, "%s\n\n", title)

	if explanation != "" {
		fmt.Fprintf(Err, "%s\n", explanation)
	}

	if len(context) > 0 {
		keys := make([]string, 0, len(context))
		for k := range context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Fprintln(Err)
		for _, k := range keys {
			fmt.Fprintf(Err, "  %s: %s\n", k, context[k])
		}
	}

	switch len(suggestions) {
	case 0:
	case 1:
		fmt.Fprintf(Err, "\n%s\n", suggestions[0])
	default:
		fmt.Fprintf(Err, "\nEither:\n")
		for i, s := range suggestions {
			fmt.Fprintf(Err, "  %d. %s\n", i+1, s)
		}
	}

	return fmt.Errorf("%s", title)
}

// FormatTiles renders coordinates as "(row,col)" pairs, wrapping after
// perLine entries. perLine <= 0 keeps everything on one line.
func FormatTiles(tiles []canvas.Coord, perLine int) string {
	if len(tiles) == 0 {
		return "(none)"
	}

	var b strings.Builder
	for i, t := range tiles {
		if i > 0 {
			if perLine > 0 && i%perLine == 0 {
				b.WriteString("\n")
			} else {
				b.WriteString(" ")
			}
		}
		b.WriteString(t.String())
	}
	return b.String()
}

// Tiles prints a labelled tile list
func Tiles(label string, tiles []canvas.Coord) {
	fmt.Fprintf(Out, "%s (%d):\n%s\n", label, len(tiles), FormatTiles(tiles, 8))
}
