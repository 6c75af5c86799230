package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/chazu/tessera/diag"
)

var (
	colorWarning  = color.New(color.FgYellow, color.Bold)
	colorError    = color.New(color.FgRed, color.Bold)
	colorFatal    = color.New(color.FgHiRed, color.Bold, color.Underline)
	colorLocation = color.New(color.FgCyan)
)

func severityColor(s diag.Severity) *color.Color {
	switch s {
	case diag.Warning:
		return colorWarning
	case diag.Error:
		return colorError
	default:
		return colorFatal
	}
}

// printDiagnostics writes one line per diagnostic and a count summary.
func printDiagnostics(w io.Writer, l *diag.List) {
	for _, d := range l.All() {
		fmt.Fprintf(w, "%s: %s: %s\n",
			colorLocation.Sprint(d.Pos), severityColor(d.Severity).Sprint(d.Severity), d.Message)
	}
	if l.Len() == 0 {
		return
	}
	fmt.Fprintf(w, "%d warning(s), %d error(s), %d fatal\n",
		l.Count(diag.Warning), l.Count(diag.Error), l.Count(diag.Fatal))
}
