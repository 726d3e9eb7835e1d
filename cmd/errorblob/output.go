package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/kalambet/errorblob/internal/model"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorDim    = "\033[2m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(w io.Writer, label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(w, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

// truncate shortens s to n runes, marking the cut with "...".
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

func printMatch(w io.Writer, rank int, m model.Match) {
	header := fmt.Sprintf("Result #%d", rank)
	if m.Score > 0 {
		header += colorize(colorDim, fmt.Sprintf(" (score: %.2f)", m.Score))
	}
	fmt.Fprintf(w, "%s  %s\n", colorize(colorBlue+colorBold, header), colorize(colorDim, "id "+m.ID))
	fmt.Fprintf(w, "  %s %s\n", colorize(colorRed+colorBold, "Error:"), m.ErrorText)
	fmt.Fprintf(w, "  %s   %s\n", colorize(colorGreen+colorBold, "Fix:"), m.FixText)

	added := "Added: " + m.CreatedAt.Local().Format("2006-01-02 15:04")
	if m.Author != "" {
		added += " by " + m.Author
	}
	fmt.Fprintf(w, "  %s\n", colorize(colorDim, added))
	if len(m.Tags) > 0 {
		fmt.Fprintf(w, "  %s\n", colorize(colorDim, "Tags: "+strings.Join(m.Tags, ", ")))
	}
	fmt.Fprintln(w)
}

func printRecordRow(w io.Writer, r model.Record) {
	fmt.Fprintf(w, "  %s  %-43s  %-43s  %s\n",
		colorize(colorDim, fmt.Sprintf("%-8s", truncate(r.ID, 8))),
		truncate(r.ErrorText, 40),
		truncate(r.FixText, 40),
		colorize(colorDim, r.CreatedAt.Local().Format("2006-01-02")),
	)
}
