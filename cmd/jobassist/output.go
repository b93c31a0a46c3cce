package main

import (
	"fmt"
	"io"
	"os"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
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

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

// printReplies renders assistant messages the way a phone would show them.
func printReplies(replies []messageView) {
	writeReplies(os.Stdout, replies)
}

func writeReplies(w io.Writer, replies []messageView) {
	for _, m := range replies {
		if m.Type == "job-card" && m.Job != nil {
			fmt.Fprintln(w, colorize(colorBold, m.Job.Title)+" at "+m.Job.Company)
			fmt.Fprintf(w, "  %s · %s", m.Job.City, m.Job.Type)
			if m.Job.Salary != "" {
				fmt.Fprintf(w, " · %s", m.Job.Salary)
			}
			fmt.Fprintln(w)
			continue
		}
		fmt.Fprintln(w, colorize(colorCyan, "bot> ")+m.Content)
		for _, opt := range m.Options {
			fmt.Fprintf(w, "  [%s]\n", opt)
		}
	}
}
