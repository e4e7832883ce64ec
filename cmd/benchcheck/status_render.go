package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"benchcheck/internal/analysis"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

const verdictLabelWidth = 14

// verdictLine formats one labeled verdict value, colored by outcome when the
// destination is a terminal.
func verdictLine(label, value string, colorize bool) string {
	base := fmt.Sprintf("  %-*s %s", verdictLabelWidth, label+":", value)
	if !colorize {
		return base
	}
	color := verdictColor(value)
	if color == "" {
		return base
	}
	return color + base + ansiReset
}

func verdictColor(value string) string {
	switch value {
	case analysis.StatusGoodRep, analysis.StatusOK:
		return ansiGreen
	case analysis.StatusEgoLift:
		return ansiRed
	case analysis.StatusInsufficientData, analysis.StatusNoData:
		return ansiYellow
	default:
		if strings.HasPrefix(value, "FAIL") {
			return ansiRed
		}
		return ""
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
