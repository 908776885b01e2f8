package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/facchinm/avrdude/isp"
)

var (
	okColor    = color.New(color.FgGreen)
	warnColor  = color.New(color.FgYellow)
	errorColor = color.New(color.FgRed, color.Bold)
	labelColor = color.New(color.FgCyan)
)

func okf(w io.Writer, format string, args ...interface{}) {
	okColor.Fprintf(w, format+"\n", args...)
}

func warnf(w io.Writer, format string, args ...interface{}) {
	warnColor.Fprintf(w, format+"\n", args...)
}

func errorf(w io.Writer, format string, args ...interface{}) {
	errorColor.Fprintf(w, "error: "+format+"\n", args...)
}

// field prints an aligned "label: value" line.
func field(w io.Writer, label string, format string, args ...interface{}) {
	labelColor.Fprintf(w, "%-12s", label+":")
	fmt.Fprintf(w, " "+format+"\n", args...)
}

// progressBar draws transfer progress on one line, finishing it when the
// phase completes.
func progressBar(w io.Writer) isp.ProgressCallback {
	const width = 40
	last := -1
	return func(p isp.Progress) {
		if p.Phase == isp.PhaseComplete || p.Phase == isp.PhaseErasing {
			return
		}
		filled := int(p.Percentage / 100 * width)
		if filled == last && p.Percentage < 100 {
			return
		}
		last = filled

		fmt.Fprintf(w, "\r%-9s %-6s |%s%s| %5.1f%% %s",
			p.Phase, p.Memory,
			strings.Repeat("#", filled), strings.Repeat(" ", width-filled),
			p.Percentage, p.ElapsedTime.Round(10*time.Millisecond))
		if p.Percentage >= 100 {
			fmt.Fprintln(w)
			last = -1
		}
	}
}
