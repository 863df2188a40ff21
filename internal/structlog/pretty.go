package structlog

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	traceColor = color.New(color.FgWhite)
	debugColor = color.New(color.FgHiBlack)
	infoColor  = color.New(color.FgCyan)
	warnColor  = color.New(color.FgYellow)
	errorColor = color.New(color.FgRed, color.Bold)
	fatalColor = color.New(color.FgHiRed, color.Bold, color.Underline)
)

func colorFor(l Level) *color.Color {
	switch l {
	case LevelTrace:
		return traceColor
	case LevelDebug:
		return debugColor
	case LevelWarn:
		return warnColor
	case LevelError:
		return errorColor
	case LevelFatal:
		return fatalColor
	default:
		return infoColor
	}
}

// PrettyPrint writes batch to w, one line per entry. When w is a terminal
// (per x/term), severity is rendered with ANSI color; otherwise plain text.
func PrettyPrint(w io.Writer, batch []Entry) {
	interactive := isTerminal(w)
	for _, e := range batch {
		line := formatLine(e)
		if interactive {
			colorFor(e.Level).Fprintln(w, line)
		} else {
			fmt.Fprintln(w, line)
		}
	}
}

func formatLine(e Entry) string {
	ts := time.UnixMilli(e.TimestampMS).Format("15:04:05.000")
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %-5s %s", ts, strings.ToUpper(e.Level.String()), e.Message)
	if len(e.Context) > 0 {
		b.WriteString(" {")
		first := true
		for k, v := range e.Context {
			if !first {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%s", k, v)
			first = false
		}
		b.WriteString("}")
	}
	return b.String()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
