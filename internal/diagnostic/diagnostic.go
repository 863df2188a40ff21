// Package diagnostic defines the canonical diagnostic record produced by
// the analysis bridge, independent of which analyzer produced it.
package diagnostic

import (
	"fmt"
	"sort"
)

// Severity is the canonical importance of a diagnostic, normalized from
// whatever vocabulary the underlying analyzer used.
type Severity uint8

const (
	SevHint Severity = iota
	SevInfo
	SevWarning
	SevError
)

func (s Severity) String() string {
	switch s {
	case SevHint:
		return "hint"
	case SevInfo:
		return "info"
	case SevWarning:
		return "warning"
	case SevError:
		return "error"
	default:
		return "unknown"
	}
}

// Source identifies which analyzer (or the bridge itself) produced a
// diagnostic.
type Source uint8

const (
	// SourceChecker marks diagnostics from the persistent type-checker pool.
	SourceChecker Source = iota
	// SourceLinter marks diagnostics from the ephemeral linter pool.
	SourceLinter
	// SourceTurbo marks diagnostics synthesized by the bridge itself
	// (e.g. an expansion-guard truncation surfaced on the analyzed file)
	// rather than fetched from a child process.
	SourceTurbo
)

func (s Source) String() string {
	switch s {
	case SourceChecker:
		return "checker"
	case SourceLinter:
		return "linter"
	case SourceTurbo:
		return "turbo"
	default:
		return "unknown"
	}
}

// FixEdit is a single byte-span replacement within a file.
type FixEdit struct {
	StartByte int
	EndByte   int
	NewText   string
}

// FixSuggestion is the opaque attachment carried by diagnostics that can be
// auto-fixed. Downstream quick-fix surfaces translate it into text edits.
type FixSuggestion struct {
	Message string
	Edits   []FixEdit
}

// Position is a 1-indexed line/column pair.
type Position struct {
	Line   int
	Column int
}

func (p Position) less(o Position) bool {
	if p.Line != o.Line {
		return p.Line < o.Line
	}
	return p.Column < o.Column
}

// Diagnostic is an immutable finding attached to a source location.
//
// Invariants: Line >= 1, Column >= 1; when End is present,
// End >= Start (line-then-column order).
type Diagnostic struct {
	File          string
	Start         Position
	End           *Position // optional
	Message       string
	Severity      Severity
	Source        Source
	RuleCode      string // optional
	ComputeTimeMS float64
	Fix           *FixSuggestion // optional opaque attachment
}

// Valid reports whether the diagnostic satisfies the position invariants.
func (d Diagnostic) Valid() bool {
	if d.Start.Line < 1 || d.Start.Column < 1 {
		return false
	}
	if d.End != nil {
		if d.End.Line < 1 || d.End.Column < 1 {
			return false
		}
		if d.End.less(d.Start) {
			return false
		}
	}
	return true
}

// dedupKey identifies diagnostics considered duplicates when merging
// results from multiple analyzers (spec: file, line, column, message).
type dedupKey struct {
	file    string
	line    int
	column  int
	message string
}

func keyOf(d Diagnostic) dedupKey {
	return dedupKey{file: d.File, line: d.Start.Line, column: d.Start.Column, message: d.Message}
}

// Merge combines diagnostics from the checker and the linter, deduplicating
// by (file, line, column, message). On conflict the checker's record wins.
func Merge(checker, linter []Diagnostic) []Diagnostic {
	byKey := make(map[dedupKey]Diagnostic, len(checker)+len(linter))
	order := make([]dedupKey, 0, len(checker)+len(linter))

	add := func(d Diagnostic, overwrite bool) {
		if !d.Valid() {
			return
		}
		k := keyOf(d)
		if _, exists := byKey[k]; !exists {
			order = append(order, k)
		} else if !overwrite {
			return
		}
		byKey[k] = d
	}

	for _, d := range linter {
		add(d, true)
	}
	for _, d := range checker {
		// Checker always wins on conflict, whether or not it was seen first.
		add(d, true)
	}

	out := make([]Diagnostic, 0, len(order))
	for _, k := range order {
		out = append(out, byKey[k])
	}
	Sort(out)
	return out
}

// Sort orders diagnostics by the stable key (file, line, column, source).
func Sort(ds []Diagnostic) {
	sort.SliceStable(ds, func(i, j int) bool {
		a, b := ds[i], ds[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Start.Line != b.Start.Line {
			return a.Start.Line < b.Start.Line
		}
		if a.Start.Column != b.Start.Column {
			return a.Start.Column < b.Start.Column
		}
		return a.Source < b.Source
	})
}

// String renders a one-line human-readable form, e.g. for logging.
func (d Diagnostic) String() string {
	loc := fmt.Sprintf("%s:%d:%d", d.File, d.Start.Line, d.Start.Column)
	if d.RuleCode != "" {
		return fmt.Sprintf("%s: %s %s [%s]: %s", loc, d.Severity, d.Source, d.RuleCode, d.Message)
	}
	return fmt.Sprintf("%s: %s %s: %s", loc, d.Severity, d.Source, d.Message)
}
