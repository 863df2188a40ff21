package linterpool

import (
	"encoding/json"
	"regexp"
	"strconv"

	"analysisbridge/internal/diagnostic"
)

// rawFixEdit and rawFix mirror the optional fix payload a raw diagnostic
// may carry.
type rawFixEdit struct {
	StartByte int    `json:"startByte"`
	EndByte   int    `json:"endByte"`
	NewText   string `json:"newText"`
}

type rawFix struct {
	Message string       `json:"message"`
	Edits   []rawFixEdit `json:"edits"`
}

// rawDiagnostic is the linter's JSON wire shape.
type rawDiagnostic struct {
	File        string  `json:"file"`
	Line        int     `json:"line"`
	Column      int     `json:"column"`
	EndLine     int     `json:"endLine"`
	EndColumn   int     `json:"endColumn"`
	Message     string  `json:"message"`
	Severity    string  `json:"severity"`
	RuleID      string  `json:"ruleId"`
	Fix         *rawFix `json:"fix,omitempty"`
}

func (d rawDiagnostic) toDiagnostic() diagnostic.Diagnostic {
	endLine, endCol := d.EndLine, d.EndColumn
	if endLine == 0 {
		endLine = d.Line
	}
	if endCol == 0 {
		endCol = d.Column
	}

	out := diagnostic.Diagnostic{
		File:     d.File,
		Start:    diagnostic.Position{Line: d.Line, Column: d.Column},
		End:      &diagnostic.Position{Line: endLine, Column: endCol},
		Message:  d.Message,
		Severity: diagnostic.LinterSeverity(d.Severity),
		Source:   diagnostic.SourceLinter,
		RuleCode: d.RuleID,
	}
	if d.Fix != nil {
		edits := make([]diagnostic.FixEdit, 0, len(d.Fix.Edits))
		for _, e := range d.Fix.Edits {
			edits = append(edits, diagnostic.FixEdit{StartByte: e.StartByte, EndByte: e.EndByte, NewText: e.NewText})
		}
		out.Fix = &diagnostic.FixSuggestion{Message: d.Fix.Message, Edits: edits}
	}
	return out
}

// parseJSON is the primary parser: a JSON array, or a single JSON object,
// of raw diagnostics.
func parseJSON(data []byte) ([]diagnostic.Diagnostic, error) {
	var arr []rawDiagnostic
	if err := json.Unmarshal(data, &arr); err == nil {
		return toSlice(arr), nil
	}

	var one rawDiagnostic
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, err
	}
	return toSlice([]rawDiagnostic{one}), nil
}

func toSlice(raw []rawDiagnostic) []diagnostic.Diagnostic {
	out := make([]diagnostic.Diagnostic, 0, len(raw))
	for _, d := range raw {
		out = append(out, d.toDiagnostic())
	}
	return out
}

// lineRegex matches the common "file:line:col: severity: message" shape
// used by non-JSON diagnostic-per-line linter output.
var lineRegex = regexp.MustCompile(`^(.+):(\d+):(\d+):\s*(\w+):\s*(.+)$`)

// parseLines is the fallback parser for non-JSON output.
func parseLines(lines []string) []diagnostic.Diagnostic {
	var out []diagnostic.Diagnostic
	for _, line := range lines {
		m := lineRegex.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		lineNo, _ := strconv.Atoi(m[2])
		col, _ := strconv.Atoi(m[3])
		out = append(out, diagnostic.Diagnostic{
			File:     m[1],
			Start:    diagnostic.Position{Line: lineNo, Column: col},
			End:      &diagnostic.Position{Line: lineNo, Column: col},
			Message:  m[5],
			Severity: diagnostic.LinterSeverity(m[4]),
			Source:   diagnostic.SourceLinter,
		})
	}
	return out
}
