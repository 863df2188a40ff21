// Package checkerpool manages a fixed-size pool of long-lived type-checker
// worker processes speaking a newline-delimited JSON request/response
// protocol over stdin/stdout.
package checkerpool

import "analysisbridge/internal/diagnostic"

// requestType enumerates the protocol's recognized request kinds.
type requestType string

const (
	reqAnalyze     requestType = "analyze"
	reqTypeInfo    requestType = "typeInfo"
	reqCompletions requestType = "completions"
	reqHealth      requestType = "health"
	reqShutdown    requestType = "shutdown"
)

// request is one line written to a worker's stdin.
type request struct {
	ID      string      `json:"id"`
	Type    requestType `json:"type"`
	URI     string      `json:"uri,omitempty"`
	Content string      `json:"content,omitempty"`
	Line    int         `json:"line,omitempty"`
	Column  int         `json:"column,omitempty"`
}

// responseType enumerates the two kinds of response line a worker emits.
type responseType string

const (
	respResult responseType = "result"
	respError  responseType = "error"
)

// rawDiagnostic is the checker's wire representation of a diagnostic,
// translated into diagnostic.Diagnostic by the pool before returning.
type rawDiagnostic struct {
	File          string  `json:"file"`
	StartLine     int     `json:"startLine"`
	StartColumn   int     `json:"startColumn"`
	EndLine       int     `json:"endLine"`
	EndColumn     int     `json:"endColumn"`
	Message       string  `json:"message"`
	Severity      string  `json:"severity"`
	RuleCode      string  `json:"ruleCode,omitempty"`
	ComputeTimeMS float64 `json:"computeTimeMs,omitempty"`
}

func (d rawDiagnostic) toDiagnostic() diagnostic.Diagnostic {
	endLine, endCol := d.EndLine, d.EndColumn
	if endLine == 0 {
		endLine = d.StartLine
	}
	if endCol == 0 {
		endCol = d.StartColumn
	}

	return diagnostic.Diagnostic{
		File:          d.File,
		Start:         diagnostic.Position{Line: d.StartLine, Column: d.StartColumn},
		End:           &diagnostic.Position{Line: endLine, Column: endCol},
		Message:       d.Message,
		Severity:      diagnostic.CheckerSeverity(d.Severity),
		Source:        diagnostic.SourceChecker,
		RuleCode:      d.RuleCode,
		ComputeTimeMS: d.ComputeTimeMS,
	}
}

// TypeInfo is the opaque-to-the-bridge payload of a typeInfo query; the
// checker's own protocol defines its precise shape, so fields beyond the
// ones callers commonly need are preserved in Extra. Children carries
// nested type arguments (a generic's parameters, a struct field's type,
// and so on) so a caller can walk a recursive or self-referential type
// without re-querying the checker once per level.
type TypeInfo struct {
	TypeName string            `json:"typeName"`
	Extra    map[string]string `json:"extra,omitempty"`
	Children []*TypeInfo       `json:"children,omitempty"`
}

// Completion is one suggested completion item.
type Completion struct {
	Label      string `json:"label"`
	Detail     string `json:"detail,omitempty"`
	InsertText string `json:"insertText,omitempty"`
}

// response is one line read from a worker's stdout.
type response struct {
	ID          string          `json:"id"`
	Type        responseType    `json:"type"`
	Diagnostics []rawDiagnostic `json:"diagnostics,omitempty"`
	Imports     []string        `json:"imports,omitempty"`
	TypeInfo    *TypeInfo       `json:"typeInfo,omitempty"`
	Completions []Completion    `json:"completions,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// Result is what Analyze returns to the bridge: diagnostics plus the
// supplemental import list used to keep the dependency graph current.
type Result struct {
	Diagnostics []diagnostic.Diagnostic
	Imports     []string
}
