package diagnostic

import "strings"

// checkerSeverityMap and linterSeverityMap normalize each analyzer's raw
// severity vocabulary to the canonical Severity set (spec §7).
var checkerSeverityMap = map[string]Severity{
	"error":       SevError,
	"warning":     SevWarning,
	"warn":        SevWarning,
	"info":        SevInfo,
	"information": SevInfo,
	"hint":        SevHint,
	"suggestion":  SevHint,
}

var linterSeverityMap = map[string]Severity{
	"error":   SevError,
	"deny":    SevError,
	"warning": SevWarning,
	"warn":    SevWarning,
	"info":    SevInfo,
	"advice":  SevInfo,
	"hint":    SevHint,
	"help":    SevHint,
}

// CheckerSeverity maps a raw checker severity string to the canonical set.
// Unrecognized values fall back to SevInfo rather than being dropped.
func CheckerSeverity(raw string) Severity {
	if sev, ok := checkerSeverityMap[strings.ToLower(raw)]; ok {
		return sev
	}
	return SevInfo
}

// LinterSeverity maps a raw linter severity string to the canonical set.
// Unrecognized values fall back to SevInfo rather than being dropped.
func LinterSeverity(raw string) Severity {
	if sev, ok := linterSeverityMap[strings.ToLower(raw)]; ok {
		return sev
	}
	return SevInfo
}
