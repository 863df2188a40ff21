package diagnostic

import "testing"

func TestValid(t *testing.T) {
	cases := []struct {
		name string
		d    Diagnostic
		want bool
	}{
		{"minimal valid", Diagnostic{Start: Position{1, 1}}, true},
		{"zero line invalid", Diagnostic{Start: Position{0, 1}}, false},
		{"zero column invalid", Diagnostic{Start: Position{1, 0}}, false},
		{
			"end before start invalid",
			Diagnostic{Start: Position{5, 5}, End: &Position{3, 1}},
			false,
		},
		{
			"end equals start valid",
			Diagnostic{Start: Position{5, 5}, End: &Position{5, 5}},
			true,
		},
		{
			"end after start valid",
			Diagnostic{Start: Position{5, 5}, End: &Position{5, 9}},
			true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.d.Valid(); got != tc.want {
				t.Fatalf("Valid() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMergeCheckerWinsOnConflict(t *testing.T) {
	checker := []Diagnostic{
		{File: "a.ts", Start: Position{1, 1}, Message: "dup", Source: SourceChecker, RuleCode: "TS1"},
	}
	linter := []Diagnostic{
		{File: "a.ts", Start: Position{1, 1}, Message: "dup", Source: SourceLinter, RuleCode: "no-unused"},
		{File: "a.ts", Start: Position{2, 1}, Message: "lint only", Source: SourceLinter},
	}

	merged := Merge(checker, linter)
	if len(merged) != 2 {
		t.Fatalf("expected 2 merged diagnostics, got %d", len(merged))
	}
	if merged[0].Source != SourceChecker {
		t.Fatalf("expected checker to win conflict, got source %v", merged[0].Source)
	}
	if merged[1].Message != "lint only" {
		t.Fatalf("expected unique linter diagnostic to survive, got %+v", merged[1])
	}
}

func TestMergeOrderIndependent(t *testing.T) {
	checker := []Diagnostic{
		{File: "a.ts", Start: Position{1, 1}, Message: "dup", Source: SourceChecker},
	}
	linter := []Diagnostic{
		{File: "a.ts", Start: Position{1, 1}, Message: "dup", Source: SourceLinter},
	}

	a := Merge(checker, linter)
	b := Merge(checker, linter)
	if a[0].Source != b[0].Source {
		t.Fatalf("merge must be deterministic regardless of internal processing order")
	}
	if a[0].Source != SourceChecker {
		t.Fatalf("checker must win regardless of order, got %v", a[0].Source)
	}
}

func TestMergeDropsInvalidDiagnostics(t *testing.T) {
	checker := []Diagnostic{
		{File: "a.ts", Start: Position{0, 1}, Message: "corrupt position", Source: SourceChecker},
		{File: "a.ts", Start: Position{1, 1}, Message: "fine", Source: SourceChecker},
	}
	linter := []Diagnostic{
		{File: "a.ts", Start: Position{5, 5}, End: &Position{3, 1}, Message: "end before start", Source: SourceLinter},
	}

	merged := Merge(checker, linter)
	if len(merged) != 1 {
		t.Fatalf("expected only the valid diagnostic to survive, got %+v", merged)
	}
	if merged[0].Message != "fine" {
		t.Fatalf("expected the valid diagnostic to survive, got %+v", merged[0])
	}
}

func TestSortStableKey(t *testing.T) {
	ds := []Diagnostic{
		{File: "b.ts", Start: Position{1, 1}},
		{File: "a.ts", Start: Position{2, 1}},
		{File: "a.ts", Start: Position{1, 5}},
		{File: "a.ts", Start: Position{1, 1}, Source: SourceLinter},
		{File: "a.ts", Start: Position{1, 1}, Source: SourceChecker},
	}
	Sort(ds)
	if ds[0].Source != SourceChecker || ds[1].Source != SourceLinter {
		t.Fatalf("expected checker before linter at identical position, got %+v, %+v", ds[0], ds[1])
	}
	if ds[2].Start.Column != 5 {
		t.Fatalf("expected column 5 third, got %+v", ds[2])
	}
	if ds[3].Start.Line != 2 {
		t.Fatalf("expected line 2 fourth, got %+v", ds[3])
	}
	if ds[4].File != "b.ts" {
		t.Fatalf("expected b.ts last, got %+v", ds[4])
	}
}

func TestSeverityMapping(t *testing.T) {
	if CheckerSeverity("warn") != SevWarning {
		t.Fatalf("checker warn should map to SevWarning")
	}
	if LinterSeverity("deny") != SevError {
		t.Fatalf("linter deny should map to SevError")
	}
	if LinterSeverity("help") != SevHint {
		t.Fatalf("linter help should map to SevHint")
	}
	if CheckerSeverity("unknown-raw-value") != SevInfo {
		t.Fatalf("unrecognized severity should fall back to SevInfo")
	}
}
