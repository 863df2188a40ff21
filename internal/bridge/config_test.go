package bridge

import "testing"

func TestLinterConfigRuleSlicesSplitsByOverride(t *testing.T) {
	c := LinterConfig{Rules: map[string]string{
		"no-unused":    "disable",
		"no-shadow":    "warn",
		"no-eval":      "deny",
		"unrecognized": "whatever",
	}}

	disabled, warn, deny := c.RuleSlices()
	assertContains := func(name string, got []string, want string) {
		for _, g := range got {
			if g == want {
				return
			}
		}
		t.Fatalf("%s: expected %q in %v", name, want, got)
	}
	assertContains("disabled", disabled, "no-unused")
	assertContains("warn", warn, "no-shadow")
	assertContains("deny", deny, "no-eval")

	for _, s := range [][]string{disabled, warn, deny} {
		for _, r := range s {
			if r == "unrecognized" {
				t.Fatalf("expected unrecognized override to be dropped, found it in %v", s)
			}
		}
	}
}
