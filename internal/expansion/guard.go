// Package expansion bounds nested type expansion so a recursive generic
// type does not stall analysis. It tracks an expansion stack per request
// and consults a static pattern registry for type-specific depth limits.
package expansion

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
)

// Info mirrors the result of a single depth check.
type Info struct {
	TypeName  string
	Depth     int
	MaxDepth  int
	Truncated bool
	Path      []string
}

// pattern is one entry of the static registry: a matcher over type names
// (a regex, or selfRefGeneric) and the suggested max depth for types it
// matches.
type pattern struct {
	name     string
	re       interface{ MatchString(string) bool }
	maxDepth int
}

// selfRefGeneric matches a generic whose first type argument is the same
// generic again (X[X[...]] or X[X<...>]). Go's regexp has no
// backreferences, so the identifier comparison is done here.
type selfRefGeneric struct{}

var selfRefHead = regexp.MustCompile(`^(\w+)\[`)

func (selfRefGeneric) MatchString(name string) bool {
	m := selfRefHead.FindStringSubmatch(name)
	if m == nil {
		return false
	}
	rest := name[len(m[0]):]
	return strings.HasPrefix(rest, m[1]) && len(rest) > len(m[1]) && strings.ContainsRune("[<", rune(rest[len(m[1])]))
}

// defaultPatterns covers the recursive-generic shapes spec'd explicitly
// (generated-ORM types, recursive router types, self-referential generics
// like X[X[...]]) plus two recovered from the reference notes: deeply
// nested builder/fluent-API chains and mapped/conditional type recursion.
var defaultPatterns = []pattern{
	{name: "generated-orm", re: regexp.MustCompile(`(?i)(QuerySet|Relation|Include|WithRelations)\[`), maxDepth: 20},
	{name: "recursive-router", re: regexp.MustCompile(`(?i)(Router\[.*Router|RouteGroup\[.*RouteGroup|Middleware\[.*Middleware)`), maxDepth: 25},
	{name: "self-referential-generic", re: selfRefGeneric{}, maxDepth: 15},
	{name: "builder-chain", re: regexp.MustCompile(`(?i)(Builder|Fluent|Chain)\[`), maxDepth: 30},
	{name: "mapped-conditional", re: regexp.MustCompile(`(?i)(Partial|Pick|Omit|Mapped|Conditional)<`), maxDepth: 40},
}

// Observer is invoked whenever a check truncates. Errors are never
// propagated back to the caller of Check.
type Observer func(info Info)

// Guard tracks one in-flight expansion stack and a running truncation
// counter shared across checks.
type Guard struct {
	mu            sync.Mutex
	stack         []string
	truncations   int64
	configuredMax int
	patterns      []pattern
	observer      Observer
}

// New creates a guard with the given configured max depth (spec default is
// implementation-chosen; callers typically pass something in 15-40).
func New(configuredMax int, observer Observer) *Guard {
	if configuredMax <= 0 {
		configuredMax = 30
	}
	return &Guard{
		configuredMax: configuredMax,
		patterns:      defaultPatterns,
		observer:      observer,
	}
}

// Push records that name is now being expanded.
func (g *Guard) Push(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stack = append(g.stack, name)
}

// Pop removes the most recently pushed name.
func (g *Guard) Pop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.stack) == 0 {
		return
	}
	g.stack = g.stack[:len(g.stack)-1]
}

// Depth returns the current stack size.
func (g *Guard) Depth() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.stack)
}

// Check evaluates whether expanding name at depth would exceed the
// effective max depth (the smaller of the configured max and any matching
// pattern's suggested max). A truncation increments the counter and fires
// the observer, isolated from the caller by a recover.
func (g *Guard) Check(name string, depth int) Info {
	g.mu.Lock()
	path := make([]string, len(g.stack))
	copy(path, g.stack)
	g.mu.Unlock()

	effectiveMax := g.configuredMax
	if p, ok := g.matchPattern(name); ok && p.maxDepth < effectiveMax {
		effectiveMax = p.maxDepth
	}

	info := Info{
		TypeName: name,
		Depth:    depth,
		MaxDepth: effectiveMax,
		Path:     path,
	}
	info.Truncated = depth >= effectiveMax

	if info.Truncated {
		atomic.AddInt64(&g.truncations, 1)
		g.fireObserver(info)
	}
	return info
}

// matchPattern returns the first registered pattern whose regex matches
// name, if any.
func (g *Guard) matchPattern(name string) (pattern, bool) {
	for _, p := range g.patterns {
		if p.re.MatchString(name) {
			return p, true
		}
	}
	return pattern{}, false
}

func (g *Guard) fireObserver(info Info) {
	if g.observer == nil {
		return
	}
	defer func() { _ = recover() }()
	g.observer(info)
}

// Truncations returns the running truncation counter.
func (g *Guard) Truncations() int64 {
	return atomic.LoadInt64(&g.truncations)
}

// DetectCycle returns the first name that repeats within the last window
// stack entries, or "" if none repeats.
func (g *Guard) DetectCycle(window int) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := len(g.stack)
	if window <= 0 || window > n {
		window = n
	}
	seen := make(map[string]struct{}, window)
	for i := n - window; i < n; i++ {
		name := g.stack[i]
		if _, ok := seen[name]; ok {
			return name
		}
		seen[name] = struct{}{}
	}
	return ""
}

// FormatReport renders a human-readable multi-line description of a
// truncation, including the expansion path and a mitigation hint.
func FormatReport(info Info) string {
	var b strings.Builder
	fmt.Fprintf(&b, "type expansion truncated: %s\n", info.TypeName)
	fmt.Fprintf(&b, "  depth %d reached max %d\n", info.Depth, info.MaxDepth)
	if len(info.Path) > 0 {
		fmt.Fprintf(&b, "  path: %s\n", strings.Join(info.Path, " -> "))
	}
	b.WriteString("  hint: check for an unbounded recursive generic or add an explicit base case")
	return b.String()
}
