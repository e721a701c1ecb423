package semver

import (
	"fmt"
	"strconv"
	"strings"

	mm "github.com/Masterminds/semver/v3"
)

// Range is a set of versions in npm range syntax: exact versions, caret,
// tilde, comparators, x-wildcards, hyphen ranges, space/comma conjunction
// and "||" union.
//
// Examples:
// - ">=1.2.0 <2.0.0"
// - "^1.0.0"
// - "~1.4.2 || >=2.0.0"
//
// Internally a Range is a sorted union of contiguous intervals. Unlike a
// bare Masterminds constraint it supports intersection, satisfiability
// checks and a minimal representative version, which the planner needs.
type Range struct {
	ivs []interval
}

type bound struct {
	v         Version
	inclusive bool
	open      bool // unbounded on this side
}

type interval struct {
	lower bound
	upper bound
}

// ParseRange parses an npm-style range expression. The empty string and "*"
// both mean "any version".
func ParseRange(raw string) (Range, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "*" || trimmed == "latest" {
		return AnyRange(), nil
	}

	var ivs []interval
	for _, clause := range strings.Split(trimmed, "||") {
		iv, empty, err := parseClause(clause)
		if err != nil {
			return Range{}, fmt.Errorf("semver: parse range %q: %w", raw, err)
		}
		if !empty {
			ivs = append(ivs, iv)
		}
	}
	return newRange(ivs), nil
}

func MustParseRange(raw string) Range {
	r, err := ParseRange(raw)
	if err != nil {
		panic(err)
	}
	return r
}

// AnyRange matches every version.
func AnyRange() Range {
	return newRange([]interval{{lower: bound{open: true}, upper: bound{open: true}}})
}

// EmptyRange matches no version at all.
func EmptyRange() Range {
	return Range{}
}

// parseClause parses one "||"-free clause: a conjunction of comparators,
// each of which is itself a contiguous interval, so the clause reduces to a
// single interval (possibly empty).
func parseClause(clause string) (interval, bool, error) {
	fields := strings.Fields(strings.ReplaceAll(clause, ",", " "))
	if len(fields) == 0 {
		return anyInterval(), false, nil
	}

	// Hyphen range: "1.2.3 - 2.3.4"
	if len(fields) == 3 && fields[1] == "-" {
		lo, err := ParseVersion(fields[0])
		if err != nil {
			return interval{}, false, err
		}
		hi, err := ParseVersion(fields[2])
		if err != nil {
			return interval{}, false, err
		}
		return interval{
			lower: bound{v: lo, inclusive: true},
			upper: bound{v: hi, inclusive: true},
		}, false, nil
	}

	result := anyInterval()
	for _, field := range fields {
		iv, err := parseComparator(field)
		if err != nil {
			return interval{}, false, err
		}
		narrowed, ok := result.intersect(iv)
		if !ok {
			return interval{}, true, nil
		}
		result = narrowed
	}
	return result, false, nil
}

func parseComparator(s string) (interval, error) {
	switch s {
	case "*", "x", "X":
		return anyInterval(), nil
	}

	switch {
	case strings.HasPrefix(s, "^"):
		return caretInterval(s[1:])
	case strings.HasPrefix(s, "~>"):
		return tildeInterval(s[2:])
	case strings.HasPrefix(s, "~"):
		return tildeInterval(s[1:])
	case strings.HasPrefix(s, ">="):
		v, err := ParseVersion(s[2:])
		if err != nil {
			return interval{}, err
		}
		return interval{lower: bound{v: v, inclusive: true}, upper: bound{open: true}}, nil
	case strings.HasPrefix(s, "<="):
		v, err := ParseVersion(s[2:])
		if err != nil {
			return interval{}, err
		}
		return interval{lower: bound{open: true}, upper: bound{v: v, inclusive: true}}, nil
	case strings.HasPrefix(s, ">"):
		v, err := ParseVersion(s[1:])
		if err != nil {
			return interval{}, err
		}
		return interval{lower: bound{v: v}, upper: bound{open: true}}, nil
	case strings.HasPrefix(s, "<"):
		v, err := ParseVersion(s[1:])
		if err != nil {
			return interval{}, err
		}
		return interval{lower: bound{open: true}, upper: bound{v: v}}, nil
	case strings.HasPrefix(s, "="):
		s = s[1:]
	}

	// Bare version: exact if fully specified, x-range otherwise.
	p, err := parsePartial(s)
	if err != nil {
		return interval{}, err
	}
	if p.n >= 3 {
		v := p.lowerVersion()
		return interval{
			lower: bound{v: v, inclusive: true},
			upper: bound{v: v, inclusive: true},
		}, nil
	}
	return xRangeInterval(p), nil
}

// caretInterval handles "^X.Y.Z": compatible changes only, where the
// leftmost non-zero component is the compatibility boundary.
func caretInterval(s string) (interval, error) {
	p, err := parsePartial(s)
	if err != nil {
		return interval{}, err
	}
	lo := p.lowerVersion()

	var hi Version
	switch {
	case p.major > 0 || p.n <= 1:
		hi = newVersion(p.major+1, 0, 0)
	case p.minor > 0 || p.n == 2:
		hi = newVersion(0, p.minor+1, 0)
	default:
		hi = newVersion(0, 0, p.patch+1)
	}
	return interval{lower: bound{v: lo, inclusive: true}, upper: bound{v: hi}}, nil
}

// tildeInterval handles "~X.Y.Z": patch-level changes if a minor is given,
// minor-level changes otherwise.
func tildeInterval(s string) (interval, error) {
	p, err := parsePartial(s)
	if err != nil {
		return interval{}, err
	}
	lo := p.lowerVersion()

	var hi Version
	if p.n <= 1 {
		hi = newVersion(p.major+1, 0, 0)
	} else {
		hi = newVersion(p.major, p.minor+1, 0)
	}
	return interval{lower: bound{v: lo, inclusive: true}, upper: bound{v: hi}}, nil
}

func xRangeInterval(p partial) interval {
	lo := p.lowerVersion()
	switch p.n {
	case 0:
		return anyInterval()
	case 1:
		return interval{lower: bound{v: lo, inclusive: true}, upper: bound{v: newVersion(p.major+1, 0, 0)}}
	default:
		return interval{lower: bound{v: lo, inclusive: true}, upper: bound{v: newVersion(p.major, p.minor+1, 0)}}
	}
}

func anyInterval() interval {
	return interval{lower: bound{open: true}, upper: bound{open: true}}
}

// partial is a version with possibly missing or wildcard trailing components.
type partial struct {
	major, minor, patch uint64
	n                   int // specified numeric components
	pre                 string
}

func parsePartial(s string) (partial, error) {
	var p partial

	if i := strings.IndexByte(s, '+'); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, '-'); i >= 0 {
		p.pre = s[i+1:]
		s = s[:i]
	}
	if s == "" {
		return partial{}, fmt.Errorf("missing version")
	}

	comps := strings.Split(s, ".")
	if len(comps) > 3 {
		return partial{}, fmt.Errorf("too many version components in %q", s)
	}
	vals := []*uint64{&p.major, &p.minor, &p.patch}
	for i, comp := range comps {
		if comp == "x" || comp == "X" || comp == "*" {
			break
		}
		val, err := strconv.ParseUint(comp, 10, 64)
		if err != nil {
			return partial{}, fmt.Errorf("invalid version component %q", comp)
		}
		*vals[i] = val
		p.n = i + 1
	}
	return p, nil
}

func (p partial) lowerVersion() Version {
	if p.pre != "" {
		v, err := mm.NewVersion(fmt.Sprintf("%d.%d.%d-%s", p.major, p.minor, p.patch, p.pre))
		if err == nil {
			return Version{v: v}
		}
	}
	return newVersion(p.major, p.minor, p.patch)
}

func newVersion(major, minor, patch uint64) Version {
	return Version{v: mm.New(major, minor, patch, "", "")}
}

// newRange drops empty intervals, sorts, and merges overlapping intervals so
// that equal ranges always render identically.
func newRange(ivs []interval) Range {
	var kept []interval
	for _, iv := range ivs {
		if !iv.empty() {
			kept = append(kept, iv)
		}
	}
	sortIntervals(kept)

	var merged []interval
	for _, iv := range kept {
		if len(merged) == 0 {
			merged = append(merged, iv)
			continue
		}
		last := &merged[len(merged)-1]
		if overlapsOrTouches(*last, iv) {
			if compareUpper(iv.upper, last.upper) > 0 {
				last.upper = iv.upper
			}
		} else {
			merged = append(merged, iv)
		}
	}
	return Range{ivs: merged}
}

func sortIntervals(ivs []interval) {
	for i := 1; i < len(ivs); i++ {
		for j := i; j > 0 && compareLower(ivs[j].lower, ivs[j-1].lower) < 0; j-- {
			ivs[j], ivs[j-1] = ivs[j-1], ivs[j]
		}
	}
}

// overlapsOrTouches reports whether b starts inside or immediately at the
// end of a, assuming a.lower <= b.lower.
func overlapsOrTouches(a, b interval) bool {
	if a.upper.open || b.lower.open {
		return true
	}
	c := Compare(b.lower.v, a.upper.v)
	if c < 0 {
		return true
	}
	if c == 0 {
		return a.upper.inclusive || b.lower.inclusive
	}
	return false
}

func (iv interval) empty() bool {
	if iv.lower.open || iv.upper.open {
		return false
	}
	c := Compare(iv.lower.v, iv.upper.v)
	if c > 0 {
		return true
	}
	if c == 0 {
		return !(iv.lower.inclusive && iv.upper.inclusive)
	}
	return false
}

func (iv interval) intersect(o interval) (interval, bool) {
	out := iv
	if compareLower(o.lower, out.lower) > 0 {
		out.lower = o.lower
	}
	if compareUpper(o.upper, out.upper) < 0 {
		out.upper = o.upper
	}
	if out.empty() {
		return interval{}, false
	}
	return out, true
}

func (iv interval) contains(v Version) bool {
	if !iv.lower.open {
		c := Compare(v, iv.lower.v)
		if c < 0 || (c == 0 && !iv.lower.inclusive) {
			return false
		}
	}
	if !iv.upper.open {
		c := Compare(v, iv.upper.v)
		if c > 0 || (c == 0 && !iv.upper.inclusive) {
			return false
		}
	}
	return true
}

// compareLower orders two lower bounds; an open bound starts earliest and an
// inclusive bound starts before an exclusive one at the same version.
func compareLower(a, b bound) int {
	if a.open && b.open {
		return 0
	}
	if a.open {
		return -1
	}
	if b.open {
		return 1
	}
	if c := Compare(a.v, b.v); c != 0 {
		return c
	}
	if a.inclusive == b.inclusive {
		return 0
	}
	if a.inclusive {
		return -1
	}
	return 1
}

// compareUpper orders two upper bounds; an open bound ends latest and an
// inclusive bound ends after an exclusive one at the same version.
func compareUpper(a, b bound) int {
	if a.open && b.open {
		return 0
	}
	if a.open {
		return 1
	}
	if b.open {
		return -1
	}
	if c := Compare(a.v, b.v); c != 0 {
		return c
	}
	if a.inclusive == b.inclusive {
		return 0
	}
	if a.inclusive {
		return 1
	}
	return -1
}

// Contains reports whether v is a member of the range.
func (r Range) Contains(v Version) bool {
	for _, iv := range r.ivs {
		if iv.contains(v) {
			return true
		}
	}
	return false
}

// Intersect returns the range of versions contained in both r and o.
func (r Range) Intersect(o Range) Range {
	var out []interval
	for _, a := range r.ivs {
		for _, b := range o.ivs {
			if iv, ok := a.intersect(b); ok {
				out = append(out, iv)
			}
		}
	}
	return newRange(out)
}

// IsSatisfiable reports whether any version at all is in the range.
func (r Range) IsSatisfiable() bool {
	return len(r.ivs) > 0
}

// IsAny reports whether the range matches every version.
func (r Range) IsAny() bool {
	return len(r.ivs) == 1 && r.ivs[0].lower.open && r.ivs[0].upper.open
}

// MinVersion returns the smallest version in the range, the representative
// an override resolves to. Returns false for an unsatisfiable range.
func (r Range) MinVersion() (Version, bool) {
	if len(r.ivs) == 0 {
		return Version{}, false
	}
	lo := r.ivs[0].lower
	if lo.open {
		return newVersion(0, 0, 0), true
	}
	if lo.inclusive {
		return lo.v, true
	}
	return lo.v.NextPatch(), true
}

// String renders the range canonically: caret or tilde form where the
// interval has that shape, comparator pairs otherwise, "||" between
// intervals. Two equal ranges always render to the same string.
func (r Range) String() string {
	if len(r.ivs) == 0 {
		return "<0.0.0"
	}
	parts := make([]string, 0, len(r.ivs))
	for _, iv := range r.ivs {
		parts = append(parts, renderInterval(iv))
	}
	return strings.Join(parts, " || ")
}

func renderInterval(iv interval) string {
	if iv.lower.open && iv.upper.open {
		return "*"
	}
	if iv.lower.open {
		if iv.upper.inclusive {
			return "<=" + iv.upper.v.String()
		}
		return "<" + iv.upper.v.String()
	}
	if iv.upper.open {
		if iv.lower.inclusive {
			return ">=" + iv.lower.v.String()
		}
		return ">" + iv.lower.v.String()
	}

	lo, hi := iv.lower.v, iv.upper.v
	if iv.lower.inclusive && iv.upper.inclusive && Compare(lo, hi) == 0 {
		return lo.String()
	}
	if iv.lower.inclusive && !iv.upper.inclusive && hi.Prerelease() == "" {
		if isCaretShape(lo, hi) {
			return "^" + lo.String()
		}
		if hi.Major() == lo.Major() && hi.Minor() == lo.Minor()+1 && hi.Patch() == 0 {
			return "~" + lo.String()
		}
	}

	var sb strings.Builder
	if iv.lower.inclusive {
		sb.WriteString(">=")
	} else {
		sb.WriteString(">")
	}
	sb.WriteString(lo.String())
	sb.WriteString(" ")
	if iv.upper.inclusive {
		sb.WriteString("<=")
	} else {
		sb.WriteString("<")
	}
	sb.WriteString(hi.String())
	return sb.String()
}

func isCaretShape(lo, hi Version) bool {
	switch {
	case lo.Major() > 0:
		return hi.Major() == lo.Major()+1 && hi.Minor() == 0 && hi.Patch() == 0
	case lo.Minor() > 0:
		return hi.Major() == 0 && hi.Minor() == lo.Minor()+1 && hi.Patch() == 0
	default:
		return hi.Major() == 0 && hi.Minor() == 0 && hi.Patch() == lo.Patch()+1
	}
}
