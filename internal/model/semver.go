package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// semverRe matches MAJOR.MINOR.PATCH[-pre] (spec.md §3, Skill.version).
var semverRe = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)(?:-([0-9A-Za-z.-]+))?$`)

// SemVer is a parsed MAJOR.MINOR.PATCH[-pre] version.
type SemVer struct {
	Major, Minor, Patch int
	Pre                 string
	Raw                 string
}

// ParseSemVer parses a semantic version string, rejecting anything that
// doesn't match spec.md's MAJOR.MINOR.PATCH[-pre] grammar.
//
// No semver library ships in the teacher's (or the rest of
// the pack's) direct dependency graph, so this boundary is implemented on
// the standard library: it is a single regexp plus integer comparisons, not
// a general-purpose semver engine, and doesn't warrant pulling in a new
// third-party dependency unattested anywhere in the corpus.
func ParseSemVer(s string) (SemVer, error) {
	m := semverRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return SemVer{}, fmt.Errorf("invalid semantic version: %q", s)
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	patch, _ := strconv.Atoi(m[3])
	return SemVer{Major: major, Minor: minor, Patch: patch, Pre: m[4], Raw: s}, nil
}

// Less reports whether v sorts before o per semantic-version precedence
// (pre-release versions sort before their release).
func (v SemVer) Less(o SemVer) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	if v.Minor != o.Minor {
		return v.Minor < o.Minor
	}
	if v.Patch != o.Patch {
		return v.Patch < o.Patch
	}
	if v.Pre == o.Pre {
		return false
	}
	if v.Pre == "" {
		return false // release > any pre-release
	}
	if o.Pre == "" {
		return true
	}
	return v.Pre < o.Pre
}
