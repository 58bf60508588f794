package parser

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dlclark/regexp2"
)

// DefaultMatchTimeout bounds a single backtracking match against one line.
const DefaultMatchTimeout = 250 * time.Millisecond

// Match is one occurrence of a pattern in a line. Groups holds the text of
// every capture group in order; groups that did not participate are empty.
type Match struct {
	Whole  string
	Groups []string
}

// Pattern finds every non-overlapping match of an extraction expression.
type Pattern interface {
	// NumGroups reports the number of capture groups in the expression.
	NumGroups() int
	FindAll(line string) []Match
	String() string
}

// Compile builds a Pattern for expr. The RE2 engine is used when it accepts
// the expression; otherwise expr is compiled by the backtracking engine, which
// understands lookaround and backreferences. matchTimeout only applies to the
// backtracking engine; zero selects DefaultMatchTimeout.
func Compile(expr string, matchTimeout time.Duration) (Pattern, error) {
	re, reErr := regexp.Compile(expr)
	if reErr == nil {
		return &re2Pattern{re: re}, nil
	}

	bt, btErr := regexp2.Compile(expr, regexp2.None)
	if btErr != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", expr, errors.Join(reErr, btErr))
	}

	if matchTimeout <= 0 {
		matchTimeout = DefaultMatchTimeout
	}
	bt.MatchTimeout = matchTimeout

	log.Debug("Pattern compiled with backtracking engine", "pattern", expr, "reason", reErr)
	return &backtrackPattern{re: bt, groups: len(bt.GetGroupNumbers()) - 1}, nil
}

// MustCompile is like Compile but panics on error. Intended for tests and
// package-level patterns.
func MustCompile(expr string) Pattern {
	p, err := Compile(expr, 0)
	if err != nil {
		panic(err)
	}
	return p
}

type re2Pattern struct {
	re *regexp.Regexp
}

func (p *re2Pattern) NumGroups() int { return p.re.NumSubexp() }

func (p *re2Pattern) String() string { return p.re.String() }

func (p *re2Pattern) FindAll(line string) []Match {
	indexes := p.re.FindAllStringSubmatchIndex(line, -1)
	if len(indexes) == 0 {
		return nil
	}

	matches := make([]Match, 0, len(indexes))
	for _, loc := range indexes {
		m := Match{Whole: line[loc[0]:loc[1]]}
		if n := len(loc)/2 - 1; n > 0 {
			m.Groups = make([]string, n)
			for g := 1; g <= n; g++ {
				start, end := loc[2*g], loc[2*g+1]
				if start >= 0 && end >= 0 {
					m.Groups[g-1] = line[start:end]
				}
			}
		}
		matches = append(matches, m)
	}
	return matches
}

type backtrackPattern struct {
	re     *regexp2.Regexp
	groups int
}

func (p *backtrackPattern) NumGroups() int { return p.groups }

func (p *backtrackPattern) String() string { return p.re.String() }

func (p *backtrackPattern) FindAll(line string) []Match {
	var matches []Match

	m, err := p.re.FindStringMatch(line)
	for m != nil && err == nil {
		groups := m.Groups()
		match := Match{Whole: m.String()}
		if len(groups) > 1 {
			match.Groups = make([]string, len(groups)-1)
			for i, g := range groups[1:] {
				if len(g.Captures) > 0 {
					match.Groups[i] = g.String()
				}
			}
		}
		matches = append(matches, match)
		m, err = p.re.FindNextMatch(m)
	}

	if err != nil {
		log.Debug("Pattern match aborted", "pattern", p.re.String(), "error", err)
	}
	return matches
}
