package logpipeline

import (
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/cases"

	"github.com/rorygraves/clientserverrunner/internal/model"
)

// Search scans current.log then archives (newest first) for pattern,
// returning up to maxResults matches each with one line of context on
// either side, per spec.md §8 invariant 8 (bounded, deterministic). pattern
// is tried as a regular expression first; if it fails to compile, it is
// matched as a literal substring instead.
func (p *Pipeline) Search(pattern string, caseSensitive bool, maxResults int) ([]model.SearchMatch, error) {
	if maxResults <= 0 {
		maxResults = 100
	}

	matcher, err := newMatcher(pattern, caseSensitive)
	if err != nil {
		return nil, err
	}

	var results []model.SearchMatch
	for _, file := range p.orderedFiles() {
		if len(results) >= maxResults {
			break
		}
		lines, err := p.readLines(filepath.Join(p.dir, file))
		if err != nil || len(lines) == 0 {
			continue
		}
		for i, raw := range lines {
			if len(results) >= maxResults {
				break
			}
			entry, ok := parseLine(raw)
			if !ok {
				continue
			}
			if !matcher(entry.Text) {
				continue
			}
			results = append(results, model.SearchMatch{
				File:       file,
				LineNumber: i + 1,
				Timestamp:  entry.Timestamp.Format(timestampLayout),
				Text:       entry.Text,
				Before:     contextLine(lines, i-1),
				After:      contextLine(lines, i+1),
			})
		}
	}
	if results == nil {
		results = []model.SearchMatch{}
	}
	return results, nil
}

// orderedFiles returns current.log followed by archives newest-first.
func (p *Pipeline) orderedFiles() []string {
	files := []string{currentLogName}
	runs, err := p.ListRuns()
	if err != nil {
		return files
	}
	for _, r := range runs {
		files = append(files, r.Name)
	}
	return files
}

func contextLine(lines []string, idx int) []string {
	if idx < 0 || idx >= len(lines) {
		return nil
	}
	if entry, ok := parseLine(lines[idx]); ok {
		return []string{entry.Text}
	}
	return nil
}

// newMatcher compiles pattern as a regexp; on failure it falls back to a
// Unicode-aware literal substring match via golang.org/x/text/cases, since a
// user-supplied search string is not guaranteed to be valid regex syntax.
func newMatcher(pattern string, caseSensitive bool) (func(string) bool, error) {
	expr := pattern
	if !caseSensitive {
		expr = "(?i)" + expr
	}
	if re, err := regexp.Compile(expr); err == nil {
		return re.MatchString, nil
	}

	if caseSensitive {
		return func(s string) bool { return strings.Contains(s, pattern) }, nil
	}
	folder := cases.Fold()
	needle := folder.String(pattern)
	return func(s string) bool { return strings.Contains(folder.String(s), needle) }, nil
}
