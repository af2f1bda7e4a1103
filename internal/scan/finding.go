package scan

import (
	"sort"
	"strings"

	"github.com/ppiankov/patchpilot/internal/model"
)

// contextLines is the number of lines shown on each side of a match for
// categories that report context rather than a single line.
const contextLines = 3

// source is one file's content with a precomputed line index.
type source struct {
	path   string
	text   string
	lines  []string
	starts []int // byte offset of each line start
}

func newSource(path, text string) *source {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &source{
		path:   path,
		text:   text,
		lines:  strings.Split(text, "\n"),
		starts: starts,
	}
}

// lineAt returns the 1-indexed line containing byte offset off, which is one
// more than the number of newlines before it.
func (s *source) lineAt(off int) int {
	if off > len(s.text) {
		off = len(s.text)
	}
	return sort.Search(len(s.starts), func(i int) bool { return s.starts[i] > off })
}

// line returns the trimmed text of a 1-indexed line.
func (s *source) line(n int) string {
	if n < 1 || n > len(s.lines) {
		return ""
	}
	return strings.TrimSpace(s.lines[n-1])
}

// window returns lines n-contextLines through n+contextLines, clamped to the
// file bounds.
func (s *source) window(n int) string {
	lo := n - 1 - contextLines
	if lo < 0 {
		lo = 0
	}
	hi := n + contextLines
	if hi > len(s.lines) {
		hi = len(s.lines)
	}
	if lo >= hi {
		return ""
	}
	return strings.Join(s.lines[lo:hi], "\n")
}

// snippet picks the snippet style for a category.
func (s *source) snippet(cat model.Category, n int) string {
	if cat == model.CategoryCodeQuality {
		return s.window(n)
	}
	return s.line(n)
}

func (s *source) finding(line int, sev model.Severity, cat model.Category, title, desc, snippet string) model.Finding {
	return model.Finding{
		FilePath:    s.path,
		LineNumber:  line,
		Severity:    sev,
		Category:    cat,
		Title:       title,
		Description: desc,
		CodeSnippet: snippet,
	}
}
