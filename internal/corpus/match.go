package corpus

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/rsuml/internal/lang"
	"github.com/phobologic/rsuml/internal/model"
)

// Capture is one syntax node bound to a capture label.
type Capture struct {
	Text      string
	Location  model.Location
	StartByte uint32
}

// Match holds the captures of a single query match. A label may be bound
// to several nodes when the pattern quantifies it; labels the match did not
// bind are simply absent.
type Match struct {
	Pattern  int
	captures map[string][]Capture
}

// NewMatch builds a Match from label → captures. It is meant for tests and
// for callers assembling matches by hand.
func NewMatch(pattern int, captures map[string][]Capture) Match {
	return Match{Pattern: pattern, captures: captures}
}

// Get returns the first capture bound to label.
func (m Match) Get(label string) (Capture, bool) {
	cs := m.captures[label]
	if len(cs) == 0 {
		return Capture{}, false
	}
	return cs[0], true
}

// Text returns the text of the first capture bound to label, or "".
func (m Match) Text(label string) string {
	c, _ := m.Get(label)
	return c.Text
}

// All returns every capture bound to label in document order.
func (m Match) All(label string) []Capture {
	return m.captures[label]
}

// Has reports whether label is bound.
func (m Match) Has(label string) bool {
	return len(m.captures[label]) > 0
}

// Labels returns the bound labels.
func (m Match) Labels() []string {
	out := make([]string, 0, len(m.captures))
	for k := range m.captures {
		out = append(out, k)
	}
	return out
}

// Result pairs a file with every match the query produced in it.
type Result struct {
	Path    string
	Matches []Match
}

// collectMatches runs query over root and converts each surviving match
// into a Match. Predicates (#eq?, #match?) are applied here.
func collectMatches(query *sitter.Query, root *sitter.Node, source []byte, path string) []Match {
	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(query, root)

	var matches []Match

	for {
		match, ok := qc.NextMatch()
		if !ok {
			break
		}
		match = qc.FilterPredicates(match, source)
		if len(match.Captures) == 0 {
			continue
		}

		captures := make(map[string][]Capture, len(match.Captures))
		for _, c := range match.Captures {
			label := query.CaptureNameForId(c.Index)
			point := c.Node.StartPoint()
			captures[label] = append(captures[label], Capture{
				Text: lang.NodeText(c.Node, source),
				Location: model.Location{
					File:   path,
					Line:   int(point.Row),
					Column: int(point.Column),
				},
				StartByte: c.Node.StartByte(),
			})
		}

		matches = append(matches, Match{
			Pattern:  int(match.PatternIndex),
			captures: captures,
		})
	}

	return matches
}
