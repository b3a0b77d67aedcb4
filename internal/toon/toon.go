// Package toon implements TOON (Token-Oriented Object Notation) encoding
// of raw query results.
package toon

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/phobologic/rsuml/internal/corpus"
	"github.com/phobologic/rsuml/internal/query"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// EncodeMatches converts the results of running q with args into TOON
// format: one row per capture, grouped by match. Lines and columns are
// zero-based.
func EncodeMatches(q *query.Query, args query.Args, results []corpus.Result) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("query: %s", encodeValue(q.Name)))
	parts = append(parts, fmt.Sprintf("kind: %s", encodeValue(q.Kind.String())))

	if len(q.Params) > 0 {
		var paramRows [][]string
		for _, p := range q.Params {
			paramRows = append(paramRows, []string{p, args[p]})
		}
		parts = append(parts, formatTabular("params", []string{"name", "value"}, paramRows))
	}

	var rows [][]string
	n := 0
	for _, r := range results {
		for _, m := range r.Matches {
			labels := m.Labels()
			sort.Strings(labels)
			for _, label := range labels {
				for _, c := range m.All(label) {
					rows = append(rows, []string{
						r.Path,
						fmt.Sprintf("%d", n),
						fmt.Sprintf("%d", c.Location.Line),
						fmt.Sprintf("%d", c.Location.Column),
						label,
						c.Text,
					})
				}
			}
			n++
		}
	}
	parts = append(parts, fmt.Sprintf("matches: %d", n))
	parts = append(parts, formatTabular("captures", []string{"file", "match", "line", "column", "capture", "text"}, rows))

	return strings.Join(parts, "\n")
}

// EncodeQueries lists registered queries in TOON format.
func EncodeQueries(queries []*query.Query) string {
	var rows [][]string
	for _, q := range queries {
		rows = append(rows, []string{
			q.Name,
			q.Kind.String(),
			string(q.Extractor),
			strings.Join(q.Params, " "),
			q.Source,
		})
	}
	return formatTabular("queries", []string{"name", "kind", "extractor", "params", "source"}, rows)
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}

	if value != strings.TrimSpace(value) {
		return quote(value)
	}

	if strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}

	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}

	if looksNumeric.MatchString(value) {
		return value
	}

	if needsQuoting.MatchString(value) {
		return quote(value)
	}

	if strings.HasPrefix(value, "-") {
		return quote(value)
	}

	return value
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}
