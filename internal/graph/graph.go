// Package graph derives composition edges from the Type Model and ranks
// Types by how central they are to it.
package graph

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/phobologic/rsuml/internal/model"
)

// Edge says that From is the declared type of field Field of To.
type Edge struct {
	From  string
	To    string
	Field string
}

// denylist holds field types that never produce a composition edge.
var denylist = map[string]struct{}{
	"i8": {}, "i16": {}, "i32": {}, "i64": {}, "i128": {}, "isize": {},
	"u8": {}, "u16": {}, "u32": {}, "u64": {}, "u128": {}, "usize": {},
	"f32": {}, "f64": {},
	"bool": {}, "char": {},
	"str": {}, "&str": {}, "String": {},
	"Self": {}, "&Self": {},
	"()": {},
}

// Skipped reports whether a field of the given type gets no composition
// edge.
func Skipped(fieldType string) bool {
	_, ok := denylist[fieldType]
	return ok
}

// Edges returns t's composition edges in field order.
func Edges(t *model.Type) []Edge {
	var edges []Edge
	for _, f := range t.Fields() {
		if Skipped(f.Type) {
			continue
		}
		edges = append(edges, Edge{From: f.Type, To: t.Name, Field: f.Name})
	}
	return edges
}

// Rank applies PageRank over the references between Types and returns
// the rank of each Type name. A Type references every known Type named in
// one of its field types (including enum variant fields), once per field.
func Rank(types []*model.Type) map[string]float64 {
	if len(types) == 0 {
		return nil
	}

	nodes := make(map[string]struct{}, len(types))
	for _, t := range types {
		nodes[t.Name] = struct{}{}
	}

	outEdges := make(map[string][]string)
	outDegree := make(map[string]int)
	for _, t := range types {
		for _, typ := range memberTypes(t) {
			for _, ref := range References(typ, nodes) {
				if ref == t.Name {
					continue // no self-edges
				}
				outEdges[t.Name] = append(outEdges[t.Name], ref)
				outDegree[t.Name]++
			}
		}
	}

	if len(outEdges) == 0 {
		uniform := 1.0 / float64(len(nodes))
		ranks := make(map[string]float64, len(nodes))
		for n := range nodes {
			ranks[n] = uniform
		}
		return ranks
	}

	return pageRank(nodes, outEdges, outDegree, 0.85, 100, 1e-6)
}

func memberTypes(t *model.Type) []string {
	var out []string
	for _, f := range t.Fields() {
		out = append(out, f.Type)
	}
	for _, v := range t.Variants {
		for _, f := range v.Fields {
			out = append(out, f.Type)
		}
	}
	return out
}

// References returns the distinct identifiers in a field type that name a
// known Type, sorted. "Option<Vec<Point>>" references Point.
func References(fieldType string, known map[string]struct{}) []string {
	idents := strings.FieldsFunc(fieldType, func(r rune) bool {
		return r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{})
	for _, id := range idents {
		if _, ok := known[id]; ok {
			seen[id] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

func pageRank(
	nodes map[string]struct{},
	outEdges map[string][]string,
	outDegree map[string]int,
	alpha float64,
	maxIter int,
	tol float64,
) map[string]float64 {
	n := len(nodes)
	if n == 0 {
		return nil
	}

	rank := make(map[string]float64, n)
	initial := 1.0 / float64(n)
	for node := range nodes {
		rank[node] = initial
	}

	teleport := (1.0 - alpha) / float64(n)

	for iter := 0; iter < maxIter; iter++ {
		newRank := make(map[string]float64, n)

		// Dangling nodes spread their rank uniformly.
		var danglingSum float64
		for node := range nodes {
			if outDegree[node] == 0 {
				danglingSum += rank[node]
			}
		}
		danglingContrib := alpha * danglingSum / float64(n)

		for node := range nodes {
			newRank[node] = teleport + danglingContrib
		}

		for src, targets := range outEdges {
			contrib := alpha * rank[src] / float64(outDegree[src])
			for _, tgt := range targets {
				newRank[tgt] += contrib
			}
		}

		var diff float64
		for node := range nodes {
			diff += math.Abs(newRank[node] - rank[node])
		}

		rank = newRank

		if diff < tol {
			break
		}
	}

	return rank
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
