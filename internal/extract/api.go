package extract

import (
	"context"
	"sort"

	"github.com/phobologic/rsuml/internal/corpus"
	apperrors "github.com/phobologic/rsuml/internal/errors"
	"github.com/phobologic/rsuml/internal/lang"
	"github.com/phobologic/rsuml/internal/model"
	"github.com/phobologic/rsuml/internal/query"
)

// Capture labels shared by the impl and trait_methods queries.
const (
	labelFunctionName   = "function.name"
	labelFunctionParams = "function.parameters"
	labelFunctionReturn = "function.return_type"
	labelTraitName      = "trait.name"
	labelTraitArgs      = "trait.args"
)

// FindAPIs returns t's API set. A populated set is returned as is unless
// refresh is set; otherwise every impl query (and, for traits, every
// trait_methods query) is run bound to t's exact name and the resulting
// set is published in one step.
//
// FindAPIs only reads the corpus and writes t's own slot, so calls for
// distinct Types may run concurrently.
func (e *Engine) FindAPIs(ctx context.Context, t *model.Type, refresh bool) (*model.APISet, error) {
	if !refresh {
		if s, ok := t.API(); ok {
			return s, nil
		}
	}

	queries := e.reg.ByExtractor(query.ExtractImpl)
	if t.Kind == model.Trait {
		queries = append(queries, e.reg.ByExtractor(query.ExtractTraitMethods)...)
	}

	args := query.Args{query.TypeNameParam: t.Name}
	var entries []*apiEntry
	seen := make(map[apiSite]*apiEntry)
	for _, q := range queries {
		results, err := e.reg.Execute(ctx, q, args)
		if err != nil {
			return nil, apperrors.AddContext(err, apperrors.CtxType, t.Name)
		}
		for _, r := range results {
			for _, m := range r.Matches {
				entry, ok := newAPIEntry(t, r.Path, m)
				if !ok {
					continue
				}
				if prev, dup := seen[entry.site]; dup {
					prev.merge(entry.api)
					continue
				}
				seen[entry.site] = entry
				entries = append(entries, entry)
			}
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].site, entries[j].site
		if a.file != b.file {
			return a.file < b.file
		}
		return a.start < b.start
	})
	apis := make([]*model.API, len(entries))
	for i, en := range entries {
		apis[i] = en.api
	}

	set := model.NewAPISet(apis)
	t.SetAPI(set)
	return set, nil
}

// apiSite identifies one method declaration. Optional captures can make
// a query report the same method more than once.
type apiSite struct {
	file  string
	start uint32
	trait string
}

type apiEntry struct {
	site apiSite
	api  *model.API
}

func newAPIEntry(owner *model.Type, path string, m corpus.Match) (*apiEntry, bool) {
	fn, ok := m.Get(labelFunctionName)
	if !ok {
		return nil, false
	}

	trait := ""
	if name := m.Text(labelTraitName); name != "" {
		trait = name + m.Text(labelTraitArgs)
	}

	api := &model.API{
		Owner:      owner,
		Location:   fn.Location,
		Name:       fn.Text,
		Params:     lang.CollapseWhitespace(m.Text(labelFunctionParams)),
		ReturnType: lang.CollapseWhitespace(m.Text(labelFunctionReturn)),
		Trait:      lang.CollapseWhitespace(trait),
	}
	return &apiEntry{
		site: apiSite{file: path, start: fn.StartByte, trait: api.Trait},
		api:  api,
	}, true
}

func (e *apiEntry) merge(o *model.API) {
	if e.api.Params == "" {
		e.api.Params = o.Params
	}
	if e.api.ReturnType == "" {
		e.api.ReturnType = o.ReturnType
	}
}
