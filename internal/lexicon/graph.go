// Package lexicon provides the read-only word model: lemmas, roots and the
// canonical-variant graph. The scheduler never mutates lemmas; all memory
// credit is resolved through this graph to a canonical lemma.
package lexicon

import (
	"sort"

	"alif/internal/types"
)

// Graph is the in-memory canonical-lemma forest. Variant lemmas carry a
// single parent edge; canonicals have none. Built once per engine from the
// lemma table and safe for concurrent reads.
type Graph struct {
	byID      map[int64]*types.Lemma
	variants  map[int64][]int64 // canonical id -> variant ids
	byRoot    map[int64][]int64 // root id -> lemma ids (canonicals and variants)
	canonical []int64           // canonical, non-function lemma ids, by frequency rank
}

// NewGraph indexes the given lemmas.
func NewGraph(lemmas []types.Lemma) *Graph {
	g := &Graph{
		byID:     make(map[int64]*types.Lemma, len(lemmas)),
		variants: make(map[int64][]int64),
		byRoot:   make(map[int64][]int64),
	}
	for i := range lemmas {
		l := &lemmas[i]
		g.byID[l.ID] = l
		if l.RootID != 0 {
			g.byRoot[l.RootID] = append(g.byRoot[l.RootID], l.ID)
		}
	}
	for i := range lemmas {
		l := &lemmas[i]
		if l.IsVariant() {
			canon := g.Resolve(l.ID)
			g.variants[canon] = append(g.variants[canon], l.ID)
			continue
		}
		if !l.IsFunctionWord {
			g.canonical = append(g.canonical, l.ID)
		}
	}
	sort.Slice(g.canonical, func(i, j int) bool {
		a, b := g.byID[g.canonical[i]], g.byID[g.canonical[j]]
		if a.FrequencyRank != b.FrequencyRank {
			return a.FrequencyRank < b.FrequencyRank
		}
		return a.ID < b.ID
	})
	return g
}

// Lemma returns the lemma by id, or nil.
func (g *Graph) Lemma(id int64) *types.Lemma {
	return g.byID[id]
}

// Resolve walks variant parent edges to the canonical lemma id. Unknown ids
// resolve to themselves. The relation is a forest; the depth guard only
// protects against corrupted import data.
func (g *Graph) Resolve(id int64) int64 {
	cur := id
	for depth := 0; depth < 32; depth++ {
		l, ok := g.byID[cur]
		if !ok || l.CanonicalID == 0 {
			return cur
		}
		cur = l.CanonicalID
	}
	return cur
}

// IsFunctionWord reports whether the id resolves to a function word. A
// variant of a function word counts as one.
func (g *Graph) IsFunctionWord(id int64) bool {
	l := g.byID[g.Resolve(id)]
	return l != nil && l.IsFunctionWord
}

// Variants returns the variant ids attached to a canonical lemma.
func (g *Graph) Variants(canonicalID int64) []int64 {
	return g.variants[canonicalID]
}

// CanonicalLemmas returns canonical, non-function lemma ids ordered by
// ascending frequency rank (most common first).
func (g *Graph) CanonicalLemmas() []int64 {
	return g.canonical
}

// RootSiblings returns the canonical ids of lemmas sharing the root of the
// given lemma, excluding the lemma itself.
func (g *Graph) RootSiblings(id int64) []int64 {
	l := g.byID[id]
	if l == nil || l.RootID == 0 {
		return nil
	}
	var out []int64
	seen := map[int64]struct{}{g.Resolve(id): {}}
	for _, sib := range g.byRoot[l.RootID] {
		canon := g.Resolve(sib)
		if _, ok := seen[canon]; ok {
			continue
		}
		seen[canon] = struct{}{}
		out = append(out, canon)
	}
	return out
}

// Closure expands a set of canonical lemma ids with every variant that
// resolves into it. Used to match sentence tokens against a due set.
func (g *Graph) Closure(canonicalIDs []int64) map[int64]int64 {
	out := make(map[int64]int64, len(canonicalIDs)*2)
	for _, id := range canonicalIDs {
		out[id] = id
		for _, v := range g.variants[id] {
			out[v] = id
		}
	}
	return out
}
