// Package blocking narrows the known alias set to lexically close candidates
// before any vector work is done.
package blocking

import (
	"sort"
	"sync"

	"AlphaNebula/internal/domain/models"
	"AlphaNebula/internal/domain/service"
)

const (
	defaultMinScore  = 0.5
	defaultShortlist = 512
)

type entry struct {
	alias models.EntityAlias
	norm  string
	grams []string
}

// Index is a character trigram inverted index over aliases. Only the shortlist of
// aliases sharing the most trigrams with the query is scored exactly.
type Index struct {
	mu        sync.RWMutex
	entries   map[models.AliasKey]*entry
	postings  map[string]map[models.AliasKey]struct{}
	minScore  float64
	shortlist int
}

// Option configures Index.
type Option func(*Index)

// WithMinScore drops candidates scoring below min.
func WithMinScore(min float64) Option {
	return func(ix *Index) {
		if min >= 0 && min <= 1 {
			ix.minScore = min
		}
	}
}

// WithShortlist bounds how many aliases are scored exactly per query.
func WithShortlist(n int) Option {
	return func(ix *Index) {
		if n > 0 {
			ix.shortlist = n
		}
	}
}

func New(opts ...Option) *Index {
	ix := &Index{
		entries:   make(map[models.AliasKey]*entry),
		postings:  make(map[string]map[models.AliasKey]struct{}),
		minScore:  defaultMinScore,
		shortlist: defaultShortlist,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

var _ service.BlockingIndex = (*Index)(nil)

// Add inserts or replaces aliases by key.
func (ix *Index) Add(aliases ...models.EntityAlias) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, a := range aliases {
		key := a.Key()
		if key.Name == "" {
			continue
		}
		ix.removeLocked(key)
		e := &entry{alias: a, norm: key.Name, grams: trigrams(key.Name)}
		ix.entries[key] = e
		for _, g := range e.grams {
			p, ok := ix.postings[g]
			if !ok {
				p = make(map[models.AliasKey]struct{})
				ix.postings[g] = p
			}
			p[key] = struct{}{}
		}
	}
}

func (ix *Index) Remove(key models.AliasKey) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(key)
}

func (ix *Index) removeLocked(key models.AliasKey) {
	e, ok := ix.entries[key]
	if !ok {
		return
	}
	for _, g := range e.grams {
		if p := ix.postings[g]; p != nil {
			delete(p, key)
			if len(p) == 0 {
				delete(ix.postings, g)
			}
		}
	}
	delete(ix.entries, key)
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

type hit struct {
	key   models.AliasKey
	count int
}

// Candidates returns up to k aliases ordered by score desc, then raw name, ticker
// and entity type ascending. An empty result is valid.
func (ix *Index) Candidates(rawName string, k int) []service.ScoredAlias {
	norm := models.NormalizeName(rawName)
	if norm == "" || k <= 0 {
		return nil
	}
	grams := trigrams(norm)

	ix.mu.RLock()
	counts := make(map[models.AliasKey]int)
	for _, g := range grams {
		for key := range ix.postings[g] {
			counts[key]++
		}
	}
	hits := make([]hit, 0, len(counts))
	for key, n := range counts {
		hits = append(hits, hit{key: key, count: n})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].count != hits[j].count {
			return hits[i].count > hits[j].count
		}
		return keyLess(hits[i].key, hits[j].key)
	})
	if len(hits) > ix.shortlist {
		hits = hits[:ix.shortlist]
	}

	out := make([]service.ScoredAlias, 0, len(hits))
	for _, h := range hits {
		e := ix.entries[h.key]
		if s := Score(norm, e.norm); s >= ix.minScore {
			out = append(out, service.ScoredAlias{Alias: e.alias, Score: s})
		}
	}
	ix.mu.RUnlock()

	SortScored(out)
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// SortScored applies the deterministic candidate order.
func SortScored(s []service.ScoredAlias) {
	sort.SliceStable(s, func(i, j int) bool {
		a, b := s[i], s[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Alias.RawName != b.Alias.RawName {
			return a.Alias.RawName < b.Alias.RawName
		}
		if a.Alias.Ticker != b.Alias.Ticker {
			return a.Alias.Ticker < b.Alias.Ticker
		}
		return a.Alias.EntityType < b.Alias.EntityType
	})
}

func keyLess(a, b models.AliasKey) bool {
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.EntityType < b.EntityType
}
