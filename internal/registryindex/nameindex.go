package registryindex

import (
	radix "github.com/armon/go-radix"

	"github.com/forgelang/forge/internal/ident"
)

// NameIndex is a prefix index over every package name added to it
// (SourceSet adds each name a Query returns), used to offer a
// did-you-mean suggestion when a requested dependency name matches
// nothing (spec.md §4.J diagnostics). Grounded on the teacher's
// `deducerTrie` wrapper around the same library, adapted from indexing
// import-path deducers to indexing package names.
type NameIndex struct {
	t *radix.Tree
}

func NewNameIndex() *NameIndex {
	return &NameIndex{t: radix.New()}
}

// Add records name in the index, keyed by its case-folded form so
// lookups are case-insensitive like registry name matching elsewhere.
func (idx *NameIndex) Add(name string) {
	idx.t.Insert(ident.FoldName(name), name)
}

// Len reports how many distinct names are indexed.
func (idx *NameIndex) Len() int { return idx.t.Len() }

// Suggest returns names extending the longest typed prefix that any
// indexed name shares, for use in a "no such package; did you mean
// ...?" diagnostic. It shrinks the typed prefix one character at a time
// until it finds at least one match, so a typo partway through a name
// still surfaces the intended completion. Returns at most limit names.
func (idx *NameIndex) Suggest(name string, limit int) []string {
	prefix := ident.FoldName(name)
	for len(prefix) > 0 {
		var out []string
		idx.t.WalkPrefix(prefix, func(_ string, v interface{}) bool {
			out = append(out, v.(string))
			return len(out) >= limit
		})
		if len(out) > 0 {
			return out
		}
		prefix = prefix[:len(prefix)-1]
	}
	return nil
}
