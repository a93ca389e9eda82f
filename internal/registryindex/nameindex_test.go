package registryindex

import "testing"

func TestNameIndexSuggest(t *testing.T) {
	idx := NewNameIndex()
	for _, n := range []string{"serde", "serde_json", "serde_derive", "regex"} {
		idx.Add(n)
	}
	if idx.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", idx.Len())
	}
	got := idx.Suggest("serde-jso", 5)
	found := false
	for _, g := range got {
		if g == "serde_json" {
			found = true
		}
	}
	if !found {
		t.Errorf("Suggest(%q) = %v, want it to include serde_json", "serde-jso", got)
	}
}

func TestNameIndexSuggestNoMatch(t *testing.T) {
	idx := NewNameIndex()
	idx.Add("regex")
	if got := idx.Suggest("zzz-unrelated", 5); got != nil {
		t.Errorf("Suggest with no shared prefix = %v, want nil", got)
	}
}
