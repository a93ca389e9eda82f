package diag

import "testing"

func TestSinkDeduplicatesIdenticalDiagnostics(t *testing.T) {
	s := NewSink()
	d := Diagnostic{Kind: KindWarning, Code: "multiple-versions", Message: "multiple versions of bar"}

	if !s.Emit(d) {
		t.Fatal("first Emit should report a new diagnostic")
	}
	if s.Emit(d) {
		t.Fatal("second identical Emit should be deduplicated")
	}
	if s.Emit(Diagnostic{Kind: KindWarning, Code: "multiple-versions", Message: "multiple versions of bar", Primary: Span{File: "a"}}) == false {
		t.Fatal("a diagnostic with a different span is distinct and should not be deduplicated")
	}

	if got := len(s.All()); got != 2 {
		t.Fatalf("All() returned %d diagnostics, want 2", got)
	}
}

func TestSinkHasErrors(t *testing.T) {
	s := NewSink()
	s.Emit(Diagnostic{Kind: KindWarning, Message: "w"})
	if s.HasErrors() {
		t.Fatal("HasErrors should be false with only a warning")
	}
	s.Emit(Diagnostic{Kind: KindError, Message: "e"})
	if !s.HasErrors() {
		t.Fatal("HasErrors should be true after an error is emitted")
	}
	if len(s.Errors()) != 1 {
		t.Fatalf("Errors() = %v, want exactly 1", s.Errors())
	}
}

func TestSortBySpan(t *testing.T) {
	s := NewSink()
	s.Emit(Diagnostic{Message: "no span"})
	s.Emit(Diagnostic{Message: "b line 1", Primary: Span{File: "b.toml", Line: 1}})
	s.Emit(Diagnostic{Message: "a line 2", Primary: Span{File: "a.toml", Line: 2}})
	s.Emit(Diagnostic{Message: "a line 1", Primary: Span{File: "a.toml", Line: 1}})

	sorted := s.SortBySpan()
	want := []string{"a line 1", "a line 2", "b line 1", "no span"}
	if len(sorted) != len(want) {
		t.Fatalf("got %d diagnostics, want %d", len(sorted), len(want))
	}
	for i, w := range want {
		if sorted[i].Message != w {
			t.Errorf("sorted[%d].Message = %q, want %q", i, sorted[i].Message, w)
		}
	}
}

func TestLintResolveForbidNotOverridable(t *testing.T) {
	ws := Table{"unused-patch": Forbid}
	member := Table{"unused-patch": Allow}

	got := Resolve("unused-patch", ws, member, true)
	if got != Forbid {
		t.Fatalf("Resolve() = %v, want Forbid (not overridable by a finer-grained setting)", got)
	}
}

func TestLintResolveMemberOverridesNonForbid(t *testing.T) {
	ws := Table{"unused-patch": Warn}
	member := Table{"unused-patch": Deny}

	got := Resolve("unused-patch", ws, member, true)
	if got != Deny {
		t.Fatalf("Resolve() = %v, want Deny", got)
	}
}

func TestLintResolveWithoutInheritIgnoresWorkspace(t *testing.T) {
	ws := Table{"unused-patch": Deny}
	member := Table{}

	got := Resolve("unused-patch", ws, member, false)
	if got != Allow {
		t.Fatalf("Resolve() = %v, want Allow when a member does not opt into workspace inheritance", got)
	}
}

func TestLintResolveDefaultsToAllow(t *testing.T) {
	if got := Resolve("unused-patch", nil, nil, true); got != Allow {
		t.Fatalf("Resolve() = %v, want Allow with no tables at all", got)
	}
}

func TestLevelToKind(t *testing.T) {
	if _, emit := Allow.ToKind(); emit {
		t.Fatal("Allow should not emit")
	}
	if k, emit := Warn.ToKind(); !emit || k != KindWarning {
		t.Fatalf("Warn.ToKind() = %v, %v", k, emit)
	}
	if k, emit := Deny.ToKind(); !emit || k != KindError {
		t.Fatalf("Deny.ToKind() = %v, %v", k, emit)
	}
	if k, emit := Forbid.ToKind(); !emit || k != KindError {
		t.Fatalf("Forbid.ToKind() = %v, %v", k, emit)
	}
}
