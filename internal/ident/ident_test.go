package ident

import "testing"

func TestFoldName(t *testing.T) {
	cases := map[string]string{
		"Foo_Bar": "foo-bar",
		"foo-bar": "foo-bar",
		"FOO":     "foo",
	}
	for in, want := range cases {
		if got := FoldName(in); got != want {
			t.Errorf("FoldName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestVersionCompareAndPrerelease(t *testing.T) {
	v1 := mustVersion(t, "1.2.3")
	v2 := mustVersion(t, "1.3.0")
	if !v1.LessThan(v2) {
		t.Errorf("%s should be less than %s", v1, v2)
	}
	if v1.Compare(v1) != 0 {
		t.Errorf("%s should equal itself", v1)
	}

	pre := mustVersion(t, "2.0.0-alpha.1")
	if !pre.IsPrerelease() {
		t.Error("2.0.0-alpha.1 should report IsPrerelease")
	}
	if v1.IsPrerelease() {
		t.Error("1.2.3 should not report IsPrerelease")
	}
}

func TestRequirementMatches(t *testing.T) {
	cases := []struct {
		req     string
		version string
		want    bool
	}{
		{"*", "1.0.0", true},
		{"^1.2", "1.9.0", true},
		{"^1.2", "2.0.0", false},
		{"~1.2.3", "1.2.9", true},
		{"~1.2.3", "1.3.0", false},
		{"=1.0.0", "1.0.0", true},
		{"=1.0.0", "1.0.1", false},
	}
	for _, c := range cases {
		req, err := ParseRequirement(c.req)
		if err != nil {
			t.Fatalf("ParseRequirement(%q): %v", c.req, err)
		}
		v := mustVersion(t, c.version)
		if got := req.Matches(v); got != c.want {
			t.Errorf("Requirement(%q).Matches(%q) = %v, want %v", c.req, c.version, got, c.want)
		}
	}
}

func TestRequirementRejectsPrereleaseUnlessPinned(t *testing.T) {
	req, err := ParseRequirement("^1.0")
	if err != nil {
		t.Fatal(err)
	}
	pre := mustVersion(t, "1.5.0-beta.1")
	if req.Matches(pre) {
		t.Error("a wide requirement should not admit an unrelated pre-release")
	}
}

func mustVersion(t *testing.T, s string) Version {
	t.Helper()
	v, err := ParseVersion(s)
	if err != nil {
		t.Fatalf("ParseVersion(%q): %v", s, err)
	}
	return v
}

func TestSourceIDStringRoundTrip(t *testing.T) {
	cases := []SourceID{
		NewSourceID(KindPath, "/tmp/libby"),
		NewSourceID(KindRegistry, "https://forge.example/index"),
		NewSourceID(KindLocalRegistry, "/var/cache/registry"),
		NewSourceID(KindDirectory, "/var/cache/unpacked"),
		NewGitSourceID("https://example.test/repo.git", DefaultBranch),
		NewGitSourceID("https://example.test/repo.git", Tag("v1.0.0")),
		NewGitSourceID("https://example.test/repo.git", Branch("main")),
		NewGitSourceID("https://example.test/repo.git", Rev("deadbeef")),
	}
	for _, src := range cases {
		s := src.String()
		back, err := ParseSourceIDString(s)
		if err != nil {
			t.Errorf("ParseSourceIDString(%q): %v", s, err)
			continue
		}
		if !back.Equal(src) {
			t.Errorf("round trip %q: got %+v, want %+v", s, back, src)
		}
	}
}

func TestSourceIDEqualIgnoresRefForNonGit(t *testing.T) {
	a := NewSourceID(KindPath, "/tmp/libby")
	b := NewSourceID(KindPath, "/tmp/libby")
	if !a.Equal(b) {
		t.Error("identical path SourceIDs should be Equal")
	}
	withRef := SourceID{Kind: KindPath, URL: "/tmp/libby", Ref: Tag("v1")}
	if !a.Equal(withRef) {
		t.Error("path SourceIDs should be Equal regardless of Ref")
	}

	g1 := NewGitSourceID("https://example.test/repo.git", Tag("v1"))
	g2 := NewGitSourceID("https://example.test/repo.git", Tag("v2"))
	if g1.Equal(g2) {
		t.Error("git SourceIDs with different refs should not be Equal")
	}
}

func TestSourceIDHashStable(t *testing.T) {
	a := NewSourceID(KindRegistry, "https://forge.example/index")
	b := NewSourceID(KindRegistry, "https://forge.example/index")
	if a.Hash() != b.Hash() {
		t.Error("Hash() should be deterministic for equal SourceIDs")
	}
	c := NewSourceID(KindRegistry, "https://other.example/index")
	if a.Hash() == c.Hash() {
		t.Error("Hash() collided across distinct URLs")
	}
}

func TestPlatformExprEval(t *testing.T) {
	linuxCfg := CfgSet{
		TargetName: "x86_64-unknown-linux-gnu",
		Flags:      map[string]bool{"unix": true},
		KeyValues:  map[string]map[string]bool{"target_os": {"linux": true}},
	}
	windowsCfg := CfgSet{
		TargetName: "x86_64-pc-windows-msvc",
		Flags:      map[string]bool{"windows": true},
		KeyValues:  map[string]map[string]bool{"target_os": {"windows": true}},
	}

	cases := []struct {
		expr string
		cfg  CfgSet
		want bool
	}{
		{"x86_64-unknown-linux-gnu", linuxCfg, true},
		{"x86_64-unknown-linux-gnu", windowsCfg, false},
		{"cfg(unix)", linuxCfg, true},
		{"cfg(unix)", windowsCfg, false},
		{`cfg(target_os = "linux")`, linuxCfg, true},
		{`cfg(not(target_os = "linux"))`, linuxCfg, false},
		{`cfg(any(unix, windows))`, windowsCfg, true},
		{`cfg(all(unix, windows))`, linuxCfg, false},
	}
	for _, c := range cases {
		expr, err := ParsePlatformExpr(c.expr)
		if err != nil {
			t.Fatalf("ParsePlatformExpr(%q): %v", c.expr, err)
		}
		if got := expr.Eval(c.cfg); got != c.want {
			t.Errorf("ParsePlatformExpr(%q).Eval(%s) = %v, want %v", c.expr, c.cfg.TargetName, got, c.want)
		}
	}
}

func TestParsePlatformExprRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "cfg(unix", "cfg()"} {
		if _, err := ParsePlatformExpr(s); err == nil {
			t.Errorf("ParsePlatformExpr(%q): expected error, got none", s)
		}
	}
}
