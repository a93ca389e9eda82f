package lockfile

import (
	"testing"

	"github.com/forgelang/forge/internal/ident"
	"github.com/forgelang/forge/internal/pkgmeta"
)

func mustVersion(t *testing.T, s string) ident.Version {
	t.Helper()
	v, err := ident.ParseVersion(s)
	if err != nil {
		t.Fatalf("ParseVersion(%q): %v", s, err)
	}
	return v
}

func rootSrc() ident.SourceID { return ident.NewSourceID(ident.KindPath, "/work/proj") }
func regSrc() ident.SourceID  { return ident.NewSourceID(ident.KindRegistry, "https://example.test/index") }

func buildSampleResolve(t *testing.T) *Resolve {
	t.Helper()
	root := pkgmeta.PackageID{Name: "proj", Version: mustVersion(t, "0.1.0"), Source: rootSrc()}
	a := pkgmeta.PackageID{Name: "alpha", Version: mustVersion(t, "1.2.0"), Source: regSrc()}
	b := pkgmeta.PackageID{Name: "beta", Version: mustVersion(t, "2.0.0"), Source: regSrc()}

	r := newResolve()
	r.Packages = []pkgmeta.PackageID{root, a, b}
	r.Edges[root.Key()] = []pkgmeta.PackageID{a, b}
	r.Edges[a.Key()] = []pkgmeta.PackageID{b}
	r.Checksums[a.Key()] = "deadbeef"
	r.Checksums[b.Key()] = "cafef00d"
	r.Metadata["some-opaque-key"] = "some-opaque-value"
	return r
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	orig := buildSampleResolve(t)

	b, err := Encode(orig, rootSrc())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(b, rootSrc())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if !Equivalent(orig, decoded) {
		t.Fatalf("decode(encode(r)) != r\nencoded:\n%s", b)
	}

	b2, err := Encode(decoded, rootSrc())
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	decoded2, err := Decode(b2, rootSrc())
	if err != nil {
		t.Fatalf("re-decode: %v", err)
	}
	if !Equivalent(decoded, decoded2) {
		t.Fatalf("second round trip diverged")
	}
}

func TestEncodeOmitsRootSource(t *testing.T) {
	orig := buildSampleResolve(t)
	b, err := Encode(orig, rootSrc())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	doc := string(b)
	if want := `name = "proj"`; !contains(doc, want) {
		t.Fatalf("expected %q in document:\n%s", want, doc)
	}
	if unwanted := rootSrc().String(); contains(doc, unwanted) {
		t.Fatalf("root source %q should be omitted from document:\n%s", unwanted, doc)
	}
}

func TestUnusedPatchRoundTrip(t *testing.T) {
	orig := buildSampleResolve(t)
	orig.UnusedPatches = []pkgmeta.PackageID{
		{Name: "orphan", Version: mustVersion(t, "0.9.0"), Source: regSrc()},
	}

	b, err := Encode(orig, rootSrc())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(b, rootSrc())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(decoded.UnusedPatches) != 1 || decoded.UnusedPatches[0].Name != "orphan" {
		t.Fatalf("UnusedPatches round trip failed: %+v", decoded.UnusedPatches)
	}
}

func TestRejectsFutureSchemaVersion(t *testing.T) {
	_, err := Decode([]byte("version = 9999\n"), rootSrc())
	if err == nil {
		t.Fatal("expected error decoding a lockfile with a newer schema version than this tool understands")
	}
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
