package ident

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// SourceKind tags the origin of a package: a remote index+tarball
// registry, a sparse HTTP registry, a local precomputed registry, a bare
// directory of unpacked packages, or a version-controlled checkout.
type SourceKind uint8

const (
	KindPath SourceKind = iota
	KindGit
	KindRegistry
	KindSparseRegistry
	KindLocalRegistry
	KindDirectory
)

func (k SourceKind) String() string {
	switch k {
	case KindPath:
		return "path"
	case KindGit:
		return "git"
	case KindRegistry:
		return "registry"
	case KindSparseRegistry:
		return "sparse-registry"
	case KindLocalRegistry:
		return "local-registry"
	case KindDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// GitReference pins a commit in a Git repository, per the
// `?branch=|?ref=|?rev=|?tag=` query-string convention.
type GitReference struct {
	kind int8 // 0=DefaultBranch 1=Tag 2=Branch 3=Rev
	val  string
}

var DefaultBranch = GitReference{kind: 0}

func Tag(s string) GitReference    { return GitReference{kind: 1, val: s} }
func Branch(s string) GitReference { return GitReference{kind: 2, val: s} }
func Rev(s string) GitReference    { return GitReference{kind: 3, val: s} }

func (g GitReference) IsDefaultBranch() bool { return g.kind == 0 }

func (g GitReference) String() string {
	switch g.kind {
	case 1:
		return "tag=" + g.val
	case 2:
		return "branch=" + g.val
	case 3:
		return "rev=" + g.val
	default:
		return ""
	}
}

// cmp orders GitReferences: DefaultBranch < Tag < Branch < Rev, then
// lexically on the value. This ordering only matters relative to other
// GitReferences when two SourceIDs are both of KindGit.
func (g GitReference) cmp(o GitReference) int {
	if g.kind != o.kind {
		if g.kind < o.kind {
			return -1
		}
		return 1
	}
	if g.val == o.val {
		return 0
	}
	if g.val < o.val {
		return -1
	}
	return 1
}

// ParseGitReferenceQuery maps a URL's query string to a GitReference, per
// the `branch|ref|rev|tag` convention; `ref` is an older alias for
// `branch`. Within one key the last value wins. The query is read as a
// map, so when more than one of these keys is present, which of them
// determines the result is not defined.
func ParseGitReferenceQuery(q url.Values) GitReference {
	ref := DefaultBranch
	for k, vs := range q {
		if len(vs) == 0 {
			continue
		}
		v := vs[len(vs)-1]
		switch k {
		case "branch", "ref":
			ref = Branch(v)
		case "rev":
			ref = Rev(v)
		case "tag":
			ref = Tag(v)
		}
	}
	return ref
}

// SourceID identifies the origin of a package: a kind plus a URL. Two
// packages with the same name and version but different SourceIDs are
// distinct (spec.md §3).
//
// Ordering and hashing are deliberately NOT mirror images of each other.
// Ordering preserves a historical contract used for sorting lockfile
// entries: Path < Registry < SparseRegistry < LocalRegistry < Directory <
// Git. Hashing is the straightforward structural hash over (kind, url,
// git-reference), with `kind`'s discriminant in declaration order (Path,
// Git, Registry, SparseRegistry, LocalRegistry, Directory) rather than
// ordering order. The hash is used in PackageID.Key, the in-memory
// identity of a package. It is not written into lockfile text (which uses
// String), and the sources in internal/source name their cache
// directories from the URL, not from this hash. Do not attempt to unify
// the two functions.
type SourceID struct {
	Kind SourceKind
	URL  string
	Ref  GitReference // meaningful only when Kind == KindGit
}

func NewSourceID(kind SourceKind, rawURL string) SourceID {
	return SourceID{Kind: kind, URL: rawURL}
}

func NewGitSourceID(rawURL string, ref GitReference) SourceID {
	return SourceID{Kind: KindGit, URL: rawURL, Ref: ref}
}

// orderRank implements the hand-defined, non-derived ordering contract.
func (s SourceID) orderRank() int {
	switch s.Kind {
	case KindPath:
		return 0
	case KindRegistry:
		return 1
	case KindSparseRegistry:
		return 2
	case KindLocalRegistry:
		return 3
	case KindDirectory:
		return 4
	case KindGit:
		return 5
	default:
		return 6
	}
}

// Less implements the ordering contract from spec.md §3.
func (s SourceID) Less(o SourceID) bool {
	if s.orderRank() != o.orderRank() {
		return s.orderRank() < o.orderRank()
	}
	if s.Kind == KindGit && o.Kind == KindGit {
		if c := s.Ref.cmp(o.Ref); c != 0 {
			return c < 0
		}
	}
	return s.URL < o.URL
}

func (s SourceID) Equal(o SourceID) bool {
	if s.Kind != o.Kind || s.URL != o.URL {
		return false
	}
	if s.Kind == KindGit {
		return s.Ref == o.Ref
	}
	return true
}

// hashDiscriminant mirrors the *declaration* order the spec's §3 tagged
// variant lists kinds in: Path, Git, Registry, SparseRegistry,
// LocalRegistry, Directory. This is intentionally different from
// orderRank above.
func (s SourceID) hashDiscriminant() byte {
	switch s.Kind {
	case KindPath:
		return 0
	case KindGit:
		return 1
	case KindRegistry:
		return 2
	case KindSparseRegistry:
		return 3
	case KindLocalRegistry:
		return 4
	case KindDirectory:
		return 5
	default:
		return 255
	}
}

// Hash returns the stable textual hash used in PackageID.Key. It does
// not appear in cache directory names or lockfile source strings.
func (s SourceID) Hash() string {
	h := sha256.New()
	h.Write([]byte{s.hashDiscriminant()})
	h.Write([]byte(s.URL))
	if s.Kind == KindGit {
		h.Write([]byte{byte(s.Ref.kind)})
		h.Write([]byte(s.Ref.val))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// String renders the `<protocol>+<url>` form used in lockfiles
// (`EncodableSourceId.as_url` in the original implementation). For a Git
// source the reference is appended as the same `?branch=|?tag=|?rev=`
// query string ParseGitReferenceQuery reads back, so that round-tripping
// a SourceID through String/ParseSourceIDString loses no information.
func (s SourceID) String() string {
	if s.Kind == KindSparseRegistry {
		// the sparse registry URL already carries its own scheme prefix.
		return s.URL
	}
	proto := s.Kind.String()
	if s.Kind == KindGit && !s.Ref.IsDefaultBranch() {
		return fmt.Sprintf("%s+%s?%s", proto, s.URL, s.Ref.String())
	}
	return fmt.Sprintf("%s+%s", proto, s.URL)
}

// ParseSourceIDString is the inverse of String: it parses the
// `<protocol>+<url>[?ref-query]` form a lockfile stores back into a
// SourceID.
func ParseSourceIDString(s string) (SourceID, error) {
	if strings.HasPrefix(s, "sparse+") {
		return SourceID{Kind: KindSparseRegistry, URL: s}, nil
	}
	proto, rest, ok := strings.Cut(s, "+")
	if !ok {
		return SourceID{}, fmt.Errorf("malformed source id %q", s)
	}
	var kind SourceKind
	switch proto {
	case "path":
		kind = KindPath
	case "registry":
		kind = KindRegistry
	case "local-registry":
		kind = KindLocalRegistry
	case "directory":
		kind = KindDirectory
	case "git":
		kind = KindGit
	default:
		return SourceID{}, fmt.Errorf("unknown source kind %q in %q", proto, s)
	}
	if kind != KindGit {
		return SourceID{Kind: kind, URL: rest}, nil
	}
	base, query, hasQuery := strings.Cut(rest, "?")
	ref := DefaultBranch
	if hasQuery {
		q, err := url.ParseQuery(query)
		if err != nil {
			return SourceID{}, fmt.Errorf("malformed git reference query in %q: %w", s, err)
		}
		ref = ParseGitReferenceQuery(q)
	}
	return SourceID{Kind: KindGit, URL: base, Ref: ref}, nil
}
