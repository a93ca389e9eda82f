// Package registryindex models the registry-side metadata catalog: one
// JSON record per (name, version), sharded on disk, newline-delimited per
// file (spec.md §4.C).
package registryindex

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// CurrentSchemaVersion is the highest index-entry schema version this
// implementation understands. Entries with a higher `v` are ignored.
const CurrentSchemaVersion = 2

// DepRecord is one dependency entry within an index record.
type DepRecord struct {
	Name            string   `json:"name"`
	Req             string   `json:"req"`
	Features        []string `json:"features"`
	Optional        bool     `json:"optional"`
	DefaultFeatures *bool    `json:"default_features,omitempty"`
	Target          string   `json:"target,omitempty"`
	Kind            string   `json:"kind,omitempty"` // "", "dev", "build"
	Registry        string   `json:"registry,omitempty"`
	Package         string   `json:"package,omitempty"` // explicit rename source
	Public          bool     `json:"public,omitempty"`
	Artifact        []string `json:"artifact,omitempty"`
	BinDepTarget    string   `json:"bindep_target,omitempty"`
	Lib             bool     `json:"lib,omitempty"`
}

// DefaultFeaturesEnabled applies the "missing default_features defaults
// to true" rule (spec.md §4.C).
func (d DepRecord) DefaultFeaturesEnabled() bool {
	if d.DefaultFeatures == nil {
		return true
	}
	return *d.DefaultFeatures
}

// Entry is one line of one index file: the metadata for a single
// (name, version) pair.
type Entry struct {
	Name         string              `json:"name"`
	Vers         string              `json:"vers"`
	Deps         []DepRecord         `json:"deps"`
	Features     map[string][]string `json:"features"`
	Features2    map[string][]string `json:"features2,omitempty"`
	Cksum        string              `json:"cksum"`
	Yanked       *bool               `json:"yanked,omitempty"`
	Links        string              `json:"links,omitempty"`
	ToolVersion  string              `json:"rust_version,omitempty"`
	SchemaVer    *int                `json:"v,omitempty"`
}

// IsYanked applies the "missing yanked means not yanked" default.
func (e Entry) IsYanked() bool {
	return e.Yanked != nil && *e.Yanked
}

// SchemaVersion defaults an absent `v` to 1, the original schema.
func (e Entry) SchemaVersion() int {
	if e.SchemaVer == nil {
		return 1
	}
	return *e.SchemaVer
}

// MergedFeatures folds `features2` into `features`. features2 exists
// purely to isolate weak/namespaced feature syntax (`dep:foo`, `foo?/feat`)
// from readers that cannot parse it (spec.md §4.C); once parsed there is
// no reason to keep them apart.
func (e Entry) MergedFeatures() map[string][]string {
	if len(e.Features2) == 0 {
		return e.Features
	}
	out := make(map[string][]string, len(e.Features)+len(e.Features2))
	for k, v := range e.Features {
		out[k] = v
	}
	for k, v := range e.Features2 {
		out[k] = append(append([]string{}, out[k]...), v...)
	}
	return out
}

// ParseLine parses one line of an index file. An entry with an
// unrecognized schema version is ignored (returns ok=false, not an
// error): forward-compatibility is load-bearing, since newer publishers
// may write entries an older reader cannot fully understand.
func ParseLine(line []byte) (e Entry, ok bool, err error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Entry{}, false, nil
	}
	if err := json.Unmarshal(line, &e); err != nil {
		return Entry{}, false, errors.Wrap(err, "parsing index entry")
	}
	if e.SchemaVersion() > CurrentSchemaVersion {
		return Entry{}, false, nil
	}
	return e, true, nil
}

// ParseFile parses every line of a sharded index file, skipping blank
// lines and entries with an unrecognized schema version.
func ParseFile(data []byte) ([]Entry, error) {
	var out []Entry
	for _, line := range bytes.Split(data, []byte("\n")) {
		e, ok, err := ParseLine(line)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// EncodeLine renders one Entry as a single JSON line (without trailing
// newline).
func EncodeLine(e Entry) ([]byte, error) {
	return json.Marshal(e)
}

// ShardPath computes the on-disk shard path for a package name, per the
// rule: 1 char -> "1/", 2 chars -> "2/", 3 chars -> "3/<first-char>/",
// else -> "<first-2>/<chars 3-4>/". Case-normalization is registry
// defined; comparisons elsewhere treat names case-insensitively but this
// function preserves the name's canonical case for the final path
// component.
func ShardPath(name string) string {
	lower := strings.ToLower(name)
	switch {
	case len(lower) == 1:
		return "1/" + name
	case len(lower) == 2:
		return "2/" + name
	case len(lower) == 3:
		return "3/" + lower[:1] + "/" + name
	default:
		return lower[:2] + "/" + lower[2:4] + "/" + name
	}
}

// Sha256Hex returns the lowercase-hex SHA-256 digest of data.
func Sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VerifyChecksum compares the downloaded tarball's digest against the
// index-recorded checksum. A mismatch is fatal (spec.md §4.C, §7): the
// caller must remove the cached tarball and refuse to build against it.
func VerifyChecksum(data []byte, want string) error {
	if want == "" {
		return nil
	}
	got := Sha256Hex(data)
	if !strings.EqualFold(got, want) {
		return errors.Errorf("checksum mismatch: expected %s, got %s", want, got)
	}
	return nil
}
