package sched

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"

	"github.com/forgelang/forge/internal/unitgraph"
)

// FingerprintInputs carries every input spec.md §4.G orders for
// fingerprint hashing. Fields are hashed in the order listed there.
type FingerprintInputs struct {
	CompilerVersion string
	HostTriple      string
	TargetTriple    string
	Profile         unitgraph.ProfileSettings
	Rustflags       []string
	Features        []string // already sorted by the caller (unitgraph.Unit.Features)
	// DepFingerprints are the already-computed fingerprints of this
	// unit's dependency Units, in the order the caller chooses (the
	// caller is expected to sort by dependency Unit key for stability).
	DepFingerprints []string
	SourceRoot      string   // directory hashed via HashSourceTree
	EnvVars         []string // "KEY=VALUE" pairs the unit's build script declared it reads
}

// Compute hashes in the exact order spec.md §4.G lists, and returns the
// hex digest used both to decide staleness and to persist.
func Compute(in FingerprintInputs) (string, error) {
	h := sha256.New()
	fmt.Fprintln(h, in.CompilerVersion)
	fmt.Fprintln(h, in.HostTriple)
	fmt.Fprintln(h, in.TargetTriple)
	fmt.Fprintf(h, "%+v\n", in.Profile)
	for _, f := range in.Rustflags {
		fmt.Fprintln(h, f)
	}
	for _, f := range in.Features {
		fmt.Fprintln(h, f)
	}
	for _, f := range in.DepFingerprints {
		fmt.Fprintln(h, f)
	}
	if in.SourceRoot != "" {
		srcHash, err := HashSourceTree(in.SourceRoot)
		if err != nil {
			return "", errors.Wrapf(err, "hashing source tree %s", in.SourceRoot)
		}
		fmt.Fprintln(h, srcHash)
	}
	envs := append([]string(nil), in.EnvVars...)
	sort.Strings(envs)
	for _, e := range envs {
		fmt.Fprintln(h, e)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashSourceTree walks root and returns a deterministic content hash,
// the same shape as the teacher's internal/fs.HashFromNode (pathname of
// every node plus file contents), adapted to use godirwalk for faster
// traversal instead of filepath.Walk.
func HashSourceTree(root string) (string, error) {
	h := sha256.New()
	prefixLen := len(root) + 1

	err := godirwalk.Walk(root, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			rel := path
			if len(path) >= prefixLen {
				rel = path[prefixLen:]
			}
			h.Write([]byte(rel))

			if de.IsDir() {
				return nil
			}
			if de.IsSymlink() {
				target, err := os.Readlink(path)
				if err != nil {
					return errors.Wrap(err, "readlink")
				}
				h.Write([]byte(target))
				return nil
			}
			f, err := os.Open(path)
			if err != nil {
				return errors.Wrap(err, "open")
			}
			defer f.Close()
			if _, err := io.Copy(h, f); err != nil {
				return errors.Wrap(err, "read")
			}
			return nil
		},
		Unsorted: false,
	})
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Fresh reports whether persisted is non-empty and equal to computed,
// the digest half of the spec.md §4.G staleness rule. It does not check
// that output files exist or are newer than their inputs: mtime
// comparisons are the caller's responsibility (they require filesystem
// stat calls over the declared outputs this package has no knowledge
// of); Fresh only compares the two digests.
func Fresh(persisted, computed string) bool {
	return persisted != "" && persisted == computed
}
