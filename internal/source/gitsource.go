package source

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/vcs"
	"github.com/pkg/errors"

	"github.com/forgelang/forge/internal/ident"
	"github.com/forgelang/forge/internal/pkgmeta"
)

// GitSource clones a Git repository into a cache directory and checks out
// revisions on demand, discovering package summaries by handing the
// checked-out tree to a ManifestReader (spec.md §4.B). It always requires
// a precise version, since "HEAD of a branch" is not stable identity.
type GitSource struct {
	yankWhitelist

	URL      string
	Ref      ident.GitReference
	CacheDir string
	Reader   ManifestReader

	mu   sync.Mutex
	repo *vcs.GitRepo
}

func NewGitSource(url string, ref ident.GitReference, cacheDir string, reader ManifestReader) *GitSource {
	return &GitSource{URL: url, Ref: ref, CacheDir: cacheDir, Reader: reader}
}

func (s *GitSource) localPath() string {
	return filepath.Join(s.CacheDir, sanitizeURL(s.URL))
}

func sanitizeURL(u string) string {
	r := strings.NewReplacer("://", "-", "/", "-", ":", "-", "@", "-")
	return r.Replace(u)
}

func (s *GitSource) ensureRepo() (*vcs.GitRepo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.repo != nil {
		return s.repo, nil
	}
	path := s.localPath()
	r, err := vcs.NewGitRepo(s.URL, path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening git repository %s", s.URL)
	}
	if !r.CheckLocal() {
		if err := r.Get(); err != nil {
			return nil, errors.Wrapf(err, "cloning %s", s.URL)
		}
	} else if err := r.Update(); err != nil {
		return nil, errors.Wrapf(err, "updating %s", s.URL)
	}
	s.repo = r
	return r, nil
}

// resolveRevision turns the configured GitReference into a concrete
// commit, checking the repo out to it in the process.
func (s *GitSource) resolveRevision(r *vcs.GitRepo) (string, error) {
	switch {
	case s.Ref.IsDefaultBranch():
		if err := r.UpdateVersion("HEAD"); err != nil {
			return "", errors.Wrap(err, "checking out default branch")
		}
	default:
		if err := r.UpdateVersion(refValue(s.Ref)); err != nil {
			return "", errors.Wrapf(err, "checking out %s", s.Ref)
		}
	}
	rev, err := r.Version()
	if err != nil {
		return "", errors.Wrap(err, "reading checked-out revision")
	}
	return rev, nil
}

func refValue(ref ident.GitReference) string {
	s := ref.String()
	if i := strings.IndexByte(s, '='); i >= 0 {
		return s[i+1:]
	}
	return s
}

func (s *GitSource) Query(dep pkgmeta.Dependency, kind QueryKind, sink func(QueriedSummary)) (bool, error) {
	r, err := s.ensureRepo()
	if err != nil {
		return false, err
	}
	rev, err := s.resolveRevision(r)
	if err != nil {
		return false, err
	}
	sum, err := s.Reader.ReadSummary(s.localPath())
	if err != nil {
		return false, errors.Wrapf(err, "reading manifest at %s@%s", s.URL, rev)
	}
	if !matchesName(sum.ID.Name, dep.Name, kind) {
		return false, nil
	}
	sink(QueriedSummary{Summary: sum})
	return false, nil
}

func (s *GitSource) BlockUntilReady() error { return nil }

func (s *GitSource) Download(pkgmeta.PackageID) (DownloadResult, error) {
	return DownloadResult{Ready: true, Path: s.localPath()}, nil
}

func (s *GitSource) FinishDownload(pkgmeta.PackageID, []byte) error {
	return errors.New("git sources are always ready; FinishDownload should not be called")
}

func (s *GitSource) Fingerprint(pkgmeta.PackageID) (string, error) {
	r, err := s.ensureRepo()
	if err != nil {
		return "", err
	}
	rev, err := r.Version()
	if err != nil {
		return "", err
	}
	return "git:" + s.URL + "@" + rev, nil
}

func (s *GitSource) Verify(pkgmeta.PackageID) error { return nil }

func (s *GitSource) Describe() string { return fmt.Sprintf("git+%s?%s", s.URL, s.Ref) }

func (s *GitSource) IsReplaced() bool { return false }

func (s *GitSource) IsYanked(pkgmeta.PackageID) (bool, error) { return false, nil }

func (s *GitSource) RequiresPrecise() bool { return true }

// ListTags and ListBranches return the repository's tags and branches
// as a sorted, stable list. The resolver does not call them.
func (s *GitSource) ListTags() ([]string, error) {
	r, err := s.ensureRepo()
	if err != nil {
		return nil, err
	}
	tags, err := r.Tags()
	if err != nil {
		return nil, errors.Wrapf(err, "listing tags for %s", s.URL)
	}
	sort.Strings(tags)
	return tags, nil
}

func (s *GitSource) ListBranches() ([]string, error) {
	r, err := s.ensureRepo()
	if err != nil {
		return nil, err
	}
	branches, err := r.Branches()
	if err != nil {
		return nil, errors.Wrapf(err, "listing branches for %s", s.URL)
	}
	sort.Strings(branches)
	return branches, nil
}
