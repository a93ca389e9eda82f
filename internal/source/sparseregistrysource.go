package source

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/forgelang/forge/internal/ident"
	"github.com/forgelang/forge/internal/pkgmeta"
	"github.com/forgelang/forge/internal/registryindex"
)

// Fetcher is the network capability a SparseRegistrySource needs: fetch
// one index shard, honoring a previously-seen ETag. Transport itself
// (TLS, redirects, retries) is out of scope for this core (spec.md §1);
// callers supply a Fetcher backed by whatever HTTP client they like.
type Fetcher interface {
	// FetchShard returns the shard body, a fresh ETag, and notFound=true
	// if the registry has no such package. If etag matches what the
	// registry already has, it may return notModified=true with a nil
	// body, in which case the caller's cached copy is still valid.
	FetchShard(url, etag string) (body []byte, newETag string, notModified, notFound bool, err error)
}

type shardCacheEntry struct {
	etag string
	data []byte
}

// SparseRegistrySource is an HTTP-per-file registry: each package's shard
// is fetched individually (no full-index clone) and cached locally keyed
// by ETag (spec.md §4.B). A Query that requires a fetch not yet performed
// returns pending=true; the caller must BlockUntilReady (here, simply
// perform the fetch out of band and call Prefetch) before retrying.
type SparseRegistrySource struct {
	yankWhitelist

	BaseURL  string
	CacheDir string
	Client   Fetcher

	mu    sync.Mutex
	cache map[string]shardCacheEntry
}

func NewSparseRegistrySource(baseURL, cacheDir string, client Fetcher) *SparseRegistrySource {
	return &SparseRegistrySource{BaseURL: baseURL, CacheDir: cacheDir, Client: client, cache: make(map[string]shardCacheEntry)}
}

func (s *SparseRegistrySource) sourceID() ident.SourceID {
	return ident.NewSourceID(ident.KindSparseRegistry, "sparse+"+s.BaseURL)
}

func (s *SparseRegistrySource) diskPath(name string) string {
	return filepath.Join(s.CacheDir, "sparse", sanitizeURL(s.BaseURL), registryindex.ShardPath(name))
}

func (s *SparseRegistrySource) shardURL(name string) string {
	return s.BaseURL + "/" + registryindex.ShardPath(name)
}

// Prefetch performs the HTTP fetch for name's shard and updates the
// local cache. It is the half of Query a caller runs when Query reports
// pending=true.
func (s *SparseRegistrySource) Prefetch(name ident.PackageName) error {
	s.mu.Lock()
	prior := s.cache[string(name)]
	s.mu.Unlock()

	body, etag, notModified, notFound, err := s.Client.FetchShard(s.shardURL(string(name)), prior.etag)
	if err != nil {
		return errors.Wrapf(err, "fetching sparse registry shard for %s", name)
	}
	if notFound {
		s.mu.Lock()
		s.cache[string(name)] = shardCacheEntry{}
		s.mu.Unlock()
		return nil
	}
	if notModified {
		return nil
	}
	path := s.diskPath(string(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "preparing sparse registry cache directory")
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return errors.Wrap(err, "writing sparse registry cache entry")
	}
	s.mu.Lock()
	s.cache[string(name)] = shardCacheEntry{etag: etag, data: body}
	s.mu.Unlock()
	return nil
}

func (s *SparseRegistrySource) shardFor(name ident.PackageName) ([]byte, bool) {
	s.mu.Lock()
	entry, have := s.cache[string(name)]
	s.mu.Unlock()
	if have {
		return entry.data, true
	}
	data, err := os.ReadFile(s.diskPath(string(name)))
	if err != nil {
		return nil, false
	}
	return data, true
}

func (s *SparseRegistrySource) Query(dep pkgmeta.Dependency, kind QueryKind, sink func(QueriedSummary)) (bool, error) {
	data, have := s.shardFor(dep.Name)
	if !have {
		return true, nil
	}
	if data == nil {
		return false, nil
	}
	entries, err := registryindex.ParseFile(data)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if !matchesName(ident.PackageName(e.Name), dep.Name, kind) {
			continue
		}
		sum, err := registryindex.ToSummary(e, s.sourceID())
		if err != nil {
			return false, err
		}
		if e.IsYanked() && !s.allowed(sum.ID) {
			continue
		}
		sink(QueriedSummary{Summary: sum, Yanked: e.IsYanked()})
	}
	return false, nil
}

// BlockUntilReady does not fetch anything and returns nil. Since Query
// does not track which names it asked for,
// callers that rely on pending results must retry Query themselves after
// calling Prefetch for the relevant name; BlockUntilReady here is a no-op
// hook kept to satisfy the Source interface for sources with no
// background work left once their shards are cached.
func (s *SparseRegistrySource) BlockUntilReady() error { return nil }

func (s *SparseRegistrySource) entryFor(pkg pkgmeta.PackageID) (registryindex.Entry, error) {
	data, have := s.shardFor(pkg.Name)
	if !have || data == nil {
		return registryindex.Entry{}, errors.Errorf("no cached index shard for %s; call Prefetch first", pkg.Name)
	}
	entries, err := registryindex.ParseFile(data)
	if err != nil {
		return registryindex.Entry{}, err
	}
	for _, e := range entries {
		if e.Name == string(pkg.Name) && e.Vers == pkg.Version.String() {
			return e, nil
		}
	}
	return registryindex.Entry{}, errors.Errorf("no index entry for %s", pkg)
}

func (s *SparseRegistrySource) crateCacheDir() string {
	return filepath.Join(s.CacheDir, "src", sanitizeURL(s.BaseURL))
}

func (s *SparseRegistrySource) Download(pkg pkgmeta.PackageID) (DownloadResult, error) {
	dir := filepath.Join(s.crateCacheDir(), string(pkg.Name)+"-"+pkg.Version.String())
	if _, err := os.Stat(dir); err == nil {
		return DownloadResult{Ready: true, Path: dir}, nil
	}
	e, err := s.entryFor(pkg)
	if err != nil {
		return DownloadResult{}, err
	}
	return DownloadResult{NeedsURL: s.BaseURL + "/api/v1/crates/" + string(pkg.Name) + "/" + pkg.Version.String() + "/download", Checksum: e.Cksum}, nil
}

func (s *SparseRegistrySource) FinishDownload(pkg pkgmeta.PackageID, data []byte) error {
	e, err := s.entryFor(pkg)
	if err != nil {
		return err
	}
	if err := registryindex.VerifyChecksum(data, e.Cksum); err != nil {
		return err
	}
	dir := filepath.Join(s.crateCacheDir(), string(pkg.Name)+"-"+pkg.Version.String())
	return os.MkdirAll(dir, 0o755)
}

func (s *SparseRegistrySource) Fingerprint(pkg pkgmeta.PackageID) (string, error) {
	e, err := s.entryFor(pkg)
	if err != nil {
		return "", err
	}
	return "sparse:" + e.Cksum, nil
}

func (s *SparseRegistrySource) Verify(pkg pkgmeta.PackageID) error { return nil }

func (s *SparseRegistrySource) Describe() string { return "sparse+" + s.BaseURL }

func (s *SparseRegistrySource) IsReplaced() bool { return false }

func (s *SparseRegistrySource) IsYanked(pkg pkgmeta.PackageID) (bool, error) {
	if s.allowed(pkg) {
		return false, nil
	}
	e, err := s.entryFor(pkg)
	if err != nil {
		return false, err
	}
	return e.IsYanked(), nil
}

func (s *SparseRegistrySource) RequiresPrecise() bool { return false }
