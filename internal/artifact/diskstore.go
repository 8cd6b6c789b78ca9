package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/saibing/cjlscore/internal/model"
)

// DiskStore is the on-disk shard store described in spec.md §6. Files are
// named by a hash of the package name, not by the source-root digest:
// cachePath/.cache/<h>.bi, <h>.shard and <h>.digest, where <h> is the hex
// of the first 8 bytes of sha256(package) and the .digest file holds the
// source-root digest passed to Save; plus a manifest.json (package ->
// digest) and a top-level valid.txt recording the hash of known shard
// filenames.
type DiskStore struct {
	mu   sync.Mutex
	root string
}

// NewDiskStore returns a store rooted at cachePath/.cache, creating the
// directory if needed.
func NewDiskStore(cachePath string) (*DiskStore, error) {
	root := filepath.Join(cachePath, ".cache")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create cache root: %w", err)
	}
	return &DiskStore{root: root}, nil
}

// Digest hashes a package's source root path, matching the (package name,
// digest of source path) key from spec.md §4.3.
func Digest(sourceRoot string) string {
	sum := sha256.Sum256([]byte(sourceRoot))
	return hex.EncodeToString(sum[:])
}

func (s *DiskStore) biPath(pkg model.PackageID) string {
	return filepath.Join(s.root, sanitize(string(pkg))+".bi")
}

func (s *DiskStore) shardPath(pkg model.PackageID) string {
	return filepath.Join(s.root, sanitize(string(pkg))+".shard")
}

func (s *DiskStore) digestPath(pkg model.PackageID) string {
	return filepath.Join(s.root, sanitize(string(pkg))+".digest")
}

func sanitize(pkg string) string {
	sum := sha256.Sum256([]byte(pkg))
	return hex.EncodeToString(sum[:8])
}

// Save persists the BI and index shard for pkg, tagged with digest.
func (s *DiskStore) Save(pkg model.PackageID, digest string, bi []byte, shard []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(s.biPath(pkg), bi, 0o644); err != nil {
		return fmt.Errorf("write bi for %s: %w", pkg, err)
	}
	if err := os.WriteFile(s.shardPath(pkg), shard, 0o644); err != nil {
		return fmt.Errorf("write shard for %s: %w", pkg, err)
	}
	if err := os.WriteFile(s.digestPath(pkg), []byte(digest), 0o644); err != nil {
		return fmt.Errorf("write digest for %s: %w", pkg, err)
	}

	manifest := s.loadManifestLocked()
	manifest[string(pkg)] = digest
	if err := s.saveManifestLocked(manifest); err != nil {
		return err
	}
	return s.rewriteValidLocked()
}

// Remove deletes pkg's persisted BI, shard, digest and manifest entry.
// Used by the orchestrator's periodic cache GC to drop shards for
// packages no longer present in the workspace.
func (s *DiskStore) Remove(pkg model.PackageID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range []string{s.biPath(pkg), s.shardPath(pkg), s.digestPath(pkg)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	manifest := s.loadManifestLocked()
	delete(manifest, string(pkg))
	if err := s.saveManifestLocked(manifest); err != nil {
		return err
	}
	return s.rewriteValidLocked()
}

// KnownPackages lists every package with a persisted shard, per the
// on-disk manifest maintained alongside Save/Remove.
func (s *DiskStore) KnownPackages() []model.PackageID {
	s.mu.Lock()
	defer s.mu.Unlock()
	manifest := s.loadManifestLocked()
	out := make([]model.PackageID, 0, len(manifest))
	for pkg := range manifest {
		out = append(out, model.PackageID(pkg))
	}
	return out
}

func (s *DiskStore) loadManifestLocked() map[string]string {
	raw, err := os.ReadFile(s.manifestPath())
	if err != nil {
		return map[string]string{}
	}
	var m map[string]string
	if json.Unmarshal(raw, &m) != nil {
		return map[string]string{}
	}
	return m
}

func (s *DiskStore) saveManifestLocked(m map[string]string) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(s.manifestPath(), raw, 0o644)
}

func (s *DiskStore) manifestPath() string {
	return filepath.Join(s.root, "manifest.json")
}

// Load returns the previously saved BI, shard and digest for pkg.
func (s *DiskStore) Load(pkg model.PackageID) (bi []byte, shard []byte, digest string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	biBytes, err := os.ReadFile(s.biPath(pkg))
	if err != nil {
		return nil, nil, "", false
	}
	shardBytes, err := os.ReadFile(s.shardPath(pkg))
	if err != nil {
		return nil, nil, "", false
	}
	digestBytes, err := os.ReadFile(s.digestPath(pkg))
	if err != nil {
		return nil, nil, "", false
	}
	return biBytes, shardBytes, string(digestBytes), true
}

// IsStale reports whether the on-disk entry for pkg is missing or tagged
// with a different digest than the one requested.
func (s *DiskStore) IsStale(pkg model.PackageID, digest string) bool {
	_, _, stored, ok := s.Load(pkg)
	if !ok {
		return true
	}
	return stored != digest
}

// rewriteValidLocked records a hash of every known shard filename so
// subsequent starts can short-circuit full validation (spec.md §6
// valid.txt). Caller must hold s.mu.
func (s *DiskStore) rewriteValidLocked() error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return err
	}
	h := sha256.New()
	for _, e := range entries {
		if e.Name() == "valid.txt" {
			continue
		}
		h.Write([]byte(e.Name()))
	}
	sum := hex.EncodeToString(h.Sum(nil))
	return os.WriteFile(filepath.Join(s.root, "valid.txt"), []byte(sum), 0o644)
}
