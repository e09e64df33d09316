// store.go - Golden Store (C2): the serialization point for a product's
// per-ROI golden sample directories. Generalized from the teacher's
// MasterDataCache double-checked-locking pattern
// (internal/storage/cache.go) - here the thing being serialized is not a
// cache refresh but a directory mutation, so each (product, roi_idx) gets
// its own *sync.Mutex* rather than a TTL-guarded value.
package golden

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/visualaoi/inspector/internal/common"
)

const (
	bestFileName    = "best_golden.jpg"
	alternateSuffix = "_golden_sample.jpg"
	backupPrefix    = "original_"
	backupSuffix    = "_old_best.jpg"
)

// Store mediates all reads and promotions against golden_rois/roi_<idx>/
// directories under a product's config root.
type Store struct {
	productsRoot string

	mu     sync.Mutex // guards dirLocks map creation only
	dirLocks map[string]*sync.Mutex
}

// NewStore constructs a Golden Store rooted at PRODUCTS_ROOT.
func NewStore(productsRoot string) *Store {
	return &Store{
		productsRoot: productsRoot,
		dirLocks:     make(map[string]*sync.Mutex),
	}
}

// dirLock returns the per-(product,roi_idx) mutex, creating it if absent.
func (s *Store) dirLock(product string, roiIdx int) *sync.Mutex {
	key := fmt.Sprintf("%s/%d", product, roiIdx)
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.dirLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.dirLocks[key] = lock
	}
	return lock
}

// RoiDir returns golden_rois/roi_<idx> under a product's config directory.
func (s *Store) RoiDir(product string, roiIdx int) string {
	return filepath.Join(s.productsRoot, product, "golden_rois", fmt.Sprintf("roi_%d", roiIdx))
}

// Candidate is one file in a roi_<idx> golden directory.
type Candidate struct {
	Path    string
	IsBest  bool
	ModTime time.Time
}

// ListCandidates returns best_golden.jpg first (if present), then every
// remaining alternate in modification-time-ascending order (spec.md §4.3
// step 1). Reads take no lock - concurrent listings observe a consistent
// point-in-time directory snapshot without blocking each other.
func (s *Store) ListCandidates(product string, roiIdx int) ([]Candidate, error) {
	dir := s.RoiDir(product, roiIdx)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("golden: list %s: %w", dir, err)
	}

	var best *Candidate
	var rest []Candidate
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if isBackupName(name) {
			continue // backups are never comparison candidates
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		c := Candidate{Path: filepath.Join(dir, name), ModTime: info.ModTime()}
		if name == bestFileName {
			c.IsBest = true
			best = &c
		} else {
			rest = append(rest, c)
		}
	}

	sort.Slice(rest, func(i, j int) bool { return rest[i].ModTime.Before(rest[j].ModTime) })

	out := make([]Candidate, 0, len(rest)+1)
	if best != nil {
		out = append(out, *best)
	}
	out = append(out, rest...)
	return out, nil
}

// ListROIIndices returns every roi_<idx> directory present for product,
// sorted ascending, for the read-through golden-listing endpoint (§6).
func (s *Store) ListROIIndices(product string) ([]int, error) {
	dir := filepath.Join(s.productsRoot, product, "golden_rois")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("golden: list rois for %s: %w", product, err)
	}
	var out []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		var idx int
		if _, err := fmt.Sscanf(e.Name(), "roi_%d", &idx); err == nil {
			out = append(out, idx)
		}
	}
	sort.Ints(out)
	return out, nil
}

func isBackupName(name string) bool {
	return len(name) > len(backupPrefix)+len(backupSuffix) &&
		name[:len(backupPrefix)] == backupPrefix &&
		name[len(name)-len(backupSuffix):] == backupSuffix
}

// Promote performs the two-phase rename of spec.md §4.3/§4.6: it renames the
// incoming winner to a temp name, backs up the current best, then completes
// the swap under the per-(product,roi_idx) mutex. On any step's failure it
// rolls back so best_golden.jpg is never left absent (I2/I3 plus the
// Failure modes paragraph).
func (s *Store) Promote(product string, roiIdx int, winnerPath string, now time.Time) error {
	lock := s.dirLock(product, roiIdx)
	lock.Lock()
	defer lock.Unlock()

	dir := s.RoiDir(product, roiIdx)
	bestPath := filepath.Join(dir, bestFileName)

	if winnerPath == bestPath {
		return nil // already best; nothing to promote
	}

	tempPath := filepath.Join(dir, fmt.Sprintf(".promoting_%d", now.UnixNano()))
	if err := os.Rename(winnerPath, tempPath); err != nil {
		return fmt.Errorf("%w: stage winner: %v", common.ErrPromotionFailed, err)
	}

	backupPath := ""
	if _, err := os.Stat(bestPath); err == nil {
		backupPath = filepath.Join(dir, fmt.Sprintf("%s%d%s", backupPrefix, now.Unix(), backupSuffix))
		if err := os.Rename(bestPath, backupPath); err != nil {
			// roll back: put the winner back where it came from.
			os.Rename(tempPath, winnerPath)
			return fmt.Errorf("%w: back up current best: %v", common.ErrPromotionFailed, err)
		}
	}

	if err := os.Rename(tempPath, bestPath); err != nil {
		// roll back both renames: the backup becomes best_golden.jpg again
		// and the winner returns to its original name.
		if backupPath != "" {
			os.Rename(backupPath, bestPath)
		}
		os.Rename(tempPath, winnerPath)
		return fmt.Errorf("%w: finalize promotion: %v", common.ErrPromotionFailed, err)
	}
	return nil
}

// EnsureDir creates the roi_<idx> golden directory if it does not exist yet
// (first inspection against a fresh product/ROI pair).
func (s *Store) EnsureDir(product string, roiIdx int) error {
	return os.MkdirAll(s.RoiDir(product, roiIdx), 0o755)
}
