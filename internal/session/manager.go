// manager.go - Session Manager (C10): create, look up, and tear down the
// per-session directory tree under SHARED_ROOT. Modeled on the teacher's
// masterDataCacheMap/cacheMutex pattern (internal/storage/cache.go),
// generalized from a TTL content cache to a session registry with an
// explicit "in use" marker so the reaper never evicts a live session.
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/visualaoi/inspector/internal/common"
)

// Status is the session lifecycle state.
type Status int

const (
	Active Status = iota
	Closed
)

// Session is one client session's metadata and directory handles.
type Session struct {
	ID         string
	ProductID  string
	ClientInfo string
	CreatedAt  time.Time
	Status     Status

	Dir       string // SHARED_ROOT/sessions/<uuid>
	InputDir  string // .../input
	OutputDir string // .../output

	mu         sync.Mutex
	lastAccess time.Time
	inUse      int
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastAccess = time.Now()
	s.mu.Unlock()
}

// Acquire marks the session as in-use so the reaper will not evict it mid-inspection.
func (s *Session) Acquire() {
	s.mu.Lock()
	s.inUse++
	s.lastAccess = time.Now()
	s.mu.Unlock()
}

// Release undoes Acquire.
func (s *Session) Release() {
	s.mu.Lock()
	if s.inUse > 0 {
		s.inUse--
	}
	s.lastAccess = time.Now()
	s.mu.Unlock()
}

func (s *Session) busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inUse > 0
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}

// Manager owns the in-memory session registry.
type Manager struct {
	sharedRoot string

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager rooted at sharedRoot.
func NewManager(sharedRoot string) *Manager {
	return &Manager{
		sharedRoot: sharedRoot,
		sessions:   make(map[string]*Session),
	}
}

// Create allocates a new session, creating its input/output directories.
// Invariant: both directories exist for the full lifetime of an Active session.
func (m *Manager) Create(productID, clientInfo string) (*Session, error) {
	id := uuid.New().String()
	dir := filepath.Join(m.sharedRoot, "sessions", id)
	inputDir := filepath.Join(dir, "input")
	outputDir := filepath.Join(dir, "output")

	if err := os.MkdirAll(inputDir, 0755); err != nil {
		return nil, fmt.Errorf("create session input dir: %w", err)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("create session output dir: %w", err)
	}

	now := time.Now()
	sess := &Session{
		ID:         id,
		ProductID:  productID,
		ClientInfo: clientInfo,
		CreatedAt:  now,
		Status:     Active,
		Dir:        dir,
		InputDir:   inputDir,
		OutputDir:  outputDir,
		lastAccess: now,
	}

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()

	return sess, nil
}

// Get looks up a session by id, returning common.ErrSessionUnknown if absent
// or already closed.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok || sess.Status == Closed {
		return nil, fmt.Errorf("%w: %s", common.ErrSessionUnknown, id)
	}
	sess.touch()
	return sess, nil
}

// Destroy tears down a session's directory tree. Removal is best-effort and
// atomic from the registry's point of view: the session is removed from the
// map before or regardless of filesystem cleanup outcome.
func (m *Manager) Destroy(id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", common.ErrSessionUnknown, id)
	}
	sess.mu.Lock()
	sess.Status = Closed
	sess.mu.Unlock()

	return os.RemoveAll(sess.Dir)
}

// ListIdleOlderThan returns sessions whose directory age exceeds ttl and that
// are not currently marked in-use, for the reaper to evict.
func (m *Manager) ListIdleOlderThan(ttl time.Duration) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Session
	cutoff := time.Now().Add(-ttl)
	for _, sess := range m.sessions {
		if sess.busy() {
			continue
		}
		if sess.CreatedAt.Before(cutoff) {
			out = append(out, sess)
		}
	}
	return out
}
