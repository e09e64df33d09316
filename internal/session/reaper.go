// reaper.go - Session Reaper (C13): a background ticker that age-evicts
// session directories per SESSION_TTL. Removal is best-effort and logged;
// it never touches a session currently marked in-use (see Manager.Acquire).
package session

import (
	"context"
	"log"
	"time"
)

// Reaper periodically sweeps a Manager for expired, idle sessions.
type Reaper struct {
	mgr      *Manager
	ttl      time.Duration
	interval time.Duration
}

// NewReaper creates a reaper that evicts sessions older than ttl, checking
// every interval.
func NewReaper(mgr *Manager, ttl, interval time.Duration) *Reaper {
	return &Reaper{mgr: mgr, ttl: ttl, interval: interval}
}

// Run blocks, sweeping on each tick until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.sweepOnce()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepOnce()
		}
	}
}

func (r *Reaper) sweepOnce() {
	expired := r.mgr.ListIdleOlderThan(r.ttl)
	for _, sess := range expired {
		if err := r.mgr.Destroy(sess.ID); err != nil {
			log.Printf("session reaper: failed to remove session %s: %v", sess.ID, err)
			continue
		}
		log.Printf("session reaper: removed expired session %s (age > %s)", sess.ID, r.ttl)
	}
}
