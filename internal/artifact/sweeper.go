package artifact

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Sweeper deletes stale artifact files. Housekeeping only: correctness never
// depends on it, files merely accumulate between sweeps.
type Sweeper struct {
	store  *Store
	maxAge time.Duration
	// referenced snapshots the paths currently pointed at by live
	// conversations; those survive a sweep regardless of age.
	referenced func() map[string]struct{}

	mu        sync.Mutex
	lastSweep time.Time
	now       func() time.Time
}

// Sweeps run in a low-traffic window, or whenever a full day has passed
// without one.
const (
	nightWindowStartHour = 2
	nightWindowEndHour   = 4
	maxSweepGap          = 24 * time.Hour
)

func NewSweeper(store *Store, maxAge time.Duration, referenced func() map[string]struct{}) *Sweeper {
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &Sweeper{
		store:      store,
		maxAge:     maxAge,
		referenced: referenced,
		now:        time.Now,
	}
}

// Start wakes on the given interval until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunIfDue()
			}
		}
	}()
}

// RunIfDue sweeps when local time is inside the night window or when the
// last sweep is older than a day.
func (s *Sweeper) RunIfDue() {
	now := s.now()

	s.mu.Lock()
	hour := now.Hour()
	night := hour >= nightWindowStartHour && hour <= nightWindowEndHour
	overdue := now.Sub(s.lastSweep) > maxSweepGap
	if !night && !overdue {
		s.mu.Unlock()
		return
	}
	s.lastSweep = now
	s.mu.Unlock()

	deleted, err := s.Sweep()
	if err != nil {
		log.Printf("artifact: sweep failed: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("artifact: sweep removed %d stale files", deleted)
	}
}

// Sweep deletes unreferenced artifact files older than maxAge. The
// referenced-path snapshot is taken up front so no store lock is held while
// touching the disk.
func (s *Sweeper) Sweep() (int, error) {
	refs := map[string]struct{}{}
	if s.referenced != nil {
		refs = s.referenced()
	}
	cutoff := s.now().Add(-s.maxAge)

	entries, err := os.ReadDir(s.store.Dir())
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, entry := range entries {
		if entry.IsDir() || !ownsFile(entry.Name()) {
			continue
		}
		path := filepath.Join(s.store.Dir(), entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if _, live := refs[path]; live {
			continue
		}
		if err := os.Remove(path); err != nil {
			log.Printf("artifact: remove %s: %v", path, err)
			continue
		}
		deleted++
	}
	return deleted, nil
}

// ownsFile restricts the sweep to files this service created.
func ownsFile(name string) bool {
	for _, op := range []Op{OpGenerate, OpEdit, OpTemp} {
		if strings.HasPrefix(name, string(op)+"_") {
			return true
		}
	}
	return false
}
