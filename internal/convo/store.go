package convo

import (
	"context"
	"sync"
	"time"
)

// maxHistoryTurns caps a history at the 5 most recent user/model exchanges.
const maxHistoryTurns = 10

// Store tracks per-key conversation histories, activity timestamps and the
// most recently produced artifact paths. The three are kept in one place so
// Clear and expiry remove them as a unit.
type Store struct {
	mu          sync.RWMutex
	histories   map[string][]Turn
	lastTouched map[string]time.Time
	artifacts   map[string][]string
	ttl         time.Duration
	now         func() time.Time
	onExpire    func(key string)
}

func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 600 * time.Second
	}
	return &Store{
		histories:   make(map[string][]Turn),
		lastTouched: make(map[string]time.Time),
		artifacts:   make(map[string][]string),
		ttl:         ttl,
		now:         time.Now,
	}
}

// SetExpireHook registers a callback invoked (outside the lock) for every
// key removed by the expiry pass.
func (s *Store) SetExpireHook(hook func(key string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExpire = hook
}

// Append pushes turns onto a key's history, truncates to the most recent
// window and stamps the activity time.
func (s *Store) Append(key string, turns ...Turn) {
	if len(turns) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	history := append(s.histories[key], turns...)
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	s.histories[key] = history
	s.lastTouched[key] = s.now()
}

// History returns a copy of the key's history. Reading never creates an
// entry.
func (s *Store) History(key string) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.histories[key]
	if len(history) == 0 {
		return nil
	}
	out := make([]Turn, len(history))
	copy(out, history)
	return out
}

// Active reports whether the key has a conversation.
func (s *Store) Active(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.histories[key]
	return ok
}

// Touch stamps the key's activity time, resetting its expiry deadline.
func (s *Store) Touch(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTouched[key] = s.now()
}

// Clear removes history, activity record and artifact entry in one step.
// It reports whether the key had a conversation.
func (s *Store) Clear(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, had := s.histories[key]
	delete(s.histories, key)
	delete(s.lastTouched, key)
	delete(s.artifacts, key)
	return had
}

// SetLastArtifact records the artifact paths produced by the latest
// generate/edit, overwriting any previous value.
func (s *Store) SetLastArtifact(key string, paths ...string) {
	if len(paths) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[key] = append([]string(nil), paths...)
}

// LastArtifact returns the candidate paths for the key, newest generation
// first. Callers wanting "the" image should use ResolveLastArtifact.
func (s *Store) LastArtifact(key string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := s.artifacts[key]
	if len(paths) == 0 {
		return nil
	}
	return append([]string(nil), paths...)
}

// ResolveLastArtifact returns the first candidate path whose backing bytes
// still exist. A missing entry or all-dead candidates report absence, not an
// error.
func (s *Store) ResolveLastArtifact(key string, exists func(string) bool) (string, bool) {
	for _, path := range s.LastArtifact(key) {
		if exists(path) {
			return path, true
		}
	}
	return "", false
}

// ReferencedArtifacts snapshots every path referenced by any key. The
// retention sweeper uses this to keep live files out of its delete set.
func (s *Store) ReferencedArtifacts() map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{})
	for _, paths := range s.artifacts {
		for _, path := range paths {
			out[path] = struct{}{}
		}
	}
	return out
}

// ExpireInactive removes every key whose last activity exceeds the TTL and
// returns the removed keys.
func (s *Store) ExpireInactive() []string {
	now := s.now()
	var expired []string

	s.mu.Lock()
	for key, touched := range s.lastTouched {
		if now.Sub(touched) >= s.ttl {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		delete(s.histories, key)
		delete(s.lastTouched, key)
		delete(s.artifacts, key)
	}
	hook := s.onExpire
	s.mu.Unlock()

	if hook != nil {
		for _, key := range expired {
			hook(key)
		}
	}
	return expired
}

// StartJanitor runs the expiry pass periodically until ctx is cancelled.
func (s *Store) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.ExpireInactive()
			}
		}
	}()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.histories)
}
