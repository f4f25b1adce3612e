package session

import (
	"hash/fnv"
	"sync"
)

// Registry maps connection ids to their current session. Operations on the
// same id are serialized by a per-id lock; ids only share the short shard
// mutex guarding the maps themselves.
type Registry struct {
	shards []*shard
	mask   uint32
}

type shard struct {
	mu       sync.Mutex
	sessions map[string]*Session
	locks    map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func NewRegistry(shardCount int) *Registry {
	if shardCount <= 0 {
		shardCount = 16
	}
	n := nextPowerOfTwo(uint32(shardCount))
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{
			sessions: make(map[string]*Session),
			locks:    make(map[string]*keyLock),
		}
	}
	return &Registry{shards: shards, mask: n - 1}
}

func (r *Registry) shard(id string) *shard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return r.shards[h.Sum32()&r.mask]
}

// lock acquires the lock for id and returns its release function.
func (r *Registry) lock(id string) func() {
	sh := r.shard(id)

	sh.mu.Lock()
	kl, ok := sh.locks[id]
	if !ok {
		kl = &keyLock{}
		sh.locks[id] = kl
	}
	kl.refs++
	sh.mu.Unlock()

	kl.mu.Lock()

	return func() {
		kl.mu.Unlock()

		sh.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(sh.locks, id)
		}
		sh.mu.Unlock()
	}
}

// StartOrGet returns the live session for id, or calls start and registers
// its result when there is none. start runs under the id's lock, so two
// concurrent calls for one id never both create a session.
func (r *Registry) StartOrGet(
	id string,
	start func() (*Session, error),
) (s *Session, created bool, err error) {
	unlock := r.lock(id)
	defer unlock()

	if existing, ok := r.Get(id); ok && existing.State() != Terminated {
		return existing, false, nil
	}

	s, err = start()
	if err != nil {
		return nil, false, err
	}

	// A session whose stream already ended has cleaned up after itself.
	sh := r.shard(id)
	sh.mu.Lock()
	if s.State() != Terminated {
		sh.sessions[id] = s
	}
	sh.mu.Unlock()

	return s, true, nil
}

func (r *Registry) Get(id string) (*Session, bool) {
	sh := r.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	s, ok := sh.sessions[id]
	return s, ok
}

// Remove drops whatever session is registered for id. It waits for a
// concurrent StartOrGet on the same id to finish first.
func (r *Registry) Remove(id string) {
	unlock := r.lock(id)
	defer unlock()

	sh := r.shard(id)
	sh.mu.Lock()
	delete(sh.sessions, id)
	sh.mu.Unlock()
}

// removeIf drops the entry for id only while it still points at s, so a
// finishing session never unregisters its successor.
func (r *Registry) removeIf(id string, s *Session) bool {
	sh := r.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if sh.sessions[id] != s {
		return false
	}
	delete(sh.sessions, id)
	return true
}

func (r *Registry) Range(fn func(*Session)) {
	for _, sh := range r.shards {
		sh.mu.Lock()
		sessions := make([]*Session, 0, len(sh.sessions))
		for _, s := range sh.sessions {
			sessions = append(sessions, s)
		}
		sh.mu.Unlock()

		for _, s := range sessions {
			fn(s)
		}
	}
}

func (r *Registry) Len() int {
	n := 0
	for _, sh := range r.shards {
		sh.mu.Lock()
		n += len(sh.sessions)
		sh.mu.Unlock()
	}
	return n
}

func nextPowerOfTwo(v uint32) uint32 {
	if v == 0 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	return v + 1
}
