// Package repository holds the in-memory session registry. Sessions live
// only for the duration of an interview; there is no persistence layer.
package repository

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spool-learn/interview/pkg/model"
)

const shardCount = 16

// Handle couples a session with its runtime controls: the context that is
// cancelled when the session ends, the mutex that serializes turns, and the
// state lock guarding session fields against concurrent readers.
type Handle struct {
	Session *model.Session

	ctx     context.Context
	cancel  context.CancelFunc
	turnMu  sync.Mutex
	stateMu sync.RWMutex
}

// Context returns the session-scoped context. Capability calls made on
// behalf of this session must use it so that ending the session aborts
// in-flight work.
func (h *Handle) Context() context.Context {
	return h.ctx
}

// Cancel aborts any in-flight work for the session.
func (h *Handle) Cancel() {
	h.cancel()
}

// LockTurn blocks until the session's current turn (if any) finishes.
// Turns for one session never run concurrently.
func (h *Handle) LockTurn() {
	h.turnMu.Lock()
}

// UnlockTurn releases the turn lock.
func (h *Handle) UnlockTurn() {
	h.turnMu.Unlock()
}

// LockState guards a mutation of the session's fields. The turn lock alone
// does not cover readers on other goroutines, so every field mutation and
// every cross-goroutine read goes through the state lock.
func (h *Handle) LockState() {
	h.stateMu.Lock()
}

// UnlockState releases the state write lock.
func (h *Handle) UnlockState() {
	h.stateMu.Unlock()
}

// RLockState guards a read of the session's fields concurrent with an
// in-flight turn.
func (h *Handle) RLockState() {
	h.stateMu.RLock()
}

// RUnlockState releases the state read lock.
func (h *Handle) RUnlockState() {
	h.stateMu.RUnlock()
}

// Registry maps session IDs to live sessions. Access is sharded so
// independent sessions never contend on a lock.
type Registry struct {
	shards [shardCount]registryShard
}

type registryShard struct {
	mu      sync.RWMutex
	handles map[model.SessionID]*Handle
}

// New creates an empty registry. One registry is created at service start
// and injected into the engine; it is not a process-wide global.
func New() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].handles = map[model.SessionID]*Handle{}
	}
	return r
}

func (r *Registry) shard(id model.SessionID) *registryShard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &r.shards[h.Sum32()%shardCount]
}

// Put registers a session and returns its handle. The handle's context is
// derived from base and cancelled when the session is evicted or the
// registry shuts down.
func (r *Registry) Put(base context.Context, session *model.Session) *Handle {
	ctx, cancel := context.WithCancel(base)
	handle := &Handle{
		Session: session,
		ctx:     ctx,
		cancel:  cancel,
	}

	shard := r.shard(session.ID)
	shard.mu.Lock()
	shard.handles[session.ID] = handle
	shard.mu.Unlock()

	return handle
}

// Get returns the handle for a session, or model.ErrSessionNotFound.
func (r *Registry) Get(id model.SessionID) (*Handle, error) {
	shard := r.shard(id)
	shard.mu.RLock()
	handle, ok := shard.handles[id]
	shard.mu.RUnlock()

	if !ok {
		return nil, goerr.Wrap(model.ErrSessionNotFound, "unknown session", goerr.V("session_id", id))
	}
	return handle, nil
}

// Evict removes a session and cancels its context. The handle is returned
// so the caller can finish hand-off work against the detached session.
func (r *Registry) Evict(id model.SessionID) (*Handle, error) {
	shard := r.shard(id)
	shard.mu.Lock()
	handle, ok := shard.handles[id]
	if ok {
		delete(shard.handles, id)
	}
	shard.mu.Unlock()

	if !ok {
		return nil, goerr.Wrap(model.ErrSessionNotFound, "unknown session", goerr.V("session_id", id))
	}

	handle.cancel()
	return handle, nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	n := 0
	for i := range r.shards {
		r.shards[i].mu.RLock()
		n += len(r.shards[i].handles)
		r.shards[i].mu.RUnlock()
	}
	return n
}

// Close cancels every live session. Called at service shutdown.
func (r *Registry) Close() {
	for i := range r.shards {
		shard := &r.shards[i]
		shard.mu.Lock()
		for id, handle := range shard.handles {
			handle.cancel()
			delete(shard.handles, id)
		}
		shard.mu.Unlock()
	}
}
