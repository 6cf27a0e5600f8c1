package chat

import "sort"

// Registry maps connection handles to live sessions.
//
// Single-writer ownership: a Registry is only accessed from the reactor
// goroutine, so it carries no locks.
type Registry struct {
	sessions map[int]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[int]*Session)}
}

// Insert stores s under its handle, replacing any previous entry.
func (r *Registry) Insert(s *Session) {
	r.sessions[s.Handle] = s
}

// Remove deletes the entry for handle and returns it, if any.
func (r *Registry) Remove(handle int) (*Session, bool) {
	s, ok := r.sessions[handle]
	if ok {
		delete(r.sessions, handle)
	}
	return s, ok
}

func (r *Registry) Get(handle int) (*Session, bool) {
	s, ok := r.sessions[handle]
	return s, ok
}

func (r *Registry) Len() int {
	return len(r.sessions)
}

// All returns the sessions ordered by ascending handle.
func (r *Registry) All() []*Session {
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Handle < all[j].Handle })
	return all
}
