package registry

import "github.com/google/uuid"

// Pair creates a chat between two users: one freshly generated chat ID and
// two symmetric entries, written under a single lock acquisition so no
// reader can ever observe only one side. It refuses to pair a user who
// already has an active chat, which is the one derived-state check that
// protects the symmetry invariant against stale or duplicate accepts.
func (r *Registry) Pair(userA, userB string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, busy := r.chats[userA]; busy {
		return "", false
	}
	if _, busy := r.chats[userB]; busy {
		return "", false
	}

	chatID := uuid.New().String()
	r.chats[userA] = Pairing{ChatID: chatID, PartnerID: userB}
	r.chats[userB] = Pairing{ChatID: chatID, PartnerID: userA}
	return chatID, true
}

// Get returns the user's active pairing, if any.
func (r *Registry) Get(userID string) (Pairing, bool) {
	r.mu.RLock()
	p, ok := r.chats[userID]
	r.mu.RUnlock()
	return p, ok
}

// UnpairBoth removes the pairing entries for a user and their partner in one
// atomic step, returning the removed pairing. It is a no-op if the user has
// no active chat.
func (r *Registry) UnpairBoth(userID string) (Pairing, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.chats[userID]
	if !ok {
		return Pairing{}, false
	}
	delete(r.chats, userID)
	delete(r.chats, p.PartnerID)
	return p, true
}

// RemoveOne deletes a single pairing entry without touching the partner's.
// This is defensive cleanup only; the normal end-of-chat path always removes
// both sides via UnpairBoth.
func (r *Registry) RemoveOne(userID string) {
	r.mu.Lock()
	delete(r.chats, userID)
	r.mu.Unlock()
}

// ChatCount returns the number of active chats. An asymmetric entry left by
// RemoveOne counts as half and is rounded down.
func (r *Registry) ChatCount() int {
	r.mu.RLock()
	n := len(r.chats)
	r.mu.RUnlock()
	return n / 2
}
