package registry

// Register records the connection a user is reachable on. It is an
// unconditional upsert: re-registering overwrites any prior connection ID,
// so the last registration always wins.
func (r *Registry) Register(userID, connID string) {
	r.mu.Lock()
	r.online[userID] = connID
	r.mu.Unlock()
}

// Lookup returns the connection ID for a user, if they are online.
func (r *Registry) Lookup(userID string) (string, bool) {
	r.mu.RLock()
	connID, ok := r.online[userID]
	r.mu.RUnlock()
	return connID, ok
}

// Remove deletes a user's presence entry. Removing an absent user is a no-op.
func (r *Registry) Remove(userID string) {
	r.mu.Lock()
	delete(r.online, userID)
	r.mu.Unlock()
}

// FindUserByConn returns the user registered on the given connection.
// The linear scan is acceptable: it runs only on the disconnect and
// chat:end paths, never per message.
func (r *Registry) FindUserByConn(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for userID, stored := range r.online {
		if stored == connID {
			return userID, true
		}
	}
	return "", false
}

// OnlineCount returns the number of registered users.
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	n := len(r.online)
	r.mu.RUnlock()
	return n
}
