// Package registry holds the coordination state of the chat server: which
// users are currently reachable and who is chatting with whom. Both maps are
// owned by a single Registry behind one lock, so a pairing write is never
// observable half-done from a concurrent message or teardown path.
package registry

import "sync"

// Pairing links a user to their active chat. Both participants of a chat
// hold an entry with the same ChatID and each other's ID as PartnerID.
type Pairing struct {
	ChatID    string
	PartnerID string
}

// Registry is the in-process store for presence and pairings. All methods
// are safe for concurrent use from any worker goroutine.
type Registry struct {
	mu     sync.RWMutex
	online map[string]string  // user ID -> connection ID
	chats  map[string]Pairing // user ID -> active pairing
}

// New creates an empty Registry ready for use.
func New() *Registry {
	return &Registry{
		online: make(map[string]string),
		chats:  make(map[string]Pairing),
	}
}
