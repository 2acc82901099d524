// Package client tracks a chat client's local session state as server events
// arrive. The server is authoritative; the machine exists so a client UI can
// render the right prompt and refuse locally nonsensical commands without a
// round trip.
package client

import (
	"sync"
	"time"

	"github.com/duochat/chat-app/internal/protocol"
)

// State is the client's view of its own session.
type State int

const (
	// StateIdle means no pending request and no active chat.
	StateIdle State = iota
	// StateRequesting means an outgoing invitation is awaiting a response.
	StateRequesting
	// StateConnected means a chat is live.
	StateConnected
	// StateDeclined means the last invitation was declined; reverts to idle.
	StateDeclined
	// StateCancelled means the last invitation was withdrawn; reverts to idle.
	StateCancelled
	// StateEnded means the last chat finished; reverts to idle.
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateConnected:
		return "connected"
	case StateDeclined:
		return "declined"
	case StateCancelled:
		return "cancelled"
	case StateEnded:
		return "ended"
	}
	return "unknown"
}

// defaultRevertDelay is how long the terminal states linger before the
// machine returns to idle on its own.
const defaultRevertDelay = 5 * time.Second

// Machine is the client session state machine. All methods are safe for
// concurrent use; the read loop and the input loop share one instance.
type Machine struct {
	mu          sync.Mutex
	state       State
	chatID      string
	partnerID   string
	revertDelay time.Duration
	revertTimer *time.Timer
}

// NewMachine creates a Machine in the idle state.
func NewMachine() *Machine {
	return &Machine{
		state:       StateIdle,
		revertDelay: defaultRevertDelay,
	}
}

// SetRevertDelay overrides the auto-revert delay for the transient states.
func (m *Machine) SetRevertDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revertDelay = d
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Chat returns the live chat's ID and partner, or empty strings when no chat
// is active.
func (m *Machine) Chat() (chatID, partnerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected {
		return "", ""
	}
	return m.chatID, m.partnerID
}

// RequestSent records an outgoing invitation. It returns false if the client
// is not idle; the caller should not have sent the request.
func (m *Machine) RequestSent() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateIdle {
		return false
	}
	m.setLocked(StateRequesting)
	return true
}

// RequestCancelled records that the client withdrew its own invitation.
func (m *Machine) RequestCancelled() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateRequesting {
		m.setLocked(StateIdle)
	}
}

// Apply transitions the machine on a server event. Events that do not affect
// session state (errors, pongs, forwarded invitations) leave it unchanged.
func (m *Machine) Apply(msgType string, payload map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch msgType {
	case protocol.TypeChatStarted:
		m.chatID, _ = payload["chatId"].(string)
		m.partnerID, _ = payload["partnerId"].(string)
		m.setLocked(StateConnected)
	case protocol.TypeChatDeclined:
		if m.state == StateRequesting {
			m.setLocked(StateDeclined)
		}
	case protocol.TypeChatCancelled:
		// The peer withdrew an invitation we had not acted on; nothing to
		// revert unless we were somehow mid-request ourselves.
		if m.state == StateRequesting {
			m.setLocked(StateCancelled)
		}
	case protocol.TypeChatEnded:
		if m.state == StateConnected {
			m.setLocked(StateEnded)
		}
	}
}

// setLocked performs the transition and manages the auto-revert timer. Caller
// holds m.mu.
func (m *Machine) setLocked(s State) {
	if m.revertTimer != nil {
		m.revertTimer.Stop()
		m.revertTimer = nil
	}

	m.state = s
	if s != StateConnected {
		m.chatID = ""
		m.partnerID = ""
	}

	switch s {
	case StateDeclined, StateCancelled, StateEnded:
		m.revertTimer = time.AfterFunc(m.revertDelay, m.revertToIdle)
	}
}

func (m *Machine) revertToIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case StateDeclined, StateCancelled, StateEnded:
		m.state = StateIdle
	}
}
