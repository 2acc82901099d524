// Package router implements the coordination protocol: it validates every
// inbound client event against the presence and pairing registry and emits
// directed notifications to the affected connections. All notifications are
// fire-and-forget; the router never blocks waiting for delivery.
package router

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/duochat/chat-app/internal/ban"
	"github.com/duochat/chat-app/internal/chat"
	"github.com/duochat/chat-app/internal/messaging"
	"github.com/duochat/chat-app/internal/metrics"
	"github.com/duochat/chat-app/internal/moderation"
	"github.com/duochat/chat-app/internal/protocol"
	"github.com/duochat/chat-app/internal/registry"
)

// Error messages surfaced to the acting connection. These strings are part
// of the client contract.
const (
	ErrTargetOffline = "User is not online"
	ErrEitherOffline = "One user is offline"
	ErrAlreadyInChat = "User is already in a chat"
	ErrNoActiveChat  = "No active chat with this user"
	ErrRecipientGone = "User disconnected"
)

// banCheckTimeout bounds the Redis round trip on the register path.
const banCheckTimeout = 2 * time.Second

// Emitter delivers an encoded server event to a connection by its opaque ID.
// The WebSocket server satisfies this interface.
type Emitter interface {
	SendMessage(connID string, data []byte) error
}

// Router validates inbound events against the registry and notifies the
// affected connections. Its handler methods may be called concurrently from
// any transport worker goroutine; the registry's single lock guarantees a
// message is never validated against a half-written pairing.
type Router struct {
	reg     *registry.Registry
	emitter Emitter
	buffer  *chat.MessageBuffer

	bans   *ban.Store        // optional; nil disables the ban check on register
	events *messaging.Client // optional; nil disables moderation and lifecycle publishing
}

// New creates a Router over the given registry and emitter. Ban store and
// messaging client are attached separately because both are optional
// collaborators.
func New(reg *registry.Registry, emitter Emitter) *Router {
	return &Router{
		reg:     reg,
		emitter: emitter,
		buffer:  chat.NewMessageBuffer(),
	}
}

// SetBanStore attaches a Redis ban store checked on registration.
func (r *Router) SetBanStore(b *ban.Store) {
	r.bans = b
}

// SetMessaging attaches a NATS client used for moderation checks and the
// chat lifecycle firehose.
func (r *Router) SetMessaging(m *messaging.Client) {
	r.events = m
}

// Dispatch parses raw bytes from a connection and routes the event to its
// handler. The switch over concrete payload types is exhaustive for the
// closed client event set; ParseClientMessage has already rejected anything
// outside it.
func (r *Router) Dispatch(connID string, data []byte) {
	start := time.Now()

	msgType, msg, err := r.parse(connID, data)
	if err != nil {
		return
	}
	metrics.EventsTotal.WithLabelValues(msgType).Inc()

	switch m := msg.(type) {
	case protocol.RegisterMsg:
		r.handleRegister(connID, m)
	case protocol.ChatRequestMsg:
		r.handleChatRequest(connID, m)
	case protocol.ChatAcceptMsg:
		r.handleChatAccept(connID, m)
	case protocol.ChatDeclineMsg:
		r.handleChatDecline(m)
	case protocol.ChatCancelMsg:
		r.handleChatCancel(m)
	case protocol.MessageSendMsg:
		r.handleMessageSend(connID, m)
	case protocol.TypingMsg:
		r.handleTyping(m)
	case protocol.ChatEndMsg:
		r.handleChatEnd(connID)
	case protocol.PingMsg:
		r.sendPong(connID)
	}

	metrics.DispatchLatency.Observe(time.Since(start).Seconds())
}

func (r *Router) parse(connID string, data []byte) (string, interface{}, error) {
	msgType, msg, err := protocol.ParseClientMessage(data)
	if err != nil {
		log.Printf("router: parse error conn=%s: %v", connID, err)
		r.sendError(connID, "invalid message format")
		return msgType, nil, err
	}
	return msgType, msg, nil
}

// handleRegister records the user's presence on this connection. The upsert
// is unconditional: a re-registration from a new connection simply takes
// over, no stale-connection cleanup is attempted.
func (r *Router) handleRegister(connID string, m protocol.RegisterMsg) {
	if m.UserID == "" {
		r.sendError(connID, "userId is required")
		return
	}

	if r.bans != nil {
		ctx, cancel := context.WithTimeout(context.Background(), banCheckTimeout)
		banned, remaining, reason, err := r.bans.IsBanned(ctx, m.UserID)
		cancel()
		if err != nil {
			// Fail open: a Redis outage must not take registration down.
			log.Printf("router: ban check failed user=%s: %v", m.UserID, err)
		} else if banned {
			log.Printf("router: rejected banned user=%s reason=%q remaining=%ds", m.UserID, reason, remaining)
			r.sendError(connID, "You are temporarily banned")
			return
		}
	}

	r.reg.Register(m.UserID, connID)
	metrics.OnlineUsers.Set(float64(r.reg.OnlineCount()))

	r.emit(connID, protocol.TypeRegistered, protocol.RegisteredMsg{
		UserID:       m.UserID,
		ConnectionID: connID,
	})
	log.Printf("router: registered user=%s conn=%s", m.UserID, connID)
}

// handleChatRequest forwards the invitation verbatim to the target's
// connection. Nothing is recorded; the requester learns the outcome only
// through a later accept, decline, or cancel event.
func (r *Router) handleChatRequest(connID string, m protocol.ChatRequestMsg) {
	targetConn, ok := r.reg.Lookup(m.ToUserID)
	if !ok {
		r.sendError(connID, ErrTargetOffline)
		return
	}

	metrics.ChatRequestsTotal.Inc()
	r.emit(targetConn, protocol.TypeChatRequestReceived, protocol.ChatRequestReceivedMsg{
		FromUserID: m.FromUserID,
		ToUserID:   m.ToUserID,
	})
}

// handleChatAccept pairs the two users and notifies both, each with their
// own partner identity and the shared chat ID. Requests are stateless, so
// the only precondition beyond mutual reachability is that neither user is
// already in a chat.
func (r *Router) handleChatAccept(connID string, m protocol.ChatAcceptMsg) {
	fromConn, fromOK := r.reg.Lookup(m.FromUserID)
	toConn, toOK := r.reg.Lookup(m.ToUserID)
	if !fromOK || !toOK {
		r.sendError(connID, ErrEitherOffline)
		return
	}

	chatID, ok := r.reg.Pair(m.FromUserID, m.ToUserID)
	if !ok {
		r.sendError(connID, ErrAlreadyInChat)
		return
	}

	metrics.ActiveChats.Set(float64(r.reg.ChatCount()))

	r.emit(fromConn, protocol.TypeChatStarted, protocol.ChatStartedMsg{
		ChatID:    chatID,
		PartnerID: m.ToUserID,
	})
	r.emit(toConn, protocol.TypeChatStarted, protocol.ChatStartedMsg{
		ChatID:    chatID,
		PartnerID: m.FromUserID,
	})

	r.publishLifecycle(messaging.SubjectChatStarted, messaging.ChatLifecycleEvent{
		ChatID: chatID,
		UserA:  m.FromUserID,
		UserB:  m.ToUserID,
		Ts:     time.Now().Unix(),
	})
	log.Printf("router: chat started chat=%s users=%s,%s", chatID, m.FromUserID, m.ToUserID)
}

// handleChatDecline notifies the original requester, if reachable. An
// offline requester is a silent drop: best effort, no error to anyone.
func (r *Router) handleChatDecline(m protocol.ChatDeclineMsg) {
	fromConn, ok := r.reg.Lookup(m.FromUserID)
	if !ok {
		return
	}
	r.emit(fromConn, protocol.TypeChatDeclined, protocol.ChatDeclinedNoticeMsg{
		DeclinedBy: m.ToUserID,
	})
}

// handleChatCancel notifies the invited user that the invitation was
// withdrawn, if reachable. Silent drop otherwise.
func (r *Router) handleChatCancel(m protocol.ChatCancelMsg) {
	targetConn, ok := r.reg.Lookup(m.ToUserID)
	if !ok {
		return
	}
	r.emit(targetConn, protocol.TypeChatCancelled, protocol.ChatCancelledNoticeMsg{
		CancelledBy: m.FromUserID,
	})
}

// handleMessageSend validates the message against the sender's current
// pairing and relays it verbatim. A recipient who disconnected mid-chat
// produces an error to the sender but the pairing stays intact; teardown
// happens on the disconnect path, not here.
func (r *Router) handleMessageSend(connID string, m protocol.MessageSendMsg) {
	pairing, ok := r.reg.Get(m.FromUserID)
	if !ok || pairing.PartnerID != m.ToUserID {
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		r.sendError(connID, ErrNoActiveChat)
		return
	}

	if err := chat.ValidateMessage(m.Message); err != nil {
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		r.sendError(connID, err.Error())
		return
	}

	targetConn, ok := r.reg.Lookup(m.ToUserID)
	if !ok {
		metrics.MessagesTotal.WithLabelValues("undeliverable").Inc()
		r.sendError(connID, ErrRecipientGone)
		return
	}

	now := time.Now().Unix()
	r.emit(targetConn, protocol.TypeMessageReceived, protocol.MessageReceivedMsg{
		ChatID:     m.ChatID,
		FromUserID: m.FromUserID,
		ToUserID:   m.ToUserID,
		Message:    m.Message,
	})
	metrics.MessagesTotal.WithLabelValues("relayed").Inc()

	r.buffer.Add(pairing.ChatID, chat.BufferedMessage{
		From: m.FromUserID,
		Text: m.Message,
		Ts:   now,
	})

	if r.events != nil {
		req := moderation.CheckRequest{
			UserID:  m.FromUserID,
			ChatID:  pairing.ChatID,
			Text:    m.Message,
			Context: r.buffer.Get(pairing.ChatID),
			Ts:      now,
		}
		data, err := json.Marshal(req)
		if err != nil {
			log.Printf("router: moderation marshal failed chat=%s: %v", pairing.ChatID, err)
		} else if err := r.events.PublishModerationCheck(data); err != nil {
			log.Printf("router: moderation publish failed chat=%s: %v", pairing.ChatID, err)
		}
	}
}

// handleTyping relays the typing indicator to the partner. It is validated
// like a message but every failure is a silent drop; a typing blip is not
// worth an error event.
func (r *Router) handleTyping(m protocol.TypingMsg) {
	pairing, ok := r.reg.Get(m.FromUserID)
	if !ok || pairing.PartnerID != m.ToUserID {
		return
	}
	targetConn, ok := r.reg.Lookup(m.ToUserID)
	if !ok {
		return
	}
	r.emit(targetConn, protocol.TypeTyping, protocol.PartnerTypingMsg{
		IsTyping: m.IsTyping,
	})
}

// handleChatEnd resolves the acting user from the connection and tears the
// chat down with reason "manual". The acting client transitions locally; no
// echo is sent back to it.
func (r *Router) handleChatEnd(connID string) {
	userID, ok := r.reg.FindUserByConn(connID)
	if !ok {
		return
	}
	r.endChat(userID, protocol.EndReasonManual)
}

// HandleDisconnect is the transport's connection-loss hook. The pairing is
// torn down exactly like a manual chat:end, with reason "disconnected", so
// the partner is told immediately instead of discovering it on a failed
// send. Presence is removed only if the lost connection is still the user's
// current one; a re-registration from a new connection must not be undone
// by the old connection's late disconnect.
func (r *Router) HandleDisconnect(connID string) {
	userID, ok := r.reg.FindUserByConn(connID)
	if !ok {
		return
	}

	r.endChat(userID, protocol.EndReasonDisconnected)
	r.reg.Remove(userID)
	metrics.OnlineUsers.Set(float64(r.reg.OnlineCount()))
	log.Printf("router: user offline user=%s conn=%s", userID, connID)
}

// endChat notifies a reachable partner and removes both pairing entries.
// Exactly one chat:ended goes to the partner when online, zero otherwise.
func (r *Router) endChat(userID, reason string) {
	pairing, ok := r.reg.Get(userID)
	if !ok {
		return
	}

	if partnerConn, online := r.reg.Lookup(pairing.PartnerID); online {
		r.emit(partnerConn, protocol.TypeChatEnded, protocol.ChatEndedMsg{
			ChatID:  pairing.ChatID,
			EndedBy: userID,
			Reason:  reason,
		})
	}

	r.reg.UnpairBoth(userID)
	r.buffer.Delete(pairing.ChatID)
	metrics.ActiveChats.Set(float64(r.reg.ChatCount()))

	r.publishLifecycle(messaging.SubjectChatEnded, messaging.ChatLifecycleEvent{
		ChatID:  pairing.ChatID,
		UserA:   userID,
		UserB:   pairing.PartnerID,
		EndedBy: userID,
		Reason:  reason,
		Ts:      time.Now().Unix(),
	})
	log.Printf("router: chat ended chat=%s by=%s reason=%s", pairing.ChatID, userID, reason)
}

// ---------------------------------------------------------------------------
// Outbound helpers
// ---------------------------------------------------------------------------

// emit builds a server event and sends it to the connection. Delivery
// failures are logged, never propagated: the failed connection will be
// reaped by the transport's own read or heartbeat path.
func (r *Router) emit(connID, msgType string, payload interface{}) {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("router: failed to build %s for conn=%s: %v", msgType, connID, err)
		return
	}
	if err := r.emitter.SendMessage(connID, data); err != nil {
		log.Printf("router: failed to send %s to conn=%s: %v", msgType, connID, err)
	}
}

func (r *Router) sendError(connID, message string) {
	metrics.ErrorsTotal.Inc()
	r.emit(connID, protocol.TypeError, protocol.ErrorMsg{Message: message})
}

func (r *Router) sendPong(connID string) {
	r.emit(connID, protocol.TypePong, protocol.PongMsg{})
}

func (r *Router) publishLifecycle(subject string, event messaging.ChatLifecycleEvent) {
	if r.events == nil {
		return
	}
	if err := r.events.PublishLifecycle(subject, event); err != nil {
		log.Printf("router: lifecycle publish failed subject=%s: %v", subject, err)
	}
}
