package router

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/duochat/chat-app/internal/chat"
	"github.com/duochat/chat-app/internal/protocol"
	"github.com/duochat/chat-app/internal/registry"
)

// fakeEmitter records every payload sent per connection ID.
type fakeEmitter struct {
	mu   sync.Mutex
	sent map[string][][]byte
}

func newFakeEmitter() *fakeEmitter {
	return &fakeEmitter{sent: make(map[string][][]byte)}
}

func (f *fakeEmitter) SendMessage(connID string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[connID] = append(f.sent[connID], data)
	return nil
}

func (f *fakeEmitter) count(connID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent[connID])
}

// last decodes the most recent event sent to connID, failing the test if
// nothing was sent.
func (f *fakeEmitter) last(t *testing.T, connID string) map[string]interface{} {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	msgs := f.sent[connID]
	if len(msgs) == 0 {
		t.Fatalf("no events sent to conn %s", connID)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(msgs[len(msgs)-1], &m); err != nil {
		t.Fatalf("failed to decode event: %v", err)
	}
	return m
}

func newTestRouter() (*Router, *fakeEmitter, *registry.Registry) {
	reg := registry.New()
	em := newFakeEmitter()
	return New(reg, em), em, reg
}

func register(rt *Router, userID, connID string) {
	rt.Dispatch(connID, []byte(fmt.Sprintf(`{"type":"user:register","userId":%q}`, userID)))
}

// startChat registers both users and walks them through request and accept.
func startChat(t *testing.T, rt *Router, em *fakeEmitter) (chatID string) {
	t.Helper()
	register(rt, "alice", "c1")
	register(rt, "bob", "c2")
	rt.Dispatch("c1", []byte(`{"type":"chat:request","fromUserId":"alice","toUserId":"bob"}`))
	rt.Dispatch("c2", []byte(`{"type":"chat:accept","fromUserId":"alice","toUserId":"bob"}`))

	started := em.last(t, "c1")
	if started["type"] != protocol.TypeChatStarted {
		t.Fatalf("expected chat:started, got %v", started["type"])
	}
	return started["chatId"].(string)
}

func TestRegister(t *testing.T) {
	rt, em, reg := newTestRouter()

	register(rt, "alice", "c1")

	ev := em.last(t, "c1")
	if ev["type"] != protocol.TypeRegistered {
		t.Errorf("type = %v, want %s", ev["type"], protocol.TypeRegistered)
	}
	if ev["userId"] != "alice" || ev["connectionId"] != "c1" {
		t.Errorf("unexpected payload: %v", ev)
	}
	if conn, ok := reg.Lookup("alice"); !ok || conn != "c1" {
		t.Errorf("Lookup(alice) = %q, %v", conn, ok)
	}
}

func TestRegister_EmptyUserID(t *testing.T) {
	rt, em, reg := newTestRouter()

	rt.Dispatch("c1", []byte(`{"type":"user:register","userId":""}`))

	ev := em.last(t, "c1")
	if ev["type"] != protocol.TypeError {
		t.Errorf("type = %v, want error", ev["type"])
	}
	if reg.OnlineCount() != 0 {
		t.Errorf("OnlineCount = %d, want 0", reg.OnlineCount())
	}
}

func TestRegister_LastWins(t *testing.T) {
	rt, _, reg := newTestRouter()

	register(rt, "alice", "c1")
	register(rt, "alice", "c9")

	if conn, _ := reg.Lookup("alice"); conn != "c9" {
		t.Errorf("Lookup(alice) = %q, want c9", conn)
	}
	if reg.OnlineCount() != 1 {
		t.Errorf("OnlineCount = %d, want 1", reg.OnlineCount())
	}
}

func TestChatRequest_Forwarded(t *testing.T) {
	rt, em, _ := newTestRouter()
	register(rt, "alice", "c1")
	register(rt, "bob", "c2")

	rt.Dispatch("c1", []byte(`{"type":"chat:request","fromUserId":"alice","toUserId":"bob"}`))

	ev := em.last(t, "c2")
	if ev["type"] != protocol.TypeChatRequestReceived {
		t.Fatalf("type = %v, want %s", ev["type"], protocol.TypeChatRequestReceived)
	}
	if ev["fromUserId"] != "alice" || ev["toUserId"] != "bob" {
		t.Errorf("unexpected payload: %v", ev)
	}
}

func TestChatRequest_TargetOffline(t *testing.T) {
	rt, em, _ := newTestRouter()
	register(rt, "alice", "c1")

	rt.Dispatch("c1", []byte(`{"type":"chat:request","fromUserId":"alice","toUserId":"ghost"}`))

	ev := em.last(t, "c1")
	if ev["type"] != protocol.TypeError || ev["message"] != ErrTargetOffline {
		t.Errorf("unexpected event: %v", ev)
	}
}

func TestChatAccept_PairsBoth(t *testing.T) {
	rt, em, reg := newTestRouter()

	chatID := startChat(t, rt, em)

	a := em.last(t, "c1")
	b := em.last(t, "c2")
	if a["chatId"] != chatID || b["chatId"] != chatID {
		t.Errorf("chat IDs differ: %v vs %v", a["chatId"], b["chatId"])
	}
	if a["partnerId"] != "bob" {
		t.Errorf("alice partnerId = %v, want bob", a["partnerId"])
	}
	if b["partnerId"] != "alice" {
		t.Errorf("bob partnerId = %v, want alice", b["partnerId"])
	}
	if reg.ChatCount() != 1 {
		t.Errorf("ChatCount = %d, want 1", reg.ChatCount())
	}
}

func TestChatAccept_EitherOffline(t *testing.T) {
	rt, em, reg := newTestRouter()
	register(rt, "bob", "c2")

	rt.Dispatch("c2", []byte(`{"type":"chat:accept","fromUserId":"alice","toUserId":"bob"}`))

	ev := em.last(t, "c2")
	if ev["type"] != protocol.TypeError || ev["message"] != ErrEitherOffline {
		t.Errorf("unexpected event: %v", ev)
	}
	if reg.ChatCount() != 0 {
		t.Errorf("ChatCount = %d, want 0", reg.ChatCount())
	}
}

func TestChatAccept_AlreadyInChat(t *testing.T) {
	rt, em, reg := newTestRouter()
	startChat(t, rt, em)
	register(rt, "carol", "c3")

	// Carol accepts an invitation from Bob, who is mid-chat with Alice.
	rt.Dispatch("c3", []byte(`{"type":"chat:accept","fromUserId":"bob","toUserId":"carol"}`))

	ev := em.last(t, "c3")
	if ev["type"] != protocol.TypeError || ev["message"] != ErrAlreadyInChat {
		t.Errorf("unexpected event: %v", ev)
	}
	if reg.ChatCount() != 1 {
		t.Errorf("ChatCount = %d, want 1", reg.ChatCount())
	}
	if _, ok := reg.Get("carol"); ok {
		t.Error("carol should not be paired")
	}
}

func TestChatDecline_NotifiesRequester(t *testing.T) {
	rt, em, _ := newTestRouter()
	register(rt, "alice", "c1")
	register(rt, "bob", "c2")

	rt.Dispatch("c2", []byte(`{"type":"chat:declined","fromUserId":"alice","toUserId":"bob"}`))

	ev := em.last(t, "c1")
	if ev["type"] != protocol.TypeChatDeclined || ev["declinedBy"] != "bob" {
		t.Errorf("unexpected event: %v", ev)
	}
}

func TestChatDecline_RequesterOffline(t *testing.T) {
	rt, em, _ := newTestRouter()
	register(rt, "bob", "c2")
	before := em.count("c2")

	rt.Dispatch("c2", []byte(`{"type":"chat:declined","fromUserId":"ghost","toUserId":"bob"}`))

	if em.count("c2") != before {
		t.Error("decline against offline requester should be a silent drop")
	}
}

func TestChatCancel_NotifiesTarget(t *testing.T) {
	rt, em, _ := newTestRouter()
	register(rt, "alice", "c1")
	register(rt, "bob", "c2")

	rt.Dispatch("c1", []byte(`{"type":"chat:request-cancelled","fromUserId":"alice","toUserId":"bob"}`))

	ev := em.last(t, "c2")
	if ev["type"] != protocol.TypeChatCancelled || ev["cancelledBy"] != "alice" {
		t.Errorf("unexpected event: %v", ev)
	}
}

func TestMessageSend_Relayed(t *testing.T) {
	rt, em, _ := newTestRouter()
	chatID := startChat(t, rt, em)

	rt.Dispatch("c1", []byte(fmt.Sprintf(
		`{"type":"message:send","chatId":%q,"fromUserId":"alice","toUserId":"bob","message":"hello bob"}`, chatID)))

	ev := em.last(t, "c2")
	if ev["type"] != protocol.TypeMessageReceived {
		t.Fatalf("type = %v, want %s", ev["type"], protocol.TypeMessageReceived)
	}
	if ev["message"] != "hello bob" || ev["fromUserId"] != "alice" || ev["chatId"] != chatID {
		t.Errorf("unexpected payload: %v", ev)
	}
}

func TestMessageSend_NoActiveChat(t *testing.T) {
	rt, em, _ := newTestRouter()
	register(rt, "alice", "c1")
	register(rt, "bob", "c2")

	rt.Dispatch("c1", []byte(`{"type":"message:send","chatId":"x","fromUserId":"alice","toUserId":"bob","message":"hi"}`))

	ev := em.last(t, "c1")
	if ev["type"] != protocol.TypeError || ev["message"] != ErrNoActiveChat {
		t.Errorf("unexpected event: %v", ev)
	}
	if em.count("c2") != 1 { // only the registered ack
		t.Error("message must not reach the recipient")
	}
}

func TestMessageSend_WrongPartner(t *testing.T) {
	rt, em, _ := newTestRouter()
	startChat(t, rt, em)
	register(rt, "carol", "c3")

	rt.Dispatch("c1", []byte(`{"type":"message:send","chatId":"x","fromUserId":"alice","toUserId":"carol","message":"hi"}`))

	ev := em.last(t, "c1")
	if ev["type"] != protocol.TypeError || ev["message"] != ErrNoActiveChat {
		t.Errorf("unexpected event: %v", ev)
	}
}

func TestMessageSend_InvalidMessage(t *testing.T) {
	rt, em, _ := newTestRouter()
	chatID := startChat(t, rt, em)
	long := strings.Repeat("a", chat.MaxTextChars+1)

	rt.Dispatch("c1", []byte(fmt.Sprintf(
		`{"type":"message:send","chatId":%q,"fromUserId":"alice","toUserId":"bob","message":%q}`, chatID, long)))

	ev := em.last(t, "c1")
	if ev["type"] != protocol.TypeError {
		t.Errorf("type = %v, want error", ev["type"])
	}
	last := em.last(t, "c2")
	if last["type"] == protocol.TypeMessageReceived {
		t.Error("oversized message must not be relayed")
	}
}

func TestMessageSend_RecipientGone(t *testing.T) {
	rt, em, reg := newTestRouter()
	chatID := startChat(t, rt, em)

	// Bob drops from presence but the pairing has not been torn down yet.
	reg.Remove("bob")

	rt.Dispatch("c1", []byte(fmt.Sprintf(
		`{"type":"message:send","chatId":%q,"fromUserId":"alice","toUserId":"bob","message":"hi"}`, chatID)))

	ev := em.last(t, "c1")
	if ev["type"] != protocol.TypeError || ev["message"] != ErrRecipientGone {
		t.Errorf("unexpected event: %v", ev)
	}
	if _, ok := reg.Get("alice"); !ok {
		t.Error("pairing must stay intact on a failed send")
	}
}

func TestTyping_Relayed(t *testing.T) {
	rt, em, _ := newTestRouter()
	chatID := startChat(t, rt, em)

	rt.Dispatch("c1", []byte(fmt.Sprintf(
		`{"type":"typing","chatId":%q,"fromUserId":"alice","toUserId":"bob","isTyping":true}`, chatID)))

	ev := em.last(t, "c2")
	if ev["type"] != protocol.TypeTyping || ev["isTyping"] != true {
		t.Errorf("unexpected event: %v", ev)
	}
}

func TestTyping_NoPairingSilentDrop(t *testing.T) {
	rt, em, _ := newTestRouter()
	register(rt, "alice", "c1")
	register(rt, "bob", "c2")
	before := em.count("c1") + em.count("c2")

	rt.Dispatch("c1", []byte(`{"type":"typing","chatId":"x","fromUserId":"alice","toUserId":"bob","isTyping":true}`))

	if em.count("c1")+em.count("c2") != before {
		t.Error("typing without a pairing should be a silent drop")
	}
}

func TestChatEnd_Manual(t *testing.T) {
	rt, em, reg := newTestRouter()
	chatID := startChat(t, rt, em)

	rt.Dispatch("c1", []byte(`{"type":"chat:end"}`))

	ev := em.last(t, "c2")
	if ev["type"] != protocol.TypeChatEnded {
		t.Fatalf("type = %v, want %s", ev["type"], protocol.TypeChatEnded)
	}
	if ev["chatId"] != chatID || ev["endedBy"] != "alice" || ev["reason"] != protocol.EndReasonManual {
		t.Errorf("unexpected payload: %v", ev)
	}
	if reg.ChatCount() != 0 {
		t.Errorf("ChatCount = %d, want 0", reg.ChatCount())
	}

	// Subsequent sends from either side are rejected.
	rt.Dispatch("c2", []byte(fmt.Sprintf(
		`{"type":"message:send","chatId":%q,"fromUserId":"bob","toUserId":"alice","message":"still there?"}`, chatID)))
	if got := em.last(t, "c2"); got["message"] != ErrNoActiveChat {
		t.Errorf("post-end send: %v", got)
	}
}

func TestChatEnd_PartnerOffline(t *testing.T) {
	rt, em, reg := newTestRouter()
	startChat(t, rt, em)

	// Bob's presence is gone but the pairing still exists.
	reg.Remove("bob")
	before := em.count("c2")

	rt.Dispatch("c1", []byte(`{"type":"chat:end"}`))

	if em.count("c2") != before {
		t.Error("offline partner must receive zero notifications")
	}
	if _, ok := reg.Get("alice"); ok {
		t.Error("alice's pairing entry should be removed")
	}
	if _, ok := reg.Get("bob"); ok {
		t.Error("bob's pairing entry should be removed")
	}
	if reg.ChatCount() != 0 {
		t.Errorf("ChatCount = %d, want 0", reg.ChatCount())
	}
}

func TestChatEnd_NoChatNoop(t *testing.T) {
	rt, em, _ := newTestRouter()
	register(rt, "alice", "c1")
	before := em.count("c1")

	rt.Dispatch("c1", []byte(`{"type":"chat:end"}`))

	if em.count("c1") != before {
		t.Error("chat:end without an active chat should emit nothing")
	}
}

func TestHandleDisconnect_TearsDownChat(t *testing.T) {
	rt, em, reg := newTestRouter()
	chatID := startChat(t, rt, em)

	rt.HandleDisconnect("c1")

	ev := em.last(t, "c2")
	if ev["type"] != protocol.TypeChatEnded {
		t.Fatalf("type = %v, want %s", ev["type"], protocol.TypeChatEnded)
	}
	if ev["chatId"] != chatID || ev["endedBy"] != "alice" || ev["reason"] != protocol.EndReasonDisconnected {
		t.Errorf("unexpected payload: %v", ev)
	}
	if _, ok := reg.Lookup("alice"); ok {
		t.Error("alice should be removed from presence")
	}
	if reg.ChatCount() != 0 {
		t.Errorf("ChatCount = %d, want 0", reg.ChatCount())
	}
}

func TestHandleDisconnect_UnknownConn(t *testing.T) {
	rt, _, reg := newTestRouter()
	register(rt, "alice", "c1")

	rt.HandleDisconnect("never-seen")

	if _, ok := reg.Lookup("alice"); !ok {
		t.Error("unrelated disconnect must not affect presence")
	}
}

func TestPing(t *testing.T) {
	rt, em, _ := newTestRouter()

	rt.Dispatch("c1", []byte(`{"type":"ping"}`))

	ev := em.last(t, "c1")
	if ev["type"] != protocol.TypePong {
		t.Errorf("type = %v, want pong", ev["type"])
	}
}

func TestDispatch_InvalidMessage(t *testing.T) {
	rt, em, _ := newTestRouter()

	inputs := [][]byte{
		[]byte(`{"type":"chat:started","chatId":"x"}`), // server-only
		[]byte(`{"type":"bogus"}`),
		[]byte(`{"userId":"alice"}`), // missing type
		[]byte(`not json`),
	}
	for _, in := range inputs {
		rt.Dispatch("c1", in)
		ev := em.last(t, "c1")
		if ev["type"] != protocol.TypeError || ev["message"] != "invalid message format" {
			t.Errorf("Dispatch(%s): %v", in, ev)
		}
	}
}

// TestFullSession walks two users through the complete lifecycle of a chat.
func TestFullSession(t *testing.T) {
	rt, em, reg := newTestRouter()

	register(rt, "alice", "c1")
	register(rt, "bob", "c2")

	rt.Dispatch("c1", []byte(`{"type":"chat:request","fromUserId":"alice","toUserId":"bob"}`))
	if ev := em.last(t, "c2"); ev["type"] != protocol.TypeChatRequestReceived {
		t.Fatalf("request not forwarded: %v", ev)
	}

	rt.Dispatch("c2", []byte(`{"type":"chat:accept","fromUserId":"alice","toUserId":"bob"}`))
	chatID := em.last(t, "c1")["chatId"].(string)

	rt.Dispatch("c1", []byte(fmt.Sprintf(
		`{"type":"message:send","chatId":%q,"fromUserId":"alice","toUserId":"bob","message":"hey"}`, chatID)))
	rt.Dispatch("c2", []byte(fmt.Sprintf(
		`{"type":"message:send","chatId":%q,"fromUserId":"bob","toUserId":"alice","message":"hi back"}`, chatID)))

	if ev := em.last(t, "c2"); ev["message"] != "hey" {
		t.Errorf("bob last event: %v", ev)
	}
	if ev := em.last(t, "c1"); ev["message"] != "hi back" {
		t.Errorf("alice last event: %v", ev)
	}

	rt.Dispatch("c1", []byte(`{"type":"chat:end"}`))
	ended := em.last(t, "c2")
	if ended["endedBy"] != "alice" || ended["reason"] != protocol.EndReasonManual {
		t.Errorf("chat:ended payload: %v", ended)
	}

	if reg.ChatCount() != 0 {
		t.Errorf("ChatCount = %d, want 0", reg.ChatCount())
	}
	if reg.OnlineCount() != 2 {
		t.Errorf("OnlineCount = %d, want 2", reg.OnlineCount())
	}
}
