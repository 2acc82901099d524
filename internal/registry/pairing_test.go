package registry

import (
	"fmt"
	"sync"
	"testing"
)

func TestPair_Symmetric(t *testing.T) {
	r := New()

	chatID, ok := r.Pair("alice", "bob")
	if !ok {
		t.Fatal("expected Pair to succeed")
	}
	if chatID == "" {
		t.Fatal("expected a non-empty chat ID")
	}

	pa, ok := r.Get("alice")
	if !ok {
		t.Fatal("expected alice to have a pairing")
	}
	pb, ok := r.Get("bob")
	if !ok {
		t.Fatal("expected bob to have a pairing")
	}

	if pa.PartnerID != "bob" {
		t.Errorf("alice's partner: expected bob, got %q", pa.PartnerID)
	}
	if pb.PartnerID != "alice" {
		t.Errorf("bob's partner: expected alice, got %q", pb.PartnerID)
	}
	if pa.ChatID != chatID || pb.ChatID != chatID {
		t.Errorf("chat IDs diverge: %q / %q / returned %q", pa.ChatID, pb.ChatID, chatID)
	}
}

func TestPair_FreshIDs(t *testing.T) {
	r := New()

	id1, _ := r.Pair("alice", "bob")
	r.UnpairBoth("alice")
	id2, _ := r.Pair("alice", "bob")

	if id1 == id2 {
		t.Errorf("expected a fresh chat ID per pairing, got %q twice", id1)
	}
}

func TestPair_RefusesBusyUser(t *testing.T) {
	r := New()

	if _, ok := r.Pair("alice", "bob"); !ok {
		t.Fatal("initial Pair failed")
	}
	if _, ok := r.Pair("alice", "carol"); ok {
		t.Error("expected Pair to refuse while alice is already in a chat")
	}
	if _, ok := r.Pair("carol", "bob"); ok {
		t.Error("expected Pair to refuse while bob is already in a chat")
	}

	// The refused attempts must not have mutated anything.
	if _, ok := r.Get("carol"); ok {
		t.Error("expected carol to have no pairing")
	}
	pa, _ := r.Get("alice")
	if pa.PartnerID != "bob" {
		t.Errorf("alice's pairing was disturbed: %+v", pa)
	}
}

func TestUnpairBoth(t *testing.T) {
	r := New()

	chatID, _ := r.Pair("alice", "bob")

	removed, ok := r.UnpairBoth("alice")
	if !ok {
		t.Fatal("expected UnpairBoth to find alice's pairing")
	}
	if removed.ChatID != chatID || removed.PartnerID != "bob" {
		t.Errorf("unexpected removed pairing: %+v", removed)
	}

	if _, ok := r.Get("alice"); ok {
		t.Error("expected alice's entry to be gone")
	}
	if _, ok := r.Get("bob"); ok {
		t.Error("expected bob's entry to be gone")
	}
}

func TestUnpairBoth_Absent(t *testing.T) {
	r := New()

	if _, ok := r.UnpairBoth("alice"); ok {
		t.Error("expected UnpairBoth of unpaired user to be a no-op")
	}
}

func TestRemoveOne_LeavesPartner(t *testing.T) {
	r := New()

	r.Pair("alice", "bob")
	r.RemoveOne("alice")

	if _, ok := r.Get("alice"); ok {
		t.Error("expected alice's entry to be gone")
	}
	if _, ok := r.Get("bob"); !ok {
		t.Error("expected bob's entry to survive RemoveOne(alice)")
	}
}

func TestChatCount(t *testing.T) {
	r := New()

	if n := r.ChatCount(); n != 0 {
		t.Fatalf("expected 0 chats, got %d", n)
	}
	r.Pair("alice", "bob")
	r.Pair("carol", "dave")
	if n := r.ChatCount(); n != 2 {
		t.Errorf("expected 2 chats, got %d", n)
	}
	r.UnpairBoth("alice")
	if n := r.ChatCount(); n != 1 {
		t.Errorf("expected 1 chat, got %d", n)
	}
}

// TestPair_ConcurrentReaders hammers Pair/Get/UnpairBoth from many
// goroutines. Run with -race; the invariant checked is that a reader never
// observes a half-written pairing (an entry whose partner entry disagrees).
func TestPair_ConcurrentReaders(t *testing.T) {
	r := New()

	const pairs = 32
	var wg sync.WaitGroup

	for i := 0; i < pairs; i++ {
		a := fmt.Sprintf("user-a-%d", i)
		b := fmt.Sprintf("user-b-%d", i)

		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Pair(a, b)
			r.UnpairBoth(a)
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				pa, okA := r.Get(a)
				if !okA {
					continue
				}
				pb, okB := r.Get(pa.PartnerID)
				if !okB {
					// Partner entry may already be gone after UnpairBoth;
					// what must never happen is a live but mismatched pair.
					continue
				}
				if pb.PartnerID != a || pb.ChatID != pa.ChatID {
					t.Errorf("asymmetric pairing observed: %+v / %+v", pa, pb)
					return
				}
			}
		}()
	}

	wg.Wait()
}
