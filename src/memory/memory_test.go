package memory

import (
	"testing"
	"time"

	"github.com/square-key-labs/agentgateway/src/providers"
)

func TestConversationEvictsOldestTurnsAtCap(t *testing.T) {
	c := NewConversation(3) // 1 system + 2 turns
	c.SetSystemPrompt("you are a helpful agent")
	c.Append(providers.Message{Role: "user", Content: "one"})
	c.Append(providers.Message{Role: "assistant", Content: "two"})
	c.Append(providers.Message{Role: "user", Content: "three"})

	msgs := c.Messages()
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3", len(msgs))
	}
	if msgs[0].Role != "system" {
		t.Fatalf("msgs[0].Role = %q, want system", msgs[0].Role)
	}
	if msgs[1].Content != "two" || msgs[2].Content != "three" {
		t.Fatalf("got %+v, want [two three] after system", msgs[1:])
	}
}

func TestConversationWithoutSystemPromptCapsOnTurnsAlone(t *testing.T) {
	c := NewConversation(2)
	c.Append(providers.Message{Role: "user", Content: "a"})
	c.Append(providers.Message{Role: "user", Content: "b"})
	c.Append(providers.Message{Role: "user", Content: "c"})

	msgs := c.Messages()
	if len(msgs) != 2 || msgs[0].Content != "b" || msgs[1].Content != "c" {
		t.Fatalf("got %+v, want [b c]", msgs)
	}
}

func TestStoreEnforcesSessionCapacity(t *testing.T) {
	s := NewStore(DefaultCap, 1, time.Hour)
	if _, err := s.Get("a"); err != nil {
		t.Fatalf("first Get: %v", err)
	}
	if _, err := s.Get("a"); err != nil {
		t.Fatalf("repeat Get of same session: %v", err)
	}
	if _, err := s.Get("b"); err != ErrCapacity {
		t.Fatalf("second distinct session err = %v, want ErrCapacity", err)
	}
}

func TestStoreSweepIdleRemovesExpiredConversations(t *testing.T) {
	s := NewStore(DefaultCap, 0, 10*time.Millisecond)
	if _, err := s.Get("a"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if removed := s.SweepIdle(); removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if s.Len() != 0 {
		t.Fatalf("Len = %d, want 0", s.Len())
	}
}
