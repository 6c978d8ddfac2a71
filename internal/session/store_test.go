package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"voice-intake/internal/llm"
)

func TestStoreCreateSeedsSystemPrompt(t *testing.T) {
	s := NewStore()
	id := s.Create("you are a receptionist", "+15551234567")
	if id == "" {
		t.Fatalf("empty id")
	}
	msgs, err := turnsOf(s, id)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Role != llm.RoleSystem || msgs[0].Content != "you are a receptionist" {
		t.Fatalf("unexpected seed: %+v", msgs)
	}
	other := s.Create("p", "+1")
	if other == id {
		t.Fatalf("ids must be unique")
	}
}

func TestStoreUpdateAppendsInOrderAndCopies(t *testing.T) {
	s := NewStore()
	id := s.Create("sys", "+1")
	err := s.Update(id, func(c *Conversation) error {
		c.AppendAssistant("What is your name?")
		c.AppendUser("John Smith")
		c.AppendAssistant("What is your date of birth?")
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	msgs, _ := turnsOf(s, id)
	want := []string{llm.RoleSystem, llm.RoleAssistant, llm.RoleUser, llm.RoleAssistant}
	if len(msgs) != len(want) {
		t.Fatalf("want %d turns, got %d", len(want), len(msgs))
	}
	for i, role := range want {
		if msgs[i].Role != role {
			t.Fatalf("turn %d: want %s got %s", i, role, msgs[i].Role)
		}
	}

	// returned slice is a copy
	msgs[0].Content = "mutated"
	again, _ := turnsOf(s, id)
	if again[0].Content != "sys" {
		t.Fatalf("internal state mutated via returned slice")
	}
}

func TestStoreUnknownSession(t *testing.T) {
	s := NewStore()
	called := false
	err := s.Update("missing", func(c *Conversation) error { called = true; return nil })
	if !errors.Is(err, ErrNotFound) || called {
		t.Fatalf("want ErrNotFound without calling fn, got %v called=%v", err, called)
	}
	if _, err := s.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get: want ErrNotFound, got %v", err)
	}
	if _, err := s.End("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("end: want ErrNotFound, got %v", err)
	}
}

func TestStoreUpdatePropagatesError(t *testing.T) {
	s := NewStore()
	id := s.Create("sys", "+1")
	boom := errors.New("boom")
	if err := s.Update(id, func(c *Conversation) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
}

func TestStoreEndRemovesSession(t *testing.T) {
	s := NewStore()
	id := s.Create("sys", "+1")
	_ = s.Update(id, func(c *Conversation) error {
		c.SetCallConnectionID("conn-1")
		c.AppendAssistant("hello")
		return nil
	})
	snap, err := s.End(id)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if snap.CallConnectionID != "conn-1" || len(snap.Turns) != 2 || snap.CallerID != "+1" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if s.Len() != 0 {
		t.Fatalf("session not removed")
	}
	if err := s.Update(id, func(c *Conversation) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update after end: %v", err)
	}
}

func TestStoreExpire(t *testing.T) {
	s := NewStore()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	old := s.Create("old", "+1")
	now = now.Add(3 * time.Hour)
	fresh := s.Create("fresh", "+2")

	expired := s.Expire(2 * time.Hour)
	if len(expired) != 1 || expired[0].ID != old {
		t.Fatalf("unexpected expired set: %+v", expired)
	}
	if _, err := s.Get(fresh); err != nil {
		t.Fatalf("fresh session should survive: %v", err)
	}
	if _, err := s.Get(old); !errors.Is(err, ErrNotFound) {
		t.Fatalf("old session should be gone")
	}
}

func TestStoreConcurrentDistinctSessions(t *testing.T) {
	s := NewStore()
	const sessions = 16
	const rounds = 25
	ids := make([]string, sessions)
	for i := range ids {
		ids[i] = s.Create(fmt.Sprintf("sys-%d", i), "+1")
	}

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				_ = s.Update(id, func(c *Conversation) error {
					c.AppendUser(fmt.Sprintf("u-%d-%d", i, r))
					c.AppendAssistant(fmt.Sprintf("a-%d-%d", i, r))
					return nil
				})
			}
		}(i, id)
	}
	wg.Wait()

	for i, id := range ids {
		msgs, _ := turnsOf(s, id)
		if len(msgs) != 1+2*rounds {
			t.Fatalf("session %d: want %d turns, got %d", i, 1+2*rounds, len(msgs))
		}
		for r := 0; r < rounds; r++ {
			u, a := msgs[1+2*r], msgs[2+2*r]
			if u.Content != fmt.Sprintf("u-%d-%d", i, r) || a.Content != fmt.Sprintf("a-%d-%d", i, r) {
				t.Fatalf("session %d round %d: foreign or reordered turns %+v %+v", i, r, u, a)
			}
		}
	}
}

func TestStoreConcurrentSameSessionNoLostUpdates(t *testing.T) {
	s := NewStore()
	id := s.Create("sys", "+1")
	const writers = 32

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			_ = s.Update(id, func(c *Conversation) error {
				c.AppendUser(fmt.Sprintf("u-%d", w))
				// yield inside the critical section to widen any race window
				time.Sleep(time.Millisecond)
				c.AppendAssistant(fmt.Sprintf("a-%d", w))
				return nil
			})
		}(w)
	}
	wg.Wait()

	msgs, _ := turnsOf(s, id)
	if len(msgs) != 1+2*writers {
		t.Fatalf("want %d turns, got %d", 1+2*writers, len(msgs))
	}
	for i := 1; i < len(msgs); i += 2 {
		if msgs[i].Role != llm.RoleUser || msgs[i+1].Role != llm.RoleAssistant {
			t.Fatalf("roles interleaved at %d: %+v %+v", i, msgs[i], msgs[i+1])
		}
		if msgs[i].Content[2:] != msgs[i+1].Content[2:] {
			t.Fatalf("pair split at %d: %q %q", i, msgs[i].Content, msgs[i+1].Content)
		}
	}
}

func turnsOf(s *Store, id string) ([]llm.Message, error) {
	snap, err := s.Get(id)
	return snap.Turns, err
}

func TestStoreSetCallConnectionIDDoesNotWaitForUpdate(t *testing.T) {
	s := NewStore()
	id := s.Create("sys", "+1")

	inUpdate := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.Update(id, func(c *Conversation) error {
			close(inUpdate)
			<-release
			return nil
		})
	}()
	<-inUpdate

	done := make(chan error, 1)
	go func() { done <- s.SetCallConnectionID(id, "conn-9") }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("set connection id: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("SetCallConnectionID blocked behind Update")
	}
	close(release)

	snap, _ := s.Get(id)
	if snap.CallConnectionID != "conn-9" {
		t.Fatalf("connection id not recorded: %+v", snap)
	}
	if err := s.SetCallConnectionID("missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	_ = s.SetCallConnectionID(id, "")
	if snap, _ := s.Get(id); snap.CallConnectionID != "conn-9" {
		t.Fatalf("empty id must not clear the connection")
	}
}
