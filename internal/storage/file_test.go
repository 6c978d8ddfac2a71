package storage

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"voice-intake/internal/llm"
)

func TestFileRecorder_AppendAndLoad(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "nested", "transcripts.jsonl")
	rec, err := NewFileRecorder(p)
	if err != nil {
		t.Fatalf("init recorder: %v", err)
	}

	t1 := Transcript{
		SessionID: "a", PhoneNumber: "+1", Reason: ReasonDisconnected,
		StartedAt: time.Unix(1, 0).UTC(), EndedAt: time.Unix(2, 0).UTC(),
		Turns: []llm.Message{{Role: llm.RoleSystem, Content: "sys"}, {Role: llm.RoleAssistant, Content: "hi"}, {Role: llm.RoleUser, Content: "yo"}},
	}
	t2 := Transcript{SessionID: "b", PhoneNumber: "+2", Reason: ReasonExpired}
	if err := rec.AppendTranscript(t1); err != nil {
		t.Fatalf("append1: %v", err)
	}
	if err := rec.AppendTranscript(t2); err != nil {
		t.Fatalf("append2: %v", err)
	}

	got, err := rec.LoadTranscripts()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 || got[0].SessionID != "a" || got[1].SessionID != "b" {
		t.Fatalf("order mismatch: %+v", got)
	}
	if len(got[0].Turns) != 3 || got[0].Turns[2].Content != "yo" || got[0].UserTurns() != 1 {
		t.Fatalf("turns not round-tripped: %+v", got[0].Turns)
	}

	st, err := os.Stat(p)
	if err != nil || st.Size() == 0 {
		t.Fatalf("file not written")
	}
}

func TestFileRecorder_SkipsCorruptLines(t *testing.T) {
	p := filepath.Join(t.TempDir(), "t.jsonl")
	if err := os.WriteFile(p, []byte("{not json}\n\n{\"session_id\":\"ok\"}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	rec, err := NewFileRecorder(p)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	got, err := rec.LoadTranscripts()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 || got[0].SessionID != "ok" {
		t.Fatalf("unexpected: %+v", got)
	}
}

func TestFileRecorder_ConcurrentAppends(t *testing.T) {
	rec, err := NewFileRecorder(filepath.Join(t.TempDir(), "t.jsonl"))
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = rec.AppendTranscript(Transcript{SessionID: "x", Turns: []llm.Message{{Role: llm.RoleSystem, Content: "p"}}})
		}()
	}
	wg.Wait()
	got, _ := rec.LoadTranscripts()
	if len(got) != 20 {
		t.Fatalf("want 20 transcripts, got %d", len(got))
	}
}
