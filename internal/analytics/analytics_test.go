package analytics

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"voice-intake/internal/llm"
	"voice-intake/internal/storage"
)

func turns(userTurns int) []llm.Message {
	out := []llm.Message{{Role: llm.RoleSystem, Content: "sys"}, {Role: llm.RoleAssistant, Content: "q"}}
	for i := 0; i < userTurns; i++ {
		out = append(out, llm.Message{Role: llm.RoleUser, Content: "a"}, llm.Message{Role: llm.RoleAssistant, Content: "q"})
	}
	return out
}

func TestAnalyzeDailyTranscripts(t *testing.T) {
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	transcripts := []storage.Transcript{
		{PhoneNumber: "+1", Reason: storage.ReasonDisconnected, StartedAt: day.Add(time.Hour), EndedAt: day.Add(time.Hour + 2*time.Minute), Turns: turns(3)},
		{PhoneNumber: "+1", Reason: storage.ReasonDisconnected, StartedAt: day.Add(2 * time.Hour), EndedAt: day.Add(2*time.Hour + 4*time.Minute), Turns: turns(1)},
		{PhoneNumber: "+2", Reason: storage.ReasonCallFailed, StartedAt: day.Add(3 * time.Hour), EndedAt: day.Add(3 * time.Hour), Turns: []llm.Message{{Role: llm.RoleSystem, Content: "sys"}}},
		// next day, excluded
		{PhoneNumber: "+3", Reason: storage.ReasonExpired, EndedAt: day.AddDate(0, 0, 1), Turns: turns(5)},
	}

	stats := AnalyzeDailyTranscripts(transcripts, day.Add(13*time.Hour))

	if stats.Date != "2024-01-15" {
		t.Errorf("unexpected date %q", stats.Date)
	}
	if stats.TotalCalls != 3 || stats.ConnectedCalls != 2 || stats.UniqueNumbers != 2 {
		t.Errorf("unexpected counts: %+v", stats)
	}
	if stats.CallerTurns != 4 {
		t.Errorf("want 4 caller turns, got %d", stats.CallerTurns)
	}
	if stats.AvgDuration != 2*time.Minute {
		t.Errorf("want avg duration 2m, got %s", stats.AvgDuration)
	}
	if stats.CallsByEndReason[storage.ReasonDisconnected] != 2 || stats.CallsByEndReason[storage.ReasonCallFailed] != 1 {
		t.Errorf("unexpected reasons: %+v", stats.CallsByEndReason)
	}

	summary := stats.GenerateReportSummary()
	for _, want := range []string{"2024-01-15", "Calls: 3 (connected: 2)", "call_failed: 1", "disconnected: 2"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}

	js, err := stats.ToJSON()
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(js), &decoded); err != nil || decoded["total_calls"] != float64(3) {
		t.Fatalf("unexpected json: %s", js)
	}
}

func TestAnalyzeDailyTranscripts_Empty(t *testing.T) {
	stats := AnalyzeDailyTranscripts(nil, time.Now())
	if stats.TotalCalls != 0 || stats.AvgCallerTurns != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if !strings.Contains(stats.GenerateReportSummary(), "Calls: 0") {
		t.Fatalf("summary should render zero calls")
	}
}
