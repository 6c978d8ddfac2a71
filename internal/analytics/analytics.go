package analytics

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"voice-intake/internal/storage"
)

// DailyStats summarises the calls that ended on one day.
type DailyStats struct {
	Date             string         `json:"date"`
	TotalCalls       int            `json:"total_calls"`
	ConnectedCalls   int            `json:"connected_calls"`
	UniqueNumbers    int            `json:"unique_numbers"`
	CallerTurns      int            `json:"caller_turns"`
	AvgCallerTurns   float64        `json:"avg_caller_turns"`
	AvgDuration      time.Duration  `json:"avg_duration_ns"`
	CallsByEndReason map[string]int `json:"calls_by_end_reason"`
}

// AnalyzeDailyTranscripts aggregates transcripts whose EndedAt falls on targetDate.
func AnalyzeDailyTranscripts(transcripts []storage.Transcript, targetDate time.Time) *DailyStats {
	startOfDay := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), 0, 0, 0, 0, targetDate.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)

	stats := &DailyStats{
		Date:             startOfDay.Format("2006-01-02"),
		CallsByEndReason: make(map[string]int),
	}

	numbers := make(map[string]bool)
	var totalDuration time.Duration

	for _, t := range transcripts {
		if t.EndedAt.Before(startOfDay) || !t.EndedAt.Before(endOfDay) {
			continue
		}
		stats.TotalCalls++
		stats.CallsByEndReason[t.Reason]++
		numbers[t.PhoneNumber] = true
		// a call that produced an assistant turn reached CallConnected
		if len(t.Turns) > 1 {
			stats.ConnectedCalls++
		}
		stats.CallerTurns += t.UserTurns()
		if !t.StartedAt.IsZero() && t.EndedAt.After(t.StartedAt) {
			totalDuration += t.EndedAt.Sub(t.StartedAt)
		}
	}

	stats.UniqueNumbers = len(numbers)
	if stats.TotalCalls > 0 {
		stats.AvgCallerTurns = float64(stats.CallerTurns) / float64(stats.TotalCalls)
		stats.AvgDuration = totalDuration / time.Duration(stats.TotalCalls)
	}
	return stats
}

// GenerateReportSummary renders a short plain-text report.
func (ds *DailyStats) GenerateReportSummary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Voice intake report for %s\n\n", ds.Date)
	fmt.Fprintf(&b, "- Calls: %d (connected: %d)\n", ds.TotalCalls, ds.ConnectedCalls)
	fmt.Fprintf(&b, "- Unique numbers: %d\n", ds.UniqueNumbers)
	fmt.Fprintf(&b, "- Caller turns: %d (avg %.1f per call)\n", ds.CallerTurns, ds.AvgCallerTurns)
	fmt.Fprintf(&b, "- Avg duration: %s\n", ds.AvgDuration.Round(time.Second))

	if len(ds.CallsByEndReason) > 0 {
		reasons := make([]string, 0, len(ds.CallsByEndReason))
		for r := range ds.CallsByEndReason {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)
		b.WriteString("\nEnd reasons:\n")
		for _, r := range reasons {
			fmt.Fprintf(&b, "- %s: %d\n", r, ds.CallsByEndReason[r])
		}
	}
	return b.String()
}

func (ds *DailyStats) ToJSON() (string, error) {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
