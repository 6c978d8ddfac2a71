package voicebot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"voice-intake/internal/analytics"
	"voice-intake/internal/storage"
)

// ExpireIdle ends sessions with no activity for ttl, hangs up calls that may
// still be open and archives the transcripts. It returns how many expired.
func (b *Bot) ExpireIdle(ctx context.Context, ttl time.Duration) (int, error) {
	expired := b.store.Expire(ttl)
	var errs []error
	for _, snap := range expired {
		if snap.CallConnectionID != "" {
			if err := b.calls.HangUp(ctx, snap.CallConnectionID); err != nil {
				// the call has usually already ended on the provider side
				log.Printf("hang up %s: %v", snap.CallConnectionID, err)
			}
		}
		if err := b.archive(ctx, snap, storage.ReasonExpired); err != nil {
			errs = append(errs, err)
		}
	}
	if len(expired) > 0 {
		log.Printf("🧹 Expired %d idle sessions", len(expired))
	}
	return len(expired), errors.Join(errs...)
}

var ErrNoRecorder = errors.New("no transcript recorder configured")

// DailyStats aggregates the recorded transcripts that ended on day.
func (b *Bot) DailyStats(day time.Time) (*analytics.DailyStats, error) {
	if b.recorder == nil {
		return nil, ErrNoRecorder
	}
	transcripts, err := b.recorder.LoadTranscripts()
	if err != nil {
		return nil, fmt.Errorf("load transcripts: %w", err)
	}
	return analytics.AnalyzeDailyTranscripts(transcripts, day), nil
}

// DailyReport summarises transcripts that ended on day and sends the summary
// to the notifier when one is configured.
func (b *Bot) DailyReport(ctx context.Context, day time.Time) (*analytics.DailyStats, error) {
	stats, err := b.DailyStats(day)
	if err != nil {
		return nil, fmt.Errorf("daily report: %w", err)
	}
	summary := stats.GenerateReportSummary()
	log.Printf("📊 %s", summary)
	if b.notifier != nil {
		if err := b.notifier.NotifyText(ctx, summary); err != nil {
			return stats, fmt.Errorf("send daily report: %w", err)
		}
	}
	return stats, nil
}
