package voicebot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"voice-intake/internal/acs"
	"voice-intake/internal/llm"
	"voice-intake/internal/session"
	"voice-intake/internal/storage"
)

// BatchResult counts what happened to each event of one callback delivery.
type BatchResult struct {
	Handled int
	Ignored int
	Failed  int
}

// HandleEvents processes a callback batch in order. A failing event is
// logged and counted; it never stops the rest of the batch. Processing is
// detached from ctx cancellation so a dropped webhook connection does not
// abort a turn halfway through.
func (b *Bot) HandleEvents(ctx context.Context, sessionID, callerID string, events []acs.CloudEvent) BatchResult {
	var res BatchResult
	base := context.WithoutCancel(ctx)
	for _, ev := range events {
		evCtx, cancel := context.WithTimeout(base, b.opts.EventTimeout)
		handled, err := b.handleEvent(evCtx, sessionID, callerID, ev)
		cancel()
		switch {
		case err != nil:
			res.Failed++
			log.Printf("❌ Event %s (%s) for session %s failed: %v", ev.Type, ev.ID, sessionID, err)
		case handled:
			res.Handled++
		default:
			res.Ignored++
		}
	}
	return res
}

func (b *Bot) handleEvent(ctx context.Context, sessionID, callerID string, ev acs.CloudEvent) (bool, error) {
	data, err := ev.ParseData()
	if err != nil {
		return false, err
	}

	switch ev.Type {
	case acs.EventCallConnected:
		log.Printf("🔔 Call connected: session %s, connection %s", sessionID, data.CallConnectionID)
		return true, b.store.Update(sessionID, func(c *session.Conversation) error {
			c.SetCallConnectionID(data.CallConnectionID)
			return b.respond(ctx, c, callerID, "")
		})

	case acs.EventRecognizeCompleted:
		speech, ok := data.Speech()
		if !ok {
			return false, nil
		}
		if strings.TrimSpace(speech) == "" {
			return true, b.repeatLast(ctx, sessionID, callerID, data.CallConnectionID, "")
		}
		log.Printf("🗣 Recognized speech in session %s: %q", sessionID, speech)
		return true, b.store.Update(sessionID, func(c *session.Conversation) error {
			c.SetCallConnectionID(data.CallConnectionID)
			if _, opened := c.LastAssistant(); !opened {
				// the opening question was never generated, so the speech answers nothing
				log.Printf("🔁 Session %s has no opening turn yet, dropping %q", sessionID, speech)
				return b.respond(ctx, c, callerID, "")
			}
			return b.respond(ctx, c, callerID, speech)
		})

	case acs.EventRecognizeFailed:
		// Typically the caller stayed silent past the timeout.
		return true, b.repeatLast(ctx, sessionID, callerID, data.CallConnectionID, "")

	case acs.EventPlayFailed:
		if data.OperationContext == opReplay {
			log.Printf("❌ Replayed prompt failed to play in session %s, waiting for teardown", sessionID)
			return true, nil
		}
		return true, b.repeatLast(ctx, sessionID, callerID, data.CallConnectionID, opReplay)

	case acs.EventCallDisconnected:
		return true, b.endSession(ctx, sessionID, storage.ReasonDisconnected)

	case acs.EventCreateCallFailed:
		return true, b.endSession(ctx, sessionID, storage.ReasonCallFailed)

	default:
		return false, nil
	}
}

// opReplay tags a replayed prompt so a second PlayFailed is not replayed again.
const opReplay = "replay"

// repeatLast replays the last assistant turn and listens again without
// touching the transcript. A session that never got its opening turn retries
// generating it instead.
func (b *Bot) repeatLast(ctx context.Context, sessionID, callerID, callConnectionID, opContext string) error {
	return b.store.Update(sessionID, func(c *session.Conversation) error {
		c.SetCallConnectionID(callConnectionID)
		last, ok := c.LastAssistant()
		if !ok {
			return b.respond(ctx, c, callerID, "")
		}
		return b.speakAndListen(ctx, c.CallConnectionID(), b.target(c, callerID), last, opContext)
	})
}

// respond generates the next assistant turn, appends it and speaks it. When
// utterance is non-empty it is appended as a user turn first. Turns are only
// appended once the model has answered, so a failed completion leaves the
// transcript unchanged; the caller hears a fallback prompt instead. An empty
// utterance asks for the opening turn, whose fallback does not pretend the
// caller said something.
func (b *Bot) respond(ctx context.Context, c *session.Conversation, callerID, utterance string) error {
	msgs := c.Messages()
	fallback := b.opts.ConnectFallbackPrompt
	if utterance != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: utterance})
		fallback = b.opts.FallbackPrompt
	}
	target := b.target(c, callerID)

	resp, err := b.llm.Generate(ctx, msgs)
	if err != nil {
		genErr := fmt.Errorf("generate reply: %w", err)
		if speakErr := b.speakAndListen(ctx, c.CallConnectionID(), target, fallback, ""); speakErr != nil {
			return errors.Join(genErr, speakErr)
		}
		return genErr
	}

	if utterance != "" {
		c.AppendUser(utterance)
	}
	c.AppendAssistant(resp.Content)
	return b.speakAndListen(ctx, c.CallConnectionID(), target, resp.Content, "")
}

// speakAndListen plays text to the caller and re-arms speech recognition in
// one request. The recognition result arrives later as its own event.
func (b *Bot) speakAndListen(ctx context.Context, callConnectionID, target, text, opContext string) error {
	if callConnectionID == "" {
		return fmt.Errorf("no call connection for target %s", target)
	}
	err := b.calls.StartRecognizing(ctx, callConnectionID, acs.RecognizeParams{
		Target:            target,
		Prompt:            text,
		VoiceName:         b.opts.VoiceName,
		EndSilenceTimeout: b.opts.EndSilenceTimeout,
		OperationContext:  opContext,
	})
	if err != nil {
		return fmt.Errorf("speak and listen: %w", err)
	}
	return nil
}

func (b *Bot) target(c *session.Conversation, callerID string) string {
	if callerID != "" {
		return callerID
	}
	return c.CallerID()
}

// endSession removes the session and hands its transcript to the recorder
// and notifier.
func (b *Bot) endSession(ctx context.Context, sessionID, reason string) error {
	snap, err := b.store.End(sessionID)
	if err != nil {
		return err
	}
	log.Printf("📴 Session %s ended (%s) after %d turns", sessionID, reason, len(snap.Turns))
	return b.archive(ctx, snap, reason)
}

func (b *Bot) archive(ctx context.Context, snap session.Snapshot, reason string) error {
	t := storage.Transcript{
		SessionID:        snap.ID,
		CallConnectionID: snap.CallConnectionID,
		PhoneNumber:      snap.CallerID,
		StartedAt:        snap.CreatedAt,
		EndedAt:          b.now(),
		Reason:           reason,
		Turns:            snap.Turns,
	}
	var errs []error
	if b.recorder != nil {
		if err := b.recorder.AppendTranscript(t); err != nil {
			errs = append(errs, fmt.Errorf("record transcript: %w", err))
		}
	}
	if b.notifier != nil {
		if err := b.notifier.NotifyTranscript(ctx, t); err != nil {
			errs = append(errs, fmt.Errorf("notify transcript: %w", err))
		}
	}
	return errors.Join(errs...)
}
