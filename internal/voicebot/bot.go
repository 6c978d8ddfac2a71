// Package voicebot ties call-automation callbacks to per-call chat sessions:
// every caller utterance becomes a user turn, the model's answer becomes an
// assistant turn, and the answer is spoken back before listening again.
package voicebot

import (
	"context"
	"io"
	"time"

	"voice-intake/internal/acs"
	"voice-intake/internal/llm"
	"voice-intake/internal/session"
	"voice-intake/internal/storage"
)

// CallAutomation is the subset of the call-automation service the bot drives.
type CallAutomation interface {
	CreateCall(ctx context.Context, params acs.CreateCallParams) (*acs.CallConnection, error)
	StartRecognizing(ctx context.Context, callConnectionID string, params acs.RecognizeParams) error
	HangUp(ctx context.Context, callConnectionID string) error
}

// DocumentAnalyzer extracts plain text from an uploaded document.
type DocumentAnalyzer interface {
	AnalyzeText(ctx context.Context, document io.Reader) (string, error)
}

// Notifier receives finished transcripts and reports. Optional.
type Notifier interface {
	NotifyTranscript(ctx context.Context, t storage.Transcript) error
	NotifyText(ctx context.Context, text string) error
}

type Options struct {
	// HostName is the externally reachable base URL, e.g. https://bot.example.com.
	HostName                  string
	SourcePhoneNumber         string
	CognitiveServicesEndpoint string
	VoiceName                 string
	EndSilenceTimeout         time.Duration
	// EventTimeout bounds the handling of a single callback event.
	EventTimeout time.Duration
	// Preamble is prepended to extracted document text.
	Preamble string
	// FallbackPrompt is spoken when a reply to the caller could not be generated.
	FallbackPrompt string
	// ConnectFallbackPrompt is spoken when the opening turn could not be generated.
	ConnectFallbackPrompt string
}

const (
	DefaultVoiceName      = "en-US-JennyMultilingualV2Neural"
	DefaultSilenceTimeout = 500 * time.Millisecond
	DefaultEventTimeout   = 60 * time.Second
	DefaultFallbackPrompt = "Sorry, I didn't catch that. Could you say it again?"

	DefaultConnectFallbackPrompt = "Hello, this is the clinic calling about your intake form. Please say hello when you are ready."
)

type Bot struct {
	store    *session.Store
	llm      llm.Client
	calls    CallAutomation
	docs     DocumentAnalyzer
	recorder storage.Recorder
	notifier Notifier
	opts     Options
	now      func() time.Time
}

// New wires a bot. recorder and notifier may be nil.
func New(store *session.Store, llmClient llm.Client, calls CallAutomation, docs DocumentAnalyzer, recorder storage.Recorder, notifier Notifier, opts Options) *Bot {
	if opts.VoiceName == "" {
		opts.VoiceName = DefaultVoiceName
	}
	if opts.EndSilenceTimeout <= 0 {
		opts.EndSilenceTimeout = DefaultSilenceTimeout
	}
	if opts.EventTimeout <= 0 {
		opts.EventTimeout = DefaultEventTimeout
	}
	if opts.Preamble == "" {
		opts.Preamble = DefaultPreamble
	}
	if opts.FallbackPrompt == "" {
		opts.FallbackPrompt = DefaultFallbackPrompt
	}
	if opts.ConnectFallbackPrompt == "" {
		opts.ConnectFallbackPrompt = DefaultConnectFallbackPrompt
	}
	return &Bot{
		store:    store,
		llm:      llmClient,
		calls:    calls,
		docs:     docs,
		recorder: recorder,
		notifier: notifier,
		opts:     opts,
		now:      time.Now,
	}
}

// Transcript returns the live state of a session.
func (b *Bot) Transcript(sessionID string) (session.Snapshot, error) {
	return b.store.Get(sessionID)
}

func (b *Bot) ActiveSessions() int {
	return b.store.Len()
}
