package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"voice-intake/internal/llm"
	"voice-intake/internal/storage"
)

// Telegram rejects messages longer than this many characters.
const maxMessageLen = 4096

// Notifier posts finished call transcripts and reports to one operator chat.
type Notifier struct {
	s      sender
	chatID int64
}

func New(botToken string, chatID int64) (*Notifier, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return &Notifier{s: botAPISender{api: api}, chatID: chatID}, nil
}

// NotifyTranscript sends a readable rendition of an ended call.
func (n *Notifier) NotifyTranscript(_ context.Context, t storage.Transcript) error {
	return n.send(FormatTranscript(t))
}

// NotifyText sends free-form text, e.g. the daily report.
func (n *Notifier) NotifyText(_ context.Context, text string) error {
	return n.send(text)
}

func (n *Notifier) send(text string) error {
	for _, chunk := range splitMessage(text, maxMessageLen) {
		if _, err := n.s.Send(tgbotapi.NewMessage(n.chatID, chunk)); err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}
	}
	return nil
}

// FormatTranscript renders the caller/bot exchange; the system prompt is
// summarised by length only since it can be a full intake form.
func FormatTranscript(t storage.Transcript) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📞 Call %s to %s ended (%s)\n", t.SessionID, t.PhoneNumber, t.Reason)
	if !t.StartedAt.IsZero() && !t.EndedAt.IsZero() {
		fmt.Fprintf(&b, "Duration: %s\n", t.EndedAt.Sub(t.StartedAt).Round(time.Second))
	}
	b.WriteString("\n")
	for _, m := range t.Turns {
		switch m.Role {
		case llm.RoleSystem:
			fmt.Fprintf(&b, "[prompt: %d chars]\n", utf8.RuneCountInString(m.Content))
		case llm.RoleAssistant:
			fmt.Fprintf(&b, "🤖 %s\n", m.Content)
		case llm.RoleUser:
			fmt.Fprintf(&b, "🗣 %s\n", m.Content)
		}
	}
	return b.String()
}

func splitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var out []string
	runes := []rune(text)
	for len(runes) > 0 {
		n := limit
		if n > len(runes) {
			n = len(runes)
		} else if i := lastNewline(runes[:n]); i > 0 {
			n = i + 1
		}
		out = append(out, string(runes[:n]))
		runes = runes[n:]
	}
	return out
}

func lastNewline(rs []rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == '\n' {
			return i
		}
	}
	return -1
}
