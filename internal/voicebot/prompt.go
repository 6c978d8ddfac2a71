package voicebot

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
)

// DefaultPreamble instructs the model to walk the caller through an intake
// form; the extracted form text follows it directly.
const DefaultPreamble = "You are a receptionist at a health clinic whose primary goal is to help me, " +
	"a patient, fill out their patient intake forms. You are friendly and concise. " +
	"For each question in the form ask me a question get the information, then wait for my answer. " +
	"For example, start 'What is your name?', then I will respond 'John Smith', " +
	"then ask 'What is your date of birth?' and I will respond, 'Jan 4, 1999'." +
	"\n\nPATIENT INTAKE FORM:\n\n"

// LoadPreamble reads a preamble override, falling back to DefaultPreamble.
func LoadPreamble(path string) string {
	if path == "" {
		return DefaultPreamble
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("prompt preamble not found or unreadable at %s: %v", path, err)
		return DefaultPreamble
	}
	return string(data)
}

// GeneratePrompt runs OCR over the document and returns the suggested system
// prompt: the preamble followed by the extracted text.
func (b *Bot) GeneratePrompt(ctx context.Context, document io.Reader) (string, error) {
	text, err := b.docs.AnalyzeText(ctx, document)
	if err != nil {
		return "", fmt.Errorf("analyze document: %w", err)
	}
	return b.opts.Preamble + text, nil
}
