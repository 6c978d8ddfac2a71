package voicebot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"

	"voice-intake/internal/acs"
)

var ErrInvalidRequest = errors.New("invalid request")

type CallRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Prompt      string `json:"prompt"`
}

func (r CallRequest) Validate() error {
	var missing []string
	if strings.TrimSpace(r.PhoneNumber) == "" {
		missing = append(missing, "phoneNumber")
	}
	if strings.TrimSpace(r.Prompt) == "" {
		missing = append(missing, "prompt")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s required", ErrInvalidRequest, strings.Join(missing, " and "))
	}
	return nil
}

type CallResult struct {
	SessionID        string `json:"sessionId"`
	CallConnectionID string `json:"callConnectionId"`
}

// PlaceCall seeds a session with the system prompt and asks the call-automation
// service to dial the number. It returns once the dial request is accepted.
func (b *Bot) PlaceCall(ctx context.Context, req CallRequest) (CallResult, error) {
	if err := req.Validate(); err != nil {
		return CallResult{}, err
	}
	phone := strings.TrimSpace(req.PhoneNumber)

	id := b.store.Create(req.Prompt, phone)
	conn, err := b.calls.CreateCall(ctx, acs.CreateCallParams{
		Target:                    phone,
		Source:                    b.opts.SourcePhoneNumber,
		CallbackURL:               b.CallbackURL(id, phone),
		CognitiveServicesEndpoint: b.opts.CognitiveServicesEndpoint,
	})
	if err != nil {
		_, _ = b.store.End(id)
		return CallResult{}, fmt.Errorf("create call: %w", err)
	}

	// CallConnected may already be running this session's first turn
	if err := b.store.SetCallConnectionID(id, conn.CallConnectionID); err != nil {
		log.Printf("⚠️ Session %s ended before call %s was recorded: %v", id, conn.CallConnectionID, err)
	}
	log.Printf("📞 Placed call %s to %s (session %s)", conn.CallConnectionID, phone, id)
	return CallResult{SessionID: id, CallConnectionID: conn.CallConnectionID}, nil
}

// CallbackURL is {host}/api/callbacks/{sessionID}?callerId={phone}.
func (b *Bot) CallbackURL(sessionID, phone string) string {
	return strings.TrimRight(b.opts.HostName, "/") +
		"/api/callbacks/" + url.PathEscape(sessionID) +
		"?callerId=" + url.QueryEscape(phone)
}
