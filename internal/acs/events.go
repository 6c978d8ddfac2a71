package acs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Identifier is the wire form of a communication participant.
type Identifier struct {
	RawID       string       `json:"rawId,omitempty"`
	Kind        string       `json:"kind,omitempty"`
	PhoneNumber *PhoneNumber `json:"phoneNumber,omitempty"`
}

type PhoneNumber struct {
	Value string `json:"value"`
}

// PhoneIdentifier builds the identifier for a PSTN participant.
func PhoneIdentifier(number string) Identifier {
	return Identifier{
		RawID:       "4:" + number,
		Kind:        "phoneNumber",
		PhoneNumber: &PhoneNumber{Value: number},
	}
}

// Event types posted to the callback URL.
const (
	EventCallConnected      = "Microsoft.Communication.CallConnected"
	EventCallDisconnected   = "Microsoft.Communication.CallDisconnected"
	EventCreateCallFailed   = "Microsoft.Communication.CreateCallFailed"
	EventRecognizeCompleted = "Microsoft.Communication.RecognizeCompleted"
	EventRecognizeFailed    = "Microsoft.Communication.RecognizeFailed"
	EventPlayFailed         = "Microsoft.Communication.PlayFailed"
)

// CloudEvent is a CloudEvents 1.0 envelope in JSON structured mode.
type CloudEvent struct {
	ID              string          `json:"id"`
	Source          string          `json:"source"`
	Type            string          `json:"type"`
	Subject         string          `json:"subject,omitempty"`
	Time            time.Time       `json:"time,omitempty"`
	SpecVersion     string          `json:"specversion"`
	DataContentType string          `json:"datacontenttype,omitempty"`
	Data            json.RawMessage `json:"data,omitempty"`
}

type ResultInformation struct {
	Code    int    `json:"code"`
	SubCode int    `json:"subCode"`
	Message string `json:"message"`
}

// EventData holds the fields shared by all call-automation events plus the
// recognition payload carried by RecognizeCompleted.
type EventData struct {
	CallConnectionID  string             `json:"callConnectionId"`
	ServerCallID      string             `json:"serverCallId"`
	CorrelationID     string             `json:"correlationId"`
	OperationContext  string             `json:"operationContext"`
	ResultInformation *ResultInformation `json:"resultInformation,omitempty"`
	RecognitionType   string             `json:"recognitionType,omitempty"`
	SpeechResult      *SpeechResult      `json:"speechResult,omitempty"`
}

type SpeechResult struct {
	Speech     string  `json:"speech"`
	Confidence float64 `json:"confidence,omitempty"`
}

// ParseData decodes the event's data payload.
func (e CloudEvent) ParseData() (EventData, error) {
	var d EventData
	if len(e.Data) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(e.Data, &d); err != nil {
		return d, fmt.Errorf("decode %s data: %w", e.Type, err)
	}
	return d, nil
}

// Speech returns the recognized utterance of a speech RecognizeCompleted event.
func (d EventData) Speech() (string, bool) {
	if d.RecognitionType != "speech" || d.SpeechResult == nil {
		return "", false
	}
	return d.SpeechResult.Speech, true
}

// DecodeEvents accepts either a JSON array of events or a single event object.
func DecodeEvents(body []byte) ([]CloudEvent, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty event payload")
	}
	if trimmed[0] == '{' {
		var ev CloudEvent
		if err := json.Unmarshal(trimmed, &ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		return []CloudEvent{ev}, nil
	}
	var events []CloudEvent
	if err := json.Unmarshal(trimmed, &events); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	return events, nil
}
