package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"voice-intake/internal/voicebot"
)

// PlaceCallParams are the arguments of the place_call tool.
type PlaceCallParams struct {
	PhoneNumber string `json:"phoneNumber" mcp:"phone number to dial in E.164 format, e.g. +15551234567"`
	Prompt      string `json:"prompt" mcp:"system prompt that drives the conversation"`
}

type GetTranscriptParams struct {
	SessionID string `json:"sessionId" mcp:"session id returned by place_call"`
}

func (ws *WebServer) newMCPServer() *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "voice-intake",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "place_call",
		Description: "Place an outbound intake call driven by the given system prompt",
	}, ws.PlaceCallTool)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_transcript",
		Description: "Get the current transcript of an active call session",
	}, ws.GetTranscriptTool)

	return server
}

func (ws *WebServer) mcpHandler() http.Handler {
	server := ws.newMCPServer()
	return mcp.NewSSEHandler(func(*http.Request) *mcp.Server { return server })
}

func (ws *WebServer) PlaceCallTool(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParamsFor[PlaceCallParams]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments
	res, err := ws.bot.PlaceCall(ctx, voicebot.CallRequest{PhoneNumber: args.PhoneNumber, Prompt: args.Prompt})
	if err != nil {
		return toolError(fmt.Sprintf("❌ Failed to place call: %v", err)), nil
	}

	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("📞 Call placed to %s\nSession: %s\nCall connection: %s",
				args.PhoneNumber, res.SessionID, res.CallConnectionID)},
		},
	}, nil
}

func (ws *WebServer) GetTranscriptTool(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParamsFor[GetTranscriptParams]) (*mcp.CallToolResultFor[any], error) {
	snap, err := ws.bot.Transcript(params.Arguments.SessionID)
	if err != nil {
		return toolError(fmt.Sprintf("❌ %v", err)), nil
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil
}

func toolError(text string) *mcp.CallToolResultFor[any] {
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}
