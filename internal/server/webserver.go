// Package server exposes the voice bot over HTTP: the operator endpoints,
// the call-automation callback, an MCP endpoint and the static front-end.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"voice-intake/internal/acs"
	"voice-intake/internal/analytics"
	"voice-intake/internal/session"
	"voice-intake/internal/voicebot"
)

// VoiceBot is what the HTTP layer needs from the bot.
type VoiceBot interface {
	GeneratePrompt(ctx context.Context, document io.Reader) (string, error)
	PlaceCall(ctx context.Context, req voicebot.CallRequest) (voicebot.CallResult, error)
	HandleEvents(ctx context.Context, sessionID, callerID string, events []acs.CloudEvent) voicebot.BatchResult
	Transcript(sessionID string) (session.Snapshot, error)
	ActiveSessions() int
	DailyStats(day time.Time) (*analytics.DailyStats, error)
}

type Config struct {
	Addr           string
	StaticDir      string
	MaxUploadBytes int64
}

const defaultMaxUploadBytes = 20 << 20

// WebServer serves the voice bot API
type WebServer struct {
	bot       VoiceBot
	cfg       Config
	server    *http.Server
	startTime time.Time
}

func NewWebServer(bot VoiceBot, cfg Config) *WebServer {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	return &WebServer{
		bot:       bot,
		cfg:       cfg,
		startTime: time.Now(),
	}
}

// Handler builds the route table.
func (ws *WebServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/generate_prompt", ws.handleGeneratePrompt)
	mux.HandleFunc("POST /api/call", ws.handleCall)
	mux.HandleFunc("POST /api/callbacks/{sessionId}", ws.handleCallback)
	mux.HandleFunc("GET /api/status", ws.handleStatus)
	mux.HandleFunc("GET /api/sessions/{sessionId}", ws.handleSession)
	mux.HandleFunc("GET /api/reports/daily", ws.handleDailyReport)
	mux.Handle("/mcp", ws.mcpHandler())
	if ws.cfg.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(ws.cfg.StaticDir)))
	}
	return mux
}

// Start blocks serving until Stop is called.
func (ws *WebServer) Start() error {
	ws.server = &http.Server{
		Addr:              ws.cfg.Addr,
		Handler:           ws.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		// no WriteTimeout: the MCP SSE stream is long-lived
		IdleTimeout: 60 * time.Second,
	}

	log.Printf("🌐 Starting voice bot web server on %s", ws.cfg.Addr)
	err := ws.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (ws *WebServer) Stop() error {
	if ws.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return ws.server.Shutdown(ctx)
}

func (ws *WebServer) handleGeneratePrompt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, ws.cfg.MaxUploadBytes)

	document, err := firstFile(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Upload exceeds size limit", http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	prompt, err := ws.bot.GeneratePrompt(r.Context(), bytes.NewReader(document))
	if err != nil {
		log.Printf("❌ Generate prompt failed: %v", err)
		http.Error(w, "Document analysis failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, prompt)
}

// firstFile returns the contents of the first file part of a multipart body,
// whatever its field name.
func firstFile(r *http.Request) ([]byte, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, errors.New("multipart/form-data body with a file is required")
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, errors.New("no file uploaded")
		}
		if err != nil {
			return nil, err
		}
		if part.FileName() == "" {
			_ = drain(part)
			continue
		}
		defer part.Close()
		return io.ReadAll(part)
	}
}

func drain(p *multipart.Part) error {
	defer p.Close()
	_, err := io.Copy(io.Discard, p)
	return err
}

func (ws *WebServer) handleCall(w http.ResponseWriter, r *http.Request) {
	var req voicebot.CallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON request: "+err.Error(), http.StatusBadRequest)
		return
	}

	res, err := ws.bot.PlaceCall(r.Context(), req)
	switch {
	case errors.Is(err, voicebot.ErrInvalidRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		log.Printf("❌ Place call to %s failed: %v", req.PhoneNumber, err)
		http.Error(w, "Failed to place call: "+err.Error(), http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (ws *WebServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")
	callerID := r.URL.Query().Get("callerId")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	events, err := acs.DecodeEvents(body)
	if err != nil {
		http.Error(w, "Invalid event payload: "+err.Error(), http.StatusBadRequest)
		return
	}

	res := ws.bot.HandleEvents(r.Context(), sessionID, callerID, events)
	writeJSON(w, http.StatusOK, map[string]int{
		"handled": res.Handled,
		"ignored": res.Ignored,
		"failed":  res.Failed,
	})
}

func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"service":        "voice-intake",
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime":         time.Since(ws.startTime).String(),
		"activeSessions": ws.bot.ActiveSessions(),
	})
}

func (ws *WebServer) handleSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("sessionId"))
	snap, err := ws.bot.Transcript(id)
	if errors.Is(err, session.ErrNotFound) {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleDailyReport serves the call statistics of ?date=YYYY-MM-DD (UTC),
// defaulting to today.
func (ws *WebServer) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	day := time.Now().UTC()
	if v := r.URL.Query().Get("date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			http.Error(w, "Invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		day = parsed
	}

	stats, err := ws.bot.DailyStats(day)
	if errors.Is(err, voicebot.ErrNoRecorder) {
		http.Error(w, "Transcript recording is disabled", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("❌ Daily stats failed: %v", err)
		http.Error(w, "Failed to load transcripts", http.StatusInternalServerError)
		return
	}
	body, err := stats.ToJSON()
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}
