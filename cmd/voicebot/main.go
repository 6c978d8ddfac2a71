package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"voice-intake/internal/acs"
	"voice-intake/internal/config"
	"voice-intake/internal/docintel"
	"voice-intake/internal/llm"
	"voice-intake/internal/scheduler"
	"voice-intake/internal/server"
	"voice-intake/internal/session"
	"voice-intake/internal/storage"
	"voice-intake/internal/telegram"
	"voice-intake/internal/voicebot"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()

	llmClient, err := llm.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("failed to create llm client: %v", err)
	}

	calls, err := acs.New(acs.Config{ConnectionString: cfg.ACSConnectionString})
	if err != nil {
		log.Fatalf("failed to create call automation client: %v", err)
	}

	docs, err := docintel.New(docintel.Config{
		Endpoint: cfg.CogServicesEndpoint,
		Key:      cfg.CogServicesKey,
	})
	if err != nil {
		log.Fatalf("failed to create document analysis client: %v", err)
	}

	var rec storage.Recorder
	if cfg.TranscriptFilePath != "" {
		fr, err := storage.NewFileRecorder(cfg.TranscriptFilePath)
		if err != nil {
			log.Printf("failed to init transcript recorder: %v", err)
		} else {
			rec = fr
		}
	}

	// a nil *telegram.Notifier must not end up inside the interface
	var notifier voicebot.Notifier
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != 0 {
		n, err := telegram.New(cfg.TelegramBotToken, cfg.TelegramChatID)
		if err != nil {
			log.Printf("failed to init telegram notifier: %v", err)
		} else {
			notifier = n
		}
	}

	bot := voicebot.New(session.NewStore(), llmClient, calls, docs, rec, notifier, voicebot.Options{
		HostName:                  cfg.HostName,
		SourcePhoneNumber:         cfg.ACSPhoneNumber,
		CognitiveServicesEndpoint: cfg.CogServicesEndpoint,
		VoiceName:                 cfg.VoiceName,
		EndSilenceTimeout:         cfg.EndSilenceTimeout,
		EventTimeout:              cfg.EventTimeout,
		Preamble:                  voicebot.LoadPreamble(cfg.PromptPreamblePath),
	})

	sched := scheduler.New()
	if err := sched.Add("session-sweep", cfg.SessionSweepSchedule, func(ctx context.Context) error {
		_, err := bot.ExpireIdle(ctx, cfg.SessionIdleTTL)
		return err
	}); err != nil {
		log.Fatalf("failed to schedule session sweep: %v", err)
	}
	if rec != nil {
		if err := sched.Add("daily-report", cfg.DailyReportSchedule, func(ctx context.Context) error {
			_, err := bot.DailyReport(ctx, time.Now().UTC())
			return err
		}); err != nil {
			log.Fatalf("failed to schedule daily report: %v", err)
		}
	}
	sched.Start()

	ws := server.NewWebServer(bot, server.Config{
		Addr:           cfg.ListenAddr,
		StaticDir:      cfg.StaticDir,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	go func() {
		if err := ws.Start(); err != nil {
			log.Fatalf("❌ HTTP server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Printf("🛑 Shutting down...")
	if err := ws.Stop(); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	sched.Stop()
}
