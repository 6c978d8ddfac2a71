package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v6"
)

type LLMProvider string

const (
	ProviderAzure  LLMProvider = "azure"
	ProviderOpenAI LLMProvider = "openai"
	ProviderYandex LLMProvider = "yandex"
)

type Config struct {
	// Document analysis (OCR)
	CogServicesKey      string `env:"AZURE_COG_SERVICES_KEY,required,notEmpty"`
	CogServicesEndpoint string `env:"AZURE_COG_SERVICES_ENDPOINT,required,notEmpty"`

	// Call automation
	ACSConnectionString string `env:"ACS_CONNECTION_STRING,required,notEmpty"`
	ACSPhoneNumber      string `env:"ACS_PHONE_NUMBER,required,notEmpty"`

	// Chat completion
	OpenAIEndpoint       string `env:"OPENAI_ENDPOINT,required,notEmpty"`
	OpenAIKey            string `env:"OPENAI_KEY,required,notEmpty"`
	OpenAIDeploymentName string `env:"OPENAI_DEPLOYMENT_NAME,required,notEmpty"`

	// Public base URL used to build callback URLs
	HostName string `env:"HOST_NAME,required,notEmpty"`

	// LLM provider selection. "azure" uses the OPENAI_* settings above.
	LLMProvider      LLMProvider `env:"LLM_PROVIDER" envDefault:"azure"`
	OpenAIAPIVersion string      `env:"OPENAI_API_VERSION" envDefault:"2024-02-01"`
	YandexOAuthToken string      `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID   string      `env:"YANDEX_FOLDER_ID"`

	// HTTP
	ListenAddr     string        `env:"LISTEN_ADDR" envDefault:":8080"`
	StaticDir      string        `env:"STATIC_DIR" envDefault:"wwwroot"`
	MaxUploadBytes int64         `env:"MAX_UPLOAD_BYTES" envDefault:"20971520"`
	EventTimeout   time.Duration `env:"EVENT_TIMEOUT" envDefault:"60s"`

	// Speech
	VoiceName         string        `env:"VOICE_NAME" envDefault:"en-US-JennyMultilingualV2Neural"`
	EndSilenceTimeout time.Duration `env:"END_SILENCE_TIMEOUT" envDefault:"500ms"`

	// Prompts
	PromptPreamblePath string `env:"PROMPT_PREAMBLE_PATH"`

	// Sessions
	SessionIdleTTL       time.Duration `env:"SESSION_IDLE_TTL" envDefault:"2h"`
	SessionSweepSchedule string        `env:"SESSION_SWEEP_SCHEDULE" envDefault:"@every 10m"`
	DailyReportSchedule  string        `env:"DAILY_REPORT_SCHEDULE" envDefault:"0 21 * * *"`

	// Storage
	TranscriptFilePath string `env:"TRANSCRIPT_FILE_PATH" envDefault:"data/transcripts.jsonl"`

	// Telegram notifications (optional)
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   int64  `env:"TELEGRAM_CHAT_ID"`
}

// Load parses the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	switch cfg.LLMProvider {
	case ProviderAzure, ProviderOpenAI:
	case ProviderYandex:
		if cfg.YandexOAuthToken == "" || cfg.YandexFolderID == "" {
			return nil, fmt.Errorf("LLM_PROVIDER=yandex requires YANDEX_OAUTH_TOKEN and YANDEX_FOLDER_ID")
		}
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER: %q", cfg.LLMProvider)
	}
	return cfg, nil
}

func New() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}
