package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// Config holds every runtime option of the bot. Values come from an
// optional config/config.yaml overridden by environment variables, so
// container deployments can stay file-free.
type Config struct {
	Port           string `yaml:"port"`
	UseMemoryStore bool   `yaml:"use_memory_store"`

	// Transport selection: "whatsmeow" (QR-paired client) or "twilio"
	// (webhook + REST).
	Transport   string `yaml:"transport"`
	WhatsmeowDB string `yaml:"whatsmeow_db"`

	TwilioAccountSID   string `yaml:"twilio_account_sid"`
	TwilioAuthToken    string `yaml:"twilio_auth_token"`
	TwilioWhatsAppFrom string `yaml:"twilio_whatsapp_from"`
	TwilioValidateSig  bool   `yaml:"twilio_validate_signature"`

	MinConfidence      float64       `yaml:"min_confidence"`
	CacheTTL           time.Duration `yaml:"-"`
	CacheMaxEntries    int           `yaml:"cache_max_entries"`
	RecognitionScript  string        `yaml:"recognition_script"`
	PythonBin          string        `yaml:"python_bin"`
	RecognitionTimeout time.Duration `yaml:"-"`

	CodeTTL         time.Duration `yaml:"-"`
	SessionTTL      time.Duration `yaml:"-"`
	MaxCodeAttempts int           `yaml:"max_code_attempts"`

	ConversationIdle time.Duration `yaml:"-"`
	WorkerPoolSize   int           `yaml:"worker_pool_size"`

	AdminWhatsApp string `yaml:"admin_whatsapp"`
	AdminName     string `yaml:"admin_name"`
	AdminAPIToken string `yaml:"admin_api_token"`

	LogFile string `yaml:"log_file"`
	LogDev  bool   `yaml:"log_dev"`

	// Raw second/day/hour counts kept so the yaml file can use plain
	// numbers; converted to durations in Load.
	CacheTTLSeconds           int `yaml:"cache_ttl_seconds"`
	RecognitionTimeoutSeconds int `yaml:"recognition_timeout_seconds"`
	CodeTTLSeconds            int `yaml:"code_ttl_seconds"`
	SessionTTLDays            int `yaml:"session_ttl_days"`
	ConversationIdleHours     int `yaml:"conversation_idle_hours"`
}

// Load builds the Config: defaults, then config/config.yaml if present,
// then environment (highest precedence). A missing .env is not an error.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                      "3000",
		Transport:                 "whatsmeow",
		WhatsmeowDB:               "file:whatsmeow.db?_foreign_keys=on",
		MinConfidence:             70,
		CacheTTLSeconds:           3600,
		CacheMaxEntries:           100,
		RecognitionScript:         "scripts/plate_recognition.py",
		PythonBin:                 "python3",
		RecognitionTimeoutSeconds: 30,
		CodeTTLSeconds:            600,
		SessionTTLDays:            30,
		MaxCodeAttempts:           3,
		ConversationIdleHours:     24,
		WorkerPoolSize:            64,
		AdminName:                 "Administrador",
	}

	if raw, err := os.ReadFile("config/config.yaml"); err == nil {
		_ = yaml.Unmarshal(raw, cfg)
	}

	overlayEnv(cfg)

	cfg.CacheTTL = time.Duration(cfg.CacheTTLSeconds) * time.Second
	cfg.RecognitionTimeout = time.Duration(cfg.RecognitionTimeoutSeconds) * time.Second
	cfg.CodeTTL = time.Duration(cfg.CodeTTLSeconds) * time.Second
	cfg.SessionTTL = time.Duration(cfg.SessionTTLDays) * 24 * time.Hour
	cfg.ConversationIdle = time.Duration(cfg.ConversationIdleHours) * time.Hour

	return cfg
}

func overlayEnv(cfg *Config) {
	setStr(&cfg.Port, "PORT")
	setBool(&cfg.UseMemoryStore, "USE_MEMORY_STORE")
	setStr(&cfg.Transport, "TRANSPORT")
	setStr(&cfg.WhatsmeowDB, "WHATSMEOW_DB")
	setStr(&cfg.TwilioAccountSID, "TWILIO_ACCOUNT_SID")
	setStr(&cfg.TwilioAuthToken, "TWILIO_AUTH_TOKEN")
	setStr(&cfg.TwilioWhatsAppFrom, "TWILIO_WHATSAPP_FROM")
	setBool(&cfg.TwilioValidateSig, "TWILIO_VALIDATE_SIGNATURE")
	setFloat(&cfg.MinConfidence, "MIN_CONFIDENCE")
	setInt(&cfg.CacheTTLSeconds, "CACHE_TTL_SECONDS")
	setInt(&cfg.CacheMaxEntries, "CACHE_MAX_ENTRIES")
	setStr(&cfg.RecognitionScript, "RECOGNITION_SCRIPT")
	setStr(&cfg.PythonBin, "PYTHON_BIN")
	setInt(&cfg.RecognitionTimeoutSeconds, "RECOGNITION_TIMEOUT_SECONDS")
	setInt(&cfg.CodeTTLSeconds, "CODE_TTL_SECONDS")
	setInt(&cfg.SessionTTLDays, "SESSION_TTL_DAYS")
	setInt(&cfg.MaxCodeAttempts, "MAX_CODE_ATTEMPTS")
	setInt(&cfg.ConversationIdleHours, "CONVERSATION_IDLE_HOURS")
	setInt(&cfg.WorkerPoolSize, "WORKER_POOL_SIZE")
	setStr(&cfg.AdminWhatsApp, "ADMIN_WHATSAPP")
	setStr(&cfg.AdminName, "ADMIN_NAME")
	setStr(&cfg.AdminAPIToken, "ADMIN_API_TOKEN")
	setStr(&cfg.LogFile, "LOG_FILE")
	setBool(&cfg.LogDev, "LOG_DEV")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = cast.ToInt(v)
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = cast.ToFloat64(v)
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = cast.ToBool(v)
	}
}
