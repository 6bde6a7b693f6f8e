package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	ServiceName string          `yaml:"service_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Store       StoreConfig     `yaml:"store"`
	Personas    PersonasConfig  `yaml:"personas"`
	Chat        ChatConfig      `yaml:"chat"`
	ASR         ASRConfig       `yaml:"asr"`
	LLM         LLMConfig       `yaml:"llm"`
	TTS         TTSConfig       `yaml:"tts"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type StoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type PersonasConfig struct {
	Path string `yaml:"path"`
}

type ChatConfig struct {
	MaxHistory    int `yaml:"max_history"`
	TurnTimeoutMS int `yaml:"turn_timeout_ms"`
}

type ASRConfig struct {
	Mode           string `yaml:"mode"` // mock, baidu, exec
	Command        string `yaml:"command"`
	BaiduAppID     string `yaml:"baidu_app_id"`
	BaiduAPIKey    string `yaml:"baidu_api_key"`
	BaiduSecretKey string `yaml:"baidu_secret_key"`
	Format         string `yaml:"format"`
	SampleRate     int    `yaml:"sample_rate"`
}

type LLMConfig struct {
	Mode        string  `yaml:"mode"` // mock, ollama, openai
	Endpoint    string  `yaml:"endpoint"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

type TTSConfig struct {
	Mode        string `yaml:"mode"` // mock, openai, exec
	Endpoint    string `yaml:"endpoint"`
	APIKey      string `yaml:"api_key"`
	Model       string `yaml:"model"`
	Command     string `yaml:"command"`
	ChunkSize   int    `yaml:"chunk_size"`
	ChunkPaceMS int    `yaml:"chunk_pace_ms"`
	MaxTextLen  int    `yaml:"max_text_len"`
}

func Default() Config {
	return Config{
		ServiceName: "voxrelay",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Store: StoreConfig{
			Path:          "./data/voxrelay.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		Personas: PersonasConfig{
			Path: "",
		},
		Chat: ChatConfig{
			MaxHistory:    20,
			TurnTimeoutMS: 120000,
		},
		ASR: ASRConfig{
			Mode:       "mock",
			Format:     "webm",
			SampleRate: 16000,
		},
		LLM: LLMConfig{
			Mode:        "mock",
			Endpoint:    "http://localhost:11434",
			Model:       "llama3.2:latest",
			MaxTokens:   1000,
			Temperature: 0.7,
		},
		TTS: TTSConfig{
			Mode:        "mock",
			Endpoint:    "https://api.openai.com",
			Model:       "tts-1",
			ChunkSize:   1024,
			ChunkPaceMS: 50,
			MaxTextLen:  4000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Missing file means defaults plus env overrides.
		case err != nil:
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.ServiceName, "VOX_SERVICE_NAME")
	overrideString(&cfg.Environment, "VOX_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "VOX_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "VOX_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "VOX_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "VOX_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "VOX_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Enabled, "VOX_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "VOX_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "VOX_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "VOX_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "VOX_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "VOX_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "VOX_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "VOX_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "VOX_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Store.Path, "VOX_STORE_PATH")
	overrideString(&cfg.Store.RetentionMode, "VOX_STORE_RETENTION_MODE")
	overrideInt(&cfg.Store.RetentionDays, "VOX_STORE_RETENTION_DAYS")
	overrideInt(&cfg.Store.MaxSessions, "VOX_STORE_MAX_SESSIONS")
	overrideBool(&cfg.Store.VacuumOnStart, "VOX_STORE_VACUUM_ON_START")
	overrideString(&cfg.Personas.Path, "VOX_PERSONAS_PATH")
	overrideInt(&cfg.Chat.MaxHistory, "VOX_CHAT_MAX_HISTORY")
	overrideInt(&cfg.Chat.TurnTimeoutMS, "VOX_CHAT_TURN_TIMEOUT_MS")
	overrideString(&cfg.ASR.Mode, "VOX_ASR_MODE")
	overrideString(&cfg.ASR.Command, "VOX_ASR_COMMAND")
	overrideString(&cfg.ASR.BaiduAppID, "VOX_ASR_BAIDU_APP_ID")
	overrideString(&cfg.ASR.BaiduAPIKey, "VOX_ASR_BAIDU_API_KEY")
	overrideString(&cfg.ASR.BaiduSecretKey, "VOX_ASR_BAIDU_SECRET_KEY")
	overrideString(&cfg.ASR.Format, "VOX_ASR_FORMAT")
	overrideInt(&cfg.ASR.SampleRate, "VOX_ASR_SAMPLE_RATE")
	overrideString(&cfg.LLM.Mode, "VOX_LLM_MODE")
	overrideString(&cfg.LLM.Endpoint, "VOX_LLM_ENDPOINT")
	overrideString(&cfg.LLM.APIKey, "VOX_LLM_API_KEY")
	overrideString(&cfg.LLM.Model, "VOX_LLM_MODEL")
	overrideInt(&cfg.LLM.MaxTokens, "VOX_LLM_MAX_TOKENS")
	overrideFloat(&cfg.LLM.Temperature, "VOX_LLM_TEMPERATURE")
	overrideString(&cfg.TTS.Mode, "VOX_TTS_MODE")
	overrideString(&cfg.TTS.Endpoint, "VOX_TTS_ENDPOINT")
	overrideString(&cfg.TTS.APIKey, "VOX_TTS_API_KEY")
	overrideString(&cfg.TTS.Model, "VOX_TTS_MODEL")
	overrideString(&cfg.TTS.Command, "VOX_TTS_COMMAND")
	overrideInt(&cfg.TTS.ChunkSize, "VOX_TTS_CHUNK_SIZE")
	overrideInt(&cfg.TTS.ChunkPaceMS, "VOX_TTS_CHUNK_PACE_MS")
	overrideInt(&cfg.TTS.MaxTextLen, "VOX_TTS_MAX_TEXT_LEN")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Store.Path == "" {
		return errors.New("store.path must not be empty")
	}
	switch cfg.Store.RetentionMode {
	case "ephemeral", "session", "persistent":
	default:
		return errors.New("store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.Store.RetentionDays < 0 {
		return errors.New("store.retention_days must be >= 0")
	}
	// A limit of one would leave room only for the system prompt.
	if cfg.Chat.MaxHistory < 2 {
		return errors.New("chat.max_history must be >= 2")
	}
	if cfg.Chat.TurnTimeoutMS <= 0 {
		return errors.New("chat.turn_timeout_ms must be positive")
	}
	switch cfg.ASR.Mode {
	case "mock", "baidu", "exec":
	default:
		return errors.New("asr.mode must be one of mock|baidu|exec")
	}
	if cfg.ASR.Mode == "exec" && cfg.ASR.Command == "" {
		return errors.New("asr.command must be set when mode=exec")
	}
	if cfg.ASR.SampleRate <= 0 {
		return errors.New("asr.sample_rate must be positive")
	}
	switch cfg.LLM.Mode {
	case "mock", "ollama", "openai":
	default:
		return errors.New("llm.mode must be one of mock|ollama|openai")
	}
	if (cfg.LLM.Mode == "ollama" || cfg.LLM.Mode == "openai") && cfg.LLM.Endpoint == "" {
		return errors.New("llm.endpoint must be set when mode=" + cfg.LLM.Mode)
	}
	if cfg.LLM.MaxTokens < 0 {
		return errors.New("llm.max_tokens must be >= 0")
	}
	switch cfg.TTS.Mode {
	case "mock", "openai", "exec":
	default:
		return errors.New("tts.mode must be one of mock|openai|exec")
	}
	if cfg.TTS.Mode == "exec" && cfg.TTS.Command == "" {
		return errors.New("tts.command must be set when mode=exec")
	}
	if cfg.TTS.ChunkSize <= 0 {
		return errors.New("tts.chunk_size must be positive")
	}
	// Truncation replaces the tail with "...", so the limit must leave
	// room for the ellipsis and at least one rune of text.
	if cfg.TTS.MaxTextLen <= 3 {
		return errors.New("tts.max_text_len must be greater than 3")
	}
	return nil
}
