package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config stores runtime configuration for the voice query pipeline.
type Config struct {
	Deepgram     DeepgramConfig
	Audio        AudioConfig
	Speech       SpeechConfig
	Capture      CaptureConfig
	Confirmation ConfirmationConfig
	Dispatch     DispatchConfig
	Viewer       ViewerConfig
	Rules        RulesConfig
	Log          LogConfig
}

type DeepgramConfig struct {
	APIKey         string
	APIBaseURL     string
	Model          string
	Language       string
	SmartFormat    bool
	EndpointingMS  int
	UtteranceEndMS int
}

type AudioConfig struct {
	RecorderCommand string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
}

type SpeechConfig struct {
	ChunkSize    int
	DrainTimeout time.Duration
}

type CaptureConfig struct {
	SilenceTimeout time.Duration
}

type ConfirmationConfig struct {
	Window   time.Duration
	TickRate int
}

type DispatchConfig struct {
	ClassifierURL     string
	ClassifierTimeout time.Duration
	BackendOrigin     string
	ViewerRoute       string
	AckPhrase         string
	AckVoice          string
	AckDelay          time.Duration
}

type ViewerConfig struct {
	Timeout time.Duration
}

type RulesConfig struct {
	Path           string
	IterationLimit int
}

type LogConfig struct {
	Level  string
	Format string
}

// Source records where the configuration came from.
type Source struct {
	ConfigFile string
	EnvFile    string
}

type binding struct {
	key      string
	envs     []string
	fallback any
}

// bindings lists every key with its environment variables, in priority order.
var bindings = []binding{
	{"deepgram.api_key", []string{"DEEPGRAM_API_KEY"}, ""},
	{"deepgram.api_base", []string{"DEEPGRAM_API_BASE"}, "https://api.deepgram.com/v1"},
	{"deepgram.model", []string{"DEEPGRAM_MODEL"}, "nova-2"},
	{"deepgram.language", []string{"DEEPGRAM_LANGUAGE"}, ""},
	{"deepgram.smart_format", []string{"DEEPGRAM_SMART_FORMAT"}, true},
	{"deepgram.endpointing_ms", []string{"DEEPGRAM_ENDPOINTING_MS"}, 300},
	{"deepgram.utterance_end_ms", []string{"DEEPGRAM_UTTERANCE_END_MS"}, 1000},

	{"audio.recorder", []string{"VOICEQUERY_FFMPEG_COMMAND"}, "ffmpeg"},
	{"audio.input_format", []string{"VOICEQUERY_AUDIO_INPUT_FORMAT"}, "pulse"},
	{"audio.input_device", []string{"VOICEQUERY_AUDIO_INPUT_DEVICE", "DEEPGRAM_PULSE_SOURCE"}, "default"},
	{"audio.sample_rate", []string{"VOICEQUERY_SAMPLE_RATE"}, 16000},
	{"audio.channels", []string{"VOICEQUERY_CHANNELS"}, 1},

	{"speech.chunk_size", []string{"VOICEQUERY_AUDIO_CHUNK_SIZE"}, 4096},
	{"speech.drain_timeout_ms", []string{"VOICEQUERY_STREAM_DRAIN_MS"}, 4000},

	{"capture.silence_timeout_ms", []string{"VOICEQUERY_SILENCE_TIMEOUT_MS"}, 10000},

	{"confirmation.window_ms", []string{"VOICEQUERY_CONFIRMATION_WINDOW_MS"}, 3000},
	{"confirmation.tick_rate", []string{"VOICEQUERY_CONFIRMATION_TICK_RATE"}, 60},

	{"dispatch.classifier_url", []string{"VOICEQUERY_CLASSIFIER_URL"}, "http://127.0.0.1:8888"},
	{"dispatch.classifier_timeout_ms", []string{"VOICEQUERY_CLASSIFIER_TIMEOUT_MS"}, 10000},
	{"dispatch.backend_origin", []string{"VOICEQUERY_BACKEND_ORIGIN"}, "http://127.0.0.1:8000"},
	{"dispatch.viewer_route", []string{"VOICEQUERY_VIEWER_ROUTE"}, "/bot"},
	{"dispatch.ack_phrase", []string{"VOICEQUERY_ACK_PHRASE"}, "Here is what I found"},
	{"dispatch.ack_voice", []string{"VOICEQUERY_ACK_VOICE"}, ""},
	{"dispatch.ack_delay_ms", []string{"VOICEQUERY_ACK_DELAY_MS"}, 2500},

	{"viewer.timeout_ms", []string{"VOICEQUERY_VIEWER_TIMEOUT_MS"}, 15000},

	{"rules.path", []string{"VOICEQUERY_RULES_FILE"}, ""},
	{"rules.iteration_limit", []string{"VOICEQUERY_RULE_ITERATION_LIMIT"}, 30},

	{"log.level", []string{"VOICEQUERY_LOG_LEVEL"}, "info"},
	{"log.format", []string{"VOICEQUERY_LOG_FORMAT"}, "text"},
}

// Load resolves configuration from a .env file, an optional YAML file,
// environment variables and defaults.
func Load() (Config, error) {
	cfg, _, err := LoadWithSource()
	return cfg, err
}

// LoadWithSource is Load that also reports which files were read.
func LoadWithSource() (Config, Source, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, Source{}, errors.New("could not determine home directory")
	}

	var src Source
	envFile := envOrDefault("VOICEQUERY_ENV_FILE", ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, Source{}, fmt.Errorf("load env file %s: %w", envFile, err)
		}
		src.EnvFile = envFile
	}

	v := viper.New()
	v.SetConfigType("yaml")
	for _, b := range bindings {
		v.SetDefault(b.key, b.fallback)
		if err := v.BindEnv(append([]string{b.key}, b.envs...)...); err != nil {
			return Config{}, Source{}, fmt.Errorf("bind %s: %w", b.key, err)
		}
	}

	configFile := strings.TrimSpace(os.Getenv("VOICEQUERY_CONFIG"))
	if configFile == "" {
		candidate := filepath.Join(home, ".config", "voicequery", "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			configFile = candidate
		}
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, Source{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
		src.ConfigFile = configFile
	}

	rulesPath := stringOf(v, "rules.path")
	if rulesPath == "" {
		rulesPath = filepath.Join(home, ".config", "voicequery", "queries.rules")
	}

	cfg := Config{
		Deepgram: DeepgramConfig{
			APIKey:         stringOf(v, "deepgram.api_key"),
			APIBaseURL:     stringOf(v, "deepgram.api_base"),
			Model:          stringOf(v, "deepgram.model"),
			Language:       stringOf(v, "deepgram.language"),
			SmartFormat:    boolOf(v, "deepgram.smart_format"),
			EndpointingMS:  nonNegativeIntOf(v, "deepgram.endpointing_ms"),
			UtteranceEndMS: nonNegativeIntOf(v, "deepgram.utterance_end_ms"),
		},
		Audio: AudioConfig{
			RecorderCommand: stringOf(v, "audio.recorder"),
			InputFormat:     stringOf(v, "audio.input_format"),
			InputDevice:     stringOf(v, "audio.input_device"),
			SampleRate:      positiveIntOf(v, "audio.sample_rate"),
			Channels:        positiveIntOf(v, "audio.channels"),
		},
		Speech: SpeechConfig{
			ChunkSize:    positiveIntOf(v, "speech.chunk_size"),
			DrainTimeout: millisOf(v, "speech.drain_timeout_ms"),
		},
		Capture: CaptureConfig{
			SilenceTimeout: millisOf(v, "capture.silence_timeout_ms"),
		},
		Confirmation: ConfirmationConfig{
			Window:   millisOf(v, "confirmation.window_ms"),
			TickRate: positiveIntOf(v, "confirmation.tick_rate"),
		},
		Dispatch: DispatchConfig{
			ClassifierURL:     stringOf(v, "dispatch.classifier_url"),
			ClassifierTimeout: millisOf(v, "dispatch.classifier_timeout_ms"),
			BackendOrigin:     stringOf(v, "dispatch.backend_origin"),
			ViewerRoute:       stringOf(v, "dispatch.viewer_route"),
			AckPhrase:         stringOf(v, "dispatch.ack_phrase"),
			AckVoice:          stringOf(v, "dispatch.ack_voice"),
			AckDelay:          millisOf(v, "dispatch.ack_delay_ms"),
		},
		Viewer: ViewerConfig{
			Timeout: millisOf(v, "viewer.timeout_ms"),
		},
		Rules: RulesConfig{
			Path:           rulesPath,
			IterationLimit: positiveIntOf(v, "rules.iteration_limit"),
		},
		Log: LogConfig{
			Level:  stringOf(v, "log.level"),
			Format: stringOf(v, "log.format"),
		},
	}

	if cfg.Speech.ChunkSize < 256 {
		cfg.Speech.ChunkSize = defaultOf[int]("speech.chunk_size")
	}

	return cfg, src, nil
}

func stringOf(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

func positiveIntOf(v *viper.Viper, key string) int {
	parsed, ok := intOf(v, key)
	if !ok || parsed <= 0 {
		return defaultOf[int](key)
	}
	return parsed
}

func nonNegativeIntOf(v *viper.Viper, key string) int {
	parsed, ok := intOf(v, key)
	if !ok || parsed < 0 {
		return defaultOf[int](key)
	}
	return parsed
}

func millisOf(v *viper.Viper, key string) time.Duration {
	return time.Duration(nonNegativeIntOf(v, key)) * time.Millisecond
}

// intOf parses the raw value itself so that garbage falls back to the
// default instead of viper's zero.
func intOf(v *viper.Viper, key string) (int, bool) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, false
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func boolOf(v *viper.Viper, key string) bool {
	switch strings.ToLower(strings.TrimSpace(v.GetString(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultOf[bool](key)
	}
}

func defaultOf[T any](key string) T {
	var zero T
	for _, b := range bindings {
		if b.key == key {
			if value, ok := b.fallback.(T); ok {
				return value
			}
		}
	}
	return zero
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
