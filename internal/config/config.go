// Package config provides application configuration management.
package config

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-vadrecorder/internal/eventlog"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/types"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/util"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variable overrides. A key such as
// vad.aggressiveness is read from VADREC_VAD_AGGRESSIVENESS.
const EnvPrefix = "VADREC"

// Configuration defaults are used when values are not specified.
const (
	DefaultWebPort           = 8080
	DefaultAudioBackend      = "process"
	DefaultVADBackend        = "webrtc"
	DefaultAggressiveness    = 2
	DefaultSilenceTimeoutMs  = 1000
	DefaultCodec             = "mp3"
	DefaultVerifyTolerance   = 0.05
	DefaultDeliveryTimeoutMs = 30000
	DefaultFieldName         = "data"
	DefaultTranscribeTimeout = 120000
	DefaultQueueHighWater    = 256
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
)

// AudioConfig holds capture device settings.
type AudioConfig struct {
	Backend    string `mapstructure:"backend" json:"backend" validate:"oneof=process portaudio"`
	Device     string `mapstructure:"device" json:"device"`
	SampleRate int    `mapstructure:"sample_rate" json:"sample_rate" validate:"oneof=8000 16000 32000 48000"`
	FrameMs    int    `mapstructure:"frame_ms" json:"frame_ms" validate:"oneof=10 20 30"`
}

// VADConfig holds speech classifier settings.
type VADConfig struct {
	Backend        string `mapstructure:"backend" json:"backend" validate:"oneof=webrtc energy"`
	Aggressiveness int    `mapstructure:"aggressiveness" json:"aggressiveness" validate:"gte=0,lte=3"`
}

// UtteranceConfig holds utterance assembly settings.
type UtteranceConfig struct {
	SilenceTimeoutMs int64 `mapstructure:"silence_timeout_ms" json:"silence_timeout_ms" validate:"gte=10,lte=60000"`
}

// ExportConfig holds persist and encode settings.
type ExportConfig struct {
	Codec             string  `mapstructure:"codec" json:"codec" validate:"oneof=mp3 ogg"`
	TempDir           string  `mapstructure:"temp_dir" json:"temp_dir"`
	FFmpegPath        string  `mapstructure:"ffmpeg_path" json:"ffmpeg_path"`
	VerifyTolerance   float64 `mapstructure:"verify_tolerance" json:"verify_tolerance" validate:"gte=0,lte=1"`
	DeliveryTimeoutMs int64   `mapstructure:"delivery_timeout_ms" json:"delivery_timeout_ms" validate:"gte=100"`
}

// WebhookConfig holds delivery sink settings.
type WebhookConfig struct {
	URL       string            `mapstructure:"url" json:"url" validate:"required,http_url"`
	FieldName string            `mapstructure:"field_name" json:"field_name" validate:"required"`
	Headers   map[string]string `mapstructure:"headers" json:"headers,omitempty"`
}

// ArchiveConfig holds the optional S3-compatible archive settings.
type ArchiveConfig struct {
	Endpoint        string `mapstructure:"endpoint" json:"endpoint" validate:"omitempty,url"`
	Region          string `mapstructure:"region" json:"region"`
	Bucket          string `mapstructure:"bucket" json:"bucket"`
	Prefix          string `mapstructure:"prefix" json:"prefix"`
	AccessKeyID     string `mapstructure:"access_key_id" json:"access_key_id" validate:"required_with=Bucket"`
	SecretAccessKey string `mapstructure:"secret_access_key" json:"-" validate:"required_with=Bucket"`
}

// TranscribeConfig holds the transcription engine settings.
type TranscribeConfig struct {
	URL       string `mapstructure:"url" json:"url" validate:"omitempty,http_url"`
	Language  string `mapstructure:"language" json:"language"`
	TimeoutMs int64  `mapstructure:"timeout_ms" json:"timeout_ms" validate:"gte=1000"`
}

// ServerConfig holds HTTP control plane settings. Port 0 disables the server.
type ServerConfig struct {
	Port   int    `mapstructure:"port" json:"port" validate:"gte=0,lte=65535"`
	APIKey string `mapstructure:"api_key" json:"-"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level    string `mapstructure:"level" json:"level" validate:"oneof=debug info warn error"`
	Format   string `mapstructure:"format" json:"format" validate:"oneof=text json"`
	EventLog string `mapstructure:"event_log" json:"event_log"`
}

// QueueConfig holds frame queue settings.
type QueueConfig struct {
	HighWater int `mapstructure:"high_water" json:"high_water" validate:"gte=1"`
}

// Settings is the full set of configuration values.
type Settings struct {
	Audio      AudioConfig      `mapstructure:"audio" json:"audio"`
	VAD        VADConfig        `mapstructure:"vad" json:"vad"`
	Utterance  UtteranceConfig  `mapstructure:"utterance" json:"utterance"`
	Export     ExportConfig     `mapstructure:"export" json:"export"`
	Webhook    WebhookConfig    `mapstructure:"webhook" json:"webhook"`
	Archive    ArchiveConfig    `mapstructure:"archive" json:"archive"`
	Transcribe TranscribeConfig `mapstructure:"transcribe" json:"transcribe"`
	Server     ServerConfig     `mapstructure:"server" json:"server"`
	Log        LogConfig        `mapstructure:"log" json:"log"`
	Queue      QueueConfig      `mapstructure:"queue" json:"queue"`
}

// Config holds the active settings. It is safe for concurrent use.
// Nothing is written back to disk: runtime updates live until exit.
type Config struct {
	mu       sync.RWMutex
	settings Settings
	filePath string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("audio.backend", DefaultAudioBackend)
	v.SetDefault("audio.device", "")
	v.SetDefault("audio.sample_rate", types.DefaultSampleRate)
	v.SetDefault("audio.frame_ms", types.DefaultFrameMs)
	v.SetDefault("vad.backend", DefaultVADBackend)
	v.SetDefault("vad.aggressiveness", DefaultAggressiveness)
	v.SetDefault("utterance.silence_timeout_ms", DefaultSilenceTimeoutMs)
	v.SetDefault("export.codec", DefaultCodec)
	v.SetDefault("export.temp_dir", "")
	v.SetDefault("export.ffmpeg_path", "")
	v.SetDefault("export.verify_tolerance", DefaultVerifyTolerance)
	v.SetDefault("export.delivery_timeout_ms", DefaultDeliveryTimeoutMs)
	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.field_name", DefaultFieldName)
	v.SetDefault("webhook.headers", map[string]string{})
	v.SetDefault("archive.endpoint", "")
	v.SetDefault("archive.region", "")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "")
	v.SetDefault("archive.access_key_id", "")
	v.SetDefault("archive.secret_access_key", "")
	v.SetDefault("transcribe.url", "")
	v.SetDefault("transcribe.language", "auto")
	v.SetDefault("transcribe.timeout_ms", DefaultTranscribeTimeout)
	v.SetDefault("server.port", DefaultWebPort)
	v.SetDefault("server.api_key", "")
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)
	v.SetDefault("log.event_log", eventlog.DefaultLogPath())
	v.SetDefault("queue.high_water", DefaultQueueHighWater)
}

// Load reads configuration from defaults, an optional JSON or YAML file and
// VADREC_* environment variables, in increasing precedence. The decoded
// config is returned even when validation fails, together with a
// *types.ValidationError, so callers that only need part of it can go on.
func Load(filePath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if filePath != "" {
		v.SetConfigFile(filePath)
		if err := v.ReadInConfig(); err != nil {
			return nil, util.WrapError("read config", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, util.WrapError("parse config", err)
	}

	c := &Config{settings: s, filePath: filePath}
	return c, s.Validate()
}

// Validate checks every field against its constraints.
func (s *Settings) Validate() error {
	err := util.ValidateStruct(s)
	if err != nil {
		return err
	}
	if !types.Codec(s.Export.Codec).IsValid() {
		return fmt.Errorf("unsupported codec %q", s.Export.Codec)
	}
	return nil
}

// Path returns the config file path, empty when none was given.
func (c *Config) Path() string {
	return c.filePath
}

// Snapshot returns a point-in-time copy of all settings.
func (c *Config) Snapshot() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := c.settings
	s.Webhook.Headers = maps.Clone(c.settings.Webhook.Headers)
	return s
}

// Update applies fn to a copy of the settings and installs the result when
// it validates. The active settings are left untouched on error.
func (c *Config) Update(fn func(*Settings)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.settings
	next.Webhook.Headers = maps.Clone(c.settings.Webhook.Headers)
	fn(&next)
	if err := next.Validate(); err != nil {
		return err
	}
	c.settings = next
	return nil
}

// APIKey returns the key guarding the HTTP API, empty when unguarded.
func (c *Config) APIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings.Server.APIKey
}

// FrameDuration returns the capture frame duration.
func (s *Settings) FrameDuration() time.Duration {
	return time.Duration(s.Audio.FrameMs) * time.Millisecond
}

// SilenceTimeout returns the utterance silence timeout.
func (s *Settings) SilenceTimeout() time.Duration {
	return time.Duration(s.Utterance.SilenceTimeoutMs) * time.Millisecond
}

// DeliveryTimeout returns the per-delivery timeout.
func (s *Settings) DeliveryTimeout() time.Duration {
	return time.Duration(s.Export.DeliveryTimeoutMs) * time.Millisecond
}

// TranscribeTimeout returns the transcription request timeout.
func (s *Settings) TranscribeTimeout() time.Duration {
	return time.Duration(s.Transcribe.TimeoutMs) * time.Millisecond
}

// HasArchive reports whether an S3 archive is configured.
func (s *Settings) HasArchive() bool {
	return s.Archive.Bucket != ""
}

// HasTranscriber reports whether a transcription engine is configured.
func (s *Settings) HasTranscriber() bool {
	return s.Transcribe.URL != ""
}

// IsValidationError reports whether err came from settings validation.
func IsValidationError(err error) bool {
	var verr *types.ValidationError
	return errors.As(err, &verr)
}
