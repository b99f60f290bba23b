// Package config resolves, loads, validates, and defaults voxkey configuration.
package config

// Mode is the activation policy deciding how hotkey and silence events start and
// stop a recording.
type Mode string

const (
	// ModeContinuous records, stops on sustained silence, transcribes, and listens again.
	ModeContinuous Mode = "continuous"
	// ModeVAD records until sustained silence, then transcribes once.
	ModeVAD Mode = "vad"
	// ModeToggle starts on one press and stops on the next.
	ModeToggle Mode = "toggle"
	// ModeHold records while the hotkey is held down.
	ModeHold Mode = "hold"
)

// UsesVoiceActivity reports whether silence detection may end a recording in this mode.
func (m Mode) UsesVoiceActivity() bool {
	return m == ModeContinuous || m == ModeVAD
}

// Config is the fully materialized runtime configuration used by voxkey.
type Config struct {
	Hotkey        string              `mapstructure:"hotkey" validate:"required"`
	Recording     RecordingConfig     `mapstructure:"recording"`
	Audio         AudioConfig         `mapstructure:"audio"`
	VAD           VADConfig           `mapstructure:"vad"`
	Output        OutputConfig        `mapstructure:"output"`
	Transcript    TranscriptConfig    `mapstructure:"transcript"`
	Transcription TranscriptionConfig `mapstructure:"transcription"`
	Indicator     IndicatorConfig     `mapstructure:"indicator"`
	Debug         DebugConfig         `mapstructure:"debug"`
	Log           LogConfig           `mapstructure:"log"`
}

// RecordingConfig controls activation policy and recording bounds.
type RecordingConfig struct {
	Mode          Mode `mapstructure:"mode" validate:"oneof=continuous vad toggle hold"`
	MinDurationMS int  `mapstructure:"min_duration_ms" validate:"gte=0"`
	DeviceIndex   int  `mapstructure:"device_index" validate:"gte=-1"`
}

// AudioConfig controls preferred and fallback input-source selection by name.
type AudioConfig struct {
	Input    string `mapstructure:"input"`
	Fallback string `mapstructure:"fallback"`
}

// VADConfig controls silence detection thresholds.
type VADConfig struct {
	EnergyThreshold float64 `mapstructure:"energy_threshold" validate:"gt=0,lt=1"`
	SilenceMS       int     `mapstructure:"silence_ms" validate:"gt=0"`
}

// OutputConfig controls how recognized text leaves the process.
type OutputConfig struct {
	Method        string `mapstructure:"method" validate:"oneof=type clipboard"`
	TypingDelayMS int    `mapstructure:"typing_delay_ms" validate:"gte=0"`
	Echo          bool   `mapstructure:"echo"`
	Sound         bool   `mapstructure:"sound"`
}

// TranscriptConfig controls post-processing of recognized text.
type TranscriptConfig struct {
	RemoveTrailingPeriod bool `mapstructure:"remove_trailing_period"`
	Lowercase            bool `mapstructure:"lowercase"`
	TrailingSpace        bool `mapstructure:"trailing_space"`
	CapitalizeSentences  bool `mapstructure:"capitalize_sentences"`
}

// TranscriptionConfig selects and configures the transcription backend.
type TranscriptionConfig struct {
	Backend  string       `mapstructure:"backend" validate:"oneof=hosted local"`
	Language string       `mapstructure:"language"`
	Hosted   HostedConfig `mapstructure:"hosted"`
	Local    LocalConfig  `mapstructure:"local"`
}

// HostedConfig configures an OpenAI-compatible transcription endpoint.
type HostedConfig struct {
	URL        string `mapstructure:"url" validate:"omitempty,url"`
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	Format     string `mapstructure:"format" validate:"oneof=flac wav"`
	TimeoutMS  int    `mapstructure:"timeout_ms" validate:"gt=0"`
	MaxRetries int    `mapstructure:"max_retries" validate:"gte=0,lte=10"`
}

// LocalConfig configures on-device inference through a whisper.cpp server sidecar.
type LocalConfig struct {
	Model            string `mapstructure:"model"`
	ModelDir         string `mapstructure:"model_dir"`
	KeepLoaded       bool   `mapstructure:"keep_loaded"`
	ServerCmd        string `mapstructure:"server_cmd"`
	Host             string `mapstructure:"host"`
	Port             int    `mapstructure:"port" validate:"gt=0,lte=65535"`
	StartupTimeoutMS int    `mapstructure:"startup_timeout_ms" validate:"gt=0"`
}

// IndicatorConfig controls audio cue and desktop notification behavior.
type IndicatorConfig struct {
	SoundEnable    bool   `mapstructure:"sound_enable"`
	NotifyEnable   bool   `mapstructure:"notify_enable"`
	AppName        string `mapstructure:"app_name"`
	ErrorTimeoutMS int    `mapstructure:"error_timeout_ms" validate:"gte=0"`
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	AudioDump bool `mapstructure:"audio_dump"`
}

// LogConfig controls runtime log verbosity.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
}

// Warning is a non-fatal load/validation message.
type Warning struct {
	Message string
}
