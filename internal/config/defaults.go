package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Hotkey: "ctrl+shift+space",
		Recording: RecordingConfig{
			Mode:          ModeToggle,
			MinDurationMS: 100,
			DeviceIndex:   -1,
		},
		Audio: AudioConfig{
			Input:    "default",
			Fallback: "default",
		},
		VAD: VADConfig{
			EnergyThreshold: 0.01,
			SilenceMS:       1200,
		},
		Output: OutputConfig{
			Method:        "type",
			TypingDelayMS: 5,
			Sound:         true,
		},
		Transcript: TranscriptConfig{
			TrailingSpace: true,
		},
		Transcription: TranscriptionConfig{
			Backend:  "local",
			Language: "en",
			Hosted: HostedConfig{
				URL:        "https://api.openai.com/v1/audio/transcriptions",
				Model:      "whisper-1",
				Format:     "flac",
				TimeoutMS:  30000,
				MaxRetries: 2,
			},
			Local: LocalConfig{
				Model:            "base.en",
				KeepLoaded:       true,
				ServerCmd:        "whisper-server",
				Host:             "127.0.0.1",
				Port:             18181,
				StartupTimeoutMS: 20000,
			},
		},
		Indicator: IndicatorConfig{
			SoundEnable:    true,
			NotifyEnable:   true,
			AppName:        "voxkey",
			ErrorTimeoutMS: 1600,
		},
		Log: LogConfig{Level: "info"},
	}
}

// defaultKeys flattens Default into viper keys so every known key has a default
// and participates in environment overrides.
func defaultKeys() map[string]any {
	d := Default()
	return map[string]any{
		"hotkey":                                 d.Hotkey,
		"recording.mode":                         string(d.Recording.Mode),
		"recording.min_duration_ms":              d.Recording.MinDurationMS,
		"recording.device_index":                 d.Recording.DeviceIndex,
		"audio.input":                            d.Audio.Input,
		"audio.fallback":                         d.Audio.Fallback,
		"vad.energy_threshold":                   d.VAD.EnergyThreshold,
		"vad.silence_ms":                         d.VAD.SilenceMS,
		"output.method":                          d.Output.Method,
		"output.typing_delay_ms":                 d.Output.TypingDelayMS,
		"output.echo":                            d.Output.Echo,
		"output.sound":                           d.Output.Sound,
		"transcript.remove_trailing_period":      d.Transcript.RemoveTrailingPeriod,
		"transcript.lowercase":                   d.Transcript.Lowercase,
		"transcript.trailing_space":              d.Transcript.TrailingSpace,
		"transcript.capitalize_sentences":        d.Transcript.CapitalizeSentences,
		"transcription.backend":                  d.Transcription.Backend,
		"transcription.language":                 d.Transcription.Language,
		"transcription.hosted.url":               d.Transcription.Hosted.URL,
		"transcription.hosted.api_key":           d.Transcription.Hosted.APIKey,
		"transcription.hosted.model":             d.Transcription.Hosted.Model,
		"transcription.hosted.format":            d.Transcription.Hosted.Format,
		"transcription.hosted.timeout_ms":        d.Transcription.Hosted.TimeoutMS,
		"transcription.hosted.max_retries":       d.Transcription.Hosted.MaxRetries,
		"transcription.local.model":              d.Transcription.Local.Model,
		"transcription.local.model_dir":          d.Transcription.Local.ModelDir,
		"transcription.local.keep_loaded":        d.Transcription.Local.KeepLoaded,
		"transcription.local.server_cmd":         d.Transcription.Local.ServerCmd,
		"transcription.local.host":               d.Transcription.Local.Host,
		"transcription.local.port":               d.Transcription.Local.Port,
		"transcription.local.startup_timeout_ms": d.Transcription.Local.StartupTimeoutMS,
		"indicator.sound_enable":                 d.Indicator.SoundEnable,
		"indicator.notify_enable":                d.Indicator.NotifyEnable,
		"indicator.app_name":                     d.Indicator.AppName,
		"indicator.error_timeout_ms":             d.Indicator.ErrorTimeoutMS,
		"debug.audio_dump":                       d.Debug.AudioDump,
		"log.level":                              d.Log.Level,
	}
}
