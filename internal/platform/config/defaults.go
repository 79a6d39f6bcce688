package config

// DefaultConfig returns the built-in configuration. Values from a config
// file are overlaid on top of it.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:   "0.0.0.0",
			Port: 8080,
		},
		Gateway: GatewayConfig{
			Enabled: true,
			IP:      "0.0.0.0",
			Port:    8000,
			Path:    "/relay",
		},
		Log: LogConfig{
			Level: "INFO",
			Dir:   "data/logs",
			File:  "relay.log",
		},
		Session: SessionConfig{
			// 58s keeps a margin under the engine's 60s hard limit.
			MaxDuration:  "58s",
			SettleDelay:  "300ms",
			RetryBackoff: "500ms",
			AckTimeout:   "400ms",
			Locale:       "ko-KR",
			Autostart:    true,
		},
		Detector: DetectorConfig{
			Threshold:     0.8,
			MinScanLength: 2,
			MaxScanLength: 200,
			BufferCeiling: 500,
			AutoSubmit:    false,
		},
		Source: SourceConfig{
			Driver: "wsstream",
			WSStream: WSStreamConfig{
				Addr:        "wss://api.deepgram.com/v1/listen",
				APIKey:      "your_api_key",
				Lang:        "ko-KR",
				DialTimeout: "5s",
			},
			Replay: ReplayConfig{
				Script: []ReplayStep{
					{Text: "클로드", Final: false, Delay: "100ms"},
					{Text: "클로드 오늘 날씨", Final: false, Delay: "100ms"},
					{Text: "클로드 오늘 날씨 어때", Final: true, Delay: "100ms"},
				},
			},
		},
		Sink: SinkConfig{
			Driver: "gateway",
		},
		TriggerStore: TriggerStoreConfig{
			Type:    "memory",
			Cleanup: "5m",
			SQLite: SQLiteStoreConfig{
				DSN: "data/triggers.db",
			},
			Redis: RedisStoreConfig{
				Addr:   "127.0.0.1:6379",
				Prefix: "voicerelay",
			},
		},
		Triggers: []SeedTrigger{
			{Phrase: "클로드", Owner: "assistant"},
			{Phrase: "Claude", Owner: "assistant"},
		},
	}
}
