package config

import "path/filepath"

func Defaults() *Config {
	dir := DefaultConfigDir()
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Backend: BackendConfig{
			Endpoint:            "http://localhost:8080/api/rpc",
			TimeoutSeconds:      30,
			PollIntervalSeconds: 5,
		},
		Viewer: ViewerConfig{
			ID:   1,
			Role: "teacher",
		},
		AutoReply: AutoReplyConfig{
			Enabled:        true,
			Phrase:         "@assistant",
			AssistantName:  "Campus Assistant",
			GeneratorURL:   "http://localhost:8090",
			TimeoutSeconds: 30,
		},
		Directory: DirectoryConfig{
			Path: filepath.Join(dir, "contacts.yaml"),
		},
		Attachments: AttachmentsConfig{
			DBPath: filepath.Join(dir, "attachments.db"),
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    9091,
		},
	}
}
