package config

import (
	"github.com/knadh/koanf/providers/confmap"
)

func DefaultConfig() map[string]interface{} {
	return map[string]interface{}{
		"server": map[string]interface{}{
			"port": "8080",
		},
		"database": map[string]interface{}{
			"path":    "reminders.db",
			"log_sql": false,
		},
		"log": map[string]interface{}{
			"level":  "info",
			"format": "console",
		},
		"scheduler": map[string]interface{}{
			"grace_window":  "5s",  // Due times this far in the past are still accepted
			"call_timeout":  "5s",  // Bound on every timer registration call
			"fire_timeout":  "30s", // Bound on handling one timer callback
			"retry_backoff": "500ms",
			"max_retries":   1,
			"exact_alarms":  true, // false makes the timer refuse registrations
		},
		"notify": map[string]interface{}{
			"queue_size":   64,
			"workers":      2,
			"rate_per_sec": 5,
			"timeout":      "10s",
		},
		"line": map[string]interface{}{
			"enabled":              false,
			"channel_secret":       "",
			"channel_access_token": "",
			"to":                   "",
		},
		"retention": map[string]interface{}{
			"history":    "0s", // 0 keeps history forever
			"purge_spec": "@every 1h",
		},
	}
}

func NewDefaultProvider() *confmap.Confmap {
	return confmap.Provider(DefaultConfig(), ".")
}
