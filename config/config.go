package config

import "encoding/json"

// Config is the complete runtime configuration loaded from one JSON file.
type Config struct {
	Endpoint  EndpointConfig `json:"endpoint"`
	Chat      ChatConfig     `json:"chat"`
	StatePath string         `json:"state_path"`
}

type EndpointConfig struct {
	URL    string `json:"url"`
	APIKey string `json:"api_key"`
	// Extra is merged verbatim into every request body; the engine treats it
	// as opaque host context.
	Extra map[string]json.RawMessage `json:"extra"`
}

type ChatConfig struct {
	Mode string `json:"mode"`
	// IdleTimeoutSeconds aborts a stalled stream after this many seconds
	// without bytes. Zero selects the default; a negative value disables the
	// watchdog.
	IdleTimeoutSeconds int `json:"idle_timeout_seconds"`
}
