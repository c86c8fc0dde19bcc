package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultStatePath   = "~/.replystream/state"
	defaultMode        = "direct"
	defaultIdleSeconds = 120
)

func must(ok bool, msg string) {
	if msg == "" {
		panic("assertion message must not be empty")
	}
	if !ok {
		panic(msg)
	}
}

func Load(path string) (*Config, error) {
	must(path != "", "config path must not be empty")
	must(strings.TrimSpace(path) != "", "config path must not be blank")

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %v", path, err)
	}
	var c Config
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config %q: %v", path, err)
	}

	applyDefaults(&c)
	if err := expandPaths(&c); err != nil {
		return nil, err
	}
	if err := validate(c); err != nil {
		return nil, err
	}

	must(c.StatePath != "", "state path must not be empty after load")
	must(c.Chat.Mode != "", "chat mode must not be empty after load")
	return &c, nil
}

func applyDefaults(c *Config) {
	must(c != nil, "config pointer must not be nil")
	must(defaultIdleSeconds > 0, "default idle timeout must be positive")

	if c.StatePath == "" {
		c.StatePath = defaultStatePath
	}
	if c.Chat.Mode == "" {
		c.Chat.Mode = defaultMode
	}
	if c.Chat.IdleTimeoutSeconds == 0 {
		c.Chat.IdleTimeoutSeconds = defaultIdleSeconds
	}

	must(c.StatePath != "", "state path defaulting failed")
	must(c.Chat.IdleTimeoutSeconds != 0, "idle timeout defaulting failed")
}

func expandPaths(c *Config) error {
	must(c != nil, "config pointer must not be nil")
	must(c.StatePath != "", "state path must be set before expansion")

	s, err := expandHome(c.StatePath)
	if err != nil {
		return fmt.Errorf("state_path: %v", err)
	}
	c.StatePath = s

	must(c.StatePath != "", "state path expansion produced empty path")
	return nil
}

func expandHome(p string) (string, error) {
	must(p != "", "path must not be empty")
	must(strings.TrimSpace(p) == p, "path must be trimmed")

	if p[0] != '~' {
		return p, nil
	}
	h, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %v", err)
	}
	if p == "~" {
		must(h != "", "home dir must not be empty")
		return h, nil
	}
	if strings.HasPrefix(p, "~/") {
		o := filepath.Join(h, p[2:])
		must(o != "", "expanded path must not be empty")
		return o, nil
	}
	return "", fmt.Errorf("unsupported home path %q", p)
}

func validate(c Config) error {
	v := map[string]bool{"direct": true, "assist": true}
	must(len(v) == 2, "chat mode set must contain two values")
	must(v["direct"], "chat mode set missing direct")

	if c.Endpoint.URL == "" {
		return fmt.Errorf("endpoint.url is required")
	}
	if !strings.HasPrefix(c.Endpoint.URL, "http://") && !strings.HasPrefix(c.Endpoint.URL, "https://") {
		return fmt.Errorf("endpoint.url must be an http or https URL")
	}
	if !v[c.Chat.Mode] {
		return fmt.Errorf("chat.mode must be one of direct, assist")
	}
	return nil
}
