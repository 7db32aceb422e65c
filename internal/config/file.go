package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type fileReconnect struct {
	InitialDelay string  `toml:"initial_delay" yaml:"initial_delay"`
	Multiplier   float64 `toml:"multiplier" yaml:"multiplier"`
	MaxDelay     string  `toml:"max_delay" yaml:"max_delay"`
	MaxAttempts  int     `toml:"max_attempts" yaml:"max_attempts"`
	Jitter       bool    `toml:"jitter" yaml:"jitter"`
}

type fileChannel struct {
	URL      string `toml:"url" yaml:"url"`
	Codec    string `toml:"codec" yaml:"codec"`
	Embedded bool   `toml:"embedded" yaml:"embedded"`
	CAFile   string `toml:"ca_file" yaml:"ca_file"`
}

type fileBridge struct {
	RequestTimeout     string        `toml:"request_timeout" yaml:"request_timeout"`
	LinkMarker         string        `toml:"link_marker" yaml:"link_marker"`
	RestartAfterLogout string        `toml:"restart_after_logout" yaml:"restart_after_logout"`
	Reconnect          fileReconnect `toml:"reconnect" yaml:"reconnect"`
	Channel            fileChannel   `toml:"channel" yaml:"channel"`
}

type fileHost struct {
	Addr          string   `toml:"addr" yaml:"addr"`
	CorsOrigins   []string `toml:"cors_origins" yaml:"cors_origins"`
	Identity      string   `toml:"identity" yaml:"identity"`
	AutoPairAfter string   `toml:"auto_pair_after" yaml:"auto_pair_after"`
	PairingTTL    string   `toml:"pairing_ttl" yaml:"pairing_ttl"`
	Codec         string   `toml:"codec" yaml:"codec"`
	TLSCertFile   string   `toml:"tls_cert_file" yaml:"tls_cert_file"`
	TLSKeyFile    string   `toml:"tls_key_file" yaml:"tls_key_file"`
}

// definedFunc reports whether a (possibly nested) key was present in the file.
type definedFunc func(key ...string) bool

// decodeFile reads TOML, or YAML for .yaml/.yml paths, into out.
func decodeFile(path string, out any) (definedFunc, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config load failed (%s): %w", path, err)
		}
		if err := yaml.Unmarshal(data, out); err != nil {
			return nil, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		var tree map[string]any
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		return yamlDefined(tree), nil
	default:
		meta, err := toml.DecodeFile(path, out)
		if err != nil {
			return nil, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		return meta.IsDefined, nil
	}
}

func yamlDefined(tree map[string]any) definedFunc {
	return func(key ...string) bool {
		node := tree
		for i, k := range key {
			v, ok := node[k]
			if !ok {
				return false
			}
			if i == len(key)-1 {
				return true
			}
			next, ok := v.(map[string]any)
			if !ok {
				return false
			}
			node = next
		}
		return false
	}
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("parse %s: negative duration %q", key, raw)
	}
	return d, nil
}

// LoadBridgeConfig applies the keys present in path onto DefaultBridgeConfig.
func LoadBridgeConfig(path string) (BridgeConfig, error) {
	cfg := DefaultBridgeConfig()
	var raw fileBridge
	defined, err := decodeFile(path, &raw)
	if err != nil {
		return BridgeConfig{}, err
	}

	durations := []struct {
		key []string
		raw string
		dst *time.Duration
	}{
		{[]string{"request_timeout"}, raw.RequestTimeout, &cfg.RequestTimeout},
		{[]string{"restart_after_logout"}, raw.RestartAfterLogout, &cfg.RestartAfterLogout},
		{[]string{"reconnect", "initial_delay"}, raw.Reconnect.InitialDelay, &cfg.Reconnect.InitialDelay},
		{[]string{"reconnect", "max_delay"}, raw.Reconnect.MaxDelay, &cfg.Reconnect.MaxDelay},
	}
	for _, d := range durations {
		if !defined(d.key...) {
			continue
		}
		v, err := parseDuration(strings.Join(d.key, "."), d.raw)
		if err != nil {
			return BridgeConfig{}, err
		}
		*d.dst = v
	}

	if defined("link_marker") {
		cfg.LinkMarker = strings.TrimSpace(raw.LinkMarker)
	}
	if defined("reconnect", "multiplier") {
		cfg.Reconnect.Multiplier = raw.Reconnect.Multiplier
	}
	if defined("reconnect", "max_attempts") {
		cfg.Reconnect.MaxAttempts = raw.Reconnect.MaxAttempts
	}
	if defined("reconnect", "jitter") {
		cfg.Reconnect.Jitter = raw.Reconnect.Jitter
	}
	if defined("channel", "url") {
		cfg.Channel.URL = strings.TrimSpace(raw.Channel.URL)
	}
	if defined("channel", "codec") {
		cfg.Channel.Codec = strings.ToLower(strings.TrimSpace(raw.Channel.Codec))
	}
	if defined("channel", "embedded") {
		cfg.Channel.Embedded = raw.Channel.Embedded
	}
	if defined("channel", "ca_file") {
		cfg.Channel.CAFile = strings.TrimSpace(raw.Channel.CAFile)
	}

	if err := ValidateBridgeConfig(cfg); err != nil {
		return BridgeConfig{}, err
	}
	return cfg, nil
}

// LoadHostConfig applies the keys present in path onto DefaultHostConfig.
func LoadHostConfig(path string) (HostConfig, error) {
	cfg := DefaultHostConfig()
	var raw fileHost
	defined, err := decodeFile(path, &raw)
	if err != nil {
		return HostConfig{}, err
	}

	if defined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if defined("cors_origins") {
		cfg.CorsOrigins = normalizeList(raw.CorsOrigins)
	}
	if defined("identity") {
		cfg.Identity = strings.TrimSpace(raw.Identity)
	}
	if defined("auto_pair_after") {
		d, err := parseDuration("auto_pair_after", raw.AutoPairAfter)
		if err != nil {
			return HostConfig{}, err
		}
		cfg.AutoPairAfter = d
	}
	if defined("pairing_ttl") {
		d, err := parseDuration("pairing_ttl", raw.PairingTTL)
		if err != nil {
			return HostConfig{}, err
		}
		cfg.PairingTTL = d
	}
	if defined("codec") {
		cfg.Codec = strings.ToLower(strings.TrimSpace(raw.Codec))
	}
	if defined("tls_cert_file") {
		cfg.TLSCertFile = strings.TrimSpace(raw.TLSCertFile)
	}
	if defined("tls_key_file") {
		cfg.TLSKeyFile = strings.TrimSpace(raw.TLSKeyFile)
	}

	if err := ValidateHostConfig(cfg); err != nil {
		return HostConfig{}, err
	}
	return cfg, nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
