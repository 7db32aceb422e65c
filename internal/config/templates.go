package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	KindBridge = "bridge"
	KindHost   = "host"
)

// Template renders the defaults for kind as TOML.
func Template(kind string) (string, error) {
	var v any
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindBridge:
		v = bridgeFile(DefaultBridgeConfig())
	case KindHost:
		v = hostFile(DefaultHostConfig())
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
	data, err := toml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("render %s template: %w", kind, err)
	}
	return string(data), nil
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

// Load validates the file at path as kind.
func Load(path, kind string) error {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindBridge:
		_, err := LoadBridgeConfig(path)
		return err
	case KindHost:
		_, err := LoadHostConfig(path)
		return err
	default:
		return fmt.Errorf("unknown config kind: %s", kind)
	}
}

func bridgeFile(cfg BridgeConfig) fileBridge {
	return fileBridge{
		RequestTimeout:     durationString(cfg.RequestTimeout),
		LinkMarker:         cfg.LinkMarker,
		RestartAfterLogout: durationString(cfg.RestartAfterLogout),
		Reconnect: fileReconnect{
			InitialDelay: durationString(cfg.Reconnect.InitialDelay),
			Multiplier:   cfg.Reconnect.Multiplier,
			MaxDelay:     durationString(cfg.Reconnect.MaxDelay),
			MaxAttempts:  cfg.Reconnect.MaxAttempts,
			Jitter:       cfg.Reconnect.Jitter,
		},
		Channel: fileChannel{
			URL:      cfg.Channel.URL,
			Codec:    cfg.Channel.Codec,
			Embedded: cfg.Channel.Embedded,
			CAFile:   cfg.Channel.CAFile,
		},
	}
}

func hostFile(cfg HostConfig) fileHost {
	return fileHost{
		Addr:          cfg.Addr,
		CorsOrigins:   cfg.CorsOrigins,
		Identity:      cfg.Identity,
		AutoPairAfter: durationString(cfg.AutoPairAfter),
		PairingTTL:    durationString(cfg.PairingTTL),
		Codec:         cfg.Codec,
		TLSCertFile:   cfg.TLSCertFile,
		TLSKeyFile:    cfg.TLSKeyFile,
	}
}

func durationString(d time.Duration) string { return d.String() }
