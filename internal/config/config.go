package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/linkbridge/internal/channel"
	"github.com/danmuck/linkbridge/internal/reconnect"
)

var ErrInvalidConfig = errors.New("config: invalid")

// ChannelConfig selects how the bridge reaches its session host.
type ChannelConfig struct {
	// URL is the host websocket endpoint, e.g. ws://127.0.0.1:3000/channel.
	URL   string
	Codec string
	// Embedded runs a simulated host in-process over a pipe; URL is unused.
	Embedded bool
	// CAFile trusts a private CA when dialing wss:// URLs.
	CAFile string
}

type BridgeConfig struct {
	RequestTimeout     time.Duration
	LinkMarker         string
	RestartAfterLogout time.Duration
	Reconnect          reconnect.Policy
	Channel            ChannelConfig
}

func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		RequestTimeout:     30 * time.Second,
		LinkMarker:         "linkbridge://",
		RestartAfterLogout: 500 * time.Millisecond,
		Reconnect:          reconnect.DefaultPolicy(),
		Channel: ChannelConfig{
			URL:   "ws://127.0.0.1:3000/channel",
			Codec: channel.CodecJSON,
		},
	}
}

// WithDefaults fills zero values from DefaultBridgeConfig.
func (c BridgeConfig) WithDefaults() BridgeConfig {
	d := DefaultBridgeConfig()
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if strings.TrimSpace(c.LinkMarker) == "" {
		c.LinkMarker = d.LinkMarker
	}
	if c.RestartAfterLogout < 0 {
		c.RestartAfterLogout = 0
	}
	c.Reconnect = c.Reconnect.WithDefaults()
	if strings.TrimSpace(c.Channel.Codec) == "" {
		c.Channel.Codec = d.Channel.Codec
	}
	return c
}

func ValidateBridgeConfig(cfg BridgeConfig) error {
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("%w: request_timeout must be positive", ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.LinkMarker) == "" {
		return fmt.Errorf("%w: link_marker is required", ErrInvalidConfig)
	}
	if cfg.Reconnect.MaxAttempts <= 0 {
		return fmt.Errorf("%w: reconnect.max_attempts must be positive", ErrInvalidConfig)
	}
	if cfg.Reconnect.Multiplier < 1 {
		return fmt.Errorf("%w: reconnect.multiplier must be >= 1", ErrInvalidConfig)
	}
	if cfg.Reconnect.MaxDelay < cfg.Reconnect.InitialDelay {
		return fmt.Errorf("%w: reconnect.max_delay below initial_delay", ErrInvalidConfig)
	}
	if _, err := channel.CodecByName(cfg.Channel.Codec); err != nil {
		return fmt.Errorf("%w: channel.codec: %v", ErrInvalidConfig, err)
	}
	if !cfg.Channel.Embedded && strings.TrimSpace(cfg.Channel.URL) == "" {
		return fmt.Errorf("%w: channel.url required unless channel.embedded", ErrInvalidConfig)
	}
	return nil
}

// HostConfig configures the background session host.
type HostConfig struct {
	Addr        string
	CorsOrigins []string
	Identity    string
	// AutoPairAfter confirms pairing automatically; zero waits for /pairing/confirm.
	AutoPairAfter time.Duration
	// PairingTTL rotates the pairing token while unpaired; zero disables rotation.
	PairingTTL time.Duration
	Codec      string
	// TLSCertFile and TLSKeyFile serve HTTPS and wss:// when both are set.
	TLSCertFile string
	TLSKeyFile  string
}

func DefaultHostConfig() HostConfig {
	return HostConfig{
		Addr:        ":3000",
		CorsOrigins: []string{"*"},
		Identity:    "device.local",
		PairingTTL:  60 * time.Second,
		Codec:       channel.CodecJSON,
	}
}

func ValidateHostConfig(cfg HostConfig) error {
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("%w: addr is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.Identity) == "" {
		return fmt.Errorf("%w: identity is required", ErrInvalidConfig)
	}
	if cfg.AutoPairAfter < 0 || cfg.PairingTTL < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
	}
	if _, err := channel.CodecByName(cfg.Codec); err != nil {
		return fmt.Errorf("%w: codec: %v", ErrInvalidConfig, err)
	}
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return fmt.Errorf("%w: tls_cert_file and tls_key_file must be set together", ErrInvalidConfig)
	}
	return nil
}
