package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/linkbridge/internal/bridge"
	"github.com/danmuck/linkbridge/internal/bus"
	"github.com/danmuck/linkbridge/internal/channel"
	"github.com/danmuck/linkbridge/internal/config"
	"github.com/danmuck/linkbridge/internal/host"
	"github.com/danmuck/linkbridge/internal/lifecycle"
	"github.com/rs/zerolog/log"
)

func loadConfig(g globalOptions) (config.BridgeConfig, error) {
	cfg := config.DefaultBridgeConfig()
	if g.Config != "" {
		loaded, err := config.LoadBridgeConfig(g.Config)
		if err != nil {
			return config.BridgeConfig{}, err
		}
		cfg = loaded
	}
	if g.URL != "" {
		cfg.Channel.URL = g.URL
	}
	if g.Codec != "" {
		cfg.Channel.Codec = g.Codec
	}
	if g.Embedded {
		cfg.Channel.Embedded = true
	}
	if err := config.ValidateBridgeConfig(cfg); err != nil {
		return config.BridgeConfig{}, err
	}
	return cfg, nil
}

// session is one bridge plus whatever channel it runs over.
type session struct {
	bridge *bridge.Bridge
	out    io.Writer
	stop   func()
	done   chan struct{}
}

func dial(ctx context.Context, g globalOptions, out io.Writer) (*session, error) {
	cfg, err := loadConfig(g)
	if err != nil {
		return nil, err
	}

	var (
		t       channel.Transport
		cleanup []func()
	)
	if cfg.Channel.Embedded {
		bridgeEnd, hostEnd := channel.NewPipe(0)
		hcfg := config.DefaultHostConfig()
		h := host.New(host.SimulatedFactory(host.SimulatedConfig{
			Identity:      hcfg.Identity,
			AutoPairAfter: g.AutoPair,
			PairingTTL:    hcfg.PairingTTL,
		}))
		go func() { _ = h.Attach(ctx, hostEnd) }()
		t = bridgeEnd
		cleanup = append(cleanup, func() { _ = h.Close() })
	} else {
		codec, err := channel.CodecByName(cfg.Channel.Codec)
		if err != nil {
			return nil, err
		}
		wsOpts := channel.WebsocketOptions{Codec: codec}
		if cfg.Channel.CAFile != "" {
			if wsOpts.TLSConfig, err = channel.ClientTLS(cfg.Channel.CAFile); err != nil {
				return nil, err
			}
		}
		ws, err := channel.DialWebsocket(ctx, cfg.Channel.URL, wsOpts)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", cfg.Channel.URL, err)
		}
		t = ws
	}
	cleanup = append(cleanup, func() { _ = t.Close() })

	b := bridge.New(t, cfg)
	runCtx, cancel := context.WithCancel(ctx)
	s := &session{bridge: b, out: out, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		if err := b.Run(runCtx); err != nil && runCtx.Err() == nil {
			log.Warn().Err(err).Msg("linkctl.bridge stopped")
		}
	}()
	s.stop = func() {
		cancel()
		<-s.done
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}
	return s, nil
}

func (s *session) Close() { s.stop() }

// awaitConnected starts the session and blocks until it is connected,
// printing pairing tokens as they arrive.
func (s *session) awaitConnected(ctx context.Context) error {
	states, unwatch := s.bridge.Bus().States.Watch(16)
	defer unwatch()
	faults, unwatchFaults := s.bridge.Bus().Faults.Watch(4)
	defer unwatchFaults()

	if s.bridge.State().State == lifecycle.Connected {
		return nil
	}
	if err := s.bridge.Start(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for connection: %w", ctx.Err())
		case <-s.done:
			return channel.ErrClosed
		case f := <-faults:
			if f.Kind == bus.FaultMaxReconnects {
				return f.Err
			}
		case sc := <-states:
			switch sc.To {
			case lifecycle.AwaitingPairing:
				fmt.Fprintf(s.out, "pairing token: %s\n", sc.Snapshot.PairingToken)
			case lifecycle.Connected:
				return nil
			case lifecycle.LoggedOut:
				return fmt.Errorf("session logged out: %s", sc.Snapshot.CloseReason)
			}
		}
	}
}

// withSession connects, waits for Connected within the wait budget, runs
// fn, and tears everything down.
func withSession(fn func(ctx context.Context, s *session) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := dial(ctx, opts, os.Stdout)
	if err != nil {
		return err
	}
	defer s.Close()

	waitCtx, cancel := context.WithTimeout(ctx, opts.Wait)
	defer cancel()
	if err := s.awaitConnected(waitCtx); err != nil {
		return err
	}
	return fn(ctx, s)
}
