package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/linkbridge/internal/config"
	"github.com/danmuck/linkbridge/internal/host"
	"github.com/danmuck/linkbridge/internal/observability"
	"github.com/jessevdk/go-flags"
)

type options struct {
	Config   string        `short:"c" long:"config" description:"host config file (.toml, .yaml)"`
	ID       string        `long:"id" default:"sessiond" description:"node id used in logs and metrics"`
	Addr     string        `short:"a" long:"addr" description:"listen address"`
	Identity string        `long:"identity" description:"identity reported by the simulated messenger"`
	AutoPair time.Duration `long:"auto-pair" description:"confirm pairing after this delay"`
}

func loadConfig(o options) (config.HostConfig, error) {
	cfg := config.DefaultHostConfig()
	if o.Config != "" {
		loaded, err := config.LoadHostConfig(o.Config)
		if err != nil {
			return config.HostConfig{}, err
		}
		cfg = loaded
	}
	if o.Addr != "" {
		cfg.Addr = o.Addr
	}
	if o.Identity != "" {
		cfg.Identity = o.Identity
	}
	if o.AutoPair > 0 {
		cfg.AutoPairAfter = o.AutoPair
	}
	if err := config.ValidateHostConfig(cfg); err != nil {
		return config.HostConfig{}, err
	}
	return cfg, nil
}

func run(o options) error {
	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}
	srv, err := host.NewServer(o.ID, cfg)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Serve(ctx)
}

func main() {
	observability.InitLogger("sessiond")
	var o options
	if _, err := flags.Parse(&o); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
	if err := run(o); err != nil {
		fmt.Fprintf(os.Stderr, "sessiond: %v\n", err)
		os.Exit(1)
	}
}
