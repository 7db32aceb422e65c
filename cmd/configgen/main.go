package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/danmuck/linkbridge/internal/config"
	"github.com/danmuck/linkbridge/internal/observability"
	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

type options struct {
	Kind     string `short:"k" long:"kind" default:"bridge" choice:"bridge" choice:"host" description:"config kind"`
	Output   string `short:"o" long:"output" description:"output path for config template"`
	Validate bool   `long:"validate" description:"validate an existing config file"`
	Input    string `short:"i" long:"input" description:"config path for validation (defaults to per-kind cmd path)"`
	Force    bool   `short:"f" long:"force" description:"overwrite existing config file"`
}

func defaultPath(kind string) (string, error) {
	switch kind {
	case config.KindBridge:
		return "cmd/linkctl/config.toml", nil
	case config.KindHost:
		return "cmd/sessiond/config.toml", nil
	default:
		return "", fmt.Errorf("unknown kind: %s", kind)
	}
}

func run(o options) error {
	if o.Validate {
		path := o.Input
		if path == "" {
			p, err := defaultPath(o.Kind)
			if err != nil {
				return err
			}
			path = p
		}
		if err := config.Load(path, o.Kind); err != nil {
			return err
		}
		log.Info().Str("kind", o.Kind).Str("path", path).Msg("config validated")
		return nil
	}

	target := o.Output
	if target == "" {
		p, err := defaultPath(o.Kind)
		if err != nil {
			return err
		}
		target = p
	}
	if err := config.WriteTemplate(target, o.Kind, o.Force); err != nil {
		return err
	}
	log.Info().Str("kind", o.Kind).Str("path", target).Msg("config template written")
	return nil
}

func main() {
	observability.InitLogger("configgen")
	var o options
	if _, err := flags.Parse(&o); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
	if err := run(o); err != nil {
		fmt.Fprintf(os.Stderr, "configgen: %v\n", err)
		os.Exit(1)
	}
}
