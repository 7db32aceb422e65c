package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/danmuck/linkbridge/internal/bridge"
	"github.com/danmuck/linkbridge/internal/intent"
	"github.com/danmuck/linkbridge/internal/lifecycle"
	"github.com/danmuck/linkbridge/internal/protocol"
)

type runCommand struct {
	Link string `short:"l" long:"link" description:"external link to open once the session is ready"`
}

func (c *runCommand) Execute(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := dial(ctx, opts, os.Stdout)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.watch(ctx, c.Link)
}

// watch prints bus notifications until ctx ends or the bridge stops.
func (s *session) watch(ctx context.Context, link string) error {
	b := s.bridge.Bus()
	states, unwatchStates := b.States.Watch(32)
	defer unwatchStates()
	// Released intents fire once, so they are printed from the publisher.
	unsubscribe := b.Intents.Subscribe(func(in intent.Intent) {
		fmt.Fprintf(s.out, "open %s\n", in.Target)
	})
	defer unsubscribe()
	faults, unwatchFaults := b.Faults.Watch(8)
	defer unwatchFaults()
	ready, unwatchReady := b.Ready.Watch(2)
	defer unwatchReady()

	if link != "" {
		s.bridge.SubmitInitial(ctx, link)
	} else if err := s.bridge.Start(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		case r := <-ready:
			fmt.Fprintf(s.out, "host ready on port %d\n", r.Port)
		case sc := <-states:
			fmt.Fprintf(s.out, "state %s -> %s\n", sc.From, sc.To)
			if sc.To == lifecycle.AwaitingPairing && sc.Snapshot.PairingToken != "" {
				fmt.Fprintf(s.out, "pairing token: %s\n", sc.Snapshot.PairingToken)
			}
		case f := <-faults:
			fmt.Fprintf(s.out, "fault %s: %v\n", f.Kind, f.Err)
		}
	}
}

type sendCommand struct {
	To   string `short:"t" long:"to" required:"true" description:"recipient"`
	Text string `short:"m" long:"text" description:"message text"`
	File string `short:"f" long:"file" description:"attach a file as a document"`
}

func (c *sendCommand) Execute(args []string) error {
	content, err := c.content()
	if err != nil {
		return err
	}
	return withSession(func(ctx context.Context, s *session) error {
		if err := s.bridge.SendMessage(ctx, c.To, content); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "sent to %s\n", c.To)
		return nil
	})
}

func (c *sendCommand) content() (bridge.Content, error) {
	content := bridge.Content{Text: c.Text}
	if c.File != "" {
		data, err := os.ReadFile(c.File)
		if err != nil {
			return bridge.Content{}, err
		}
		mimeType := mime.TypeByExtension(filepath.Ext(c.File))
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		content.Document = &protocol.Document{
			Data:     base64.StdEncoding.EncodeToString(data),
			MimeType: mimeType,
			Filename: filepath.Base(c.File),
		}
	}
	if content.Text == "" && content.Document == nil {
		return bridge.Content{}, errors.New("send: --text or --file is required")
	}
	return content, nil
}

type identityCommand struct{}

func (c *identityCommand) Execute(args []string) error {
	return withSession(func(ctx context.Context, s *session) error {
		id, err := s.bridge.GetIdentity(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(s.out, id)
		return nil
	})
}

type logoutCommand struct{}

func (c *logoutCommand) Execute(args []string) error {
	return withSession(func(ctx context.Context, s *session) error {
		if err := s.bridge.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(s.out, "logged out")
		return nil
	})
}
