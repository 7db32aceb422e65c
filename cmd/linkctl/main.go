package main

import (
	"errors"
	"os"
	"time"

	"github.com/danmuck/linkbridge/internal/observability"
	"github.com/jessevdk/go-flags"
)

type globalOptions struct {
	Config   string        `short:"c" long:"config" description:"bridge config file (.toml, .yaml)"`
	URL      string        `short:"u" long:"url" description:"session host channel url"`
	Codec    string        `long:"codec" description:"channel codec: json|cbor"`
	Embedded bool          `short:"e" long:"embedded" description:"run an in-process simulated session host"`
	AutoPair time.Duration `long:"auto-pair" default:"1s" description:"embedded host: confirm pairing after this delay (0 waits forever)"`
	Wait     time.Duration `short:"w" long:"wait" default:"2m" description:"how long to wait for the session to connect"`
}

var opts globalOptions

func newParser() *flags.Parser {
	p := flags.NewParser(&opts, flags.Default)
	p.ShortDescription = "drive a linkbridge session"
	_, _ = p.AddCommand("run", "run the bridge", "Starts the session, opens --link once connected, and prints events until interrupted.", &runCommand{})
	_, _ = p.AddCommand("send", "send a message", "Connects, sends one message, and exits.", &sendCommand{})
	_, _ = p.AddCommand("identity", "print the account identity", "Connects and prints the identity of the paired account.", &identityCommand{})
	_, _ = p.AddCommand("logout", "end the account session", "Connects and logs the account out.", &logoutCommand{})
	return p
}

func main() {
	observability.InitLogger("linkctl")
	if _, err := newParser().Parse(); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
