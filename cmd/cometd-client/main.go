package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/yhtsnda/cometd"
	"github.com/yhtsnda/cometd/extensions/auth"
	"github.com/yhtsnda/cometd/extensions/replay"
)

type config struct {
	Hostname    string
	Port        uint
	EventBuffer uint
	Protocol    string
	Path        string
	LogLevel    string
	Replay      bool
	AccessToken string
	User        string
	Timeout     time.Duration
}

// failures forwards session failures to the main loop
type failures chan error

func (f failures) Unsuccessful(_ *cometd.ClientSession, m cometd.Message) {
	fmt.Println(color.YellowString("unsuccessful %s: %s", m.Channel, m.Error))
}

func (f failures) Failure(_ *cometd.ClientSession, err error) {
	select {
	case f <- err:
	default:
	}
}

func parseLevel(name string) logrus.Level {
	switch name {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		// Let's just skip panic as an option here
		return logrus.FatalLevel
	}
}

func main() {
	var cfg config
	flags := flag.NewFlagSet("cometd-client", flag.ExitOnError)
	flags.StringVar(&cfg.Protocol, "protocol", "https", "the protocol to use (http or https)")
	flags.UintVar(&cfg.Port, "port", 443, "the port used to connect to the Bayeux server")
	flags.UintVar(&cfg.EventBuffer, "buffer", 100, "the number of events to buffer")
	flags.StringVar(&cfg.Hostname, "hostname", "localhost", "the hostname to connect to")
	flags.StringVar(&cfg.Path, "path", "/cometd", "the path used to connect to bayeux")
	flags.StringVar(&cfg.LogLevel, "loglevel", "error", "the level to log at")
	flags.BoolVar(&cfg.Replay, "replay", false, "negotiate the replay extension")
	flags.StringVar(&cfg.AccessToken, "token", "", "a bearer token sent to the server host")
	flags.StringVar(&cfg.User, "user", "", "a user name sent in the handshake authentication extension")
	flags.DurationVar(&cfg.Timeout, "timeout", 10*time.Second, "how long to wait for handshake and disconnect")
	if err := flags.Parse(os.Args[1:]); err != nil {
		fmt.Printf("error parsing flags: %q\n", err)
		os.Exit(1)
	}
	channelNames := flags.Args()

	logger := logrus.New()
	logger.SetLevel(parseLevel(cfg.LogLevel))

	u := url.URL{Scheme: cfg.Protocol, Host: fmt.Sprintf("%s:%d", cfg.Hostname, cfg.Port), Path: cfg.Path}
	opts := []cometd.Option{cometd.WithLogger(logger)}
	if cfg.AccessToken != "" {
		opts = append(opts, cometd.WithHTTPTransport(&auth.BearerTransport{
			Token:  cfg.AccessToken,
			Domain: cfg.Hostname,
			Next:   http.DefaultTransport,
		}))
	}
	session, err := cometd.NewClientSession([]string{u.String()}, opts...)
	if err != nil {
		fmt.Printf("error initializing session: %q\n", err)
		os.Exit(1)
	}
	if cfg.Replay {
		if err := session.UseExtension(replay.New(nil)); err != nil {
			fmt.Printf("error registering replay extension: %q\n", err)
			os.Exit(1)
		}
	}
	if cfg.User != "" {
		ext := &auth.HandshakeExtension{Credentials: map[string]interface{}{"user": cfg.User}}
		if err := session.UseExtension(ext); err != nil {
			fmt.Printf("error registering authentication extension: %q\n", err)
			os.Exit(1)
		}
	}
	errc := make(failures, 1)
	session.AddListener(errc)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := handshake(ctx, session, cfg.Timeout); err != nil {
		fmt.Printf("error in handshake: %q\n", err)
		os.Exit(2)
	}
	logger.WithField("clientId", session.ClientID()).Debug("connected")

	output := make(chan cometd.Message, cfg.EventBuffer)
	listener := cometd.NewChanListener(output)
	err = session.Batch(func() error {
		for _, name := range channelNames {
			if err := session.Channel(cometd.Channel(name)).Subscribe(listener); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		fmt.Printf("error subscribing: %q\n", err)
		os.Exit(1)
	}

	for {
		select {
		case <-ctx.Done():
			disconnect(session, cfg.Timeout)
			return
		case err := <-errc:
			fmt.Println(color.RedString("error in bayeux session: %q", err))
			os.Exit(2)
		case m := <-output:
			fmt.Printf("%s %s\n", color.CyanString(string(m.Channel)), string(m.Data))
		}
	}
}

func handshake(ctx context.Context, session *cometd.ClientSession, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := session.Handshake(); err != nil {
		return err
	}
	state, err := session.WaitFor(ctx, cometd.Connected, cometd.Disconnected)
	if err != nil {
		return err
	}
	if state != cometd.Connected {
		return errors.New("handshake refused by server")
	}
	return nil
}

func disconnect(session *cometd.ClientSession, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := session.Disconnect(); err != nil {
		fmt.Printf("error disconnecting: %q\n", err)
		return
	}
	if _, err := session.WaitFor(ctx, cometd.Disconnected); err != nil {
		fmt.Printf("error waiting for disconnect: %q\n", err)
	}
}
