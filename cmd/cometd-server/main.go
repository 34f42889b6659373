package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/yhtsnda/cometd"
	"github.com/yhtsnda/cometd/server"
)

type config struct {
	Addr        string
	Path        string
	LogLevel    string
	Timeout     time.Duration
	Interval    time.Duration
	MaxInterval time.Duration
	PerBrowser  int
}

func main() {
	var cfg config
	flags := flag.NewFlagSet("cometd-server", flag.ExitOnError)
	flags.StringVar(&cfg.Addr, "addr", ":8080", "http service address")
	flags.StringVar(&cfg.Path, "path", "/cometd", "the path serving bayeux")
	flags.StringVar(&cfg.LogLevel, "loglevel", "info", "the level to log at")
	flags.DurationVar(&cfg.Timeout, "timeout", server.DefaultTimeout, "how long a connect is held")
	flags.DurationVar(&cfg.Interval, "interval", server.DefaultInterval, "the interval advised between connects")
	flags.DurationVar(&cfg.MaxInterval, "max-interval", server.DefaultMaxInterval, "how long a silent session survives")
	flags.IntVar(&cfg.PerBrowser, "max-sessions-per-browser", server.DefaultMaxSessionsPerBrowser, "connects a browser may hold at once")
	if err := flags.Parse(os.Args[1:]); err != nil {
		fmt.Printf("error parsing flags: %q\n", err)
		os.Exit(1)
	}

	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Printf("error parsing log level: %q\n", err)
		os.Exit(1)
	}
	logger.SetLevel(level)

	engine := server.NewEngine(
		server.WithLogger(logger),
		server.WithTimeout(cfg.Timeout),
		server.WithInterval(cfg.Interval),
		server.WithMaxInterval(cfg.MaxInterval),
		server.WithMaxSessionsPerBrowser(cfg.PerBrowser),
	)

	r := mux.NewRouter()
	r.Methods(http.MethodGet, http.MethodPost).Path(cfg.Path).Handler(server.NewLongPollingTransport(engine))
	r.Methods(http.MethodPost).Path("/publish/{channel:.+}").Handler(publishHandler{engine, logger})

	srv := &http.Server{Addr: cfg.Addr, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", cfg.Addr).Info("serving bayeux")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), cfg.Timeout+time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	})
	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("server stopped")
		os.Exit(2)
	}
}

// publishHandler publishes the request body on /{channel}
type publishHandler struct {
	engine *server.Engine
	logger logrus.FieldLogger
}

func (h publishHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	channel := cometd.Channel("/" + mux.Vars(r)["channel"])
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil || !json.Valid(body) {
		http.Error(w, "body must be JSON", http.StatusBadRequest)
		return
	}
	n, err := h.engine.Publish(channel, json.RawMessage(body))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.logger.WithFields(logrus.Fields{"channel": channel, "recipients": n}).Debug("published")
	fmt.Fprintf(w, "%d\n", n)
}
