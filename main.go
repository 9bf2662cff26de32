package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/golang/glog"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mqy/minichat/api"
	"github.com/mqy/minichat/creds"
	"github.com/mqy/minichat/session"
	"github.com/mqy/minichat/store"
	"github.com/mqy/minichat/ws"
)

var (
	flagAPIURL      = flag.String("api-url", envOr("MINICHAT_API_URL", "http://localhost:3001/api"), "REST API base url")
	flagWsURL       = flag.String("ws-url", envOr("MINICHAT_WS_URL", "ws://localhost:3002/ws"), "event channel url")
	flagStateDB     = flag.String("state-db", "minichat.db", "file for persisted client state (bearer token)")
	flagMetricsAddr = flag.String("metrics-addr", "127.0.0.1:9100", "local prometheus metrics address")

	flagDisableMetrics = flag.Bool("disable-metrics", false, "disable prometheus metrics")
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	// Optional .env so endpoints can come from environment.
	_ = godotenv.Load()
	flag.Parse()

	// NOTE: os.Exit() does not call defers.
	os.Exit(run())
}

func run() int {
	defer glog.Flush()

	if v := validateFlags(); v > 0 {
		return v
	}

	tokens, err := creds.Open(*flagStateDB)
	if err != nil {
		return errorf("state db: %v", err)
	}
	defer tokens.Close()

	rest := api.NewClient(strings.TrimSuffix(*flagAPIURL, "/"))
	sess := session.New(rest, tokens)
	channel := ws.NewChannel(*flagWsURL, rest, nil)
	chats := store.NewChatStore(rest, channel, sess)
	channel.SetSink(chats)

	if !*flagDisableMetrics {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(
			prometheus.DefaultGatherer,
			promhttp.HandlerOpts{},
		))
		go func() {
			if err := http.ListenAndServe(*flagMetricsAddr, mux); err != nil {
				glog.Errorf("metrics listener: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	glog.Info("minichat client is starting")

	// Revalidate a persisted token; on success the channel comes up
	// automatically.
	sess.CheckStatus(ctx)
	if sess.Authenticated() {
		go func() {
			if err := channel.Connect(ctx); err != nil {
				chats.OnChannelError(err.Error())
			}
		}()
	}

	c := newConsole(ctx, sess, chats, channel)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	consoleDone := make(chan struct{})
	go func() {
		c.run()
		close(consoleDone)
	}()

	select {
	case sig := <-sigCh:
		glog.Infof("received signal `%s`, stopping", sig.String())
	case <-consoleDone:
	}

	cancel()
	channel.Disconnect()
	glog.Info("minichat client exited")
	return 0
}

func validateFlags() int {
	if *flagAPIURL == "" {
		return errorf("--api-url is required")
	}
	if _, err := url.Parse(*flagAPIURL); err != nil {
		return errorf("--api-url: %v", err)
	}
	if *flagWsURL == "" {
		return errorf("--ws-url is required")
	}
	u, err := url.Parse(*flagWsURL)
	if err != nil {
		return errorf("--ws-url: %v", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return errorf("--ws-url: scheme must be ws or wss, got `%s`", u.Scheme)
	}
	if *flagStateDB == "" {
		return errorf("--state-db is required")
	}
	if !*flagDisableMetrics && *flagMetricsAddr == "" {
		return errorf("--metrics-addr is required unless --disable-metrics")
	}
	return 0
}

func errorf(format string, args ...interface{}) int {
	glog.Errorf(format, args...)
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	return 1
}
