package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/liveChat"
	"github.com/liveChat/backend"
	"github.com/liveChat/config"
	"github.com/liveChat/firebaseBackend"
	"github.com/liveChat/memoryBackend"
	"github.com/liveChat/metrics"
	"github.com/liveChat/pushNotification"
)

func initLogging(level string) error {
	log.SetFormatter(&log.JSONFormatter{
		FieldMap: log.FieldMap{log.FieldKeyMsg: "message"},
	})

	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)
	return nil
}

func newRouter(m *metrics.Metrics, client *liveChat.Client) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !client.SignedIn() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("signed out"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", m.Handler())

	return r
}

func main() {
	envFile := flag.String("env", ".env", "file to seed environment variables from")
	local := flag.Bool("local", false, "use an in-process backend instead of Firebase")
	metricsAddr := flag.String("metrics-addr", "", "address to serve /metrics on (overrides METRICS_ADDR)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("loading config: %s", err)
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if err := initLogging(cfg.LogLevel); err != nil {
		log.Fatalf("configuring logging: %s", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var b backend.Backend
	if *local {
		log.Info("using in-process backend")
		b = memoryBackend.New()
	} else {
		if err := cfg.Validate(); err != nil {
			log.Fatal(err)
		}
		fb, err := firebaseBackend.New(ctx, cfg.Firebase)
		if err != nil {
			log.Fatal(err)
		}
		defer fb.Close()
		b = fb
	}

	m := metrics.New()
	opts := []liveChat.Option{
		liveChat.WithContext(ctx),
		liveChat.WithMetrics(m),
	}
	if cfg.ExpoPush {
		opts = append(opts, liveChat.WithNotifier(pushNotification.NewExpo(b)))
	}
	client := liveChat.NewClient(b, opts...)

	if cfg.MetricsAddr != "" {
		server := &http.Server{Addr: cfg.MetricsAddr, Handler: newRouter(m, client)}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("metrics server stopped: %s", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()
	}

	term := newTerminal(client, os.Stdin, os.Stdout)
	go term.watch(ctx)

	if err := term.run(ctx); err != nil {
		log.Error(err)
	}
	client.LogOut()
}
