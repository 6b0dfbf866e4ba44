package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RobertWHurst/halyard"
	"github.com/RobertWHurst/halyard/interceptors/filter"
	"github.com/RobertWHurst/halyard/interceptors/ratelimit"
	"github.com/RobertWHurst/halyard/layers/require"
	"github.com/RobertWHurst/halyard/layers/set"
	"github.com/RobertWHurst/halyard/natsrelay"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Level(),
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error(fmt.Sprintf("chat server terminated with error: %s", err))
		os.Exit(1)
	}
	logger.Info("chat server stopped")
}

func run(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	metrics := halyard.NewMetrics("chat")
	if err := metrics.Register(reg); err != nil {
		return err
	}

	room := NewRoom()
	server := halyard.NewServer(room)
	server.SetLogger(logger)
	server.SetMetrics(metrics)
	server.SetOrigins(cfg.Origins)

	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			return err
		}
		defer nc.Close()
		if err := server.SetRelay(natsrelay.New(nc, cfg.NATSPrefix)); err != nil {
			return err
		}
		logger.Info("relaying through nats", slog.String("url", cfg.NATSURL))
	}

	limiter := ratelimit.New(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	server.Intercept(halyard.Incoming, ratelimit.Interceptor[*Room](limiter))
	server.Intercept(halyard.Outgoing, filter.Interceptor[*Room](
		filter.New().Redact(`\b\d{4}[ -]?\d{4}[ -]?\d{4}[ -]?\d{4}\b`, "****"),
	))

	server.Layer(
		set.Layer[*Room]("node", "node", uuid.NewString()),
		require.Rejecting[*Room]("need-text", "ERROR", []string{"SAY", "WHISPER"}, "text"),
		require.Rejecting[*Room]("need-target", "ERROR", []string{"WHISPER"}, "to"),
		require.Rejecting[*Room]("need-name", "ERROR", []string{"NICK"}, "name"),
	)

	server.Route(halyard.ConnectedCommand, func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, room *Room) {
		room.Join(d.ID())
		_ = d.SendCommand("WELCOME", halyard.Params{"uuid": d.ID(), "node": p.Get("node")})
	})

	server.Route(halyard.DisconnectedCommand, func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, room *Room) {
		limiter.Forget(d.ID())
		name := room.Leave(d.ID())
		broadcast(d, room, halyard.Encode("LEFT", halyard.Params{"from": name}))
	})

	server.Route("NICK", func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, room *Room) {
		room.Rename(d.ID(), p.Get("name"))
		_ = d.SendCommand("NICKED", halyard.Params{"name": p.Get("name")})
	})

	server.Route("SAY", func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, room *Room) {
		broadcast(d, room, halyard.Encode("SAID", halyard.Params{
			"from": room.Name(d.ID()),
			"text": p.Get("text"),
		}))
	})

	server.Route("WHISPER", func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, room *Room) {
		_ = d.SendTo(p.Get("to"), halyard.Encode("WHISPERED", halyard.Params{
			"from": room.Name(d.ID()),
			"text": p.Get("text"),
		}))
	})

	server.Route("WHO", func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, room *Room) {
		for _, id := range room.Members() {
			_ = d.SendCommand("MEMBER", halyard.Params{"uuid": id, "name": room.Name(id)})
		}
	})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.ListenAndServe(ctx, cfg.Addr)
	})

	g.Go(func() error {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsServer := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
		logger.Info("metrics listening", slog.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	return g.Wait()
}

func broadcast(d *halyard.Dispatcher, room *Room, text string) {
	for _, id := range room.Members() {
		_ = d.SendTo(id, text)
	}
}
