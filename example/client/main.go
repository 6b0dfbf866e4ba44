package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/RobertWHurst/halyard"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the chat client's settings, read from CHAT_* environment
// variables.
type Config struct {
	URL     string        `envconfig:"URL" default:"ws://localhost:8167/"`
	Name    string        `envconfig:"NAME" default:"anonymous"`
	Backoff time.Duration `envconfig:"BACKOFF" default:"2s"`
	Debug   bool          `envconfig:"DEBUG" default:"false"`
}

type Client struct {
	name string
}

func main() {
	var cfg Config
	if err := envconfig.Process("chat", &cfg); err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}

	level := slog.LevelWarn
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connector := halyard.NewConnector(cfg.URL, &Client{name: cfg.Name})
	connector.SetLogger(logger)
	connector.SetBackoff(cfg.Backoff)

	connector.Route(halyard.ConnectedCommand, func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, c *Client) {
		fmt.Println("* connected")
		_ = d.SendCommand("NICK", halyard.Params{"name": c.name})
	})
	connector.Route(halyard.DisconnectedCommand, func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, c *Client) {
		fmt.Println("* disconnected, reconnecting")
	})
	connector.Route("SAID", func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, c *Client) {
		fmt.Printf("<%s> %s\n", p.Get("from"), p.Get("text"))
	})
	connector.Route("WHISPERED", func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, c *Client) {
		fmt.Printf("*%s* %s\n", p.Get("from"), p.Get("text"))
	})
	connector.Route("LEFT", func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, c *Client) {
		fmt.Printf("* %s left\n", p.Get("from"))
	})
	connector.Route("MEMBER", func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, c *Client) {
		fmt.Printf("* %s (%s)\n", p.Get("name"), p.Get("uuid"))
	})
	connector.Route("ERROR", func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, c *Client) {
		fmt.Printf("! missing %s\n", p.Get("missing"))
	})

	go readInput(ctx, connector)

	if err := connector.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("connector stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// readInput sends each line typed as a SAY command. Lines starting with
// /who, /nick <name> or /msg <uuid> <text> map to the other commands.
func readInput(ctx context.Context, connector *halyard.Connector[*Client]) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var err error
		switch fields := strings.SplitN(line, " ", 3); {
		case fields[0] == "/who":
			err = connector.SendCommand("WHO", nil)
		case fields[0] == "/nick" && len(fields) >= 2:
			err = connector.SendCommand("NICK", halyard.Params{"name": strings.Join(fields[1:], " ")})
		case fields[0] == "/msg" && len(fields) == 3:
			err = connector.SendCommand("WHISPER", halyard.Params{"to": fields[1], "text": fields[2]})
		default:
			err = connector.SendCommand("SAY", halyard.Params{"text": line})
		}
		if err != nil {
			fmt.Println("! not sent:", err)
		}
	}
}
