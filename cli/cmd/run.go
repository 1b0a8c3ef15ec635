// Package cmd provides CLI commands for the loom binary.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/loom/adapter"
	adapterredis "github.com/justapithecus/loom/adapter/redis"
	"github.com/justapithecus/loom/adapter/webhook"
	"github.com/justapithecus/loom/cli/config"
	"github.com/justapithecus/loom/correlate"
	"github.com/justapithecus/loom/iox"
	"github.com/justapithecus/loom/log"
	"github.com/justapithecus/loom/metrics"
	"github.com/justapithecus/loom/notify"
	"github.com/justapithecus/loom/resolve"
	"github.com/justapithecus/loom/runtime"
	"github.com/justapithecus/loom/store/sqlite"
	"github.com/justapithecus/loom/trace"
	traceamqp "github.com/justapithecus/loom/trace/amqp"
	"github.com/justapithecus/loom/types"
)

// Exit codes for run and inspect.
const (
	exitSuccess      = 0
	exitStreamError  = 1
	exitStoreFailure = 2
)

// RunSummary is the JSON summary printed after a run.
type RunSummary struct {
	RunID          string           `json:"run_id"`
	ChatID         string           `json:"chat_id"`
	Artifacts      int              `json:"artifacts"`
	Groups         int              `json:"groups"`
	OpenArtifacts  []string         `json:"open_artifacts,omitempty"`
	Metrics        metrics.Snapshot `json:"metrics"`
	SkippedSamples []skippedSample  `json:"skipped_samples,omitempty"`
}

type skippedSample struct {
	Reason string `json:"reason"`
	Kind   string `json:"kind,omitempty"`
	Role   string `json:"role,omitempty"`
}

// RunCommand returns the run command: ingest a frame stream into a
// session and print a summary.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Ingest a fragment frame stream into a session",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "input",
				Aliases: []string{"i"},
				Usage:   "Frame stream file (default: stdin)",
			},
			&cli.StringFlag{
				Name:  "chat-id",
				Usage: "Default session for fragments without a chat id",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to loom.yaml",
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "SQLite database path (overrides config; empty disables persistence)",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress summary output",
			},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitStoreFailure)
	}

	chatID := c.String("chat-id")
	if chatID == "" {
		chatID = cfg.ChatID
	}
	if chatID == "" {
		return cli.Exit("run requires --chat-id (or chat_id in config)", exitStreamError)
	}

	input := os.Stdin
	if path := c.String("input"); path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return cli.Exit(fmt.Sprintf("cannot open input: %v", err), exitStreamError)
		}
		defer iox.DiscardClose(f)
		input = f
	}

	runID := uuid.NewString()
	logger := log.NewLogger("loom").WithChat(chatID)
	logger.Info("run starting", map[string]any{"run_id": runID})
	collector := metrics.NewCollector(chatID)

	// Durable store (optional)
	var store *sqlite.Store
	dbPath := c.String("db")
	if dbPath == "" {
		dbPath = cfg.Storage.Path
	}
	if dbPath != "" {
		store, err = sqlite.Open(dbPath)
		if err != nil {
			return cli.Exit(fmt.Sprintf("store: %v", err), exitStoreFailure)
		}
	}

	// Traceability sink (optional)
	var tracer trace.Recorder = trace.Nop{}
	if cfg.Trace.URL != "" {
		rec, err := traceamqp.New(traceamqp.Config{
			URL:     cfg.Trace.URL,
			Queue:   cfg.Trace.Queue,
			Timeout: cfg.Trace.Timeout.Duration,
		})
		if err != nil {
			// Tracing is advisory; a dead broker must not block ingestion.
			logger.Warn("trace recorder unavailable", map[string]any{"error": err.Error()})
		} else {
			tracer = rec
			defer iox.DiscardClose(rec)
		}
	}

	hub := notify.NewHub()
	if adapterCfg := cfg.Adapter; adapterCfg.Type != "" {
		a, err := buildAdapter(adapterCfg)
		if err != nil {
			return cli.Exit(fmt.Sprintf("adapter: %v", err), exitStoreFailure)
		}
		defer iox.DiscardClose(a)
		hub.Subscribe(adapter.Subscriber(a, logger))
	}

	correlator := correlate.NewCorrelator(correlate.Config{
		Store:     storeOrNil(store),
		Hub:       hub,
		Tracer:    tracer,
		Logger:    logger,
		Collector: collector,
	})

	resolver := resolve.NewResolver(resolve.NewULIDMinter(),
		resolve.WithTurnSequence(correlator),
		resolve.WithLogger(logger),
	)

	pipeline := runtime.NewPipeline(runtime.Config{
		ChatID:    chatID,
		Resolver:  resolver,
		Logger:    logger,
		Collector: collector,
	})

	pipeline.AddArtifactSink(runtime.ArtifactSinkFunc(func(artifact *types.Artifact) {
		// Persist the stamped copy so session index and category survive
		// a reload in the order the session assigned them.
		stamped := correlator.AddArtifact(artifact)
		if stamped == nil || store == nil {
			return
		}
		if err := store.SaveArtifact(context.Background(), stamped); err != nil {
			logger.Warn("persist artifact failed", map[string]any{
				"artifact_id": stamped.ID,
				"error":       err.Error(),
			})
		}
	}))

	var skipped []skippedSample
	pipeline.AddSkipSink(func(s runtime.SkippedFragment) {
		if len(skipped) < 10 {
			sample := skippedSample{Reason: string(s.Reason)}
			if s.Fragment != nil {
				sample.Kind = string(s.Fragment.Kind)
				sample.Role = string(s.Fragment.Role)
			}
			skipped = append(skipped, sample)
		}
	})

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		cancel()
	}()

	runErr := pipeline.Run(ctx, input)

	if !c.Bool("quiet") {
		summary := RunSummary{
			RunID:          runID,
			ChatID:         chatID,
			Artifacts:      len(correlator.SessionArtifacts(chatID)),
			OpenArtifacts:  pipeline.Reassembler().OpenIDs(),
			Metrics:        collector.Snapshot(),
			SkippedSamples: skipped,
		}
		if view, err := correlator.SwitchSession(context.Background(), chatID); err == nil {
			summary.Groups = len(view.Groups)
		}
		printJSON(c.App.Writer, summary)
	}

	if runErr != nil {
		return cli.Exit(fmt.Sprintf("stream: %v", runErr), exitStreamError)
	}
	return cli.Exit("", exitSuccess)
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if path == "" {
		return &config.Config{}, nil
	}
	return config.Load(path)
}

func buildAdapter(cfg config.AdapterConfig) (adapter.Adapter, error) {
	retries := 0
	if cfg.Retries != nil {
		retries = *cfg.Retries
	}
	switch cfg.Type {
	case "redis":
		return adapterredis.New(adapterredis.Config{
			URL:     cfg.URL,
			Channel: cfg.Channel,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
		})
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     cfg.URL,
			Headers: cfg.Headers,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter type %q", cfg.Type)
	}
}

// storeOrNil avoids a non-nil interface wrapping a nil pointer.
func storeOrNil(s *sqlite.Store) correlate.Store {
	if s == nil {
		return nil
	}
	return s
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
