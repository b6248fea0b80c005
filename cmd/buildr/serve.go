// ABOUTME: Server mode: opens the stores, builds the model client and workspace manager, and runs HTTP.
// ABOUTME: Background loops evict idle workspaces and prune stale sessions and old log records.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/2389-research/buildr/auth"
	"github.com/2389-research/buildr/build"
	"github.com/2389-research/buildr/config"
	"github.com/2389-research/buildr/eventlog"
	"github.com/2389-research/buildr/generate"
	"github.com/2389-research/buildr/images"
	"github.com/2389-research/buildr/llm"
	"github.com/2389-research/buildr/metrics"
	"github.com/2389-research/buildr/project"
	"github.com/2389-research/buildr/publish"
	"github.com/2389-research/buildr/session"
	"github.com/2389-research/buildr/web"
	"github.com/2389-research/buildr/workspace"
)

const (
	cleanupInterval     = time.Minute
	maintenanceInterval = time.Hour
	eventRetention      = 7 * 24 * time.Hour
)

var errNoProvider = errors.New("no model provider configured; set ANTHROPIC_API_KEY or OPENAI_API_KEY")

// newGenerator builds the in-process generation service over the
// configured providers. m may be nil.
func newGenerator(cfg *config.Config, logger zerolog.Logger, m *metrics.Metrics) (*generate.Service, error) {
	var opts []llm.ClientOption
	if cfg.AnthropicAPIKey != "" {
		var aopts []llm.AnthropicOption
		if cfg.AnthropicBaseURL != "" {
			aopts = append(aopts, llm.WithAnthropicBaseURL(cfg.AnthropicBaseURL))
		}
		opts = append(opts, llm.WithProvider("anthropic", llm.NewAnthropicAdapter(cfg.AnthropicAPIKey, aopts...)))
	}
	if cfg.OpenAIAPIKey != "" {
		opts = append(opts, llm.WithProvider("openai", llm.NewOpenAICompatAdapter(cfg.OpenAIAPIKey, cfg.Model, cfg.OpenAIBaseURL, nil)))
	}
	if len(opts) == 0 {
		return nil, errNoProvider
	}
	if p := cfg.Provider(); p != "" {
		opts = append(opts, llm.WithDefaultProvider(p))
	}

	sopts := []generate.Option{
		generate.WithModel(cfg.Model),
		generate.WithMaxTokens(cfg.MaxTokens),
		generate.WithLogger(logger.With().Str("component", "generate").Logger()),
	}
	if m != nil {
		sopts = append(sopts, generate.WithOutcomeHook(m.RecordGenerate))
	}
	return generate.NewService(llm.NewClient(opts...), sopts...), nil
}

// unavailable fails every build the same way a missing upstream would, so
// the server still starts and serves projects without a model key.
var unavailable = build.GeneratorFunc(func(context.Context, build.GenerateRequest) (io.ReadCloser, error) {
	return nil, &build.HTTPError{StatusCode: http.StatusServiceUnavailable, Message: errNoProvider.Error()}
})

// serve runs the web server until SIGINT or SIGTERM.
func serve(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.Home, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	projects, err := project.Open(ctx, cfg.DatabaseURL, cfg.ProjectsDB())
	if err != nil {
		return err
	}
	defer projects.Close()

	events, err := eventlog.Open(cfg.EventsDB())
	if err != nil {
		return err
	}
	defer events.Close()

	authn, err := auth.New(cfg.JWTSecret, auth.DefaultTTL)
	if err != nil {
		return err
	}
	if !authn.Enabled() {
		logger.Warn().Str("bind", cfg.Bind).Msg("authentication disabled; every request acts as the local owner")
	}

	m := metrics.New()
	sessions := session.NewStore(cfg.SessionsDir(), logger.With().Str("component", "session").Logger())

	var gen build.Generator = unavailable
	svc, err := newGenerator(cfg, logger, m)
	switch {
	case errors.Is(err, errNoProvider):
		logger.Warn().Msg(err.Error())
	case err != nil:
		return err
	default:
		gen = svc
	}

	imgs, err := images.NewService(logger.With().Str("component", "images").Logger(),
		images.Providers(cfg.UnsplashAccessKey, cfg.PexelsAPIKey)...)
	if err != nil {
		return err
	}

	publisher, err := publish.New(publish.Config{
		Endpoint:  cfg.PublishEndpoint,
		AccessKey: cfg.PublishAccessKey,
		SecretKey: cfg.PublishSecretKey,
		Bucket:    cfg.PublishBucket,
		UseSSL:    cfg.PublishUseSSL,
		PublicURL: cfg.PublishPublicURL,
	})
	if errors.Is(err, publish.ErrNotConfigured) {
		publisher, err = nil, nil
	}
	if err != nil {
		return err
	}

	saver := project.NewSaver(projects, cfg.SaveDebounce, logger.With().Str("component", "saver").Logger())
	mgr := workspace.NewManager(projects, gen,
		workspace.WithSaver(saver),
		workspace.WithSessions(sessions),
		workspace.WithEventSink(events),
		workspace.WithMetrics(m),
		workspace.WithThresholds(cfg.Thresholds()),
		workspace.WithTTL(cfg.WorkspaceTTL),
		workspace.WithLogger(logger.With().Str("component", "workspace").Logger()),
	)
	stopCleanup := mgr.StartCleanup(cleanupInterval)
	defer stopCleanup()
	go maintain(ctx, sessions, events, logger)

	var generator build.Generator
	if svc != nil {
		generator = svc
	}
	srv, err := web.NewServer(web.ServerConfig{
		Addr:        cfg.Bind,
		Logger:      logger,
		Auth:        authn,
		Projects:    projects,
		Workspaces:  mgr,
		Sessions:    sessions,
		Generator:   generator,
		Events:      events,
		DebugSecret: cfg.DebugSecret,
		Images:      imgs,
		Publisher:   publisher,
		Metrics:     m,
	})
	if err != nil {
		return err
	}

	logger.Info().
		Str("home", cfg.Home).
		Str("provider", cfg.Provider()).
		Bool("publishing", publisher != nil).
		Str("version", version).
		Msg("buildr starting")
	return srv.ListenAndServe(ctx)
}

// maintain sweeps expired sessions and prunes old log records hourly.
func maintain(ctx context.Context, sessions *session.Store, events *eventlog.Store, logger zerolog.Logger) {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if n, err := sessions.Sweep(); err != nil {
			logger.Warn().Err(err).Msg("session sweep failed")
		} else if n > 0 {
			logger.Info().Int("removed", n).Msg("expired sessions removed")
		}
		if n, err := events.Prune(ctx, time.Now().Add(-eventRetention)); err != nil {
			logger.Warn().Err(err).Msg("event log prune failed")
		} else if n > 0 {
			logger.Info().Int64("removed", n).Msg("old log records pruned")
		}
	}
}
