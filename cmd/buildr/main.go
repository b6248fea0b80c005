// ABOUTME: CLI entrypoint for buildr: the web server by default, plus one-shot build, validate, and token modes.
// ABOUTME: Wires config, logging, stores, the model client, workspaces, and signal handling together.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/2389-research/buildr/auth"
	"github.com/2389-research/buildr/build"
	"github.com/2389-research/buildr/config"
)

var version = "dev"

// options holds all CLI configuration parsed from flags and positional arguments.
type options struct {
	bind         string
	home         string
	output       string
	validateFile string
	tokenOwner   string
	tokenName    string
	category     string
	planMode     bool
	premiumMode  bool
	useTUI       bool
	showVersion  bool
	prompt       string
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	if opts.showVersion {
		fmt.Printf("buildr %s\n", version)
		os.Exit(0)
	}

	os.Exit(run(opts, os.Stdout, os.Stderr))
}

// parseFlags parses command-line flags. Remaining arguments form the
// one-shot build prompt.
func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options

	fs := flag.NewFlagSet("buildr", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.bind, "bind", "", "Server listen address (default: $BUILDR_BIND or 127.0.0.1:2389)")
	fs.StringVar(&opts.home, "home", "", "Data directory (default: $XDG_DATA_HOME/buildr)")
	fs.StringVar(&opts.output, "o", "", "Write a one-shot build to this file instead of stdout")
	fs.StringVar(&opts.validateFile, "validate", "", "Check an HTML file and print its issues")
	fs.StringVar(&opts.tokenOwner, "token", "", "Print an access token for this owner and exit")
	fs.StringVar(&opts.tokenName, "token-name", "", "Display name stored in the token")
	fs.StringVar(&opts.category, "category", "", "Template category for a one-shot build")
	fs.BoolVar(&opts.planMode, "plan", false, "Ask for a plan instead of a page")
	fs.BoolVar(&opts.premiumMode, "premium", false, "Use the premium design prompt")
	fs.BoolVar(&opts.useTUI, "tui", false, "Show a full-screen progress view for a one-shot build")
	fs.BoolVar(&opts.showVersion, "version", false, "Print version and exit")

	fs.Usage = func() {
		printHelp(stderr, version)
	}

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	opts.prompt = strings.TrimSpace(strings.Join(fs.Args(), " "))
	return opts, nil
}

// run dispatches to the appropriate mode. Returns an exit code: 0 for
// success, 1 for failure.
func run(opts options, stdout, stderr io.Writer) int {
	if opts.validateFile != "" {
		return validateFile(opts.validateFile, stdout, stderr)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	switch {
	case opts.tokenOwner != "":
		return issueToken(cfg, opts, stdout, stderr)
	case opts.prompt != "":
		logger := newLogger(cfg, stderr)
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		gen, err := newGenerator(cfg, logger, nil)
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
		if opts.useTUI {
			return oneShotTUI(ctx, gen, cfg.Thresholds(), opts, stdout, stderr)
		}
		return oneShot(ctx, gen, cfg.Thresholds(), opts, stdout, stderr)
	default:
		logger := newLogger(cfg, stdout)
		if err := serve(cfg, logger); err != nil {
			logger.Error().Err(err).Msg("server stopped")
			return 1
		}
		return 0
	}
}

func (o options) submitOptions() build.SubmitOptions {
	return build.SubmitOptions{
		PlanMode:         o.planMode,
		PremiumMode:      o.premiumMode,
		TemplateCategory: o.category,
	}
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig(opts options) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if opts.bind != "" {
		cfg.Bind = opts.bind
	}
	if opts.home != "" {
		cfg.Home = opts.home
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the root logger and installs it as the global one.
func newLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = w
	if cfg.IsDevelopment() {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	logger := zerolog.New(out).With().Timestamp().Str("service", "buildr").Logger()
	log.Logger = logger
	return logger
}

// issueToken prints a signed access token for a remote deployment.
func issueToken(cfg *config.Config, opts options, stdout, stderr io.Writer) int {
	if cfg.JWTSecret == "" {
		fmt.Fprintln(stderr, "error: BUILDR_JWT_SECRET is not set; tokens are not needed on a local bind")
		return 1
	}
	a, err := auth.New(cfg.JWTSecret, auth.DefaultTTL)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	token, err := a.Issue(opts.tokenOwner, opts.tokenName)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, token)
	return 0
}
