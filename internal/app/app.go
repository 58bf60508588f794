package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"feedsnap/internal/app/server"
	"feedsnap/internal/blacklist"
	"feedsnap/internal/config"
	"feedsnap/internal/database"
	"feedsnap/internal/fetcher"
	"feedsnap/internal/parser"
	"feedsnap/internal/sink"
	"feedsnap/internal/support"
)

type options struct {
	settingsPath string
	sourcesPath  string
	outputPath   string
	listenAddr   string
	once         bool
	verbose      bool
}

func Run() error {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found. Falling back to system environment variables.")
	}

	opts, err := parseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	level := support.GetEnv("LOG_LEVEL", "info")
	if opts.verbose {
		level = "debug"
	}
	logCloser := support.SetupLogging(support.LogOptions{
		Level:      level,
		File:       support.GetEnv("LOG_FILE", ""),
		MaxSizeMB:  support.GetEnvInt("LOG_MAX_SIZE_MB", 0),
		MaxBackups: support.GetEnvInt("LOG_MAX_BACKUPS", 0),
		MaxAgeDays: support.GetEnvInt("LOG_MAX_AGE_DAYS", 0),
	})
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, opts)
}

func parseFlags(args []string) (options, error) {
	fs := flag.NewFlagSet("feedsnap", flag.ContinueOnError)

	var opts options
	fs.StringVar(&opts.settingsPath, "settings", config.DefaultSettingsPath, "Path to the settings file")
	fs.StringVar(&opts.sourcesPath, "sources", "", "Path to the feed source list (overrides settings)")
	fs.StringVar(&opts.outputPath, "output", "", "Path of the snapshot JSON file (overrides settings)")
	fs.StringVar(&opts.listenAddr, "listen", "", "Address for the HTTP API, e.g. :8080")
	fs.BoolVar(&opts.once, "once", false, "Run a single refresh and exit")
	fs.BoolVar(&opts.verbose, "verbose", false, "Enable debug logging")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

func run(ctx context.Context, opts options) error {
	if err := config.ReadSettings(opts.settingsPath); err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	cfg := config.GetConfig()

	feeds, err := loadFeeds(sourcesPath(opts, cfg))
	if err != nil {
		return err
	}

	sinks, closeSinks, err := buildSinks(cfg, outputPath(opts, cfg))
	if err != nil {
		return err
	}
	defer closeSinks()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	manager := blacklist.NewManager(feeds, newFetcher(cfg), cfg.Fetcher.Workers,
		blacklist.WithSink(sinks),
		blacklist.WithMetrics(blacklist.NewMetrics(registry)),
	)

	listenAddr := resolveListenAddr(opts.listenAddr, "LISTEN_ADDR")
	if opts.once || (config.GetRefreshInterval() == 0 && listenAddr == "") {
		_, err := manager.Refresh(ctx, "once")
		return err
	}

	return runDaemon(ctx, opts, manager, registry, listenAddr)
}

func runDaemon(ctx context.Context, opts options, manager *blacklist.Manager, registry *prometheus.Registry, listenAddr string) error {
	triggers := make(chan string, 1)

	hangup := make(chan os.Signal, 1)
	signal.Notify(hangup, syscall.SIGHUP)
	defer signal.Stop(hangup)

	g, gctx := errgroup.WithContext(ctx)

	if config.GetConfig().Sinks.Redis.Enabled {
		if client, err := support.GetRedisClient(); err == nil {
			stopHeartbeat := support.LaunchInstanceHeartbeat(gctx, client, func() int64 {
				if snap, err := manager.Latest(); err == nil {
					return snap.Timestamp
				}
				return 0
			})
			defer stopHeartbeat()
		}
	}

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hangup:
				if err := reload(opts, manager); err != nil {
					log.Error("Reload failed, keeping previous configuration", "error", err)
					continue
				}
				select {
				case triggers <- "reload":
				default:
				}
			}
		}
	})

	g.Go(func() error {
		manager.StartRefreshRoutine(gctx, triggers)
		return nil
	})

	if listenAddr != "" {
		g.Go(func() error {
			return server.Serve(gctx, listenAddr, server.NewRouter(manager, registry))
		})
	}

	log.Info("Running as daemon", "refresh_interval", config.GetRefreshInterval(), "listen", listenAddr)
	return g.Wait()
}

// reload re-reads the settings and the source list and applies them only
// when both are valid. Sinks keep the configuration they were started with.
func reload(opts options, manager *blacklist.Manager) error {
	cfg, err := config.LoadSettings(opts.settingsPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	feeds, err := loadFeeds(sourcesPath(opts, cfg))
	if err != nil {
		return err
	}

	config.ApplyConfig(cfg)
	manager.Reconfigure(feeds, newFetcher(cfg), cfg.Fetcher.Workers)
	log.Info("Configuration reloaded", "sources", len(feeds))
	return nil
}

func loadFeeds(path string) ([]blacklist.Feed, error) {
	sources, err := config.LoadSources(path)
	if errors.Is(err, config.ErrNoSources) {
		log.Warn("Source list is empty, snapshots will contain no feeds", "path", path)
	} else if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}

	feeds, err := blacklist.CompileSources(sources, parser.DefaultMatchTimeout)
	if err != nil {
		return nil, fmt.Errorf("compile sources: %w", err)
	}
	log.Debug("Sources loaded", "path", path, "count", len(feeds))
	return feeds, nil
}

func newFetcher(cfg config.Config) *fetcher.Fetcher {
	return fetcher.New(
		fetcher.WithTimeout(cfg.Fetcher.Timeout()),
		fetcher.WithAttempts(cfg.Fetcher.Attempts),
		fetcher.WithBackoff(cfg.Fetcher.Backoff()),
		fetcher.WithUserAgent(cfg.Fetcher.UserAgent),
		fetcher.WithMaxBodyBytes(cfg.Fetcher.MaxBodyBytes),
		fetcher.WithBlocklist(config.IsHostBlocked),
	)
}

// buildSinks assembles the enabled sinks with the file sink first.
func buildSinks(cfg config.Config, output string) (sink.Multi, func(), error) {
	sinks := sink.Multi{sink.NewFile(output)}
	var closers []func() error

	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Warn("error closing sink", "error", err)
			}
		}
	}

	if cfg.Sinks.Redis.Enabled {
		client, err := support.GetRedisClient()
		if err != nil {
			return nil, func() {}, fmt.Errorf("failed to get redis client: %w", err)
		}
		closers = append(closers, support.CloseRedisClient)
		sinks = append(sinks, sink.NewRedis(client, cfg.Sinks.Redis.Key, cfg.Sinks.Redis.Channel))
	}

	if cfg.Sinks.Database.Enabled {
		if _, err := database.SetupDB(); err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("failed to set up database: %w", err)
		}
		closers = append(closers, database.CloseDB)
		sinks = append(sinks, sink.NewDatabase())
	}

	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		names = append(names, s.Name())
	}
	log.Info("Snapshot sinks ready", "sinks", strings.Join(names, ","), "output", output)
	return sinks, closeAll, nil
}

func sourcesPath(opts options, cfg config.Config) string {
	return resolveValue(opts.sourcesPath, "SOURCES_FILE", cfg.SourcesFile)
}

func outputPath(opts options, cfg config.Config) string {
	return resolveValue(opts.outputPath, "OUTPUT_PATH", cfg.Output.Path)
}

// resolveValue prefers an explicit flag, then the environment, then the settings file.
func resolveValue(flagValue, envKey, fallback string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		return v
	}
	return fallback
}

func resolveListenAddr(flagValue, envKey string) string {
	if flagValue != "" {
		addr := readListenAddr(flagValue)
		if addr == "" {
			log.Warn("invalid listen address flag", "value", flagValue)
		}
		return addr
	}
	raw := os.Getenv(envKey)
	addr := readListenAddr(raw)
	if addr == "" && raw != "" {
		log.Warn("invalid listen address override", "env", envKey, "value", raw)
	}
	return addr
}

// readListenAddr accepts host:port or a bare port number.
func readListenAddr(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if port, err := strconv.Atoi(raw); err == nil {
		if port <= 0 || port > 65535 {
			return ""
		}
		return ":" + raw
	}
	_, portStr, err := net.SplitHostPort(raw)
	if err != nil {
		return ""
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return ""
	}
	return raw
}
