// Package main is the lookalike CLI entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hyperjump/lookalike/internal/cli"
	"github.com/hyperjump/lookalike/internal/config"
	"github.com/hyperjump/lookalike/internal/embedding"
	"github.com/hyperjump/lookalike/internal/ingest"
	"github.com/hyperjump/lookalike/internal/metrics"
	"github.com/hyperjump/lookalike/internal/models"
	"github.com/hyperjump/lookalike/internal/search"
	"github.com/hyperjump/lookalike/internal/server"
	"github.com/hyperjump/lookalike/internal/storage"
	"github.com/hyperjump/lookalike/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/lookalike/config.yaml"
	defaultServerURL  = "http://localhost:5000"
	shutdownTimeout   = 10 * time.Second
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// A missing default file falls back to defaults and environment variables only.
// Returns the config and the path that was actually loaded ("" when none was).
func loadConfig(path string) (*config.Config, string, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, "", err
	}
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			cfg, err := config.Load("")
			return cfg, "", err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "import":
		runImport()
	case "status":
		runStatus()
	case "config":
		runConfig()
	case "version", "--version", "-v":
		fmt.Printf("lookalike version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.String("store", cfg.Store.Type),
		zap.String("embedding_url", cfg.Embedding.URL),
		zap.Bool("debug", debugMode),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	if seed := cfg.Ingest.SeedFile; seed != "" {
		opts := ingest.Options{Dimensions: cfg.Embedding.Dimensions, Normalize: cfg.Ingest.Normalize, Logger: logger}
		n, err := ingest.Load(ctx, seed, components.Store, opts)
		if err != nil {
			logger.Fatal("Failed to load seed file", zap.String("path", seed), zap.Error(err))
		}
		components.Metrics.SetStoredItems(int64(n))
		logger.Info("seed file loaded", zap.String("path", seed), zap.Int("items", n))

		if cfg.Ingest.Watch {
			reload := ingest.ReloadOnChange(ctx, components.Store, opts, logger, func(n int) {
				components.Metrics.SetStoredItems(int64(n))
			})
			if err := ingest.NewWatcher(seed, reload, ingest.WithLogger(logger)).Start(ctx); err != nil {
				logger.Fatal("Failed to start seed watcher", zap.Error(err))
			}
		}
	}

	srvOpts := []server.Option{server.WithMetrics(components.Metrics)}
	if b := embedding.FindBreaker(components.Client); b != nil {
		srvOpts = append(srvOpts, server.WithBreaker(b))
	}
	srv := server.NewServer(components.Engine, cfg, logger, srvOpts...)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: lookalike search [flags] <image>\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  lookalike search ring.jpg
  lookalike search --limit 10 ring.jpg
  lookalike search ring.jpg --output json
  lookalike search --server "" ring.jpg        # no server: embed and rank in process
`)
}

// searchArgsReorder moves any flags (and their values) that appear after the image
// path to the front so that flag.Parse sees them.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = embed and rank in process)")
	limit := fs.Int("limit", 0, "number of results (0 = server default)")
	timeout := fs.Duration("timeout", 60*time.Second, "request timeout")
	outputFormat := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	if fs.NArg() != 1 {
		printSearchUsage(fs)
		os.Exit(1)
	}
	imagePath := fs.Arg(0)
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var response *models.SearchResponse
	if *serverURL != "" {
		response, err = cli.NewAPIClient(*serverURL, *timeout).SearchFile(ctx, imagePath, *limit)
	} else {
		response, err = searchDirect(ctx, *configPath, imagePath, *limit)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func searchDirect(ctx context.Context, configPath, imagePath string, limit int) (*models.SearchResponse, error) {
	image, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, err
	}
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return nil, err
	}
	defer logger.Sync()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer components.Close()
	return components.Engine.Search(ctx, &models.ImageQuery{
		Image:    image,
		Filename: filepath.Base(imagePath),
		Limit:    limit,
	})
}

func runImport() {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	normalize := fs.Bool("normalize", false, "scale vectors to unit length before storing")
	replace := fs.Bool("replace", false, "replace all stored items instead of upserting")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() != 1 {
		fmt.Println("Usage: lookalike import [flags] <items.json|items.jsonl>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()
	store, err := storage.NewStore(ctx, &cfg.Store, cfg.Embedding.Dimensions, logger)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}
	defer store.Close()

	opts := ingest.Options{Dimensions: cfg.Embedding.Dimensions, Normalize: *normalize || cfg.Ingest.Normalize, Logger: logger}
	load := ingest.Import
	if *replace {
		load = ingest.Load
	}
	n, err := load(ctx, path, store, opts)
	if err != nil {
		fmt.Printf("Import failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Imported %d items into %s store\n", n, store.Type())
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read the store directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx := context.Background()
	var status *models.StatusResponse
	if *serverURL != "" {
		status, err = cli.NewAPIClient(*serverURL, 10*time.Second).Status(ctx)
	} else {
		status, err = statusDirect(ctx, *configPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func statusDirect(ctx context.Context, configPath string) (*models.StatusResponse, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	store, err := storage.NewStore(ctx, &cfg.Store, cfg.Embedding.Dimensions, zap.NewNop())
	if err != nil {
		return nil, err
	}
	defer store.Close()

	engine := search.NewEngine(nil, store, &cfg.Search, zap.NewNop(), search.WithPushDown(cfg.Store.PushDown))
	status, err := engine.Status(ctx)
	if err != nil {
		return nil, err
	}
	status.Dimensions = cfg.Embedding.Dimensions
	if cfg.Store.Type == storage.TypeSQLite {
		if n, err := storage.DiskUsageBytes(storage.SQLiteFiles(cfg.Store.DatabasePath)...); err == nil {
			status.DiskUsage = n
		}
	}
	return status, nil
}

func runConfig() {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	writePath := fs.String("write", "", "write the effective config to this path instead of printing it")
	_ = fs.Parse(os.Args[2:])

	cfg, resolved, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *writePath != "" {
		if err := config.Save(*writePath, cfg); err != nil {
			fmt.Printf("Failed to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Config written to %s\n", *writePath)
		return
	}
	if resolved != "" {
		fmt.Printf("# loaded from %s\n", resolved)
	} else {
		fmt.Println("# no config file; defaults and environment")
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Printf("Failed to encode config: %v\n", err)
		os.Exit(1)
	}
	fmt.Print(string(out))
}

// Components holds initialized services.
type Components struct {
	Store   storage.ReadWriter
	Client  embedding.Client
	Engine  *search.Engine
	Metrics *metrics.Metrics
}

func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Client != nil {
		_ = c.Client.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewStore(ctx, &cfg.Store, cfg.Embedding.Dimensions, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	client := embedding.NewClient(&cfg.Embedding, logger)
	m := metrics.New()

	engine := search.NewEngine(client, store, &cfg.Search, logger,
		search.WithMetrics(m),
		search.WithPushDown(cfg.Store.PushDown),
	)
	logger.Info("search engine initialized",
		zap.String("store", store.Type()),
		zap.String("strategy", engine.Strategy()))

	return &Components{
		Store:   store,
		Client:  client,
		Engine:  engine,
		Metrics: m,
	}, nil
}

func printUsage() {
	fmt.Println(`lookalike - image similarity search relay

Usage:
  lookalike server [flags]           Start the HTTP server
  lookalike search [flags] <image>   Find stored items that look like an image
  lookalike import [flags] <file>    Load items (JSON array or JSON Lines) into the store
  lookalike status [flags]           Show store status
  lookalike config [flags]           Print or write the effective configuration
  lookalike version                  Show version
  lookalike help                     Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/lookalike/config.yaml)
  --debug            Enable debug logging

Search Flags:
  --server string    Server URL (default: http://localhost:5000). Use --server "" to search without a server.
  --config string    Config file path (when --server is empty)
  --limit int        Number of results (default: server default)
  --timeout duration Request timeout (default: 60s)
  --output string    Output format: text or json (default: text)

Import Flags:
  --config string    Config file path
  --normalize        Scale vectors to unit length before storing
  --replace          Replace all stored items instead of upserting

Status Flags:
  --server string    Server URL (default: http://localhost:5000). Use --server "" to read the store directly.
  --config string    Config file path (when --server is empty)
  --output string    Output format: text or json (default: text)

Config Flags:
  --config string    Config file path
  --write string     Write the effective config to a file

Environment:
  PORT, MONGODB_URI, FASTAPI_URL, CORS_ORIGIN, and LOOKALIKE_<SECTION>_<KEY>
  (e.g. LOOKALIKE_STORE_TYPE=mongo). A .env file in the working directory is loaded.

Examples:
  lookalike server
  lookalike import --normalize items.jsonl
  lookalike search ring.jpg
  lookalike search --limit 10 --output json ring.jpg
  lookalike status`)
}
