package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vortunix/noderegistry/internal/auth"
	"github.com/vortunix/noderegistry/internal/client"
	"github.com/vortunix/noderegistry/internal/config"
	httpapp "github.com/vortunix/noderegistry/internal/http"
	"github.com/vortunix/noderegistry/internal/logger"
	"github.com/vortunix/noderegistry/internal/model"
	"github.com/vortunix/noderegistry/internal/rate"
	"github.com/vortunix/noderegistry/internal/registry"
	"github.com/vortunix/noderegistry/internal/store"
	"github.com/vortunix/noderegistry/internal/store/github"
	"github.com/vortunix/noderegistry/internal/store/memory"
	"github.com/vortunix/noderegistry/internal/store/sqlite"
)

const defaultURL = "http://localhost:8080"

// CLIConfig holds the CLI client configuration persisted to disk.
type CLIConfig struct {
	BaseURL  string `json:"base_url"`
	Username string `json:"username,omitempty"`
}

func main() {
	if len(os.Args) < 2 {
		runServer()
		return
	}

	cmd := os.Args[1]

	if cmd == "-h" || cmd == "--help" || cmd == "help" {
		printUsage()
		return
	}

	if cmd == "-v" || cmd == "--version" || cmd == "version" {
		fmt.Println("vortunix " + config.Load().Version)
		return
	}

	if strings.HasPrefix(cmd, "-") {
		runServer()
		return
	}

	args := os.Args[2:]

	switch cmd {
	case "server", "serve":
		runServer()
	case "use":
		cmdUse(args)
	case "ping", "verify":
		cmdPing(args)
	case "stats":
		cmdStats(args)
	case "logs":
		cmdLogs(args)
	case "list", "ls":
		cmdList(args)
	case "sync", "push":
		cmdSync(args)
	case "wipe":
		cmdWipe(args)
	case "login":
		cmdLogin(args)
	case "status", "whoami":
		cmdStatus(args)
	case "history":
		cmdHistory(args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`vortunix - node registry and check-in service

Usage: vortunix <command> [options]

Client Commands:
  use --url <url>     Remember the registry server to talk to
  ping <token>        Check in as the node holding token
  stats               Show node counts per status
  logs                Show the most recent check-ins
  list                Print the whole registry as JSON
  sync --file <path>  Replace the registry with a JSON list of nodes
  wipe                Replace the registry with an empty list
  login               Check dashboard credentials
  status              Show current client config

Server:
  server              Start the registry server (default if no command)
  history             Show recent revisions of a local sqlite registry

Examples:
  vortunix use --url https://nodes.example.com
  vortunix ping 3f9c-token
  vortunix sync --file nodes.json --action "import nodes"
  vortunix list --out backup.json

Environment Variables (server):
  REGISTRY_ADDR        Listen address (default: :8080, or :$PORT)
  REGISTRY_BACKEND     github, sqlite or memory (default: github)
  REGISTRY_DB          sqlite database path (default: registry.db)
  GH_TOKEN             GitHub token for the registry document
  GH_OWNER, GH_REPO    Repository holding the registry document
  GH_PATH              Document path (default: setting/database.json)
  COMMIT_MODE          async or sync (default: async)
  AUTH_JSON_URL        URL of the dashboard credential list
  DASHBOARD_DIR        Dashboard assets (default: view)
  LOG_LEVEL, LOG_FILE  Logging

Environment Variables (client):
  VORTUNIX_URL         Server URL, overrides the saved one`)
}

// ============================================================================
// SERVER
// ============================================================================

func runServer() {
	cfg := config.Load()
	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		logrus.Fatalf("failed to init logger: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("invalid config: %v", err)
	}

	st, closeStore, err := openStore(cfg)
	if err != nil {
		logrus.Fatalf("failed to open store: %v", err)
	}
	defer closeStore()

	svc := registry.NewService(st, registry.Options{
		Mode:          registry.CommitMode(cfg.CommitMode),
		QueueSize:     cfg.CommitQueue,
		CommitTimeout: cfg.CommitTimeout,
	})
	authSvc := auth.NewService(auth.NewHTTPSource(cfg.AuthURL, cfg.HTTPTimeout))
	limiter := rate.NewMemory()

	server, err := httpapp.NewServer(svc, authSvc, limiter, cfg)
	if err != nil {
		logrus.Fatalf("failed to initialize server: %v", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logrus.WithFields(logrus.Fields{
			"addr":    cfg.Addr,
			"backend": cfg.Backend,
			"commit":  cfg.CommitMode,
		}).Info("registry listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logrus.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.CommitTimeout+5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)
	if err := svc.Close(ctx); err != nil {
		logrus.WithError(err).Warn("pending commits dropped")
	}
}

func openStore(cfg config.Config) (store.Store, func(), error) {
	switch cfg.Backend {
	case config.BackendGitHub:
		st, err := github.New(github.Options{
			APIURL:  cfg.GitHub.APIURL,
			Token:   cfg.GitHub.Token,
			Owner:   cfg.GitHub.Owner,
			Repo:    cfg.GitHub.Repo,
			Path:    cfg.GitHub.Path,
			Branch:  cfg.GitHub.Branch,
			Tag:     cfg.CommitTag,
			Timeout: cfg.HTTPTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		return st, func() {}, nil
	case config.BackendSQLite:
		st, err := sqlite.Open(cfg.DBPath, cfg.CommitTag)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil
	case config.BackendMemory:
		return memory.New(model.Registry{}).WithTag(cfg.CommitTag), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

func cmdHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Number of revisions")
	fs.Parse(args)

	cfg := config.Load()
	st, err := sqlite.Open(cfg.DBPath, cfg.CommitTag)
	if err != nil {
		fail(err)
	}
	defer st.Close()

	revs, err := st.History(context.Background(), *limit)
	if err != nil {
		fail(err)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "REV\tCREATED\tMESSAGE")
	for _, r := range revs {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", r.Revision, r.CreatedAt.Format(time.RFC3339), r.Message)
	}
	tw.Flush()
}

// ============================================================================
// CLIENT COMMANDS
// ============================================================================

func cmdUse(args []string) {
	fs := flag.NewFlagSet("use", flag.ExitOnError)
	url := fs.String("url", "", "Registry server URL (required)")
	fs.Parse(args)

	if *url == "" {
		fmt.Fprintln(os.Stderr, "Error: --url is required")
		fmt.Fprintln(os.Stderr, "Usage: vortunix use --url <server-url>")
		os.Exit(1)
	}

	cfg, _ := loadCLIConfig()
	cfg.BaseURL = strings.TrimSuffix(*url, "/")
	if err := saveCLIConfig(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Using %s\n", cfg.BaseURL)
	fmt.Printf("  Config: %s\n", cliConfigPath())
}

func cmdPing(args []string) {
	fs := flag.NewFlagSet("ping", flag.ExitOnError)
	url := fs.String("url", "", "Registry server URL")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: vortunix ping <token>")
		os.Exit(1)
	}

	c := newClient(*url)
	res, err := c.Verify(context.Background(), fs.Arg(0))
	if err != nil {
		fail(err)
	}

	fmt.Printf("✓ %s (%s)\n", res.Bot.OwnerName, res.Bot.Status)
	if !res.Bot.Number.IsZero() {
		fmt.Printf("  Number: %s\n", res.Bot.Number)
	}
	if len(res.Bot.Logs) > 0 {
		fmt.Printf("  Last:   %s from %s\n", res.Bot.Logs[0].Time, res.Bot.Logs[0].IP)
	}
	if res.Persisted != nil && !*res.Persisted {
		fmt.Println("  Warning: check-in was not persisted")
	}
}

func cmdStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	url := fs.String("url", "", "Registry server URL")
	fs.Parse(args)

	stats, err := newClient(*url).Stats(context.Background())
	if err != nil {
		fail(err)
	}
	fmt.Printf("Total:     %d\n", stats.Total)
	fmt.Printf("Active:    %d\n", stats.Active)
	fmt.Printf("Banned:    %d\n", stats.Banned)
	fmt.Printf("Nonactive: %d\n", stats.Nonactive)
	if stats.Other > 0 {
		fmt.Printf("Other:     %d\n", stats.Other)
	}
}

func cmdLogs(args []string) {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	url := fs.String("url", "", "Registry server URL")
	fs.Parse(args)

	logs, err := newClient(*url).Logs(context.Background())
	if err != nil {
		fail(err)
	}
	if len(logs) == 0 {
		fmt.Println("No check-ins yet")
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tNAME\tNUMBER\tSTATUS\tIP")
	for _, l := range logs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", l.Time, l.Name, l.Number, l.Status, l.IP)
	}
	tw.Flush()
}

func cmdList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	url := fs.String("url", "", "Registry server URL")
	out := fs.String("out", "", "Write the registry to this file instead of stdout")
	fs.Parse(args)

	reg, err := newClient(*url).List(context.Background())
	if err != nil {
		fail(err)
	}
	if reg == nil {
		reg = model.Registry{}
	}
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		fail(err)
	}
	if *out == "" {
		fmt.Println(string(data))
		return
	}
	if err := os.WriteFile(*out, append(data, '\n'), 0o600); err != nil {
		fail(err)
	}
	fmt.Printf("✓ Wrote %d nodes to %s\n", len(reg), *out)
}

func cmdSync(args []string) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	url := fs.String("url", "", "Registry server URL")
	file := fs.String("file", "", "JSON file holding the node list (required)")
	action := fs.String("action", "", "Commit message for the change")
	fs.Parse(args)

	if *file == "" {
		fmt.Fprintln(os.Stderr, "Error: --file is required")
		os.Exit(1)
	}
	reg, err := readRegistry(*file)
	if err != nil {
		fail(err)
	}
	msg := *action
	if msg == "" {
		msg = "sync " + filepath.Base(*file)
	}
	if err := newClient(*url).Sync(context.Background(), reg, msg); err != nil {
		fail(err)
	}
	fmt.Printf("✓ Synced %d nodes\n", len(reg))
}

func cmdWipe(args []string) {
	fs := flag.NewFlagSet("wipe", flag.ExitOnError)
	url := fs.String("url", "", "Registry server URL")
	yes := fs.Bool("yes", false, "Skip the confirmation check")
	fs.Parse(args)

	if !*yes {
		fmt.Fprintln(os.Stderr, "Error: wipe removes every node; pass --yes to confirm")
		os.Exit(1)
	}
	if err := newClient(*url).Sync(context.Background(), model.Registry{}, "wipe"); err != nil {
		fail(err)
	}
	fmt.Println("✓ Registry wiped")
}

func cmdLogin(args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	url := fs.String("url", "", "Registry server URL")
	user := fs.String("user", "", "Dashboard username (required)")
	pass := fs.String("password", os.Getenv("VORTUNIX_PASSWORD"), "Dashboard password")
	fs.Parse(args)

	if *user == "" || *pass == "" {
		fmt.Fprintln(os.Stderr, "Error: --user and --password (or VORTUNIX_PASSWORD) are required")
		os.Exit(1)
	}

	name, err := newClient(*url).Login(context.Background(), *user, *pass)
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		fmt.Fprintln(os.Stderr, "Error: invalid username or password")
		os.Exit(1)
	}
	if err != nil {
		fail(err)
	}

	cfg, _ := loadCLIConfig()
	cfg.Username = name
	if cfg.BaseURL == "" {
		cfg.BaseURL = resolveURL(*url)
	}
	if err := saveCLIConfig(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Logged in as '%s'\n", name)
}

func cmdStatus(args []string) {
	cfg, err := loadCLIConfig()
	if err != nil {
		fmt.Println("Not configured")
		fmt.Println("\nRun: vortunix use --url <server-url>")
		return
	}
	fmt.Printf("Server:   %s\n", resolveURL(""))
	if cfg.Username != "" {
		fmt.Printf("Username: %s\n", cfg.Username)
	}
	fmt.Printf("Config:   %s\n", cliConfigPath())
}

// ============================================================================
// HELPERS
// ============================================================================

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func readRegistry(path string) (model.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg model.Registry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if reg == nil {
		reg = model.Registry{}
	}
	return reg, nil
}

func newClient(flagURL string) *client.Client {
	return client.New(resolveURL(flagURL))
}

// resolveURL picks the server URL: flag, then VORTUNIX_URL, then the saved
// config, then localhost.
func resolveURL(flagURL string) string {
	if flagURL != "" {
		return flagURL
	}
	if env := os.Getenv("VORTUNIX_URL"); env != "" {
		return env
	}
	if cfg, err := loadCLIConfig(); err == nil && cfg.BaseURL != "" {
		return cfg.BaseURL
	}
	return defaultURL
}

func vortunixDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".vortunix")
}

func cliConfigPath() string {
	return filepath.Join(vortunixDir(), "config.json")
}

func loadCLIConfig() (CLIConfig, error) {
	data, err := os.ReadFile(cliConfigPath())
	if err != nil {
		return CLIConfig{}, errors.New("not configured")
	}
	var cfg CLIConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return CLIConfig{}, err
	}
	return cfg, nil
}

func saveCLIConfig(cfg CLIConfig) error {
	if err := os.MkdirAll(vortunixDir(), 0700); err != nil {
		return err
	}
	data, _ := json.MarshalIndent(cfg, "", "  ")
	return os.WriteFile(cliConfigPath(), data, 0600)
}
