package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendGitHub = "github"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

type Config struct {
	Addr           string
	Backend        string
	DBPath         string
	GitHub         GitHub
	CommitTag      string
	CommitMode     string
	CommitTimeout  time.Duration
	CommitQueue    int
	AuthURL        string
	HTTPTimeout    time.Duration
	DashboardDir   string
	LoginPerMinute int
	Log            Log
	Version        string
}

type GitHub struct {
	Token  string
	Owner  string
	Repo   string
	Path   string
	Branch string
	APIURL string
}

type Log struct {
	Level      string
	File       string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() Config {
	_ = godotenv.Load()

	addr := envString("REGISTRY_ADDR", "")
	if addr == "" {
		if port := os.Getenv("PORT"); port != "" {
			addr = ":" + port
		} else {
			addr = ":8080"
		}
	}
	return Config{
		Addr:    addr,
		Backend: strings.ToLower(envString("REGISTRY_BACKEND", BackendGitHub)),
		DBPath:  envString("REGISTRY_DB", "registry.db"),
		GitHub: GitHub{
			Token:  envString("GH_TOKEN", ""),
			Owner:  envString("GH_OWNER", ""),
			Repo:   envString("GH_REPO", ""),
			Path:   envString("GH_PATH", "setting/database.json"),
			Branch: envString("GH_BRANCH", ""),
			APIURL: envString("GH_API_URL", "https://api.github.com"),
		},
		CommitTag:      envString("COMMIT_TAG", "[Vortunix Core]"),
		CommitMode:     strings.ToLower(envString("COMMIT_MODE", "async")),
		CommitTimeout:  envDuration("COMMIT_TIMEOUT", 30*time.Second),
		CommitQueue:    envInt("COMMIT_QUEUE", 64),
		AuthURL:        envString("AUTH_JSON_URL", ""),
		HTTPTimeout:    envDuration("HTTP_TIMEOUT", 15*time.Second),
		DashboardDir:   envString("DASHBOARD_DIR", "view"),
		LoginPerMinute: envInt("LOGIN_PER_MINUTE", 20),
		Log: Log{
			Level:      envString("LOG_LEVEL", "info"),
			File:       envString("LOG_FILE", ""),
			MaxSize:    envInt("LOG_MAX_SIZE", 100),
			MaxBackups: envInt("LOG_MAX_BACKUPS", 3),
			MaxAge:     envInt("LOG_MAX_AGE", 28),
			Compress:   envBool("LOG_COMPRESS", false),
		},
		Version: envString("REGISTRY_VERSION", "dev"),
	}
}

func (c Config) Validate() error {
	switch c.Backend {
	case BackendGitHub:
		if c.GitHub.Owner == "" || c.GitHub.Repo == "" {
			return errors.New("GH_OWNER and GH_REPO are required for the github backend")
		}
	case BackendSQLite:
		if c.DBPath == "" {
			return errors.New("REGISTRY_DB is required for the sqlite backend")
		}
	case BackendMemory:
	default:
		return errors.New("unknown REGISTRY_BACKEND " + strconv.Quote(c.Backend))
	}
	switch c.CommitMode {
	case "async", "sync":
	default:
		return errors.New("COMMIT_MODE must be async or sync")
	}
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
